package sqlite

// Schema contains the SQL statements used to create a fresh metadata+vector
// database. It is applied idempotently (IF NOT EXISTS everywhere) on every
// open, the same way a migration runner would apply a first migration.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    spec_folder TEXT NOT NULL,
    file_path TEXT NOT NULL,
    anchor_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    trigger_phrases TEXT,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,

    embedding_model TEXT,
    embedding_status TEXT NOT NULL DEFAULT 'pending',

    importance_weight REAL NOT NULL DEFAULT 0.5,
    importance_tier TEXT NOT NULL DEFAULT 'normal',
    context_type TEXT NOT NULL DEFAULT 'general',
    decay_half_life_days REAL NOT NULL DEFAULT 90,
    is_pinned INTEGER NOT NULL DEFAULT 0,

    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed INTEGER NOT NULL DEFAULT 0,

    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    expires_at TEXT,

    confidence REAL NOT NULL DEFAULT 1.0,
    related_memories TEXT,

    channel TEXT,
    session_id TEXT,

    UNIQUE(spec_folder, file_path, anchor_id)
);

CREATE INDEX IF NOT EXISTS idx_memories_spec_folder ON memories(spec_folder);
CREATE INDEX IF NOT EXISTS idx_memories_importance_tier ON memories(importance_tier);
CREATE INDEX IF NOT EXISTS idx_memories_embedding_status ON memories(embedding_status);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_updated_at ON memories(updated_at);
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed ON memories(last_accessed);
CREATE INDEX IF NOT EXISTS idx_memories_expires_at ON memories(expires_at);
CREATE INDEX IF NOT EXISTS idx_memories_is_pinned ON memories(is_pinned);

CREATE TABLE IF NOT EXISTS vec (
    id INTEGER PRIMARY KEY,
    embedding BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    model TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_vec_model ON vec(model);

CREATE TABLE IF NOT EXISTS history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    memory_id INTEGER NOT NULL,
    prev_value TEXT,
    new_value TEXT,
    event TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    actor TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_memory_id ON history(memory_id);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp);

CREATE TABLE IF NOT EXISTS checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    created_at TEXT NOT NULL,
    spec_folder TEXT,
    branch TEXT,
    memory_snapshot BLOB,
    file_snapshot BLOB,
    metadata TEXT
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    title,
    trigger_phrases,
    content,
    spec_folder,
    file_path,
    content='memories',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, title, trigger_phrases, content, spec_folder, file_path)
    VALUES (new.id, new.title, new.trigger_phrases, new.content, new.spec_folder, new.file_path);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, title, trigger_phrases, content, spec_folder, file_path)
    VALUES ('delete', old.id, old.title, old.trigger_phrases, old.content, old.spec_folder, old.file_path);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, title, trigger_phrases, content, spec_folder, file_path)
    VALUES ('delete', old.id, old.title, old.trigger_phrases, old.content, old.spec_folder, old.file_path);
    INSERT INTO memories_fts(rowid, title, trigger_phrases, content, spec_folder, file_path)
    VALUES (new.id, new.title, new.trigger_phrases, new.content, new.spec_folder, new.file_path);
END;

CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// SchemaVersion is the version recorded after Schema has been applied. Bump
// it and append a new ALTER/CREATE block below whenever the shape changes.
const SchemaVersion = 1
