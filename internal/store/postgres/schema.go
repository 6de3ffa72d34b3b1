package postgres

// schema is the PostgreSQL-flavored mirror of the per-profile SQLite schema
// (internal/store/sqlite): one memories table, its embedding column backed
// by the pgvector extension instead of a paired vec table, an append-only
// history log, checkpoints, and settings. Chosen for deployments that want
// one shared multi-process store instead of per-profile SQLite files.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
	id                   BIGSERIAL PRIMARY KEY,
	spec_folder          TEXT NOT NULL,
	file_path            TEXT NOT NULL,
	anchor_id            TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL DEFAULT '',
	trigger_phrases      JSONB NOT NULL DEFAULT '[]',
	content              TEXT NOT NULL,
	content_hash         TEXT NOT NULL,
	embedding_model      TEXT NOT NULL DEFAULT '',
	embedding_status     TEXT NOT NULL DEFAULT 'pending',
	embedding_vec        vector,
	importance_weight    DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	importance_tier      TEXT NOT NULL DEFAULT 'normal',
	context_type         TEXT NOT NULL DEFAULT 'general',
	decay_half_life_days DOUBLE PRECISION NOT NULL DEFAULT 90,
	is_pinned            BOOLEAN NOT NULL DEFAULT FALSE,
	access_count         BIGINT NOT NULL DEFAULT 0,
	last_accessed        BIGINT NOT NULL DEFAULT 0,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	expires_at           TEXT,
	confidence           DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	related_memories     JSONB NOT NULL DEFAULT '[]',
	channel              TEXT NOT NULL DEFAULT '',
	session_id           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_memories_spec_folder ON memories(spec_folder);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(spec_folder, content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(importance_tier);

CREATE TABLE IF NOT EXISTS history (
	id         BIGSERIAL PRIMARY KEY,
	memory_id  BIGINT NOT NULL,
	prev_value TEXT,
	new_value  TEXT,
	event      TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_history_memory_id ON history(memory_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	spec_folder     TEXT NOT NULL DEFAULT '',
	branch          TEXT NOT NULL DEFAULT '',
	memory_snapshot BYTEA,
	file_snapshot   BYTEA,
	metadata        JSONB
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- ivfflat needs rows to exist before it can be built; callers re-run
-- EnsureVectorIndex once the table is non-empty.
`

// ivfflatIndexSQL builds the approximate-nearest-neighbor index. It is kept
// separate from schema because ivfflat construction fails on an empty
// table; EnsureVectorIndex below runs it lazily once rows exist.
const ivfflatIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_memories_embedding_vec_cosine
	ON memories USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)
`
