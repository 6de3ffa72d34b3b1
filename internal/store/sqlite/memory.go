package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/memento-index/memento/pkg/types"
)

// Insert creates a new memory row (and, if embedding is non-nil, its paired
// vector row) inside a single transaction, then appends an ADD history
// record. The memory's ContentHash is computed from Content if empty.
func (s *Store) Insert(ctx context.Context, m *types.Memory, embedding []float32, model string) (int64, error) {
	if m == nil {
		return 0, ErrInvalidInput
	}
	if m.Content == "" {
		return 0, fmt.Errorf("%w: memory content is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if m.ContentHash == "" {
		m.ContentHash = fmt.Sprintf("%x", sha256.Sum256([]byte(m.Content)))
	}
	if m.CreatedAt == "" {
		m.CreatedAt = now.Format(time.RFC3339)
	}
	m.UpdatedAt = now.Format(time.RFC3339)

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		triggers, err := json.Marshal(m.TriggerPhrases)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal trigger phrases: %w", err)
		}
		related, err := json.Marshal(m.RelatedMemories)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal related memories: %w", err)
		}

		var expiresAt interface{}
		if m.ExpiresAt != nil {
			expiresAt = m.ExpiresAt.UTC().Format(time.RFC3339)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO memories (
				spec_folder, file_path, anchor_id, title, trigger_phrases, content,
				content_hash, embedding_model, embedding_status,
				importance_weight, importance_tier, context_type, decay_half_life_days,
				is_pinned, access_count, last_accessed, created_at, updated_at,
				expires_at, confidence, related_memories, channel, session_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			m.SpecFolder, m.FilePath, m.AnchorID, m.Title, string(triggers), m.Content,
			m.ContentHash, m.EmbeddingModel, string(m.EmbeddingStatus),
			m.ImportanceWeight, string(m.ImportanceTier), string(m.ContextType), m.DecayHalfLifeDays,
			boolToInt(m.IsPinned), m.AccessCount, m.LastAccessed, m.CreatedAt, m.UpdatedAt,
			expiresAt, m.Confidence, string(related), m.Channel, m.SessionID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert memory: %w", err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: failed to read inserted id: %w", err)
		}

		if len(embedding) > 0 {
			blob := serializeEmbedding(embedding)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vec (id, embedding, dimension, model, updated_at)
				VALUES (?, ?, ?, ?, ?)
			`, id, blob, len(embedding), model, m.UpdatedAt); err != nil {
				return fmt.Errorf("sqlite: failed to insert vector: %w", err)
			}
		}

		newValue, _ := json.Marshal(m)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (memory_id, prev_value, new_value, event, timestamp, actor)
			VALUES (?, NULL, ?, ?, ?, ?)
		`, id, string(newValue), string(types.HistoryAdd), now.Format(time.RFC3339), "system"); err != nil {
			return fmt.Errorf("sqlite: failed to append history: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}
	m.ID = id
	return id, nil
}

// Get fetches a memory by id. Returns ErrNotFound if no row matches.
func (s *Store) Get(ctx context.Context, id int64) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, memorySelectColumns+" WHERE id = ?", id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// GetVector fetches the embedding vector stored for id, if any.
func (s *Store) GetVector(ctx context.Context, id int64) ([]float32, string, error) {
	var blob []byte
	var dim int
	var model string
	err := s.db.QueryRowContext(ctx, "SELECT embedding, dimension, model FROM vec WHERE id = ?", id).
		Scan(&blob, &dim, &model)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("sqlite: failed to fetch vector: %w", err)
	}
	return deserializeEmbedding(blob, dim), model, nil
}

// Update applies a full replace of the metadata row (and, if embedding is
// non-nil, the vector row), then appends an UPDATE history record with the
// previous JSON snapshot.
func (s *Store) Update(ctx context.Context, m *types.Memory, embedding []float32, model string) error {
	if m == nil || m.ID == 0 {
		return fmt.Errorf("%w: memory id is required", ErrInvalidInput)
	}

	prev, err := s.Get(ctx, m.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	m.UpdatedAt = now.Format(time.RFC3339)

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		triggers, _ := json.Marshal(m.TriggerPhrases)
		related, _ := json.Marshal(m.RelatedMemories)

		var expiresAt interface{}
		if m.ExpiresAt != nil {
			expiresAt = m.ExpiresAt.UTC().Format(time.RFC3339)
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE memories SET
				spec_folder=?, file_path=?, anchor_id=?, title=?, trigger_phrases=?, content=?,
				content_hash=?, embedding_model=?, embedding_status=?,
				importance_weight=?, importance_tier=?, context_type=?, decay_half_life_days=?,
				is_pinned=?, access_count=?, last_accessed=?, updated_at=?,
				expires_at=?, confidence=?, related_memories=?, channel=?, session_id=?
			WHERE id=?
		`,
			m.SpecFolder, m.FilePath, m.AnchorID, m.Title, string(triggers), m.Content,
			m.ContentHash, m.EmbeddingModel, string(m.EmbeddingStatus),
			m.ImportanceWeight, string(m.ImportanceTier), string(m.ContextType), m.DecayHalfLifeDays,
			boolToInt(m.IsPinned), m.AccessCount, m.LastAccessed, m.UpdatedAt,
			expiresAt, m.Confidence, string(related), m.Channel, m.SessionID,
			m.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to update memory: %w", err)
		}

		if embedding != nil {
			blob := serializeEmbedding(embedding)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vec (id, embedding, dimension, model, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					embedding=excluded.embedding, dimension=excluded.dimension,
					model=excluded.model, updated_at=excluded.updated_at
			`, m.ID, blob, len(embedding), model, m.UpdatedAt); err != nil {
				return fmt.Errorf("sqlite: failed to upsert vector: %w", err)
			}
		}

		prevJSON, _ := json.Marshal(prev)
		newJSON, _ := json.Marshal(m)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (memory_id, prev_value, new_value, event, timestamp, actor)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.ID, string(prevJSON), string(newJSON), string(types.HistoryUpdate), now.Format(time.RFC3339), "system"); err != nil {
			return fmt.Errorf("sqlite: failed to append history: %w", err)
		}

		return nil
	})
}

// Delete removes a memory and its paired vector row (via ON DELETE CASCADE),
// appending a DELETE history record first since the row disappears after.
func (s *Store) Delete(ctx context.Context, id int64) error {
	prev, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		prevJSON, _ := json.Marshal(prev)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (memory_id, prev_value, new_value, event, timestamp, actor)
			VALUES (?, ?, NULL, ?, ?, ?)
		`, id, string(prevJSON), string(types.HistoryDelete), time.Now().UTC().Format(time.RFC3339), "system"); err != nil {
			return fmt.Errorf("sqlite: failed to append history: %w", err)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("sqlite: failed to delete memory: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FindByContentHash looks up an existing memory with an identical content
// hash within the same spec_folder, used by the pre-flight gate's exact
// duplicate check.
func (s *Store) FindByContentHash(ctx context.Context, contentHash, specFolder string) (int64, string, bool) {
	var id int64
	var filePath string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, file_path FROM memories WHERE content_hash = ? AND spec_folder = ? LIMIT 1",
		contentHash, specFolder,
	).Scan(&id, &filePath)
	if err != nil {
		return 0, "", false
	}
	return id, filePath, true
}

// RecordAccess atomically increments access_count and stamps last_accessed
// (epoch milliseconds) for one memory (C11).
func (s *Store) RecordAccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?",
		time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record access: %w", err)
	}
	return nil
}

const memorySelectColumns = `
SELECT id, spec_folder, file_path, anchor_id, title, trigger_phrases, content,
       content_hash, embedding_model, embedding_status,
       importance_weight, importance_tier, context_type, decay_half_life_days,
       is_pinned, access_count, last_accessed, created_at, updated_at,
       expires_at, confidence, related_memories, channel, session_id
FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var triggers, related string
	var isPinned int
	var expiresAt sql.NullString

	err := row.Scan(
		&m.ID, &m.SpecFolder, &m.FilePath, &m.AnchorID, &m.Title, &triggers, &m.Content,
		&m.ContentHash, &m.EmbeddingModel, &m.EmbeddingStatus,
		&m.ImportanceWeight, &m.ImportanceTier, &m.ContextType, &m.DecayHalfLifeDays,
		&isPinned, &m.AccessCount, &m.LastAccessed, &m.CreatedAt, &m.UpdatedAt,
		&expiresAt, &m.Confidence, &related, &m.Channel, &m.SessionID,
	)
	if err != nil {
		return nil, err
	}

	m.IsPinned = isPinned != 0
	if triggers != "" {
		json.Unmarshal([]byte(triggers), &m.TriggerPhrases)
	}
	if related != "" {
		json.Unmarshal([]byte(related), &m.RelatedMemories)
	}
	if expiresAt.Valid && expiresAt.String != "" {
		if t, err := time.Parse(time.RFC3339, expiresAt.String); err == nil {
			m.ExpiresAt = &t
		}
	}
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// serializeEmbedding packs a float32 vector as little-endian bytes.
func serializeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeEmbedding unpacks a little-endian byte blob of the stated
// dimension back into a float32 vector. Malformed blobs (wrong length)
// yield nil rather than a panic.
func deserializeEmbedding(buf []byte, dim int) []float32 {
	if dim <= 0 || len(buf) != dim*4 {
		return nil
	}
	out := make([]float32, dim)
	for i := range out {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// cosineSimilarity computes the cosine similarity of two equal-length
// vectors as a percentage in [0, 100]. Returns 0 for mismatched or empty
// vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return cos * 100
}

// FindMostSimilar scans every vector in the same spec_folder and returns the
// single nearest neighbor by cosine similarity, used by the pre-flight
// gate's similar-duplicate warning.
func (s *Store) FindMostSimilar(ctx context.Context, target []float32, specFolder string) (float64, int64, bool) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.embedding, v.dimension FROM vec v
		JOIN memories m ON m.id = v.id
		WHERE m.spec_folder = ?
	`, specFolder)
	if err != nil {
		return 0, 0, false
	}
	defer rows.Close()

	var bestID int64
	var bestSim float64 = -1
	found := false
	for rows.Next() {
		var id int64
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			continue
		}
		vec := deserializeEmbedding(blob, dim)
		if vec == nil {
			continue
		}
		sim := cosineSimilarity(target, vec)
		if sim > bestSim {
			bestSim = sim
			bestID = id
			found = true
		}
	}
	if !found {
		return 0, 0, false
	}
	return bestSim, bestID, true
}
