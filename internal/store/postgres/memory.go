package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/memento-index/memento/pkg/types"
)

// Insert creates a new memory row, computing ContentHash from Content when
// empty, and appends an ADD history record. Mirrors sqlite.Store.Insert's
// contract so the two backends are interchangeable behind engine.Engine.
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

	triggers, err := json.Marshal(m.TriggerPhrases)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to marshal trigger phrases: %w", err)
	}
	related, err := json.Marshal(m.RelatedMemories)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to marshal related memories: %w", err)
	}

	var expiresAt interface{}
	if m.ExpiresAt != nil {
		expiresAt = m.ExpiresAt.UTC().Format(time.RFC3339)
	}

	var vec interface{}
	embeddingModel := m.EmbeddingModel
	if len(embedding) > 0 {
		vec = pgvector.NewVector(embedding)
		if model != "" {
			embeddingModel = model
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO memories (
			spec_folder, file_path, anchor_id, title, trigger_phrases, content,
			content_hash, embedding_model, embedding_status, embedding_vec,
			importance_weight, importance_tier, context_type, decay_half_life_days,
			is_pinned, access_count, last_accessed, created_at, updated_at,
			expires_at, confidence, related_memories, channel, session_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING id
	`,
		m.SpecFolder, m.FilePath, m.AnchorID, m.Title, string(triggers), m.Content,
		m.ContentHash, embeddingModel, string(m.EmbeddingStatus), vec,
		m.ImportanceWeight, string(m.ImportanceTier), string(m.ContextType), m.DecayHalfLifeDays,
		m.IsPinned, m.AccessCount, m.LastAccessed, m.CreatedAt, m.UpdatedAt,
		expiresAt, m.Confidence, string(related), m.Channel, m.SessionID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to insert memory: %w", err)
	}

	newValue, _ := json.Marshal(m)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (memory_id, prev_value, new_value, event, timestamp, actor)
		VALUES ($1, NULL, $2, $3, $4, $5)
	`, id, string(newValue), string(types.HistoryAdd), now.Format(time.RFC3339), "system"); err != nil {
		return 0, fmt.Errorf("postgres: failed to append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: failed to commit insert: %w", err)
	}

	m.ID = id
	return id, nil
}

const memorySelectColumns = `
	id, spec_folder, file_path, anchor_id, title, trigger_phrases, content,
	content_hash, embedding_model, embedding_status,
	importance_weight, importance_tier, context_type, decay_half_life_days,
	is_pinned, access_count, last_accessed, created_at, updated_at,
	expires_at, confidence, related_memories, channel, session_id
`

// Get fetches a memory by id. Returns ErrNotFound if no row matches.
func (s *Store) Get(ctx context.Context, id int64) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memorySelectColumns+` FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// GetVector returns the raw embedding and the model that produced it.
func (s *Store) GetVector(ctx context.Context, id int64) ([]float32, string, error) {
	var raw sql.Null[pgvector.Vector]
	var model string
	err := s.db.QueryRowContext(ctx, `SELECT embedding_vec, embedding_model FROM memories WHERE id = $1`, id).Scan(&raw, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("postgres: failed to load vector: %w", err)
	}
	if !raw.Valid {
		return nil, model, nil
	}
	return raw.V.Slice(), model, nil
}

// Update overwrites m's mutable fields, re-embeds if embedding is non-nil,
// and appends an UPDATE history record capturing the prior row.
func (s *Store) Update(ctx context.Context, m *types.Memory, embedding []float32, model string) error {
	if m == nil || m.ID == 0 {
		return ErrInvalidInput
	}

	prev, err := s.Get(ctx, m.ID)
	if err != nil {
		return err
	}
	prevJSON, _ := json.Marshal(prev)

	m.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	triggers, err := json.Marshal(m.TriggerPhrases)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal trigger phrases: %w", err)
	}
	related, err := json.Marshal(m.RelatedMemories)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal related memories: %w", err)
	}
	var expiresAt interface{}
	if m.ExpiresAt != nil {
		expiresAt = m.ExpiresAt.UTC().Format(time.RFC3339)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(embedding) > 0 {
		vec := pgvector.NewVector(embedding)
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET embedding_vec = $1, embedding_model = $2 WHERE id = $3`, vec, model, m.ID); err != nil {
			return fmt.Errorf("postgres: failed to update vector: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET
			title = $1, trigger_phrases = $2, embedding_status = $3,
			importance_weight = $4, importance_tier = $5, context_type = $6,
			decay_half_life_days = $7, is_pinned = $8, updated_at = $9,
			expires_at = $10, confidence = $11, related_memories = $12,
			channel = $13, session_id = $14
		WHERE id = $15
	`, m.Title, string(triggers), string(m.EmbeddingStatus),
		m.ImportanceWeight, string(m.ImportanceTier), string(m.ContextType),
		m.DecayHalfLifeDays, m.IsPinned, m.UpdatedAt,
		expiresAt, m.Confidence, string(related),
		m.Channel, m.SessionID, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update memory: %w", err)
	}

	newJSON, _ := json.Marshal(m)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (memory_id, prev_value, new_value, event, timestamp, actor)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, string(prevJSON), string(newJSON), string(types.HistoryUpdate), m.UpdatedAt, "system"); err != nil {
		return fmt.Errorf("postgres: failed to append history: %w", err)
	}

	return tx.Commit()
}

// Delete removes a memory row, appending a DELETE history record first so
// the deletion remains auditable/restorable from history alone.
func (s *Store) Delete(ctx context.Context, id int64) error {
	prev, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	prevJSON, _ := json.Marshal(prev)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (memory_id, prev_value, new_value, event, timestamp, actor)
		VALUES ($1, $2, NULL, $3, $4, $5)
	`, id, string(prevJSON), string(types.HistoryDelete), time.Now().UTC().Format(time.RFC3339), "system"); err != nil {
		return fmt.Errorf("postgres: failed to append history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: failed to delete memory: %w", err)
	}

	return tx.Commit()
}

// FindByContentHash resolves an exact-duplicate match within a folder.
func (s *Store) FindByContentHash(ctx context.Context, contentHash, specFolder string) (int64, string, bool) {
	var id int64
	var path string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_path FROM memories WHERE content_hash = $1 AND spec_folder = $2 LIMIT 1
	`, contentHash, specFolder).Scan(&id, &path)
	if err != nil {
		return 0, "", false
	}
	return id, path, true
}

// RecordAccess increments access_count and stamps last_accessed (epoch ms).
func (s *Store) RecordAccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed = $1 WHERE id = $2
	`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to record access: %w", err)
	}
	return nil
}

// FindMostSimilar returns the single nearest neighbor's cosine similarity
// (0-100) to target within specFolder, delegated to pgvector's `<=>`
// cosine-distance operator instead of an in-process scan.
func (s *Store) FindMostSimilar(ctx context.Context, target []float32, specFolder string) (float64, int64, bool) {
	if len(target) == 0 {
		return 0, 0, false
	}
	vec := pgvector.NewVector(target)

	var id int64
	var distance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, embedding_vec <=> $1 AS distance
		FROM memories
		WHERE spec_folder = $2 AND embedding_vec IS NOT NULL
		ORDER BY distance ASC
		LIMIT 1
	`, vec, specFolder).Scan(&id, &distance)
	if err != nil {
		return 0, 0, false
	}
	// Cosine distance is 1-cosine_similarity; rescale to the 0-100 scale
	// the rest of the pipeline (sqlite's cosineSimilarity) uses.
	similarity := (1 - distance) * 100
	return similarity, id, true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var triggers, related string
	var expiresAt sql.NullString

	err := row.Scan(
		&m.ID, &m.SpecFolder, &m.FilePath, &m.AnchorID, &m.Title, &triggers, &m.Content,
		&m.ContentHash, &m.EmbeddingModel, &m.EmbeddingStatus,
		&m.ImportanceWeight, &m.ImportanceTier, &m.ContextType, &m.DecayHalfLifeDays,
		&m.IsPinned, &m.AccessCount, &m.LastAccessed, &m.CreatedAt, &m.UpdatedAt,
		&expiresAt, &m.Confidence, &related, &m.Channel, &m.SessionID,
	)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(triggers), &m.TriggerPhrases)
	_ = json.Unmarshal([]byte(related), &m.RelatedMemories)

	if expiresAt.Valid && expiresAt.String != "" {
		if t, err := time.Parse(time.RFC3339, expiresAt.String); err == nil {
			m.ExpiresAt = &t
		}
	}

	return &m, nil
}
