package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memento-index/memento/pkg/types"
)

// CreateCheckpoint snapshots the full memories table (as a JSON array) and
// records it under name, for later restore. fileSnapshot is an opaque blob
// the caller may attach (e.g. a tar of the indexed spec_folder) — it is
// stored as-is and never interpreted here.
func (s *Store) CreateCheckpoint(ctx context.Context, name, specFolder, branch string, fileSnapshot []byte, metadata map[string]interface{}) (int64, error) {
	rows, err := s.db.QueryContext(ctx, memorySelectColumns)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read memories for checkpoint: %w", err)
	}
	defer rows.Close()

	var snapshot []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return 0, fmt.Errorf("sqlite: failed to scan memory for checkpoint: %w", err)
		}
		snapshot = append(snapshot, m)
	}

	memoryJSON, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to marshal checkpoint snapshot: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to marshal checkpoint metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (name, created_at, spec_folder, branch, memory_snapshot, file_snapshot, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, name, time.Now().UTC().Format(time.RFC3339), specFolder, branch, memoryJSON, fileSnapshot, metaJSON)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to insert checkpoint: %w", err)
	}
	return res.LastInsertId()
}

// RestoreCheckpoint replaces the entire memories table (and its FTS mirror,
// via the delete trigger) with the snapshot recorded under checkpointID.
// The vector table is cleared as well and is not restored: restored
// memories come back with embedding_status reset to pending and no vector
// row, and this function does not queue them for re-embedding.
func (s *Store) RestoreCheckpoint(ctx context.Context, checkpointID int64) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	var snapshotJSON []byte
	var createdAt string
	var specFolder, branch sql.NullString
	var metaJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, spec_folder, branch, memory_snapshot, file_snapshot, metadata
		FROM checkpoints WHERE id = ?
	`, checkpointID).Scan(&cp.ID, &cp.Name, &createdAt, &specFolder, &branch, &snapshotJSON, &cp.FileSnapshot, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load checkpoint: %w", err)
	}

	cp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cp.SpecFolder = specFolder.String
	cp.Branch = branch.String
	if len(metaJSON) > 0 {
		json.Unmarshal(metaJSON, &cp.Metadata)
	}

	var snapshot []*types.Memory
	if err := json.Unmarshal(snapshotJSON, &snapshot); err != nil {
		return nil, fmt.Errorf("sqlite: failed to unmarshal checkpoint snapshot: %w", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM memories"); err != nil {
			return fmt.Errorf("sqlite: failed to clear memories before restore: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec"); err != nil {
			return fmt.Errorf("sqlite: failed to clear vectors before restore: %w", err)
		}

		for _, m := range snapshot {
			triggers, _ := json.Marshal(m.TriggerPhrases)
			related, _ := json.Marshal(m.RelatedMemories)
			var expiresAt interface{}
			if m.ExpiresAt != nil {
				expiresAt = m.ExpiresAt.UTC().Format(time.RFC3339)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO memories (
					id, spec_folder, file_path, anchor_id, title, trigger_phrases, content,
					content_hash, embedding_model, embedding_status,
					importance_weight, importance_tier, context_type, decay_half_life_days,
					is_pinned, access_count, last_accessed, created_at, updated_at,
					expires_at, confidence, related_memories, channel, session_id
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				m.ID, m.SpecFolder, m.FilePath, m.AnchorID, m.Title, string(triggers), m.Content,
				m.ContentHash, m.EmbeddingModel,
				m.ImportanceWeight, string(m.ImportanceTier), string(m.ContextType), m.DecayHalfLifeDays,
				boolToInt(m.IsPinned), m.AccessCount, m.LastAccessed, m.CreatedAt, m.UpdatedAt,
				expiresAt, m.Confidence, string(related), m.Channel, m.SessionID,
			); err != nil {
				return fmt.Errorf("sqlite: failed to restore memory %d: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cp.MemorySnapshot = snapshotJSON
	return &cp, nil
}

// ListCheckpoints returns checkpoint metadata ordered newest-first.
func (s *Store) ListCheckpoints(ctx context.Context) ([]*types.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, spec_folder, branch FROM checkpoints ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*types.Checkpoint
	for rows.Next() {
		var cp types.Checkpoint
		var createdAt string
		var specFolder, branch sql.NullString
		if err := rows.Scan(&cp.ID, &cp.Name, &createdAt, &specFolder, &branch); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan checkpoint: %w", err)
		}
		cp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		cp.SpecFolder = specFolder.String
		cp.Branch = branch.String
		out = append(out, &cp)
	}
	return out, nil
}
