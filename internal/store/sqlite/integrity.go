package sqlite

import (
	"context"
	"fmt"
)

// IntegrityReport describes the result of verifyIntegrity: rows present in
// one of the metadata/vector tables but absent from the other, and file
// paths referenced by memories that are no longer believed to exist on
// disk (the caller supplies the existence check since pathsafety governs
// which bases are legal to probe).
type IntegrityReport struct {
	OrphanedVectors []int64 // ids in vec with no matching memories row
	MissingVectors  []int64 // ids in memories (embedding_status=success) with no vec row
	OrphanedFiles   []string
}

// VerifyIntegrity cross-checks the memories and vec tables for the dual-table
// synchrony invariant. fileExists is optional; when nil, OrphanedFiles is
// always empty.
func (s *Store) VerifyIntegrity(ctx context.Context, fileExists func(path string) bool) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id FROM vec v LEFT JOIN memories m ON m.id = v.id WHERE m.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan orphaned vectors: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to read orphaned vector id: %w", err)
		}
		report.OrphanedVectors = append(report.OrphanedVectors, id)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT m.id FROM memories m
		LEFT JOIN vec v ON v.id = m.id
		WHERE m.embedding_status = 'success' AND v.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan missing vectors: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to read missing-vector id: %w", err)
		}
		report.MissingVectors = append(report.MissingVectors, id)
	}
	rows.Close()

	if fileExists != nil {
		rows, err = s.db.QueryContext(ctx, "SELECT DISTINCT file_path FROM memories")
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan file paths: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				return nil, fmt.Errorf("sqlite: failed to read file path: %w", err)
			}
			if !fileExists(path) {
				report.OrphanedFiles = append(report.OrphanedFiles, path)
			}
		}
	}

	return report, nil
}

// Clean returns true when the report found nothing to repair.
func (r *IntegrityReport) Clean() bool {
	return len(r.OrphanedVectors) == 0 && len(r.MissingVectors) == 0 && len(r.OrphanedFiles) == 0
}
