package sqlite

import (
	"fmt"
	"path/filepath"

	"github.com/memento-index/memento/internal/embedding"
)

// ProfilePath returns the database file path for the given embedding
// profile inside dbDir, e.g. "{dbDir}/memento-ollama-nomic-embed-text-768.db".
// Each provider+model+dimension fingerprint gets its own file so that a
// dimension mismatch between providers can never corrupt one vector table.
func ProfilePath(dbDir string, profile embedding.Profile) string {
	suffix := profile.DatabaseSuffix
	if suffix == "" {
		suffix = "default"
	}
	if profile.Dim > 0 {
		suffix = fmt.Sprintf("%s-%d", suffix, profile.Dim)
	}
	return filepath.Join(dbDir, fmt.Sprintf("memento-%s.db", suffix))
}

// OpenForProfile opens the database file dedicated to profile, creating the
// directory layout and schema on first use.
func OpenForProfile(dbDir string, profile embedding.Profile) (*Store, error) {
	return Open(ProfilePath(dbDir, profile))
}
