// Package usage implements access-tracking and cleanup-candidate discovery
// (C11): every search hit increments access_count and stamps last_accessed,
// and a periodic scan surfaces memories that look safe to retire.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/memento-index/memento/pkg/types"
)

// Tracker is the subset of the storage engine usage needs.
type Tracker interface {
	RecordAccess(ctx context.Context, id int64) error
}

// RecordAccess delegates to the store; kept as a thin wrapper so callers
// depend on this package's interface rather than the storage engine
// directly.
func RecordAccess(ctx context.Context, t Tracker, id int64) error {
	if err := t.RecordAccess(ctx, id); err != nil {
		return fmt.Errorf("usage: failed to record access: %w", err)
	}
	return nil
}

// Stats summarizes one memory's usage signals.
type Stats struct {
	ID           int64
	AccessCount  int64
	LastAccessed time.Time
	DaysSinceUse float64
}

// Summarize computes Stats for mem as of now.
func Summarize(mem *types.Memory, now time.Time) Stats {
	s := Stats{ID: mem.ID, AccessCount: mem.AccessCount}
	if mem.LastAccessed > 0 {
		s.LastAccessed = time.UnixMilli(mem.LastAccessed)
		s.DaysSinceUse = now.Sub(s.LastAccessed).Hours() / 24
	}
	return s
}

// CleanupCandidate is one memory flagged by DiscoverCleanupCandidates,
// carrying the human-readable reasons it was flagged.
type CleanupCandidate struct {
	Memory  *types.Memory
	Reasons []string
}

// createdOlderThanDays is the age threshold (in days) past which a memory
// becomes a cleanup candidate on age grounds alone.
const createdOlderThanDays = 90

// lowAccessThreshold and lowConfidenceThreshold are the other two
// independent cleanup signals; a memory need only trip one to be flagged.
const (
	lowAccessThreshold     = 2
	lowConfidenceThreshold = 0.4
)

// DiscoverCleanupCandidates flags memories created more than 90 days ago,
// OR with access_count <= 2, OR with confidence <= 0.4. Constitutional,
// critical, important, and pinned memories are never flagged regardless of
// signals.
func DiscoverCleanupCandidates(memories []*types.Memory, now time.Time) []CleanupCandidate {
	var out []CleanupCandidate
	for _, m := range memories {
		if m.IsPinned || m.ImportanceTier.DecayExempt() {
			continue
		}

		var reasons []string

		if created, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
			age := now.Sub(created).Hours() / 24
			if age > createdOlderThanDays {
				reasons = append(reasons, fmt.Sprintf("created %.0f days ago", age))
			}
		}
		if m.AccessCount <= lowAccessThreshold {
			reasons = append(reasons, fmt.Sprintf("accessed only %d time(s)", m.AccessCount))
		}
		if m.Confidence <= lowConfidenceThreshold {
			reasons = append(reasons, fmt.Sprintf("low confidence (%.2f)", m.Confidence))
		}

		if len(reasons) > 0 {
			out = append(out, CleanupCandidate{Memory: m, Reasons: reasons})
		}
	}
	return out
}
