package decay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memento-index/memento/pkg/types"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEffectiveImportance_HalvesAtOneHalfLife(t *testing.T) {
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := updated.Add(90 * 24 * time.Hour)
	m := Model{Now: fixedNow(now)}

	mem := &types.Memory{
		ImportanceWeight:  0.8,
		ImportanceTier:    types.TierNormal,
		DecayHalfLifeDays: 90,
		UpdatedAt:         updated.Format(time.RFC3339),
	}

	assert.InDelta(t, 0.4, m.EffectiveImportance(mem), 1e-9)
}

func TestEffectiveImportance_PinnedBypassesDecay(t *testing.T) {
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := updated.Add(365 * 24 * time.Hour)
	m := Model{Now: fixedNow(now)}

	mem := &types.Memory{
		ImportanceWeight:  0.9,
		ImportanceTier:    types.TierNormal,
		DecayHalfLifeDays: 90,
		IsPinned:          true,
		UpdatedAt:         updated.Format(time.RFC3339),
	}

	assert.Equal(t, 0.9, m.EffectiveImportance(mem))
}

func TestEffectiveImportance_ConstitutionalBypassesDecay(t *testing.T) {
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := updated.Add(1000 * 24 * time.Hour)
	m := Model{Now: fixedNow(now)}

	mem := &types.Memory{
		ImportanceWeight:  0.7,
		ImportanceTier:    types.TierConstitutional,
		DecayHalfLifeDays: 30,
		UpdatedAt:         updated.Format(time.RFC3339),
	}

	assert.Equal(t, 0.7, m.EffectiveImportance(mem))
}

func TestEffectiveImportance_ZeroHalfLifeNeverDecays(t *testing.T) {
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := updated.Add(1000 * 24 * time.Hour)
	m := Model{Now: fixedNow(now)}

	mem := &types.Memory{
		ImportanceWeight:  0.5,
		ImportanceTier:    types.TierNormal,
		DecayHalfLifeDays: 0,
		UpdatedAt:         updated.Format(time.RFC3339),
	}

	assert.Equal(t, 0.5, m.EffectiveImportance(mem))
}

func TestExpiresAt_TemporarySevenDays(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ExpiresAt(types.TierTemporary, from)
	assert.NotNil(t, got)
	assert.Equal(t, from.Add(7*24*time.Hour), *got)
}

func TestExpiresAt_DeprecatedImmediate(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ExpiresAt(types.TierDeprecated, from)
	assert.NotNil(t, got)
	assert.Equal(t, from, *got)
}

func TestExpiresAt_CriticalNeverExpires(t *testing.T) {
	assert.Nil(t, ExpiresAt(types.TierCritical, time.Now()))
}

func TestClassifyTier_PathSignalWins(t *testing.T) {
	assert.Equal(t, types.TierCritical, ClassifyTier("project/decisions/auth.md", "just some notes"))
	assert.Equal(t, types.TierTemporary, ClassifyTier("scratch/ideas.md", "just some notes"))
}

func TestClassifyTier_ContentSignalFallback(t *testing.T) {
	assert.Equal(t, types.TierDeprecated, ClassifyTier("notes/misc.md", "This approach is deprecated now."))
	assert.Equal(t, types.TierNormal, ClassifyTier("notes/misc.md", "Just a regular observation."))
}
