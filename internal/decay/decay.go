// Package decay implements tier classification, the exponential
// importance-decay model, and expiry computation (C8).
package decay

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/memento-index/memento/pkg/types"
)

// Model holds the decay formula's tunables. The zero value is ready to use
// with the default half-life baked into each memory's DecayHalfLifeDays
// field.
type Model struct {
	Now func() time.Time
}

func (m Model) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// EffectiveImportance applies exponential decay to a memory's
// importance_weight: weight * 0.5^((now-updated_at)/half_life_days).
// Pinned memories and memories in a decay-exempt tier (constitutional,
// critical, important) bypass decay entirely. A half-life of 0 also means
// "never decays".
func (m Model) EffectiveImportance(mem *types.Memory) float64 {
	if mem.IsPinned || mem.ImportanceTier.DecayExempt() || mem.DecayHalfLifeDays <= 0 {
		return mem.ImportanceWeight
	}

	updatedAt, err := time.Parse(time.RFC3339, mem.UpdatedAt)
	if err != nil {
		return mem.ImportanceWeight
	}

	elapsedDays := m.now().Sub(updatedAt).Hours() / 24
	if elapsedDays <= 0 {
		return mem.ImportanceWeight
	}

	factor := math.Pow(0.5, elapsedDays/mem.DecayHalfLifeDays)
	return mem.ImportanceWeight * factor
}

// ExpiresAt computes the expiry timestamp implied by a tier at creation
// time: temporary memories expire after 7 days, deprecated memories expire
// immediately, normal memories after 90 days, and constitutional/critical/
// important memories never expire (nil).
func ExpiresAt(tier types.ImportanceTier, from time.Time) *time.Time {
	switch tier {
	case types.TierTemporary:
		t := from.Add(7 * 24 * time.Hour)
		return &t
	case types.TierDeprecated:
		t := from
		return &t
	case types.TierNormal:
		t := from.Add(90 * 24 * time.Hour)
		return &t
	default:
		return nil
	}
}

// corePathPattern matches the core architectural path segments that map to
// the constitutional tier: /architecture/, /core/, /schema/, /security/,
// /config/.
var corePathPattern = regexp.MustCompile(`(?i)(^|/)(architecture|core|schema|security|config)(/|$)`)

// decisionContextPattern flags "decision" context, checked against both the
// path (a decisions/ folder) and the content body.
var decisionContextPattern = regexp.MustCompile(`(?i)\bdecisions?\b`)

// pathTierPatterns classify a memory's tier from its file path once the
// constitutional/critical core-path check has been ruled out — e.g.
// "scratch/" or "tmp/" to temporary.
var pathTierPatterns = []struct {
	re   *regexp.Regexp
	tier types.ImportanceTier
}{
	{regexp.MustCompile(`(?i)(^|/)(important|key)(/|$)`), types.TierImportant},
	{regexp.MustCompile(`(?i)(^|/)(scratch|tmp|temp|draft)(/|$)`), types.TierTemporary},
	{regexp.MustCompile(`(?i)(^|/)(deprecated|archive|old)(/|$)`), types.TierDeprecated},
}

// contentSignalPatterns classify tier from strong phrases inside the body
// when the path gave no signal.
var contentSignalPatterns = []struct {
	re   *regexp.Regexp
	tier types.ImportanceTier
}{
	{regexp.MustCompile(`(?i)\b(never|always)\s+(do|use|call|commit|deploy)\b`), types.TierCritical},
	{regexp.MustCompile(`(?i)\bcore (principle|rule|constraint)\b`), types.TierConstitutional},
	{regexp.MustCompile(`(?i)\bdeprecated\b`), types.TierDeprecated},
	{regexp.MustCompile(`(?i)\btemporary\b|\bfor now\b|\bTODO\b`), types.TierTemporary},
}

// ClassifyTier infers an importance_tier from a file path and content body
// when the caller hasn't set one explicitly. A path under a core
// architectural folder is constitutional, or critical if it also carries
// decision context; a path carrying decision context on its own (e.g. a
// decisions/ folder outside the core set) is critical too. Otherwise path
// signals take priority over content signals; the fallback is TierNormal.
func ClassifyTier(path, content string) types.ImportanceTier {
	lowerPath := strings.ToLower(path)

	if corePathPattern.MatchString(lowerPath) {
		if decisionContextPattern.MatchString(lowerPath) || decisionContextPattern.MatchString(content) {
			return types.TierCritical
		}
		return types.TierConstitutional
	}
	if decisionContextPattern.MatchString(lowerPath) {
		return types.TierCritical
	}

	for _, p := range pathTierPatterns {
		if p.re.MatchString(lowerPath) {
			return p.tier
		}
	}
	for _, p := range contentSignalPatterns {
		if p.re.MatchString(content) {
			return p.tier
		}
	}
	return types.TierNormal
}
