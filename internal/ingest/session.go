// Package ingest implements the session ingestor (C12): it normalizes a raw
// coding-session transcript into a flat list of candidate memories, each
// classified by observation type, context type, and importance tier.
package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/memento-index/memento/internal/decay"
	"github.com/memento-index/memento/pkg/types"
)

// NewSessionID generates a stable identifier for one ingestion run, stamped
// onto every Memory produced by IngestSession (pkg/types.Memory.SessionID)
// so a later query can pull back everything one session contributed.
func NewSessionID() string {
	return uuid.NewString()
}

// RefineTierForPath lets a caller who later learns the destination file path
// override an observation-derived tier with a stronger path-based signal
// from internal/decay (e.g. an observation bound for a decisions/ folder
// becomes TierCritical even if its text alone only implied TierNormal).
func RefineTierForPath(fallback types.ImportanceTier, path, content string) types.ImportanceTier {
	if pathTier := decay.ClassifyTier(path, content); pathTier != types.TierNormal {
		return pathTier
	}
	return fallback
}

// Session is the normalized shape a raw transcript is folded into before
// classification.
type Session struct {
	UserPrompts   []string
	Observations  []string
	RecentContext []string
	Files         []string
}

// Observation is one classified candidate memory extracted from a session.
type Observation struct {
	Text        string
	Type        types.ObservationType
	ContextType types.ContextType
	Tier        types.ImportanceTier
	AnchorID    string
}

// observationSignals maps a regex matched against the raw text to the
// observation type it implies. Checked in order; first match wins.
var observationSignals = []struct {
	re   *regexp.Regexp
	kind types.ObservationType
}{
	{regexp.MustCompile(`(?i)\bfix(ed|ing)?\s+(a\s+)?bug\b|\bbugfix\b`), types.ObservationBugfix},
	{regexp.MustCompile(`(?i)\brefactor(ed|ing)?\b`), types.ObservationRefactor},
	{regexp.MustCompile(`(?i)\bdecid(ed|e)\b|\bchose\b|\bwent with\b`), types.ObservationDecision},
	{regexp.MustCompile(`(?i)\bresearch(ed|ing)?\b|\binvestigat(ed|ing)\b`), types.ObservationResearch},
	{regexp.MustCompile(`(?i)\bdiscover(ed|y)\b|\bturns out\b|\bfound that\b`), types.ObservationDiscovery},
	{regexp.MustCompile(`(?i)\badd(ed|ing)?\s+(a\s+)?(feature|support)\b|\bimplement(ed|ing)?\b`), types.ObservationFeature},
}

// ClassifyObservation infers an ObservationType from free text, defaulting
// to ObservationGeneric when nothing matches.
func ClassifyObservation(text string) types.ObservationType {
	for _, s := range observationSignals {
		if s.re.MatchString(text) {
			return s.kind
		}
	}
	return types.ObservationGeneric
}

// contextTypeForObservation maps an observation type onto the context_type
// surfaced to search/ranking; several observation types share one context.
func contextTypeForObservation(kind types.ObservationType) types.ContextType {
	switch kind {
	case types.ObservationResearch:
		return types.ContextResearch
	case types.ObservationFeature, types.ObservationBugfix, types.ObservationRefactor:
		return types.ContextImplementation
	case types.ObservationDecision:
		return types.ContextDecision
	case types.ObservationDiscovery:
		return types.ContextDiscovery
	default:
		return types.ContextGeneral
	}
}

// tierForObservation assigns a starting importance tier from the
// observation type alone; ClassifyTier (internal/decay) may override this
// once the eventual file path is known.
func tierForObservation(kind types.ObservationType) types.ImportanceTier {
	switch kind {
	case types.ObservationDecision:
		return types.TierImportant
	default:
		return types.TierNormal
	}
}

// Normalize folds a raw transcript into a Session. The caller supplies
// already-separated prompt/observation/file lines (the wire format the
// session-capture tooling emits); Normalize's job is only to trim and drop
// blanks, not to parse a specific transcript grammar.
func Normalize(userPrompts, observations, recentContext, files []string) Session {
	clean := func(lines []string) []string {
		var out []string
		for _, l := range lines {
			l = strings.TrimSpace(l)
			if l != "" {
				out = append(out, l)
			}
		}
		return out
	}
	return Session{
		UserPrompts:   clean(userPrompts),
		Observations:  clean(observations),
		RecentContext: clean(recentContext),
		Files:         clean(files),
	}
}

// ClassifyAll turns every observation line in a Session into a classified
// Observation, computing its anchor id from a running per-category
// collision-safe counter.
func ClassifyAll(s Session) []Observation {
	counters := make(map[string]int)
	var out []Observation
	for _, text := range s.Observations {
		kind := ClassifyObservation(text)
		ctxType := contextTypeForObservation(kind)
		tier := tierForObservation(kind)

		category := string(kind)
		counters[category]++
		anchor := AnchorID(category, text, counters[category])

		out = append(out, Observation{
			Text:        text,
			Type:        kind,
			ContextType: ctxType,
			Tier:        tier,
			AnchorID:    anchor,
		})
	}
	return out
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases text and collapses everything but letters/digits into
// single hyphens, matching the anchor-id alphabet enforced by the
// pre-flight gate (^[A-Za-z0-9][A-Za-z0-9/-]*$).
func slugify(text string) string {
	lower := strings.ToLower(text)
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	if slug == "" {
		slug = "note"
	}
	return slug
}

// AnchorID builds an anchor id of the form "{category}/{slug}" when ordinal
// is 1 or less, else "{category}/{slug}-{ordinal}". ClassifyAll passes a
// running per-category counter, so every observation after the first in a
// category gets a suffix, whether or not its slug repeats an earlier one.
func AnchorID(category, text string, ordinal int) string {
	slug := slugify(text)
	if ordinal <= 1 {
		return fmt.Sprintf("%s/%s", category, slug)
	}
	return fmt.Sprintf("%s/%s-%d", category, slug, ordinal)
}

// phaseSignals maps regexes against recent-context lines to a detected
// ProjectPhase, checked in priority order (later phases win ties since a
// session mentioning both "planning" and "implementation" work has likely
// moved on from planning).
var phaseSignals = []struct {
	re    *regexp.Regexp
	phase types.ProjectPhase
}{
	{regexp.MustCompile(`(?i)\bresearch(ing)?\b|\binvestigat(ing|e)\b`), types.PhaseResearch},
	{regexp.MustCompile(`(?i)\bplan(ning)?\b|\bdesign(ing)?\b`), types.PhasePlanning},
	{regexp.MustCompile(`(?i)\bimplement(ing)?\b|\bbuild(ing)?\b|\bwrit(e|ing) code\b`), types.PhaseImplementation},
	{regexp.MustCompile(`(?i)\breview(ing)?\b|\btest(ing)?\b`), types.PhaseReview},
	{regexp.MustCompile(`(?i)\bdone\b|\bcomplete(d)?\b|\bshipped\b`), types.PhaseComplete},
}

// DetectProjectPhase scans recent-context lines for the strongest phase
// signal, defaulting to PhaseImplementation (the common case) if nothing
// matches.
func DetectProjectPhase(recentContext []string) types.ProjectPhase {
	phase := types.PhaseImplementation
	for _, line := range recentContext {
		for _, s := range phaseSignals {
			if s.re.MatchString(line) {
				phase = s.phase
			}
		}
	}
	return phase
}

// ComputeDecayHalfLife returns the decay half-life in days implied by tier,
// deferring to internal/decay for tiers that never decay (half-life 0).
func ComputeDecayHalfLife(tier types.ImportanceTier) float64 {
	if tier.DecayExempt() {
		return 0
	}
	if tier == types.TierTemporary {
		return 7
	}
	return 90
}
