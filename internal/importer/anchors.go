package importer

import (
	"fmt"
	"regexp"
	"strings"
)

// anchorOpenRe/anchorCloseRe mirror internal/preflight's anchor syntax
// (`<!-- ANCHOR:id --> ... <!-- /ANCHOR:id -->`). Duplicated locally rather
// than imported so that importer, a pure text-extraction package, does not
// need to depend on the validation gate — the same independence the
// storage backends keep between their own cosineSimilarity copies.
var (
	anchorOpenRe  = regexp.MustCompile(`<!--\s*ANCHOR:([^\s>]*)\s*-->`)
	anchorCloseRe = regexp.MustCompile(`<!--\s*/ANCHOR:([^\s>]*)\s*-->`)
)

// AnchoredSection is one `<!-- ANCHOR:id -->`-delimited slice of a parsed
// file, ready to become a candidate memory: its content is validated by
// internal/preflight, then embedded and inserted via internal/store/sqlite.
type AnchoredSection struct {
	AnchorID       string
	Title          string
	Content        string
	TriggerPhrases []string
}

// ExtractAnchoredSections splits a ParsedFile's content into one
// AnchoredSection per anchor pair. Unclosed or malformed anchors are
// skipped here; internal/preflight is the place that reports them as
// errors, since this function's job is extraction, not validation.
func ExtractAnchoredSections(parsed *ParsedFile) []AnchoredSection {
	content := parsed.Content
	opens := anchorOpenRe.FindAllStringSubmatchIndex(content, -1)

	var sections []AnchoredSection
	for _, m := range opens {
		id := content[m[2]:m[3]]
		openerEnd := m[1]

		closer := fmt.Sprintf("<!-- /ANCHOR:%s -->", id)
		closerIdx := strings.Index(content[openerEnd:], closer)
		if closerIdx < 0 {
			continue
		}

		inner := strings.TrimSpace(content[openerEnd : openerEnd+closerIdx])
		sections = append(sections, AnchoredSection{
			AnchorID:       id,
			Title:          sectionTitle(inner, parsed.Title),
			Content:        inner,
			TriggerPhrases: mergeTags(parsed.Tags, extractInlineTags(inner)),
		})
	}
	return sections
}

// sectionTitle uses the section's own leading heading if it has one,
// falling back to the parent file's title.
func sectionTitle(inner, fallback string) string {
	if h1 := extractH1(inner); h1 != "" {
		return h1
	}
	return fallback
}
