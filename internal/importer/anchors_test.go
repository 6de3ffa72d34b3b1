package importer

import (
	"testing"
)

func TestExtractAnchoredSections_SplitsOnAnchorPairs(t *testing.T) {
	content := []byte(`# Notes

<!-- ANCHOR:decisions/storage -->
# Storage choice
We picked SQLite. #sqlite
<!-- /ANCHOR:decisions/storage -->

<!-- ANCHOR:decisions/cache -->
We picked an LRU cache.
<!-- /ANCHOR:decisions/cache -->
`)

	parsed, err := ParseMarkdownFile(content, "/abs/notes.md", "notes.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sections := ExtractAnchoredSections(parsed)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].AnchorID != "decisions/storage" {
		t.Errorf("expected first anchor id decisions/storage, got %q", sections[0].AnchorID)
	}
	if sections[0].Title != "Storage choice" {
		t.Errorf("expected section title from its own leading heading, got %q", sections[0].Title)
	}
	found := false
	for _, tag := range sections[0].TriggerPhrases {
		if tag == "sqlite" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected inline #sqlite tag to surface as a trigger phrase, got %v", sections[0].TriggerPhrases)
	}
}

func TestExtractAnchoredSections_SkipsUnclosedAnchor(t *testing.T) {
	content := []byte(`<!-- ANCHOR:open-only -->
This anchor is never closed.
`)
	parsed, err := ParseMarkdownFile(content, "/abs/x.md", "x.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sections := ExtractAnchoredSections(parsed)
	if len(sections) != 0 {
		t.Fatalf("expected 0 sections for an unclosed anchor, got %d", len(sections))
	}
}

func TestExtractAnchoredSections_NoAnchorsReturnsEmpty(t *testing.T) {
	parsed := &ParsedFile{Content: "Just plain text, no anchors here."}
	sections := ExtractAnchoredSections(parsed)
	if len(sections) != 0 {
		t.Fatalf("expected 0 sections, got %d", len(sections))
	}
}
