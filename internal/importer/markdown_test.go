package importer

import (
	"strings"
	"testing"
)

func TestParseMarkdownFile_ExtractsFrontmatterTitleAndTags(t *testing.T) {
	content := []byte(`---
title: Decision Log
tags: [architecture, sqlite]
date: 2026-01-15
---

We chose SQLite for the embedded store.
`)

	parsed, err := ParseMarkdownFile(content, "/abs/decisions/sqlite.md", "decisions/sqlite.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Title != "Decision Log" {
		t.Errorf("expected title %q, got %q", "Decision Log", parsed.Title)
	}
	if len(parsed.Tags) != 2 {
		t.Errorf("expected 2 tags, got %d (%v)", len(parsed.Tags), parsed.Tags)
	}
	if parsed.Domain != "decisions" {
		t.Errorf("expected domain decisions, got %q", parsed.Domain)
	}
	if !strings.Contains(parsed.Content, "We chose SQLite") {
		t.Errorf("expected body to survive into Content, got %q", parsed.Content)
	}
}

func TestParseMarkdownFile_FallsBackToH1WhenNoFrontmatterTitle(t *testing.T) {
	content := []byte("# Retry Strategy\n\nUse exponential backoff.\n")

	parsed, err := ParseMarkdownFile(content, "/abs/notes/retry.md", "notes/retry.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Title != "Retry Strategy" {
		t.Errorf("expected title from H1, got %q", parsed.Title)
	}
}

func TestParseMarkdownFile_MergesInlineHashtagsWithFrontmatterTags(t *testing.T) {
	content := []byte(`---
tags: [go]
---

Switched to #sqlite for storage and #go for everything else.
`)

	parsed, err := ParseMarkdownFile(content, "/abs/x.md", "x.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Tags) != 2 {
		t.Fatalf("expected 2 deduplicated tags, got %d (%v)", len(parsed.Tags), parsed.Tags)
	}
}

func TestParseMarkdownFile_NoFrontmatterUsesWholeFileAsBody(t *testing.T) {
	content := []byte("Just a plain note with no frontmatter.\n")

	parsed, err := ParseMarkdownFile(content, "/abs/plain.md", "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Frontmatter) != 0 {
		t.Errorf("expected empty frontmatter, got %v", parsed.Frontmatter)
	}
}

func TestExtractWikiLinks_DeduplicatesByTarget(t *testing.T) {
	links := ExtractWikiLinks("See [[Alpha]] and also [[alpha|Alpha Again]].")
	if len(links) != 1 {
		t.Fatalf("expected 1 deduplicated link, got %d", len(links))
	}
}

func TestStripWikiLinks_UsesAliasWhenPresent(t *testing.T) {
	got := StripWikiLinks("See [[Alpha Note|the alpha note]] for detail.")
	if strings.Contains(got, "[[") {
		t.Errorf("expected wiki-link syntax stripped, got %q", got)
	}
	if !strings.Contains(got, "the alpha note") {
		t.Errorf("expected alias text to remain, got %q", got)
	}
}
