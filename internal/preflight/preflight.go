// Package preflight implements the validation gate (C4) run before any
// expensive embedding call or persisted write: content size, anchor syntax,
// token budget, and duplicate detection.
package preflight

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/memento-index/memento/internal/tokenbudget"
)

// Code is one of the PFxxx error-taxonomy codes from §4.4.
type Code string

const (
	CodeAnchorFormatInvalid Code = "PF001-ANCHOR_FORMAT_INVALID"
	CodeAnchorUnclosed      Code = "PF002-ANCHOR_UNCLOSED"
	CodeAnchorIDInvalid     Code = "PF003-ANCHOR_ID_INVALID"
	CodeDuplicateDetected   Code = "PF010-DUPLICATE_DETECTED"
	CodeDuplicateExact      Code = "PF011-DUPLICATE_EXACT"
	CodeDuplicateSimilar    Code = "PF012-DUPLICATE_SIMILAR"
	CodeTokenBudgetExceeded Code = "PF020-TOKEN_BUDGET_EXCEEDED"
	CodeTokenBudgetWarning  Code = "PF021-TOKEN_BUDGET_WARNING"
	CodeContentTooLarge     Code = "PF030-CONTENT_TOO_LARGE"
	CodeContentTooSmall     Code = "PF031-CONTENT_TOO_SMALL"
)

// Issue is one fatal error or warning raised by the gate.
type Issue struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Suggestion  string `json:"suggestion,omitempty"`
	ExistingID  int64  `json:"existing_id,omitempty"`
	ExistingPath string `json:"existing_path,omitempty"`
	Fatal       bool   `json:"fatal"`
}

// Result is the outcome of running the gate.
type Result struct {
	Pass      bool
	WouldPass bool // meaningful in dry-run mode
	Errors    []Issue
	Warnings  []Issue
}

// Config holds the gate's tunables.
type Config struct {
	MinLength              int
	MaxLength              int
	Strict                 bool
	Tokens                 tokenbudget.Config
	EmbeddingCallOverhead  int
	TokenWarningThreshold  float64
	SimilarDuplicateThresh float64
	DryRun                 bool
}

// NewConfig fills in the standard defaults.
func NewConfig(cfg Config) Config {
	if cfg.MinLength == 0 {
		cfg.MinLength = 10
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 100_000
	}
	if cfg.EmbeddingCallOverhead == 0 {
		cfg.EmbeddingCallOverhead = 150
	}
	if cfg.TokenWarningThreshold == 0 {
		cfg.TokenWarningThreshold = 0.8
	}
	if cfg.SimilarDuplicateThresh == 0 {
		cfg.SimilarDuplicateThresh = 0.95
	}
	cfg.Tokens = tokenbudget.New(cfg.Tokens)
	return cfg
}

var anchorIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/-]*$`)
var anchorOpenRe = regexp.MustCompile(`<!--\s*ANCHOR:([^\s>]*)\s*-->`)
var anchorCloseRe = regexp.MustCompile(`<!--\s*/ANCHOR:([^\s>]*)\s*-->`)

// DuplicateLookup resolves an exact content-hash match within a folder.
type DuplicateLookup func(ctx context.Context, contentHash, specFolder string) (existingID int64, existingPath string, found bool)

// SimilarLookup resolves the single nearest neighbor's similarity (0-100)
// for a proposed embedding, when one is available.
type SimilarLookup func(ctx context.Context, embedding []float32, specFolder string) (similarity float64, existingID int64, found bool)

// Input bundles everything the gate needs to validate one candidate memory.
type Input struct {
	Content     string
	SpecFolder  string
	ContentHash string
	Embedding   []float32
	Force       bool
}

// Run executes the ordered validation sequence described in §4.4. In
// dry-run mode no issue is ever fatal; Result.WouldPass reports what the
// real outcome would have been.
func Run(ctx context.Context, cfg Config, in Input, findExact DuplicateLookup, findSimilar SimilarLookup) Result {
	res := Result{Pass: true, WouldPass: true}

	record := func(issue Issue) {
		if issue.Fatal {
			res.Errors = append(res.Errors, issue)
			res.WouldPass = false
			if !cfg.DryRun {
				res.Pass = false
			}
		} else {
			res.Warnings = append(res.Warnings, issue)
		}
	}

	// 1. Content size.
	n := len(in.Content)
	if n < cfg.MinLength {
		record(Issue{Code: CodeContentTooSmall, Fatal: true,
			Message:    fmt.Sprintf("content length %d below minimum %d", n, cfg.MinLength),
			Suggestion: "add more content before indexing"})
	}
	if n > cfg.MaxLength {
		record(Issue{Code: CodeContentTooLarge, Fatal: true,
			Message:    fmt.Sprintf("content length %d exceeds maximum %d", n, cfg.MaxLength),
			Suggestion: "split the content into multiple anchors/files"})
	}

	// 2. Anchor validation.
	validateAnchors(in.Content, cfg.Strict, record)

	// 3. Token budget.
	tokens := cfg.Tokens.EstimateTokens(in.Content) + cfg.EmbeddingCallOverhead
	if tokens > cfg.Tokens.MaxTokens {
		record(Issue{Code: CodeTokenBudgetExceeded, Fatal: true,
			Message:    fmt.Sprintf("estimated %d tokens exceeds budget %d", tokens, cfg.Tokens.MaxTokens),
			Suggestion: "shorten the content or split it across multiple memories"})
	} else if float64(tokens) >= cfg.TokenWarningThreshold*float64(cfg.Tokens.MaxTokens) {
		record(Issue{Code: CodeTokenBudgetWarning, Fatal: false,
			Message: fmt.Sprintf("estimated %d tokens is within %.0f%% of budget %d", tokens, cfg.TokenWarningThreshold*100, cfg.Tokens.MaxTokens)})
	}

	// 4. Duplicate detection.
	if findExact != nil && in.ContentHash != "" {
		if id, path, found := findExact(ctx, in.ContentHash, in.SpecFolder); found {
			fatal := !in.Force
			record(Issue{Code: CodeDuplicateExact, Fatal: fatal,
				Message:      "identical content already indexed",
				Suggestion:   "delete the existing memory first, or pass force=true",
				ExistingID:   id,
				ExistingPath: path})
		}
	}
	if findSimilar != nil && len(in.Embedding) > 0 {
		if similarity, id, found := findSimilar(ctx, in.Embedding, in.SpecFolder); found && similarity >= cfg.SimilarDuplicateThresh*100 {
			record(Issue{Code: CodeDuplicateSimilar, Fatal: false,
				Message:    fmt.Sprintf("nearest neighbor similarity %.2f", similarity),
				Suggestion: "consider reinforcing the existing memory instead of creating a new one",
				ExistingID: id})
		}
	}

	return res
}

func validateAnchors(content string, strict bool, record func(Issue)) {
	opens := anchorOpenRe.FindAllStringSubmatchIndex(content, -1)
	closes := anchorCloseRe.FindAllStringSubmatch(content, -1)

	seenIDs := make(map[string]bool)
	closeSet := make(map[string]int)
	for _, c := range closes {
		closeSet[c[1]]++
	}

	for _, m := range opens {
		id := content[m[2]:m[3]]
		if !anchorIDRe.MatchString(id) {
			record(Issue{Code: CodeAnchorIDInvalid, Fatal: strict,
				Message:    fmt.Sprintf("anchor id %q does not match required pattern", id),
				Suggestion: "anchor ids must match ^[A-Za-z0-9][A-Za-z0-9/-]*$"})
			continue
		}
		if seenIDs[id] {
			record(Issue{Code: CodeAnchorFormatInvalid, Fatal: strict,
				Message:    fmt.Sprintf("duplicate anchor id %q", id),
				Suggestion: "anchor ids must be unique within one memory file"})
			continue
		}
		seenIDs[id] = true

		if closeSet[id] == 0 {
			record(Issue{Code: CodeAnchorUnclosed, Fatal: strict,
				Message:    fmt.Sprintf("anchor %q has no matching closing tag", id),
				Suggestion: fmt.Sprintf("add <!-- /ANCHOR:%s --> after the section", id)})
			continue
		}

		// Closer must occur strictly after the opener.
		openerEnd := m[1]
		closerIdx := strings.Index(content[openerEnd:], fmt.Sprintf("<!-- /ANCHOR:%s -->", id))
		if closerIdx < 0 {
			record(Issue{Code: CodeAnchorUnclosed, Fatal: strict,
				Message:    fmt.Sprintf("anchor %q closer does not occur after its opener", id),
				Suggestion: "move the closing tag after the opening tag"})
		}
	}
}
