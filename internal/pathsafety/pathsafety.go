// Package pathsafety implements the two pure, fail-safe operations the rest
// of the engine relies on for defending against path traversal and
// prototype-pollution style JSON payloads (C1). Both operations never
// panic or return an error to the caller: on any problem they log a
// warning (log.Printf) and return the provided default / null.
package pathsafety

import (
	"encoding/json"
	"log"
	"path/filepath"
	"strings"
)

// SafeResolve normalizes path and returns its absolute form only if it
// resolves inside at least one of allowedBases. Containment is tested with
// a relative-path computation (filepath.Rel + a ".." prefix check), not a
// prefix string match, so "/allowed-evil" cannot be confused with
// "/allowed" as a subdirectory. Returns ("", false) on any rejection.
func SafeResolve(path string, allowedBases []string) (string, bool) {
	if strings.ContainsRune(path, 0) {
		log.Printf("pathsafety: rejected path containing null byte")
		return "", false
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		log.Printf("pathsafety: failed to resolve %q: %v", path, err)
		return "", false
	}
	abs = filepath.Clean(abs)

	for _, base := range allowedBases {
		baseAbs, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		baseAbs = filepath.Clean(baseAbs)

		rel, err := filepath.Rel(baseAbs, abs)
		if err != nil {
			continue
		}
		if rel == "." {
			return abs, true
		}
		if !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".." {
			return abs, true
		}
	}

	log.Printf("pathsafety: %q resolves outside every allowed base", path)
	return "", false
}

// dangerousKeys are the JSON object keys that, if present, could pollute a
// prototype chain in a dynamically-typed consumer reading the persisted
// related_memories column. Go maps have no prototype, but the store must
// still guard against this shape so a JSON blob produced by a different
// client (or replayed from an untrusted checkpoint) cannot smuggle these
// keys through.
var dangerousKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// SafeParseJSON parses text into a generic value (map/slice/scalar),
// rejecting any object literal whose own keys include a dangerous key, and
// filtering array elements the same way. On any parse error, or if the
// parsed value is rejected, def is returned unchanged and a warning is
// logged. Never returns an error.
func SafeParseJSON(text string, def any) any {
	if strings.TrimSpace(text) == "" {
		return def
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		log.Printf("pathsafety: JSON parse error, using default: %v", err)
		return def
	}

	clean, ok := sanitize(v)
	if !ok {
		log.Printf("pathsafety: rejected JSON containing a dangerous key")
		return def
	}
	return clean
}

// sanitize walks v, returning (value, false) the moment a dangerous key is
// found anywhere in an object literal.
func sanitize(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if dangerousKeys[k] {
				return nil, false
			}
			cleanVal, ok := sanitize(val)
			if !ok {
				return nil, false
			}
			out[k] = cleanVal
		}
		return out, true
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			cleanItem, ok := sanitize(item)
			if !ok {
				// Per §4.1, arrays are filtered element-wise rather than
				// rejected wholesale.
				continue
			}
			out = append(out, cleanItem)
		}
		return out, true
	default:
		return v, true
	}
}
