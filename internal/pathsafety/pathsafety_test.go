package pathsafety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeResolve_Contained(t *testing.T) {
	abs, ok := SafeResolve("/data/project/memory/notes.md", []string{"/data/project"})
	assert.True(t, ok)
	assert.Equal(t, "/data/project/memory/notes.md", abs)
}

func TestSafeResolve_OutsideAllowList(t *testing.T) {
	_, ok := SafeResolve("/etc/passwd", []string{"/data/project"})
	assert.False(t, ok)
}

func TestSafeResolve_ConfusionAttack(t *testing.T) {
	// "/data/project-evil" must not be considered inside "/data/project".
	_, ok := SafeResolve("/data/project-evil/file.md", []string{"/data/project"})
	assert.False(t, ok)
}

func TestSafeResolve_NullByte(t *testing.T) {
	_, ok := SafeResolve("/data/project/\x00evil", []string{"/data/project"})
	assert.False(t, ok)
}

func TestSafeParseJSON_RejectsProtoPollution(t *testing.T) {
	def := []any{}
	result := SafeParseJSON(`{"__proto__": {"polluted": true}}`, def)
	assert.Equal(t, def, result)
}

func TestSafeParseJSON_FiltersArrayElements(t *testing.T) {
	result := SafeParseJSON(`[{"id": 1}, {"constructor": {}}, {"id": 2}]`, []any{})
	arr, ok := result.([]any)
	assert.True(t, ok)
	assert.Len(t, arr, 2)
}

func TestSafeParseJSON_InvalidJSONReturnsDefault(t *testing.T) {
	def := map[string]any{"x": 1}
	result := SafeParseJSON(`not json`, def)
	assert.Equal(t, def, result)
}

func TestSafeParseJSON_ValidPassesThrough(t *testing.T) {
	result := SafeParseJSON(`[{"id": 1, "similarity": 0.9}]`, []any{})
	arr, ok := result.([]any)
	assert.True(t, ok)
	assert.Len(t, arr, 1)
}
