package proposals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Fix Flaky Retry Loop!":     "fix-flaky-retry-loop",
		"  spaces   everywhere  ":   "spaces-everywhere",
		"already-slugged":           "already-slugged",
		"CamelCase AND CAPS":        "camelcase-and-caps",
		"v2.0 -> v3.0 (breaking)":   "v2-0-v3-0-breaking",
		"!!!":                       "",
		"unicode: café résumé":      "unicode-caf-r-sum",
		"trailing punctuation...":   "trailing-punctuation",
		"tabs\tand\nnewlines too":   "tabs-and-newlines-too",
		"numbers 123 stay in place": "numbers-123-stay-in-place",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in), "slugify(%q)", in)
	}
}

func TestDedupKeyLowercasesRepository(t *testing.T) {
	assert.Equal(t, "moonmind/demo:fix-retries", dedupKey("MoonMind/Demo", "Fix Retries"))
	assert.Equal(t, dedupKey("moonmind/demo", "fix retries"), dedupKey("MOONMIND/DEMO", "Fix   Retries"))
}

func TestDedupHashIsStableHex(t *testing.T) {
	key := dedupKey("moonmind/demo", "Fix Retries")
	first := dedupHash(key)
	assert.Equal(t, first, dedupHash(key))
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, dedupHash(dedupKey("moonmind/demo", "Fix Retries Again")))
}
