package proposals

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var slugRuns = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen. Deterministic: equal titles always
// produce equal slugs.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// dedupKey is "{repository_lc}:{slugify(title)}".
func dedupKey(repository, title string) string {
	return strings.ToLower(strings.TrimSpace(repository)) + ":" + slugify(title)
}

// dedupHash is the hex sha256 of the dedup key, used as the index column.
func dedupHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
