package security

import (
	"regexp"
	"strings"
)

// DefaultMask replaces redacted content.
const DefaultMask = "[REDACTED]"

// Redactor scrubs secret-shaped substrings from free text and masks
// credential-bearing leaves in structured documents. The zero value is not
// usable; construct with NewRedactor.
type Redactor struct {
	mask     string
	patterns []*regexp.Regexp
}

// RedactorOption customizes a Redactor.
type RedactorOption func(*Redactor)

// WithMask overrides the replacement string.
func WithMask(mask string) RedactorOption {
	return func(r *Redactor) { r.mask = mask }
}

// WithPattern adds a pattern whose matches are replaced in free text.
func WithPattern(re *regexp.Regexp) RedactorOption {
	return func(r *Redactor) { r.patterns = append(r.patterns, re) }
}

var defaultTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`),
	regexp.MustCompile(`\b(?:sk|ghp|gho|ghu|ghs|ghr|hf)[-_][A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{16,}`),
	regexp.MustCompile(`\bglpat-[A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`\bxox[bp]-[A-Za-z0-9-]{16,}`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\bAIza[A-Za-z0-9_-]{30,}`),
	regexp.MustCompile(`\bya29\.[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`\b[A-Za-z0-9+/]{64,}={0,2}`),
}

// NewRedactor builds a redactor with the default token patterns plus any
// caller-supplied ones.
func NewRedactor(opts ...RedactorOption) *Redactor {
	r := &Redactor{
		mask:     DefaultMask,
		patterns: append([]*regexp.Regexp{}, defaultTextPatterns...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// String replaces every secret-shaped substring in s with the mask.
func (r *Redactor) String(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, r.mask)
	}
	return s
}

// StringSlice redacts each element, returning a new slice.
func (r *Redactor) StringSlice(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = r.String(v)
	}
	return out
}

// Document deep-copies a decoded JSON/YAML document, masking whole values
// under sensitive keys and scrubbing secret-shaped substrings from every
// other string leaf. Safe references are preserved as-is.
func (r *Redactor) Document(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out, _ := r.redactValue("", doc).(map[string]any)
	return out
}

func (r *Redactor) redactValue(key string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = r.redactValue(k, child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = r.redactValue(key, child)
		}
		return out
	case string:
		if IsSafeReference(v) {
			return v
		}
		if IsSensitiveKey(key) && strings.TrimSpace(v) != "" {
			return r.mask
		}
		return r.String(v)
	default:
		return v
	}
}
