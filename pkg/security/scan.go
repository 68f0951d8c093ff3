package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Finding reasons reported by the scanner.
const (
	ReasonSensitiveKey = "sensitive_key"
	ReasonJWTShaped    = "jwt_shaped"
	ReasonBase64Shaped = "base64_shaped"
	ReasonVendorPrefix = "vendor_prefix"
)

// Finding describes a string leaf that looks like an embedded secret.
type Finding struct {
	Path   string // dotted path to the leaf, list indices as [i]
	Key    string // leaf key under which the value sits
	Reason string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s (%s)", f.Path, f.Reason)
}

var (
	// First JWT segment is base64url of `{"`, so tokens always open with eyJ.
	jwtValuePattern = regexp.MustCompile(`^eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]*$`)

	base64ValuePattern = regexp.MustCompile(`^[A-Za-z0-9+/]{40,}={0,2}$`)
)

// vendorTokenPrefixes are well-known credential prefixes. A match only counts
// when the value is long enough to be a real token.
var vendorTokenPrefixes = []string{
	"sk-",         // OpenAI / Anthropic style
	"ghp_",        // GitHub personal access token
	"gho_",        // GitHub OAuth token
	"ghu_",        // GitHub user-to-server token
	"ghs_",        // GitHub server-to-server token
	"ghr_",        // GitHub refresh token
	"github_pat_", // GitHub fine-grained PAT
	"glpat-",      // GitLab personal access token
	"xoxb-",       // Slack bot token
	"xoxp-",       // Slack user token
	"AKIA",        // AWS access key id
	"AIza",        // Google API key
	"ya29.",       // Google OAuth access token
	"hf_",         // Hugging Face token
}

const vendorTokenMinLen = 20

var sensitiveKeySubstrings = []string{
	"password",
	"passwd",
	"secret",
	"credential",
	"api_key",
	"apikey",
	"private_key",
	"privatekey",
	"access_key",
	"accesskey",
}

// IsSensitiveKey reports whether a leaf key names credential-bearing data.
// Keys are compared case-insensitively with dashes folded to underscores.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(k, sub) {
			return true
		}
	}
	// Suffix match so maxTokens/tokenCount style knobs stay clean.
	return k == "token" || strings.HasSuffix(k, "token")
}

// IsSafeReference reports whether a value is an indirection rather than a
// literal secret: ${VAR} expansions, profile:// refs, and vault:// refs.
func IsSafeReference(value string) bool {
	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return true
	}
	return strings.HasPrefix(v, ProfileRefPrefix) || strings.HasPrefix(v, VaultRefPrefix)
}

// SecretShaped reports whether a value looks like a credential regardless of
// the key it sits under.
func SecretShaped(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	if jwtValuePattern.MatchString(v) {
		return ReasonJWTShaped, true
	}
	for _, prefix := range vendorTokenPrefixes {
		if strings.HasPrefix(v, prefix) && len(v) >= vendorTokenMinLen {
			return ReasonVendorPrefix, true
		}
	}
	if base64ValuePattern.MatchString(v) {
		return ReasonBase64Shaped, true
	}
	return "", false
}

// ScanDocument walks every string leaf of a decoded YAML/JSON document and
// returns findings for values that look like embedded secrets. Findings are
// ordered by path so callers report deterministically.
func ScanDocument(doc map[string]any) []Finding {
	var findings []Finding
	scanValue("", "", doc, &findings)
	sort.Slice(findings, func(i, j int) bool { return findings[i].Path < findings[j].Path })
	return findings
}

func scanValue(path, key string, value any, findings *[]Finding) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			scanValue(joinPath(path, k), k, v[k], findings)
		}
	case []any:
		for i, item := range v {
			scanValue(fmt.Sprintf("%s[%d]", path, i), key, item, findings)
		}
	case string:
		if IsSafeReference(v) {
			return
		}
		if IsSensitiveKey(key) && strings.TrimSpace(v) != "" {
			*findings = append(*findings, Finding{Path: path, Key: key, Reason: ReasonSensitiveKey})
			return
		}
		if reason, ok := SecretShaped(v); ok {
			*findings = append(*findings, Finding{Path: path, Key: key, Reason: reason})
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
