package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Reference scheme prefixes recognized across job payloads and manifests.
const (
	VaultRefPrefix   = "vault://"
	ProfileRefPrefix = "profile://"
)

// VaultRef is a parsed vault://<mount>/<path>#<field> secret reference.
type VaultRef struct {
	Mount string
	Path  string
	Field string
}

// ProfileRef is a parsed profile://<provider>#<field> secret reference.
type ProfileRef struct {
	Provider string
	Field    string
}

var (
	vaultRefPattern   = regexp.MustCompile(`^vault://([A-Za-z0-9_-]+)/([A-Za-z0-9._/-]+)#([A-Za-z0-9._-]+)$`)
	profileRefPattern = regexp.MustCompile(`^profile://([A-Za-z0-9._-]+)#([A-Za-z0-9._-]+)$`)

	envKeyCleaner = regexp.MustCompile(`[^A-Z0-9]+`)
)

// ParseVaultRef validates and parses a vault secret reference. Raw secret
// material never passes this check: only the strict URI form is accepted.
func ParseVaultRef(raw string) (*VaultRef, error) {
	m := vaultRefPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, fmt.Errorf("invalid vault reference %q: expected vault://<mount>/<path>#<field>", raw)
	}
	path := m[2]
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			return nil, fmt.Errorf("invalid vault reference %q: empty path segment", raw)
		}
		if segment == "." || segment == ".." {
			return nil, fmt.Errorf("invalid vault reference %q: relative path segment", raw)
		}
	}
	return &VaultRef{Mount: m[1], Path: path, Field: m[3]}, nil
}

func (r *VaultRef) String() string {
	return fmt.Sprintf("vault://%s/%s#%s", r.Mount, r.Path, r.Field)
}

// ParseProfileRef validates and parses a profile secret reference.
func ParseProfileRef(raw string) (*ProfileRef, error) {
	m := profileRefPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, fmt.Errorf("invalid profile reference %q: expected profile://<provider>#<field>", raw)
	}
	return &ProfileRef{Provider: m[1], Field: m[2]}, nil
}

func (r *ProfileRef) String() string {
	return fmt.Sprintf("profile://%s#%s", r.Provider, r.Field)
}

// EnvKey derives the environment variable name a worker injects the secret
// under: PROVIDER_FIELD, uppercased, with runs of non-alphanumerics collapsed
// to a single underscore.
func (r *ProfileRef) EnvKey() string {
	key := strings.ToUpper(r.Provider + "_" + r.Field)
	key = envKeyCleaner.ReplaceAllString(key, "_")
	return strings.Trim(key, "_")
}
