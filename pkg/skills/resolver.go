// Package skills resolves, fetches, verifies, and caches the immutable code
// bundles a task run mounts into its workspace. Resolution freezes a per-run
// selection; materialization turns each entry into a read-only
// content-hash-keyed cache directory plus run-scoped symlink adapters.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/errors"
)

// BuiltinSkill is the only name the resolver can synthesize without a source.
const BuiltinSkill = "speckit"

// skillNamePattern also excludes path separators: the character class has no
// room for them.
var skillNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// SkillRequest is one requested skill entry before source resolution.
type SkillRequest struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Source      string `json:"source,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// ResolvedSkill is a frozen entry: the source URI is final and the optional
// integrity fields travel with it into materialization.
type ResolvedSkill struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	SourceURI   string `json:"sourceUri"`
	ContentHash string `json:"contentHash,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// Selection is the per-run resolution result. SelectionSource records which
// layer won: "override", "profile", or "default".
type Selection struct {
	RunID           string          `json:"runId"`
	SelectionSource string          `json:"selectionSource"`
	Skills          []ResolvedSkill `json:"skills"`
}

// Resolver turns requested skill names into concrete source URIs using the
// configured mirror roots, the override table, and the builtin fallback.
type Resolver struct {
	localMirror  string
	legacyMirror string
	policyMode   string
	allowed      map[string]bool
	defaultSkill string
	overrides    map[string]string

	// statDir is swapped in tests to fake mirror layouts.
	statDir func(path string) bool
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithSourceOverrides installs a source override table keyed by "name" or
// "name@version". Versioned keys win over plain ones.
func WithSourceOverrides(overrides map[string]string) ResolverOption {
	return func(r *Resolver) { r.overrides = overrides }
}

// NewResolver builds a resolver from config.
func NewResolver(cfg *config.Config, opts ...ResolverOption) *Resolver {
	allowed := make(map[string]bool, len(cfg.AllowedSkills))
	for _, name := range cfg.AllowedSkills {
		allowed[strings.TrimSpace(name)] = true
	}
	r := &Resolver{
		localMirror:  cfg.SkillsLocalMirrorRoot,
		legacyMirror: cfg.SkillsLegacyMirrorRoot,
		policyMode:   cfg.SkillPolicyMode,
		allowed:      allowed,
		defaultSkill: cfg.DefaultSkill,
		statDir:      isDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve freezes the selection for one run. The effective request list is
// the first non-empty of (job override, queue profile, global default skill).
func (r *Resolver) Resolve(runID string, override, profile []SkillRequest) (*Selection, error) {
	requests := override
	source := "override"
	if len(requests) == 0 {
		requests = profile
		source = "profile"
	}
	if len(requests) == 0 {
		source = "default"
		if r.defaultSkill != "" {
			requests = []SkillRequest{{Name: r.defaultSkill}}
		}
	}

	seen := make(map[string]bool, len(requests))
	resolved := make([]ResolvedSkill, 0, len(requests))
	for _, req := range requests {
		name := strings.TrimSpace(req.Name)
		if err := ValidateSkillName(name); err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, errors.NewMaterialization(errors.CodeDuplicateSkillName,
				fmt.Sprintf("skill %q is requested more than once", name))
		}
		seen[name] = true

		if r.policyMode == "allowlist" && !r.allowed[name] {
			return nil, errors.NewValidation(errors.CodeSkillNotAllowed,
				fmt.Sprintf("skill %q is not in the allowlist", name))
		}

		uri, err := r.resolveSource(name, strings.TrimSpace(req.Version), strings.TrimSpace(req.Source))
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, ResolvedSkill{
			Name:        name,
			Version:     strings.TrimSpace(req.Version),
			SourceURI:   uri,
			ContentHash: strings.TrimSpace(req.ContentHash),
			Signature:   strings.TrimSpace(req.Signature),
		})
	}

	return &Selection{RunID: runID, SelectionSource: source, Skills: resolved}, nil
}

// resolveSource applies the chain declared → override → local mirror →
// legacy mirror → builtin.
func (r *Resolver) resolveSource(name, version, declared string) (string, error) {
	if declared != "" {
		return declared, nil
	}
	if version != "" {
		if uri, ok := r.overrides[name+"@"+version]; ok {
			return uri, nil
		}
	}
	if uri, ok := r.overrides[name]; ok {
		return uri, nil
	}
	if path := r.mirrorPath(r.localMirror, name, version); path != "" {
		return path, nil
	}
	if path := r.mirrorPath(r.legacyMirror, name, version); path != "" {
		return path, nil
	}
	if name == BuiltinSkill {
		return "builtin://" + BuiltinSkill, nil
	}
	return "", errors.NewMaterialization(errors.CodeSourceNotFound,
		fmt.Sprintf("no source found for skill %q", name))
}

// mirrorPath probes {root}/{name}/{version} then {root}/{name}.
func (r *Resolver) mirrorPath(root, name, version string) string {
	if root == "" {
		return ""
	}
	if version != "" {
		if path := filepath.Join(root, name, version); r.statDir(path) {
			return path
		}
	}
	if path := filepath.Join(root, name); r.statDir(path) {
		return path
	}
	return ""
}

// ValidateSkillName enforces the name grammar shared by resolution and
// workspace linking.
func ValidateSkillName(name string) error {
	if name == "" {
		return errors.NewValidation(errors.CodeInvalidSkillName, "skill name is required")
	}
	if strings.ContainsAny(name, `/\`) || !skillNamePattern.MatchString(name) {
		return errors.NewValidation(errors.CodeInvalidSkillName,
			fmt.Sprintf("skill name %q is invalid", name))
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
