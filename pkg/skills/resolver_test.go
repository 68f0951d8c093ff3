package skills

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/errors"
)

func testResolverConfig() *config.Config {
	cfg := config.Default()
	cfg.SkillsLocalMirrorRoot = ""
	cfg.SkillsLegacyMirrorRoot = ""
	return cfg
}

func TestValidateSkillName(t *testing.T) {
	tests := []struct {
		name    string
		skill   string
		wantErr bool
	}{
		{name: "simple", skill: "speckit"},
		{name: "mixed case digits", skill: "Skill2-beta_1"},
		{name: "single char", skill: "a"},
		{name: "max length", skill: "a" + strings.Repeat("b", 63)},
		{name: "empty", skill: "", wantErr: true},
		{name: "leading dash", skill: "-skill", wantErr: true},
		{name: "slash", skill: "a/b", wantErr: true},
		{name: "backslash", skill: `a\b`, wantErr: true},
		{name: "dot dot", skill: "..", wantErr: true},
		{name: "space", skill: "a b", wantErr: true},
		{name: "too long", skill: "a" + strings.Repeat("b", 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSkillName(tt.skill)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeInvalidSkillName, errors.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveSelectionLayering(t *testing.T) {
	r := NewResolver(testResolverConfig())

	// Override beats profile.
	sel, err := r.Resolve("run-1",
		[]SkillRequest{{Name: "speckit"}},
		[]SkillRequest{{Name: "speckit", Version: "9"}})
	require.NoError(t, err)
	assert.Equal(t, "override", sel.SelectionSource)
	require.Len(t, sel.Skills, 1)
	assert.Empty(t, sel.Skills[0].Version)

	// Profile wins when there is no override.
	sel, err = r.Resolve("run-2", nil, []SkillRequest{{Name: "speckit"}})
	require.NoError(t, err)
	assert.Equal(t, "profile", sel.SelectionSource)

	// Global default fills an empty request list.
	sel, err = r.Resolve("run-3", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", sel.SelectionSource)
	require.Len(t, sel.Skills, 1)
	assert.Equal(t, BuiltinSkill, sel.Skills[0].Name)
	assert.Equal(t, "builtin://"+BuiltinSkill, sel.Skills[0].SourceURI)
}

func TestResolveSourceChain(t *testing.T) {
	local := t.TempDir()
	legacy := t.TempDir()

	cfg := testResolverConfig()
	cfg.SkillsLocalMirrorRoot = local
	cfg.SkillsLegacyMirrorRoot = legacy

	dirs := map[string]bool{
		filepath.Join(local, "alpha"):        true,
		filepath.Join(local, "beta", "2.0"):  true,
		filepath.Join(legacy, "gamma"):       true,
		filepath.Join(legacy, "alpha"):       true, // shadowed by local
		filepath.Join(legacy, "beta", "1.0"): true,
	}
	r := NewResolver(cfg, WithSourceOverrides(map[string]string{
		"delta":    "https://example.com/delta.zip",
		"beta@3.0": "git+https://example.com/beta.git",
	}))
	r.statDir = func(path string) bool { return dirs[path] }

	// Declared source short-circuits everything.
	sel, err := r.Resolve("r", []SkillRequest{{Name: "alpha", Source: "file:///srv/alpha"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/alpha", sel.Skills[0].SourceURI)

	// Versioned override beats the plain one and the mirrors.
	sel, err = r.Resolve("r", []SkillRequest{{Name: "beta", Version: "3.0"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "git+https://example.com/beta.git", sel.Skills[0].SourceURI)

	// Plain override.
	sel, err = r.Resolve("r", []SkillRequest{{Name: "delta"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/delta.zip", sel.Skills[0].SourceURI)

	// Local mirror, versioned probe first.
	sel, err = r.Resolve("r", []SkillRequest{{Name: "beta", Version: "2.0"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(local, "beta", "2.0"), sel.Skills[0].SourceURI)

	// Local mirror shadows legacy for the same name.
	sel, err = r.Resolve("r", []SkillRequest{{Name: "alpha"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(local, "alpha"), sel.Skills[0].SourceURI)

	// Legacy mirror is the fallback.
	sel, err = r.Resolve("r", []SkillRequest{{Name: "gamma"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(legacy, "gamma"), sel.Skills[0].SourceURI)

	// Unknown name with no source anywhere.
	_, err = r.Resolve("r", []SkillRequest{{Name: "omega"}}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeSourceNotFound, errors.CodeOf(err))
}

func TestResolveBuiltinFallback(t *testing.T) {
	r := NewResolver(testResolverConfig())

	sel, err := r.Resolve("r", []SkillRequest{{Name: BuiltinSkill}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "builtin://"+BuiltinSkill, sel.Skills[0].SourceURI)
}

func TestResolveAllowlist(t *testing.T) {
	cfg := testResolverConfig()
	cfg.SkillPolicyMode = "allowlist"
	cfg.AllowedSkills = []string{"speckit", "alpha"}
	r := NewResolver(cfg, WithSourceOverrides(map[string]string{
		"alpha": "file:///srv/alpha",
		"rogue": "file:///srv/rogue",
	}))

	sel, err := r.Resolve("r", []SkillRequest{{Name: "alpha"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/alpha", sel.Skills[0].SourceURI)

	_, err = r.Resolve("r", []SkillRequest{{Name: "rogue"}}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeSkillNotAllowed, errors.CodeOf(err))
	assert.True(t, errors.IsValidation(err))
}

func TestResolveRejectsDuplicates(t *testing.T) {
	r := NewResolver(testResolverConfig())

	_, err := r.Resolve("r", []SkillRequest{
		{Name: BuiltinSkill},
		{Name: " " + BuiltinSkill + " "},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeDuplicateSkillName, errors.CodeOf(err))
}
