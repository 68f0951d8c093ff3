package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
)

// cachedSkill fakes a materialized entry backed by a plain directory.
func cachedSkill(t *testing.T, name string) MaterializedSkill {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	writeSkillMD(t, dir, "---\nname: "+name+"\n---\n")
	return MaterializedSkill{Name: name, ContentHash: "sha256:test", CachePath: dir}
}

func TestLinkWorkspace(t *testing.T) {
	runRoot := t.TempDir()
	demo := cachedSkill(t, "demo")
	extra := cachedSkill(t, "extra")

	require.NoError(t, LinkWorkspace(runRoot, []MaterializedSkill{demo, extra}))

	// skills_active carries one symlink per skill into the cache.
	active := filepath.Join(runRoot, ActiveDirName, "demo")
	info, err := os.Lstat(active)
	require.NoError(t, err)
	assert.True(t, info.Mode()&os.ModeSymlink != 0)

	// Content is reachable through every adapter path.
	for _, rel := range []string{
		filepath.Join(ActiveDirName, "demo"),
		filepath.Join(".agents", "skills", "demo"),
		filepath.Join(".gemini", "skills", "demo"),
	} {
		data, err := os.ReadFile(filepath.Join(runRoot, rel, SkillManifestName))
		require.NoError(t, err, "path %s", rel)
		assert.Contains(t, string(data), "name: demo")
	}

	// Agent-facing links are relative so a relocated run root stays valid.
	target, err := os.Readlink(filepath.Join(runRoot, ".agents", "skills"))
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(target))
}

func TestLinkWorkspaceResolvesIdentically(t *testing.T) {
	runRoot := t.TempDir()
	demo := cachedSkill(t, "demo")

	require.NoError(t, LinkWorkspace(runRoot, []MaterializedSkill{demo}))

	want, err := filepath.EvalSymlinks(filepath.Join(runRoot, ActiveDirName, "demo"))
	require.NoError(t, err)
	for _, rel := range []string{".agents/skills/demo", ".gemini/skills/demo"} {
		got, err := filepath.EvalSymlinks(filepath.Join(runRoot, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLinkWorkspaceIdempotent(t *testing.T) {
	runRoot := t.TempDir()
	demo := cachedSkill(t, "demo")

	require.NoError(t, LinkWorkspace(runRoot, []MaterializedSkill{demo}))

	// Re-linking after a cache move replaces the old symlinks.
	moved := cachedSkill(t, "demo")
	require.NoError(t, LinkWorkspace(runRoot, []MaterializedSkill{moved}))

	resolved, err := filepath.EvalSymlinks(filepath.Join(runRoot, ActiveDirName, "demo"))
	require.NoError(t, err)
	wantDir, err := filepath.EvalSymlinks(moved.CachePath)
	require.NoError(t, err)
	assert.Equal(t, wantDir, resolved)
}

func TestLinkWorkspaceNonSymlinkCollision(t *testing.T) {
	demo := cachedSkill(t, "demo")

	// A regular directory squatting on the agent link path.
	runRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(runRoot, ".agents", "skills"), 0o755))

	err := LinkWorkspace(runRoot, []MaterializedSkill{demo})
	require.Error(t, err)
	assert.Equal(t, errors.CodeWorkspaceLinkFailed, errors.CodeOf(err))

	// A regular file squatting on the per-skill link.
	runRoot = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(runRoot, ActiveDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runRoot, ActiveDirName, "demo"), []byte("x"), 0o644))

	err = LinkWorkspace(runRoot, []MaterializedSkill{demo})
	require.Error(t, err)
	assert.Equal(t, errors.CodeWorkspaceLinkFailed, errors.CodeOf(err))
}

func TestLinkWorkspaceRejectsBadNames(t *testing.T) {
	runRoot := t.TempDir()
	err := LinkWorkspace(runRoot, []MaterializedSkill{{Name: "../escape", CachePath: t.TempDir()}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidSkillName, errors.CodeOf(err))
}

func TestLinkWorkspaceDanglingTarget(t *testing.T) {
	runRoot := t.TempDir()
	err := LinkWorkspace(runRoot, []MaterializedSkill{{
		Name:      "demo",
		CachePath: filepath.Join(t.TempDir(), "gone"),
	}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeWorkspaceLinkFailed, errors.CodeOf(err))
}
