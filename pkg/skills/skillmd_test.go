package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
)

func writeSkillMD(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SkillManifestName), []byte(content), 0o644))
}

func TestReadFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "---\nname: demo\ndescription: A demo skill\nversion: \"1.2\"\n---\n\n# demo\n")

	fm, err := readFrontmatter(filepath.Join(dir, SkillManifestName))
	require.NoError(t, err)
	assert.Equal(t, "demo", fm.Name)
	assert.Equal(t, "A demo skill", fm.Description)
	assert.Equal(t, "1.2", fm.Version)
}

func TestReadFrontmatterCRLF(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "---\r\nname: demo\r\n---\r\nbody\r\n")

	fm, err := readFrontmatter(filepath.Join(dir, SkillManifestName))
	require.NoError(t, err)
	assert.Equal(t, "demo", fm.Name)
}

func TestReadFrontmatterRejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no frontmatter", content: "# demo\njust markdown\n"},
		{name: "unterminated", content: "---\nname: demo\n"},
		{name: "malformed yaml", content: "---\nname: [unclosed\n---\n"},
		{name: "missing name", content: "---\ndescription: no name here\n---\n"},
		{name: "blank name", content: "---\nname: \"  \"\n---\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSkillMD(t, dir, tt.content)

			_, err := readFrontmatter(filepath.Join(dir, SkillManifestName))
			require.Error(t, err)
			assert.Equal(t, errors.CodeMissingSkillMD, errors.CodeOf(err))
		})
	}
}

func TestReadFrontmatterMissingFile(t *testing.T) {
	_, err := readFrontmatter(filepath.Join(t.TempDir(), SkillManifestName))
	require.Error(t, err)
	assert.Equal(t, errors.CodeMissingSkillMD, errors.CodeOf(err))
}

func TestValidateSkillDir(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "---\nname: demo\n---\n")

	assert.NoError(t, validateSkillDir(dir, "demo"))

	err := validateSkillDir(dir, "other")
	require.Error(t, err)
	assert.Equal(t, errors.CodeSkillNameMismatch, errors.CodeOf(err))
}
