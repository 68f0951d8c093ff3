package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moonmind/moonmind/pkg/errors"
)

// SkillManifestName is the marker file every skill directory must carry.
const SkillManifestName = "SKILL.md"

type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// readFrontmatter parses the leading "---" YAML block of a SKILL.md file.
func readFrontmatter(path string) (*skillFrontmatter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMaterialization(errors.CodeMissingSkillMD,
			fmt.Sprintf("cannot read %s: %v", SkillManifestName, err))
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return nil, errors.NewMaterialization(errors.CodeMissingSkillMD,
			SkillManifestName+" is missing its frontmatter block")
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, errors.NewMaterialization(errors.CodeMissingSkillMD,
			SkillManifestName+" frontmatter is not terminated")
	}
	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &fm); err != nil {
		return nil, errors.NewMaterialization(errors.CodeMissingSkillMD,
			fmt.Sprintf("%s frontmatter is malformed: %v", SkillManifestName, err))
	}
	if strings.TrimSpace(fm.Name) == "" {
		return nil, errors.NewMaterialization(errors.CodeMissingSkillMD,
			SkillManifestName+" frontmatter has no name")
	}
	fm.Name = strings.TrimSpace(fm.Name)
	return &fm, nil
}

// validateSkillDir checks that dir carries a SKILL.md whose frontmatter name
// matches both the directory basename and the resolved entry.
func validateSkillDir(dir, expected string) error {
	fm, err := readFrontmatter(filepath.Join(dir, SkillManifestName))
	if err != nil {
		return err
	}
	if fm.Name != expected {
		return errors.NewMaterialization(errors.CodeSkillNameMismatch,
			fmt.Sprintf("%s declares name %q; expected %q", SkillManifestName, fm.Name, expected))
	}
	return nil
}
