package skills

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moonmind/moonmind/pkg/errors"
)

// ActiveDirName is the per-run directory holding one symlink per
// materialized skill.
const ActiveDirName = "skills_active"

// agentLinkNames are the relative paths agent runtimes probe for skills.
// Both must resolve to the same tree as {run_root}/skills_active.
var agentLinkNames = []string{
	filepath.Join(".agents", "skills"),
	filepath.Join(".gemini", "skills"),
}

// LinkWorkspace builds the run-scoped adapter layout: a skills_active
// directory with one symlink per skill into the read-only cache, plus
// relative agent-facing links pointing back at skills_active. Existing
// symlinks are replaced; anything else in the way fails the run.
func LinkWorkspace(runRoot string, skills []MaterializedSkill) error {
	activeDir := filepath.Join(runRoot, ActiveDirName)
	if err := os.MkdirAll(activeDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", ActiveDirName, err)
	}

	for _, sk := range skills {
		if err := ValidateSkillName(sk.Name); err != nil {
			return err
		}
		if err := replaceSymlink(sk.CachePath, filepath.Join(activeDir, sk.Name)); err != nil {
			return err
		}
	}

	for _, rel := range agentLinkNames {
		link := filepath.Join(runRoot, rel)
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return fmt.Errorf("cannot create parent of %s: %w", rel, err)
		}
		// Relative targets keep the layout intact when the run root is
		// bind-mounted or relocated.
		target, err := filepath.Rel(filepath.Dir(link), activeDir)
		if err != nil {
			return err
		}
		if err := replaceSymlink(target, link); err != nil {
			return err
		}
	}

	return verifyWorkspace(runRoot, skills)
}

// replaceSymlink swaps link to point at target. A pre-existing entry is only
// removed when it is itself a symlink.
func replaceSymlink(target, link string) error {
	info, err := os.Lstat(link)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		if err := os.Remove(link); err != nil {
			return errors.NewMaterialization(errors.CodeWorkspaceLinkFailed,
				fmt.Sprintf("cannot replace link %s: %v", link, err))
		}
	case err == nil:
		return errors.NewMaterialization(errors.CodeWorkspaceLinkFailed,
			fmt.Sprintf("%s exists and is not a symlink", link))
	case !os.IsNotExist(err):
		return err
	}
	if err := os.Symlink(target, link); err != nil {
		return errors.NewMaterialization(errors.CodeWorkspaceLinkFailed,
			fmt.Sprintf("cannot link %s: %v", link, err))
	}
	return nil
}

// verifyWorkspace checks the layout invariant: for every skill, the
// skills_active entry and both agent-facing paths resolve to the same
// directory.
func verifyWorkspace(runRoot string, skills []MaterializedSkill) error {
	for _, sk := range skills {
		want, err := filepath.EvalSymlinks(filepath.Join(runRoot, ActiveDirName, sk.Name))
		if err != nil {
			return errors.NewMaterialization(errors.CodeWorkspaceLinkFailed,
				fmt.Sprintf("skill %q does not resolve under %s: %v", sk.Name, ActiveDirName, err))
		}
		for _, rel := range agentLinkNames {
			got, err := filepath.EvalSymlinks(filepath.Join(runRoot, rel, sk.Name))
			if err != nil {
				return errors.NewMaterialization(errors.CodeWorkspaceLinkFailed,
					fmt.Sprintf("skill %q does not resolve under %s: %v", sk.Name, rel, err))
			}
			if got != want {
				return errors.NewMaterialization(errors.CodeWorkspaceLinkFailed,
					fmt.Sprintf("skill %q resolves to %s under %s but %s under %s",
						sk.Name, want, ActiveDirName, got, rel))
			}
		}
	}
	return nil
}
