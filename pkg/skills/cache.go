package skills

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// cache materializes verified skill directories under
// {root}/{content_hash}/{skill_name}, immutable once placed.
type cache struct {
	root string
}

func newCache(root string) (*cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create skill cache root: %w", err)
	}
	return &cache{root: root}, nil
}

// lookup returns the cached path for (hash, name) when it already exists.
func (c *cache) lookup(hash, name string) (string, bool) {
	path := filepath.Join(c.root, cacheKey(hash), name)
	if isDir(path) {
		return path, true
	}
	return "", false
}

// place copies skillDir into the cache via a temp staging dir and an atomic
// rename. When two runs race the same hash, the loser keeps the winner's
// tree and removes its own staging.
func (c *cache) place(skillDir, name, hash string) (string, error) {
	final := filepath.Join(c.root, cacheKey(hash), name)
	if isDir(final) {
		return final, nil
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp(c.root, ".staging-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	staged := filepath.Join(staging, name)
	if err := copyTree(skillDir, staged); err != nil {
		return "", err
	}

	if err := os.Rename(staged, final); err != nil {
		if isDir(final) {
			// Lost the race; the winner's tree is equivalent by hash.
			return final, nil
		}
		return "", err
	}
	if err := markReadOnly(final); err != nil {
		return "", err
	}
	return final, nil
}

// cacheKey flattens a "sha256:<hex>" hash into a directory name.
func cacheKey(hash string) string {
	return strings.ReplaceAll(hash, ":", "-")
}

// copyTree duplicates a directory, preserving symlink targets but not modes;
// staged trees are normalized to 0755/0644 before the read-only pass.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return fmt.Errorf("unsupported file type at %s", rel)
		}
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// markReadOnly locks a placed tree: directories 0555, files 0444. Symlinks
// are left alone; their targets are protected on their own.
func markReadOnly(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.Chmod(path, 0o555)
		case d.Type()&fs.ModeSymlink != 0:
			return nil
		default:
			return os.Chmod(path, 0o444)
		}
	})
}
