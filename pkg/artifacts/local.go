package artifacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// DefaultArtifactsPath is the base directory for job artifacts
	DefaultArtifactsPath = "/var/lib/moonmind/artifacts"
)

// ErrInvalidPath marks artifact names and paths that fail traversal checks.
var ErrInvalidPath = errors.New("invalid artifact path")

// Store defines the interface for artifact storage backends
type Store interface {
	// Write stores artifact bytes and returns the job-scoped relative path
	Write(jobID, name string, data []byte) (string, error)

	// Resolve canonicalizes a stored relative path to an absolute one
	Resolve(relPath string) (string, error)

	// Open opens a stored artifact for reading
	Open(relPath string) (io.ReadCloser, error)

	// Remove deletes a job's artifact subtree
	Remove(jobID string) error

	// Root returns the storage root directory
	Root() string

	// Check verifies the root is present and writable
	Check() error
}

// LocalStore implements Store on the local filesystem
type LocalStore struct {
	root string // canonicalized absolute root
}

// NewLocalStore creates a local artifact store rooted at basePath
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		basePath = DefaultArtifactsPath
	}

	// Ensure base directory exists
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	// All traversal checks compare against the canonical root so a
	// symlinked root does not defeat them.
	root, err := filepath.EvalSymlinks(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize artifacts directory: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifacts directory: %w", err)
	}

	return &LocalStore{root: root}, nil
}

// Root returns the storage root directory
func (s *LocalStore) Root() string {
	return s.root
}

// Write stores artifact bytes under {root}/{jobID}/{name} and returns the
// POSIX-form relative path {jobID}/{name}. The name must be relative, free of
// traversal components, and the final destination must canonicalize to a
// location strictly inside the job directory.
func (s *LocalStore) Write(jobID, name string, data []byte) (string, error) {
	jobDir, err := s.jobDir(jobID)
	if err != nil {
		return "", err
	}

	cleanName, err := cleanArtifactName(name)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(jobDir, filepath.FromSlash(cleanName))
	if !within(jobDir, dest) {
		return "", fmt.Errorf("%w: %q escapes the job directory", ErrInvalidPath, name)
	}

	destDir := filepath.Dir(dest)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	// Re-check after creation: a pre-existing symlink in the subtree could
	// point the destination outside the job directory.
	canonDir, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize artifact directory: %w", err)
	}
	if canonDir != jobDir && !within(jobDir, canonDir) {
		return "", fmt.Errorf("%w: %q resolves outside the job directory", ErrInvalidPath, name)
	}

	if info, err := os.Lstat(dest); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: %q is a symlink", ErrInvalidPath, name)
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	return path.Join(jobID, cleanName), nil
}

// Resolve validates a stored relative path and returns the canonical absolute
// path for serving. The path must reference an existing file strictly inside
// the root.
func (s *LocalStore) Resolve(relPath string) (string, error) {
	slashPath := filepath.ToSlash(strings.TrimSpace(relPath))
	if slashPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(slashPath, '\\') {
		return "", fmt.Errorf("%w: %q contains a backslash", ErrInvalidPath, relPath)
	}
	if path.IsAbs(slashPath) || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPath, relPath)
	}
	for _, segment := range strings.Split(slashPath, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q contains traversal", ErrInvalidPath, relPath)
		}
	}

	abs := filepath.Join(s.root, filepath.FromSlash(slashPath))
	if !within(s.root, abs) {
		return "", fmt.Errorf("%w: %q escapes the artifact root", ErrInvalidPath, relPath)
	}

	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve artifact path: %w", err)
	}
	if !within(s.root, canon) {
		return "", fmt.Errorf("%w: %q resolves outside the artifact root", ErrInvalidPath, relPath)
	}

	return canon, nil
}

// Open opens a stored artifact for reading
func (s *LocalStore) Open(relPath string) (io.ReadCloser, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// Remove deletes a job's artifact subtree
func (s *LocalStore) Remove(jobID string) error {
	jobDir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}

	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return nil // Already removed
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove artifact directory: %w", err)
	}

	return nil
}

// Check verifies the root is present and writable
func (s *LocalStore) Check() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("artifact root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact root is not a directory: %s", s.root)
	}

	probe, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("artifact root not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to clean probe file: %w", err)
	}
	return nil
}

func (s *LocalStore) jobDir(jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("%w: job id cannot be empty", ErrInvalidPath)
	}
	if strings.ContainsAny(jobID, "/\\") || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("%w: invalid job id %q", ErrInvalidPath, jobID)
	}
	return filepath.Join(s.root, jobID), nil
}

func cleanArtifactName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: artifact name cannot be empty", ErrInvalidPath)
	}
	if strings.ContainsRune(trimmed, '\\') {
		return "", fmt.Errorf("%w: artifact name %q contains a backslash", ErrInvalidPath, name)
	}

	slashName := filepath.ToSlash(trimmed)
	if path.IsAbs(slashName) || filepath.IsAbs(trimmed) {
		return "", fmt.Errorf("%w: artifact name %q is absolute", ErrInvalidPath, name)
	}
	// Windows-style drive prefixes are absolute regardless of platform.
	if len(slashName) >= 2 && slashName[1] == ':' {
		return "", fmt.Errorf("%w: artifact name %q is absolute", ErrInvalidPath, name)
	}

	// Reject traversal before Clean collapses interior .. segments.
	for _, segment := range strings.Split(slashName, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: artifact name %q contains traversal", ErrInvalidPath, name)
		}
	}

	cleaned := path.Clean(slashName)
	if cleaned == "." {
		return "", fmt.Errorf("%w: artifact name %q is empty after cleaning", ErrInvalidPath, name)
	}

	return cleaned, nil
}

// within reports whether target sits strictly under base.
func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "."
}
