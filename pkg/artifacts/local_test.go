package artifacts

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewLocalStore(tmpDir)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}

	if store == nil {
		t.Fatal("NewLocalStore() returned nil store")
	}

	// Verify base directory exists
	if _, err := os.Stat(store.Root()); os.IsNotExist(err) {
		t.Error("Base directory was not created")
	}
}

func TestLocalStore_WriteAndOpen(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	relPath, err := store.Write("job-1", "logs/run.log", []byte("hello"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if relPath != "job-1/logs/run.log" {
		t.Errorf("Write() relPath = %q, want %q", relPath, "job-1/logs/run.log")
	}

	// Verify bytes round-trip through Open
	rc, err := store.Open(relPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("artifact content = %q, want %q", data, "hello")
	}
}

func TestLocalStore_WriteNormalizesName(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	relPath, err := store.Write("job-1", "./state/steps/step-0001.json", []byte("{}"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if relPath != "job-1/state/steps/step-0001.json" {
		t.Errorf("Write() relPath = %q", relPath)
	}
}

func TestLocalStore_WriteRejectsTraversal(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	tests := []struct {
		name     string
		artifact string
	}{
		{name: "dot dot prefix", artifact: "../escape.log"},
		{name: "dot dot inside", artifact: "logs/../../escape.log"},
		{name: "collapsible dot dot", artifact: "logs/../valid.log"},
		{name: "absolute", artifact: "/etc/passwd"},
		{name: "backslash", artifact: `..\escape.log`},
		{name: "drive prefix", artifact: `C:/escape.log`},
		{name: "empty", artifact: ""},
		{name: "dot", artifact: "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Write("job-1", tt.artifact, []byte("x"))
			if err == nil {
				t.Fatalf("Write(%q) succeeded, want error", tt.artifact)
			}
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Write(%q) error = %v, want ErrInvalidPath", tt.artifact, err)
			}
		})
	}

	// Nothing may exist outside the job directory
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if e.Name() != "job-1" {
			t.Errorf("unexpected entry in root: %s", e.Name())
		}
	}
}

func TestLocalStore_WriteRejectsBadJobID(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	for _, jobID := range []string{"", "..", "a/b", `a\b`} {
		if _, err := store.Write(jobID, "log.txt", []byte("x")); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Write(jobID=%q) error = %v, want ErrInvalidPath", jobID, err)
		}
	}
}

func TestLocalStore_WriteRejectsSymlinkEscape(t *testing.T) {
	tmpDir := t.TempDir()
	outside := t.TempDir()
	store, _ := NewLocalStore(tmpDir)

	// Plant a symlink inside the job directory pointing outside the root.
	jobDir := filepath.Join(store.Root(), "job-1")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(jobDir, "leak")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := store.Write("job-1", "leak/file.txt", []byte("x")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Write through symlinked dir error = %v, want ErrInvalidPath", err)
	}

	if _, err := store.Write("job-1", "leak", []byte("x")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Write onto symlink error = %v, want ErrInvalidPath", err)
	}

	// The outside directory must stay empty.
	entries, _ := os.ReadDir(outside)
	if len(entries) != 0 {
		t.Errorf("symlink escape wrote %d entries outside the root", len(entries))
	}
}

func TestLocalStore_WriteLastWriterWins(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	if _, err := store.Write("job-1", "out.txt", []byte("first")); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	relPath, err := store.Write("job-1", "out.txt", []byte("second"))
	if err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	rc, err := store.Open(relPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}
}

func TestLocalStore_Resolve(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	relPath, err := store.Write("job-1", "report.html", []byte("<html>"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	abs, err := store.Resolve(relPath)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if filepath.Dir(abs) != filepath.Join(store.Root(), "job-1") {
		t.Errorf("Resolve() = %q, not inside job directory", abs)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "traversal", path: "../outside.txt"},
		{name: "absolute", path: "/etc/passwd"},
		{name: "empty", path: ""},
		{name: "missing file", path: "job-1/missing.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Resolve(tt.path); err == nil {
				t.Errorf("Resolve(%q) succeeded, want error", tt.path)
			}
		})
	}
}

func TestLocalStore_Remove(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	if _, err := store.Write("job-1", "a.txt", []byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := store.Remove("job-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(store.Root(), "job-1")); !os.IsNotExist(err) {
		t.Error("job directory still exists after Remove")
	}

	// Removing a missing job is not an error
	if err := store.Remove("job-1"); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}

func TestLocalStore_Check(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	if err := store.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}

	// Probe files must not linger
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Check() left %d entries behind", len(entries))
	}
}
