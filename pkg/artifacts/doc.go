/*
Package artifacts provides traversal-safe filesystem storage for job
artifacts.

Every job owns a subtree of a single configured root, named by the job UUID.
Workers upload files by relative name; the store validates each name, writes
the bytes, and hands back a POSIX-form relative path that is later resolved
through the same canonicalization for download.

# Architecture

	┌──────────────────── ARTIFACT STORE ──────────────────────┐
	│                                                            │
	│  root/                                                     │
	│   ├── {job-uuid}/                                          │
	│   │    ├── logs/run.log            uploaded artifacts      │
	│   │    ├── report.html                                     │
	│   │    └── state/                  reserved for workers    │
	│   │         ├── steps/step-0001.json                       │
	│   │         └── self_heal/attempt-0001-0001.json           │
	│   └── {job-uuid}/...                                       │
	│                                                            │
	│  Write path:                                               │
	│    name → reject absolute/../backslash → join under job    │
	│    dir → mkdir parents → canonicalize → reject symlink     │
	│    escapes → write bytes → return {job}/{name}             │
	│                                                            │
	│  Read path:                                                │
	│    stored relative path → same checks → canonical          │
	│    absolute path strictly under root → serve               │
	└────────────────────────────────────────────────────────┘

# Core Components

Store Interface:
  - Write, Resolve, Open, Remove, Root, Check
  - Service and API layers depend on the interface, not the local backend

LocalStore:
  - Canonicalizes the root once at construction
  - Rejects absolute names, ".." components, backslashes, drive prefixes
  - Re-canonicalizes after directory creation so planted symlinks cannot
    redirect a write outside the job subtree
  - Refuses to write onto an existing symlink

Validation Errors:
  - All rejections wrap ErrInvalidPath
  - Callers map ErrInvalidPath to a 422 validation failure and missing
    files to a 404

# Usage

Writing an upload:

	store, err := artifacts.NewLocalStore(cfg.ArtifactRoot)
	if err != nil {
		return err
	}

	relPath, err := store.Write(job.ID, "logs/run.log", data)
	if errors.Is(err, artifacts.ErrInvalidPath) {
		// 422: refuse the upload
	}
	// persist relPath as the artifact's storage_path

Serving a download:

	abs, err := store.Resolve(artifact.StoragePath)
	if err != nil {
		// fs.ErrNotExist → 404 artifact_file_missing
	}
	c.File(abs)

Health probe:

	if err := store.Check(); err != nil {
		metrics.UpdateComponent("artifacts", false, err.Error())
	}

# Integration Points

This package integrates with:

  - pkg/queue: Enforces size and ownership before Write
  - pkg/api: Streams downloads from Resolve results
  - pkg/mcp: Decodes base64 upload content and delegates to Write
  - pkg/health: Periodic Check feeds the readiness gate

# Design Notes

Uploads are single-attempt and last-writer-wins at the byte level; each
upload still records its own metadata row, so the journal keeps every
attempt. The store holds no locks: the traversal invariant is re-validated
on every call, which keeps concurrent writers safe without coordination.
*/
package artifacts
