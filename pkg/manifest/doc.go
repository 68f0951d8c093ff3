/*
Package manifest validates manifest job submissions and derives the metadata
the queue stores alongside them.

A manifest job carries a YAML document describing a knowledge-ingestion
pipeline: where documents come from, how they are embedded, and which vector
store receives them. The queue never executes that pipeline. It verifies the
document is well formed, refuses inline secret material, and computes the
worker capabilities the job requires so claim eligibility can route it to a
worker that can actually run it.

# Architecture

	┌────────────────── MANIFEST NORMALIZATION ─────────────────┐
	│                                                             │
	│   payload.manifest {name, action, source, options}          │
	│                        │                                    │
	│        ┌───────────────┼───────────────┐                    │
	│        ▼               ▼               ▼                    │
	│     inline         registry          path                   │
	│    (content)      (resolver)      (opt-in, file)            │
	│        └───────────────┼───────────────┘                    │
	│                        ▼                                    │
	│          sha256 hash ── YAML parse ── version v0            │
	│          metadata.name must match submitted name            │
	│                        │                                    │
	│                        ▼                                    │
	│          secret scan (refuse) + secret ref collection       │
	│                        │                                    │
	│                        ▼                                    │
	│   requiredCapabilities: baseline, embeddings+provider,      │
	│                         vectorStore.type, dataSources[*]    │
	│   effectiveRunConfig:   document run block + options         │
	└─────────────────────────────────────────────────────────┘

# Core Components

Normalizer:
  - Normalize(ctx, payload) loads the document (inline content, registry
    resolver, or gated filesystem path), validates it, and returns the
    normalized payload to persist; the input is never mutated
  - Payload-shape violations carry invalid_manifest_job; document
    violations carry invalid_manifest

Secret Handling:
  - ScanDocument findings refuse the whole submission; credentials belong
    in profile:// or vault:// references
  - Every reference is parsed and collected into manifestSecretRefs;
    profile entries carry the PROVIDER_FIELD environment key workers
    inject the resolved secret under

Capability Derivation:
  - Fixed mapping tables translate embeddings providers, vector store
    types, and data source reader types into worker capabilities
  - Unknown values are refused rather than shipped to a worker that would
    dead-letter the job
  - The baseline (default ["manifest"]) keeps manifest jobs out of reach
    of workers that advertise nothing

Sanitize:
  - Strips inline document content from payloads before they leave the
    API; the hash, version, and derived metadata remain

# Usage

	normalizer := manifest.NewNormalizer(cfg.ManifestCapabilities, registry)

	got, err := normalizer.Normalize(ctx, payload)
	if err != nil {
		return err
	}
	job.Payload = got.Payload

	// API responses never include document bodies.
	resp.Payload = manifest.Sanitize(job.Payload)

# Integration Points

  - pkg/queue: normalizes manifest submissions before persistence and
    sanitizes payloads on read paths
  - pkg/registry: implements Resolver over manifest_registry_records
  - pkg/security: secret scanning and reference parsing
  - pkg/contract: shared capability list normalization
*/
package manifest
