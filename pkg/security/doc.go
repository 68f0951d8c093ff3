/*
Package security provides secret hygiene primitives for MoonMind: leak
scanning over structured documents, free-text redaction, secret reference
parsing, and worker bearer token generation.

MoonMind never stores raw secret material. Payloads may only carry
indirections (vault:// and profile:// references, or ${VAR} expansions);
anything that looks like a literal credential is refused at the door, and
reviewer-visible text is scrubbed before persistence.

# Architecture

	┌──────────────────── SECRET HYGIENE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Leak Scanner                   │          │
	│  │  - Walks every string leaf of a document    │          │
	│  │  - Sensitive-key heuristic (password, ...)  │          │
	│  │  - Shape detection: JWT, base64, vendor     │          │
	│  │  - Safe references exempt                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ findings refuse the request          │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Redactor                       │          │
	│  │  - Masks sensitive-key leaves wholesale     │          │
	│  │  - Scrubs token-shaped substrings in text   │          │
	│  │  - Deep-copies, never mutates input         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Secret References                 │          │
	│  │  - vault://<mount>/<path>#<field>           │          │
	│  │  - profile://<provider>#<field>             │          │
	│  │  - Derived PROVIDER_FIELD env keys          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Worker Tokens                     │          │
	│  │  - mmwt_<48 hex> bearer tokens              │          │
	│  │  - Stored as sha256:<hex> only              │          │
	│  │  - Constant-time verification               │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Leak Scanner:
  - ScanDocument walks nested maps and slices
  - Sensitive keys: password, secret, credential, api_key, private_key,
    access_key, *token
  - Shapes: JWT (eyJ header.payload.signature), long base64 runs, vendor
    prefixes (sk-, ghp_, AKIA, AIza, glpat-, xoxb-, hf_, ...)
  - Findings sorted by path for deterministic error reporting

Redactor:
  - Configurable mask (default "[REDACTED]") and extra patterns
  - String for free text, StringSlice for tag lists, Document for envelopes
  - Safe references pass through untouched

Secret References:
  - Strict character classes; anything else is treated as a raw credential
  - VaultRef for repo/publish auth, ProfileRef for provider API keys
  - ProfileRef.EnvKey yields the uppercase env var workers inject

Worker Tokens:
  - MintWorkerToken returns the raw token once plus its storage hash
  - HashWorkerToken normalizes to "sha256:<hex>" for lookup
  - LooksLikeWorkerToken gates parsing before any database roundtrip

# Usage

Refusing a leaky manifest:

	if findings := security.ScanDocument(manifest); len(findings) > 0 {
		return fmt.Errorf("secret-like value at %s", findings[0])
	}

Scrubbing proposal text:

	redactor := security.NewRedactor()
	title = redactor.String(title)
	envelope = redactor.Document(envelope)

Parsing auth references:

	ref, err := security.ParseVaultRef("vault://ci/github/moonmind#token")
	// ref.Mount="ci" ref.Path="github/moonmind" ref.Field="token"

	pref, _ := security.ParseProfileRef("profile://openai#api_key")
	envKey := pref.EnvKey() // "OPENAI_API_KEY"

Minting a worker token:

	raw, hash, err := security.MintWorkerToken()
	// store hash; print raw exactly once

# Integration Points

This package integrates with:

  - pkg/manifest: Refuses manifests with embedded secrets, collects refs
  - pkg/contract: Validates task auth references
  - pkg/proposals: Scrubs titles, summaries, tags, and envelopes
  - pkg/queue: Mints and resolves worker tokens
  - pkg/api: Token shape check before auth lookup

# Design Notes

Detection is heuristic and intentionally biased toward refusal: a false
positive costs the caller a rewrite with a reference, a false negative
persists a credential. The sensitive-key suffix match deliberately skips
maxTokens-style tuning knobs.
*/
package security
