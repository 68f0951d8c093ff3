package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moonmind/moonmind/pkg/contract"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/security"
	"github.com/moonmind/moonmind/pkg/types"
)

// Action selects what a manifest job does with the document.
type Action string

const (
	// ActionPlan validates the manifest and reports what a run would do.
	ActionPlan Action = "plan"
	// ActionRun executes the ingestion described by the manifest.
	ActionRun Action = "run"
)

// SourceKind identifies where the manifest document comes from.
type SourceKind string

const (
	// SourceInline carries the document verbatim in the job payload.
	SourceInline SourceKind = "inline"
	// SourceRegistry references a document stored in the manifest registry.
	SourceRegistry SourceKind = "registry"
	// SourcePath reads the document from the server filesystem. Disabled
	// unless the operator opts in.
	SourcePath SourceKind = "path"
)

// RequiredVersion is the only manifest schema version the queue accepts.
const RequiredVersion = "v0"

// SecretRef describes one secret reference discovered in a manifest
// document. Workers use these to resolve credentials before a run.
type SecretRef struct {
	Ref      string `json:"ref"`
	Kind     string `json:"kind"`
	Provider string `json:"provider,omitempty"`
	EnvKey   string `json:"envKey,omitempty"`
	Mount    string `json:"mount,omitempty"`
	Path     string `json:"path,omitempty"`
	Field    string `json:"field,omitempty"`
}

// Normalized is the result of validating a manifest job submission.
type Normalized struct {
	Name                 string
	Action               Action
	SourceKind           SourceKind
	ManifestHash         string
	Document             types.JSONMap
	RequiredCapabilities []string
	SecretRefs           []SecretRef
	EffectiveRunConfig   types.JSONMap
	Payload              types.JSONMap
}

// Resolver loads registry-sourced manifest content by name.
type Resolver interface {
	ResolveManifest(ctx context.Context, name string) (content string, err error)
}

// Normalizer validates manifest job payloads and derives the metadata the
// queue stores alongside them.
type Normalizer struct {
	baseline        []string
	allowPathSource bool
	resolver        Resolver
	readFile        func(path string) ([]byte, error)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPathSource enables the path source kind.
func WithPathSource() Option {
	return func(n *Normalizer) { n.allowPathSource = true }
}

// WithFileReader overrides how path-sourced documents are read.
func WithFileReader(read func(path string) ([]byte, error)) Option {
	return func(n *Normalizer) { n.readFile = read }
}

// NewNormalizer creates a manifest normalizer. The baseline capabilities are
// prepended to every derived capability list; when empty the default
// ["manifest"] baseline is used so manifest jobs are never claimable by
// workers that advertise nothing.
func NewNormalizer(baseline []string, resolver Resolver, opts ...Option) *Normalizer {
	if len(baseline) == 0 {
		baseline = []string{"manifest"}
	}
	n := &Normalizer{
		baseline: contract.NormalizeCapabilities(baseline),
		resolver: resolver,
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates a manifest job payload, loads and parses the document,
// refuses inline secrets, and returns the normalized payload to persist.
// The input payload is never mutated.
func (n *Normalizer) Normalize(ctx context.Context, payload types.JSONMap) (*Normalized, error) {
	if len(payload) == 0 {
		return nil, errors.NewContract(errors.CodeInvalidManifestJob, "payload.manifest is required")
	}
	block := payload.Map("manifest")
	if block == nil {
		return nil, errors.NewContract(errors.CodeInvalidManifestJob, "payload.manifest is required")
	}
	block = block.Clone()

	name := strings.TrimSpace(block.String("name"))
	if name == "" {
		return nil, errors.NewContract(errors.CodeInvalidManifestJob, "manifest.name is required")
	}
	action := Action(strings.ToLower(strings.TrimSpace(block.String("action"))))
	switch action {
	case ActionPlan, ActionRun:
	case "":
		return nil, errors.NewContract(errors.CodeInvalidManifestJob, "manifest.action is required")
	default:
		return nil, errors.NewContractf(errors.CodeInvalidManifestJob, "manifest.action %q is not supported", action)
	}

	source := block.Map("source")
	if source == nil {
		return nil, errors.NewContract(errors.CodeInvalidManifestJob, "manifest.source is required")
	}
	kind := SourceKind(strings.ToLower(strings.TrimSpace(source.String("kind"))))

	content, err := n.loadContent(ctx, name, kind, source)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(content))
	hash := "sha256:" + hex.EncodeToString(sum[:])

	doc, err := parseDocument(content)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(name, doc); err != nil {
		return nil, err
	}
	if findings := security.ScanDocument(map[string]any(doc)); len(findings) > 0 {
		return nil, errors.NewContractf(errors.CodeInvalidManifest,
			"manifest contains inline secret material at %s; use profile:// or vault:// references", findings[0].Path)
	}

	refs, err := collectSecretRefs(doc)
	if err != nil {
		return nil, err
	}
	caps, err := n.deriveCapabilities(doc)
	if err != nil {
		return nil, err
	}
	runConfig := effectiveRunConfig(doc, block.Map("options"))

	normalizedSource := types.JSONMap{"kind": string(kind)}
	switch kind {
	case SourceInline:
		// Inline documents travel with the job so workers need no registry
		// round trip.
		normalizedSource["content"] = content
	case SourceRegistry:
		registryName := strings.TrimSpace(source.String("name"))
		if registryName == "" {
			registryName = name
		}
		normalizedSource["name"] = registryName
	case SourcePath:
		normalizedSource["path"] = strings.TrimSpace(source.String("path"))
	}

	block["name"] = name
	block["action"] = string(action)
	block["source"] = map[string]any(normalizedSource)

	out := payload.Clone()
	out["manifest"] = map[string]any(block)
	out["manifestHash"] = hash
	out["manifestVersion"] = RequiredVersion
	out["requiredCapabilities"] = caps
	out["manifestSecretRefs"] = secretRefsToAny(refs)
	out["effectiveRunConfig"] = map[string]any(runConfig)

	return &Normalized{
		Name:                 name,
		Action:               action,
		SourceKind:           kind,
		ManifestHash:         hash,
		Document:             doc,
		RequiredCapabilities: caps,
		SecretRefs:           refs,
		EffectiveRunConfig:   runConfig,
		Payload:              out,
	}, nil
}

// ValidateContent checks standalone manifest YAML against the document
// rules and returns its content hash. The registry only stores content that
// passed this check, so registry-sourced jobs can trust the stored text.
func ValidateContent(name, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.NewContract(errors.CodeInvalidManifest, "manifest content is required")
	}
	doc, err := parseDocument(content)
	if err != nil {
		return "", err
	}
	if err := validateDocument(name, doc); err != nil {
		return "", err
	}
	if findings := security.ScanDocument(map[string]any(doc)); len(findings) > 0 {
		return "", errors.NewContractf(errors.CodeInvalidManifest,
			"manifest contains inline secret material at %s; use profile:// or vault:// references", findings[0].Path)
	}
	if _, err := collectSecretRefs(doc); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(content))
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func (n *Normalizer) loadContent(ctx context.Context, name string, kind SourceKind, source types.JSONMap) (string, error) {
	switch kind {
	case SourceInline:
		content := source.String("content")
		if strings.TrimSpace(content) == "" {
			return "", errors.NewContract(errors.CodeInvalidManifestJob, "manifest.source.content is required for inline sources")
		}
		return content, nil
	case SourceRegistry:
		if n.resolver == nil {
			return "", errors.NewContract(errors.CodeInvalidManifestJob, "registry sources are not configured")
		}
		registryName := strings.TrimSpace(source.String("name"))
		if registryName == "" {
			registryName = name
		}
		return n.resolver.ResolveManifest(ctx, registryName)
	case SourcePath:
		if !n.allowPathSource {
			return "", errors.NewContract(errors.CodeInvalidManifestJob, "path sources are disabled")
		}
		p := strings.TrimSpace(source.String("path"))
		if p == "" {
			return "", errors.NewContract(errors.CodeInvalidManifestJob, "manifest.source.path is required for path sources")
		}
		data, err := n.readFile(p)
		if err != nil {
			return "", errors.NewContractf(errors.CodeInvalidManifestJob, "reading manifest from %s: %v", p, err)
		}
		return string(data), nil
	case "":
		return "", errors.NewContract(errors.CodeInvalidManifestJob, "manifest.source.kind is required")
	default:
		return "", errors.NewContractf(errors.CodeInvalidManifestJob, "manifest.source.kind %q is not supported", kind)
	}
}

func parseDocument(content string) (types.JSONMap, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, errors.NewContractf(errors.CodeInvalidManifest, "manifest is not valid YAML: %v", err)
	}
	if raw == nil {
		return nil, errors.NewContract(errors.CodeInvalidManifest, "manifest document is empty")
	}
	return types.JSONMap(normalizeYAMLValue(raw).(map[string]any)), nil
}

// normalizeYAMLValue rewrites yaml.v3 map[string]any trees so nested keys are
// always strings, matching the JSON documents stored in jsonb columns.
func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAMLValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}

func validateDocument(name string, doc types.JSONMap) error {
	version := strings.TrimSpace(doc.String("version"))
	if version != RequiredVersion {
		return errors.NewContractf(errors.CodeInvalidManifest, "manifest version %q is not supported; expected %q", version, RequiredVersion)
	}
	metadata := doc.Map("metadata")
	if metadata == nil {
		return errors.NewContract(errors.CodeInvalidManifest, "manifest metadata.name is required")
	}
	docName := strings.TrimSpace(metadata.String("name"))
	if docName == "" {
		return errors.NewContract(errors.CodeInvalidManifest, "manifest metadata.name is required")
	}
	if docName != name {
		return errors.NewContractf(errors.CodeInvalidManifest, "manifest metadata.name %q does not match submitted name %q", docName, name)
	}
	return nil
}

// collectSecretRefs walks the document and gathers every profile:// and
// vault:// reference. A malformed reference fails the whole manifest rather
// than being silently shipped to a worker.
func collectSecretRefs(doc types.JSONMap) ([]SecretRef, error) {
	var refs []SecretRef
	seen := make(map[string]bool)
	var walk func(path string, v any) error
	walk = func(path string, v any) error {
		switch val := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				childPath := k
				if path != "" {
					childPath = path + "." + k
				}
				if err := walk(childPath, val[k]); err != nil {
					return err
				}
			}
		case []any:
			for i, item := range val {
				if err := walk(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
					return err
				}
			}
		case string:
			trimmed := strings.TrimSpace(val)
			switch {
			case strings.HasPrefix(trimmed, security.ProfileRefPrefix):
				ref, err := security.ParseProfileRef(trimmed)
				if err != nil {
					return errors.NewContractf(errors.CodeInvalidManifest, "invalid secret reference at %s: %v", path, err)
				}
				if !seen[trimmed] {
					seen[trimmed] = true
					refs = append(refs, SecretRef{
						Ref:      trimmed,
						Kind:     "profile",
						Provider: ref.Provider,
						Field:    ref.Field,
						EnvKey:   ref.EnvKey(),
					})
				}
			case strings.HasPrefix(trimmed, security.VaultRefPrefix):
				ref, err := security.ParseVaultRef(trimmed)
				if err != nil {
					return errors.NewContractf(errors.CodeInvalidManifest, "invalid secret reference at %s: %v", path, err)
				}
				if !seen[trimmed] {
					seen[trimmed] = true
					refs = append(refs, SecretRef{
						Ref:   trimmed,
						Kind:  "vault",
						Mount: ref.Mount,
						Path:  ref.Path,
						Field: ref.Field,
					})
				}
			}
		}
		return nil
	}
	if err := walk("", map[string]any(doc)); err != nil {
		return nil, err
	}
	return refs, nil
}

// effectiveRunConfig merges submission options over the document's run block.
// Options win so an operator can force a dry run without editing the stored
// manifest.
func effectiveRunConfig(doc, options types.JSONMap) types.JSONMap {
	out := types.JSONMap{}
	if run := doc.Map("run"); run != nil {
		out = run.Clone()
	}
	if options == nil {
		return out
	}
	for _, key := range []string{"dryRun", "forceFull", "maxDocs"} {
		if v, ok := options[key]; ok {
			out[key] = v
		}
	}
	return out
}

func secretRefsToAny(refs []SecretRef) []any {
	out := make([]any, 0, len(refs))
	for _, ref := range refs {
		entry := map[string]any{"ref": ref.Ref, "kind": ref.Kind}
		if ref.Provider != "" {
			entry["provider"] = ref.Provider
		}
		if ref.EnvKey != "" {
			entry["envKey"] = ref.EnvKey
		}
		if ref.Mount != "" {
			entry["mount"] = ref.Mount
		}
		if ref.Path != "" {
			entry["path"] = ref.Path
		}
		if ref.Field != "" {
			entry["field"] = ref.Field
		}
		out = append(out, entry)
	}
	return out
}

// Sanitize returns a copy of a manifest job payload safe for API responses.
// Inline document content is stripped; the hash, version, and derived
// metadata stay so callers can still identify the document.
func Sanitize(payload types.JSONMap) types.JSONMap {
	if payload == nil {
		return nil
	}
	out := payload.Clone()
	block := out.Map("manifest")
	if block == nil {
		return out
	}
	if source := block.Map("source"); source != nil {
		delete(source, "content")
	}
	return out
}
