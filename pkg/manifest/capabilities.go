package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/moonmind/moonmind/pkg/contract"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// Capability mapping tables. A manifest naming a provider, store, or reader
// absent from these tables is refused: shipping it to a worker that cannot
// possibly satisfy it would only dead-letter the job after max_attempts.
var (
	embeddingProviderCapabilities = map[string]string{
		"openai":      "openai",
		"azure":       "azure",
		"gemini":      "gemini",
		"ollama":      "ollama",
		"huggingface": "huggingface",
		"voyage":      "voyage",
	}

	vectorStoreCapabilities = map[string]string{
		"qdrant":   "qdrant",
		"chroma":   "chroma",
		"pgvector": "pgvector",
		"weaviate": "weaviate",
		"milvus":   "milvus",
		"memory":   "memory",
	}

	dataSourceCapabilities = map[string]string{
		"githubrepositoryreader": "github",
		"github":                 "github",
		"webpagereader":          "web",
		"web":                    "web",
		"localdirectoryreader":   "filesystem",
		"directory":              "filesystem",
		"confluencereader":       "confluence",
		"confluence":             "confluence",
		"notionpagereader":       "notion",
		"notion":                 "notion",
		"s3reader":               "s3",
		"s3":                     "s3",
	}
)

// deriveCapabilities computes the worker capabilities a manifest job
// requires: the configured baseline, then embeddings, vector store, and data
// source contributions in document order.
func (n *Normalizer) deriveCapabilities(doc types.JSONMap) ([]string, error) {
	caps := make([]string, 0, len(n.baseline)+4)
	caps = append(caps, n.baseline...)

	if embeddings := doc.Map("embeddings"); embeddings != nil {
		caps = append(caps, "embeddings")
		provider := strings.ToLower(strings.TrimSpace(embeddings.String("provider")))
		if provider != "" {
			mapped, ok := embeddingProviderCapabilities[provider]
			if !ok {
				return nil, unsupportedError("embeddings.provider", provider, embeddingProviderCapabilities)
			}
			caps = append(caps, mapped)
		}
	}

	if store := doc.Map("vectorStore"); store != nil {
		kind := strings.ToLower(strings.TrimSpace(store.String("type")))
		if kind != "" {
			mapped, ok := vectorStoreCapabilities[kind]
			if !ok {
				return nil, unsupportedError("vectorStore.type", kind, vectorStoreCapabilities)
			}
			caps = append(caps, mapped)
		}
	}

	if sources := doc.Slice("dataSources"); sources != nil {
		for i, raw := range sources {
			entry, ok := raw.(map[string]any)
			if !ok {
				return nil, errors.NewContractf(errors.CodeInvalidManifest, "dataSources[%d] must be an object", i)
			}
			kind := strings.ToLower(strings.TrimSpace(types.JSONMap(entry).String("type")))
			if kind == "" {
				return nil, errors.NewContractf(errors.CodeInvalidManifest, "dataSources[%d].type is required", i)
			}
			mapped, ok := dataSourceCapabilities[kind]
			if !ok {
				return nil, unsupportedError(fmt.Sprintf("dataSources[%d].type", i), kind, dataSourceCapabilities)
			}
			caps = append(caps, mapped)
		}
	}

	return contract.NormalizeCapabilities(caps), nil
}

func unsupportedError(field, value string, table map[string]string) error {
	known := make([]string, 0, len(table))
	for k := range table {
		known = append(known, k)
	}
	sort.Strings(known)
	return errors.NewContractf(errors.CodeInvalidManifest, "%s %q is not supported; known values: %s",
		field, value, strings.Join(known, ", "))
}
