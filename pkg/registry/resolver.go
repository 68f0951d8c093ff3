package registry

import (
	"context"

	"github.com/moonmind/moonmind/pkg/storage"
)

// Resolver serves stored manifest YAML to the queue's payload normalizer.
// It satisfies manifest.Resolver without pulling the queue package into the
// normalizer's dependency graph.
type Resolver struct {
	store storage.Store
}

// NewResolver creates a registry-backed manifest resolver.
func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveManifest returns the content stored under a registry name.
func (r *Resolver) ResolveManifest(ctx context.Context, name string) (string, error) {
	record, err := r.store.GetManifestRecord(ctx, name)
	if err != nil {
		return "", err
	}
	return record.Content, nil
}
