package skills

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/metrics"
)

// locateDepth bounds the bundle walk when the skill directory is nested,
// which is the normal shape for git sources.
const locateDepth = 3

// Materializer turns a frozen Selection into immutable cache entries. Each
// entry is fetched, verified against SKILL.md and its declared content hash,
// then placed under {cache_root}/{content_hash}/{skill_name}.
type Materializer struct {
	cfg     *config.Config
	cache   *cache
	fetcher *fetcher
	logger  zerolog.Logger
}

// MaterializedSkill reports where one selection entry landed.
type MaterializedSkill struct {
	Name        string `json:"name"`
	ContentHash string `json:"contentHash"`
	CachePath   string `json:"cachePath"`
	CacheHit    bool   `json:"cacheHit"`
}

// NewMaterializer builds a materializer over the configured cache root.
func NewMaterializer(cfg *config.Config) (*Materializer, error) {
	c, err := newCache(cfg.SkillCacheRoot)
	if err != nil {
		return nil, err
	}
	return &Materializer{
		cfg:     cfg,
		cache:   c,
		fetcher: newFetcher(),
		logger:  log.WithComponent("skills"),
	}, nil
}

// Materialize processes every entry of the selection in order and fails on
// the first bad entry. Entries already present in the cache are served
// without a fetch when their content hash is declared up front.
func (m *Materializer) Materialize(ctx context.Context, sel *Selection) ([]MaterializedSkill, error) {
	out := make([]MaterializedSkill, 0, len(sel.Skills))
	for _, entry := range sel.Skills {
		materialized, err := m.materializeOne(ctx, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, *materialized)
	}
	return out, nil
}

func (m *Materializer) materializeOne(ctx context.Context, entry ResolvedSkill) (*MaterializedSkill, error) {
	if m.cfg.SkillSignatureRequired && entry.Signature == "" {
		return nil, errors.NewMaterialization(errors.CodeSignatureMissing,
			fmt.Sprintf("skill %q has no signature and signatures are required", entry.Name))
	}

	// A declared hash lets a warm cache skip the fetch entirely.
	if entry.ContentHash != "" {
		if path, ok := m.cache.lookup(entry.ContentHash, entry.Name); ok {
			metrics.SkillCacheHits.Inc()
			m.logger.Debug().
				Str("skill", entry.Name).
				Str("content_hash", entry.ContentHash).
				Msg("Skill served from cache")
			return &MaterializedSkill{
				Name:        entry.Name,
				ContentHash: entry.ContentHash,
				CachePath:   path,
				CacheHit:    true,
			}, nil
		}
	}

	scratch, err := os.MkdirTemp("", "moonmind-skill-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create skill scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	bundleDir, scheme, err := m.fetcher.fetch(ctx, entry.SourceURI, entry.Name, scratch)
	if err != nil {
		metrics.SkillFetches.WithLabelValues(scheme, "error").Inc()
		return nil, err
	}
	metrics.SkillFetches.WithLabelValues(scheme, "ok").Inc()

	skillDir, err := locateSkillDir(bundleDir, entry.Name)
	if err != nil {
		return nil, err
	}
	if err := validateSkillDir(skillDir, entry.Name); err != nil {
		return nil, err
	}

	hash, err := HashTree(skillDir)
	if err != nil {
		return nil, fmt.Errorf("cannot hash skill %q: %w", entry.Name, err)
	}
	if entry.ContentHash != "" && entry.ContentHash != hash {
		return nil, errors.NewMaterialization(errors.CodeHashMismatch,
			fmt.Sprintf("skill %q hashes to %s; selection declares %s",
				entry.Name, hash, entry.ContentHash))
	}

	if path, ok := m.cache.lookup(hash, entry.Name); ok {
		metrics.SkillCacheHits.Inc()
		return &MaterializedSkill{
			Name:        entry.Name,
			ContentHash: hash,
			CachePath:   path,
			CacheHit:    true,
		}, nil
	}

	path, err := m.cache.place(skillDir, entry.Name, hash)
	if err != nil {
		return nil, fmt.Errorf("cannot cache skill %q: %w", entry.Name, err)
	}
	m.logger.Info().
		Str("skill", entry.Name).
		Str("content_hash", hash).
		Str("scheme", scheme).
		Msg("Skill materialized")
	return &MaterializedSkill{
		Name:        entry.Name,
		ContentHash: hash,
		CachePath:   path,
	}, nil
}

// locateSkillDir finds the directory inside a fetched bundle that carries
// {name}/SKILL.md. The bundle root itself qualifies when it holds SKILL.md
// directly, which is the shape mirror paths resolve to.
func locateSkillDir(bundleDir, name string) (string, error) {
	if direct := filepath.Join(bundleDir, name); hasManifest(direct) {
		return direct, nil
	}
	if hasManifest(bundleDir) {
		return bundleDir, nil
	}

	var found string
	err := filepath.WalkDir(bundleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bundleDir, path)
		if err != nil {
			return err
		}
		if rel != "." && strings.Count(rel, string(filepath.Separator)) >= locateDepth {
			return fs.SkipDir
		}
		if d.Name() == name && hasManifest(path) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", errors.NewMaterialization(errors.CodeMissingSkillMD,
			fmt.Sprintf("bundle has no %s/%s", name, SkillManifestName))
	}
	return found, nil
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, SkillManifestName))
	return err == nil && info.Mode().IsRegular()
}
