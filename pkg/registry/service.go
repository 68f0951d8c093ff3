// Package registry manages named manifest documents: idempotent-by-hash
// versioned storage, and submission of manifest jobs that reference the
// registry as their source.
package registry

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/manifest"
	"github.com/moonmind/moonmind/pkg/queue"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

// Service owns the manifest registry operations.
type Service struct {
	store  storage.Store
	queue  *queue.Service
	logger zerolog.Logger
}

// NewService wires the registry service on top of the queue service, which
// performs the manifest re-validation when a run is submitted.
func NewService(store storage.Store, queueSvc *queue.Service) *Service {
	return &Service{
		store:  store,
		queue:  queueSvc,
		logger: log.WithComponent("registry"),
	}
}

// UpsertManifest validates the YAML against the manifest document rules and
// stores it under the registry name. Re-storing identical content is a
// no-op; changed content bumps the version.
func (s *Service) UpsertManifest(ctx context.Context, name string, req *types.UpsertManifestRequest) (*types.ManifestRegistryRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewValidation(errors.CodeInvalidManifest, "manifest name is required")
	}
	hash, err := manifest.ValidateContent(name, req.Content)
	if err != nil {
		return nil, err
	}

	record, err := s.store.UpsertManifestRecord(ctx, name, req.Content, hash)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("manifest", name).
		Int("version", record.Version).
		Str("content_hash", record.ContentHash).
		Msg("manifest stored")
	return record, nil
}

// GetManifest fetches one registry record by name.
func (s *Service) GetManifest(ctx context.Context, name string) (*types.ManifestRegistryRecord, error) {
	return s.store.GetManifestRecord(ctx, strings.TrimSpace(name))
}

// ListManifests returns all registry records ordered by name.
func (s *Service) ListManifests(ctx context.Context) ([]*types.ManifestRegistryRecord, error) {
	return s.store.ListManifestRecords(ctx)
}

// SubmitManifestRun enqueues a manifest job sourced from a registry record
// and stamps the record's last-run fields with the new job. The queue
// service re-validates the document and derives requiredCapabilities, so a
// record that has gone stale against the contract fails here, not on a
// worker.
func (s *Service) SubmitManifestRun(ctx context.Context, name string, req *types.SubmitManifestRunRequest, userID *string) (*types.AgentJob, error) {
	record, err := s.store.GetManifestRecord(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}

	block := map[string]any{
		"name":   record.Name,
		"action": strings.ToLower(strings.TrimSpace(req.Action)),
		"source": map[string]any{
			"kind":    "registry",
			"name":    record.Name,
			"content": record.Content,
		},
	}
	if len(req.Options) > 0 {
		block["options"] = map[string]any(req.Options)
	}

	job, err := s.queue.CreateJob(ctx, &types.CreateJobRequest{
		Type:            types.JobTypeManifest,
		Payload:         types.JSONMap{"manifest": block},
		CreatedByUserID: userID,
	})
	if err != nil {
		return nil, err
	}

	// The job is already enqueued; a bookkeeping failure on the record must
	// not make the caller retry into a duplicate submission.
	if err := s.store.UpdateManifestLastRun(ctx, record.Name, storage.ManifestRunState{
		JobID:  job.ID,
		Status: string(job.Status),
	}); err != nil {
		s.logger.Error().Err(err).
			Str("manifest", record.Name).
			Str("job_id", job.ID).
			Msg("failed to stamp manifest last run")
	}

	s.logger.Info().
		Str("manifest", record.Name).
		Str("action", block["action"].(string)).
		Str("job_id", job.ID).
		Msg("manifest run submitted")
	return job, nil
}
