package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/artifacts"
	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/contract"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/events"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/manifest"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

// Bounded list limits. Requests outside these ranges are rejected, not
// clamped; HTTP adapters apply their own defaults before calling in.
const (
	MaxJobListLimit   = 200
	MaxEventListLimit = 500
	MaxTelemetryLimit = 20000

	DefaultMaxAttempts = 3

	// Lease applied when a heartbeat omits leaseSeconds.
	defaultLeaseSeconds = 60
)

// Service orchestrates the queue core: job lifecycle, artifacts, journal
// events, worker tokens, pause state, and live sessions. Persistence rules
// live in storage.Store; this layer owns payload contracts, authorization
// policy, and event emission ordering.
type Service struct {
	store     storage.Store
	artifacts artifacts.Store
	hub       *events.Hub
	cfg       *config.Config
	tasks     *contract.Normalizer
	manifests *manifest.Normalizer
	logger    zerolog.Logger

	now func() time.Time
}

// NewService wires the queue service. The manifest normalizer is passed in
// because its registry resolver is constructed by the caller.
func NewService(store storage.Store, artifactStore artifacts.Store, hub *events.Hub,
	cfg *config.Config, manifests *manifest.Normalizer) *Service {
	return &Service{
		store:     store,
		artifacts: artifactStore,
		hub:       hub,
		cfg:       cfg,
		tasks:     contract.NewNormalizer(cfg.DefaultRuntime, cfg.DefaultPublishMode, contract.DefaultSkillID),
		manifests: manifests,
		logger:    log.WithComponent("queue"),
		now:       time.Now,
	}
}

// CreateJob validates the payload against its type's contract, persists the
// job with its submission events, and wakes any journal long-pollers.
func (s *Service) CreateJob(ctx context.Context, req *types.CreateJobRequest) (*types.AgentJob, error) {
	job, submitEvents, err := s.PrepareJob(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(ctx, job, submitEvents...); err != nil {
		return nil, err
	}
	s.AnnounceJob(job)
	return job, nil
}

// PrepareJob validates and normalizes a create request without persisting
// anything, returning the job row and its submission events. Callers that
// insert the job inside their own transaction report it with AnnounceJob
// afterwards.
func (s *Service) PrepareJob(ctx context.Context, req *types.CreateJobRequest) (*types.AgentJob, []*types.JobEvent, error) {
	if !req.Type.Valid() {
		return nil, nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"job type %q is not recognized", req.Type)
	}

	maxAttempts := DefaultMaxAttempts
	if req.MaxAttempts != nil {
		if *req.MaxAttempts < 1 {
			return nil, nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
				"maxAttempts must be at least 1; got %d", *req.MaxAttempts)
		}
		maxAttempts = *req.MaxAttempts
	}
	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
	}

	payload, submitEvents, err := s.normalizePayload(ctx, req.Type, req.Payload, priority)
	if err != nil {
		return nil, nil, err
	}

	job := &types.AgentJob{
		Type:              req.Type,
		Priority:          priority,
		Payload:           payload,
		AffinityKey:       req.AffinityKey,
		MaxAttempts:       maxAttempts,
		CreatedByUserID:   req.CreatedByUserID,
		RequestedByUserID: req.RequestedByUserID,
	}
	return job, submitEvents, nil
}

// AnnounceJob logs a persisted job and wakes journal long-pollers.
func (s *Service) AnnounceJob(job *types.AgentJob) {
	s.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("priority", job.Priority).
		Msg("job queued")
	s.hub.Publish(job.ID)
}

// normalizePayload applies the per-type contract and builds the
// submission-time journal events.
func (s *Service) normalizePayload(ctx context.Context, jobType types.JobType,
	payload types.JSONMap, priority int) (types.JSONMap, []*types.JobEvent, error) {
	switch jobType {
	case types.JobTypeTask, types.JobTypeCodexExec, types.JobTypeCodexSkill:
		canonical, normalized, err := s.tasks.Normalize(jobType, payload)
		if err != nil {
			return nil, nil, err
		}

		queuedPayload := types.JSONMap{
			"type":                 string(jobType),
			"priority":             priority,
			"repository":           canonical.Repository,
			"requiredCapabilities": canonical.RequiredCapabilities,
		}
		if canonical.RuntimeRewritten {
			// Telemetry counts universal-runtime rewrites from this marker;
			// the payload itself only keeps the rewritten runtime.
			queuedPayload["runtimeRewritten"] = true
		}
		submitEvents := []*types.JobEvent{{
			Level:   types.EventLevelInfo,
			Message: storage.EventJobQueued,
			Payload: queuedPayload,
		}}
		if canonical.LegacyLifted {
			submitEvents = append(submitEvents, &types.JobEvent{
				Level:   types.EventLevelWarn,
				Message: storage.EventLegacyJobSubmitted,
				Payload: types.JSONMap{"originalType": string(jobType)},
			})
		}
		return normalized, submitEvents, nil

	case types.JobTypeManifest:
		normalized, err := s.manifests.Normalize(ctx, payload)
		if err != nil {
			return nil, nil, err
		}
		submitEvents := []*types.JobEvent{{
			Level:   types.EventLevelInfo,
			Message: storage.EventJobQueued,
			Payload: types.JSONMap{
				"type":                 string(jobType),
				"priority":             priority,
				"manifest":             normalized.Name,
				"action":               string(normalized.Action),
				"requiredCapabilities": normalized.RequiredCapabilities,
			},
		}}
		return normalized.Payload, submitEvents, nil

	default:
		return nil, nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"job type %q is not recognized", jobType)
	}
}

// GetJob fetches one job by id.
func (s *Service) GetJob(ctx context.Context, id string) (*types.AgentJob, error) {
	return s.store.GetJob(ctx, id)
}

// ListJobs lists jobs newest-first with bounded limits.
func (s *Service) ListJobs(ctx context.Context, filter storage.JobFilter) ([]*types.AgentJob, error) {
	if filter.Limit < 1 || filter.Limit > MaxJobListLimit {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"limit must be between 1 and %d; got %d", MaxJobListLimit, filter.Limit)
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"status %q is not recognized", *filter.Status)
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"type %q is not recognized", *filter.Type)
	}
	return s.store.ListJobs(ctx, filter)
}
