package queue

import (
	"context"
	"strings"
	"time"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

// ClaimJob normalizes expired leases, applies the worker's policy, and
// claims the first eligible queued job. A nil job with no error means the
// queue had nothing eligible; the system metadata rides along either way so
// idle workers still observe pause transitions.
func (s *Service) ClaimJob(ctx context.Context, req *types.ClaimRequest, policy *types.WorkerPolicy) (*types.ClaimResponse, error) {
	if strings.TrimSpace(req.WorkerID) == "" {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "workerId is required")
	}
	if req.LeaseSeconds < 1 {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"leaseSeconds must be at least 1; got %d", req.LeaseSeconds)
	}
	if err := requirePolicyWorker(policy, req.WorkerID); err != nil {
		return nil, err
	}

	allowedTypes, err := intersectAllowedTypes(req.AllowedTypes, policy)
	if err != nil {
		return nil, err
	}

	pause, err := s.store.GetPauseState(ctx)
	if err != nil {
		return nil, err
	}
	system := systemMetadata(pause)
	if pause.Paused {
		metrics.JobClaims.WithLabelValues("paused").Inc()
		s.logger.Debug().
			Str("worker_id", req.WorkerID).
			Int64("pause_version", pause.Version).
			Msg("claim refused while workers are paused")
		return &types.ClaimResponse{Job: nil, System: system}, nil
	}

	capabilities := req.WorkerCapabilities
	if len(capabilities) == 0 {
		capabilities = policy.Capabilities
	}

	job, err := s.store.ClaimJob(ctx, storage.ClaimQuery{
		WorkerID:            req.WorkerID,
		Lease:               time.Duration(req.LeaseSeconds) * time.Second,
		Types:               allowedTypes,
		Capabilities:        capabilities,
		AllowedRepositories: policy.AllowedRepositories,
		RetryDelay:          s.cfg.DefaultRetryDelay(),
	})
	if err != nil {
		return nil, err
	}
	if job != nil {
		s.hub.Publish(job.ID)
	}
	return &types.ClaimResponse{Job: job, System: system}, nil
}

// GetSystemMetadata returns the pause snapshot workers receive on claim.
func (s *Service) GetSystemMetadata(ctx context.Context) (*types.SystemMetadata, error) {
	pause, err := s.store.GetPauseState(ctx)
	if err != nil {
		return nil, err
	}
	system := systemMetadata(pause)
	return &system, nil
}

func systemMetadata(pause *types.SystemWorkerPauseState) types.SystemMetadata {
	return types.SystemMetadata{
		WorkerPause: types.WorkerPauseView{
			Paused:      pause.Paused,
			Mode:        pause.Mode,
			Reason:      pause.Reason,
			Version:     pause.Version,
			RequestedAt: pause.RequestedAt,
		},
	}
}

// requirePolicyWorker enforces that the token's worker identity matches the
// workerId named in a mutating worker request.
func requirePolicyWorker(policy *types.WorkerPolicy, workerID string) error {
	if policy == nil || policy.WorkerID == "" {
		return nil
	}
	if policy.WorkerID != workerID {
		return errors.NewAuthorization("worker token is not valid for worker " + workerID)
	}
	return nil
}

// intersectAllowedTypes combines the request's type filter with the token
// scope. Both empty means no filter; a non-overlapping pair is a policy
// violation, not an empty queue.
func intersectAllowedTypes(requested []string, policy *types.WorkerPolicy) ([]string, error) {
	var scoped []string
	if policy != nil {
		scoped = policy.AllowedJobTypes
	}

	requested = normalizeTypeList(requested)
	scoped = normalizeTypeList(scoped)

	switch {
	case len(requested) == 0:
		return scoped, nil
	case len(scoped) == 0:
		return requested, nil
	}

	allowed := make(map[string]struct{}, len(scoped))
	for _, t := range scoped {
		allowed[t] = struct{}{}
	}
	var out []string
	for _, t := range requested {
		if _, ok := allowed[t]; ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, errors.NewAuthorization("worker token does not allow any of the requested job types")
	}
	return out, nil
}

func normalizeTypeList(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
