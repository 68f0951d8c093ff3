package queue

import (
	"context"
	"strings"
	"time"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// Heartbeat extends a running job's lease for the owning worker. The
// returned job carries cancel_requested_at and the payload liveControl
// block, which is how workers observe operator intent.
func (s *Service) Heartbeat(ctx context.Context, jobID string, req *types.HeartbeatRequest, policy *types.WorkerPolicy) (*types.AgentJob, error) {
	if err := requirePolicyWorker(policy, req.WorkerID); err != nil {
		return nil, err
	}
	leaseSeconds := req.LeaseSeconds
	if leaseSeconds == 0 {
		leaseSeconds = defaultLeaseSeconds
	}
	if leaseSeconds < 1 {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"leaseSeconds must be at least 1; got %d", leaseSeconds)
	}

	job, err := s.store.HeartbeatJob(ctx, jobID, req.WorkerID, time.Duration(leaseSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(jobID)
	return job, nil
}

// Complete reports successful terminal completion by the owning worker.
func (s *Service) Complete(ctx context.Context, jobID string, req *types.CompleteRequest, policy *types.WorkerPolicy) (*types.AgentJob, error) {
	if err := requirePolicyWorker(policy, req.WorkerID); err != nil {
		return nil, err
	}
	job, err := s.store.CompleteJob(ctx, jobID, req.WorkerID, req.ResultSummary)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("job_id", jobID).
		Str("worker_id", req.WorkerID).
		Msg("job completed")
	s.hub.Publish(jobID)
	return job, nil
}

// Fail reports a failure by the owning worker. Retryable failures requeue
// with exponential backoff until max_attempts; cancel-requested jobs
// short-circuit to cancelled regardless of retryability.
func (s *Service) Fail(ctx context.Context, jobID string, req *types.FailRequest, policy *types.WorkerPolicy) (*types.AgentJob, error) {
	if err := requirePolicyWorker(policy, req.WorkerID); err != nil {
		return nil, err
	}
	message := strings.TrimSpace(req.ErrorMessage)
	if message == "" {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "errorMessage is required")
	}
	retryable := true
	if req.Retryable != nil {
		retryable = *req.Retryable
	}

	job, err := s.store.FailJob(ctx, jobID, req.WorkerID, message, retryable, s.retryBackoff)
	if err != nil {
		return nil, err
	}
	s.logger.Warn().
		Str("job_id", jobID).
		Str("worker_id", req.WorkerID).
		Str("status", string(job.Status)).
		Int("attempt", job.Attempt).
		Bool("retryable", retryable).
		Msg("job failed")
	s.hub.Publish(jobID)
	return job, nil
}

// retryBackoff computes the requeue delay after a retryable failure on the
// given attempt: min(max, base * 2^(attempt-1)).
func (s *Service) retryBackoff(attempt int) time.Duration {
	base := s.cfg.RetryBackoffBase()
	max := s.cfg.RetryBackoffMax()
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	// base is at least one second, so 32 doublings always exceed any sane cap.
	if shift > 32 {
		return max
	}
	delay := base << shift
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

// RequestCancel asks for cooperative cancellation. Queued jobs cancel
// immediately; running jobs are flagged and keep running until the worker
// observes the flag. Repeat requests are idempotent.
func (s *Service) RequestCancel(ctx context.Context, jobID string, actorUserID *string, req *types.CancelRequest) (*types.AgentJob, error) {
	outcome, err := s.store.RequestCancel(ctx, jobID, actorUserID, strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, err
	}
	if outcome.Noop == "" {
		s.logger.Info().
			Str("job_id", jobID).
			Str("status", string(outcome.Job.Status)).
			Msg("cancellation requested")
	}
	s.hub.Publish(jobID)
	return outcome.Job, nil
}

// AckCancel is the worker-side terminal acknowledgement of a cancellation.
func (s *Service) AckCancel(ctx context.Context, jobID string, req *types.AckCancelRequest, policy *types.WorkerPolicy) (*types.AgentJob, error) {
	if err := requirePolicyWorker(policy, req.WorkerID); err != nil {
		return nil, err
	}
	outcome, err := s.store.AckCancel(ctx, jobID, req.WorkerID)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(jobID)
	return outcome.Job, nil
}
