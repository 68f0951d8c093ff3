package queue

import (
	"context"
	"strings"
	"time"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// RW grant TTL bounds in minutes.
const (
	minGrantTTLMinutes = 1
	maxGrantTTLMinutes = 240
)

// Journal message for worker session reports. The dotted form is the event
// name workers and dashboards filter on.
const eventLiveSessionReported = "task.live_session.reported"

// CreateLiveSession requests an interactive session for a task run. Only
// the run's creator or requester may ask; repeat calls while the session is
// starting or ready return the existing row.
func (s *Service) CreateLiveSession(ctx context.Context, taskRunID, actorUserID string) (*types.TaskRunLiveSession, error) {
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRunActor(job, actorUserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expires := now.Add(s.cfg.LiveSessionTTL())
	session, created, err := s.store.CreateLiveSession(ctx, &types.TaskRunLiveSession{
		TaskRunID: taskRunID,
		Provider:  s.cfg.LiveSessionProvider,
		Status:    types.LiveSessionStarting,
		ExpiresAt: &expires,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		switch {
		case session.Status == types.LiveSessionStarting || session.Status == types.LiveSessionReady:
			return session, nil
		case session.Status == types.LiveSessionDisabled:
			// A worker may have parked the row as disabled; a fresh request
			// restarts the machine.
			return s.store.MutateLiveSession(ctx, taskRunID, func(session *types.TaskRunLiveSession) error {
				session.Status = types.LiveSessionStarting
				session.ExpiresAt = &expires
				return nil
			})
		default:
			return nil, errors.NewState(errors.CodeInvalidState,
				"live session for task run "+taskRunID+" has already ended")
		}
	}

	if err := s.appendRunJournal(ctx, taskRunID, types.EventLevelInfo, "Live session requested",
		types.JSONMap{"provider": session.Provider}); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("job_id", taskRunID).
		Str("provider", session.Provider).
		Msg("live session requested")
	return session, nil
}

// ReportLiveSession is the worker-side upsert of session status and attach
// endpoints. Ownership is checked against the job's current claim; terminal
// reports also accept the session's recorded worker so a released worker
// can still report the ending.
func (s *Service) ReportLiveSession(ctx context.Context, taskRunID string, req *types.LiveSessionReportRequest, policy *types.WorkerPolicy) (*types.TaskRunLiveSession, error) {
	if err := requirePolicyWorker(policy, req.WorkerID); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"live session status %q is not recognized", req.Status)
	}
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetLiveSession(ctx, taskRunID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if err := s.authorizeSessionWorker(job, existing, req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if existing == nil {
		expires := now.Add(s.cfg.LiveSessionTTL())
		if _, _, err := s.store.CreateLiveSession(ctx, &types.TaskRunLiveSession{
			TaskRunID: taskRunID,
			Provider:  s.cfg.LiveSessionProvider,
			Status:    types.LiveSessionStarting,
			ExpiresAt: &expires,
		}); err != nil {
			return nil, err
		}
	}

	session, err := s.store.MutateLiveSession(ctx, taskRunID, func(session *types.TaskRunLiveSession) error {
		s.applyReport(session, req, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.appendRunJournal(ctx, taskRunID, reportLevel(req.Status), eventLiveSessionReported,
		types.JSONMap{
			"status":   string(req.Status),
			"provider": session.Provider,
			"workerId": req.WorkerID,
		}); err != nil {
		return nil, err
	}
	return session, nil
}

// applyReport folds one worker report into the session row. ended_at
// preservation is enforced by the store.
func (s *Service) applyReport(session *types.TaskRunLiveSession, req *types.LiveSessionReportRequest, now time.Time) {
	if req.Provider != "" {
		session.Provider = req.Provider
	}
	session.Status = req.Status
	session.WorkerID = &req.WorkerID
	if req.WorkerHostname != nil {
		session.WorkerHostname = req.WorkerHostname
	}
	if req.AttachRO != nil {
		session.AttachRO = req.AttachRO
	}
	if req.AttachRW != nil {
		session.AttachRW = req.AttachRW
	}
	if s.cfg.LiveSessionAllowWeb {
		if req.WebRO != nil {
			session.WebRO = req.WebRO
		}
		if req.WebRW != nil {
			session.WebRW = req.WebRW
		}
	} else {
		session.WebRO = nil
		session.WebRW = nil
	}
	if req.ErrorMessage != nil {
		session.ErrorMessage = req.ErrorMessage
	}
	session.LastHeartbeatAt = &now

	if req.Status == types.LiveSessionReady && session.ReadyAt == nil {
		session.ReadyAt = &now
	}
	if req.Status.Terminal() {
		session.EndedAt = &now
	}
}

// authorizeSessionWorker verifies the reporting worker owns the claim, or,
// for terminal reports, previously owned the session.
func (s *Service) authorizeSessionWorker(job *types.AgentJob, session *types.TaskRunLiveSession, req *types.LiveSessionReportRequest) error {
	if job.ClaimedBy != nil && *job.ClaimedBy == req.WorkerID {
		return nil
	}
	if req.Status.Terminal() && session != nil &&
		session.WorkerID != nil && *session.WorkerID == req.WorkerID {
		return nil
	}
	return errors.NewOwnership("job " + job.ID + " is not claimed by worker " + req.WorkerID)
}

// GrantLiveSessionWrite reveals the RW endpoint for a bounded window. The
// session must be ready with a stored RW endpoint.
func (s *Service) GrantLiveSessionWrite(ctx context.Context, taskRunID, actorUserID string, req *types.GrantWriteRequest) (*types.GrantWriteResponse, error) {
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRunActor(job, actorUserID); err != nil {
		return nil, err
	}

	ttlMinutes := req.TTLMinutes
	if ttlMinutes == 0 {
		ttlMinutes = s.cfg.LiveSessionRWGrantTTLMinutes
	}
	if ttlMinutes < minGrantTTLMinutes {
		ttlMinutes = minGrantTTLMinutes
	}
	if ttlMinutes > maxGrantTTLMinutes {
		ttlMinutes = maxGrantTTLMinutes
	}

	now := s.now().UTC()
	grantedUntil := now.Add(time.Duration(ttlMinutes) * time.Minute)
	session, err := s.store.MutateLiveSession(ctx, taskRunID, func(session *types.TaskRunLiveSession) error {
		if session.Status != types.LiveSessionReady {
			return errors.NewState(errors.CodeInvalidState,
				"live session is "+string(session.Status)+"; write access requires ready")
		}
		if session.AttachRW == nil || *session.AttachRW == "" {
			return errors.NewState(errors.CodeInvalidState,
				"live session has no write endpoint to grant")
		}
		session.RWGrantedUntil = &grantedUntil
		return nil
	})
	if err != nil {
		return nil, err
	}

	actor := strings.TrimSpace(actorUserID)
	if err := s.store.AppendTaskRunControlEvent(ctx, &types.TaskRunControlEvent{
		TaskRunID:   taskRunID,
		Action:      types.ControlActionGrantRW,
		ActorUserID: &actor,
		Detail:      types.JSONMap{"ttlMinutes": ttlMinutes, "grantedUntil": grantedUntil},
	}); err != nil {
		return nil, err
	}
	if err := s.appendRunJournal(ctx, taskRunID, types.EventLevelWarn, "Live session write access granted",
		types.JSONMap{"grantedUntil": grantedUntil}); err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("job_id", taskRunID).
		Str("actor", actor).
		Int("ttl_minutes", ttlMinutes).
		Msg("live session write access granted")
	resp := &types.GrantWriteResponse{
		Session:      session,
		AttachRW:     *session.AttachRW,
		GrantedUntil: grantedUntil,
	}
	if s.cfg.LiveSessionAllowWeb {
		resp.WebRW = session.WebRW
	}
	return resp, nil
}

// RevokeLiveSession unconditionally revokes the session and any in-flight
// write grant.
func (s *Service) RevokeLiveSession(ctx context.Context, taskRunID, actorUserID string) (*types.TaskRunLiveSession, error) {
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRunActor(job, actorUserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session, err := s.store.MutateLiveSession(ctx, taskRunID, func(session *types.TaskRunLiveSession) error {
		session.Status = types.LiveSessionRevoked
		session.RWGrantedUntil = &now
		session.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	actor := strings.TrimSpace(actorUserID)
	if err := s.store.AppendTaskRunControlEvent(ctx, &types.TaskRunControlEvent{
		TaskRunID:   taskRunID,
		Action:      types.ControlActionRevokeSession,
		ActorUserID: &actor,
	}); err != nil {
		return nil, err
	}
	if err := s.appendRunJournal(ctx, taskRunID, types.EventLevelWarn, "Live session revoked", nil); err != nil {
		return nil, err
	}
	s.logger.Warn().
		Str("job_id", taskRunID).
		Str("actor", actor).
		Msg("live session revoked")
	return session, nil
}

// HeartbeatLiveSession refreshes the session's worker heartbeat.
func (s *Service) HeartbeatLiveSession(ctx context.Context, taskRunID, workerID string, policy *types.WorkerPolicy) (*types.TaskRunLiveSession, error) {
	if err := requirePolicyWorker(policy, workerID); err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if job.ClaimedBy == nil || *job.ClaimedBy != workerID {
		return nil, errors.NewOwnership("job " + taskRunID + " is not claimed by worker " + workerID)
	}

	now := s.now().UTC()
	return s.store.MutateLiveSession(ctx, taskRunID, func(session *types.TaskRunLiveSession) error {
		session.LastHeartbeatAt = &now
		return nil
	})
}

// GetLiveSession returns the session for the run's creator or requester.
// RW endpoints never serialize; grant-write is the only path that reveals
// them.
func (s *Service) GetLiveSession(ctx context.Context, taskRunID, actorUserID string) (*types.TaskRunLiveSession, error) {
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRunActor(job, actorUserID); err != nil {
		return nil, err
	}
	return s.store.GetLiveSession(ctx, taskRunID)
}

// appendRunJournal appends one journal event to the run and wakes pollers.
func (s *Service) appendRunJournal(ctx context.Context, jobID string, level types.EventLevel, message string, payload types.JSONMap) error {
	if err := s.store.AppendEvent(ctx, &types.JobEvent{
		JobID:   jobID,
		Level:   level,
		Message: message,
		Payload: payload,
	}); err != nil {
		return err
	}
	s.hub.Publish(jobID)
	return nil
}

func reportLevel(status types.LiveSessionStatus) types.EventLevel {
	if status == types.LiveSessionError {
		return types.EventLevelError
	}
	return types.EventLevelInfo
}

// authorizeRunActor permits only the run's creator or requester.
func authorizeRunActor(job *types.AgentJob, actorUserID string) error {
	actor := strings.TrimSpace(actorUserID)
	if actor == "" {
		return errors.NewJobAuthorization("an authenticated user is required")
	}
	if job.CreatedByUserID != nil && *job.CreatedByUserID == actor {
		return nil
	}
	if job.RequestedByUserID != nil && *job.RequestedByUserID == actor {
		return nil
	}
	return errors.NewJobAuthorization("user " + actor + " cannot manage task run " + job.ID)
}
