package queue

import (
	"context"
	"strings"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// GetWorkerPause returns the pause singleton snapshot.
func (s *Service) GetWorkerPause(ctx context.Context) (*types.WorkerPauseView, error) {
	state, err := s.store.GetPauseState(ctx)
	if err != nil {
		return nil, err
	}
	view := pauseView(state)
	return &view, nil
}

// SetWorkerPause toggles the pause singleton. Pausing requires a reason;
// resuming clears mode and reason. Every mutation bumps the version and
// appends exactly one control event under the actor's identity.
func (s *Service) SetWorkerPause(ctx context.Context, actorUserID string, req *types.WorkerPauseRequest) (*types.WorkerPauseView, error) {
	actor := strings.TrimSpace(actorUserID)
	if actor == "" {
		return nil, errors.NewValidation(errors.CodeWorkerPauseActorMissing,
			"an authenticated actor is required to change worker pause state")
	}

	if req.Paused {
		return s.pauseWorkers(ctx, actor, req)
	}
	return s.resumeWorkers(ctx, actor, req)
}

func (s *Service) pauseWorkers(ctx context.Context, actor string, req *types.WorkerPauseRequest) (*types.WorkerPauseView, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, errors.NewValidation(errors.CodeWorkerPauseInvalidRequest,
			"a reason is required to pause workers")
	}
	mode := types.PauseModeDrain
	if req.Mode != nil {
		if !req.Mode.Valid() {
			return nil, errors.NewValidationf(errors.CodeWorkerPauseInvalidRequest,
				"mode %q must be drain or quiesce", *req.Mode)
		}
		mode = *req.Mode
	}

	state, err := s.store.MutatePauseState(ctx, "pause", &actor, func(state *types.SystemWorkerPauseState) error {
		if state.Paused {
			return errors.NewState(errors.CodeWorkerPauseInvalidRequest, "workers are already paused")
		}
		now := s.now().UTC()
		state.Paused = true
		state.Mode = &mode
		state.Reason = &reason
		state.RequestedByUserID = &actor
		state.RequestedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("actor", actor).
		Str("mode", string(mode)).
		Int64("version", state.Version).
		Msg("workers paused")
	view := pauseView(state)
	return &view, nil
}

func (s *Service) resumeWorkers(ctx context.Context, actor string, req *types.WorkerPauseRequest) (*types.WorkerPauseView, error) {
	action := "resume"
	if req.ForceResume {
		action = "force_resume"
	}

	state, err := s.store.MutatePauseState(ctx, action, &actor, func(state *types.SystemWorkerPauseState) error {
		if !state.Paused && !req.ForceResume {
			return errors.NewState(errors.CodeWorkerPauseInvalidRequest, "workers are not paused")
		}
		state.Paused = false
		state.Mode = nil
		state.Reason = nil
		state.RequestedByUserID = nil
		state.RequestedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("actor", actor).
		Int64("version", state.Version).
		Msg("workers resumed")
	view := pauseView(state)
	return &view, nil
}

func pauseView(state *types.SystemWorkerPauseState) types.WorkerPauseView {
	return types.WorkerPauseView{
		Paused:      state.Paused,
		Mode:        state.Mode,
		Reason:      state.Reason,
		Version:     state.Version,
		RequestedAt: state.RequestedAt,
	}
}
