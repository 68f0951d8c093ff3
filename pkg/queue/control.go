package queue

import (
	"context"
	"strings"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const maxOperatorMessageChars = 4000

// ApplyControlAction writes pause/resume/takeover intent into the job's
// liveControl payload block. Workers observe the block on every heartbeat
// and cooperate; nothing is forced from this side.
func (s *Service) ApplyControlAction(ctx context.Context, taskRunID, actorUserID string, req *types.ControlActionRequest) (*types.LiveControl, error) {
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRunActor(job, actorUserID); err != nil {
		return nil, err
	}

	control := liveControlFromPayload(job.Payload)
	switch req.Action {
	case types.ControlActionPause:
		control.Paused = true
	case types.ControlActionResume:
		control.Paused = false
	case types.ControlActionTakeover:
		control.Takeover = true
	default:
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"action %q must be one of pause, resume, takeover", req.Action)
	}
	control.LastAction = string(req.Action)
	control.UpdatedAt = s.now().UTC()

	if err := s.store.SetJobLiveControl(ctx, taskRunID, control); err != nil {
		return nil, err
	}

	actor := strings.TrimSpace(actorUserID)
	reason := strings.TrimSpace(req.Reason)
	detail := types.JSONMap{}
	if reason != "" {
		detail["reason"] = reason
	}
	if err := s.store.AppendTaskRunControlEvent(ctx, &types.TaskRunControlEvent{
		TaskRunID:   taskRunID,
		Action:      req.Action,
		ActorUserID: &actor,
		Detail:      detail,
	}); err != nil {
		return nil, err
	}

	payload := types.JSONMap{"action": string(req.Action)}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := s.appendRunJournal(ctx, taskRunID, types.EventLevelWarn, "Operator control action", payload); err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("job_id", taskRunID).
		Str("actor", actor).
		Str("action", string(req.Action)).
		Msg("control action applied")
	return &control, nil
}

// SendOperatorMessage appends an operator note to the run's control trail
// and journal. Messages are trimmed and bounded.
func (s *Service) SendOperatorMessage(ctx context.Context, taskRunID, actorUserID string, req *types.OperatorMessageRequest) (*types.JobEvent, error) {
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRunActor(job, actorUserID); err != nil {
		return nil, err
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "message is required")
	}
	if len(message) > maxOperatorMessageChars {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"message exceeds %d characters", maxOperatorMessageChars)
	}

	actor := strings.TrimSpace(actorUserID)
	if err := s.store.AppendTaskRunControlEvent(ctx, &types.TaskRunControlEvent{
		TaskRunID:   taskRunID,
		Action:      types.ControlActionSendMessage,
		ActorUserID: &actor,
		Detail:      types.JSONMap{"message": message},
	}); err != nil {
		return nil, err
	}

	event := &types.JobEvent{
		JobID:   taskRunID,
		Level:   types.EventLevelWarn,
		Message: "Operator message",
		Payload: types.JSONMap{"message": message, "actor": actor},
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	s.hub.Publish(taskRunID)
	return event, nil
}

// ListTaskRunControlEvents returns the operator audit trail, newest first.
func (s *Service) ListTaskRunControlEvents(ctx context.Context, taskRunID, actorUserID string, limit int) ([]*types.TaskRunControlEvent, error) {
	if limit < 1 || limit > MaxJobListLimit {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"limit must be between 1 and %d; got %d", MaxJobListLimit, limit)
	}
	job, err := s.store.GetJob(ctx, taskRunID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRunActor(job, actorUserID); err != nil {
		return nil, err
	}
	return s.store.ListTaskRunControlEvents(ctx, taskRunID, limit)
}

// liveControlFromPayload reads the current liveControl block, zero-valued
// when absent.
func liveControlFromPayload(payload types.JSONMap) types.LiveControl {
	block := payload.Map("liveControl")
	if block == nil {
		return types.LiveControl{}
	}
	return types.LiveControl{
		Paused:     block.Bool("paused"),
		Takeover:   block.Bool("takeover"),
		LastAction: block.String("lastAction"),
	}
}
