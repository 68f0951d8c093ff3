package queue

import (
	"context"
	"strings"
	"time"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// Long-poll waits are bounded so a stuck client cannot pin a handler.
const maxEventWaitSeconds = 60

// AppendJobEvent appends one journal entry and wakes long-pollers.
func (s *Service) AppendJobEvent(ctx context.Context, jobID string, req *types.AppendEventRequest) (*types.JobEvent, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "message is required")
	}
	level := req.Level
	if level == "" {
		level = types.EventLevelInfo
	}
	if !level.Valid() {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"level %q must be one of info, warn, error", req.Level)
	}

	event := &types.JobEvent{
		JobID:   jobID,
		Level:   level,
		Message: message,
		Payload: req.Payload,
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	s.hub.Publish(jobID)
	return event, nil
}

// ListJobEvents pages a job's journal with the composite (created_at, id)
// cursor. With waitSeconds > 0 and an empty first page, the call blocks on
// the hub until new events land or the wait expires, then reads once more.
func (s *Service) ListJobEvents(ctx context.Context, jobID string, q types.ListEventsQuery, waitSeconds int) ([]*types.JobEvent, error) {
	if q.Limit < 1 || q.Limit > MaxEventListLimit {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"limit must be between 1 and %d; got %d", MaxEventListLimit, q.Limit)
	}
	if q.AfterEventID != nil && q.After == nil {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "afterEventId requires after")
	}
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	items, err := s.store.ListEvents(ctx, jobID, q)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 || waitSeconds <= 0 {
		return items, nil
	}

	if waitSeconds > maxEventWaitSeconds {
		waitSeconds = maxEventWaitSeconds
	}
	if !s.hub.Wait(ctx, jobID, time.Duration(waitSeconds)*time.Second) {
		return items, nil
	}
	return s.store.ListEvents(ctx, jobID, q)
}
