package queue

import (
	"context"
	"strings"
	"time"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const (
	maxTelemetryWindowHours = 720

	publishStage = "moonmind.task.publish"
)

// GetMigrationTelemetry aggregates recent queue activity for the legacy
// migration dashboard: per-type volumes, legacy submission counts,
// failure-stage classification, and publish outcome rates.
func (s *Service) GetMigrationTelemetry(ctx context.Context, windowHours, limit int) (*types.MigrationTelemetry, error) {
	if windowHours < 1 || windowHours > maxTelemetryWindowHours {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"windowHours must be between 1 and %d; got %d", maxTelemetryWindowHours, windowHours)
	}
	if limit < 1 || limit > MaxTelemetryLimit {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"limit must be between 1 and %d; got %d", MaxTelemetryLimit, limit)
	}

	now := s.now().UTC()
	since := now.Add(-time.Duration(windowHours) * time.Hour)
	jobs, _, err := s.store.ListJobsSince(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	jobIDs := make([]string, 0, len(jobs))
	for _, job := range jobs {
		jobIDs = append(jobIDs, job.ID)
	}
	events, eventsTruncated, err := s.store.ListEventsForJobs(ctx, jobIDs, limit)
	if err != nil {
		return nil, err
	}
	eventsByJob := make(map[string][]*types.JobEvent, len(jobs))
	for _, event := range events {
		eventsByJob[event.JobID] = append(eventsByJob[event.JobID], event)
	}

	summary := &types.MigrationTelemetry{
		WindowHours:     windowHours,
		GeneratedAt:     now,
		TotalJobs:       len(jobs),
		ByType:          make(map[string]types.TypeTelemetry),
		FailureStages:   make(map[string]int),
		EventsTruncated: eventsTruncated,
	}

	waitSums := make(map[string]time.Duration)
	waitCounts := make(map[string]int)

	for _, job := range jobs {
		typeKey := string(job.Type)
		slice := summary.ByType[typeKey]
		if slice.ByStatus == nil {
			slice.ByStatus = make(map[string]int)
		}
		slice.Total++
		slice.ByStatus[string(job.Status)]++
		if job.Type.Legacy() {
			slice.Legacy++
			summary.LegacyJobs++
		}
		if job.StartedAt != nil {
			waitSums[typeKey] += job.StartedAt.Sub(job.CreatedAt)
			waitCounts[typeKey]++
		}
		summary.ByType[typeKey] = slice

		jobEvents := eventsByJob[job.ID]
		if queuedWithRuntimeRewrite(jobEvents) {
			summary.LegacyRuntimeRewrites++
		}
		if job.Status == types.JobStatusFailed || job.Status == types.JobStatusDeadLetter {
			summary.FailureStages[classifyFailureStage(jobEvents)]++
		}
		s.countPublishOutcome(job, jobEvents, &summary.PublishOutcomes)
	}

	for typeKey, slice := range summary.ByType {
		if n := waitCounts[typeKey]; n > 0 {
			slice.AvgWaitMS = waitSums[typeKey].Milliseconds() / int64(n)
			summary.ByType[typeKey] = slice
		}
	}
	if summary.PublishOutcomes.Requested > 0 {
		summary.PublishOutcomes.PublishedRate =
			float64(summary.PublishOutcomes.Published) / float64(summary.PublishOutcomes.Requested)
	}
	return summary, nil
}

// queuedWithRuntimeRewrite reports whether the submission event recorded a
// universal-runtime rewrite.
func queuedWithRuntimeRewrite(events []*types.JobEvent) bool {
	for _, event := range events {
		if event.Payload != nil && event.Payload.Bool("runtimeRewritten") {
			return true
		}
	}
	return false
}

// classifyFailureStage maps the last stage marker a worker reported to one
// of prepare, execute, publish, or unknown.
func classifyFailureStage(events []*types.JobEvent) string {
	stage := ""
	for _, event := range events {
		if event.Payload == nil {
			continue
		}
		if v := event.Payload.String("stage"); v != "" {
			stage = v
		}
	}
	switch {
	case strings.Contains(stage, "prepare"):
		return "prepare"
	case strings.Contains(stage, "execute"):
		return "execute"
	case strings.Contains(stage, "publish"):
		return "publish"
	default:
		return "unknown"
	}
}

// countPublishOutcome tallies publish results for task-family jobs whose
// stage plan includes a publish stage.
func (s *Service) countPublishOutcome(job *types.AgentJob, events []*types.JobEvent, out *types.PublishOutcomes) {
	if job.Type != types.JobTypeTask && !job.Type.Legacy() {
		return
	}
	requested := false
	for _, stage := range job.Payload.StringSlice("stagePlan") {
		if stage == publishStage {
			requested = true
			break
		}
	}
	if !requested {
		return
	}
	out.Requested++

	outcome := ""
	for _, event := range events {
		if event.Payload == nil {
			continue
		}
		if v := event.Payload.String("publishOutcome"); v != "" {
			outcome = v
		}
	}
	switch outcome {
	case "published":
		out.Published++
	case "skipped":
		out.Skipped++
	case "failed":
		out.Failed++
	default:
		out.Unknown++
	}
}
