package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const proposalColumns = `id, status, title, summary, category, tags, repository,
	dedup_key, dedup_hash, review_priority, priority_override_reason,
	task_create_request, origin_source, origin_id, origin_metadata,
	promoted_job_id, promoted_at, promoted_by_user_id, decision_reason,
	decided_at, decided_by_user_id, snoozed_until, snooze_history,
	created_at, updated_at`

// CreateProposal persists a new reviewer-inbox entry
func (s *Postgres) CreateProposal(ctx context.Context, proposal *types.TaskProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = types.ProposalStatusOpen
	}
	if proposal.ReviewPriority == "" {
		proposal.ReviewPriority = types.ReviewPriorityNormal
	}
	now := s.now().UTC()
	proposal.CreatedAt = now
	proposal.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_proposals (id, status, title, summary, category, tags,
		   repository, dedup_key, dedup_hash, review_priority,
		   priority_override_reason, task_create_request, origin_source,
		   origin_id, origin_metadata, snoozed_until, snooze_history,
		   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		proposal.ID, proposal.Status, proposal.Title, proposal.Summary,
		proposal.Category, proposal.Tags, proposal.Repository,
		proposal.DedupKey, proposal.DedupHash, proposal.ReviewPriority,
		proposal.PriorityOverrideReason, proposal.TaskCreateRequest,
		proposal.OriginSource, proposal.OriginID, proposal.OriginMetadata,
		proposal.SnoozedUntil, proposal.SnoozeHistory,
		proposal.CreatedAt, proposal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	return nil
}

// GetProposal fetches one proposal by id
func (s *Postgres) GetProposal(ctx context.Context, id string) (*types.TaskProposal, error) {
	proposal := &types.TaskProposal{}
	err := s.db.GetContext(ctx, proposal,
		`SELECT `+proposalColumns+` FROM task_proposals WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NewNotFound(errors.CodeProposalNotFound,
				fmt.Sprintf("proposal %s not found", id))
		}
		return nil, fmt.Errorf("failed to get proposal %s: %w", id, err)
	}
	return proposal, nil
}

func (s *Postgres) getProposalForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*types.TaskProposal, error) {
	proposal := &types.TaskProposal{}
	err := tx.GetContext(ctx, proposal,
		`SELECT `+proposalColumns+` FROM task_proposals WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NewNotFound(errors.CodeProposalNotFound,
				fmt.Sprintf("proposal %s not found", id))
		}
		return nil, fmt.Errorf("failed to lock proposal %s: %w", id, err)
	}
	return proposal, nil
}

// proposalCursor encodes "{created_at RFC3339Nano}|{id}" for descending pages
func proposalCursor(p *types.TaskProposal) string {
	return p.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + p.ID
}

func parseProposalCursor(cursor string) (time.Time, string, error) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", errors.NewValidation(errors.CodeInvalidProposal,
			"malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", errors.NewValidation(errors.CodeInvalidProposal,
			"malformed cursor timestamp")
	}
	return ts, parts[1], nil
}

// ListProposals pages proposals newest first. Actively snoozed entries are
// hidden unless the filter opts in, and lapsed snoozes are cleared before the
// page is read.
func (s *Postgres) ListProposals(ctx context.Context, filter types.ProposalListFilter) ([]*types.TaskProposal, string, error) {
	if n, err := s.ClearExpiredSnoozes(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear expired snoozes")
	} else if n > 0 {
		s.logger.Debug().Int("count", n).Msg("cleared expired proposal snoozes")
	}

	now := s.now().UTC()
	builder := s.sb.Select(proposalColumns).
		From("task_proposals").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit + 1))

	if filter.Status != nil {
		builder = builder.Where(sq.Eq{"status": *filter.Status})
	}
	if filter.Category != nil {
		builder = builder.Where(sq.Eq{"category": *filter.Category})
	}
	if filter.Repository != nil {
		builder = builder.Where(sq.Eq{"repository": *filter.Repository})
	}
	if filter.OriginSource != nil {
		builder = builder.Where(sq.Eq{"origin_source": *filter.OriginSource})
	}
	switch {
	case filter.OnlySnoozed:
		builder = builder.Where(sq.Expr("snoozed_until > ?", now))
	case !filter.IncludeSnoozed:
		builder = builder.Where(sq.Expr("(snoozed_until IS NULL OR snoozed_until <= ?)", now))
	}
	if filter.Cursor != "" {
		ts, id, err := parseProposalCursor(filter.Cursor)
		if err != nil {
			return nil, "", err
		}
		builder = builder.Where(sq.Expr(
			"(created_at < ? OR (created_at = ? AND id < ?))", ts, ts, id))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build proposal list query: %w", err)
	}
	proposals := []*types.TaskProposal{}
	if err := s.db.SelectContext(ctx, &proposals, query, args...); err != nil {
		return nil, "", fmt.Errorf("failed to list proposals: %w", err)
	}

	nextCursor := ""
	if len(proposals) > filter.Limit {
		proposals = proposals[:filter.Limit]
		nextCursor = proposalCursor(proposals[len(proposals)-1])
	}
	return proposals, nextCursor, nil
}

// FindOpenProposalsByDedupHash returns open proposals sharing a dedup hash,
// used for duplicate detection at submission time
func (s *Postgres) FindOpenProposalsByDedupHash(ctx context.Context, dedupHash, excludeID string, limit int) ([]*types.TaskProposal, error) {
	builder := s.sb.Select(proposalColumns).
		From("task_proposals").
		Where(sq.Eq{"dedup_hash": dedupHash}).
		Where(sq.Eq{"status": types.ProposalStatusOpen}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	if excludeID != "" {
		builder = builder.Where(sq.NotEq{"id": excludeID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build dedup query: %w", err)
	}
	proposals := []*types.TaskProposal{}
	if err := s.db.SelectContext(ctx, &proposals, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find proposals by dedup hash: %w", err)
	}
	return proposals, nil
}

// MutateProposal applies fn to the locked proposal row and writes it back
func (s *Postgres) MutateProposal(ctx context.Context, id string, fn func(*types.TaskProposal) error) (*types.TaskProposal, error) {
	var proposal *types.TaskProposal
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		proposal, err = s.getProposalForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(proposal); err != nil {
			return err
		}
		proposal.UpdatedAt = s.now().UTC()
		return s.updateProposalTx(ctx, tx, proposal)
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// PromoteProposal turns an open proposal into a queued job atomically. A
// proposal already promoted returns its existing job; the partial unique
// index on promoted_job_id keeps the mapping one-to-one.
func (s *Postgres) PromoteProposal(ctx context.Context, id string, build func(*types.TaskProposal) (*types.AgentJob, []*types.JobEvent, error)) (*types.TaskProposal, *types.AgentJob, error) {
	var proposal *types.TaskProposal
	var job *types.AgentJob
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		proposal, err = s.getProposalForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if proposal.Status == types.ProposalStatusPromoted && proposal.PromotedJobID != nil {
			job = &types.AgentJob{}
			err := tx.GetContext(ctx, job,
				`SELECT `+jobColumns+` FROM agent_jobs WHERE id = $1`, *proposal.PromotedJobID)
			if err != nil {
				return fmt.Errorf("failed to load promoted job %s: %w", *proposal.PromotedJobID, err)
			}
			return nil
		}
		if proposal.Status != types.ProposalStatusOpen {
			return errors.NewState(errors.CodeInvalidState,
				fmt.Sprintf("proposal %s is %s and cannot be promoted", id, proposal.Status))
		}

		var events []*types.JobEvent
		job, events, err = build(proposal)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if job.Status == "" {
			job.Status = types.JobStatusQueued
		}
		if job.Attempt == 0 {
			job.Attempt = 1
		}
		job.CreatedAt = now
		job.UpdatedAt = now
		if err := s.insertJobTx(ctx, tx, job, events); err != nil {
			return err
		}

		proposal.Status = types.ProposalStatusPromoted
		proposal.PromotedJobID = &job.ID
		proposal.PromotedAt = &now
		proposal.SnoozedUntil = nil
		proposal.UpdatedAt = now
		return s.updateProposalTx(ctx, tx, proposal)
	})
	if err != nil {
		return nil, nil, err
	}
	return proposal, job, nil
}

func (s *Postgres) updateProposalTx(ctx context.Context, tx *sqlx.Tx, p *types.TaskProposal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE task_proposals SET
		   status = $2, title = $3, summary = $4, category = $5, tags = $6,
		   repository = $7, dedup_key = $8, dedup_hash = $9,
		   review_priority = $10, priority_override_reason = $11,
		   task_create_request = $12, origin_metadata = $13,
		   promoted_job_id = $14, promoted_at = $15, promoted_by_user_id = $16,
		   decision_reason = $17, decided_at = $18, decided_by_user_id = $19,
		   snoozed_until = $20, snooze_history = $21, updated_at = $22
		 WHERE id = $1`,
		p.ID, p.Status, p.Title, p.Summary, p.Category, p.Tags,
		p.Repository, p.DedupKey, p.DedupHash,
		p.ReviewPriority, p.PriorityOverrideReason,
		p.TaskCreateRequest, p.OriginMetadata,
		p.PromotedJobID, p.PromotedAt, p.PromotedByUserID,
		p.DecisionReason, p.DecidedAt, p.DecidedByUserID,
		p.SnoozedUntil, p.SnoozeHistory, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update proposal %s: %w", p.ID, err)
	}
	return nil
}

// ClearExpiredSnoozes wakes proposals whose snooze window has lapsed
func (s *Postgres) ClearExpiredSnoozes(ctx context.Context) (int, error) {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_proposals SET snoozed_until = NULL, updated_at = $1
		 WHERE snoozed_until IS NOT NULL AND snoozed_until <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired snoozes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared snoozes: %w", err)
	}
	return int(affected), nil
}

// RecordNotification audits one webhook delivery attempt
func (s *Postgres) RecordNotification(ctx context.Context, notification *types.ProposalNotification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposal_notifications (id, proposal_id, category, webhook_url, success, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		notification.ID, notification.ProposalID, notification.Category,
		notification.WebhookURL, notification.Success, notification.Error,
		notification.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}
