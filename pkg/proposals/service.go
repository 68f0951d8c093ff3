// Package proposals implements the task proposal review workflow:
// reviewer-visible task suggestions with deterministic dedup keys, a CI
// escalation policy, secret scrubbing, snooze bookkeeping, and promotion of
// open proposals into queue jobs.
package proposals

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/contract"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/queue"
	"github.com/moonmind/moonmind/pkg/security"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

const (
	MaxTitleLen    = 256
	MaxSummaryLen  = 10000
	MaxCategoryLen = 64
	MaxTagLen      = 64

	// MaxListLimit bounds one reviewer-inbox page.
	MaxListLimit = 200

	// maxSimilar caps the duplicate lookup returned alongside a create.
	maxSimilar = 10

	// maxSnoozeHistory bounds the per-proposal snooze trail.
	maxSnoozeHistory = 20
)

// Service owns proposal lifecycle and review policy. Row locking and the
// promoted-job uniqueness rule live in storage.Store; this layer owns
// validation, dedup computation, scrubbing, and the CI special case.
type Service struct {
	store    storage.Store
	queue    *queue.Service
	cfg      *config.Config
	tasks    *contract.Normalizer
	redactor *security.Redactor
	notifier *Notifier
	logger   zerolog.Logger

	now func() time.Time
}

// NewService wires the proposal service. A nil redactor falls back to the
// default pattern set; a nil notifier disables webhook delivery.
func NewService(store storage.Store, queueSvc *queue.Service, cfg *config.Config,
	notifier *Notifier, redactor *security.Redactor) *Service {
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return &Service{
		store:    store,
		queue:    queueSvc,
		cfg:      cfg,
		tasks:    contract.NewNormalizer(cfg.DefaultRuntime, cfg.DefaultPublishMode, contract.DefaultSkillID),
		redactor: redactor,
		notifier: notifier,
		logger:   log.WithComponent("proposals"),
		now:      time.Now,
	}
}

// Create validates and stores a proposal, returning it together with any
// open proposals sharing its dedup hash. Webhook delivery for notify-worthy
// categories happens on a detached goroutine after the row is committed.
func (s *Service) Create(ctx context.Context, req *types.CreateProposalRequest) (*types.CreateProposalResponse, error) {
	draft, err := s.buildDraft(req)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateProposal(ctx, draft); err != nil {
		return nil, err
	}

	similar, err := s.store.FindOpenProposalsByDedupHash(ctx, draft.DedupHash, draft.ID, maxSimilar)
	if err != nil {
		// The proposal is committed; failing the request now would invite a
		// duplicate resubmission.
		s.logger.Warn().Err(err).Str("proposal_id", draft.ID).Msg("similar-proposal lookup failed")
		similar = nil
	}

	s.logger.Info().
		Str("proposal_id", draft.ID).
		Str("category", draft.Category).
		Str("repository", draft.Repository).
		Int("similar", len(similar)).
		Msg("proposal created")

	if s.notifier.Eligible(draft.Category) {
		go s.notifier.Deliver(context.Background(), draft)
	}
	return &types.CreateProposalResponse{Proposal: draft, Similar: similar}, nil
}

// buildDraft runs the whole create pipeline short of persistence: field
// validation, envelope normalization, CI policy, dedup keys, scrubbing.
func (s *Service) buildDraft(req *types.CreateProposalRequest) (*types.TaskProposal, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.NewValidation(errors.CodeInvalidProposal, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return nil, errors.NewValidationf(errors.CodeInvalidProposal,
			"title must be at most %d characters", MaxTitleLen)
	}
	summary := strings.TrimSpace(req.Summary)
	if utf8.RuneCountInString(summary) > MaxSummaryLen {
		return nil, errors.NewValidationf(errors.CodeInvalidProposal,
			"summary must be at most %d characters", MaxSummaryLen)
	}
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if utf8.RuneCountInString(category) > MaxCategoryLen {
		return nil, errors.NewValidationf(errors.CodeInvalidProposal,
			"category must be at most %d characters", MaxCategoryLen)
	}
	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}

	priority := req.ReviewPriority
	if priority == "" {
		priority = types.ReviewPriorityNormal
	}
	if !priority.Valid() {
		return nil, errors.NewValidationf(errors.CodeInvalidProposal,
			"review priority %q is not recognized", priority)
	}
	origin := req.OriginSource
	if origin == "" {
		origin = types.OriginSourceManual
	}
	if !origin.Valid() {
		return nil, errors.NewValidationf(errors.CodeInvalidProposal,
			"origin source %q is not recognized", origin)
	}

	canonical, envelope, err := s.tasks.Normalize(types.JobTypeTask, req.TaskCreateRequest)
	if err != nil {
		return nil, err
	}

	draft := &types.TaskProposal{
		Status:            types.ProposalStatusOpen,
		Title:             title,
		Summary:           summary,
		Category:          category,
		Tags:              tags,
		Repository:        canonical.Repository,
		ReviewPriority:    priority,
		TaskCreateRequest: envelope,
		OriginSource:      origin,
		OriginID:          req.OriginID,
		OriginMetadata:    req.OriginMetadata,
	}

	if s.isCIRepository(canonical.Repository) {
		if err := applyCIPolicy(draft); err != nil {
			return nil, err
		}
	}

	// Dedup derives from the pre-scrub title so equal submissions collide
	// even when redaction rewrites them.
	draft.DedupKey = dedupKey(draft.Repository, title)
	draft.DedupHash = dedupHash(draft.DedupKey)

	draft.Title = s.redactor.String(draft.Title)
	draft.Summary = s.redactor.String(draft.Summary)
	draft.Tags = s.redactor.StringSlice(draft.Tags)
	draft.TaskCreateRequest = s.redactor.Document(draft.TaskCreateRequest)
	return draft, nil
}

func (s *Service) isCIRepository(repository string) bool {
	return s.cfg.MoonMindCIRepository != "" &&
		strings.EqualFold(repository, s.cfg.MoonMindCIRepository)
}

// normalizeTags lowercases, trims, and deduplicates preserving first
// occurrence, dropping empties.
func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLen {
			return nil, errors.NewValidationf(errors.CodeInvalidProposal,
				"tag %q exceeds %d characters", tag, MaxTagLen)
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags, nil
}

// Get fetches one proposal by id.
func (s *Service) Get(ctx context.Context, id string) (*types.TaskProposal, error) {
	return s.store.GetProposal(ctx, id)
}

// List pages proposals for the reviewer inbox. Limits outside [1,200] are
// rejected; HTTP adapters apply their own defaults before calling in.
func (s *Service) List(ctx context.Context, filter types.ProposalListFilter) ([]*types.TaskProposal, string, error) {
	if filter.Limit < 1 || filter.Limit > MaxListLimit {
		return nil, "", errors.NewValidationf(errors.CodeInvalidProposal,
			"limit must be between 1 and %d; got %d", MaxListLimit, filter.Limit)
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, "", errors.NewValidationf(errors.CodeInvalidProposal,
			"status %q is not recognized", *filter.Status)
	}
	if filter.OriginSource != nil && !filter.OriginSource.Valid() {
		return nil, "", errors.NewValidationf(errors.CodeInvalidProposal,
			"origin source %q is not recognized", *filter.OriginSource)
	}
	return s.store.ListProposals(ctx, filter)
}

// Promote turns an open proposal into a queued task job atomically. An
// already-promoted proposal whose job still exists returns both unchanged.
// The envelope is re-normalized at promotion time; drift and repository
// changes are validation errors.
func (s *Service) Promote(ctx context.Context, id string, req *types.PromoteProposalRequest, userID *string) (*types.PromoteProposalResponse, error) {
	created := false
	build := func(p *types.TaskProposal) (*types.AgentJob, []*types.JobEvent, error) {
		envelope := p.TaskCreateRequest
		if len(req.TaskCreateRequestOverride) > 0 {
			envelope = req.TaskCreateRequestOverride
		}
		jobReq := &types.CreateJobRequest{
			Type:            types.JobTypeTask,
			Payload:         envelope,
			Priority:        req.Priority,
			MaxAttempts:     req.MaxAttempts,
			CreatedByUserID: userID,
		}
		job, events, err := s.queue.PrepareJob(ctx, jobReq)
		if err != nil {
			return nil, nil, errors.NewValidationf(errors.CodeInvalidProposal,
				"task envelope failed re-normalization: %s", errors.MessageOf(err))
		}
		if repo := job.Payload.String("repository"); !strings.EqualFold(repo, p.Repository) {
			return nil, nil, errors.NewValidationf(errors.CodeInvalidProposal,
				"promotion may not change repository: proposal has %q, envelope has %q",
				p.Repository, repo)
		}

		p.PromotedByUserID = userID
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			p.DecisionReason = &reason
		}
		created = true
		return job, events, nil
	}

	proposal, job, err := s.store.PromoteProposal(ctx, id, build)
	if err != nil {
		return nil, err
	}
	if created {
		s.queue.AnnounceJob(job)
		s.logger.Info().
			Str("proposal_id", proposal.ID).
			Str("job_id", job.ID).
			Msg("proposal promoted")
	}
	return &types.PromoteProposalResponse{Proposal: proposal, Job: job}, nil
}

// Dismiss closes an open proposal with an optional reason.
func (s *Service) Dismiss(ctx context.Context, id string, req *types.DecideProposalRequest, userID *string) (*types.TaskProposal, error) {
	return s.store.MutateProposal(ctx, id, func(p *types.TaskProposal) error {
		if err := requireOpen(p, "dismissed"); err != nil {
			return err
		}
		now := s.now().UTC()
		p.Status = types.ProposalStatusDismissed
		p.DecidedAt = &now
		p.DecidedByUserID = userID
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			reason = s.redactor.String(reason)
			p.DecisionReason = &reason
		}
		return nil
	})
}

// Snooze hides an open proposal until a strictly future instant and appends
// to the bounded snooze trail.
func (s *Service) Snooze(ctx context.Context, id string, req *types.SnoozeProposalRequest, userID *string) (*types.TaskProposal, error) {
	until := req.Until.UTC()
	if !until.After(s.now().UTC()) {
		return nil, errors.NewValidation(errors.CodeInvalidProposal,
			"snooze until must be in the future")
	}
	return s.store.MutateProposal(ctx, id, func(p *types.TaskProposal) error {
		if err := requireOpen(p, "snoozed"); err != nil {
			return err
		}
		p.SnoozedUntil = &until
		entry := types.SnoozeEntry{
			Until:  until,
			Reason: s.redactor.String(strings.TrimSpace(req.Reason)),
			At:     s.now().UTC(),
		}
		if userID != nil {
			entry.Actor = *userID
		}
		p.SnoozeHistory = append(p.SnoozeHistory, entry)
		if len(p.SnoozeHistory) > maxSnoozeHistory {
			p.SnoozeHistory = p.SnoozeHistory[len(p.SnoozeHistory)-maxSnoozeHistory:]
		}
		return nil
	})
}

// Unsnooze clears a snooze early. The history keeps its record.
func (s *Service) Unsnooze(ctx context.Context, id string) (*types.TaskProposal, error) {
	return s.store.MutateProposal(ctx, id, func(p *types.TaskProposal) error {
		if err := requireOpen(p, "unsnoozed"); err != nil {
			return err
		}
		p.SnoozedUntil = nil
		return nil
	})
}

// UpdatePriority re-ranks an open proposal.
func (s *Service) UpdatePriority(ctx context.Context, id string, req *types.UpdateProposalPriorityRequest) (*types.TaskProposal, error) {
	if !req.Priority.Valid() {
		return nil, errors.NewValidationf(errors.CodeInvalidProposal,
			"review priority %q is not recognized", req.Priority)
	}
	return s.store.MutateProposal(ctx, id, func(p *types.TaskProposal) error {
		if err := requireOpen(p, "reprioritized"); err != nil {
			return err
		}
		p.ReviewPriority = req.Priority
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			reason = s.redactor.String(reason)
			p.PriorityOverrideReason = &reason
		}
		return nil
	})
}

func requireOpen(p *types.TaskProposal, verb string) error {
	if p.Status != types.ProposalStatusOpen {
		return errors.NewState(errors.CodeInvalidState,
			fmt.Sprintf("proposal %s is %s and cannot be %s", p.ID, p.Status, verb))
	}
	return nil
}
