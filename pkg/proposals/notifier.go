package proposals

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

// notifyCategories lists the categories that fan out to the review webhook.
var notifyCategories = map[string]bool{
	"security": true,
	"tests":    true,
}

// Notifier delivers best-effort webhook notifications for newly created
// proposals and audits every attempt. Delivery failures are recorded, never
// surfaced to the submitter.
type Notifier struct {
	store  storage.Store
	client *resty.Client
	url    string
	logger zerolog.Logger
}

// NewNotifier builds a webhook notifier from config. Returns nil when
// notifications are disabled, which callers treat as "never notify".
func NewNotifier(store storage.Store, cfg *config.Config) *Notifier {
	if !cfg.NotificationsEnabled || cfg.NotificationsWebhookURL == "" {
		return nil
	}
	client := resty.New().SetTimeout(cfg.NotificationsTimeout())
	if cfg.NotificationsAuthorization != "" {
		client.SetHeader("Authorization", cfg.NotificationsAuthorization)
	}
	return &Notifier{
		store:  store,
		client: client,
		url:    cfg.NotificationsWebhookURL,
		logger: log.WithComponent("proposal-notifier"),
	}
}

// Eligible reports whether a proposal in this category is delivered.
func (n *Notifier) Eligible(category string) bool {
	return n != nil && notifyCategories[category]
}

// Deliver posts the proposal payload to the webhook once and records the
// outcome. Safe to run on its own goroutine with a detached context.
func (n *Notifier) Deliver(ctx context.Context, proposal *types.TaskProposal) {
	payload := webhookPayload(proposal)

	var failure string
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	switch {
	case err != nil:
		failure = err.Error()
	case resp.StatusCode() >= 300:
		failure = fmt.Sprintf("webhook returned status %d", resp.StatusCode())
	}

	audit := &types.ProposalNotification{
		ProposalID: proposal.ID,
		Category:   proposal.Category,
		WebhookURL: n.url,
		Success:    failure == "",
	}
	outcome := "success"
	if failure != "" {
		outcome = "failure"
		audit.Error = &failure
		n.logger.Warn().
			Str("proposal_id", proposal.ID).
			Str("category", proposal.Category).
			Str("error", failure).
			Msg("proposal notification failed")
	} else {
		n.logger.Info().
			Str("proposal_id", proposal.ID).
			Str("category", proposal.Category).
			Msg("proposal notification delivered")
	}
	metrics.NotificationsSent.WithLabelValues(outcome).Inc()

	if err := n.store.RecordNotification(ctx, audit); err != nil {
		n.logger.Error().Err(err).
			Str("proposal_id", proposal.ID).
			Msg("failed to record notification audit")
	}
}

// webhookPayload pre-builds the JSON body posted to the webhook. Only
// reviewer-facing fields travel; the task envelope stays server-side.
func webhookPayload(proposal *types.TaskProposal) types.JSONMap {
	return types.JSONMap{
		"event": "proposal.created",
		"proposal": map[string]any{
			"id":             proposal.ID,
			"title":          proposal.Title,
			"summary":        proposal.Summary,
			"category":       proposal.Category,
			"tags":           []string(proposal.Tags),
			"repository":     proposal.Repository,
			"reviewPriority": string(proposal.ReviewPriority),
			"createdAt":      proposal.CreatedAt,
		},
	}
}
