package types

import (
	"time"

	"github.com/lib/pq"
)

// ProposalStatus is the review lifecycle of a task proposal
type ProposalStatus string

const (
	ProposalStatusOpen      ProposalStatus = "open"
	ProposalStatusPromoted  ProposalStatus = "promoted"
	ProposalStatusDismissed ProposalStatus = "dismissed"
	ProposalStatusAccepted  ProposalStatus = "accepted"
	ProposalStatusRejected  ProposalStatus = "rejected"
)

// Valid reports whether s is a known proposal status
func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusOpen, ProposalStatusPromoted, ProposalStatusDismissed,
		ProposalStatusAccepted, ProposalStatusRejected:
		return true
	}
	return false
}

// ReviewPriority orders proposals in the reviewer inbox
type ReviewPriority string

const (
	ReviewPriorityLow    ReviewPriority = "low"
	ReviewPriorityNormal ReviewPriority = "normal"
	ReviewPriorityHigh   ReviewPriority = "high"
	ReviewPriorityUrgent ReviewPriority = "urgent"
)

// Valid reports whether p is a known review priority
func (p ReviewPriority) Valid() bool {
	switch p {
	case ReviewPriorityLow, ReviewPriorityNormal, ReviewPriorityHigh, ReviewPriorityUrgent:
		return true
	}
	return false
}

// Rank maps a priority onto a comparable ordinal, higher outranks lower
func (p ReviewPriority) Rank() int {
	switch p {
	case ReviewPriorityLow:
		return 0
	case ReviewPriorityNormal:
		return 1
	case ReviewPriorityHigh:
		return 2
	case ReviewPriorityUrgent:
		return 3
	}
	return -1
}

// OriginSource records which surface created a proposal
type OriginSource string

const (
	OriginSourceQueue        OriginSource = "queue"
	OriginSourceOrchestrator OriginSource = "orchestrator"
	OriginSourceWorkflow     OriginSource = "workflow"
	OriginSourceManual       OriginSource = "manual"
)

// Valid reports whether o is a known origin source
func (o OriginSource) Valid() bool {
	switch o {
	case OriginSourceQueue, OriginSourceOrchestrator, OriginSourceWorkflow, OriginSourceManual:
		return true
	}
	return false
}

// TaskProposal is a reviewer-visible suggestion to enqueue a task later.
// dedup_key is "{repository_lc}:{slugify(title)}"; dedup_hash is its sha256.
type TaskProposal struct {
	ID                     string         `db:"id" json:"id"`
	Status                 ProposalStatus `db:"status" json:"status"`
	Title                  string         `db:"title" json:"title"`
	Summary                string         `db:"summary" json:"summary"`
	Category               string         `db:"category" json:"category"`
	Tags                   pq.StringArray `db:"tags" json:"tags"`
	Repository             string         `db:"repository" json:"repository"`
	DedupKey               string         `db:"dedup_key" json:"dedupKey"`
	DedupHash              string         `db:"dedup_hash" json:"dedupHash"`
	ReviewPriority         ReviewPriority `db:"review_priority" json:"reviewPriority"`
	PriorityOverrideReason *string        `db:"priority_override_reason" json:"priorityOverrideReason,omitempty"`
	TaskCreateRequest      JSONMap        `db:"task_create_request" json:"taskCreateRequest"`
	OriginSource           OriginSource   `db:"origin_source" json:"originSource"`
	OriginID               *string        `db:"origin_id" json:"originId,omitempty"`
	OriginMetadata         JSONMap        `db:"origin_metadata" json:"originMetadata,omitempty"`
	PromotedJobID          *string        `db:"promoted_job_id" json:"promotedJobId,omitempty"`
	PromotedAt             *time.Time     `db:"promoted_at" json:"promotedAt,omitempty"`
	PromotedByUserID       *string        `db:"promoted_by_user_id" json:"promotedByUserId,omitempty"`
	DecisionReason         *string        `db:"decision_reason" json:"decisionReason,omitempty"`
	DecidedAt              *time.Time     `db:"decided_at" json:"decidedAt,omitempty"`
	DecidedByUserID        *string        `db:"decided_by_user_id" json:"decidedByUserId,omitempty"`
	SnoozedUntil           *time.Time     `db:"snoozed_until" json:"snoozedUntil,omitempty"`
	SnoozeHistory          SnoozeHistory  `db:"snooze_history" json:"snoozeHistory,omitempty"`
	CreatedAt              time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updatedAt"`
}

// ProposalNotification audits one best-effort webhook delivery
type ProposalNotification struct {
	ID         string    `db:"id" json:"id"`
	ProposalID string    `db:"proposal_id" json:"proposalId"`
	Category   string    `db:"category" json:"category"`
	WebhookURL string    `db:"webhook_url" json:"webhookUrl"`
	Success    bool      `db:"success" json:"success"`
	Error      *string   `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ManifestRegistryRecord stores one named manifest with hash-keyed versioning
type ManifestRegistryRecord struct {
	ID                string     `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Content           string     `db:"content" json:"content,omitempty"`
	ContentHash       string     `db:"content_hash" json:"contentHash"`
	Version           int        `db:"version" json:"version"`
	LastRunJobID      *string    `db:"last_run_job_id" json:"lastRunJobId,omitempty"`
	LastRunStatus     *string    `db:"last_run_status" json:"lastRunStatus,omitempty"`
	LastRunStartedAt  *time.Time `db:"last_run_started_at" json:"lastRunStartedAt,omitempty"`
	LastRunFinishedAt *time.Time `db:"last_run_finished_at" json:"lastRunFinishedAt,omitempty"`
	StateJSON         JSONMap    `db:"state_json" json:"state,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}
