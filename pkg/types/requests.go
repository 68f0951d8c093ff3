package types

import "time"

// CreateJobRequest is the producer-facing enqueue envelope
type CreateJobRequest struct {
	Type              JobType `json:"type" binding:"required"`
	Priority          *int    `json:"priority,omitempty"`
	Payload           JSONMap `json:"payload" binding:"required"`
	AffinityKey       *string `json:"affinityKey,omitempty"`
	MaxAttempts       *int    `json:"maxAttempts,omitempty"`
	CreatedByUserID   *string `json:"-"`
	RequestedByUserID *string `json:"requestedByUserId,omitempty"`
}

// ClaimRequest is the worker-facing claim envelope
type ClaimRequest struct {
	WorkerID           string   `json:"workerId" binding:"required"`
	LeaseSeconds       int      `json:"leaseSeconds" binding:"required"`
	AllowedTypes       []string `json:"allowedTypes,omitempty"`
	WorkerCapabilities []string `json:"workerCapabilities,omitempty"`
}

// ClaimResponse carries the claimed job (nil when none eligible) plus the
// pause snapshot so idle workers still observe operator intent
type ClaimResponse struct {
	Job    *AgentJob      `json:"job"`
	System SystemMetadata `json:"system"`
}

// HeartbeatRequest extends a running job's lease
type HeartbeatRequest struct {
	WorkerID     string `json:"workerId" binding:"required"`
	LeaseSeconds int    `json:"leaseSeconds,omitempty"`
}

// CompleteRequest reports successful terminal completion
type CompleteRequest struct {
	WorkerID      string  `json:"workerId" binding:"required"`
	ResultSummary *string `json:"resultSummary,omitempty"`
}

// FailRequest reports a failure; Retryable defaults to true when omitted
type FailRequest struct {
	WorkerID     string `json:"workerId" binding:"required"`
	ErrorMessage string `json:"errorMessage"`
	Retryable    *bool  `json:"retryable,omitempty"`
}

// CancelRequest asks for cooperative cancellation
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AckCancelRequest acknowledges a cancellation from the owning worker
type AckCancelRequest struct {
	WorkerID string `json:"workerId" binding:"required"`
}

// AppendEventRequest appends one journal entry to a job
type AppendEventRequest struct {
	Level   EventLevel `json:"level,omitempty"`
	Message string     `json:"message" binding:"required"`
	Payload JSONMap    `json:"payload,omitempty"`
}

// ListEventsQuery is the composite-cursor page request. AfterEventID
// without After is rejected.
type ListEventsQuery struct {
	After        *time.Time
	AfterEventID *string
	Limit        int
}

// CreateWorkerTokenRequest mints a scoped bearer credential
type CreateWorkerTokenRequest struct {
	WorkerID            string   `json:"workerId" binding:"required"`
	Description         string   `json:"description,omitempty"`
	AllowedRepositories []string `json:"allowedRepositories,omitempty"`
	AllowedJobTypes     []string `json:"allowedJobTypes,omitempty"`
	Capabilities        []string `json:"capabilities,omitempty"`
}

// CreateWorkerTokenResponse returns the raw token exactly once
type CreateWorkerTokenResponse struct {
	Token       string      `json:"token"`
	WorkerToken WorkerToken `json:"workerToken"`
}

// WorkerPauseRequest toggles the singleton pause state
type WorkerPauseRequest struct {
	Paused      bool       `json:"paused"`
	Mode        *PauseMode `json:"mode,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ForceResume bool       `json:"forceResume,omitempty"`
}

// LiveSessionReportRequest is the worker-side session upsert
type LiveSessionReportRequest struct {
	WorkerID       string            `json:"workerId" binding:"required"`
	Provider       string            `json:"provider,omitempty"`
	Status         LiveSessionStatus `json:"status" binding:"required"`
	WorkerHostname *string           `json:"workerHostname,omitempty"`
	AttachRO       *string           `json:"attachRo,omitempty"`
	AttachRW       *string           `json:"attachRw,omitempty"`
	WebRO          *string           `json:"webRo,omitempty"`
	WebRW          *string           `json:"webRw,omitempty"`
	ErrorMessage   *string           `json:"errorMessage,omitempty"`
}

// GrantWriteRequest reveals the RW endpoint for a bounded window
type GrantWriteRequest struct {
	TTLMinutes int `json:"ttlMinutes,omitempty"`
}

// GrantWriteResponse carries the revealed endpoints and the grant deadline
type GrantWriteResponse struct {
	Session      *TaskRunLiveSession `json:"session"`
	AttachRW     string              `json:"attachRw"`
	WebRW        *string             `json:"webRw,omitempty"`
	GrantedUntil time.Time           `json:"grantedUntil"`
}

// ControlActionRequest applies pause/resume/takeover to a task run
type ControlActionRequest struct {
	Action ControlAction `json:"action" binding:"required"`
	Reason string        `json:"reason,omitempty"`
}

// OperatorMessageRequest appends an operator note to the run's event stream
type OperatorMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// CreateProposalRequest files a reviewer-visible task suggestion
type CreateProposalRequest struct {
	Title             string         `json:"title" binding:"required"`
	Summary           string         `json:"summary,omitempty"`
	Category          string         `json:"category,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	ReviewPriority    ReviewPriority `json:"reviewPriority,omitempty"`
	TaskCreateRequest JSONMap        `json:"taskCreateRequest" binding:"required"`
	OriginSource      OriginSource   `json:"originSource,omitempty"`
	OriginID          *string        `json:"originId,omitempty"`
	OriginMetadata    JSONMap        `json:"originMetadata,omitempty"`
}

// CreateProposalResponse returns the stored proposal plus any open
// proposals sharing its dedup hash
type CreateProposalResponse struct {
	Proposal *TaskProposal   `json:"proposal"`
	Similar  []*TaskProposal `json:"similar,omitempty"`
}

// PromoteProposalRequest turns an open proposal into a queue job
type PromoteProposalRequest struct {
	Priority                  *int    `json:"priority,omitempty"`
	MaxAttempts               *int    `json:"maxAttempts,omitempty"`
	TaskCreateRequestOverride JSONMap `json:"taskCreateRequest,omitempty"`
	Reason                    string  `json:"reason,omitempty"`
}

// PromoteProposalResponse returns the updated proposal and the created job
type PromoteProposalResponse struct {
	Proposal *TaskProposal `json:"proposal"`
	Job      *AgentJob     `json:"job"`
}

// SnoozeProposalRequest hides a proposal until a future instant
type SnoozeProposalRequest struct {
	Until  time.Time `json:"until" binding:"required"`
	Reason string    `json:"reason,omitempty"`
}

// DecideProposalRequest dismisses (or otherwise decides) a proposal
type DecideProposalRequest struct {
	Reason string `json:"reason,omitempty"`
}

// UpdateProposalPriorityRequest re-ranks an open proposal
type UpdateProposalPriorityRequest struct {
	Priority ReviewPriority `json:"priority" binding:"required"`
	Reason   string         `json:"reason,omitempty"`
}

// ProposalListFilter selects proposals for the reviewer inbox
type ProposalListFilter struct {
	Status         *ProposalStatus
	Category       *string
	Repository     *string
	OriginSource   *OriginSource
	IncludeSnoozed bool
	OnlySnoozed    bool
	Cursor         string
	Limit          int
}

// UpsertManifestRequest stores manifest YAML under a registry name
type UpsertManifestRequest struct {
	Content string `json:"content" binding:"required"`
}

// SubmitManifestRunRequest enqueues a manifest job from a registry record
type SubmitManifestRunRequest struct {
	Action  string  `json:"action" binding:"required"`
	Options JSONMap `json:"options,omitempty"`
}

// MigrationTelemetry aggregates recent queue activity per job type
type MigrationTelemetry struct {
	WindowHours           int                      `json:"windowHours"`
	GeneratedAt           time.Time                `json:"generatedAt"`
	TotalJobs             int                      `json:"totalJobs"`
	LegacyJobs            int                      `json:"legacyJobs"`
	LegacyRuntimeRewrites int                      `json:"legacyRuntimeRewrites"`
	ByType                map[string]TypeTelemetry `json:"byType"`
	FailureStages         map[string]int           `json:"failureStages"`
	PublishOutcomes       PublishOutcomes          `json:"publishOutcomes"`
	EventsTruncated       bool                     `json:"eventsTruncated"`
}

// TypeTelemetry is the per-type slice of the telemetry summary
type TypeTelemetry struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"byStatus"`
	Legacy    int            `json:"legacy"`
	AvgWaitMS int64          `json:"avgWaitMs"`
}

// PublishOutcomes summarizes publish stage results across the window
type PublishOutcomes struct {
	Requested     int     `json:"requested"`
	Published     int     `json:"published"`
	Skipped       int     `json:"skipped"`
	Failed        int     `json:"failed"`
	Unknown       int     `json:"unknown"`
	PublishedRate float64 `json:"publishedRate"`
}
