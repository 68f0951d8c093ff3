package storage

import (
	"context"
	"time"

	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/types"
)

// ClaimQuery carries one worker's claim attempt. Types and repositories are
// already intersected with the worker's token policy by the service layer;
// capabilities are the worker's advertised set, lowercased.
type ClaimQuery struct {
	WorkerID            string
	Lease               time.Duration
	Types               []string
	Capabilities        []string
	AllowedRepositories []string
	RetryDelay          time.Duration
}

// JobFilter selects jobs for listing, newest first
type JobFilter struct {
	Status     *types.JobStatus
	Type       *types.JobType
	Repository *string
	Limit      int
}

// CancelOutcome reports a cancellation verb's effect. Noop is empty when
// state changed, otherwise one of the idempotent result codes.
type CancelOutcome struct {
	Job  *types.AgentJob
	Noop string
}

// Idempotent cancellation result codes
const (
	NoopRunningRequested = "noop_running_requested"
	NoopCancelled        = "noop_cancelled"
)

// Journal messages for lifecycle events. Lifecycle methods append these
// inside their own transaction; the service passes the submission-time ones.
const (
	EventJobQueued             = "Job queued"
	EventJobClaimed            = "Job claimed"
	EventHeartbeatReceived     = "Heartbeat received"
	EventJobCompleted          = "Job completed"
	EventJobFailed             = "Job failed"
	EventJobFailedRetryable    = "Job failed (retryable)"
	EventCancellationRequested = "Cancellation requested"
	EventJobCancelled          = "Job cancelled"
	EventArtifactUploaded      = "Artifact uploaded"
	EventLegacyJobSubmitted    = "Legacy job type submitted"
)

// ManifestRunState updates a registry record after a run job transition
type ManifestRunState struct {
	JobID      string
	Status     string
	StartedAt  *time.Time
	FinishedAt *time.Time
	State      types.JSONMap
}

// Store defines the persistence interface for the queue core.
// Every mutating method runs in a single transaction committed exactly once;
// lifecycle methods append their own journal events inside that transaction.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *types.AgentJob, events ...*types.JobEvent) error
	GetJob(ctx context.Context, id string) (*types.AgentJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*types.AgentJob, error)
	ListJobsSince(ctx context.Context, since time.Time, limit int) ([]*types.AgentJob, bool, error)
	CountJobsByStatus(ctx context.Context) (metrics.JobCounts, error)

	// Lifecycle
	ClaimJob(ctx context.Context, q ClaimQuery) (*types.AgentJob, error)
	NormalizeExpiredLeases(ctx context.Context, retryDelay time.Duration) (int, error)
	HeartbeatJob(ctx context.Context, jobID, workerID string, lease time.Duration) (*types.AgentJob, error)
	CompleteJob(ctx context.Context, jobID, workerID string, resultSummary *string) (*types.AgentJob, error)
	FailJob(ctx context.Context, jobID, workerID, errorMessage string, retryable bool, backoff func(attempt int) time.Duration) (*types.AgentJob, error)
	RequestCancel(ctx context.Context, jobID string, actorUserID *string, reason string) (*CancelOutcome, error)
	AckCancel(ctx context.Context, jobID, workerID string) (*CancelOutcome, error)
	SetJobLiveControl(ctx context.Context, jobID string, control types.LiveControl) error

	// Events
	AppendEvent(ctx context.Context, event *types.JobEvent) error
	ListEvents(ctx context.Context, jobID string, q types.ListEventsQuery) ([]*types.JobEvent, error)
	ListEventsForJobs(ctx context.Context, jobIDs []string, limit int) ([]*types.JobEvent, bool, error)

	// Artifacts
	CreateArtifact(ctx context.Context, artifact *types.JobArtifact, events ...*types.JobEvent) (*types.JobArtifact, error)
	GetArtifact(ctx context.Context, jobID, artifactID string) (*types.JobArtifact, error)
	ListArtifacts(ctx context.Context, jobID string, limit int) ([]*types.JobArtifact, error)

	// Worker tokens
	CreateWorkerToken(ctx context.Context, token *types.WorkerToken) error
	GetWorkerTokenByHash(ctx context.Context, tokenHash string) (*types.WorkerToken, error)
	ListWorkerTokens(ctx context.Context) ([]*types.WorkerToken, error)
	RevokeWorkerToken(ctx context.Context, id string) (*types.WorkerToken, error)

	// Live sessions
	CreateLiveSession(ctx context.Context, session *types.TaskRunLiveSession) (*types.TaskRunLiveSession, bool, error)
	GetLiveSession(ctx context.Context, taskRunID string) (*types.TaskRunLiveSession, error)
	MutateLiveSession(ctx context.Context, taskRunID string, fn func(*types.TaskRunLiveSession) error) (*types.TaskRunLiveSession, error)
	AppendTaskRunControlEvent(ctx context.Context, event *types.TaskRunControlEvent) error
	ListTaskRunControlEvents(ctx context.Context, taskRunID string, limit int) ([]*types.TaskRunControlEvent, error)

	// Worker pause singleton
	GetPauseState(ctx context.Context) (*types.SystemWorkerPauseState, error)
	MutatePauseState(ctx context.Context, action string, actorUserID *string, fn func(*types.SystemWorkerPauseState) error) (*types.SystemWorkerPauseState, error)

	// Proposals
	CreateProposal(ctx context.Context, proposal *types.TaskProposal) error
	GetProposal(ctx context.Context, id string) (*types.TaskProposal, error)
	ListProposals(ctx context.Context, filter types.ProposalListFilter) ([]*types.TaskProposal, string, error)
	FindOpenProposalsByDedupHash(ctx context.Context, dedupHash, excludeID string, limit int) ([]*types.TaskProposal, error)
	MutateProposal(ctx context.Context, id string, fn func(*types.TaskProposal) error) (*types.TaskProposal, error)
	PromoteProposal(ctx context.Context, id string, build func(*types.TaskProposal) (*types.AgentJob, []*types.JobEvent, error)) (*types.TaskProposal, *types.AgentJob, error)
	ClearExpiredSnoozes(ctx context.Context) (int, error)
	RecordNotification(ctx context.Context, notification *types.ProposalNotification) error

	// Manifest registry
	UpsertManifestRecord(ctx context.Context, name, content, contentHash string) (*types.ManifestRegistryRecord, error)
	GetManifestRecord(ctx context.Context, name string) (*types.ManifestRegistryRecord, error)
	ListManifestRecords(ctx context.Context) ([]*types.ManifestRegistryRecord, error)
	UpdateManifestLastRun(ctx context.Context, name string, run ManifestRunState) error

	// Utility
	Ping(ctx context.Context) error
	Close() error
}
