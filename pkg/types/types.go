package types

import (
	"time"

	"github.com/lib/pq"
)

// Identity headers shared by the HTTP server and the worker client. The
// fronting proxy authenticates users and asserts the user header; worker
// processes authenticate themselves with bearer tokens.
const (
	HeaderWorkerToken = "X-MoonMind-Worker-Token"
	HeaderUserID      = "X-MoonMind-User-Id"
	HeaderOperator    = "X-MoonMind-Operator"
)

// JobType identifies the payload contract a job carries
type JobType string

const (
	JobTypeTask     JobType = "task"
	JobTypeManifest JobType = "manifest"

	// Legacy payload shapes, lifted into the canonical task view on submit
	JobTypeCodexExec  JobType = "codex_exec"
	JobTypeCodexSkill JobType = "codex_skill"
)

// Valid reports whether t is a known job type
func (t JobType) Valid() bool {
	switch t {
	case JobTypeTask, JobTypeManifest, JobTypeCodexExec, JobTypeCodexSkill:
		return true
	}
	return false
}

// Legacy reports whether t is one of the lifted legacy shapes
func (t JobType) Legacy() bool {
	return t == JobTypeCodexExec || t == JobTypeCodexSkill
}

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusRunning    JobStatus = "running"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusDeadLetter JobStatus = "dead_letter"
)

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded,
		JobStatusFailed, JobStatusCancelled, JobStatusDeadLetter:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled, JobStatusDeadLetter:
		return true
	}
	return false
}

// AgentJob is one unit of work executed by a single worker under a lease.
// Invariant: status=running implies claimed_by and lease_expires_at are set;
// terminal statuses imply both are cleared and finished_at is set.
type AgentJob struct {
	ID                      string     `db:"id" json:"id"`
	Type                    JobType    `db:"type" json:"type"`
	Status                  JobStatus  `db:"status" json:"status"`
	Priority                int        `db:"priority" json:"priority"`
	Payload                 JSONMap    `db:"payload" json:"payload"`
	CreatedByUserID         *string    `db:"created_by_user_id" json:"createdByUserId,omitempty"`
	RequestedByUserID       *string    `db:"requested_by_user_id" json:"requestedByUserId,omitempty"`
	AffinityKey             *string    `db:"affinity_key" json:"affinityKey,omitempty"`
	ClaimedBy               *string    `db:"claimed_by" json:"claimedBy,omitempty"`
	LeaseExpiresAt          *time.Time `db:"lease_expires_at" json:"leaseExpiresAt,omitempty"`
	NextAttemptAt           *time.Time `db:"next_attempt_at" json:"nextAttemptAt,omitempty"`
	Attempt                 int        `db:"attempt" json:"attempt"`
	MaxAttempts             int        `db:"max_attempts" json:"maxAttempts"`
	ResultSummary           *string    `db:"result_summary" json:"resultSummary,omitempty"`
	ErrorMessage            *string    `db:"error_message" json:"errorMessage,omitempty"`
	CancelRequestedAt       *time.Time `db:"cancel_requested_at" json:"cancelRequestedAt,omitempty"`
	CancelRequestedByUserID *string    `db:"cancel_requested_by_user_id" json:"cancelRequestedByUserId,omitempty"`
	CancelReason            *string    `db:"cancel_reason" json:"cancelReason,omitempty"`
	ArtifactsPath           *string    `db:"artifacts_path" json:"artifactsPath,omitempty"`
	StartedAt               *time.Time `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt              *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updatedAt"`
}

// JobArtifact records one uploaded file under the job's artifact subtree.
// Invariant: storage_path resolves strictly under {artifact_root}/{job_id}.
type JobArtifact struct {
	ID          string    `db:"id" json:"id"`
	JobID       string    `db:"job_id" json:"jobId"`
	Name        string    `db:"name" json:"name"`
	ContentType string    `db:"content_type" json:"contentType"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	Digest      *string   `db:"digest" json:"digest,omitempty"`
	StoragePath string    `db:"storage_path" json:"storagePath"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// EventLevel classifies a job event
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// Valid reports whether l is a known event level
func (l EventLevel) Valid() bool {
	return l == EventLevelInfo || l == EventLevelWarn || l == EventLevelError
}

// JobEvent is one append-only journal entry. (created_at, id) is the
// composite monotonic cursor for polling.
type JobEvent struct {
	ID        string     `db:"id" json:"id"`
	JobID     string     `db:"job_id" json:"jobId"`
	Level     EventLevel `db:"level" json:"level"`
	Message   string     `db:"message" json:"message"`
	Payload   JSONMap    `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// WorkerToken is a bearer credential with scoped policy. Only the sha256 of
// the raw token is stored; the raw form is returned once at mint time.
type WorkerToken struct {
	ID                  string         `db:"id" json:"id"`
	WorkerID            string         `db:"worker_id" json:"workerId"`
	TokenHash           string         `db:"token_hash" json:"-"`
	Description         string         `db:"description" json:"description"`
	AllowedRepositories pq.StringArray `db:"allowed_repositories" json:"allowedRepositories,omitempty"`
	AllowedJobTypes     pq.StringArray `db:"allowed_job_types" json:"allowedJobTypes,omitempty"`
	Capabilities        pq.StringArray `db:"capabilities" json:"capabilities,omitempty"`
	IsActive            bool           `db:"is_active" json:"isActive"`
	CreatedAt           time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updatedAt"`
}

// AuthSource discriminates how a worker policy was established
type AuthSource string

const (
	AuthSourceWorkerToken AuthSource = "worker_token"
	AuthSourceOIDC        AuthSource = "oidc"
)

// WorkerPolicy is the frozen authorization view attached to a request after
// token resolution
type WorkerPolicy struct {
	TokenID             string     `json:"tokenId,omitempty"`
	WorkerID            string     `json:"workerId"`
	AllowedRepositories []string   `json:"allowedRepositories,omitempty"`
	AllowedJobTypes     []string   `json:"allowedJobTypes,omitempty"`
	Capabilities        []string   `json:"capabilities,omitempty"`
	AuthSource          AuthSource `json:"authSource"`
}
