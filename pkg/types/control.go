package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LiveSessionStatus represents the terminal-attach side channel state
type LiveSessionStatus string

const (
	LiveSessionDisabled LiveSessionStatus = "disabled"
	LiveSessionStarting LiveSessionStatus = "starting"
	LiveSessionReady    LiveSessionStatus = "ready"
	LiveSessionRevoked  LiveSessionStatus = "revoked"
	LiveSessionEnded    LiveSessionStatus = "ended"
	LiveSessionError    LiveSessionStatus = "error"
)

// Valid reports whether s is a known live-session status
func (s LiveSessionStatus) Valid() bool {
	switch s {
	case LiveSessionDisabled, LiveSessionStarting, LiveSessionReady,
		LiveSessionRevoked, LiveSessionEnded, LiveSessionError:
		return true
	}
	return false
}

// Terminal reports whether the session can no longer become ready
func (s LiveSessionStatus) Terminal() bool {
	return s == LiveSessionRevoked || s == LiveSessionEnded || s == LiveSessionError
}

// TaskRunLiveSession is the at-most-one-per-run interactive attach record.
// Invariant: ended_at, once set, is never overwritten.
type TaskRunLiveSession struct {
	ID              string            `db:"id" json:"id"`
	TaskRunID       string            `db:"task_run_id" json:"taskRunId"`
	Provider        string            `db:"provider" json:"provider"`
	Status          LiveSessionStatus `db:"status" json:"status"`
	ReadyAt         *time.Time        `db:"ready_at" json:"readyAt,omitempty"`
	EndedAt         *time.Time        `db:"ended_at" json:"endedAt,omitempty"`
	ExpiresAt       *time.Time        `db:"expires_at" json:"expiresAt,omitempty"`
	RWGrantedUntil  *time.Time        `db:"rw_granted_until" json:"rwGrantedUntil,omitempty"`
	WorkerID        *string           `db:"worker_id" json:"workerId,omitempty"`
	WorkerHostname  *string           `db:"worker_hostname" json:"workerHostname,omitempty"`
	AttachRO        *string           `db:"attach_ro" json:"attachRo,omitempty"`
	AttachRW        *string           `db:"attach_rw" json:"-"`
	WebRO           *string           `db:"web_ro" json:"webRo,omitempty"`
	WebRW           *string           `db:"web_rw" json:"-"`
	LastHeartbeatAt *time.Time        `db:"last_heartbeat_at" json:"lastHeartbeatAt,omitempty"`
	ErrorMessage    *string           `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updatedAt"`
}

// ControlAction names an operator intervention on a task run
type ControlAction string

const (
	ControlActionPause         ControlAction = "pause"
	ControlActionResume        ControlAction = "resume"
	ControlActionTakeover      ControlAction = "takeover"
	ControlActionGrantRW       ControlAction = "grant_rw"
	ControlActionRevokeSession ControlAction = "revoke_session"
	ControlActionSendMessage   ControlAction = "send_message"
)

// TaskRunControlEvent is the append-only audit trail for operator actions
type TaskRunControlEvent struct {
	ID          string        `db:"id" json:"id"`
	TaskRunID   string        `db:"task_run_id" json:"taskRunId"`
	Action      ControlAction `db:"action" json:"action"`
	ActorUserID *string       `db:"actor_user_id" json:"actorUserId,omitempty"`
	Detail      JSONMap       `db:"detail" json:"detail,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
}

// PauseMode selects how paused workers behave
type PauseMode string

const (
	// PauseModeDrain lets running jobs finish but blocks new claims
	PauseModeDrain PauseMode = "drain"
	// PauseModeQuiesce asks workers to checkpoint and stop promptly
	PauseModeQuiesce PauseMode = "quiesce"
)

// Valid reports whether m is a known pause mode
func (m PauseMode) Valid() bool {
	return m == PauseModeDrain || m == PauseModeQuiesce
}

// SystemWorkerPauseState is the singleton operator pause row (id=1).
// Invariant: version strictly increases on every mutation.
type SystemWorkerPauseState struct {
	ID                int64      `db:"id" json:"-"`
	Paused            bool       `db:"paused" json:"paused"`
	Mode              *PauseMode `db:"mode" json:"mode,omitempty"`
	Reason            *string    `db:"reason" json:"reason,omitempty"`
	Version           int64      `db:"version" json:"version"`
	RequestedByUserID *string    `db:"requested_by_user_id" json:"requestedByUserId,omitempty"`
	RequestedAt       *time.Time `db:"requested_at" json:"requestedAt,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// SystemControlEvent audits every worker-pause transition
type SystemControlEvent struct {
	ID          string    `db:"id" json:"id"`
	Action      string    `db:"action" json:"action"`
	ActorUserID *string   `db:"actor_user_id" json:"actorUserId,omitempty"`
	Detail      JSONMap   `db:"detail" json:"detail,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// SystemMetadata rides along every claim response so workers learn about
// pause transitions without a second request
type SystemMetadata struct {
	WorkerPause WorkerPauseView `json:"workerPause"`
}

// WorkerPauseView is the client-facing snapshot of the pause singleton
type WorkerPauseView struct {
	Paused      bool       `json:"paused"`
	Mode        *PauseMode `json:"mode,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
	Version     int64      `json:"version"`
	RequestedAt *time.Time `json:"requestedAt,omitempty"`
}

// LiveControl is the payload block workers poll on heartbeat to observe
// operator pause/resume/takeover intent
type LiveControl struct {
	Paused     bool      `json:"paused"`
	Takeover   bool      `json:"takeover"`
	LastAction string    `json:"lastAction"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SnoozeEntry is one historical snooze on a proposal
type SnoozeEntry struct {
	Until  time.Time `json:"until"`
	Reason string    `json:"reason,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// SnoozeHistory stores the bounded snooze trail as jsonb
type SnoozeHistory []SnoozeEntry

// Value implements driver.Valuer
func (h SnoozeHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner
func (h *SnoozeHistory) Scan(src any) error {
	if src == nil {
		*h = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SnoozeHistory", src)
	}
	if len(data) == 0 {
		*h = nil
		return nil
	}
	return json.Unmarshal(data, h)
}
