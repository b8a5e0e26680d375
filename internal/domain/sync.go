package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunType records what triggered a sync run.
type RunType string

const (
	RunManual    RunType = "manual"
	RunScheduled RunType = "scheduled"
	RunBackfill  RunType = "backfill"
)

// SyncStatus is the terminal state of a sync run.
type SyncStatus string

const (
	SyncRunning SyncStatus = "running"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

// SyncLog is an append-only record of one sync attempt. Rows are finalized
// exactly once (status, counts, completed_at) and never mutated afterwards.
type SyncLog struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	SourceType       SourceType `json:"source_type" db:"source_type"`
	RunType          RunType    `json:"run_type" db:"run_type"`
	Status           SyncStatus `json:"status" db:"status"`
	ItemsProcessed   int        `json:"items_processed" db:"items_processed"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	ErrorMessage     string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at" db:"completed_at"`
}

// Well-known sync_settings keys for the file-drop transport. Credentials are
// read from the store at run time, never from config or code.
const (
	SettingSFTPHost       = "sftp_host"
	SettingSFTPPort       = "sftp_port"
	SettingSFTPUsername   = "sftp_username"
	SettingSFTPPassword   = "sftp_password"
	SettingSFTPRemotePath = "sftp_remote_path"
)
