package models

import (
	"encoding/json"
	"time"
)

// UploadStatus represents the lifecycle state of a pending upload.
type UploadStatus string

const (
	// UploadStatusPending means the record is waiting for remote confirmation.
	UploadStatusPending UploadStatus = "pending"
	// UploadStatusSynced means the remote system accepted the record.
	// Synced records are inert and kept for history until deleted.
	UploadStatusSynced UploadStatus = "synced"
)

// PendingUpload represents a completed registration waiting to be pushed to
// the remote passport registry. Status only moves forward (pending -> synced)
// and the retry count never decreases except through an explicit user retry.
type PendingUpload struct {
	ID          UUID            `db:"id" json:"id"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      UploadStatus    `db:"status" json:"status"`
	RetryCount  int             `db:"retry_count" json:"retry_count"`
	NextRetryAt int64           `db:"next_retry_at" json:"next_retry_at"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
	UpdatedAt   int64           `db:"updated_at" json:"updated_at"`
	SyncedAt    *int64          `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for PendingUpload.
func (PendingUpload) TableName() string {
	return "pending_uploads"
}

// IsPending reports whether the upload still needs a sync attempt.
func (p *PendingUpload) IsPending() bool {
	return p.Status == UploadStatusPending
}

// Eligible reports whether the upload may be attempted at the given time,
// honoring the backoff schedule set after a failed attempt.
func (p *PendingUpload) Eligible(now time.Time) bool {
	return p.Status == UploadStatusPending && p.NextRetryAt <= now.Unix()
}

// SyncedAtTime returns the SyncedAt as time.Time, or the zero time when the
// upload has not synced yet.
func (p *PendingUpload) SyncedAtTime() time.Time {
	if p.SyncedAt == nil {
		return time.Time{}
	}
	return time.Unix(*p.SyncedAt, 0)
}
