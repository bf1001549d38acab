package models

// SyncAttempt records a single remote submission attempt for a pending
// upload, successful or not. The history survives the upload being marked
// synced so support can reconstruct what happened on a flaky site connection.
type SyncAttempt struct {
	ID          UUID   `db:"id" json:"id"`
	UploadID    UUID   `db:"upload_id" json:"upload_id"`
	Success     bool   `db:"success" json:"success"`
	Error       string `db:"error" json:"error,omitempty"`
	AttemptedAt int64  `db:"attempted_at" json:"attempted_at"`
}

// TableName returns the table name for SyncAttempt.
func (SyncAttempt) TableName() string {
	return "sync_attempts"
}
