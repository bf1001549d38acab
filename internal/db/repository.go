// Package db provides CRUD repository operations for the passport core models.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/indianbuild/passport-core/internal/models"
	"github.com/indianbuild/passport-core/internal/uuid"
)

// Repository provides CRUD operations for all models.
// Frequently used queries go through a prepared statement cache to avoid
// repeated SQL parsing on the hot paths (list/get during dashboard refresh).
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from the cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Draft Operations
// =====================================================

// CreateDraft stores a new draft, assigning its ID and timestamps.
func (r *Repository) CreateDraft(draft *models.Draft) error {
	now := time.Now().Unix()
	draft.ID = models.UUID(uuid.New())
	draft.CreatedAt = now
	draft.UpdatedAt = now

	query := `
	INSERT INTO drafts (id, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, draft.ID, string(draft.Payload), draft.CreatedAt, draft.UpdatedAt)
	return err
}

// GetDraft retrieves a draft by ID. Returns sql.ErrNoRows when absent.
func (r *Repository) GetDraft(id string) (*models.Draft, error) {
	query := `SELECT id, payload, created_at, updated_at FROM drafts WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var draft models.Draft
	var payload string
	err = stmt.QueryRow(id).Scan(&draft.ID, &payload, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return nil, err
	}
	draft.Payload = json.RawMessage(payload)
	return &draft, nil
}

// ListDrafts returns all drafts, most recently edited first.
func (r *Repository) ListDrafts() ([]*models.Draft, error) {
	query := `SELECT id, payload, created_at, updated_at FROM drafts ORDER BY updated_at DESC`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []*models.Draft
	for rows.Next() {
		var draft models.Draft
		var payload string
		if err := rows.Scan(&draft.ID, &payload, &draft.CreatedAt, &draft.UpdatedAt); err != nil {
			return nil, err
		}
		draft.Payload = json.RawMessage(payload)
		drafts = append(drafts, &draft)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drafts, nil
}

// UpdateDraft replaces the draft payload and refreshes its timestamp.
// The identifier and creation time are preserved. Returns sql.ErrNoRows
// when the draft does not exist.
func (r *Repository) UpdateDraft(id string, payload json.RawMessage) error {
	query := `UPDATE drafts SET payload = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.Exec(query, string(payload), time.Now().Unix(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDraft removes a draft. Deleting an absent draft is not an error.
func (r *Repository) DeleteDraft(id string) error {
	_, err := r.db.Exec(`DELETE FROM drafts WHERE id = ?`, id)
	return err
}

// =====================================================
// Pending Upload Operations
// =====================================================

const uploadColumns = `id, payload, status, retry_count, next_retry_at, last_error, created_at, updated_at, synced_at`

// scanUpload scans a pending upload row from either a *sql.Row or *sql.Rows.
func scanUpload(scan func(dest ...interface{}) error) (*models.PendingUpload, error) {
	var upload models.PendingUpload
	var payload string
	var syncedAt sql.NullInt64
	err := scan(&upload.ID, &payload, &upload.Status, &upload.RetryCount,
		&upload.NextRetryAt, &upload.LastError, &upload.CreatedAt, &upload.UpdatedAt, &syncedAt)
	if err != nil {
		return nil, err
	}
	upload.Payload = json.RawMessage(payload)
	if syncedAt.Valid {
		upload.SyncedAt = &syncedAt.Int64
	}
	return &upload, nil
}

// CreateUpload stores a new pending upload with status pending and zero retries.
func (r *Repository) CreateUpload(upload *models.PendingUpload) error {
	now := time.Now().Unix()
	upload.ID = models.UUID(uuid.New())
	upload.Status = models.UploadStatusPending
	upload.RetryCount = 0
	upload.NextRetryAt = now
	upload.LastError = ""
	upload.CreatedAt = now
	upload.UpdatedAt = now
	upload.SyncedAt = nil

	query := `
	INSERT INTO pending_uploads (id, payload, status, retry_count, next_retry_at, last_error, created_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := r.db.Exec(query, upload.ID, string(upload.Payload), upload.Status,
		upload.RetryCount, upload.NextRetryAt, upload.LastError, upload.CreatedAt, upload.UpdatedAt)
	return err
}

// GetUpload retrieves a pending upload by ID. Returns sql.ErrNoRows when absent.
func (r *Repository) GetUpload(id string) (*models.PendingUpload, error) {
	query := `SELECT ` + uploadColumns + ` FROM pending_uploads WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	return scanUpload(stmt.QueryRow(id).Scan)
}

// ListUploads returns pending upload records, newest first, optionally
// filtered by status. An empty status returns all records.
func (r *Repository) ListUploads(status models.UploadStatus) ([]*models.PendingUpload, error) {
	baseQuery := `SELECT ` + uploadColumns + ` FROM pending_uploads`
	order := ` ORDER BY created_at DESC`

	var query string
	var args []interface{}
	if status != "" {
		query = baseQuery + ` WHERE status = ?` + order
		args = []interface{}{status}
	} else {
		query = baseQuery + order
	}

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*models.PendingUpload
	for rows.Next() {
		upload, err := scanUpload(rows.Scan)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return uploads, nil
}

// ListEligibleUploads returns pending uploads whose backoff window has
// passed, oldest first so long-waiting records go out before new ones.
func (r *Repository) ListEligibleUploads(now int64) ([]*models.PendingUpload, error) {
	query := `SELECT ` + uploadColumns + ` FROM pending_uploads
	WHERE status = ? AND next_retry_at <= ?
	ORDER BY created_at ASC`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(models.UploadStatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*models.PendingUpload
	for rows.Next() {
		upload, err := scanUpload(rows.Scan)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return uploads, nil
}

// UploadPatch holds the fields a partial pending-upload update may change.
// Nil fields are left untouched.
type UploadPatch struct {
	Payload     json.RawMessage
	Status      *models.UploadStatus
	RetryCount  *int
	NextRetryAt *int64
	LastError   *string
	SyncedAt    *int64
}

// UpdateUploadFields merges the patch into the stored record
// (read-modify-write inside a transaction). Returns sql.ErrNoRows when the
// upload does not exist.
func (r *Repository) UpdateUploadFields(id string, patch UploadPatch) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+uploadColumns+` FROM pending_uploads WHERE id = ?`, id)
	upload, err := scanUpload(row.Scan)
	if err != nil {
		return err
	}

	if patch.Payload != nil {
		upload.Payload = patch.Payload
	}
	if patch.Status != nil {
		upload.Status = *patch.Status
	}
	if patch.RetryCount != nil {
		upload.RetryCount = *patch.RetryCount
	}
	if patch.NextRetryAt != nil {
		upload.NextRetryAt = *patch.NextRetryAt
	}
	if patch.LastError != nil {
		upload.LastError = *patch.LastError
	}
	if patch.SyncedAt != nil {
		upload.SyncedAt = patch.SyncedAt
	}
	upload.UpdatedAt = time.Now().Unix()

	var syncedAt interface{}
	if upload.SyncedAt != nil {
		syncedAt = *upload.SyncedAt
	}

	_, err = tx.Exec(`
	UPDATE pending_uploads
	SET payload = ?, status = ?, retry_count = ?, next_retry_at = ?, last_error = ?, updated_at = ?, synced_at = ?
	WHERE id = ?`,
		string(upload.Payload), upload.Status, upload.RetryCount, upload.NextRetryAt,
		upload.LastError, upload.UpdatedAt, syncedAt, id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// MarkUploadSynced transitions an upload to synced and stamps the sync time.
// Returns sql.ErrNoRows when the upload does not exist.
func (r *Repository) MarkUploadSynced(id string, syncedAt int64) error {
	query := `
	UPDATE pending_uploads
	SET status = ?, synced_at = ?, last_error = '', updated_at = ?
	WHERE id = ?`
	result, err := r.db.Exec(query, models.UploadStatusSynced, syncedAt, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordUploadFailure increments the retry counter, records the error text
// and schedules the next attempt. The record stays pending.
func (r *Repository) RecordUploadFailure(id, errText string, nextRetryAt int64) error {
	query := `
	UPDATE pending_uploads
	SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?, updated_at = ?
	WHERE id = ? AND status = ?`
	result, err := r.db.Exec(query, errText, nextRetryAt, time.Now().Unix(), id, models.UploadStatusPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResetUpload puts a pending upload back to a clean state (manual retry):
// zero retries, cleared error, immediately eligible. Synced records are
// terminal; resetting one reports sql.ErrNoRows like a missing record.
func (r *Repository) ResetUpload(id string) error {
	query := `
	UPDATE pending_uploads
	SET retry_count = 0, next_retry_at = ?, last_error = '', updated_at = ?
	WHERE id = ? AND status = ?`
	now := time.Now().Unix()
	result, err := r.db.Exec(query, now, now, id, models.UploadStatusPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteUpload removes a pending upload. Deleting an absent record is not an error.
func (r *Repository) DeleteUpload(id string) error {
	_, err := r.db.Exec(`DELETE FROM pending_uploads WHERE id = ?`, id)
	return err
}

// PromoteDraft turns a draft into a pending upload and removes the draft in
// a single transaction, so a crash cannot leave both or neither behind.
// Returns sql.ErrNoRows when the draft does not exist.
func (r *Repository) PromoteDraft(draftID string) (*models.PendingUpload, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRow(`SELECT payload FROM drafts WHERE id = ?`, draftID).Scan(&payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	upload := &models.PendingUpload{
		ID:          models.UUID(uuid.New()),
		Payload:     json.RawMessage(payload),
		Status:      models.UploadStatusPending,
		RetryCount:  0,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = tx.Exec(`
	INSERT INTO pending_uploads (id, payload, status, retry_count, next_retry_at, last_error, created_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, '', ?, ?, NULL)`,
		upload.ID, string(upload.Payload), upload.Status, upload.RetryCount,
		upload.NextRetryAt, upload.CreatedAt, upload.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`DELETE FROM drafts WHERE id = ?`, draftID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return upload, nil
}

// =====================================================
// Product Cache Operations
// =====================================================

// PutProduct inserts or replaces a cached product passport.
func (r *Repository) PutProduct(product *models.Product) error {
	product.CachedAt = time.Now().Unix()

	query := `
	INSERT INTO products (id, name, category, payload, cached_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		category = excluded.category,
		payload = excluded.payload,
		cached_at = excluded.cached_at
	`
	_, err := r.db.Exec(query, product.ID, product.Name, product.Category,
		string(product.Payload), product.CachedAt)
	return err
}

// GetProduct retrieves a cached product by registry ID.
func (r *Repository) GetProduct(id string) (*models.Product, error) {
	query := `SELECT id, name, category, payload, cached_at FROM products WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var product models.Product
	var payload string
	err = stmt.QueryRow(id).Scan(&product.ID, &product.Name, &product.Category,
		&payload, &product.CachedAt)
	if err != nil {
		return nil, err
	}
	product.Payload = json.RawMessage(payload)
	return &product, nil
}

// ListProducts returns cached products, optionally filtered by category.
func (r *Repository) ListProducts(category string) ([]*models.Product, error) {
	baseQuery := `SELECT id, name, category, payload, cached_at FROM products`
	order := ` ORDER BY cached_at DESC`

	var query string
	var args []interface{}
	if category != "" {
		query = baseQuery + ` WHERE category = ?` + order
		args = []interface{}{category}
	} else {
		query = baseQuery + order
	}

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		var product models.Product
		var payload string
		if err := rows.Scan(&product.ID, &product.Name, &product.Category,
			&payload, &product.CachedAt); err != nil {
			return nil, err
		}
		product.Payload = json.RawMessage(payload)
		products = append(products, &product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// ClearProducts empties the product cache.
func (r *Repository) ClearProducts() error {
	_, err := r.db.Exec(`DELETE FROM products`)
	return err
}

// =====================================================
// Sync Attempt Operations
// =====================================================

// CreateSyncAttempt appends a sync attempt history row.
func (r *Repository) CreateSyncAttempt(attempt *models.SyncAttempt) error {
	attempt.ID = models.UUID(uuid.New())
	attempt.AttemptedAt = time.Now().Unix()

	query := `
	INSERT INTO sync_attempts (id, upload_id, success, error, attempted_at)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, attempt.ID, attempt.UploadID, attempt.Success,
		attempt.Error, attempt.AttemptedAt)
	return err
}

// ListSyncAttempts returns the attempt history for an upload, newest first.
func (r *Repository) ListSyncAttempts(uploadID string) ([]*models.SyncAttempt, error) {
	query := `SELECT id, upload_id, success, error, attempted_at FROM sync_attempts
	WHERE upload_id = ? ORDER BY attempted_at DESC`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.SyncAttempt
	for rows.Next() {
		var attempt models.SyncAttempt
		if err := rows.Scan(&attempt.ID, &attempt.UploadID, &attempt.Success,
			&attempt.Error, &attempt.AttemptedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, &attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}
