// Package queue provides the offline submission queue: durable local storage
// for registration drafts and pending uploads, surviving reloads and offline
// periods until the sync engine can push records to the registry.
package queue

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/indianbuild/passport-core/internal/db"
	"github.com/indianbuild/passport-core/internal/errors"
	"github.com/indianbuild/passport-core/internal/logging"
	"github.com/indianbuild/passport-core/internal/models"
)

// Queue is the storage-facing facade the UI handlers and the sync engine
// talk to. It owns no global state: construct one at startup and inject it
// wherever queue access is needed.
type Queue struct {
	repo *db.Repository
}

// New creates a Queue backed by the given repository.
func New(repo *db.Repository) *Queue {
	return &Queue{repo: repo}
}

// Repository exposes the underlying repository for components that need
// lower-level access (the sync engine's failure bookkeeping).
func (q *Queue) Repository() *db.Repository {
	return q.repo
}

// =====================================================
// Drafts
// =====================================================

// SaveDraft stores in-progress form data and returns the assigned identifier.
func (q *Queue) SaveDraft(payload json.RawMessage) (models.UUID, error) {
	if len(payload) == 0 {
		return "", errors.New(errors.ErrInvalid, "draft payload is empty")
	}

	draft := &models.Draft{Payload: payload}
	if err := q.repo.CreateDraft(draft); err != nil {
		return "", errors.Wrap(errors.ErrDatabase, "failed to save draft", err)
	}

	logging.Debug("Draft saved", map[string]interface{}{"draft_id": draft.ID.String()})
	return draft.ID, nil
}

// ListDrafts returns all drafts, most recently edited first.
func (q *Queue) ListDrafts() ([]*models.Draft, error) {
	drafts, err := q.repo.ListDrafts()
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list drafts", err)
	}
	return drafts, nil
}

// GetDraft returns the draft or a DRAFT_NOT_FOUND error.
func (q *Queue) GetDraft(id string) (*models.Draft, error) {
	draft, err := q.repo.GetDraft(id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrDraftNotFound, "draft not found: "+id)
		}
		return nil, errors.Wrap(errors.ErrDatabase, "failed to get draft", err)
	}
	return draft, nil
}

// UpdateDraft fully replaces the draft's fields and refreshes its timestamp.
// Reports DRAFT_NOT_FOUND when the identifier is absent.
func (q *Queue) UpdateDraft(id string, payload json.RawMessage) error {
	if len(payload) == 0 {
		return errors.New(errors.ErrInvalid, "draft payload is empty")
	}

	if err := q.repo.UpdateDraft(id, payload); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.New(errors.ErrDraftNotFound, "draft not found: "+id)
		}
		return errors.Wrap(errors.ErrDatabase, "failed to update draft", err)
	}
	return nil
}

// DeleteDraft removes a draft. Idempotent: deleting an absent draft succeeds.
func (q *Queue) DeleteDraft(id string) error {
	if err := q.repo.DeleteDraft(id); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete draft", err)
	}
	return nil
}

// =====================================================
// Pending Uploads
// =====================================================

// EnqueueUpload stores a completed registration for deferred submission and
// returns the assigned identifier. The record starts pending with zero retries.
func (q *Queue) EnqueueUpload(payload json.RawMessage) (models.UUID, error) {
	if len(payload) == 0 {
		return "", errors.New(errors.ErrInvalid, "upload payload is empty")
	}

	upload := &models.PendingUpload{Payload: payload}
	if err := q.repo.CreateUpload(upload); err != nil {
		return "", errors.Wrap(errors.ErrDatabase, "failed to enqueue upload", err)
	}

	logging.Info("Upload enqueued", map[string]interface{}{"upload_id": upload.ID.String()})
	return upload.ID, nil
}

// ListUploads returns pending upload records, optionally filtered by status
// (empty status means all), newest first.
func (q *Queue) ListUploads(status models.UploadStatus) ([]*models.PendingUpload, error) {
	uploads, err := q.repo.ListUploads(status)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list uploads", err)
	}
	return uploads, nil
}

// GetUpload returns the upload or an UPLOAD_NOT_FOUND error.
func (q *Queue) GetUpload(id string) (*models.PendingUpload, error) {
	upload, err := q.repo.GetUpload(id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrUploadNotFound, "upload not found: "+id)
		}
		return nil, errors.Wrap(errors.ErrDatabase, "failed to get upload", err)
	}
	return upload, nil
}

// UpdateUpload merges the given fields into the stored record. Reports
// UPLOAD_NOT_FOUND when the identifier is absent.
func (q *Queue) UpdateUpload(id string, patch db.UploadPatch) error {
	if err := q.repo.UpdateUploadFields(id, patch); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.New(errors.ErrUploadNotFound, "upload not found: "+id)
		}
		return errors.Wrap(errors.ErrDatabase, "failed to update upload", err)
	}
	return nil
}

// DeleteUpload removes a pending upload. Idempotent.
func (q *Queue) DeleteUpload(id string) error {
	if err := q.repo.DeleteUpload(id); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete upload", err)
	}
	return nil
}

// RetryUpload puts a stuck upload back to a clean pending state so the next
// sync picks it up immediately: retries reset to zero, error cleared.
// Synced records are terminal and report UPLOAD_NOT_FOUND.
func (q *Queue) RetryUpload(id string) error {
	if err := q.repo.ResetUpload(id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.New(errors.ErrUploadNotFound, "no pending upload: "+id)
		}
		return errors.Wrap(errors.ErrDatabase, "failed to retry upload", err)
	}

	logging.Info("Upload reset for retry", map[string]interface{}{"upload_id": id})
	return nil
}

// PromoteDraft enqueues the draft payload as a pending upload and deletes
// the draft in one transaction, so submission can never duplicate or orphan
// the record. Reports DRAFT_NOT_FOUND when the draft is absent.
func (q *Queue) PromoteDraft(draftID string) (*models.PendingUpload, error) {
	upload, err := q.repo.PromoteDraft(draftID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrDraftNotFound, "draft not found: "+draftID)
		}
		return nil, errors.Wrap(errors.ErrDatabase, "failed to promote draft", err)
	}

	logging.Info("Draft promoted to pending upload", map[string]interface{}{
		"draft_id":  draftID,
		"upload_id": upload.ID.String(),
	})
	return upload, nil
}

// =====================================================
// Product Cache
// =====================================================

// CacheProduct stores or refreshes a registry product passport locally.
func (q *Queue) CacheProduct(product *models.Product) error {
	if product.ID == "" {
		return errors.New(errors.ErrInvalid, "cached product needs a registry id")
	}
	if err := q.repo.PutProduct(product); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to cache product", err)
	}
	return nil
}

// GetCachedProduct returns a cached product or NOT_FOUND.
func (q *Queue) GetCachedProduct(id string) (*models.Product, error) {
	product, err := q.repo.GetProduct(id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrNotFound, "product not cached: "+id)
		}
		return nil, errors.Wrap(errors.ErrDatabase, "failed to get cached product", err)
	}
	return product, nil
}

// ListCachedProducts returns cached products, optionally filtered by category.
func (q *Queue) ListCachedProducts(category string) ([]*models.Product, error) {
	products, err := q.repo.ListProducts(category)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list cached products", err)
	}
	return products, nil
}

// ClearProductCache empties the local product cache.
func (q *Queue) ClearProductCache() error {
	if err := q.repo.ClearProducts(); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to clear product cache", err)
	}
	logging.Info("Product cache cleared", nil)
	return nil
}
