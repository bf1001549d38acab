// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"testing"
	"time"
)

// TestUUID_Value verifies the Value() method returns the raw string.
func TestUUID_Value(t *testing.T) {
	uuid := UUID("123e4567-e89b-42d3-a456-426614174000")

	val, err := uuid.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	if val != "123e4567-e89b-42d3-a456-426614174000" {
		t.Errorf("Value() = %v, want '123e4567-e89b-42d3-a456-426614174000'", val)
	}
}

// TestUUID_Scan verifies scanning from the driver value types SQLite hands back.
func TestUUID_Scan(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  UUID
	}{
		{"nil", nil, ""},
		{"string", "123e4567-e89b-42d3-a456-426614174000", "123e4567-e89b-42d3-a456-426614174000"},
		{"bytes", []byte("123e4567-e89b-42d3-a456-426614174000"), "123e4567-e89b-42d3-a456-426614174000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var uuid UUID
			if err := uuid.Scan(tt.input); err != nil {
				t.Fatalf("Scan(%v) error = %v", tt.input, err)
			}
			if uuid != tt.want {
				t.Errorf("Scan(%v) = %q, want %q", tt.input, uuid, tt.want)
			}
		})
	}
}

// TestUUID_Scan_unsupported verifies unsupported types are rejected.
func TestUUID_Scan_unsupported(t *testing.T) {
	var uuid UUID
	if err := uuid.Scan(42); err == nil {
		t.Error("Scan(int) error = nil, want error")
	}
}

// TestDraft_Touch verifies Touch refreshes the update timestamp.
func TestDraft_Touch(t *testing.T) {
	d := &Draft{
		ID:        "draft-1",
		Payload:   json.RawMessage(`{"productName":"Cement 50kg"}`),
		CreatedAt: 1000,
		UpdatedAt: 1000,
	}

	d.Touch()

	if d.UpdatedAt <= 1000 {
		t.Errorf("Touch() UpdatedAt = %d, want > 1000", d.UpdatedAt)
	}
	if d.CreatedAt != 1000 {
		t.Errorf("Touch() changed CreatedAt to %d", d.CreatedAt)
	}
}

// TestPendingUpload_Eligible verifies backoff eligibility rules.
func TestPendingUpload_Eligible(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		upload PendingUpload
		want   bool
	}{
		{
			"pending and due",
			PendingUpload{Status: UploadStatusPending, NextRetryAt: now.Unix() - 10},
			true,
		},
		{
			"pending but backed off",
			PendingUpload{Status: UploadStatusPending, NextRetryAt: now.Unix() + 300},
			false,
		},
		{
			"already synced",
			PendingUpload{Status: UploadStatusSynced, NextRetryAt: 0},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.upload.Eligible(now); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPendingUpload_SyncedAtTime verifies nil handling for the synced timestamp.
func TestPendingUpload_SyncedAtTime(t *testing.T) {
	var p PendingUpload
	if !p.SyncedAtTime().IsZero() {
		t.Error("SyncedAtTime() on unsynced upload should be zero")
	}

	ts := int64(1700000000)
	p.SyncedAt = &ts
	if p.SyncedAtTime().Unix() != ts {
		t.Errorf("SyncedAtTime() = %d, want %d", p.SyncedAtTime().Unix(), ts)
	}
}

// TestTableNames verifies each model maps to its expected table.
func TestTableNames(t *testing.T) {
	if got := (Draft{}).TableName(); got != "drafts" {
		t.Errorf("Draft.TableName() = %q", got)
	}
	if got := (PendingUpload{}).TableName(); got != "pending_uploads" {
		t.Errorf("PendingUpload.TableName() = %q", got)
	}
	if got := (Product{}).TableName(); got != "products" {
		t.Errorf("Product.TableName() = %q", got)
	}
	if got := (SyncAttempt{}).TableName(); got != "sync_attempts" {
		t.Errorf("SyncAttempt.TableName() = %q", got)
	}
}
