// Package models provides data model definitions for the passport core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Draft represents an in-progress product registration the user has not
// submitted yet. The payload is opaque to the queue: the UI owns its shape
// (product name, category, quantity, site location and so on).
type Draft struct {
	ID        UUID            `db:"id" json:"id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Draft.
func (Draft) TableName() string {
	return "drafts"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (d *Draft) CreatedAtTime() time.Time {
	return time.Unix(d.CreatedAt, 0)
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (d *Draft) UpdatedAtTime() time.Time {
	return time.Unix(d.UpdatedAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (d *Draft) Touch() {
	d.UpdatedAt = time.Now().Unix()
}
