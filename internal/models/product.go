package models

import "encoding/json"

// Product is a locally cached copy of a registered product passport, kept so
// the dashboard can render without hitting the registry. Unlike drafts and
// pending uploads the ID is assigned by the caller (it is the registry ID).
type Product struct {
	ID       UUID            `db:"id" json:"id"`
	Name     string          `db:"name" json:"name"`
	Category string          `db:"category" json:"category"`
	Payload  json.RawMessage `db:"payload" json:"payload"`
	CachedAt int64           `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for Product.
func (Product) TableName() string {
	return "products"
}
