package models

import (
	"encoding/json"
	"time"
)

// Permission is the persisted access policy for one (Profile, Table) pair.
// Document holds the versioned policy document; see pkg/policy for its schema.
type Permission struct {
	ID        int64           `db:"id"         json:"id"`
	ProfileID int64           `db:"profile_id" json:"profile_id"`
	TableRef  string          `db:"table_ref"  json:"table_ref"`
	Document  json.RawMessage `db:"document"   json:"document"`
	UpdatedBy string          `db:"updated_by" json:"updated_by"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
