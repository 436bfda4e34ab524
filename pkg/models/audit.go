package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionGrant  = "GRANT"
)

// AuditEntry is one append-only record of a mutation. Before and After hold
// JSON snapshots of the affected row; either may be empty.
type AuditEntry struct {
	ID             int64           `db:"id"              json:"id"`
	RequestID      uuid.UUID       `db:"request_id"      json:"request_id"`
	PrincipalID    int64           `db:"principal_id"    json:"principal_id"`
	PrincipalLogin string          `db:"principal_login" json:"principal_login"`
	Action         string          `db:"action"          json:"action"`
	Entity         EntityKind      `db:"entity"          json:"entity"`
	RecordID       string          `db:"record_id"       json:"record_id"`
	Before         json.RawMessage `db:"before_values"   json:"before,omitempty"`
	After          json.RawMessage `db:"after_values"    json:"after,omitempty"`
	Status         string          `db:"status"          json:"status"`
	Message        string          `db:"message"         json:"message,omitempty"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
}
