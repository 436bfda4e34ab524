package models

import (
	"time"

	"github.com/google/uuid"
)

// Deletion request states. A request moves Requested -> Previewed -> Confirmed
// -> Executing and ends in Committed or RolledBack.
const (
	DeletionRequested  = "requested"
	DeletionPreviewed  = "previewed"
	DeletionConfirmed  = "confirmed"
	DeletionExecuting  = "executing"
	DeletionCommitted  = "committed"
	DeletionRolledBack = "rolled_back"
)

// DeletionTarget identifies the root entity of a deletion request.
type DeletionTarget struct {
	Kind EntityKind `json:"kind" msgpack:"kind"`
	ID   int64      `json:"id"   msgpack:"id"`
}

// DeletionCounts holds how many rows of each entity kind a deletion removes.
type DeletionCounts map[EntityKind]int

// Total returns the sum of all counts.
func (c DeletionCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// DeletionPreview is the read-only report produced before a cascade executes.
// Confirmation is the text the caller must re-type (the entity's name or code).
type DeletionPreview struct {
	Ticket       uuid.UUID      `json:"ticket"       msgpack:"ticket"`
	Target       DeletionTarget `json:"target"       msgpack:"target"`
	GroupID      int64          `json:"group_id"     msgpack:"group_id"`
	Confirmation string         `json:"confirmation" msgpack:"confirmation"`
	Counts       DeletionCounts `json:"counts"       msgpack:"counts"`
	State        string         `json:"state"        msgpack:"state"`
	PrincipalID  int64          `json:"principal_id" msgpack:"principal_id"`
	CreatedAt    time.Time      `json:"created_at"   msgpack:"created_at"`
}

// DeletionResult reports a finished cascade.
type DeletionResult struct {
	Target    DeletionTarget `json:"target"`
	Counts    DeletionCounts `json:"counts"`
	State     string         `json:"state"`
	RequestID uuid.UUID      `json:"request_id"`
}
