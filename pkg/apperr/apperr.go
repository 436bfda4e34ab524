// Package apperr defines the typed errors every mutating operation returns.
//
// Each error type matches one sentinel through errors.Is, so callers can branch
// on the category and use errors.As to read the context (entity kind, id,
// conflicting name) needed to correct their input.
package apperr

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrPermission           = errors.New("permission denied")
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	ErrNotFound             = errors.New("resource not found")
)

// ValidationKind classifies a ValidationError.
type ValidationKind string

const (
	DuplicateName          ValidationKind = "duplicate_name"
	MalformedIdentifier    ValidationKind = "malformed_identifier"
	MalformedRule          ValidationKind = "malformed_rule"
	MissingField           ValidationKind = "missing_field"
	ConfirmationMismatch   ValidationKind = "confirmation_mismatch"
	UnsupportedDocument    ValidationKind = "unsupported_document"
	InvalidStateTransition ValidationKind = "invalid_state_transition"
)

// ValidationError rejects input before any write happens.
type ValidationError struct {
	Kind   ValidationKind
	Entity models.EntityKind
	Field  string
	Value  string
	Msg    string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Entity != "" {
		fmt.Fprintf(&b, " on %s", e.Entity)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s=%q)", e.Field, e.Value)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Duplicate builds the DuplicateName error for a name already taken in its scope.
func Duplicate(entity models.EntityKind, field, value string) *ValidationError {
	return &ValidationError{Kind: DuplicateName, Entity: entity, Field: field, Value: value}
}

// Missing builds the MissingField error for a required, empty attribute.
func Missing(entity models.EntityKind, field string) *ValidationError {
	return &ValidationError{Kind: MissingField, Entity: entity, Field: field}
}

// PermissionError reports that a caller's authorized groups exclude the target.
type PermissionError struct {
	PrincipalID int64
	Login       string
	GroupID     int64
	Entity      models.EntityKind
	Msg         string
}

func (e *PermissionError) Error() string {
	if e.Msg != "" {
		return "permission denied: " + e.Msg
	}
	return fmt.Sprintf("permission denied: principal %q may not modify %s in group %d",
		e.Login, e.Entity, e.GroupID)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// IntegrityKind classifies a ReferentialIntegrityError.
type IntegrityKind string

const (
	DependentsExist IntegrityKind = "dependents_exist"
	ParentMissing   IntegrityKind = "parent_missing"
	CascadeRequired IntegrityKind = "cascade_required"
)

// ReferentialIntegrityError blocks a delete (or insert) that would orphan rows.
type ReferentialIntegrityError struct {
	Kind       IntegrityKind
	Entity     models.EntityKind
	ID         int64
	Dependents models.DeletionCounts
	Msg        string
}

func (e *ReferentialIntegrityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "referential integrity: %s %d: %s", e.Entity, e.ID, e.Kind)
	if len(e.Dependents) > 0 {
		parts := make([]string, 0, len(e.Dependents))
		for _, k := range sortedKinds(e.Dependents) {
			parts = append(parts, fmt.Sprintf("%d %s", e.Dependents[k], k))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

func (e *ReferentialIntegrityError) Is(target error) bool {
	return target == ErrReferentialIntegrity
}

// NotFoundError reports an operation on a missing id.
type NotFoundError struct {
	Entity models.EntityKind
	ID     int64
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError for an id.
func NotFound(entity models.EntityKind, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func sortedKinds(c models.DeletionCounts) []models.EntityKind {
	return slices.Sorted(maps.Keys(c))
}
