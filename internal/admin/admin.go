// Package admin implements the tenant administration core: the access guard,
// hierarchy maintenance, cascade deletion and the policy store. Every mutating
// call takes the caller's Principal explicitly and runs as one store
// transaction.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/policyadmin/internal/store"
	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
	"github.com/kiranshivaraju/policyadmin/pkg/policy"
)

// GroupCache caches the authorized-group set of portal principals.
type GroupCache interface {
	GetGroups(ctx context.Context, principalID int64) ([]int64, bool, error)
	SetGroups(ctx context.Context, principalID int64, groupIDs []int64) error
	// InvalidateGroups drops every cached set. Grants, users and companies
	// all feed the set, so any change to them clears the whole cache.
	InvalidateGroups(ctx context.Context) error
}

// TicketStore holds deletion previews between Preview and Execute.
type TicketStore interface {
	SaveTicket(ctx context.Context, p *models.DeletionPreview) error
	LoadTicket(ctx context.Context, ticket uuid.UUID) (*models.DeletionPreview, bool, error)
	DeleteTicket(ctx context.Context, ticket uuid.UUID) error
	// ClaimTicket reports true to exactly one caller per ticket.
	ClaimTicket(ctx context.Context, ticket uuid.UUID) (bool, error)
}

// CachedPolicy is a cached PolicyStore lookup. Found is false for pairs that
// have no saved policy.
type CachedPolicy struct {
	Found  bool               `msgpack:"found"`
	Policy policy.TablePolicy `msgpack:"policy"`
}

// PolicyCache caches policy lookups per (profile, table).
type PolicyCache interface {
	GetPolicy(ctx context.Context, profileID int64, table string) (*CachedPolicy, error)
	SetPolicy(ctx context.Context, profileID int64, table string, cp CachedPolicy) error
	InvalidateProfile(ctx context.Context, profileID int64) error
}

type ctxKey struct{}

// WithRequestID attaches the id recorded on audit entries written while
// serving ctx.
func WithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func requestID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ctxKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.New()
}

// auditRecord appends one successful audit entry inside tx.
func auditRecord(ctx context.Context, tx store.Tx, p models.Principal, action string,
	entity models.EntityKind, id int64, before, after any, msg string) error {
	e := &models.AuditEntry{
		RequestID:      requestID(ctx),
		PrincipalID:    p.ID,
		PrincipalLogin: p.Login,
		Action:         action,
		Entity:         entity,
		RecordID:       strconv.FormatInt(id, 10),
		Before:         snapshot(before),
		After:          snapshot(after),
		Status:         models.AuditStatusSuccess,
		Message:        msg,
	}
	return tx.AppendAudit(ctx, e)
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if rm, ok := v.(json.RawMessage); ok {
		return rm
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return b
}

// translate maps store sentinels onto the public error taxonomy.
func translate(err error, entity models.EntityKind, id int64) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(entity, id)
	case errors.Is(err, store.ErrDuplicateKey):
		return &apperr.ValidationError{Kind: apperr.DuplicateName, Entity: entity, Msg: err.Error()}
	case errors.Is(err, store.ErrForeignKey):
		return &apperr.ReferentialIntegrityError{Kind: apperr.DependentsExist, Entity: entity, ID: id, Msg: err.Error()}
	}
	return err
}

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

// --- owning-group resolution ---

func groupOfCompany(ctx context.Context, tx store.Tx, companyID int64) (int64, error) {
	c, err := tx.GetCompany(ctx, companyID)
	if err != nil {
		return 0, translate(err, models.KindCompany, companyID)
	}
	return c.GroupID, nil
}

func groupOfModule(ctx context.Context, tx store.Tx, moduleID int64) (int64, error) {
	m, err := tx.GetModule(ctx, moduleID)
	if err != nil {
		return 0, translate(err, models.KindModule, moduleID)
	}
	return m.GroupID, nil
}

func groupOfCatalogTable(ctx context.Context, tx store.Tx, tableID int64) (int64, error) {
	t, err := tx.GetCatalogTable(ctx, tableID)
	if err != nil {
		return 0, translate(err, models.KindCatalogTable, tableID)
	}
	return groupOfModule(ctx, tx, t.ModuleID)
}

func groupOfProfile(ctx context.Context, tx store.Tx, profileID int64) (int64, error) {
	p, err := tx.GetProfile(ctx, profileID)
	if err != nil {
		return 0, translate(err, models.KindProfile, profileID)
	}
	return groupOfCompany(ctx, tx, p.CompanyID)
}

func groupOfUser(ctx context.Context, tx store.Tx, userID int64) (int64, error) {
	u, err := tx.GetUser(ctx, userID)
	if err != nil {
		return 0, translate(err, models.KindUser, userID)
	}
	return groupOfProfile(ctx, tx, u.HomeProfileID)
}
