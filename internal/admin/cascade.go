package admin

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/policyadmin/internal/store"
	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// KindDeletion names deletion tickets in errors.
const KindDeletion models.EntityKind = "deletion"

var tableCodePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Cascade removes subtrees of the tenant hierarchy. Each top-level call runs
// in one write transaction with the root row locked, so a failure at any step
// leaves the store untouched.
type Cascade struct {
	store    store.Store
	guard    *Guard
	tickets  TicketStore
	policies PolicyCache
	logger   *slog.Logger
	now      func() time.Time
}

// CascadeOption configures a Cascade.
type CascadeOption func(*Cascade)

// WithClock overrides the preview timestamp source.
func WithClock(now func() time.Time) CascadeOption {
	return func(c *Cascade) { c.now = now }
}

// WithPolicyCache makes the cascade drop cached policies of removed profiles.
func WithPolicyCache(pc PolicyCache) CascadeOption {
	return func(c *Cascade) { c.policies = pc }
}

// NewCascade creates a Cascade. tickets holds previews between Preview and
// Execute and must not be nil.
func NewCascade(s store.Store, guard *Guard, tickets TicketStore, logger *slog.Logger, opts ...CascadeOption) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cascade{store: s, guard: guard, tickets: tickets, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Preview walks the subtree of target without writing and stores the report
// under a new ticket. The caller confirms by passing the ticket and the
// Confirmation text back to Execute.
func (c *Cascade) Preview(ctx context.Context, p models.Principal, target models.DeletionTarget) (*models.DeletionPreview, error) {
	if err := checkTarget(target); err != nil {
		return nil, err
	}
	scope, err := c.guard.Scope(ctx, p)
	if err != nil {
		return nil, err
	}
	preview := &models.DeletionPreview{
		Ticket:      uuid.New(),
		Target:      target,
		State:       models.DeletionRequested,
		PrincipalID: p.ID,
		CreatedAt:   c.now().UTC(),
	}
	err = c.store.ReadTx(ctx, func(tx store.Tx) error {
		gid, confirm, err := resolveRoot(ctx, tx, target, false)
		if err != nil {
			return err
		}
		if err := scope.Require(target.Kind, gid); err != nil {
			return err
		}
		pl := &plan{ctx: ctx, tx: tx, dry: true, counts: models.DeletionCounts{}}
		if err := pl.run(target); err != nil {
			return err
		}
		preview.GroupID = gid
		preview.Confirmation = confirm
		preview.Counts = pl.counts
		return nil
	})
	if err != nil {
		return nil, err
	}
	preview.State = models.DeletionPreviewed
	if err := c.tickets.SaveTicket(ctx, preview); err != nil {
		return nil, fmt.Errorf("save deletion ticket: %w", err)
	}
	return preview, nil
}

// Execute runs a previewed deletion once the caller re-types the
// confirmation text. Only one call can claim a ticket. The ticket is consumed
// on success. On failure it is kept in the RolledBack state and nothing is
// removed.
func (c *Cascade) Execute(ctx context.Context, p models.Principal, ticket uuid.UUID, confirmation string) (*models.DeletionResult, error) {
	prev, ok, err := c.tickets.LoadTicket(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("load deletion ticket: %w", err)
	}
	if !ok {
		return nil, &apperr.NotFoundError{Entity: KindDeletion, Key: ticket.String()}
	}
	if prev.PrincipalID != p.ID {
		return nil, &apperr.PermissionError{
			PrincipalID: p.ID, Login: p.Login, GroupID: prev.GroupID, Entity: prev.Target.Kind,
			Msg: "deletion ticket was issued to another principal",
		}
	}
	if prev.State != models.DeletionPreviewed {
		return nil, &apperr.ValidationError{
			Kind: apperr.InvalidStateTransition, Entity: KindDeletion, Field: "state", Value: prev.State,
			Msg: "only a previewed deletion can be executed",
		}
	}
	if strings.TrimSpace(confirmation) != prev.Confirmation {
		return nil, &apperr.ValidationError{
			Kind: apperr.ConfirmationMismatch, Entity: prev.Target.Kind, Field: "confirmation", Value: confirmation,
		}
	}

	claimed, err := c.tickets.ClaimTicket(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("claim deletion ticket: %w", err)
	}
	if !claimed {
		return nil, &apperr.ValidationError{
			Kind: apperr.InvalidStateTransition, Entity: KindDeletion, Field: "state", Value: models.DeletionExecuting,
			Msg: "deletion is already being executed",
		}
	}
	prev.State = models.DeletionExecuting
	if err := c.tickets.SaveTicket(ctx, prev); err != nil {
		c.logger.Warn("deletion ticket update failed", "ticket", ticket, "error", err)
	}

	res, err := c.execute(ctx, p, prev.Target, prev.Counts)
	if err != nil {
		prev.State = models.DeletionRolledBack
		if serr := c.tickets.SaveTicket(ctx, prev); serr != nil {
			c.logger.Warn("deletion ticket update failed", "ticket", ticket, "error", serr)
		}
		return nil, err
	}
	if err := c.tickets.DeleteTicket(ctx, ticket); err != nil {
		c.logger.Warn("deletion ticket cleanup failed", "ticket", ticket, "error", err)
	}
	return res, nil
}

// DeleteGroup removes a group with all its modules and companies.
func (c *Cascade) DeleteGroup(ctx context.Context, p models.Principal, id int64) (*models.DeletionResult, error) {
	return c.execute(ctx, p, models.DeletionTarget{Kind: models.KindGroup, ID: id}, nil)
}

// DeleteModule removes a module with its catalog tables and columns.
func (c *Cascade) DeleteModule(ctx context.Context, p models.Principal, id int64) (*models.DeletionResult, error) {
	return c.execute(ctx, p, models.DeletionTarget{Kind: models.KindModule, ID: id}, nil)
}

// DeleteCompany removes a company with its profiles, their permissions, the
// grants naming it and the users homed in it.
func (c *Cascade) DeleteCompany(ctx context.Context, p models.Principal, id int64) (*models.DeletionResult, error) {
	return c.execute(ctx, p, models.DeletionTarget{Kind: models.KindCompany, ID: id}, nil)
}

// DeleteProfile removes a profile and its permissions. It refuses while any
// user or grant still references the profile.
func (c *Cascade) DeleteProfile(ctx context.Context, p models.Principal, id int64) (*models.DeletionResult, error) {
	return c.execute(ctx, p, models.DeletionTarget{Kind: models.KindProfile, ID: id}, nil)
}

// DeleteUser removes a user's grants, then the user.
func (c *Cascade) DeleteUser(ctx context.Context, p models.Principal, id int64) (*models.DeletionResult, error) {
	return c.execute(ctx, p, models.DeletionTarget{Kind: models.KindUser, ID: id}, nil)
}

// execute runs the cascade for target. When expected is non-nil the removal
// is refused unless it matches the previewed counts.
func (c *Cascade) execute(ctx context.Context, p models.Principal, target models.DeletionTarget, expected models.DeletionCounts) (*models.DeletionResult, error) {
	if err := checkTarget(target); err != nil {
		return nil, err
	}
	ctx, rid := ensureRequestID(ctx)
	scope, err := c.guard.Scope(ctx, p)
	if err != nil {
		return nil, err
	}

	var pl *plan
	err = c.store.WriteTx(ctx, func(tx store.Tx) error {
		gid, _, err := resolveRoot(ctx, tx, target, true)
		if err != nil {
			return err
		}
		if err := scope.Require(target.Kind, gid); err != nil {
			return err
		}
		pl = &plan{ctx: ctx, tx: tx, counts: models.DeletionCounts{}}
		if err := pl.run(target); err != nil {
			return err
		}
		if expected != nil && !maps.Equal(expected, pl.counts) {
			return &apperr.ValidationError{
				Kind: apperr.InvalidStateTransition, Entity: target.Kind,
				Msg: "subtree changed since the preview; preview again",
			}
		}
		return auditRecord(ctx, tx, p, models.ActionDelete, target.Kind, target.ID, nil, pl.counts, "cascade delete")
	})
	if err != nil {
		c.recordFailure(ctx, p, target, err)
		c.logger.Error("cascade rolled back", "entity", target.Kind, "id", target.ID, "principal", p.Login, "error", err)
		return nil, err
	}

	c.invalidate(ctx, pl.profiles)
	c.logger.Info("cascade committed", "entity", target.Kind, "id", target.ID,
		"principal", p.Login, "removed", pl.counts.Total())
	return &models.DeletionResult{
		Target:    target,
		Counts:    pl.counts,
		State:     models.DeletionCommitted,
		RequestID: rid,
	}, nil
}

// RemoveGroup deletes an empty group. It refuses while modules or companies
// remain.
func (c *Cascade) RemoveGroup(ctx context.Context, p models.Principal, id int64) error {
	return c.remove(ctx, p, models.KindGroup, id, func(ctx context.Context, tx store.Tx) (int64, models.DeletionCounts, error) {
		if err := tx.LockGroup(ctx, id); err != nil {
			return 0, nil, translate(err, models.KindGroup, id)
		}
		modules, err := tx.ListModules(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		companies, err := tx.ListCompanies(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		deps := models.DeletionCounts{}
		addCount(deps, models.KindModule, len(modules))
		addCount(deps, models.KindCompany, len(companies))
		return id, deps, nil
	}, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteGroup(ctx, id)
	})
}

// RemoveCompany deletes a company without profiles or grants.
func (c *Cascade) RemoveCompany(ctx context.Context, p models.Principal, id int64) error {
	return c.remove(ctx, p, models.KindCompany, id, func(ctx context.Context, tx store.Tx) (int64, models.DeletionCounts, error) {
		if err := tx.LockCompany(ctx, id); err != nil {
			return 0, nil, translate(err, models.KindCompany, id)
		}
		gid, err := groupOfCompany(ctx, tx, id)
		if err != nil {
			return 0, nil, err
		}
		profiles, err := tx.ListProfiles(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		grants, err := tx.ListGrantsForCompany(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		deps := models.DeletionCounts{}
		addCount(deps, models.KindProfile, len(profiles))
		addCount(deps, models.KindGrant, len(grants))
		return gid, deps, nil
	}, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteCompany(ctx, id)
	})
}

func (c *Cascade) remove(ctx context.Context, p models.Principal, kind models.EntityKind, id int64,
	inspect func(context.Context, store.Tx) (int64, models.DeletionCounts, error),
	del func(context.Context, store.Tx) error) error {
	scope, err := c.guard.Scope(ctx, p)
	if err != nil {
		return err
	}
	err = c.store.WriteTx(ctx, func(tx store.Tx) error {
		gid, deps, err := inspect(ctx, tx)
		if err != nil {
			return err
		}
		if err := scope.Require(kind, gid); err != nil {
			return err
		}
		if deps.Total() > 0 {
			return &apperr.ReferentialIntegrityError{
				Kind: apperr.DependentsExist, Entity: kind, ID: id, Dependents: deps,
				Msg: "use the cascading delete to remove dependents",
			}
		}
		if err := del(ctx, tx); err != nil {
			return translate(err, kind, id)
		}
		return auditRecord(ctx, tx, p, models.ActionDelete, kind, id, nil, nil, "")
	})
	if err != nil {
		return err
	}
	c.guard.Invalidate(ctx)
	c.logger.Info("entity removed", "entity", kind, "id", id, "principal", p.Login)
	return nil
}

// RemoveCatalogTables deletes the named catalog tables of a module and their
// columns. Codes are upper-cased and may hold only A-Z, 0-9 and underscore.
// Unknown codes are skipped. It returns the number of tables removed.
func (c *Cascade) RemoveCatalogTables(ctx context.Context, p models.Principal, moduleID int64, codes []string) (int, error) {
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if !tableCodePattern.MatchString(code) {
			return 0, &apperr.ValidationError{
				Kind: apperr.MalformedIdentifier, Entity: models.KindCatalogTable, Field: "table_code", Value: code,
			}
		}
		normalized = append(normalized, code)
	}
	if len(normalized) == 0 {
		return 0, nil
	}
	scope, err := c.guard.Scope(ctx, p)
	if err != nil {
		return 0, err
	}
	counts := models.DeletionCounts{}
	err = c.store.WriteTx(ctx, func(tx store.Tx) error {
		if err := tx.LockModule(ctx, moduleID); err != nil {
			return translate(err, models.KindModule, moduleID)
		}
		gid, err := groupOfModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := scope.Require(models.KindCatalogTable, gid); err != nil {
			return err
		}
		for _, code := range normalized {
			t, err := tx.FindCatalogTableByCode(ctx, moduleID, code)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return err
			}
			n, err := tx.DeleteCatalogColumnsByTable(ctx, t.ID)
			if err != nil {
				return err
			}
			addCount(counts, models.KindCatalogColumn, n)
			if err := tx.DeleteCatalogTable(ctx, t.ID); err != nil {
				return translate(err, models.KindCatalogTable, t.ID)
			}
			addCount(counts, models.KindCatalogTable, 1)
		}
		return auditRecord(ctx, tx, p, models.ActionDelete, models.KindModule, moduleID, nil, counts, "catalog tables removed")
	})
	if err != nil {
		return 0, err
	}
	return counts[models.KindCatalogTable], nil
}

func (c *Cascade) recordFailure(ctx context.Context, p models.Principal, target models.DeletionTarget, cause error) {
	err := c.store.WriteTx(ctx, func(tx store.Tx) error {
		return tx.AppendAudit(ctx, &models.AuditEntry{
			RequestID:      requestID(ctx),
			PrincipalID:    p.ID,
			PrincipalLogin: p.Login,
			Action:         models.ActionDelete,
			Entity:         target.Kind,
			RecordID:       fmt.Sprint(target.ID),
			Status:         models.AuditStatusFailure,
			Message:        cause.Error(),
		})
	})
	if err != nil {
		c.logger.Warn("audit of failed cascade not written", "entity", target.Kind, "id", target.ID, "error", err)
	}
}

func (c *Cascade) invalidate(ctx context.Context, profiles []int64) {
	if c.policies != nil {
		for _, id := range profiles {
			if err := c.policies.InvalidateProfile(ctx, id); err != nil {
				c.logger.Warn("policy cache invalidation failed", "profile", id, "error", err)
			}
		}
	}
	c.guard.Invalidate(ctx)
}

func ensureRequestID(ctx context.Context) (context.Context, uuid.UUID) {
	if id, ok := ctx.Value(ctxKey{}).(uuid.UUID); ok {
		return ctx, id
	}
	id := uuid.New()
	return WithRequestID(ctx, id), id
}

func checkTarget(t models.DeletionTarget) error {
	switch t.Kind {
	case models.KindGroup, models.KindCompany, models.KindModule, models.KindProfile, models.KindUser:
	default:
		return &apperr.ValidationError{
			Kind: apperr.InvalidStateTransition, Entity: KindDeletion, Field: "kind", Value: string(t.Kind),
			Msg: "deletion is supported for group, company, module, profile and user",
		}
	}
	if t.ID <= 0 {
		return apperr.Missing(t.Kind, "id")
	}
	return nil
}

// resolveRoot resolves the owning group and the confirmation text of a deletion
// target, locking the row when lock is set.
func resolveRoot(ctx context.Context, tx store.Tx, t models.DeletionTarget, lock bool) (int64, string, error) {
	switch t.Kind {
	case models.KindGroup:
		if lock {
			if err := tx.LockGroup(ctx, t.ID); err != nil {
				return 0, "", translate(err, t.Kind, t.ID)
			}
		}
		g, err := tx.GetGroup(ctx, t.ID)
		if err != nil {
			return 0, "", translate(err, t.Kind, t.ID)
		}
		return g.ID, g.Name, nil
	case models.KindCompany:
		if lock {
			if err := tx.LockCompany(ctx, t.ID); err != nil {
				return 0, "", translate(err, t.Kind, t.ID)
			}
		}
		co, err := tx.GetCompany(ctx, t.ID)
		if err != nil {
			return 0, "", translate(err, t.Kind, t.ID)
		}
		return co.GroupID, co.Name, nil
	case models.KindModule:
		if lock {
			if err := tx.LockModule(ctx, t.ID); err != nil {
				return 0, "", translate(err, t.Kind, t.ID)
			}
		}
		m, err := tx.GetModule(ctx, t.ID)
		if err != nil {
			return 0, "", translate(err, t.Kind, t.ID)
		}
		return m.GroupID, m.Code, nil
	case models.KindProfile:
		if lock {
			if err := tx.LockProfile(ctx, t.ID); err != nil {
				return 0, "", translate(err, t.Kind, t.ID)
			}
		}
		pr, err := tx.GetProfile(ctx, t.ID)
		if err != nil {
			return 0, "", translate(err, t.Kind, t.ID)
		}
		gid, err := groupOfCompany(ctx, tx, pr.CompanyID)
		return gid, pr.Description, err
	case models.KindUser:
		u, err := tx.GetUser(ctx, t.ID)
		if err != nil {
			return 0, "", translate(err, t.Kind, t.ID)
		}
		gid, err := groupOfProfile(ctx, tx, u.HomeProfileID)
		return gid, u.Name, err
	}
	return 0, "", checkTarget(t)
}

// plan walks a subtree children-first. A dry plan only counts; a real plan
// deletes as it counts, so both report the same numbers for an unchanged
// subtree. A grant is counted once per walk even when both its company and
// its user lie inside the subtree.
type plan struct {
	ctx      context.Context
	tx       store.Tx
	dry      bool
	counts   models.DeletionCounts
	profiles []int64
	grants   map[grantKey]bool
}

func addCount(c models.DeletionCounts, kind models.EntityKind, n int) {
	if n > 0 {
		c[kind] += n
	}
}

func (pl *plan) run(t models.DeletionTarget) error {
	switch t.Kind {
	case models.KindGroup:
		return pl.group(t.ID)
	case models.KindModule:
		return pl.module(t.ID)
	case models.KindCompany:
		return pl.company(t.ID)
	case models.KindProfile:
		return pl.profile(t.ID)
	case models.KindUser:
		return pl.user(t.ID)
	}
	return checkTarget(t)
}

func (pl *plan) group(id int64) error {
	modules, err := pl.tx.ListModules(pl.ctx, id)
	if err != nil {
		return err
	}
	for _, m := range modules {
		if err := pl.module(m.ID); err != nil {
			return err
		}
	}
	companies, err := pl.tx.ListCompanies(pl.ctx, id)
	if err != nil {
		return err
	}
	for _, co := range companies {
		if err := pl.company(co.ID); err != nil {
			return err
		}
	}
	if !pl.dry {
		if err := pl.tx.DeleteGroup(pl.ctx, id); err != nil {
			return translate(err, models.KindGroup, id)
		}
	}
	addCount(pl.counts, models.KindGroup, 1)
	return nil
}

func (pl *plan) module(id int64) error {
	if pl.dry {
		tables, err := pl.tx.ListCatalogTables(pl.ctx, id)
		if err != nil {
			return err
		}
		for _, t := range tables {
			cols, err := pl.tx.ListCatalogColumns(pl.ctx, t.ID)
			if err != nil {
				return err
			}
			addCount(pl.counts, models.KindCatalogColumn, len(cols))
		}
		addCount(pl.counts, models.KindCatalogTable, len(tables))
	} else {
		n, err := pl.tx.DeleteCatalogColumnsByModule(pl.ctx, id)
		if err != nil {
			return err
		}
		addCount(pl.counts, models.KindCatalogColumn, n)
		if n, err = pl.tx.DeleteCatalogTablesByModule(pl.ctx, id); err != nil {
			return err
		}
		addCount(pl.counts, models.KindCatalogTable, n)
		if err := pl.tx.DeleteModule(pl.ctx, id); err != nil {
			return translate(err, models.KindModule, id)
		}
	}
	addCount(pl.counts, models.KindModule, 1)
	return nil
}

type grantKey struct{ user, company int64 }

func (pl *plan) company(id int64) error {
	profiles, err := pl.tx.ListProfiles(pl.ctx, id)
	if err != nil {
		return err
	}
	for _, pr := range profiles {
		pl.profiles = append(pl.profiles, pr.ID)
		if err := pl.permissions(pr.ID); err != nil {
			return err
		}
	}

	grants, err := pl.tx.ListGrantsForCompany(pl.ctx, id)
	if err != nil {
		return err
	}
	if err := pl.dropGrants(grants, func() (int, error) {
		return pl.tx.DeleteGrantsForCompany(pl.ctx, id)
	}); err != nil {
		return err
	}

	for _, pr := range profiles {
		users, err := pl.tx.ListUsersByHomeProfile(pl.ctx, pr.ID)
		if err != nil {
			return err
		}
		for _, u := range users {
			if err := pl.user(u.ID); err != nil {
				return err
			}
		}
	}

	for _, pr := range profiles {
		if !pl.dry {
			if err := pl.tx.DeleteProfile(pl.ctx, pr.ID); err != nil {
				return translate(err, models.KindProfile, pr.ID)
			}
		}
		addCount(pl.counts, models.KindProfile, 1)
	}
	if !pl.dry {
		if err := pl.tx.DeleteCompany(pl.ctx, id); err != nil {
			return translate(err, models.KindCompany, id)
		}
	}
	addCount(pl.counts, models.KindCompany, 1)
	return nil
}

func (pl *plan) profile(id int64) error {
	pr, err := pl.tx.GetProfile(pl.ctx, id)
	if err != nil {
		return translate(err, models.KindProfile, id)
	}
	users, err := pl.tx.ListUsersByHomeProfile(pl.ctx, id)
	if err != nil {
		return err
	}
	grants, err := pl.tx.ListGrantsForCompany(pl.ctx, pr.CompanyID)
	if err != nil {
		return err
	}
	using := 0
	for _, g := range grants {
		if g.ProfileID == id {
			using++
		}
	}
	if len(users) > 0 || using > 0 {
		deps := models.DeletionCounts{}
		addCount(deps, models.KindUser, len(users))
		addCount(deps, models.KindGrant, using)
		return &apperr.ReferentialIntegrityError{
			Kind: apperr.DependentsExist, Entity: models.KindProfile, ID: id, Dependents: deps,
			Msg: "reassign or delete the users of this profile first",
		}
	}
	pl.profiles = append(pl.profiles, id)
	if err := pl.permissions(id); err != nil {
		return err
	}
	if !pl.dry {
		if err := pl.tx.DeleteProfile(pl.ctx, id); err != nil {
			return translate(err, models.KindProfile, id)
		}
	}
	addCount(pl.counts, models.KindProfile, 1)
	return nil
}

func (pl *plan) permissions(profileID int64) error {
	if pl.dry {
		perms, err := pl.tx.ListPermissions(pl.ctx, profileID)
		if err != nil {
			return err
		}
		addCount(pl.counts, models.KindPermission, len(perms))
		return nil
	}
	n, err := pl.tx.DeletePermissionsByProfile(pl.ctx, profileID)
	if err != nil {
		return err
	}
	addCount(pl.counts, models.KindPermission, n)
	return nil
}

// user removes a user and its grants.
func (pl *plan) user(id int64) error {
	grants, err := pl.tx.ListGrantsForUser(pl.ctx, id)
	if err != nil {
		return err
	}
	if err := pl.dropGrants(grants, func() (int, error) {
		return pl.tx.DeleteGrantsForUser(pl.ctx, id)
	}); err != nil {
		return err
	}
	if !pl.dry {
		if err := pl.tx.DeleteUser(pl.ctx, id); err != nil {
			return translate(err, models.KindUser, id)
		}
	}
	addCount(pl.counts, models.KindUser, 1)
	return nil
}

// dropGrants counts the grants not yet seen in this walk and, for a real
// plan, removes them with del.
func (pl *plan) dropGrants(grants []models.UserCompanyGrant, del func() (int, error)) error {
	if pl.grants == nil {
		pl.grants = make(map[grantKey]bool)
	}
	n := 0
	for _, g := range grants {
		k := grantKey{g.UserID, g.CompanyID}
		if pl.grants[k] {
			continue
		}
		pl.grants[k] = true
		n++
	}
	if !pl.dry {
		if _, err := del(); err != nil {
			return err
		}
	}
	addCount(pl.counts, models.KindGrant, n)
	return nil
}
