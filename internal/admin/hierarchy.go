package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/policyadmin/internal/store"
	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
	"github.com/kiranshivaraju/policyadmin/pkg/policy"
)

// Hierarchy creates, updates and reads the tenant hierarchy.
type Hierarchy struct {
	store      store.Store
	guard      *Guard
	bcryptCost int
	logger     *slog.Logger
}

// NewHierarchy creates a Hierarchy. A zero bcryptCost uses bcrypt.DefaultCost.
func NewHierarchy(s store.Store, guard *Guard, bcryptCost int, logger *slog.Logger) *Hierarchy {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hierarchy{store: s, guard: guard, bcryptCost: bcryptCost, logger: logger}
}

// entitySpec describes how one entity kind is validated, scoped, checked for
// duplicates and written.
type entitySpec[T any] struct {
	kind     models.EntityKind
	id       func(*T) int64
	validate func(*T) error
	get      func(context.Context, store.Tx, int64) (*T, error)
	// group resolves the owning group from the parent ids carried by v.
	group func(context.Context, store.Tx, *T) (int64, error)
	// sibling finds the row holding v's unique key in v's scope.
	sibling func(context.Context, store.Tx, *T) (*T, error)
	key     func(*T) (field, value string)
	// alsoUnique lists further keys that must not collide within the scope.
	alsoUnique []uniqueKey[T]
	insert     func(context.Context, store.Tx, *T) error
	update     func(context.Context, store.Tx, *T) error
}

type uniqueKey[T any] struct {
	find func(context.Context, store.Tx, *T) (*T, error)
	key  func(*T) (field, value string)
}

func (ent entitySpec[T]) uniqueKeys() []uniqueKey[T] {
	return append([]uniqueKey[T]{{find: ent.sibling, key: ent.key}}, ent.alsoUnique...)
}

// upsert runs the shared write pipeline: validate, scope-check old and new
// owners, reject case-insensitive duplicates, write, audit. Everything after
// validation happens in one transaction.
func upsert[T any](ctx context.Context, h *Hierarchy, p models.Principal, ent entitySpec[T], v *T, after func(context.Context, store.Tx, *T) error) error {
	if err := ent.validate(v); err != nil {
		return err
	}
	scope, err := h.guard.Scope(ctx, p)
	if err != nil {
		return err
	}
	id := ent.id(v)
	err = h.store.WriteTx(ctx, func(tx store.Tx) error {
		var before *T
		if id != 0 {
			before, err = ent.get(ctx, tx, id)
			if err != nil {
				return translate(err, ent.kind, id)
			}
			oldGroup, err := ent.group(ctx, tx, before)
			if err != nil {
				return err
			}
			if err := scope.Require(ent.kind, oldGroup); err != nil {
				return err
			}
		}
		newGroup, err := ent.group(ctx, tx, v)
		if err != nil {
			return err
		}
		if err := scope.Require(ent.kind, newGroup); err != nil {
			return err
		}

		for _, uk := range ent.uniqueKeys() {
			existing, err := uk.find(ctx, tx, v)
			switch {
			case err == nil && ent.id(existing) != id:
				field, value := uk.key(v)
				return apperr.Duplicate(ent.kind, field, value)
			case err != nil && !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		action := models.ActionCreate
		if id == 0 {
			err = ent.insert(ctx, tx, v)
		} else {
			action = models.ActionUpdate
			err = ent.update(ctx, tx, v)
		}
		if err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				field, value := ent.key(v)
				return apperr.Duplicate(ent.kind, field, value)
			}
			return translate(err, ent.kind, id)
		}
		if after != nil {
			if err := after(ctx, tx, v); err != nil {
				return err
			}
		}
		var beforeSnap any
		if before != nil {
			beforeSnap = before
		}
		return auditRecord(ctx, tx, p, action, ent.kind, ent.id(v), beforeSnap, v, "")
	})
	if err != nil {
		return err
	}
	h.logger.Info("entity saved", "entity", ent.kind, "id", ent.id(v), "principal", p.Login)
	return nil
}

func required(kind models.EntityKind, fields ...[2]string) error {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return apperr.Missing(kind, f[0])
		}
	}
	return nil
}

func requireParent(kind models.EntityKind, field string, id int64) error {
	if id <= 0 {
		return apperr.Missing(kind, field)
	}
	return nil
}

func requireIdentifier(kind models.EntityKind, field, value string) error {
	if !policy.ValidIdentifier(value) {
		return &apperr.ValidationError{Kind: apperr.MalformedIdentifier, Entity: kind, Field: field, Value: value}
	}
	return nil
}

// --- Groups ---

var groupSpec = entitySpec[models.Group]{
	kind: models.KindGroup,
	id:   func(g *models.Group) int64 { return g.ID },
	validate: func(g *models.Group) error {
		g.Name = strings.TrimSpace(g.Name)
		return required(models.KindGroup, [2]string{"name", g.Name})
	},
	get: func(ctx context.Context, tx store.Tx, id int64) (*models.Group, error) { return tx.GetGroup(ctx, id) },
	group: func(_ context.Context, _ store.Tx, g *models.Group) (int64, error) {
		return g.ID, nil
	},
	sibling: func(ctx context.Context, tx store.Tx, g *models.Group) (*models.Group, error) {
		return tx.FindGroupByName(ctx, g.Name)
	},
	key:    func(g *models.Group) (string, string) { return "name", g.Name },
	insert: func(ctx context.Context, tx store.Tx, g *models.Group) error { return tx.InsertGroup(ctx, g) },
	update: func(ctx context.Context, tx store.Tx, g *models.Group) error { return tx.UpdateGroup(ctx, g) },
}

// UpsertGroup creates a group (administrators only) or updates one in scope.
func (h *Hierarchy) UpsertGroup(ctx context.Context, p models.Principal, g *models.Group) error {
	return upsert(ctx, h, p, groupSpec, g, nil)
}

// --- Companies ---

var companySpec = entitySpec[models.Company]{
	kind: models.KindCompany,
	id:   func(c *models.Company) int64 { return c.ID },
	validate: func(c *models.Company) error {
		c.Name = strings.TrimSpace(c.Name)
		if err := requireParent(models.KindCompany, "group_id", c.GroupID); err != nil {
			return err
		}
		return required(models.KindCompany, [2]string{"name", c.Name})
	},
	get: func(ctx context.Context, tx store.Tx, id int64) (*models.Company, error) { return tx.GetCompany(ctx, id) },
	group: func(ctx context.Context, tx store.Tx, c *models.Company) (int64, error) {
		if _, err := tx.GetGroup(ctx, c.GroupID); err != nil {
			return 0, translate(err, models.KindGroup, c.GroupID)
		}
		return c.GroupID, nil
	},
	sibling: func(ctx context.Context, tx store.Tx, c *models.Company) (*models.Company, error) {
		return tx.FindCompanyByName(ctx, c.GroupID, c.Name)
	},
	key:    func(c *models.Company) (string, string) { return "name", c.Name },
	insert: func(ctx context.Context, tx store.Tx, c *models.Company) error { return tx.InsertCompany(ctx, c) },
	update: func(ctx context.Context, tx store.Tx, c *models.Company) error { return tx.UpdateCompany(ctx, c) },
}

// UpsertCompany creates or updates a company. Moving a company between groups
// requires both groups to be in scope.
func (h *Hierarchy) UpsertCompany(ctx context.Context, p models.Principal, c *models.Company) error {
	moved := c.ID != 0
	if err := upsert(ctx, h, p, companySpec, c, nil); err != nil {
		return err
	}
	if moved {
		h.guard.Invalidate(ctx)
	}
	return nil
}

// --- Modules ---

var moduleSpec = entitySpec[models.Module]{
	kind: models.KindModule,
	id:   func(m *models.Module) int64 { return m.ID },
	validate: func(m *models.Module) error {
		m.Code = strings.TrimSpace(m.Code)
		m.Name = strings.TrimSpace(m.Name)
		if err := requireParent(models.KindModule, "group_id", m.GroupID); err != nil {
			return err
		}
		return required(models.KindModule, [2]string{"code", m.Code})
	},
	get: func(ctx context.Context, tx store.Tx, id int64) (*models.Module, error) { return tx.GetModule(ctx, id) },
	group: func(ctx context.Context, tx store.Tx, m *models.Module) (int64, error) {
		if _, err := tx.GetGroup(ctx, m.GroupID); err != nil {
			return 0, translate(err, models.KindGroup, m.GroupID)
		}
		return m.GroupID, nil
	},
	sibling: func(ctx context.Context, tx store.Tx, m *models.Module) (*models.Module, error) {
		return tx.FindModuleByCode(ctx, m.GroupID, m.Code)
	},
	key: func(m *models.Module) (string, string) { return "code", m.Code },
	alsoUnique: []uniqueKey[models.Module]{{
		find: func(ctx context.Context, tx store.Tx, m *models.Module) (*models.Module, error) {
			return tx.FindModuleByName(ctx, m.GroupID, m.Name)
		},
		key: func(m *models.Module) (string, string) { return "name", m.Name },
	}},
	insert: func(ctx context.Context, tx store.Tx, m *models.Module) error { return tx.InsertModule(ctx, m) },
	update: func(ctx context.Context, tx store.Tx, m *models.Module) error { return tx.UpdateModule(ctx, m) },
}

// UpsertModule creates or updates a module.
func (h *Hierarchy) UpsertModule(ctx context.Context, p models.Principal, m *models.Module) error {
	return upsert(ctx, h, p, moduleSpec, m, nil)
}

// --- Catalog ---

var catalogTableSpec = entitySpec[models.CatalogTable]{
	kind: models.KindCatalogTable,
	id:   func(t *models.CatalogTable) int64 { return t.ID },
	validate: func(t *models.CatalogTable) error {
		t.TableCode = strings.TrimSpace(t.TableCode)
		if err := requireParent(models.KindCatalogTable, "module_id", t.ModuleID); err != nil {
			return err
		}
		return requireIdentifier(models.KindCatalogTable, "table_code", t.TableCode)
	},
	get: func(ctx context.Context, tx store.Tx, id int64) (*models.CatalogTable, error) {
		return tx.GetCatalogTable(ctx, id)
	},
	group: func(ctx context.Context, tx store.Tx, t *models.CatalogTable) (int64, error) {
		return groupOfModule(ctx, tx, t.ModuleID)
	},
	sibling: func(ctx context.Context, tx store.Tx, t *models.CatalogTable) (*models.CatalogTable, error) {
		return tx.FindCatalogTableByCode(ctx, t.ModuleID, t.TableCode)
	},
	key: func(t *models.CatalogTable) (string, string) { return "table_code", t.TableCode },
	insert: func(ctx context.Context, tx store.Tx, t *models.CatalogTable) error {
		return tx.InsertCatalogTable(ctx, t)
	},
	update: func(ctx context.Context, tx store.Tx, t *models.CatalogTable) error {
		return tx.UpdateCatalogTable(ctx, t)
	},
}

// UpsertCatalogTable creates or updates a catalog table.
func (h *Hierarchy) UpsertCatalogTable(ctx context.Context, p models.Principal, t *models.CatalogTable) error {
	return upsert(ctx, h, p, catalogTableSpec, t, nil)
}

var catalogColumnSpec = entitySpec[models.CatalogColumn]{
	kind: models.KindCatalogColumn,
	id:   func(c *models.CatalogColumn) int64 { return c.ID },
	validate: func(c *models.CatalogColumn) error {
		c.ColumnName = strings.TrimSpace(c.ColumnName)
		if err := requireParent(models.KindCatalogColumn, "table_id", c.TableID); err != nil {
			return err
		}
		return requireIdentifier(models.KindCatalogColumn, "column_name", c.ColumnName)
	},
	get: func(ctx context.Context, tx store.Tx, id int64) (*models.CatalogColumn, error) {
		return tx.GetCatalogColumn(ctx, id)
	},
	group: func(ctx context.Context, tx store.Tx, c *models.CatalogColumn) (int64, error) {
		return groupOfCatalogTable(ctx, tx, c.TableID)
	},
	sibling: func(ctx context.Context, tx store.Tx, c *models.CatalogColumn) (*models.CatalogColumn, error) {
		return tx.FindCatalogColumnByName(ctx, c.TableID, c.ColumnName)
	},
	key: func(c *models.CatalogColumn) (string, string) { return "column_name", c.ColumnName },
	insert: func(ctx context.Context, tx store.Tx, c *models.CatalogColumn) error {
		return tx.InsertCatalogColumn(ctx, c)
	},
	update: func(ctx context.Context, tx store.Tx, c *models.CatalogColumn) error {
		return tx.UpdateCatalogColumn(ctx, c)
	},
}

// UpsertCatalogColumn creates or updates a catalog column.
func (h *Hierarchy) UpsertCatalogColumn(ctx context.Context, p models.Principal, c *models.CatalogColumn) error {
	return upsert(ctx, h, p, catalogColumnSpec, c, nil)
}

// --- Profiles ---

var profileSpec = entitySpec[models.Profile]{
	kind: models.KindProfile,
	id:   func(p *models.Profile) int64 { return p.ID },
	validate: func(p *models.Profile) error {
		p.Description = strings.TrimSpace(p.Description)
		if err := requireParent(models.KindProfile, "company_id", p.CompanyID); err != nil {
			return err
		}
		return required(models.KindProfile, [2]string{"description", p.Description})
	},
	get: func(ctx context.Context, tx store.Tx, id int64) (*models.Profile, error) { return tx.GetProfile(ctx, id) },
	group: func(ctx context.Context, tx store.Tx, p *models.Profile) (int64, error) {
		return groupOfCompany(ctx, tx, p.CompanyID)
	},
	sibling: func(ctx context.Context, tx store.Tx, p *models.Profile) (*models.Profile, error) {
		return tx.FindProfileByDescription(ctx, p.CompanyID, p.Description)
	},
	key:    func(p *models.Profile) (string, string) { return "description", p.Description },
	insert: func(ctx context.Context, tx store.Tx, p *models.Profile) error { return tx.InsertProfile(ctx, p) },
	update: func(ctx context.Context, tx store.Tx, p *models.Profile) error { return tx.UpdateProfile(ctx, p) },
}

// UpsertProfile creates or updates a profile.
func (h *Hierarchy) UpsertProfile(ctx context.Context, p models.Principal, pr *models.Profile) error {
	return upsert(ctx, h, p, profileSpec, pr, nil)
}

// --- Users ---

// UserInput carries a user write. Credential is the plaintext secret and is
// required on create; on update an empty Credential keeps the stored hash.
// CompanyIDs, when non-nil, replaces the user's company grants, all under
// GrantProfileID (the home profile when zero). PortalAccess mirrors the user
// into a portal principal with the same login and credential.
type UserInput struct {
	User           models.User
	Credential     string
	CompanyIDs     []int64
	GrantProfileID int64
	PortalAccess   bool
	PortalAdmin    bool
}

func userSpec(hash func(*models.User) error) entitySpec[models.User] {
	return entitySpec[models.User]{
		kind: models.KindUser,
		id:   func(u *models.User) int64 { return u.ID },
		validate: func(u *models.User) error {
			u.Name = strings.TrimSpace(u.Name)
			if err := requireParent(models.KindUser, "home_profile_id", u.HomeProfileID); err != nil {
				return err
			}
			if err := required(models.KindUser, [2]string{"name", u.Name}); err != nil {
				return err
			}
			return hash(u)
		},
		get: func(ctx context.Context, tx store.Tx, id int64) (*models.User, error) { return tx.GetUser(ctx, id) },
		group: func(ctx context.Context, tx store.Tx, u *models.User) (int64, error) {
			return groupOfProfile(ctx, tx, u.HomeProfileID)
		},
		sibling: func(ctx context.Context, tx store.Tx, u *models.User) (*models.User, error) {
			return tx.FindUserByName(ctx, u.Name)
		},
		key: func(u *models.User) (string, string) { return "name", u.Name },
		insert: func(ctx context.Context, tx store.Tx, u *models.User) error {
			if u.CredentialHash == "" {
				return apperr.Missing(models.KindUser, "credential")
			}
			return tx.InsertUser(ctx, u)
		},
		update: func(ctx context.Context, tx store.Tx, u *models.User) error {
			if u.CredentialHash == "" {
				cur, err := tx.GetUser(ctx, u.ID)
				if err != nil {
					return err
				}
				u.CredentialHash = cur.CredentialHash
			}
			return tx.UpdateUser(ctx, u)
		},
	}
}

func (h *Hierarchy) hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(b), nil
}

// UpsertUser creates or updates a user, optionally replacing its grants and
// mirroring it into a portal principal, all in one transaction.
func (h *Hierarchy) UpsertUser(ctx context.Context, p models.Principal, in UserInput) (*models.User, error) {
	u := in.User
	u.CredentialHash = ""
	ent := userSpec(func(u *models.User) error {
		if in.Credential == "" {
			return nil
		}
		hashed, err := h.hash(in.Credential)
		if err != nil {
			return err
		}
		u.CredentialHash = hashed
		return nil
	})

	scope, err := h.guard.Scope(ctx, p)
	if err != nil {
		return nil, err
	}
	after := func(ctx context.Context, tx store.Tx, u *models.User) error {
		if in.CompanyIDs != nil {
			profileID := in.GrantProfileID
			if profileID == 0 {
				profileID = u.HomeProfileID
			}
			if _, err := replaceGrants(ctx, tx, scope, u.ID, in.CompanyIDs, profileID); err != nil {
				return err
			}
		}
		if in.PortalAccess {
			if err := scope.RequireAdmin(models.KindPortalPrincipal); err != nil {
				return err
			}
			if _, err := syncPortalPrincipal(ctx, tx, p, u.Name, u.CredentialHash, in.PortalAdmin, true); err != nil {
				return err
			}
		}
		return nil
	}
	if err := upsert(ctx, h, p, ent, &u, after); err != nil {
		return nil, err
	}
	if in.CompanyIDs != nil || in.PortalAccess || in.User.ID != 0 {
		h.guard.Invalidate(ctx)
	}
	return &u, nil
}

// SetUserGrants replaces every company grant of a user. All grants reuse
// profileID, or the user's home profile when profileID is zero. Every named
// company must be inside the caller's scope.
func (h *Hierarchy) SetUserGrants(ctx context.Context, p models.Principal, userID int64, companyIDs []int64, profileID int64) ([]models.UserCompanyGrant, error) {
	scope, err := h.guard.Scope(ctx, p)
	if err != nil {
		return nil, err
	}
	var grants []models.UserCompanyGrant
	err = h.store.WriteTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return translate(err, models.KindUser, userID)
		}
		gid, err := groupOfProfile(ctx, tx, u.HomeProfileID)
		if err != nil {
			return err
		}
		if err := scope.Require(models.KindGrant, gid); err != nil {
			return err
		}
		before, err := tx.ListGrantsForUser(ctx, userID)
		if err != nil {
			return err
		}
		if profileID == 0 {
			profileID = u.HomeProfileID
		}
		grants, err = replaceGrants(ctx, tx, scope, userID, companyIDs, profileID)
		if err != nil {
			return err
		}
		return auditRecord(ctx, tx, p, models.ActionGrant, models.KindGrant, userID, before, grants, "")
	})
	if err != nil {
		return nil, err
	}
	h.guard.Invalidate(ctx)
	h.logger.Info("user grants replaced", "user", userID, "companies", len(grants), "principal", p.Login)
	return grants, nil
}

func replaceGrants(ctx context.Context, tx store.Tx, scope Scope, userID int64, companyIDs []int64, profileID int64) ([]models.UserCompanyGrant, error) {
	ids := slices.Clone(companyIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	profileGroup, err := groupOfProfile(ctx, tx, profileID)
	if err != nil {
		return nil, err
	}
	if err := scope.Require(models.KindGrant, profileGroup); err != nil {
		return nil, err
	}
	if _, err := tx.DeleteGrantsForUser(ctx, userID); err != nil {
		return nil, err
	}
	grants := make([]models.UserCompanyGrant, 0, len(ids))
	for _, cid := range ids {
		if cid <= 0 {
			continue
		}
		gid, err := groupOfCompany(ctx, tx, cid)
		if err != nil {
			return nil, err
		}
		if err := scope.Require(models.KindGrant, gid); err != nil {
			return nil, err
		}
		g := models.UserCompanyGrant{UserID: userID, CompanyID: cid, ProfileID: profileID}
		if err := tx.InsertGrant(ctx, g); err != nil {
			return nil, translate(err, models.KindGrant, userID)
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// --- Portal principals ---

// UpsertPortalPrincipal creates or updates a portal login. Administrators only.
// An empty credential keeps the stored hash on update and is rejected on create.
func (h *Hierarchy) UpsertPortalPrincipal(ctx context.Context, p models.Principal, pp *models.PortalPrincipal, credential string) error {
	pp.Login = strings.TrimSpace(pp.Login)
	if err := required(models.KindPortalPrincipal, [2]string{"login", pp.Login}); err != nil {
		return err
	}
	if !p.IsAdmin {
		return Scope{principal: p}.RequireAdmin(models.KindPortalPrincipal)
	}
	if credential != "" {
		hashed, err := h.hash(credential)
		if err != nil {
			return err
		}
		pp.CredentialHash = hashed
	}
	err := h.store.WriteTx(ctx, func(tx store.Tx) error {
		existing, err := tx.FindPortalPrincipalByLogin(ctx, pp.Login)
		switch {
		case err == nil && existing.ID != pp.ID:
			return apperr.Duplicate(models.KindPortalPrincipal, "login", pp.Login)
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}
		if pp.ID == 0 {
			if pp.CredentialHash == "" {
				return apperr.Missing(models.KindPortalPrincipal, "credential")
			}
			if err := tx.InsertPortalPrincipal(ctx, pp); err != nil {
				return translate(err, models.KindPortalPrincipal, 0)
			}
			return auditRecord(ctx, tx, p, models.ActionCreate, models.KindPortalPrincipal, pp.ID, nil, pp, "")
		}
		before, err := tx.GetPortalPrincipal(ctx, pp.ID)
		if err != nil {
			return translate(err, models.KindPortalPrincipal, pp.ID)
		}
		if pp.CredentialHash == "" {
			pp.CredentialHash = before.CredentialHash
		}
		if err := tx.UpdatePortalPrincipal(ctx, pp); err != nil {
			return translate(err, models.KindPortalPrincipal, pp.ID)
		}
		return auditRecord(ctx, tx, p, models.ActionUpdate, models.KindPortalPrincipal, pp.ID, before, pp, "")
	})
	if err != nil {
		return err
	}
	h.guard.Invalidate(ctx)
	return nil
}

// SyncPortalPrincipal makes sure a portal login exists for a user name,
// creating or refreshing it with the given credential hash. Administrators only.
func (h *Hierarchy) SyncPortalPrincipal(ctx context.Context, p models.Principal, login, credentialHash string, isAdmin, active bool) (*models.PortalPrincipal, error) {
	if err := (Scope{principal: p}).RequireAdmin(models.KindPortalPrincipal); err != nil {
		return nil, err
	}
	var pp *models.PortalPrincipal
	err := h.store.WriteTx(ctx, func(tx store.Tx) error {
		var err error
		pp, err = syncPortalPrincipal(ctx, tx, p, login, credentialHash, isAdmin, active)
		return err
	})
	if err != nil {
		return nil, err
	}
	h.guard.Invalidate(ctx)
	return pp, nil
}

func syncPortalPrincipal(ctx context.Context, tx store.Tx, p models.Principal, login, credentialHash string, isAdmin, active bool) (*models.PortalPrincipal, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, apperr.Missing(models.KindPortalPrincipal, "login")
	}
	existing, err := tx.FindPortalPrincipalByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		if credentialHash == "" {
			return nil, apperr.Missing(models.KindPortalPrincipal, "credential")
		}
		pp := &models.PortalPrincipal{
			Login: login, DisplayName: login, CredentialHash: credentialHash,
			IsAdmin: isAdmin, Active: active,
		}
		if err := tx.InsertPortalPrincipal(ctx, pp); err != nil {
			return nil, translate(err, models.KindPortalPrincipal, 0)
		}
		return pp, auditRecord(ctx, tx, p, models.ActionCreate, models.KindPortalPrincipal, pp.ID, nil, pp, "synchronized from user")
	}
	if err != nil {
		return nil, err
	}
	before := *existing
	existing.DisplayName = login
	existing.IsAdmin = isAdmin
	existing.Active = active
	if credentialHash != "" {
		existing.CredentialHash = credentialHash
	}
	if err := tx.UpdatePortalPrincipal(ctx, existing); err != nil {
		return nil, translate(err, models.KindPortalPrincipal, existing.ID)
	}
	return existing, auditRecord(ctx, tx, p, models.ActionUpdate, models.KindPortalPrincipal, existing.ID, before, existing, "synchronized from user")
}

// --- Reads ---

// read runs fn in a read transaction with the caller's scope resolved.
func (h *Hierarchy) read(ctx context.Context, p models.Principal, fn func(Scope, store.Tx) error) error {
	scope, err := h.guard.Scope(ctx, p)
	if err != nil {
		return err
	}
	return h.store.ReadTx(ctx, func(tx store.Tx) error { return fn(scope, tx) })
}

// ListGroups returns the groups visible to p.
func (h *Hierarchy) ListGroups(ctx context.Context, p models.Principal) ([]*models.Group, error) {
	var out []*models.Group
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		ids := s.Groups()
		if !s.All() && ids == nil {
			ids = []int64{}
		}
		var err error
		out, err = tx.ListGroups(ctx, ids)
		return err
	})
	return out, err
}

// GetGroup returns one group in scope.
func (h *Hierarchy) GetGroup(ctx context.Context, p models.Principal, id int64) (*models.Group, error) {
	var out *models.Group
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		if err := s.Require(models.KindGroup, id); err != nil {
			return err
		}
		var err error
		out, err = tx.GetGroup(ctx, id)
		return translate(err, models.KindGroup, id)
	})
	return out, err
}

// ListCompanies returns the companies of a group in scope.
func (h *Hierarchy) ListCompanies(ctx context.Context, p models.Principal, groupID int64) ([]*models.Company, error) {
	var out []*models.Company
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		if err := s.Require(models.KindCompany, groupID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListCompanies(ctx, groupID)
		return err
	})
	return out, err
}

// ListModules returns the modules of a group in scope.
func (h *Hierarchy) ListModules(ctx context.Context, p models.Principal, groupID int64) ([]*models.Module, error) {
	var out []*models.Module
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		if err := s.Require(models.KindModule, groupID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListModules(ctx, groupID)
		return err
	})
	return out, err
}

// ListProfiles returns the profiles of a company in scope.
func (h *Hierarchy) ListProfiles(ctx context.Context, p models.Principal, companyID int64) ([]*models.Profile, error) {
	var out []*models.Profile
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		gid, err := groupOfCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if err := s.Require(models.KindProfile, gid); err != nil {
			return err
		}
		out, err = tx.ListProfiles(ctx, companyID)
		return err
	})
	return out, err
}

// ListUsers returns the users whose home profile is profileID.
func (h *Hierarchy) ListUsers(ctx context.Context, p models.Principal, profileID int64) ([]*models.User, error) {
	var out []*models.User
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		gid, err := groupOfProfile(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if err := s.Require(models.KindUser, gid); err != nil {
			return err
		}
		out, err = tx.ListUsersByHomeProfile(ctx, profileID)
		return err
	})
	return out, err
}

// UserGrants returns the company grants of a user in scope.
func (h *Hierarchy) UserGrants(ctx context.Context, p models.Principal, userID int64) ([]models.UserCompanyGrant, error) {
	var out []models.UserCompanyGrant
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		gid, err := groupOfUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.Require(models.KindGrant, gid); err != nil {
			return err
		}
		out, err = tx.ListGrantsForUser(ctx, userID)
		return err
	})
	return out, err
}

// ListCatalogTables returns the tables of a module in scope.
func (h *Hierarchy) ListCatalogTables(ctx context.Context, p models.Principal, moduleID int64) ([]*models.CatalogTable, error) {
	var out []*models.CatalogTable
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		gid, err := groupOfModule(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		if err := s.Require(models.KindCatalogTable, gid); err != nil {
			return err
		}
		out, err = tx.ListCatalogTables(ctx, moduleID)
		return err
	})
	return out, err
}

// ListCatalogColumns returns the columns of a catalog table in scope.
func (h *Hierarchy) ListCatalogColumns(ctx context.Context, p models.Principal, tableID int64) ([]*models.CatalogColumn, error) {
	var out []*models.CatalogColumn
	err := h.read(ctx, p, func(s Scope, tx store.Tx) error {
		gid, err := groupOfCatalogTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		if err := s.Require(models.KindCatalogColumn, gid); err != nil {
			return err
		}
		out, err = tx.ListCatalogColumns(ctx, tableID)
		return err
	})
	return out, err
}

// ListPortalPrincipals returns every portal login. Administrators only.
func (h *Hierarchy) ListPortalPrincipals(ctx context.Context, p models.Principal) ([]*models.PortalPrincipal, error) {
	if err := (Scope{principal: p}).RequireAdmin(models.KindPortalPrincipal); err != nil {
		return nil, err
	}
	var out []*models.PortalPrincipal
	err := h.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListPortalPrincipals(ctx)
		return err
	})
	return out, err
}

// AuditLog returns recent audit entries. Administrators only.
func (h *Hierarchy) AuditLog(ctx context.Context, p models.Principal, filter store.AuditFilter) ([]*models.AuditEntry, error) {
	if err := (Scope{principal: p}).RequireAdmin(models.EntityKind("audit")); err != nil {
		return nil, err
	}
	var out []*models.AuditEntry
	err := h.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListAudit(ctx, filter)
		return err
	})
	return out, err
}

// CatalogForIngestion returns every table of a module with its columns, in
// the shape the catalog ingestion pipeline consumes. It is read-only and not
// scoped to a principal.
func (h *Hierarchy) CatalogForIngestion(ctx context.Context, moduleID int64) ([]models.CatalogTableWithColumns, error) {
	var out []models.CatalogTableWithColumns
	err := h.store.ReadTx(ctx, func(tx store.Tx) error {
		m, err := tx.GetModule(ctx, moduleID)
		if err != nil {
			return translate(err, models.KindModule, moduleID)
		}
		tables, err := tx.ListCatalogTables(ctx, moduleID)
		if err != nil {
			return err
		}
		out = make([]models.CatalogTableWithColumns, 0, len(tables))
		for _, t := range tables {
			cols, err := tx.ListCatalogColumns(ctx, t.ID)
			if err != nil {
				return err
			}
			entry := models.CatalogTableWithColumns{CatalogTable: *t, ModuleCode: m.Code, Columns: make([]models.CatalogColumn, 0, len(cols))}
			for _, c := range cols {
				entry.Columns = append(entry.Columns, *c)
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}
