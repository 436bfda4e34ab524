package admin

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/policyadmin/internal/store"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// memDB is the state behind fakeStore. clone gives WriteTx its rollback image.
type memDB struct {
	nextID    int64
	groups    map[int64]*models.Group
	companies map[int64]*models.Company
	modules   map[int64]*models.Module
	tables    map[int64]*models.CatalogTable
	columns   map[int64]*models.CatalogColumn
	profiles  map[int64]*models.Profile
	users     map[int64]*models.User
	grants    map[[2]int64]models.UserCompanyGrant
	perms     map[int64]*models.Permission
	portals   map[int64]*models.PortalPrincipal
	audit     []*models.AuditEntry
}

func newMemDB() *memDB {
	return &memDB{
		groups:    map[int64]*models.Group{},
		companies: map[int64]*models.Company{},
		modules:   map[int64]*models.Module{},
		tables:    map[int64]*models.CatalogTable{},
		columns:   map[int64]*models.CatalogColumn{},
		profiles:  map[int64]*models.Profile{},
		users:     map[int64]*models.User{},
		grants:    map[[2]int64]models.UserCompanyGrant{},
		perms:     map[int64]*models.Permission{},
		portals:   map[int64]*models.PortalPrincipal{},
	}
}

func cloneMap[T any](m map[int64]*T) map[int64]*T {
	out := make(map[int64]*T, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func (db *memDB) clone() *memDB {
	return &memDB{
		nextID:    db.nextID,
		groups:    cloneMap(db.groups),
		companies: cloneMap(db.companies),
		modules:   cloneMap(db.modules),
		tables:    cloneMap(db.tables),
		columns:   cloneMap(db.columns),
		profiles:  cloneMap(db.profiles),
		users:     cloneMap(db.users),
		grants:    maps.Clone(db.grants),
		perms:     cloneMap(db.perms),
		portals:   cloneMap(db.portals),
		audit:     slices.Clone(db.audit),
	}
}

type failure struct {
	after int
	err   error
}

// fakeStore is an in-memory store.Store. Foreign keys behave like ON DELETE
// RESTRICT and a failed WriteTx restores the state it started from.
type fakeStore struct {
	mu       sync.Mutex
	db       *memDB
	failures map[string]*failure
	writes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{db: newMemDB(), failures: map[string]*failure{}}
}

// failOn makes the nth call (1-based) of method return err.
func (f *fakeStore) failOn(method string, nth int, err error) {
	f.failures[method] = &failure{after: nth, err: err}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) ReadTx(_ context.Context, fn func(store.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&memTx{f: f, db: f.db.clone()})
}

func (f *fakeStore) WriteTx(_ context.Context, fn func(store.Tx) error) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	snap := f.db.clone()
	defer func() {
		if r := recover(); r != nil {
			f.db = snap
			panic(r)
		}
		if err != nil {
			f.db = snap
		}
	}()
	return fn(&memTx{f: f, db: f.db})
}

// state returns a copy of the committed data for assertions.
func (f *fakeStore) state() *memDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db.clone()
}

type memTx struct {
	f  *fakeStore
	db *memDB
}

func (t *memTx) hook(method string) error {
	fl, ok := t.f.failures[method]
	if !ok {
		return nil
	}
	fl.after--
	if fl.after == 0 {
		delete(t.f.failures, method)
		return fl.err
	}
	return nil
}

func (t *memTx) id() int64 {
	t.db.nextID++
	return t.db.nextID
}

var fakeNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func get[T any](m map[int64]*T, id int64) (*T, error) {
	v, ok := m[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *v
	return &c, nil
}

func find[T any](m map[int64]*T, match func(*T) bool) (*T, error) {
	for _, id := range slices.Sorted(maps.Keys(m)) {
		if match(m[id]) {
			c := *m[id]
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func list[T any](m map[int64]*T, keep func(*T) bool) []*T {
	out := []*T{}
	for _, id := range slices.Sorted(maps.Keys(m)) {
		if keep(m[id]) {
			c := *m[id]
			out = append(out, &c)
		}
	}
	return out
}

func count[T any](m map[int64]*T, keep func(*T) bool) int {
	n := 0
	for _, v := range m {
		if keep(v) {
			n++
		}
	}
	return n
}

func removeWhere[T any](m map[int64]*T, keep func(*T) bool) int {
	n := 0
	for id, v := range m {
		if keep(v) {
			delete(m, id)
			n++
		}
	}
	return n
}

func same(a, b string) bool { return models.FoldKey(a) == models.FoldKey(b) }

func lockRow[T any](m map[int64]*T, id int64) error {
	if _, ok := m[id]; !ok {
		return store.ErrNotFound
	}
	return nil
}

func update[T any](m map[int64]*T, id int64, v *T) error {
	if _, ok := m[id]; !ok {
		return store.ErrNotFound
	}
	c := *v
	m[id] = &c
	return nil
}

// --- Groups ---

func (t *memTx) GetGroup(_ context.Context, id int64) (*models.Group, error) { return get(t.db.groups, id) }

func (t *memTx) FindGroupByName(_ context.Context, name string) (*models.Group, error) {
	return find(t.db.groups, func(g *models.Group) bool { return same(g.Name, name) })
}

func (t *memTx) ListGroups(_ context.Context, ids []int64) ([]*models.Group, error) {
	return list(t.db.groups, func(g *models.Group) bool { return ids == nil || slices.Contains(ids, g.ID) }), nil
}

func (t *memTx) InsertGroup(_ context.Context, g *models.Group) error {
	if err := t.hook("InsertGroup"); err != nil {
		return err
	}
	if _, err := t.FindGroupByName(context.Background(), g.Name); err == nil {
		return store.ErrDuplicateKey
	}
	g.ID, g.CreatedAt, g.UpdatedAt = t.id(), fakeNow, fakeNow
	c := *g
	t.db.groups[g.ID] = &c
	return nil
}

func (t *memTx) UpdateGroup(_ context.Context, g *models.Group) error {
	return update(t.db.groups, g.ID, g)
}

func (t *memTx) LockGroup(_ context.Context, id int64) error { return lockRow(t.db.groups, id) }

func (t *memTx) DeleteGroup(_ context.Context, id int64) error {
	if err := t.hook("DeleteGroup"); err != nil {
		return err
	}
	if _, ok := t.db.groups[id]; !ok {
		return store.ErrNotFound
	}
	if count(t.db.companies, func(c *models.Company) bool { return c.GroupID == id }) > 0 ||
		count(t.db.modules, func(m *models.Module) bool { return m.GroupID == id }) > 0 {
		return store.ErrForeignKey
	}
	delete(t.db.groups, id)
	return nil
}

// --- Companies ---

func (t *memTx) GetCompany(_ context.Context, id int64) (*models.Company, error) {
	return get(t.db.companies, id)
}

func (t *memTx) FindCompanyByName(_ context.Context, groupID int64, name string) (*models.Company, error) {
	return find(t.db.companies, func(c *models.Company) bool { return c.GroupID == groupID && same(c.Name, name) })
}

func (t *memTx) ListCompanies(_ context.Context, groupID int64) ([]*models.Company, error) {
	return list(t.db.companies, func(c *models.Company) bool { return c.GroupID == groupID }), nil
}

func (t *memTx) InsertCompany(_ context.Context, c *models.Company) error {
	if _, ok := t.db.groups[c.GroupID]; !ok {
		return store.ErrForeignKey
	}
	c.ID, c.CreatedAt, c.UpdatedAt = t.id(), fakeNow, fakeNow
	cp := *c
	t.db.companies[c.ID] = &cp
	return nil
}

func (t *memTx) UpdateCompany(_ context.Context, c *models.Company) error {
	return update(t.db.companies, c.ID, c)
}

func (t *memTx) LockCompany(_ context.Context, id int64) error { return lockRow(t.db.companies, id) }

func (t *memTx) DeleteCompany(_ context.Context, id int64) error {
	if err := t.hook("DeleteCompany"); err != nil {
		return err
	}
	if _, ok := t.db.companies[id]; !ok {
		return store.ErrNotFound
	}
	if count(t.db.profiles, func(p *models.Profile) bool { return p.CompanyID == id }) > 0 {
		return store.ErrForeignKey
	}
	for _, g := range t.db.grants {
		if g.CompanyID == id {
			return store.ErrForeignKey
		}
	}
	delete(t.db.companies, id)
	return nil
}

// --- Modules ---

func (t *memTx) GetModule(_ context.Context, id int64) (*models.Module, error) {
	return get(t.db.modules, id)
}

func (t *memTx) FindModuleByCode(_ context.Context, groupID int64, code string) (*models.Module, error) {
	return find(t.db.modules, func(m *models.Module) bool { return m.GroupID == groupID && same(m.Code, code) })
}

func (t *memTx) FindModuleByName(_ context.Context, groupID int64, name string) (*models.Module, error) {
	if strings.TrimSpace(name) == "" {
		return nil, store.ErrNotFound
	}
	return find(t.db.modules, func(m *models.Module) bool { return m.GroupID == groupID && same(m.Name, name) })
}

func (t *memTx) ListModules(_ context.Context, groupID int64) ([]*models.Module, error) {
	return list(t.db.modules, func(m *models.Module) bool { return m.GroupID == groupID }), nil
}

func (t *memTx) InsertModule(_ context.Context, m *models.Module) error {
	if _, ok := t.db.groups[m.GroupID]; !ok {
		return store.ErrForeignKey
	}
	m.ID, m.CreatedAt, m.UpdatedAt = t.id(), fakeNow, fakeNow
	c := *m
	t.db.modules[m.ID] = &c
	return nil
}

func (t *memTx) UpdateModule(_ context.Context, m *models.Module) error {
	return update(t.db.modules, m.ID, m)
}

func (t *memTx) LockModule(_ context.Context, id int64) error { return lockRow(t.db.modules, id) }

func (t *memTx) DeleteModule(_ context.Context, id int64) error {
	if err := t.hook("DeleteModule"); err != nil {
		return err
	}
	if _, ok := t.db.modules[id]; !ok {
		return store.ErrNotFound
	}
	if count(t.db.tables, func(ct *models.CatalogTable) bool { return ct.ModuleID == id }) > 0 {
		return store.ErrForeignKey
	}
	delete(t.db.modules, id)
	return nil
}

// --- Catalog ---

func (t *memTx) GetCatalogTable(_ context.Context, id int64) (*models.CatalogTable, error) {
	return get(t.db.tables, id)
}

func (t *memTx) FindCatalogTableByCode(_ context.Context, moduleID int64, code string) (*models.CatalogTable, error) {
	return find(t.db.tables, func(ct *models.CatalogTable) bool { return ct.ModuleID == moduleID && same(ct.TableCode, code) })
}

func (t *memTx) ListCatalogTables(_ context.Context, moduleID int64) ([]*models.CatalogTable, error) {
	return list(t.db.tables, func(ct *models.CatalogTable) bool { return ct.ModuleID == moduleID }), nil
}

func (t *memTx) InsertCatalogTable(_ context.Context, ct *models.CatalogTable) error {
	if _, ok := t.db.modules[ct.ModuleID]; !ok {
		return store.ErrForeignKey
	}
	ct.ID, ct.CreatedAt, ct.UpdatedAt = t.id(), fakeNow, fakeNow
	c := *ct
	t.db.tables[ct.ID] = &c
	return nil
}

func (t *memTx) UpdateCatalogTable(_ context.Context, ct *models.CatalogTable) error {
	return update(t.db.tables, ct.ID, ct)
}

func (t *memTx) DeleteCatalogTable(_ context.Context, id int64) error {
	if _, ok := t.db.tables[id]; !ok {
		return store.ErrNotFound
	}
	if count(t.db.columns, func(c *models.CatalogColumn) bool { return c.TableID == id }) > 0 {
		return store.ErrForeignKey
	}
	delete(t.db.tables, id)
	return nil
}

func (t *memTx) DeleteCatalogTablesByModule(_ context.Context, moduleID int64) (int, error) {
	for _, c := range t.db.columns {
		if ct, ok := t.db.tables[c.TableID]; ok && ct.ModuleID == moduleID {
			return 0, store.ErrForeignKey
		}
	}
	return removeWhere(t.db.tables, func(ct *models.CatalogTable) bool { return ct.ModuleID == moduleID }), nil
}

func (t *memTx) GetCatalogColumn(_ context.Context, id int64) (*models.CatalogColumn, error) {
	return get(t.db.columns, id)
}

func (t *memTx) FindCatalogColumnByName(_ context.Context, tableID int64, name string) (*models.CatalogColumn, error) {
	return find(t.db.columns, func(c *models.CatalogColumn) bool { return c.TableID == tableID && same(c.ColumnName, name) })
}

func (t *memTx) ListCatalogColumns(_ context.Context, tableID int64) ([]*models.CatalogColumn, error) {
	return list(t.db.columns, func(c *models.CatalogColumn) bool { return c.TableID == tableID }), nil
}

func (t *memTx) InsertCatalogColumn(_ context.Context, c *models.CatalogColumn) error {
	if _, ok := t.db.tables[c.TableID]; !ok {
		return store.ErrForeignKey
	}
	c.ID, c.CreatedAt, c.UpdatedAt = t.id(), fakeNow, fakeNow
	cp := *c
	t.db.columns[c.ID] = &cp
	return nil
}

func (t *memTx) UpdateCatalogColumn(_ context.Context, c *models.CatalogColumn) error {
	return update(t.db.columns, c.ID, c)
}

func (t *memTx) DeleteCatalogColumnsByTable(_ context.Context, tableID int64) (int, error) {
	return removeWhere(t.db.columns, func(c *models.CatalogColumn) bool { return c.TableID == tableID }), nil
}

func (t *memTx) DeleteCatalogColumnsByModule(_ context.Context, moduleID int64) (int, error) {
	return removeWhere(t.db.columns, func(c *models.CatalogColumn) bool {
		ct, ok := t.db.tables[c.TableID]
		return ok && ct.ModuleID == moduleID
	}), nil
}

// --- Profiles ---

func (t *memTx) GetProfile(_ context.Context, id int64) (*models.Profile, error) {
	return get(t.db.profiles, id)
}

func (t *memTx) FindProfileByDescription(_ context.Context, companyID int64, description string) (*models.Profile, error) {
	return find(t.db.profiles, func(p *models.Profile) bool { return p.CompanyID == companyID && same(p.Description, description) })
}

func (t *memTx) ListProfiles(_ context.Context, companyID int64) ([]*models.Profile, error) {
	return list(t.db.profiles, func(p *models.Profile) bool { return p.CompanyID == companyID }), nil
}

func (t *memTx) InsertProfile(_ context.Context, p *models.Profile) error {
	if _, ok := t.db.companies[p.CompanyID]; !ok {
		return store.ErrForeignKey
	}
	p.ID, p.CreatedAt, p.UpdatedAt = t.id(), fakeNow, fakeNow
	c := *p
	t.db.profiles[p.ID] = &c
	return nil
}

func (t *memTx) UpdateProfile(_ context.Context, p *models.Profile) error {
	return update(t.db.profiles, p.ID, p)
}

func (t *memTx) LockProfile(_ context.Context, id int64) error { return lockRow(t.db.profiles, id) }

func (t *memTx) DeleteProfile(_ context.Context, id int64) error {
	if err := t.hook("DeleteProfile"); err != nil {
		return err
	}
	if _, ok := t.db.profiles[id]; !ok {
		return store.ErrNotFound
	}
	if count(t.db.users, func(u *models.User) bool { return u.HomeProfileID == id }) > 0 ||
		count(t.db.perms, func(p *models.Permission) bool { return p.ProfileID == id }) > 0 {
		return store.ErrForeignKey
	}
	for _, g := range t.db.grants {
		if g.ProfileID == id {
			return store.ErrForeignKey
		}
	}
	delete(t.db.profiles, id)
	return nil
}

// --- Users ---

func (t *memTx) GetUser(_ context.Context, id int64) (*models.User, error) { return get(t.db.users, id) }

func (t *memTx) FindUserByName(_ context.Context, name string) (*models.User, error) {
	return find(t.db.users, func(u *models.User) bool { return same(u.Name, name) })
}

func (t *memTx) ListUsersByHomeProfile(_ context.Context, profileID int64) ([]*models.User, error) {
	return list(t.db.users, func(u *models.User) bool { return u.HomeProfileID == profileID }), nil
}

func (t *memTx) InsertUser(_ context.Context, u *models.User) error {
	if _, ok := t.db.profiles[u.HomeProfileID]; !ok {
		return store.ErrForeignKey
	}
	u.ID, u.CreatedAt, u.UpdatedAt = t.id(), fakeNow, fakeNow
	c := *u
	t.db.users[u.ID] = &c
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u *models.User) error {
	return update(t.db.users, u.ID, u)
}

func (t *memTx) DeleteUser(_ context.Context, id int64) error {
	if err := t.hook("DeleteUser"); err != nil {
		return err
	}
	if _, ok := t.db.users[id]; !ok {
		return store.ErrNotFound
	}
	for _, g := range t.db.grants {
		if g.UserID == id {
			return store.ErrForeignKey
		}
	}
	delete(t.db.users, id)
	return nil
}

// --- Grants ---

func (t *memTx) grants(keep func(models.UserCompanyGrant) bool) []models.UserCompanyGrant {
	out := []models.UserCompanyGrant{}
	for _, g := range t.db.grants {
		if keep(g) {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b models.UserCompanyGrant) int {
		if a.UserID != b.UserID {
			return int(a.UserID - b.UserID)
		}
		return int(a.CompanyID - b.CompanyID)
	})
	return out
}

func (t *memTx) grantNamesCompany(g models.UserCompanyGrant, companyID int64) bool {
	if g.CompanyID == companyID {
		return true
	}
	p, ok := t.db.profiles[g.ProfileID]
	return ok && p.CompanyID == companyID
}

func (t *memTx) ListGrantsForUser(_ context.Context, userID int64) ([]models.UserCompanyGrant, error) {
	return t.grants(func(g models.UserCompanyGrant) bool { return g.UserID == userID }), nil
}

func (t *memTx) ListGrantsForCompany(_ context.Context, companyID int64) ([]models.UserCompanyGrant, error) {
	return t.grants(func(g models.UserCompanyGrant) bool { return t.grantNamesCompany(g, companyID) }), nil
}

func (t *memTx) InsertGrant(_ context.Context, g models.UserCompanyGrant) error {
	if err := t.hook("InsertGrant"); err != nil {
		return err
	}
	_, u := t.db.users[g.UserID]
	_, c := t.db.companies[g.CompanyID]
	_, p := t.db.profiles[g.ProfileID]
	if !u || !c || !p {
		return store.ErrForeignKey
	}
	k := [2]int64{g.UserID, g.CompanyID}
	if _, dup := t.db.grants[k]; dup {
		return store.ErrDuplicateKey
	}
	t.db.grants[k] = g
	return nil
}

func (t *memTx) DeleteGrantsForUser(_ context.Context, userID int64) (int, error) {
	n := 0
	for k, g := range t.db.grants {
		if g.UserID == userID {
			delete(t.db.grants, k)
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteGrantsForCompany(_ context.Context, companyID int64) (int, error) {
	n := 0
	for k, g := range t.db.grants {
		if t.grantNamesCompany(g, companyID) {
			delete(t.db.grants, k)
			n++
		}
	}
	return n, nil
}

// --- Permissions ---

func (t *memTx) GetPermission(_ context.Context, id int64) (*models.Permission, error) {
	return get(t.db.perms, id)
}

func (t *memTx) FindPermission(_ context.Context, profileID int64, tableRef string) (*models.Permission, error) {
	return find(t.db.perms, func(p *models.Permission) bool {
		return p.ProfileID == profileID && p.TableRef == strings.ToLower(tableRef)
	})
}

func (t *memTx) ListPermissions(_ context.Context, profileID int64) ([]*models.Permission, error) {
	return list(t.db.perms, func(p *models.Permission) bool { return p.ProfileID == profileID }), nil
}

func (t *memTx) UpsertPermission(ctx context.Context, p *models.Permission) error {
	if err := t.hook("UpsertPermission"); err != nil {
		return err
	}
	if _, ok := t.db.profiles[p.ProfileID]; !ok {
		return store.ErrForeignKey
	}
	p.TableRef = strings.ToLower(p.TableRef)
	p.UpdatedAt = fakeNow
	if cur, err := t.FindPermission(ctx, p.ProfileID, p.TableRef); err == nil {
		p.ID = cur.ID
	} else {
		p.ID = t.id()
	}
	c := *p
	t.db.perms[p.ID] = &c
	return nil
}

func (t *memTx) DeletePermission(_ context.Context, id int64) error {
	if _, ok := t.db.perms[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.db.perms, id)
	return nil
}

func (t *memTx) DeletePermissionsByProfile(_ context.Context, profileID int64) (int, error) {
	if err := t.hook("DeletePermissionsByProfile"); err != nil {
		return 0, err
	}
	return removeWhere(t.db.perms, func(p *models.Permission) bool { return p.ProfileID == profileID }), nil
}

// --- Portal principals ---

func (t *memTx) GetPortalPrincipal(_ context.Context, id int64) (*models.PortalPrincipal, error) {
	return get(t.db.portals, id)
}

func (t *memTx) FindPortalPrincipalByLogin(_ context.Context, login string) (*models.PortalPrincipal, error) {
	return find(t.db.portals, func(p *models.PortalPrincipal) bool { return same(p.Login, login) })
}

func (t *memTx) ListPortalPrincipals(context.Context) ([]*models.PortalPrincipal, error) {
	return list(t.db.portals, func(*models.PortalPrincipal) bool { return true }), nil
}

func (t *memTx) InsertPortalPrincipal(ctx context.Context, p *models.PortalPrincipal) error {
	if _, err := t.FindPortalPrincipalByLogin(ctx, p.Login); err == nil {
		return store.ErrDuplicateKey
	}
	p.ID, p.CreatedAt, p.UpdatedAt = t.id(), fakeNow, fakeNow
	c := *p
	t.db.portals[p.ID] = &c
	return nil
}

func (t *memTx) UpdatePortalPrincipal(_ context.Context, p *models.PortalPrincipal) error {
	return update(t.db.portals, p.ID, p)
}

// --- Access ---

func (t *memTx) AuthorizedGroupIDs(_ context.Context, principalID int64) ([]int64, error) {
	pp, ok := t.db.portals[principalID]
	if !ok {
		return nil, nil
	}
	var ids []int64
	for _, u := range t.db.users {
		if !same(u.Name, pp.Login) {
			continue
		}
		for _, g := range t.db.grants {
			if g.UserID != u.ID {
				continue
			}
			if c, ok := t.db.companies[g.CompanyID]; ok {
				ids = append(ids, c.GroupID)
			}
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// --- Audit ---

func (t *memTx) AppendAudit(_ context.Context, e *models.AuditEntry) error {
	if err := t.hook("AppendAudit"); err != nil {
		return err
	}
	e.ID, e.CreatedAt = t.id(), fakeNow
	c := *e
	t.db.audit = append(t.db.audit, &c)
	return nil
}

func (t *memTx) ListAudit(_ context.Context, filter store.AuditFilter) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for i := len(t.db.audit) - 1; i >= 0; i-- {
		e := t.db.audit[i]
		if filter.Entity != "" && e.Entity != filter.Entity {
			continue
		}
		if filter.RecordID != "" && e.RecordID != filter.RecordID {
			continue
		}
		c := *e
		out = append(out, &c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

var errInjected = errors.New("injected failure")

// memTickets is an in-memory TicketStore.
type memTickets struct {
	mu      sync.Mutex
	m       map[uuid.UUID]models.DeletionPreview
	claimed map[uuid.UUID]bool
}

func newMemTickets() *memTickets {
	return &memTickets{m: map[uuid.UUID]models.DeletionPreview{}, claimed: map[uuid.UUID]bool{}}
}

func (s *memTickets) SaveTicket(_ context.Context, p *models.DeletionPreview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[p.Ticket] = *p
	return nil
}

func (s *memTickets) LoadTicket(_ context.Context, ticket uuid.UUID) (*models.DeletionPreview, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[ticket]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (s *memTickets) DeleteTicket(_ context.Context, ticket uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, ticket)
	return nil
}

func (s *memTickets) ClaimTicket(_ context.Context, ticket uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[ticket] {
		return false, nil
	}
	s.claimed[ticket] = true
	return true, nil
}
