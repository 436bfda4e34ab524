package admin

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

var root = models.Principal{ID: 1000, Login: "root", IsAdmin: true}

// fixture wires every service against one fake store.
type fixture struct {
	store   *fakeStore
	guard   *Guard
	h       *Hierarchy
	cascade *Cascade
	perms   *Permissions
	tickets *memTickets
	groups  *countingGroupCache
	policy  *memPolicyCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newFakeStore()
	gc := newCountingGroupCache()
	pc := newMemPolicyCache()
	g := NewGuard(s, gc, logger)
	tickets := newMemTickets()
	return &fixture{
		store:   s,
		guard:   g,
		h:       NewHierarchy(s, g, bcrypt.MinCost, logger),
		cascade: NewCascade(s, g, tickets, logger, WithPolicyCache(pc)),
		perms:   NewPermissions(s, g, pc, logger),
		tickets: tickets,
		groups:  gc,
		policy:  pc,
	}
}

func (f *fixture) group(t *testing.T, name string) *models.Group {
	t.Helper()
	g := &models.Group{Name: name}
	require.NoError(t, f.h.UpsertGroup(context.Background(), root, g))
	return g
}

func (f *fixture) company(t *testing.T, groupID int64, name string) *models.Company {
	t.Helper()
	c := &models.Company{GroupID: groupID, Name: name}
	require.NoError(t, f.h.UpsertCompany(context.Background(), root, c))
	return c
}

func (f *fixture) module(t *testing.T, groupID int64, code string) *models.Module {
	t.Helper()
	m := &models.Module{GroupID: groupID, Code: code, Name: code, Active: true}
	require.NoError(t, f.h.UpsertModule(context.Background(), root, m))
	return m
}

func (f *fixture) table(t *testing.T, moduleID int64, code string) *models.CatalogTable {
	t.Helper()
	ct := &models.CatalogTable{ModuleID: moduleID, TableCode: code, Title: code}
	require.NoError(t, f.h.UpsertCatalogTable(context.Background(), root, ct))
	return ct
}

func (f *fixture) column(t *testing.T, tableID int64, name string) *models.CatalogColumn {
	t.Helper()
	c := &models.CatalogColumn{TableID: tableID, ColumnName: name, DataType: "varchar"}
	require.NoError(t, f.h.UpsertCatalogColumn(context.Background(), root, c))
	return c
}

func (f *fixture) profile(t *testing.T, companyID int64, desc string) *models.Profile {
	t.Helper()
	p := &models.Profile{CompanyID: companyID, Description: desc}
	require.NoError(t, f.h.UpsertProfile(context.Background(), root, p))
	return p
}

func (f *fixture) user(t *testing.T, profileID int64, name string, companyIDs ...int64) *models.User {
	t.Helper()
	u, err := f.h.UpsertUser(context.Background(), root, UserInput{
		User:       models.User{HomeProfileID: profileID, Name: name},
		Credential: "s3cret",
		CompanyIDs: companyIDs,
	})
	require.NoError(t, err)
	return u
}

// operator creates a non-admin portal login whose user holds grants for the
// given companies and returns it as a request principal.
func (f *fixture) operator(t *testing.T, profileID int64, login string, companyIDs ...int64) models.Principal {
	t.Helper()
	_, err := f.h.UpsertUser(context.Background(), root, UserInput{
		User:         models.User{HomeProfileID: profileID, Name: login},
		Credential:   "s3cret",
		CompanyIDs:   companyIDs,
		PortalAccess: true,
	})
	require.NoError(t, err)
	for _, pp := range f.store.state().portals {
		if pp.Login == login {
			return models.Principal{ID: pp.ID, Login: pp.Login}
		}
	}
	t.Fatalf("portal principal %q not created", login)
	return models.Principal{}
}

// --- cache doubles ---

type countingGroupCache struct {
	m           map[int64][]int64
	hits, sets  int
	invalidated int
}

func newCountingGroupCache() *countingGroupCache {
	return &countingGroupCache{m: map[int64][]int64{}}
}

func (c *countingGroupCache) GetGroups(_ context.Context, principalID int64) ([]int64, bool, error) {
	ids, ok := c.m[principalID]
	if ok {
		c.hits++
	}
	return ids, ok, nil
}

func (c *countingGroupCache) SetGroups(_ context.Context, principalID int64, ids []int64) error {
	c.sets++
	c.m[principalID] = ids
	return nil
}

func (c *countingGroupCache) InvalidateGroups(context.Context) error {
	c.invalidated++
	clear(c.m)
	return nil
}

type policyKey struct {
	profile int64
	table   string
}

type memPolicyCache struct {
	m    map[policyKey]CachedPolicy
	hits int
}

func newMemPolicyCache() *memPolicyCache { return &memPolicyCache{m: map[policyKey]CachedPolicy{}} }

func (c *memPolicyCache) GetPolicy(_ context.Context, profileID int64, table string) (*CachedPolicy, error) {
	cp, ok := c.m[policyKey{profileID, table}]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &cp, nil
}

func (c *memPolicyCache) SetPolicy(_ context.Context, profileID int64, table string, cp CachedPolicy) error {
	c.m[policyKey{profileID, table}] = cp
	return nil
}

func (c *memPolicyCache) InvalidateProfile(_ context.Context, profileID int64) error {
	for k := range c.m {
		if k.profile == profileID {
			delete(c.m, k)
		}
	}
	return nil
}
