package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

func TestGuard_AdminBypassesLookup(t *testing.T) {
	f := newFixture(t)
	ids, err := f.guard.AuthorizedGroups(context.Background(), root)
	require.NoError(t, err)
	assert.Nil(t, ids)
	assert.Zero(t, f.groups.sets)

	d, err := f.guard.Check(context.Background(), root, 12345)
	require.NoError(t, err)
	assert.Equal(t, Allow, d)
}

func TestGuard_AuthorizedGroupsFollowGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g1 := f.group(t, "North")
	g2 := f.group(t, "South")
	f.group(t, "East")
	c1 := f.company(t, g1.ID, "Acme")
	c2 := f.company(t, g2.ID, "Beta")
	p1 := f.profile(t, c1.ID, "Operator")

	op := f.operator(t, p1.ID, "maria", c1.ID, c2.ID)

	ids, err := f.guard.AuthorizedGroups(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, []int64{g1.ID, g2.ID}, ids)

	// second call is served from the cache
	_, err = f.guard.AuthorizedGroups(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, 1, f.groups.hits)

	d, err := f.guard.Check(ctx, op, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, Allow, d)
	assert.Equal(t, "allow", d.String())
}

func TestGuard_UnknownPrincipalHasEmptyScope(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "North")
	stranger := models.Principal{ID: 4242, Login: "ghost"}

	d, err := f.guard.Check(context.Background(), stranger, g.ID)
	require.NoError(t, err)
	assert.Equal(t, Deny, d)

	err = f.guard.Require(context.Background(), stranger, models.KindModule, g.ID)
	var pe *apperr.PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, g.ID, pe.GroupID)
	assert.Equal(t, "ghost", pe.Login)
}

func TestGuard_ModuleOutsideScopeIsRejectedWithoutWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g1 := f.group(t, "North")
	g2 := f.group(t, "South")
	c1 := f.company(t, g1.ID, "Acme")
	p1 := f.profile(t, c1.ID, "Operator")
	op := f.operator(t, p1.ID, "maria", c1.ID)

	before := len(f.store.state().audit)
	m := &models.Module{GroupID: g2.ID, Code: "FIN"}
	err := f.h.UpsertModule(ctx, op, m)

	require.ErrorIs(t, err, apperr.ErrPermission)
	assert.Zero(t, m.ID)
	assert.Empty(t, f.store.state().modules)
	assert.Len(t, f.store.state().audit, before)

	// the same principal may add a module to its own group
	own := &models.Module{GroupID: g1.ID, Code: "FIN"}
	require.NoError(t, f.h.UpsertModule(ctx, op, own))
	assert.NotZero(t, own.ID)
}

func TestGuard_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.group(t, "North")
	c := f.company(t, g.ID, "Acme")
	p := f.profile(t, c.ID, "Operator")
	op := f.operator(t, p.ID, "maria", c.ID)

	got, err := f.guard.Authenticate(ctx, "MARIA", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.ID)
	assert.False(t, got.IsAdmin)

	_, err = f.guard.Authenticate(ctx, "maria", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = f.guard.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGuard_InactivePrincipalCannotAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pp := &models.PortalPrincipal{Login: "ops", Active: false}
	require.NoError(t, f.h.UpsertPortalPrincipal(ctx, root, pp, "pw"))

	_, err := f.guard.Authenticate(ctx, "ops", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
