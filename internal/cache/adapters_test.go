package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/internal/cache"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
	"github.com/kiranshivaraju/policyadmin/pkg/policy"
)

func TestGroupCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	gc := cache.NewGroupCache(rc, time.Minute)

	_, ok, err := gc.GetGroups(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, gc.SetGroups(ctx, 1, []int64{3, 5}))
	require.NoError(t, gc.SetGroups(ctx, 2, []int64{}))

	ids, ok, err := gc.GetGroups(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 5}, ids)

	ids, ok, err = gc.GetGroups(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok, "an empty set is still a hit")
	assert.Empty(t, ids)

	require.NoError(t, gc.InvalidateGroups(ctx))
	_, ok, err = gc.GetGroups(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTicketStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	ts := cache.NewTicketStore(rc, time.Minute)

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	prev := &models.DeletionPreview{
		Ticket:       uuid.New(),
		Target:       models.DeletionTarget{Kind: models.KindCompany, ID: 9},
		GroupID:      2,
		Confirmation: "Acme",
		Counts:       models.DeletionCounts{models.KindCompany: 1, models.KindProfile: 3},
		State:        models.DeletionPreviewed,
		PrincipalID:  4,
		CreatedAt:    created,
	}
	require.NoError(t, ts.SaveTicket(ctx, prev))

	got, ok, err := ts.LoadTicket(ctx, prev.Ticket)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, prev.Ticket, got.Ticket)
	assert.Equal(t, prev.Target, got.Target)
	assert.Equal(t, prev.Counts, got.Counts)
	assert.Equal(t, "Acme", got.Confirmation)
	assert.True(t, created.Equal(got.CreatedAt))

	claimed, err := ts.ClaimTicket(ctx, prev.Ticket)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = ts.ClaimTicket(ctx, prev.Ticket)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim")

	require.NoError(t, ts.DeleteTicket(ctx, prev.Ticket))
	_, ok, err = ts.LoadTicket(ctx, prev.Ticket)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	pc := cache.NewPolicyCache(rc, time.Minute)

	cp := admin.CachedPolicy{
		Found: true,
		Policy: policy.TablePolicy{
			ColumnBlocks: []string{"COST"},
			RowFilters:   []policy.Rule{{Field: "QTY", Op: policy.BETWEEN, Values: []string{"1", "9"}}},
		},
	}
	require.NoError(t, pc.SetPolicy(ctx, 7, "Sales", cp))
	require.NoError(t, pc.SetPolicy(ctx, 7, "items", admin.CachedPolicy{}))
	require.NoError(t, pc.SetPolicy(ctx, 70, "sales", cp))

	got, err := pc.GetPolicy(ctx, 7, "sales")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp, *got)

	miss, err := pc.GetPolicy(ctx, 7, "items")
	require.NoError(t, err)
	require.NotNil(t, miss, "negative lookups are cached")
	assert.False(t, miss.Found)

	require.NoError(t, pc.InvalidateProfile(ctx, 7))
	got, err = pc.GetPolicy(ctx, 7, "sales")
	require.NoError(t, err)
	assert.Nil(t, got)

	other, err := pc.GetPolicy(ctx, 70, "sales")
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestPolicyCache_CorruptValueIsAMiss(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	pc := cache.NewPolicyCache(rc, time.Minute)

	require.NoError(t, rc.Set(ctx, cache.CompiledPolicyKey(1, "t"), []byte{0xc1}, time.Minute))
	got, err := pc.GetPolicy(ctx, 1, "t")
	require.NoError(t, err)
	assert.Nil(t, got)
}
