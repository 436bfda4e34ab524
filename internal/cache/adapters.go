package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

func getValue[T any](ctx context.Context, c Cache, key string) (*T, error) {
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var v T
	if err := msgpack.Unmarshal(b, &v); err != nil {
		// A value written by an older layout is treated as a miss.
		_ = c.Delete(ctx, key)
		return nil, nil
	}
	return &v, nil
}

func setValue(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, b, ttl)
}

// GroupCache stores authorized-group sets per portal principal.
type GroupCache struct {
	c   Cache
	ttl time.Duration
}

var _ admin.GroupCache = (*GroupCache)(nil)

func NewGroupCache(c Cache, ttl time.Duration) *GroupCache {
	return &GroupCache{c: c, ttl: ttl}
}

func (g *GroupCache) GetGroups(ctx context.Context, principalID int64) ([]int64, bool, error) {
	ids, err := getValue[[]int64](ctx, g.c, AuthorizedGroupsKey(principalID))
	if err != nil || ids == nil {
		return nil, false, err
	}
	if *ids == nil {
		return []int64{}, true, nil
	}
	return *ids, true, nil
}

func (g *GroupCache) SetGroups(ctx context.Context, principalID int64, groupIDs []int64) error {
	return setValue(ctx, g.c, AuthorizedGroupsKey(principalID), groupIDs, g.ttl)
}

func (g *GroupCache) InvalidateGroups(ctx context.Context) error {
	_, err := g.c.DeleteByPrefix(ctx, GroupsPrefix)
	return err
}

// TicketStore keeps deletion previews until they are executed or expire.
type TicketStore struct {
	c   Cache
	ttl time.Duration
}

var _ admin.TicketStore = (*TicketStore)(nil)

func NewTicketStore(c Cache, ttl time.Duration) *TicketStore {
	return &TicketStore{c: c, ttl: ttl}
}

func (s *TicketStore) SaveTicket(ctx context.Context, p *models.DeletionPreview) error {
	return setValue(ctx, s.c, DeletionTicketKey(p.Ticket), p, s.ttl)
}

func (s *TicketStore) LoadTicket(ctx context.Context, ticket uuid.UUID) (*models.DeletionPreview, bool, error) {
	p, err := getValue[models.DeletionPreview](ctx, s.c, DeletionTicketKey(ticket))
	if err != nil || p == nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *TicketStore) DeleteTicket(ctx context.Context, ticket uuid.UUID) error {
	return s.c.Delete(ctx, DeletionTicketKey(ticket))
}

// ClaimTicket increments a per-ticket counter; only the caller that sees 1
// owns the execution. The counter outlives the ticket by one TTL.
func (s *TicketStore) ClaimTicket(ctx context.Context, ticket uuid.UUID) (bool, error) {
	n, err := s.c.IncrWithExpiry(ctx, DeletionClaimKey(ticket), s.ttl)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PolicyCache stores policy lookups per (profile, table), including misses.
type PolicyCache struct {
	c   Cache
	ttl time.Duration
}

var _ admin.PolicyCache = (*PolicyCache)(nil)

func NewPolicyCache(c Cache, ttl time.Duration) *PolicyCache {
	return &PolicyCache{c: c, ttl: ttl}
}

func (pc *PolicyCache) GetPolicy(ctx context.Context, profileID int64, table string) (*admin.CachedPolicy, error) {
	return getValue[admin.CachedPolicy](ctx, pc.c, CompiledPolicyKey(profileID, table))
}

func (pc *PolicyCache) SetPolicy(ctx context.Context, profileID int64, table string, cp admin.CachedPolicy) error {
	return setValue(ctx, pc.c, CompiledPolicyKey(profileID, table), cp, pc.ttl)
}

func (pc *PolicyCache) InvalidateProfile(ctx context.Context, profileID int64) error {
	_, err := pc.c.DeleteByPrefix(ctx, ProfilePolicyPrefix(profileID))
	return err
}
