package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/kiranshivaraju/policyadmin/internal/store"
	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown login, an
// inactive principal or a wrong secret.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Decision is the outcome of an access check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Scope is the set of groups a principal may touch, resolved once per call.
type Scope struct {
	principal models.Principal
	groups    []int64
}

// All reports whether the scope is unrestricted (admin principals).
func (s Scope) All() bool { return s.principal.IsAdmin }

// Groups returns the authorized group ids; nil for admins.
func (s Scope) Groups() []int64 { return s.groups }

// Allows reports whether groupID is inside the scope. Group id 0 (a new
// root) is never inside a non-admin scope.
func (s Scope) Allows(groupID int64) bool {
	if s.principal.IsAdmin {
		return true
	}
	return groupID != 0 && slices.Contains(s.groups, groupID)
}

// Require fails closed with a PermissionError when groupID is outside the scope.
func (s Scope) Require(entity models.EntityKind, groupID int64) error {
	if s.Allows(groupID) {
		return nil
	}
	return &apperr.PermissionError{
		PrincipalID: s.principal.ID,
		Login:       s.principal.Login,
		GroupID:     groupID,
		Entity:      entity,
	}
}

// RequireAdmin rejects non-admin principals.
func (s Scope) RequireAdmin(entity models.EntityKind) error {
	if s.principal.IsAdmin {
		return nil
	}
	return &apperr.PermissionError{
		PrincipalID: s.principal.ID,
		Login:       s.principal.Login,
		Entity:      entity,
		Msg:         fmt.Sprintf("only administrators may manage %s", entity),
	}
}

// Guard computes authorized groups and authorizes mutations.
type Guard struct {
	store  store.Store
	cache  GroupCache
	sf     singleflight.Group
	logger *slog.Logger
}

// NewGuard creates a Guard. cache may be nil.
func NewGuard(s store.Store, cache GroupCache, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: s, cache: cache, logger: logger}
}

// AuthorizedGroups returns the group ids p may touch. Admins bypass scoping
// and get nil without any lookup.
func (g *Guard) AuthorizedGroups(ctx context.Context, p models.Principal) ([]int64, error) {
	if p.IsAdmin {
		return nil, nil
	}
	if g.cache != nil {
		ids, ok, err := g.cache.GetGroups(ctx, p.ID)
		if err != nil {
			g.logger.Warn("authorized groups cache read failed", "principal", p.Login, "error", err)
		} else if ok {
			return ids, nil
		}
	}

	v, err, _ := g.sf.Do(strconv.FormatInt(p.ID, 10), func() (any, error) {
		var ids []int64
		err := g.store.ReadTx(ctx, func(tx store.Tx) error {
			var err error
			ids, err = tx.AuthorizedGroupIDs(ctx, p.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []int64{}
		}
		if g.cache != nil {
			if err := g.cache.SetGroups(ctx, p.ID, ids); err != nil {
				g.logger.Warn("authorized groups cache write failed", "principal", p.Login, "error", err)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authorized groups: %w", err)
	}
	return slices.Clone(v.([]int64)), nil
}

// Scope resolves the authorized groups of p into a Scope.
func (g *Guard) Scope(ctx context.Context, p models.Principal) (Scope, error) {
	ids, err := g.AuthorizedGroups(ctx, p)
	if err != nil {
		return Scope{}, err
	}
	return Scope{principal: p, groups: ids}, nil
}

// Check decides whether p may act on groupID.
func (g *Guard) Check(ctx context.Context, p models.Principal, groupID int64) (Decision, error) {
	s, err := g.Scope(ctx, p)
	if err != nil {
		return Deny, err
	}
	if s.Allows(groupID) {
		return Allow, nil
	}
	return Deny, nil
}

// Require returns a PermissionError when Check denies.
func (g *Guard) Require(ctx context.Context, p models.Principal, entity models.EntityKind, groupID int64) error {
	s, err := g.Scope(ctx, p)
	if err != nil {
		return err
	}
	return s.Require(entity, groupID)
}

// Invalidate drops cached group sets after grants or memberships change.
func (g *Guard) Invalidate(ctx context.Context) {
	if g.cache == nil {
		return
	}
	if err := g.cache.InvalidateGroups(ctx); err != nil {
		g.logger.Warn("authorized groups cache invalidation failed", "error", err)
	}
}

// Authenticate verifies a portal login and secret and returns the request
// principal.
func (g *Guard) Authenticate(ctx context.Context, login, secret string) (models.Principal, error) {
	var pp *models.PortalPrincipal
	err := g.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		pp, err = tx.FindPortalPrincipalByLogin(ctx, login)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("authenticate: %w", err)
	}
	if !pp.Active || pp.CredentialHash == "" {
		return models.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(pp.CredentialHash), []byte(secret)); err != nil {
		return models.Principal{}, ErrInvalidCredentials
	}
	return models.Principal{ID: pp.ID, Login: pp.Login, IsAdmin: pp.IsAdmin}, nil
}
