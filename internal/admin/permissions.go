package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/policyadmin/internal/store"
	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
	"github.com/kiranshivaraju/policyadmin/pkg/policy"
)

// Permissions stores one access policy per (profile, table) pair and serves
// compiled policies to the query agent.
type Permissions struct {
	store  store.Store
	guard  *Guard
	cache  PolicyCache
	logger *slog.Logger
	now    func() time.Time
}

// NewPermissions creates a Permissions service. cache may be nil.
func NewPermissions(s store.Store, guard *Guard, cache PolicyCache, logger *slog.Logger) *Permissions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Permissions{store: s, guard: guard, cache: cache, logger: logger, now: time.Now}
}

func normalizeTable(tableRef string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(tableRef))
	if !policy.ValidIdentifier(t) {
		return "", &apperr.ValidationError{
			Kind: apperr.MalformedIdentifier, Entity: models.KindPermission, Field: "table_ref", Value: tableRef,
		}
	}
	return t, nil
}

// Save validates tp and stores it for (profileID, tableRef), replacing any
// previous policy for the pair. Saving the same policy twice leaves one row.
func (s *Permissions) Save(ctx context.Context, p models.Principal, profileID int64, tableRef string, tp policy.TablePolicy) (int64, error) {
	table, err := normalizeTable(tableRef)
	if err != nil {
		return 0, err
	}
	tp, err = tp.Normalize()
	if err != nil {
		return 0, err
	}
	doc, err := policy.Encode(policy.NewDocument(profileID, table, tp, p.Login, s.now()))
	if err != nil {
		return 0, err
	}
	scope, err := s.guard.Scope(ctx, p)
	if err != nil {
		return 0, err
	}

	perm := &models.Permission{ProfileID: profileID, TableRef: table, Document: doc, UpdatedBy: p.Login}
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		gid, err := groupOfProfile(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if err := scope.Require(models.KindPermission, gid); err != nil {
			return err
		}
		var before any
		prev, err := tx.FindPermission(ctx, profileID, table)
		switch {
		case err == nil:
			before = prev.Document
		case !isNotFound(err):
			return err
		}
		if err := tx.UpsertPermission(ctx, perm); err != nil {
			return translate(err, models.KindPermission, 0)
		}
		action := models.ActionCreate
		if before != nil {
			action = models.ActionUpdate
		}
		return auditRecord(ctx, tx, p, action, models.KindPermission, perm.ID, before, perm.Document, table)
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, profileID)
	s.logger.Info("policy saved", "entity", models.KindPermission, "id", perm.ID,
		"profile", profileID, "table", table, "principal", p.Login)
	return perm.ID, nil
}

// Load returns the policy saved for (profileID, tableRef). ok is false when
// none was saved.
func (s *Permissions) Load(ctx context.Context, p models.Principal, profileID int64, tableRef string) (policy.TablePolicy, bool, error) {
	table, err := normalizeTable(tableRef)
	if err != nil {
		return policy.TablePolicy{}, false, err
	}
	scope, err := s.guard.Scope(ctx, p)
	if err != nil {
		return policy.TablePolicy{}, false, err
	}
	var (
		tp policy.TablePolicy
		ok bool
	)
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		gid, err := groupOfProfile(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if err := scope.Require(models.KindPermission, gid); err != nil {
			return err
		}
		tp, ok, err = loadPolicy(ctx, tx, profileID, table)
		return err
	})
	return tp, ok, err
}

func loadPolicy(ctx context.Context, tx store.Tx, profileID int64, table string) (policy.TablePolicy, bool, error) {
	perm, err := tx.FindPermission(ctx, profileID, table)
	if isNotFound(err) {
		return policy.TablePolicy{}, false, nil
	}
	if err != nil {
		return policy.TablePolicy{}, false, err
	}
	doc, err := policy.DecodeDocument(perm.Document)
	if err != nil {
		return policy.TablePolicy{}, false, fmt.Errorf("permission %d: %w", perm.ID, err)
	}
	tp, ok := doc.Table(table)
	return tp, ok, nil
}

// Get returns a stored permission row by id.
func (s *Permissions) Get(ctx context.Context, p models.Principal, permissionID int64) (*models.Permission, error) {
	scope, err := s.guard.Scope(ctx, p)
	if err != nil {
		return nil, err
	}
	var perm *models.Permission
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		perm, err = tx.GetPermission(ctx, permissionID)
		if err != nil {
			return translate(err, models.KindPermission, permissionID)
		}
		gid, err := groupOfProfile(ctx, tx, perm.ProfileID)
		if err != nil {
			return err
		}
		return scope.Require(models.KindPermission, gid)
	})
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// ListForProfile returns every permission row of a profile.
func (s *Permissions) ListForProfile(ctx context.Context, p models.Principal, profileID int64) ([]*models.Permission, error) {
	scope, err := s.guard.Scope(ctx, p)
	if err != nil {
		return nil, err
	}
	var out []*models.Permission
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		gid, err := groupOfProfile(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if err := scope.Require(models.KindPermission, gid); err != nil {
			return err
		}
		out, err = tx.ListPermissions(ctx, profileID)
		return err
	})
	return out, err
}

// Delete removes a permission row. A later Load for its pair reports none.
func (s *Permissions) Delete(ctx context.Context, p models.Principal, permissionID int64) error {
	scope, err := s.guard.Scope(ctx, p)
	if err != nil {
		return err
	}
	var profileID int64
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		perm, err := tx.GetPermission(ctx, permissionID)
		if err != nil {
			return translate(err, models.KindPermission, permissionID)
		}
		profileID = perm.ProfileID
		gid, err := groupOfProfile(ctx, tx, perm.ProfileID)
		if err != nil {
			return err
		}
		if err := scope.Require(models.KindPermission, gid); err != nil {
			return err
		}
		if err := tx.DeletePermission(ctx, permissionID); err != nil {
			return translate(err, models.KindPermission, permissionID)
		}
		return auditRecord(ctx, tx, p, models.ActionDelete, models.KindPermission, permissionID, perm.Document, nil, perm.TableRef)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, profileID)
	s.logger.Info("policy deleted", "entity", models.KindPermission, "id", permissionID, "principal", p.Login)
	return nil
}

// CompilePreview is the compiled form of a policy rendered for display and
// for binding into a query.
type CompilePreview struct {
	DenySQL        string   `json:"deny_sql"`
	GuardSQL       string   `json:"guard_sql"`
	Args           []any    `json:"args"`
	Preview        string   `json:"preview"`
	BlockedColumns []string `json:"blocked_columns"`
}

// PreviewCompile compiles tp without saving it.
func PreviewCompile(tp policy.TablePolicy) (*CompilePreview, error) {
	c, err := policy.Compile(tp)
	if err != nil {
		return nil, err
	}
	return previewOf(c), nil
}

func previewOf(c *policy.Compiled) *CompilePreview {
	deny, args := policy.Render(c.Deny, 1)
	guard, _ := policy.Render(c.Guard, 1)
	return &CompilePreview{
		DenySQL:        deny,
		GuardSQL:       guard,
		Args:           args,
		Preview:        policy.Preview(c.Guard),
		BlockedColumns: c.BlockedColumns,
	}
}

// Enforcement is what the query agent applies for one user, company and table.
type Enforcement struct {
	UserID    int64  `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	ProfileID int64  `json:"profile_id"`
	Table     string `json:"table"`
	// Found is false when the profile has no policy for the table; nothing
	// is filtered or blocked then.
	Found bool `json:"found"`
	CompilePreview
	compiled *policy.Compiled
}

// Compiled returns the compiled policy for in-process filtering.
func (e *Enforcement) Compiled() *policy.Compiled { return e.compiled }

// Enforcement resolves the profile a user acts under in a company and returns
// its compiled policy for tableRef. The grant for the company wins; otherwise
// the home profile applies when it belongs to that company or companyID is 0.
func (s *Permissions) Enforcement(ctx context.Context, userID, companyID int64, tableRef string) (*Enforcement, error) {
	table, err := normalizeTable(tableRef)
	if err != nil {
		return nil, err
	}
	var profileID int64
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return translate(err, models.KindUser, userID)
		}
		profileID, err = effectiveProfile(ctx, tx, u, companyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	cp, err := s.cachedPolicy(ctx, profileID, table)
	if err != nil {
		return nil, err
	}
	c, err := policy.Compile(cp.Policy)
	if err != nil {
		return nil, err
	}
	return &Enforcement{
		UserID:         userID,
		CompanyID:      companyID,
		ProfileID:      profileID,
		Table:          table,
		Found:          cp.Found,
		CompilePreview: *previewOf(c),
		compiled:       c,
	}, nil
}

func effectiveProfile(ctx context.Context, tx store.Tx, u *models.User, companyID int64) (int64, error) {
	if companyID != 0 {
		grants, err := tx.ListGrantsForUser(ctx, u.ID)
		if err != nil {
			return 0, err
		}
		for _, g := range grants {
			if g.CompanyID == companyID {
				return g.ProfileID, nil
			}
		}
	}
	home, err := tx.GetProfile(ctx, u.HomeProfileID)
	if err != nil {
		return 0, translate(err, models.KindProfile, u.HomeProfileID)
	}
	if companyID == 0 || home.CompanyID == companyID {
		return home.ID, nil
	}
	return 0, &apperr.PermissionError{
		PrincipalID: u.ID, Login: u.Name, Entity: models.KindCompany,
		Msg: fmt.Sprintf("user %q has no grant for company %d", u.Name, companyID),
	}
}

func (s *Permissions) cachedPolicy(ctx context.Context, profileID int64, table string) (CachedPolicy, error) {
	if s.cache != nil {
		cp, err := s.cache.GetPolicy(ctx, profileID, table)
		if err != nil {
			s.logger.Warn("policy cache read failed", "profile", profileID, "table", table, "error", err)
		} else if cp != nil {
			return *cp, nil
		}
	}
	var cp CachedPolicy
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		cp.Policy, cp.Found, err = loadPolicy(ctx, tx, profileID, table)
		return err
	})
	if err != nil {
		return CachedPolicy{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetPolicy(ctx, profileID, table, cp); err != nil {
			s.logger.Warn("policy cache write failed", "profile", profileID, "table", table, "error", err)
		}
	}
	return cp, nil
}

func (s *Permissions) invalidate(ctx context.Context, profileID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProfile(ctx, profileID); err != nil {
		s.logger.Warn("policy cache invalidation failed", "profile", profileID, "error", err)
	}
}
