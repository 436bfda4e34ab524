package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	iso  pgx.TxIsoLevel
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithIsolation sets the isolation level of every transaction.
func WithIsolation(level pgx.TxIsoLevel) Option {
	return func(s *PostgresStore) {
		s.iso = level
	}
}

// NewPostgresStore creates a new PostgresStore. Transactions are serializable
// unless overridden.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	s := &PostgresStore{pool: pool, iso: pgx.Serializable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ReadTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: s.iso, AccessMode: pgx.ReadOnly},
		func(tx pgx.Tx) error { return fn(&pgTx{tx: tx}) })
}

func (s *PostgresStore) WriteTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: s.iso, AccessMode: pgx.ReadWrite},
		func(tx pgx.Tx) error { return fn(&pgTx{tx: tx}) })
}

type pgTx struct {
	tx pgx.Tx
}

const (
	groupCols    = `id, name, db_descriptor, version, matrix_tax_id, created_at, updated_at`
	companyCols  = `id, group_id, name, tax_id, created_at, updated_at`
	moduleCols   = `id, group_id, code, name, description, active, created_at, updated_at`
	tableCols    = `id, module_id, table_code, title, description, source_system, created_at, updated_at`
	columnCols   = `id, table_id, column_name, title, description, data_type, sensitive, ordinal, created_at, updated_at`
	profileCols  = `id, company_id, description, created_at, updated_at`
	userCols     = `id, home_profile_id, name, credential_hash, is_admin, created_at, updated_at`
	permCols     = `id, profile_id, table_ref, document, updated_by, updated_at`
	portalCols   = `id, login, display_name, credential_hash, is_admin, active, created_at, updated_at`
	grantCols    = `user_id, company_id, profile_id`
	auditColumns = `id, request_id, principal_id, principal_login, action, entity, record_id, before_values, after_values, status, message, created_at`
)

func queryOne[T any](ctx context.Context, tx pgx.Tx, op, sql string, args ...any) (*T, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

func queryAll[T any](ctx context.Context, tx pgx.Tx, op, sql string, args ...any) ([]*T, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// lock takes a row lock on the given table row for the rest of the transaction.
func (t *pgTx) lock(ctx context.Context, table string, id int64) error {
	var got int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM `+table+` WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", table, err)
	}
	return nil
}

func (t *pgTx) deleteOne(ctx context.Context, table string, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return writeErr("delete from "+table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) deleteMany(ctx context.Context, op, sql string, args ...any) (int, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, writeErr(op, err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Groups ---

func (t *pgTx) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	return queryOne[models.Group](ctx, t.tx, "get group",
		`SELECT `+groupCols+` FROM tenant_groups WHERE id = $1`, id)
}

func (t *pgTx) FindGroupByName(ctx context.Context, name string) (*models.Group, error) {
	return queryOne[models.Group](ctx, t.tx, "find group",
		`SELECT `+groupCols+` FROM tenant_groups WHERE name_key = $1`, models.FoldKey(name))
}

func (t *pgTx) ListGroups(ctx context.Context, ids []int64) ([]*models.Group, error) {
	if ids == nil {
		return queryAll[models.Group](ctx, t.tx, "list groups",
			`SELECT `+groupCols+` FROM tenant_groups ORDER BY name`)
	}
	return queryAll[models.Group](ctx, t.tx, "list groups",
		`SELECT `+groupCols+` FROM tenant_groups WHERE id = ANY($1) ORDER BY name`, ids)
}

func (t *pgTx) InsertGroup(ctx context.Context, g *models.Group) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO tenant_groups (name, name_key, db_descriptor, version, matrix_tax_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		g.Name, models.FoldKey(g.Name), g.DBDescriptor, g.Version, g.MatrixTaxID,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	return writeErr("insert group", err)
}

func (t *pgTx) UpdateGroup(ctx context.Context, g *models.Group) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE tenant_groups SET name = $2, name_key = $3, db_descriptor = $4, version = $5,
		   matrix_tax_id = $6, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		g.ID, g.Name, models.FoldKey(g.Name), g.DBDescriptor, g.Version, g.MatrixTaxID,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	return writeErr("update group", err)
}

func (t *pgTx) LockGroup(ctx context.Context, id int64) error {
	return t.lock(ctx, "tenant_groups", id)
}

func (t *pgTx) DeleteGroup(ctx context.Context, id int64) error {
	return t.deleteOne(ctx, "tenant_groups", id)
}

// --- Companies ---

func (t *pgTx) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	return queryOne[models.Company](ctx, t.tx, "get company",
		`SELECT `+companyCols+` FROM companies WHERE id = $1`, id)
}

func (t *pgTx) FindCompanyByName(ctx context.Context, groupID int64, name string) (*models.Company, error) {
	return queryOne[models.Company](ctx, t.tx, "find company",
		`SELECT `+companyCols+` FROM companies WHERE group_id = $1 AND name_key = $2`,
		groupID, models.FoldKey(name))
}

func (t *pgTx) ListCompanies(ctx context.Context, groupID int64) ([]*models.Company, error) {
	return queryAll[models.Company](ctx, t.tx, "list companies",
		`SELECT `+companyCols+` FROM companies WHERE group_id = $1 ORDER BY id`, groupID)
}

func (t *pgTx) InsertCompany(ctx context.Context, c *models.Company) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO companies (group_id, name, name_key, tax_id)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
		c.GroupID, c.Name, models.FoldKey(c.Name), c.TaxID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return writeErr("insert company", err)
}

func (t *pgTx) UpdateCompany(ctx context.Context, c *models.Company) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE companies SET group_id = $2, name = $3, name_key = $4, tax_id = $5, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		c.ID, c.GroupID, c.Name, models.FoldKey(c.Name), c.TaxID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return writeErr("update company", err)
}

func (t *pgTx) LockCompany(ctx context.Context, id int64) error {
	return t.lock(ctx, "companies", id)
}

func (t *pgTx) DeleteCompany(ctx context.Context, id int64) error {
	return t.deleteOne(ctx, "companies", id)
}

// --- Modules ---

func (t *pgTx) GetModule(ctx context.Context, id int64) (*models.Module, error) {
	return queryOne[models.Module](ctx, t.tx, "get module",
		`SELECT `+moduleCols+` FROM modules WHERE id = $1`, id)
}

func (t *pgTx) FindModuleByCode(ctx context.Context, groupID int64, code string) (*models.Module, error) {
	return queryOne[models.Module](ctx, t.tx, "find module",
		`SELECT `+moduleCols+` FROM modules WHERE group_id = $1 AND code_key = $2`,
		groupID, models.FoldKey(code))
}

func (t *pgTx) FindModuleByName(ctx context.Context, groupID int64, name string) (*models.Module, error) {
	return queryOne[models.Module](ctx, t.tx, "find module",
		`SELECT `+moduleCols+` FROM modules WHERE group_id = $1 AND name_key = $2 AND name_key <> ''`,
		groupID, models.FoldKey(name))
}

func (t *pgTx) ListModules(ctx context.Context, groupID int64) ([]*models.Module, error) {
	return queryAll[models.Module](ctx, t.tx, "list modules",
		`SELECT `+moduleCols+` FROM modules WHERE group_id = $1 ORDER BY id`, groupID)
}

func (t *pgTx) InsertModule(ctx context.Context, m *models.Module) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO modules (group_id, code, code_key, name, name_key, description, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`,
		m.GroupID, m.Code, models.FoldKey(m.Code), m.Name, models.FoldKey(m.Name), m.Description, m.Active,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return writeErr("insert module", err)
}

func (t *pgTx) UpdateModule(ctx context.Context, m *models.Module) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE modules SET group_id = $2, code = $3, code_key = $4, name = $5, name_key = $6,
		   description = $7, active = $8, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		m.ID, m.GroupID, m.Code, models.FoldKey(m.Code), m.Name, models.FoldKey(m.Name), m.Description, m.Active,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return writeErr("update module", err)
}

func (t *pgTx) LockModule(ctx context.Context, id int64) error {
	return t.lock(ctx, "modules", id)
}

func (t *pgTx) DeleteModule(ctx context.Context, id int64) error {
	return t.deleteOne(ctx, "modules", id)
}

// --- Catalog tables ---

func (t *pgTx) GetCatalogTable(ctx context.Context, id int64) (*models.CatalogTable, error) {
	return queryOne[models.CatalogTable](ctx, t.tx, "get catalog table",
		`SELECT `+tableCols+` FROM catalog_tables WHERE id = $1`, id)
}

func (t *pgTx) FindCatalogTableByCode(ctx context.Context, moduleID int64, code string) (*models.CatalogTable, error) {
	return queryOne[models.CatalogTable](ctx, t.tx, "find catalog table",
		`SELECT `+tableCols+` FROM catalog_tables WHERE module_id = $1 AND code_key = $2`,
		moduleID, models.FoldKey(code))
}

func (t *pgTx) ListCatalogTables(ctx context.Context, moduleID int64) ([]*models.CatalogTable, error) {
	return queryAll[models.CatalogTable](ctx, t.tx, "list catalog tables",
		`SELECT `+tableCols+` FROM catalog_tables WHERE module_id = $1 ORDER BY table_code`, moduleID)
}

func (t *pgTx) InsertCatalogTable(ctx context.Context, ct *models.CatalogTable) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO catalog_tables (module_id, table_code, code_key, title, description, source_system)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		ct.ModuleID, ct.TableCode, models.FoldKey(ct.TableCode), ct.Title, ct.Description, ct.SourceSystem,
	).Scan(&ct.ID, &ct.CreatedAt, &ct.UpdatedAt)
	return writeErr("insert catalog table", err)
}

func (t *pgTx) UpdateCatalogTable(ctx context.Context, ct *models.CatalogTable) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE catalog_tables SET module_id = $2, table_code = $3, code_key = $4, title = $5,
		   description = $6, source_system = $7, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		ct.ID, ct.ModuleID, ct.TableCode, models.FoldKey(ct.TableCode), ct.Title, ct.Description, ct.SourceSystem,
	).Scan(&ct.CreatedAt, &ct.UpdatedAt)
	return writeErr("update catalog table", err)
}

func (t *pgTx) DeleteCatalogTable(ctx context.Context, id int64) error {
	return t.deleteOne(ctx, "catalog_tables", id)
}

func (t *pgTx) DeleteCatalogTablesByModule(ctx context.Context, moduleID int64) (int, error) {
	return t.deleteMany(ctx, "delete catalog tables",
		`DELETE FROM catalog_tables WHERE module_id = $1`, moduleID)
}

// --- Catalog columns ---

func (t *pgTx) GetCatalogColumn(ctx context.Context, id int64) (*models.CatalogColumn, error) {
	return queryOne[models.CatalogColumn](ctx, t.tx, "get catalog column",
		`SELECT `+columnCols+` FROM catalog_columns WHERE id = $1`, id)
}

func (t *pgTx) FindCatalogColumnByName(ctx context.Context, tableID int64, name string) (*models.CatalogColumn, error) {
	return queryOne[models.CatalogColumn](ctx, t.tx, "find catalog column",
		`SELECT `+columnCols+` FROM catalog_columns WHERE table_id = $1 AND name_key = $2`,
		tableID, models.FoldKey(name))
}

func (t *pgTx) ListCatalogColumns(ctx context.Context, tableID int64) ([]*models.CatalogColumn, error) {
	return queryAll[models.CatalogColumn](ctx, t.tx, "list catalog columns",
		`SELECT `+columnCols+` FROM catalog_columns WHERE table_id = $1 ORDER BY ordinal, id`, tableID)
}

func (t *pgTx) InsertCatalogColumn(ctx context.Context, c *models.CatalogColumn) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO catalog_columns (table_id, column_name, name_key, title, description, data_type, sensitive, ordinal)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`,
		c.TableID, c.ColumnName, models.FoldKey(c.ColumnName), c.Title, c.Description, c.DataType, c.Sensitive, c.Order,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return writeErr("insert catalog column", err)
}

func (t *pgTx) UpdateCatalogColumn(ctx context.Context, c *models.CatalogColumn) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE catalog_columns SET table_id = $2, column_name = $3, name_key = $4, title = $5,
		   description = $6, data_type = $7, sensitive = $8, ordinal = $9, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		c.ID, c.TableID, c.ColumnName, models.FoldKey(c.ColumnName), c.Title, c.Description, c.DataType, c.Sensitive, c.Order,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return writeErr("update catalog column", err)
}

func (t *pgTx) DeleteCatalogColumnsByTable(ctx context.Context, tableID int64) (int, error) {
	return t.deleteMany(ctx, "delete catalog columns",
		`DELETE FROM catalog_columns WHERE table_id = $1`, tableID)
}

func (t *pgTx) DeleteCatalogColumnsByModule(ctx context.Context, moduleID int64) (int, error) {
	return t.deleteMany(ctx, "delete catalog columns",
		`DELETE FROM catalog_columns
		 WHERE table_id IN (SELECT id FROM catalog_tables WHERE module_id = $1)`, moduleID)
}

// --- Profiles ---

func (t *pgTx) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	return queryOne[models.Profile](ctx, t.tx, "get profile",
		`SELECT `+profileCols+` FROM profiles WHERE id = $1`, id)
}

func (t *pgTx) FindProfileByDescription(ctx context.Context, companyID int64, description string) (*models.Profile, error) {
	return queryOne[models.Profile](ctx, t.tx, "find profile",
		`SELECT `+profileCols+` FROM profiles WHERE company_id = $1 AND description_key = $2`,
		companyID, models.FoldKey(description))
}

func (t *pgTx) ListProfiles(ctx context.Context, companyID int64) ([]*models.Profile, error) {
	return queryAll[models.Profile](ctx, t.tx, "list profiles",
		`SELECT `+profileCols+` FROM profiles WHERE company_id = $1 ORDER BY id`, companyID)
}

func (t *pgTx) InsertProfile(ctx context.Context, p *models.Profile) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO profiles (company_id, description, description_key)
		 VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
		p.CompanyID, p.Description, models.FoldKey(p.Description),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return writeErr("insert profile", err)
}

func (t *pgTx) UpdateProfile(ctx context.Context, p *models.Profile) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE profiles SET company_id = $2, description = $3, description_key = $4, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		p.ID, p.CompanyID, p.Description, models.FoldKey(p.Description),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return writeErr("update profile", err)
}

func (t *pgTx) LockProfile(ctx context.Context, id int64) error {
	return t.lock(ctx, "profiles", id)
}

func (t *pgTx) DeleteProfile(ctx context.Context, id int64) error {
	return t.deleteOne(ctx, "profiles", id)
}

// --- Users ---

func (t *pgTx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return queryOne[models.User](ctx, t.tx, "get user",
		`SELECT `+userCols+` FROM app_users WHERE id = $1`, id)
}

func (t *pgTx) FindUserByName(ctx context.Context, name string) (*models.User, error) {
	return queryOne[models.User](ctx, t.tx, "find user",
		`SELECT `+userCols+` FROM app_users WHERE name_key = $1`, models.FoldKey(name))
}

func (t *pgTx) ListUsersByHomeProfile(ctx context.Context, profileID int64) ([]*models.User, error) {
	return queryAll[models.User](ctx, t.tx, "list users",
		`SELECT `+userCols+` FROM app_users WHERE home_profile_id = $1 ORDER BY id`, profileID)
}

func (t *pgTx) InsertUser(ctx context.Context, u *models.User) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO app_users (home_profile_id, name, name_key, credential_hash, is_admin)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		u.HomeProfileID, u.Name, models.FoldKey(u.Name), u.CredentialHash, u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return writeErr("insert user", err)
}

func (t *pgTx) UpdateUser(ctx context.Context, u *models.User) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE app_users SET home_profile_id = $2, name = $3, name_key = $4, credential_hash = $5,
		   is_admin = $6, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		u.ID, u.HomeProfileID, u.Name, models.FoldKey(u.Name), u.CredentialHash, u.IsAdmin,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return writeErr("update user", err)
}

func (t *pgTx) DeleteUser(ctx context.Context, id int64) error {
	return t.deleteOne(ctx, "app_users", id)
}

// --- Grants ---

func (t *pgTx) ListGrantsForUser(ctx context.Context, userID int64) ([]models.UserCompanyGrant, error) {
	return t.listGrants(ctx, `SELECT `+grantCols+` FROM user_company_grants WHERE user_id = $1 ORDER BY company_id`, userID)
}

func (t *pgTx) ListGrantsForCompany(ctx context.Context, companyID int64) ([]models.UserCompanyGrant, error) {
	return t.listGrants(ctx,
		`SELECT `+grantCols+` FROM user_company_grants
		 WHERE company_id = $1 OR profile_id IN (SELECT id FROM profiles WHERE company_id = $1)
		 ORDER BY user_id, company_id`, companyID)
}

func (t *pgTx) listGrants(ctx context.Context, sql string, arg int64) ([]models.UserCompanyGrant, error) {
	rows, err := t.tx.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	grants, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.UserCompanyGrant])
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

func (t *pgTx) InsertGrant(ctx context.Context, g models.UserCompanyGrant) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_company_grants (user_id, company_id, profile_id) VALUES ($1, $2, $3)`,
		g.UserID, g.CompanyID, g.ProfileID)
	return writeErr("insert grant", err)
}

func (t *pgTx) DeleteGrantsForUser(ctx context.Context, userID int64) (int, error) {
	return t.deleteMany(ctx, "delete grants",
		`DELETE FROM user_company_grants WHERE user_id = $1`, userID)
}

func (t *pgTx) DeleteGrantsForCompany(ctx context.Context, companyID int64) (int, error) {
	return t.deleteMany(ctx, "delete grants",
		`DELETE FROM user_company_grants
		 WHERE company_id = $1 OR profile_id IN (SELECT id FROM profiles WHERE company_id = $1)`, companyID)
}

// --- Permissions ---

func (t *pgTx) GetPermission(ctx context.Context, id int64) (*models.Permission, error) {
	return queryOne[models.Permission](ctx, t.tx, "get permission",
		`SELECT `+permCols+` FROM permissions WHERE id = $1`, id)
}

func (t *pgTx) FindPermission(ctx context.Context, profileID int64, tableRef string) (*models.Permission, error) {
	return queryOne[models.Permission](ctx, t.tx, "find permission",
		`SELECT `+permCols+` FROM permissions WHERE profile_id = $1 AND table_ref = $2`,
		profileID, strings.ToLower(tableRef))
}

func (t *pgTx) ListPermissions(ctx context.Context, profileID int64) ([]*models.Permission, error) {
	return queryAll[models.Permission](ctx, t.tx, "list permissions",
		`SELECT `+permCols+` FROM permissions WHERE profile_id = $1 ORDER BY table_ref`, profileID)
}

func (t *pgTx) UpsertPermission(ctx context.Context, p *models.Permission) error {
	p.TableRef = strings.ToLower(p.TableRef)
	err := t.tx.QueryRow(ctx,
		`INSERT INTO permissions (profile_id, table_ref, document, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (profile_id, table_ref) DO UPDATE SET
		   document = EXCLUDED.document,
		   updated_by = EXCLUDED.updated_by,
		   updated_at = NOW()
		 RETURNING id, updated_at`,
		p.ProfileID, p.TableRef, []byte(p.Document), p.UpdatedBy,
	).Scan(&p.ID, &p.UpdatedAt)
	return writeErr("upsert permission", err)
}

func (t *pgTx) DeletePermission(ctx context.Context, id int64) error {
	return t.deleteOne(ctx, "permissions", id)
}

func (t *pgTx) DeletePermissionsByProfile(ctx context.Context, profileID int64) (int, error) {
	return t.deleteMany(ctx, "delete permissions",
		`DELETE FROM permissions WHERE profile_id = $1`, profileID)
}

// --- Portal principals ---

func (t *pgTx) GetPortalPrincipal(ctx context.Context, id int64) (*models.PortalPrincipal, error) {
	return queryOne[models.PortalPrincipal](ctx, t.tx, "get portal principal",
		`SELECT `+portalCols+` FROM portal_principals WHERE id = $1`, id)
}

func (t *pgTx) FindPortalPrincipalByLogin(ctx context.Context, login string) (*models.PortalPrincipal, error) {
	return queryOne[models.PortalPrincipal](ctx, t.tx, "find portal principal",
		`SELECT `+portalCols+` FROM portal_principals WHERE login_key = $1`, models.FoldKey(login))
}

func (t *pgTx) ListPortalPrincipals(ctx context.Context) ([]*models.PortalPrincipal, error) {
	return queryAll[models.PortalPrincipal](ctx, t.tx, "list portal principals",
		`SELECT `+portalCols+` FROM portal_principals ORDER BY login`)
}

func (t *pgTx) InsertPortalPrincipal(ctx context.Context, p *models.PortalPrincipal) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO portal_principals (login, login_key, display_name, credential_hash, is_admin, active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		p.Login, models.FoldKey(p.Login), p.DisplayName, p.CredentialHash, p.IsAdmin, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return writeErr("insert portal principal", err)
}

func (t *pgTx) UpdatePortalPrincipal(ctx context.Context, p *models.PortalPrincipal) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE portal_principals SET login = $2, login_key = $3, display_name = $4, credential_hash = $5,
		   is_admin = $6, active = $7, updated_at = NOW()
		 WHERE id = $1 RETURNING created_at, updated_at`,
		p.ID, p.Login, models.FoldKey(p.Login), p.DisplayName, p.CredentialHash, p.IsAdmin, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return writeErr("update portal principal", err)
}

// --- Access ---

func (t *pgTx) AuthorizedGroupIDs(ctx context.Context, principalID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT DISTINCT c.group_id
		 FROM portal_principals pp
		 JOIN app_users u ON u.name_key = pp.login_key
		 JOIN user_company_grants g ON g.user_id = u.id
		 JOIN companies c ON c.id = g.company_id
		 WHERE pp.id = $1
		 ORDER BY c.group_id`, principalID)
	if err != nil {
		return nil, fmt.Errorf("authorized groups: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("authorized groups: %w", err)
	}
	return ids, nil
}

// --- Audit ---

func (t *pgTx) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO audit_log (request_id, principal_id, principal_login, action, entity, record_id,
		   before_values, after_values, status, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`,
		e.RequestID, e.PrincipalID, e.PrincipalLogin, e.Action, string(e.Entity), e.RecordID,
		nullJSON(e.Before), nullJSON(e.After), e.Status, e.Message,
	).Scan(&e.ID, &e.CreatedAt)
	return writeErr("append audit", err)
}

func (t *pgTx) ListAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.Entity != "" {
		conditions = append(conditions, fmt.Sprintf("entity = $%d", argIdx))
		args = append(args, string(filter.Entity))
		argIdx++
	}
	if filter.RecordID != "" {
		conditions = append(conditions, fmt.Sprintf("record_id = $%d", argIdx))
		args = append(args, filter.RecordID)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var entity string
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.PrincipalID, &e.PrincipalLogin, &e.Action, &entity,
			&e.RecordID, &before, &after, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Entity = models.EntityKind(entity)
		e.Before, e.After = before, after
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// writeErr wraps a write failure, translating constraint violations into the
// package sentinels. pgx.ErrNoRows from an UPDATE ... RETURNING means the id
// did not exist.
func writeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	case isForeignKeyError(err):
		return fmt.Errorf("%s: %w", op, ErrForeignKey)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
