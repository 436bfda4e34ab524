package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrForeignKey = errors.New("foreign key violation")

// Store is the data access entry point. Every operation runs inside a
// transaction that is committed when fn returns nil and rolled back otherwise,
// including when fn panics.
type Store interface {
	Ping(ctx context.Context) error
	ReadTx(ctx context.Context, fn func(Tx) error) error
	WriteTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of queries available inside one transaction.
//
// Get* and Lock* return ErrNotFound for a missing id; Find* return ErrNotFound
// when no row has the case-folded key. Delete* of a single row returns
// ErrNotFound when nothing was deleted; bulk deletes return the row count.
type Tx interface {
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	FindGroupByName(ctx context.Context, name string) (*models.Group, error)
	ListGroups(ctx context.Context, ids []int64) ([]*models.Group, error)
	InsertGroup(ctx context.Context, g *models.Group) error
	UpdateGroup(ctx context.Context, g *models.Group) error
	LockGroup(ctx context.Context, id int64) error
	DeleteGroup(ctx context.Context, id int64) error

	GetCompany(ctx context.Context, id int64) (*models.Company, error)
	FindCompanyByName(ctx context.Context, groupID int64, name string) (*models.Company, error)
	ListCompanies(ctx context.Context, groupID int64) ([]*models.Company, error)
	InsertCompany(ctx context.Context, c *models.Company) error
	UpdateCompany(ctx context.Context, c *models.Company) error
	LockCompany(ctx context.Context, id int64) error
	DeleteCompany(ctx context.Context, id int64) error

	GetModule(ctx context.Context, id int64) (*models.Module, error)
	FindModuleByCode(ctx context.Context, groupID int64, code string) (*models.Module, error)
	FindModuleByName(ctx context.Context, groupID int64, name string) (*models.Module, error)
	ListModules(ctx context.Context, groupID int64) ([]*models.Module, error)
	InsertModule(ctx context.Context, m *models.Module) error
	UpdateModule(ctx context.Context, m *models.Module) error
	LockModule(ctx context.Context, id int64) error
	DeleteModule(ctx context.Context, id int64) error

	GetCatalogTable(ctx context.Context, id int64) (*models.CatalogTable, error)
	FindCatalogTableByCode(ctx context.Context, moduleID int64, code string) (*models.CatalogTable, error)
	ListCatalogTables(ctx context.Context, moduleID int64) ([]*models.CatalogTable, error)
	InsertCatalogTable(ctx context.Context, t *models.CatalogTable) error
	UpdateCatalogTable(ctx context.Context, t *models.CatalogTable) error
	DeleteCatalogTable(ctx context.Context, id int64) error
	DeleteCatalogTablesByModule(ctx context.Context, moduleID int64) (int, error)

	GetCatalogColumn(ctx context.Context, id int64) (*models.CatalogColumn, error)
	FindCatalogColumnByName(ctx context.Context, tableID int64, name string) (*models.CatalogColumn, error)
	ListCatalogColumns(ctx context.Context, tableID int64) ([]*models.CatalogColumn, error)
	InsertCatalogColumn(ctx context.Context, c *models.CatalogColumn) error
	UpdateCatalogColumn(ctx context.Context, c *models.CatalogColumn) error
	DeleteCatalogColumnsByTable(ctx context.Context, tableID int64) (int, error)
	DeleteCatalogColumnsByModule(ctx context.Context, moduleID int64) (int, error)

	GetProfile(ctx context.Context, id int64) (*models.Profile, error)
	FindProfileByDescription(ctx context.Context, companyID int64, description string) (*models.Profile, error)
	ListProfiles(ctx context.Context, companyID int64) ([]*models.Profile, error)
	InsertProfile(ctx context.Context, p *models.Profile) error
	UpdateProfile(ctx context.Context, p *models.Profile) error
	LockProfile(ctx context.Context, id int64) error
	DeleteProfile(ctx context.Context, id int64) error

	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindUserByName(ctx context.Context, name string) (*models.User, error)
	ListUsersByHomeProfile(ctx context.Context, profileID int64) ([]*models.User, error)
	InsertUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error

	ListGrantsForUser(ctx context.Context, userID int64) ([]models.UserCompanyGrant, error)
	// ListGrantsForCompany returns grants naming the company or one of its profiles.
	ListGrantsForCompany(ctx context.Context, companyID int64) ([]models.UserCompanyGrant, error)
	InsertGrant(ctx context.Context, g models.UserCompanyGrant) error
	DeleteGrantsForUser(ctx context.Context, userID int64) (int, error)
	DeleteGrantsForCompany(ctx context.Context, companyID int64) (int, error)

	GetPermission(ctx context.Context, id int64) (*models.Permission, error)
	FindPermission(ctx context.Context, profileID int64, tableRef string) (*models.Permission, error)
	ListPermissions(ctx context.Context, profileID int64) ([]*models.Permission, error)
	// UpsertPermission inserts or replaces the row for (ProfileID, TableRef)
	// and fills ID and UpdatedAt.
	UpsertPermission(ctx context.Context, p *models.Permission) error
	DeletePermission(ctx context.Context, id int64) error
	DeletePermissionsByProfile(ctx context.Context, profileID int64) (int, error)

	GetPortalPrincipal(ctx context.Context, id int64) (*models.PortalPrincipal, error)
	FindPortalPrincipalByLogin(ctx context.Context, login string) (*models.PortalPrincipal, error)
	ListPortalPrincipals(ctx context.Context) ([]*models.PortalPrincipal, error)
	InsertPortalPrincipal(ctx context.Context, p *models.PortalPrincipal) error
	UpdatePortalPrincipal(ctx context.Context, p *models.PortalPrincipal) error

	// AuthorizedGroupIDs follows portal principal -> user (same folded
	// name) -> grants -> company -> group.
	AuthorizedGroupIDs(ctx context.Context, principalID int64) ([]int64, error)

	AppendAudit(ctx context.Context, e *models.AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)
}

// AuditFilter narrows ListAudit. Zero fields are ignored.
type AuditFilter struct {
	Entity   models.EntityKind
	RecordID string
	Limit    int
}
