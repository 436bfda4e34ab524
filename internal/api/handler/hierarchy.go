package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/internal/api/response"
	"github.com/kiranshivaraju/policyadmin/internal/store"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// HierarchyService is the subset of *admin.Hierarchy the handlers call.
type HierarchyService interface {
	ListGroups(ctx context.Context, p models.Principal) ([]*models.Group, error)
	GetGroup(ctx context.Context, p models.Principal, id int64) (*models.Group, error)
	UpsertGroup(ctx context.Context, p models.Principal, g *models.Group) error

	ListCompanies(ctx context.Context, p models.Principal, groupID int64) ([]*models.Company, error)
	UpsertCompany(ctx context.Context, p models.Principal, c *models.Company) error

	ListModules(ctx context.Context, p models.Principal, groupID int64) ([]*models.Module, error)
	UpsertModule(ctx context.Context, p models.Principal, m *models.Module) error

	ListCatalogTables(ctx context.Context, p models.Principal, moduleID int64) ([]*models.CatalogTable, error)
	UpsertCatalogTable(ctx context.Context, p models.Principal, t *models.CatalogTable) error
	ListCatalogColumns(ctx context.Context, p models.Principal, tableID int64) ([]*models.CatalogColumn, error)
	UpsertCatalogColumn(ctx context.Context, p models.Principal, c *models.CatalogColumn) error
	CatalogForIngestion(ctx context.Context, moduleID int64) ([]models.CatalogTableWithColumns, error)

	ListProfiles(ctx context.Context, p models.Principal, companyID int64) ([]*models.Profile, error)
	UpsertProfile(ctx context.Context, p models.Principal, pr *models.Profile) error

	ListUsers(ctx context.Context, p models.Principal, profileID int64) ([]*models.User, error)
	UpsertUser(ctx context.Context, p models.Principal, in admin.UserInput) (*models.User, error)
	UserGrants(ctx context.Context, p models.Principal, userID int64) ([]models.UserCompanyGrant, error)
	SetUserGrants(ctx context.Context, p models.Principal, userID int64, companyIDs []int64, profileID int64) ([]models.UserCompanyGrant, error)

	ListPortalPrincipals(ctx context.Context, p models.Principal) ([]*models.PortalPrincipal, error)
	UpsertPortalPrincipal(ctx context.Context, p models.Principal, pp *models.PortalPrincipal, credential string) error

	AuditLog(ctx context.Context, p models.Principal, filter store.AuditFilter) ([]*models.AuditEntry, error)
}

// Hierarchy serves the tenancy tree, the catalog, users and the audit log.
type Hierarchy struct {
	svc HierarchyService
}

func NewHierarchy(svc HierarchyService) *Hierarchy {
	return &Hierarchy{svc: svc}
}

// --- groups ---

func (h *Hierarchy) ListGroups(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.ListGroups(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, orEmpty(groups))
}

func (h *Hierarchy) GetGroup(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var id int64
	if err := urlID(r, "groupID", &id); err != nil {
		badRequest(w, err.Error())
		return
	}
	g, err := h.svc.GetGroup(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, g)
}

func (h *Hierarchy) CreateGroup(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, true, func(g *models.Group, _ *http.Request) error {
		g.ID = 0
		return nil
	}, h.svc.UpsertGroup)
}

func (h *Hierarchy) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, false, func(g *models.Group, r *http.Request) error {
		return urlID(r, "groupID", &g.ID)
	}, h.svc.UpsertGroup)
}

// --- companies ---

func (h *Hierarchy) ListCompanies(w http.ResponseWriter, r *http.Request) {
	list(w, r, "groupID", h.svc.ListCompanies)
}

func (h *Hierarchy) CreateCompany(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, true, func(c *models.Company, r *http.Request) error {
		c.ID = 0
		return urlID(r, "groupID", &c.GroupID)
	}, h.svc.UpsertCompany)
}

func (h *Hierarchy) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, false, func(c *models.Company, r *http.Request) error {
		return urlID(r, "companyID", &c.ID)
	}, h.svc.UpsertCompany)
}

// --- modules ---

func (h *Hierarchy) ListModules(w http.ResponseWriter, r *http.Request) {
	list(w, r, "groupID", h.svc.ListModules)
}

func (h *Hierarchy) CreateModule(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, true, func(m *models.Module, r *http.Request) error {
		m.ID = 0
		return urlID(r, "groupID", &m.GroupID)
	}, h.svc.UpsertModule)
}

func (h *Hierarchy) UpdateModule(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, false, func(m *models.Module, r *http.Request) error {
		return urlID(r, "moduleID", &m.ID)
	}, h.svc.UpsertModule)
}

// --- catalog ---

func (h *Hierarchy) ListCatalogTables(w http.ResponseWriter, r *http.Request) {
	list(w, r, "moduleID", h.svc.ListCatalogTables)
}

func (h *Hierarchy) CreateCatalogTable(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, true, func(t *models.CatalogTable, r *http.Request) error {
		t.ID = 0
		return urlID(r, "moduleID", &t.ModuleID)
	}, h.svc.UpsertCatalogTable)
}

func (h *Hierarchy) UpdateCatalogTable(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, false, func(t *models.CatalogTable, r *http.Request) error {
		return urlID(r, "tableID", &t.ID)
	}, h.svc.UpsertCatalogTable)
}

func (h *Hierarchy) ListCatalogColumns(w http.ResponseWriter, r *http.Request) {
	list(w, r, "tableID", h.svc.ListCatalogColumns)
}

func (h *Hierarchy) CreateCatalogColumn(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, true, func(c *models.CatalogColumn, r *http.Request) error {
		c.ID = 0
		return urlID(r, "tableID", &c.TableID)
	}, h.svc.UpsertCatalogColumn)
}

func (h *Hierarchy) UpdateCatalogColumn(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, false, func(c *models.CatalogColumn, r *http.Request) error {
		return urlID(r, "columnID", &c.ID)
	}, h.svc.UpsertCatalogColumn)
}

// ExportCatalog serves GET /api/v1/modules/{moduleID}/catalog, the read model
// consumed by the catalog ingestion pipeline.
func (h *Hierarchy) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	var id int64
	if err := urlID(r, "moduleID", &id); err != nil {
		badRequest(w, err.Error())
		return
	}
	tables, err := h.svc.CatalogForIngestion(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, orEmpty(tables))
}

// --- profiles ---

func (h *Hierarchy) ListProfiles(w http.ResponseWriter, r *http.Request) {
	list(w, r, "companyID", h.svc.ListProfiles)
}

func (h *Hierarchy) CreateProfile(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, true, func(pr *models.Profile, r *http.Request) error {
		pr.ID = 0
		return urlID(r, "companyID", &pr.CompanyID)
	}, h.svc.UpsertProfile)
}

func (h *Hierarchy) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, false, func(pr *models.Profile, r *http.Request) error {
		return urlID(r, "profileID", &pr.ID)
	}, h.svc.UpsertProfile)
}

// --- users ---

type userRequest struct {
	HomeProfileID  int64   `json:"home_profile_id"`
	Name           string  `json:"name"`
	IsAdmin        bool    `json:"is_admin"`
	Credential     string  `json:"credential"`
	CompanyIDs     []int64 `json:"company_ids"`
	GrantProfileID int64   `json:"grant_profile_id"`
	PortalAccess   bool    `json:"portal_access"`
	PortalAdmin    bool    `json:"portal_admin"`
}

func (req userRequest) input(id int64) admin.UserInput {
	return admin.UserInput{
		User: models.User{
			ID:            id,
			HomeProfileID: req.HomeProfileID,
			Name:          req.Name,
			IsAdmin:       req.IsAdmin,
		},
		Credential:     req.Credential,
		CompanyIDs:     req.CompanyIDs,
		GrantProfileID: req.GrantProfileID,
		PortalAccess:   req.PortalAccess,
		PortalAdmin:    req.PortalAdmin,
	}
}

func (h *Hierarchy) ListUsers(w http.ResponseWriter, r *http.Request) {
	list(w, r, "profileID", h.svc.ListUsers)
}

func (h *Hierarchy) CreateUser(w http.ResponseWriter, r *http.Request) {
	h.saveUser(w, r, true)
}

func (h *Hierarchy) UpdateUser(w http.ResponseWriter, r *http.Request) {
	h.saveUser(w, r, false)
}

func (h *Hierarchy) saveUser(w http.ResponseWriter, r *http.Request, create bool) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var id int64
	if !create {
		if err := urlID(r, "userID", &id); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.svc.UpsertUser(r.Context(), p, req.input(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if create {
		response.Created(w, u)
		return
	}
	response.JSON(w, u)
}

func (h *Hierarchy) ListGrants(w http.ResponseWriter, r *http.Request) {
	list(w, r, "userID", h.svc.UserGrants)
}

// ReplaceGrants serves PUT /api/v1/users/{userID}/grants.
func (h *Hierarchy) ReplaceGrants(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var userID int64
	if err := urlID(r, "userID", &userID); err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		CompanyIDs []int64 `json:"company_ids"`
		ProfileID  int64   `json:"profile_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	grants, err := h.svc.SetUserGrants(r.Context(), p, userID, req.CompanyIDs, req.ProfileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, orEmpty(grants))
}

// --- portal principals ---

type portalPrincipalRequest struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
	Active      *bool  `json:"active"`
	Credential  string `json:"credential"`
}

func (h *Hierarchy) ListPortalPrincipals(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	pps, err := h.svc.ListPortalPrincipals(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, orEmpty(pps))
}

func (h *Hierarchy) CreatePortalPrincipal(w http.ResponseWriter, r *http.Request) {
	h.savePortalPrincipal(w, r, true)
}

func (h *Hierarchy) UpdatePortalPrincipal(w http.ResponseWriter, r *http.Request) {
	h.savePortalPrincipal(w, r, false)
}

func (h *Hierarchy) savePortalPrincipal(w http.ResponseWriter, r *http.Request, create bool) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var pp models.PortalPrincipal
	if !create {
		if err := urlID(r, "principalID", &pp.ID); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	var req portalPrincipalRequest
	if !decode(w, r, &req) {
		return
	}
	pp.Login = req.Login
	pp.DisplayName = req.DisplayName
	pp.IsAdmin = req.IsAdmin
	pp.Active = req.Active == nil || *req.Active
	if err := h.svc.UpsertPortalPrincipal(r.Context(), p, &pp, req.Credential); err != nil {
		writeError(w, r, err)
		return
	}
	if create {
		response.Created(w, &pp)
		return
	}
	response.JSON(w, &pp)
}

// --- audit ---

// AuditLog serves GET /api/v1/audit?entity=&record_id=&limit=.
func (h *Hierarchy) AuditLog(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.AuditFilter{
		Entity:   models.EntityKind(q.Get("entity")),
		RecordID: q.Get("record_id"),
		Limit:    defaultAuditLimit,
	}
	if filter.Entity != "" && !filter.Entity.Valid() {
		badRequest(w, "unknown entity "+strconv.Quote(string(filter.Entity)))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			badRequest(w, "limit must be between 1 and "+strconv.Itoa(maxAuditLimit))
			return
		}
		filter.Limit = n
	}
	entries, err := h.svc.AuditLog(r.Context(), p, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, orEmpty(entries), response.PaginationMeta{
		Page:    1,
		Limit:   filter.Limit,
		Total:   len(entries),
		HasNext: len(entries) == filter.Limit,
	})
}
