package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/internal/api/response"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
	"github.com/kiranshivaraju/policyadmin/pkg/policy"
)

// PermissionService is the subset of *admin.Permissions the handlers call.
type PermissionService interface {
	Save(ctx context.Context, p models.Principal, profileID int64, tableRef string, tp policy.TablePolicy) (int64, error)
	Load(ctx context.Context, p models.Principal, profileID int64, tableRef string) (policy.TablePolicy, bool, error)
	Get(ctx context.Context, p models.Principal, permissionID int64) (*models.Permission, error)
	ListForProfile(ctx context.Context, p models.Principal, profileID int64) ([]*models.Permission, error)
	Delete(ctx context.Context, p models.Principal, permissionID int64) error
	Enforcement(ctx context.Context, userID, companyID int64, tableRef string) (*admin.Enforcement, error)
}

// Permissions serves the policy store and the enforcement lookup.
type Permissions struct {
	svc PermissionService
}

func NewPermissions(svc PermissionService) *Permissions {
	return &Permissions{svc: svc}
}

type savedPolicy struct {
	PermissionID int64                 `json:"permission_id"`
	ProfileID    int64                 `json:"profile_id"`
	Table        string                `json:"table"`
	Compiled     *admin.CompilePreview `json:"compiled"`
}

type loadedPolicy struct {
	ProfileID int64              `json:"profile_id"`
	Table     string             `json:"table"`
	Policy    policy.TablePolicy `json:"policy"`
}

func (h *Permissions) List(w http.ResponseWriter, r *http.Request) {
	list(w, r, "profileID", h.svc.ListForProfile)
}

// Save serves PUT /api/v1/profiles/{profileID}/permissions/{table}.
func (h *Permissions) Save(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var profileID int64
	if err := urlID(r, "profileID", &profileID); err != nil {
		badRequest(w, err.Error())
		return
	}
	table := chi.URLParam(r, "table")
	var tp policy.TablePolicy
	if !decode(w, r, &tp) {
		return
	}
	id, err := h.svc.Save(r.Context(), p, profileID, table, tp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	compiled, err := admin.PreviewCompile(tp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, savedPolicy{PermissionID: id, ProfileID: profileID, Table: table, Compiled: compiled})
}

// Load serves GET /api/v1/profiles/{profileID}/permissions/{table}.
func (h *Permissions) Load(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var profileID int64
	if err := urlID(r, "profileID", &profileID); err != nil {
		badRequest(w, err.Error())
		return
	}
	table := chi.URLParam(r, "table")
	tp, found, err := h.svc.Load(r.Context(), p, profileID, table)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "No policy saved for this profile and table", nil)
		return
	}
	response.JSON(w, loadedPolicy{ProfileID: profileID, Table: table, Policy: tp})
}

func (h *Permissions) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var id int64
	if err := urlID(r, "permissionID", &id); err != nil {
		badRequest(w, err.Error())
		return
	}
	perm, err := h.svc.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, perm)
}

func (h *Permissions) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var id int64
	if err := urlID(r, "permissionID", &id); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.Delete(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// Preview serves POST /api/v1/permissions/preview: compile without saving.
func Preview(w http.ResponseWriter, r *http.Request) {
	var tp policy.TablePolicy
	if !decode(w, r, &tp) {
		return
	}
	compiled, err := admin.PreviewCompile(tp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, compiled)
}

// Enforcement serves GET /api/v1/enforcement?user_id=&company_id=&table=.
func (h *Permissions) Enforcement(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id", true)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	companyID, err := queryID(r, "company_id", false)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	table := r.URL.Query().Get("table")
	if table == "" {
		badRequest(w, "table is required")
		return
	}
	e, err := h.svc.Enforcement(r.Context(), userID, companyID, table)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.BlockedColumns = orEmpty(e.BlockedColumns)
	e.Args = orEmpty(e.Args)
	response.JSON(w, e)
}
