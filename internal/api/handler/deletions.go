package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/policyadmin/internal/api/response"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// CascadeService is the subset of *admin.Cascade the handlers call.
type CascadeService interface {
	Preview(ctx context.Context, p models.Principal, target models.DeletionTarget) (*models.DeletionPreview, error)
	Execute(ctx context.Context, p models.Principal, ticket uuid.UUID, confirmation string) (*models.DeletionResult, error)
	DeleteProfile(ctx context.Context, p models.Principal, id int64) (*models.DeletionResult, error)
	DeleteUser(ctx context.Context, p models.Principal, id int64) (*models.DeletionResult, error)
	RemoveGroup(ctx context.Context, p models.Principal, id int64) error
	RemoveCompany(ctx context.Context, p models.Principal, id int64) error
	RemoveCatalogTables(ctx context.Context, p models.Principal, moduleID int64, codes []string) (int, error)
}

// Deletions serves cascade previews, their execution and the plain deletes.
type Deletions struct {
	svc CascadeService
}

func NewDeletions(svc CascadeService) *Deletions {
	return &Deletions{svc: svc}
}

// Preview serves POST /api/v1/deletions. The body names the root entity;
// the response carries the ticket and the text to confirm with.
func (h *Deletions) Preview(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var target models.DeletionTarget
	if !decode(w, r, &target) {
		return
	}
	if !target.Kind.Valid() || target.ID <= 0 {
		badRequest(w, "kind and id must name an existing entity")
		return
	}
	prev, err := h.svc.Preview(r.Context(), p, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, prev)
}

// Execute serves POST /api/v1/deletions/{ticket}/execute.
func (h *Deletions) Execute(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ticket, err := uuid.Parse(chi.URLParam(r, "ticket"))
	if err != nil {
		badRequest(w, "ticket must be a UUID")
		return
	}
	var req struct {
		Confirmation string `json:"confirmation"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Execute(r.Context(), p, ticket, req.Confirmation)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, res)
}

func (h *Deletions) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, "profileID", h.svc.DeleteProfile)
}

func (h *Deletions) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, "userID", h.svc.DeleteUser)
}

func (h *Deletions) deleteBy(w http.ResponseWriter, r *http.Request, param string,
	del func(context.Context, models.Principal, int64) (*models.DeletionResult, error),
) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var id int64
	if err := urlID(r, param, &id); err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := del(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, res)
}

// RemoveGroup deletes an empty group. Dependents yield 409 with their counts.
func (h *Deletions) RemoveGroup(w http.ResponseWriter, r *http.Request) {
	h.removeBy(w, r, "groupID", h.svc.RemoveGroup)
}

func (h *Deletions) RemoveCompany(w http.ResponseWriter, r *http.Request) {
	h.removeBy(w, r, "companyID", h.svc.RemoveCompany)
}

func (h *Deletions) removeBy(w http.ResponseWriter, r *http.Request, param string,
	remove func(context.Context, models.Principal, int64) error,
) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var id int64
	if err := urlID(r, param, &id); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := remove(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// RemoveCatalogTables serves POST /api/v1/modules/{moduleID}/tables/remove.
func (h *Deletions) RemoveCatalogTables(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var moduleID int64
	if err := urlID(r, "moduleID", &moduleID); err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		Codes []string `json:"codes"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.Codes) == 0 {
		badRequest(w, "codes must name at least one table")
		return
	}
	n, err := h.svc.RemoveCatalogTables(r.Context(), p, moduleID, req.Codes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, map[string]int{"removed": n})
}
