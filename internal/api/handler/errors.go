package handler

import (
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/kiranshivaraju/policyadmin/internal/api/middleware"
	"github.com/kiranshivaraju/policyadmin/internal/api/response"
	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
)

type validationDetails struct {
	Kind   apperr.ValidationKind `json:"kind"`
	Entity string                `json:"entity,omitempty"`
	Field  string                `json:"field,omitempty"`
	Value  string                `json:"value,omitempty"`
}

type permissionDetails struct {
	Entity  string `json:"entity,omitempty"`
	GroupID int64  `json:"group_id,omitempty"`
}

type integrityDetails struct {
	Kind       apperr.IntegrityKind `json:"kind"`
	Entity     string               `json:"entity"`
	ID         int64                `json:"id"`
	Dependents map[string]int       `json:"dependents,omitempty"`
}

// writeError maps the service error taxonomy onto the response envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *apperr.ValidationError
		pe  *apperr.PermissionError
		rie *apperr.ReferentialIntegrityError
		nfe *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", ve.Error(), validationDetails{
			Kind:   ve.Kind,
			Entity: string(ve.Entity),
			Field:  ve.Field,
			Value:  ve.Value,
		})
	case errors.As(err, &pe):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", pe.Error(), permissionDetails{
			Entity:  string(pe.Entity),
			GroupID: pe.GroupID,
		})
	case errors.As(err, &rie):
		var deps map[string]int
		if len(rie.Dependents) > 0 {
			deps = make(map[string]int, len(rie.Dependents))
			for k, n := range rie.Dependents {
				deps[string(k)] = n
			}
		}
		response.Error(w, http.StatusConflict, "DEPENDENTS_EXIST", rie.Error(), integrityDetails{
			Kind:       rie.Kind,
			Entity:     string(rie.Entity),
			ID:         rie.ID,
			Dependents: deps,
		})
	case errors.As(err, &nfe):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", nfe.Error(), nil)
	default:
		attrs := []any{"method", r.Method, "path", r.URL.Path, "error", err}
		if id, ok := mw.GetRequestID(r); ok {
			attrs = append(attrs, "request_id", id)
		}
		slog.Error("request failed", attrs...)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
}
