package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/policyadmin/internal/api/middleware"
	"github.com/kiranshivaraju/policyadmin/internal/api/response"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

const maxBodyBytes = 1 << 20

func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := mw.GetPrincipal(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal", nil)
	}
	return p, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// urlID parses the chi URL parameter name into dst.
func urlID(r *http.Request, name string, dst *int64) error {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	*dst = id
	return nil
}

func queryID(r *http.Request, name string, required bool) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return id, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// upsert decodes a T, lets bind apply path parameters and hands it to save.
// create selects 201 over 200.
func upsert[T any](w http.ResponseWriter, r *http.Request, create bool,
	bind func(*T, *http.Request) error,
	save func(context.Context, models.Principal, *T) error,
) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var v T
	if !decode(w, r, &v) {
		return
	}
	if err := bind(&v, r); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := save(r.Context(), p, &v); err != nil {
		writeError(w, r, err)
		return
	}
	if create {
		response.Created(w, &v)
		return
	}
	response.JSON(w, &v)
}

// list serves a collection keyed by the URL parameter param.
func list[T any](w http.ResponseWriter, r *http.Request, param string,
	fetch func(context.Context, models.Principal, int64) ([]T, error),
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
	items, err := fetch(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, orEmpty(items))
}
