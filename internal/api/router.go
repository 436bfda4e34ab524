package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/policyadmin/internal/api/handler"
	mw "github.com/kiranshivaraju/policyadmin/internal/api/middleware"
	"github.com/kiranshivaraju/policyadmin/internal/api/response"
)

const v1 = "/api/v1"

// Dependencies holds all handler and middleware dependencies for the router.
// A nil handler group answers its routes with 501.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc
	Hierarchy     *handler.Hierarchy
	Permissions   *handler.Permissions
	Deletions     *handler.Deletions
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get(v1+"/health", orNotImplemented(deps.HealthHandler))

	h, p, d := deps.Hierarchy, deps.Permissions, deps.Deletions

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get(v1+"/groups", bind(h, (*handler.Hierarchy).ListGroups))
		r.Post(v1+"/groups", bind(h, (*handler.Hierarchy).CreateGroup))
		r.Get(v1+"/groups/{groupID}", bind(h, (*handler.Hierarchy).GetGroup))
		r.Put(v1+"/groups/{groupID}", bind(h, (*handler.Hierarchy).UpdateGroup))
		r.Delete(v1+"/groups/{groupID}", bind(d, (*handler.Deletions).RemoveGroup))

		r.Get(v1+"/groups/{groupID}/companies", bind(h, (*handler.Hierarchy).ListCompanies))
		r.Post(v1+"/groups/{groupID}/companies", bind(h, (*handler.Hierarchy).CreateCompany))
		r.Put(v1+"/companies/{companyID}", bind(h, (*handler.Hierarchy).UpdateCompany))
		r.Delete(v1+"/companies/{companyID}", bind(d, (*handler.Deletions).RemoveCompany))

		r.Get(v1+"/groups/{groupID}/modules", bind(h, (*handler.Hierarchy).ListModules))
		r.Post(v1+"/groups/{groupID}/modules", bind(h, (*handler.Hierarchy).CreateModule))
		r.Put(v1+"/modules/{moduleID}", bind(h, (*handler.Hierarchy).UpdateModule))

		r.Get(v1+"/modules/{moduleID}/tables", bind(h, (*handler.Hierarchy).ListCatalogTables))
		r.Post(v1+"/modules/{moduleID}/tables", bind(h, (*handler.Hierarchy).CreateCatalogTable))
		r.Post(v1+"/modules/{moduleID}/tables/remove", bind(d, (*handler.Deletions).RemoveCatalogTables))
		r.Put(v1+"/tables/{tableID}", bind(h, (*handler.Hierarchy).UpdateCatalogTable))
		r.Get(v1+"/tables/{tableID}/columns", bind(h, (*handler.Hierarchy).ListCatalogColumns))
		r.Post(v1+"/tables/{tableID}/columns", bind(h, (*handler.Hierarchy).CreateCatalogColumn))
		r.Put(v1+"/columns/{columnID}", bind(h, (*handler.Hierarchy).UpdateCatalogColumn))

		r.Get(v1+"/companies/{companyID}/profiles", bind(h, (*handler.Hierarchy).ListProfiles))
		r.Post(v1+"/companies/{companyID}/profiles", bind(h, (*handler.Hierarchy).CreateProfile))
		r.Put(v1+"/profiles/{profileID}", bind(h, (*handler.Hierarchy).UpdateProfile))
		r.Delete(v1+"/profiles/{profileID}", bind(d, (*handler.Deletions).DeleteProfile))

		r.Get(v1+"/profiles/{profileID}/users", bind(h, (*handler.Hierarchy).ListUsers))
		r.Post(v1+"/users", bind(h, (*handler.Hierarchy).CreateUser))
		r.Put(v1+"/users/{userID}", bind(h, (*handler.Hierarchy).UpdateUser))
		r.Delete(v1+"/users/{userID}", bind(d, (*handler.Deletions).DeleteUser))
		r.Get(v1+"/users/{userID}/grants", bind(h, (*handler.Hierarchy).ListGrants))
		r.Put(v1+"/users/{userID}/grants", bind(h, (*handler.Hierarchy).ReplaceGrants))

		r.Get(v1+"/profiles/{profileID}/permissions", bind(p, (*handler.Permissions).List))
		r.Get(v1+"/profiles/{profileID}/permissions/{table}", bind(p, (*handler.Permissions).Load))
		r.Put(v1+"/profiles/{profileID}/permissions/{table}", bind(p, (*handler.Permissions).Save))
		r.Get(v1+"/permissions/{permissionID}", bind(p, (*handler.Permissions).Get))
		r.Delete(v1+"/permissions/{permissionID}", bind(p, (*handler.Permissions).Delete))
		r.Post(v1+"/permissions/preview", handler.Preview)

		r.Post(v1+"/deletions", bind(d, (*handler.Deletions).Preview))
		r.Post(v1+"/deletions/{ticket}/execute", bind(d, (*handler.Deletions).Execute))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)

			r.Get(v1+"/portal-principals", bind(h, (*handler.Hierarchy).ListPortalPrincipals))
			r.Post(v1+"/portal-principals", bind(h, (*handler.Hierarchy).CreatePortalPrincipal))
			r.Put(v1+"/portal-principals/{principalID}", bind(h, (*handler.Hierarchy).UpdatePortalPrincipal))
			r.Get(v1+"/audit", bind(h, (*handler.Hierarchy).AuditLog))
			r.Get(v1+"/modules/{moduleID}/catalog", bind(h, (*handler.Hierarchy).ExportCatalog))
			r.Get(v1+"/enforcement", bind(p, (*handler.Permissions).Enforcement))
		})
	})

	return r
}

// bind turns a handler method expression into a route handler, or a 501
// placeholder when the handler group is not wired.
func bind[H any](h *H, fn func(*H, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	if h == nil {
		return orNotImplemented(nil)
	}
	return func(w http.ResponseWriter, r *http.Request) { fn(h, w, r) }
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
