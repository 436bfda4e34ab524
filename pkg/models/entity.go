package models

// EntityKind names a persisted entity type. It is used in audit entries,
// deletion previews and error context.
type EntityKind string

const (
	KindGroup           EntityKind = "group"
	KindCompany         EntityKind = "company"
	KindModule          EntityKind = "module"
	KindCatalogTable    EntityKind = "catalog_table"
	KindCatalogColumn   EntityKind = "catalog_column"
	KindProfile         EntityKind = "profile"
	KindUser            EntityKind = "user"
	KindGrant           EntityKind = "user_company_grant"
	KindPermission      EntityKind = "permission"
	KindPortalPrincipal EntityKind = "portal_principal"
)

// Valid reports whether k is one of the known entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindGroup, KindCompany, KindModule, KindCatalogTable, KindCatalogColumn,
		KindProfile, KindUser, KindGrant, KindPermission, KindPortalPrincipal:
		return true
	}
	return false
}
