package models

import "time"

// Group is the root of tenancy. Companies and Modules belong to exactly one Group.
type Group struct {
	ID           int64     `db:"id"            json:"id"`
	Name         string    `db:"name"          json:"name"`
	DBDescriptor string    `db:"db_descriptor" json:"db_descriptor"`
	Version      string    `db:"version"       json:"version"`
	MatrixTaxID  string    `db:"matrix_tax_id" json:"matrix_tax_id"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// Company is a legal entity under a Group. Names are unique within the Group.
type Company struct {
	ID        int64     `db:"id"         json:"id"`
	GroupID   int64     `db:"group_id"   json:"group_id"`
	Name      string    `db:"name"       json:"name"`
	TaxID     string    `db:"tax_id"     json:"tax_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Module groups catalog tables within a Group. Codes are unique within the Group.
type Module struct {
	ID          int64     `db:"id"          json:"id"`
	GroupID     int64     `db:"group_id"    json:"group_id"`
	Code        string    `db:"code"        json:"code"`
	Name        string    `db:"name"        json:"name"`
	Description string    `db:"description" json:"description"`
	Active      bool      `db:"active"      json:"active"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}

// Profile is a role scoped to one Company. Permissions attach to profiles.
type Profile struct {
	ID          int64     `db:"id"          json:"id"`
	CompanyID   int64     `db:"company_id"  json:"company_id"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}

// User is a query-agent principal with one home Profile.
// Only the bcrypt hash of the credential is stored.
type User struct {
	ID             int64     `db:"id"              json:"id"`
	HomeProfileID  int64     `db:"home_profile_id" json:"home_profile_id"`
	Name           string    `db:"name"            json:"name"`
	CredentialHash string    `db:"credential_hash" json:"-"`
	IsAdmin        bool      `db:"is_admin"        json:"is_admin"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// UserCompanyGrant lets a User act inside a Company under a Profile's policy.
type UserCompanyGrant struct {
	UserID    int64 `db:"user_id"    json:"user_id"`
	CompanyID int64 `db:"company_id" json:"company_id"`
	ProfileID int64 `db:"profile_id" json:"profile_id"`
}

// PortalPrincipal is the login identity of the administration tool. It is kept
// in sync with a User's name but is not foreign-keyed to it.
type PortalPrincipal struct {
	ID             int64     `db:"id"              json:"id"`
	Login          string    `db:"login"           json:"login"`
	DisplayName    string    `db:"display_name"    json:"display_name"`
	CredentialHash string    `db:"credential_hash" json:"-"`
	IsAdmin        bool      `db:"is_admin"        json:"is_admin"`
	Active         bool      `db:"active"          json:"active"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// Principal is the authenticated caller of a single request. It is carried in
// the request context and passed explicitly into every operation.
type Principal struct {
	ID      int64  `json:"id"`
	Login   string `json:"login"`
	IsAdmin bool   `json:"is_admin"`
}
