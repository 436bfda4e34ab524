package models

import "time"

// CatalogTable describes a queryable table. Table codes are unique within a Module.
type CatalogTable struct {
	ID           int64     `db:"id"            json:"id"`
	ModuleID     int64     `db:"module_id"     json:"module_id"`
	TableCode    string    `db:"table_code"    json:"table_code"`
	Title        string    `db:"title"         json:"title"`
	Description  string    `db:"description"   json:"description"`
	SourceSystem string    `db:"source_system" json:"source_system"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// CatalogColumn describes one column of a CatalogTable.
type CatalogColumn struct {
	ID          int64     `db:"id"          json:"id"`
	TableID     int64     `db:"table_id"    json:"table_id"`
	ColumnName  string    `db:"column_name" json:"column_name"`
	Title       string    `db:"title"       json:"title"`
	Description string    `db:"description" json:"description"`
	DataType    string    `db:"data_type"   json:"data_type"`
	Sensitive   bool      `db:"sensitive"   json:"sensitive"`
	Order       int       `db:"ordinal"     json:"order"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}

// CatalogTableWithColumns is the read model handed to the catalog ingestion pipeline.
type CatalogTableWithColumns struct {
	CatalogTable
	ModuleCode string          `json:"module_code"`
	Columns    []CatalogColumn `json:"columns"`
}
