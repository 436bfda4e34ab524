// Package models contains the tenancy, catalog and policy entities shared across the codebase.
package models
