package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// SchemaVersion is the document version written by Encode. Documents stored
// before versioning carry no schema_version and are read as version 1.
const SchemaVersion = 1

// ScopeProfile is the only scope a document is written with.
const ScopeProfile = "perfil"

// Document is the persisted form of one Permission row.
type Document struct {
	SchemaVersion int                    `json:"schema_version"`
	Tables        map[string]TablePolicy `json:"tabelas"`
	Metadata      Metadata               `json:"metadata"`
}

// Metadata records who wrote a document and for which profile.
type Metadata struct {
	Scope     string    `json:"escopo"`
	ProfileID int64     `json:"id_perfil"`
	UpdatedAt time.Time `json:"ultima_atualizacao"`
	Author    string    `json:"autor"`
}

// NewDocument wraps a single table policy for profileID.
func NewDocument(profileID int64, table string, p TablePolicy, author string, now time.Time) Document {
	return Document{
		SchemaVersion: SchemaVersion,
		Tables:        map[string]TablePolicy{strings.ToLower(table): p},
		Metadata: Metadata{
			Scope:     ScopeProfile,
			ProfileID: profileID,
			UpdatedAt: now.UTC(),
			Author:    author,
		},
	}
}

// Table returns the policy stored for table, matching keys case-insensitively.
func (d Document) Table(table string) (TablePolicy, bool) {
	if p, ok := d.Tables[strings.ToLower(table)]; ok {
		return p, true
	}
	for k, p := range d.Tables {
		if strings.EqualFold(k, table) {
			return p, true
		}
	}
	return TablePolicy{}, false
}

// Validate normalizes every table policy in place.
func (d *Document) Validate() error {
	if d.SchemaVersion == 0 {
		d.SchemaVersion = SchemaVersion
	}
	if d.SchemaVersion != SchemaVersion {
		return &apperr.ValidationError{
			Kind: apperr.UnsupportedDocument, Entity: models.KindPermission,
			Field: "schema_version", Value: fmt.Sprint(d.SchemaVersion),
		}
	}
	norm := make(map[string]TablePolicy, len(d.Tables))
	for name, p := range d.Tables {
		if !ValidIdentifier(name) {
			return &apperr.ValidationError{
				Kind: apperr.MalformedIdentifier, Entity: models.KindPermission,
				Field: "tabelas", Value: name,
			}
		}
		np, err := p.Normalize()
		if err != nil {
			return err
		}
		norm[strings.ToLower(name)] = np
	}
	d.Tables = norm
	return nil
}

// Encode validates d and marshals it.
func Encode(d Document) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode policy document: %w", err)
	}
	return b, nil
}

// DecodeDocument parses and validates a stored document.
func DecodeDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, &apperr.ValidationError{
			Kind: apperr.UnsupportedDocument, Entity: models.KindPermission,
			Msg: err.Error(),
		}
	}
	if err := d.Validate(); err != nil {
		return Document{}, err
	}
	return d, nil
}
