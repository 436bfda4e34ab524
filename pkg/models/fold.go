package models

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// FoldKey returns the key under which a name is compared for uniqueness.
// Two names collide when their keys are equal.
func FoldKey(name string) string {
	return folder.String(strings.TrimSpace(name))
}
