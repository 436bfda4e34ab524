package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/pkg/policy"
)

const fileFlag = "file"

// newCompileFlags returns fresh flag values; cobraflags binds a Flag to the
// first command it is read from.
func newCompileFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		fileFlag: &cobraflags.StringFlag{
			Name:  fileFlag,
			Value: "",
			Usage: "Table policy to compile (.json, .yaml or .yml)",
		},
	}
}

func newCompileCommand() *cobra.Command {
	flags := newCompileFlags()
	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a table policy and print its predicates",
		Long: `Compile a table policy without touching the database.

The file holds column_blocks and row_filters. The output is the compiled
preview as JSON: the deny predicate with its bind arguments, the guard, a
readable rendering and the blocked columns.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return compileCommand(cmd, flags[fileFlag].GetString())
		},
	}
	cobraflags.RegisterMap(compileCmd, flags)
	return compileCmd
}

func compileCommand(cmd *cobra.Command, path string) error {
	if path == "" {
		return fmt.Errorf("--%s is required", fileFlag)
	}
	tp, err := readTablePolicy(path)
	if err != nil {
		return err
	}
	preview, err := admin.PreviewCompile(tp)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	if preview.Args == nil {
		preview.Args = []any{}
	}
	if preview.BlockedColumns == nil {
		preview.BlockedColumns = []string{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(preview)
}

func readTablePolicy(path string) (policy.TablePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.TablePolicy{}, fmt.Errorf("read policy: %w", err)
	}

	var tp policy.TablePolicy
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&tp); err != nil {
			return policy.TablePolicy{}, fmt.Errorf("parse %s: %w", path, err)
		}
		// YAML bypasses Op's JSON decoder, so SQL spellings are folded here.
		for i := range tp.RowFilters {
			tp.RowFilters[i].Op = policy.ParseOp(string(tp.RowFilters[i].Op))
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&tp); err != nil {
			return policy.TablePolicy{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return tp, nil
}
