// Command policyctl is the operator tool for the policy administration
// service: it applies schema migrations, compiles policy files offline and
// hashes portal secrets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "policyctl",
		Short:         "Operator tool for the policy administration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newCompileCommand())
	root.AddCommand(newHashCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "policyctl: %v\n", err)
		os.Exit(1)
	}
}
