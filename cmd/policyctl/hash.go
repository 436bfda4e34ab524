package main

import (
	"fmt"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const (
	secretFlag = "secret"
	costFlag   = "cost"
)

func newHashFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		secretFlag: &cobraflags.StringFlag{
			Name:  secretFlag,
			Value: "",
			Usage: "Portal principal secret to hash",
		},
		costFlag: &cobraflags.StringFlag{
			Name:  costFlag,
			Value: strconv.Itoa(bcrypt.DefaultCost),
			Usage: "bcrypt cost (4-31)",
		},
	}
}

func newHashCommand() *cobra.Command {
	flags := newHashFlags()
	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the bcrypt hash of a portal secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return hashCommand(cmd, flags[secretFlag].GetString(), flags[costFlag].GetString())
		},
	}
	cobraflags.RegisterMap(hashCmd, flags)
	return hashCmd
}

func hashCommand(cmd *cobra.Command, secret, costArg string) error {
	if secret == "" {
		return fmt.Errorf("--%s is required", secretFlag)
	}
	cost, err := strconv.Atoi(costArg)
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("--%s must be an integer between %d and %d", costFlag, bcrypt.MinCost, bcrypt.MaxCost)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(h))
	return nil
}
