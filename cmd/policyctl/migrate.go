package main

import (
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/policyadmin/internal/store"
)

const (
	databaseURLFlag = "database-url"
	dirFlag         = "dir"
)

func newMigrateFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		databaseURLFlag: &cobraflags.StringFlag{
			Name:  databaseURLFlag,
			Value: "",
			Usage: "PostgreSQL URL (defaults to DATABASE_URL)",
		},
		dirFlag: &cobraflags.StringFlag{
			Name:  dirFlag,
			Value: "migrations",
			Usage: "Directory holding the migration files",
		},
	}
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate [up|version]",
		Short: "Manage the database schema",
	}

	upFlags := newMigrateFlags()
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrateUpCommand(cmd, upFlags[databaseURLFlag].GetString(), upFlags[dirFlag].GetString())
		},
	}
	cobraflags.RegisterMap(upCmd, upFlags)

	versionFlags := newMigrateFlags()
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrateVersionCommand(cmd, versionFlags[databaseURLFlag].GetString(), versionFlags[dirFlag].GetString())
		},
	}
	cobraflags.RegisterMap(versionCmd, versionFlags)

	migrateCmd.AddCommand(upCmd, versionCmd)
	return migrateCmd
}

// databaseURL prefers the flag, then DATABASE_URL (after loading .env).
func databaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	_ = godotenv.Load(envString("POLICYADMIN_ENV_FILE", ".env"))
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("--%s or DATABASE_URL is required", databaseURLFlag)
}

func migrateUpCommand(cmd *cobra.Command, urlFlag, dir string) error {
	url, err := databaseURL(urlFlag)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations directory: %w", err)
	}
	if err := store.RunMigrations(url, dir); err != nil {
		return err
	}
	v, _, err := store.MigrationVersion(url, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
	return nil
}

func migrateVersionCommand(cmd *cobra.Command, urlFlag, dir string) error {
	url, err := databaseURL(urlFlag)
	if err != nil {
		return err
	}
	v, dirty, err := store.MigrationVersion(url, dir)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\n", v)
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
