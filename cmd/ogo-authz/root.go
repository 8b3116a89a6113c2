package main

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/opengroupware/ogo-authz/internal/cli"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string

	// Persistent flags
	cfgFile string
	dbFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "ogo-authz",
	Short: "Groupware object permission resolution",
	Long: `ogo-authz - groupware object permission resolution

Resolves fine-grained per-object permission masks for the groupware
database, the way the server does it: batched, with cross-entity trust
derivation (contacts, projects, documents, tasks).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}
		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover ogo-authz.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "database URL (overrides config and DATABASE_URL)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

// openDB resolves the DSN from flag or config and opens the database.
func openDB() (*sql.DB, error) {
	dsn := dbFlag
	if dsn == "" {
		var err error
		dsn, err = cfg.Database.DSN()
		if err != nil {
			return nil, cli.ConfigError("resolving database", err)
		}
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, cli.DBError("opening database", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, cli.DBError("connecting to database", err)
	}
	return db, nil
}
