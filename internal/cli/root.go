// Package cli implements pickctl, the maintenance command line for the
// picking service: schema migrations, duplicate audits, retention purges and
// offline batch ingestion.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
	"github.com/MikhailFrushkin/Lenanad-site/internal/logging"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	databaseURL string
	envFile     string
	verbose     bool
}

// RootCmd returns the pickctl root command with all subcommands attached.
func RootCmd(version string) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:     "pickctl",
		Short:   "Maintenance tool for the picking service database",
		Version: version,
		Long: `pickctl works directly against the picking service database.

Connection settings come from the same environment variables as the server
(DATABASE_URL, INGEST_TIMEZONE, ...), optionally loaded from a .env file.

Examples:
  pickctl migrate                          # apply pending schema migrations
  pickctl audit duplicates -o yaml         # list natural-key duplicates
  pickctl audit repair --yes               # remove them
  pickctl purge --days 30                  # delete old assemblies
  pickctl ingest report.json               # ingest a batch file`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				// Missing file is fine, the environment may already be set.
				_ = godotenv.Load(opts.envFile)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database", "", "database URL (overrides DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(migrateCmd(opts))
	cmd.AddCommand(statusCmd(opts))
	cmd.AddCommand(auditCmd(opts))
	cmd.AddCommand(purgeCmd(opts))
	cmd.AddCommand(ingestCmd(opts, version))

	return cmd
}

// loadConfig reads configuration from the environment, with --database
// taking precedence over DATABASE_URL.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	lookup := config.LookupFunc(os.LookupEnv)
	if o.databaseURL != "" {
		lookup = func(key string) (string, bool) {
			if key == "DATABASE_URL" {
				return o.databaseURL, true
			}
			return os.LookupEnv(key)
		}
	}
	return config.LoadFrom(lookup)
}

// session is an open database plus the service built on top of it.
type session struct {
	cfg     *config.Config
	db      store.Backend
	service *core.Service
}

func (s *session) Close() error {
	return s.db.Close()
}

// open loads configuration, sets up logging on stderr and connects to the
// database. The schema is left untouched.
func (o *globalOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if o.verbose {
		level = "debug"
	}
	logging.Setup(cmd.ErrOrStderr(), level, "text")

	loc, err := cfg.Ingest.LoadLocation()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &session{
		cfg: cfg,
		db:  db,
		service: core.NewService(db,
			core.WithIngestLimits(1, cfg.Ingest.MaxWaitTime),
			core.WithIngestTimeout(cfg.Ingest.Timeout),
			core.WithLocation(loc),
		),
	}, nil
}

// requireSchema fails when the database is not at the latest schema version.
func requireSchema(ctx context.Context, db store.Backend) error {
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		return fmt.Errorf("database has no schema yet, run 'pickctl migrate' first")
	}
	return nil
}
