package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/audit"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/config"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/repository"
)

func newAuditCmd(st *state) *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize what the sync has stored",
		Long: `Reports per case which header fields are empty, how many events carry an
actor, deadline or reference, and how many documents were stored by type.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), st.cfg, st.logger, false)
			if err != nil {
				return err
			}
			defer store.Close()

			rep, err := audit.Build(cmd.Context(), store, runs, time.Now())
			if err != nil {
				return err
			}
			return renderAudit(cmd.OutOrStdout(), st.output, rep)
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 5, "recent sync runs to include")
	return cmd
}

func newRunsCmd(st *state) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			store, err := openStore(cmd.Context(), st.cfg, st.logger, false)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return renderRuns(cmd.OutOrStdout(), st.output, runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}

func newMigrateCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if st.cfg.Database.Type != config.DatabasePostgres {
				return errors.New("migrations need database.type postgres")
			}
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(st, func(mg *repository.Migrator) error {
					if err := mg.Up(); err != nil {
						return err
					}
					success(cmd.OutOrStdout(), "Schema is up to date")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(st, func(mg *repository.Migrator) error {
					if err := mg.Down(); err != nil {
						return err
					}
					success(cmd.OutOrStdout(), "All migrations reverted")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(st, func(mg *repository.Migrator) error {
					version, dirty, ok, err := mg.Version()
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					switch {
					case !ok:
						info(out, "No migration applied")
					case dirty:
						warn(out, "Version %d (dirty)", version)
					default:
						info(out, "Version %d", version)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(st *state, fn func(*repository.Migrator) error) error {
	mg, err := repository.NewMigrator(st.cfg.Database.ConnString())
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}
