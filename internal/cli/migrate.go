package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

func migrateCmd(opts *globalOptions) *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations.

Version 2 adds unique natural-key constraints. It refuses to run while
duplicate assemblies or products exist; clean them up with
'pickctl audit repair --yes' first.

Examples:
  pickctl migrate           # migrate to the latest version
  pickctl migrate --to 1    # stop at version 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			before, err := s.db.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			if to > 0 {
				err = s.db.MigrateTo(ctx, to)
			} else {
				err = s.db.Migrate(ctx)
			}
			out := cmd.OutOrStdout()
			if err != nil {
				if errors.Is(err, core.ErrDuplicatesBlockMigration) {
					fmt.Fprintf(out, "%s %s\n", errMark("✗"), "duplicates block the unique constraints")
					fmt.Fprintln(out, "  run 'pickctl audit duplicates' to inspect and 'pickctl audit repair --yes' to fix")
				}
				return err
			}

			after, err := s.db.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			if after == before {
				fmt.Fprintf(out, "%s schema already at version %d\n", okMark("✓"), after)
			} else {
				fmt.Fprintf(out, "%s schema migrated from version %d to %d\n", okMark("✓"), before, after)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&to, "to", 0, "target schema version (default latest)")
	return cmd
}

func statusCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schema version and recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			version, err := s.db.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %d\n", bold("schema version:"), version)
			if version == 0 {
				fmt.Fprintf(out, "%s no schema, run 'pickctl migrate'\n", warnMark("⚠"))
				return nil
			}

			batches, err := s.service.RecentBatches(ctx, limit)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Fprintln(out, "no batches ingested yet")
				return nil
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "%-36s  %-20s  %8s  %8s  %8s\n", "BATCH", "RECEIVED", "ASM NEW", "ASM UPD", "SKIPPED")
			for _, b := range batches {
				fmt.Fprintf(out, "%-36s  %-20s  %8d  %8d  %8d\n",
					b.ID,
					b.ReceivedAt.In(s.service.Location()).Format("2006-01-02 15:04:05"),
					b.AssembliesCreated, b.AssembliesUpdated,
					b.AssembliesSkipped+b.ItemsSkipped)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent batches to show")
	return cmd
}
