package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func purgeCmd(opts *globalOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete assemblies created more than --days ago",
		Long: `Delete assemblies, and their products, created more than --days ago.

Defaults to RETENTION_DAYS (30).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("days") {
				days = s.cfg.Retention.Days
			}
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			if err := requireSchema(cmd.Context(), s.db); err != nil {
				return err
			}

			n, cutoff, err := s.service.PurgeOlderThan(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %d assemblies created before %s\n",
				okMark("✓"), n, cutoff.In(s.service.Location()).Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "age threshold in days")
	return cmd
}
