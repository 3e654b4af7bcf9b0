package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

func auditCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and repair natural-key duplicates",
	}
	cmd.AddCommand(auditDuplicatesCmd(opts))
	cmd.AddCommand(auditRepairCmd(opts))
	return cmd
}

func auditDuplicatesCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List assemblies and products that share a natural key",
		Long: `List assemblies sharing (order_number, task_id) and products sharing
(assembly, product code, quantity, collected quantity). Nothing is modified.

The keep_id of each group is the row a repair would keep: the most recently
updated one, ties going to the highest id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := requireSchema(cmd.Context(), s.db); err != nil {
				return err
			}
			report, err := s.service.FindDuplicates(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, report, func(w io.Writer) {
				printDuplicateReport(w, report)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func printDuplicateReport(w io.Writer, r *core.DuplicateReport) {
	if r.Empty() {
		fmt.Fprintf(w, "%s no duplicates found\n", okMark("✓"))
		return
	}

	if len(r.Assemblies) > 0 {
		fmt.Fprintf(w, "%s\n", bold(fmt.Sprintf("Assemblies (%d groups)", len(r.Assemblies))))
		for _, g := range r.Assemblies {
			fmt.Fprintf(w, "  %s order=%s task=%s ids=%v keep=%d\n",
				warnMark("⚠"), g.OrderNumber, g.TaskID, g.IDs, g.KeepID)
		}
	}
	if len(r.LineItems) > 0 {
		fmt.Fprintf(w, "%s\n", bold(fmt.Sprintf("Products (%d groups)", len(r.LineItems))))
		for _, g := range r.LineItems {
			fmt.Fprintf(w, "  %s assembly=%d code=%s quantity=%d collected=%d ids=%v keep=%d\n",
				warnMark("⚠"), g.AssemblyID, g.ProductCode, g.RequiredQuantity, g.CollectedQuantity, g.IDs, g.KeepID)
		}
	}
	fmt.Fprintln(w, "run 'pickctl audit repair --yes' to remove them")
}

func auditRepairCmd(opts *globalOptions) *cobra.Command {
	var (
		yes    bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Delete duplicate rows, keeping one per natural key",
		Long: `Delete every duplicate found by 'pickctl audit duplicates' in a single
transaction and recompute the metrics of assemblies that lost products.

Without --yes only the report is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if err := requireSchema(ctx, s.db); err != nil {
				return err
			}

			if !yes {
				report, err := s.service.FindDuplicates(ctx)
				if err != nil {
					return err
				}
				printDuplicateReport(out, report)
				if !report.Empty() {
					fmt.Fprintf(out, "%s dry run, pass --yes to delete\n", warnMark("⚠"))
				}
				return nil
			}

			result, err := s.service.RepairDuplicates(ctx)
			if err != nil {
				return err
			}
			return render(out, format, result, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", okMark("✓"), result.Message)
				fmt.Fprintf(w, "  assemblies deleted: %d (%d groups)\n", result.AssembliesDeleted, result.AssemblyGroups)
				fmt.Fprintf(w, "  products deleted:   %d (%d groups)\n", result.LineItemsDeleted, result.LineItemGroups)
				fmt.Fprintf(w, "  assemblies recomputed: %d\n", result.AssembliesRecomputed)
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "actually delete the duplicates")
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}
