package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

func ingestCmd(opts *globalOptions, version string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Ingest a batch report from a file ('-' for stdin)",
		Long: `Ingest one batch report, the same JSON document the service accepts on
POST /particles/, bypassing HTTP. Useful for replaying saved reports.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("unknown output format %q (want text or json)", format)
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			batch, err := core.DecodeBatch(in)
			if err != nil {
				var env *core.EnvelopeError
				if errors.As(err, &env) {
					for field, msg := range env.Fields {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", errMark("✗"), field, msg)
					}
				}
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

			ctx := core.ContextWithClient(cmd.Context(), core.ClientInfo{
				IP:        "local",
				UserAgent: "pickctl/" + version,
			})
			result, err := s.service.Ingest(ctx, batch)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), format, result, func(w io.Writer) {
				fmt.Fprintf(w, "%s batch %s committed\n", okMark("✓"), result.BatchID)
				fmt.Fprintf(w, "  assemblies: %d new, %d updated, %d skipped\n",
					result.Assemblies.Created, result.Assemblies.Updated, result.Assemblies.Skipped)
				fmt.Fprintf(w, "  products:   %d new, %d updated, %d skipped\n",
					result.Products.Created, result.Products.Updated, result.Products.Skipped)
				for _, re := range result.Rejected {
					fmt.Fprintf(w, "  %s assembly #%d %s/%s: %s\n",
						warnMark("⚠"), re.AssemblyIndex, re.OrderNumber, re.TaskID, re.Reason)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text or json")
	return cmd
}
