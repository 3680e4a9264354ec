package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/problemsift/internal/ingest"
)

func newImportCmd(a *app) *cobra.Command {
	var opts ingest.ImportOptions

	cmd := &cobra.Command{
		Use:   "import <path> [path...]",
		Short: "Import problem submissions from CSV, JSON, YAML or Markdown files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			opts.ProgressFn = func(current, total int, file string) {
				a.logger.Debug("importing file",
					zap.Int("current", current),
					zap.Int("total", total),
					zap.String("file", file),
				)
			}

			engine := ingest.NewEngine(s, a.logger)
			total := &ingest.ImportResult{}
			for _, path := range args {
				res, err := engine.ImportFile(cmd.Context(), path, opts)
				if err != nil {
					return fmt.Errorf("importing %s: %w", path, err)
				}
				total.Add(res)
			}

			if opts.DryRun {
				fmt.Fprintln(out, "Dry run: nothing was written.")
			}
			fmt.Fprint(out, ingest.FormatImportResult(total))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "parse files without writing records")
	cmd.Flags().Int64Var(&opts.MaxFileSize, "max-file-size", ingest.DefaultMaxFileSize, "skip files larger than this many bytes")
	return cmd
}
