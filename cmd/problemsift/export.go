package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/problemsift/internal/analysis"
	"github.com/hurttlocker/problemsift/internal/cooccur"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		kind     string
		template string
		header   bool
		loose    bool
	)

	cmd := &cobra.Command{
		Use:   "export [query]",
		Short: "Write element co-occurrence counts against a template grid",
		Long: `Count, for the problems matching query, how many carry each
(element, data) or (element, process) label pair and write the counts into a
copy of the template CSV. The data export writes ELEMENTS_DATA.csv and the
process export writes ELEMENTS_PROCESS.csv under the output directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exports, err := cooccur.ParseExports(kind)
			if err != nil {
				return err
			}
			if template != "" && len(exports) > 1 {
				return errors.New("--template needs a single --kind")
			}
			if !cmd.Flags().Changed("header") {
				header = a.cfg.HasTemplateHeader()
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			problems, err := a.loadProblems(cmd.Context(), s, queryArg(args), loose)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, exp := range exports {
				tmpl := template
				if tmpl == "" {
					tmpl = a.cfg.TemplateFor(exp.Name)
				}
				res, err := analysis.ExportToDir(cmd.Context(), problems, exp, tmpl, a.cfg.OutputDir.Value, analysis.ExportOptions{
					Header: header,
					Logger: a.logger,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s: %s, %d non-zero\n", res.Path, plural(res.Rows, "row"), res.NonZero)
				if res.Dropped > 0 {
					fmt.Fprintf(out, "  %s not in template\n", plural(res.Dropped, "counted pair"))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "both", "export to write: data, process or both")
	cmd.Flags().StringVar(&template, "template", "", "template CSV (default from config)")
	cmd.Flags().BoolVar(&header, "header", false, "the template starts with a header row")
	cmd.Flags().String("out", "", "output directory (default .)")
	cmd.Flags().BoolVar(&loose, "loose", false, "match any query term instead of all terms")
	return cmd
}
