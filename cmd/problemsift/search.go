package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/problemsift/internal/problem"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		loose  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "List problems matching field=value terms",
		Long: `Search problems with terms of the form

  field=value;field=value1, value2

Each value is a case-insensitive substring match. By default every term must
match; --loose returns problems matching any term. An empty query lists all
problems.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if asJSON {
				displays := make([]problem.Display, len(problems))
				for i, p := range problems {
					displays[i] = p.Display()
				}
				data, err := json.MarshalIndent(displays, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			for _, p := range problems {
				d := p.Display()
				fmt.Fprintf(out, "#%d  %s  (%s)\n", d.ProblemID, d.Title, d.Program)
			}
			fmt.Fprintln(out, plural(len(problems), "problem"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&loose, "loose", false, "match any term instead of all terms")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print display fields as JSON")
	return cmd
}
