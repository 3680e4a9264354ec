package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List saved clustering runs, or the groups of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				groups, err := s.GetRunGroups(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					data, err := json.MarshalIndent(groups, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(data))
					return nil
				}
				for i, g := range groups {
					fmt.Fprintf(out, "Group %d: %v\n", i+1, g)
				}
				return nil
			}

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				data, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No saved runs.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tFIELDS\tMETRIC\tCUT\tPROBLEMS\tCLUSTERS\tSINGLETONS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID,
					r.CreatedAt.Format("2006-01-02 15:04"),
					strings.Join(r.Fields, ","),
					r.Metric,
					r.Criterion,
					r.NumProblems,
					r.NumClusters,
					r.NumSingletons,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
