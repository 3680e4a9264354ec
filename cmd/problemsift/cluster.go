package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/problemsift/internal/analysis"
	"github.com/hurttlocker/problemsift/internal/cluster"
	"github.com/hurttlocker/problemsift/internal/report"
)

var errNoCut = errors.New("one of --clusters or --max-distance is required (or analysis.max_clusters / analysis.max_distance in the config file)")

func newClusterCmd(a *app) *cobra.Command {
	var (
		loose      bool
		dendrogram string
		pageSize   int
		asJSON     bool
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "cluster [query]",
		Short: "Group matching problems by their categorical fields",
		Long: `Cluster the problems matching query (see "problemsift search") with
average-linkage hierarchical clustering and print the resulting clusters and
singletons.

Fields are given as letter flags (e=elements, p=processes, d=data, g=program,
r=roles) or comma separated names. Cut the tree with --clusters k or
--max-distance t.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := a.cfg.AnalysisFields()
			if err != nil {
				return err
			}
			metric, err := a.cfg.AnalysisMetric()
			if err != nil {
				return err
			}
			criterion, err := a.cfg.Criterion()
			if err != nil {
				return err
			}
			if criterion.IsZero() && dendrogram == "" {
				return errNoCut
			}

			out := cmd.OutOrStdout()
			renderer, err := dendrogramRenderer(dendrogram, out)
			if err != nil {
				return err
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

			runCfg := analysis.Config{
				Fields:    fields,
				Metric:    metric,
				Criterion: criterion,
				Logger:    a.logger,
				Renderer:  renderer,
			}
			if save && !criterion.IsZero() {
				runCfg.Recorder = s
			}

			res, err := analysis.Run(cmd.Context(), problems, runCfg)
			if err != nil {
				return err
			}
			if res.Report == nil {
				return nil
			}

			if asJSON {
				data, err := json.MarshalIndent(map[string]interface{}{
					"run_id":     res.RunID,
					"fields":     res.Fields,
					"metric":     res.Metric,
					"criterion":  res.Criterion.String(),
					"row_counts": res.RowCounts,
					"report":     res.Report,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Run %s: %s\n", res.RunID, res.Report.Summary())
			return pageReport(out, cmd.InOrStdin(), res.Report, pageSize)
		},
	}

	cmd.Flags().String("fields", "", "fields to cluster on (default elements,processes)")
	cmd.Flags().String("metric", "", "distance metric: jaccard, euclidean, hamming")
	cmd.Flags().Int("clusters", 0, "cut the tree into this many groups")
	cmd.Flags().Float64("max-distance", 0, "cut the tree at this merge distance")
	cmd.Flags().BoolVar(&loose, "loose", false, "match any query term instead of all terms")
	cmd.Flags().StringVar(&dendrogram, "dendrogram", "", "print the merge tree first: text or csv")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "entries per page, waiting for Enter between pages (0 prints all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&save, "save", true, "record the run in the database")
	return cmd
}

func dendrogramRenderer(kind string, w io.Writer) (cluster.Renderer, error) {
	switch strings.ToLower(kind) {
	case "":
		return nil, nil
	case "text":
		return cluster.TextRenderer{W: w}, nil
	case "csv":
		return cluster.LinkageCSVRenderer{W: w}, nil
	}
	return nil, fmt.Errorf("unknown dendrogram format %q (want text or csv)", kind)
}

// pageReport writes the report pageSize entries at a time, reading a line
// from in between pages. "q" or end of input stops early.
func pageReport(out io.Writer, in io.Reader, rep *report.Report, pageSize int) error {
	if pageSize <= 0 {
		return report.WriteText(out, rep.Entries, rep.NumProblems)
	}

	scanner := bufio.NewScanner(in)
	for offset := 0; offset < rep.Len(); offset += pageSize {
		if err := report.WriteText(out, rep.Page(offset, pageSize), rep.NumProblems); err != nil {
			return err
		}
		shown := offset + pageSize
		if shown >= rep.Len() {
			break
		}
		fmt.Fprintf(out, "-- %d of %d entries shown; Enter for more, q to quit --\n", shown, rep.Len())
		if !scanner.Scan() || strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
			break
		}
	}
	return nil
}
