package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/problemsift/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show resolved settings and where each came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(a.cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "config file: %s\n\n", a.cfg.ConfigPath)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
			rows := []struct {
				key string
				v   config.ResolvedValue
			}{
				{"db_path", a.cfg.DBPath},
				{"output_dir", a.cfg.OutputDir},
				{"log_level", a.cfg.LogLevel},
				{"analysis.fields", a.cfg.Fields},
				{"analysis.metric", a.cfg.Metric},
				{"analysis.max_clusters", a.cfg.MaxClusters},
				{"analysis.max_distance", a.cfg.MaxDistance},
				{"exports.data_template", a.cfg.DataTemplate},
				{"exports.process_template", a.cfg.ProcessTemplate},
				{"exports.template_header", a.cfg.TemplateHeader},
			}
			for _, r := range rows {
				source := string(r.v.Source)
				if source == "" {
					source = "unset"
				} else if r.v.From != "" {
					source += " (" + r.v.From + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.key, r.v.Value, source)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
