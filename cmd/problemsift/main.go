// Command problemsift imports problem submissions, clusters them by their
// categorical fields and exports label co-occurrence grids.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/problemsift/internal/config"
	"github.com/hurttlocker/problemsift/internal/logging"
	"github.com/hurttlocker/problemsift/internal/problem"
	"github.com/hurttlocker/problemsift/internal/store"
)

var version = "0.1.0-dev"

// app carries global flag values and the state built from them before a
// subcommand runs.
type app struct {
	configPath string
	dbPath     string
	logLevel   string
	logJSON    bool
	debug      bool

	cfg    config.ResolvedConfig
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "problemsift",
		Short: "Cluster problem submissions by their categorical fields",
		Long: `problemsift keeps problem submissions in a local SQLite store, groups them
with average-linkage hierarchical clustering over their elements, processes,
data, program and roles labels, and exports label co-occurrence counts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.problemsift/config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (default ~/.problemsift/problemsift.db)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "write JSON logs")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "shorthand for --log-level debug")

	root.AddCommand(
		newImportCmd(a),
		newSearchCmd(a),
		newClusterCmd(a),
		newExportCmd(a),
		newRunsCmd(a),
		newMCPCmd(a),
		newConfigCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "problemsift %s\n", version)
			},
		},
	)
	return root
}

// setup resolves configuration and builds the logger. Subcommand flags that
// shadow config keys are picked up when the running command defines them.
func (a *app) setup(cmd *cobra.Command) error {
	opts := config.ResolveOptions{
		ConfigPath:     a.configPath,
		CLIDBPath:      a.dbPath,
		CLILogLevel:    a.logLevel,
		CLIOutputDir:   changedString(cmd, "out"),
		CLIFields:      changedString(cmd, "fields"),
		CLIMetric:      changedString(cmd, "metric"),
		CLIMaxClusters: changedString(cmd, "clusters"),
		CLIMaxDistance: changedString(cmd, "max-distance"),
	}
	if a.debug {
		opts.CLILogLevel = "debug"
	}

	cfg, err := config.ResolveConfig(opts)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel.Value, a.logJSON)
	if err != nil {
		return err
	}
	a.logger = logger.With(zap.String("command", cmd.Name()))
	a.logger.Debug("configuration resolved",
		zap.String("config", cfg.ConfigPath),
		zap.String("db", cfg.DBPath.Value),
		zap.String("db_source", string(cfg.DBPath.Source)),
	)
	return nil
}

// changedString returns the string form of a flag the user set explicitly.
func changedString(cmd *cobra.Command, name string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return ""
	}
	return f.Value.String()
}

func (a *app) openStore() (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: a.cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

// loadProblems returns the Problems records matching query.
func (a *app) loadProblems(ctx context.Context, s store.Store, query string, loose bool) ([]problem.Problem, error) {
	mode := store.MatchAll
	if loose {
		mode = store.MatchAny
	}
	filter, err := store.ParseFilter(query, mode)
	if err != nil {
		return nil, err
	}
	if len(filter.Ignored) > 0 {
		a.logger.Warn("ignoring unsearchable fields", zap.Strings("fields", filter.Ignored))
	}

	records, err := s.Query(ctx, store.TableProblems, filter)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("problems loaded",
		zap.String("query", query),
		zap.Int("terms", len(filter.Terms)),
		zap.Int("matched", len(records)),
	)
	return problem.FromRecords(records), nil
}

func queryArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
