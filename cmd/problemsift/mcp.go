package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/problemsift/internal/analysis"
	mcpserver "github.com/hurttlocker/problemsift/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the problemsift tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := a.cfg.AnalysisFields()
			if err != nil {
				return err
			}
			metric, err := a.cfg.AnalysisMetric()
			if err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			var metrics *analysis.Metrics
			if metricsAddr != "" {
				metrics, err = analysis.NewMetrics(prometheus.DefaultRegisterer)
				if err != nil {
					return err
				}
				srv := serveMetrics(metricsAddr, a.logger)
				defer srv.Close()
			}

			a.logger.Info("mcp server starting", zap.String("db", a.cfg.DBPath.Value))
			return mcpserver.ServeStdio(mcpserver.NewServer(mcpserver.ServerConfig{
				Store:   s,
				Version: version,
				Logger:  a.logger,
				Metrics: metrics,
				Fields:  fields,
				Metric:  metric,
			}))
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	return cmd
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
