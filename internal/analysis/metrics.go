package analysis

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the analysis collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	ProblemsPerRun prometheus.Histogram
	ClustersPerRun prometheus.Histogram
	Exports        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// returns nil metrics. Collectors already registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "problemsift",
				Subsystem: "analysis",
				Name:      "runs_total",
				Help:      "Clustering runs by outcome",
			},
			[]string{"outcome"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "problemsift",
				Subsystem: "analysis",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a clustering run in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		ProblemsPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "problemsift",
				Subsystem: "analysis",
				Name:      "problems_per_run",
				Help:      "Number of problems clustered per run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		ClustersPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "problemsift",
				Subsystem: "analysis",
				Name:      "clusters_per_run",
				Help:      "Number of clusters (groups of two or more) per run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		Exports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "problemsift",
				Subsystem: "exports",
				Name:      "total",
				Help:      "Co-occurrence exports by export name and outcome",
			},
			[]string{"export", "outcome"},
		),
	}

	var err error
	if m.Runs, err = register(reg, m.Runs); err != nil {
		return nil, err
	}
	if m.RunDuration, err = register(reg, m.RunDuration); err != nil {
		return nil, err
	}
	if m.ProblemsPerRun, err = register(reg, m.ProblemsPerRun); err != nil {
		return nil, err
	}
	if m.ClustersPerRun, err = register(reg, m.ClustersPerRun); err != nil {
		return nil, err
	}
	if m.Exports, err = register(reg, m.Exports); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeRun(outcome string, elapsed time.Duration, problems, clusters int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	if outcome == outcomeOK {
		m.ProblemsPerRun.Observe(float64(problems))
		m.ClustersPerRun.Observe(float64(clusters))
	}
}

func (m *Metrics) observeExport(name, outcome string) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(name, outcome).Inc()
}
