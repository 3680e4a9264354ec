package cluster

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Metric is a distance over binary feature vectors.
type Metric string

const (
	// MetricJaccard is |a xor b| / |a or b|; two empty vectors are at distance 0.
	MetricJaccard Metric = "jaccard"
	// MetricEuclidean is the L2 distance.
	MetricEuclidean Metric = "euclidean"
	// MetricHamming is the L1 distance, which counts differing features on {0,1} vectors.
	MetricHamming Metric = "hamming"
)

// DefaultMetric is used when none is configured.
const DefaultMetric = MetricJaccard

// ParseMetric validates a metric name. Empty selects DefaultMetric.
func ParseMetric(name string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return DefaultMetric, nil
	case MetricJaccard, MetricEuclidean, MetricHamming:
		return m, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q (want jaccard, euclidean or hamming)", name)
	}
}

// Distance computes the metric between equal length vectors.
func (m Metric) Distance(a, b []float64) float64 {
	switch m {
	case MetricEuclidean:
		return floats.Distance(a, b, 2)
	case MetricHamming:
		return floats.Distance(a, b, 1)
	default:
		return jaccard(a, b)
	}
}

func jaccard(a, b []float64) float64 {
	union, diff := 0, 0
	for i := range a {
		x, y := a[i] != 0, b[i] != 0
		if x || y {
			union++
		}
		if x != y {
			diff++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(diff) / float64(union)
}
