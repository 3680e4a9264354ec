package cluster

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidCriterion is returned for missing or out of range cut criteria.
var ErrInvalidCriterion = errors.New("invalid cut criterion")

// CriterionKind selects how a tree is cut.
type CriterionKind string

const (
	// CutByCount stops once MaxClusters groups remain.
	CutByCount CriterionKind = "count"
	// CutByDistance applies merges while their distance is <= MaxDistance.
	CutByDistance CriterionKind = "distance"
)

// Criterion is a flat-cut rule. The zero value is no criterion.
type Criterion struct {
	Kind        CriterionKind `json:"kind,omitempty"`
	MaxClusters int           `json:"max_clusters,omitempty"`
	MaxDistance float64       `json:"max_distance,omitempty"`
}

// ByCount cuts the tree into at most k groups.
func ByCount(k int) Criterion {
	return Criterion{Kind: CutByCount, MaxClusters: k}
}

// ByDistance cuts the tree at distance threshold t.
func ByDistance(t float64) Criterion {
	return Criterion{Kind: CutByDistance, MaxDistance: t}
}

// IsZero reports whether no criterion was set.
func (c Criterion) IsZero() bool {
	return c.Kind == ""
}

// Validate checks the criterion's parameters.
func (c Criterion) Validate() error {
	switch c.Kind {
	case CutByCount:
		if c.MaxClusters < 1 {
			return fmt.Errorf("%w: cluster count must be >= 1, got %d", ErrInvalidCriterion, c.MaxClusters)
		}
	case CutByDistance:
		if math.IsNaN(c.MaxDistance) || c.MaxDistance < 0 {
			return fmt.Errorf("%w: distance threshold must be >= 0, got %v", ErrInvalidCriterion, c.MaxDistance)
		}
	case "":
		return fmt.Errorf("%w: no criterion set", ErrInvalidCriterion)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCriterion, c.Kind)
	}
	return nil
}

func (c Criterion) String() string {
	switch c.Kind {
	case CutByCount:
		return "k=" + strconv.Itoa(c.MaxClusters)
	case CutByDistance:
		return "distance<=" + strconv.FormatFloat(c.MaxDistance, 'g', -1, 64)
	}
	return "none"
}

// Group is one partition member set: problem ids in input order.
// Two or more ids form a cluster; one id is a singleton.
type Group []int64

// IsCluster reports whether the group has at least two members.
func (g Group) IsCluster() bool {
	return len(g) >= 2
}

// Partition is a flat grouping where every problem id appears exactly once.
// Groups are ordered by the input position of their first member.
type Partition []Group

// Counts returns the number of clusters and singletons.
func (p Partition) Counts() (clusters, singletons int) {
	for _, g := range p {
		if g.IsCluster() {
			clusters++
		} else {
			singletons++
		}
	}
	return clusters, singletons
}

// Size returns the total number of problems.
func (p Partition) Size() int {
	n := 0
	for _, g := range p {
		n += len(g)
	}
	return n
}

// Cut flattens the tree. ids translates observation positions to problem
// ids and must have length N. Trees over zero or one observation yield a
// trivial partition without consulting the criterion.
func (t *Tree) Cut(ids []int64, c Criterion) (Partition, error) {
	if len(ids) != t.N {
		return nil, fmt.Errorf("%w: tree has %d observations, got %d ids", ErrSizeMismatch, t.N, len(ids))
	}
	if t.N == 0 {
		return Partition{}, nil
	}
	if t.N == 1 {
		return Partition{{ids[0]}}, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	apply := 0
	switch c.Kind {
	case CutByCount:
		apply = t.N - c.MaxClusters
		if apply < 0 {
			apply = 0
		}
		if apply > len(t.Merges) {
			apply = len(t.Merges)
		}
	case CutByDistance:
		for apply < len(t.Merges) && t.Merges[apply].Distance <= c.MaxDistance {
			apply++
		}
	}

	parent := make([]int, t.N+len(t.Merges))
	for i := range parent {
		parent[i] = i
	}
	for k := 0; k < apply; k++ {
		m := t.Merges[k]
		parent[m.Left] = t.N + k
		parent[m.Right] = t.N + k
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	groupOf := make(map[int]int)
	var out Partition
	for pos := 0; pos < t.N; pos++ {
		root := find(pos)
		gi, ok := groupOf[root]
		if !ok {
			gi = len(out)
			groupOf[root] = gi
			out = append(out, Group{})
		}
		out[gi] = append(out[gi], ids[pos])
	}
	return out, nil
}
