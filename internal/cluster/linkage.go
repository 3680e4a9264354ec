// Package cluster implements average-linkage (UPGMA) agglomerative
// clustering over problem feature vectors and flat cuts of the resulting
// merge tree.
//
// Original observations are clusters 0..N-1 in input order; the k-th merge
// creates cluster N+k. At every step the pair of live clusters with the
// smallest average pairwise member distance is merged, ties going to the
// lowest (left, right) cluster-id pair.
//
// Each live cluster caches its nearest partner, so a merge rescans only the
// rows that pointed at the merged pair. Build is O(N^2) time in the common
// case and O(N^3) in the worst case, with an N x N distance matrix in memory.
package cluster

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrSizeMismatch is returned when vectors or id lists disagree in length.
var ErrSizeMismatch = errors.New("cluster input size mismatch")

// Merge is one agglomeration step.
type Merge struct {
	Left     int     `json:"left"`
	Right    int     `json:"right"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// Tree is the full merge record (dendrogram) for N observations.
type Tree struct {
	N      int     `json:"n"`
	Metric Metric  `json:"metric"`
	Merges []Merge `json:"merges"`
}

// Build runs average-linkage clustering to a single root. N <= 1 yields an
// empty tree.
func Build(vectors [][]float64, metric Metric) (*Tree, error) {
	n := len(vectors)
	tree := &Tree{N: n, Metric: metric, Merges: []Merge{}}
	if n <= 1 {
		return tree, nil
	}

	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d features, vector 0 has %d", ErrSizeMismatch, i, len(v), dims)
		}
	}

	dist := pairwise(vectors, metric)

	// Slot i holds live cluster ids[i]; a merge keeps the lower slot and
	// retires the higher one.
	ids := make([]int, n)
	sizes := make([]int, n)
	live := make([]bool, n)
	for i := range ids {
		ids[i] = i
		sizes[i] = 1
		live[i] = true
	}

	// before reports whether slot pair (i, j) merges ahead of (k, l).
	before := func(i, j, k, l int) bool {
		d1, d2 := dist.At(i, j), dist.At(k, l)
		if d1 != d2 {
			return d1 < d2
		}
		return lessPair(ids[i], ids[j], ids[k], ids[l])
	}

	// nn[i] is slot i's best live partner.
	nn := make([]int, n)
	scan := func(i int) {
		nn[i] = -1
		for j := 0; j < n; j++ {
			if j == i || !live[j] {
				continue
			}
			if nn[i] < 0 || before(i, j, i, nn[i]) {
				nn[i] = j
			}
		}
	}
	for i := 0; i < n; i++ {
		scan(i)
	}

	for step := 0; step < n-1; step++ {
		a := -1
		for i := 0; i < n; i++ {
			if live[i] && (a < 0 || before(i, nn[i], a, nn[a])) {
				a = i
			}
		}
		b := nn[a]
		if a > b {
			a, b = b, a
		}
		best := dist.At(a, b)

		left, right := ids[a], ids[b]
		if left > right {
			left, right = right, left
		}
		merged := sizes[a] + sizes[b]
		tree.Merges = append(tree.Merges, Merge{Left: left, Right: right, Distance: best, Size: merged})

		// Lance-Williams update for average linkage.
		for k := 0; k < n; k++ {
			if !live[k] || k == a || k == b {
				continue
			}
			d := (float64(sizes[a])*dist.At(a, k) + float64(sizes[b])*dist.At(b, k)) / float64(merged)
			dist.SetSym(a, k, d)
		}
		ids[a] = n + step
		sizes[a] = merged
		live[b] = false

		scan(a)
		for k := 0; k < n; k++ {
			if !live[k] || k == a {
				continue
			}
			switch {
			case nn[k] == a || nn[k] == b:
				scan(k)
			case before(k, a, k, nn[k]):
				nn[k] = a
			}
		}
	}

	return tree, nil
}

func pairwise(vectors [][]float64, metric Metric) *mat.SymDense {
	n := len(vectors)
	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist.SetSym(i, j, metric.Distance(vectors[i], vectors[j]))
		}
	}
	return dist
}

// lessPair orders unordered cluster-id pairs by (min, max).
func lessPair(i, j, k, l int) bool {
	if i > j {
		i, j = j, i
	}
	if k > l {
		k, l = l, k
	}
	if i != k {
		return i < k
	}
	return j < l
}

// Root returns the id of the final cluster, or -1 for an empty tree.
func (t *Tree) Root() int {
	if len(t.Merges) == 0 {
		if t.N == 1 {
			return 0
		}
		return -1
	}
	return t.N + len(t.Merges) - 1
}

// Children returns the two clusters merged into id, or ok=false for leaves.
func (t *Tree) Children(id int) (left, right int, ok bool) {
	k := id - t.N
	if k < 0 || k >= len(t.Merges) {
		return 0, 0, false
	}
	m := t.Merges[k]
	return m.Left, m.Right, true
}

// Linkage returns the merges as SciPy-style rows [left, right, distance, size].
func (t *Tree) Linkage() [][4]float64 {
	out := make([][4]float64, len(t.Merges))
	for i, m := range t.Merges {
		out[i] = [4]float64{float64(m.Left), float64(m.Right), m.Distance, float64(m.Size)}
	}
	return out
}
