// Package report turns a flat partition into an ordered, fully materialized
// sequence of cluster and singleton entries with one running 1-based
// position counter across the whole partition.
package report

import (
	"github.com/hurttlocker/problemsift/internal/cluster"
	"github.com/hurttlocker/problemsift/internal/problem"
)

// Kind distinguishes clusters from singletons.
type Kind string

const (
	KindCluster   Kind = "cluster"
	KindSingleton Kind = "singleton"
)

// Lookup resolves the display fields of a problem id.
type Lookup func(id int64) problem.Display

// IndexLookup resolves ids against idx. Ids missing from the index get a
// display with every field set to problem.Unknown.
func IndexLookup(idx problem.Index) Lookup {
	return func(id int64) problem.Display {
		if p, ok := idx[id]; ok {
			return p.Display()
		}
		return problem.Problem{ID: id}.Display()
	}
}

// Entry is one group of the partition. Start and End are inclusive running
// positions; for a singleton they are equal.
type Entry struct {
	Kind       Kind              `json:"kind"`
	Ordinal    int               `json:"ordinal"`
	ProblemIDs []int64           `json:"problem_ids"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Problems   []problem.Display `json:"problems"`
}

// Report is the ordered result of a clustering run.
type Report struct {
	RunID         string  `json:"run_id,omitempty"`
	Entries       []Entry `json:"entries"`
	NumProblems   int     `json:"num_problems"`
	NumClusters   int     `json:"num_clusters"`
	NumSingletons int     `json:"num_singletons"`
}

// Build materializes the report. Entries follow partition order; Ordinal
// counts clusters and singletons separately, starting at 1.
func Build(p cluster.Partition, lookup Lookup) *Report {
	if lookup == nil {
		lookup = IndexLookup(nil)
	}

	r := &Report{Entries: make([]Entry, 0, len(p))}
	pos := 1
	for _, g := range p {
		if len(g) == 0 {
			continue
		}
		e := Entry{
			Kind:       KindSingleton,
			ProblemIDs: append([]int64(nil), g...),
			Start:      pos,
			End:        pos + len(g) - 1,
			Problems:   make([]problem.Display, len(g)),
		}
		if g.IsCluster() {
			r.NumClusters++
			e.Kind = KindCluster
			e.Ordinal = r.NumClusters
		} else {
			r.NumSingletons++
			e.Ordinal = r.NumSingletons
		}
		for i, id := range g {
			e.Problems[i] = lookup(id)
		}
		pos += len(g)
		r.Entries = append(r.Entries, e)
	}
	r.NumProblems = pos - 1
	return r
}

// Len returns the number of entries.
func (r *Report) Len() int {
	return len(r.Entries)
}

// Page returns up to limit entries starting at offset. A limit <= 0 returns
// everything from offset; an offset past the end returns nil.
func (r *Report) Page(offset, limit int) []Entry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.Entries) {
		return nil
	}
	end := len(r.Entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return r.Entries[offset:end]
}

// Clusters returns only the cluster entries.
func (r *Report) Clusters() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Kind == KindCluster {
			out = append(out, e)
		}
	}
	return out
}
