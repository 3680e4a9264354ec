// Package cooccur counts label co-occurrence between two categorical fields
// and renders the counts against a fixed template grid for external tools.
package cooccur

import (
	"sort"
	"strings"

	"github.com/hurttlocker/problemsift/internal/problem"
)

// Pair is an ordered (field A label, field B label) key.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Table maps label pairs to the number of problems carrying both labels.
type Table map[Pair]int

// Count builds the co-occurrence table of fieldA x fieldB. A problem adds at
// most 1 to any pair. Labels are trimmed; matching is case-sensitive.
func Count(problems []problem.Problem, fieldA, fieldB problem.Field) Table {
	t := make(Table)
	for _, p := range problems {
		as := uniqueTrimmed(p.Labels(fieldA))
		if len(as) == 0 {
			continue
		}
		bs := uniqueTrimmed(p.Labels(fieldB))
		for _, a := range as {
			for _, b := range bs {
				t[Pair{A: a, B: b}]++
			}
		}
	}
	return t
}

func uniqueTrimmed(labels []string) []string {
	var out []string
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Get returns the count for (a, b), trimming both labels first.
func (t Table) Get(a, b string) int {
	return t[Pair{A: strings.TrimSpace(a), B: strings.TrimSpace(b)}]
}

// Pairs returns every counted pair sorted by A then B.
func (t Table) Pairs() []Pair {
	out := make([]Pair, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
