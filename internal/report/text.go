package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/hurttlocker/problemsift/internal/problem"
)

const rule = "------------------------------------------------------------"

// Summary is the one-line run overview shown before any entries.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d clusters and %d singletons from %d problems",
		r.NumClusters, r.NumSingletons, r.NumProblems)
}

// WriteText writes entries as plain text. Headers are numbered by the
// entry's first running position; total is the partition size used in the
// "of N" headers.
func WriteText(w io.Writer, entries []Entry, total int) error {
	var b strings.Builder
	for _, e := range entries {
		writeEntry(&b, e, total)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeEntry(b *strings.Builder, e Entry, total int) {
	switch e.Kind {
	case KindCluster:
		fmt.Fprintf(b, "## Cluster %d: problems %d-%d of %d\n", e.Start, e.Start, e.End, total)
		fmt.Fprintf(b, "## Problem ids: %v\n", e.ProblemIDs)
	default:
		fmt.Fprintf(b, "## Singleton %d: problem %d of %d\n", e.Start, e.Start, total)
	}
	for _, d := range e.Problems {
		writeDisplay(b, d)
	}
	b.WriteString("\n")
}

func writeDisplay(b *strings.Builder, d problem.Display) {
	b.WriteString(rule + "\n")
	fmt.Fprintf(b, "Id: %d\n", d.ProblemID)
	fmt.Fprintf(b, "Title: %s\n", d.Title)
	fmt.Fprintf(b, "Program: %s\n", d.Program)
	fmt.Fprintf(b, "Sponsoring Organization: %s\n", d.SponsorOrg)
	fmt.Fprintf(b, "Problem Statement: %s\n", d.Statement)
	fmt.Fprintf(b, "Point of Contact: %s\n", d.SponsorName)
	fmt.Fprintf(b, "Point of Contact Title: %s\n", d.SponsorTitle)
}
