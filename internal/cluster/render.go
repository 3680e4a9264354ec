package cluster

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Renderer receives a finished tree for visualization. labels[i] names
// observation i. Rendering is a side effect; clustering results never
// depend on it.
type Renderer interface {
	RenderDendrogram(t *Tree, labels []string) error
}

// TextRenderer draws the tree as an indented outline.
type TextRenderer struct {
	W io.Writer
}

// RenderDendrogram implements Renderer.
func (r TextRenderer) RenderDendrogram(t *Tree, labels []string) error {
	root := t.Root()
	if root < 0 {
		_, err := fmt.Fprintln(r.W, "(empty)")
		return err
	}
	var b strings.Builder
	writeNode(&b, t, labels, root, "", true, true)
	_, err := io.WriteString(r.W, b.String())
	return err
}

func writeNode(b *strings.Builder, t *Tree, labels []string, id int, prefix string, last, top bool) {
	branch, next := "├── ", prefix+"│   "
	if last {
		branch, next = "└── ", prefix+"    "
	}
	if top {
		branch, next = "", ""
	}

	left, right, ok := t.Children(id)
	if !ok {
		fmt.Fprintf(b, "%s%s%s\n", prefix, branch, leafLabel(labels, id))
		return
	}
	m := t.Merges[id-t.N]
	fmt.Fprintf(b, "%s%s[%d] d=%.4f n=%d\n", prefix, branch, id, m.Distance, m.Size)
	writeNode(b, t, labels, left, next, false, false)
	writeNode(b, t, labels, right, next, true, false)
}

func leafLabel(labels []string, id int) string {
	if id < len(labels) && labels[id] != "" {
		return labels[id]
	}
	return strconv.Itoa(id)
}

// LinkageCSVRenderer writes the SciPy-style linkage matrix as CSV with a
// header row: left,right,distance,size.
type LinkageCSVRenderer struct {
	W io.Writer
}

// RenderDendrogram implements Renderer.
func (r LinkageCSVRenderer) RenderDendrogram(t *Tree, _ []string) error {
	w := csv.NewWriter(r.W)
	if err := w.Write([]string{"left", "right", "distance", "size"}); err != nil {
		return err
	}
	for _, m := range t.Merges {
		if err := w.Write([]string{
			strconv.Itoa(m.Left),
			strconv.Itoa(m.Right),
			strconv.FormatFloat(m.Distance, 'g', -1, 64),
			strconv.Itoa(m.Size),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
