package features

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hurttlocker/problemsift/internal/problem"
)

// Part is a field matrix tagged with whether it joins the combined matrix.
// Disabled parts may carry a nil Matrix.
type Part struct {
	Matrix  *FeatureMatrix
	Enabled bool
}

// RowSource records where a combined row came from. Metadata only; the
// clusterer never looks at it.
type RowSource struct {
	Field problem.Field `json:"field"`
	Label string        `json:"label"`
}

// Combined is the vertical concatenation of enabled field matrices.
type Combined struct {
	Fields     []problem.Field
	Sources    []RowSource
	ProblemIDs []int64

	data *mat.Dense
}

// Assemble stacks the enabled parts row-wise in the order given. Every
// supplied matrix must share the same problem columns.
func Assemble(parts ...Part) (*Combined, error) {
	var ref *FeatureMatrix
	for _, p := range parts {
		if p.Matrix == nil {
			if p.Enabled {
				return nil, fmt.Errorf("%w: enabled part has no matrix", ErrShapeMismatch)
			}
			continue
		}
		if ref == nil {
			ref = p.Matrix
			continue
		}
		if err := sameColumns(ref, p.Matrix); err != nil {
			return nil, err
		}
	}

	out := &Combined{}
	for _, p := range parts {
		if !p.Enabled {
			continue
		}
		out.Fields = append(out.Fields, p.Matrix.Field)
		for _, label := range p.Matrix.Labels {
			out.Sources = append(out.Sources, RowSource{Field: p.Matrix.Field, Label: label})
		}
	}
	if len(out.Fields) == 0 {
		return nil, ErrNoFieldsSelected
	}
	out.ProblemIDs = append([]int64(nil), ref.ProblemIDs...)

	rows, cols := len(out.Sources), len(out.ProblemIDs)
	if rows == 0 || cols == 0 {
		return out, nil
	}

	out.data = mat.NewDense(rows, cols, nil)
	offset := 0
	for _, p := range parts {
		if !p.Enabled || p.Matrix.data == nil {
			continue
		}
		r, _ := p.Matrix.Dims()
		block := out.data.Slice(offset, offset+r, 0, cols).(*mat.Dense)
		block.Copy(p.Matrix.data)
		offset += r
	}
	return out, nil
}

func sameColumns(a, b *FeatureMatrix) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != bc {
		return fmt.Errorf("%w: field %q is %dx%d but field %q is %dx%d",
			ErrShapeMismatch, b.Field, br, bc, a.Field, ar, ac)
	}
	for i := range a.ProblemIDs {
		if a.ProblemIDs[i] != b.ProblemIDs[i] {
			return fmt.Errorf("%w: field %q column %d is problem %d but field %q has problem %d",
				ErrShapeMismatch, b.Field, i, b.ProblemIDs[i], a.Field, a.ProblemIDs[i])
		}
	}
	return nil
}

// Dims returns (features, problems).
func (c *Combined) Dims() (r, cols int) {
	return len(c.Sources), len(c.ProblemIDs)
}

// At returns feature row i for problem column j.
func (c *Combined) At(i, j int) float64 {
	r, cols := c.Dims()
	if i < 0 || i >= r || j < 0 || j >= cols {
		panic(fmt.Sprintf("features: index (%d, %d) out of range for %dx%d matrix", i, j, r, cols))
	}
	return c.data.At(i, j)
}

// Vectors returns one feature vector per problem, in column order.
func (c *Combined) Vectors() [][]float64 {
	r, cols := c.Dims()
	out := make([][]float64, cols)
	for j := range out {
		if c.data == nil {
			out[j] = make([]float64, r)
			continue
		}
		out[j] = mat.Col(nil, j, c.data)
	}
	return out
}

// RowCounts returns how many rows each enabled field contributed.
func (c *Combined) RowCounts() map[problem.Field]int {
	counts := make(map[problem.Field]int, len(c.Fields))
	for _, f := range c.Fields {
		counts[f] = 0
	}
	for _, s := range c.Sources {
		counts[s.Field]++
	}
	return counts
}
