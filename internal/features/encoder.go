// Package features turns multi-valued categorical problem fields into binary
// indicator matrices (labels x problems) and stacks them into the combined
// feature matrix the clusterer consumes.
package features

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hurttlocker/problemsift/internal/problem"
)

var (
	// ErrUnknownField is returned when encoding a field outside problem.Fields.
	ErrUnknownField = problem.ErrUnknownField
	// ErrShapeMismatch is returned when matrices disagree on the problem columns.
	ErrShapeMismatch = errors.New("feature matrix shape mismatch")
	// ErrNoFieldsSelected is returned when no part is enabled.
	ErrNoFieldsSelected = errors.New("no feature fields selected")
)

// FeatureMatrix is one field's binary indicator matrix. Row i is Labels[i],
// column j is ProblemIDs[j]. Entries are exactly 0 or 1.
type FeatureMatrix struct {
	Field      problem.Field
	Labels     []string
	ProblemIDs []int64

	index map[string]int
	// nil when either dimension is zero; gonum rejects empty Dense matrices.
	data *mat.Dense
}

// Encode builds the feature matrix of field over problems. Label indices
// follow first occurrence scanning problems in order, then each problem's
// values in order. A missing field contributes no labels.
func Encode(field problem.Field, problems []problem.Problem) (*FeatureMatrix, error) {
	field, err := problem.ParseField(string(field))
	if err != nil {
		return nil, err
	}

	fm := &FeatureMatrix{
		Field:      field,
		ProblemIDs: problem.IDs(problems),
		index:      make(map[string]int),
	}

	for _, p := range problems {
		for _, label := range p.Labels(field) {
			if _, ok := fm.index[label]; !ok {
				fm.index[label] = len(fm.Labels)
				fm.Labels = append(fm.Labels, label)
			}
		}
	}

	rows, cols := len(fm.Labels), len(problems)
	if rows == 0 || cols == 0 {
		return fm, nil
	}

	fm.data = mat.NewDense(rows, cols, nil)
	for j, p := range problems {
		for _, label := range p.Labels(field) {
			fm.data.Set(fm.index[label], j, 1)
		}
	}
	return fm, nil
}

// Dims returns (labels, problems).
func (m *FeatureMatrix) Dims() (r, c int) {
	return len(m.Labels), len(m.ProblemIDs)
}

// At returns the entry for label row i and problem column j.
func (m *FeatureMatrix) At(i, j int) float64 {
	r, c := m.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		panic(fmt.Sprintf("features: index (%d, %d) out of range for %dx%d matrix", i, j, r, c))
	}
	return m.data.At(i, j)
}

// LabelIndex returns the row of label, or -1.
func (m *FeatureMatrix) LabelIndex(label string) int {
	if i, ok := m.index[label]; ok {
		return i
	}
	return -1
}

// Column returns problem j's indicator vector.
func (m *FeatureMatrix) Column(j int) []float64 {
	r, _ := m.Dims()
	if m.data == nil {
		return make([]float64, r)
	}
	return mat.Col(nil, j, m.data)
}
