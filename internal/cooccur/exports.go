package cooccur

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/problemsift/internal/problem"
)

// ErrUnknownExport is returned for export names other than data, process
// or both.
var ErrUnknownExport = errors.New("unknown export")

// Export describes one standard field-pair export.
type Export struct {
	Name     string
	Primary  problem.Field
	Other    problem.Field
	Template string
	Output   string
}

// Exports lists the standard exports.
var Exports = []Export{
	{
		Name:     "data",
		Primary:  problem.FieldElements,
		Other:    problem.FieldData,
		Template: "template_elements_data.csv",
		Output:   "ELEMENTS_DATA.csv",
	},
	{
		Name:     "process",
		Primary:  problem.FieldElements,
		Other:    problem.FieldProcesses,
		Template: "template_elements_process.csv",
		Output:   "ELEMENTS_PROCESS.csv",
	},
}

// LookupExport resolves a single export by name.
func LookupExport(name string) (Export, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range Exports {
		if e.Name == name {
			return e, nil
		}
	}
	return Export{}, fmt.Errorf("%w: %q (want data, process or both)", ErrUnknownExport, name)
}

// ParseExports resolves "data", "process" or "both".
func ParseExports(name string) ([]Export, error) {
	if strings.EqualFold(strings.TrimSpace(name), "both") {
		return append([]Export(nil), Exports...), nil
	}
	e, err := LookupExport(name)
	if err != nil {
		return nil, err
	}
	return []Export{e}, nil
}
