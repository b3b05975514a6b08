// Package report assembles fit reports into comparison tables and renders
// them, along with parameter tables and path diagrams.
package report

import (
	"errors"
	"fmt"
	"math"

	"gocfa/domain/fit"
)

// Table is a comparison grid: one row per statistic, one column per label.
type Table struct {
	Title      string
	Statistics []string
	Labels     []string
	Values     [][]float64 // [statistic][label]
}

var errNoReports = errors.New("compare: no reports")

// Compare lays reports side by side. Rows follow the first report's order
// and columns follow the argument order; every report must carry the same
// statistics.
func Compare(title string, labels []string, reports []*fit.Report) (*Table, error) {
	if len(reports) == 0 {
		return nil, errNoReports
	}
	if len(labels) != len(reports) {
		return nil, fmt.Errorf("compare: %d labels for %d reports", len(labels), len(reports))
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if seen[l] {
			return nil, fmt.Errorf("compare: duplicate label %q", l)
		}
		seen[l] = true
	}

	first := reports[0]
	t := &Table{
		Title:  title,
		Labels: append([]string(nil), labels...),
	}
	for _, name := range first.Names {
		t.Statistics = append(t.Statistics, string(name))
	}
	for i, r := range reports {
		if r.Len() != first.Len() {
			return nil, fmt.Errorf("compare: %q has %d statistics, %q has %d", labels[i], r.Len(), labels[0], first.Len())
		}
		for _, name := range first.Names {
			if _, ok := r.Get(name); !ok {
				return nil, fmt.Errorf("compare: %q lacks %s", labels[i], name)
			}
		}
	}

	t.Values = make([][]float64, len(first.Names))
	for s, name := range first.Names {
		row := make([]float64, len(reports))
		for j, r := range reports {
			row[j], _ = r.Get(name)
		}
		t.Values[s] = row
	}
	return t, nil
}

// Value returns the cell for a statistic and label, NaN when absent.
func (t *Table) Value(statistic, label string) float64 {
	for s, name := range t.Statistics {
		if name != statistic {
			continue
		}
		for j, l := range t.Labels {
			if l == label {
				return t.Values[s][j]
			}
		}
	}
	return math.NaN()
}
