// Package cohort derives analysis cohorts from a response table: recoding
// a categorical field, projecting the analysis columns and selecting rows.
package cohort

import (
	"fmt"
	"math"
	"sort"

	"gocfa/domain/core"
	"gocfa/domain/dataset"
)

// MissingLabel is the derived category of codes outside a recode mapping.
const MissingLabel = "NA"

// Sex labels produced by DefaultSexRule.
const (
	Male   = "male"
	Female = "female"
)

// DefaultSexRule maps code 1 to male and 2 to female; every other code,
// and a missing code, becomes MissingLabel.
func DefaultSexRule(source, target string) dataset.RecodeRule {
	return dataset.RecodeRule{
		Source:  source,
		Target:  target,
		Mapping: map[float64]string{1: Male, 2: Female},
		Missing: MissingLabel,
	}
}

// Recode returns a new table with rule.Target added as a label column. The
// source column is left untouched.
func Recode(t *dataset.ResponseTable, rule dataset.RecodeRule) (*dataset.ResponseTable, error) {
	if rule.Target == "" || rule.Target == rule.Source {
		return nil, fmt.Errorf("recode %s: target must be a new column", rule.Source)
	}
	codes, err := t.Numeric(rule.Source)
	if err != nil {
		return nil, fmt.Errorf("recode: %w", err)
	}
	labels := make([]string, len(codes))
	for i, code := range codes {
		labels[i] = rule.Lookup(code)
	}
	return t.WithColumn(dataset.Column{Name: rule.Target, Labels: labels})
}

// Project selects the analysis columns and every row. An unknown column is
// a schema problem of the input file.
func Project(t *dataset.ResponseTable, name string, columns []string) (*dataset.Cohort, error) {
	for _, c := range columns {
		if !t.Has(c) {
			return nil, core.NewDataLoadError(t.Source, fmt.Errorf("%w: %q", core.ErrMissingColumn, c))
		}
	}
	rows := make([]int, t.NumRows())
	for i := range rows {
		rows[i] = i
	}
	return &dataset.Cohort{
		Name:    name,
		Table:   t,
		Rows:    rows,
		Columns: append([]string(nil), columns...),
	}, nil
}

// Full selects every row.
func Full() dataset.Predicate {
	return func(*dataset.ResponseTable, int) bool { return true }
}

// ByLabel selects rows whose rule.Target label equals label. Rows carrying
// the rule's missing label never match.
func ByLabel(rule dataset.RecodeRule, label string) dataset.Predicate {
	return func(t *dataset.ResponseTable, row int) bool {
		v, ok := t.Label(rule.Target, row)
		return ok && v != rule.Missing && v == label
	}
}

// AgeAtMost selects rows with a non-missing age ≤ threshold.
func AgeAtMost(column string, threshold float64) dataset.Predicate {
	return func(t *dataset.ResponseTable, row int) bool {
		v := t.Value(column, row)
		return !math.IsNaN(v) && v <= threshold
	}
}

// AgeAbove selects rows with a non-missing age > threshold.
func AgeAbove(column string, threshold float64) dataset.Predicate {
	return func(t *dataset.ResponseTable, row int) bool {
		v := t.Value(column, row)
		return !math.IsNaN(v) && v > threshold
	}
}

// Partition splits c on a numeric column. Rows with a missing value are in
// neither half.
func Partition(c *dataset.Cohort, column string, threshold float64, lowerName, upperName string) (lower, upper *dataset.Cohort) {
	return c.Where(lowerName, AgeAtMost(column, threshold)),
		c.Where(upperName, AgeAbove(column, threshold))
}

// LabelCounts tallies a label column within a cohort, sorted by label.
func LabelCounts(c *dataset.Cohort, column string) []LabelCount {
	counts := make(map[string]int)
	for _, r := range c.Rows {
		v, _ := c.Table.Label(column, r)
		counts[v]++
	}
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// LabelCount is one category and its row count.
type LabelCount struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}
