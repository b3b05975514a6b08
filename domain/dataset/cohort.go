package dataset

import (
	"fmt"
	"math"

	"gocfa/domain/core"
)

// Cohort is a filtered, column-projected view of a ResponseTable. It holds
// row indices only; the underlying table is shared and never modified.
type Cohort struct {
	Name    string
	Table   *ResponseTable
	Rows    []int
	Columns []string
}

// Size returns the number of rows in the cohort.
func (c *Cohort) Size() int {
	return len(c.Rows)
}

// Hash fingerprints row membership and columns.
func (c *Cohort) Hash() core.CohortHash {
	return core.ComputeCohortHash(c.Rows, c.Columns)
}

// Where narrows the cohort with an additional predicate.
func (c *Cohort) Where(name string, pred Predicate) *Cohort {
	rows := make([]int, 0, len(c.Rows))
	for _, r := range c.Rows {
		if pred(c.Table, r) {
			rows = append(rows, r)
		}
	}
	return &Cohort{Name: name, Table: c.Table, Rows: rows, Columns: c.Columns}
}

// Values returns the cohort's values for one numeric column.
func (c *Cohort) Values(column string) ([]float64, error) {
	src, err := c.Table.Numeric(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(c.Rows))
	for i, r := range c.Rows {
		out[i] = src[r]
	}
	return out, nil
}

// Matrix returns a rows×len(columns) matrix of the requested numeric
// columns, NaN for missing.
func (c *Cohort) Matrix(columns []string) ([][]float64, error) {
	src := make([][]float64, len(columns))
	for j, name := range columns {
		vals, err := c.Table.Numeric(name)
		if err != nil {
			return nil, fmt.Errorf("cohort %s: %w", c.Name, err)
		}
		src[j] = vals
	}
	out := make([][]float64, len(c.Rows))
	for i, r := range c.Rows {
		row := make([]float64, len(columns))
		for j := range columns {
			row[j] = src[j][r]
		}
		out[i] = row
	}
	return out, nil
}

// MissingCount counts missing cells of a column within the cohort.
func (c *Cohort) MissingCount(column string) int {
	n := 0
	for _, r := range c.Rows {
		if math.IsNaN(c.Table.Value(column, r)) {
			n++
		}
	}
	return n
}
