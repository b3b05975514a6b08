package dataset

import (
	"fmt"
	"math"

	"gocfa/domain/core"
)

// Column is one named column of a ResponseTable. Numeric columns use NaN for
// missing values; categorical (derived) columns carry Labels instead.
type Column struct {
	Name   string
	Values []float64
	Labels []string
}

// IsCategorical reports whether the column holds labels.
func (c Column) IsCategorical() bool {
	return c.Labels != nil
}

// Len returns the number of rows.
func (c Column) Len() int {
	if c.Labels != nil {
		return len(c.Labels)
	}
	return len(c.Values)
}

// ResponseTable holds one row per respondent. It is never mutated after
// construction; derived columns produce a new table.
type ResponseTable struct {
	Source  string
	columns []Column
	index   map[string]int
	rows    int
}

// NewResponseTable builds a table from columns of equal length.
func NewResponseTable(source string, columns []Column) (*ResponseTable, error) {
	t := &ResponseTable{
		Source: source,
		index:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", core.ErrDataLoad, c.Name)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", core.ErrRaggedRow, c.Name, c.Len(), t.rows)
		}
		t.index[c.Name] = i
	}
	t.columns = append([]Column(nil), columns...)
	return t, nil
}

// NumRows returns the number of respondents.
func (t *ResponseTable) NumRows() int {
	return t.rows
}

// Columns returns the column names in file order.
func (t *ResponseTable) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the column exists.
func (t *ResponseTable) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column looks up a column by name.
func (t *ResponseTable) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Numeric returns the values of a numeric column.
func (t *ResponseTable) Numeric(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrMissingColumn, name)
	}
	if c.IsCategorical() {
		return nil, fmt.Errorf("%w: column %q is categorical", core.ErrBadCell, name)
	}
	return c.Values, nil
}

// Value returns a numeric cell, NaN when missing or when the column is unknown.
func (t *ResponseTable) Value(name string, row int) float64 {
	c, ok := t.Column(name)
	if !ok || c.IsCategorical() {
		return math.NaN()
	}
	return c.Values[row]
}

// Label returns a categorical cell.
func (t *ResponseTable) Label(name string, row int) (string, bool) {
	c, ok := t.Column(name)
	if !ok || !c.IsCategorical() {
		return "", false
	}
	return c.Labels[row], true
}

// WithColumn returns a new table with col appended, or replacing a column
// of the same name. The receiver is unchanged.
func (t *ResponseTable) WithColumn(col Column) (*ResponseTable, error) {
	cols := make([]Column, 0, len(t.columns)+1)
	replaced := false
	for _, c := range t.columns {
		if c.Name == col.Name {
			cols = append(cols, col)
			replaced = true
			continue
		}
		cols = append(cols, c)
	}
	if !replaced {
		cols = append(cols, col)
	}
	return NewResponseTable(t.Source, cols)
}

// RecodeRule maps raw categorical codes to normalized labels. Codes outside
// Mapping, and missing codes, become the Missing label.
type RecodeRule struct {
	Source  string
	Target  string
	Mapping map[float64]string
	Missing string
}

// Lookup maps a single raw code.
func (r RecodeRule) Lookup(code float64) string {
	if math.IsNaN(code) {
		return r.Missing
	}
	if label, ok := r.Mapping[code]; ok {
		return label
	}
	return r.Missing
}

// Predicate selects rows of a table.
type Predicate func(t *ResponseTable, row int) bool
