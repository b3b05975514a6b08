package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"gocfa/domain/fit"
	"gocfa/internal/sem"

	"gopkg.in/yaml.v3"
)

var parameterHeaders = []string{"lhs", "op", "rhs", "est", "se", "z", "pvalue", "std.all"}

// parameterDoc is the json/yaml shape of one estimate; NaN becomes null.
type parameterDoc struct {
	LHS    string   `json:"lhs" yaml:"lhs"`
	Op     string   `json:"op" yaml:"op"`
	RHS    string   `json:"rhs,omitempty" yaml:"rhs,omitempty"`
	Free   bool     `json:"free" yaml:"free"`
	Est    *float64 `json:"est" yaml:"est"`
	SE     *float64 `json:"se" yaml:"se"`
	Z      *float64 `json:"z" yaml:"z"`
	P      *float64 `json:"pvalue" yaml:"pvalue"`
	StdAll *float64 `json:"std_all" yaml:"std_all"`
}

type fitDoc struct {
	Model      string         `json:"model" yaml:"model"`
	Cohort     string         `json:"cohort" yaml:"cohort"`
	Estimator  string         `json:"estimator" yaml:"estimator"`
	N          int            `json:"n" yaml:"n"`
	Iterations int            `json:"iterations" yaml:"iterations"`
	Parameters []parameterDoc `json:"parameters" yaml:"parameters"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// WriteParameters renders the parameter table of one fit.
func (f *Formatter) WriteParameters(w io.Writer, res *sem.Fitted, format Format) error {
	switch format {
	case FormatText:
		_, err := io.WriteString(w, f.parametersText(res))
		return err
	case FormatCSV:
		return parametersCSV(w, res)
	case FormatJSON, FormatYAML:
		doc := fitDoc{
			Model:      res.Spec.Name,
			Cohort:     res.Cohort,
			Estimator:  string(res.Estimator),
			N:          res.N,
			Iterations: res.Iterations,
		}
		for _, e := range res.Estimates() {
			doc.Parameters = append(doc.Parameters, parameterDoc{
				LHS: e.LHS, Op: e.Op, RHS: e.RHS, Free: e.Free,
				Est: finite(e.Value), SE: finite(e.SE), Z: finite(e.Z), P: finite(e.P), StdAll: finite(e.StdAll),
			})
		}
		if format == FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(doc)
	}
	return fmt.Errorf("unsupported output format for parameters: %s", format)
}

func (f *Formatter) parametersText(res *sem.Fitted) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s on %s (%s, N=%d, %d iterations)",
		res.Spec.Name, res.Cohort, res.Estimator, res.N, res.Iterations)))
	b.WriteString("\n")

	rows := make([][]string, 0)
	for _, e := range res.Estimates() {
		se, z, p := fit.Format(e.SE), fit.Format(e.Z), fit.Format(e.P)
		if !e.Free {
			se, z, p = "", "", ""
		}
		rows = append(rows, []string{e.LHS, e.Op, e.RHS, fit.Format(e.Value), se, z, p, fit.Format(e.StdAll)})
	}
	b.WriteString(renderGrid(parameterHeaders, rows))
	b.WriteString("\n")
	return b.String()
}

func parametersCSV(w io.Writer, res *sem.Fitted) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"model", "cohort", "free"}, parameterHeaders...)); err != nil {
		return err
	}
	for _, e := range res.Estimates() {
		free := "false"
		if e.Free {
			free = "true"
		}
		if err := cw.Write([]string{res.Spec.Name, res.Cohort, free, e.LHS, e.Op, e.RHS,
			csvValue(e.Value), csvValue(e.SE), csvValue(e.Z), csvValue(e.P), csvValue(e.StdAll)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
