package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gocfa/domain/fit"
	"gocfa/internal/profiling"

	"gopkg.in/yaml.v3"
)

var profileHeaders = []string{"item", "n", "missing", "mean", "sd", "min", "max", "skew", "kurtosis", "normality.p"}

type itemDoc struct {
	Name       string   `json:"name" yaml:"name"`
	N          int      `json:"n" yaml:"n"`
	Missing    int      `json:"missing" yaml:"missing"`
	Mean       *float64 `json:"mean" yaml:"mean"`
	SD         *float64 `json:"sd" yaml:"sd"`
	Min        *float64 `json:"min" yaml:"min"`
	Max        *float64 `json:"max" yaml:"max"`
	Skewness   *float64 `json:"skew" yaml:"skew"`
	Kurtosis   *float64 `json:"kurtosis" yaml:"kurtosis"`
	NormalityP *float64 `json:"normality_p" yaml:"normality_p"`
}

type cohortDoc struct {
	Cohort         string    `json:"cohort" yaml:"cohort"`
	Rows           int       `json:"rows" yaml:"rows"`
	Items          []itemDoc `json:"items" yaml:"items"`
	MardiaKurtosis *float64  `json:"mardia_kurtosis,omitempty" yaml:"mardia_kurtosis,omitempty"`
	MardiaP        *float64  `json:"mardia_p,omitempty" yaml:"mardia_p,omitempty"`
}

// WriteProfiles renders cohort descriptives.
func (f *Formatter) WriteProfiles(w io.Writer, profiles []*profiling.CohortProfile, format Format) error {
	switch format {
	case FormatText:
		var b strings.Builder
		for i, p := range profiles {
			if i > 0 {
				b.WriteString("\n")
			}
			title := fmt.Sprintf("%s (%d rows)", p.Cohort, p.Rows)
			if mv := p.Multivariate; mv != nil {
				title += fmt.Sprintf(", Mardia kurtosis %s (p=%s)", fit.Format(mv.Kurtosis), fit.Format(mv.P))
			}
			b.WriteString(titleStyle.Render(title))
			b.WriteString("\n")
			if len(p.Items) > 0 {
				b.WriteString(renderGrid(profileHeaders, profileRows(p, fit.Format)))
				b.WriteString("\n")
			}
		}
		_, err := io.WriteString(w, b.String())
		return err
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(append([]string{"cohort"}, profileHeaders...)); err != nil {
			return err
		}
		for _, p := range profiles {
			for _, row := range profileRows(p, csvValue) {
				if err := cw.Write(append([]string{p.Cohort}, row...)); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	case FormatJSON, FormatYAML:
		docs := make([]cohortDoc, 0, len(profiles))
		for _, p := range profiles {
			d := cohortDoc{Cohort: p.Cohort, Rows: p.Rows}
			for _, it := range p.Items {
				d.Items = append(d.Items, itemDoc{
					Name: it.Name, N: it.N, Missing: it.Missing,
					Mean: finite(it.Mean), SD: finite(it.StdDev), Min: finite(it.Min), Max: finite(it.Max),
					Skewness: finite(it.Skewness), Kurtosis: finite(it.Kurtosis), NormalityP: finite(it.NormalityP),
				})
			}
			if mv := p.Multivariate; mv != nil {
				d.MardiaKurtosis, d.MardiaP = finite(mv.Kurtosis), finite(mv.P)
			}
			docs = append(docs, d)
		}
		if format == FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(docs)
	}
	return fmt.Errorf("unsupported output format for profiles: %s", format)
}

func profileRows(p *profiling.CohortProfile, num func(float64) string) [][]string {
	rows := make([][]string, 0, len(p.Items))
	for _, it := range p.Items {
		rows = append(rows, []string{
			it.Name, strconv.Itoa(it.N), strconv.Itoa(it.Missing),
			num(it.Mean), num(it.StdDev), num(it.Min), num(it.Max),
			num(it.Skewness), num(it.Kurtosis), num(it.NormalityP),
		})
	}
	return rows
}
