package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gocfa/domain/fit"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Format selects an output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name in any case; yml is an alias of yaml.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatCSV, FormatJSON, FormatYAML, FormatXLSX:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16858E"))
)

// Formatter renders comparison tables.
type Formatter struct{}

// NewFormatter creates a new table formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format renders tables as text, csv, json or yaml. xlsx is binary and
// goes through WriteWorkbook.
func (f *Formatter) Format(tables []*Table, format Format) (string, error) {
	switch format {
	case FormatText:
		return f.formatText(tables), nil
	case FormatCSV:
		return f.formatCSV(tables)
	case FormatJSON:
		return f.formatJSON(tables)
	case FormatYAML:
		return f.formatYAML(tables)
	case FormatXLSX:
		return "", fmt.Errorf("xlsx output needs a file path")
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// Write renders tables to w, or to outputPath for xlsx.
func (f *Formatter) Write(w io.Writer, tables []*Table, format Format, outputPath string) error {
	if format == FormatXLSX {
		if outputPath == "" {
			return fmt.Errorf("xlsx output needs a file path")
		}
		return WriteWorkbook(outputPath, tables)
	}
	out, err := f.Format(tables, format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (f *Formatter) formatText(tables []*Table) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		if t.Title != "" {
			b.WriteString(titleStyle.Render(t.Title))
			b.WriteString("\n")
		}
		b.WriteString(renderGrid(append([]string{"statistic"}, t.Labels...), t.rows()))
		b.WriteString("\n")
	}
	return b.String()
}

// renderGrid draws a bordered table with right-aligned numeric columns.
func renderGrid(headers []string, rows [][]string) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return cellStyle
			}
			return cellStyle.Align(lipgloss.Right)
		})
	return tbl.String()
}

// rows returns display strings, four decimals or NA.
func (t *Table) rows() [][]string {
	out := make([][]string, len(t.Statistics))
	for s, name := range t.Statistics {
		row := []string{name}
		for _, v := range t.Values[s] {
			row = append(row, fit.Format(v))
		}
		out[s] = row
	}
	return out
}

func (f *Formatter) formatCSV(tables []*Table) (string, error) {
	var builder strings.Builder
	writer := csv.NewWriter(&builder)
	if err := writer.Write([]string{"table", "statistic", "label", "value"}); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, t := range tables {
		for s, name := range t.Statistics {
			for j, label := range t.Labels {
				if err := writer.Write([]string{t.Title, name, label, csvValue(t.Values[s][j])}); err != nil {
					return "", fmt.Errorf("failed to write CSV row: %w", err)
				}
			}
		}
	}
	writer.Flush()
	return builder.String(), writer.Error()
}

func csvValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// tableDoc is the json/yaml shape of a Table. Missing values are null.
type tableDoc struct {
	Title  string   `json:"title" yaml:"title"`
	Labels []string `json:"labels" yaml:"labels"`
	Rows   []rowDoc `json:"rows" yaml:"rows"`
}

type rowDoc struct {
	Statistic string     `json:"statistic" yaml:"statistic"`
	Values    []*float64 `json:"values" yaml:"values"`
}

func (t *Table) doc() tableDoc {
	d := tableDoc{Title: t.Title, Labels: t.Labels}
	for s, name := range t.Statistics {
		r := rowDoc{Statistic: name, Values: make([]*float64, len(t.Labels))}
		for j, v := range t.Values[s] {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				v := v
				r.Values[j] = &v
			}
		}
		d.Rows = append(d.Rows, r)
	}
	return d
}

func docs(tables []*Table) []tableDoc {
	out := make([]tableDoc, len(tables))
	for i, t := range tables {
		out[i] = t.doc()
	}
	return out
}

func (f *Formatter) formatJSON(tables []*Table) (string, error) {
	jsonBytes, err := json.MarshalIndent(docs(tables), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes) + "\n", nil
}

func (f *Formatter) formatYAML(tables []*Table) (string, error) {
	yamlBytes, err := yaml.Marshal(docs(tables))
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(yamlBytes), nil
}
