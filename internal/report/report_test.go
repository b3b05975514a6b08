package report

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"gocfa/domain/fit"
	"gocfa/domain/model"
	"gocfa/internal"
	"gocfa/internal/profiling"
	"gocfa/internal/sem"
	"gocfa/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

func report(pairs ...any) *fit.Report {
	r := fit.NewReport()
	for i := 0; i < len(pairs); i += 2 {
		r.Set(fit.Statistic(pairs[i].(string)), pairs[i+1].(float64))
	}
	return r
}

func TestCompare_ShapeAndOrder(t *testing.T) {
	male := report("cfi", 0.95, "srmr", 0.04)
	female := report("cfi", 0.80, "srmr", 0.09)

	tbl, err := Compare("by sex", []string{"male", "female"}, []*fit.Report{male, female})
	require.NoError(t, err)

	assert.Equal(t, []string{"cfi", "srmr"}, tbl.Statistics)
	assert.Equal(t, []string{"male", "female"}, tbl.Labels)
	assert.Equal(t, [][]float64{{0.95, 0.80}, {0.04, 0.09}}, tbl.Values)
	assert.Equal(t, 0.95, tbl.Value("cfi", "male"))
	assert.Equal(t, 0.80, tbl.Value("cfi", "female"))
	assert.True(t, math.IsNaN(tbl.Value("rmsea", "male")))
}

func TestCompare_Errors(t *testing.T) {
	a := report("cfi", 0.9, "srmr", 0.05)
	b := report("cfi", 0.9)
	c := report("cfi", 0.9, "tli", 0.8)

	_, err := Compare("x", nil, nil)
	assert.Error(t, err)
	_, err = Compare("x", []string{"a"}, []*fit.Report{a, b})
	assert.Error(t, err)
	_, err = Compare("x", []string{"a", "b"}, []*fit.Report{a, b})
	assert.Error(t, err)
	_, err = Compare("x", []string{"a", "c"}, []*fit.Report{a, c})
	assert.Error(t, err)
	_, err = Compare("x", []string{"a", "a"}, []*fit.Report{a, a})
	assert.Error(t, err)
}

func sampleTables(t *testing.T) []*Table {
	tbl, err := Compare("variants", []string{"one_factor", "bifactor"}, []*fit.Report{
		report("cfi", 0.912345678, "rmsea", math.NaN()),
		report("cfi", 0.95, "rmsea", 0.061),
	})
	require.NoError(t, err)
	return []*Table{tbl}
}

func TestFormatter_Text(t *testing.T) {
	out, err := NewFormatter().Format(sampleTables(t), FormatText)
	require.NoError(t, err)
	assert.Contains(t, out, "variants")
	assert.Contains(t, out, "0.9123")
	assert.Contains(t, out, "NA")
	assert.NotContains(t, out, "0.912345678")
}

func TestFormatter_CSV(t *testing.T) {
	out, err := NewFormatter().Format(sampleTables(t), FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "table,statistic,label,value", lines[0])
	assert.Equal(t, "variants,cfi,one_factor,0.912345678", lines[1])
	assert.Equal(t, "variants,rmsea,one_factor,NA", lines[3])
}

func TestFormatter_JSONAndYAML(t *testing.T) {
	f := NewFormatter()

	out, err := f.Format(sampleTables(t), FormatJSON)
	require.NoError(t, err)
	var fromJSON []tableDoc
	require.NoError(t, json.Unmarshal([]byte(out), &fromJSON))
	require.Len(t, fromJSON, 1)
	assert.Equal(t, "rmsea", fromJSON[0].Rows[1].Statistic)
	assert.Nil(t, fromJSON[0].Rows[1].Values[0])
	assert.InDelta(t, 0.912345678, *fromJSON[0].Rows[0].Values[0], 1e-12)

	out, err = f.Format(sampleTables(t), FormatYAML)
	require.NoError(t, err)
	var fromYAML []tableDoc
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, fromJSON, fromYAML)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "yml": FormatYAML, "xlsx": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("html")
	assert.Error(t, err)
}

func TestWriteWorkbook(t *testing.T) {
	tables := sampleTables(t)
	second := *tables[0]
	second.Title = "variants"
	tables = append(tables, &second)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, NewFormatter().Write(nil, tables, FormatXLSX, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"variants", "variants_2"}, f.GetSheetList())

	rows, err := f.GetRows("variants")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"statistic", "one_factor", "bifactor"}, rows[0])
	assert.Equal(t, "NA", rows[2][1])
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a_b", sheetName("a/b", 0, used))
	assert.Equal(t, "table2", sheetName("  ", 1, used))
	long := strings.Repeat("x", 40)
	assert.Len(t, sheetName(long, 2, used), maxSheetName)
	assert.Len(t, sheetName(long, 3, used), maxSheetName)
}

func fitted(t *testing.T) *sem.Fitted {
	t.Helper()
	g := testkit.NewSurveyGenerator(testkit.DefaultSurveyConfig())
	vars := g.ItemNames()
	spec := model.TwoFactor("bifactor", "Neg", "Pos", vars[:3], vars[3:6])
	opts := sem.DefaultOptions()
	opts.Logger = internal.NewDiscardLogger()
	res, err := sem.NewFitter(opts).FitMatrix(context.Background(), spec, vars, g.Matrix(), "full")
	require.NoError(t, err)
	return res
}

func TestDiagram(t *testing.T) {
	spec := model.SecondOrder("second_order", "G", "A", "B", []string{"x1", "x2"}, []string{"x3", "x4"})
	dot := Diagram(spec, nil)
	assert.True(t, strings.HasPrefix(dot, `digraph "second_order" {`))
	assert.Contains(t, dot, `"G" -> "A";`)
	assert.Contains(t, dot, `"A" -> "x1";`)
	assert.Contains(t, dot, `"x4" [shape=box];`)
	assert.Contains(t, dot, `"G" [shape=ellipse`)

	res := fitted(t)
	dot = Diagram(res.Spec, res)
	assert.Contains(t, dot, `"Neg" -> "item1" [label=`)
	assert.Contains(t, dot, `"Neg" -> "Pos" [dir=both, style=dashed`)
}

func TestWriteParameters(t *testing.T) {
	res := fitted(t)
	f := NewFormatter()

	var text bytes.Buffer
	require.NoError(t, f.WriteParameters(&text, res, FormatText))
	assert.Contains(t, text.String(), "bifactor on full")
	assert.Contains(t, text.String(), "=~")

	var csvOut bytes.Buffer
	require.NoError(t, f.WriteParameters(&csvOut, res, FormatCSV))
	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	assert.Len(t, lines, len(res.Estimates())+1)

	var js bytes.Buffer
	require.NoError(t, f.WriteParameters(&js, res, FormatJSON))
	var doc fitDoc
	require.NoError(t, json.Unmarshal(js.Bytes(), &doc))
	assert.Equal(t, "bifactor", doc.Model)
	assert.Len(t, doc.Parameters, len(res.Estimates()))

	assert.Error(t, f.WriteParameters(&js, res, FormatXLSX))
}

func TestWriteProfiles(t *testing.T) {
	profiles := []*profiling.CohortProfile{
		{
			Cohort: "full",
			Rows:   3,
			Items: []profiling.ItemProfile{
				{Name: "item1", N: 3, Mean: 2, StdDev: 1, Min: 1, Max: 3, Skewness: math.NaN()},
			},
		},
		{Cohort: "age_gt_40"},
	}
	f := NewFormatter()

	var text bytes.Buffer
	require.NoError(t, f.WriteProfiles(&text, profiles, FormatText))
	assert.Contains(t, text.String(), "full (3 rows)")
	assert.Contains(t, text.String(), "age_gt_40 (0 rows)")

	var csvOut bytes.Buffer
	require.NoError(t, f.WriteProfiles(&csvOut, profiles, FormatCSV))
	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "full,item1,3,0,2,1,1,3,NA,0,0", lines[1])

	var js bytes.Buffer
	require.NoError(t, f.WriteProfiles(&js, profiles, FormatJSON))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	items := decoded[0]["items"].([]any)
	assert.Nil(t, items[0].(map[string]any)["skew"])

	assert.Error(t, f.WriteProfiles(&js, profiles, FormatXLSX))
}
