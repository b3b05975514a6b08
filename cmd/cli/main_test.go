package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocfa/domain/core"
	apperrors "gocfa/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "ERROR"))
	err := root.Execute()
	return out.String(), err
}

func TestSyntaxCommand(t *testing.T) {
	out, err := execute(t, "syntax", "one_factor", "bifactor")
	require.NoError(t, err)
	assert.Contains(t, out, "# one_factor")
	assert.Contains(t, out, "F =~ item1 + item2")
	assert.Contains(t, out, "Neg ~~ 0*Pos")

	_, err = execute(t, "syntax", "nope")
	assert.Error(t, err)
}

func TestSimulateThenRun(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "survey.csv")
	_, err := execute(t, "simulate", "-n", "250", "--seed", "7", "-o", data)
	require.NoError(t, err)

	raw, err := os.ReadFile(data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 251)
	assert.True(t, strings.HasPrefix(lines[0], "item1,item2"))

	manifest := filepath.Join(dir, "manifest.json")
	out, err := execute(t, "run", "-i", data, "--seed", "7", "--no-progress", "-f", "csv", "--manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "variants,cfi,one_factor,")
	assert.Contains(t, out, "sex,cfi,male,")
	assert.Contains(t, out, "age,cfi,age_le_40,")
	assert.NotContains(t, out, "one_factor_cov", "failed branches are left out of the tables")

	var m map[string]any
	body, err := os.ReadFile(manifest)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, float64(7), m["seed"])
	assert.Len(t, m["branches"], 8)
}

func TestFitAndDiagramCommands(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "survey.csv")
	_, err := execute(t, "simulate", "-n", "200", "-o", data)
	require.NoError(t, err)

	modelPath := filepath.Join(dir, "two.lav")
	require.NoError(t, os.WriteFile(modelPath, []byte("# two factors\nA =~ item1 + item2 + item3\nB =~ item4 + item5 + item6\n"), 0o644))

	out, err := execute(t, "fit", "-i", data, "--model", modelPath, "-f", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "two,full,false,A,=~,item1,1,")
	assert.Contains(t, out, "fit,cfi,two,")

	out, err = execute(t, "diagram", "--variant", "bifactor", "--no-fit")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `digraph "bifactor" {`))

	_, err = execute(t, "fit", "-i", data, "--cohort", "retired")
	assert.Error(t, err)

	_, err = execute(t, "run", "--no-progress")
	assert.Error(t, err, "an input file is required")
}

func TestFitErrorsNameTheBranch(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "survey.csv")
	_, err := execute(t, "simulate", "-n", "120", "-o", data)
	require.NoError(t, err)

	_, err = execute(t, "fit", "-i", data, "--variant", "one_factor_cov")
	require.Error(t, err)
	var ae *core.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "one_factor_cov", ae.Variant)
	assert.Equal(t, "full", ae.Cohort)
	assert.Equal(t, core.KindUnidentifiedModel, ae.Kind)
	assert.Contains(t, err.Error(), "variant=one_factor_cov")

	_, err = execute(t, "fit", "-i", data, "--cohort", "nobody")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	_, err = execute(t, "fit", "-i", data, "--variant", "nope")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}
