package testkit

import (
	"os"
	"path/filepath"
	"testing"

	"gocfa/domain/dataset"
)

// TestKit bundles a seeded generator with fixture helpers.
type TestKit struct {
	Config SurveyGeneratorConfig
}

// NewTestKit creates a kit with the default design and the given seed.
func NewTestKit(seed uint64) *TestKit {
	cfg := DefaultSurveyConfig()
	cfg.Seed = seed
	return &TestKit{Config: cfg}
}

// WithRespondents returns a copy of the kit drawing n respondents.
func (k *TestKit) WithRespondents(n int) *TestKit {
	cfg := k.Config
	cfg.Respondents = n
	return &TestKit{Config: cfg}
}

// Table draws a fresh response table, failing the test on error.
func (k *TestKit) Table(t testing.TB) *dataset.ResponseTable {
	t.Helper()
	table, err := NewSurveyGenerator(k.Config).Table()
	if err != nil {
		t.Fatalf("generate table: %v", err)
	}
	return table
}

// CSVFile writes a generated table to a temporary CSV and returns its path.
func (k *TestKit) CSVFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "responses.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	if err := WriteCSV(f, k.Table(t)); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}
