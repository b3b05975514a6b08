package run

import (
	"fmt"

	"gocfa/domain/core"
)

// CodeVersion is stamped into every manifest.
const CodeVersion = "gocfa/1"

// Manifest records what a run read, which plan it evaluated and how it
// ended. It is written alongside the comparison tables.
type Manifest struct {
	RunID       core.RunID                 `json:"run_id" yaml:"run_id"`
	Input       string                     `json:"input" yaml:"input"`
	Rows        int                        `json:"rows" yaml:"rows"`
	Seed        uint64                     `json:"seed" yaml:"seed"`
	Estimator   string                     `json:"estimator" yaml:"estimator"`
	Cohorts     map[string]core.CohortHash `json:"cohorts" yaml:"cohorts"`
	Branches    []BranchRecord             `json:"branches" yaml:"branches"`
	Fingerprint RunFingerprint             `json:"fingerprint" yaml:"fingerprint"`
	StartedAt   core.Timestamp             `json:"started_at" yaml:"started_at"`
	FinishedAt  core.Timestamp             `json:"finished_at" yaml:"finished_at"`
}

// BranchRecord is the manifest line for one (variant, cohort) fit.
type BranchRecord struct {
	Variant    string `json:"variant" yaml:"variant"`
	Cohort     string `json:"cohort" yaml:"cohort"`
	N          int    `json:"n" yaml:"n"`
	Converged  bool   `json:"converged" yaml:"converged"`
	Iterations int    `json:"iterations" yaml:"iterations"`
	ErrorKind  string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// NewManifest starts a manifest for a run over input.
func NewManifest(runID core.RunID, input string, rows int, seed uint64, estimator string) *Manifest {
	return &Manifest{
		RunID:     runID,
		Input:     input,
		Rows:      rows,
		Seed:      seed,
		Estimator: estimator,
		Cohorts:   make(map[string]core.CohortHash),
		StartedAt: core.Now(),
	}
}

// Finish stamps the end time and the fingerprint.
func (m *Manifest) Finish(inputHash, planHash core.Hash) {
	m.FinishedAt = core.Now()
	m.Fingerprint = NewRunFingerprint(inputHash, planHash, m.Cohorts, m.Seed, m.Estimator, CodeVersion)
}

// Failed counts branches that ended in an error.
func (m *Manifest) Failed() int {
	n := 0
	for _, b := range m.Branches {
		if b.Error != "" {
			n++
		}
	}
	return n
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return fmt.Errorf("run manifest: run_id cannot be empty")
	}
	if m.Fingerprint.Fingerprint == "" {
		return fmt.Errorf("run manifest: fingerprint missing, call Finish first")
	}
	return nil
}
