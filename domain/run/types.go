package run

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"gocfa/domain/core"
)

// RunFingerprint ensures deterministic replay: two runs with the same
// fingerprint read the same rows with the same plan and seed.
type RunFingerprint struct {
	InputHash   core.Hash `json:"input_hash"`
	PlanHash    core.Hash `json:"plan_hash"`
	CohortsHash core.Hash `json:"cohorts_hash"`
	Seed        uint64    `json:"seed"`
	Estimator   string    `json:"estimator"`
	CodeVersion string    `json:"code_version"`
	Fingerprint core.Hash `json:"fingerprint"`
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(inputHash, planHash core.Hash, cohorts map[string]core.CohortHash,
	seed uint64, estimator, codeVersion string) RunFingerprint {

	cohortsHash := hashCohorts(cohorts)
	data := fmt.Sprintf("input:%s|plan:%s|cohorts:%s|seed:%d|estimator:%s|code:%s",
		inputHash, planHash, cohortsHash, seed, estimator, codeVersion)

	return RunFingerprint{
		InputHash:   inputHash,
		PlanHash:    planHash,
		CohortsHash: cohortsHash,
		Seed:        seed,
		Estimator:   estimator,
		CodeVersion: codeVersion,
		Fingerprint: core.Hash(fmt.Sprintf("%x", sha256.Sum256([]byte(data)))),
	}
}

func hashCohorts(cohorts map[string]core.CohortHash) core.Hash {
	names := make([]string, 0, len(cohorts))
	for name := range cohorts {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%s;", name, cohorts[name])
	}
	return core.NewHash([]byte(b.String()))
}
