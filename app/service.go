// Package app runs an analysis plan: it recodes and projects the response
// table, fits every (variant, cohort) branch and assembles comparison
// tables and a run manifest.
package app

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"gocfa/domain/core"
	"gocfa/domain/dataset"
	"gocfa/domain/fit"
	"gocfa/domain/run"
	"gocfa/internal"
	"gocfa/internal/cohort"
	apperrors "gocfa/internal/errors"
	"gocfa/internal/report"
	"gocfa/internal/sem"
)

// Options configures a Service.
type Options struct {
	Fitter     sem.Options
	Statistics []fit.Statistic
	Workers    int
	Seed       uint64
	Logger     *internal.Logger
	// OnBranch, when set, is called once per finished branch. It may be
	// called from several goroutines.
	OnBranch func(BranchResult)
}

// BranchResult is the outcome of one (variant, cohort) fit. Exactly one of
// Report and Err is set.
type BranchResult struct {
	Variant string
	Cohort  string
	N       int
	Fitted  *sem.Fitted
	Report  *fit.Report
	Err     error
	Elapsed time.Duration
}

// RunResult holds every branch in plan order, the comparison tables and
// the manifest.
type RunResult struct {
	Branches []BranchResult
	Tables   []*report.Table
	Manifest *run.Manifest
}

// Branch finds the result of one branch.
func (r *RunResult) Branch(variant, cohortName string) (BranchResult, bool) {
	for _, b := range r.Branches {
		if b.Variant == variant && b.Cohort == cohortName {
			return b, true
		}
	}
	return BranchResult{}, false
}

// Service evaluates a Plan.
type Service struct {
	plan    Plan
	opts    Options
	fitter  *sem.Fitter
	logger  *internal.Logger
	workers int
}

// NewService validates plan and prepares a fitter.
func NewService(plan Plan, opts Options) (*Service, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Statistics) == 0 {
		opts.Statistics = fit.DefaultRequest()
	}
	if opts.Logger == nil {
		opts.Logger = internal.NewDefaultLogger()
	}
	if opts.Fitter.Logger == nil {
		opts.Fitter.Logger = opts.Logger
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Service{
		plan:    plan,
		opts:    opts,
		fitter:  sem.NewFitter(opts.Fitter),
		logger:  opts.Logger,
		workers: workers,
	}, nil
}

// Plan returns the plan the service runs.
func (s *Service) Plan() Plan {
	return s.plan
}

// Prepare recodes and projects the table and builds every planned cohort.
// Failures here are data load errors and end the run.
func (s *Service) Prepare(table *dataset.ResponseTable) (map[string]*dataset.Cohort, error) {
	recoded, err := cohort.Recode(table, s.plan.Recode)
	if err != nil {
		return nil, core.NewDataLoadError(table.Source, err)
	}
	base, err := cohort.Project(recoded, CohortFull, s.plan.Columns)
	if err != nil {
		return nil, err
	}
	cohorts := make(map[string]*dataset.Cohort, len(s.plan.Cohorts))
	for _, def := range s.plan.Cohorts {
		cohorts[def.Name] = base.Where(def.Name, def.Predicate)
	}
	return cohorts, nil
}

// Run fits every branch of the plan. Branch failures are recorded in
// BranchResult.Err and never stop sibling branches; only a data load
// failure or a cancelled context is returned as an error.
func (s *Service) Run(ctx context.Context, table *dataset.ResponseTable) (*RunResult, error) {
	manifest := run.NewManifest(core.NewRunID(), table.Source, table.NumRows(), s.opts.Seed, string(s.fitter.Estimator()))

	cohorts, err := s.Prepare(table)
	if err != nil {
		return nil, err
	}
	for _, def := range s.plan.Cohorts {
		c := cohorts[def.Name]
		manifest.Cohorts[def.Name] = c.Hash()
		s.logger.Info("cohort %s: %d rows", def.Name, c.Size())
	}

	branches := s.plan.Branches()
	results := make([]BranchResult, len(branches))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, b := range branches {
		variant, _ := s.plan.Variant(b.Variant)
		c := cohorts[b.Cohort]
		g.Go(func() error {
			results[i] = s.runBranch(ctx, variant, c)
			if s.opts.OnBranch != nil {
				s.opts.OnBranch(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &RunResult{Branches: results, Manifest: manifest}
	for _, r := range results {
		rec := run.BranchRecord{
			Variant:   r.Variant,
			Cohort:    r.Cohort,
			N:         r.N,
			ElapsedMS: r.Elapsed.Milliseconds(),
		}
		if r.Fitted != nil {
			rec.Converged = r.Fitted.Converged
			rec.Iterations = r.Fitted.Iterations
		}
		if r.Err != nil {
			rec.ErrorKind = string(core.KindOf(r.Err))
			rec.Error = r.Err.Error()
		}
		manifest.Branches = append(manifest.Branches, rec)
	}
	manifest.Finish(hashTable(table), s.plan.Hash())

	if err := ctx.Err(); err != nil {
		return out, err
	}

	for _, cmp := range s.plan.Comparisons {
		t, err := s.compare(cmp, out)
		if err != nil {
			return out, err
		}
		if t != nil {
			out.Tables = append(out.Tables, t)
		}
	}
	s.logger.Info("run %s: %d branches, %d failed", manifest.RunID, len(results), manifest.Failed())
	return out, nil
}

func (s *Service) runBranch(ctx context.Context, v Variant, c *dataset.Cohort) (res BranchResult) {
	started := time.Now()
	res = BranchResult{Variant: v.Name, Cohort: c.Name, N: c.Size()}
	defer func() {
		if p := recover(); p != nil {
			res.Err = core.NewAnalysisError(v.Name, c.Name, apperrors.InternalError(fmt.Sprintf("panic: %v", p)))
		}
		res.Elapsed = time.Since(started)
		if res.Err != nil {
			s.logger.Warn("%s/%s failed: %v", v.Name, c.Name, res.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = core.NewAnalysisError(v.Name, c.Name, err)
		return res
	}
	s.logger.Debug("%s/%s: fitting %d rows", v.Name, c.Name, c.Size())

	fitted, err := s.fitter.Fit(ctx, v.Spec, c)
	if err != nil {
		res.Err = core.NewAnalysisError(v.Name, c.Name, err)
		return res
	}
	res.Fitted = fitted
	rep, err := fitted.Measures(s.opts.Statistics)
	if err != nil {
		res.Err = core.NewAnalysisError(v.Name, c.Name, err)
		return res
	}
	res.Report = rep
	return res
}

// compare builds one table from the successful branches of cmp. It returns
// nil when no branch succeeded.
func (s *Service) compare(cmp Comparison, r *RunResult) (*report.Table, error) {
	var labels []string
	var reports []*fit.Report
	for _, col := range cmp.Columns {
		b, ok := r.Branch(col.Variant, col.Cohort)
		if !ok || b.Err != nil {
			s.logger.Debug("comparison %s: skipping %s", cmp.Title, col.Label)
			continue
		}
		labels = append(labels, col.Label)
		reports = append(reports, b.Report)
	}
	if len(reports) == 0 {
		s.logger.Warn("comparison %s: no successful branches", cmp.Title)
		return nil, nil
	}
	return report.Compare(cmp.Title, labels, reports)
}

// hashTable fingerprints the table contents.
func hashTable(t *dataset.ResponseTable) core.Hash {
	var data []byte
	var buf [8]byte
	for _, name := range t.Columns() {
		col, _ := t.Column(name)
		data = append(data, name...)
		data = append(data, 0)
		for _, v := range col.Values {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			data = append(data, buf[:]...)
		}
		for _, l := range col.Labels {
			data = append(data, l...)
			data = append(data, 0)
		}
	}
	return core.NewHash(data)
}
