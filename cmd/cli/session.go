package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"gocfa/adapters/excel"
	"gocfa/app"
	"gocfa/domain/dataset"
	"gocfa/domain/fit"
	"gocfa/domain/model"
	"gocfa/internal"
	"gocfa/internal/config"
	"gocfa/internal/errors"
	"gocfa/internal/report"
	"gocfa/internal/sem"
)

// session is the per-command state derived from configuration.
type session struct {
	cfg       *config.Config
	logger    *internal.Logger
	format    report.Format
	estimator fit.Estimator
	plan      app.Plan
}

func newSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, _ := internal.ParseLogLevel(cfg.Log.Level)
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	est, err := fit.ParseEstimator(cfg.Analysis.Estimator)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return &session{
		cfg:       cfg,
		logger:    internal.NewWriterLogger(level, cmd.ErrOrStderr()),
		format:    format,
		estimator: est,
		plan:      app.DefaultPlan(cfg),
	}, nil
}

// readTable loads the configured response file. Item, age and sex columns
// must be numeric.
func (s *session) readTable() (*dataset.ResponseTable, error) {
	if s.cfg.Input.Path == "" {
		return nil, errors.InvalidInput("no input file: pass --input or set input.path")
	}
	ec := excel.DefaultExcelConfig(s.cfg.Input.Path)
	if s.cfg.Input.Sheet != "" {
		ec.Sheet = s.cfg.Input.Sheet
	}
	ec.NumericColumns = append(model.Items(s.cfg.Items.Prefix, s.cfg.Items.Count),
		s.cfg.Cohort.AgeColumn, s.cfg.Cohort.SexColumn)
	return excel.NewDataReaderWithConfig(ec).WithLogger(s.logger).ReadTable()
}

func (s *session) fitterOptions() sem.Options {
	opts := sem.DefaultOptions()
	opts.Estimator = s.estimator
	opts.Logger = s.logger
	return opts
}

func (s *session) statistics() []fit.Statistic {
	if stats := fit.ParseStatistics(s.cfg.Analysis.Statistics); len(stats) > 0 {
		return stats
	}
	return fit.DefaultRequest()
}

func (s *session) service(onBranch func(app.BranchResult)) (*app.Service, error) {
	return app.NewService(s.plan, app.Options{
		Fitter:     s.fitterOptions(),
		Statistics: s.statistics(),
		Workers:    s.cfg.Analysis.Workers,
		Seed:       s.cfg.Analysis.Seed,
		Logger:     s.logger,
		OnBranch:   onBranch,
	})
}

// output returns the destination for text formats: the configured file or
// the command's stdout.
func (s *session) output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if s.cfg.Output.Path == "" || s.format == report.FormatXLSX {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(s.cfg.Output.Path)
	if err != nil {
		return nil, nil, errors.IO(s.cfg.Output.Path, err)
	}
	return f, f.Close, nil
}

// resolveSpec picks a model from --model (a syntax file) or --variant.
func (s *session) resolveSpec(cmd *cobra.Command) (model.Specification, error) {
	modelPath, _ := cmd.Flags().GetString("model")
	if modelPath != "" {
		text, err := os.ReadFile(modelPath)
		if err != nil {
			return model.Specification{}, errors.IO(modelPath, err)
		}
		name := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
		return model.Parse(name, string(text))
	}
	name, _ := cmd.Flags().GetString("variant")
	v, ok := s.plan.Variant(name)
	if !ok {
		return model.Specification{}, errors.NotFound("variant " + name)
	}
	return v.Spec, nil
}

// createProgressBar creates a new progress bar with consistent styling
func createProgressBar(description string, max int, writer io.Writer) *progressbar.ProgressBar {
	if writer == nil {
		writer = io.Discard
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionClearOnFinish(),
	)
}
