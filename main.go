package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"gocfa/adapters/excel"
	"gocfa/app"
	"gocfa/domain/fit"
	"gocfa/domain/model"
	"gocfa/internal"
	"gocfa/internal/config"
	"gocfa/internal/errors"
	"gocfa/internal/report"
	"gocfa/internal/sem"
)

// main runs the default plan on EXCEL_FILE (or input.path from the file
// named by GOCFA_CONFIG) and prints the comparison tables. The cmd/cli
// binary exposes the individual steps.
func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(os.Getenv("GOCFA_CONFIG"), nil)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	level, _ := internal.ParseLogLevel(cfg.Log.Level)
	logger := internal.NewLogger(level)

	if err := run(cfg, logger); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *internal.Logger) error {
	if cfg.Input.Path == "" {
		return errors.ConfigInvalid("EXCEL_FILE or input.path is required")
	}
	ec := excel.DefaultExcelConfig(cfg.Input.Path)
	if cfg.Input.Sheet != "" {
		ec.Sheet = cfg.Input.Sheet
	}
	ec.NumericColumns = append(model.Items(cfg.Items.Prefix, cfg.Items.Count), cfg.Cohort.AgeColumn, cfg.Cohort.SexColumn)
	table, err := excel.NewDataReaderWithConfig(ec).WithLogger(logger).ReadTable()
	if err != nil {
		return err
	}

	est, err := fit.ParseEstimator(cfg.Analysis.Estimator)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	opts := sem.DefaultOptions()
	opts.Estimator = est
	svc, err := app.NewService(app.DefaultPlan(cfg), app.Options{
		Fitter:     opts,
		Statistics: fit.ParseStatistics(cfg.Analysis.Statistics),
		Workers:    cfg.Analysis.Workers,
		Seed:       cfg.Analysis.Seed,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := svc.Run(ctx, table)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	logger.Info("run %s finished: %d of %d branches failed", res.Manifest.RunID, res.Manifest.Failed(), len(res.Branches))
	out := os.Stdout
	if cfg.Output.Path != "" && format != report.FormatXLSX {
		f, err := os.Create(cfg.Output.Path)
		if err != nil {
			return errors.IO(cfg.Output.Path, err)
		}
		defer f.Close()
		out = f
	}
	return report.NewFormatter().Write(out, res.Tables, format, cfg.Output.Path)
}
