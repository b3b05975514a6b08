package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"gocfa/app"
	"gocfa/internal/errors"
	"gocfa/internal/report"
)

func newRunCmd() *cobra.Command {
	var manifestPath string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit every planned branch and print comparison tables",
		Long: `Fit the default plan: four model variants on the full sample and the
reduced two-factor model on sex and age cohorts. Branch failures are
reported and do not stop the remaining branches.

Example: gocfa run -i survey.xlsx --age-threshold 40 -f xlsx -o fit.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			table, err := s.readTable()
			if err != nil {
				return err
			}

			var onBranch func(app.BranchResult)
			if !noProgress {
				bar := createProgressBar("fitting", len(s.plan.Branches()), cmd.ErrOrStderr())
				onBranch = func(app.BranchResult) { _ = bar.Add(1) }
				defer bar.Finish()
			}
			svc, err := s.service(onBranch)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res, err := svc.Run(ctx, table)
			if err != nil {
				return err
			}

			for _, b := range res.Branches {
				if b.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "branch %s/%s failed: %v\n", b.Variant, b.Cohort, b.Err)
				}
			}

			out, closeOut, err := s.output(cmd)
			if err != nil {
				return err
			}
			if err := report.NewFormatter().Write(out, res.Tables, s.format, s.cfg.Output.Path); err != nil {
				_ = closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return errors.IO(s.cfg.Output.Path, err)
			}

			if manifestPath != "" {
				return writeManifest(manifestPath, res)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "write the run manifest as JSON to this file")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func writeManifest(path string, res *app.RunResult) error {
	data, err := json.MarshalIndent(res.Manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IO(path, err)
	}
	return nil
}
