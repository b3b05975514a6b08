package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gocfa/app"
	"gocfa/domain/core"
	"gocfa/domain/fit"
	"gocfa/domain/model"
	"gocfa/internal/errors"
	"gocfa/internal/report"
	"gocfa/internal/sem"
)

// addModelFlags registers --variant, --model and --cohort.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("variant", "one_factor", "planned model variant")
	cmd.Flags().String("model", "", "model syntax file; overrides --variant")
	cmd.Flags().String("cohort", app.CohortFull, "cohort to fit on")
}

// fitSpec fits spec on the --cohort subset of the input.
func fitSpec(ctx context.Context, cmd *cobra.Command, s *session, spec model.Specification) (*sem.Fitted, error) {
	table, err := s.readTable()
	if err != nil {
		return nil, err
	}
	svc, err := s.service(nil)
	if err != nil {
		return nil, err
	}
	cohorts, err := svc.Prepare(table)
	if err != nil {
		return nil, err
	}
	name, _ := cmd.Flags().GetString("cohort")
	c, ok := cohorts[name]
	if !ok {
		return nil, errors.NotFound("cohort " + name)
	}
	res, err := sem.NewFitter(s.fitterOptions()).Fit(ctx, spec, c)
	return res, core.NewAnalysisError(spec.Name, name, err)
}

func newFitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit one model on one cohort and print its parameter table",
		Long: `Fit a single model and print parameter estimates followed by the
requested fit statistics.

Example: gocfa fit -i survey.csv --model bifactor.lav --cohort female`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			if s.format == report.FormatXLSX {
				return errors.InvalidInput("fit prints text, csv, json or yaml")
			}
			spec, err := s.resolveSpec(cmd)
			if err != nil {
				return err
			}
			res, err := fitSpec(cmd.Context(), cmd, s, spec)
			if err != nil {
				return err
			}

			out, closeOut, err := s.output(cmd)
			if err != nil {
				return err
			}
			defer closeOut()

			f := report.NewFormatter()
			if err := f.WriteParameters(out, res, s.format); err != nil {
				return err
			}
			measures, err := res.Measures(s.statistics())
			if err != nil {
				return core.NewAnalysisError(spec.Name, res.Cohort, err)
			}
			t, err := report.Compare("fit", []string{spec.Name}, []*fit.Report{measures})
			if err != nil {
				return err
			}
			if s.format == report.FormatText {
				fmt.Fprintln(out)
			}
			return f.Write(out, []*report.Table{t}, s.format, "")
		},
	}
	addModelFlags(cmd)
	return cmd
}
