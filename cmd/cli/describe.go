package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gocfa/internal/errors"
	"gocfa/internal/profiling"
	"gocfa/internal/report"
)

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print item descriptives for every planned cohort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			table, err := s.readTable()
			if err != nil {
				return err
			}
			svc, err := s.service(nil)
			if err != nil {
				return err
			}
			summaries, err := svc.Describe(table)
			if err != nil {
				return err
			}

			profiles := make([]*profiling.CohortProfile, len(summaries))
			for i, sum := range summaries {
				profiles[i] = sum.Profile
				if s.format == report.FormatText && len(sum.Labels) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s:", sum.Profile.Cohort)
					for _, lc := range sum.Labels {
						fmt.Fprintf(cmd.ErrOrStderr(), " %s=%d", lc.Label, lc.Count)
					}
					fmt.Fprintln(cmd.ErrOrStderr())
				}
			}

			out, closeOut, err := s.output(cmd)
			if err != nil {
				return err
			}
			defer closeOut()
			return report.NewFormatter().WriteProfiles(out, profiles, s.format)
		},
	}
}

func newDiagramCmd() *cobra.Command {
	var noFit bool
	cmd := &cobra.Command{
		Use:   "diagram",
		Short: "Emit a Graphviz path diagram for one model",
		Long: `Emit a DOT path diagram. Unless --no-fit is given the model is fitted
first and edges carry standardized estimates.

Example: gocfa diagram -i survey.csv --variant second_order | dot -Tsvg > model.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			spec, err := s.resolveSpec(cmd)
			if err != nil {
				return err
			}
			if noFit {
				_, err = fmt.Fprint(cmd.OutOrStdout(), report.Diagram(spec, nil))
				return err
			}
			res, err := fitSpec(cmd.Context(), cmd, s, spec)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), report.Diagram(spec, res))
			return err
		},
	}
	addModelFlags(cmd)
	cmd.Flags().BoolVar(&noFit, "no-fit", false, "draw the structure without estimates")
	return cmd
}

func newSyntaxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "syntax [variant...]",
		Short: "Print the model syntax of planned variants",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				for _, v := range s.plan.Variants {
					names = append(names, v.Name)
				}
			}
			for i, name := range names {
				v, ok := s.plan.Variant(name)
				if !ok {
					return errors.NotFound("variant " + name)
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s (cohorts: %v)\n%s", v.Name, v.Cohorts, v.Spec.Syntax())
			}
			return nil
		},
	}
}
