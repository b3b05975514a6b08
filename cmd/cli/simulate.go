package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gocfa/adapters/excel"
	"gocfa/internal/errors"
	"gocfa/internal/testkit"
)

func newSimulateCmd() *cobra.Command {
	var respondents int
	var correlation, missingRate float64

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a seeded synthetic response file",
		Long: `Draw respondents from a two-factor model over the configured item
groups and write them as CSV (stdout or --output) or, for an .xlsx
output path, as a workbook. Equal seeds give equal files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			gc := testkit.DefaultSurveyConfig()
			gc.Seed = s.cfg.Analysis.Seed
			gc.Respondents = respondents
			gc.Items = s.cfg.Items.Count
			gc.ItemPrefix = s.cfg.Items.Prefix
			gc.Correlation = correlation
			gc.MissingRate = missingRate
			gc.FactorOf = make([]int, gc.Items)
			for _, p := range s.cfg.Items.Positive {
				gc.FactorOf[p-1] = 1
			}

			table, err := testkit.NewSurveyGenerator(gc).Table()
			if err != nil {
				return err
			}
			if path := s.cfg.Output.Path; strings.EqualFold(filepath.Ext(path), ".xlsx") {
				if err := excel.WriteWorkbook(path, table); err != nil {
					return errors.IO(path, err)
				}
				return nil
			}

			out, closeOut, err := s.output(cmd)
			if err != nil {
				return err
			}
			defer closeOut()
			return testkit.WriteCSV(out, table)
		},
	}
	cmd.Flags().IntVarP(&respondents, "respondents", "n", 500, "number of respondents")
	cmd.Flags().Float64Var(&correlation, "correlation", 0.5, "correlation between the two item factors")
	cmd.Flags().Float64Var(&missingRate, "missing-rate", 0, "share of item cells left missing")
	return cmd
}
