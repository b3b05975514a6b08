package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gocfa/internal/config"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gocfa",
		Short: "Confirmatory factor analysis across model variants and cohorts",
		Long: `gocfa fits confirmatory factor models to questionnaire responses with
full-information maximum likelihood and compares fit indices across model
variants (single factor, two factor, second order) and respondent cohorts
(sex, age threshold).

Configuration is read from defaults, an optional config file (--config),
GOCFA_* environment variables and flags, in increasing precedence.`,
		SilenceUsage: true,
	}

	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml or json)")
	pf.StringP("input", "i", d.Input.Path, "response file (.csv or .xlsx)")
	pf.String("sheet", d.Input.Sheet, "worksheet to read from an .xlsx input")
	pf.String("item-prefix", d.Items.Prefix, "item column prefix")
	pf.Int("items", d.Items.Count, "number of items")
	pf.String("age-column", d.Cohort.AgeColumn, "age column")
	pf.String("sex-column", d.Cohort.SexColumn, "raw sex code column")
	pf.Float64("age-threshold", d.Cohort.AgeThreshold, "age cut between the two age cohorts (lower cohort is <=)")
	pf.StringP("estimator", "e", d.Analysis.Estimator, "estimator: ML or MLR")
	pf.String("statistics", d.Analysis.Statistics, "comma-separated fit statistics (default cfi,chisq.scaled,pvalue.scaled,df.scaled,rmsea.scaled,srmr,ecvi)")
	pf.Uint64("seed", d.Analysis.Seed, "seed recorded in the run manifest and used by simulate")
	pf.IntP("workers", "w", d.Analysis.Workers, "branches fitted concurrently")
	pf.StringP("format", "f", d.Output.Format, "output format: text, csv, json, yaml or xlsx")
	pf.StringP("output", "o", d.Output.Path, "output file (stdout when empty; required for xlsx)")
	pf.String("log-level", d.Log.Level, "ERROR, WARN, INFO, DEBUG or TRACE")

	rootCmd.AddCommand(
		newRunCmd(),
		newFitCmd(),
		newDescribeCmd(),
		newDiagramCmd(),
		newSyntaxCmd(),
		newSimulateCmd(),
	)
	return rootCmd
}

func main() {
	// A missing .env is fine; the environment may be set elsewhere.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
