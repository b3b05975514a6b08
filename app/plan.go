package app

import (
	"fmt"
	"strconv"
	"strings"

	"gocfa/domain/core"
	"gocfa/domain/dataset"
	"gocfa/domain/model"
	"gocfa/internal/cohort"
	"gocfa/internal/config"
)

// CohortFull names the cohort holding every row.
const CohortFull = "full"

// Variant is one model specification and the cohorts it is fitted on.
type Variant struct {
	Name    string
	Spec    model.Specification
	Cohorts []string
}

// CohortDef names a row subset of the projected table.
type CohortDef struct {
	Name      string
	Predicate dataset.Predicate
}

// Column is one column of a comparison table.
type Column struct {
	Label   string
	Variant string
	Cohort  string
}

// Comparison lays fitted branches side by side.
type Comparison struct {
	Title   string
	Columns []Column
}

// Plan is the full set of branches a run evaluates.
type Plan struct {
	Recode      dataset.RecodeRule
	Items       []string
	Columns     []string
	Variants    []Variant
	Cohorts     []CohortDef
	Comparisons []Comparison
}

// Branch identifies one (variant, cohort) fit.
type Branch struct {
	Variant string
	Cohort  string
}

// Branches lists every fit in plan order: variants first, then each
// variant's cohorts.
func (p Plan) Branches() []Branch {
	var out []Branch
	for _, v := range p.Variants {
		for _, c := range v.Cohorts {
			out = append(out, Branch{Variant: v.Name, Cohort: c})
		}
	}
	return out
}

// Variant looks up a variant by name.
func (p Plan) Variant(name string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Validate checks that every reference in the plan resolves.
func (p Plan) Validate() error {
	cohorts := make(map[string]bool, len(p.Cohorts))
	for _, c := range p.Cohorts {
		if cohorts[c.Name] {
			return core.NewSpecError("plan", fmt.Sprintf("duplicate cohort %q", c.Name))
		}
		cohorts[c.Name] = true
	}
	variants := make(map[string]map[string]bool, len(p.Variants))
	for _, v := range p.Variants {
		if _, dup := variants[v.Name]; dup {
			return core.NewSpecError("plan", fmt.Sprintf("duplicate variant %q", v.Name))
		}
		variants[v.Name] = make(map[string]bool)
		for _, c := range v.Cohorts {
			if !cohorts[c] {
				return core.NewSpecError("plan", fmt.Sprintf("variant %q uses unknown cohort %q", v.Name, c))
			}
			variants[v.Name][c] = true
		}
	}
	for _, cmp := range p.Comparisons {
		for _, col := range cmp.Columns {
			if !variants[col.Variant][col.Cohort] {
				return core.NewSpecError("plan", fmt.Sprintf("comparison %q references branch %s/%s which is not planned", cmp.Title, col.Variant, col.Cohort))
			}
		}
	}
	return nil
}

// Hash fingerprints the plan's model syntax, cohorts and comparisons.
func (p Plan) Hash() core.Hash {
	var b strings.Builder
	fmt.Fprintf(&b, "recode %s>%s\ncolumns %s\n", p.Recode.Source, p.Recode.Target, strings.Join(p.Columns, ","))
	for _, v := range p.Variants {
		fmt.Fprintf(&b, "variant %s on %s\n%s\n", v.Name, strings.Join(v.Cohorts, ","), v.Spec.Syntax())
	}
	for _, c := range p.Cohorts {
		fmt.Fprintf(&b, "cohort %s\n", c.Name)
	}
	for _, cmp := range p.Comparisons {
		fmt.Fprintf(&b, "compare %s:", cmp.Title)
		for _, col := range cmp.Columns {
			fmt.Fprintf(&b, " %s=%s/%s", col.Label, col.Variant, col.Cohort)
		}
		b.WriteByte('\n')
	}
	return core.NewHash([]byte(b.String()))
}

// DefaultPlan reproduces the questionnaire analysis: four model variants on
// the full item set and the reduced two-factor model across sex and age
// cohorts.
func DefaultPlan(cfg *config.Config) Plan {
	ic := cfg.Items
	items := model.Items(ic.Prefix, ic.Count)
	neg := model.Select(ic.Prefix, ic.Negative...)
	pos := model.Select(ic.Prefix, ic.Positive...)
	rneg := model.Select(ic.Prefix, ic.ReducedNegative...)
	rpos := model.Select(ic.Prefix, ic.ReducedPositive...)

	cc := cfg.Cohort
	threshold := strconv.FormatFloat(cc.AgeThreshold, 'f', -1, 64)
	young := "age_le_" + threshold
	old := "age_gt_" + threshold

	columns := append(append([]string(nil), items...), cc.AgeColumn, cc.SexLabel)
	full := []string{CohortFull}
	sex := cohort.DefaultSexRule(cc.SexColumn, cc.SexLabel)

	return Plan{
		Recode:  sex,
		Items:   items,
		Columns: columns,
		Variants: []Variant{
			{Name: "one_factor", Spec: model.SingleFactor("one_factor", "F", items, false), Cohorts: full},
			{Name: "one_factor_cov", Spec: model.SingleFactor("one_factor_cov", "F", items, true), Cohorts: full},
			{Name: "bifactor", Spec: model.TwoFactor("bifactor", "Neg", "Pos", neg, pos), Cohorts: full},
			{Name: "second_order", Spec: model.SecondOrder("second_order", "G", "Neg", "Pos", neg, pos), Cohorts: full},
			{
				Name:    "bifactor_reduced",
				Spec:    model.TwoFactor("bifactor_reduced", "Neg", "Pos", rneg, rpos),
				Cohorts: []string{cohort.Male, cohort.Female, young, old},
			},
		},
		Cohorts: []CohortDef{
			{Name: CohortFull, Predicate: cohort.Full()},
			{Name: cohort.Male, Predicate: cohort.ByLabel(sex, cohort.Male)},
			{Name: cohort.Female, Predicate: cohort.ByLabel(sex, cohort.Female)},
			{Name: young, Predicate: cohort.AgeAtMost(cc.AgeColumn, cc.AgeThreshold)},
			{Name: old, Predicate: cohort.AgeAbove(cc.AgeColumn, cc.AgeThreshold)},
		},
		Comparisons: []Comparison{
			{
				Title: "variants",
				Columns: []Column{
					{Label: "one_factor", Variant: "one_factor", Cohort: CohortFull},
					{Label: "one_factor_cov", Variant: "one_factor_cov", Cohort: CohortFull},
					{Label: "bifactor", Variant: "bifactor", Cohort: CohortFull},
					{Label: "second_order", Variant: "second_order", Cohort: CohortFull},
				},
			},
			{
				Title: "sex",
				Columns: []Column{
					{Label: cohort.Male, Variant: "bifactor_reduced", Cohort: cohort.Male},
					{Label: cohort.Female, Variant: "bifactor_reduced", Cohort: cohort.Female},
				},
			},
			{
				Title: "age",
				Columns: []Column{
					{Label: young, Variant: "bifactor_reduced", Cohort: young},
					{Label: old, Variant: "bifactor_reduced", Cohort: old},
				},
			},
		},
	}
}
