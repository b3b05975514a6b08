package app

import (
	"gocfa/domain/dataset"
	"gocfa/internal/cohort"
	"gocfa/internal/profiling"
)

// CohortSummary describes one planned cohort before any model is fitted.
type CohortSummary struct {
	Profile *profiling.CohortProfile `json:"profile" yaml:"profile"`
	Labels  []cohort.LabelCount      `json:"labels" yaml:"labels"`
}

// Describe profiles the plan's items in every planned cohort, in plan order.
func (s *Service) Describe(table *dataset.ResponseTable) ([]CohortSummary, error) {
	cohorts, err := s.Prepare(table)
	if err != nil {
		return nil, err
	}
	profiler := profiling.NewDataProfiler()
	out := make([]CohortSummary, 0, len(s.plan.Cohorts))
	for _, def := range s.plan.Cohorts {
		c := cohorts[def.Name]
		if c.Size() == 0 {
			out = append(out, CohortSummary{Profile: &profiling.CohortProfile{Cohort: def.Name}})
			continue
		}
		p, err := profiler.ProfileCohort(c, s.plan.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, CohortSummary{
			Profile: p,
			Labels:  cohort.LabelCounts(c, s.plan.Recode.Target),
		})
	}
	return out, nil
}
