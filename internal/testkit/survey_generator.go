package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"

	"gocfa/domain/dataset"

	"gonum.org/v1/gonum/stat/distuv"
)

// SurveyGeneratorConfig configures the synthetic questionnaire generator.
type SurveyGeneratorConfig struct {
	Respondents int       `json:"respondents"`
	Items       int       `json:"items"`
	ItemPrefix  string    `json:"item_prefix"`
	Loadings    []float64 `json:"loadings"`    // one per item; nil uses DefaultLoadings
	FactorOf    []int     `json:"factor_of"`   // factor index per item; nil means one factor
	Correlation float64   `json:"correlation"` // between factors 0 and 1
	NoiseSD     float64   `json:"noise_sd"`
	Intercept   float64   `json:"intercept"`
	MissingRate float64   `json:"missing_rate"` // per item cell
	AgeMin      int       `json:"age_min"`
	AgeMax      int       `json:"age_max"`
	FemaleShare float64   `json:"female_share"`
	InvalidSex  float64   `json:"invalid_sex"` // share of sex codes outside 1/2
	Seed        uint64    `json:"seed"`
}

// DefaultSurveyConfig returns a 50-respondent, 14-item single-factor design.
func DefaultSurveyConfig() SurveyGeneratorConfig {
	return SurveyGeneratorConfig{
		Respondents: 50,
		Items:       14,
		ItemPrefix:  "item",
		NoiseSD:     0.4,
		Intercept:   3,
		AgeMin:      18,
		AgeMax:      70,
		FemaleShare: 0.5,
		Seed:        42,
	}
}

// DefaultLoadings returns loadings between 0.6 and 1.2 with the first
// item at 1.
func DefaultLoadings(items int) []float64 {
	out := make([]float64, items)
	for i := range out {
		out[i] = 0.6 + 0.6*float64(i%7)/6
	}
	if items > 0 {
		out[0] = 1
	}
	return out
}

// SurveyGenerator draws respondents from a factor model.
type SurveyGenerator struct {
	config SurveyGeneratorConfig
	rng    *rand.Rand
	normal distuv.Normal
}

// NewSurveyGenerator seeds a generator. Equal configs give equal data.
func NewSurveyGenerator(config SurveyGeneratorConfig) *SurveyGenerator {
	if config.Loadings == nil {
		config.Loadings = DefaultLoadings(config.Items)
	}
	if config.ItemPrefix == "" {
		config.ItemPrefix = "item"
	}
	rng := rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
	return &SurveyGenerator{
		config: config,
		rng:    rng,
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: rng},
	}
}

// ItemNames returns the generated item column names.
func (g *SurveyGenerator) ItemNames() []string {
	names := make([]string, g.config.Items)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", g.config.ItemPrefix, i+1)
	}
	return names
}

// Matrix draws item responses only, respondents×items.
func (g *SurveyGenerator) Matrix() [][]float64 {
	c := g.config
	rows := make([][]float64, c.Respondents)
	rho := math.Max(-1, math.Min(1, c.Correlation))
	for r := range rows {
		f0 := g.normal.Rand()
		f1 := rho*f0 + math.Sqrt(1-rho*rho)*g.normal.Rand()
		row := make([]float64, c.Items)
		for i := range row {
			eta := f0
			if c.FactorOf != nil && c.FactorOf[i] == 1 {
				eta = f1
			}
			row[i] = c.Intercept + c.Loadings[i]*eta + c.NoiseSD*g.normal.Rand()
			if c.MissingRate > 0 && g.rng.Float64() < c.MissingRate {
				row[i] = math.NaN()
			}
		}
		rows[r] = row
	}
	return rows
}

// Table draws a full response table: items, age and raw sex codes.
func (g *SurveyGenerator) Table() (*dataset.ResponseTable, error) {
	c := g.config
	items := g.Matrix()
	names := g.ItemNames()

	cols := make([]dataset.Column, 0, c.Items+2)
	for i, name := range names {
		vals := make([]float64, c.Respondents)
		for r := range items {
			vals[r] = items[r][i]
		}
		cols = append(cols, dataset.Column{Name: name, Values: vals})
	}

	age := make([]float64, c.Respondents)
	sex := make([]float64, c.Respondents)
	span := c.AgeMax - c.AgeMin + 1
	for r := range age {
		if span > 0 {
			age[r] = float64(c.AgeMin + g.rng.IntN(span))
		} else {
			age[r] = math.NaN()
		}
		switch u := g.rng.Float64(); {
		case u < c.InvalidSex:
			sex[r] = 9
		case u < c.InvalidSex+(1-c.InvalidSex)*c.FemaleShare:
			sex[r] = 2
		default:
			sex[r] = 1
		}
	}
	cols = append(cols,
		dataset.Column{Name: "age", Values: age},
		dataset.Column{Name: "sex", Values: sex},
	)
	return dataset.NewResponseTable(fmt.Sprintf("synthetic(seed=%d)", c.Seed), cols)
}

// WriteCSV writes a table with NA for missing numeric cells.
func WriteCSV(w io.Writer, t *dataset.ResponseTable) error {
	cw := csv.NewWriter(w)
	cols := t.Columns()
	if err := cw.Write(cols); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for r := 0; r < t.NumRows(); r++ {
		for j, name := range cols {
			if label, ok := t.Label(name, r); ok {
				record[j] = label
				continue
			}
			v := t.Value(name, r)
			if math.IsNaN(v) {
				record[j] = "NA"
			} else {
				record[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
