// Package config assembles run configuration from environment defaults, an
// optional config file, GOCFA_ environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gocfa/internal/errors"
)

// EnvPrefix is the prefix of environment variables read through viper.
const EnvPrefix = "GOCFA"

// Config represents the complete run configuration
type Config struct {
	Input    InputConfig    `mapstructure:"input"`
	Items    ItemConfig     `mapstructure:"items"`
	Cohort   CohortConfig   `mapstructure:"cohort"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
}

// InputConfig locates the response file.
type InputConfig struct {
	Path  string `mapstructure:"path"`
	Sheet string `mapstructure:"sheet"`
}

// ItemConfig names the questionnaire items and the two item groups used by
// the two-factor variants. Positions are 1-based.
type ItemConfig struct {
	Prefix          string `mapstructure:"prefix" validate:"required"`
	Count           int    `mapstructure:"count" validate:"min=2"`
	Negative        []int  `mapstructure:"negative" validate:"min=2,dive,min=1"`
	Positive        []int  `mapstructure:"positive" validate:"min=2,dive,min=1"`
	ReducedNegative []int  `mapstructure:"reduced_negative" validate:"min=2,dive,min=1"`
	ReducedPositive []int  `mapstructure:"reduced_positive" validate:"min=2,dive,min=1"`
}

// CohortConfig holds the recode and subset settings.
type CohortConfig struct {
	AgeColumn    string  `mapstructure:"age_column" validate:"required"`
	SexColumn    string  `mapstructure:"sex_column" validate:"required"`
	SexLabel     string  `mapstructure:"sex_label" validate:"required,nefield=SexColumn"`
	AgeThreshold float64 `mapstructure:"age_threshold" validate:"gt=0"`
}

// AnalysisConfig holds estimation settings.
type AnalysisConfig struct {
	Estimator  string `mapstructure:"estimator" validate:"required,oneof=ML MLR ml mlr"`
	Statistics string `mapstructure:"statistics"`
	Seed       uint64 `mapstructure:"seed"`
	Workers    int    `mapstructure:"workers" validate:"min=1,max=64"`
}

// OutputConfig selects the report format and destination.
type OutputConfig struct {
	Format string `mapstructure:"format" validate:"oneof=text csv json yaml yml xlsx"`
	Path   string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=ERROR WARN INFO DEBUG TRACE error warn info debug trace"`
}

// Default returns the configuration used when nothing else is given. A few
// plain environment variables are honoured here, the same ones earlier
// versions of the tool read.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Path:  getEnvOrDefault("EXCEL_FILE", ""),
			Sheet: getEnvOrDefault("EXCEL_SHEET", ""),
		},
		Items: ItemConfig{
			Prefix:          "item",
			Count:           14,
			Negative:        []int{1, 2, 3, 8, 11, 12, 14},
			Positive:        []int{4, 5, 6, 7, 9, 10, 13},
			ReducedNegative: []int{1, 2, 3},
			ReducedPositive: []int{4, 5, 6},
		},
		Cohort: CohortConfig{
			AgeColumn:    "age",
			SexColumn:    "sex",
			SexLabel:     "sex_label",
			AgeThreshold: getEnvFloatOrDefault("AGE_THRESHOLD", 40),
		},
		Analysis: AnalysisConfig{
			Estimator: getEnvOrDefault("ESTIMATOR", "MLR"),
			Seed:      getEnvUintOrDefault("SEED", 42),
			Workers:   getEnvIntOrDefault("WORKERS", 1),
		},
		Output: OutputConfig{
			Format: "text",
		},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "INFO"),
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"input":         "input.path",
	"sheet":         "input.sheet",
	"item-prefix":   "items.prefix",
	"items":         "items.count",
	"age-column":    "cohort.age_column",
	"sex-column":    "cohort.sex_column",
	"age-threshold": "cohort.age_threshold",
	"estimator":     "analysis.estimator",
	"statistics":    "analysis.statistics",
	"seed":          "analysis.seed",
	"workers":       "analysis.workers",
	"format":        "output.format",
	"output":        "output.path",
	"log-level":     "log.level",
}

// Load layers the config file at path (skipped when empty), GOCFA_*
// environment variables and any changed flags over Default, then validates
// the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(errors.IO(path, err), "failed to read config file %s", path)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "failed to bind flag --%s", name)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to unmarshal config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("input.path", d.Input.Path)
	v.SetDefault("input.sheet", d.Input.Sheet)
	v.SetDefault("items.prefix", d.Items.Prefix)
	v.SetDefault("items.count", d.Items.Count)
	v.SetDefault("items.negative", d.Items.Negative)
	v.SetDefault("items.positive", d.Items.Positive)
	v.SetDefault("items.reduced_negative", d.Items.ReducedNegative)
	v.SetDefault("items.reduced_positive", d.Items.ReducedPositive)
	v.SetDefault("cohort.age_column", d.Cohort.AgeColumn)
	v.SetDefault("cohort.sex_column", d.Cohort.SexColumn)
	v.SetDefault("cohort.sex_label", d.Cohort.SexLabel)
	v.SetDefault("cohort.age_threshold", d.Cohort.AgeThreshold)
	v.SetDefault("analysis.estimator", d.Analysis.Estimator)
	v.SetDefault("analysis.statistics", d.Analysis.Statistics)
	v.SetDefault("analysis.seed", d.Analysis.Seed)
	v.SetDefault("analysis.workers", d.Analysis.Workers)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.path", d.Output.Path)
	v.SetDefault("log.level", d.Log.Level)
}

var validate = validator.New()

// Validate checks struct tags and item positions.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if ok := asValidationErrors(err, &fields); ok {
			msgs := make([]string, 0, len(fields))
			for _, fe := range fields {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return errors.ConfigInvalid(strings.Join(msgs, "; "))
		}
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}

	groups := map[string][]int{
		"items.negative":         c.Items.Negative,
		"items.positive":         c.Items.Positive,
		"items.reduced_negative": c.Items.ReducedNegative,
		"items.reduced_positive": c.Items.ReducedPositive,
	}
	for _, key := range []string{"items.negative", "items.positive", "items.reduced_negative", "items.reduced_positive"} {
		for _, pos := range groups[key] {
			if pos > c.Items.Count {
				return errors.ConfigInvalid(fmt.Sprintf("%s: position %d exceeds item count %d", key, pos, c.Items.Count))
			}
		}
	}
	if overlap(c.Items.Negative, c.Items.Positive) {
		return errors.ConfigInvalid("items.negative and items.positive overlap")
	}
	if overlap(c.Items.ReducedNegative, c.Items.ReducedPositive) {
		return errors.ConfigInvalid("items.reduced_negative and items.reduced_positive overlap")
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fields, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fields
	}
	return ok
}

func overlap(a, b []int) bool {
	seen := make(map[int]bool, len(a))
	for _, x := range a {
		seen[x] = true
	}
	for _, x := range b {
		if seen[x] {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUintOrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
