package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrDataLoad      = errors.New("data load failed")
	ErrMissingColumn = fmt.Errorf("%w: column not found", ErrDataLoad)
	ErrRaggedRow     = fmt.Errorf("%w: inconsistent column count", ErrDataLoad)
	ErrBadCell       = fmt.Errorf("%w: non-numeric value", ErrDataLoad)

	// Estimation errors
	ErrUnidentifiedModel = errors.New("model not identified")
	ErrNegativeDF        = fmt.Errorf("%w: negative degrees of freedom", ErrUnidentifiedModel)
	ErrNotConverged      = fmt.Errorf("%w: optimizer did not converge", ErrUnidentifiedModel)
	ErrSingularInfo      = fmt.Errorf("%w: information matrix is singular", ErrUnidentifiedModel)
	ErrBoundaryVariance  = fmt.Errorf("%w: variance estimate at the zero boundary", ErrUnidentifiedModel)

	// Extraction errors
	ErrUnknownStatistic = errors.New("unknown fit statistic")

	// Specification errors
	ErrInvalidSpec      = errors.New("invalid model specification")
	ErrInsufficientData = errors.New("insufficient data for analysis")
)

// ErrorKind names the failure class of an AnalysisError.
type ErrorKind string

const (
	KindDataLoad          ErrorKind = "DataLoadError"
	KindUnidentifiedModel ErrorKind = "UnidentifiedModelError"
	KindUnknownStatistic  ErrorKind = "UnknownStatisticError"
	KindInvalidSpec       ErrorKind = "InvalidSpecificationError"
	KindOther             ErrorKind = "Error"
)

// AnalysisError attaches the branch (model variant and cohort) to a failure.
type AnalysisError struct {
	Kind    ErrorKind
	Variant string
	Cohort  string
	Err     error
}

func (e *AnalysisError) Error() string {
	switch {
	case e.Variant != "" && e.Cohort != "":
		return fmt.Sprintf("%s [variant=%s cohort=%s]: %v", e.Kind, e.Variant, e.Cohort, e.Err)
	case e.Variant != "":
		return fmt.Sprintf("%s [variant=%s]: %v", e.Kind, e.Variant, e.Err)
	case e.Cohort != "":
		return fmt.Sprintf("%s [cohort=%s]: %v", e.Kind, e.Cohort, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataLoad):
		return KindDataLoad
	case errors.Is(err, ErrUnidentifiedModel):
		return KindUnidentifiedModel
	case errors.Is(err, ErrUnknownStatistic):
		return KindUnknownStatistic
	case errors.Is(err, ErrInvalidSpec):
		return KindInvalidSpec
	}
	return KindOther
}

// NewAnalysisError wraps err with branch context. A nil err stays nil.
func NewAnalysisError(variant, cohort string, err error) error {
	if err == nil {
		return nil
	}
	var existing *AnalysisError
	if errors.As(err, &existing) {
		if existing.Variant == "" {
			existing.Variant = variant
		}
		if existing.Cohort == "" {
			existing.Cohort = cohort
		}
		return existing
	}
	return &AnalysisError{Kind: KindOf(err), Variant: variant, Cohort: cohort, Err: err}
}

// Error constructors with context
func NewDataLoadError(path string, err error) error {
	if errors.Is(err, ErrDataLoad) {
		return fmt.Errorf("%s: %w", path, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrDataLoad, path, err)
}

func NewUnknownStatisticError(name, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrUnknownStatistic, name, reason)
}

func NewSpecError(spec string, reason string) error {
	return fmt.Errorf("%w %s: %s", ErrInvalidSpec, spec, reason)
}

// Error checking helpers
func IsDataLoadError(err error) bool {
	return errors.Is(err, ErrDataLoad)
}

func IsUnidentifiedModelError(err error) bool {
	return errors.Is(err, ErrUnidentifiedModel)
}

func IsUnknownStatisticError(err error) bool {
	return errors.Is(err, ErrUnknownStatistic)
}
