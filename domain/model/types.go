// Package model describes confirmatory factor structures as plain values:
// latent factors with their indicators, residual covariances, and
// second-order factors that load on other factors.
package model

import (
	"fmt"
	"strings"

	"gocfa/domain/core"
)

// Factor is a latent variable. A first-order factor lists observed
// Indicators; a second-order factor lists the first-order factors it loads
// on in Of. The first entry of either list is the scaling reference.
type Factor struct {
	Name       string   `json:"name" yaml:"name" mapstructure:"name"`
	Indicators []string `json:"indicators,omitempty" yaml:"indicators,omitempty" mapstructure:"indicators"`
	Of         []string `json:"of,omitempty" yaml:"of,omitempty" mapstructure:"of"`
}

// IsSecondOrder reports whether the factor loads on other factors.
func (f Factor) IsSecondOrder() bool {
	return len(f.Of) > 0
}

// Covariance frees the residual covariance between two variables.
type Covariance struct {
	Left  string `json:"left" yaml:"left" mapstructure:"left"`
	Right string `json:"right" yaml:"right" mapstructure:"right"`
}

// Specification is a complete factor structure.
type Specification struct {
	Name        string       `json:"name" yaml:"name" mapstructure:"name"`
	Factors     []Factor     `json:"factors" yaml:"factors" mapstructure:"factors"`
	Covariances []Covariance `json:"covariances,omitempty" yaml:"covariances,omitempty" mapstructure:"covariances"`
	// Orthogonal fixes the covariances among exogenous factors to zero.
	Orthogonal bool `json:"orthogonal,omitempty" yaml:"orthogonal,omitempty" mapstructure:"orthogonal"`
	// Zero fixes individual exogenous factor covariances to zero.
	Zero []Covariance `json:"zero,omitempty" yaml:"zero,omitempty" mapstructure:"zero"`
}

func samePair(c Covariance, a, b string) bool {
	return (c.Left == a && c.Right == b) || (c.Left == b && c.Right == a)
}

// FixedZero reports whether the covariance between factors a and b is fixed
// at zero. An explicit entry in Covariances frees it.
func (s Specification) FixedZero(a, b string) bool {
	if a == b {
		return false
	}
	for _, c := range s.Covariances {
		if samePair(c, a, b) {
			return false
		}
	}
	for _, z := range s.Zero {
		if samePair(z, a, b) {
			return true
		}
	}
	if !s.Orthogonal {
		return false
	}
	for _, n := range []string{a, b} {
		if _, ok := s.Factor(n); !ok {
			return false
		}
		if _, ok := s.Parent(n); ok {
			return false
		}
	}
	return true
}

// Observed returns the observed indicators in declaration order.
func (s Specification) Observed() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range s.Factors {
		for _, ind := range f.Indicators {
			if !seen[ind] {
				seen[ind] = true
				out = append(out, ind)
			}
		}
	}
	return out
}

// Latents returns factor names in declaration order.
func (s Specification) Latents() []string {
	out := make([]string, len(s.Factors))
	for i, f := range s.Factors {
		out[i] = f.Name
	}
	return out
}

// Factor looks up a factor by name.
func (s Specification) Factor(name string) (Factor, bool) {
	for _, f := range s.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// Parent returns the second-order factor that loads on name, if any.
func (s Specification) Parent(name string) (string, bool) {
	for _, f := range s.Factors {
		for _, child := range f.Of {
			if child == name {
				return f.Name, true
			}
		}
	}
	return "", false
}

// Validate checks the structure on its own and, when columns is non-nil,
// that every observed indicator exists in the data.
func (s Specification) Validate(columns []string) error {
	name := s.Name
	if name == "" {
		name = "<unnamed>"
	}
	if len(s.Factors) == 0 {
		return core.NewSpecError(name, "no factors declared")
	}

	factors := make(map[string]bool, len(s.Factors))
	for _, f := range s.Factors {
		if strings.TrimSpace(f.Name) == "" {
			return core.NewSpecError(name, "factor with empty name")
		}
		if factors[f.Name] {
			return core.NewSpecError(name, fmt.Sprintf("duplicate factor %q", f.Name))
		}
		factors[f.Name] = true
	}

	loadsOn := make(map[string]string)
	parentOf := make(map[string]string)
	for _, f := range s.Factors {
		switch {
		case len(f.Indicators) == 0 && len(f.Of) == 0:
			return core.NewSpecError(name, fmt.Sprintf("factor %q has no indicators", f.Name))
		case len(f.Indicators) > 0 && len(f.Of) > 0:
			return core.NewSpecError(name, fmt.Sprintf("factor %q mixes observed and latent indicators", f.Name))
		}
		for _, ind := range f.Indicators {
			if factors[ind] {
				return core.NewSpecError(name, fmt.Sprintf("factor %q lists factor %q as an observed indicator", f.Name, ind))
			}
			if prev, ok := loadsOn[ind]; ok {
				return core.NewSpecError(name, fmt.Sprintf("indicator %q loads on both %q and %q", ind, prev, f.Name))
			}
			loadsOn[ind] = f.Name
		}
		for _, child := range f.Of {
			cf, ok := s.Factor(child)
			if !ok {
				return core.NewSpecError(name, fmt.Sprintf("second-order factor %q references unknown factor %q", f.Name, child))
			}
			if cf.IsSecondOrder() {
				return core.NewSpecError(name, fmt.Sprintf("factor %q: only two levels of factors are supported", f.Name))
			}
			if prev, ok := parentOf[child]; ok {
				return core.NewSpecError(name, fmt.Sprintf("factor %q loads on both %q and %q", child, prev, f.Name))
			}
			parentOf[child] = f.Name
		}
	}

	if columns != nil {
		present := make(map[string]bool, len(columns))
		for _, c := range columns {
			present[c] = true
		}
		for _, ind := range s.Observed() {
			if !present[ind] {
				return core.NewSpecError(name, fmt.Sprintf("indicator %q is not in the data", ind))
			}
		}
	}

	seen := make(map[[2]string]bool)
	for _, c := range s.Covariances {
		if c.Left == c.Right {
			return core.NewSpecError(name, fmt.Sprintf("covariance %s ~~ %s is a variance", c.Left, c.Right))
		}
		for _, v := range []string{c.Left, c.Right} {
			if _, ok := loadsOn[v]; !ok && !factors[v] {
				return core.NewSpecError(name, fmt.Sprintf("covariance references unknown variable %q", v))
			}
		}
		if factors[c.Left] != factors[c.Right] {
			return core.NewSpecError(name, fmt.Sprintf("covariance %s ~~ %s mixes a factor and an observed variable", c.Left, c.Right))
		}
		key := [2]string{c.Left, c.Right}
		if c.Right < c.Left {
			key = [2]string{c.Right, c.Left}
		}
		if seen[key] {
			return core.NewSpecError(name, fmt.Sprintf("duplicate covariance %s ~~ %s", c.Left, c.Right))
		}
		seen[key] = true
	}

	zero := make(map[[2]string]bool)
	for _, z := range s.Zero {
		if z.Left == z.Right || !factors[z.Left] || !factors[z.Right] {
			return core.NewSpecError(name, fmt.Sprintf("0* is only supported between two factors (%s ~~ %s)", z.Left, z.Right))
		}
		for _, v := range []string{z.Left, z.Right} {
			if _, ok := parentOf[v]; ok {
				return core.NewSpecError(name, fmt.Sprintf("factor %q has a second-order parent; its covariances are not free", v))
			}
		}
		key := [2]string{z.Left, z.Right}
		if z.Right < z.Left {
			key = [2]string{z.Right, z.Left}
		}
		if zero[key] || seen[key] {
			return core.NewSpecError(name, fmt.Sprintf("covariance %s ~~ %s declared twice", z.Left, z.Right))
		}
		zero[key] = true
	}
	return nil
}
