package model

import (
	"fmt"
	"strings"

	"gocfa/domain/core"
)

// Syntax renders the specification in lavaan model syntax.
func (s Specification) Syntax() string {
	var b strings.Builder
	for _, f := range s.Factors {
		terms := f.Indicators
		if f.IsSecondOrder() {
			terms = f.Of
		}
		fmt.Fprintf(&b, "%s =~ %s\n", f.Name, strings.Join(terms, " + "))
	}

	// Group covariances by left-hand side, keeping first-seen order.
	var lefts []string
	rights := make(map[string][]string)
	for _, c := range s.Covariances {
		if _, ok := rights[c.Left]; !ok {
			lefts = append(lefts, c.Left)
		}
		rights[c.Left] = append(rights[c.Left], c.Right)
	}
	for _, l := range lefts {
		fmt.Fprintf(&b, "%s ~~ %s\n", l, strings.Join(rights[l], " + "))
	}

	if s.Orthogonal {
		exo := s.exogenous()
		for i := 0; i < len(exo); i++ {
			for j := i + 1; j < len(exo); j++ {
				fmt.Fprintf(&b, "%s ~~ 0*%s\n", exo[i], exo[j])
			}
		}
	} else {
		for _, z := range s.Zero {
			fmt.Fprintf(&b, "%s ~~ 0*%s\n", z.Left, z.Right)
		}
	}
	return b.String()
}

func (s Specification) exogenous() []string {
	var out []string
	for _, f := range s.Factors {
		if _, ok := s.Parent(f.Name); !ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// Parse reads lavaan-style model syntax: "f =~ a + b + c" declares a
// factor, "a ~~ b + c" frees residual covariances and "f1 ~~ 0*f2" fixes
// that one factor covariance to zero. When every pair of exogenous factors
// is fixed the model is marked Orthogonal instead. Lines may be
// separated by newlines or semicolons; '#' starts a comment. Variance terms
// ("a ~~ a") are free by default and are accepted without effect.
func Parse(name, text string) (Specification, error) {
	spec := Specification{Name: name}
	index := make(map[string]int)

	type covTerm struct {
		left, right string
		zero        bool
		line        int
	}
	var covs []covTerm

	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ';' })
	for n, raw := range lines {
		line := raw
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.Contains(line, "=~"):
			lhs, rhs, _ := strings.Cut(line, "=~")
			lhs = strings.TrimSpace(lhs)
			terms, err := splitTerms(rhs)
			if err != nil {
				return Specification{}, core.NewSpecError(name, fmt.Sprintf("line %d: %v", n+1, err))
			}
			if !isIdent(lhs) {
				return Specification{}, core.NewSpecError(name, fmt.Sprintf("line %d: bad factor name %q", n+1, lhs))
			}
			for _, t := range terms {
				if strings.Contains(t, "*") {
					return Specification{}, core.NewSpecError(name, fmt.Sprintf("line %d: loading modifiers are not supported (%q)", n+1, t))
				}
			}
			if i, ok := index[lhs]; ok {
				spec.Factors[i].Indicators = append(spec.Factors[i].Indicators, terms...)
			} else {
				index[lhs] = len(spec.Factors)
				spec.Factors = append(spec.Factors, Factor{Name: lhs, Indicators: terms})
			}

		case strings.Contains(line, "~~"):
			lhs, rhs, _ := strings.Cut(line, "~~")
			lhs = strings.TrimSpace(lhs)
			terms, err := splitTerms(rhs)
			if err != nil {
				return Specification{}, core.NewSpecError(name, fmt.Sprintf("line %d: %v", n+1, err))
			}
			for _, t := range terms {
				zero := false
				if mod, v, ok := strings.Cut(t, "*"); ok {
					if strings.TrimSpace(mod) != "0" {
						return Specification{}, core.NewSpecError(name, fmt.Sprintf("line %d: only 0* is supported on covariances (%q)", n+1, t))
					}
					zero = true
					t = strings.TrimSpace(v)
				}
				if t == lhs {
					continue
				}
				covs = append(covs, covTerm{left: lhs, right: t, zero: zero, line: n + 1})
			}

		default:
			return Specification{}, core.NewSpecError(name, fmt.Sprintf("line %d: unsupported statement %q", n+1, line))
		}
	}

	// Indicators that name another factor make this a second-order factor.
	for i, f := range spec.Factors {
		var latent, observed []string
		for _, ind := range f.Indicators {
			if _, ok := index[ind]; ok {
				latent = append(latent, ind)
			} else {
				observed = append(observed, ind)
			}
		}
		if len(latent) > 0 && len(observed) > 0 {
			return Specification{}, core.NewSpecError(name, fmt.Sprintf("factor %q mixes observed and latent indicators", f.Name))
		}
		if len(latent) > 0 {
			spec.Factors[i].Indicators = nil
			spec.Factors[i].Of = latent
		}
	}

	for _, c := range covs {
		_, lf := index[c.left]
		_, rf := index[c.right]
		if c.zero {
			if !lf || !rf {
				return Specification{}, core.NewSpecError(name, fmt.Sprintf("line %d: 0* is only supported between factors", c.line))
			}
			spec.Zero = append(spec.Zero, Covariance{Left: c.left, Right: c.right})
			continue
		}
		spec.Covariances = append(spec.Covariances, Covariance{Left: c.left, Right: c.right})
	}

	if err := spec.Validate(nil); err != nil {
		return Specification{}, err
	}
	if n := len(spec.exogenous()); len(spec.Zero) > 0 && len(spec.Zero) == n*(n-1)/2 {
		spec.Orthogonal = true
		spec.Zero = nil
	}
	return spec, nil
}

func splitTerms(rhs string) ([]string, error) {
	parts := strings.Split(rhs, "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty term in %q", strings.TrimSpace(rhs))
		}
		name := p
		if _, v, ok := strings.Cut(p, "*"); ok {
			name = strings.TrimSpace(v)
		}
		if !isIdent(name) {
			return nil, fmt.Errorf("bad variable name %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
