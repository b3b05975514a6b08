package model

import "fmt"

// Items returns prefix1..prefixN.
func Items(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

// Select picks items by 1-based position.
func Select(prefix string, positions ...int) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = fmt.Sprintf("%s%d", prefix, p)
	}
	return out
}

// SingleFactor loads every item on one factor. withCovariances frees every
// pairwise residual covariance, which leaves the model with negative
// degrees of freedom for any realistic item count.
func SingleFactor(name, factor string, items []string, withCovariances bool) Specification {
	spec := Specification{
		Name:    name,
		Factors: []Factor{{Name: factor, Indicators: append([]string(nil), items...)}},
	}
	if withCovariances {
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				spec.Covariances = append(spec.Covariances, Covariance{Left: items[i], Right: items[j]})
			}
		}
	}
	return spec
}

// TwoFactor partitions items into two orthogonal factors with no
// cross-loadings.
func TwoFactor(name, a, b string, itemsA, itemsB []string) Specification {
	return Specification{
		Name: name,
		Factors: []Factor{
			{Name: a, Indicators: append([]string(nil), itemsA...)},
			{Name: b, Indicators: append([]string(nil), itemsB...)},
		},
		Orthogonal: true,
	}
}

// SecondOrder adds a general factor g over the two first-order factors.
func SecondOrder(name, g, a, b string, itemsA, itemsB []string) Specification {
	return Specification{
		Name: name,
		Factors: []Factor{
			{Name: a, Indicators: append([]string(nil), itemsA...)},
			{Name: b, Indicators: append([]string(nil), itemsB...)},
			{Name: g, Of: []string{a, b}},
		},
	}
}
