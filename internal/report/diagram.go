package report

import (
	"fmt"
	"strconv"
	"strings"

	"gocfa/domain/model"
	"gocfa/internal/sem"
)

// Diagram renders a Graphviz path diagram: latent factors as ellipses,
// observed items as boxes, loadings as solid arrows and covariances as
// dashed two-headed edges. With a fit, edges carry standardized estimates.
func Diagram(spec model.Specification, res *sem.Fitted) string {
	var builder strings.Builder
	q := strconv.Quote

	builder.WriteString(fmt.Sprintf("digraph %s {\n", q(spec.Name)))
	builder.WriteString("  rankdir=TB;\n")
	builder.WriteString("  node [fontname=\"Helvetica\"];\n")
	builder.WriteString("  edge [color=gray30];\n\n")

	for _, f := range spec.Factors {
		builder.WriteString(fmt.Sprintf("  %s [shape=ellipse, style=filled, fillcolor=lightblue];\n", q(f.Name)))
	}
	builder.WriteString("\n  { rank=sink;\n")
	for _, v := range spec.Observed() {
		builder.WriteString(fmt.Sprintf("    %s [shape=box];\n", q(v)))
	}
	builder.WriteString("  }\n\n")

	// Fixed loadings are drawn bold.
	label := func(lhs, op, rhs string) string {
		if res == nil {
			return ""
		}
		e, ok := res.Estimate(lhs, op, rhs)
		if !ok {
			return ""
		}
		attr := fmt.Sprintf("label=%s", q(strconv.FormatFloat(e.StdAll, 'f', 2, 64)))
		if !e.Free && op == "=~" {
			attr += ", style=bold"
		}
		return attr
	}
	edge := func(from, to, attrs string) {
		if attrs == "" {
			builder.WriteString(fmt.Sprintf("  %s -> %s;\n", q(from), q(to)))
			return
		}
		builder.WriteString(fmt.Sprintf("  %s -> %s [%s];\n", q(from), q(to), attrs))
	}

	for _, f := range spec.Factors {
		for _, child := range f.Of {
			edge(f.Name, child, label(f.Name, "=~", child))
		}
		for _, ind := range f.Indicators {
			edge(f.Name, ind, label(f.Name, "=~", ind))
		}
	}

	covs := spec.Covariances
	if res != nil {
		covs = nil
		for _, e := range res.Estimates() {
			if e.Op == "~~" && e.LHS != e.RHS && (e.Free || spec.FixedZero(e.LHS, e.RHS)) {
				covs = append(covs, model.Covariance{Left: e.LHS, Right: e.RHS})
			}
		}
	}
	if len(covs) > 0 {
		builder.WriteString("\n")
	}
	for _, c := range covs {
		attrs := "dir=both, style=dashed, constraint=false"
		if l := label(c.Left, "~~", c.Right); l != "" {
			attrs += ", " + l
		}
		edge(c.Left, c.Right, attrs)
	}

	builder.WriteString("}\n")
	return builder.String()
}
