package script

import (
	"regexp"
	"strings"
)

// Rule names reported in Fix.
const (
	RuleTranspose    = "transpose"
	RuleColumnVector = "column-vector"
	RuleDotProduct   = "dot-product"
)

// DotProductComment replaces a Matrix(...).dot(...) expression.
const DotProductComment = "# Removed invalid .dot() usage"

var (
	transposePattern  = regexp.MustCompile(`\.T\b`)
	flatMatrixPattern = regexp.MustCompile(`Matrix\(\[([^\[\]]+?)\]\)`)
	dotProductPattern = regexp.MustCompile(`Matrix\(.*?\)\.dot\(.*?\)`)
)

// Fix reports how many times a rule rewrote the source.
type Fix struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// Repaired is the outcome of a repair pass.
type Repaired struct {
	Source string
	Fixes  []Fix
}

type rule struct {
	name    string
	pattern *regexp.Regexp
	replace func(match []string) string
}

// Repairer applies an ordered list of textual rewrites. It never parses the
// source; text that matches no rule passes through unchanged.
type Repairer struct {
	rules []rule
}

// Option configures a Repairer.
type Option func(*Repairer)

// WithDotProductStrip enables replacing Matrix(...).dot(...) expressions with
// a comment. The whole matched expression is dropped.
func WithDotProductStrip(enabled bool) Option {
	return func(r *Repairer) {
		if !enabled {
			return
		}
		r.rules = append(r.rules, rule{
			name:    RuleDotProduct,
			pattern: dotProductPattern,
			replace: func([]string) string { return DotProductComment },
		})
	}
}

// NewRepairer returns a Repairer running the transpose and column-vector
// rules, followed by any rules enabled through opts.
func NewRepairer(opts ...Option) *Repairer {
	r := &Repairer{
		rules: []rule{
			{
				name:    RuleTranspose,
				pattern: transposePattern,
				replace: func([]string) string { return "" },
			},
			{
				name:    RuleColumnVector,
				pattern: flatMatrixPattern,
				replace: columnVector,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Repair runs every rule in order and reports the rules that fired.
func (r *Repairer) Repair(src string) Repaired {
	out := Repaired{Source: src}
	for _, ru := range r.rules {
		count := 0
		out.Source = replaceAllSubmatch(ru.pattern, out.Source, func(m []string) string {
			count++
			return ru.replace(m)
		})
		if count > 0 {
			out.Fixes = append(out.Fixes, Fix{Rule: ru.name, Count: count})
		}
	}
	return out
}

// columnVector turns the items of Matrix([a, b]) into Matrix([[a], [b]]).
// Segments are trimmed; empty segments become empty rows.
func columnVector(m []string) string {
	items := strings.Split(m[1], ",")
	rows := make([]string, len(items))
	for i, item := range items {
		rows[i] = "[" + strings.TrimSpace(item) + "]"
	}
	return "Matrix([" + strings.Join(rows, ", ") + "])"
}

func replaceAllSubmatch(re *regexp.Regexp, src string, repl func([]string) string) string {
	indexes := re.FindAllStringSubmatchIndex(src, -1)
	if len(indexes) == 0 {
		return src
	}
	var b strings.Builder
	last := 0
	for _, loc := range indexes {
		b.WriteString(src[last:loc[0]])
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = src[loc[2*i]:loc[2*i+1]]
			}
		}
		b.WriteString(repl(groups))
		last = loc[1]
	}
	b.WriteString(src[last:])
	return b.String()
}
