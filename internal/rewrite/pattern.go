package rewrite

import "github.com/roach88/dataflow/internal/ir"

// Pattern is a single rewrite rule.
type Pattern interface {
	// Name identifies the pattern in logs and firing records.
	Name() string

	// RootKind is the operation kind the pattern is rooted at.
	// An empty string matches every kind.
	RootKind() string

	// MatchAndRewrite rewrites the IR around op and returns true, or
	// returns false without touching the IR.
	MatchAndRewrite(op *ir.Operation, rw *Rewriter) bool
}

// PatternSet is an ordered collection of patterns.
// Patterns with the same root kind are tried in registration order.
type PatternSet struct {
	patterns []Pattern
}

// NewPatternSet creates a set holding ps.
func NewPatternSet(ps ...Pattern) *PatternSet {
	s := &PatternSet{}
	s.Add(ps...)
	return s
}

// Add appends patterns to the set.
func (s *PatternSet) Add(ps ...Pattern) {
	s.patterns = append(s.patterns, ps...)
}

// Len returns the number of patterns.
func (s *PatternSet) Len() int { return len(s.patterns) }

// Patterns returns the patterns in registration order.
func (s *PatternSet) Patterns() []Pattern { return s.patterns }

// Clear removes every pattern.
func (s *PatternSet) Clear() { s.patterns = nil }

// forKind returns the patterns applicable to kind, in registration order.
func (s *PatternSet) forKind(kind string) []Pattern {
	var out []Pattern
	for _, p := range s.patterns {
		if rk := p.RootKind(); rk == "" || rk == kind {
			out = append(out, p)
		}
	}
	return out
}
