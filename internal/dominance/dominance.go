// Package dominance answers dominance queries over the operations of a
// function.
//
// Functions here are single-block regions nested through compound
// operations, so dominance reduces to ancestry plus block order: a
// dominates b when a is b, when a encloses b, or when a precedes the
// ancestor of b that shares a's block.
package dominance

import "github.com/roach88/dataflow/internal/ir"

// Oracle is the read-only dominance relation consulted by fusion rules.
type Oracle interface {
	Dominates(a, b *ir.Operation) bool
}

// Info is the Oracle for one function. It is built once per pass and
// reads the live block order, whose indices the ir package caches and
// invalidates on insertion.
type Info struct {
	fn *ir.Func
}

// New builds dominance information for fn.
func New(fn *ir.Func) *Info {
	return &Info{fn: fn}
}

// Dominates reports whether a dominates b. Every operation dominates itself.
func (d *Info) Dominates(a, b *ir.Operation) bool {
	return a == b || d.ProperlyDominates(a, b)
}

// ProperlyDominates reports whether a dominates b and a != b.
// Detached operations dominate nothing and are dominated by nothing.
func (d *Info) ProperlyDominates(a, b *ir.Operation) bool {
	if a == b || a.Block() == nil || b.Block() == nil {
		return false
	}
	if a.IsAncestorOf(b) {
		return true
	}
	anc := a.Block().FindAncestorOpInBlock(b)
	if anc == nil {
		return false
	}
	if anc == a {
		return false
	}
	return a.IsBeforeInBlock(anc)
}

// Func returns the function the information was computed for.
func (d *Info) Func() *ir.Func { return d.fn }
