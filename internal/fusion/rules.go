package fusion

import (
	"github.com/roach88/dataflow/internal/dominance"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/rewrite"
)

// Pattern names, as recorded in firings.
const (
	NameOutline        = "outline"
	NameForwardFuse    = "forward-fuse"
	NameBackwardFuse   = "backward-fuse"
	NameConstReplicate = "const-replicate"
)

// OutlinePattern wraps a single unclustered operation into its own task.
type OutlinePattern struct {
	kind string
}

// NewOutlinePattern returns an Outline rule rooted at kind.
func NewOutlinePattern(kind string) *OutlinePattern {
	return &OutlinePattern{kind: kind}
}

func (p *OutlinePattern) Name() string     { return NameOutline }
func (p *OutlinePattern) RootKind() string { return p.kind }

func (p *OutlinePattern) MatchAndRewrite(op *ir.Operation, rw *rewrite.Rewriter) bool {
	if op.InTask() {
		return false
	}
	BuildTask(rw, []*ir.Operation{op})
	return true
}

// ForwardFusePattern merges an unclustered operation into the task that
// consumes its results. With several consuming tasks the one that
// dominates all others is chosen, among those it can fuse with.
type ForwardFusePattern struct {
	kind string
	dom  dominance.Oracle
}

// NewForwardFusePattern returns a Forward-Fuse rule rooted at kind.
func NewForwardFusePattern(kind string, dom dominance.Oracle) *ForwardFusePattern {
	return &ForwardFusePattern{kind: kind, dom: dom}
}

func (p *ForwardFusePattern) Name() string     { return NameForwardFuse }
func (p *ForwardFusePattern) RootKind() string { return p.kind }

func (p *ForwardFusePattern) MatchAndRewrite(op *ir.Operation, rw *rewrite.Rewriter) bool {
	if op.InTask() {
		return false
	}
	var target *ir.Operation
	for _, user := range op.Users() {
		if user.Kind() != ir.KindTask || !CanFuse([]*ir.Operation{op, user}) {
			continue
		}
		if target == nil || p.dom.Dominates(user, target) {
			target = user
		}
	}
	if target == nil {
		return false
	}
	BuildTask(rw, []*ir.Operation{op, target})
	return true
}

// BackwardFusePattern merges an unclustered operation into the task that
// produces its operands. With several producing tasks the one dominated
// by all others is chosen, among those it can fuse with.
type BackwardFusePattern struct {
	kind string
	dom  dominance.Oracle
}

// NewBackwardFusePattern returns a Backward-Fuse rule rooted at kind.
func NewBackwardFusePattern(kind string, dom dominance.Oracle) *BackwardFusePattern {
	return &BackwardFusePattern{kind: kind, dom: dom}
}

func (p *BackwardFusePattern) Name() string     { return NameBackwardFuse }
func (p *BackwardFusePattern) RootKind() string { return p.kind }

func (p *BackwardFusePattern) MatchAndRewrite(op *ir.Operation, rw *rewrite.Rewriter) bool {
	if op.InTask() {
		return false
	}
	var target *ir.Operation
	for _, v := range op.OperandValues() {
		def := v.DefiningOp()
		if def == nil || def.Kind() != ir.KindTask || !CanFuse([]*ir.Operation{def, op}) {
			continue
		}
		if target == nil || p.dom.Dominates(target, def) {
			target = def
		}
	}
	if target == nil {
		return false
	}
	BuildTask(rw, []*ir.Operation{target, op})
	return true
}

// ConstReplicatePattern gives every task that consumes a constant its own
// private copy of it. The original constant is left for dead-op erasure
// once its last use is redirected.
type ConstReplicatePattern struct {
	kind string
}

// NewConstReplicatePattern returns a Constant-Replicate rule rooted at kind.
func NewConstReplicatePattern(kind string) *ConstReplicatePattern {
	return &ConstReplicatePattern{kind: kind}
}

func (p *ConstReplicatePattern) Name() string     { return NameConstReplicate }
func (p *ConstReplicatePattern) RootKind() string { return p.kind }

func (p *ConstReplicatePattern) MatchAndRewrite(op *ir.Operation, rw *rewrite.Rewriter) bool {
	if op.InTask() || op.NumResults() != 1 {
		return false
	}
	res := op.Result(0)
	changed := false
	for _, use := range res.Uses() {
		// Earlier iterations may have dissolved the owning task.
		if use.Get() != res || use.Owner().Kind() != ir.KindTask {
			continue
		}
		node := use.Owner()
		rw.SetInsertionPoint(node)
		clone := rw.Clone(op)
		rw.SetOperand(use, clone.Result(0))
		BuildTask(rw, []*ir.Operation{clone, node})
		changed = true
	}
	return changed
}
