package fusion

import (
	"sort"

	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/rewrite"
)

// BuildTask fuses ops into a new task node placed before the earliest of
// them and returns the node.
//
// Task nodes among ops are dissolved first, so the result is flat. The
// node captures every external input as a body argument, exposes every
// value used outside as a result, and moves the operations, in block
// order, in front of a trailing yield. Operations lying between the
// members that the members depend on are hoisted above the node.
//
// BuildTask always succeeds structurally. Callers check CanFuse first: a
// set that fails it yields a node reading its own results through an
// operation left after it.
func BuildTask(rw *rewrite.Rewriter, ops []*ir.Operation) *ir.Operation {
	if len(ops) == 0 {
		panic("fusion: must fuse at least one operation")
	}

	var members []*ir.Operation
	for _, op := range ops {
		if op.Kind() == ir.KindTask {
			members = append(members, dissolveTask(rw, op)...)
			continue
		}
		members = append(members, op)
	}
	sortByPosition(members)
	hoistDependencies(rw, members)

	boundary := ExtractBoundary(members)
	set := newMemberSet(members)

	outputTypes := make([]ir.Type, len(boundary.Outputs))
	for i, v := range boundary.Outputs {
		outputTypes[i] = v.Type()
	}
	rw.SetInsertionPoint(members[0])
	node := rw.Create(ir.KindTask, boundary.Inputs, outputTypes, nil)
	body := rw.CreateBody(node)

	// Internal uses of each input now read the matching body argument.
	for _, input := range boundary.Inputs {
		arg := body.AddArgument(input.Type())
		rw.ReplaceUsesWithIf(input, arg, func(use *ir.Operand) bool {
			return set.contains(use.Owner())
		})
	}

	// External uses of each output now read the matching node result.
	for i, output := range boundary.Outputs {
		rw.ReplaceUsesWithIf(output, node.Result(i), func(use *ir.Operand) bool {
			return !set.contains(use.Owner())
		})
	}

	rw.SetInsertionPointToEnd(body)
	yield := rw.Create(ir.KindYield, boundary.Outputs, nil, nil)
	for _, op := range members {
		rw.MoveBefore(op, yield)
	}
	return node
}

// dissolveTask splices the body of task in front of it, rewires its
// arguments and results to the underlying values, erases the shell and
// returns the spliced operations in order.
func dissolveTask(rw *rewrite.Rewriter, task *ir.Operation) []*ir.Operation {
	body := task.Body()
	yield := body.Terminator()

	for i, arg := range body.Arguments() {
		rw.ReplaceAllUsesWith(arg, task.Operand(i))
	}
	for i, res := range task.Results() {
		rw.ReplaceAllUsesWith(res, yield.Operand(i))
	}

	var inner []*ir.Operation
	for _, op := range body.Operations() {
		if op == yield {
			continue
		}
		rw.MoveBefore(op, task)
		inner = append(inner, op)
	}
	rw.Erase(task)
	return inner
}

// sortByPosition orders ops by block position when they share a block.
func sortByPosition(ops []*ir.Operation) {
	b := ops[0].Block()
	for _, op := range ops[1:] {
		if op.Block() != b {
			return
		}
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].IsBeforeInBlock(ops[j])
	})
}

// interleaving classifies the operations lying strictly between the
// first and last of a set of operations sharing one block.
type interleaving struct {
	between []*ir.Operation
	// needed ops are reached backwards from a member through def-use edges.
	needed map[*ir.Operation]bool
	// tainted ops consume a member result, directly or through another
	// tainted op.
	tainted map[*ir.Operation]bool
}

// interleave returns nil when members, sorted by position, do not share a
// block or have nothing between them.
func interleave(members []*ir.Operation) *interleaving {
	first, last := members[0], members[len(members)-1]
	b := first.Block()
	if b == nil || last.Block() != b {
		return nil
	}
	set := newMemberSet(members)

	il := &interleaving{
		needed:  make(map[*ir.Operation]bool),
		tainted: make(map[*ir.Operation]bool),
	}
	inRange := make(map[*ir.Operation]bool)
	for op := first.Next(); op != nil && op != last; op = op.Next() {
		if !set[op] {
			il.between = append(il.between, op)
			inRange[op] = true
		}
	}
	if len(il.between) == 0 {
		return nil
	}

	var visit func(op *ir.Operation)
	visit = func(op *ir.Operation) {
		for _, v := range op.OperandValues() {
			def := v.DefiningOp()
			if def == nil {
				continue
			}
			anc := b.FindAncestorOpInBlock(def)
			if anc != nil && inRange[anc] && !il.needed[anc] {
				il.needed[anc] = true
				visit(anc)
			}
		}
	}
	for _, m := range members {
		visit(m)
	}

	for _, op := range il.between {
		for _, v := range op.OperandValues() {
			def := v.DefiningOp()
			if def == nil {
				continue
			}
			if anc := b.FindAncestorOpInBlock(def); anc != nil && (set[anc] || il.tainted[anc]) {
				il.tainted[op] = true
				break
			}
		}
	}
	return il
}

// CanFuse reports whether ops can become one task without a cycle: no
// operation between them may both consume a result of the set and feed
// the set. Task nodes among ops count as single operations.
func CanFuse(ops []*ir.Operation) bool {
	if len(ops) < 2 {
		return true
	}
	members := append([]*ir.Operation(nil), ops...)
	sortByPosition(members)
	il := interleave(members)
	if il == nil {
		return true
	}
	for _, op := range il.between {
		if il.needed[op] && il.tainted[op] {
			return false
		}
	}
	return true
}

// hoistDependencies moves every operation strictly between the first and
// last member that the members (transitively) use, and that does not
// itself use a member, to just before the first member. Relative order is
// preserved.
func hoistDependencies(rw *rewrite.Rewriter, members []*ir.Operation) {
	il := interleave(members)
	if il == nil {
		return
	}
	for _, op := range il.between {
		if il.needed[op] && !il.tainted[op] {
			rw.MoveBefore(op, members[0])
		}
	}
}
