package fusion

import "github.com/roach88/dataflow/internal/ir"

// Boundary is the def-use border of a candidate operation set.
type Boundary struct {
	// Inputs are values used by the set but defined outside it, in
	// encounter order, each listed once.
	Inputs []*ir.Value

	// Outputs are results of the set with at least one user outside it,
	// in encounter order.
	Outputs []*ir.Value
}

// ExtractBoundary computes the boundary of ops. It does not mutate the IR.
func ExtractBoundary(ops []*ir.Operation) Boundary {
	members := newMemberSet(ops)

	var b Boundary
	seen := make(map[*ir.Value]bool)
	for _, op := range ops {
		for _, v := range op.OperandValues() {
			if def := v.DefiningOp(); def != nil && members.contains(def) {
				continue
			}
			if !seen[v] {
				seen[v] = true
				b.Inputs = append(b.Inputs, v)
			}
		}
		for _, r := range op.Results() {
			for _, user := range r.Users() {
				if !members.contains(user) {
					b.Outputs = append(b.Outputs, r)
					break
				}
			}
		}
	}
	return b
}

// memberSet tests membership by identity. An operation nested in the body
// of a member counts as a member.
type memberSet map[*ir.Operation]bool

func newMemberSet(ops []*ir.Operation) memberSet {
	s := make(memberSet, len(ops))
	for _, op := range ops {
		s[op] = true
	}
	return s
}

func (s memberSet) contains(op *ir.Operation) bool {
	for cur := op; cur != nil; cur = cur.ParentOp() {
		if s[cur] {
			return true
		}
	}
	return false
}
