package ir

import "fmt"

// Operation is a node of the program: a kind, ordered operands, ordered
// results, attributes and an optional single-block body.
type Operation struct {
	kind     string
	operands []*Operand
	results  []*Value
	attrs    Attrs
	body     *Block

	block *Block
	prev  *Operation
	next  *Operation
	order int
}

// NewOperation creates a detached operation. Operand uses are registered
// immediately; the result values are fresh.
func NewOperation(kind string, operands []*Value, resultTypes []Type, attrs Attrs) *Operation {
	op := &Operation{kind: kind, attrs: attrs}
	op.SetOperands(operands)
	op.results = make([]*Value, len(resultTypes))
	for i, t := range resultTypes {
		op.results[i] = &Value{typ: t, def: op, index: i}
	}
	return op
}

// Kind returns the dotted operation name, e.g. "tosa.conv2d".
func (op *Operation) Kind() string { return op.kind }

// String returns a short description for logs and panics.
func (op *Operation) String() string {
	return fmt.Sprintf("%s(%d operands, %d results)", op.kind, len(op.operands), len(op.results))
}

// Operands returns the operand slots.
func (op *Operation) Operands() []*Operand { return op.operands }

// NumOperands returns the number of operands.
func (op *Operation) NumOperands() int { return len(op.operands) }

// Operand returns the value of the i-th operand.
func (op *Operation) Operand(i int) *Value { return op.operands[i].value }

// OperandValues returns the operand values in order.
func (op *Operation) OperandValues() []*Value {
	out := make([]*Value, len(op.operands))
	for i, o := range op.operands {
		out[i] = o.value
	}
	return out
}

// SetOperands drops all current operands and uses vals instead.
func (op *Operation) SetOperands(vals []*Value) {
	for _, o := range op.operands {
		o.Set(nil)
	}
	op.operands = make([]*Operand, len(vals))
	for i, v := range vals {
		o := &Operand{owner: op, index: i}
		o.Set(v)
		op.operands[i] = o
	}
}

// Results returns the result values.
func (op *Operation) Results() []*Value { return op.results }

// NumResults returns the number of results.
func (op *Operation) NumResults() int { return len(op.results) }

// Result returns the i-th result.
func (op *Operation) Result(i int) *Value { return op.results[i] }

// ResultTypes returns the types of the results.
func (op *Operation) ResultTypes() []Type {
	out := make([]Type, len(op.results))
	for i, r := range op.results {
		out[i] = r.typ
	}
	return out
}

// HasResultUses reports whether any result is still referenced.
func (op *Operation) HasResultUses() bool {
	for _, r := range op.results {
		if r.HasUses() {
			return true
		}
	}
	return false
}

// Users returns the users of all results, one entry per use.
func (op *Operation) Users() []*Operation {
	var out []*Operation
	for _, r := range op.results {
		out = append(out, r.Users()...)
	}
	return out
}

// Attrs returns the attribute dictionary (may be nil).
func (op *Operation) Attrs() Attrs { return op.attrs }

// Attr looks up a named attribute.
func (op *Operation) Attr(name string) (Attr, bool) {
	v, ok := op.attrs[name]
	return v, ok
}

// SetAttr sets a named attribute.
func (op *Operation) SetAttr(name string, v Attr) {
	if op.attrs == nil {
		op.attrs = make(Attrs)
	}
	op.attrs[name] = v
}

// Body returns the nested block, or nil for plain operations.
func (op *Operation) Body() *Block { return op.body }

// SetBody attaches b as the operation's body.
func (op *Operation) SetBody(b *Block) {
	if b != nil {
		b.parent = op
	}
	op.body = b
}

// Block returns the block containing the operation, or nil if detached.
func (op *Operation) Block() *Block { return op.block }

// ParentOp returns the operation whose body contains op.
func (op *Operation) ParentOp() *Operation {
	if op.block == nil {
		return nil
	}
	return op.block.parent
}

// Next returns the following operation in the block.
func (op *Operation) Next() *Operation { return op.next }

// Prev returns the preceding operation in the block.
func (op *Operation) Prev() *Operation { return op.prev }

// EnclosingOfKind returns the closest ancestor operation of the given kind.
func (op *Operation) EnclosingOfKind(kind string) *Operation {
	for p := op.ParentOp(); p != nil; p = p.ParentOp() {
		if p.kind == kind {
			return p
		}
	}
	return nil
}

// InTask reports whether any operation enclosing op is a task node. The
// walk visits every ancestor; before the schedule wrap op is at most one
// level deep, so it costs a single step there.
func (op *Operation) InTask() bool {
	return op.EnclosingOfKind(KindTask) != nil
}

// IsAncestorOf reports whether other is nested (at any depth) in op's body.
func (op *Operation) IsAncestorOf(other *Operation) bool {
	for p := other.ParentOp(); p != nil; p = p.ParentOp() {
		if p == op {
			return true
		}
	}
	return false
}

// IsBeforeInBlock reports whether op precedes other; both must share a block.
func (op *Operation) IsBeforeInBlock(other *Operation) bool {
	b := op.block
	if b == nil || other.block != b {
		panic("ir: IsBeforeInBlock on operations of different blocks")
	}
	if !b.orderValid {
		b.recomputeOrder()
	}
	return op.order < other.order
}

// MoveBefore unlinks op and reinserts it before pos (possibly in another block).
func (op *Operation) MoveBefore(pos *Operation) {
	if op == pos {
		return
	}
	if op.block != nil {
		op.block.unlink(op)
	}
	pos.block.insert(op, pos)
}

// MoveToEnd unlinks op and appends it to b.
func (op *Operation) MoveToEnd(b *Block) {
	if op.block != nil {
		op.block.unlink(op)
	}
	b.insert(op, nil)
}

// Remove unlinks op from its block without touching its uses.
func (op *Operation) Remove() {
	if op.block != nil {
		op.block.unlink(op)
	}
}

// Erase removes op, its nested body and all its operand uses.
// Results must not have remaining uses outside the erased subtree.
func (op *Operation) Erase() {
	if op.body != nil {
		ops := op.body.Operations()
		for i := len(ops) - 1; i >= 0; i-- {
			ops[i].Erase()
		}
	}
	if op.HasResultUses() {
		panic(fmt.Sprintf("ir: erasing %s whose results are still used", op))
	}
	for _, o := range op.operands {
		o.Set(nil)
	}
	op.Remove()
}

// Clone returns a detached deep copy of op. Operands refer to the same
// values as op's, except values defined inside op's body, which are
// remapped to their copies.
func (op *Operation) Clone() *Operation {
	return op.cloneWith(make(map[*Value]*Value))
}

func (op *Operation) cloneWith(mapping map[*Value]*Value) *Operation {
	operands := make([]*Value, len(op.operands))
	for i, o := range op.operands {
		if m, ok := mapping[o.value]; ok {
			operands[i] = m
		} else {
			operands[i] = o.value
		}
	}
	cp := NewOperation(op.kind, operands, op.ResultTypes(), op.attrs.Clone())
	for i, r := range op.results {
		mapping[r] = cp.results[i]
	}
	if op.body != nil {
		nb := NewBlock()
		for _, arg := range op.body.args {
			mapping[arg] = nb.AddArgument(arg.typ)
		}
		for inner := op.body.first; inner != nil; inner = inner.next {
			nb.Append(inner.cloneWith(mapping))
		}
		cp.SetBody(nb)
	}
	return cp
}

// Walk visits op and then every operation nested in its body, pre-order.
func (op *Operation) Walk(fn func(*Operation)) {
	fn(op)
	if op.body != nil {
		op.body.Walk(fn)
	}
}
