package ir

// Type is the textual type of a value, e.g. "tensor<1x16xf32>".
// Types are compared by string identity.
type Type string

// Value is a single-definition, multi-use unit of data.
//
// A Value is either the result of an Operation (DefiningOp != nil) or an
// argument of a Block (Owner != nil). Its use list is maintained by
// Operand.Set and must not be edited directly.
type Value struct {
	typ   Type
	def   *Operation
	owner *Block
	index int
	uses  []*Operand
}

// Type returns the value's type.
func (v *Value) Type() Type { return v.typ }

// DefiningOp returns the operation producing v, or nil for block arguments.
func (v *Value) DefiningOp() *Operation { return v.def }

// Owner returns the block a block argument belongs to, or nil for results.
func (v *Value) Owner() *Block { return v.owner }

// IsBlockArgument reports whether v is a block argument.
func (v *Value) IsBlockArgument() bool { return v.owner != nil }

// Index returns the result number or the argument number of v.
func (v *Value) Index() int { return v.index }

// ParentBlock returns the block in which v is defined.
func (v *Value) ParentBlock() *Block {
	if v.owner != nil {
		return v.owner
	}
	if v.def != nil {
		return v.def.block
	}
	return nil
}

// Uses returns a snapshot of v's uses in the order they were created.
func (v *Value) Uses() []*Operand {
	out := make([]*Operand, len(v.uses))
	copy(out, v.uses)
	return out
}

// NumUses returns the number of operands referencing v.
func (v *Value) NumUses() int { return len(v.uses) }

// HasUses reports whether anything references v.
func (v *Value) HasUses() bool { return len(v.uses) > 0 }

// Users returns the owner of every use, one entry per use.
func (v *Value) Users() []*Operation {
	out := make([]*Operation, len(v.uses))
	for i, use := range v.uses {
		out[i] = use.owner
	}
	return out
}

// ReplaceAllUsesWith redirects every use of v to repl.
func (v *Value) ReplaceAllUsesWith(repl *Value) {
	v.ReplaceUsesWithIf(repl, func(*Operand) bool { return true })
}

// ReplaceUsesWithIf redirects the uses of v accepted by pred to repl.
// Uses are visited on a snapshot, so pred may inspect the IR freely.
func (v *Value) ReplaceUsesWithIf(repl *Value, pred func(use *Operand) bool) {
	if v == repl {
		return
	}
	for _, use := range v.Uses() {
		if pred(use) {
			use.Set(repl)
		}
	}
}

func (v *Value) removeUse(o *Operand) {
	for i, use := range v.uses {
		if use == o {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

// Operand is one use of a Value by an Operation.
type Operand struct {
	owner *Operation
	value *Value
	index int
}

// Owner returns the operation holding the operand.
func (o *Operand) Owner() *Operation { return o.owner }

// Get returns the referenced value.
func (o *Operand) Get() *Value { return o.value }

// Index returns the operand number within its owner.
func (o *Operand) Index() int { return o.index }

// Set points the operand at v, keeping both use lists consistent.
func (o *Operand) Set(v *Value) {
	if o.value == v {
		return
	}
	if o.value != nil {
		o.value.removeUse(o)
	}
	o.value = v
	if v != nil {
		v.uses = append(v.uses, o)
	}
}

// Block is an ordered list of operations with typed arguments.
// The last operation is the terminator.
type Block struct {
	args   []*Value
	first  *Operation
	last   *Operation
	parent *Operation
	size   int

	// orderValid guards the cached Operation.order indices used by
	// IsBeforeInBlock; any insertion invalidates it.
	orderValid bool
}

// NewBlock creates a detached block with one argument per type.
func NewBlock(argTypes ...Type) *Block {
	b := &Block{}
	for _, t := range argTypes {
		b.AddArgument(t)
	}
	return b
}

// AddArgument appends a new argument of type t.
func (b *Block) AddArgument(t Type) *Value {
	arg := &Value{typ: t, owner: b, index: len(b.args)}
	b.args = append(b.args, arg)
	return arg
}

// Arguments returns the block arguments.
func (b *Block) Arguments() []*Value { return b.args }

// Argument returns the i-th block argument.
func (b *Block) Argument(i int) *Value { return b.args[i] }

// ParentOp returns the operation owning the block, or nil for a function
// entry block.
func (b *Block) ParentOp() *Operation { return b.parent }

// Front returns the first operation, or nil if the block is empty.
func (b *Block) Front() *Operation { return b.first }

// Back returns the last operation, or nil if the block is empty.
func (b *Block) Back() *Operation { return b.last }

// Terminator returns the last operation if it is a terminator.
func (b *Block) Terminator() *Operation {
	if b.last != nil && IsTerminator(b.last.kind) {
		return b.last
	}
	return nil
}

// Len returns the number of operations in the block.
func (b *Block) Len() int { return b.size }

// Empty reports whether the block holds no operations.
func (b *Block) Empty() bool { return b.size == 0 }

// Operations returns a snapshot of the block's operations in order.
// The snapshot stays valid while the block is mutated.
func (b *Block) Operations() []*Operation {
	out := make([]*Operation, 0, b.size)
	for op := b.first; op != nil; op = op.next {
		out = append(out, op)
	}
	return out
}

// Append adds a detached operation at the end of the block.
func (b *Block) Append(op *Operation) {
	b.insert(op, nil)
}

// InsertBefore adds a detached operation before pos, which must belong to b.
// A nil pos appends.
func (b *Block) InsertBefore(op, pos *Operation) {
	b.insert(op, pos)
}

func (b *Block) insert(op, pos *Operation) {
	if op.block != nil {
		panic("ir: inserting an operation that is still attached to a block")
	}
	if pos != nil && pos.block != b {
		panic("ir: insertion point belongs to another block")
	}
	op.block = b
	if pos == nil {
		op.prev = b.last
		op.next = nil
		if b.last != nil {
			b.last.next = op
		} else {
			b.first = op
		}
		b.last = op
	} else {
		op.next = pos
		op.prev = pos.prev
		if pos.prev != nil {
			pos.prev.next = op
		} else {
			b.first = op
		}
		pos.prev = op
	}
	b.size++
	b.orderValid = false
}

func (b *Block) unlink(op *Operation) {
	if op.prev != nil {
		op.prev.next = op.next
	} else {
		b.first = op.next
	}
	if op.next != nil {
		op.next.prev = op.prev
	} else {
		b.last = op.prev
	}
	op.prev, op.next, op.block = nil, nil, nil
	b.size--
}

func (b *Block) recomputeOrder() {
	i := 0
	for op := b.first; op != nil; op = op.next {
		op.order = i
		i++
	}
	b.orderValid = true
}

// FindAncestorOpInBlock returns the ancestor of op (possibly op itself)
// that lives directly in b, or nil if op is not nested under b.
func (b *Block) FindAncestorOpInBlock(op *Operation) *Operation {
	for cur := op; cur != nil; cur = cur.ParentOp() {
		if cur.block == b {
			return cur
		}
	}
	return nil
}

// Walk visits every operation of the block and of nested bodies in
// pre-order. The walk iterates over snapshots, so fn may mutate the IR.
func (b *Block) Walk(fn func(*Operation)) {
	for _, op := range b.Operations() {
		op.Walk(fn)
	}
}

// Func is a named function with a single entry block.
type Func struct {
	Name string
	body *Block
}

// NewFunc creates a function with one entry-block argument per type.
// The caller appends operations and the func.return terminator.
func NewFunc(name string, argTypes ...Type) *Func {
	return &Func{Name: name, body: NewBlock(argTypes...)}
}

// Entry returns the function's entry block.
func (f *Func) Entry() *Block { return f.body }

// Arguments returns the function arguments.
func (f *Func) Arguments() []*Value { return f.body.args }

// ResultTypes returns the types returned by the terminator.
func (f *Func) ResultTypes() []Type {
	term := f.body.Terminator()
	if term == nil {
		return nil
	}
	out := make([]Type, 0, term.NumOperands())
	for _, v := range term.OperandValues() {
		out = append(out, v.Type())
	}
	return out
}

// Walk visits every operation of the function in pre-order.
func (f *Func) Walk(fn func(*Operation)) {
	f.body.Walk(fn)
}
