package rewrite

import "github.com/roach88/dataflow/internal/ir"

// listener is notified of every structural change made through a Rewriter.
type listener interface {
	notifyCreated(op *ir.Operation)
	notifyModified(op *ir.Operation)
	notifyErased(op *ir.Operation)
}

// Rewriter performs IR mutations on behalf of patterns and reports them
// to the driver. A Rewriter without a listener (NewRewriter) just mutates.
type Rewriter struct {
	builder  ir.Builder
	listener listener
}

// NewRewriter returns a Rewriter that is not attached to a driver.
// Useful for applying builders directly, e.g. in tests or one-shot passes.
func NewRewriter() *Rewriter {
	return &Rewriter{}
}

// SetInsertionPoint makes subsequent creations insert before op.
func (rw *Rewriter) SetInsertionPoint(op *ir.Operation) {
	rw.builder.SetInsertionPoint(op)
}

// SetInsertionPointToEnd makes subsequent creations append to b.
func (rw *Rewriter) SetInsertionPointToEnd(b *ir.Block) {
	rw.builder.SetInsertionPointToEnd(b)
}

// SetInsertionPointToStart makes subsequent creations insert at the start of b.
func (rw *Rewriter) SetInsertionPointToStart(b *ir.Block) {
	rw.builder.SetInsertionPointToStart(b)
}

// Create builds an operation at the insertion point.
func (rw *Rewriter) Create(kind string, operands []*ir.Value, resultTypes []ir.Type, attrs ir.Attrs) *ir.Operation {
	op := rw.builder.Create(kind, operands, resultTypes, attrs)
	rw.created(op)
	return op
}

// CreateBody attaches a fresh empty body to op and moves the insertion
// point to its end.
func (rw *Rewriter) CreateBody(op *ir.Operation) *ir.Block {
	b := ir.NewBlock()
	op.SetBody(b)
	rw.builder.SetInsertionPointToEnd(b)
	return b
}

// Clone inserts a copy of op at the insertion point.
func (rw *Rewriter) Clone(op *ir.Operation) *ir.Operation {
	cp := rw.builder.Insert(op.Clone())
	rw.created(cp)
	return cp
}

// SetOperand points a single use at v.
func (rw *Rewriter) SetOperand(use *ir.Operand, v *ir.Value) {
	old := use.Get()
	use.Set(v)
	rw.modified(use.Owner())
	rw.valueDropped(old)
}

// ReplaceUsesWithIf redirects the uses of from accepted by pred to to.
func (rw *Rewriter) ReplaceUsesWithIf(from, to *ir.Value, pred func(use *ir.Operand) bool) {
	changed := false
	from.ReplaceUsesWithIf(to, func(use *ir.Operand) bool {
		if !pred(use) {
			return false
		}
		rw.modified(use.Owner())
		changed = true
		return true
	})
	if changed {
		rw.valueDropped(from)
	}
}

// ReplaceAllUsesWith redirects every use of from to to.
func (rw *Rewriter) ReplaceAllUsesWith(from, to *ir.Value) {
	rw.ReplaceUsesWithIf(from, to, func(*ir.Operand) bool { return true })
}

// MoveBefore relocates op before pos.
func (rw *Rewriter) MoveBefore(op, pos *ir.Operation) {
	op.MoveBefore(pos)
	rw.modified(op)
}

// MoveToEnd relocates op to the end of b.
func (rw *Rewriter) MoveToEnd(op *ir.Operation, b *ir.Block) {
	op.MoveToEnd(b)
	rw.modified(op)
}

// Erase removes op and everything nested in it.
func (rw *Rewriter) Erase(op *ir.Operation) {
	operands := op.OperandValues()
	if rw.listener != nil {
		op.Walk(rw.listener.notifyErased)
	}
	op.Erase()
	for _, v := range operands {
		rw.valueDropped(v)
	}
}

// NotifyChanged reports an in-place change to op made without the Rewriter.
func (rw *Rewriter) NotifyChanged(op *ir.Operation) {
	rw.modified(op)
}

func (rw *Rewriter) created(op *ir.Operation) {
	if rw.listener != nil {
		rw.listener.notifyCreated(op)
	}
}

func (rw *Rewriter) modified(op *ir.Operation) {
	if rw.listener != nil {
		rw.listener.notifyModified(op)
	}
}

// valueDropped revisits the producer of a value that lost a use; it may
// have become dead or lost a fusion partner.
func (rw *Rewriter) valueDropped(v *ir.Value) {
	if rw.listener == nil || v == nil {
		return
	}
	if def := v.DefiningOp(); def != nil {
		rw.listener.notifyModified(def)
	}
}
