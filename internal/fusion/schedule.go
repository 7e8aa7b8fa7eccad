package fusion

import "github.com/roach88/dataflow/internal/ir"

// WrapWithSchedule moves every operation of b except the terminator into
// a new schedule at the front of b. The schedule yields the terminator's
// operands and the terminator is rewired to the schedule's results.
//
// A block that already holds exactly one schedule plus its terminator is
// returned unchanged. WrapWithSchedule returns nil if b has no
// terminator.
func WrapWithSchedule(b *ir.Block) *ir.Operation {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	if first := b.Front(); b.Len() == 2 && first.Kind() == ir.KindSchedule {
		return first
	}

	returned := term.OperandValues()
	types := make([]ir.Type, len(returned))
	for i, v := range returned {
		types[i] = v.Type()
	}

	sched := ir.NewBuilderBefore(b.Front()).Create(ir.KindSchedule, nil, types, nil)
	body := ir.NewBlock()
	sched.SetBody(body)
	yield := ir.NewBuilderAtEnd(body).CreateYield(returned...)

	for op := sched.Next(); op != nil && op != term; {
		next := op.Next()
		op.MoveBefore(yield)
		op = next
	}
	term.SetOperands(sched.Results())
	return sched
}
