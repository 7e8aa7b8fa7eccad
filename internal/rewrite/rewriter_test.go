package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

// recorder collects listener notifications.
type recorder struct {
	created, modified, erased []*ir.Operation
}

func (r *recorder) notifyCreated(op *ir.Operation)  { r.created = append(r.created, op) }
func (r *recorder) notifyModified(op *ir.Operation) { r.modified = append(r.modified, op) }
func (r *recorder) notifyErased(op *ir.Operation)   { r.erased = append(r.erased, op) }

func TestRewriter_NotifiesListener(t *testing.T) {
	f := chain("test.a", "test.b")
	ops := f.Entry().Operations()
	a, b := ops[0], ops[1]
	rec := &recorder{}
	rw := &Rewriter{listener: rec}

	rw.SetInsertionPoint(a)
	k := rw.Create(ir.KindConst, nil, []ir.Type{t4}, nil)
	rw.SetOperand(b.Operands()[0], k.Result(0))
	rw.Erase(a)

	assert.Equal(t, []*ir.Operation{k}, rec.created)
	assert.Contains(t, rec.modified, b)
	assert.Contains(t, rec.modified, a, "producer of the dropped value is revisited")
	assert.Equal(t, []*ir.Operation{a}, rec.erased)
	assert.Equal(t, []string{ir.KindConst, "test.b", ir.KindReturn}, kinds(f))
}

func TestRewriter_CreateBodyAndClone(t *testing.T) {
	f := chain("test.a")
	a := f.Entry().Front()
	rw := NewRewriter()

	rw.SetInsertionPoint(a)
	task := rw.Create(ir.KindTask, nil, nil, nil)
	body := rw.CreateBody(task)
	yield := rw.Create(ir.KindYield, nil, nil, nil)
	rw.SetInsertionPoint(yield)
	cp := rw.Clone(a)

	require.Same(t, body, task.Body())
	assert.Same(t, task, cp.ParentOp())
	assert.Equal(t, []*ir.Operation{cp, yield}, body.Operations())
	assert.Equal(t, a.OperandValues(), cp.OperandValues())
}

func TestRewriter_MoveAndReplace(t *testing.T) {
	f := chain("test.a", "test.b")
	ops := f.Entry().Operations()
	a, b, ret := ops[0], ops[1], ops[2]
	rw := NewRewriter()

	rw.ReplaceUsesWithIf(b.Result(0), a.Result(0), func(use *ir.Operand) bool { return use.Owner() == ret })
	rw.MoveToEnd(b, f.Entry())

	assert.Same(t, a.Result(0), ret.Operand(0))
	assert.Same(t, b, f.Entry().Back())
	rw.MoveBefore(b, ret)
	assert.Same(t, ret, f.Entry().Back())
}
