package dominance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/dataflow/internal/ir"
)

const t4 ir.Type = "tensor<4xf32>"

func TestDominates_StraightLine(t *testing.T) {
	f := ir.NewFunc("f", t4)
	bl := ir.NewBuilderAtEnd(f.Entry())
	a := bl.Create(ir.KindAdd, f.Arguments(), []ir.Type{t4}, nil)
	b := bl.Create(ir.KindMul, []*ir.Value{a.Result(0)}, []ir.Type{t4}, nil)
	bl.CreateReturn(b.Result(0))
	d := New(f)

	assert.True(t, d.Dominates(a, a))
	assert.False(t, d.ProperlyDominates(a, a))
	assert.True(t, d.Dominates(a, b))
	assert.False(t, d.Dominates(b, a))
	assert.Same(t, f, d.Func())
}

func TestDominates_NestedBodies(t *testing.T) {
	f := ir.NewFunc("f", t4)
	bl := ir.NewBuilderAtEnd(f.Entry())
	first := bl.Create(ir.KindAdd, f.Arguments(), []ir.Type{t4}, nil)
	task := bl.Create(ir.KindTask, nil, nil, nil)
	last := bl.Create(ir.KindSub, f.Arguments(), []ir.Type{t4}, nil)
	body := ir.NewBlock()
	task.SetBody(body)
	inner := ir.NewBuilderAtEnd(body).Create(ir.KindRsqrt, nil, []ir.Type{t4}, nil)
	d := New(f)

	assert.True(t, d.Dominates(task, inner), "a node encloses its body")
	assert.False(t, d.Dominates(inner, task))
	assert.True(t, d.Dominates(first, inner))
	assert.False(t, d.Dominates(last, inner))
	assert.False(t, d.Dominates(inner, last))
	assert.False(t, d.Dominates(first, ir.NewOperation(ir.KindAdd, nil, nil, nil)), "detached")
}

func TestDominates_FollowsLiveOrder(t *testing.T) {
	f := ir.NewFunc("f", t4)
	bl := ir.NewBuilderAtEnd(f.Entry())
	a := bl.Create(ir.KindAdd, f.Arguments(), []ir.Type{t4}, nil)
	b := bl.Create(ir.KindMul, f.Arguments(), []ir.Type{t4}, nil)
	d := New(f)
	assert.True(t, d.Dominates(a, b))

	b.MoveBefore(a)

	assert.True(t, d.Dominates(b, a))
	assert.False(t, d.Dominates(a, b))
}
