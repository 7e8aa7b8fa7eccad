package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/rewrite"
	"github.com/roach88/dataflow/internal/testutil"
)

func TestBuildTask_Singleton(t *testing.T) {
	p := testutil.NewProgram("chain", testutil.Tensor)
	a := p.Op("a", "tosa.cast", p.Arg(0))
	b := p.Op("b", ir.KindAdd, a.Result(0))
	c := p.Op("c", "tosa.cast", b.Result(0))
	p.Return(c.Result(0))

	node := BuildTask(rewrite.NewRewriter(), []*ir.Operation{b})

	requireClosed(t, node)
	assert.Equal(t, []string{"tosa.cast", ir.KindTask, "tosa.cast", ir.KindReturn}, testutil.Kinds(p.Fn.Entry()))
	assert.Equal(t, []*ir.Value{a.Result(0)}, node.OperandValues())
	assert.Same(t, node, b.ParentOp())
	assert.Same(t, node.Body().Argument(0), b.Operand(0))
	assert.Same(t, node.Result(0), c.Operand(0))
	assert.Equal(t, []*ir.Value{b.Result(0)}, node.Body().Terminator().OperandValues())
}

func TestBuildTask_OnlyInternalUsesOfInputsAreRewired(t *testing.T) {
	p := testutil.NewProgram("shared", testutil.Tensor)
	x := p.Op("x", ir.KindAdd, p.Arg(0))
	y := p.Op("y", ir.KindMul, p.Arg(0))
	p.Return(x.Result(0), y.Result(0))

	node := BuildTask(rewrite.NewRewriter(), []*ir.Operation{x})

	requireClosed(t, node)
	assert.Same(t, p.Arg(0), y.Operand(0))
	assert.Same(t, node.Body().Argument(0), x.Operand(0))
}

func TestBuildTask_KeepsRelativeOrder(t *testing.T) {
	p := testutil.NewProgram("order", testutil.Tensor)
	x := p.Op("x", ir.KindAdd, p.Arg(0))
	y := p.Op("y", ir.KindRsqrt, x.Result(0))
	z := p.Op("z", ir.KindMul, y.Result(0))
	p.Return(z.Result(0))

	node := BuildTask(rewrite.NewRewriter(), []*ir.Operation{z, x, y})

	requireClosed(t, node)
	assert.Equal(t, []*ir.Operation{x, y, z, node.Body().Terminator()}, node.Body().Operations())
	assert.Equal(t, 1, node.NumResults())
}

func TestBuildTask_DissolvesTaskMembers(t *testing.T) {
	p := testutil.NewProgram("flat", testutil.Tensor)
	x := p.Op("x", ir.KindAdd, p.Arg(0))
	y := p.Op("y", ir.KindClamp, x.Result(0))
	p.Return(y.Result(0))

	rw := rewrite.NewRewriter()
	inner := BuildTask(rw, []*ir.Operation{x})
	outer := BuildTask(rw, []*ir.Operation{inner, y})

	requireClosed(t, outer)
	assert.Nil(t, inner.Block(), "dissolved task must be detached")
	assert.Same(t, outer, x.ParentOp())
	assert.Same(t, outer, y.ParentOp())
	assert.Len(t, testutil.Tasks(p.Fn), 1)
	assert.Equal(t, []*ir.Value{p.Arg(0)}, outer.OperandValues())
}

func TestBuildTask_HoistsInterveningDependencies(t *testing.T) {
	p := testutil.NewProgram("hoist", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	x := p.Op("x", "tosa.cast", p.Arg(0))
	b := p.Op("b", ir.KindMul, a.Result(0), x.Result(0))
	p.Return(b.Result(0))

	node := BuildTask(rewrite.NewRewriter(), []*ir.Operation{a, b})

	requireClosed(t, node)
	require.Equal(t, []string{"tosa.cast", ir.KindTask, ir.KindReturn}, testutil.Kinds(p.Fn.Entry()))
	assert.Equal(t, []*ir.Value{p.Arg(0), x.Result(0)}, node.OperandValues())
	assert.True(t, x.IsBeforeInBlock(node))
}

func TestBuildTask_LeavesDependentsAfterNode(t *testing.T) {
	p := testutil.NewProgram("taint", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	y := p.Op("y", "tosa.cast", a.Result(0))
	b := p.Op("b", ir.KindMul, a.Result(0))
	p.Return(y.Result(0), b.Result(0))

	node := BuildTask(rewrite.NewRewriter(), []*ir.Operation{a, b})

	requireClosed(t, node)
	assert.Equal(t, []string{ir.KindTask, "tosa.cast", ir.KindReturn}, testutil.Kinds(p.Fn.Entry()))
	assert.Same(t, node.Result(0), y.Operand(0))
	assert.Equal(t, []*ir.Value{a.Result(0), b.Result(0)}, node.Body().Terminator().OperandValues())
}

func TestCanFuse(t *testing.T) {
	p := testutil.NewProgram("legality", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	x := p.Op("x", "tosa.cast", a.Result(0))
	y := p.Op("y", "tosa.cast", p.Arg(0))
	b := p.Op("b", ir.KindMul, x.Result(0), y.Result(0))
	c := p.Op("c", ir.KindSub, a.Result(0), y.Result(0))
	p.Return(b.Result(0), c.Result(0))

	tests := []struct {
		name string
		ops  []*ir.Operation
		want bool
	}{
		{"singleton", []*ir.Operation{b}, true},
		{"adjacent", []*ir.Operation{a, x}, true},
		{"intervening op feeds from and into the set", []*ir.Operation{a, b}, false},
		{"order of arguments does not matter", []*ir.Operation{b, a}, false},
		{"intervening dependency only", []*ir.Operation{y, c}, true},
		{"intervening consumer only", []*ir.Operation{a, c}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := ir.FuncString(p.Fn)
			assert.Equal(t, tt.want, CanFuse(tt.ops))
			assert.Equal(t, before, ir.FuncString(p.Fn))
		})
	}
}

func TestBuildTask_PanicsOnEmptySet(t *testing.T) {
	assert.Panics(t, func() { BuildTask(rewrite.NewRewriter(), nil) })
}
