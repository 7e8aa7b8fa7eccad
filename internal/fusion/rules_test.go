package fusion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/dominance"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/rewrite"
	"github.com/roach88/dataflow/internal/testutil"
)

func applyQuiet(t *testing.T, fn *ir.Func, patterns ...rewrite.Pattern) rewrite.Result {
	t.Helper()
	res, err := rewrite.ApplyGreedily(context.Background(), fn, rewrite.NewPatternSet(patterns...),
		rewrite.WithDeadOpErasure(true),
		rewrite.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.True(t, res.Converged)
	return res
}

func TestOutline_RejectsClusteredOperation(t *testing.T) {
	p := testutil.NewProgram("gate", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	p.Return(a.Result(0))

	rw := rewrite.NewRewriter()
	node := BuildTask(rw, []*ir.Operation{a})
	before := ir.FuncString(p.Fn)

	assert.False(t, NewOutlinePattern(ir.KindAdd).MatchAndRewrite(a, rw))
	assert.False(t, NewBackwardFusePattern(ir.KindAdd, dominance.New(p.Fn)).MatchAndRewrite(a, rw))
	assert.False(t, NewForwardFusePattern(ir.KindAdd, dominance.New(p.Fn)).MatchAndRewrite(a, rw))
	assert.Equal(t, before, ir.FuncString(p.Fn))
	assert.Same(t, node, a.ParentOp())
}

func TestOutline_ChainWrapsOnlyTheFusiblePrimitive(t *testing.T) {
	p := testutil.NewProgram("chain", testutil.Tensor)
	a := p.Op("a", "tosa.cast", p.Arg(0))
	b := p.Op("b", ir.KindAdd, a.Result(0))
	c := p.Op("c", "tosa.cast", b.Result(0))
	p.Return(c.Result(0))

	res := applyQuiet(t, p.Fn, NewOutlinePattern(ir.KindAdd))

	assert.Equal(t, 1, res.Rewrites)
	n1 := p.TaskOf("b")
	require.NotNil(t, n1)
	requireClosed(t, n1)
	assert.Nil(t, p.TaskOf("a"))
	assert.Nil(t, p.TaskOf("c"))
	assert.Equal(t, []*ir.Value{a.Result(0)}, n1.OperandValues())
	assert.Same(t, n1.Result(0), c.Operand(0))
}

func TestForwardFuse_PicksDominatingUser(t *testing.T) {
	p := testutil.NewProgram("forward", testutil.Tensor)
	r := p.Op("r", ir.KindReshape, p.Arg(0))
	x := p.Op("x", ir.KindAdd, r.Result(0))
	y := p.Op("y", ir.KindMul, r.Result(0))
	p.Return(x.Result(0), y.Result(0))

	dom := dominance.New(p.Fn)
	applyQuiet(t, p.Fn,
		NewOutlinePattern(ir.KindAdd),
		NewOutlinePattern(ir.KindMul),
		NewForwardFusePattern(ir.KindReshape, dom),
	)

	tx, ty := p.TaskOf("x"), p.TaskOf("y")
	require.NotNil(t, tx)
	require.NotNil(t, ty)
	assert.Same(t, tx, p.TaskOf("r"), "reshape joins the first consumer")
	assert.NotSame(t, tx, ty)
	requireClosed(t, tx)
	requireClosed(t, ty)
	assert.Equal(t, []*ir.Value{p.Arg(0)}, tx.OperandValues())
	require.Equal(t, 1, ty.NumOperands())
	assert.Same(t, tx, ty.Operand(0).DefiningOp())
}

func TestForwardFuse_DeclinesWithoutTaskUser(t *testing.T) {
	p := testutil.NewProgram("nouser", testutil.Tensor)
	r := p.Op("r", ir.KindReshape, p.Arg(0))
	p.Return(r.Result(0))

	assert.False(t, NewForwardFusePattern(ir.KindReshape, dominance.New(p.Fn)).MatchAndRewrite(r, rewrite.NewRewriter()))
}

func TestForwardFuse_DeclinesConsumerFedThroughInterveningOp(t *testing.T) {
	p := testutil.NewProgram("interleaved", testutil.Tensor)
	r := p.Op("r", ir.KindReshape, p.Arg(0))
	x := p.Op("x", "tosa.cast", r.Result(0))
	m := p.Op("m", ir.KindMul, r.Result(0), x.Result(0))
	p.Return(m.Result(0))

	applyQuiet(t, p.Fn,
		NewOutlinePattern(ir.KindMul),
		NewForwardFusePattern(ir.KindReshape, dominance.New(p.Fn)),
	)

	node := p.TaskOf("m")
	require.NotNil(t, node)
	assert.Nil(t, p.TaskOf("r"))
	assert.Equal(t, []string{ir.KindReshape, "tosa.cast", ir.KindTask, ir.KindReturn}, testutil.Kinds(p.Fn.Entry()))
	assert.Equal(t, []*ir.Value{r.Result(0), x.Result(0)}, node.OperandValues())
	assert.Empty(t, compiler.Validate(p.Fn))
	requireClosed(t, node)
}

func TestBackwardFuse_PicksDominatedProducer(t *testing.T) {
	p := testutil.NewProgram("backward", testutil.Tensor)
	m1 := p.Op("m1", ir.KindAdd, p.Arg(0))
	m2 := p.Op("m2", ir.KindMul, p.Arg(0))
	d := p.Op("d", ir.KindClamp, m1.Result(0), m2.Result(0))
	p.Return(d.Result(0))

	applyQuiet(t, p.Fn,
		NewOutlinePattern(ir.KindAdd),
		NewOutlinePattern(ir.KindMul),
		NewBackwardFusePattern(ir.KindClamp, dominance.New(p.Fn)),
	)

	n1, merged := p.TaskOf("m1"), p.TaskOf("d")
	require.NotNil(t, n1)
	require.NotNil(t, merged)
	assert.Same(t, merged, p.TaskOf("m2"))
	assert.NotSame(t, n1, merged)
	assert.Equal(t, []*ir.Operation{m1, n1.Body().Terminator()}, n1.Body().Operations())
	assert.Contains(t, merged.OperandValues(), n1.Result(0))
	assert.Equal(t, []*ir.Operation{m2, d, merged.Body().Terminator()}, merged.Body().Operations())
	requireClosed(t, n1)
	requireClosed(t, merged)
}

func TestBackwardFuse_DeclinesProducerFedThroughInterveningOp(t *testing.T) {
	p := testutil.NewProgram("interleaved", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	x := p.Op("x", "tosa.cast", a.Result(0))
	tr := p.Op("tr", ir.KindTranspose, x.Result(0), a.Result(0))
	p.Return(tr.Result(0))

	applyQuiet(t, p.Fn,
		NewOutlinePattern(ir.KindAdd),
		NewBackwardFusePattern(ir.KindTranspose, dominance.New(p.Fn)),
	)

	node := p.TaskOf("a")
	require.NotNil(t, node)
	assert.Nil(t, p.TaskOf("tr"))
	assert.Equal(t, []string{ir.KindTask, "tosa.cast", ir.KindTranspose, ir.KindReturn}, testutil.Kinds(p.Fn.Entry()))
	assert.Same(t, node.Result(0), x.Operand(0))
	assert.Empty(t, compiler.Validate(p.Fn))
	requireClosed(t, node)
}

func TestBackwardFuse_FallsBackToLegalProducer(t *testing.T) {
	p := testutil.NewProgram("fallback", testutil.Tensor)
	m1 := p.Op("m1", ir.KindAdd, p.Arg(0))
	m2 := p.Op("m2", ir.KindMul, p.Arg(0))
	x := p.Op("x", "tosa.cast", m2.Result(0))
	d := p.Op("d", ir.KindClamp, m1.Result(0), m2.Result(0), x.Result(0))
	p.Return(d.Result(0))

	applyQuiet(t, p.Fn,
		NewOutlinePattern(ir.KindAdd),
		NewOutlinePattern(ir.KindMul),
		NewBackwardFusePattern(ir.KindClamp, dominance.New(p.Fn)),
	)

	merged, other := p.TaskOf("d"), p.TaskOf("m2")
	require.NotNil(t, merged)
	require.NotNil(t, other)
	assert.Same(t, merged, p.TaskOf("m1"))
	assert.NotSame(t, merged, other)
	assert.Equal(t, []string{ir.KindTask, "tosa.cast", ir.KindTask, ir.KindReturn}, testutil.Kinds(p.Fn.Entry()))
	assert.Empty(t, compiler.Validate(p.Fn))
	requireClosed(t, merged)
	requireClosed(t, other)
}

func TestBackwardFuse_DeclinesWithoutTaskProducer(t *testing.T) {
	p := testutil.NewProgram("noproducer", testutil.Tensor)
	d := p.Op("d", ir.KindClamp, p.Arg(0))
	p.Return(d.Result(0))

	assert.False(t, NewBackwardFusePattern(ir.KindClamp, dominance.New(p.Fn)).MatchAndRewrite(d, rewrite.NewRewriter()))
}

func TestConstReplicate_OneClonePerConsumingTask(t *testing.T) {
	p := testutil.NewProgram("shared", testutil.Tensor)
	k := p.Const("k")
	pp := p.Op("p", ir.KindAdd, p.Arg(0), k.Result(0))
	q := p.Op("q", ir.KindMul, p.Arg(0), k.Result(0))
	p.Return(pp.Result(0), q.Result(0))

	applyQuiet(t, p.Fn, NewOutlinePattern(ir.KindAdd), NewOutlinePattern(ir.KindMul))
	res := applyQuiet(t, p.Fn, NewConstReplicatePattern(ir.KindConst))

	assert.Equal(t, 1, res.Erased, "the original constant is erased once unused")
	assert.Nil(t, k.Block())
	assert.Equal(t, 0, CountUnclustered(p.Fn, ir.KindConst))

	tasks := testutil.Tasks(p.Fn)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		requireClosed(t, task)
		assert.Equal(t, []*ir.Value{p.Arg(0)}, task.OperandValues())
		ops := task.Body().Operations()
		require.Len(t, ops, 3)
		assert.Equal(t, ir.KindConst, ops[0].Kind())
		assert.Equal(t, k.Attrs(), ops[0].Attrs())
		assert.NotSame(t, k, ops[0])
	}
	assert.NotSame(t, tasks[0].Body().Front(), tasks[1].Body().Front())
}

func TestConstReplicate_TaskUsingConstantTwice(t *testing.T) {
	p := testutil.NewProgram("twice", testutil.Tensor)
	k := p.Const("k")
	a := p.Op("a", ir.KindAdd, k.Result(0), k.Result(0))
	p.Return(a.Result(0))

	applyQuiet(t, p.Fn, NewOutlinePattern(ir.KindAdd))
	applyQuiet(t, p.Fn, NewConstReplicatePattern(ir.KindConst))

	tasks := testutil.Tasks(p.Fn)
	require.Len(t, tasks, 1)
	requireClosed(t, tasks[0])
	assert.Zero(t, tasks[0].NumOperands())
	assert.Nil(t, k.Block())
	assert.Equal(t, []string{ir.KindTask, ir.KindReturn}, testutil.Kinds(p.Fn.Entry()))
}

func TestConstReplicate_IgnoresNonTaskUsers(t *testing.T) {
	p := testutil.NewProgram("plain", testutil.Tensor)
	k := p.Const("k")
	a := p.Op("a", "tosa.cast", k.Result(0))
	p.Return(a.Result(0))

	assert.False(t, NewConstReplicatePattern(ir.KindConst).MatchAndRewrite(k, rewrite.NewRewriter()))
	assert.Empty(t, testutil.Tasks(p.Fn))
}
