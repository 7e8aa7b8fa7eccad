package compiler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/testutil"
)

// appendTask appends a task capturing inputs, with a body argument per
// input, and returns it with its body.
func appendTask(b *ir.Block, inputs []*ir.Value, results ...ir.Type) (*ir.Operation, *ir.Block) {
	argTypes := make([]ir.Type, len(inputs))
	for i, in := range inputs {
		argTypes[i] = in.Type()
	}
	body := ir.NewBlock(argTypes...)
	task := ir.NewBuilderAtEnd(b).Create(ir.KindTask, inputs, results, nil)
	task.SetBody(body)
	return task, body
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_StraightLine(t *testing.T) {
	p := testutil.NewProgram("ok", testutil.Tensor)
	k := p.Const("k")
	a := p.Op("a", ir.KindAdd, p.Arg(0), k.Result(0))
	p.Return(a.Result(0))

	assert.Empty(t, Validate(p.Fn))
}

func TestValidate_FusedFunction(t *testing.T) {
	p := testutil.NewProgram("fused", testutil.Tensor)
	k := p.Const("k")
	a := p.Op("a", ir.KindConv2D, p.Arg(0), k.Result(0))
	b := p.Op("b", ir.KindClamp, a.Result(0))
	c := p.Op("c", ir.KindTranspose, b.Result(0))
	d := p.Op("d", ir.KindAdd, c.Result(0), p.Arg(0))
	p.Return(d.Result(0))

	_, err := fusion.Run(context.Background(), p.Fn, fusion.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	assert.Empty(t, Validate(p.Fn))
}

func TestValidate_MissingTerminator(t *testing.T) {
	p := testutil.NewProgram("open", testutil.Tensor)
	p.Op("a", ir.KindAdd, p.Arg(0))

	errs := Validate(p.Fn)

	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingTerminator, errs[0].Code)
	assert.Equal(t, "entry", errs[0].Field)
}

func TestValidate_TerminatorInTheMiddle(t *testing.T) {
	p := testutil.NewProgram("middle", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	p.Return(a.Result(0))
	p.Op("b", ir.KindClamp, a.Result(0))

	errs := Validate(p.Fn)

	assert.Equal(t, []string{ErrMissingTerminator, ErrMisplacedTerminator}, codes(errs))
	assert.Equal(t, "entry[1]", errs[1].Field)
}

func TestValidate_WrongTerminatorKind(t *testing.T) {
	p := testutil.NewProgram("yield", testutil.Tensor)
	ir.NewBuilderAtEnd(p.Fn.Entry()).CreateYield(p.Arg(0))

	errs := Validate(p.Fn)

	require.Len(t, errs, 1)
	assert.Equal(t, ErrMisplacedTerminator, errs[0].Code)
	assert.Equal(t, "expected func.return, found dataflow.yield", errs[0].Message)
}

func TestValidate_NullOperand(t *testing.T) {
	p := testutil.NewProgram("null", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	p.Return(a.Result(0))
	a.SetOperands([]*ir.Value{nil})

	errs := Validate(p.Fn)

	require.Len(t, errs, 1)
	assert.Equal(t, ErrNullOperand, errs[0].Code)
	assert.Equal(t, "entry[0]", errs[0].Field)
}

func TestValidate_UseBeforeDef(t *testing.T) {
	p := testutil.NewProgram("order", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	b := p.Op("b", ir.KindClamp, a.Result(0))
	p.Return(b.Result(0))
	a.SetOperands([]*ir.Value{b.Result(0)})

	errs := Validate(p.Fn)

	require.Len(t, errs, 1)
	assert.Equal(t, ErrUseBeforeDef, errs[0].Code)
	assert.Equal(t, "entry[0]", errs[0].Field)
}

func TestValidate_SelfUse(t *testing.T) {
	p := testutil.NewProgram("self", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	p.Return(a.Result(0))
	a.SetOperands([]*ir.Value{a.Result(0)})

	assert.Equal(t, []string{ErrUseBeforeDef}, codes(Validate(p.Fn)))
}

func TestValidate_UncapturedValue(t *testing.T) {
	p := testutil.NewProgram("leak", testutil.Tensor)
	k := p.Const("k")
	task, body := appendTask(p.Fn.Entry(), nil, testutil.Tensor)
	inner := ir.NewBuilderAtEnd(body).Create(ir.KindAdd, []*ir.Value{k.Result(0)}, []ir.Type{testutil.Tensor}, nil)
	ir.NewBuilderAtEnd(body).CreateYield(inner.Result(0))
	p.Return(task.Result(0))

	errs := Validate(p.Fn)

	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnclosedBoundary, errs[0].Code)
	assert.Equal(t, "entry[1].body[0]", errs[0].Field)
}

func TestValidate_ClosedTask(t *testing.T) {
	p := testutil.NewProgram("closed", testutil.Tensor)
	k := p.Const("k")
	task, body := appendTask(p.Fn.Entry(), []*ir.Value{k.Result(0)}, testutil.Tensor)
	inner := ir.NewBuilderAtEnd(body).Create(ir.KindAdd, []*ir.Value{body.Argument(0)}, []ir.Type{testutil.Tensor}, nil)
	ir.NewBuilderAtEnd(body).CreateYield(inner.Result(0))
	p.Return(task.Result(0))

	assert.Empty(t, Validate(p.Fn))
}

func TestValidate_TaskStructure(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *testutil.Program)
		code  string
		field string
		msg   string
	}{
		{
			name: "yield arity",
			build: func(p *testutil.Program) {
				task, body := appendTask(p.Fn.Entry(), nil, testutil.Tensor)
				ir.NewBuilderAtEnd(body).CreateYield()
				p.Return(task.Result(0))
			},
			code:  ErrYieldMismatch,
			field: "entry[0]",
			msg:   "yield carries 0 values but dataflow.task has 1 results",
		},
		{
			name: "yield type",
			build: func(p *testutil.Program) {
				task, body := appendTask(p.Fn.Entry(), []*ir.Value{p.Arg(0)}, "tensor<8xf32>")
				ir.NewBuilderAtEnd(body).CreateYield(body.Argument(0))
				p.Return(task.Result(0))
			},
			code:  ErrYieldMismatch,
			field: "entry[0]",
			msg:   "output 0 has type tensor<4xf32> but result has type tensor<8xf32>",
		},
		{
			name: "capture count",
			build: func(p *testutil.Program) {
				task := ir.NewBuilderAtEnd(p.Fn.Entry()).Create(ir.KindTask, []*ir.Value{p.Arg(0)}, nil, nil)
				body := ir.NewBlock()
				task.SetBody(body)
				ir.NewBuilderAtEnd(body).CreateYield()
				p.Return()
			},
			code:  ErrCaptureMismatch,
			field: "entry[0]",
			msg:   "task captures 1 values but its body has 0 arguments",
		},
		{
			name: "capture type",
			build: func(p *testutil.Program) {
				task := ir.NewBuilderAtEnd(p.Fn.Entry()).Create(ir.KindTask, []*ir.Value{p.Arg(0)}, nil, nil)
				body := ir.NewBlock("tensor<8xf32>")
				task.SetBody(body)
				ir.NewBuilderAtEnd(body).CreateYield()
				p.Return()
			},
			code:  ErrCaptureMismatch,
			field: "entry[0]",
			msg:   "input 0 has type tensor<4xf32> but body argument has type tensor<8xf32>",
		},
		{
			name: "nested task",
			build: func(p *testutil.Program) {
				outer, outerBody := appendTask(p.Fn.Entry(), nil, testutil.Tensor)
				inner, innerBody := appendTask(outerBody, nil, testutil.Tensor)
				k := ir.NewBuilderAtEnd(innerBody).Create(ir.KindConst, nil, []ir.Type{testutil.Tensor}, nil)
				ir.NewBuilderAtEnd(innerBody).CreateYield(k.Result(0))
				ir.NewBuilderAtEnd(outerBody).CreateYield(inner.Result(0))
				p.Return(outer.Result(0))
			},
			code:  ErrNestedTask,
			field: "entry[0].body[0]",
			msg:   "task nodes must not be nested",
		},
		{
			name: "task without body",
			build: func(p *testutil.Program) {
				task := ir.NewBuilderAtEnd(p.Fn.Entry()).Create(ir.KindTask, nil, []ir.Type{testutil.Tensor}, nil)
				p.Return(task.Result(0))
			},
			code:  ErrMissingBody,
			field: "entry[0]",
			msg:   "dataflow.task requires a body",
		},
		{
			name: "plain operation with body",
			build: func(p *testutil.Program) {
				a := p.Op("a", ir.KindAdd, p.Arg(0))
				a.SetBody(ir.NewBlock())
				p.Return(a.Result(0))
			},
			code:  ErrMissingBody,
			field: "entry[0]",
			msg:   "tosa.add must not have a body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewProgram("f", testutil.Tensor)
			tt.build(p)

			errs := Validate(p.Fn)

			require.Len(t, errs, 1, "errors: %v", errs)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.Equal(t, tt.msg, errs[0].Message)
		})
	}
}

func TestValidate_StrayOperationAfterWrap(t *testing.T) {
	p := testutil.NewProgram("stray", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	ret := p.Return(a.Result(0))
	require.NotNil(t, fusion.WrapWithSchedule(p.Fn.Entry()))

	ir.NewBuilderBefore(ret).Create(ir.KindConst, nil, []ir.Type{testutil.Tensor}, nil)

	errs := Validate(p.Fn)

	require.Len(t, errs, 1)
	assert.Equal(t, ErrStrayOperation, errs[0].Code)
	assert.Equal(t, "entry[1]", errs[0].Field)
	assert.Equal(t, "tosa.const is outside the schedule", errs[0].Message)
}

func TestValidate_TwoSchedules(t *testing.T) {
	p := testutil.NewProgram("twice", testutil.Tensor)
	a := p.Op("a", ir.KindAdd, p.Arg(0))
	p.Return(a.Result(0))
	sched := fusion.WrapWithSchedule(p.Fn.Entry())
	require.NotNil(t, sched)

	extra := ir.NewBuilderBefore(sched).Create(ir.KindSchedule, nil, nil, nil)
	body := ir.NewBlock()
	extra.SetBody(body)
	ir.NewBuilderAtEnd(body).CreateYield()

	errs := Validate(p.Fn)

	assert.Equal(t, []string{ErrMisplacedSchedule}, codes(errs))
	assert.Equal(t, "found 2 schedules, expected one", errs[0].Message)
}

func TestValidationErrorFormatting(t *testing.T) {
	err := ValidationError{Field: "entry[0]", Message: "boom", Code: ErrNullOperand}
	assert.Equal(t, "[E102] entry[0]: boom", err.Error())

	err.Line = 3
	assert.Equal(t, "[E102] line 3: entry[0]: boom", err.Error())
}
