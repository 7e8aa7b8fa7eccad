package testutil

import (
	"fmt"

	"github.com/roach88/dataflow/internal/ir"
)

// Tensor is the result type used by fixtures unless one is given.
const Tensor ir.Type = "tensor<4xf32>"

// Program builds straight-line test functions by name.
//
//	p := NewProgram("chain", Tensor)
//	a := p.Op("a", ir.KindConv2D, p.Arg(0))
//	b := p.Op("b", ir.KindClamp, a.Result(0))
//	p.Return(b.Result(0))
type Program struct {
	Fn  *ir.Func
	b   *ir.Builder
	ops map[string]*ir.Operation
}

// NewProgram creates an empty function with the given argument types.
func NewProgram(name string, args ...ir.Type) *Program {
	fn := ir.NewFunc(name, args...)
	return &Program{
		Fn:  fn,
		b:   ir.NewBuilderAtEnd(fn.Entry()),
		ops: make(map[string]*ir.Operation),
	}
}

// Arg returns function argument i.
func (p *Program) Arg(i int) *ir.Value {
	return p.Fn.Arguments()[i]
}

// Op appends an operation of kind with one Tensor result and records it
// under name.
func (p *Program) Op(name, kind string, operands ...*ir.Value) *ir.Operation {
	return p.OpWithAttrs(name, kind, nil, operands...)
}

// OpWithAttrs is Op with attributes.
func (p *Program) OpWithAttrs(name, kind string, attrs ir.Attrs, operands ...*ir.Value) *ir.Operation {
	if _, dup := p.ops[name]; dup {
		panic(fmt.Sprintf("testutil: duplicate op name %q", name))
	}
	op := p.b.Create(kind, operands, []ir.Type{Tensor}, attrs)
	p.ops[name] = op
	return op
}

// Const appends a tosa.const.
func (p *Program) Const(name string) *ir.Operation {
	return p.OpWithAttrs(name, ir.KindConst, ir.Attrs{"value": ir.AttrString("dense<1.0>")})
}

// Return appends the terminator.
func (p *Program) Return(vals ...*ir.Value) *ir.Operation {
	return p.b.CreateReturn(vals...)
}

// Get returns the operation recorded under name.
func (p *Program) Get(name string) *ir.Operation {
	op, ok := p.ops[name]
	if !ok {
		panic(fmt.Sprintf("testutil: no op named %q", name))
	}
	return op
}

// TaskOf returns the task node enclosing the named operation, or nil.
func (p *Program) TaskOf(name string) *ir.Operation {
	return p.Get(name).EnclosingOfKind(ir.KindTask)
}

// Tasks returns the task nodes of the function in walk order.
func Tasks(fn *ir.Func) []*ir.Operation {
	var out []*ir.Operation
	fn.Walk(func(op *ir.Operation) {
		if op.Kind() == ir.KindTask {
			out = append(out, op)
		}
	})
	return out
}

// Kinds lists the operation kinds directly in b, in order.
func Kinds(b *ir.Block) []string {
	var out []string
	for _, op := range b.Operations() {
		out = append(out, op.Kind())
	}
	return out
}
