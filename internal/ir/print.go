package ir

import (
	"fmt"
	"io"
	"strings"
)

// namer assigns printable names to values in print order:
// block arguments are %argN, results are %N.
type namer struct {
	names   map[*Value]string
	nextArg int
	nextRes int
}

func newNamer() *namer {
	return &namer{names: make(map[*Value]string)}
}

func (n *namer) arg(v *Value) string {
	if name, ok := n.names[v]; ok {
		return name
	}
	name := fmt.Sprintf("%%arg%d", n.nextArg)
	n.nextArg++
	n.names[v] = name
	return name
}

func (n *namer) name(v *Value) string {
	if v == nil {
		return "%<null>"
	}
	if name, ok := n.names[v]; ok {
		return name
	}
	if v.IsBlockArgument() {
		return n.arg(v)
	}
	name := fmt.Sprintf("%%%d", n.nextRes)
	n.nextRes++
	n.names[v] = name
	return name
}

// Print writes the textual form of f to w.
//
//	func @forward(%arg0: tensor<4xf32>) {
//	  %0 = dataflow.task(%arg0) : tensor<4xf32> {
//	  ^bb(%arg1: tensor<4xf32>):
//	    %1 = tosa.rsqrt(%arg1) : tensor<4xf32>
//	    dataflow.yield(%1)
//	  }
//	  func.return(%0)
//	}
func Print(w io.Writer, f *Func) error {
	p := &printer{n: newNamer()}
	p.printFunc(f)
	_, err := io.WriteString(w, p.sb.String())
	return err
}

// FuncString returns the textual form of f.
func FuncString(f *Func) string {
	var sb strings.Builder
	_ = Print(&sb, f)
	return sb.String()
}

type printer struct {
	sb strings.Builder
	n  *namer
}

func (p *printer) printFunc(f *Func) {
	fmt.Fprintf(&p.sb, "func @%s(", f.Name)
	for i, arg := range f.Arguments() {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		fmt.Fprintf(&p.sb, "%s: %s", p.n.arg(arg), arg.Type())
	}
	p.sb.WriteString(") {\n")
	p.printOps(f.Entry(), 1)
	p.sb.WriteString("}\n")
}

func (p *printer) printOps(b *Block, depth int) {
	for op := b.first; op != nil; op = op.next {
		p.printOp(op, depth)
	}
}

func (p *printer) printOp(op *Operation, depth int) {
	indent := strings.Repeat("  ", depth)
	p.sb.WriteString(indent)
	if len(op.results) > 0 {
		for i, r := range op.results {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(p.n.name(r))
		}
		p.sb.WriteString(" = ")
	}
	p.sb.WriteString(op.kind)
	p.sb.WriteByte('(')
	for i, o := range op.operands {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.sb.WriteString(p.n.name(o.value))
	}
	p.sb.WriteByte(')')
	if len(op.attrs) > 0 {
		p.sb.WriteByte(' ')
		writeAttr(&p.sb, op.attrs)
	}
	if len(op.results) > 0 {
		p.sb.WriteString(" : ")
		for i, r := range op.results {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(string(r.typ))
		}
	}
	if op.body == nil {
		p.sb.WriteByte('\n')
		return
	}
	p.sb.WriteString(" {\n")
	if len(op.body.args) > 0 {
		p.sb.WriteString(indent)
		p.sb.WriteString("^bb(")
		for i, arg := range op.body.args {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			fmt.Fprintf(&p.sb, "%s: %s", p.n.arg(arg), arg.typ)
		}
		p.sb.WriteString("):\n")
	}
	p.printOps(op.body, depth+1)
	p.sb.WriteString(indent)
	p.sb.WriteString("}\n")
}
