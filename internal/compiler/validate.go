package compiler

import (
	"fmt"

	"github.com/roach88/dataflow/internal/ir"
)

// Validation error codes (E100-E119)
const (
	// Block structure (E100-E101)
	ErrMissingTerminator   = "E100" // block does not end in a terminator
	ErrMisplacedTerminator = "E101" // terminator in the middle of a block or of the wrong kind

	// Def-use (E102-E104)
	ErrNullOperand      = "E102" // operand references no value
	ErrUseBeforeDef     = "E103" // operand defined after its use
	ErrUnclosedBoundary = "E104" // body reads a value it neither captured nor defined

	// Compound operations (E105-E110)
	ErrYieldMismatch     = "E105" // yield does not match the parent's results
	ErrCaptureMismatch   = "E106" // task operands do not match its body arguments
	ErrNestedTask        = "E107" // task nested inside a task
	ErrStrayOperation    = "E108" // operation outside the schedule after wrapping
	ErrMissingBody       = "E109" // compound operation without a body, or plain operation with one
	ErrMisplacedSchedule = "E110" // schedule not directly in the function, or more than one
)

// ValidationError represents a structural error in a function.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the structural invariants of fn, before or after the
// dataflow pass. Returns all errors found (does not fail-fast).
//
// Fields name operations by position: "entry[2].body[0]" is the first
// operation in the body of the third operation of the entry block.
func Validate(fn *ir.Func) []ValidationError {
	v := &validator{}
	v.block(fn.Entry(), "entry", ir.KindReturn)
	v.schedules(fn)
	return v.errs
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

// block checks b, whose terminator must be of kind term, and recurses
// into nested bodies.
func (v *validator) block(b *ir.Block, path, term string) {
	ops := b.Operations()
	if len(ops) == 0 || !ir.IsTerminator(ops[len(ops)-1].Kind()) {
		v.add(path, ErrMissingTerminator, "block must end in %s", term)
	}
	for i, op := range ops {
		field := fmt.Sprintf("%s[%d]", path, i)
		last := i == len(ops)-1

		if ir.IsTerminator(op.Kind()) {
			switch {
			case !last:
				v.add(field, ErrMisplacedTerminator, "%s must be the last operation of its block", op.Kind())
			case op.Kind() != term:
				v.add(field, ErrMisplacedTerminator, "expected %s, found %s", term, op.Kind())
			}
		}

		v.operands(op, field)

		if ir.IsCompound(op.Kind()) {
			v.compound(op, field)
		} else if op.Body() != nil {
			v.add(field, ErrMissingBody, "%s must not have a body", op.Kind())
		}
	}
}

func (v *validator) compound(op *ir.Operation, field string) {
	body := op.Body()
	if body == nil {
		v.add(field, ErrMissingBody, "%s requires a body", op.Kind())
		return
	}

	if op.Kind() == ir.KindTask && op.InTask() {
		v.add(field, ErrNestedTask, "task nodes must not be nested")
	}

	switch op.Kind() {
	case ir.KindTask:
		args := body.Arguments()
		if len(args) != op.NumOperands() {
			v.add(field, ErrCaptureMismatch, "task captures %d values but its body has %d arguments",
				op.NumOperands(), len(args))
		} else {
			for i, arg := range args {
				if in := op.Operand(i); in != nil && in.Type() != arg.Type() {
					v.add(field, ErrCaptureMismatch, "input %d has type %s but body argument has type %s",
						i, in.Type(), arg.Type())
				}
			}
		}
	case ir.KindSchedule:
		if op.NumOperands() != 0 || len(body.Arguments()) != 0 {
			v.add(field, ErrCaptureMismatch, "schedule must not capture values")
		}
	}

	v.block(body, field+".body", ir.KindYield)

	if yield := body.Terminator(); yield != nil && yield.Kind() == ir.KindYield {
		if yield.NumOperands() != op.NumResults() {
			v.add(field, ErrYieldMismatch, "yield carries %d values but %s has %d results",
				yield.NumOperands(), op.Kind(), op.NumResults())
			return
		}
		for i, out := range yield.OperandValues() {
			if out != nil && out.Type() != op.Result(i).Type() {
				v.add(field, ErrYieldMismatch, "output %d has type %s but result has type %s",
					i, out.Type(), op.Result(i).Type())
			}
		}
	}
}

// operands checks that every operand of op is a value visible at op.
func (v *validator) operands(op *ir.Operation, field string) {
	task := op.EnclosingOfKind(ir.KindTask)
	for i, val := range op.OperandValues() {
		if val == nil {
			v.add(field, ErrNullOperand, "%s operand %d references no value", op.Kind(), i)
			continue
		}
		if task != nil && !definedWithin(val, task) {
			v.add(field, ErrUnclosedBoundary, "%s operand %d reads a value from outside its task without capturing it",
				op.Kind(), i)
			continue
		}

		if val.IsBlockArgument() {
			if val.Owner().FindAncestorOpInBlock(op) == nil {
				v.add(field, ErrUnclosedBoundary, "%s operand %d reads an argument of a block that does not enclose it",
					op.Kind(), i)
			}
			continue
		}

		def := val.DefiningOp()
		if def.Block() == nil {
			v.add(field, ErrUnclosedBoundary, "%s operand %d reads the result of a detached %s", op.Kind(), i, def.Kind())
			continue
		}
		anc := def.Block().FindAncestorOpInBlock(op)
		switch {
		case anc == nil:
			v.add(field, ErrUnclosedBoundary, "%s operand %d reads a %s result from a body that does not enclose it",
				op.Kind(), i, def.Kind())
		case anc == def || !def.IsBeforeInBlock(anc):
			v.add(field, ErrUseBeforeDef, "%s operand %d is used before %s defines it", op.Kind(), i, def.Kind())
		}
	}
}

// definedWithin reports whether val is produced inside task's body.
func definedWithin(val *ir.Value, task *ir.Operation) bool {
	if val.IsBlockArgument() {
		owner := val.Owner().ParentOp()
		return owner != nil && (owner == task || task.IsAncestorOf(owner))
	}
	return task.IsAncestorOf(val.DefiningOp())
}

// schedules checks the shape of a wrapped function: at most one schedule,
// directly in the entry block, owning everything but the terminator.
func (v *validator) schedules(fn *ir.Func) {
	var found []*ir.Operation
	fn.Walk(func(op *ir.Operation) {
		if op.Kind() == ir.KindSchedule {
			found = append(found, op)
		}
	})
	if len(found) == 0 {
		return
	}
	if len(found) > 1 {
		v.add("entry", ErrMisplacedSchedule, "found %d schedules, expected one", len(found))
	}
	for _, s := range found {
		if s.Block() != fn.Entry() {
			v.add("entry", ErrMisplacedSchedule, "schedule must be directly in the function body")
		}
	}
	for i, op := range fn.Entry().Operations() {
		if op.Kind() != ir.KindSchedule && !ir.IsTerminator(op.Kind()) {
			v.add(fmt.Sprintf("entry[%d]", i), ErrStrayOperation, "%s is outside the schedule", op.Kind())
		}
	}
}
