package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dataflow/internal/ir"
)

// CompileFunc builds a function from its CUE description.
// Uses the CUE SDK's Go API directly.
//
// The CUE value should be the function struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	fn, err := CompileFunc(v.LookupPath(cue.MakePath(cue.Str("func"), cue.Str("forward"))))
//
// with src of the form
//
//	func: forward: {
//		args: [{name: "x", type: "tensor<1x16xf32>"}]
//		ops: [
//			{kind: "tosa.const", results: [{name: "w", type: "tensor<16x16xf32>"}], attrs: value: "dense<0.5>"},
//			{kind: "tosa.matmul", operands: ["x", "w"], results: [{name: "y", type: "tensor<1x16xf32>"}]},
//		]
//		return: ["y"]
//	}
//
// Names are local to the function and must be unique across arguments and
// results. Operands must name an argument or an earlier result.
func CompileFunc(v cue.Value) (*ir.Func, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "func", Message: "function not found", Pos: v.Pos()}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	if labels := v.Path().Selectors(); len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}
	if name == "" {
		return nil, &CompileError{Field: "func", Message: "function name is required", Pos: v.Pos()}
	}

	args, err := parseNamedTypes(v, "args")
	if err != nil {
		return nil, err
	}
	argTypes := make([]ir.Type, len(args))
	for i, a := range args {
		argTypes[i] = a.typ
	}
	fn := ir.NewFunc(name, argTypes...)

	scope := make(map[string]*ir.Value)
	for i, a := range args {
		if _, dup := scope[a.name]; dup {
			return nil, &CompileError{
				Field:   fmt.Sprintf("args[%d].name", i),
				Message: fmt.Sprintf("duplicate value name %q", a.name),
				Pos:     a.pos,
			}
		}
		scope[a.name] = fn.Arguments()[i]
	}

	bl := ir.NewBuilderAtEnd(fn.Entry())
	if err := compileOps(v, bl, scope); err != nil {
		return nil, err
	}

	retVal := v.LookupPath(cue.ParsePath("return"))
	if !retVal.Exists() {
		return nil, &CompileError{Field: "return", Message: "return is required", Pos: v.Pos()}
	}
	rets, err := resolveNames(retVal, "return", scope)
	if err != nil {
		return nil, err
	}
	bl.CreateReturn(rets...)

	return fn, nil
}

type namedType struct {
	name string
	typ  ir.Type
	pos  token.Pos
}

// parseNamedTypes reads an optional list of {name, type} structs.
func parseNamedTypes(v cue.Value, field string) ([]namedType, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []namedType
	for i := 0; iter.Next(); i++ {
		elem := iter.Value()
		name, err := requiredString(elem, "name", fmt.Sprintf("%s[%d].name", field, i))
		if err != nil {
			return nil, err
		}
		typ, err := requiredString(elem, "type", fmt.Sprintf("%s[%d].type", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, namedType{name: name, typ: ir.Type(typ), pos: elem.Pos()})
	}
	return out, nil
}

func compileOps(v cue.Value, bl *ir.Builder, scope map[string]*ir.Value) error {
	opsVal := v.LookupPath(cue.ParsePath("ops"))
	if !opsVal.Exists() {
		return nil
	}
	iter, err := opsVal.List()
	if err != nil {
		return formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		opVal := iter.Value()
		field := fmt.Sprintf("ops[%d]", i)

		kind, err := requiredString(opVal, "kind", field+".kind")
		if err != nil {
			return err
		}
		if ir.IsTerminator(kind) || ir.IsCompound(kind) {
			return &CompileError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("%s cannot appear in an input program", kind),
				Pos:     opVal.Pos(),
			}
		}

		var operands []*ir.Value
		if operandsVal := opVal.LookupPath(cue.ParsePath("operands")); operandsVal.Exists() {
			operands, err = resolveNames(operandsVal, field+".operands", scope)
			if err != nil {
				return err
			}
		}

		results, err := parseNamedTypes(opVal, "results")
		if err != nil {
			return prefixField(err, field)
		}
		resultTypes := make([]ir.Type, len(results))
		for j, r := range results {
			resultTypes[j] = r.typ
		}

		var attrs ir.Attrs
		if attrsVal := opVal.LookupPath(cue.ParsePath("attrs")); attrsVal.Exists() {
			a, err := extractAttr(attrsVal, field+".attrs")
			if err != nil {
				return err
			}
			obj, ok := a.(ir.Attrs)
			if !ok {
				return &CompileError{Field: field + ".attrs", Message: "attrs must be a struct", Pos: attrsVal.Pos()}
			}
			attrs = obj
		}

		op := bl.Create(kind, operands, resultTypes, attrs)
		for j, r := range results {
			if _, dup := scope[r.name]; dup {
				return &CompileError{
					Field:   fmt.Sprintf("%s.results[%d].name", field, j),
					Message: fmt.Sprintf("duplicate value name %q", r.name),
					Pos:     r.pos,
				}
			}
			scope[r.name] = op.Result(j)
		}
	}
	return nil
}

// resolveNames maps a list of value names to values in scope.
func resolveNames(v cue.Value, field string, scope map[string]*ir.Value) ([]*ir.Value, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*ir.Value
	for i := 0; iter.Next(); i++ {
		name, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		val, ok := scope[name]
		if !ok {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("undefined value %q", name),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, val)
	}
	return out, nil
}

// extractAttr converts a concrete CUE value to an attribute.
// Floats are forbidden: tensor literals are carried as strings.
func extractAttr(v cue.Value, field string) (ir.Attr, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.AttrString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.AttrInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.AttrBool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.AttrArray{}
		for i := 0; iter.Next(); i++ {
			elem, err := extractAttr(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Attrs{}
		for iter.Next() {
			elem, err := extractAttr(iter.Value(), field+"."+iter.Label())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float attributes are forbidden - quote the literal, e.g. \"dense<0.5>\"",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported attribute kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Field: field, Message: name + " must be non-empty", Pos: fv.Pos()}
	}
	return s, nil
}

func prefixField(err error, prefix string) error {
	if ce, ok := err.(*CompileError); ok {
		cp := *ce
		cp.Field = prefix + "." + ce.Field
		return &cp
	}
	return err
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
