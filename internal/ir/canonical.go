package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON.
// It is the only serialization used for fingerprints.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. Only Attr values, strings, ints, bools, []any and map[string]any
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case AttrString:
		return writeCanonicalString(buf, string(val))
	case string:
		return writeCanonicalString(buf, val)
	case AttrInt:
		fmt.Fprintf(buf, "%d", int64(val))
	case int:
		fmt.Fprintf(buf, "%d", val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case AttrBool:
		writeBool(buf, bool(val))
	case bool:
		writeBool(buf, val)
	case AttrArray:
		items := make([]any, len(val))
		for i, elem := range val {
			items[i] = elem
		}
		return writeCanonicalArray(buf, items)
	case []any:
		return writeCanonicalArray(buf, val)
	case Attrs:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = elem
		}
		return writeCanonicalObject(buf, m)
	case map[string]any:
		return writeCanonicalObject(buf, val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

// writeCanonicalString escapes only what RFC 8785 requires: control
// characters, backslash and quote. U+2028/U+2029 stay literal.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns \u2028 and \u2029 escapes back into the
// literal characters. An escape preceded by an odd number of backslashes
// is itself escaped text and is kept.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	backslashes := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\\' && backslashes%2 == 0 && i+5 < len(data) &&
			data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			backslashes = 0
			continue
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		out = append(out, c)
	}
	return out
}

func writeCanonicalArray(buf *bytes.Buffer, items []any) error {
	buf.WriteByte('[')
	for i, elem := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make(Attrs, len(obj))
	for k := range obj {
		keys[k] = AttrBool(true)
	}
	buf.WriteByte('{')
	for i, k := range keys.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// EncodeFunc converts f into a JSON-shaped tree using the printer's value
// names. Operations are objects with kind, operands, results, attrs and
// an optional body; the tree is suitable for MarshalCanonical.
func EncodeFunc(f *Func) map[string]any {
	n := newNamer()
	args := make([]any, 0, len(f.Arguments()))
	for _, arg := range f.Arguments() {
		args = append(args, map[string]any{"name": n.arg(arg), "type": string(arg.Type())})
	}
	return map[string]any{
		"name": f.Name,
		"args": args,
		"ops":  encodeOps(n, f.Entry()),
	}
}

func encodeOps(n *namer, b *Block) []any {
	ops := make([]any, 0, b.Len())
	for op := b.first; op != nil; op = op.next {
		ops = append(ops, encodeOp(n, op))
	}
	return ops
}

func encodeOp(n *namer, op *Operation) map[string]any {
	operands := make([]any, len(op.operands))
	for i, o := range op.operands {
		operands[i] = n.name(o.value)
	}
	results := make([]any, len(op.results))
	for i, r := range op.results {
		results[i] = map[string]any{"name": n.name(r), "type": string(r.typ)}
	}
	enc := map[string]any{
		"kind":     op.kind,
		"operands": operands,
		"results":  results,
	}
	if len(op.attrs) > 0 {
		enc["attrs"] = op.attrs
	}
	if op.body != nil {
		args := make([]any, len(op.body.args))
		for i, arg := range op.body.args {
			args[i] = map[string]any{"name": n.arg(arg), "type": string(arg.typ)}
		}
		enc["body"] = map[string]any{"args": args, "ops": encodeOps(n, op.body)}
	}
	return enc
}
