package ir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Attr is a sealed interface for operation attribute values.
// Only AttrString, AttrInt, AttrBool, AttrArray and Attrs implement it.
// There is no float attribute: numeric tensor payloads are strings.
type Attr interface {
	attr()
}

// AttrString is a string attribute.
type AttrString string

func (AttrString) attr() {}

// AttrInt is an integer attribute.
type AttrInt int64

func (AttrInt) attr() {}

// AttrBool is a boolean attribute.
type AttrBool bool

func (AttrBool) attr() {}

// AttrArray is an ordered list of attributes.
type AttrArray []Attr

func (AttrArray) attr() {}

// Attrs is a dictionary of named attributes.
// Use SortedKeys for deterministic iteration.
type Attrs map[string]Attr

func (Attrs) attr() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (a Attrs) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Clone returns a deep copy of the dictionary.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = cloneAttr(v)
	}
	return out
}

func cloneAttr(v Attr) Attr {
	switch val := v.(type) {
	case AttrArray:
		arr := make(AttrArray, len(val))
		for i, elem := range val {
			arr[i] = cloneAttr(elem)
		}
		return arr
	case Attrs:
		return val.Clone()
	default:
		return v
	}
}

// compareKeysRFC8785 orders strings by UTF-16 code units.
// Go's native string comparison is by UTF-8 bytes, which differs for
// characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// ToAttr converts a decoded Go value (from CUE, YAML or JSON) to an Attr.
// Floats and nulls are rejected.
func ToAttr(v any) (Attr, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null attributes are not allowed")
	case Attr:
		return val, nil
	case string:
		return AttrString(val), nil
	case bool:
		return AttrBool(val), nil
	case int:
		return AttrInt(val), nil
	case int64:
		return AttrInt(val), nil
	case float32, float64:
		return nil, fmt.Errorf("float attributes are not allowed: %v (use a string literal)", val)
	case []any:
		arr := make(AttrArray, len(val))
		for i, elem := range val {
			a, err := ToAttr(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = a
		}
		return arr, nil
	case map[string]any:
		obj := make(Attrs, len(val))
		for k, elem := range val {
			a, err := ToAttr(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = a
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type: %T", v)
	}
}

// FormatAttr renders an attribute the way the printer shows it.
func FormatAttr(v Attr) string {
	var sb strings.Builder
	writeAttr(&sb, v)
	return sb.String()
}

func writeAttr(sb *strings.Builder, v Attr) {
	switch val := v.(type) {
	case AttrString:
		sb.WriteString(strconv.Quote(string(val)))
	case AttrInt:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case AttrBool:
		sb.WriteString(strconv.FormatBool(bool(val)))
	case AttrArray:
		sb.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeAttr(sb, elem)
		}
		sb.WriteByte(']')
	case Attrs:
		sb.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(" = ")
			writeAttr(sb, val[k])
		}
		sb.WriteByte('}')
	default:
		fmt.Fprintf(sb, "<%T>", v)
	}
}
