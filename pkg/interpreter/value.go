package interpreter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"hopvm/pkg/bytecode"
)

type ValueKind int

const (
	KindNone ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindList
	KindDict
	KindFunction
	KindNative
	KindModule
	KindIterator
)

var kindNames = [...]string{
	KindNone:     "NoneType",
	KindInt:      "int",
	KindFloat:    "float",
	KindBool:     "bool",
	KindString:   "str",
	KindList:     "list",
	KindDict:     "dict",
	KindFunction: "function",
	KindNative:   "builtin",
	KindModule:   "module",
	KindIterator: "iterator",
}

func (k ValueKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value represents a dynamically-typed value in the interpreter.
// Lists, dicts and iterators are reference objects shared between copies of a Value.
type Value struct {
	Kind ValueKind
	I64  int64
	F64  float64
	Bool bool
	Str  string

	List   *List
	Dict   *Dict
	Fn     *Function
	Native *Native
	Module *Module
	Iter   *Iterator
}

// List is a mutable sequence
type List struct {
	Items []Value
}

// Function is a user function defined by MAKE_FUNCTION
type Function struct {
	Name  string
	Index int // position in the module code object's function table
	Code  *bytecode.CodeObject
}

// NativeFunc implements a builtin or library function
type NativeFunc func(i *Interpreter, args []Value) (Value, error)

// Native is a Go-implemented callable. Name is qualified for library members ("math.sqrt").
type Native struct {
	Name string
	Fn   NativeFunc
}

// Module is an imported library
type Module struct {
	Name    string
	Members map[string]Value
}

// Iterator walks the items of a list; strings and dicts are materialized into a list first.
type Iterator struct {
	Seq *List
	Pos int
}

// Next returns the next item, or false once the sequence is exhausted
func (it *Iterator) Next() (Value, bool) {
	if it.Pos >= len(it.Seq.Items) {
		return Value{}, false
	}
	v := it.Seq.Items[it.Pos]
	it.Pos++
	return v, true
}

// None is the None value.
var None = Value{Kind: KindNone}

// NewInt creates a new integer Value.
func NewInt(i int64) Value {
	return Value{Kind: KindInt, I64: i}
}

// NewFloat creates a new float Value.
func NewFloat(f float64) Value {
	return Value{Kind: KindFloat, F64: f}
}

// NewBool creates a new boolean Value.
func NewBool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// NewString creates a new string Value.
func NewString(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// NewList creates a list Value owning items.
func NewList(items ...Value) Value {
	return Value{Kind: KindList, List: &List{Items: items}}
}

// NewDictValue wraps a dict.
func NewDictValue(d *Dict) Value {
	return Value{Kind: KindDict, Dict: d}
}

// NewNative creates a builtin function Value.
func NewNative(name string, fn NativeFunc) Value {
	return Value{Kind: KindNative, Native: &Native{Name: name, Fn: fn}}
}

// NewModuleValue wraps a module.
func NewModuleValue(m *Module) Value {
	return Value{Kind: KindModule, Module: m}
}

// NewFunction wraps the function at index idx of the module code object.
func NewFunction(code *bytecode.CodeObject, idx int) Value {
	fn := code.Functions[idx]
	return Value{Kind: KindFunction, Fn: &Function{Name: fn.Name, Index: idx, Code: fn}}
}

// fromConst converts a constant table entry.
func fromConst(c bytecode.Const) Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return NewInt(c.I64)
	case bytecode.ConstFloat:
		return NewFloat(c.F64)
	case bytecode.ConstBool:
		return NewBool(c.Bool)
	case bytecode.ConstString:
		return NewString(c.Str)
	default:
		return None
	}
}

// String renders the value the way print shows it.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	default:
		return v.Repr()
	}
}

// Repr renders the value the way it appears inside containers. A container
// reached again while it is being rendered shows as [...] or {...}.
func (v Value) Repr() string {
	return v.repr(nil)
}

func (v Value) repr(active map[any]bool) string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return formatFloat(v.F64)
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindString:
		return "'" + strings.ReplaceAll(v.Str, "'", `\'`) + "'"
	case KindList:
		if active[v.List] {
			return "[...]"
		}
		active = enter(active, v.List)
		defer delete(active, v.List)

		parts := make([]string, len(v.List.Items))
		for idx, item := range v.List.Items {
			parts[idx] = item.repr(active)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		if active[v.Dict] {
			return "{...}"
		}
		active = enter(active, v.Dict)
		defer delete(active, v.Dict)

		parts := make([]string, 0, v.Dict.Len())
		for idx, k := range v.Dict.keys {
			parts = append(parts, k.repr(active)+": "+v.Dict.vals[idx].repr(active))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return "<function " + v.Fn.Name + ">"
	case KindNative:
		return "<builtin " + v.Native.Name + ">"
	case KindModule:
		return "<module " + v.Module.Name + ">"
	case KindIterator:
		return "<iterator>"
	default:
		return "<unknown>"
	}
}

func enter(active map[any]bool, container any) map[any]bool {
	if active == nil {
		active = make(map[any]bool)
	}
	active[container] = true
	return active
}

// floatToInt truncates f toward zero, faulting when f has no int64 value.
func floatToInt(f float64) (int64, error) {
	switch {
	case math.IsNaN(f):
		return 0, fmt.Errorf("%w: cannot convert float NaN to integer", ErrTypeMismatch)
	case math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64:
		return 0, fmt.Errorf("%w: cannot convert float %s to integer", ErrOverflow, formatFloat(f))
	}
	return int64(f), nil
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// IsNumber reports whether v takes part in arithmetic.
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat || v.Kind == KindBool
}

// AsFloat64 converts the value to float64 if possible.
func (v Value) AsFloat64() (float64, error) {
	switch v.Kind {
	case KindFloat:
		return v.F64, nil
	case KindInt:
		return float64(v.I64), nil
	case KindBool:
		if v.Bool {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %v to float", ErrTypeMismatch, v.Kind)
	}
}

// AsInt64 converts the value to int64 if possible.
func (v Value) AsInt64() (int64, error) {
	switch v.Kind {
	case KindInt:
		return v.I64, nil
	case KindBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: cannot use %v as an integer", ErrTypeMismatch, v.Kind)
	}
}

// Truthy reports the boolean value of v used by conditional jumps.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNone:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.I64 != 0
	case KindFloat:
		return v.F64 != 0
	case KindString:
		return v.Str != ""
	case KindList:
		return len(v.List.Items) > 0
	case KindDict:
		return v.Dict.Len() > 0
	default:
		return true
	}
}

// Equal compares two values structurally. Numbers compare across kinds. A
// pair of containers already under comparison is taken as equal, so cyclic
// values terminate.
func Equal(a, b Value) bool {
	return equal(a, b, nil)
}

type containerPair struct{ a, b any }

func equal(a, b Value, active map[containerPair]bool) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.Kind == KindFloat || b.Kind == KindFloat {
			af, _ := a.AsFloat64()
			bf, _ := b.AsFloat64()
			return af == bf
		}
		ai, _ := a.AsInt64()
		bi, _ := b.AsInt64()
		return ai == bi
	}
	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindNone:
		return true
	case KindString:
		return a.Str == b.Str
	case KindList:
		if a.List == b.List {
			return true
		}
		if len(a.List.Items) != len(b.List.Items) {
			return false
		}
		pair := containerPair{a.List, b.List}
		if active[pair] {
			return true
		}
		if active == nil {
			active = make(map[containerPair]bool)
		}
		active[pair] = true
		defer delete(active, pair)

		for idx := range a.List.Items {
			if !equal(a.List.Items[idx], b.List.Items[idx], active) {
				return false
			}
		}
		return true
	case KindDict:
		if a.Dict == b.Dict {
			return true
		}
		if a.Dict.Len() != b.Dict.Len() {
			return false
		}
		pair := containerPair{a.Dict, b.Dict}
		if active[pair] {
			return true
		}
		if active == nil {
			active = make(map[containerPair]bool)
		}
		active[pair] = true
		defer delete(active, pair)

		for idx, k := range a.Dict.keys {
			other, ok, _ := b.Dict.Get(k)
			if !ok || !equal(a.Dict.vals[idx], other, active) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.Fn.Index == b.Fn.Index
	case KindNative:
		return a.Native.Name == b.Native.Name
	case KindModule:
		return a.Module.Name == b.Module.Name
	case KindIterator:
		return a.Iter == b.Iter
	default:
		return false
	}
}

// Dict is an insertion-ordered mapping with hashable keys (None, bool, int, float, str).
type Dict struct {
	keys  []Value
	vals  []Value
	index map[string]int
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{index: make(map[string]int)}
}

func hashKey(k Value) (string, error) {
	switch k.Kind {
	case KindNone:
		return "n", nil
	case KindBool, KindInt:
		i, _ := k.AsInt64()
		return "i" + strconv.FormatInt(i, 10), nil
	case KindFloat:
		if k.F64 == math.Trunc(k.F64) && math.Abs(k.F64) < 1e18 {
			return "i" + strconv.FormatInt(int64(k.F64), 10), nil
		}
		return "f" + strconv.FormatFloat(k.F64, 'g', -1, 64), nil
	case KindString:
		return "s" + k.Str, nil
	default:
		return "", fmt.Errorf("%w: unhashable type %v", ErrTypeMismatch, k.Kind)
	}
}

// Get looks up k.
func (d *Dict) Get(k Value) (Value, bool, error) {
	h, err := hashKey(k)
	if err != nil {
		return Value{}, false, err
	}
	idx, ok := d.index[h]
	if !ok {
		return Value{}, false, nil
	}
	return d.vals[idx], true, nil
}

// Set binds k to v, keeping the original insertion position of k.
func (d *Dict) Set(k, v Value) error {
	h, err := hashKey(k)
	if err != nil {
		return err
	}
	if idx, ok := d.index[h]; ok {
		d.vals[idx] = v
		return nil
	}
	d.index[h] = len(d.keys)
	d.keys = append(d.keys, k)
	d.vals = append(d.vals, v)
	return nil
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []Value {
	return append([]Value(nil), d.keys...)
}
