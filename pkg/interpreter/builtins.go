package interpreter

import (
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"

	"hopvm/pkg/bytecode"
)

var builtinTable = map[string]Value{
	"print":      NewNative("print", builtinPrint),
	"len":        NewNative("len", builtinLen),
	"range":      NewNative("range", builtinRange),
	"str":        NewNative("str", builtinStr),
	"int":        NewNative("int", builtinInt),
	"float":      NewNative("float", builtinFloat),
	"bool":       NewNative("bool", builtinBool),
	"abs":        NewNative("abs", builtinAbs),
	"min":        NewNative("min", builtinMinMax("min", -1)),
	"max":        NewNative("max", builtinMinMax("max", 1)),
	"sum":        NewNative("sum", builtinSum),
	"append":     NewNative("append", builtinAppend),
	"read_file":  NewNative("read_file", builtinReadFile),
	"read_lines": NewNative("read_lines", builtinReadLines),
}

// Builtins returns a fresh copy of the builtin bindings
func Builtins() map[string]Value {
	return maps.Clone(builtinTable)
}

func arity(args []Value, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("%w: expected %d arguments, got %d", ErrTypeMismatch, lo, len(args))
		}
		return fmt.Errorf("%w: expected %d to %d arguments, got %d", ErrTypeMismatch, lo, hi, len(args))
	}
	return nil
}

func builtinPrint(i *Interpreter, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for idx, a := range args {
		parts[idx] = a.String()
	}
	fmt.Fprintln(i.out, strings.Join(parts, " "))
	return None, nil
}

func builtinLen(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return Value{}, err
	}
	switch v := args[0]; v.Kind {
	case KindString:
		return NewInt(int64(len([]rune(v.Str)))), nil
	case KindList:
		return NewInt(int64(len(v.List.Items))), nil
	case KindDict:
		return NewInt(int64(v.Dict.Len())), nil
	default:
		return Value{}, fmt.Errorf("%w: object of type %v has no len()", ErrTypeMismatch, v.Kind)
	}
}

func builtinRange(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 3); err != nil {
		return Value{}, err
	}
	bounds := make([]int64, len(args))
	for idx, a := range args {
		n, err := a.AsInt64()
		if err != nil {
			return Value{}, err
		}
		bounds[idx] = n
	}

	start, stop, step := int64(0), bounds[0], int64(1)
	if len(bounds) > 1 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) > 2 {
		step = bounds[2]
	}
	if step == 0 {
		return Value{}, fmt.Errorf("%w: range() step must not be zero", ErrTypeMismatch)
	}

	count := rangeLen(start, stop, step)
	if count > MaxSequenceLen {
		return Value{}, fmt.Errorf("%w: range() of %d items", ErrOverflow, count)
	}
	items := make([]Value, count)
	n := start
	for idx := range items {
		items[idx] = NewInt(n)
		n += step
	}
	return NewList(items...), nil
}

// rangeLen counts the items of range(start, stop, step) without overflowing
func rangeLen(start, stop, step int64) uint64 {
	switch {
	case step > 0 && start < stop:
		return (uint64(stop)-uint64(start)-1)/uint64(step) + 1
	case step < 0 && start > stop:
		return (uint64(start)-uint64(stop)-1)/uint64(-step) + 1
	default:
		return 0
	}
}

func builtinStr(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return Value{}, err
	}
	return NewString(args[0].String()), nil
}

func builtinInt(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return Value{}, err
	}
	switch v := args[0]; v.Kind {
	case KindInt, KindBool:
		n, _ := v.AsInt64()
		return NewInt(n), nil
	case KindFloat:
		n, err := floatToInt(v.F64)
		if err != nil {
			return Value{}, err
		}
		return NewInt(n), nil
	case KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid literal for int(): %q", ErrTypeMismatch, v.Str)
		}
		return NewInt(n), nil
	default:
		return Value{}, fmt.Errorf("%w: int() argument must be a string or a number, not %v", ErrTypeMismatch, v.Kind)
	}
}

func builtinFloat(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return Value{}, err
	}
	v := args[0]
	if v.Kind == KindString {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: could not convert string to float: %q", ErrTypeMismatch, v.Str)
		}
		return NewFloat(f), nil
	}
	f, err := v.AsFloat64()
	if err != nil {
		return Value{}, err
	}
	return NewFloat(f), nil
}

func builtinBool(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return Value{}, err
	}
	return NewBool(args[0].Truthy()), nil
}

func builtinAbs(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return Value{}, err
	}
	switch v := args[0]; v.Kind {
	case KindFloat:
		if v.F64 < 0 {
			return NewFloat(-v.F64), nil
		}
		return v, nil
	case KindInt, KindBool:
		n, _ := v.AsInt64()
		if n < 0 {
			n = -n
		}
		return NewInt(n), nil
	default:
		return Value{}, fmt.Errorf("%w: bad operand type for abs(): %v", ErrTypeMismatch, v.Kind)
	}
}

// builtinMinMax keeps the item whose ordering against the current best equals sign
func builtinMinMax(name string, sign int) NativeFunc {
	return func(_ *Interpreter, args []Value) (Value, error) {
		items := args
		if len(args) == 1 && args[0].Kind == KindList {
			items = args[0].List.Items
		}
		if len(items) == 0 {
			return Value{}, fmt.Errorf("%w: %s() of an empty sequence", ErrTypeMismatch, name)
		}

		best := items[0]
		for _, v := range items[1:] {
			c, err := order("<", v, best)
			if err != nil {
				return Value{}, err
			}
			if c == sign {
				best = v
			}
		}
		return best, nil
	}
}

func builtinSum(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 1, 2); err != nil {
		return Value{}, err
	}
	if args[0].Kind != KindList {
		return Value{}, fmt.Errorf("%w: sum() expects a list, got %v", ErrTypeMismatch, args[0].Kind)
	}

	total := NewInt(0)
	if len(args) == 2 {
		total = args[1]
	}
	for _, v := range args[0].List.Items {
		var err error
		if total, err = evalBinary(bytecode.OpBinaryAdd, total, v); err != nil {
			return Value{}, err
		}
	}
	return total, nil
}

func builtinAppend(_ *Interpreter, args []Value) (Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return Value{}, err
	}
	if args[0].Kind != KindList {
		return Value{}, fmt.Errorf("%w: append() expects a list, got %v", ErrTypeMismatch, args[0].Kind)
	}
	args[0].List.Items = append(args[0].List.Items, args[1])
	return None, nil
}

func readArg(args []Value) ([]byte, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	if args[0].Kind != KindString {
		return nil, fmt.Errorf("%w: path must be a string, not %v", ErrTypeMismatch, args[0].Kind)
	}
	data, err := os.ReadFile(args[0].Str)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return data, nil
}

func builtinReadFile(_ *Interpreter, args []Value) (Value, error) {
	data, err := readArg(args)
	if err != nil {
		return Value{}, err
	}
	return NewString(string(data)), nil
}

func builtinReadLines(_ *Interpreter, args []Value) (Value, error) {
	data, err := readArg(args)
	if err != nil {
		return Value{}, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return NewList(), nil
	}
	lines := strings.Split(text, "\n")
	items := make([]Value, len(lines))
	for idx, l := range lines {
		items[idx] = NewString(strings.TrimSuffix(l, "\r"))
	}
	return NewList(items...), nil
}
