package interpreter

import (
	"fmt"
	"math"
	"strings"

	"hopvm/pkg/bytecode"
)

var opSymbols = map[bytecode.Opcode]string{
	bytecode.OpBinaryAdd:         "+",
	bytecode.OpBinarySubtract:    "-",
	bytecode.OpBinaryMultiply:    "*",
	bytecode.OpBinaryTrueDivide:  "/",
	bytecode.OpBinaryFloorDivide: "//",
	bytecode.OpBinaryModulo:      "%",
}

// evalBinary evaluates a binary arithmetic opcode on a and b
func evalBinary(op bytecode.Opcode, a, b Value) (Value, error) {
	switch op {
	case bytecode.OpBinaryAdd:
		if a.Kind == KindString && b.Kind == KindString {
			return NewString(a.Str + b.Str), nil
		}
		if a.Kind == KindList && b.Kind == KindList {
			items := make([]Value, 0, len(a.List.Items)+len(b.List.Items))
			items = append(items, a.List.Items...)
			items = append(items, b.List.Items...)
			return NewList(items...), nil
		}

	case bytecode.OpBinaryMultiply:
		if seq, n, ok := repeatOperands(a, b); ok {
			return repeat(seq, n)
		}
	}

	if !a.IsNumber() || !b.IsNumber() {
		return Value{}, fmt.Errorf("%w: unsupported operand types for %s: %v and %v", ErrTypeMismatch, opSymbols[op], a.Kind, b.Kind)
	}

	// true division always produces a float
	if op == bytecode.OpBinaryTrueDivide || a.Kind == KindFloat || b.Kind == KindFloat {
		af, _ := a.AsFloat64()
		bf, _ := b.AsFloat64()
		return evalFloat(op, af, bf)
	}

	ai, _ := a.AsInt64()
	bi, _ := b.AsInt64()
	return evalInt(op, ai, bi)
}

func evalFloat(op bytecode.Opcode, a, b float64) (Value, error) {
	switch op {
	case bytecode.OpBinaryAdd:
		return NewFloat(a + b), nil
	case bytecode.OpBinarySubtract:
		return NewFloat(a - b), nil
	case bytecode.OpBinaryMultiply:
		return NewFloat(a * b), nil
	}

	if b == 0 {
		return Value{}, fmt.Errorf("%w: float %s", ErrZeroDivision, opSymbols[op])
	}

	switch op {
	case bytecode.OpBinaryTrueDivide:
		return NewFloat(a / b), nil
	case bytecode.OpBinaryFloorDivide:
		return NewFloat(math.Floor(a / b)), nil
	case bytecode.OpBinaryModulo:
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return NewFloat(r), nil
	}

	return Value{}, fmt.Errorf("%w: %s is not arithmetic", ErrBadOpcode, op)
}

func evalInt(op bytecode.Opcode, a, b int64) (Value, error) {
	switch op {
	case bytecode.OpBinaryAdd:
		return NewInt(a + b), nil
	case bytecode.OpBinarySubtract:
		return NewInt(a - b), nil
	case bytecode.OpBinaryMultiply:
		return NewInt(a * b), nil
	}

	if b == 0 {
		return Value{}, fmt.Errorf("%w: integer %s", ErrZeroDivision, opSymbols[op])
	}

	// floor semantics: the remainder takes the sign of the divisor
	switch op {
	case bytecode.OpBinaryFloorDivide:
		q := a / b
		if a%b != 0 && (a < 0) != (b < 0) {
			q--
		}
		return NewInt(q), nil
	case bytecode.OpBinaryModulo:
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return NewInt(r), nil
	}

	return Value{}, fmt.Errorf("%w: %s is not arithmetic", ErrBadOpcode, op)
}

func repeatOperands(a, b Value) (Value, int64, bool) {
	isSeq := func(v Value) bool { return v.Kind == KindString || v.Kind == KindList }
	isCount := func(v Value) bool { return v.Kind == KindInt || v.Kind == KindBool }

	switch {
	case isSeq(a) && isCount(b):
		n, _ := b.AsInt64()
		return a, n, true
	case isCount(a) && isSeq(b):
		n, _ := a.AsInt64()
		return b, n, true
	}
	return Value{}, 0, false
}

// MaxSequenceLen bounds the length of strings and lists built by repetition
// and range().
const MaxSequenceLen = 1 << 24

func repeat(seq Value, n int64) (Value, error) {
	if n < 0 {
		n = 0
	}
	unit := int64(len(seq.Str))
	if seq.Kind == KindList {
		unit = int64(len(seq.List.Items))
	}
	if unit == 0 {
		n = 0
	}
	if unit > 0 && n > MaxSequenceLen/unit {
		return Value{}, fmt.Errorf("%w: repeating a sequence of %d by %d", ErrOverflow, unit, n)
	}

	if seq.Kind == KindString {
		return NewString(strings.Repeat(seq.Str, int(n))), nil
	}
	items := make([]Value, 0, unit*n)
	for k := int64(0); k < n; k++ {
		items = append(items, seq.List.Items...)
	}
	return NewList(items...), nil
}

// evalCompare applies the comparison operator with index idx in bytecode.CompareOps
func evalCompare(idx int, a, b Value) (Value, error) {
	if idx < 0 || idx >= len(bytecode.CompareOps) {
		return Value{}, fmt.Errorf("%w: comparison %d", ErrBadOpcode, idx)
	}

	op := bytecode.CompareOps[idx]
	switch op {
	case "==":
		return NewBool(Equal(a, b)), nil
	case "!=":
		return NewBool(!Equal(a, b)), nil
	}

	c, err := order(op, a, b)
	if err != nil {
		return Value{}, err
	}

	switch op {
	case "<":
		return NewBool(c < 0), nil
	case "<=":
		return NewBool(c <= 0), nil
	case ">":
		return NewBool(c > 0), nil
	default:
		return NewBool(c >= 0), nil
	}
}

// order compares numbers or strings
func order(op string, a, b Value) (int, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		if a.Kind != KindFloat && b.Kind != KindFloat {
			ai, _ := a.AsInt64()
			bi, _ := b.AsInt64()
			return cmpOrdered(ai, bi), nil
		}
		af, _ := a.AsFloat64()
		bf, _ := b.AsFloat64()
		return cmpOrdered(af, bf), nil

	case a.Kind == KindString && b.Kind == KindString:
		return strings.Compare(a.Str, b.Str), nil

	default:
		return 0, fmt.Errorf("%w: '%s' not supported between %v and %v", ErrTypeMismatch, op, a.Kind, b.Kind)
	}
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func index(n int, k Value) (int, error) {
	i, err := k.AsInt64()
	if err != nil {
		return 0, err
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, fmt.Errorf("%w: index %d, length %d", ErrIndex, i, n)
	}
	return int(i), nil
}

// subscript evaluates c[k]
func subscript(c, k Value) (Value, error) {
	switch c.Kind {
	case KindList:
		idx, err := index(len(c.List.Items), k)
		if err != nil {
			return Value{}, err
		}
		return c.List.Items[idx], nil

	case KindString:
		runes := []rune(c.Str)
		idx, err := index(len(runes), k)
		if err != nil {
			return Value{}, err
		}
		return NewString(string(runes[idx])), nil

	case KindDict:
		v, ok, err := c.Dict.Get(k)
		if err != nil {
			return Value{}, err
		}
		if !ok {
			return Value{}, fmt.Errorf("%w: key %s", ErrIndex, k.Repr())
		}
		return v, nil

	default:
		return Value{}, fmt.Errorf("%w: %v object is not subscriptable", ErrTypeMismatch, c.Kind)
	}
}

// storeSubscript evaluates c[k] = v
func storeSubscript(c, k, v Value) error {
	switch c.Kind {
	case KindList:
		idx, err := index(len(c.List.Items), k)
		if err != nil {
			return err
		}
		c.List.Items[idx] = v
		return nil

	case KindDict:
		return c.Dict.Set(k, v)

	default:
		return fmt.Errorf("%w: %v object does not support item assignment", ErrTypeMismatch, c.Kind)
	}
}

// iterate returns an iterator over v
func iterate(v Value) (Value, error) {
	switch v.Kind {
	case KindIterator:
		return v, nil
	case KindList:
		return Value{Kind: KindIterator, Iter: &Iterator{Seq: v.List}}, nil
	case KindString:
		var items []Value
		for _, r := range v.Str {
			items = append(items, NewString(string(r)))
		}
		return Value{Kind: KindIterator, Iter: &Iterator{Seq: &List{Items: items}}}, nil
	case KindDict:
		return Value{Kind: KindIterator, Iter: &Iterator{Seq: &List{Items: v.Dict.Keys()}}}, nil
	default:
		return Value{}, fmt.Errorf("%w: %v object is not iterable", ErrTypeMismatch, v.Kind)
	}
}

func loadAttr(obj Value, name string) (Value, error) {
	if obj.Kind != KindModule {
		return Value{}, fmt.Errorf("%w: %v object has no attribute %s", ErrTypeMismatch, obj.Kind, name)
	}
	v, ok := obj.Module.Members[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: module %s has no attribute %s", ErrUndefinedName, obj.Module.Name, name)
	}
	return v, nil
}
