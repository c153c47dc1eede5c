package bytecode

import (
	"fmt"
	"strconv"
)

// InstrSize is the width of one instruction in bytes; offsets advance by it.
const InstrSize = 2

type Instruction struct {
	Op  Opcode
	Arg int

	Offset     int // byte offset within the code object
	StartsLine int // source line this instruction starts, 0 if it continues the current one
	Line       int // source line the instruction belongs to
}

// String returns a string representation of the instruction
func (i Instruction) String() string {
	if !i.Op.HasArg() {
		return fmt.Sprintf("%4d %s", i.Offset, i.Op)
	}
	return fmt.Sprintf("%4d %-20s %d", i.Offset, i.Op, i.Arg)
}

type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstInt
	ConstFloat
	ConstBool
	ConstString
)

// Const is an entry of a code object's constant table
type Const struct {
	Kind ConstKind
	I64  int64
	F64  float64
	Bool bool
	Str  string
}

// String renders the constant the way the listing format spells it
func (c Const) String() string {
	switch c.Kind {
	case ConstInt:
		return strconv.FormatInt(c.I64, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.F64, 'g', -1, 64)
	case ConstBool:
		if c.Bool {
			return "True"
		}
		return "False"
	case ConstString:
		return strconv.Quote(c.Str)
	default:
		return "None"
	}
}
