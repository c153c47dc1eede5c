package interpreter

import (
	"errors"
	"fmt"

	"hopvm/pkg/bytecode"
)

var (
	ErrNotImplemented   = errors.New("interpreter step function not linked")
	ErrMaxStepsExceeded = errors.New("maximum steps exceeded")

	ErrUndefinedName  = errors.New("undefined name")
	ErrStackUnderflow = errors.New("operand stack underflow")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrZeroDivision   = errors.New("division by zero")
	ErrIndex          = errors.New("index out of range")
	ErrUnhandled      = errors.New("unhandled exception")
	ErrBadOpcode      = errors.New("bad opcode")
	ErrModuleNotFound = errors.New("module not found")
	ErrRecursionDepth = errors.New("maximum call depth exceeded")
	ErrIO             = errors.New("i/o error")
	ErrOverflow       = errors.New("result too large")

	ErrFramesLeftOver  = errors.New("frames left over")
	ErrDataLeftOnStack = errors.New("data left on stack")
	ErrNoFrame         = errors.New("no frame loaded")
)

type FaultKind int

const (
	FaultUnknown FaultKind = iota
	FaultUndefinedName
	FaultStackUnderflow
	FaultTypeMismatch
	FaultZeroDivision
	FaultIndex
	FaultUnhandled
	FaultBadOpcode
	FaultRecursion
	FaultIO
	FaultStepLimit
	FaultOverflow
)

var faultSentinels = []struct {
	kind FaultKind
	err  error
}{
	{FaultUndefinedName, ErrUndefinedName},
	{FaultUndefinedName, ErrModuleNotFound},
	{FaultStackUnderflow, ErrStackUnderflow},
	{FaultTypeMismatch, ErrTypeMismatch},
	{FaultZeroDivision, ErrZeroDivision},
	{FaultIndex, ErrIndex},
	{FaultUnhandled, ErrUnhandled},
	{FaultBadOpcode, ErrBadOpcode},
	{FaultRecursion, ErrRecursionDepth},
	{FaultIO, ErrIO},
	{FaultStepLimit, ErrMaxStepsExceeded},
	{FaultOverflow, ErrOverflow},
}

var faultKindNames = map[FaultKind]string{
	FaultUnknown:        "unknown",
	FaultUndefinedName:  "undefined-name",
	FaultStackUnderflow: "stack-underflow",
	FaultTypeMismatch:   "type-mismatch",
	FaultZeroDivision:   "zero-division",
	FaultIndex:          "index",
	FaultUnhandled:      "unhandled",
	FaultBadOpcode:      "bad-opcode",
	FaultRecursion:      "recursion",
	FaultIO:             "io",
	FaultStepLimit:      "step-limit",
	FaultOverflow:       "overflow",
}

func (k FaultKind) String() string {
	return faultKindNames[k]
}

func faultKindOf(err error) FaultKind {
	for _, s := range faultSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return FaultUnknown
}

// Fault is an execution fault of the running program, reported with its location.
type Fault struct {
	Kind   FaultKind
	Func   string
	Line   int
	Offset int
	Op     bytecode.Opcode
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("line %d (offset %d, %s in %s): %v", f.Line, f.Offset, f.Op, f.Func, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// InvariantError reports a defect of the interpreter or the migration driver,
// never a program error.
type InvariantError struct {
	Err    error
	Detail string
}

func (e *InvariantError) Error() string {
	if e.Detail == "" {
		return "internal invariant violated: " + e.Err.Error()
	}
	return "internal invariant violated: " + e.Err.Error() + ": " + e.Detail
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}
