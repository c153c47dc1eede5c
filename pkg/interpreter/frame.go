package interpreter

import (
	"hopvm/pkg/bytecode"
	"hopvm/pkg/stack"
)

type FrameState int

const (
	FrameReady FrameState = iota
	FrameRunning
	FrameReturned
	FrameSuspended
	FrameFaulted
)

func (s FrameState) String() string {
	switch s {
	case FrameReady:
		return "ready"
	case FrameRunning:
		return "running"
	case FrameReturned:
		return "returned"
	case FrameSuspended:
		return "suspended"
	case FrameFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

type BlockKind int

const (
	BlockLoop          BlockKind = iota // SETUP_LOOP, Handler is the loop exit
	BlockExcept                         // SETUP_EXCEPT, Handler is the except clause
	BlockExceptHandler                  // active except clause, popped by POP_EXCEPT
)

// Block is a block-stack marker for a structured control construct.
type Block struct {
	Kind    BlockKind
	Handler int // byte offset to jump to when the block is unwound
	Level   int // operand stack size when the block was entered
}

// Frame represents a function call frame.
type Frame struct {
	Code    *bytecode.CodeObject // code being executed
	IP      int                  // byte offset of the next instruction
	Locals  *Scope               // local bindings; the module frame shares them with Globals
	Globals *Scope               // module-level bindings
	Stack   *stack.Stack[Value]  // operand stack
	Blocks  *stack.Stack[Block]  // loop and exception markers
	State   FrameState
}

// NewFrame creates a frame at offset ip. A nil locals scope makes it a module frame.
func NewFrame(code *bytecode.CodeObject, globals, locals *Scope, ip int) *Frame {
	if locals == nil {
		locals = globals
	}
	return &Frame{
		Code:    code,
		IP:      ip,
		Locals:  locals,
		Globals: globals,
		Stack:   stack.NewStack[Value](),
		Blocks:  stack.NewStack[Block](),
		State:   FrameReady,
	}
}

// IsModule reports whether the frame executes module-level code
func (f *Frame) IsModule() bool {
	return f.Locals == f.Globals
}

// Line returns the source line of the instruction pointer
func (f *Frame) Line() int {
	return f.Code.LineAt(f.IP)
}
