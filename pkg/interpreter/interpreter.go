package interpreter

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"hopvm/pkg/bytecode"
	"hopvm/pkg/stack"
)

// MaxCallDepth bounds the call stack
const MaxCallDepth = 1000

type Status int

const (
	StatusRunning Status = iota
	StatusReturned
	StatusSuspended
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusReturned:
		return "returned"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Checkpoint is the state of a VM suspended at a line boundary of its module frame.
type Checkpoint struct {
	ID     uuid.UUID
	VM     uuid.UUID // VM that produced the checkpoint
	Line   int       // line about to execute
	Offset int       // first offset of Line
	Frame  *Frame    // suspended module frame
}

// Result is the outcome of Run when no error occurred.
type Result struct {
	Status     Status
	Value      Value       // return value of the module frame, when Returned
	Checkpoint *Checkpoint // set when Suspended
}

// Interpreter executes a CodeObject on a call stack of frames
type Interpreter struct {
	id     uuid.UUID
	code   *bytecode.CodeObject // module code; function tables resolve against it
	frames *stack.Stack[*Frame]

	builtins map[string]Value
	importer Importer
	args     []string

	out io.Writer // output writer for print

	pause    PausePolicy
	observer LineObserver

	// Exec hook, coreStep unless replaced via SetExecStep
	execStep func(*Interpreter) (Status, error)

	maxSteps int // maximum steps (0 = unlimited)
	steps    int // steps executed

	resumeAt   int // boundary offset that must not pause again, -1 if none
	line       int
	lineStart  time.Time
	result     Value
	checkpoint *Checkpoint

	lastFrame *Frame
	lastInstr bytecode.Instruction
}

type Option func(*Interpreter)

// WithWriter sets the output writer for print
func WithWriter(w io.Writer) Option {
	return func(i *Interpreter) { i.out = w }
}

// WithMaxSteps sets a maximum number of interpreter steps before returning ErrMaxStepsExceeded
func WithMaxSteps(n int) Option {
	return func(i *Interpreter) { i.maxSteps = n }
}

// WithPausePolicy sets the policy consulted at each line boundary
func WithPausePolicy(p PausePolicy) Option {
	return func(i *Interpreter) { i.pause = p }
}

// WithObserver registers a line observer
func WithObserver(o LineObserver) Option {
	return func(i *Interpreter) { i.observer = o }
}

// WithImporter sets the library importer used by IMPORT_NAME
func WithImporter(imp Importer) Option {
	return func(i *Interpreter) { i.importer = imp }
}

// WithBuiltins adds or overrides builtin bindings
func WithBuiltins(extra map[string]Value) Option {
	return func(i *Interpreter) {
		for name, v := range extra {
			i.builtins[name] = v
		}
	}
}

// WithArgs sets the program arguments visible through the argv builtin
func WithArgs(args ...string) Option {
	return func(i *Interpreter) { i.args = args }
}

// NewInterpreter creates a new Interpreter for code. A frame must be loaded
// with Start or Resume before running.
func NewInterpreter(code *bytecode.CodeObject, opts ...Option) *Interpreter {
	it := &Interpreter{
		id:       uuid.New(),
		code:     code,
		frames:   stack.NewStack[*Frame](),
		builtins: Builtins(),
		resumeAt: -1,
		maxSteps: 0, // 0 => unlimited
	}

	for _, o := range opts {
		o(it)
	}

	if it.out == nil {
		it.out = os.Stdout
	}

	if it.importer == nil {
		it.importer = StandardLibrary()
	}

	if it.execStep == nil {
		it.execStep = coreStep
	}

	argv := make([]Value, len(it.args))
	for idx, a := range it.args {
		argv[idx] = NewString(a)
	}
	it.builtins["argv"] = NewList(argv...)

	return it
}

// Exec runs a module to completion on a fresh scope
func Exec(code *bytecode.CodeObject, opts ...Option) (Value, error) {
	it := NewInterpreter(code, opts...)
	it.Start(NewFrame(code, NewScope(), nil, 0))

	res, err := it.Run()
	if err != nil {
		return Value{}, err
	}
	if res.Status != StatusReturned {
		return Value{}, fmt.Errorf("module suspended at line %d", res.Checkpoint.Line)
	}
	return res.Value, nil
}

// ID returns the instance id used for log correlation
func (i *Interpreter) ID() uuid.UUID {
	return i.id
}

// Code returns the module code
func (i *Interpreter) Code() *bytecode.CodeObject {
	return i.code
}

// Output returns the output writer used for print
func (i *Interpreter) Output() io.Writer {
	return i.out
}

// Importer returns the library importer
func (i *Interpreter) Importer() Importer {
	return i.importer
}

// Steps returns the number of executed steps
func (i *Interpreter) Steps() int {
	return i.steps
}

// Depth returns the call stack depth
func (i *Interpreter) Depth() int {
	return i.frames.Size()
}

// Frame returns the current frame, or nil
func (i *Interpreter) Frame() *Frame {
	f, _ := i.frames.Peek()
	return f
}

// Start loads the module frame for a fresh run
func (i *Interpreter) Start(f *Frame) {
	i.frames.Truncate(0)
	i.frames.Push(f)
	i.resumeAt = -1
	i.line = 0
}

// Resume loads a module frame restored from a checkpoint. The boundary at the
// frame's offset was already observed by the VM that suspended, so it does not
// pause there again.
func (i *Interpreter) Resume(f *Frame) {
	i.frames.Truncate(0)
	i.frames.Push(f)
	i.resumeAt = f.IP
	i.line = 0
}

// SetExecStep installs the core step function
func (i *Interpreter) SetExecStep(fn func(*Interpreter) (Status, error)) {
	i.execStep = fn
}

// Step executes a single instruction
func (i *Interpreter) Step() (Status, error) {
	if i.execStep == nil {
		return StatusRunning, ErrNotImplemented
	}

	if i.frames.Size() == 0 {
		return StatusRunning, ErrNoFrame
	}

	if i.maxSteps > 0 && i.steps >= i.maxSteps {
		return StatusRunning, ErrMaxStepsExceeded
	}

	status, err := i.execStep(i)
	i.steps++
	if err != nil {
		return status, i.fault(err)
	}

	return status, nil
}

// Run executes until the module returns or the pause policy suspends it
func (i *Interpreter) Run() (Result, error) {
	for {
		status, err := i.Step()
		if err != nil {
			return Result{}, err
		}

		switch status {
		case StatusReturned:
			if n := i.frames.Size(); n != 0 {
				return Result{}, &InvariantError{Err: ErrFramesLeftOver, Detail: fmt.Sprintf("%d frames", n)}
			}
			return Result{Status: StatusReturned, Value: i.result}, nil

		case StatusSuspended:
			return Result{Status: StatusSuspended, Checkpoint: i.checkpoint}, nil
		}
	}
}

// boundary handles a line boundary of the module frame before in executes.
// It reports whether the frame got suspended.
func (i *Interpreter) boundary(f *Frame, in bytecode.Instruction) bool {
	if in.StartsLine == 0 || i.frames.Size() != 1 {
		return false
	}

	if f.IP == i.resumeAt {
		i.resumeAt = -1
		i.line, i.lineStart = in.StartsLine, time.Now()
		return false
	}

	b := Boundary{Line: in.StartsLine, Offset: f.IP, Prev: i.line}
	if i.line != 0 {
		b.Elapsed = time.Since(i.lineStart)
	}

	if i.observer != nil {
		i.observer.ObserveLine(b, f)
	}

	if i.pause != nil && i.pause.ShouldPause(b) {
		f.State = FrameSuspended
		i.resumeAt = f.IP
		i.checkpoint = &Checkpoint{ID: uuid.New(), VM: i.id, Line: in.StartsLine, Offset: f.IP, Frame: f}
		log.Debug("suspended", "vm", i.id.String()[:8], "line", in.StartsLine, "offset", f.IP)
		return true
	}

	i.line, i.lineStart = in.StartsLine, time.Now()
	return false
}

// complete reports the end of the last line to the observer
func (i *Interpreter) complete(f *Frame) {
	if i.observer == nil {
		return
	}
	b := Boundary{Prev: i.line}
	if i.line != 0 {
		b.Elapsed = time.Since(i.lineStart)
	}
	i.observer.ObserveLine(b, f)
}

func (i *Interpreter) fault(err error) error {
	switch err.(type) {
	case *Fault, *InvariantError:
		return err
	}

	f := i.lastFrame
	if f == nil {
		return err
	}
	f.State = FrameFaulted

	return &Fault{
		Kind:   faultKindOf(err),
		Func:   f.Code.Name,
		Line:   i.lastInstr.Line,
		Offset: i.lastInstr.Offset,
		Op:     i.lastInstr.Op,
		Err:    err,
	}
}

// lookup resolves a name for LOAD_NAME (fromLocals) or LOAD_GLOBAL
func (i *Interpreter) lookup(f *Frame, name string, fromLocals bool) (Value, error) {
	if fromLocals {
		if v, ok := f.Locals.Get(name); ok {
			return v, nil
		}
	}
	if v, ok := f.Globals.Get(name); ok {
		return v, nil
	}
	if v, ok := i.builtins[name]; ok {
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUndefinedName, name)
}

func (i *Interpreter) importModule(name string) (Value, error) {
	m, err := i.importer.Import(name)
	if err != nil {
		return Value{}, err
	}
	return NewModuleValue(m), nil
}
