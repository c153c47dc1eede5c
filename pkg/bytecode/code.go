package bytecode

import (
	"errors"
	"fmt"
	"io"
)

// CodeObject is a compiled program or function body. It is never mutated
// after Builder.Finish returns it.
type CodeObject struct {
	Name         string
	Params       []string
	Instructions []Instruction
	Consts       []Const
	Names        []string
	Functions    []*CodeObject // only populated on the module-level code object
}

// Len returns the size of the code in bytes
func (c *CodeObject) Len() int {
	return len(c.Instructions) * InstrSize
}

// At returns the instruction at a byte offset
func (c *CodeObject) At(offset int) (Instruction, bool) {
	if offset < 0 || offset%InstrSize != 0 {
		return Instruction{}, false
	}
	idx := offset / InstrSize
	if idx >= len(c.Instructions) {
		return Instruction{}, false
	}
	return c.Instructions[idx], true
}

// LineAt returns the source line of the instruction at offset, or 0
func (c *CodeObject) LineAt(offset int) int {
	if in, ok := c.At(offset); ok {
		return in.Line
	}
	return 0
}

// NameAt returns the name table entry for an instruction argument
func (c *CodeObject) NameAt(idx int) (string, error) {
	if idx < 0 || idx >= len(c.Names) {
		return "", fmt.Errorf("name index %d out of range in %s", idx, c.Name)
	}
	return c.Names[idx], nil
}

// ConstAt returns the constant table entry for an instruction argument
func (c *CodeObject) ConstAt(idx int) (Const, error) {
	if idx < 0 || idx >= len(c.Consts) {
		return Const{}, fmt.Errorf("const index %d out of range in %s", idx, c.Name)
	}
	return c.Consts[idx], nil
}

// ArgRepr renders the argument of in symbolically
func (c *CodeObject) ArgRepr(in Instruction) string {
	switch in.Op.ArgKind() {
	case ArgConst:
		if k, err := c.ConstAt(in.Arg); err == nil {
			return k.String()
		}
	case ArgName:
		if n, err := c.NameAt(in.Arg); err == nil {
			return n
		}
	case ArgJump:
		return fmt.Sprintf("-> %d", in.Arg)
	case ArgCompare:
		if in.Arg >= 0 && in.Arg < len(CompareOps) {
			return CompareOps[in.Arg]
		}
	case ArgFunc:
		if in.Arg >= 0 && in.Arg < len(c.Functions) {
			return c.Functions[in.Arg].Name
		}
	case ArgNone:
		return ""
	}
	return fmt.Sprintf("%d", in.Arg)
}

// Disassemble writes a dis-style listing of the code and its functions
func (c *CodeObject) Disassemble(w io.Writer) {
	for _, fn := range c.Functions {
		fmt.Fprintf(w, "function %s(%v):\n", fn.Name, fn.Params)
		fn.Disassemble(w)
		fmt.Fprintln(w)
	}
	for _, in := range c.Instructions {
		line := "    "
		if in.StartsLine != 0 {
			line = fmt.Sprintf("%4d", in.StartsLine)
		}
		fmt.Fprintf(w, "%s %6d %-20s %s\n", line, in.Offset, in.Op, c.ArgRepr(in))
	}
}

var (
	ErrUndefinedLabel    = errors.New("undefined label")
	ErrDuplicateLabel    = errors.New("duplicate label")
	ErrUndefinedFunction = errors.New("undefined function")
	ErrNestedFunction    = errors.New("functions may only be declared at module level")
)

type fixup struct {
	index int
	name  string
}

// Builder assembles a CodeObject instruction by instruction
type Builder struct {
	code        *CodeObject
	pendingLine int
	currentLine int
	labels      map[string]int
	jumps       []fixup
	funcRefs    []fixup
	consts      map[Const]int
	names       map[string]int

	root      *Builder
	funcs     []*Builder
	funcIndex map[string]int
}

// NewBuilder creates a builder for a module-level code object
func NewBuilder(name string) *Builder {
	b := newBuilder(name, nil)
	b.funcIndex = make(map[string]int)
	return b
}

func newBuilder(name string, params []string) *Builder {
	return &Builder{
		code: &CodeObject{
			Name:   name,
			Params: append([]string(nil), params...),
		},
		labels: make(map[string]int),
		consts: make(map[Const]int),
		names:  make(map[string]int),
	}
}

// Func starts a nested function body; it can only be called on the module builder
func (b *Builder) Func(name string, params ...string) (*Builder, error) {
	if b.root != nil {
		return nil, fmt.Errorf("%w: %s", ErrNestedFunction, name)
	}
	if _, ok := b.funcIndex[name]; ok {
		return nil, fmt.Errorf("function %s declared twice", name)
	}
	fb := newBuilder(name, params)
	fb.root = b
	b.funcIndex[name] = len(b.funcs)
	b.funcs = append(b.funcs, fb)
	return fb, nil
}

// Line marks the next emitted instruction as the start of source line n
func (b *Builder) Line(n int) {
	b.pendingLine = n
}

// Label binds name to the offset of the next emitted instruction
func (b *Builder) Label(name string) error {
	if _, ok := b.labels[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLabel, name)
	}
	b.labels[name] = len(b.code.Instructions) * InstrSize
	return nil
}

// Emit appends an instruction with a raw argument and returns its offset
func (b *Builder) Emit(op Opcode, arg int) int {
	offset := len(b.code.Instructions) * InstrSize
	in := Instruction{Op: op, Arg: arg, Offset: offset}

	if b.pendingLine == 0 && len(b.code.Instructions) == 0 {
		b.pendingLine = 1
	}
	if b.pendingLine != 0 {
		in.StartsLine = b.pendingLine
		b.currentLine = b.pendingLine
		b.pendingLine = 0
	}
	in.Line = b.currentLine

	b.code.Instructions = append(b.code.Instructions, in)
	return offset
}

// EmitConst appends an instruction whose argument is a constant
func (b *Builder) EmitConst(op Opcode, c Const) int {
	idx, ok := b.consts[c]
	if !ok {
		idx = len(b.code.Consts)
		b.code.Consts = append(b.code.Consts, c)
		b.consts[c] = idx
	}
	return b.Emit(op, idx)
}

// EmitName appends an instruction whose argument is a name
func (b *Builder) EmitName(op Opcode, name string) int {
	idx, ok := b.names[name]
	if !ok {
		idx = len(b.code.Names)
		b.code.Names = append(b.code.Names, name)
		b.names[name] = idx
	}
	return b.Emit(op, idx)
}

// EmitJump appends a jump to a label that may be bound later
func (b *Builder) EmitJump(op Opcode, label string) int {
	b.jumps = append(b.jumps, fixup{index: len(b.code.Instructions), name: label})
	return b.Emit(op, -1)
}

// EmitFunc appends an instruction referring to a module-level function by name
func (b *Builder) EmitFunc(op Opcode, name string) int {
	b.funcRefs = append(b.funcRefs, fixup{index: len(b.code.Instructions), name: name})
	return b.Emit(op, -1)
}

// Finish resolves labels and function references and returns the code object
func (b *Builder) Finish() (*CodeObject, error) {
	if b.root != nil {
		return nil, fmt.Errorf("finish called on function builder %s", b.code.Name)
	}

	var errs []error
	for _, fb := range b.funcs {
		errs = append(errs, fb.resolve(b.funcIndex)...)
		b.code.Functions = append(b.code.Functions, fb.code)
	}
	errs = append(errs, b.resolve(b.funcIndex)...)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return b.code, nil
}

func (b *Builder) resolve(funcIndex map[string]int) []error {
	var errs []error
	for _, j := range b.jumps {
		target, ok := b.labels[j.name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w %q in %s", ErrUndefinedLabel, j.name, b.code.Name))
			continue
		}
		b.code.Instructions[j.index].Arg = target
	}
	for _, f := range b.funcRefs {
		idx, ok := funcIndex[f.name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w %q in %s", ErrUndefinedFunction, f.name, b.code.Name))
			continue
		}
		b.code.Instructions[f.index].Arg = idx
	}
	return errs
}
