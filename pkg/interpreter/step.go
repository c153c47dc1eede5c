package interpreter

import (
	"fmt"

	"hopvm/pkg/bytecode"
)

// coreStep is the main single-step execution function
func coreStep(i *Interpreter) (Status, error) {
	f := i.Frame()

	// falling off the end of a code object returns None
	if f.IP >= f.Code.Len() {
		return i.doReturn(f, None)
	}

	in, ok := f.Code.At(f.IP)
	if !ok {
		return StatusRunning, fmt.Errorf("%w: no instruction at offset %d", ErrBadOpcode, f.IP)
	}

	if i.boundary(f, in) {
		return StatusSuspended, nil
	}

	f.State = FrameRunning
	i.lastFrame, i.lastInstr = f, in
	f.IP += bytecode.InstrSize

	switch in.Op {
	case bytecode.OpNop:
		return StatusRunning, nil

	case bytecode.OpPopTop:
		_, err := f.pop()
		return StatusRunning, err

	case bytecode.OpDupTop:
		v, err := f.top()
		if err != nil {
			return StatusRunning, err
		}
		f.push(v)
		return StatusRunning, nil

	case bytecode.OpRotTwo:
		vals, err := f.popN(2)
		if err != nil {
			return StatusRunning, err
		}
		f.push(vals[1])
		f.push(vals[0])
		return StatusRunning, nil

	case bytecode.OpLoadConst:
		c, err := f.Code.ConstAt(in.Arg)
		if err != nil {
			return StatusRunning, fmt.Errorf("%w: %v", ErrBadOpcode, err)
		}
		f.push(fromConst(c))
		return StatusRunning, nil

	case bytecode.OpLoadName, bytecode.OpLoadGlobal, bytecode.OpLoadFast:
		name, err := f.name(in)
		if err != nil {
			return StatusRunning, err
		}

		var v Value
		if in.Op == bytecode.OpLoadFast {
			var ok bool
			if v, ok = f.Locals.Get(name); !ok {
				return StatusRunning, fmt.Errorf("%w: local %s referenced before assignment", ErrUndefinedName, name)
			}
		} else if v, err = i.lookup(f, name, in.Op == bytecode.OpLoadName); err != nil {
			return StatusRunning, err
		}
		f.push(v)
		return StatusRunning, nil

	case bytecode.OpStoreName, bytecode.OpStoreFast, bytecode.OpStoreGlobal:
		name, err := f.name(in)
		if err != nil {
			return StatusRunning, err
		}
		v, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		if in.Op == bytecode.OpStoreGlobal {
			f.Globals.Set(name, v)
		} else {
			f.Locals.Set(name, v)
		}
		return StatusRunning, nil

	case bytecode.OpDeleteName:
		name, err := f.name(in)
		if err != nil {
			return StatusRunning, err
		}
		if !f.Locals.Delete(name) {
			return StatusRunning, fmt.Errorf("%w: %s", ErrUndefinedName, name)
		}
		return StatusRunning, nil

	case bytecode.OpLoadAttr:
		name, err := f.name(in)
		if err != nil {
			return StatusRunning, err
		}
		obj, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		v, err := loadAttr(obj, name)
		if err != nil {
			return StatusRunning, err
		}
		f.push(v)
		return StatusRunning, nil

	case bytecode.OpBinaryAdd, bytecode.OpBinarySubtract, bytecode.OpBinaryMultiply,
		bytecode.OpBinaryTrueDivide, bytecode.OpBinaryFloorDivide, bytecode.OpBinaryModulo:
		vals, err := f.popN(2)
		if err != nil {
			return StatusRunning, err
		}
		res, err := evalBinary(in.Op, vals[0], vals[1])
		if err != nil {
			return StatusRunning, err
		}
		f.push(res)
		return StatusRunning, nil

	case bytecode.OpUnaryNegative:
		v, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		switch v.Kind {
		case KindFloat:
			f.push(NewFloat(-v.F64))
		case KindInt, KindBool:
			n, _ := v.AsInt64()
			f.push(NewInt(-n))
		default:
			return StatusRunning, fmt.Errorf("%w: bad operand type for unary -: %v", ErrTypeMismatch, v.Kind)
		}
		return StatusRunning, nil

	case bytecode.OpUnaryNot:
		v, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		f.push(NewBool(!v.Truthy()))
		return StatusRunning, nil

	case bytecode.OpCompareOp:
		vals, err := f.popN(2)
		if err != nil {
			return StatusRunning, err
		}
		res, err := evalCompare(in.Arg, vals[0], vals[1])
		if err != nil {
			return StatusRunning, err
		}
		f.push(res)
		return StatusRunning, nil

	case bytecode.OpBuildList:
		items, err := f.popN(in.Arg)
		if err != nil {
			return StatusRunning, err
		}
		f.push(NewList(items...))
		return StatusRunning, nil

	case bytecode.OpBuildMap:
		items, err := f.popN(2 * in.Arg)
		if err != nil {
			return StatusRunning, err
		}
		d := NewDict()
		for k := 0; k < len(items); k += 2 {
			if err := d.Set(items[k], items[k+1]); err != nil {
				return StatusRunning, err
			}
		}
		f.push(NewDictValue(d))
		return StatusRunning, nil

	case bytecode.OpBinarySubscr:
		vals, err := f.popN(2)
		if err != nil {
			return StatusRunning, err
		}
		v, err := subscript(vals[0], vals[1])
		if err != nil {
			return StatusRunning, err
		}
		f.push(v)
		return StatusRunning, nil

	case bytecode.OpStoreSubscr:
		// TOS1[TOS] = TOS2
		vals, err := f.popN(3)
		if err != nil {
			return StatusRunning, err
		}
		return StatusRunning, storeSubscript(vals[1], vals[2], vals[0])

	case bytecode.OpGetIter:
		v, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		it, err := iterate(v)
		if err != nil {
			return StatusRunning, err
		}
		f.push(it)
		return StatusRunning, nil

	case bytecode.OpForIter:
		v, err := f.top()
		if err != nil {
			return StatusRunning, err
		}
		if v.Kind != KindIterator {
			return StatusRunning, fmt.Errorf("%w: FOR_ITER on %v", ErrTypeMismatch, v.Kind)
		}
		if next, ok := v.Iter.Next(); ok {
			f.push(next)
		} else {
			f.Stack.Pop()
			f.IP = in.Arg
		}
		return StatusRunning, nil

	case bytecode.OpJumpAbsolute:
		f.IP = in.Arg
		return StatusRunning, nil

	case bytecode.OpPopJumpIfFalse, bytecode.OpPopJumpIfTrue:
		cond, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		if cond.Truthy() == (in.Op == bytecode.OpPopJumpIfTrue) {
			f.IP = in.Arg
		}
		return StatusRunning, nil

	case bytecode.OpSetupLoop:
		f.Blocks.Push(Block{Kind: BlockLoop, Handler: in.Arg, Level: f.Stack.Size()})
		return StatusRunning, nil

	case bytecode.OpSetupExcept:
		f.Blocks.Push(Block{Kind: BlockExcept, Handler: in.Arg, Level: f.Stack.Size()})
		return StatusRunning, nil

	case bytecode.OpPopBlock:
		if _, ok := f.Blocks.Pop(); !ok {
			return StatusRunning, fmt.Errorf("%w: POP_BLOCK with empty block stack", ErrStackUnderflow)
		}
		return StatusRunning, nil

	case bytecode.OpBreakLoop:
		for {
			b, ok := f.Blocks.Pop()
			if !ok {
				return StatusRunning, fmt.Errorf("%w: BREAK_LOOP outside of a loop", ErrStackUnderflow)
			}
			if b.Kind == BlockLoop {
				f.Stack.Truncate(b.Level)
				f.IP = b.Handler
				return StatusRunning, nil
			}
		}

	case bytecode.OpPopExcept:
		b, ok := f.Blocks.Pop()
		if !ok || b.Kind != BlockExceptHandler {
			return StatusRunning, fmt.Errorf("%w: POP_EXCEPT outside of an except clause", ErrStackUnderflow)
		}
		return StatusRunning, nil

	case bytecode.OpRaiseVarargs:
		if in.Arg != 1 {
			return StatusRunning, fmt.Errorf("%w: RAISE_VARARGS takes exactly one value", ErrTypeMismatch)
		}
		exc, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		return StatusRunning, i.raise(exc)

	case bytecode.OpMakeFunction:
		if in.Arg < 0 || in.Arg >= len(i.code.Functions) {
			return StatusRunning, fmt.Errorf("%w: function index %d", ErrBadOpcode, in.Arg)
		}
		f.push(NewFunction(i.code, in.Arg))
		return StatusRunning, nil

	case bytecode.OpCallFunction:
		args, err := f.popN(in.Arg)
		if err != nil {
			return StatusRunning, err
		}
		callee, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		return StatusRunning, i.call(f, callee, args)

	case bytecode.OpReturnValue:
		v, err := f.pop()
		if err != nil {
			return StatusRunning, err
		}
		return i.doReturn(f, v)

	case bytecode.OpImportName:
		name, err := f.name(in)
		if err != nil {
			return StatusRunning, err
		}
		m, err := i.importModule(name)
		if err != nil {
			return StatusRunning, err
		}
		f.push(m)
		return StatusRunning, nil

	default:
		return StatusRunning, fmt.Errorf("%w: %d", ErrBadOpcode, in.Op)
	}
}

// doReturn pops f and hands v to the caller, or completes the module
func (i *Interpreter) doReturn(f *Frame, v Value) (Status, error) {
	f.State = FrameReturned
	i.frames.Pop()

	if caller, ok := i.frames.Peek(); ok {
		caller.push(v)
		return StatusRunning, nil
	}

	if n := f.Stack.Size(); n != 0 {
		return StatusReturned, &InvariantError{Err: ErrDataLeftOnStack, Detail: fmt.Sprintf("%d values in %s", n, f.Code.Name)}
	}

	i.result = v
	i.complete(f)
	return StatusReturned, nil
}

func (i *Interpreter) call(f *Frame, callee Value, args []Value) error {
	switch callee.Kind {
	case KindFunction:
		fn := callee.Fn
		if len(args) != len(fn.Code.Params) {
			return fmt.Errorf("%w: %s() takes %d arguments but %d were given", ErrTypeMismatch, fn.Name, len(fn.Code.Params), len(args))
		}
		if i.frames.Size() >= MaxCallDepth {
			return fmt.Errorf("%w: calling %s", ErrRecursionDepth, fn.Name)
		}

		locals := NewScope()
		for idx, p := range fn.Code.Params {
			locals.Set(p, args[idx])
		}
		frame := NewFrame(fn.Code, f.Globals, locals, 0)
		frame.State = FrameRunning
		i.frames.Push(frame)
		return nil

	case KindNative:
		v, err := callee.Native.Fn(i, args)
		if err != nil {
			return fmt.Errorf("%s: %w", callee.Native.Name, err)
		}
		f.push(v)
		return nil

	default:
		return fmt.Errorf("%w: %v object is not callable", ErrTypeMismatch, callee.Kind)
	}
}

// raise unwinds to the nearest except block, popping frames that have none
func (i *Interpreter) raise(exc Value) error {
	for {
		f, ok := i.frames.Peek()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnhandled, exc)
		}

		for {
			b, ok := f.Blocks.Pop()
			if !ok {
				break
			}
			if b.Kind == BlockExcept {
				f.Stack.Truncate(b.Level)
				f.Blocks.Push(Block{Kind: BlockExceptHandler, Level: b.Level})
				f.push(exc)
				f.IP = b.Handler
				return nil
			}
		}

		if i.frames.Size() == 1 {
			return fmt.Errorf("%w: %s", ErrUnhandled, exc)
		}
		f.State = FrameFaulted
		i.frames.Pop()
	}
}

func (f *Frame) push(v Value) {
	f.Stack.Push(v)
}

func (f *Frame) pop() (Value, error) {
	v, ok := f.Stack.Pop()
	if !ok {
		return Value{}, ErrStackUnderflow
	}
	return v, nil
}

func (f *Frame) top() (Value, error) {
	v, ok := f.Stack.Peek()
	if !ok {
		return Value{}, ErrStackUnderflow
	}
	return v, nil
}

// popN pops n values and returns them in push order
func (f *Frame) popN(n int) ([]Value, error) {
	if n < 0 || n > f.Stack.Size() {
		return nil, fmt.Errorf("%w: need %d values, have %d", ErrStackUnderflow, n, f.Stack.Size())
	}
	vals := make([]Value, n)
	for k := n - 1; k >= 0; k-- {
		vals[k], _ = f.Stack.Pop()
	}
	return vals, nil
}

func (f *Frame) name(in bytecode.Instruction) (string, error) {
	name, err := f.Code.NameAt(in.Arg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadOpcode, err)
	}
	return name, nil
}
