package interpreter

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"hopvm/pkg/bytecode"
)

// SnapshotVersion is the wire format version written by EncodeSnapshot
const SnapshotVersion = 1

var ErrBadSnapshot = errors.New("malformed snapshot")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("interpreter: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the migratable part of a suspended module frame: the transferred
// variables plus the operand and block stacks needed to resume mid-construct.
type Snapshot struct {
	Line   int
	Offset int
	Vars   map[string]Value
	Stack  []Value
	Blocks []Block
}

// Snapshot captures the named globals of the suspended frame. Names without a
// binding are skipped.
func (c *Checkpoint) Snapshot(names []string) *Snapshot {
	vars := make(map[string]Value, len(names))
	for _, n := range names {
		if v, ok := c.Frame.Globals.Get(n); ok {
			vars[n] = v
		}
	}
	return &Snapshot{
		Line:   c.Line,
		Offset: c.Offset,
		Vars:   vars,
		Stack:  c.Frame.Stack.Array(),
		Blocks: c.Frame.Blocks.Array(),
	}
}

// Restore binds the snapshot variables into globals and rebuilds the module
// frame at the snapshot offset.
func (s *Snapshot) Restore(code *bytecode.CodeObject, globals *Scope) *Frame {
	for name, v := range s.Vars {
		globals.Set(name, v)
	}
	f := NewFrame(code, globals, nil, s.Offset)
	for _, v := range s.Stack {
		f.Stack.Push(v)
	}
	for _, b := range s.Blocks {
		f.Blocks.Push(b)
	}
	return f
}

type wireValue struct {
	Kind ValueKind `cbor:"1,keyasint"`
	I64  int64     `cbor:"2,keyasint,omitempty"`
	F64  float64   `cbor:"3,keyasint"`
	Bool bool      `cbor:"4,keyasint,omitempty"`
	Str  string    `cbor:"5,keyasint,omitempty"`
	Ref  int       `cbor:"6,keyasint,omitempty"` // heap index + 1
}

type wireObject struct {
	Kind ValueKind   `cbor:"1,keyasint"`
	Keys []wireValue `cbor:"2,keyasint,omitempty"` // list items or dict keys
	Vals []wireValue `cbor:"3,keyasint,omitempty"` // dict values
	Seq  int         `cbor:"4,keyasint,omitempty"` // iterator sequence, heap index + 1
	Pos  int         `cbor:"5,keyasint,omitempty"` // iterator position
}

type wireBlock struct {
	Kind    BlockKind `cbor:"1,keyasint"`
	Handler int       `cbor:"2,keyasint"`
	Level   int       `cbor:"3,keyasint"`
}

type wireSnapshot struct {
	Version int                  `cbor:"1,keyasint"`
	Line    int                  `cbor:"2,keyasint"`
	Offset  int                  `cbor:"3,keyasint"`
	Vars    map[string]wireValue `cbor:"4,keyasint,omitempty"`
	Stack   []wireValue          `cbor:"5,keyasint,omitempty"`
	Blocks  []wireBlock          `cbor:"6,keyasint,omitempty"`
	Heap    []wireObject         `cbor:"7,keyasint,omitempty"`
}

// encoder flattens reference objects into a heap table so shared and cyclic
// references survive the round trip.
type encoder struct {
	heap []wireObject
	seen map[any]int
}

func (e *encoder) value(v Value) wireValue {
	w := wireValue{Kind: v.Kind}
	switch v.Kind {
	case KindInt:
		w.I64 = v.I64
	case KindFloat:
		w.F64 = v.F64
	case KindBool:
		w.Bool = v.Bool
	case KindString:
		w.Str = v.Str
	case KindFunction:
		w.I64 = int64(v.Fn.Index)
	case KindNative:
		w.Str = v.Native.Name
	case KindModule:
		w.Str = v.Module.Name
	case KindList:
		w.Ref = e.list(v.List) + 1
	case KindDict:
		w.Ref = e.object(v.Dict, func(o *wireObject) {
			o.Kind = KindDict
			for idx, k := range v.Dict.keys {
				o.Keys = append(o.Keys, e.value(k))
				o.Vals = append(o.Vals, e.value(v.Dict.vals[idx]))
			}
		}) + 1
	case KindIterator:
		w.Ref = e.object(v.Iter, func(o *wireObject) {
			o.Kind = KindIterator
			o.Seq = e.list(v.Iter.Seq) + 1
			o.Pos = v.Iter.Pos
		}) + 1
	}
	return w
}

func (e *encoder) list(l *List) int {
	return e.object(l, func(o *wireObject) {
		o.Kind = KindList
		o.Keys = make([]wireValue, 0, len(l.Items))
		for _, item := range l.Items {
			o.Keys = append(o.Keys, e.value(item))
		}
	})
}

// object reserves a heap slot for ptr before filling it, so cycles terminate
func (e *encoder) object(ptr any, fill func(o *wireObject)) int {
	if ref, ok := e.seen[ptr]; ok {
		return ref
	}
	ref := len(e.heap)
	e.heap = append(e.heap, wireObject{})
	e.seen[ptr] = ref

	var o wireObject
	fill(&o)
	e.heap[ref] = o
	return ref
}

// EncodeSnapshot serializes a snapshot to canonical CBOR
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	e := &encoder{seen: make(map[any]int)}
	w := wireSnapshot{
		Version: SnapshotVersion,
		Line:    s.Line,
		Offset:  s.Offset,
	}

	if len(s.Vars) > 0 {
		w.Vars = make(map[string]wireValue, len(s.Vars))
		for name, v := range s.Vars {
			w.Vars[name] = e.value(v)
		}
	}
	for _, v := range s.Stack {
		w.Stack = append(w.Stack, e.value(v))
	}
	for _, b := range s.Blocks {
		w.Blocks = append(w.Blocks, wireBlock(b))
	}
	w.Heap = e.heap

	return cborEncMode.Marshal(&w)
}

type decoder struct {
	code     *bytecode.CodeObject
	importer Importer
	heap     []wireObject
	objs     []Value
}

func (d *decoder) ref(r int) (Value, error) {
	if r < 1 || r > len(d.objs) {
		return Value{}, fmt.Errorf("%w: heap reference %d", ErrBadSnapshot, r)
	}
	return d.objs[r-1], nil
}

func (d *decoder) value(w wireValue) (Value, error) {
	switch w.Kind {
	case KindNone:
		return None, nil
	case KindInt:
		return NewInt(w.I64), nil
	case KindFloat:
		return NewFloat(w.F64), nil
	case KindBool:
		return NewBool(w.Bool), nil
	case KindString:
		return NewString(w.Str), nil
	case KindFunction:
		if w.I64 < 0 || int(w.I64) >= len(d.code.Functions) {
			return Value{}, fmt.Errorf("%w: function index %d", ErrBadSnapshot, w.I64)
		}
		return NewFunction(d.code, int(w.I64)), nil
	case KindNative:
		return ResolveNative(d.importer, w.Str)
	case KindModule:
		m, err := d.importer.Import(w.Str)
		if err != nil {
			return Value{}, err
		}
		return NewModuleValue(m), nil
	case KindList, KindDict, KindIterator:
		v, err := d.ref(w.Ref)
		if err != nil {
			return Value{}, err
		}
		if v.Kind != w.Kind {
			return Value{}, fmt.Errorf("%w: heap object %d is a %v, not a %v", ErrBadSnapshot, w.Ref, v.Kind, w.Kind)
		}
		return v, nil
	default:
		return Value{}, fmt.Errorf("%w: value kind %d", ErrBadSnapshot, w.Kind)
	}
}

// link allocates every heap object, then fills them, so references between
// objects resolve regardless of order.
func (d *decoder) link() error {
	d.objs = make([]Value, len(d.heap))
	for r, o := range d.heap {
		switch o.Kind {
		case KindList:
			d.objs[r] = Value{Kind: KindList, List: &List{}}
		case KindDict:
			d.objs[r] = NewDictValue(NewDict())
		case KindIterator:
			d.objs[r] = Value{Kind: KindIterator, Iter: &Iterator{Pos: o.Pos}}
		default:
			return fmt.Errorf("%w: heap object kind %v", ErrBadSnapshot, o.Kind)
		}
	}

	for r, o := range d.heap {
		obj := d.objs[r]
		switch o.Kind {
		case KindList:
			obj.List.Items = make([]Value, len(o.Keys))
			for idx, w := range o.Keys {
				v, err := d.value(w)
				if err != nil {
					return err
				}
				obj.List.Items[idx] = v
			}

		case KindDict:
			if len(o.Keys) != len(o.Vals) {
				return fmt.Errorf("%w: dict with %d keys and %d values", ErrBadSnapshot, len(o.Keys), len(o.Vals))
			}
			for idx := range o.Keys {
				k, err := d.value(o.Keys[idx])
				if err != nil {
					return err
				}
				v, err := d.value(o.Vals[idx])
				if err != nil {
					return err
				}
				if err := obj.Dict.Set(k, v); err != nil {
					return err
				}
			}

		case KindIterator:
			seq, err := d.ref(o.Seq)
			if err != nil {
				return err
			}
			if seq.Kind != KindList {
				return fmt.Errorf("%w: iterator over %v", ErrBadSnapshot, seq.Kind)
			}
			obj.Iter.Seq = seq.List
		}
	}
	return nil
}

// DecodeSnapshot deserializes a snapshot. Functions resolve against code,
// natives and modules through importer.
func DecodeSnapshot(data []byte, code *bytecode.CodeObject, importer Importer) (*Snapshot, error) {
	var w wireSnapshot
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("interpreter: unmarshal snapshot: %w", err)
	}
	if w.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadSnapshot, w.Version)
	}

	d := &decoder{code: code, importer: importer, heap: w.Heap}
	if err := d.link(); err != nil {
		return nil, err
	}

	s := &Snapshot{
		Line:   w.Line,
		Offset: w.Offset,
		Vars:   make(map[string]Value, len(w.Vars)),
	}
	for name, wv := range w.Vars {
		v, err := d.value(wv)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		s.Vars[name] = v
	}
	for _, wv := range w.Stack {
		v, err := d.value(wv)
		if err != nil {
			return nil, err
		}
		s.Stack = append(s.Stack, v)
	}
	for _, b := range w.Blocks {
		s.Blocks = append(s.Blocks, Block(b))
	}
	return s, nil
}

// MeasureVars returns the encoded size of the named bindings of scope
func MeasureVars(scope *Scope, names []string) (int, error) {
	vars := make(map[string]Value, len(names))
	for _, n := range names {
		if v, ok := scope.Get(n); ok {
			vars[n] = v
		}
	}
	data, err := EncodeSnapshot(&Snapshot{Vars: vars})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
