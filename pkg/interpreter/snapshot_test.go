package interpreter_test

import (
	"errors"
	"math"
	"testing"

	"hopvm/pkg/interpreter"
)

const funcProgram = `
.func double x
.line 1
    LOAD_FAST x
    LOAD_CONST 2
    BINARY_MULTIPLY
    RETURN_VALUE
.end
.line 1
    MAKE_FUNCTION double
    STORE_NAME double
`

func TestSnapshotRoundTrip(t *testing.T) {
	code := assemble(t, funcProgram)
	lib := interpreter.StandardLibrary()
	mathLib, err := lib.Import("math")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	globals := interpreter.NewScope()
	shared := interpreter.NewList(interpreter.NewInt(1), interpreter.NewString("two"))
	d := interpreter.NewDict()
	if err := d.Set(interpreter.NewString("k"), shared); err != nil {
		t.Fatalf("dict set failed: %v", err)
	}
	cyclic := interpreter.NewList()
	cyclic.List.Items = append(cyclic.List.Items, cyclic)

	globals.Set("a", shared)
	globals.Set("b", shared)
	globals.Set("d", interpreter.NewDictValue(d))
	globals.Set("c", cyclic)
	globals.Set("f", interpreter.NewFunction(code, 0))
	globals.Set("n", interpreter.Builtins()["len"])
	globals.Set("m", interpreter.NewModuleValue(mathLib))
	globals.Set("x", interpreter.NewFloat(1.5))
	globals.Set("unsent", interpreter.NewInt(9))

	frame := interpreter.NewFrame(code, globals, nil, 4)
	it, err := iterOver(t, shared)
	if err != nil {
		t.Fatalf("iterator failed: %v", err)
	}
	frame.Stack.Push(it)
	frame.Blocks.Push(interpreter.Block{Kind: interpreter.BlockLoop, Handler: 20, Level: 0})

	cp := &interpreter.Checkpoint{Line: 2, Offset: 4, Frame: frame}
	snap := cp.Snapshot([]string{"a", "b", "c", "d", "f", "m", "n", "x", "missing"})
	if _, ok := snap.Vars["missing"]; ok {
		t.Error("unbound names should be skipped")
	}

	data, err := interpreter.EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := interpreter.DecodeSnapshot(data, code, lib)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if got.Line != 2 || got.Offset != 4 {
		t.Errorf("unexpected position %d@%d", got.Line, got.Offset)
	}
	if len(got.Vars) != 8 {
		t.Errorf("expected 8 vars, got %d", len(got.Vars))
	}

	a, b := got.Vars["a"], got.Vars["b"]
	if !interpreter.Equal(a, shared) || a.List != b.List {
		t.Error("aliased list should decode to one object")
	}
	inDict, _, _ := got.Vars["d"].Dict.Get(interpreter.NewString("k"))
	if inDict.List != a.List {
		t.Error("list inside dict should alias the variable")
	}
	c := got.Vars["c"]
	if c.List.Items[0].List != c.List {
		t.Error("cyclic list should point to itself")
	}
	if f := got.Vars["f"]; f.Kind != interpreter.KindFunction || f.Fn.Name != "double" || f.Fn.Code != code.Functions[0] {
		t.Errorf("unexpected function %v", f)
	}
	if n := got.Vars["n"]; n.Kind != interpreter.KindNative || n.Native.Name != "len" {
		t.Errorf("unexpected native %v", n)
	}
	if m := got.Vars["m"]; m.Kind != interpreter.KindModule || m.Module != mathLib {
		t.Errorf("module should resolve through the importer, got %v", m)
	}
	if !interpreter.Equal(got.Vars["x"], interpreter.NewFloat(1.5)) {
		t.Errorf("unexpected float %v", got.Vars["x"])
	}

	if len(got.Stack) != 1 || got.Stack[0].Kind != interpreter.KindIterator || got.Stack[0].Iter.Seq != a.List {
		t.Errorf("iterator should survive and alias its list, got %v", got.Stack)
	}
	if len(got.Blocks) != 1 || got.Blocks[0].Handler != 20 {
		t.Errorf("unexpected blocks %v", got.Blocks)
	}

	restored := got.Restore(code, interpreter.NewScope())
	if restored.IP != 4 || restored.Stack.Size() != 1 || restored.Blocks.Size() != 1 || !restored.IsModule() {
		t.Errorf("unexpected restored frame %+v", restored)
	}
	if restored.Globals.Has("unsent") {
		t.Error("only transferred names should be restored")
	}
}

func TestSnapshotFloats(t *testing.T) {
	code := assemble(t, funcProgram)
	tests := []struct {
		name string
		f    float64
	}{
		{"zero", 0},
		{"negative zero", math.Copysign(0, -1)},
		{"infinity", math.Inf(-1)},
		{"tiny", 5e-324},
	}

	for _, test := range tests {
		globals := interpreter.NewScope()
		globals.Set("x", interpreter.NewFloat(test.f))
		cp := &interpreter.Checkpoint{Line: 1, Frame: interpreter.NewFrame(code, globals, nil, 0)}

		data, err := interpreter.EncodeSnapshot(cp.Snapshot([]string{"x"}))
		if err != nil {
			t.Fatalf("%s: encode failed: %v", test.name, err)
		}
		got, err := interpreter.DecodeSnapshot(data, code, interpreter.StandardLibrary())
		if err != nil {
			t.Fatalf("%s: decode failed: %v", test.name, err)
		}

		x := got.Vars["x"]
		if x.Kind != interpreter.KindFloat || math.Float64bits(x.F64) != math.Float64bits(test.f) {
			t.Errorf("%s: expected %v, got %v", test.name, test.f, x.Repr())
		}
	}
}

func iterOver(t *testing.T, v interpreter.Value) (interpreter.Value, error) {
	code := assemble(t, ".line 1\nLOAD_NAME v\nGET_ITER\nRETURN_VALUE\n")
	it := interpreter.NewInterpreter(code)
	globals := interpreter.NewScope()
	globals.Set("v", v)
	it.Start(interpreter.NewFrame(code, globals, nil, 0))
	res, err := it.Run()
	return res.Value, err
}

func TestSnapshotDeterministic(t *testing.T) {
	vars := map[string]interpreter.Value{
		"z": interpreter.NewInt(1),
		"a": interpreter.NewString("s"),
		"m": interpreter.NewList(interpreter.NewBool(true)),
	}
	first, err := interpreter.EncodeSnapshot(&interpreter.Snapshot{Vars: vars})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	for k := 0; k < 10; k++ {
		again, _ := interpreter.EncodeSnapshot(&interpreter.Snapshot{Vars: vars})
		if string(again) != string(first) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestSnapshotErrors(t *testing.T) {
	code := assemble(t, funcProgram)
	if _, err := interpreter.DecodeSnapshot([]byte{0xff, 0x00}, code, interpreter.StandardLibrary()); err == nil {
		t.Error("expected an error for garbage input")
	}

	data, err := interpreter.EncodeSnapshot(&interpreter.Snapshot{Vars: map[string]interpreter.Value{
		"f": interpreter.NewFunction(code, 0),
	}})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	empty := assemble(t, ".line 1\nNOP\n")
	if _, err := interpreter.DecodeSnapshot(data, empty, interpreter.StandardLibrary()); !errors.Is(err, interpreter.ErrBadSnapshot) {
		t.Errorf("expected ErrBadSnapshot for an unknown function, got %v", err)
	}
}

func TestMeasureVars(t *testing.T) {
	scope := interpreter.NewScope()
	scope.Set("small", interpreter.NewInt(1))
	scope.Set("big", interpreter.NewString(string(make([]byte, 1000))))

	small, err := interpreter.MeasureVars(scope, []string{"small"})
	if err != nil {
		t.Fatalf("measure failed: %v", err)
	}
	both, err := interpreter.MeasureVars(scope, []string{"small", "big"})
	if err != nil {
		t.Fatalf("measure failed: %v", err)
	}
	if both <= small+1000 {
		t.Errorf("expected the big string to dominate, got %d vs %d", both, small)
	}
}
