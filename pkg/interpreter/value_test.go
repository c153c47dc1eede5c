package interpreter_test

import (
	"testing"

	"hopvm/pkg/interpreter"
)

func TestArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		a, b string
		want interpreter.Value
	}{
		{"BINARY_FLOOR_DIVIDE", "-7", "2", interpreter.NewInt(-4)},
		{"BINARY_MODULO", "-7", "2", interpreter.NewInt(1)},
		{"BINARY_MODULO", "7", "-2", interpreter.NewInt(-1)},
		{"BINARY_MODULO", "7.5", "2", interpreter.NewFloat(1.5)},
		{"BINARY_TRUE_DIVIDE", "1", "4", interpreter.NewFloat(0.25)},
		{"BINARY_ADD", "True", "2", interpreter.NewInt(3)},
		{"BINARY_ADD", `"ab"`, `"cd"`, interpreter.NewString("abcd")},
		{"BINARY_MULTIPLY", `"ab"`, "3", interpreter.NewString("ababab")},
		{"BINARY_SUBTRACT", "2.5", "1", interpreter.NewFloat(1.5)},
	}

	for _, test := range tests {
		src := ".line 1\nLOAD_CONST " + test.a + "\nLOAD_CONST " + test.b + "\n" + test.expr + "\nRETURN_VALUE\n"
		v, _, err := exec(t, src)
		if err != nil {
			t.Errorf("%s %s %s: %v", test.a, test.expr, test.b, err)
			continue
		}
		if v.Kind != test.want.Kind || !interpreter.Equal(v, test.want) {
			t.Errorf("%s %s %s: expected %v, got %v", test.a, test.expr, test.b, test.want.Repr(), v.Repr())
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, op, b string
		want     bool
	}{
		{"1", "<", "2.5", true},
		{"2", "==", "2.0", true},
		{`"a"`, "<", `"b"`, true},
		{`"a"`, "==", "1", false},
		{"None", "!=", "None", false},
		{"3", ">=", "3", true},
	}

	for _, test := range tests {
		src := ".line 1\nLOAD_CONST " + test.a + "\nLOAD_CONST " + test.b + "\nCOMPARE_OP " + test.op + "\nRETURN_VALUE\n"
		v, _, err := exec(t, src)
		if err != nil {
			t.Errorf("%s %s %s: %v", test.a, test.op, test.b, err)
			continue
		}
		if v.Kind != interpreter.KindBool || v.Bool != test.want {
			t.Errorf("%s %s %s: expected %v, got %v", test.a, test.op, test.b, test.want, v)
		}
	}
}

func TestRepr(t *testing.T) {
	d := interpreter.NewDict()
	d.Set(interpreter.NewString("b"), interpreter.NewInt(1))
	d.Set(interpreter.NewString("a"), interpreter.NewList(interpreter.NewFloat(2), interpreter.None))
	d.Set(interpreter.NewString("b"), interpreter.NewBool(true))

	if got := interpreter.NewDictValue(d).Repr(); got != "{'b': True, 'a': [2.0, None]}" {
		t.Errorf("unexpected repr %s", got)
	}
	if got := interpreter.NewString("x").String(); got != "x" {
		t.Errorf("strings print unquoted, got %s", got)
	}
}

func TestCyclicValues(t *testing.T) {
	self := interpreter.NewList(interpreter.NewInt(1))
	self.List.Items = append(self.List.Items, self)

	d := interpreter.NewDict()
	dv := interpreter.NewDictValue(d)
	d.Set(interpreter.NewString("self"), dv)
	d.Set(interpreter.NewString("list"), self)

	tests := []struct {
		v    interpreter.Value
		want string
	}{
		{self, "[1, [...]]"},
		{interpreter.NewList(self, self), "[[1, [...]], [1, [...]]]"},
		{dv, "{'self': {...}, 'list': [1, [...]]}"},
	}
	for _, test := range tests {
		if got := test.v.Repr(); got != test.want {
			t.Errorf("expected %s, got %s", test.want, got)
		}
	}

	other := interpreter.NewList(interpreter.NewInt(1))
	other.List.Items = append(other.List.Items, other)
	if !interpreter.Equal(self, other) {
		t.Error("structurally equal cycles should compare equal")
	}
	differs := interpreter.NewList(interpreter.NewInt(2))
	differs.List.Items = append(differs.List.Items, differs)
	if interpreter.Equal(self, differs) {
		t.Error("cycles with different items should differ")
	}

	src := `
.line 1
    LOAD_CONST 1
    BUILD_LIST 1
    STORE_NAME a
.line 2
    LOAD_NAME append
    LOAD_NAME a
    LOAD_NAME a
    CALL_FUNCTION 2
    POP_TOP
.line 3
    LOAD_NAME print
    LOAD_NAME a
    CALL_FUNCTION 1
    POP_TOP
`
	_, out, err := exec(t, src)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if out != "[1, [...]]\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTruthy(t *testing.T) {
	falsy := []interpreter.Value{
		interpreter.None, interpreter.NewInt(0), interpreter.NewFloat(0), interpreter.NewString(""),
		interpreter.NewList(), interpreter.NewBool(false), interpreter.NewDictValue(interpreter.NewDict()),
	}
	for _, v := range falsy {
		if v.Truthy() {
			t.Errorf("%v should be falsy", v.Repr())
		}
	}
	if !interpreter.NewList(interpreter.None).Truthy() {
		t.Error("non-empty list should be truthy")
	}
}

func TestDictKeys(t *testing.T) {
	d := interpreter.NewDict()
	if err := d.Set(interpreter.NewInt(1), interpreter.NewString("int")); err != nil {
		t.Fatal(err)
	}
	if err := d.Set(interpreter.NewFloat(1), interpreter.NewString("float")); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 1 {
		t.Errorf("1 and 1.0 should be the same key, got %d entries", d.Len())
	}
	if err := d.Set(interpreter.NewList(), interpreter.None); err == nil {
		t.Error("lists should be unhashable")
	}
}

func TestScope(t *testing.T) {
	s := interpreter.NewScope()
	s.Set("b", interpreter.NewInt(1))
	s.Set("a", interpreter.NewInt(2))
	if s.Version() != 2 {
		t.Errorf("expected version 2, got %d", s.Version())
	}

	c := s.Clone()
	c.Set("c", interpreter.NewInt(3))
	if s.Has("c") {
		t.Error("clone should not share its binding map")
	}
	if names := c.Names(); len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Errorf("unexpected names %v", names)
	}

	if !s.Delete("a") || s.Delete("a") {
		t.Error("delete should report whether the name existed")
	}
}

func TestBuiltins(t *testing.T) {
	src := `
.line 1
    LOAD_NAME max
    LOAD_NAME range
    LOAD_CONST 10
    LOAD_CONST 0
    LOAD_CONST -3
    CALL_FUNCTION 3
    CALL_FUNCTION 1
    LOAD_NAME sum
    LOAD_NAME range
    LOAD_CONST 4
    CALL_FUNCTION 1
    CALL_FUNCTION 1
    LOAD_NAME int
    LOAD_CONST " 42 "
    CALL_FUNCTION 1
    LOAD_NAME len
    LOAD_NAME argv
    CALL_FUNCTION 1
    BUILD_LIST 4
    RETURN_VALUE
`
	v, _, err := exec(t, src, interpreter.WithArgs("prog", "input.txt"))
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	want := interpreter.NewList(interpreter.NewInt(10), interpreter.NewInt(6), interpreter.NewInt(42), interpreter.NewInt(2))
	if !interpreter.Equal(v, want) {
		t.Errorf("expected %v, got %v", want, v)
	}
}
