package analysis_test

import (
	"errors"
	"slices"
	"testing"

	"hopvm/pkg/analysis"
	"hopvm/pkg/asm"
	"hopvm/pkg/bytecode"
)

const straightProgram = `
.line 1
    LOAD_CONST 1
    STORE_NAME a
.line 2
    LOAD_CONST 2
    STORE_NAME b
.line 3
    LOAD_NAME a
    LOAD_NAME b
    BINARY_ADD
    STORE_NAME c
.line 4
    LOAD_NAME print
    LOAD_NAME c
    CALL_FUNCTION 1
    POP_TOP
`

const loopProgram = `
.line 1
    LOAD_CONST 5
    STORE_NAME seed
.line 2
    LOAD_NAME seed
    LOAD_CONST 2
    BINARY_MULTIPLY
    STORE_NAME acc
.line 3
    SETUP_LOOP done
    LOAD_NAME range
    LOAD_CONST 3
    CALL_FUNCTION 1
    GET_ITER
loop:
    FOR_ITER exit
    STORE_NAME i
.line 4
    LOAD_NAME acc
    LOAD_NAME i
    BINARY_ADD
    STORE_NAME acc
    JUMP_ABSOLUTE loop
exit:
    POP_BLOCK
done:
.line 5
    LOAD_NAME acc
    RETURN_VALUE
`

const importProgram = `
.line 1
    IMPORT_NAME math
    STORE_NAME m
.line 2
    LOAD_NAME m
    LOAD_ATTR sqrt
    LOAD_CONST 16
    CALL_FUNCTION 1
    STORE_NAME r
.line 3
    LOAD_NAME r
    RETURN_VALUE
`

const branchProgram = `
.line 1
    LOAD_CONST True
    STORE_NAME flag
.line 2
    LOAD_NAME flag
    POP_JUMP_IF_FALSE skip
.line 3
    LOAD_CONST 10
    STORE_NAME x
skip:
.line 4
    LOAD_CONST 0
    STORE_NAME y
.line 5
    LOAD_NAME flag
    POP_JUMP_IF_FALSE end
.line 6
    LOAD_NAME x
    RETURN_VALUE
end:
.line 7
    LOAD_NAME y
    RETURN_VALUE
`

const globalsProgram = `
.func bump
.line 1
    LOAD_GLOBAL count
    LOAD_CONST 1
    BINARY_ADD
    STORE_GLOBAL count
    LOAD_CONST None
    RETURN_VALUE
.end

.line 1
    MAKE_FUNCTION bump
    STORE_NAME bump
.line 2
    LOAD_CONST 0
    STORE_NAME count
.line 3
    LOAD_NAME bump
    CALL_FUNCTION 0
    POP_TOP
.line 4
    LOAD_CONST None
    RETURN_VALUE
`

func assemble(t *testing.T, src string) *bytecode.CodeObject {
	t.Helper()
	code, err := asm.Assemble("test", src)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	return code
}

func analyze(t *testing.T, src string) *analysis.Table {
	t.Helper()
	table, err := analysis.Analyze(assemble(t, src))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	return table
}

func TestTransferSets(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		transfer map[int][]string
	}{
		{
			name: "straight line",
			src:  straightProgram,
			transfer: map[int][]string{
				1: {},
				2: {"a"},
				3: {"a", "b"},
				4: {"c"},
			},
		},
		{
			name: "loop",
			src:  loopProgram,
			transfer: map[int][]string{
				1: {},
				2: {"seed"},
				3: {"acc", "i"},
				4: {"acc", "i"},
				5: {"acc"},
			},
		},
		{
			name: "import",
			src:  importProgram,
			transfer: map[int][]string{
				2: {},
				3: {"r"},
			},
		},
		{
			name: "branches",
			src:  branchProgram,
			transfer: map[int][]string{
				2: {"flag"},
				4: {"flag", "x"},
				7: {"y"},
			},
		},
		{
			name: "function globals",
			src:  globalsProgram,
			transfer: map[int][]string{
				2: {"bump"},
				3: {"bump", "count"},
			},
		},
	}

	for _, test := range tests {
		table := analyze(t, test.src)
		for line, want := range test.transfer {
			got := table.TransferAt(line)
			if !table.Has(line) {
				t.Errorf("%s: line %d missing from the table", test.name, line)
				continue
			}
			if !slices.Equal(got, want) && !(len(got) == 0 && len(want) == 0) {
				t.Errorf("%s: line %d: expected %v, got %v", test.name, line, want, got)
			}
		}
	}
}

func TestLoopHeaderExcludesPreLoopNames(t *testing.T) {
	table := analyze(t, loopProgram)
	for _, line := range []int{3, 4, 5} {
		if table.Transfer[line].Has("seed") {
			t.Errorf("line %d should not transfer a name only used before the loop", line)
		}
	}
	if !table.Available[3].Has("i") {
		t.Error("loop variable should be available at the header through the back edge")
	}
}

func TestBranchAvailability(t *testing.T) {
	table := analyze(t, branchProgram)
	if !table.Available[4].Has("x") {
		t.Error("x is assigned on one path into line 4 and should be available")
	}
	if table.Available[4].Has("y") {
		t.Error("y is assigned by line 4 itself")
	}
	if !table.Final.Has("y") || !table.Final.Has("x") {
		t.Errorf("unexpected final set %v", table.Final.Sorted())
	}
}

func TestImportLinesExcluded(t *testing.T) {
	table := analyze(t, importProgram)
	if table.Has(1) {
		t.Error("import lines should not be analysed")
	}
	if table.Universe.Has("m") {
		t.Error("import targets are re-bound, not transferred")
	}
	want := []analysis.ImportBinding{{Line: 1, Library: "math", Name: "m"}}
	if !slices.Equal(table.Imports, want) {
		t.Errorf("expected imports %v, got %v", want, table.Imports)
	}
}

func TestImportWithoutStore(t *testing.T) {
	table := analyze(t, ".line 1\nIMPORT_NAME text\n.line 2\nLOAD_CONST 1\nRETURN_VALUE\n")
	if len(table.Imports) != 1 || table.Imports[0].Name != "text" {
		t.Errorf("bare import should bind the library name, got %v", table.Imports)
	}
}

func TestRepeatedLinesMerged(t *testing.T) {
	src := `
.line 1
    LOAD_CONST 1
    STORE_NAME a
.line 2
    LOAD_CONST 2
    STORE_NAME b
.line 1
    LOAD_NAME a
    LOAD_NAME b
    BINARY_ADD
    RETURN_VALUE
`
	table := analyze(t, src)
	if !slices.Equal(table.Lines, []int{1, 2}) {
		t.Errorf("expected lines [1 2], got %v", table.Lines)
	}
	if got := table.LiveIn[1].Sorted(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("merged live-in should be the union, got %v", got)
	}
	if got := table.Kill[1].Sorted(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("merged kill should be the union, got %v", got)
	}
}

func TestSoundnessAndTermination(t *testing.T) {
	for _, src := range []string{straightProgram, loopProgram, importProgram, branchProgram, globalsProgram} {
		table := analyze(t, src)
		for _, line := range table.Lines {
			if !table.Transfer[line].SubsetOf(table.Available[line]) {
				t.Errorf("line %d: transfer %v not within available %v", line,
					table.Transfer[line].Sorted(), table.Available[line].Sorted())
			}
			if !table.Transfer[line].SubsetOf(table.Universe) {
				t.Errorf("line %d: transfer holds non-user names %v", line, table.Transfer[line].Sorted())
			}
		}
		bound := len(table.Blocks)*len(table.Universe) + 1
		if table.Iterations < 1 || table.Iterations > bound {
			t.Errorf("fixpoint took %d passes, bound %d", table.Iterations, bound)
		}
	}
}

func TestEmptyProgram(t *testing.T) {
	_, err := analysis.Analyze(&bytecode.CodeObject{Name: "empty"})
	if !errors.Is(err, analysis.ErrEmptyProgram) {
		t.Errorf("expected ErrEmptyProgram, got %v", err)
	}
}

func TestLineMismatch(t *testing.T) {
	tests := []struct {
		name  string
		instr []bytecode.Instruction
		want  error
	}{
		{"consistent", []bytecode.Instruction{
			{Op: bytecode.OpNop, Offset: 0, StartsLine: 1, Line: 1},
			{Op: bytecode.OpNop, Offset: 2, Line: 1},
			{Op: bytecode.OpNop, Offset: 4, StartsLine: 2, Line: 2},
		}, nil},
		{"continuation on another line", []bytecode.Instruction{
			{Op: bytecode.OpNop, Offset: 0, StartsLine: 1, Line: 1},
			{Op: bytecode.OpNop, Offset: 2, Line: 3},
		}, analysis.ErrLineMismatch},
		{"marker disagrees", []bytecode.Instruction{
			{Op: bytecode.OpNop, Offset: 0, StartsLine: 4, Line: 5},
		}, analysis.ErrLineMismatch},
	}

	for _, test := range tests {
		code := &bytecode.CodeObject{Name: test.name, Instructions: test.instr}
		_, _, err := analysis.GroupLines(code)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, err)
		}
	}
}

func TestCache(t *testing.T) {
	code := assemble(t, straightProgram)
	cache := analysis.NewCache()

	first, err := cache.Table(code)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	second, _ := cache.Table(code)
	if first != second {
		t.Error("cache should return the same table for the same code object")
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached table, got %d", cache.Len())
	}

	if _, err := cache.Table(&bytecode.CodeObject{Name: "empty"}); err == nil {
		t.Error("expected an error for an empty program")
	}
	if cache.Len() != 1 {
		t.Error("failed analyses should not be cached")
	}
}

func TestRows(t *testing.T) {
	rows := analyze(t, straightProgram).Rows()
	if len(rows) != 4 || rows[2].Line != 3 || !slices.Equal(rows[2].LiveIn, []string{"a", "b"}) {
		t.Errorf("unexpected rows %+v", rows)
	}
}
