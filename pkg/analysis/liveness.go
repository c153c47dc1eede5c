package analysis

import (
	"slices"

	"github.com/charmbracelet/log"

	"hopvm/pkg/bytecode"
)

// Table holds the per-line variable sets of a module. It is immutable once
// Analyze returns it.
type Table struct {
	Code     *bytecode.CodeObject
	Blocks   []LineBlock     // analysed blocks, import blocks excluded
	Imports  []ImportBinding // libraries re-bound on every hop
	Universe VarSet          // user-defined variable names

	Lines     []int // distinct analysed lines in source order
	Available map[int]VarSet
	LiveIn    map[int]VarSet
	Kill      map[int]VarSet
	LiveOut   map[int]VarSet
	Transfer  map[int]VarSet
	Final     VarSet // available one past the last line

	Iterations int // live-out fixpoint passes
}

// Row is one line of the table in report form
type Row struct {
	Line      int      `yaml:"line"`
	Available []string `yaml:"available,flow"`
	LiveIn    []string `yaml:"live_in,flow"`
	Kill      []string `yaml:"kill,flow"`
	LiveOut   []string `yaml:"live_out,flow"`
	Transfer  []string `yaml:"transfer,flow"`
}

// Has reports whether line is an analysed line
func (t *Table) Has(line int) bool {
	_, ok := t.Transfer[line]
	return ok
}

// TransferAt returns the sorted transfer set of line, or nil
func (t *Table) TransferAt(line int) []string {
	s, ok := t.Transfer[line]
	if !ok {
		return nil
	}
	return s.Sorted()
}

// Rows returns the table in source order
func (t *Table) Rows() []Row {
	rows := make([]Row, 0, len(t.Lines))
	for _, l := range t.Lines {
		rows = append(rows, Row{
			Line:      l,
			Available: t.Available[l].Sorted(),
			LiveIn:    t.LiveIn[l].Sorted(),
			Kill:      t.Kill[l].Sorted(),
			LiveOut:   t.LiveOut[l].Sorted(),
			Transfer:  t.Transfer[l].Sorted(),
		})
	}
	return rows
}

// blockFacts are the local facts of one line block
type blockFacts struct {
	defs    VarSet // stored names
	mayDefs VarSet // globals a called function may store
	loads   VarSet
	kills   VarSet
	jumps   []int // target block indices, len(blocks) for the end
}

// Analyze computes the liveness tables of the module code
func Analyze(code *bytecode.CodeObject) (*Table, error) {
	blocks, importBlocks, err := GroupLines(code)
	if err != nil {
		return nil, err
	}
	imports, err := ImportBindings(code, importBlocks)
	if err != nil {
		return nil, err
	}

	facts, universe, err := collectFacts(code, blocks)
	if err != nil {
		return nil, err
	}

	n := len(blocks)
	liveIn := make([]VarSet, n)
	for i, f := range facts {
		liveIn[i] = f.loads.Intersect(universe)
	}

	available := availableSets(facts)
	liveOut, iterations := liveOutSets(facts, liveIn)

	t := &Table{
		Code:       code,
		Blocks:     blocks,
		Imports:    imports,
		Universe:   universe,
		Available:  make(map[int]VarSet),
		LiveIn:     make(map[int]VarSet),
		Kill:       make(map[int]VarSet),
		LiveOut:    make(map[int]VarSet),
		Transfer:   make(map[int]VarSet),
		Final:      available[n],
		Iterations: iterations,
	}

	// blocks sharing a line number are merged by union
	merge := func(m map[int]VarSet, line int, s VarSet) {
		if cur, ok := m[line]; ok {
			cur.AddAll(s)
			return
		}
		m[line] = s.Clone()
	}
	for i, b := range blocks {
		if !slices.Contains(t.Lines, b.Line) {
			t.Lines = append(t.Lines, b.Line)
		}
		merge(t.Available, b.Line, available[i])
		merge(t.LiveIn, b.Line, liveIn[i])
		merge(t.Kill, b.Line, facts[i].kills)
		merge(t.LiveOut, b.Line, liveOut[i])
		merge(t.Transfer, b.Line, liveOut[i].Intersect(available[i]))
	}

	log.Debug("Analyzed module", "name", code.Name, "lines", len(t.Lines), "imports", len(imports), "vars", len(universe), "passes", iterations)
	return t, nil
}

func collectFacts(code *bytecode.CodeObject, blocks []LineBlock) ([]blockFacts, VarSet, error) {
	blockAt := blockIndex(blocks)
	fnReads, fnWrites, err := functionGlobals(code)
	if err != nil {
		return nil, nil, err
	}

	universe := fnWrites.Clone()
	facts := make([]blockFacts, len(blocks))

	for i, b := range blocks {
		f := blockFacts{defs: VarSet{}, mayDefs: VarSet{}, loads: VarSet{}, kills: VarSet{}}
		for _, in := range b.Instructions {
			switch {
			case in.Op.IsStore():
				name, err := code.NameAt(in.Arg)
				if err != nil {
					return nil, nil, err
				}
				f.defs.Add(name)
				f.kills.Add(name)
				universe.Add(name)

			case in.Op == bytecode.OpDeleteName:
				name, err := code.NameAt(in.Arg)
				if err != nil {
					return nil, nil, err
				}
				f.kills.Add(name)

			case in.Op == bytecode.OpLoadName || in.Op == bytecode.OpLoadGlobal:
				name, err := code.NameAt(in.Arg)
				if err != nil {
					return nil, nil, err
				}
				f.loads.Add(name)

			case in.Op == bytecode.OpCallFunction:
				f.loads.AddAll(fnReads)
				f.mayDefs.AddAll(fnWrites)

			case in.Op.IsJump():
				f.jumps = append(f.jumps, blockAt(in.Arg))
			}
		}
		facts[i] = f
	}

	for i := range facts {
		facts[i].kills = facts[i].kills.Intersect(universe)
	}
	return facts, universe, nil
}

// blockIndex maps an offset to the analysed block containing it. Offsets in
// import blocks map to the next analysed block, offsets past the end to len(blocks).
func blockIndex(blocks []LineBlock) func(offset int) int {
	return func(offset int) int {
		for i, b := range blocks {
			if offset < b.End() {
				return i
			}
		}
		return len(blocks)
	}
}

// functionGlobals returns the globals read and written by the function table
func functionGlobals(code *bytecode.CodeObject) (reads, writes VarSet, err error) {
	reads, writes = VarSet{}, VarSet{}
	for _, fn := range code.Functions {
		for _, in := range fn.Instructions {
			switch in.Op {
			case bytecode.OpLoadGlobal, bytecode.OpLoadName:
				name, err := fn.NameAt(in.Arg)
				if err != nil {
					return nil, nil, err
				}
				reads.Add(name)
			case bytecode.OpStoreGlobal:
				name, err := fn.NameAt(in.Arg)
				if err != nil {
					return nil, nil, err
				}
				writes.Add(name)
			}
		}
	}
	return reads, writes, nil
}

// availableSets runs the forward pass. available[i] is the set assigned on
// some path before block i; index len(facts) is one past the last line.
func availableSets(facts []blockFacts) []VarSet {
	n := len(facts)
	avail := make([]VarSet, n+1)
	for i := range avail {
		avail[i] = VarSet{}
	}

	out := func(i int) VarSet {
		return avail[i].Union(facts[i].defs).Union(facts[i].mayDefs)
	}

	for changed := true; changed; {
		changed = false
		for i := 1; i <= n; i++ {
			next := avail[i].Union(out(i - 1))
			if !next.Equal(avail[i]) {
				avail[i] = next
				changed = true
			}
		}
		// jump edges, including back edges into loop headers
		for src, f := range facts {
			for _, dst := range f.jumps {
				next := avail[dst].Union(out(src))
				if !next.Equal(avail[dst]) {
					avail[dst] = next
					changed = true
				}
			}
		}
	}
	return avail
}

// liveOutSets solves live_out[i] = ⋃ (live_in[j] ∪ (live_out[j] \ kill[j]))
// over j ≥ i and every block a jump at or after i can reach.
func liveOutSets(facts []blockFacts, liveIn []VarSet) ([]VarSet, int) {
	n := len(facts)
	liveOut := make([]VarSet, n)
	for i := range liveOut {
		liveOut[i] = VarSet{}
	}

	// backTargets[i] holds jump targets before i reachable from blocks ≥ i
	backTargets := make([][]int, n+1)
	for i := n - 1; i >= 0; i-- {
		targets := slices.Clone(backTargets[i+1])
		for _, dst := range facts[i].jumps {
			if dst < n && !slices.Contains(targets, dst) {
				targets = append(targets, dst)
			}
		}
		backTargets[i] = targets
	}

	contribution := func(j int) VarSet {
		return liveIn[j].Union(liveOut[j].Minus(facts[j].kills))
	}

	passes := 0
	for changed := true; changed; {
		changed = false
		passes++
		for i := n - 1; i >= 0; i-- {
			next := VarSet{}
			for j := i; j < n; j++ {
				next.AddAll(contribution(j))
			}
			for _, j := range backTargets[i] {
				if j < i {
					next.AddAll(contribution(j))
				}
			}
			if !next.Equal(liveOut[i]) {
				liveOut[i] = next
				changed = true
			}
		}
	}
	return liveOut, passes
}
