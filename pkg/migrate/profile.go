package migrate

import (
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"hopvm/pkg/analysis"
	"hopvm/pkg/interpreter"
)

// Profile records, per line, the wall time of every execution of the line
// and the payload size its transfer set would have when pausing before it.
// It survives hops, so one profile covers a whole migrating run.
type Profile struct {
	table *analysis.Table
	Times map[int][]time.Duration
	Sizes map[int][]int
}

func NewProfile(table *analysis.Table) *Profile {
	return &Profile{
		table: table,
		Times: make(map[int][]time.Duration),
		Sizes: make(map[int][]int),
	}
}

func (p *Profile) ObserveLine(b interpreter.Boundary, f *interpreter.Frame) {
	if b.Prev != 0 {
		p.Times[b.Prev] = append(p.Times[b.Prev], b.Elapsed)
	}
	if b.Line == 0 || !p.table.Has(b.Line) {
		return
	}

	n, err := interpreter.MeasureVars(f.Globals, p.table.TransferAt(b.Line))
	if err != nil {
		log.Warn("Failed to measure transfer set", "line", b.Line, "error", err)
		return
	}
	p.Sizes[b.Line] = append(p.Sizes[b.Line], n)
}

// Lines returns every line with an observation, in ascending order
func (p *Profile) Lines() []int {
	lines := slices.Collect(maps.Keys(p.Times))
	for l := range p.Sizes {
		if !slices.Contains(lines, l) {
			lines = append(lines, l)
		}
	}
	slices.Sort(lines)
	return lines
}

// TotalTime sums the time spent in line
func (p *Profile) TotalTime(line int) time.Duration {
	var total time.Duration
	for _, d := range p.Times[line] {
		total += d
	}
	return total
}

// MaxSize returns the largest payload observed before line
func (p *Profile) MaxSize(line int) int {
	if len(p.Sizes[line]) == 0 {
		return 0
	}
	return slices.Max(p.Sizes[line])
}
