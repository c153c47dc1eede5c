package migrate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"hopvm/pkg/analysis"
	"hopvm/pkg/bytecode"
	"hopvm/pkg/interpreter"
)

// Controller drives a module through repeated suspend and resume cycles. Each
// hop moves only the transfer set of the pause line into a fresh VM whose
// globals start from the template scope.
type Controller struct {
	code     *bytecode.CodeObject
	table    *analysis.Table
	template *interpreter.Scope // read-only, cloned for every VM

	importer interpreter.Importer
	policy   interpreter.PausePolicy
	out      io.Writer
	args     []string
	maxSteps int
}

// Outcome summarizes a completed migrating run
type Outcome struct {
	Value   interpreter.Value
	Globals *interpreter.Scope // globals of the last VM
	Hops    int
	Lines   []int // pause line of every hop
	Payload int   // encoded bytes moved across all hops
	Steps   int
	Profile *Profile
}

type Option func(*Controller)

// WithWriter sets the output writer shared by every VM
func WithWriter(w io.Writer) Option {
	return func(c *Controller) { c.out = w }
}

// WithImporter sets the importer of the destination host
func WithImporter(imp interpreter.Importer) Option {
	return func(c *Controller) { c.importer = imp }
}

// WithPolicy sets when to migrate. It is only consulted before analysed lines.
func WithPolicy(p interpreter.PausePolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithArgs sets the program arguments
func WithArgs(args ...string) Option {
	return func(c *Controller) { c.args = args }
}

// WithMaxSteps bounds the steps of each VM
func WithMaxSteps(n int) Option {
	return func(c *Controller) { c.maxSteps = n }
}

// New analyses code and prepares the template scope with the module's
// library bindings.
func New(code *bytecode.CodeObject, opts ...Option) (*Controller, error) {
	c := &Controller{
		code:   code,
		policy: interpreter.EveryLine,
		out:    os.Stdout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.importer == nil {
		c.importer = interpreter.StandardLibrary()
	}

	table, err := analysis.Cached(code)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	c.table = table

	c.template = interpreter.NewScope()
	if err := c.bindImports(c.template); err != nil {
		return nil, err
	}
	return c, nil
}

// Table returns the transfer table of the module
func (c *Controller) Table() *analysis.Table {
	return c.table
}

// Template returns a copy of the template scope
func (c *Controller) Template() *interpreter.Scope {
	return c.template.Clone()
}

func (c *Controller) bindImports(s *interpreter.Scope) error {
	for _, b := range c.table.Imports {
		m, err := c.importer.Import(b.Library)
		if err != nil {
			return fmt.Errorf("line %d: %w", b.Line, err)
		}
		s.Set(b.Name, interpreter.NewModuleValue(m))
	}
	return nil
}

// Rebuild constructs the module frame of a destination VM: a copy of the
// template, libraries re-imported through the destination importer, then the
// transferred variables.
func (c *Controller) Rebuild(snap *interpreter.Snapshot) (*interpreter.Frame, error) {
	globals := c.template.Clone()
	if err := c.bindImports(globals); err != nil {
		return nil, err
	}
	return snap.Restore(c.code, globals), nil
}

func (c *Controller) vmOptions(profile *Profile) []interpreter.Option {
	return []interpreter.Option{
		interpreter.WithWriter(c.out),
		interpreter.WithImporter(c.importer),
		interpreter.WithArgs(c.args...),
		interpreter.WithMaxSteps(c.maxSteps),
		interpreter.WithObserver(profile),
		interpreter.WithPausePolicy(interpreter.PauseFunc(func(b interpreter.Boundary) bool {
			return c.table.Has(b.Line) && c.policy.ShouldPause(b)
		})),
	}
}

// hop moves a checkpoint into a new module frame through its encoded form
func (c *Controller) hop(cp *interpreter.Checkpoint, n int) (*interpreter.Frame, int, error) {
	names := c.table.TransferAt(cp.Line)

	data, err := interpreter.EncodeSnapshot(cp.Snapshot(names))
	if err != nil {
		return nil, 0, fmt.Errorf("hop %d: %w", n, err)
	}

	snap, err := interpreter.DecodeSnapshot(data, c.code, c.importer)
	if err != nil {
		return nil, 0, fmt.Errorf("hop %d: %w", n, err)
	}

	frame, err := c.Rebuild(snap)
	if err != nil {
		return nil, 0, fmt.Errorf("hop %d: %w", n, err)
	}

	log.Debug("Migrated", "hop", n, "line", cp.Line, "vars", names, "payload", humanize.Bytes(uint64(len(data))), "from", cp.VM.String()[:8])
	return frame, len(data), nil
}

// Run executes the module to completion, migrating whenever the policy asks
// to. The context is checked between hops.
func (c *Controller) Run(ctx context.Context) (*Outcome, error) {
	profile := NewProfile(c.table)
	opts := c.vmOptions(profile)
	out := &Outcome{Profile: profile}

	vm := interpreter.NewInterpreter(c.code, opts...)
	frame := interpreter.NewFrame(c.code, c.template.Clone(), nil, 0)
	vm.Start(frame)

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		res, err := vm.Run()
		out.Steps += vm.Steps()
		if err != nil {
			return out, err
		}

		if res.Status == interpreter.StatusReturned {
			out.Value = res.Value
			out.Globals = frame.Globals
			log.Debug("Completed", "hops", out.Hops, "payload", humanize.Bytes(uint64(out.Payload)), "steps", out.Steps)
			return out, nil
		}

		cp := res.Checkpoint
		out.Hops++
		out.Lines = append(out.Lines, cp.Line)

		next, size, err := c.hop(cp, out.Hops)
		if err != nil {
			return out, err
		}
		out.Payload += size

		// the suspended VM is dropped before its successor runs
		frame = next
		vm = interpreter.NewInterpreter(c.code, opts...)
		vm.Resume(frame)
	}
}

// Plain runs the module once without migrating, starting from the same
// template scope. It is the baseline a migrating run must match.
func (c *Controller) Plain() (*Outcome, error) {
	profile := NewProfile(c.table)
	opts := c.vmOptions(profile)
	opts = append(opts, interpreter.WithPausePolicy(interpreter.Never))

	vm := interpreter.NewInterpreter(c.code, opts...)
	frame := interpreter.NewFrame(c.code, c.template.Clone(), nil, 0)
	vm.Start(frame)

	res, err := vm.Run()
	out := &Outcome{Profile: profile, Steps: vm.Steps(), Globals: frame.Globals}
	if err != nil {
		return out, err
	}
	out.Value = res.Value
	return out, nil
}
