package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"hopvm/internal/config"
	"hopvm/pkg/analysis"
	"hopvm/pkg/asm"
	"hopvm/pkg/bytecode"
	"hopvm/pkg/color"
	"hopvm/pkg/estimate"
	"hopvm/pkg/migrate"
)

var ErrUnknownMode = errors.New("unknown run mode")

type Runner struct {
	Help        bool     // Show help message
	Verbose     bool     // Enable verbose output
	Debug       bool     // Enable per-hop debug logging
	NoColor     bool     // Disable colored output
	Disassemble bool     // Print the assembled listing
	ShowTable   bool     // Print the transfer table
	Mode        string   // migrate, plain or estimate; overrides the config file
	Policy      string   // pause policy; overrides the config file
	MaxSteps    int      // step limit per VM, 0 keeps the config value
	ReportFile  string   // YAML report path
	SourceFile  string   // Path to the listing
	Args        []string // program arguments after the listing

	Out io.Writer // program and summary output, stdout if nil
}

// Report is the YAML document written with -report
type Report struct {
	Program  string           `yaml:"program"`
	Mode     string           `yaml:"mode"`
	Table    []analysis.Row   `yaml:"table"`
	Run      *RunSummary      `yaml:"run,omitempty"`
	Estimate *estimate.Report `yaml:"estimate,omitempty"`
}

type RunSummary struct {
	Value   string `yaml:"value"`
	Hops    int    `yaml:"hops"`
	Lines   []int  `yaml:"lines,flow"`
	Payload int    `yaml:"payload"`
	Steps   int    `yaml:"steps"`
}

// Run assembles the listing, analyses it and executes it in the configured mode.
func (opts *Runner) Run(ctx context.Context) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	log.Info("Processing file", "file", opts.SourceFile)

	cfg, err := config.FindAndLoad(filepath.Dir(opts.SourceFile))
	if err != nil {
		return err
	}
	opts.override(cfg)

	input, err := os.ReadFile(opts.SourceFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.SourceFile, err)
	}

	name := strings.TrimSuffix(filepath.Base(opts.SourceFile), filepath.Ext(opts.SourceFile))
	code, err := asm.Assemble(name, string(input))
	if err != nil {
		fmt.Fprintln(opts.Out, color.BrightRedText("=== Assembly Errors ==="))
		fmt.Fprintln(opts.Out, err)
		return fmt.Errorf("assembly failed")
	}

	if opts.Disassemble {
		fmt.Fprintln(opts.Out, color.GreenText("=== Disassembly ==="))
		code.Disassemble(opts.Out)
		fmt.Fprintln(opts.Out)
	}

	table, err := analysis.Cached(code)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if opts.ShowTable {
		opts.printTable(table)
	}

	report := &Report{Program: opts.SourceFile, Mode: cfg.Run.Mode, Table: table.Rows()}

	switch cfg.Run.Mode {
	case "migrate", "plain":
		report.Run, err = opts.execute(ctx, code, cfg)
	case "estimate":
		report.Estimate, err = opts.estimate(ctx, code, cfg)
		if err == nil {
			report.Run, err = opts.execute(ctx, code, cfg)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Run.Mode)
	}
	if err != nil {
		return err
	}

	if opts.ReportFile != "" {
		return writeReport(opts.ReportFile, report)
	}
	return nil
}

// override applies the flags that were set on top of the config file
func (opts *Runner) override(cfg *config.Config) {
	if opts.Mode != "" {
		cfg.Run.Mode = opts.Mode
	}
	if opts.Policy != "" {
		cfg.Run.Policy = opts.Policy
	}
	if opts.MaxSteps > 0 {
		cfg.Run.MaxSteps = opts.MaxSteps
	}
	if opts.ReportFile == "" {
		opts.ReportFile = cfg.Report.Output
	}
	if len(opts.Args) == 0 {
		opts.Args = cfg.Run.Args
	}
	if len(opts.Args) == 0 && cfg.Estimate.Input != "" {
		opts.Args = []string{cfg.InputPath()}
	}
}

func (opts *Runner) execute(ctx context.Context, code *bytecode.CodeObject, cfg *config.Config) (*RunSummary, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	c, err := migrate.New(code,
		migrate.WithWriter(opts.Out),
		migrate.WithPolicy(policy),
		migrate.WithArgs(append([]string{opts.SourceFile}, opts.Args...)...),
		migrate.WithMaxSteps(cfg.Run.MaxSteps),
	)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(opts.Out, color.GreenText("=== Program Output ==="))
	var out *migrate.Outcome
	if cfg.Run.Mode == "plain" {
		out, err = c.Plain()
	} else {
		out, err = c.Run(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	summary := &RunSummary{
		Value:   out.Value.Repr(),
		Hops:    out.Hops,
		Lines:   out.Lines,
		Payload: out.Payload,
		Steps:   out.Steps,
	}
	if opts.Verbose {
		fmt.Fprintln(opts.Out, color.GreenText("\n=== Migration Summary ==="))
		fmt.Fprintf(opts.Out, "%s %s\n", color.CyanText("result: "), summary.Value)
		fmt.Fprintf(opts.Out, "%s %d\n", color.CyanText("hops:   "), summary.Hops)
		fmt.Fprintf(opts.Out, "%s %s\n", color.CyanText("payload:"), humanize.Bytes(uint64(summary.Payload)))
		fmt.Fprintf(opts.Out, "%s %d\n", color.CyanText("steps:  "), summary.Steps)
	}
	return summary, nil
}

func (opts *Runner) estimate(ctx context.Context, code *bytecode.CodeObject, cfg *config.Config) (*estimate.Report, error) {
	if len(opts.Args) == 0 {
		return nil, fmt.Errorf("estimate mode needs an input file argument")
	}
	path := opts.Args[0]

	format, err := estimate.FormatOf(path)
	if cfg.Estimate.Format != "" {
		format, err = estimate.ParseFormat(cfg.Estimate.Format)
	}
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}
	raw, err := readPrefix(path, cfg.Estimate.ReadLimit)
	if err != nil {
		return nil, err
	}

	e := estimate.New(code,
		estimate.WithSampleRows(cfg.Estimate.SampleRows...),
		estimate.WithMaxSteps(cfg.Run.MaxSteps),
		estimate.WithConcurrency(cfg.Estimate.Concurrency),
	)

	rep, err := e.Run(ctx, raw, format, info.Size())
	if err != nil {
		return nil, fmt.Errorf("estimation failed: %w", err)
	}

	fmt.Fprintln(opts.Out, color.GreenText("=== Estimates ==="))
	fmt.Fprintf(opts.Out, "input %s, samples %v\n", humanize.Bytes(uint64(info.Size())), rep.SampleSizes)
	for _, l := range rep.Lines {
		fmt.Fprintf(opts.Out, "%s size %s, time %v\n",
			color.CyanText(fmt.Sprintf("%4d", l.Line)),
			color.YellowText(humanize.Bytes(uint64(l.Size))),
			l.Time)
	}
	fmt.Fprintln(opts.Out)
	return rep, nil
}

func readPrefix(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return raw, nil
}

func (opts *Runner) printTable(table *analysis.Table) {
	fmt.Fprintln(opts.Out, color.GreenText("=== Transfer Table ==="))
	for _, imp := range table.Imports {
		fmt.Fprintf(opts.Out, "%s import %s as %s\n", color.GrayText(fmt.Sprintf("%4d", imp.Line)), imp.Library, imp.Name)
	}
	for _, row := range table.Rows() {
		fmt.Fprintf(opts.Out, "%s live-in %v kill %v live-out %v available %v -> %s\n",
			color.CyanText(fmt.Sprintf("%4d", row.Line)),
			row.LiveIn, row.Kill, row.LiveOut, row.Available,
			color.YellowText(fmt.Sprintf("%v", row.Transfer)))
	}
	fmt.Fprintln(opts.Out)
}

func writeReport(path string, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	log.Info("Wrote report", "file", path)
	return nil
}
