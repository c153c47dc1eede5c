package estimate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"hopvm/pkg/bytecode"
	"hopvm/pkg/interpreter"
	"hopvm/pkg/migrate"
)

// DefaultSampleRows are the record counts of the sampled runs
var DefaultSampleRows = []int{100, 200, 400}

// Estimator projects per-line payload size and running time for a full
// input from runs of the program on prefixes of it.
type Estimator struct {
	code        *bytecode.CodeObject
	importer    interpreter.Importer
	rows        []int
	tempDir     string
	maxSteps    int
	concurrency int
}

// LineEstimate is the projection for pausing before (size) and running (time) one line
type LineEstimate struct {
	Line    int           `yaml:"line"`
	Size    float64       `yaml:"size"`
	Time    time.Duration `yaml:"time"`
	SizeFit Line          `yaml:"size_fit"`
	TimeFit Line          `yaml:"time_fit"`
	SizeR2  float64       `yaml:"size_r2"`
	TimeR2  float64       `yaml:"time_r2"`
}

// Report is the outcome of one estimation
type Report struct {
	Format      string         `yaml:"format"`
	InputSize   int64          `yaml:"input_size"`
	SampleRows  []int          `yaml:"sample_rows,flow"`
	SampleSizes []int64        `yaml:"sample_sizes,flow"`
	Lines       []LineEstimate `yaml:"lines"`
}

type Option func(*Estimator)

// WithSampleRows sets the record count of every sample
func WithSampleRows(rows ...int) Option {
	return func(e *Estimator) { e.rows = rows }
}

func WithImporter(imp interpreter.Importer) Option {
	return func(e *Estimator) { e.importer = imp }
}

// WithTempDir sets where sample files are written
func WithTempDir(dir string) Option {
	return func(e *Estimator) { e.tempDir = dir }
}

func WithMaxSteps(n int) Option {
	return func(e *Estimator) { e.maxSteps = n }
}

// WithConcurrency bounds the number of sampled runs in flight. Values below
// one keep the default of GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func New(code *bytecode.CodeObject, opts ...Option) *Estimator {
	e := &Estimator{
		code:        code,
		rows:        DefaultSampleRows,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(e)
	}
	if e.importer == nil {
		e.importer = interpreter.StandardLibrary()
	}
	return e
}

// Run samples raw, runs the program once per sample without migrating, with
// the sample path as argv[1], and fits the per-line observations against
// the sample file sizes.
func (e *Estimator) Run(ctx context.Context, raw []byte, format Format, fullSize int64) (*Report, error) {
	samples, err := Samples(raw, format, e.rows)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(e.tempDir, "hopvm-samples-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create sample dir: %w", err)
	}
	defer os.RemoveAll(dir)

	report := &Report{Format: format.String(), InputSize: fullSize, SampleRows: e.rows}
	paths := make([]string, len(samples))
	for idx, s := range samples {
		paths[idx] = filepath.Join(dir, fmt.Sprintf("sample-%d%s", idx, format.Ext()))
		if err := os.WriteFile(paths[idx], s, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write sample: %w", err)
		}
		report.SampleSizes = append(report.SampleSizes, int64(len(s)))
		log.Debug("Wrote sample", "rows", e.rows[idx], "size", humanize.Bytes(uint64(len(s))), "path", paths[idx])
	}

	profiles := make([]*migrate.Profile, len(samples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.concurrency, 1))
	for idx := range samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := migrate.New(e.code,
				migrate.WithWriter(io.Discard),
				migrate.WithImporter(e.importer),
				migrate.WithArgs(e.code.Name, paths[idx]),
				migrate.WithMaxSteps(e.maxSteps),
			)
			if err != nil {
				return err
			}
			out, err := c.Plain()
			if err != nil {
				return fmt.Errorf("sampled run %d: %w", idx, err)
			}
			profiles[idx] = out.Profile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Lines, err = fitLines(profiles, report.SampleSizes, fullSize)
	if err != nil {
		return nil, err
	}
	log.Info("Estimated", "lines", len(report.Lines), "samples", len(samples), "input", humanize.Bytes(uint64(fullSize)))
	return report, nil
}

// fitLines reduces every run to one observation per line (time is summed,
// size is the maximum) and projects both to fullSize.
func fitLines(profiles []*migrate.Profile, sizes []int64, fullSize int64) ([]LineEstimate, error) {
	var lines []int
	for _, p := range profiles {
		for _, l := range p.Lines() {
			if !slices.Contains(lines, l) {
				lines = append(lines, l)
			}
		}
	}
	slices.Sort(lines)

	x := make([]float64, len(sizes))
	for idx, s := range sizes {
		x[idx] = float64(s)
	}

	var out []LineEstimate
	for _, l := range lines {
		ySize := make([]float64, len(profiles))
		yTime := make([]float64, len(profiles))
		for idx, p := range profiles {
			ySize[idx] = float64(p.MaxSize(l))
			yTime[idx] = p.TotalTime(l).Seconds()
		}

		sizeFit, err := Fit(x, ySize)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l, err)
		}
		timeFit, err := Fit(x, yTime)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l, err)
		}

		out = append(out, LineEstimate{
			Line:    l,
			Size:    max(sizeFit.At(float64(fullSize)), 0),
			Time:    time.Duration(max(timeFit.At(float64(fullSize)), 0) * float64(time.Second)),
			SizeFit: sizeFit,
			TimeFit: timeFit,
			SizeR2:  RSquare(sizeFit, x, ySize),
			TimeR2:  RSquare(timeFit, x, yTime),
		})
	}
	return out, nil
}
