package runner_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"hopvm/internal/config"
	"hopvm/internal/runner"
	"hopvm/pkg/color"
)

const sumListing = `
.line 1
    LOAD_NAME read_lines
    LOAD_NAME argv
    LOAD_CONST 1
    BINARY_SUBSCR
    CALL_FUNCTION 1
    STORE_NAME rows
.line 2
    LOAD_CONST 0
    STORE_NAME total
.line 3
    SETUP_LOOP done
    LOAD_NAME rows
    GET_ITER
loop:
    FOR_ITER exit
    STORE_NAME r
.line 4
    LOAD_NAME total
    LOAD_NAME int
    LOAD_NAME r
    CALL_FUNCTION 1
    BINARY_ADD
    STORE_NAME total
    JUMP_ABSOLUTE loop
exit:
    POP_BLOCK
done:
.line 5
    LOAD_NAME print
    LOAD_NAME total
    CALL_FUNCTION 1
    POP_TOP
    LOAD_NAME total
    RETURN_VALUE
`

// workspace writes the listing and a 50 line input into a fresh directory
func workspace(t *testing.T, toml string) (string, string) {
	t.Helper()
	color.EnableColor(false)

	dir := t.TempDir()
	src := filepath.Join(dir, "sum.hop")
	if err := os.WriteFile(src, []byte(sumListing), 0o644); err != nil {
		t.Fatal(err)
	}

	var sb strings.Builder
	for n := 0; n < 50; n++ {
		fmt.Fprintf(&sb, "%d\n", n)
	}
	input := filepath.Join(dir, "numbers.txt")
	if err := os.WriteFile(input, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	if toml != "" {
		if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(toml), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return src, input
}

func readReport(t *testing.T, path string) runner.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var r runner.Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		t.Fatalf("bad report: %v", err)
	}
	return r
}

func TestRunModes(t *testing.T) {
	tests := []struct {
		mode     string
		wantHops bool
	}{
		{"migrate", true},
		{"plain", false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			src, input := workspace(t, "")
			report := filepath.Join(t.TempDir(), "report.yaml")

			var out strings.Builder
			r := runner.Runner{
				Mode:       tt.mode,
				SourceFile: src,
				Args:       []string{input},
				ReportFile: report,
				Out:        &out,
			}
			if err := r.Run(context.Background()); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if !strings.Contains(out.String(), "1225\n") {
				t.Errorf("expected the program to print 1225, got %q", out.String())
			}

			rep := readReport(t, report)
			if rep.Run == nil || rep.Run.Value != "1225" {
				t.Fatalf("unexpected run summary %+v", rep.Run)
			}
			if (rep.Run.Hops > 0) != tt.wantHops {
				t.Errorf("mode %s made %d hops", tt.mode, rep.Run.Hops)
			}
			if len(rep.Table) != 5 {
				t.Errorf("expected 5 table rows, got %d", len(rep.Table))
			}
		})
	}
}

func TestEstimateMode(t *testing.T) {
	src, _ := workspace(t, `
[run]
mode = "estimate"
policy = "never"

[estimate]
input = "numbers.txt"
sample-rows = [10, 20, 40]
concurrency = 2
`)
	report := filepath.Join(t.TempDir(), "report.yaml")

	var out strings.Builder
	r := runner.Runner{SourceFile: src, ReportFile: report, Out: &out}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "=== Estimates ===") {
		t.Errorf("estimates not printed: %q", out.String())
	}

	rep := readReport(t, report)
	if rep.Estimate == nil || len(rep.Estimate.Lines) == 0 {
		t.Fatalf("expected line estimates, got %+v", rep.Estimate)
	}
	if rep.Estimate.Format != "text" {
		t.Errorf("format should follow the input extension, got %q", rep.Estimate.Format)
	}
	if rep.Run == nil || rep.Run.Hops != 0 {
		t.Errorf("never policy should not hop, got %+v", rep.Run)
	}
}

func TestRunErrors(t *testing.T) {
	src, input := workspace(t, "")

	var out strings.Builder
	r := runner.Runner{Mode: "sideways", SourceFile: src, Args: []string{input}, Out: &out}
	if err := r.Run(context.Background()); !errors.Is(err, runner.ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}

	bad := filepath.Join(filepath.Dir(src), "bad.hop")
	if err := os.WriteFile(bad, []byte(".line 1\n    load_name x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	r = runner.Runner{SourceFile: bad, Out: &out}
	if err := r.Run(context.Background()); err == nil {
		t.Error("expected an assembly failure")
	}
	if !strings.Contains(out.String(), "=== Assembly Errors ===") {
		t.Errorf("assembly errors not reported: %q", out.String())
	}
}
