package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"hopvm/internal/config"
	"hopvm/pkg/interpreter"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	src := `
[run]
policy = "lines"
lines = [2, 4]
max-steps = 500

[estimate]
input = "data/points.txt"
sample-rows = [10, 20]
`
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Run.Mode != "migrate" {
		t.Errorf("mode should default to migrate, got %q", c.Run.Mode)
	}
	if c.Run.MaxSteps != 500 || !slices.Equal(c.Estimate.SampleRows, []int{10, 20}) {
		t.Errorf("unexpected config %+v", c)
	}
	if c.Estimate.ReadLimit != config.DefaultReadLimit {
		t.Errorf("read limit should default, got %d", c.Estimate.ReadLimit)
	}
	if got := c.InputPath(); got != filepath.Join(c.Dir, "data/points.txt") {
		t.Errorf("input should resolve against the config dir, got %s", got)
	}

	p, err := c.Policy()
	if err != nil {
		t.Fatalf("policy failed: %v", err)
	}
	if !p.ShouldPause(interpreter.Boundary{Line: 4}) || p.ShouldPause(interpreter.Boundary{Line: 3}) {
		t.Error("lines policy should pause only at the configured lines")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte("[run]\nmode = \"plain\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := config.FindAndLoad(nested)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if c.Run.Mode != "plain" {
		t.Errorf("expected the parent config, got mode %q", c.Run.Mode)
	}
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("[run\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(dir); err == nil {
		t.Error("expected a parse error")
	}

	c := config.Default()
	c.Run.Policy = "sometimes"
	if _, err := c.Policy(); !errors.Is(err, config.ErrUnknownPolicy) {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
}
