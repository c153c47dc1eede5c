// Package config handles hopvm.toml run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"hopvm/pkg/interpreter"
)

// FileName is the configuration file looked up by FindAndLoad
const FileName = "hopvm.toml"

// DefaultReadLimit is how much of the input file is sampled from
const DefaultReadLimit = 128 << 10

var ErrUnknownPolicy = errors.New("unknown pause policy")

// Config represents a hopvm.toml file
type Config struct {
	Run      Run      `toml:"run"`
	Estimate Estimate `toml:"estimate"`
	Report   Report   `toml:"report"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Run configures program execution
type Run struct {
	Mode     string   `toml:"mode"`   // migrate, plain or estimate
	Policy   string   `toml:"policy"` // every-line, never or lines
	Lines    []int    `toml:"lines"`
	MaxSteps int      `toml:"max-steps"`
	Args     []string `toml:"args"`
}

// Estimate configures the cost estimator
type Estimate struct {
	Input       string `toml:"input"`
	Format      string `toml:"format"`
	SampleRows  []int  `toml:"sample-rows"`
	ReadLimit   int    `toml:"read-limit"`
	Concurrency int    `toml:"concurrency"`
}

type Report struct {
	Output string `toml:"output"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Run.Mode == "" {
		c.Run.Mode = "migrate"
	}
	if c.Run.Policy == "" {
		c.Run.Policy = "every-line"
	}
	if len(c.Estimate.SampleRows) == 0 {
		c.Estimate.SampleRows = []int{100, 200, 400}
	}
	if c.Estimate.ReadLimit <= 0 {
		c.Estimate.ReadLimit = DefaultReadLimit
	}
}

// Load parses hopvm.toml from the given directory
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find hopvm.toml and loads it.
// Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Policy builds the pause policy named by the run section
func (c *Config) Policy() (interpreter.PausePolicy, error) {
	switch c.Run.Policy {
	case "every-line":
		return interpreter.EveryLine, nil
	case "never":
		return interpreter.Never, nil
	case "lines":
		return interpreter.AtLines(c.Run.Lines...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, c.Run.Policy)
	}
}

// InputPath resolves the estimator input relative to the config directory
func (c *Config) InputPath() string {
	if c.Estimate.Input == "" || filepath.IsAbs(c.Estimate.Input) || c.Dir == "" {
		return c.Estimate.Input
	}
	return filepath.Join(c.Dir, c.Estimate.Input)
}
