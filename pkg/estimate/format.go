package estimate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the layout of a program's input file
type Format int

const (
	FormatText Format = iota // newline separated records
	FormatJSON               // a top-level array or object of records
	FormatNPY                // numpy array file, one record per leading-axis row
)

var ErrUnsupportedFormat = errors.New("unsupported input format")

var formatNames = map[string]Format{
	"txt":  FormatText,
	"text": FormatText,
	"csv":  FormatText,
	"json": FormatJSON,
	"npy":  FormatNPY,
}

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	case FormatNPY:
		return "npy"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Ext returns the file extension samples of this format are written with
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatNPY:
		return ".npy"
	default:
		return ".txt"
	}
}

// ParseFormat maps a format name or extension to a Format
func ParseFormat(name string) (Format, error) {
	f, ok := formatNames[strings.ToLower(strings.TrimPrefix(name, "."))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return f, nil
}

// FormatOf infers the format from a file path
func FormatOf(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}
