package estimate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrShortInput     = errors.New("input has fewer records than requested")
	ErrMalformedInput = errors.New("malformed input")
)

// Sample returns a prefix of raw holding its first rows records, still a
// valid file of the given format.
func Sample(raw []byte, format Format, rows int) ([]byte, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("sample size must be positive, got %d", rows)
	}
	switch format {
	case FormatText:
		return sampleText(raw, rows)
	case FormatJSON:
		return sampleJSON(raw, rows)
	case FormatNPY:
		return sampleNPY(raw, rows)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// Samples takes one sample per entry of rows
func Samples(raw []byte, format Format, rows []int) ([][]byte, error) {
	out := make([][]byte, 0, len(rows))
	for _, n := range rows {
		s, err := Sample(raw, format, n)
		if err != nil {
			return nil, fmt.Errorf("sample of %d: %w", n, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func sampleText(raw []byte, rows int) ([]byte, error) {
	end := 0
	for n := 0; n < rows; n++ {
		idx := bytes.IndexByte(raw[end:], '\n')
		if idx < 0 {
			return nil, fmt.Errorf("%w: %d of %d lines", ErrShortInput, n, rows)
		}
		end += idx + 1
	}
	return raw[:end], nil
}

// sampleJSON keeps the first rows members of the top-level container and
// closes it again. Object members count by key.
func sampleJSON(raw []byte, rows int) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	open, ok := tok.(json.Delim)
	if !ok || (open != '[' && open != '{') {
		return nil, fmt.Errorf("%w: top level is not an array or object", ErrMalformedInput)
	}
	closer := byte(']')
	if open == '{' {
		closer = '}'
	}

	for n := 0; n < rows; n++ {
		if !dec.More() {
			return nil, fmt.Errorf("%w: %d of %d records", ErrShortInput, n, rows)
		}
		if open == '{' {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
			}
		}
		var rec json.RawMessage
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedInput, n, err)
		}
	}

	end := int(dec.InputOffset())
	out := slices.Clone(raw[:end])
	return append(out, closer), nil
}
