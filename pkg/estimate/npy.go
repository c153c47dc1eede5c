package estimate

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	npyMagic = "\x93NUMPY"
	npyAlign = 64

	// widest element accepted from a descr
	npyMaxItem = 1 << 20
)

var (
	npyDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	npyFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	npyShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
	npyType    = regexp.MustCompile(`^[<>|=]?([a-zA-Z?])(\d*)$`)
)

type npyHeader struct {
	Major   byte
	Descr   string
	Fortran bool
	Shape   []int
	Data    int // offset of the first data byte
}

func parseNPY(raw []byte) (npyHeader, error) {
	var h npyHeader
	if len(raw) < 10 || string(raw[:6]) != npyMagic {
		return h, fmt.Errorf("%w: bad npy magic", ErrMalformedInput)
	}
	h.Major = raw[6]

	var hlen, start int
	switch h.Major {
	case 1:
		hlen, start = int(binary.LittleEndian.Uint16(raw[8:10])), 10
	case 2, 3:
		if len(raw) < 12 {
			return h, fmt.Errorf("%w: truncated npy header", ErrMalformedInput)
		}
		hlen, start = int(binary.LittleEndian.Uint32(raw[8:12])), 12
	default:
		return h, fmt.Errorf("%w: npy version %d.%d", ErrUnsupportedFormat, raw[6], raw[7])
	}
	if len(raw) < start+hlen {
		return h, fmt.Errorf("%w: truncated npy header", ErrMalformedInput)
	}
	dict := string(raw[start : start+hlen])
	h.Data = start + hlen

	m := npyDescr.FindStringSubmatch(dict)
	if m == nil {
		return h, fmt.Errorf("%w: npy header without a simple descr", ErrUnsupportedFormat)
	}
	h.Descr = m[1]

	m = npyFortran.FindStringSubmatch(dict)
	if m == nil {
		return h, fmt.Errorf("%w: npy header without fortran_order", ErrMalformedInput)
	}
	h.Fortran = m[1] == "True"

	m = npyShape.FindStringSubmatch(dict)
	if m == nil {
		return h, fmt.Errorf("%w: npy header without shape", ErrMalformedInput)
	}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "L"))
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return h, fmt.Errorf("%w: shape entry %q", ErrMalformedInput, part)
		}
		if n == 0 {
			return h, fmt.Errorf("%w: empty array", ErrUnsupportedFormat)
		}
		h.Shape = append(h.Shape, n)
	}
	return h, nil
}

// itemSize returns the width in bytes of one array element
func (h npyHeader) itemSize() (int, error) {
	m := npyType.FindStringSubmatch(h.Descr)
	if m == nil {
		return 0, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, h.Descr)
	}
	if m[1] == "?" {
		return 1, nil
	}
	if m[2] == "" || m[1] == "O" {
		return 0, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, h.Descr)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 || n > npyMaxItem {
		return 0, fmt.Errorf("%w: dtype %q", ErrMalformedInput, h.Descr)
	}
	if m[1] == "U" {
		return 4 * n, nil
	}
	return n, nil
}

// rowSize returns the byte width of one leading-axis row
func (h npyHeader) rowSize() (int, error) {
	size, err := h.itemSize()
	if err != nil {
		return 0, err
	}
	for _, d := range h.Shape[1:] {
		if size > math.MaxInt/d {
			return 0, fmt.Errorf("%w: row of shape %v overflows", ErrMalformedInput, h.Shape)
		}
		size *= d
	}
	return size, nil
}

func encodeNPYHeader(descr string, shape []int) []byte {
	dims := make([]string, len(shape))
	for idx, d := range shape {
		dims[idx] = strconv.Itoa(d)
	}
	tuple := "(" + strings.Join(dims, ", ") + ")"
	if len(shape) == 1 {
		tuple = "(" + dims[0] + ",)"
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, tuple)

	major, prefix := byte(1), 10
	if len(dict)+1+prefix > 0xffff {
		major, prefix = 2, 12
	}
	pad := (npyAlign - (prefix+len(dict)+1)%npyAlign) % npyAlign
	dict += strings.Repeat(" ", pad) + "\n"

	out := append([]byte(npyMagic), major, 0)
	if major == 1 {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(dict)))
	} else {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(dict)))
	}
	return append(out, dict...)
}

// sampleNPY keeps the first rows rows along the leading axis
func sampleNPY(raw []byte, rows int) ([]byte, error) {
	h, err := parseNPY(raw)
	if err != nil {
		return nil, err
	}
	if h.Fortran {
		return nil, fmt.Errorf("%w: fortran-ordered arrays", ErrUnsupportedFormat)
	}
	if len(h.Shape) == 0 {
		return nil, fmt.Errorf("%w: scalar array", ErrUnsupportedFormat)
	}
	if h.Shape[0] < rows {
		return nil, fmt.Errorf("%w: %d of %d rows", ErrShortInput, h.Shape[0], rows)
	}

	row, err := h.rowSize()
	if err != nil {
		return nil, err
	}
	if have := (len(raw) - h.Data) / row; have < rows {
		return nil, fmt.Errorf("%w: input holds %d complete rows", ErrShortInput, have)
	}
	end := h.Data + rows*row

	shape := append([]int{rows}, h.Shape[1:]...)
	out := encodeNPYHeader(h.Descr, shape)
	return append(out, raw[h.Data:end]...), nil
}
