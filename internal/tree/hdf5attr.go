package tree

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/nxcheck/internal/value"
)

// Datatype classes.
const (
	classFixed     = 0
	classFloat     = 1
	classString    = 3
	classBitfield  = 4
	classOpaque    = 5
	classCompound  = 6
	classReference = 7
	classEnum      = 8
	classVlen      = 9
	classArray     = 10
)

// maxElements bounds the element count of one attribute.
const maxElements = 1 << 24

// h5datatype is a decoded datatype message.
type h5datatype struct {
	class   uint8
	version uint8
	bits    uint32
	size    uint32

	base    *h5datatype // enum, vlen and array
	dims    []uint64    // array
	members []string    // enum
	values  [][]byte    // enum
}

func (t *h5datatype) bigEndian() bool {
	return t.bits&0x01 != 0
}

// unsupportedType reports a datatype the attribute decoder does not read.
type unsupportedType struct {
	class uint8
}

func (e *unsupportedType) Error() string {
	return fmt.Sprintf("datatype class %d", e.class)
}

// parseDatatype decodes a datatype message from the front of b and
// reports the bytes it used.
func parseDatatype(b []byte) (*h5datatype, int, error) {
	c := &cursor{b: b}
	word := c.u32()
	t := &h5datatype{
		class:   uint8(word & 0x0f),
		version: uint8(word>>4) & 0x0f,
		bits:    word >> 8,
		size:    c.u32(),
	}

	switch t.class {
	case classFixed, classBitfield:
		c.skip(4) // bit offset, precision
	case classFloat:
		c.skip(12) // offset, precision and exponent and mantissa layout
	case 2: // time
		c.skip(2)
	case classString, classReference:
	case classOpaque:
		c.skip(int(t.bits & 0xff))
	case classVlen:
		base, n, err := parseDatatype(b[c.pos:])
		if err != nil {
			return nil, 0, err
		}
		t.base = base
		c.skip(n)
	case classArray:
		rank := int(c.u8())
		if t.version < 3 {
			c.skip(3)
		}
		for range rank {
			t.dims = append(t.dims, uint64(c.u32()))
		}
		if t.version < 3 {
			c.skip(4 * rank) // permutation
		}
		if c.err != nil {
			return nil, 0, fmt.Errorf("array datatype: %w", c.err)
		}
		base, n, err := parseDatatype(b[c.pos:])
		if err != nil {
			return nil, 0, err
		}
		t.base = base
		c.skip(n)
	case classEnum:
		base, n, err := parseDatatype(b[c.pos:])
		if err != nil {
			return nil, 0, err
		}
		t.base = base
		c.skip(n)
		count := int(t.bits & 0xffff)
		for range count {
			start := min(c.pos, len(b))
			end := bytes.IndexByte(b[start:], 0)
			if end < 0 {
				return nil, 0, fmt.Errorf("enum datatype: unterminated member name")
			}
			t.members = append(t.members, string(b[start:start+end]))
			c.skip(end + 1)
			if t.version < 3 {
				c.alignFrom(start, 8)
			}
		}
		for range count {
			t.values = append(t.values, c.bytes(int(base.size)))
		}
	case classCompound:
		// Members are not decoded; the caller bounds the message.
		return t, len(b), nil
	default:
		return nil, 0, fmt.Errorf("unknown datatype class %d", t.class)
	}
	if c.err != nil {
		return nil, 0, fmt.Errorf("datatype class %d: %w", t.class, c.err)
	}
	return t, c.pos, nil
}

// h5dataspace is a decoded dataspace message.
type h5dataspace struct {
	dims []uint64
	null bool
}

func parseDataspace(b []byte) (h5dataspace, error) {
	var s h5dataspace
	c := &cursor{b: b}
	version := c.u8()
	rank := int(c.u8())
	c.u8() // flags
	switch version {
	case 1:
		c.skip(5)
	case 2:
		s.null = c.u8() == 2
	default:
		return s, fmt.Errorf("unsupported dataspace version %d", version)
	}
	for range rank {
		s.dims = append(s.dims, c.uint(8))
	}
	if c.err != nil {
		return s, fmt.Errorf("dataspace: %w", c.err)
	}
	return s, nil
}

// count returns the number of elements.
func (s h5dataspace) count() uint64 {
	if s.null {
		return 0
	}
	n := uint64(1)
	for _, d := range s.dims {
		if d != 0 && n > maxElements/d {
			return maxElements + 1
		}
		n *= d
	}
	return n
}

// shape returns the dataset shape, nil for scalars.
func (s h5dataspace) shape() []int {
	if len(s.dims) == 0 {
		return nil
	}
	out := make([]int, len(s.dims))
	for i, d := range s.dims {
		out[i] = int(min(d, math.MaxInt32))
	}
	return out
}

// attribute decodes an attribute message and reports the bytes it used.
// An error with a non-empty name concerns that attribute's value only;
// with an empty name the message itself is unreadable.
func (f *h5file) attribute(data []byte) (name string, v value.Value, n int, err error) {
	c := &cursor{b: data}
	version := c.u8()
	flags := c.u8()
	nameSize := int(c.u16())
	dtSize := int(c.u16())
	dsSize := int(c.u16())
	if version < 1 || version > 3 {
		return "", nil, 0, fmt.Errorf("unsupported attribute message version %d", version)
	}
	if version == 3 {
		c.skip(1) // name character set
	}
	padded := func(size int) []byte {
		b := c.bytes(size)
		if version == 1 {
			c.align(8)
		}
		return b
	}
	rawName := padded(nameSize)
	if c.err != nil {
		return "", nil, 0, fmt.Errorf("attribute message: %w", c.err)
	}
	name = string(bytes.TrimRight(rawName, "\x00"))
	dtBytes := padded(dtSize)
	dsBytes := padded(dsSize)
	if c.err != nil {
		return name, nil, 0, c.err
	}
	if version > 1 && flags&0x03 != 0 {
		return name, nil, 0, errors.New("shared datatype or dataspace")
	}

	dt, _, err := parseDatatype(dtBytes)
	if err != nil {
		return name, nil, 0, err
	}
	ds, err := parseDataspace(dsBytes)
	if err != nil {
		return name, nil, 0, err
	}
	count := ds.count()
	if count > maxElements || uint64(dt.size)*count > maxBlock {
		return name, nil, 0, errors.New("too many elements")
	}
	raw := c.bytes(int(uint64(dt.size) * count))
	if c.err != nil {
		return name, nil, 0, fmt.Errorf("data: %w", c.err)
	}
	n = c.pos

	if ds.null {
		return name, value.Null{}, n, nil
	}
	elems, err := f.decodeElements(dt, raw, int(count))
	if err != nil {
		return name, nil, n, err
	}
	// One-element vectors read as scalars, as attribute writers store
	// scalars that way.
	if len(ds.dims) == 0 || (len(ds.dims) == 1 && ds.dims[0] == 1) {
		return name, elems[0], n, nil
	}
	return name, nest(elems, ds.dims), n, nil
}

// nest shapes a flat row-major element list by dims.
func nest(elems []value.Value, dims []uint64) value.Value {
	if len(dims) <= 1 {
		return value.List(elems)
	}
	stride := len(elems) / max(int(dims[0]), 1)
	out := make(value.List, 0, dims[0])
	for i := range int(dims[0]) {
		out = append(out, nest(elems[i*stride:(i+1)*stride], dims[1:]))
	}
	return out
}

// decodeElements decodes count consecutive elements of type t from raw.
func (f *h5file) decodeElements(t *h5datatype, raw []byte, count int) ([]value.Value, error) {
	size := int(t.size)
	if size == 0 || len(raw) < size*count {
		return nil, fmt.Errorf("datatype class %d: %d bytes for %d elements", t.class, len(raw), count)
	}
	out := make([]value.Value, count)
	for i := range count {
		v, err := f.decodeElement(t, raw[i*size:(i+1)*size])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *h5file) decodeElement(t *h5datatype, b []byte) (value.Value, error) {
	switch t.class {
	case classFixed:
		return decodeFixed(t, b)
	case classFloat:
		return decodeFloat(t, b)
	case classString:
		return value.Bytes(trimString(b, t.bits&0x0f)), nil
	case classEnum:
		for i, v := range t.values {
			if bytes.Equal(v, b) {
				return enumValue(t.members, i), nil
			}
		}
		return nil, fmt.Errorf("enum value %x has no member", b)
	case classArray:
		n := uint64(1)
		for _, d := range t.dims {
			n *= d
		}
		elems, err := f.decodeElements(t.base, b, int(min(n, maxElements)))
		if err != nil {
			return nil, err
		}
		return nest(elems, t.dims), nil
	case classVlen:
		return f.decodeVlen(t, b)
	}
	return nil, &unsupportedType{class: t.class}
}

func decodeFixed(t *h5datatype, b []byte) (value.Value, error) {
	if len(b) != 1 && len(b) != 2 && len(b) != 4 && len(b) != 8 {
		return nil, fmt.Errorf("%d-byte integer", len(b))
	}
	u := leUint(b)
	if t.bigEndian() {
		u = beUint(b)
	}
	if t.bits&0x08 == 0 {
		if u > math.MaxInt64 {
			return value.Float(float64(u)), nil
		}
		return value.Int(int64(u)), nil
	}
	shift := 64 - 8*len(b)
	return value.Int(int64(u<<shift) >> shift), nil
}

func decodeFloat(t *h5datatype, b []byte) (value.Value, error) {
	if t.bits&0x40 != 0 {
		return nil, errors.New("VAX floating point")
	}
	u := leUint(b)
	if t.bigEndian() {
		u = beUint(b)
	}
	switch len(b) {
	case 4:
		return value.Float(float64(math.Float32frombits(uint32(u)))), nil
	case 8:
		return value.Float(math.Float64frombits(u)), nil
	}
	return nil, fmt.Errorf("%d-byte float", len(b))
}

// trimString applies fixed-length string padding: 0 null-terminated,
// 1 null-padded, 2 space-padded.
func trimString(b []byte, pad uint32) []byte {
	switch pad {
	case 0:
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
	case 1:
		b = bytes.TrimRight(b, "\x00")
	case 2:
		b = bytes.TrimRight(b, " ")
	}
	return bytes.Clone(b)
}

// enumValue maps FALSE/TRUE enums to booleans and other members to
// their names.
func enumValue(members []string, i int) value.Value {
	if len(members) == 2 && members[0] == "FALSE" && members[1] == "TRUE" {
		return value.Bool(i == 1)
	}
	return value.String(members[i])
}

// decodeVlen reads a variable-length element from the global heap.
// Strings become text; sequences become lists of their base type.
func (f *h5file) decodeVlen(t *h5datatype, b []byte) (value.Value, error) {
	c := &cursor{b: b}
	length := c.u32()
	addr := c.uint(f.offsetSize)
	index := c.u32()
	if c.err != nil {
		return nil, fmt.Errorf("variable-length element: %w", c.err)
	}

	str := t.bits&0x0f == 1
	if length == 0 || addr == 0 {
		if str {
			return value.String(""), nil
		}
		return value.List{}, nil
	}
	obj, err := f.globalObject(addr, index)
	if err != nil {
		return nil, err
	}
	if str {
		if int(length) > len(obj) {
			return nil, fmt.Errorf("variable-length string of %d bytes overruns its heap object", length)
		}
		return value.String(bytes.TrimRight(obj[:length], "\x00")), nil
	}
	if uint64(length) > maxElements {
		return nil, fmt.Errorf("variable-length sequence of %d elements", length)
	}
	elems, err := f.decodeElements(t.base, obj, int(length))
	if err != nil {
		return nil, err
	}
	return value.List(elems), nil
}
