package tree

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// h5image assembles small HDF5 files byte by byte, for layouts the
// library writer cannot produce. Offsets and lengths are 8 bytes.
type h5image struct {
	buf []byte
}

const undefAddr = ^uint64(0)

var le = binary.LittleEndian

// newImageV2 starts a file with a version 2 superblock.
func newImageV2() *h5image {
	b := append([]byte{}, hdf5Signature...)
	b = append(b, 2, 8, 8, 0)
	b = le.AppendUint64(b, 0)         // base address
	b = le.AppendUint64(b, undefAddr) // superblock extension
	b = le.AppendUint64(b, 0)         // end of file
	b = le.AppendUint64(b, 0)         // root object header
	b = le.AppendUint32(b, 0)         // checksum
	return &h5image{buf: b}
}

// newImageV0 starts a file with a version 0 superblock.
func newImageV0() *h5image {
	b := append([]byte{}, hdf5Signature...)
	b = append(b, 0, 0, 0, 0, 0, 8, 8, 0)
	b = le.AppendUint16(b, 4)  // group leaf node K
	b = le.AppendUint16(b, 16) // group internal node K
	b = le.AppendUint32(b, 0)
	b = le.AppendUint64(b, 0) // base address
	b = le.AppendUint64(b, undefAddr)
	b = le.AppendUint64(b, 0) // end of file
	b = le.AppendUint64(b, undefAddr)
	// Root symbol table entry.
	b = le.AppendUint64(b, 0)
	b = le.AppendUint64(b, 0) // object header
	b = le.AppendUint32(b, 0)
	b = le.AppendUint32(b, 0)
	b = append(b, make([]byte, 16)...)
	return &h5image{buf: b}
}

// add appends an 8-byte aligned block and returns its address.
func (im *h5image) add(block []byte) uint64 {
	for len(im.buf)%8 != 0 {
		im.buf = append(im.buf, 0)
	}
	addr := uint64(len(im.buf))
	im.buf = append(im.buf, block...)
	return addr
}

// setRoot points the superblock at the root group's object header.
func (im *h5image) setRoot(addr uint64) {
	if im.buf[8] == 0 {
		le.PutUint64(im.buf[64:], addr)
		return
	}
	le.PutUint64(im.buf[36:], addr)
}

func (im *h5image) write(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, im.buf, 0o644))
	return path
}

func (im *h5image) writeTo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, im.buf, 0o644))
	return path
}

// ohdr encodes a version 2 object header with a 4-byte chunk size.
func ohdr(msgs ...h5message) []byte {
	var body []byte
	for _, m := range msgs {
		body = append(body, uint8(m.typ))
		body = le.AppendUint16(body, uint16(len(m.data)))
		body = append(body, m.flags)
		body = append(body, m.data...)
	}
	b := append([]byte("OHDR"), 2, 0x02)
	b = le.AppendUint32(b, uint32(len(body)))
	b = append(b, body...)
	return le.AppendUint32(b, 0)
}

// ohdrV1 encodes a version 1 object header.
func ohdrV1(msgs ...h5message) []byte {
	var body []byte
	for _, m := range msgs {
		data := pad8(m.data)
		body = le.AppendUint16(body, m.typ)
		body = le.AppendUint16(body, uint16(len(data)))
		body = append(body, m.flags, 0, 0, 0)
		body = append(body, data...)
	}
	b := []byte{1, 0}
	b = le.AppendUint16(b, uint16(len(msgs)))
	b = le.AppendUint32(b, 1)
	b = le.AppendUint32(b, uint32(len(body)))
	b = append(b, 0, 0, 0, 0)
	return append(b, body...)
}

func pad8(b []byte) []byte {
	out := append([]byte{}, b...)
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	return out
}

func hardLink(name string, addr uint64) h5message {
	b := []byte{1, 0, uint8(len(name))}
	b = append(b, name...)
	return h5message{typ: msgLink, data: le.AppendUint64(b, addr)}
}

func softLinkMsg(name, target string) h5message {
	b := []byte{1, 0x08, 1, uint8(len(name))}
	b = append(b, name...)
	b = le.AppendUint16(b, uint16(len(target)))
	return h5message{typ: msgLink, data: append(b, target...)}
}

func externalLinkMsg(name, file, obj string) h5message {
	info := append([]byte{0}, file...)
	info = append(info, 0)
	info = append(info, obj...)
	info = append(info, 0)
	b := []byte{1, 0x08, 64, uint8(len(name))}
	b = append(b, name...)
	b = le.AppendUint16(b, uint16(len(info)))
	return h5message{typ: msgLink, data: append(b, info...)}
}

// attr encodes a version 3 attribute message.
func attr(name string, dt, ds, data []byte) h5message {
	b := []byte{3, 0}
	b = le.AppendUint16(b, uint16(len(name)+1))
	b = le.AppendUint16(b, uint16(len(dt)))
	b = le.AppendUint16(b, uint16(len(ds)))
	b = append(b, 0)
	b = append(b, name...)
	b = append(b, 0)
	b = append(b, dt...)
	b = append(b, ds...)
	return h5message{typ: msgAttribute, data: append(b, data...)}
}

// attrV1 encodes a version 1 attribute message, fields padded to 8 bytes.
func attrV1(name string, dt, ds, data []byte) h5message {
	b := []byte{1, 0}
	b = le.AppendUint16(b, uint16(len(name)+1))
	b = le.AppendUint16(b, uint16(len(dt)))
	b = le.AppendUint16(b, uint16(len(ds)))
	b = append(b, pad8(append([]byte(name), 0))...)
	b = append(b, pad8(dt)...)
	b = append(b, pad8(ds)...)
	return h5message{typ: msgAttribute, data: append(b, data...)}
}

func dtype(class, bits, size uint32, props ...byte) []byte {
	b := le.AppendUint32(nil, class|1<<4|bits<<8)
	b = le.AppendUint32(b, size)
	return append(b, props...)
}

func dtString(size, padding uint32) []byte {
	return dtype(classString, padding, size)
}

func dtInt(size uint32, signed, bigEndian bool) []byte {
	var bits uint32
	if bigEndian {
		bits |= 0x01
	}
	if signed {
		bits |= 0x08
	}
	return dtype(classFixed, bits, size, 0, 0, uint8(size*8), 0)
}

func dtFloat64() []byte {
	return dtype(classFloat, 0, 8, make([]byte, 12)...)
}

func dtVlenString() []byte {
	return append(dtype(classVlen, 1, 16), dtInt(1, false, false)...)
}

func dtCompound() []byte {
	return dtype(classCompound, 1, 8, append([]byte("x\x00\x00\x00\x00\x00\x00\x00"), make([]byte, 8)...)...)
}

func dtBoolEnum() []byte {
	b := append(dtype(classEnum, 2, 1), dtInt(1, true, false)...)
	b = append(b, pad8([]byte("FALSE\x00"))...)
	b = append(b, pad8([]byte("TRUE\x00"))...)
	return append(b, 0, 1)
}

// dspace encodes a version 2 dataspace; no dims is a scalar.
func dspace(dims ...uint64) []byte {
	b := []byte{2, uint8(len(dims)), 0, 1}
	if len(dims) == 0 {
		b[3] = 0
	}
	for _, d := range dims {
		b = le.AppendUint64(b, d)
	}
	return b
}

func dspaceV1(dims ...uint64) []byte {
	b := []byte{1, uint8(len(dims)), 0, 0, 0, 0, 0, 0}
	for _, d := range dims {
		b = le.AppendUint64(b, d)
	}
	return b
}

func dataset(dims []uint64, attrs ...h5message) []byte {
	msgs := []h5message{
		{typ: msgDataspace, data: dspace(dims...)},
		{typ: 0x0003, data: dtFloat64()},
	}
	return ohdr(append(msgs, attrs...)...)
}

// globalHeap encodes a collection holding objs with ids from 1.
func globalHeap(objs ...string) []byte {
	var body []byte
	for i, obj := range objs {
		body = le.AppendUint16(body, uint16(i+1))
		body = le.AppendUint16(body, 1)
		body = le.AppendUint32(body, 0)
		body = le.AppendUint64(body, uint64(len(obj)))
		body = append(body, pad8([]byte(obj))...)
	}
	body = append(body, make([]byte, 16)...) // free space
	b := append([]byte("GCOL"), 1, 0, 0, 0)
	b = le.AppendUint64(b, uint64(16+len(body)))
	return append(b, body...)
}

// vlenRef encodes the variable-length element for object index of the
// collection at addr.
func vlenRef(length int, addr uint64, index uint32) []byte {
	b := le.AppendUint32(nil, uint32(length))
	b = le.AppendUint64(b, addr)
	return le.AppendUint32(b, index)
}
