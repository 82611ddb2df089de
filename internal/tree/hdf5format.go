package tree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

// Object header message types.
const (
	msgDataspace     = 0x0001
	msgLinkInfo      = 0x0002
	msgLink          = 0x0006
	msgAttribute     = 0x000C
	msgContinuation  = 0x0010
	msgSymbolTable   = 0x0011
	msgAttributeInfo = 0x0015
)

const (
	// maxBlock bounds a single metadata read.
	maxBlock = 64 << 20
	// maxContinuations bounds the continuation blocks of one object header.
	maxContinuations = 1024
	// maxTreeDepth bounds group B-tree recursion.
	maxTreeDepth = 32
)

var (
	hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

	errNotHDF5    = errors.New("not an HDF5 file")
	errTruncated  = errors.New("truncated metadata")
	errSharedAttr = errors.New("shared attribute messages are not supported")
)

// cursor decodes little-endian fields from a metadata block. The first
// out-of-range read sets err; later reads return zero values.
type cursor struct {
	b   []byte
	pos int
	err error
}

func (c *cursor) bytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > len(c.b)-c.pos {
		c.err = errTruncated
		return nil
	}
	out := c.b[c.pos : c.pos+n]
	c.pos += n
	return out
}

func (c *cursor) skip(n int) {
	c.bytes(n)
}

func (c *cursor) u8() uint8 {
	b := c.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u16() uint16 {
	return uint16(c.uint(2))
}

func (c *cursor) u32() uint32 {
	return uint32(c.uint(4))
}

// uint reads an n-byte little-endian unsigned integer, n <= 8.
func (c *cursor) uint(n int) uint64 {
	return leUint(c.bytes(n))
}

// align advances to the next multiple of n, stopping at the end of the block.
func (c *cursor) align(n int) {
	c.alignFrom(0, n)
}

// alignFrom advances to the next multiple of n counted from start.
func (c *cursor) alignFrom(start, n int) {
	if c.err != nil {
		return
	}
	c.pos = min(start+(c.pos-start+n-1)/n*n, len(c.b))
}

func (c *cursor) remaining() int {
	return len(c.b) - c.pos
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// h5message is one object header message.
type h5message struct {
	typ   uint16
	flags uint8
	data  []byte
}

// linkKind distinguishes the targets of a group member.
type linkKind uint8

const (
	linkHard linkKind = iota
	linkSoft
	linkExternal
)

// h5link is one named member of a group.
type h5link struct {
	name   string
	kind   linkKind
	addr   uint64 // hard links
	target string // soft links: an object path; external links: the path inside file
	file   string // external links
}

// h5file reads HDF5 metadata: superblock, object headers, group storage
// and heaps. Addresses are relative to the superblock base address.
type h5file struct {
	r          io.ReaderAt
	base       int64
	offsetSize int
	lengthSize int
	root       uint64

	collections map[uint64]map[uint16][]byte
}

// newH5File locates and parses the superblock of the file held by r.
func newH5File(r io.ReaderAt, size int64) (*h5file, error) {
	at := int64(-1)
	sig := make([]byte, len(hdf5Signature))
	for off := int64(0); off+int64(len(sig)) <= size; off = nextSuperblockOffset(off) {
		if _, err := r.ReadAt(sig, off); err != nil {
			break
		}
		if bytes.Equal(sig, hdf5Signature) {
			at = off
			break
		}
	}
	if at < 0 {
		return nil, errNotHDF5
	}

	head := make([]byte, 128)
	n, err := r.ReadAt(head, at)
	if n == 0 && err != nil {
		return nil, fmt.Errorf("read superblock: %w", err)
	}
	c := &cursor{b: head[:n], pos: len(hdf5Signature)}

	f := &h5file{r: r, collections: map[uint64]map[uint16][]byte{}}
	var base uint64
	switch version := c.u8(); version {
	case 0, 1:
		c.skip(4) // free-space, root group and shared header versions
		f.offsetSize = int(c.u8())
		f.lengthSize = int(c.u8())
		c.skip(1)
		c.skip(4) // group leaf and internal node K
		c.skip(4) // consistency flags
		if version == 1 {
			c.skip(4) // indexed storage K
		}
		if err := f.checkSizes(); err != nil {
			return nil, err
		}
		base = c.uint(f.offsetSize)
		c.skip(3 * f.offsetSize) // free-space info, end of file, driver info
		c.skip(f.offsetSize)     // root link name offset
		f.root = c.uint(f.offsetSize)
	case 2, 3:
		f.offsetSize = int(c.u8())
		f.lengthSize = int(c.u8())
		c.skip(1)
		if err := f.checkSizes(); err != nil {
			return nil, err
		}
		base = c.uint(f.offsetSize)
		c.skip(2 * f.offsetSize) // extension, end of file
		f.root = c.uint(f.offsetSize)
	default:
		return nil, fmt.Errorf("unsupported superblock version %d", version)
	}
	if c.err != nil {
		return nil, fmt.Errorf("read superblock: %w", c.err)
	}
	if base > math.MaxInt64 {
		return nil, fmt.Errorf("invalid base address %#x", base)
	}
	f.base = int64(base)
	return f, nil
}

func nextSuperblockOffset(off int64) int64 {
	if off == 0 {
		return 512
	}
	return off * 2
}

func (f *h5file) checkSizes() error {
	for _, n := range []int{f.offsetSize, f.lengthSize} {
		if n != 2 && n != 4 && n != 8 {
			return fmt.Errorf("unsupported offset or length size %d", n)
		}
	}
	return nil
}

// undefined reports whether addr is the undefined address.
func (f *h5file) undefined(addr uint64) bool {
	if f.offsetSize >= 8 {
		return addr == math.MaxUint64
	}
	return addr == 1<<(8*f.offsetSize)-1
}

// read returns exactly n bytes at addr.
func (f *h5file) read(addr uint64, n uint64) ([]byte, error) {
	if n > maxBlock {
		return nil, fmt.Errorf("metadata block of %d bytes at %#x is too large", n, addr)
	}
	if addr > math.MaxInt64-uint64(f.base) {
		return nil, fmt.Errorf("address %#x is out of range", addr)
	}
	buf := make([]byte, n)
	if _, err := f.r.ReadAt(buf, f.base+int64(addr)); err != nil {
		return nil, fmt.Errorf("read %d bytes at %#x: %w", n, addr, err)
	}
	return buf, nil
}

// peek returns up to n bytes at addr; fewer at the end of the file.
func (f *h5file) peek(addr uint64, n int) ([]byte, error) {
	if addr > math.MaxInt64-uint64(f.base) {
		return nil, fmt.Errorf("address %#x is out of range", addr)
	}
	buf := make([]byte, n)
	got, err := f.r.ReadAt(buf, f.base+int64(addr))
	if got == 0 && err != nil {
		return nil, fmt.Errorf("read at %#x: %w", addr, err)
	}
	return buf[:got], nil
}

// header reads the messages of the object header at addr, following
// continuation blocks.
func (f *h5file) header(addr uint64) ([]h5message, error) {
	prefix, err := f.peek(addr, 48)
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(prefix, []byte("OHDR")):
		return f.headerV2(addr, prefix)
	case len(prefix) >= 16 && prefix[0] == 1:
		return f.headerV1(addr, prefix)
	}
	return nil, fmt.Errorf("no object header at %#x", addr)
}

func (f *h5file) headerV1(addr uint64, prefix []byte) ([]h5message, error) {
	c := &cursor{b: prefix, pos: 2}
	count := int(c.u16())
	c.skip(4) // reference count
	size := uint64(c.u32())

	block, err := f.read(addr+16, size)
	if err != nil {
		return nil, fmt.Errorf("object header at %#x: %w", addr, err)
	}

	var msgs []h5message
	queue := [][]byte{block}
	for blocks := 0; len(queue) > 0 && len(msgs) < count; blocks++ {
		if blocks > maxContinuations {
			return nil, fmt.Errorf("object header at %#x: too many continuation blocks", addr)
		}
		c := &cursor{b: queue[0]}
		queue = queue[1:]
		for c.remaining() >= 8 && len(msgs) < count {
			m := h5message{typ: c.u16()}
			size := int(c.u16())
			m.flags = c.u8()
			c.skip(3)
			m.data = c.bytes(size)
			if c.err != nil {
				return nil, fmt.Errorf("object header at %#x: %w", addr, c.err)
			}
			if m.typ == msgContinuation {
				next, err := f.continuation(m.data, false)
				if err != nil {
					return nil, fmt.Errorf("object header at %#x: %w", addr, err)
				}
				queue = append(queue, next)
			}
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (f *h5file) headerV2(addr uint64, prefix []byte) ([]h5message, error) {
	c := &cursor{b: prefix, pos: 4}
	if v := c.u8(); v != 2 {
		return nil, fmt.Errorf("object header at %#x: unsupported version %d", addr, v)
	}
	flags := c.u8()
	if flags&0x20 != 0 {
		c.skip(16) // access, modification, change and birth times
	}
	if flags&0x10 != 0 {
		c.skip(4) // attribute phase change values
	}
	size := c.uint(1 << (flags & 0x03))
	if c.err != nil {
		return nil, fmt.Errorf("object header at %#x: %w", addr, c.err)
	}

	block, err := f.read(addr+uint64(c.pos), size)
	if err != nil {
		return nil, fmt.Errorf("object header at %#x: %w", addr, err)
	}

	ordered := flags&0x04 != 0
	hdr := 4
	if ordered {
		hdr = 6
	}

	var msgs []h5message
	queue := [][]byte{block}
	for blocks := 0; len(queue) > 0; blocks++ {
		if blocks > maxContinuations {
			return nil, fmt.Errorf("object header at %#x: too many continuation blocks", addr)
		}
		c := &cursor{b: queue[0]}
		queue = queue[1:]
		for c.remaining() >= hdr {
			m := h5message{typ: uint16(c.u8())}
			size := int(c.u16())
			m.flags = c.u8()
			if ordered {
				c.skip(2)
			}
			m.data = c.bytes(size)
			if c.err != nil {
				return nil, fmt.Errorf("object header at %#x: %w", addr, c.err)
			}
			if m.typ == msgContinuation {
				next, err := f.continuation(m.data, true)
				if err != nil {
					return nil, fmt.Errorf("object header at %#x: %w", addr, err)
				}
				queue = append(queue, next)
			}
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// continuation reads the block named by a continuation message. Version 2
// blocks lose their signature and checksum.
func (f *h5file) continuation(data []byte, v2 bool) ([]byte, error) {
	c := &cursor{b: data}
	addr := c.uint(f.offsetSize)
	length := c.uint(f.lengthSize)
	if c.err != nil {
		return nil, fmt.Errorf("continuation message: %w", c.err)
	}
	block, err := f.read(addr, length)
	if err != nil {
		return nil, fmt.Errorf("continuation block: %w", err)
	}
	if !v2 {
		return block, nil
	}
	if len(block) < 8 || !bytes.HasPrefix(block, []byte("OCHK")) {
		return nil, fmt.Errorf("continuation block at %#x: bad signature", addr)
	}
	return block[4 : len(block)-4], nil
}

// isGroup reports whether msgs belong to a group.
func isGroup(msgs []h5message) bool {
	for _, m := range msgs {
		switch m.typ {
		case msgLinkInfo, msgLink, msgSymbolTable:
			return true
		}
	}
	return false
}

// links returns the members of the group whose header holds msgs, in
// storage order.
func (f *h5file) links(msgs []h5message) ([]h5link, error) {
	var links []h5link
	for _, m := range msgs {
		switch m.typ {
		case msgLink:
			l, _, err := f.parseLink(m.data)
			if err != nil {
				return nil, err
			}
			links = append(links, l)
		case msgSymbolTable:
			c := &cursor{b: m.data}
			btree := c.uint(f.offsetSize)
			heap := c.uint(f.offsetSize)
			if c.err != nil {
				return nil, fmt.Errorf("symbol table message: %w", c.err)
			}
			more, err := f.symbolTable(btree, heap)
			if err != nil {
				return nil, err
			}
			links = append(links, more...)
		case msgLinkInfo:
			c := &cursor{b: m.data, pos: 1}
			if c.u8()&0x01 != 0 {
				c.skip(8) // maximum creation index
			}
			heap := c.uint(f.offsetSize)
			if c.err != nil {
				return nil, fmt.Errorf("link info message: %w", c.err)
			}
			if f.undefined(heap) {
				continue
			}
			err := f.heapObjects(heap, func(obj []byte) (int, error) {
				l, n, err := f.parseLink(obj)
				if err != nil {
					return 0, err
				}
				links = append(links, l)
				return n, nil
			})
			if err != nil {
				return nil, fmt.Errorf("dense link storage: %w", err)
			}
		}
	}
	return links, nil
}

// parseLink decodes a link message and reports the bytes it used.
func (f *h5file) parseLink(data []byte) (h5link, int, error) {
	var l h5link
	c := &cursor{b: data}
	if v := c.u8(); v != 1 {
		return l, 0, fmt.Errorf("unsupported link message version %d", v)
	}
	flags := c.u8()
	kind := uint8(0)
	if flags&0x08 != 0 {
		kind = c.u8()
	}
	if flags&0x04 != 0 {
		c.skip(8) // creation order
	}
	if flags&0x10 != 0 {
		c.skip(1) // name character set
	}
	l.name = string(c.bytes(int(c.uint(1 << (flags & 0x03)))))

	switch {
	case kind == 0:
		l.kind = linkHard
		l.addr = c.uint(f.offsetSize)
	case kind == 1:
		l.kind = linkSoft
		l.target = string(c.bytes(int(c.u16())))
	case kind >= 64:
		l.kind = linkExternal
		info := c.bytes(int(c.u16()))
		if len(info) > 0 {
			parts := bytes.SplitN(info[1:], []byte{0}, 3)
			if len(parts) >= 2 {
				l.file, l.target = string(parts[0]), string(parts[1])
			}
		}
		if l.file == "" || l.target == "" {
			return l, 0, fmt.Errorf("link %q: malformed external link", l.name)
		}
	default:
		return l, 0, fmt.Errorf("link %q: unknown link type %d", l.name, kind)
	}
	if c.err != nil {
		return l, 0, fmt.Errorf("link message: %w", c.err)
	}
	return l, c.pos, nil
}

// symbolTable lists the members of an old-style group from its B-tree and
// local heap. Symbol table entries cached as soft links carry the link
// value's heap offset in their scratch pad.
func (f *h5file) symbolTable(btree, heapAddr uint64) ([]h5link, error) {
	heap, err := f.localHeap(heapAddr)
	if err != nil {
		return nil, err
	}

	var links []h5link
	err = f.groupNodes(btree, 0, func(snod uint64) error {
		head, err := f.read(snod, 8)
		if err != nil {
			return fmt.Errorf("symbol table node: %w", err)
		}
		if !bytes.HasPrefix(head, []byte("SNOD")) {
			return fmt.Errorf("symbol table node at %#x: bad signature", snod)
		}
		count := uint64(leUint(head[6:8]))
		entrySize := uint64(2*f.offsetSize + 24)
		body, err := f.read(snod+8, count*entrySize)
		if err != nil {
			return fmt.Errorf("symbol table node: %w", err)
		}

		c := &cursor{b: body}
		for range count {
			nameOff := c.uint(f.offsetSize)
			addr := c.uint(f.offsetSize)
			cache := c.u32()
			c.skip(4)
			scratch := c.bytes(16)
			if c.err != nil {
				return fmt.Errorf("symbol table node at %#x: %w", snod, c.err)
			}
			name, err := heapString(heap, nameOff)
			if err != nil {
				return err
			}
			if cache == 2 {
				target, err := heapString(heap, leUint(scratch[:4]))
				if err != nil {
					return fmt.Errorf("soft link %q: %w", name, err)
				}
				links = append(links, h5link{name: name, kind: linkSoft, target: target})
				continue
			}
			links = append(links, h5link{name: name, kind: linkHard, addr: addr})
		}
		return nil
	})
	return links, err
}

// groupNodes calls fn with the address of every symbol table node under
// the group B-tree node at addr, in key order.
func (f *h5file) groupNodes(addr uint64, depth int, fn func(snod uint64) error) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("group B-tree at %#x is too deep", addr)
	}
	hdr := uint64(8 + 2*f.offsetSize)
	head, err := f.read(addr, hdr)
	if err != nil {
		return fmt.Errorf("group B-tree: %w", err)
	}
	if !bytes.HasPrefix(head, []byte("TREE")) || head[4] != 0 {
		return fmt.Errorf("group B-tree at %#x: bad signature", addr)
	}
	level := head[5]
	entries := leUint(head[6:8])

	body, err := f.read(addr+hdr, entries*uint64(f.lengthSize+f.offsetSize))
	if err != nil {
		return fmt.Errorf("group B-tree: %w", err)
	}
	c := &cursor{b: body}
	for range entries {
		c.skip(f.lengthSize)
		child := c.uint(f.offsetSize)
		if c.err != nil {
			return fmt.Errorf("group B-tree at %#x: %w", addr, c.err)
		}
		if level > 0 {
			err = f.groupNodes(child, depth+1, fn)
		} else {
			err = fn(child)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// localHeap returns the data segment of the local heap at addr.
func (f *h5file) localHeap(addr uint64) ([]byte, error) {
	head, err := f.read(addr, uint64(8+2*f.lengthSize+f.offsetSize))
	if err != nil {
		return nil, fmt.Errorf("local heap: %w", err)
	}
	if !bytes.HasPrefix(head, []byte("HEAP")) {
		return nil, fmt.Errorf("local heap at %#x: bad signature", addr)
	}
	c := &cursor{b: head, pos: 8}
	size := c.uint(f.lengthSize)
	c.skip(f.lengthSize) // free list head
	data := c.uint(f.offsetSize)
	if c.err != nil {
		return nil, fmt.Errorf("local heap at %#x: %w", addr, c.err)
	}
	seg, err := f.read(data, size)
	if err != nil {
		return nil, fmt.Errorf("local heap data: %w", err)
	}
	return seg, nil
}

func heapString(heap []byte, off uint64) (string, error) {
	if off >= uint64(len(heap)) {
		return "", fmt.Errorf("heap offset %d is out of range", off)
	}
	s := heap[off:]
	end := bytes.IndexByte(s, 0)
	if end < 0 {
		return "", fmt.Errorf("heap string at %d is not terminated", off)
	}
	return string(s[:end]), nil
}

// heapObjects calls each on the managed objects of the fractal heap at
// addr, block by block. each decodes one object from the front of its
// argument and returns the bytes it used; objects are packed, and the
// walk stops after the heap's object count or at zeroed free space.
func (f *h5file) heapObjects(addr uint64, each func(obj []byte) (int, error)) error {
	head, err := f.read(addr, uint64(22+12*f.lengthSize+3*f.offsetSize))
	if err != nil {
		return fmt.Errorf("fractal heap: %w", err)
	}
	if !bytes.HasPrefix(head, []byte("FRHP")) {
		return fmt.Errorf("fractal heap at %#x: bad signature", addr)
	}
	c := &cursor{b: head, pos: 5}
	c.skip(2) // heap ID length
	filters := c.u16()
	flags := c.u8()
	c.skip(4) // maximum managed object size
	c.skip(f.lengthSize + f.offsetSize) // huge objects
	c.skip(f.lengthSize + f.offsetSize) // free space
	c.skip(3 * f.lengthSize)            // managed space statistics
	count := c.uint(f.lengthSize)
	c.skip(4 * f.lengthSize) // huge and tiny sizes and counts

	// Doubling table.
	width := int(c.u16())
	start := c.uint(f.lengthSize)
	maxDirect := c.uint(f.lengthSize)
	offBytes := (int(c.u16()) + 7) / 8
	c.skip(2) // starting root rows
	root := c.uint(f.offsetSize)
	rows := int(c.u16())
	if c.err != nil {
		return fmt.Errorf("fractal heap at %#x: %w", addr, c.err)
	}
	if filters != 0 {
		return fmt.Errorf("fractal heap at %#x: filtered heaps are not supported", addr)
	}
	if f.undefined(root) || count == 0 {
		return nil
	}

	blockHdr := 5 + f.offsetSize + offBytes
	if flags&0x02 != 0 {
		blockHdr += 4
	}
	remaining := count
	direct := func(baddr, size uint64) error {
		blk, err := f.read(baddr, size)
		if err != nil {
			return fmt.Errorf("direct block: %w", err)
		}
		if !bytes.HasPrefix(blk, []byte("FHDB")) || len(blk) < blockHdr {
			return fmt.Errorf("direct block at %#x: bad signature", baddr)
		}
		data := blk[blockHdr:]
		for remaining > 0 && len(data) > 0 && data[0] != 0 {
			n, err := each(data)
			if err != nil {
				return err
			}
			if n <= 0 || n > len(data) {
				return fmt.Errorf("direct block at %#x: bad object length", baddr)
			}
			data = data[n:]
			remaining--
		}
		return nil
	}

	if rows == 0 {
		return direct(root, start)
	}
	if start == 0 || width == 0 {
		return fmt.Errorf("fractal heap at %#x: bad doubling table", addr)
	}

	maxDirectRows := bits.Len64(maxDirect) - bits.Len64(start) + 2
	ib, err := f.read(root, uint64(5+f.offsetSize+offBytes+rows*width*f.offsetSize))
	if err != nil {
		return fmt.Errorf("indirect block: %w", err)
	}
	if !bytes.HasPrefix(ib, []byte("FHIB")) {
		return fmt.Errorf("indirect block at %#x: bad signature", root)
	}
	ic := &cursor{b: ib, pos: 5 + f.offsetSize + offBytes}
	for row := range rows {
		size := start
		if row > 1 {
			size = start << (row - 1)
		}
		for range width {
			child := ic.uint(f.offsetSize)
			if ic.err != nil {
				return fmt.Errorf("indirect block at %#x: %w", root, ic.err)
			}
			if f.undefined(child) || child == 0 {
				continue
			}
			if row >= maxDirectRows {
				return fmt.Errorf("fractal heap at %#x: nested indirect blocks are not supported", addr)
			}
			if err := direct(child, size); err != nil {
				return err
			}
		}
	}
	return nil
}

// globalObject returns object index of the global heap collection at addr.
func (f *h5file) globalObject(addr uint64, index uint32) ([]byte, error) {
	objs, ok := f.collections[addr]
	if !ok {
		var err error
		if objs, err = f.globalCollection(addr); err != nil {
			return nil, err
		}
		f.collections[addr] = objs
	}
	obj, ok := objs[uint16(index)]
	if !ok || index > math.MaxUint16 {
		return nil, fmt.Errorf("global heap at %#x has no object %d", addr, index)
	}
	return obj, nil
}

func (f *h5file) globalCollection(addr uint64) (map[uint16][]byte, error) {
	head, err := f.read(addr, uint64(8+f.lengthSize))
	if err != nil {
		return nil, fmt.Errorf("global heap: %w", err)
	}
	if !bytes.HasPrefix(head, []byte("GCOL")) {
		return nil, fmt.Errorf("global heap at %#x: bad signature", addr)
	}
	size := leUint(head[8:])
	blk, err := f.read(addr, size)
	if err != nil {
		return nil, fmt.Errorf("global heap: %w", err)
	}

	objs := map[uint16][]byte{}
	c := &cursor{b: blk, pos: 8 + f.lengthSize}
	c.align(8)
	for c.remaining() >= 8+f.lengthSize {
		id := c.u16()
		c.skip(6) // reference count, reserved
		n := c.uint(f.lengthSize)
		if id == 0 {
			break // free space
		}
		if n > uint64(c.remaining()) {
			return nil, fmt.Errorf("global heap at %#x: object %d overruns the collection", addr, id)
		}
		objs[id] = c.bytes(int(n))
		c.align(8)
	}
	return objs, nil
}
