package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/nxcheck/internal/value"
)

// maxExternalDepth bounds chains of external links across files.
const maxExternalDepth = 8

// OpenHDF5 opens a NeXus/HDF5 file and indexes every group and dataset with
// its attributes. All metadata is read before OpenHDF5 returns, so the
// file is not held open by the returned Tree.
//
// Soft links must resolve; a dangling one fails the open. External links
// are followed when their file can be read and skipped with a warning
// otherwise. An attribute whose value cannot be decoded is kept as a
// value.Unreadable.
func OpenHDF5(filename string) (Tree, error) {
	f, closeFile, err := openH5File(filename)
	if err != nil {
		return nil, err
	}
	defer closeFile()

	var soft []softLink
	w := &hdf5Walker{
		filename: filename,
		f:        f,
		b:        NewBuilder(),
		soft:     &soft,
		chain:    []string{absPath(filename)},
		from:     "/",
		to:       "/",
	}
	if err := w.object("/", f.root); err != nil {
		return nil, err
	}

	mem, err := w.b.Build(nil)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", filename, err)
	}
	for _, l := range soft {
		if _, ok := mem.Get(l.path); !ok {
			return nil, fmt.Errorf("soft link %s: target %s does not exist", l.path, l.target)
		}
	}
	return mem, nil
}

func openH5File(filename string) (*h5file, func() error, error) {
	fh, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, nil, err
	}
	f, err := newH5File(fh, st.Size())
	if err != nil {
		fh.Close()
		return nil, nil, err
	}
	return f, fh.Close, nil
}

func absPath(filename string) string {
	if abs, err := filepath.Abs(filename); err == nil {
		return abs
	}
	return filepath.Clean(filename)
}

type softLink struct {
	path   string
	target string
}

// hdf5Walker indexes the objects of one file into a Builder. A walker for
// an externally linked file grafts the object at path from in that file
// onto path to in the tree being built.
type hdf5Walker struct {
	filename string
	f        *h5file
	b        *Builder
	soft     *[]softLink
	chain    []string // files entered through external links, outermost first
	from, to string

	ancestors []uint64
}

// object indexes the object whose header is at addr under path.
func (w *hdf5Walker) object(p string, addr uint64) error {
	msgs, err := w.f.header(addr)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	attrs, err := w.attributes(p, msgs)
	if err != nil {
		return err
	}

	if isGroup(msgs) {
		w.b.Group(p, "", attrs)
		links, err := w.f.links(msgs)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		w.ancestors = append(w.ancestors, addr)
		defer func() { w.ancestors = w.ancestors[:len(w.ancestors)-1] }()
		for _, l := range links {
			if err := w.link(p, l); err != nil {
				return err
			}
		}
		return nil
	}

	for _, m := range msgs {
		if m.typ != msgDataspace {
			continue
		}
		ds, err := parseDataspace(m.data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		w.b.Dataset(p, ds.shape(), attrs)
		return nil
	}
	slog.Debug("skipping HDF5 object that is neither group nor dataset", "file", w.filename, "path", p)
	return nil
}

// link indexes one member of the group at parent.
func (w *hdf5Walker) link(parent string, l h5link) error {
	if l.name == "" || l.name == "." || l.name == ".." || strings.Contains(l.name, "/") {
		return fmt.Errorf("%s: invalid link name %q", parent, l.name)
	}
	p := Join(parent, l.name)

	switch l.kind {
	case linkHard:
		if slices.Contains(w.ancestors, l.addr) {
			slog.Warn("skipping hard link to an enclosing group", "file", w.filename, "path", p)
			return nil
		}
		return w.object(p, l.addr)
	case linkSoft:
		target, ok := w.rebase(parent, l.target)
		if !ok {
			slog.Warn("skipping soft link leaving an externally linked subtree", "file", w.filename, "path", p, "target", l.target)
			return nil
		}
		w.b.Link(p, target)
		*w.soft = append(*w.soft, softLink{path: p, target: target})
		return nil
	default:
		return w.external(p, l)
	}
}

// rebase maps a soft link target in the walked file onto the built tree.
func (w *hdf5Walker) rebase(parent, target string) (string, bool) {
	if !strings.HasPrefix(target, "/") {
		return Clean(path.Join(parent, target)), true
	}
	target = Clean(target)
	if w.from == "/" {
		return Join(w.to, target), true
	}
	if target == w.from {
		return w.to, true
	}
	rest, ok := strings.CutPrefix(target, w.from+"/")
	if !ok {
		return "", false
	}
	return Join(w.to, rest), true
}

// external grafts the target of an external link at p.
func (w *hdf5Walker) external(p string, l h5link) error {
	name := l.file
	if !filepath.IsAbs(name) {
		name = filepath.Join(filepath.Dir(w.filename), name)
	}
	abs := absPath(name)
	if slices.Contains(w.chain, abs) || len(w.chain) > maxExternalDepth {
		return fmt.Errorf("%s: external link loop through %s", p, l.file)
	}

	f, closeFile, err := openH5File(name)
	if err != nil {
		slog.Warn("skipping external link", "file", w.filename, "path", p, "target", l.file+":"+l.target, "error", err)
		return nil
	}
	defer closeFile()

	from := Clean(l.target)
	addr, err := f.lookup(from, 0)
	if err != nil {
		slog.Warn("skipping external link", "file", w.filename, "path", p, "target", l.file+":"+l.target, "error", err)
		return nil
	}

	sub := &hdf5Walker{
		filename: name,
		f:        f,
		b:        w.b,
		soft:     w.soft,
		chain:    append(slices.Clone(w.chain), abs),
		from:     from,
		to:       p,
	}
	return sub.object(p, addr)
}

// attributes decodes the attributes held in msgs, compact or dense.
func (w *hdf5Walker) attributes(p string, msgs []h5message) (Attributes, error) {
	attrs := Attributes{}
	add := func(data []byte) (int, error) {
		name, v, n, err := w.f.attribute(data)
		if err != nil {
			if name == "" {
				return 0, fmt.Errorf("%s: %w", p, err)
			}
			slog.Warn("reading attribute failed", "file", w.filename, "path", p, "attribute", name, "error", err)
			v = value.Unreadable{Reason: err.Error()}
		}
		attrs[name] = v
		return n, nil
	}

	for _, m := range msgs {
		switch m.typ {
		case msgAttribute:
			if m.flags&0x02 != 0 {
				slog.Warn("skipping attribute", "file", w.filename, "path", p, "error", errSharedAttr)
				continue
			}
			if _, err := add(m.data); err != nil {
				return nil, err
			}
		case msgAttributeInfo:
			c := &cursor{b: m.data, pos: 1}
			if c.u8()&0x01 != 0 {
				c.skip(2) // maximum creation index
			}
			heap := c.uint(w.f.offsetSize)
			if c.err != nil {
				return nil, fmt.Errorf("%s: attribute info message: %w", p, c.err)
			}
			if w.f.undefined(heap) {
				continue
			}
			if err := w.f.heapObjects(heap, add); err != nil {
				return nil, fmt.Errorf("%s: dense attribute storage: %w", p, err)
			}
		}
	}
	return attrs, nil
}

// lookup returns the object header address at an absolute path, following
// hard and soft links.
func (f *h5file) lookup(p string, depth int) (uint64, error) {
	if depth > maxLinkDepth {
		return 0, errors.New("too many levels of soft links")
	}
	addr := f.root
	cur := "/"
	for name := range strings.SplitSeq(strings.TrimPrefix(Clean(p), "/"), "/") {
		if name == "" {
			continue
		}
		msgs, err := f.header(addr)
		if err != nil {
			return 0, err
		}
		links, err := f.links(msgs)
		if err != nil {
			return 0, err
		}
		i := slices.IndexFunc(links, func(l h5link) bool { return l.name == name })
		if i < 0 {
			return 0, fmt.Errorf("%s does not exist", Join(cur, name))
		}
		switch l := links[i]; l.kind {
		case linkHard:
			addr = l.addr
		case linkSoft:
			target := l.target
			if !strings.HasPrefix(target, "/") {
				target = path.Join(cur, target)
			}
			if addr, err = f.lookup(target, depth+1); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("%s is an external link", Join(cur, name))
		}
		cur = Join(cur, name)
	}
	return addr, nil
}
