// Package tree provides read-only access to hierarchical attributed data
// stores such as NeXus/HDF5 files.
//
// A store is a tree of named groups and leaf datasets, each optionally
// carrying attributes. Groups declare their role through the NX_class
// attribute, exposed as a class tag.
//
// Nodes are a sealed variant: *Group or *Dataset. Callers switch on the
// concrete type instead of inspecting kinds:
//
//	switch n := node.(type) {
//	case *tree.Group:
//		fmt.Println(n.ClassTag())
//	case *tree.Dataset:
//		fmt.Println(n.Shape)
//	}
//
// Paths are slash-delimited and case-sensitive. The root is "/". Every path
// handed to this package is normalized with Clean, so "entry/x" and
// "/entry//x/" name the same node.
//
// # Backends
//
//   - Memory: in-memory tree assembled by a Builder (also the index behind
//     every other backend)
//   - YAML fixtures: LoadYAML / OpenYAML
//   - HDF5 files: OpenHDF5, a metadata-only reader for the HDF5 file
//     format (superblock versions 0 to 3, compact and dense groups and
//     attributes, soft and external links). Dataset values are never read.
//
// Open selects a backend by file extension and returns a Tree that must be
// closed by the caller.
package tree
