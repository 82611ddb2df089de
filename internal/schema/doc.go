// Package schema provides the expected-structure registry for NeXus files
// and its per-file expansion.
//
// Validation is a two-phase pipeline:
//
//  1. Expand: copy the immutable Baseline, walk the file once to discover
//     classified groups (NXentry, NXdata, NXdetector, ...), and let each
//     registered Rule add entries for the instances it finds. The result is
//     a Snapshot private to one run.
//  2. Verify: the check package walks the Snapshot against the file.
//
// Expansion never interleaves with verification: a rule fired by one node
// may add entries checked against a sibling subtree.
//
// # Ordering
//
// Schema keeps insertion order. Overwriting a path keeps its original
// position and replaces its expected kind (last writer wins). Rules run in
// registration order, each over its instances in traversal order, so the
// Snapshot (and every report derived from it) is deterministic for a given
// file and Registry.
//
// # Baseline
//
// The baseline is written in CUE and unified with the definitions in
// schema.cue. The embedded baseline.cue describes the Diamond I16 scan layout;
// LoadBaselineFile reads a replacement.
package schema
