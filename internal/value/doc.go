// Package value provides the tagged value types carried by NeXus attributes
// and .dat metadata headers.
//
// Attribute payloads read from a data file and literals parsed from a .dat
// header share one representation so that both the conformance checker and
// the dataset comparator can compare them without type assertions at every
// call site.
//
// Key constraints:
//   - String and Bytes compare byte-exact and equal to each other
//   - Equal never panics; values of incomparable kinds are simply unequal
//   - MarshalCanonical is the ONLY serialization used for report fingerprints
//
// This package imports nothing internal.
package value
