// Package check verifies a NeXus file against its expanded expected schema
// and scores the discrepancies.
//
// A Report lists missing paths and missing attributes in schema order and
// carries a score:
//
//	score = 100 * len(MissingPaths) + len(MissingAttributes)
//
// A missing node weighs two orders of magnitude more than a missing
// attribute. Class-tag and attribute-value mismatches are soft: they are
// logged and listed in Mismatches but never scored.
package check
