// Package audit ties the readers, comparators and external tools together
// into the per-file operations the command line runs.
//
// Each operation handles one file. I/O failures on the inputs are returned
// as errors so that a batch can report them and move on. Failures of the
// external tools are caught here and folded into a degraded result.
package audit
