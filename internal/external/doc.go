// Package external runs the command-line tools nxcheck depends on but does
// not implement: the NeXus to .dat converter and the structural validator.
//
// Both are configured as a Command whose arguments may hold placeholders
// ({nexus}, {dat}, {file}) that are substituted per call.
package external
