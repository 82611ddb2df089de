// Package dat reads SRS .dat scan files and compares two of them.
//
// A .dat file has a header of key=value metadata lines terminated by a line
// containing &END, then a whitespace-separated line of column names, then
// numeric rows:
//
//	&SRS
//	SRSRUN=571664,SRSDAT=201624,SRSTIM=183757
//	cmd='scan x 1 3 1'
//	&END
//	x	roi2_sum
//	1	10
//	2	12
//	3	9
//
// Metadata values are parsed by ParseLiteral, a small literal grammar that
// never evaluates expressions. Values it cannot parse are kept as raw text.
package dat
