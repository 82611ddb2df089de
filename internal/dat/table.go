package dat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/nxcheck/internal/value"
)

// Sentinel is the marker that ends the metadata header.
const Sentinel = "&END"

// ErrNoSentinel reports a file whose header never ends.
var ErrNoSentinel = errors.New("missing " + Sentinel + " header sentinel")

// ParseError reports a malformed .dat file. Line is 1-based; zero when the
// error is not tied to a line.
type ParseError struct {
	File string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(":")
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, "%d:", e.Line)
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Column is one named data column.
type Column struct {
	Name   string
	Values []float64
}

// Metadatum is one header value. Value is the parsed literal, or the raw
// text as a value.String when it did not parse.
type Metadatum struct {
	Name  string
	Value value.Value
}

// Table is a parsed .dat file. Columns and Metadata keep file order and
// unique names; a repeated name keeps its first position and last value.
type Table struct {
	Columns  []Column
	Metadata []Metadatum
	// Rows is the number of data rows; every column has this length.
	Rows int

	columns  map[string]int
	metadata map[string]int
}

func newTable() *Table {
	return &Table{
		Columns:  []Column{},
		Metadata: []Metadatum{},
		columns:  map[string]int{},
		metadata: map[string]int{},
	}
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	i, ok := t.columns[name]
	if !ok {
		return nil, false
	}
	return t.Columns[i].Values, true
}

// Meta returns the named metadata value.
func (t *Table) Meta(name string) (value.Value, bool) {
	i, ok := t.metadata[name]
	if !ok {
		return nil, false
	}
	return t.Metadata[i].Value, true
}

func (t *Table) setColumn(name string, vals []float64) {
	if i, ok := t.columns[name]; ok {
		t.Columns[i].Values = vals
		return
	}
	t.columns[name] = len(t.Columns)
	t.Columns = append(t.Columns, Column{Name: name, Values: vals})
}

func (t *Table) setMeta(name string, v value.Value) {
	if i, ok := t.metadata[name]; ok {
		t.Metadata[i].Value = v
		return
	}
	t.metadata[name] = len(t.Metadata)
	t.Metadata = append(t.Metadata, Metadatum{Name: name, Value: v})
}

// maxLine bounds a single line; structured header values can be long.
const maxLine = 16 << 20

// Read parses the .dat file at filename. Parse errors carry the file name.
func Read(filename string) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = filename
			return nil, pe
		}
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	slog.Debug("read table", "file", filename, "columns", len(t.Columns), "metadata", len(t.Metadata), "rows", t.Rows)
	return t, nil
}

// Parse reads a .dat table from r.
//
// Header lines before the sentinel are split on '='. A line with one '='
// is a single assignment; a line with several and no '{' is a
// comma-separated list of assignments; other lines are ignored. Data
// tokens that are not numbers become NaN. In the data block everything from
// a '#' to the end of the line is a comment, and lines left blank are
// skipped. Rows must all have the same number of fields.
func Parse(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	t := newTable()
	lineno := 0

	sentinel := false
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if strings.Contains(line, Sentinel) {
			sentinel = true
			break
		}
		parseHeaderLine(t, line)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Line: lineno + 1, Msg: "reading header", Err: err}
	}
	if !sentinel {
		return nil, &ParseError{Err: ErrNoSentinel}
	}

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, &ParseError{Line: lineno + 1, Msg: "reading column names", Err: err}
		}
		return nil, &ParseError{Line: lineno + 1, Msg: "missing column names after " + Sentinel}
	}
	lineno++
	names := strings.Fields(sc.Text())

	var rows [][]float64
	width := -1
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if width < 0 {
			width = len(fields)
		} else if len(fields) != width {
			return nil, &ParseError{Line: lineno, Msg: fmt.Sprintf("row has %d fields, expected %d", len(fields), width)}
		}
		row := make([]float64, len(fields))
		for i, tok := range fields {
			row[i] = parseFloat(tok)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Line: lineno + 1, Msg: "reading data", Err: err}
	}

	if width >= 0 && width != len(names) {
		slog.Warn("column names and data width differ; extra names or fields are dropped",
			"names", len(names), "fields", width)
	}

	t.Rows = len(rows)
	for j, name := range names {
		if width >= 0 && j >= width {
			break
		}
		col := make([]float64, len(rows))
		for i, row := range rows {
			col[i] = row[j]
		}
		t.setColumn(name, col)
	}
	return t, nil
}

// parseHeaderLine adds the assignments on one header line to t.
func parseHeaderLine(t *Table, line string) {
	line = strings.Trim(line, " ,\r\n")

	var assignments []string
	switch n := strings.Count(line, "="); {
	case n == 1:
		assignments = []string{line}
	case n > 1 && !strings.Contains(line, "{"):
		assignments = strings.Split(line, ",")
	default:
		return
	}

	for _, a := range assignments {
		parts := strings.Split(a, "=")
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		raw := strings.TrimSpace(parts[1])
		v, err := ParseLiteral(raw)
		if err != nil {
			slog.Debug("keeping metadata as text", "name", name, "value", raw, "error", err)
			v = value.String(raw)
		}
		t.setMeta(name, v)
	}
}

// parseFloat converts a data token. Tokens that are not numbers, such as
// true and false, become NaN.
func parseFloat(tok string) float64 {
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		var ne *strconv.NumError
		if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
			return f
		}
		return math.NaN()
	}
	return f
}
