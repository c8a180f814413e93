// Package trace reads and writes shadow memory access traces.
//
// A trace is JSON lines. The first line is a Header whose format field is a
// semantic version; readers accept any v1.x. Every following line is one
// Record:
//
//	{"format":"v1.0.0","name":"matmul"}
//	{"op":"enter","level":0}
//	{"op":"set","addr":4096,"values":[3]}
//	{"op":"get","addr":4096,"size":1,"expect":[3]}
//	{"op":"bump","level":0}
//
// Get and set carry the tag vector size (defaulting to every active level)
// and the access width in bytes (8 by default, or 4). Bump and enter drive
// the version vector the replay keeps. A gc record runs an explicit
// garbage collection bounded by its level.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/mod/semver"

	"github.com/kolkov/critpath/internal/shadow/version"
)

// Format is the trace format version written by this package.
const Format = "v1.0.0"

var (
	// ErrFormat is returned for a missing or unsupported header.
	ErrFormat = errors.New("trace: unsupported format")
	// ErrRecord is returned for a record that cannot be replayed.
	ErrRecord = errors.New("trace: bad record")
)

// Op names a record kind.
type Op string

const (
	OpGet   Op = "get"
	OpSet   Op = "set"
	OpBump  Op = "bump"
	OpEnter Op = "enter"
	OpGC    Op = "gc"
)

// Header is the first line of a trace.
type Header struct {
	Format string `json:"format"`
	Name   string `json:"name,omitempty"`
}

// Record is one trace line after the header.
type Record struct {
	Op     Op       `json:"op"`
	Addr   uint64   `json:"addr,omitempty"`
	Size   int      `json:"size,omitempty"`
	Width  int      `json:"width,omitempty"`
	Level  int      `json:"level,omitempty"`
	Values []uint64 `json:"values,omitempty"`
	Expect []uint64 `json:"expect,omitempty"`
}

func (r *Record) validate() error {
	switch r.Op {
	case OpGet, OpSet:
		if r.Width != 0 && r.Width != 4 && r.Width != 8 {
			return fmt.Errorf("%w: width %d", ErrRecord, r.Width)
		}
		if r.Size < 0 {
			return fmt.Errorf("%w: size %d", ErrRecord, r.Size)
		}
		if r.Op == OpSet && len(r.Values) == 0 {
			return fmt.Errorf("%w: set without values", ErrRecord)
		}
	case OpBump, OpEnter:
		if r.Level < 0 || r.Level >= version.MaxLevel {
			return fmt.Errorf("%w: level %d", ErrRecord, r.Level)
		}
	case OpGC:
		// A gc level is a bound and may equal MaxLevel.
		if r.Level < 0 || r.Level > version.MaxLevel {
			return fmt.Errorf("%w: gc bound %d", ErrRecord, r.Level)
		}
	default:
		return fmt.Errorf("%w: op %q", ErrRecord, r.Op)
	}
	return nil
}

// CheckFormat reports whether format is a v1 trace version.
func CheckFormat(format string) error {
	if !semver.IsValid(format) || semver.Major(format) != "v1" {
		return fmt.Errorf("%w: %q", ErrFormat, format)
	}
	return nil
}

// Reader decodes a trace line by line.
type Reader struct {
	sc     *bufio.Scanner
	header Header
	line   int
}

// maxLine bounds one record; a 64-level set with wide values fits easily.
const maxLine = 1 << 20

// NewReader reads and checks the header of the trace in r.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	tr := &Reader{sc: sc}
	line, err := tr.next()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty trace", ErrFormat)
	}
	if err != nil {
		return nil, err
	}
	if err := sonnet.Unmarshal(line, &tr.header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if err := CheckFormat(tr.header.Format); err != nil {
		return nil, err
	}
	return tr, nil
}

// Header returns the trace header.
func (tr *Reader) Header() Header { return tr.header }

// Line returns the line number of the last record read.
func (tr *Reader) Line() int { return tr.line }

// next returns the next non-blank line.
func (tr *Reader) next() ([]byte, error) {
	for tr.sc.Scan() {
		tr.line++
		line := tr.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
	if err := tr.sc.Err(); err != nil {
		return nil, fmt.Errorf("trace: line %d: %w", tr.line+1, err)
	}
	return nil, io.EOF
}

// Next decodes the next record into rec. It returns io.EOF at the end of
// the trace.
func (tr *Reader) Next(rec *Record) error {
	line, err := tr.next()
	if err != nil {
		return err
	}
	*rec = Record{}
	if err := sonnet.Unmarshal(line, rec); err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrRecord, tr.line, err)
	}
	if err := rec.validate(); err != nil {
		return fmt.Errorf("line %d: %w", tr.line, err)
	}
	return nil
}

// Writer encodes a trace.
type Writer struct {
	w *bufio.Writer
}

// NewWriter writes h to w and returns a Writer for the records. An empty
// h.Format is filled with Format.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if h.Format == "" {
		h.Format = Format
	}
	if err := CheckFormat(h.Format); err != nil {
		return nil, err
	}
	tw := &Writer{w: bufio.NewWriter(w)}
	if err := tw.encode(h); err != nil {
		return nil, err
	}
	return tw, nil
}

func (tw *Writer) encode(v any) error {
	b, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("trace: encode: %w", err)
	}
	if _, err := tw.w.Write(b); err != nil {
		return err
	}
	return tw.w.WriteByte('\n')
}

// Write appends one record.
func (tw *Writer) Write(rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	return tw.encode(rec)
}

// Flush writes any buffered records to the underlying writer.
func (tw *Writer) Flush() error {
	return tw.w.Flush()
}
