package export

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/koltyakov/formexport/internal/source"
	"github.com/koltyakov/formexport/pkg/errors"
)

// MetaFormID is the metadata key naming the exported form
const MetaFormID = "FormId"

// DefaultFlushEvery is how many rows are written between sink flushes
const DefaultFlushEvery = 1000

// FileExport is the file metadata of an export, known before any row is read
type FileExport struct {
	ContentType string
	FileName    string
}

// Summary is the outcome of a stream
type Summary struct {
	FileExport
	Rows  int
	Bytes int64
}

// Options are the per-request export settings
type Options struct {
	// Metadata carries request values such as MetaFormID
	Metadata map[string]string
	// Columns optionally restricts output to the named columns, keeping the
	// configured column order
	Columns []string
}

// Get returns a metadata value. An exact key match wins over a
// case-insensitive one.
func (o Options) Get(key string) (string, bool) {
	if v, ok := o.Metadata[key]; ok {
		return v, true
	}
	for k, v := range o.Metadata {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// FormID returns the trimmed MetaFormID value, or "" when absent
func (o Options) FormID() string {
	v, _ := o.Get(MetaFormID)
	return strings.TrimSpace(v)
}

// Exporter writes rows of type R in one file format
type Exporter[R any] interface {
	// Format returns the format identifier, e.g. "csv"
	Format() string
	// ContentType returns the MIME type of the produced file
	ContentType() string
	// ResolveHeaders computes the file metadata without reading any row
	ResolveHeaders(opts Options) (FileExport, error)
	// StreamExport drains rows into sink and closes rows when done
	StreamExport(ctx context.Context, rows source.RowSource[R], opts Options, sink io.Writer) (Summary, error)
}

// Config holds settings shared by all exporters
type Config struct {
	// FlushEvery is the number of rows between sink flushes; DefaultFlushEvery
	// when zero or negative
	FlushEvery int
	// StrictNames makes a missing form id a header error instead of naming
	// the file "{prefix}-unknown.{ext}"
	StrictNames bool
	// Diagnostics receives non-fatal pipeline messages; Discard when nil
	Diagnostics Diagnostics
}

func (c Config) flushEvery() int {
	if c.FlushEvery <= 0 {
		return DefaultFlushEvery
	}
	return c.FlushEvery
}

func (c Config) diagnostics() Diagnostics {
	if c.Diagnostics == nil {
		return Discard
	}
	return c.Diagnostics
}

// Naming builds file names of the form "{prefix}-{formId}.{ext}"
type Naming struct {
	Prefix    string
	Extension string
	Strict    bool
}

// UnknownFormID replaces a missing form id in file names
const UnknownFormID = "unknown"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns the file name for opts
func (n Naming) FileName(op string, opts Options) (string, error) {
	id := opts.FormID()
	if id == "" {
		if n.Strict {
			return "", errors.NewHeaderError(op, fmt.Sprintf("metadata %q is required", MetaFormID), nil)
		}
		id = UnknownFormID
	}
	id = strings.Trim(unsafeFileChars.ReplaceAllString(id, "_"), ".")
	if id == "" {
		id = UnknownFormID
	}
	return fmt.Sprintf("%s-%s.%s", n.Prefix, id, n.Extension), nil
}

// selectColumns applies the optional column filter of opts
func selectColumns[R any](op string, columns []*Column[R], opts Options) ([]*Column[R], error) {
	if len(opts.Columns) == 0 {
		if len(columns) == 0 {
			return nil, errors.NewHeaderError(op, "no columns configured", nil)
		}
		return columns, nil
	}

	want := make(map[string]bool, len(opts.Columns))
	for _, name := range opts.Columns {
		want[strings.ToLower(strings.TrimSpace(name))] = true
	}
	selected := make([]*Column[R], 0, len(opts.Columns))
	for _, c := range columns {
		if want[strings.ToLower(c.Name())] {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return nil, errors.NewHeaderError(op, fmt.Sprintf("column filter %v matches no configured column", opts.Columns), nil)
	}
	return selected, nil
}

// pull checks for cancellation and advances rows. ok is false with a nil
// error at the clean end of the sequence.
func pull[R any](ctx context.Context, op string, rows source.RowSource[R]) (row R, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return row, false, errors.NewCancelledError(op, err)
	}
	if !rows.Next(ctx) {
		if err := rows.Err(); err != nil {
			if ctx.Err() != nil {
				return row, false, errors.NewCancelledError(op, err)
			}
			return row, false, errors.NewSourceError(op, "failed to read row", err)
		}
		if err := ctx.Err(); err != nil {
			return row, false, errors.NewCancelledError(op, err)
		}
		return row, false, nil
	}
	return rows.Row(), true, nil
}

// evaluate runs every column over row, sharing one lazily parsed document
func evaluate[R any](row R, columns []*Column[R], diag Diagnostics, dst []interface{}) []interface{} {
	doc := newDocument(row)
	dst = dst[:0]
	for _, c := range columns {
		dst = append(dst, c.GetValue(&Context[R]{Row: row, diag: diag, doc: doc}))
	}
	return dst
}

// sinkWriter counts bytes written to the sink and forwards flushes to sinks
// that buffer.
type sinkWriter struct {
	w     io.Writer
	op    string
	bytes int64
}

func newSinkWriter(op string, w io.Writer) *sinkWriter {
	return &sinkWriter{w: w, op: op}
}

// write sends p in one Write call, checking ctx first so that no record is
// started after cancellation.
func (s *sinkWriter) write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError(s.op, err)
	}
	if len(p) == 0 {
		return nil
	}
	n, err := s.w.Write(p)
	s.bytes += int64(n)
	if err != nil {
		return errors.NewSinkError(s.op, "failed to write to sink", err)
	}
	if n != len(p) {
		return errors.NewSinkError(s.op, "failed to write to sink", io.ErrShortWrite)
	}
	return nil
}

// Write lets the sink be handed to encoders that need an io.Writer
func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.bytes += int64(n)
	return n, err
}

func (s *sinkWriter) flush() error {
	switch f := s.w.(type) {
	case interface{ Flush() error }:
		if err := f.Flush(); err != nil {
			return errors.NewSinkError(s.op, "failed to flush sink", err)
		}
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}
