package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"

	"github.com/koltyakov/formexport/internal/source"
	"github.com/koltyakov/formexport/pkg/errors"
)

// CSV format identifier and content type
const (
	FormatCSV      = "csv"
	ContentTypeCSV = "text/csv"
)

// CSVExporter streams rows as RFC 4180 CSV with LF line endings. The first
// record holds the selected column names.
type CSVExporter[R any] struct {
	columns []*Column[R]
	cfg     Config
	naming  Naming
	text    TextFormatter
}

// NewCSV creates a CSV exporter over columns
func NewCSV[R any](columns []*Column[R], cfg Config) *CSVExporter[R] {
	return &CSVExporter[R]{
		columns: columns,
		cfg:     cfg,
		naming:  Naming{Prefix: "export", Extension: "csv", Strict: cfg.StrictNames},
	}
}

// Format implements Exporter
func (e *CSVExporter[R]) Format() string { return FormatCSV }

// ContentType implements Exporter
func (e *CSVExporter[R]) ContentType() string { return ContentTypeCSV }

// ResolveHeaders implements Exporter
func (e *CSVExporter[R]) ResolveHeaders(opts Options) (FileExport, error) {
	const op = "csv.headers"
	if _, err := selectColumns(op, e.columns, opts); err != nil {
		return FileExport{}, err
	}
	name, err := e.naming.FileName(op, opts)
	if err != nil {
		return FileExport{}, err
	}
	return FileExport{ContentType: ContentTypeCSV, FileName: name}, nil
}

// StreamExport implements Exporter. Each record is encoded into a row
// buffer and handed to the sink in a single Write.
func (e *CSVExporter[R]) StreamExport(ctx context.Context, rows source.RowSource[R], opts Options, sink io.Writer) (summary Summary, err error) {
	const op = "csv.stream"
	defer rows.Close()

	file, err := e.ResolveHeaders(opts)
	if err != nil {
		return Summary{}, err
	}
	columns, _ := selectColumns(op, e.columns, opts)
	summary = Summary{FileExport: file}

	out := newSinkWriter(op, sink)
	defer func() { summary.Bytes = out.bytes }()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Use Unix line endings (LF)
	w.UseCRLF = false
	record := make([]string, len(columns))

	writeRecord := func() error {
		buf.Reset()
		if err := w.Write(record); err != nil {
			return errors.NewSinkError(op, "failed to encode record", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return errors.NewSinkError(op, "failed to encode record", err)
		}
		return out.write(ctx, buf.Bytes())
	}

	for i, c := range columns {
		record[i] = c.Name()
	}
	if err := writeRecord(); err != nil {
		return summary, err
	}

	diag := e.cfg.diagnostics()
	flushEvery := e.cfg.flushEvery()
	values := make([]interface{}, 0, len(columns))
	for {
		row, ok, err := pull(ctx, op, rows)
		if err != nil {
			return summary, err
		}
		if !ok {
			break
		}

		values = evaluate(row, columns, diag, values)
		for i, v := range values {
			record[i] = e.text.String(v, diag)
		}
		if err := writeRecord(); err != nil {
			return summary, err
		}
		summary.Rows++

		// Flush periodically so the receiver sees progress
		if summary.Rows%flushEvery == 0 {
			if err := out.flush(); err != nil {
				return summary, err
			}
		}
	}

	if err := out.flush(); err != nil {
		return summary, err
	}
	return summary, nil
}
