package export

import (
	"context"
	"io"

	"github.com/koltyakov/formexport/internal/node"
	"github.com/koltyakov/formexport/internal/source"
)

// JSON format identifier and content type
const (
	FormatJSON      = "json"
	ContentTypeJSON = "application/json"
)

// JSONExporter streams rows as a JSON array of objects keyed by column name.
// Array delimiters are written as the stream progresses, one element per
// line.
type JSONExporter[R any] struct {
	columns []*Column[R]
	cfg     Config
	naming  Naming
	format  JSONFormatter
}

// NewJSON creates a structured JSON exporter over columns
func NewJSON[R any](columns []*Column[R], cfg Config) *JSONExporter[R] {
	return &JSONExporter[R]{
		columns: columns,
		cfg:     cfg,
		naming:  Naming{Prefix: "export", Extension: "json", Strict: cfg.StrictNames},
	}
}

// Format implements Exporter
func (e *JSONExporter[R]) Format() string { return FormatJSON }

// ContentType implements Exporter
func (e *JSONExporter[R]) ContentType() string { return ContentTypeJSON }

// ResolveHeaders implements Exporter
func (e *JSONExporter[R]) ResolveHeaders(opts Options) (FileExport, error) {
	const op = "json.headers"
	if _, err := selectColumns(op, e.columns, opts); err != nil {
		return FileExport{}, err
	}
	name, err := e.naming.FileName(op, opts)
	if err != nil {
		return FileExport{}, err
	}
	return FileExport{ContentType: ContentTypeJSON, FileName: name}, nil
}

// StreamExport implements Exporter
func (e *JSONExporter[R]) StreamExport(ctx context.Context, rows source.RowSource[R], opts Options, sink io.Writer) (summary Summary, err error) {
	const op = "json.stream"
	defer rows.Close()

	file, err := e.ResolveHeaders(opts)
	if err != nil {
		return Summary{}, err
	}
	columns, _ := selectColumns(op, e.columns, opts)
	summary = Summary{FileExport: file}

	out := newSinkWriter(op, sink)
	defer func() { summary.Bytes = out.bytes }()

	if err := out.write(ctx, []byte("[")); err != nil {
		return summary, err
	}

	diag := e.cfg.diagnostics()
	flushEvery := e.cfg.flushEvery()
	values := make([]interface{}, 0, len(columns))
	members := make([]node.Member, len(columns))
	var buf []byte
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
			members[i] = node.Member{Key: columns[i].Name(), Value: e.format.Node(v, diag)}
		}

		buf = buf[:0]
		if summary.Rows > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '\n')
		buf = node.Object(members...).AppendJSON(buf)
		if err := out.write(ctx, buf); err != nil {
			return summary, err
		}
		summary.Rows++

		if summary.Rows%flushEvery == 0 {
			if err := out.flush(); err != nil {
				return summary, err
			}
		}
	}

	tail := "]\n"
	if summary.Rows > 0 {
		tail = "\n]\n"
	}
	if err := out.write(ctx, []byte(tail)); err != nil {
		return summary, err
	}
	if err := out.flush(); err != nil {
		return summary, err
	}
	return summary, nil
}
