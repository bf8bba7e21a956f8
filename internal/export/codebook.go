package export

import (
	"context"
	"io"

	"github.com/koltyakov/formexport/internal/source"
)

// Codebook format identifier and content type
const (
	FormatCodebook      = "codebook"
	ContentTypeCodebook = "application/json"
)

// CodebookExporter writes each row's pre-serialized JSON payload to the sink
// verbatim, without any column pipeline.
type CodebookExporter[R any] struct {
	payload func(row R) []byte
	cfg     Config
	naming  Naming
}

// NewCodebook creates a passthrough exporter reading payloads with payload
func NewCodebook[R any](payload func(row R) []byte, cfg Config) *CodebookExporter[R] {
	return &CodebookExporter[R]{
		payload: payload,
		cfg:     cfg,
		naming:  Naming{Prefix: "codebook", Extension: "json", Strict: cfg.StrictNames},
	}
}

// Format implements Exporter
func (e *CodebookExporter[R]) Format() string { return FormatCodebook }

// ContentType implements Exporter
func (e *CodebookExporter[R]) ContentType() string { return ContentTypeCodebook }

// ResolveHeaders implements Exporter
func (e *CodebookExporter[R]) ResolveHeaders(opts Options) (FileExport, error) {
	name, err := e.naming.FileName("codebook.headers", opts)
	if err != nil {
		return FileExport{}, err
	}
	return FileExport{ContentType: ContentTypeCodebook, FileName: name}, nil
}

// StreamExport implements Exporter
func (e *CodebookExporter[R]) StreamExport(ctx context.Context, rows source.RowSource[R], opts Options, sink io.Writer) (summary Summary, err error) {
	const op = "codebook.stream"
	defer rows.Close()

	file, err := e.ResolveHeaders(opts)
	if err != nil {
		return Summary{}, err
	}
	summary = Summary{FileExport: file}
	out := newSinkWriter(op, sink)
	defer func() { summary.Bytes = out.bytes }()

	flushEvery := e.cfg.flushEvery()
	for {
		row, ok, err := pull(ctx, op, rows)
		if err != nil {
			return summary, err
		}
		if !ok {
			break
		}
		if err := out.write(ctx, e.payload(row)); err != nil {
			return summary, err
		}
		summary.Rows++
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
