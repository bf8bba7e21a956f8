package export

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/koltyakov/formexport/internal/node"
	"github.com/koltyakov/formexport/internal/source"
	"github.com/koltyakov/formexport/pkg/errors"
)

// XLSX format identifier and content type
const (
	FormatXLSX      = "xlsx"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// XLSXSheetName is the name of the single worksheet
const XLSXSheetName = "Export"

// XLSXExporter writes rows to a single-sheet workbook. Rows go through an
// excelize StreamWriter, which spills to a temporary file, and the finished
// workbook is written to the sink once the row source is drained: the zip
// container cannot be emitted before its central directory is known.
type XLSXExporter[R any] struct {
	columns []*Column[R]
	cfg     Config
	naming  Naming
	text    TextFormatter
}

// NewXLSX creates a spreadsheet exporter over columns
func NewXLSX[R any](columns []*Column[R], cfg Config) *XLSXExporter[R] {
	return &XLSXExporter[R]{
		columns: columns,
		cfg:     cfg,
		naming:  Naming{Prefix: "export", Extension: "xlsx", Strict: cfg.StrictNames},
	}
}

// Format implements Exporter
func (e *XLSXExporter[R]) Format() string { return FormatXLSX }

// ContentType implements Exporter
func (e *XLSXExporter[R]) ContentType() string { return ContentTypeXLSX }

// ResolveHeaders implements Exporter
func (e *XLSXExporter[R]) ResolveHeaders(opts Options) (FileExport, error) {
	const op = "xlsx.headers"
	if _, err := selectColumns(op, e.columns, opts); err != nil {
		return FileExport{}, err
	}
	name, err := e.naming.FileName(op, opts)
	if err != nil {
		return FileExport{}, err
	}
	return FileExport{ContentType: ContentTypeXLSX, FileName: name}, nil
}

// StreamExport implements Exporter
func (e *XLSXExporter[R]) StreamExport(ctx context.Context, rows source.RowSource[R], opts Options, sink io.Writer) (summary Summary, err error) {
	const op = "xlsx.stream"
	defer rows.Close()

	file, err := e.ResolveHeaders(opts)
	if err != nil {
		return Summary{}, err
	}
	columns, _ := selectColumns(op, e.columns, opts)
	summary = Summary{FileExport: file}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", XLSXSheetName); err != nil {
		return summary, errors.NewSinkError(op, "failed to prepare workbook", err)
	}
	sw, err := f.NewStreamWriter(XLSXSheetName)
	if err != nil {
		return summary, errors.NewSinkError(op, "failed to create sheet writer", err)
	}

	cells := make([]interface{}, len(columns))
	for i, c := range columns {
		cells[i] = c.Name()
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return summary, errors.NewSinkError(op, "failed to write header row", err)
	}

	diag := e.cfg.diagnostics()
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
			cells[i] = e.cell(v, diag)
		}
		axis, err := excelize.CoordinatesToCellName(1, summary.Rows+2)
		if err != nil {
			return summary, errors.NewSinkError(op, "sheet row limit reached", err)
		}
		if err := sw.SetRow(axis, cells); err != nil {
			return summary, errors.NewSinkError(op, "failed to write row", err)
		}
		summary.Rows++
	}

	if err := sw.Flush(); err != nil {
		return summary, errors.NewSinkError(op, "failed to finish sheet", err)
	}
	if err := ctx.Err(); err != nil {
		return summary, errors.NewCancelledError(op, err)
	}
	out := newSinkWriter(op, sink)
	n, err := f.WriteTo(out)
	summary.Bytes = n
	if err != nil {
		return summary, errors.NewSinkError(op, "failed to write workbook", err)
	}
	if err := out.flush(); err != nil {
		return summary, err
	}
	return summary, nil
}

// cell keeps numbers and booleans typed so spreadsheets can compute on them;
// everything else goes through the text formatter.
func (e *XLSXExporter[R]) cell(v interface{}, diag Diagnostics) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, int, int32, int64, float32, float64:
		return val
	case time.Time:
		return e.text.String(val, diag)
	case node.Node:
		switch val.Kind() {
		case node.KindNull:
			return nil
		case node.KindBool:
			b, _ := val.BoolValue()
			return b
		case node.KindNumber:
			lit, _ := val.NumberText()
			return numberCell(lit)
		}
	}
	return e.text.String(v, diag)
}

// maxExactInt is the largest integer a spreadsheet number holds exactly
const maxExactInt = 1 << 53

// maxExactDigits is the number of significant digits spreadsheets keep
const maxExactDigits = 15

// numberCell returns lit as a number when the spreadsheet can hold it
// exactly and as text otherwise.
func numberCell(lit string) interface{} {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		if i > maxExactInt || i < -maxExactInt {
			return lit
		}
		return i
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || significantDigits(lit) > maxExactDigits {
		return lit
	}
	return f
}

// significantDigits counts the mantissa digits of a JSON number literal,
// ignoring leading and trailing zeros
func significantDigits(lit string) int {
	if i := strings.IndexAny(lit, "eE"); i >= 0 {
		lit = lit[:i]
	}
	lit = strings.TrimLeft(lit, "+-")
	lit = strings.Replace(lit, ".", "", 1)
	lit = strings.Trim(lit, "0")
	return len(lit)
}
