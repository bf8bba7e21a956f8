// Package export converts a stream of rows into downloadable files.
//
// A Column binds an output field to an extraction, an ordered chain of
// Transformers and an optional Formatter. An Exporter pulls rows one at a
// time from a source.RowSource, runs every selected column over the row and
// writes the encoded record to a sink before pulling the next row, so memory
// use is bounded by a single row regardless of result size.
//
// Per-value problems (malformed embedded JSON, unexpected shapes) never fail
// a row: pipeline stages fall back to the original value and report through
// Diagnostics. Only sink, source, header and cancellation failures end a
// stream, as *errors.AppError values.
package export
