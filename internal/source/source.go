// Package source provides the row sources consumed by exporters.
//
// A RowSource is finite, single-pass and forward-only: rows are produced in
// source order one Next call at a time and are never replayed.
package source

import (
	"context"
	"fmt"
)

// RowSource is a lazy, ordered, single-pass sequence of rows.
//
//	for rows.Next(ctx) {
//	    row := rows.Row()
//	}
//	if err := rows.Err(); err != nil { ... }
type RowSource[R any] interface {
	// Next advances to the next row. It returns false at the end of the
	// sequence, on error, or when ctx is done; Err tells them apart.
	Next(ctx context.Context) bool
	// Row returns the current row, valid until the next call to Next
	Row() R
	// Err returns the first error met while iterating
	Err() error
	// Close releases the underlying resources. It is safe to call twice.
	Close() error
}

// Slice is an in-memory RowSource
type Slice[R any] struct {
	rows   []R
	pos    int
	cur    R
	err    error
	closed bool
}

// FromSlice returns a RowSource yielding rows in order
func FromSlice[R any](rows []R) *Slice[R] {
	return &Slice[R]{rows: rows}
}

// Next implements RowSource
func (s *Slice[R]) Next(ctx context.Context) bool {
	if s.closed || s.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.pos >= len(s.rows) {
		return false
	}
	s.cur = s.rows[s.pos]
	s.pos++
	return true
}

// Row implements RowSource
func (s *Slice[R]) Row() R { return s.cur }

// Err implements RowSource
func (s *Slice[R]) Err() error { return s.err }

// Close implements RowSource
func (s *Slice[R]) Close() error {
	s.closed = true
	return nil
}

// Pulled returns how many rows have been handed out
func (s *Slice[R]) Pulled() int { return s.pos }

// Closed reports whether Close was called
func (s *Slice[R]) Closed() bool { return s.closed }

// NextFunc produces the next row. ok is false at the end of the sequence.
type NextFunc[R any] func(ctx context.Context) (row R, ok bool, err error)

// Func is a RowSource backed by a generator function
type Func[R any] struct {
	next    NextFunc[R]
	onClose func() error
	cur     R
	err     error
	done    bool
}

// FromFunc returns a RowSource that calls next for every row. onClose may
// be nil.
func FromFunc[R any](next NextFunc[R], onClose func() error) *Func[R] {
	return &Func[R]{next: next, onClose: onClose}
}

// Next implements RowSource
func (f *Func[R]) Next(ctx context.Context) bool {
	if f.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		f.err = err
		f.done = true
		return false
	}
	row, ok, err := f.next(ctx)
	if err != nil {
		f.err = fmt.Errorf("failed to produce row: %w", err)
		f.done = true
		return false
	}
	if !ok {
		f.done = true
		return false
	}
	f.cur = row
	return true
}

// Row implements RowSource
func (f *Func[R]) Row() R { return f.cur }

// Err implements RowSource
func (f *Func[R]) Err() error { return f.err }

// Close implements RowSource
func (f *Func[R]) Close() error {
	f.done = true
	if f.onClose != nil {
		fn := f.onClose
		f.onClose = nil
		return fn()
	}
	return nil
}
