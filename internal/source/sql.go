package source

import (
	"context"
	"fmt"
)

// Scanner is the subset of *sql.Rows used by scan functions
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Rows is the cursor interface satisfied by *sql.Rows
type Rows interface {
	Scanner
	Next() bool
	Err() error
	Close() error
}

// ScanFunc converts the current cursor position into a row
type ScanFunc[R any] func(s Scanner) (R, error)

// SQL adapts a database cursor to RowSource. The cursor is closed as soon
// as iteration ends.
type SQL[R any] struct {
	rows   Rows
	scan   ScanFunc[R]
	cur    R
	err    error
	done   bool
	closed bool
}

// NewSQL wraps rows, converting every record with scan
func NewSQL[R any](rows Rows, scan ScanFunc[R]) *SQL[R] {
	return &SQL[R]{rows: rows, scan: scan}
}

// Next implements RowSource
func (s *SQL[R]) Next(ctx context.Context) bool {
	if s.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.fail(err)
		return false
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			s.fail(fmt.Errorf("row iteration error: %w", err))
		} else {
			s.fail(nil)
		}
		return false
	}
	row, err := s.scan(s.rows)
	if err != nil {
		s.fail(fmt.Errorf("failed to scan row: %w", err))
		return false
	}
	s.cur = row
	return true
}

func (s *SQL[R]) fail(err error) {
	s.err = err
	s.done = true
	_ = s.Close()
}

// Row implements RowSource
func (s *SQL[R]) Row() R { return s.cur }

// Err implements RowSource
func (s *SQL[R]) Err() error { return s.err }

// Close implements RowSource
func (s *SQL[R]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	return s.rows.Close()
}
