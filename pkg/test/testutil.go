package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/koltyakov/formexport/internal/config"
	"github.com/koltyakov/formexport/pkg/types"
)

// TB is the interface shared by testing.T and testing.B
type TB interface {
	TempDir() string
	Cleanup(func())
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Helper()
}

// NewTestConfig returns a configuration backed by a temporary SQLite file
func NewTestConfig(t TB) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	return &config.Config{
		DBDriver:       config.DriverSQLite,
		DBDSN:          filepath.Join(tmpDir, "forms.db"),
		StateFile:      filepath.Join(tmpDir, "state.json"),
		OutputDir:      filepath.Join(tmpDir, "export"),
		Format:         "csv",
		FlushEvery:     config.DefaultFlushEvery,
		Verbose:        true,
		ConnectTimeout: 30 * time.Second,
		QueryTimeout:   5 * time.Minute,
	}
}

// Schema creates the tables read by the row sources
const Schema = `
CREATE TABLE submissions (
	id           TEXT PRIMARY KEY,
	form_id      TEXT NOT NULL,
	is_complete  INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME,
	json_data    TEXT
);
CREATE TABLE form_codebooks (
	form_id  TEXT PRIMARY KEY,
	codebook TEXT NOT NULL
);`

// OpenSQLite opens a fresh SQLite database with Schema applied
func OpenSQLite(t TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "forms.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// InsertSubmissions stores subs
func InsertSubmissions(t TB, db *sql.DB, subs ...types.Submission) {
	t.Helper()
	for _, s := range subs {
		var completed interface{}
		if s.CompletedAt != nil {
			completed = s.CompletedAt.UTC()
		}
		var data interface{}
		if s.JSONData != "" {
			data = s.JSONData
		}
		_, err := db.Exec(`INSERT INTO submissions (id, form_id, is_complete, created_at, updated_at, completed_at, json_data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.FormID, s.IsComplete, s.CreatedAt.UTC(), s.UpdatedAt.UTC(), completed, data)
		if err != nil {
			t.Fatalf("insert submission %s: %v", s.ID, err)
		}
	}
}

// InsertCodebook stores the codebook of a form
func InsertCodebook(t TB, db *sql.DB, formID, payload string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO form_codebooks (form_id, codebook) VALUES (?, ?)`, formID, payload); err != nil {
		t.Fatalf("insert codebook %s: %v", formID, err)
	}
}

// NewTestSubmissions returns n submissions of formID created one minute apart
func NewTestSubmissions(formID string, n int) []types.Submission {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	subs := make([]types.Submission, n)
	for i := range subs {
		created := base.Add(time.Duration(i) * time.Minute)
		subs[i] = types.Submission{
			ID:         fmt.Sprintf("s%03d", i+1),
			FormID:     formID,
			IsComplete: i%2 == 0,
			CreatedAt:  created,
			UpdatedAt:  created.Add(30 * time.Second),
			JSONData:   fmt.Sprintf(`{"name":"user %d","score":%d}`, i+1, i*10),
		}
	}
	return subs
}

// ErrSinkFull is returned by a CountingSink once its write limit is reached
var ErrSinkFull = errors.New("sink full")

// CountingSink records every write and flush it receives
type CountingSink struct {
	mu sync.Mutex
	bytes.Buffer
	Writes   int
	Flushes  int
	MaxWrite int
	// FailAfter makes the sink fail every write after that many succeeded
	FailAfter int
	// OnWrite is called after each successful write with the write count
	OnWrite func(writes int)
}

// Write implements io.Writer
func (s *CountingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.FailAfter > 0 && s.Writes >= s.FailAfter {
		s.mu.Unlock()
		return 0, ErrSinkFull
	}
	s.Writes++
	if len(p) > s.MaxWrite {
		s.MaxWrite = len(p)
	}
	n, err := s.Buffer.Write(p)
	writes, hook := s.Writes, s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		hook(writes)
	}
	return n, err
}

// Flush counts a flush
func (s *CountingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Flushes++
	return nil
}

// CancelAfter returns a context that is cancelled once hook has been called
// n times, and the hook to pass as CountingSink.OnWrite.
func CancelAfter(parent context.Context, n int) (context.Context, func(writes int)) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, func(writes int) {
		if writes >= n {
			cancel()
		}
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertEqual fails the test if want != got
func AssertEqual[T comparable](t TB, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("got %v, want %v", got, want)
	}
}
