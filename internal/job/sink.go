package job

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/koltyakov/formexport/internal/storage"
)

// sinkBufferSize bounds what a buffered sink holds between exporter flushes
const sinkBufferSize = 64 * 1024

// Sink receives export bytes. Exactly one of Commit or Abort is called
// when the stream ends.
type Sink interface {
	io.Writer
	// Commit publishes the written bytes
	Commit() error
	// Abort discards what can be discarded
	Abort(cause error) error
	// Destination describes where the bytes went, for logs and results
	Destination() string
}

// fileSink writes to a hidden temporary file next to the target and renames
// it into place on Commit, so readers never see a partial export
type fileSink struct {
	path string
	tmp  *os.File
	buf  *bufio.Writer
}

func newFileSink(path string) (*fileSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.partial")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &fileSink{path: path, tmp: tmp, buf: bufio.NewWriterSize(tmp, sinkBufferSize)}, nil
}

func (s *fileSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

// Flush is called by exporters at their flush cadence
func (s *fileSink) Flush() error { return s.buf.Flush() }

func (s *fileSink) Commit() error {
	if err := s.buf.Flush(); err != nil {
		s.discard()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := s.tmp.Close(); err != nil {
		os.Remove(s.tmp.Name())
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(s.tmp.Name(), s.path); err != nil {
		os.Remove(s.tmp.Name())
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	return nil
}

func (s *fileSink) Abort(error) error {
	s.discard()
	return nil
}

func (s *fileSink) discard() {
	s.tmp.Close()
	os.Remove(s.tmp.Name())
}

func (s *fileSink) Destination() string { return s.path }

// streamSink writes to an already open stream such as stdout. Written bytes
// cannot be taken back, so Abort only flushes.
type streamSink struct {
	name string
	buf  *bufio.Writer
}

func newStreamSink(name string, w io.Writer) *streamSink {
	return &streamSink{name: name, buf: bufio.NewWriterSize(w, sinkBufferSize)}
}

func (s *streamSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *streamSink) Flush() error { return s.buf.Flush() }

func (s *streamSink) Commit() error { return s.buf.Flush() }

func (s *streamSink) Abort(error) error { return s.buf.Flush() }

func (s *streamSink) Destination() string { return s.name }

// ObjectStore uploads a stream under a key; *storage.S3Client satisfies it
type ObjectStore interface {
	UploadStream(ctx context.Context, key, contentType string, r io.Reader) error
}

// objectSink streams into an object store upload. Abort cancels the upload
// so no partial object is left behind.
type objectSink struct {
	url string
	w   *storage.UploadWriter
}

func newObjectSink(ctx context.Context, store ObjectStore, bucket, key, contentType string) *objectSink {
	w := storage.NewUploadWriter(ctx, func(ctx context.Context, body io.Reader) error {
		return store.UploadStream(ctx, key, contentType, body)
	})
	return &objectSink{url: "s3://" + bucket + "/" + key, w: w}
}

func (s *objectSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *objectSink) Commit() error { return s.w.Close() }

func (s *objectSink) Abort(cause error) error {
	_ = s.w.Abort(cause)
	return nil
}

func (s *objectSink) Destination() string { return s.url }
