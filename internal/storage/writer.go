package storage

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrUploadAborted is reported by an UploadWriter aborted without a cause
var ErrUploadAborted = errors.New("upload aborted")

// UploadWriter streams bytes into an S3 object. Writes go through a pipe
// to a multipart upload running in the background, so nothing larger than
// one part is held in memory. Close completes the upload; Abort cancels it.
type UploadWriter struct {
	pw   *io.PipeWriter
	g    *errgroup.Group
	once sync.Once
	err  error
}

// UploadFunc consumes an upload body until EOF or error
type UploadFunc func(ctx context.Context, body io.Reader) error

// NewUploadWriter runs upload in the background and returns the writer
// feeding its body
func NewUploadWriter(ctx context.Context, upload UploadFunc) *UploadWriter {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := upload(gctx, pr)
		// Unblocks pending writes when the upload stops early
		pr.CloseWithError(err)
		return err
	})
	return &UploadWriter{pw: pw, g: g}
}

// Writer starts an upload to key and returns the writer feeding it
func (s *S3Client) Writer(ctx context.Context, key, contentType string) *UploadWriter {
	return NewUploadWriter(ctx, func(ctx context.Context, body io.Reader) error {
		return s.UploadStream(ctx, key, contentType, body)
	})
}

// Write implements io.Writer. It fails once the upload has failed.
func (w *UploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close finishes the stream and waits for the upload to complete
func (w *UploadWriter) Close() error {
	w.once.Do(func() {
		_ = w.pw.Close()
		w.err = w.g.Wait()
	})
	return w.err
}

// Abort stops the upload with cause and waits for it to unwind. The
// uploader discards the incomplete object.
func (w *UploadWriter) Abort(cause error) error {
	if cause == nil {
		cause = ErrUploadAborted
	}
	w.once.Do(func() {
		_ = w.pw.CloseWithError(cause)
		w.err = w.g.Wait()
	})
	return w.err
}
