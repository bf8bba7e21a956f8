// Package job runs one export end to end: it resolves file metadata, opens
// the row source and the destination, streams the rows and records the
// outcome in the state file and metrics.
package job

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koltyakov/formexport/internal/config"
	"github.com/koltyakov/formexport/internal/export"
	"github.com/koltyakov/formexport/internal/logging"
	"github.com/koltyakov/formexport/internal/metrics"
	"github.com/koltyakov/formexport/internal/source"
	"github.com/koltyakov/formexport/internal/state"
	"github.com/koltyakov/formexport/internal/storageurl"
	"github.com/koltyakov/formexport/pkg/errors"
	"github.com/koltyakov/formexport/pkg/types"
)

// FormatCodebook exports the stored codebook of a form instead of its
// submissions
const FormatCodebook = export.FormatCodebook

// progressEvery is how often (in rows) progress is logged at debug level
const progressEvery = 10000

// Deps are the collaborators of a Runner. Only DB is required; State is
// needed for incremental runs and Store for object storage uploads.
type Deps struct {
	DB      source.Querier
	State   *state.File
	Metrics *metrics.Recorder
	Store   ObjectStore
	Logger  *logging.Logger
	// Stdout receives exports written to "-"; os.Stdout when nil
	Stdout io.Writer
}

// Request describes one export
type Request struct {
	FormID string
	// Format is a format identifier; the configured default when empty
	Format string
	// Columns optionally restricts the exported columns
	Columns []string
	// Output is "" for the configured output directory, "-" for stdout, or
	// a file or directory path
	Output string
	// S3 uploads the export to the configured bucket instead
	S3 bool
	// Incremental exports only submissions created after the form's last
	// successful incremental run
	Incremental bool
}

// FormatInfo describes an available format
type FormatInfo struct {
	Format      string
	ContentType string
}

// Runner executes export requests. It is safe for sequential reuse.
type Runner struct {
	cfg         *config.Config
	deps        Deps
	log         *logging.Logger
	submissions *export.Registry[types.Submission]
	codebook    export.Exporter[types.Codebook]

	now      func() time.Time
	newRunID func() string
}

// New creates a Runner exporting the built-in columns followed by layout
func New(cfg *config.Config, layout []config.ColumnSpec, deps Deps) (*Runner, error) {
	log := deps.Logger
	if log == nil {
		log = logging.New(cfg.Verbose)
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}

	rewriter := storageurl.New(storageurl.Config{
		Host:       cfg.StorageHost,
		Container:  cfg.StorageContainer,
		AccessBase: cfg.FileAccessBase,
	})
	columns, err := SubmissionColumns(layout, rewriter)
	if err != nil {
		return nil, errors.NewConfigError("job.new", "invalid column layout", err)
	}

	ecfg := export.Config{
		FlushEvery:  cfg.FlushEvery,
		StrictNames: cfg.StrictNames,
		Diagnostics: log,
	}
	registry, err := export.NewRegistry[types.Submission](
		export.NewCSV(columns, ecfg),
		export.NewJSON(columns, ecfg),
		export.NewXLSX(columns, ecfg),
	)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:         cfg,
		deps:        deps,
		log:         log,
		submissions: registry,
		codebook:    export.NewCodebook(func(c types.Codebook) []byte { return c.Payload }, ecfg),
		now:         time.Now,
		newRunID:    uuid.NewString,
	}, nil
}

// Formats lists the available formats
func (r *Runner) Formats() []FormatInfo {
	var out []FormatInfo
	for _, f := range r.submissions.Formats() {
		e, _ := r.submissions.Get(f)
		out = append(out, FormatInfo{Format: f, ContentType: e.ContentType()})
	}
	return append(out, FormatInfo{Format: FormatCodebook, ContentType: r.codebook.ContentType()})
}

// Headers resolves the content type and file name of req without touching
// the database
func (r *Runner) Headers(req Request) (export.FileExport, error) {
	format := r.format(req)
	opts := options(req)
	if format == FormatCodebook {
		return r.codebook.ResolveHeaders(opts)
	}
	e, err := r.submissions.Get(format)
	if err != nil {
		return export.FileExport{}, err
	}
	return e.ResolveHeaders(opts)
}

// Run executes req. The returned result always carries the run id and the
// duration; Err is set when the run failed.
func (r *Runner) Run(ctx context.Context, req Request) *types.RunResult {
	start := r.now()
	res := &types.RunResult{
		RunID:  r.newRunID(),
		FormID: req.FormID,
		Format: r.format(req),
	}
	log := r.log.WithRun(res.RunID).WithForm(req.FormID)
	defer func() {
		res.Duration = r.now().Sub(start)
		r.observe(res)
	}()

	if err := r.check(req, res.Format); err != nil {
		res.Err = err
		return res
	}

	file, err := r.Headers(req)
	if err != nil {
		res.Err = err
		return res
	}
	res.ContentType = file.ContentType
	res.FileName = file.FileName

	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	// Rows created up to the start of the run, so the next incremental run
	// picks up exactly where this one stops
	scope := source.Scope{FormID: req.FormID, Until: start.UTC().Truncate(time.Second)}
	if req.Incremental {
		since, err := r.deps.State.LastExportTime(req.FormID)
		if err != nil {
			res.Err = errors.NewStateError("job.run", "failed to read last export time", err)
			return res
		}
		scope.Since = since
		if since.IsZero() {
			log.Info("No previous export recorded, exporting all submissions")
		} else {
			log.Info("Exporting submissions created after %s", since.Format(types.TimestampLayout))
		}
	}
	log.Info("Exporting %s as %s", res.FileName, res.Format)
	log.Trace("Scope: since=%s until=%s columns=%v", scope.Since.Format(types.TimestampLayout),
		scope.Until.Format(types.TimestampLayout), req.Columns)

	sink, err := r.openSink(ctx, req, file, res.RunID)
	if err != nil {
		res.Err = errors.NewIOError("job.run", "failed to open destination", err)
		return res
	}
	res.Destination = sink.Destination()
	log.Debug("Destination: %s", res.Destination)

	opts := options(req)
	var summary export.Summary
	if res.Format == FormatCodebook {
		summary, err = stream(ctx, r.codebook, sink, opts, func(ctx context.Context) (source.RowSource[types.Codebook], error) {
			return source.Codebooks(ctx, r.deps.DB, req.FormID)
		})
	} else {
		e, _ := r.submissions.Get(res.Format)
		summary, err = stream(ctx, e, sink, opts, func(ctx context.Context) (source.RowSource[types.Submission], error) {
			rows, err := source.Submissions(ctx, r.deps.DB, scope)
			if err != nil {
				return nil, err
			}
			return &progress[types.Submission]{RowSource: rows, log: log}, nil
		})
	}
	res.Rows = summary.Rows
	res.Bytes = summary.Bytes
	if err != nil {
		log.Error("Export failed after %d rows: %v", res.Rows, err)
		res.Err = err
		return res
	}

	if req.Incremental {
		if err := r.deps.State.Update(req.FormID, scope.Until); err != nil {
			log.Error("Failed to update state: %v", err)
			res.Err = errors.NewStateError("job.run", "failed to record export time", err)
			return res
		}
	}

	log.Info("Exported %d rows (%d bytes) to: %s", res.Rows, res.Bytes, res.Destination)
	return res
}

// check rejects requests the runner cannot serve before any work is done
func (r *Runner) check(req Request, format string) error {
	const op = "job.run"
	switch {
	case strings.TrimSpace(req.FormID) == "":
		return errors.NewValidationError(op, "form id is required", nil)
	case r.deps.DB == nil:
		return errors.NewConfigError(op, "no database configured", nil)
	case req.S3 && r.deps.Store == nil:
		return errors.NewConfigError(op, "S3 upload requested but no bucket is configured", nil)
	case req.S3 && req.Output != "":
		return errors.NewValidationError(op, "an output path cannot be combined with an S3 upload", nil)
	case req.Incremental && format == FormatCodebook:
		return errors.NewValidationError(op, "incremental exports apply to submission formats only", nil)
	case req.Incremental && r.deps.State == nil:
		return errors.NewConfigError(op, "incremental export requires a state file", nil)
	}
	return nil
}

func (r *Runner) format(req Request) string {
	f := strings.ToLower(strings.TrimSpace(req.Format))
	if f == "" {
		f = strings.ToLower(r.cfg.Format)
	}
	return f
}

func (r *Runner) openSink(ctx context.Context, req Request, file export.FileExport, runID string) (Sink, error) {
	switch {
	case req.S3:
		key := r.cfg.S3.ExportKey(req.FormID, runID, file.FileName)
		return newObjectSink(ctx, r.deps.Store, r.cfg.S3.Bucket, key, file.ContentType), nil
	case req.Output == "-":
		return newStreamSink("stdout", r.deps.Stdout), nil
	default:
		return newFileSink(r.outputPath(req.Output, file.FileName))
	}
}

// outputPath places fileName in the output directory unless out names a
// file
func (r *Runner) outputPath(out, fileName string) string {
	if out == "" {
		return filepath.Join(r.cfg.OutputDir, fileName)
	}
	if strings.HasSuffix(out, string(os.PathSeparator)) || strings.HasSuffix(out, "/") {
		return filepath.Join(out, fileName)
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, fileName)
	}
	return out
}

func (r *Runner) observe(res *types.RunResult) {
	if r.deps.Metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	switch {
	case errors.IsCancelled(res.Err):
		result = metrics.ResultCancelled
	case res.Err != nil:
		result = metrics.ResultFailure
	}
	r.deps.Metrics.ObserveExport(res.Format, result, res.Rows, res.Bytes, res.Duration)
}

func options(req Request) export.Options {
	return export.Options{
		Metadata: map[string]string{export.MetaFormID: req.FormID},
		Columns:  req.Columns,
	}
}

// stream opens the rows, streams them into sink and then commits or aborts
// the sink
func stream[R any](ctx context.Context, e export.Exporter[R], sink Sink, opts export.Options,
	open func(ctx context.Context) (source.RowSource[R], error)) (export.Summary, error) {
	rows, err := open(ctx)
	if err != nil {
		_ = sink.Abort(err)
		if ctx.Err() != nil {
			return export.Summary{}, errors.NewCancelledError("job.query", ctx.Err())
		}
		return export.Summary{}, errors.NewDBError("job.query", "failed to query rows", err)
	}

	summary, err := e.StreamExport(ctx, rows, opts, sink)
	if err != nil {
		_ = sink.Abort(err)
		return summary, err
	}
	if err := sink.Commit(); err != nil {
		if errors.IsCancelled(err) {
			return summary, errors.NewCancelledError("job.commit", err)
		}
		return summary, errors.NewSinkError("job.commit", fmt.Sprintf("failed to publish %s", summary.FileName), err)
	}
	return summary, nil
}

// progress logs every progressEvery rows
type progress[R any] struct {
	source.RowSource[R]
	log  *logging.Logger
	rows int
}

func (p *progress[R]) Next(ctx context.Context) bool {
	if !p.RowSource.Next(ctx) {
		return false
	}
	p.rows++
	if p.rows%progressEvery == 0 {
		p.log.Debug("Progress: %d rows", p.rows)
	}
	return true
}
