package job

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/formexport/internal/config"
	"github.com/koltyakov/formexport/internal/logging"
	"github.com/koltyakov/formexport/internal/metrics"
	"github.com/koltyakov/formexport/internal/state"
	"github.com/koltyakov/formexport/pkg/errors"
	testutil "github.com/koltyakov/formexport/pkg/test"
)

const testRunID = "0f8fad5b-d9cb-469f-a165-70867728950e"

// memoryStore keeps uploaded objects in memory
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStore) UploadStream(ctx context.Context, key, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

type fixture struct {
	cfg     *config.Config
	db      *sql.DB
	state   *state.File
	store   *memoryStore
	stdout  *bytes.Buffer
	metrics *metrics.Recorder
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testutil.NewTestConfig(t)
	st, err := state.Load(cfg.StateFile)
	require.NoError(t, err)

	db := testutil.OpenSQLite(t)
	testutil.InsertSubmissions(t, db, testutil.NewTestSubmissions("42", 5)...)
	other := testutil.NewTestSubmissions("other", 2)
	for i := range other {
		other[i].ID = "o" + other[i].ID
	}
	testutil.InsertSubmissions(t, db, other...)

	return &fixture{
		cfg:     cfg,
		db:      db,
		state:   st,
		store:   newMemoryStore(),
		stdout:  &bytes.Buffer{},
		metrics: metrics.New(),
		logs:    &bytes.Buffer{},
	}
}

func (f *fixture) runner(t *testing.T, now time.Time, layout ...config.ColumnSpec) *Runner {
	t.Helper()
	r, err := New(f.cfg, layout, Deps{
		DB:      f.db,
		State:   f.state,
		Metrics: f.metrics,
		Store:   f.store,
		Logger:  logging.NewWithWriter(f.logs, logging.LevelDebug),
		Stdout:  f.stdout,
	})
	require.NoError(t, err)
	r.now = func() time.Time { return now }
	r.newRunID = func() string { return testRunID }
	return r
}

func assertExports(t *testing.T, m *metrics.Recorder, want int) {
	t.Helper()
	n, err := promtestutil.GatherAndCount(m.Registry(), "formexport_exports_total")
	require.NoError(t, err)
	assert.Equal(t, want, n)
}

var (
	afterAll  = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	nameSpec  = config.ColumnSpec{Name: "name", Key: "name", Source: config.SourceJSON}
	scoreSpec = config.ColumnSpec{Name: "score", Key: "score", Source: config.SourceJSON}
)

func TestRun_CSVToOutputDir(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t, afterAll, nameSpec)

	res := r.Run(context.Background(), Request{FormID: "42", Format: "csv"})
	require.NoError(t, res.Err)

	assert.Equal(t, testRunID, res.RunID)
	assert.Equal(t, "export-42.csv", res.FileName)
	assert.Equal(t, "text/csv", res.ContentType)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, filepath.Join(f.cfg.OutputDir, "export-42.csv"), res.Destination)

	data, err := os.ReadFile(res.Destination)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Bytes)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "id,form_id,created_at,updated_at,is_complete,name", lines[0])
	assert.Equal(t, "s001,42,2024-01-02 03:04:05,2024-01-02 03:04:35,true,user 1", lines[1])
	assert.Equal(t, "s002,42,2024-01-02 03:05:05,2024-01-02 03:05:35,false,user 2", lines[2])

	entries, err := os.ReadDir(f.cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")

	assertExports(t, f.metrics, 1)
	assert.Contains(t, f.logs.String(), "run 0f8fad5b")
}

func TestRun_DefaultFormatFromConfig(t *testing.T) {
	f := newFixture(t)
	f.cfg.Format = "json"
	r := f.runner(t, afterAll)

	res := r.Run(context.Background(), Request{FormID: "42", Output: "-"})
	require.NoError(t, res.Err)
	assert.Equal(t, "json", res.Format)
	assert.Equal(t, "stdout", res.Destination)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(f.stdout.Bytes(), &rows))
	require.Len(t, rows, 5)
	assert.Equal(t, "s001", rows[0]["id"])
	assert.Equal(t, true, rows[0]["is_complete"])
}

func TestRun_ColumnFilter(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t, afterAll, nameSpec, scoreSpec)

	res := r.Run(context.Background(), Request{FormID: "42", Format: "csv", Output: "-", Columns: []string{"score", "id"}})
	require.NoError(t, res.Err)
	assert.True(t, strings.HasPrefix(f.stdout.String(), "id,score\ns001,0\ns002,10\n"), f.stdout.String())
}

func TestRun_OutputPath(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t, afterAll)
	dir := t.TempDir()

	res := r.Run(context.Background(), Request{FormID: "42", Format: "csv", Output: dir})
	require.NoError(t, res.Err)
	assert.Equal(t, filepath.Join(dir, "export-42.csv"), res.Destination)

	file := filepath.Join(dir, "nested", "out.csv")
	res = r.Run(context.Background(), Request{FormID: "42", Format: "csv", Output: file})
	require.NoError(t, res.Err)
	assert.Equal(t, file, res.Destination)
	assert.FileExists(t, file)
}

func TestRun_Incremental(t *testing.T) {
	f := newFixture(t)
	// Between the second and the third submission
	first := time.Date(2024, 1, 2, 3, 5, 30, 500, time.UTC)

	res := f.runner(t, first).Run(context.Background(), Request{FormID: "42", Format: "csv", Output: "-", Incremental: true})
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Rows)

	marker, ok := f.state.Find("42")
	require.True(t, ok)
	assert.Equal(t, "2024-01-02T03:05:30", marker.LastExportTime)

	f.stdout.Reset()
	res = f.runner(t, afterAll).Run(context.Background(), Request{FormID: "42", Format: "csv", Output: "-", Incremental: true})
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Rows)
	assert.Contains(t, f.stdout.String(), "s003,")
	assert.NotContains(t, f.stdout.String(), "s002,")

	// Reloading sees the persisted marker
	reloaded, err := state.Load(f.cfg.StateFile)
	require.NoError(t, err)
	last, err := reloaded.LastExportTime("42")
	require.NoError(t, err)
	assert.True(t, last.Equal(afterAll), last)
}

func TestRun_NonIncrementalLeavesState(t *testing.T) {
	f := newFixture(t)
	res := f.runner(t, afterAll).Run(context.Background(), Request{FormID: "42", Format: "csv", Output: "-"})
	require.NoError(t, res.Err)
	assert.Equal(t, 0, f.state.Count())
}

func TestRun_S3(t *testing.T) {
	f := newFixture(t)
	f.cfg.S3 = config.S3Config{Bucket: "exports-bucket", Prefix: "forms/"}
	r := f.runner(t, afterAll)

	res := r.Run(context.Background(), Request{FormID: "42", Format: "json", S3: true})
	require.NoError(t, res.Err)

	key := "forms/exports/42/" + testRunID + "/export-42.json"
	assert.Equal(t, "s3://exports-bucket/"+key, res.Destination)
	require.Contains(t, f.store.objects, key)
	assert.Equal(t, "application/json", f.store.types[key])
	assert.Equal(t, int64(len(f.store.objects[key])), res.Bytes)
	assert.True(t, json.Valid(f.store.objects[key]))
}

func TestRun_S3UploadFailure(t *testing.T) {
	f := newFixture(t)
	f.cfg.S3 = config.S3Config{Bucket: "exports-bucket"}
	f.store.fail = stderrors.New("access denied")
	r := f.runner(t, afterAll)

	res := r.Run(context.Background(), Request{FormID: "42", Format: "csv", S3: true, Incremental: true})
	require.Error(t, res.Err)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeSink), res.Err)
	assert.ErrorContains(t, res.Err, "access denied")
	assert.Empty(t, f.store.objects)
	assert.Equal(t, 0, f.state.Count(), "failed runs must not move the marker")
}

func TestRun_Codebook(t *testing.T) {
	f := newFixture(t)
	testutil.InsertCodebook(t, f.db, "42", `{"q1":{"label":"Name"}}`)
	r := f.runner(t, afterAll)

	res := r.Run(context.Background(), Request{FormID: "42", Format: FormatCodebook, Output: "-"})
	require.NoError(t, res.Err)
	assert.Equal(t, "codebook-42.json", res.FileName)
	assert.Equal(t, `{"q1":{"label":"Name"}}`, f.stdout.String())
}

func TestRun_CancelledLeavesNoFile(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t, afterAll)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Run(ctx, Request{FormID: "42", Format: "csv"})
	require.Error(t, res.Err)
	assert.True(t, errors.IsCancelled(res.Err), res.Err)

	entries, err := os.ReadDir(f.cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assertExports(t, f.metrics, 1)
}

func TestRun_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		noStore bool
		errType errors.ErrorType
	}{
		{name: "missing form id", req: Request{Format: "csv"}, errType: errors.ErrorTypeValidation},
		{name: "unknown format", req: Request{FormID: "42", Format: "pdf"}, errType: errors.ErrorTypeValidation},
		{name: "incremental codebook", req: Request{FormID: "42", Format: FormatCodebook, Incremental: true}, errType: errors.ErrorTypeValidation},
		{name: "s3 with output", req: Request{FormID: "42", Format: "csv", S3: true, Output: "-"}, errType: errors.ErrorTypeValidation},
		{name: "s3 without store", req: Request{FormID: "42", Format: "csv", S3: true}, noStore: true, errType: errors.ErrorTypeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := f.runner(t, afterAll)
			if tt.noStore {
				r.deps.Store = nil
			}
			res := r.Run(context.Background(), tt.req)
			require.Error(t, res.Err)
			assert.True(t, errors.IsType(res.Err, tt.errType), "got %v", res.Err)
			assert.Empty(t, f.stdout.String())
		})
	}
}

func TestHeaders_DoesNotNeedDatabase(t *testing.T) {
	cfg := testutil.NewTestConfig(t)
	r, err := New(cfg, nil, Deps{Logger: logging.NewWithWriter(io.Discard, logging.LevelError)})
	require.NoError(t, err)

	tests := []struct {
		format, formID, contentType, fileName string
	}{
		{"csv", "42", "text/csv", "export-42.csv"},
		{"JSON", "42", "application/json", "export-42.json"},
		{"xlsx", "42", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "export-42.xlsx"},
		{"codebook", "", "application/json", "codebook-unknown.json"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			h, err := r.Headers(Request{FormID: tt.formID, Format: tt.format})
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, h.ContentType)
			assert.Equal(t, tt.fileName, h.FileName)
		})
	}

	_, err = r.Headers(Request{FormID: "42", Format: "pdf"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestFormats(t *testing.T) {
	r, err := New(testutil.NewTestConfig(t), nil, Deps{Logger: logging.NewWithWriter(io.Discard, logging.LevelError)})
	require.NoError(t, err)

	var names []string
	for _, f := range r.Formats() {
		names = append(names, f.Format)
		assert.NotEmpty(t, f.ContentType)
	}
	assert.Equal(t, []string{"csv", "json", "xlsx", "codebook"}, names)
}

func TestNew_InvalidLayout(t *testing.T) {
	_, err := New(testutil.NewTestConfig(t), []config.ColumnSpec{{Name: "ID", Key: "x", Source: config.SourceJSON}}, Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
