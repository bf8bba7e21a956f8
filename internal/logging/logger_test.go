package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newBufferLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, level)
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, &buf
}

func TestNew(t *testing.T) {
	t.Run("logger with verbose=false", func(t *testing.T) {
		logger := New(false)
		if logger == nil {
			t.Fatal("New() returned nil")
		}
		if logger.level != LevelInfo {
			t.Errorf("level = %v, want LevelInfo", logger.level)
		}
		if logger.writer != os.Stderr {
			t.Error("default writer should be stderr")
		}
		if logger.file != nil {
			t.Error("file should be nil for logger without file")
		}
	})

	t.Run("logger with verbose=true", func(t *testing.T) {
		logger := New(true)
		if logger.level != LevelDebug {
			t.Errorf("level = %v, want LevelDebug", logger.level)
		}
	})
}

func TestNewWithFile(t *testing.T) {
	t.Run("writes to file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "test.log")

		logger, err := NewWithFile(logPath, LevelInfo)
		if err != nil {
			t.Fatalf("NewWithFile() error = %v", err)
		}
		logger.Info("hello %s", "file")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if !strings.Contains(string(data), "hello file") {
			t.Errorf("log file = %q, want message", data)
		}
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		if _, err := NewWithFile("/nonexistent/dir/test.log", LevelInfo); err == nil {
			t.Error("expected error for invalid path")
		}
	})
}

func TestLogger_Close(t *testing.T) {
	logger := New(false)
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLogger_Format(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)
	logger.Info("exported %d rows", 3)

	want := "[2024-01-02 03:04:05] INFO  exported 3 rows\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestLogger_TrailingNewlineTrimmed(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)
	logger.Warn("disk almost full\n")

	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("output = %q, want one line", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level Level
		want  []string
	}{
		{LevelError, []string{"ERROR"}},
		{LevelWarn, []string{"ERROR", "WARN"}},
		{LevelInfo, []string{"ERROR", "WARN", "INFO"}},
		{LevelDebug, []string{"ERROR", "WARN", "INFO", "DEBUG", "DEBUG"}},
		{LevelTrace, []string{"ERROR", "WARN", "INFO", "DEBUG", "DEBUG", "TRACE"}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			logger, buf := newBufferLogger(tt.level)
			logger.Error("e")
			logger.Warn("w")
			logger.Info("i")
			logger.Debug("d")
			logger.Debugf("df")
			logger.Trace("t")

			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			if len(lines) != len(tt.want) {
				t.Fatalf("got %d lines, want %d: %q", len(lines), len(tt.want), buf.String())
			}
			for i, tag := range tt.want {
				if !strings.Contains(lines[i], "] "+tag) {
					t.Errorf("line %d = %q, want level %s", i, lines[i], tag)
				}
			}
		})
	}
}

func TestLogger_WithPrefix(t *testing.T) {
	parent, buf := newBufferLogger(LevelInfo)
	child := parent.WithPrefix("export")

	if child.prefix != "export" {
		t.Errorf("prefix = %q, want %q", child.prefix, "export")
	}
	// Parent should not be affected
	if parent.prefix != "" {
		t.Errorf("parent prefix = %q, want empty", parent.prefix)
	}
	if child.level != parent.level {
		t.Errorf("child level = %v, parent level = %v", child.level, parent.level)
	}

	grandchild := child.WithPrefix("csv")
	grandchild.Info("done")
	if !strings.Contains(buf.String(), "[export csv] done") {
		t.Errorf("output = %q, want nested prefix", buf.String())
	}
}

func TestLogger_WithRun(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)
	logger.WithRun("0f8fad5b-d9cb-469f-a165-70867728950e").WithForm("42").Info("start")

	if !strings.Contains(buf.String(), "[run 0f8fad5b form 42] start") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLogger_ImplementsDiagnostics(t *testing.T) {
	var diag interface {
		Debugf(format string, args ...interface{})
	} = New(false)
	diag.Debugf("ignored at info level")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"error", LevelError, false},
		{"WARN", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"", LevelInfo, false},
		{" debug ", LevelDebug, false},
		{"trace", LevelTrace, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogger_FormatTimestamp(t *testing.T) {
	logger := New(false)
	ts := logger.formatTimestamp()

	if _, err := time.Parse("2006-01-02 15:04:05", ts); err != nil {
		t.Errorf("timestamp %q does not match layout: %v", ts, err)
	}
}

func TestLogger_StdLogger(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)
	logger.StdLogger().Println("from net/http")

	if !strings.HasSuffix(buf.String(), "INFO  from net/http\n") || strings.Contains(buf.String(), "\n\n") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLogger_ConcurrentLogging(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)
	a := logger.WithPrefix("a")
	b := logger.WithPrefix("b")

	var wg sync.WaitGroup
	for _, l := range []*Logger{a, b} {
		wg.Add(1)
		go func(l *Logger) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Info("message %d", i)
			}
		}(l)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 100 {
		t.Fatalf("got %d lines, want 100", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[2024-01-02 03:04:05] INFO  [") {
			t.Fatalf("interleaved line %q", line)
		}
	}
}
