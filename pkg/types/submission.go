package types

import "time"

// TimestampLayout is the layout used for state markers and query bounds
const TimestampLayout = "2006-01-02T15:04:05"

// Submission is one export row produced from the submissions table
type Submission struct {
	ID          string
	FormID      string
	IsComplete  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	// JSONData is the pre-serialized answer document, empty when the
	// submission has no answers yet.
	JSONData string
}

// Document returns the submission's JSON payload, or nil when absent
func (s Submission) Document() []byte {
	if s.JSONData == "" {
		return nil
	}
	return []byte(s.JSONData)
}

// Codebook is the pre-serialized codebook of a form, exported verbatim
type Codebook struct {
	FormID  string
	Payload []byte
}

// FormState is the persisted incremental-export marker for one form
type FormState struct {
	FormID         string `json:"formId"`
	LastExportTime string `json:"lastExportTime"` // ISO 8601 format, UTC
}

// GetLastExportTime parses LastExportTime into a time.Time.
// Returns zero time if LastExportTime is empty or "null".
func (f *FormState) GetLastExportTime() (time.Time, error) {
	if f.LastExportTime == "" || f.LastExportTime == "null" {
		return time.Time{}, nil
	}
	return time.Parse(TimestampLayout, f.LastExportTime)
}

// SetLastExportTime sets LastExportTime from a time.Time
func (f *FormState) SetLastExportTime(t time.Time) {
	f.LastExportTime = t.UTC().Format(TimestampLayout)
}

// RunResult describes one finished (or failed) export run
type RunResult struct {
	RunID       string
	FormID      string
	Format      string
	ContentType string
	FileName    string
	Destination string
	Rows        int
	Bytes       int64
	Duration    time.Duration
	Err         error
}

// Success reports whether the run finished without error
func (r *RunResult) Success() bool {
	return r.Err == nil
}
