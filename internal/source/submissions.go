package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koltyakov/formexport/pkg/types"
)

// Querier runs a query; *sql.DB and *db.DB satisfy it
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Scope selects the submissions of one form, optionally bounded by
// creation time. Since is exclusive, Until inclusive; zero values disable
// the bound.
type Scope struct {
	FormID string
	Since  time.Time
	Until  time.Time
}

const submissionColumns = `id, form_id, is_complete, created_at, updated_at, completed_at, json_data`

// SubmissionsQuery returns the query text and bind arguments for scope.
// Rows are ordered by creation time, then id.
func SubmissionsQuery(scope Scope) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(submissionColumns)
	b.WriteString(" FROM submissions WHERE form_id = :form_id")
	args := []interface{}{sql.Named("form_id", scope.FormID)}

	if !scope.Since.IsZero() {
		b.WriteString(" AND created_at > :since")
		args = append(args, sql.Named("since", scope.Since.UTC()))
	}
	if !scope.Until.IsZero() {
		b.WriteString(" AND created_at <= :until")
		args = append(args, sql.Named("until", scope.Until.UTC()))
	}
	b.WriteString(" ORDER BY created_at, id")
	return b.String(), args
}

// Submissions streams the submissions of scope in creation order
func Submissions(ctx context.Context, q Querier, scope Scope) (*SQL[types.Submission], error) {
	if scope.FormID == "" {
		return nil, fmt.Errorf("form id is required")
	}
	query, args := SubmissionsQuery(scope)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("submissions query failed: %w", err)
	}
	return NewSQL(rows, ScanSubmission), nil
}

// ScanSubmission reads one row selected with SubmissionsQuery
func ScanSubmission(s Scanner) (types.Submission, error) {
	var id, formID, complete, created, updated, completed, data interface{}
	if err := s.Scan(&id, &formID, &complete, &created, &updated, &completed, &data); err != nil {
		return types.Submission{}, err
	}

	sub := types.Submission{
		ID:       asString(id),
		FormID:   asString(formID),
		JSONData: asString(data),
	}
	var err error
	if sub.IsComplete, err = asBool(complete); err != nil {
		return types.Submission{}, fmt.Errorf("is_complete: %w", err)
	}
	if sub.CreatedAt, err = asTime(created); err != nil {
		return types.Submission{}, fmt.Errorf("created_at: %w", err)
	}
	if sub.UpdatedAt, err = asTime(updated); err != nil {
		return types.Submission{}, fmt.Errorf("updated_at: %w", err)
	}
	if completed != nil {
		t, err := asTime(completed)
		if err != nil {
			return types.Submission{}, fmt.Errorf("completed_at: %w", err)
		}
		if !t.IsZero() {
			sub.CompletedAt = &t
		}
	}
	return sub, nil
}

const codebookQuery = `SELECT form_id, codebook FROM form_codebooks WHERE form_id = :form_id`

// Codebooks streams the stored codebook of a form. A form without a
// codebook yields an empty sequence.
func Codebooks(ctx context.Context, q Querier, formID string) (*SQL[types.Codebook], error) {
	if formID == "" {
		return nil, fmt.Errorf("form id is required")
	}
	rows, err := q.QueryContext(ctx, codebookQuery, sql.Named("form_id", formID))
	if err != nil {
		return nil, fmt.Errorf("codebook query failed: %w", err)
	}
	return NewSQL(rows, ScanCodebook), nil
}

// ScanCodebook reads one row selected by Codebooks
func ScanCodebook(s Scanner) (types.Codebook, error) {
	var formID, payload interface{}
	if err := s.Scan(&formID, &payload); err != nil {
		return types.Codebook{}, err
	}
	cb := types.Codebook{FormID: asString(formID)}
	switch p := payload.(type) {
	case nil:
	case []byte:
		cb.Payload = append([]byte(nil), p...)
	default:
		cb.Payload = []byte(asString(p))
	}
	return cb, nil
}

// Drivers disagree on column types (Oracle NUMBER ids, SQLite text dates),
// so rows are scanned into interface{} and converted here.

func asString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func asBool(v interface{}) (bool, error) {
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case float64:
		return val != 0, nil
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(val)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(val))
	default:
		return false, fmt.Errorf("unsupported type %T", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	types.TimestampLayout,
	"2006-01-02",
}

func asTime(v interface{}) (time.Time, error) {
	var s string
	switch val := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return val, nil
	case []byte:
		s = string(val)
	case string:
		s = val
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
