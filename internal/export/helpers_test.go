package export

import (
	"fmt"
	"sync"

	"github.com/koltyakov/formexport/pkg/types"
)

// recorder collects diagnostics for assertions
type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Debugf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func submissionColumns() []*Column[types.Submission] {
	return []*Column[types.Submission]{
		Static("id", "ID", func(s types.Submission) interface{} { return s.ID }).Build(),
		Static("created_at", "CreatedAt", func(s types.Submission) interface{} { return s.CreatedAt }).Build(),
		Static("is_complete", "IsComplete", func(s types.Submission) interface{} { return s.IsComplete }).Build(),
		JSONPath[types.Submission]("name", "name").Build(),
		JSONPath[types.Submission]("score", "score").Build(),
	}
}
