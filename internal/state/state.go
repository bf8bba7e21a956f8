package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/koltyakov/formexport/pkg/types"
)

// File manages the state.json file holding per-form incremental markers
type File struct {
	mu    sync.RWMutex
	path  string
	forms []types.FormState
}

// Load reads and parses the state file. A missing file is an empty state;
// it is created on the first Update.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{path: path}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var forms []types.FormState
	if err := json.Unmarshal(data, &forms); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	for i := range forms {
		if _, err := forms[i].GetLastExportTime(); err != nil {
			return nil, fmt.Errorf("invalid lastExportTime for form %s: %w", forms[i].FormID, err)
		}
	}

	return &File{
		path:  path,
		forms: forms,
	}, nil
}

// Path returns the state file location
func (f *File) Path() string {
	return f.path
}

// Forms returns all recorded forms
func (f *File) Forms() []types.FormState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]types.FormState, len(f.forms))
	copy(result, f.forms)
	return result
}

// Find returns the marker of a form
func (f *File) Find(formID string) (types.FormState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, s := range f.forms {
		if s.FormID == formID {
			return s, true
		}
	}
	return types.FormState{}, false
}

// LastExportTime returns the creation time up to which the form was
// exported, or the zero time when it never was
func (f *File) LastExportTime(formID string) (time.Time, error) {
	s, ok := f.Find(formID)
	if !ok {
		return time.Time{}, nil
	}
	return s.GetLastExportTime()
}

// Update records t as the form's marker and saves the file
func (f *File) Update(formID string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	found := false
	for i := range f.forms {
		if f.forms[i].FormID == formID {
			f.forms[i].SetLastExportTime(t)
			found = true
			break
		}
	}
	if !found {
		s := types.FormState{FormID: formID}
		s.SetLastExportTime(t)
		f.forms = append(f.forms, s)
	}

	return f.save()
}

// Count returns the number of recorded forms
func (f *File) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.forms)
}

// save writes the state to disk atomically
func (f *File) save() error {
	// Sort forms by id for consistent output
	sorted := make([]types.FormState, len(f.forms))
	copy(sorted, f.forms)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FormID < sorted[j].FormID
	})

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	// Write to temporary file first
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath) // Clean up temp file
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
