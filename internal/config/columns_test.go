package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseColumns(t *testing.T) {
	t.Run("list form with defaults", func(t *testing.T) {
		data := []byte(`
- name: Email
  key: contact.email
- name: photo
  transformers: [Content-URL, storage-url]
  formatter: TEXT
- name: submitted
  key: CreatedAt
  source: static
`)
		got, err := ParseColumns(data)
		if err != nil {
			t.Fatalf("ParseColumns() error = %v", err)
		}
		want := []ColumnSpec{
			{Name: "Email", Key: "contact.email", Source: SourceJSON},
			{Name: "photo", Key: "photo", Source: SourceJSON, Transformers: []string{TransformerContentURL, TransformerStorageURL}, Formatter: FormatterText},
			{Name: "submitted", Key: "CreatedAt", Source: SourceStatic},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ParseColumns() = %+v, want %+v", got, want)
		}
	})

	t.Run("mapping form", func(t *testing.T) {
		got, err := ParseColumns([]byte("columns:\n  - name: a\n  - name: b\n"))
		if err != nil {
			t.Fatalf("ParseColumns() error = %v", err)
		}
		if len(got) != 2 || got[1].Name != "b" {
			t.Errorf("ParseColumns() = %+v", got)
		}
	})

	t.Run("empty document", func(t *testing.T) {
		for _, data := range []string{"", "  \n", "# nothing yet\n"} {
			got, err := ParseColumns([]byte(data))
			if err != nil || len(got) != 0 {
				t.Errorf("ParseColumns(%q) = %v, %v", data, got, err)
			}
		}
	})

	errCases := []struct {
		name string
		data string
	}{
		{"missing name", "- key: a\n"},
		{"bad source", "- name: a\n  source: xml\n"},
		{"unknown transformer", "- name: a\n  transformers: [upper]\n"},
		{"unknown formatter", "- name: a\n  formatter: csv\n"},
		{"duplicate name", "- name: a\n- name: A\n"},
		{"unknown field", "- name: a\n  colour: red\n"},
		{"invalid yaml", "- name: [a\n"},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseColumns([]byte(tt.data)); err == nil {
				t.Errorf("expected error for %q", tt.data)
			}
		})
	}
}

func TestLoadColumns(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		got, err := LoadColumns("")
		if err != nil || got != nil {
			t.Errorf("LoadColumns(\"\") = %v, %v", got, err)
		}
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "columns.yaml")
		if err := os.WriteFile(path, []byte("- name: score\n"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := LoadColumns(path)
		if err != nil {
			t.Fatalf("LoadColumns() error = %v", err)
		}
		if len(got) != 1 || got[0].Key != "score" {
			t.Errorf("LoadColumns() = %+v", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadColumns(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
