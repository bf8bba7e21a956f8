package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/formexport/internal/node"
	"github.com/koltyakov/formexport/pkg/types"
)

func TestColumn_IdentityWithoutTransformers(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sub := types.Submission{ID: "1", CreatedAt: created, JSONData: `{"q":[1,2]}`}

	tests := []struct {
		name string
		col  *Column[types.Submission]
		want interface{}
	}{
		{
			name: "static time",
			col:  Static("created_at", "CreatedAt", func(s types.Submission) interface{} { return s.CreatedAt }).Build(),
			want: created,
		},
		{
			name: "static with formatter only",
			col: Static("id", "ID", func(s types.Submission) interface{} { return s.ID }).
				SetFormatter(TextFormatter{}).Build(),
			want: "1",
		},
		{
			name: "json path node",
			col:  JSONPath[types.Submission]("q", "q").Build(),
			want: node.Array(node.Number("1"), node.Number("2")),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.col.GetValue(NewContext(sub, Discard))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumn_JSONPathWithoutDocument(t *testing.T) {
	col := JSONPath[types.Submission]("q", "q").AddTransformer(ContentURL{}).Build()

	// nil normalizes to the null node once transformers are involved
	assert.Equal(t, node.Null(), col.GetValue(NewContext(types.Submission{ID: "1"}, Discard)))

	diag := &recorder{}
	assert.Equal(t, node.Null(), col.GetValue(NewContext(types.Submission{ID: "1", JSONData: "{broken"}, diag)))

	plain := JSONPath[types.Submission]("q", "q").Build()
	assert.Nil(t, plain.GetValue(NewContext(types.Submission{ID: "1"}, Discard)))
	assert.Equal(t, 1, diag.count())
}

func TestColumn_TransformersRunInOrder(t *testing.T) {
	appendSuffix := func(suffix string) Transformer {
		return TransformerFunc(func(n node.Node, _ Diagnostics) node.Node {
			s, _ := n.Str()
			return node.String(s + suffix)
		})
	}
	col := Static("id", "ID", func(s types.Submission) interface{} { return s.ID }).
		AddTransformer(appendSuffix("-a")).
		AddTransformer(appendSuffix("-b")).
		SetFormatter(TextFormatter{}).
		Build()

	assert.Equal(t, "x-a-b", col.GetValue(NewContext(types.Submission{ID: "x"}, Discard)))
}

func TestColumn_TimeBypassesTransformers(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	called := false
	mark := TransformerFunc(func(n node.Node, _ Diagnostics) node.Node {
		called = true
		return n
	})

	raw := Static("created_at", "CreatedAt", func(s types.Submission) interface{} { return s.CreatedAt }).
		AddTransformer(mark).Build()
	formatted := Static("created_at", "CreatedAt", func(s types.Submission) interface{} { return s.CreatedAt }).
		AddTransformer(mark).SetFormatter(TextFormatter{}).Build()
	completed := Static("completed_at", "CompletedAt", func(s types.Submission) interface{} { return s.CompletedAt }).
		AddTransformer(mark).SetFormatter(TextFormatter{}).Build()

	sub := types.Submission{CreatedAt: created, CompletedAt: &created}
	assert.Equal(t, created, raw.GetValue(NewContext(sub, Discard)))
	assert.Equal(t, "2024-01-02 03:04:05", formatted.GetValue(NewContext(sub, Discard)))
	assert.Equal(t, "2024-01-02 03:04:05", completed.GetValue(NewContext(sub, Discard)))
	assert.False(t, called)

	// a nil date still goes through the pipeline as null
	assert.Equal(t, "", completed.GetValue(NewContext(types.Submission{}, Discard)))
	assert.True(t, called)
}

func TestColumn_StagesSeeRowDocument(t *testing.T) {
	// label answers with the document's unit
	withUnit := TransformerFunc(func(n node.Node, diag Diagnostics) node.Node {
		row, ok := diag.(RowContext)
		if !ok {
			return n
		}
		doc, ok := row.Document()
		if !ok {
			return n
		}
		u, _ := doc.Get("unit")
		unit, _ := u.Str()
		lit, _ := n.NumberText()
		return node.String(lit + " " + unit)
	})
	col := JSONPath[types.Submission]("weight", "weight").AddTransformer(withUnit).SetFormatter(TextFormatter{}).Build()

	sub := types.Submission{JSONData: `{"weight":12,"unit":"kg"}`}
	assert.Equal(t, "12 kg", col.GetValue(NewContext(sub, Discard)))
}

func TestColumn_NonRepresentableValuePassesThrough(t *testing.T) {
	ch := make(chan int)
	called := false
	col := Static("ch", "", func(types.Submission) interface{} { return ch }).
		AddTransformer(TransformerFunc(func(n node.Node, _ Diagnostics) node.Node {
			called = true
			return n
		})).
		Build()

	got := col.GetValue(NewContext(types.Submission{}, Discard))
	assert.Equal(t, ch, got)
	assert.False(t, called)
}

func TestColumn_TransformerPanicDegradesToRaw(t *testing.T) {
	diag := &recorder{}
	col := Static("id", "ID", func(s types.Submission) interface{} { return s.ID }).
		AddTransformer(TransformerFunc(func(node.Node, Diagnostics) node.Node { panic("boom") })).
		Build()

	assert.Equal(t, "7", col.GetValue(NewContext(types.Submission{ID: "7"}, diag)))
	assert.Equal(t, 1, diag.count())
}

func TestColumnBuilder_BuildIsIsolated(t *testing.T) {
	b := Static("id", "ID", func(s types.Submission) interface{} { return s.ID })
	first := b.Build()
	b.AddTransformer(ContentURL{})
	second := b.Build()

	assert.False(t, first.HasTransformers())
	assert.True(t, second.HasTransformers())
	assert.Equal(t, "id", second.Name())
	assert.Equal(t, "ID", second.SourceKey())
}

func TestEvaluate_ParsesDocumentOnce(t *testing.T) {
	row := &countingRow{payload: []byte(`{"a":"1","b":"2"}`)}
	cols := []*Column[*countingRow]{
		JSONPath[*countingRow]("a", "a").Build(),
		JSONPath[*countingRow]("b", "b").Build(),
		JSONPath[*countingRow]("c", "c").Build(),
	}

	values := evaluate(row, cols, Discard, nil)
	require.Len(t, values, 3)
	assert.Equal(t, node.String("1"), values[0])
	assert.Equal(t, node.String("2"), values[1])
	assert.Nil(t, values[2])
	assert.Equal(t, 1, row.calls)
}

type countingRow struct {
	payload []byte
	calls   int
}

func (r *countingRow) Document() []byte {
	r.calls++
	return r.payload
}
