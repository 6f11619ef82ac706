package schema

import (
	"reflect"
	"testing"

	"github.com/maruel/insertd/internal/rows"
)

func batch(t *testing.T, body string) rows.Batch {
	t.Helper()
	b, err := rows.Normalize([]byte(body))
	if err != nil {
		t.Fatalf("Normalize(%s): %v", body, err)
	}
	return b
}

func TestInfer(t *testing.T) {
	tests := []struct {
		name string
		body string
		pk   string
		want []Column
	}{
		{
			name: "cleopaws",
			body: `[{"id": 3, "name": "Cleopaws", "age": 5}]`,
			pk:   "id",
			want: []Column{
				{Name: "id", Type: TypeInteger, PK: true},
				{Name: "name", Type: TypeText},
				{Name: "age", Type: TypeInteger},
			},
		},
		{
			name: "pk matches ignoring case",
			body: `[{"id": 3, "name": "Cleopaws"}]`,
			pk:   "ID",
			want: []Column{
				{Name: "id", Type: TypeInteger, PK: true},
				{Name: "name", Type: TypeText},
			},
		},
		{
			name: "string beats float beats int",
			body: `[{"a": 1, "b": 1, "c": 1}, {"a": 1.5, "b": "x", "c": true}, {"a": 2, "b": 2.5}]`,
			want: []Column{
				{Name: "a", Type: TypeFloat},
				{Name: "b", Type: TypeText},
				{Name: "c", Type: TypeInteger},
			},
		},
		{
			name: "null only is text",
			body: `[{"a": null}, {"a": null}]`,
			want: []Column{{Name: "a", Type: TypeText}},
		},
		{
			name: "nulls do not widen",
			body: `[{"a": null}, {"a": 1}]`,
			want: []Column{{Name: "a", Type: TypeInteger}},
		},
		{
			name: "first occurrence order",
			body: `[{"b": 1}, {"a": 1, "b": 2, "c": 3}]`,
			want: []Column{
				{Name: "b", Type: TypeInteger},
				{Name: "a", Type: TypeInteger},
				{Name: "c", Type: TypeInteger},
			},
		},
		{
			name: "absent primary key appended",
			body: `{"name": "x"}`,
			pk:   "id",
			want: []Column{
				{Name: "name", Type: TypeText},
				{Name: "id", Type: TypeInteger, PK: true},
			},
		},
		{
			name: "empty batch",
			body: `[]`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Infer(batch(t, tt.body), tt.pk)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Infer() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	table := &Table{
		Name:       "dogs",
		PrimaryKey: "id",
		Columns: []Column{
			{Name: "id", Type: TypeInteger, PK: true},
			{Name: "Name", Type: TypeText},
			{Name: "age", Type: TypeInteger},
		},
	}
	t.Run("none", func(t *testing.T) {
		if got := Missing(table, batch(t, `{"id": 3, "name": "Cleopaws", "AGE": 5}`)); len(got) != 0 {
			t.Errorf("Missing() = %+v, want none", got)
		}
	})
	t.Run("new columns typed", func(t *testing.T) {
		got := Missing(table, batch(t, `[{"id": 3, "weight_lb": 51}, {"id": 4, "weight_lb": 51.1, "color": "brown"}]`))
		want := []Column{
			{Name: "weight_lb", Type: TypeFloat},
			{Name: "color", Type: TypeText},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Missing() = %+v, want %+v", got, want)
		}
	})
}

func TestTable_Has(t *testing.T) {
	table := &Table{Columns: []Column{{Name: "Weight"}}}
	if !table.Has("weight") {
		t.Error("Has(weight) = false, want true")
	}
	if table.Has("height") {
		t.Error("Has(height) = true, want false")
	}
	if got := table.ColumnNames(); !reflect.DeepEqual(got, []string{"Weight"}) {
		t.Errorf("ColumnNames() = %v", got)
	}
}
