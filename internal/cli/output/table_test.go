package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

func render(t *testing.T, f *TableFormatter, data any) []string {
	t.Helper()
	var buf bytes.Buffer
	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestTableFormatter_Table(t *testing.T) {
	table := &Table{Headers: []string{"ID", "COUNT"}}
	table.AddRow("a", "1")
	table.AddRow("bbbb", "22")

	lines := render(t, &TableFormatter{}, table)
	want := []string{
		"ID    COUNT",
		"a     1",
		"bbbb  22",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %q, want %q", lines, want)
	}

	lines = render(t, &TableFormatter{NoHeaders: true}, table)
	if len(lines) != 2 || strings.HasPrefix(lines[0], "ID") {
		t.Errorf("NoHeaders output = %q", lines)
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	lines := render(t, &TableFormatter{}, &sample{
		ID:         "abc",
		LastAccess: 42,
		Attributes: map[string]any{"n": 1},
	})

	want := []string{
		"FIELD        VALUE",
		"id           abc",
		"last_access  42",
		`attributes   {"n":1}`,
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %q, want %q", lines, want)
	}
}

func TestTableFormatter_MapIsSorted(t *testing.T) {
	lines := render(t, &TableFormatter{}, map[string]any{"zeta": 1, "alpha": "x", "mid": nil})

	want := []string{
		"KEY    VALUE",
		"alpha  x",
		"mid    -",
		"zeta   1",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %q, want %q", lines, want)
	}
}

func TestTableFormatter_Slice(t *testing.T) {
	type row struct {
		Name   string `json:"name"`
		Count  int    `json:"count"`
		Secret string `json:"secret" table:"-"`
		hidden string
	}
	data := []*row{{Name: "a", Count: 1, Secret: "s"}, {Name: "b", Count: 2}}

	lines := render(t, &TableFormatter{}, data)
	want := []string{
		"NAME  COUNT",
		"a     1",
		"b     2",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %q, want %q", lines, want)
	}

	lines = render(t, &TableFormatter{}, []string{"x", "y"})
	if !reflect.DeepEqual(lines, []string{"VALUE", "x", "y"}) {
		t.Errorf("scalar slice = %q", lines)
	}
}

func TestTableFormatter_FallbackToJSON(t *testing.T) {
	lines := render(t, &TableFormatter{}, 42)
	if len(lines) != 1 || lines[0] != "42" {
		t.Errorf("got %q", lines)
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var nilPtr *int
	var iface any = "boxed"

	tests := []struct {
		name string
		in   reflect.Value
		want string
	}{
		{"invalid", reflect.Value{}, "-"},
		{"empty string", reflect.ValueOf(""), "-"},
		{"string", reflect.ValueOf("x"), "x"},
		{"int", reflect.ValueOf(int64(-3)), "-3"},
		{"float", reflect.ValueOf(1.5), "1.5"},
		{"bool", reflect.ValueOf(true), "true"},
		{"time", reflect.ValueOf(ts), "2024-05-01T12:00:00Z"},
		{"zero time", reflect.ValueOf(time.Time{}), "-"},
		{"nil pointer", reflect.ValueOf(nilPtr), "-"},
		{"interface", reflect.ValueOf(&iface).Elem(), "boxed"},
		{"empty slice", reflect.ValueOf([]any{}), "-"},
		{"slice", reflect.ValueOf([]any{1, "a"}), `[1,"a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.in); got != tt.want {
				t.Errorf("formatValue() = %q, want %q", got, tt.want)
			}
		})
	}
}
