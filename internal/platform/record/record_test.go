package record

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParse_NonObject(t *testing.T) {
	for _, raw := range []string{``, `null`, `[1,2]`, `"x"`, `{bad`} {
		r := Parse(json.RawMessage(raw))
		if r == nil || len(r) != 0 {
			t.Errorf("Parse(%q) = %v, want empty record", raw, r)
		}
	}
}

func TestRecord_StringFallbackChain(t *testing.T) {
	r := Parse(json.RawMessage(`{"_id": "", "id": 42, "name": "  Paracetamol "}`))

	if got := r.String("_id", "id"); got != "42" {
		t.Errorf("String(_id, id) = %q, want %q", got, "42")
	}
	if got := r.String("name"); got != "Paracetamol" {
		t.Errorf("String(name) = %q, want trimmed value", got)
	}
	if got := r.StringOr("n/a", "missing"); got != "n/a" {
		t.Errorf("StringOr default = %q", got)
	}
}

func TestRecord_NestedKeys(t *testing.T) {
	r := Parse(json.RawMessage(`{"patient": {"name": "Ada", "contact": {"phone": "555"}}}`))

	if got := r.String("patient.contact.phone"); got != "555" {
		t.Errorf("nested phone = %q", got)
	}
	if got := r.Object("patient").String("name"); got != "Ada" {
		t.Errorf("Object(patient).name = %q", got)
	}
	if got := r.Object("nope"); got == nil || len(got) != 0 {
		t.Errorf("missing object should be empty, got %v", got)
	}
}

func TestRecord_Numbers(t *testing.T) {
	r := Parse(json.RawMessage(`{"q": "40", "p": 2.5, "bad": "abc", "neg": -3}`))

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"numeric string", r.Int("q"), 40},
		{"float", r.Float("p"), 2.5},
		{"unparseable falls through", r.Int("bad", "q"), 40},
		{"missing", r.Int("zzz"), 0},
		{"negative", r.Int("neg"), -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	total := r.Decimal("q").Mul(r.Decimal("p"))
	if total.String() != "100" {
		t.Errorf("40 * 2.5 = %s, want 100", total)
	}
}

func TestRecord_Bool(t *testing.T) {
	r := Parse(json.RawMessage(`{"a": true, "b": "false", "c": 1}`))

	if v, ok := r.Bool("a"); !v || !ok {
		t.Error("expected a=true")
	}
	if v, ok := r.Bool("b"); v || !ok {
		t.Error("expected b=false found")
	}
	if v, _ := r.Bool("c"); !v {
		t.Error("expected c=true")
	}
	if !r.BoolOr(true, "missing") {
		t.Error("expected default true")
	}
}

func TestRecord_Time(t *testing.T) {
	r := Parse(json.RawMessage(`{"iso": "2024-03-01T10:00:00Z", "date": "2024-03-01", "ms": 1709287200000, "junk": "yesterday"}`))

	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if got := r.Time("iso"); !got.Equal(want) {
		t.Errorf("iso = %v", got)
	}
	if got := r.Time("date"); got.Year() != 2024 || got.Month() != 3 || got.Day() != 1 {
		t.Errorf("date = %v", got)
	}
	if got := r.Time("ms"); !got.Equal(want) {
		t.Errorf("ms epoch = %v, want %v", got, want)
	}
	if got := r.Time("junk"); !got.IsZero() {
		t.Errorf("junk should be zero time, got %v", got)
	}
}

func TestRecord_StringsAndRecords(t *testing.T) {
	r := Parse(json.RawMessage(`{
		"allergies": ["Penicillin", " ", "Dust"],
		"history": [{"condition": "Asthma"}, {"name": "Diabetes"}, {}],
		"csv": "a, b",
		"items": [{"x": 1}, 3, {"x": 2}]
	}`))

	if got := r.Strings(nil, "allergies"); len(got) != 2 || got[1] != "Dust" {
		t.Errorf("allergies = %v", got)
	}
	if got := r.Strings([]string{"condition", "name"}, "history"); len(got) != 2 || got[1] != "Diabetes" {
		t.Errorf("history = %v", got)
	}
	if got := r.Strings(nil, "csv"); len(got) != 2 || got[1] != "b" {
		t.Errorf("csv = %v", got)
	}
	if got := r.Records("items"); len(got) != 2 {
		t.Errorf("expected 2 object elements, got %d", len(got))
	}
}
