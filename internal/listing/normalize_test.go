package listing

import (
	"encoding/json"
	"testing"

	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

func TestNormalize_ShapesYieldSameItems(t *testing.T) {
	shapes := map[string]string{
		"bare array":   `[{"_id":"a"},{"_id":"b"}]`,
		"items":        `{"items":[{"_id":"a"},{"_id":"b"}]}`,
		"alias":        `{"medicines":[{"_id":"a"},{"_id":"b"}]}`,
		"orders alias": `{"orders":[{"_id":"a"},{"_id":"b"}]}`,
		"nested data":  `{"data":{"items":[{"_id":"a"},{"_id":"b"}]}}`,
		"nested alias": `{"data":{"medicines":[{"_id":"a"},{"_id":"b"}]}}`,
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			items, _ := Normalize(json.RawMessage(body), "medicines", "orders")
			if len(items) != 2 {
				t.Fatalf("expected 2 items, got %d", len(items))
			}
			ids := []string{record.Parse(items[0]).String("_id"), record.Parse(items[1]).String("_id")}
			if ids[0] != "a" || ids[1] != "b" {
				t.Errorf("unexpected ids %v", ids)
			}
		})
	}
}

func TestNormalize_Pagination(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		wantMeta       bool
		wantTotal      int
		wantTotalPages int
	}{
		{"none", `{"items":[{},{}]}`, false, 0, 0},
		{"full", `{"items":[{}],"pagination":{"total":25,"totalPages":3,"page":1,"limit":10}}`, true, 25, 3},
		{"total only", `{"items":[{}],"pagination":{"total":25}}`, true, 25, 3},
		{"top level", `{"orders":[{}],"total":11}`, true, 11, 2},
		{"nested", `{"data":{"items":[{}],"pagination":{"total":4,"totalPages":1}}}`, true, 4, 1},
		{"pages only", `{"items":[{},{}],"pagination":{"totalPages":2}}`, true, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, meta := Normalize(json.RawMessage(tt.body), "orders")
			if (meta != nil) != tt.wantMeta {
				t.Fatalf("meta presence = %v, want %v", meta != nil, tt.wantMeta)
			}
			if meta == nil {
				return
			}
			if meta.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", meta.Total, tt.wantTotal)
			}
			if meta.TotalPages != tt.wantTotalPages {
				t.Errorf("TotalPages = %d, want %d", meta.TotalPages, tt.wantTotalPages)
			}
		})
	}
}

func TestNormalize_Garbage(t *testing.T) {
	for _, body := range []string{``, `null`, `"text"`, `{"message":"ok"}`, `[1,`} {
		items, meta := Normalize(json.RawMessage(body))
		if items == nil || len(items) != 0 {
			t.Errorf("Normalize(%q) items = %v, want empty", body, items)
		}
		if meta != nil {
			t.Errorf("Normalize(%q) meta = %+v, want nil", body, meta)
		}
	}
}

func TestDecodePage(t *testing.T) {
	env := &apiclient.Envelope{Success: true, Data: json.RawMessage(`{"services":[{"name":"A"},{"name":"B"}]}`)}
	page := DecodePage(env, func(r record.Record) string { return r.String("name") }, "services")
	if len(page.Items) != 2 || page.Items[1] != "B" {
		t.Errorf("unexpected items %v", page.Items)
	}
	if page.Meta != nil {
		t.Errorf("expected nil meta, got %+v", page.Meta)
	}

	empty := DecodePage(&apiclient.Envelope{Success: true}, func(r record.Record) string { return "" })
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Errorf("expected empty non-nil items, got %v", empty.Items)
	}
}
