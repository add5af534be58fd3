package listing

import (
	"bytes"
	"encoding/json"

	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
	"github.com/carehub/pharmacy-portal/pkg/pagination"
)

// listKeys are tried, in order, after any caller-supplied aliases.
var listKeys = []string{"items", "data", "results", "docs"}

// maxNesting bounds how deep {data: {data: {...}}} wrappers are unwrapped.
const maxNesting = 3

// Normalize extracts the list of raw items and the pagination metadata from a
// list payload. The backend is inconsistent about shape; all of these are
// accepted and yield the same items:
//
//	[ ... ]
//	{"items": [ ... ], "pagination": {...}}
//	{"medicines": [ ... ]}                  (alias supplied by the caller)
//	{"data": {"items": [ ... ]}}
//
// meta is nil when the payload carries no pagination information.
func Normalize(data json.RawMessage, aliases ...string) (items []json.RawMessage, meta *pagination.Meta) {
	return normalize(data, aliases, 0)
}

func normalize(data json.RawMessage, aliases []string, depth int) ([]json.RawMessage, *pagination.Meta) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []json.RawMessage{}, nil
	}

	if data[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return []json.RawMessage{}, nil
		}
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return []json.RawMessage{}, nil
	}

	keys := make([]string, 0, len(aliases)+len(listKeys))
	keys = append(keys, aliases...)
	keys = append(keys, listKeys...)

	var items []json.RawMessage
	var found bool
	var inner *pagination.Meta
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		if raw[0] == '[' {
			if err := json.Unmarshal(raw, &items); err == nil {
				found = true
				break
			}
			continue
		}
		if raw[0] == '{' && depth < maxNesting {
			nested, nestedMeta := normalize(raw, aliases, depth+1)
			if len(nested) > 0 || nestedMeta != nil {
				items, inner, found = nested, nestedMeta, true
				break
			}
		}
	}
	if !found || items == nil {
		items = []json.RawMessage{}
	}

	if meta := readMeta(data, len(items)); meta != nil {
		return items, meta
	}
	return items, inner
}

func readMeta(data json.RawMessage, count int) *pagination.Meta {
	rec := record.Parse(data)
	src := rec.Object("pagination", "meta")
	if len(src) == 0 {
		if !rec.Has("total", "totalPages", "totalItems") {
			return nil
		}
		src = rec
	}

	meta := &pagination.Meta{
		Page:  src.Int("page", "currentPage"),
		Limit: src.Int("limit", "perPage", "pageSize"),
	}
	if meta.Page < 1 {
		meta.Page = 1
	}
	if meta.Limit <= 0 {
		meta.Limit = pagination.DefaultLimit
	}
	if src.Has("total", "totalItems", "count") {
		meta.Total = src.Int("total", "totalItems", "count")
	} else {
		meta.Total = count
	}
	if src.Has("totalPages", "pages") {
		meta.TotalPages = src.Int("totalPages", "pages")
	} else {
		meta.TotalPages = pagination.TotalPages(meta.Total, meta.Limit)
	}
	if meta.TotalPages < 1 {
		meta.TotalPages = 1
	}
	if meta.Total < 0 {
		meta.Total = 0
	}
	return meta
}

// DecodePage normalizes an envelope's list payload and maps every item
// through transform.
func DecodePage[T any](env *apiclient.Envelope, transform func(record.Record) T, aliases ...string) *Page[T] {
	if !env.HasData() {
		return &Page[T]{Items: []T{}}
	}
	raw, meta := Normalize(env.Data, aliases...)
	items := make([]T, 0, len(raw))
	for _, rec := range record.ParseAll(raw) {
		items = append(items, transform(rec))
	}
	return &Page[T]{Items: items, Meta: meta}
}
