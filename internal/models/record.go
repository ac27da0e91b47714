// Package models defines the domain types shared by the store, mirror and
// presentation layers.
package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// Collections known to the application.
const (
	CollectionSongs    = "songs"
	CollectionSetlists = "setlists"
)

// Record is one document of a remote collection. The ID is owned by the store;
// the fields are opaque to the mirror except for filtering and ordering.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// String returns the string field named key, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// Number returns the numeric field named key. JSON-decoded numbers arrive as
// float64; json.Number and Go integer types are accepted too.
func (r Record) Number(key string) (float64, bool) {
	return toNumber(r.Fields[key])
}

// Clone returns a deep-enough copy: the field map is copied, values are shared.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields}
}

// SortBy orders records ascending by field, comparing numbers numerically and
// everything else as strings. Records missing the field sort first. The sort
// is stable so equal keys keep snapshot order.
func SortBy(records []Record, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		return compare(records[i].Fields[field], records[j].Fields[field]) < 0
	})
}

func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(toString(a), toString(b))
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	data, _ := json.Marshal(v)
	return string(data)
}
