package models

import (
	"fmt"
	"reflect"
)

// Op is a comparison operator in a collection filter.
type Op string

// Supported operators.
const (
	OpEq            Op = "=="
	OpNe            Op = "!="
	OpLt            Op = "<"
	OpLte           Op = "<="
	OpGt            Op = ">"
	OpGte           Op = ">="
	OpIn            Op = "in"
	OpArrayContains Op = "array-contains"
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpArrayContains:
		return true
	}
	return false
}

// Predicate is a single field comparison. A nil Value means the value is not
// known yet (for example, it depends on data still loading); such a predicate
// is unresolved and must not be sent to the store.
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Where builds a predicate.
func Where(field string, op Op, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// Resolved reports whether the predicate's value is known.
func (p Predicate) Resolved() bool {
	if p.Value == nil {
		return false
	}
	rv := reflect.ValueOf(p.Value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return !rv.IsNil()
	}
	return true
}

// Validate checks that the predicate names a field and a known operator.
func (p Predicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("predicate: empty field")
	}
	if !p.Op.Valid() {
		return fmt.Errorf("predicate: unknown operator %q", p.Op)
	}
	return nil
}

// Match evaluates the predicate against r. Unresolved predicates match nothing.
func (p Predicate) Match(r Record) bool {
	if !p.Resolved() {
		return false
	}
	v, ok := r.Fields[p.Field]
	switch p.Op {
	case OpEq:
		return ok && compare(v, p.Value) == 0
	case OpNe:
		return !ok || compare(v, p.Value) != 0
	case OpLt:
		return ok && v != nil && compare(v, p.Value) < 0
	case OpLte:
		return ok && v != nil && compare(v, p.Value) <= 0
	case OpGt:
		return ok && v != nil && compare(v, p.Value) > 0
	case OpGte:
		return ok && v != nil && compare(v, p.Value) >= 0
	case OpIn:
		return ok && containsValue(p.Value, v)
	case OpArrayContains:
		return ok && containsValue(v, p.Value)
	}
	return false
}

// AllResolved reports whether every predicate has a known value.
func AllResolved(preds []Predicate) bool {
	for _, p := range preds {
		if !p.Resolved() {
			return false
		}
	}
	return true
}

// MatchAll evaluates the conjunction of preds against r.
func MatchAll(preds []Predicate, r Record) bool {
	for _, p := range preds {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

// Filter returns the records matching every predicate, in input order.
func Filter(records []Record, preds []Predicate) []Record {
	if len(preds) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if MatchAll(preds, r) {
			out = append(out, r)
		}
	}
	return out
}

func containsValue(list, needle any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if compare(rv.Index(i).Interface(), needle) == 0 {
			return true
		}
	}
	return false
}
