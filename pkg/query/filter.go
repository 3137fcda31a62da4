// Package query provides the boolean predicates used to scope document reads
// and writes. A Filter can be evaluated in memory with Match or rendered by a
// store backend (see storage/mongo).
package query

import (
	"fmt"
	"strings"
)

// Op identifies a predicate kind
type Op string

const (
	OpAll       Op = "all"
	OpNone      Op = "none"
	OpEq        Op = "eq"
	OpNe        Op = "ne"
	OpIn        Op = "in"
	OpGt        Op = "gt"
	OpGte       Op = "gte"
	OpLt        Op = "lt"
	OpLte       Op = "lte"
	OpAnd       Op = "and"
	OpOr        Op = "or"
	OpElemMatch Op = "elemMatch"
	OpContains  Op = "contains"
)

// Filter is a node in a predicate tree. Fields are dotted paths
// ("assignment.assignedAgentId").
type Filter struct {
	Op       Op
	Field    string
	Fields   []string
	Value    interface{}
	Values   []interface{}
	Children []Filter
}

// All matches every document
func All() Filter { return Filter{Op: OpAll} }

// None matches no document
func None() Filter { return Filter{Op: OpNone} }

// Eq matches documents whose field equals v. On an array field it matches
// when any element equals v.
func Eq(field string, v interface{}) Filter { return Filter{Op: OpEq, Field: field, Value: v} }

// Ne matches documents whose field differs from v, including documents
// where the field is missing.
func Ne(field string, v interface{}) Filter { return Filter{Op: OpNe, Field: field, Value: v} }

// In matches documents whose field equals one of vs
func In(field string, vs ...interface{}) Filter { return Filter{Op: OpIn, Field: field, Values: vs} }

func Gt(field string, v interface{}) Filter  { return Filter{Op: OpGt, Field: field, Value: v} }
func Gte(field string, v interface{}) Filter { return Filter{Op: OpGte, Field: field, Value: v} }
func Lt(field string, v interface{}) Filter  { return Filter{Op: OpLt, Field: field, Value: v} }
func Lte(field string, v interface{}) Filter { return Filter{Op: OpLte, Field: field, Value: v} }

// And matches when every child matches. All() children are dropped.
func And(children ...Filter) Filter {
	kept := make([]Filter, 0, len(children))
	for _, c := range children {
		switch c.Op {
		case OpAll:
			continue
		case OpNone:
			return None()
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return All()
	case 1:
		return kept[0]
	}
	return Filter{Op: OpAnd, Children: kept}
}

// Or matches when any child matches
func Or(children ...Filter) Filter {
	kept := make([]Filter, 0, len(children))
	for _, c := range children {
		switch c.Op {
		case OpAll:
			return All()
		case OpNone:
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return None()
	case 1:
		return kept[0]
	}
	return Filter{Op: OpOr, Children: kept}
}

// ElemMatch matches documents where the array at field has at least one
// element satisfying every child predicate. Child fields are relative to the
// element.
func ElemMatch(field string, children ...Filter) Filter {
	return Filter{Op: OpElemMatch, Field: field, Children: children}
}

// Contains matches documents where any of fields contains text, case-insensitively
func Contains(text string, fields ...string) Filter {
	if strings.TrimSpace(text) == "" || len(fields) == 0 {
		return All()
	}
	return Filter{Op: OpContains, Fields: fields, Value: text}
}

// IsAll reports whether f places no restriction
func (f Filter) IsAll() bool { return f.Op == OpAll || f.Op == "" }

// IsNone reports whether f can never match
func (f Filter) IsNone() bool { return f.Op == OpNone }

// String renders a compact, human-readable form for logs and tests
func (f Filter) String() string {
	switch f.Op {
	case OpAll, "":
		return "true"
	case OpNone:
		return "false"
	case OpAnd, OpOr:
		parts := make([]string, len(f.Children))
		for i, c := range f.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+string(f.Op)+" ") + ")"
	case OpElemMatch:
		parts := make([]string, len(f.Children))
		for i, c := range f.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("%s elemMatch{%s}", f.Field, strings.Join(parts, ", "))
	case OpIn:
		return fmt.Sprintf("%s in %v", f.Field, f.Values)
	case OpContains:
		return fmt.Sprintf("%v contains %q", f.Fields, f.Value)
	default:
		return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
	}
}
