package query

import (
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Match evaluates f against a document decoded into maps (bson.M,
// map[string]interface{} or bson.D). Semantics follow MongoDB: path segments
// traverse arrays, Eq on an array matches any element, Ne matches missing fields.
func (f Filter) Match(doc map[string]interface{}) bool {
	switch f.Op {
	case OpAll, "":
		return true
	case OpNone:
		return false
	case OpAnd:
		for _, c := range f.Children {
			if !c.Match(doc) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Children {
			if c.Match(doc) {
				return true
			}
		}
		return false
	case OpEq:
		return anyEqual(lookup(doc, f.Field), f.Value)
	case OpNe:
		return !anyEqual(lookup(doc, f.Field), f.Value)
	case OpIn:
		candidates := lookup(doc, f.Field)
		for _, v := range f.Values {
			if anyEqual(candidates, v) {
				return true
			}
		}
		return false
	case OpGt, OpGte, OpLt, OpLte:
		for _, c := range expand(lookup(doc, f.Field)) {
			cmp, ok := compare(c, f.Value)
			if !ok {
				continue
			}
			switch {
			case f.Op == OpGt && cmp > 0,
				f.Op == OpGte && cmp >= 0,
				f.Op == OpLt && cmp < 0,
				f.Op == OpLte && cmp <= 0:
				return true
			}
		}
		return false
	case OpElemMatch:
		for _, c := range lookup(doc, f.Field) {
			for _, elem := range asArray(c) {
				sub, ok := asDoc(elem)
				if !ok {
					continue
				}
				if And(f.Children...).Match(sub) {
					return true
				}
			}
		}
		return false
	case OpContains:
		needle := strings.ToLower(toString(f.Value))
		for _, field := range f.Fields {
			for _, c := range expand(lookup(doc, field)) {
				if s, ok := c.(string); ok && strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// lookup resolves a dotted path, fanning out across arrays
func lookup(doc map[string]interface{}, path string) []interface{} {
	current := []interface{}{doc}
	for _, part := range strings.Split(path, ".") {
		var next []interface{}
		for _, v := range current {
			if d, ok := asDoc(v); ok {
				if child, exists := d[part]; exists {
					next = append(next, child)
				}
				continue
			}
			for _, elem := range asArray(v) {
				if d, ok := asDoc(elem); ok {
					if child, exists := d[part]; exists {
						next = append(next, child)
					}
				}
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	return current
}

// expand flattens array candidates one level
func expand(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if arr := asArray(v); arr != nil {
			out = append(out, arr...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func anyEqual(candidates []interface{}, want interface{}) bool {
	if len(candidates) == 0 {
		return want == nil
	}
	for _, c := range expand(candidates) {
		if equal(c, want) {
			return true
		}
	}
	return false
}

func asDoc(v interface{}) (map[string]interface{}, bool) {
	switch d := v.(type) {
	case map[string]interface{}:
		return d, true
	case primitive.M:
		return map[string]interface{}(d), true
	case primitive.D:
		return map[string]interface{}(d.Map()), true
	}
	return nil, false
}

func asArray(v interface{}) []interface{} {
	switch a := v.(type) {
	case []interface{}:
		return a
	case primitive.A:
		return []interface{}(a)
	case []map[string]interface{}:
		out := make([]interface{}, len(a))
		for i := range a {
			out[i] = a[i]
		}
		return out
	}
	return nil
}

func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case primitive.DateTime:
		return n.Time().UTC()
	case time.Time:
		return n.UTC().Truncate(time.Millisecond)
	case *time.Time:
		if n == nil {
			return nil
		}
		return n.UTC().Truncate(time.Millisecond)
	}
	return v
}

func equal(a, b interface{}) bool {
	na, nb := normalize(a), normalize(b)
	if ta, ok := na.(time.Time); ok {
		tb, ok := nb.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(na, nb)
}

func compare(a, b interface{}) (int, bool) {
	na, nb := normalize(a), normalize(b)
	switch x := na.(type) {
	case float64:
		y, ok := nb.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, ok := nb.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case string:
		y, ok := nb.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Lookup resolves a dotted path in doc, fanning out across arrays
func Lookup(doc map[string]interface{}, path string) []interface{} {
	return lookup(doc, path)
}

// Compare orders two scalar values (numbers, strings, times). ok is false when
// the values are not comparable.
func Compare(a, b interface{}) (cmp int, ok bool) {
	return compare(a, b)
}

// AsDocument returns v as a map when it is a decoded sub-document
func AsDocument(v interface{}) (map[string]interface{}, bool) {
	return asDoc(v)
}

// AsArray returns v as a slice when it is a decoded array
func AsArray(v interface{}) []interface{} {
	return asArray(v)
}
