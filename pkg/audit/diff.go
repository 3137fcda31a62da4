package audit

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

// Redacted replaces the values of sensitive fields in diffs
const Redacted = "[REDACTED]"

var sensitiveFields = map[string]struct{}{
	"password":     {},
	"passwordhash": {},
	"token":        {},
	"secret":       {},
}

func isSensitive(path string) bool {
	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	_, ok := sensitiveFields[strings.ToLower(last)]
	return ok
}

// Diff compares the JSON form of before and after and returns one change per
// differing leaf, sorted by dotted field path. Either side may be nil.
// Values of sensitive fields are replaced with Redacted.
func Diff(before, after interface{}) []FieldChange {
	a := flatten(before)
	b := flatten(after)

	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	changes := []FieldChange{}
	for k := range keys {
		oldV, newV := a[k], b[k]
		if reflect.DeepEqual(oldV, newV) {
			continue
		}
		if isSensitive(k) {
			if oldV != nil {
				oldV = Redacted
			}
			if newV != nil {
				newV = Redacted
			}
		}
		changes = append(changes, FieldChange{Field: k, OldValue: oldV, NewValue: newV})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// flatten round-trips v through JSON so that struct tags decide field names,
// then maps every leaf to its dotted path. Arrays are leaves.
func flatten(v interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	if v == nil {
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return out
	}
	walk("", generic, out)
	return out
}

func walk(prefix string, v interface{}, out map[string]interface{}) {
	m, ok := v.(map[string]interface{})
	if !ok {
		if prefix != "" {
			out[prefix] = v
		}
		return
	}
	if len(m) == 0 && prefix != "" {
		out[prefix] = m
		return
	}
	for k, child := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		walk(path, child, out)
	}
}
