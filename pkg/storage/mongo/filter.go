package mongo

import (
	"regexp"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/storage"
)

// RenderFilter translates a predicate tree into a MongoDB query document
func RenderFilter(f query.Filter) bson.D {
	switch f.Op {
	case query.OpAll, "":
		return bson.D{}
	case query.OpNone:
		return bson.D{{Key: "$expr", Value: false}}
	case query.OpEq:
		return bson.D{{Key: f.Field, Value: f.Value}}
	case query.OpNe:
		return bson.D{{Key: f.Field, Value: bson.D{{Key: "$ne", Value: f.Value}}}}
	case query.OpIn:
		return bson.D{{Key: f.Field, Value: bson.D{{Key: "$in", Value: bson.A(f.Values)}}}}
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		return bson.D{{Key: f.Field, Value: bson.D{{Key: "$" + string(f.Op), Value: f.Value}}}}
	case query.OpAnd, query.OpOr:
		children := make(bson.A, 0, len(f.Children))
		for _, c := range f.Children {
			children = append(children, RenderFilter(c))
		}
		return bson.D{{Key: "$" + string(f.Op), Value: children}}
	case query.OpElemMatch:
		return bson.D{{Key: f.Field, Value: bson.D{{Key: "$elemMatch", Value: RenderFilter(query.And(f.Children...))}}}}
	case query.OpContains:
		text, _ := f.Value.(string)
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(text), Options: "i"}
		alternatives := make(bson.A, 0, len(f.Fields))
		for _, field := range f.Fields {
			alternatives = append(alternatives, bson.D{{Key: field, Value: pattern}})
		}
		return bson.D{{Key: "$or", Value: alternatives}}
	}
	return bson.D{{Key: "$expr", Value: false}}
}

// RenderUpdate translates an Update into MongoDB update operators
func RenderUpdate(u storage.Update) bson.D {
	var doc bson.D
	if len(u.Set) > 0 {
		doc = append(doc, bson.E{Key: "$set", Value: sortedFields(u.Set)})
	}
	if len(u.Inc) > 0 {
		inc := make(map[string]interface{}, len(u.Inc))
		for k, v := range u.Inc {
			inc[k] = v
		}
		doc = append(doc, bson.E{Key: "$inc", Value: sortedFields(inc)})
	}
	if len(u.Push) > 0 {
		doc = append(doc, bson.E{Key: "$push", Value: sortedFields(u.Push)})
	}
	if len(u.Pull) > 0 {
		pull := make(map[string]interface{}, len(u.Pull))
		for k, f := range u.Pull {
			pull[k] = RenderFilter(f)
		}
		doc = append(doc, bson.E{Key: "$pull", Value: sortedFields(pull)})
	}
	return doc
}

// RenderSort translates sort fields into a MongoDB sort document
func RenderSort(fields []storage.SortField) bson.D {
	doc := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		doc = append(doc, bson.E{Key: f.Field, Value: dir})
	}
	return doc
}

func sortedFields(m map[string]interface{}) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}
