package cache

// normalize.go converts the data of a GraphQL response into records

import (
	"fmt"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

// Normalizer turns response data into records, using Resolver to decide the key of each object
type Normalizer struct {
	Resolver      KeyResolver         // if nil all objects are stored by path
	PossibleTypes map[string][]string // concrete types of interfaces/unions used in fragment conditions
}

type writer struct {
	selector
	resolver KeyResolver
	records  map[string]Record
}

// RootKey returns the key of the root record for the operation type
func RootKey(operation ast.Operation) string {
	switch operation {
	case ast.Mutation:
		return MutationRoot
	case ast.Subscription:
		return "SUBSCRIPTION_ROOT"
	default:
		return QueryRoot
	}
}

// Normalize returns the records (by key) for the data returned for op.  Each object in data
// becomes a record, keyed by the resolver or (if the resolver returns NoKey) its path from the
// root, eg "QUERY_ROOT.viewer".  Values that are objects are replaced by a Reference to the record.
// Any error from the resolver is returned (the data should then not be written to the cache).
func (n *Normalizer) Normalize(doc *ast.QueryDocument, op *ast.OperationDefinition,
	variables map[string]interface{}, data map[string]interface{},
) (map[string]Record, error) {
	w := writer{
		selector: selector{doc: doc, variables: variables, possibleTypes: n.PossibleTypes},
		resolver: n.Resolver,
		records:  make(map[string]Record),
	}
	if w.resolver == nil {
		w.resolver = NoKeyResolver{}
	}
	if err := w.writeObject(RootKey(op.Operation), op.SelectionSet, data); err != nil {
		return nil, err
	}
	return w.records, nil
}

// Records returns the records of the map as a slice (in no particular order)
func Records(m map[string]Record) []Record {
	r := make([]Record, 0, len(m))
	for _, rec := range m {
		r = append(r, rec)
	}
	return r
}

func (w *writer) writeObject(key string, set ast.SelectionSet, obj map[string]interface{}) error {
	rec, ok := w.records[key]
	if !ok {
		rec = NewRecord(key)
		w.records[key] = rec
	}
	typename, _ := obj["__typename"].(string)
	fields, err := w.collectFields(set, typename)
	if err != nil {
		return err
	}
	for _, field := range fields {
		v, ok := obj[field.Alias]
		if !ok {
			continue // not in the response (eg conditional fragment)
		}
		fieldKey, err := FieldKey(field, w.variables)
		if err != nil {
			return err
		}
		value, err := w.writeValue(key+"."+fieldKey, field, v)
		if err != nil {
			return err
		}
		rec.Fields[fieldKey] = value
	}
	return nil
}

func (w *writer) writeValue(path string, field *ast.Field, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(field.SelectionSet) == 0 {
			return cloneValue(val), nil // custom scalar encoded as an object
		}
		ck, err := w.resolver.FromFieldRecordSet(field, val)
		if err != nil {
			return nil, fmt.Errorf("cache key of %s: %w", path, err)
		}
		key := path
		if !ck.IsNone() {
			key = ck.Key()
		}
		if err := w.writeObject(key, field.SelectionSet, val); err != nil {
			return nil, err
		}
		return Reference(key), nil

	case []interface{}:
		list := make([]interface{}, len(val))
		for i, elem := range val {
			var err error
			if list[i], err = w.writeValue(path+"."+strconv.Itoa(i), field, elem); err != nil {
				return nil, err
			}
		}
		return list, nil

	default:
		return v, nil
	}
}
