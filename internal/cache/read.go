package cache

// read.go rebuilds the data of a GraphQL response from records

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dolmen-go/jsonmap"
	"github.com/vektah/gqlparser/v2/ast"
)

// ErrCacheMiss is returned when the cache does not have all the records/fields needed for a response
var ErrCacheMiss = errors.New("cache miss")

// Reader rebuilds responses from records in a Store
type Reader struct {
	Resolver      KeyResolver
	PossibleTypes map[string][]string
}

type reader struct {
	selector
	resolver KeyResolver
	store    Store
	keys     map[string]struct{} // keys of all records used
}

// Read returns the data for op read from store, with fields in the order of the query.  It also
// returns the keys of the records that were used - if any of these change then a new Read may give
// a different result.  If anything needed is not in the store the error wraps ErrCacheMiss.
func (r *Reader) Read(ctx context.Context, store Store, doc *ast.QueryDocument, op *ast.OperationDefinition,
	variables map[string]interface{},
) (jsonmap.Ordered, []string, error) {
	rd := reader{
		selector: selector{doc: doc, variables: variables, possibleTypes: r.PossibleTypes},
		resolver: r.Resolver,
		store:    store,
		keys:     make(map[string]struct{}),
	}
	if rd.resolver == nil {
		rd.resolver = NoKeyResolver{}
	}

	root, err := rd.load(ctx, RootKey(op.Operation))
	if err != nil {
		return jsonmap.Ordered{}, nil, err
	}
	data, err := rd.readObject(ctx, root, op.SelectionSet)
	if err != nil {
		return jsonmap.Ordered{}, nil, err
	}

	keys := make([]string, 0, len(rd.keys))
	for k := range rd.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return data, keys, nil
}

func (rd *reader) load(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, ok, err := rd.store.Load(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, fmt.Errorf("%w: no record %q", ErrCacheMiss, key)
	}
	rd.keys[key] = struct{}{}
	return rec, nil
}

func (rd *reader) readObject(ctx context.Context, rec Record, set ast.SelectionSet) (jsonmap.Ordered, error) {
	fields, err := rd.collectFields(set, rec.Typename())
	if err != nil {
		return jsonmap.Ordered{}, err
	}
	fields = mergeFields(fields)

	r := jsonmap.Ordered{
		Data:  make(map[string]interface{}, len(fields)),
		Order: make([]string, 0, len(fields)),
	}
	for _, field := range fields {
		v, err := rd.readField(ctx, rec, field)
		if err != nil {
			return jsonmap.Ordered{}, err
		}
		r.Order = append(r.Order, field.Alias)
		r.Data[field.Alias] = v
	}
	return r, nil
}

func (rd *reader) readField(ctx context.Context, rec Record, field *ast.Field) (interface{}, error) {
	if len(field.SelectionSet) > 0 {
		// The resolver may know the key of the object from the arguments (without using the parent record)
		ck, err := rd.resolver.FromFieldArguments(field, rd.variables)
		if err != nil {
			return nil, err
		}
		if !ck.IsNone() {
			child, err := rd.load(ctx, ck.Key())
			if err != nil {
				return nil, err
			}
			return rd.readObject(ctx, child, field.SelectionSet)
		}
	}

	fieldKey, err := FieldKey(field, rd.variables)
	if err != nil {
		return nil, err
	}
	v, ok := rec.Fields[fieldKey]
	if !ok {
		return nil, fmt.Errorf("%w: no field %q in record %q", ErrCacheMiss, fieldKey, rec.Key)
	}
	return rd.readValue(ctx, field, v)
}

func (rd *reader) readValue(ctx context.Context, field *ast.Field, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case Reference:
		child, err := rd.load(ctx, string(val))
		if err != nil {
			return nil, err
		}
		return rd.readObject(ctx, child, field.SelectionSet)

	case []interface{}:
		list := make([]interface{}, len(val))
		for i, elem := range val {
			var err error
			if list[i], err = rd.readValue(ctx, field, elem); err != nil {
				return nil, err
			}
		}
		return list, nil

	default:
		return cloneValue(v), nil
	}
}

// mergeFields combines fields with the same response name (alias) - eg from the selection set and a
// fragment - into one field whose selection set has the sub-selections of all of them.
func mergeFields(fields []*ast.Field) []*ast.Field {
	r := make([]*ast.Field, 0, len(fields))
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		i, ok := index[f.Alias]
		if !ok {
			index[f.Alias] = len(r)
			r = append(r, f)
			continue
		}
		if len(f.SelectionSet) > 0 {
			merged := *r[i] // copy so we don't modify the query document
			merged.SelectionSet = append(append(ast.SelectionSet{}, r[i].SelectionSet...), f.SelectionSet...)
			r[i] = &merged
		}
	}
	return r
}
