// Package cache implements a normalized GraphQL response cache.  Each object in a response is
// stored as a separate Record (a flat map of field values), with nested objects replaced by a
// Reference to their own record.  An object with a stable identity (see KeyResolver) is stored
// once however many queries return it, so an update from one query is seen by all of them.
package cache

// record.go has the Record type and its (JSON) encoding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

const (
	// QueryRoot is the key of the record holding the root fields of queries
	QueryRoot = "QUERY_ROOT"

	// MutationRoot is the key of the record holding the root fields of mutations
	MutationRoot = "MUTATION_ROOT"

	refField = "__ref" // name of the single field in the JSON encoding of a Reference
)

type (
	// Record is one normalized object.  Field values are:
	//   nil, bool, string, json.Number (numbers are never converted to float64)
	//   Reference - link to another record
	//   []interface{} - list of any of these values
	//   map[string]interface{} - a JSON object returned for a field with no selection set (custom scalar)
	Record struct {
		Key    string
		Fields map[string]interface{}
	}

	// Reference is a field value that refers to another record (by key)
	Reference string
)

// NewRecord returns an empty record with the given key
func NewRecord(key string) Record {
	return Record{Key: key, Fields: make(map[string]interface{})}
}

// MarshalJSON encodes a reference as {"__ref": key}
func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{refField: string(r)})
}

// Typename returns the __typename field of the record (or an empty string)
func (r Record) Typename() string {
	s, _ := r.Fields["__typename"].(string)
	return s
}

// Clone makes a copy that shares no maps or slices with r
func (r Record) Clone() Record {
	return Record{Key: r.Key, Fields: cloneValue(r.Fields).(map[string]interface{})}
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, e := range val {
			m[k] = cloneValue(e)
		}
		return m
	case []interface{}:
		list := make([]interface{}, len(val))
		for i, e := range val {
			list[i] = cloneValue(e)
		}
		return list
	default:
		return v
	}
}

// Merge adds the fields of newer to r (replacing existing values).  It returns the result and
// whether anything was changed.  Neither r nor newer is modified.
func Merge(r, newer Record) (Record, bool) {
	if r.Fields == nil {
		return newer.Clone(), true
	}
	merged := r.Clone()
	changed := false
	for k, v := range newer.Fields {
		if old, ok := merged.Fields[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		merged.Fields[k] = cloneValue(v)
		changed = true
	}
	return merged, changed
}

// FieldNames returns the (sorted) names of the fields of the record
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Encode returns the JSON encoding of the record's fields (the key is stored separately)
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r.Fields)
}

// Decode returns the record decoded from the JSON produced by Encode
func Decode(key string, data []byte) (Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber() // keep numbers exactly as they were received
	var fields map[string]interface{}
	if err := decoder.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("decoding record %q: %w", key, err)
	}
	if fields == nil {
		fields = make(map[string]interface{})
	}
	for k, v := range fields {
		fields[k] = decodeReferences(v)
	}
	return Record{Key: key, Fields: fields}, nil
}

// decodeReferences replaces {"__ref": key} objects (recursively in lists) with a Reference
func decodeReferences(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 1 {
			if s, ok := val[refField].(string); ok {
				return Reference(s)
			}
		}
	case []interface{}:
		for i, e := range val {
			val[i] = decodeReferences(e)
		}
	}
	return v
}
