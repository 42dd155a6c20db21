package cache

// key.go handles the identity (cache key) of records and fields

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

type (
	// CacheKey is the identity of an object.  The zero value (NoKey) means the object has no
	// identity of its own and is stored under its path in the response.
	CacheKey struct {
		key string
		set bool
	}

	// KeyResolver decides the cache key of objects in responses.  Implementations must be
	// deterministic (the key is used for storage) and safe for concurrent use.
	KeyResolver interface {
		// FromFieldRecordSet returns the key for the object (record) returned for a field.  An error
		// means the response does not satisfy the resolver's assumptions about the schema.
		FromFieldRecordSet(field *ast.Field, record map[string]interface{}) (CacheKey, error)

		// FromFieldArguments returns the key of the object a field will return, determined only
		// from its arguments - this allows a cache lookup of an object before it has been
		// returned in the response to the field.
		FromFieldArguments(field *ast.Field, variables map[string]interface{}) (CacheKey, error)
	}

	// NoKeyResolver is a KeyResolver that never returns a key - every record is stored by path
	NoKeyResolver struct{}
)

// NoKey is the CacheKey meaning the object is stored by its path rather than a key
var NoKey = CacheKey{}

// From returns the CacheKey with the given key (any string, including an empty one)
func From(key string) CacheKey {
	return CacheKey{key: key, set: true}
}

// IsNone returns true if k is NoKey
func (k CacheKey) IsNone() bool { return !k.set }

// Key returns the key string (empty for NoKey)
func (k CacheKey) Key() string { return k.key }

func (k CacheKey) String() string {
	if k.IsNone() {
		return "NO_KEY"
	}
	return k.key
}

// FromFieldRecordSet implements KeyResolver
func (NoKeyResolver) FromFieldRecordSet(*ast.Field, map[string]interface{}) (CacheKey, error) {
	return NoKey, nil
}

// FromFieldArguments implements KeyResolver
func (NoKeyResolver) FromFieldArguments(*ast.Field, map[string]interface{}) (CacheKey, error) {
	return NoKey, nil
}

// FieldKey returns the name used to store a field in a record: the field name if it has no
// arguments, otherwise the name followed by the JSON of the argument values, eg:
//
//	repository({"name":"eggql"})
//
// The alias (if any) is not used as the same field may be queried with different aliases.
// Argument values are resolved using the variables and object keys are sorted (by encoding/json)
// so the result is deterministic.
func FieldKey(field *ast.Field, variables map[string]interface{}) (string, error) {
	if len(field.Arguments) == 0 {
		return field.Name, nil
	}
	args := make(map[string]interface{}, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := arg.Value.Value(variables)
		if err != nil {
			return "", fmt.Errorf("argument %q of field %q: %w", arg.Name, field.Name, err)
		}
		args[arg.Name] = v
	}
	buf, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding arguments of field %q: %w", field.Name, err)
	}
	var sb strings.Builder
	sb.Grow(len(field.Name) + len(buf) + 2)
	sb.WriteString(field.Name)
	sb.WriteByte('(')
	sb.Write(buf)
	sb.WriteByte(')')
	return sb.String(), nil
}
