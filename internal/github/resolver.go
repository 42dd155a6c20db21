// Package github has the GitHub GraphQL operations used by the client, the types their results
// are decoded into, and the cache key policy for GitHub objects.
package github

import (
	"errors"
	"fmt"

	"github.com/andrewwphillips/ghgql/internal/cache"
	"github.com/vektah/gqlparser/v2/ast"
)

// RepositoryType is the __typename of repository objects - the only objects with a cache key
const RepositoryType = "Repository"

// ErrMissingRepositoryID means a Repository object in a response has no string "id" field, so it
// can't be stored under its identity.  (Every query that returns repositories must ask for the id.)
var ErrMissingRepositoryID = errors.New("repository without string id")

// KeyResolver identifies repositories by their (globally unique) node ID, so a repository is
// stored once however many queries return it.  All other objects are stored by their path.
type KeyResolver struct{}

// FromFieldRecordSet returns the id of a Repository and NoKey for any other object
func (KeyResolver) FromFieldRecordSet(field *ast.Field, record map[string]interface{}) (cache.CacheKey, error) {
	if typename, _ := record["__typename"].(string); typename != RepositoryType {
		return cache.NoKey, nil
	}
	id, ok := record["id"].(string)
	if !ok {
		name := ""
		if field != nil {
			name = field.Alias
		}
		return cache.NoKey, fmt.Errorf("%w (field %q)", ErrMissingRepositoryID, name)
	}
	return cache.From(id), nil
}

// FromFieldArguments always returns NoKey as no GitHub query field takes a node ID argument
func (KeyResolver) FromFieldArguments(*ast.Field, map[string]interface{}) (cache.CacheKey, error) {
	return cache.NoKey, nil
}
