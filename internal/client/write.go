package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/andrewwphillips/ghgql/internal/cache"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"
)

// write normalizes the data of a result into the cache, returning the keys of the records written
func (c *Client) write(ctx context.Context, doc *ast.QueryDocument, def *ast.OperationDefinition,
	variables map[string]interface{}, data json.RawMessage,
) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var m map[string]interface{}
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w decoding result data of %q", err, def.Name)
	}

	records, err := c.normalizer.Normalize(doc, def, variables, m)
	if err != nil {
		return nil, fmt.Errorf("caching result of %q: %w", def.Name, err)
	}
	changed, err := c.store.Merge(ctx, cache.Records(records)...)
	if err != nil {
		return nil, fmt.Errorf("caching result of %q: %w", def.Name, err)
	}
	if len(changed) > 0 {
		c.log.Debug("cache updated", zap.Strings("keys", changed))
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
