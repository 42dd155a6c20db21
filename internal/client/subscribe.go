package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andrewwphillips/ghgql/internal/transport"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"
)

// ErrNoSubscriptions is returned by Subscribe if no subscription endpoint was configured
var ErrNoSubscriptions = errors.New("subscriptions not configured")

// Subscribe starts a subscription, returning a channel that receives a Result for each event.
// The data of each event is also written to the cache.  The channel is closed when the server
// ends the subscription, an error occurs (sent as the last Result) or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, op Operation) (<-chan Result, error) {
	if c.subscriptionURL == "" {
		return nil, ErrNoSubscriptions
	}
	doc, def, err := c.parse(op)
	if err != nil {
		return nil, err
	}
	variables := op.Variables()
	messages, err := transport.Subscribe(ctx, c.dialer, c.subscriptionURL, c.wsHeader, transport.SubscribeRequest{
		Query:         op.Document(),
		OperationName: op.Name(),
		Variables:     variables,
	}, c.log)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %q: %w", op.Name(), err)
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		for m := range messages {
			result := Result{Err: m.Err}
			if m.Err == nil {
				result.Response, result.Err = c.event(ctx, doc, def, variables, m.Payload)
			}
			select {
			case out <- result:
			case <-ctx.Done():
				c.log.Debug("subscription result dropped", zap.String("operation", op.Name()))
			}
		}
	}()
	return out, nil
}

// event handles the payload of one subscription message (same format as a query response)
func (c *Client) event(ctx context.Context, doc *ast.QueryDocument, def *ast.OperationDefinition,
	variables map[string]interface{}, payload json.RawMessage,
) (*Response, error) {
	var sr serverResponse
	if err := json.Unmarshal(payload, &sr); err != nil {
		return nil, fmt.Errorf("%w decoding subscription event of %q", err, def.Name)
	}
	r := &Response{Data: sr.Data, Errors: sr.Errors}
	if len(r.Data) == 0 {
		r.Data = json.RawMessage("null")
	}
	var err error
	if r.DependentKeys, err = c.write(ctx, doc, def, variables, r.Data); err != nil {
		return nil, err
	}
	return r, nil
}
