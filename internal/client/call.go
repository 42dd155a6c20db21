package client

// call.go executes operations against the cache and the server according to the fetch policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/andrewwphillips/ghgql/internal/cache"
	"github.com/andrewwphillips/ghgql/internal/transport"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

// maxResponseSize limits how much of a response body is read
const maxResponseSize = 32 << 20

// ErrCacheMiss is returned for CacheOnly calls when the result is not (completely) cached
var ErrCacheMiss = cache.ErrCacheMiss

type (
	// Call is an operation prepared for execution with a fetch policy.  A Call may be executed
	// more than once (eg to refresh) until it is cancelled.
	Call struct {
		client *Client
		op     Operation
		policy FetchPolicy

		canceled atomic.Bool
		mu       sync.Mutex
		inFlight map[transport.Call]struct{}
		cancels  map[*context.CancelFunc]struct{}
	}

	// Callback receives the results of an enqueued Call
	Callback interface {
		OnResponse(*Response)
		OnFailure(error)
	}

	// CallbackFuncs is a Callback made from a pair of funcs (either may be nil)
	CallbackFuncs struct {
		Response func(*Response)
		Failure  func(error)
	}

	request struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName,omitempty"`
		Variables     map[string]interface{} `json:"variables,omitempty"`
	}

	serverResponse struct {
		Data   json.RawMessage `json:"data"`
		Errors gqlerror.List   `json:"errors"`
	}
)

func (cb CallbackFuncs) OnResponse(r *Response) {
	if cb.Response != nil {
		cb.Response(r)
	}
}

func (cb CallbackFuncs) OnFailure(err error) {
	if cb.Failure != nil {
		cb.Failure(err)
	}
}

// Operation returns the operation of the call
func (c *Call) Operation() Operation { return c.op }

// Policy returns the fetch policy of the call
func (c *Call) Policy() FetchPolicy { return c.policy }

// Clone returns a new (not cancelled) call for the same operation and policy
func (c *Call) Clone() *Call {
	return &Call{client: c.client, op: c.op, policy: c.policy}
}

// Cancel stops any requests in progress and makes later Execute calls fail with ErrCanceled
func (c *Call) Cancel() {
	c.canceled.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	for call := range c.inFlight {
		call.Cancel()
	}
	for cancel := range c.cancels {
		(*cancel)()
	}
}

func (c *Call) IsCanceled() bool { return c.canceled.Load() }

// Execute returns the result of the call.  For CacheAndNetwork the result from the server is
// returned (use Stream to also get the cached result).
func (c *Call) Execute(ctx context.Context) (*Response, error) {
	ctx, done := c.track(ctx)
	defer done()
	if c.IsCanceled() {
		return nil, transport.ErrCanceled
	}

	switch c.policy {
	case CacheOnly:
		return c.fromCache(ctx)

	case CacheFirst:
		r, err := c.fromCache(ctx)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.client.log.Warn("cache read failed", zap.String("operation", c.op.Name()), zap.Error(err))
		}
		return c.fromNetwork(ctx)

	case NetworkFirst:
		r, err := c.fromNetwork(ctx)
		if err == nil || c.IsCanceled() {
			return r, err
		}
		if cached, cacheErr := c.fromCache(ctx); cacheErr == nil {
			c.client.log.Info("using cached result after network failure",
				zap.String("operation", c.op.Name()), zap.Error(err))
			return cached, nil
		}
		return nil, err

	case NetworkOnly, CacheAndNetwork:
		return c.fromNetwork(ctx)
	}
	panic(fmt.Sprintf("BUG unknown fetch policy %d", c.policy))
}

// Stream executes the call in a new goroutine and sends the results on the returned channel,
// which is closed when there are no more.  For CacheAndNetwork the cached result (if any) is
// sent before the result from the server, otherwise there is one result.
func (c *Call) Stream(ctx context.Context) <-chan Result {
	out := make(chan Result, 2)
	go func() {
		defer close(out)
		if c.policy != CacheAndNetwork {
			r, err := c.Execute(ctx)
			out <- Result{Response: r, Err: err}
			return
		}

		ctx, done := c.track(ctx)
		defer done()
		if c.IsCanceled() {
			out <- Result{Err: transport.ErrCanceled}
			return
		}
		if r, err := c.fromCache(ctx); err == nil {
			out <- Result{Response: r}
		}
		r, err := c.fromNetwork(ctx)
		out <- Result{Response: r, Err: err}
	}()
	return out
}

// Enqueue executes the call in the background passing each result to cb
func (c *Call) Enqueue(ctx context.Context, cb Callback) {
	results := c.Stream(ctx)
	go func() {
		for result := range results {
			if result.Err != nil {
				cb.OnFailure(result.Err)
			} else {
				cb.OnResponse(result.Response)
			}
		}
	}()
}

// track returns a context that is cancelled by Cancel, and a func to call when finished with it
func (c *Call) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancels == nil {
		c.cancels = make(map[*context.CancelFunc]struct{})
	}
	c.cancels[&cancel] = struct{}{}
	c.mu.Unlock()
	return ctx, func() {
		c.mu.Lock()
		delete(c.cancels, &cancel)
		c.mu.Unlock()
		cancel()
	}
}

// fromCache reads the result of the operation from the cache
func (c *Call) fromCache(ctx context.Context) (*Response, error) {
	doc, def, err := c.client.parse(c.op)
	if err != nil {
		return nil, err
	}
	data, keys, err := c.client.reader.Read(ctx, c.client.store, doc, def, c.op.Variables())
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		c.client.metrics.cacheReads.WithLabelValues("miss").Inc()
		return nil, err
	case err != nil:
		c.client.metrics.cacheReads.WithLabelValues("error").Inc()
		return nil, err
	}
	c.client.metrics.cacheReads.WithLabelValues("hit").Inc()

	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w encoding cached result of %q", err, c.op.Name())
	}
	return &Response{Data: buf, FromCache: true, DependentKeys: keys}, nil
}

// fromNetwork sends the operation to the server and writes the result to the cache
func (c *Call) fromNetwork(ctx context.Context) (*Response, error) {
	outcome := "error"
	defer func() { c.client.metrics.networkRequests.WithLabelValues(outcome).Inc() }()

	doc, def, err := c.client.parse(c.op)
	if err != nil {
		return nil, err
	}
	variables := c.op.Variables()
	body, err := json.Marshal(request{Query: c.op.Document(), OperationName: c.op.Name(), Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("%w encoding request for %q", err, c.op.Name())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.client.serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w creating request for %q", err, c.op.Name())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	call := c.client.factory.NewCall(req)
	c.mu.Lock()
	if c.inFlight == nil {
		c.inFlight = make(map[transport.Call]struct{})
	}
	c.inFlight[call] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, call)
		c.mu.Unlock()
	}()
	if c.IsCanceled() {
		call.Cancel()
	}

	resp, err := call.Execute()
	if err != nil {
		if c.IsCanceled() || errors.Is(err, transport.ErrCanceled) {
			outcome = "canceled"
			if !errors.Is(err, transport.ErrCanceled) {
				err = fmt.Errorf("%w: %v", transport.ErrCanceled, err)
			}
		}
		return nil, fmt.Errorf("sending %q: %w", c.op.Name(), err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response to %q: %w", c.op.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "http_error"
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(buf))}
	}

	var sr serverResponse
	if err := json.Unmarshal(buf, &sr); err != nil {
		return nil, fmt.Errorf("%w decoding response to %q", err, c.op.Name())
	}
	r := &Response{Data: sr.Data, Errors: sr.Errors}
	if len(r.Data) == 0 {
		r.Data = json.RawMessage("null")
	}
	if r.DependentKeys, err = c.client.write(ctx, doc, def, variables, r.Data); err != nil {
		return nil, err
	}
	outcome = "ok"
	if len(r.Errors) > 0 {
		outcome = "graphql_error"
	}
	c.client.log.Debug("operation complete", zap.String("operation", c.op.Name()),
		zap.Int("errors", len(r.Errors)), zap.Int("records", len(r.DependentKeys)))
	return r, nil
}
