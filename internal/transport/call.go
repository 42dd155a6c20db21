package transport

// call.go implements Call - a single HTTP request that can be executed (synchronously or not),
// cancelled and cloned.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

var (
	// ErrAlreadyExecuted is returned if Execute (or Enqueue) is called more than once for the same Call
	ErrAlreadyExecuted = errors.New("call already executed")

	// ErrCanceled is returned (possibly wrapping the transport error) when a call was cancelled
	ErrCanceled = errors.New("call canceled")
)

type (
	// Call is a request that has been prepared for execution.  A Call can only be executed once
	// but Clone returns a new (not yet executed) Call for the same request.
	Call interface {
		Request() *http.Request
		Execute() (*http.Response, error)
		Enqueue(Callback)
		Cancel()
		IsExecuted() bool
		IsCanceled() bool
		Clone() Call
		Timeout() time.Duration
	}

	// Callback receives the result of an enqueued Call.  Exactly one method is called.
	Callback interface {
		OnFailure(call Call, err error)
		OnResponse(call Call, resp *http.Response)
	}

	// CallFactory makes a Call from a request
	CallFactory interface {
		NewCall(r *http.Request) Call
	}

	// CallFactoryFunc allows a func to be used as a CallFactory
	CallFactoryFunc func(r *http.Request) Call

	// CallbackFuncs is a Callback implemented by a pair of (optional) funcs
	CallbackFuncs struct {
		Failure  func(Call, error)
		Response func(Call, *http.Response)
	}
)

// NewCall implements CallFactory
func (f CallFactoryFunc) NewCall(r *http.Request) Call { return f(r) }

// OnFailure implements Callback
func (cb CallbackFuncs) OnFailure(call Call, err error) {
	if cb.Failure != nil {
		cb.Failure(call, err)
	}
}

// OnResponse implements Callback.  If there is no Response func the body is closed.
func (cb CallbackFuncs) OnResponse(call Call, resp *http.Response) {
	if cb.Response == nil {
		_ = resp.Body.Close()
		return
	}
	cb.Response(call, resp)
}

// NewCallFactory returns a CallFactory whose calls are executed using client
func NewCallFactory(client *http.Client) CallFactory {
	if client == nil {
		client = http.DefaultClient
	}
	return CallFactoryFunc(func(r *http.Request) Call {
		return newHTTPCall(client, r)
	})
}

// httpCall is the Call implementation that sends the request using an http.Client
type httpCall struct {
	client  *http.Client
	request *http.Request

	ctx    context.Context
	cancel context.CancelFunc

	executed atomic.Bool
	canceled atomic.Bool
}

func newHTTPCall(client *http.Client, r *http.Request) *httpCall {
	ctx, cancel := context.WithCancel(r.Context())
	return &httpCall{client: client, request: r, ctx: ctx, cancel: cancel}
}

func (c *httpCall) Request() *http.Request { return c.request }

// Execute sends the request and blocks until the response headers are received (or an error).
// The caller must close the response body.
func (c *httpCall) Execute() (*http.Response, error) {
	if c.executed.Swap(true) {
		return nil, ErrAlreadyExecuted
	}
	if c.canceled.Load() {
		return nil, ErrCanceled
	}
	resp, err := c.client.Do(c.request.WithContext(c.ctx))
	if err != nil {
		if c.canceled.Load() {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		return nil, err
	}
	return resp, nil
}

// Enqueue executes the call in a new goroutine, passing the result to cb
func (c *httpCall) Enqueue(cb Callback) {
	if c.executed.Load() {
		cb.OnFailure(c, ErrAlreadyExecuted)
		return
	}
	go func() {
		resp, err := c.Execute()
		if err != nil {
			cb.OnFailure(c, err)
			return
		}
		cb.OnResponse(c, resp)
	}()
}

// Cancel stops the call - if it is in progress the transport is interrupted, if it has not started
// then it never will.  Cancelling more than once has no further effect.
func (c *httpCall) Cancel() {
	c.canceled.Store(true)
	c.cancel()
}

func (c *httpCall) IsExecuted() bool { return c.executed.Load() }
func (c *httpCall) IsCanceled() bool { return c.canceled.Load() }

// Clone returns a new call for the same request (using the same client and hence the same
// round trippers).  The clone is independent - cancelling one does not cancel the other.
func (c *httpCall) Clone() Call {
	r := c.request.Clone(c.request.Context())
	if c.request.GetBody != nil {
		// the original body may already have been read
		if body, err := c.request.GetBody(); err == nil {
			r.Body = body
		}
	}
	return newHTTPCall(c.client, r)
}

// Timeout returns the client timeout (0 means no timeout)
func (c *httpCall) Timeout() time.Duration {
	return c.client.Timeout
}
