package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewwphillips/ghgql/internal/transport"
)

// newFactory returns a decorated call factory that sends requests via the auth transport
func newFactory(timeout time.Duration) transport.CallFactory {
	client := &http.Client{
		Transport: transport.NewAuthTransport(nil, "tok"),
		Timeout:   timeout,
	}
	return transport.Decorate(transport.NewCallFactory(client))
}

func TestDecoratedCall(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Auth", r.Header.Get("Authorization"))
		_, _ = w.Write(b)
	}))
	defer server.Close()

	r, err := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader([]byte("ping")))
	require.NoError(t, err)

	call := newFactory(5 * time.Second).NewCall(r)
	_, ok := call.(*transport.DecoratedCall)
	require.True(t, ok, "expected a DecoratedCall, got %T", call)
	assert.Same(t, r, call.Request())
	assert.Equal(t, 5*time.Second, call.Timeout())
	assert.False(t, call.IsExecuted())

	resp, err := call.Execute()
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ping", string(body))
	assert.Equal(t, "bearer tok", resp.Header.Get("X-Auth"))
	assert.True(t, call.IsExecuted())

	// A call can only be executed once
	_, err = call.Execute()
	assert.ErrorIs(t, err, transport.ErrAlreadyExecuted)

	// ... but a clone can be executed (with the same body and header)
	clone := call.Clone()
	assert.IsType(t, &transport.DecoratedCall{}, clone)
	assert.False(t, clone.IsExecuted())
	resp, err = clone.Execute()
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ping", string(body))
	assert.Equal(t, "bearer tok", resp.Header.Get("X-Auth"))
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestCallCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	factory := newFactory(0)

	t.Run("before", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		call := factory.NewCall(r)
		call.Cancel()
		assert.True(t, call.IsCanceled())
		_, err := call.Execute()
		assert.ErrorIs(t, err, transport.ErrCanceled)
	})

	t.Run("during", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		call := factory.NewCall(r)
		failed := make(chan error, 1)
		call.Enqueue(transport.CallbackFuncs{
			Failure:  func(_ transport.Call, err error) { failed <- err },
			Response: func(_ transport.Call, resp *http.Response) { _ = resp.Body.Close(); failed <- nil },
		})
		time.Sleep(20 * time.Millisecond) // let the request reach the server
		call.Cancel()

		select {
		case err := <-failed:
			assert.ErrorIs(t, err, transport.ErrCanceled)
			assert.True(t, errors.Is(err, transport.ErrCanceled))
		case <-time.After(5 * time.Second):
			t.Fatal("cancelled call did not complete")
		}
	})

	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		r, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		call := factory.NewCall(r)
		cancel()
		_, err := call.Execute()
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, call.IsCanceled(), "only Cancel marks a call cancelled")
	})
}

func TestEnqueueTwice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	r, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	call := newFactory(0).NewCall(r)
	resp, err := call.Execute()
	require.NoError(t, err)
	_ = resp.Body.Close()

	var got error
	call.Enqueue(transport.CallbackFuncs{Failure: func(_ transport.Call, err error) { got = err }})
	assert.ErrorIs(t, got, transport.ErrAlreadyExecuted)
}
