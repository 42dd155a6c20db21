package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/andrewwphillips/ghgql/internal/transport"
)

func TestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	// Allows one request then no more (for an hour)
	client := &http.Client{Transport: transport.RateLimit(nil, rate.NewLimiter(rate.Every(time.Hour), 1))}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	_, err = client.Do(r)
	assert.Error(t, err, "second request should be refused by the limiter")
}

func TestRateLimitNil(t *testing.T) {
	base := http.DefaultTransport
	assert.Equal(t, base, transport.RateLimit(base, nil))
}

func TestLoggingNeverLogsToken(t *testing.T) {
	const token = "very-secret-token"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := &http.Client{
		Transport: transport.Logging(transport.NewAuthTransport(nil, token), zap.New(core)),
	}
	resp, err := client.Get(server.URL + "/graphql")
	require.NoError(t, err)
	_ = resp.Body.Close()

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.Equal(t, "/graphql", fields["path"])
	for k, v := range fields {
		assert.NotContains(t, k, "uthorization")
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, token)
		}
	}
}
