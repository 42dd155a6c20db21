package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/github"
	"github.com/andrewwphillips/ghgql/internal/mockgithub"
	"github.com/andrewwphillips/ghgql/internal/transport"
	"github.com/posener/wstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "ghp_s3cr3t"

// newClient returns a client of a mock GitHub server (which is closed at the end of the test)
func newClient(t *testing.T, h http.Handler, options ...client.Option) *client.Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	httpClient := &http.Client{Transport: transport.NewAuthTransport(http.DefaultTransport, token)}
	options = append([]client.Option{
		client.WithKeyResolver(github.KeyResolver{}),
		client.WithPossibleTypes(github.PossibleTypes),
	}, options...)
	c := client.New(server.URL+"/graphql", transport.Decorate(transport.NewCallFactory(httpClient)), options...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheFirst(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken(token))
	reg := prometheus.NewRegistry()
	c := newClient(t, mock, client.WithRegisterer(reg))

	r, err := c.Query(github.RepositoriesQuery{}).Execute(ctx)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	require.NoError(t, r.Err())
	fromNetwork, err := github.DecodeRepositories(r.Data)
	require.NoError(t, err)
	require.Len(t, fromNetwork, 3)

	r, err = c.Query(github.RepositoriesQuery{}).Execute(ctx)
	require.NoError(t, err)
	assert.True(t, r.FromCache)
	fromCache, err := github.DecodeRepositories(r.Data)
	require.NoError(t, err)
	assert.Equal(t, fromNetwork, fromCache)
	assert.Contains(t, r.DependentKeys, "MDEwOlJlcG9zaXRvcnky")
	assert.EqualValues(t, 1, mock.Requests(), "second query answered from the cache")

	// Different variables are a different field in the cache
	_, err = c.Query(github.RepositoriesQuery{Count: 1}).Execute(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, mock.Requests())

	expected := `
# HELP ghgql_cache_reads_total Number of attempts to read an operation's result from the normalized cache.
# TYPE ghgql_cache_reads_total counter
ghgql_cache_reads_total{result="hit"} 1
ghgql_cache_reads_total{result="miss"} 2
# HELP ghgql_network_requests_total Number of GraphQL requests sent to the server.
# TYPE ghgql_network_requests_total counter
ghgql_network_requests_total{outcome="ok"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"ghgql_cache_reads_total", "ghgql_network_requests_total"))
}

// counter returns the value of the counter with the name gathered from reg
func counter(t *testing.T, reg prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("no metric %s", name)
	return 0
}

func TestMemoryMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := newClient(t, mockgithub.New(mockgithub.WithToken(token)), client.WithRegisterer(reg))
	assert.Zero(t, counter(t, reg, "ghgql_memory_cache_hits_total"), "store not opened yet")
	assert.Zero(t, counter(t, reg, "ghgql_memory_cache_misses_total"))

	_, err := c.Query(github.RepositoriesQuery{}).Execute(ctx)
	require.NoError(t, err)
	assert.Positive(t, counter(t, reg, "ghgql_memory_cache_misses_total"), "first read misses")

	r, err := c.Query(github.RepositoriesQuery{}).Execute(ctx)
	require.NoError(t, err)
	require.True(t, r.FromCache)
	assert.Positive(t, counter(t, reg, "ghgql_memory_cache_hits_total"), "records read from memory")
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken(token))
	c := newClient(t, mock)
	op := github.RepositoryDetailQuery{Name: "eggql"}

	_, err := c.Query(op, client.CacheOnly).Execute(ctx)
	assert.ErrorIs(t, err, client.ErrCacheMiss)
	assert.EqualValues(t, 0, mock.Requests())

	r, err := c.Query(op, client.NetworkOnly).Execute(ctx)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	r, err = c.Query(op, client.NetworkOnly).Execute(ctx)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.EqualValues(t, 2, mock.Requests())

	r, err = c.Query(op, client.CacheOnly).Execute(ctx)
	require.NoError(t, err)
	assert.True(t, r.FromCache)
	detail, err := github.DecodeRepositoryDetail(r.Data)
	require.NoError(t, err)
	assert.Equal(t, 42, detail.StargazerCount)
	assert.Equal(t, 1, detail.PullRequests.TotalCount)

	// Execute of CacheAndNetwork returns the network result
	r, err = c.Query(op, client.CacheAndNetwork).Execute(ctx)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.EqualValues(t, 3, mock.Requests())
}

func TestStream(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken(token))
	c := newClient(t, mock)
	op := github.RepositoryCommitsQuery{Name: "apollo-android"}

	// Nothing cached: just the network result
	var results []client.Result
	for result := range c.Query(op, client.CacheAndNetwork).Stream(ctx) {
		results = append(results, result)
	}
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.False(t, results[0].Response.FromCache)

	results = results[:0]
	for result := range c.Query(op, client.CacheAndNetwork).Stream(ctx) {
		results = append(results, result)
	}
	require.Len(t, results, 2)
	assert.True(t, results[0].Response.FromCache)
	assert.False(t, results[1].Response.FromCache)
	cached, err := github.DecodeCommits(results[0].Response.Data)
	require.NoError(t, err)
	fetched, err := github.DecodeCommits(results[1].Response.Data)
	require.NoError(t, err)
	assert.Equal(t, fetched, cached)
	assert.Len(t, cached, 2)

	// Other policies stream one result
	results = results[:0]
	for result := range c.Query(op).Stream(ctx) {
		results = append(results, result)
	}
	require.Len(t, results, 1)
	assert.True(t, results[0].Response.FromCache)
}

// TestNormalizedUpdate checks that a mutation result updates a repository cached by another query
func TestNormalizedUpdate(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken(token))
	c := newClient(t, mock)
	detailQuery := github.RepositoryDetailQuery{Name: "eggql"}

	_, err := c.Query(detailQuery).Execute(ctx)
	require.NoError(t, err)

	r, err := c.Mutate(github.AddStarMutation{RepositoryID: "MDEwOlJlcG9zaXRvcnky"}).Execute(ctx)
	require.NoError(t, err)
	starred, err := github.DecodeStarred(r.Data)
	require.NoError(t, err)
	assert.Equal(t, 43, starred.StargazerCount)
	assert.Contains(t, r.DependentKeys, "MDEwOlJlcG9zaXRvcnky")

	r, err = c.Query(detailQuery, client.CacheOnly).Execute(ctx)
	require.NoError(t, err)
	detail, err := github.DecodeRepositoryDetail(r.Data)
	require.NoError(t, err)
	assert.Equal(t, 43, detail.StargazerCount)
	assert.True(t, detail.ViewerHasStarred)

	// Removing the repository record means the query can't be answered from the cache
	removed, err := c.Remove(ctx, "MDEwOlJlcG9zaXRvcnky")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = c.Query(detailQuery, client.CacheOnly).Execute(ctx)
	assert.ErrorIs(t, err, client.ErrCacheMiss)

	require.NoError(t, c.ClearCache(ctx))
	_, err = c.Query(github.RepositoriesQuery{}, client.CacheOnly).Execute(ctx)
	assert.ErrorIs(t, err, client.ErrCacheMiss)
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken("a different token"))
	c := newClient(t, mock)

	_, err := c.Query(github.RepositoriesQuery{}).Execute(ctx)
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "Bad credentials")

	// GraphQL errors are returned in the response
	c = newClient(t, mockgithub.New(mockgithub.WithToken(token)))
	r, err := c.Query(github.RepositoryDetailQuery{Name: "missing"}).Execute(ctx)
	require.NoError(t, err)
	require.Error(t, r.Err())
	assert.Contains(t, r.Err().Error(), "Could not resolve to a Repository")
	_, err = github.DecodeRepositoryDetail(r.Data)
	assert.ErrorIs(t, err, github.ErrRepositoryNotFound)

	// A repository without an id can't be cached
	_, err = c.Query(noIDQuery{}).Execute(ctx)
	assert.ErrorIs(t, err, github.ErrMissingRepositoryID)
}

type noIDQuery struct{}

func (noIDQuery) Name() string { return "NoID" }
func (noIDQuery) Document() string {
	return `query NoID { viewer { repository(name: "eggql") { __typename name } } }`
}
func (noIDQuery) Variables() map[string]interface{} { return nil }

func TestNetworkFirst(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken(token))
	var failing atomic.Bool
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		mock.ServeHTTP(w, r)
	}))
	op := github.RepositoriesQuery{}

	failing.Store(true)
	_, err := c.Query(op, client.NetworkFirst).Execute(ctx)
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr, "nothing cached")
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)

	failing.Store(false)
	r, err := c.Query(op, client.NetworkFirst).Execute(ctx)
	require.NoError(t, err)
	assert.False(t, r.FromCache)

	failing.Store(true)
	r, err = c.Query(op, client.NetworkFirst).Execute(ctx)
	require.NoError(t, err)
	assert.True(t, r.FromCache, "cached result used after network failure")
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 1)
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))

	call := c.Query(github.RepositoriesQuery{}, client.NetworkOnly)
	go func() {
		<-started
		call.Cancel()
	}()
	_, err := call.Execute(ctx)
	assert.ErrorIs(t, err, transport.ErrCanceled)
	assert.True(t, call.IsCanceled())

	_, err = call.Execute(ctx)
	assert.ErrorIs(t, err, transport.ErrCanceled, "execute after cancel")

	clone := call.Clone()
	assert.False(t, clone.IsCanceled())
	assert.Equal(t, call.Policy(), clone.Policy())
}

func TestEnqueue(t *testing.T) {
	mock := mockgithub.New(mockgithub.WithToken(token))
	c := newClient(t, mock)

	responses := make(chan *client.Response, 2)
	failures := make(chan error, 2)
	cb := client.CallbackFuncs{
		Response: func(r *client.Response) { responses <- r },
		Failure:  func(err error) { failures <- err },
	}
	c.Query(github.RepositoriesQuery{}).Enqueue(context.Background(), cb)
	select {
	case r := <-responses:
		assert.False(t, r.FromCache)
	case err := <-failures:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for callback")
	}

	c.Query(github.RepositoriesQuery{}, client.CacheAndNetwork).Enqueue(context.Background(), cb)
	for _, fromCache := range []bool{true, false} {
		select {
		case r := <-responses:
			assert.Equal(t, fromCache, r.FromCache)
		case err := <-failures:
			t.Fatalf("unexpected failure: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for callback")
		}
	}

	c.Query(github.RepositoryDetailQuery{Name: "eggql"}, client.CacheOnly).Enqueue(context.Background(), cb)
	select {
	case err := <-failures:
		assert.True(t, errors.Is(err, client.ErrCacheMiss))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for callback")
	}
}

func TestSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := mockgithub.New(mockgithub.WithToken(token))
	c := newClient(t, mock, client.WithSubscriptions("ws://mock/graphql", wstest.NewDialer(mock), transport.AuthHeader(token)))

	// cache the repository first
	_, err := c.Query(github.RepositoryDetailQuery{Name: "eggql"}).Execute(ctx)
	require.NoError(t, err)

	events, err := c.Subscribe(ctx, github.StarEventsSubscription{Name: "eggql"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mock.Requests() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, mock.Star("MDEwOlJlcG9zaXRvcnky"))

	select {
	case result := <-events:
		require.NoError(t, result.Err)
		event, err := github.DecodeStarEvent(result.Response.Data)
		require.NoError(t, err)
		assert.Equal(t, "eggql", event.Repository.Name)
		assert.Equal(t, 43, event.Repository.StargazerCount)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for star event")
	}

	// The event updated the cached repository
	r, err := c.Query(github.RepositoryDetailQuery{Name: "eggql"}, client.CacheOnly).Execute(ctx)
	require.NoError(t, err)
	detail, err := github.DecodeRepositoryDetail(r.Data)
	require.NoError(t, err)
	assert.Equal(t, 43, detail.StargazerCount)

	cancel()
	for range events {
	}
}

func TestSubscribeNotConfigured(t *testing.T) {
	c := newClient(t, mockgithub.New(mockgithub.WithToken(token)))
	_, err := c.Subscribe(context.Background(), github.StarEventsSubscription{Name: "eggql"})
	assert.ErrorIs(t, err, client.ErrNoSubscriptions)
}
