package datasource_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/datasource"
	"github.com/andrewwphillips/ghgql/internal/github"
	"github.com/andrewwphillips/ghgql/internal/mockgithub"
	"github.com/andrewwphillips/ghgql/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "ghp_s3cr3t"

func newClient(t *testing.T, h http.Handler) *client.Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	httpClient := &http.Client{Transport: transport.NewAuthTransport(http.DefaultTransport, token)}
	c := client.New(server.URL+"/graphql", transport.Decorate(transport.NewCallFactory(httpClient)),
		client.WithKeyResolver(github.KeyResolver{}),
		client.WithPossibleTypes(github.PossibleTypes),
	)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var services = map[string]func(*client.Client) datasource.DataSource{
	"callback":   func(c *client.Client) datasource.DataSource { return datasource.NewCallbackService(c, nil) },
	"reactive":   func(c *client.Client) datasource.DataSource { return datasource.NewReactiveService(c, nil) },
	"structured": func(c *client.Client) datasource.DataSource { return datasource.NewStructuredService(c, nil) },
}

// receive waits (not too long) for a value on ch
func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a %T", *new(T))
	}
	panic("not reached")
}

func TestFetch(t *testing.T) {
	for name, newService := range services {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newClient(t, mockgithub.New(mockgithub.WithToken(token)))
			ds := newService(c)
			assert.Same(t, c, ds.Client())

			ds.FetchRepositories(ctx)
			repos := receive(t, ds.Repositories())
			require.Len(t, repos, 3)

			ds.FetchRepositoryDetail(ctx, "eggql")
			detail := receive(t, ds.RepositoryDetail())
			assert.Equal(t, "MDEwOlJlcG9zaXRvcnky", detail.ID)
			assert.Equal(t, 1, detail.PullRequests.TotalCount)
			assert.Equal(t, 3, detail.Issues.TotalCount)

			ds.FetchCommits(ctx, "apollo-android")
			var commits []github.Commit
			for len(commits) != 2 {
				// the structured service also published the commits of eggql above
				commits = receive(t, ds.Commits())
			}
		})
	}
}

func TestFetchError(t *testing.T) {
	for name, newService := range services {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, mockgithub.New(mockgithub.WithToken(token)))
			ds := newService(c)

			ds.FetchRepositoryDetail(context.Background(), "no-such-repo")
			err := receive(t, ds.Errors())
			assert.Contains(t, err.Error(), "no-such-repo")
		})
	}
}

func TestFetchUnauthorized(t *testing.T) {
	for name, newService := range services {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, mockgithub.New(mockgithub.WithToken("another-token")))
			ds := newService(c)

			ds.FetchRepositories(context.Background())
			err := receive(t, ds.Errors())
			var httpErr *client.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
		})
	}
}

func TestCancel(t *testing.T) {
	for name, newService := range services {
		t.Run(name, func(t *testing.T) {
			started := make(chan struct{}, 3)
			blocked := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				started <- struct{}{}
				<-r.Context().Done()
			})
			ds := newService(newClient(t, blocked))

			ds.FetchRepositories(context.Background())
			receive(t, started)
			ds.Cancel()

			select {
			case err := <-ds.Errors():
				t.Fatalf("cancelled fetch reported error %v", err)
			case repos := <-ds.Repositories():
				t.Fatalf("cancelled fetch returned %v", repos)
			case <-time.After(100 * time.Millisecond):
			}
		})
	}
}

func TestCancelWithContext(t *testing.T) {
	started := make(chan struct{}, 2)
	blocked := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	})
	ds := datasource.NewStructuredService(newClient(t, blocked), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ds.FetchRepositoryDetail(ctx, "eggql")
	receive(t, started)
	receive(t, started) // detail and commits are fetched concurrently
	cancel()
	ds.Cancel() // waits for both goroutines

	select {
	case err := <-ds.Errors():
		t.Fatalf("cancelled fetch reported error %v", err)
	default:
	}
}

func TestReactiveCached(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken(token))
	c := newClient(t, mock)
	ds := datasource.NewReactiveService(c, nil)

	ds.FetchRepositories(ctx)
	require.Len(t, receive(t, ds.Repositories()), 3)

	// The data is now in the cache, but the reactive service still asks the server
	ds.FetchRepositories(ctx)
	require.Len(t, receive(t, ds.Repositories()), 3)
	require.Eventually(t, func() bool { return mock.Requests() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestSharedCache(t *testing.T) {
	ctx := context.Background()
	mock := mockgithub.New(mockgithub.WithToken(token))
	c := newClient(t, mock)

	reactive := datasource.NewReactiveService(c, nil)
	reactive.FetchRepositories(ctx)
	require.Len(t, receive(t, reactive.Repositories()), 3)
	require.Eventually(t, func() bool { return mock.Requests() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Callback service uses the default (cache first) policy and the same client
	callback := datasource.NewCallbackService(c, nil)
	callback.FetchRepositories(ctx)
	require.Len(t, receive(t, callback.Repositories()), 3)
	assert.EqualValues(t, 1, mock.Requests(), "answered from the shared cache")
}
