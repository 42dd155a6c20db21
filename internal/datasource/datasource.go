// Package datasource has the GitHub data sources used by the app.  Each offers the same operations
// but uses the client in a different style: callbacks, streams of results, or blocking calls in
// goroutines managed as a group.  Results and errors are published on channels that always hold
// the latest value, so a slow reader sees the newest result and never blocks a fetch.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/github"
	"github.com/andrewwphillips/ghgql/internal/transport"
	"go.uber.org/zap"
)

// DataSource is the surface shared by all the data sources
type DataSource interface {
	// FetchRepositories starts fetching the viewer's repositories (results on Repositories)
	FetchRepositories(ctx context.Context)

	// FetchRepositoryDetail starts fetching details of a repository (results on RepositoryDetail)
	FetchRepositoryDetail(ctx context.Context, name string)

	// FetchCommits starts fetching the latest commits of a repository (results on Commits)
	FetchCommits(ctx context.Context, name string)

	Repositories() <-chan []github.Repository
	RepositoryDetail() <-chan *github.RepositoryDetail
	Commits() <-chan []github.Commit
	Errors() <-chan error

	// Cancel stops all fetches in progress
	Cancel()

	// Client returns the client used for fetching
	Client() *client.Client
}

// latest is a channel that holds (at most) the most recent unread value
type latest[T any] struct {
	mu sync.Mutex
	ch chan T
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{ch: make(chan T, 1)}
}

// publish replaces any unread value with v
func (l *latest[T]) publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.ch:
	default:
	}
	l.ch <- v
}

// base has the client and the channels used by all the data sources
type base struct {
	client *client.Client
	log    *zap.Logger

	repositories *latest[[]github.Repository]
	detail       *latest[*github.RepositoryDetail]
	commits      *latest[[]github.Commit]
	errors       *latest[error]
}

func newBase(c *client.Client, log *zap.Logger) base {
	if log == nil {
		log = zap.NewNop()
	}
	return base{
		client:       c,
		log:          log,
		repositories: newLatest[[]github.Repository](),
		detail:       newLatest[*github.RepositoryDetail](),
		commits:      newLatest[[]github.Commit](),
		errors:       newLatest[error](),
	}
}

func (b *base) Client() *client.Client                            { return b.client }
func (b *base) Repositories() <-chan []github.Repository          { return b.repositories.ch }
func (b *base) RepositoryDetail() <-chan *github.RepositoryDetail { return b.detail.ch }
func (b *base) Commits() <-chan []github.Commit                   { return b.commits.ch }
func (b *base) Errors() <-chan error                              { return b.errors.ch }

// fail publishes an error (unless it is just the result of cancellation)
func (b *base) fail(err error) {
	if errors.Is(err, transport.ErrCanceled) || errors.Is(err, context.Canceled) {
		b.log.Debug("fetch cancelled", zap.Error(err))
		return
	}
	b.log.Warn("fetch failed", zap.Error(err))
	b.errors.publish(err)
}

// publishers return funcs that decode a response and publish the result

func (b *base) onRepositories(r *client.Response) error {
	repos, err := decode(r, github.DecodeRepositories)
	if err != nil {
		return err
	}
	b.repositories.publish(repos)
	return nil
}

func (b *base) onDetail(r *client.Response) error {
	detail, err := decode(r, github.DecodeRepositoryDetail)
	if err != nil {
		return err
	}
	b.detail.publish(detail)
	return nil
}

func (b *base) onCommits(r *client.Response) error {
	commits, err := decode(r, github.DecodeCommits)
	if err != nil {
		return err
	}
	b.commits.publish(commits)
	return nil
}

// decode maps the data of a response.  If that fails and the server returned errors, they are
// returned as they are more useful than the decode error.
func decode[T any](r *client.Response, fn func(json.RawMessage) (T, error)) (T, error) {
	v, err := fn(r.Data)
	if err != nil {
		if gqlErr := r.Err(); gqlErr != nil {
			return v, gqlErr
		}
		return v, err
	}
	return v, nil
}

// tracker keeps the cancel funcs of contexts in use so that they can all be cancelled
type tracker struct {
	mu      sync.Mutex
	next    int
	cancels map[int]context.CancelFunc
}

// track returns a context that is cancelled by cancelAll, and a func to call when finished with it
func (t *tracker) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancels == nil {
		t.cancels = make(map[int]context.CancelFunc)
	}
	id := t.next
	t.next++
	t.cancels[id] = cancel
	return ctx, func() {
		t.mu.Lock()
		delete(t.cancels, id)
		t.mu.Unlock()
		cancel()
	}
}

func (t *tracker) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, cancel := range t.cancels {
		cancel()
		delete(t.cancels, id)
	}
}
