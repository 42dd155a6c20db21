package datasource

import (
	"context"
	"sync"

	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/github"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StructuredService runs blocking calls in goroutines of an errgroup.  All the goroutines of a
// fetch belong to the same group: if one fails the others are cancelled.  Every group is bound to
// the service's context, so Cancel stops all of them and waits until they have finished.
type StructuredService struct {
	base

	mu     sync.Mutex
	ctx    context.Context // parent of all group contexts
	cancel context.CancelFunc
	wg     sync.WaitGroup // outstanding groups
}

func NewStructuredService(c *client.Client, log *zap.Logger) *StructuredService {
	s := &StructuredService{base: newBase(c, log)}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *StructuredService) FetchRepositories(ctx context.Context) {
	s.launch(ctx, func(g *errgroup.Group, ctx context.Context) {
		g.Go(func() error { return s.execute(ctx, github.RepositoriesQuery{}, s.onRepositories) })
	})
}

// FetchRepositoryDetail also prefetches the commits of the repository (in the same group)
func (s *StructuredService) FetchRepositoryDetail(ctx context.Context, name string) {
	s.launch(ctx, func(g *errgroup.Group, ctx context.Context) {
		g.Go(func() error { return s.execute(ctx, github.RepositoryDetailQuery{Name: name}, s.onDetail) })
		g.Go(func() error { return s.execute(ctx, github.RepositoryCommitsQuery{Name: name}, s.onCommits) })
	})
}

func (s *StructuredService) FetchCommits(ctx context.Context, name string) {
	s.launch(ctx, func(g *errgroup.Group, ctx context.Context) {
		g.Go(func() error { return s.execute(ctx, github.RepositoryCommitsQuery{Name: name}, s.onCommits) })
	})
}

// Cancel cancels all fetches and waits for them to finish.  Later fetches work as normal.
func (s *StructuredService) Cancel() {
	s.mu.Lock()
	s.cancel()
	s.wg.Wait()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()
}

// launch creates a group (cancelled if ctx or the service is cancelled), starts the goroutines
// and reports the first error of the group when they have all finished
func (s *StructuredService) launch(ctx context.Context, start func(*errgroup.Group, context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groupCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel) // caller's context also cancels the group
	g, gctx := errgroup.WithContext(groupCtx)
	start(g, gctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()
		if err := g.Wait(); err != nil {
			s.fail(err)
		}
	}()
}

// execute runs the query and publishes the result
func (s *StructuredService) execute(ctx context.Context, op client.Operation, publish func(*client.Response) error) error {
	r, err := s.client.Query(op).Execute(ctx)
	if err != nil {
		return err
	}
	return publish(r)
}
