package datasource

import (
	"context"

	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/github"
	"go.uber.org/zap"
)

// ReactiveService streams results - the cached result (if any) is published immediately, then
// the result from the server
type ReactiveService struct {
	base
	tracker tracker
}

func NewReactiveService(c *client.Client, log *zap.Logger) *ReactiveService {
	return &ReactiveService{base: newBase(c, log)}
}

func (s *ReactiveService) FetchRepositories(ctx context.Context) {
	s.stream(ctx, github.RepositoriesQuery{}, s.onRepositories)
}

func (s *ReactiveService) FetchRepositoryDetail(ctx context.Context, name string) {
	s.stream(ctx, github.RepositoryDetailQuery{Name: name}, s.onDetail)
}

func (s *ReactiveService) FetchCommits(ctx context.Context, name string) {
	s.stream(ctx, github.RepositoryCommitsQuery{Name: name}, s.onCommits)
}

// Cancel stops all streams
func (s *ReactiveService) Cancel() {
	s.tracker.cancelAll()
}

func (s *ReactiveService) stream(ctx context.Context, op client.Operation, publish func(*client.Response) error) {
	ctx, done := s.tracker.track(ctx)
	results := s.client.Query(op, client.CacheAndNetwork).Stream(ctx)
	go func() {
		defer done()
		for result := range results {
			if result.Err != nil {
				s.fail(result.Err)
				continue
			}
			if err := publish(result.Response); err != nil {
				s.fail(err)
			}
		}
	}()
}
