package datasource

import (
	"context"
	"sync"

	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/github"
	"go.uber.org/zap"
)

// CallbackService fetches using Call.Enqueue with callbacks that publish the results
type CallbackService struct {
	base

	mu    sync.Mutex
	calls map[*client.Call]struct{} // calls not yet completed
}

func NewCallbackService(c *client.Client, log *zap.Logger) *CallbackService {
	return &CallbackService{base: newBase(c, log), calls: make(map[*client.Call]struct{})}
}

func (s *CallbackService) FetchRepositories(ctx context.Context) {
	s.enqueue(ctx, s.client.Query(github.RepositoriesQuery{}), s.onRepositories)
}

func (s *CallbackService) FetchRepositoryDetail(ctx context.Context, name string) {
	s.enqueue(ctx, s.client.Query(github.RepositoryDetailQuery{Name: name}), s.onDetail)
}

func (s *CallbackService) FetchCommits(ctx context.Context, name string) {
	s.enqueue(ctx, s.client.Query(github.RepositoryCommitsQuery{Name: name}), s.onCommits)
}

// Cancel cancels all calls that have not completed
func (s *CallbackService) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for call := range s.calls {
		call.Cancel()
		delete(s.calls, call)
	}
}

// enqueue starts the call, passing each response to publish.  The call can no longer be
// cancelled once its first result has arrived.
func (s *CallbackService) enqueue(ctx context.Context, call *client.Call, publish func(*client.Response) error) {
	s.mu.Lock()
	s.calls[call] = struct{}{}
	s.mu.Unlock()
	done := func() {
		s.mu.Lock()
		delete(s.calls, call)
		s.mu.Unlock()
	}

	call.Enqueue(ctx, client.CallbackFuncs{
		Response: func(r *client.Response) {
			done()
			if err := publish(r); err != nil {
				s.fail(err)
			}
		},
		Failure: func(err error) {
			done()
			s.fail(err)
		},
	})
}
