package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andrewwphillips/ghgql/internal/github"
	"github.com/andrewwphillips/ghgql/internal/mockgithub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "ghp_s3cr3t"

// syncBuffer allows output to be read while a command is still writing
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// setup starts a mock server and returns it with the args that make the command use it
func setup(t *testing.T) (*mockgithub.Server, []string) {
	t.Helper()
	mock := mockgithub.New(mockgithub.WithToken(token))
	server := httptest.NewServer(mock)
	t.Cleanup(server.Close)
	return mock, []string{
		"--server-url", server.URL + "/graphql",
		"--subscription-url", "ws" + strings.TrimPrefix(server.URL, "http") + "/graphql",
		"--token", token,
		"--cache-dir", t.TempDir(),
		"--log-level", "error",
	}
}

// execute runs the command line, returning the output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out syncBuffer
	err := run(context.Background(), &out, args)
	return out.String(), err
}

func TestRepos(t *testing.T) {
	for _, mode := range []string{"callback", "reactive", "structured"} {
		t.Run(mode, func(t *testing.T) {
			_, args := setup(t)
			out, err := execute(t, append(args, "--mode", mode, "repos")...)
			require.NoError(t, err)

			var repos []github.Repository
			require.NoError(t, json.Unmarshal([]byte(out), &repos))
			require.Len(t, repos, 3)
			names := []string{repos[0].Name, repos[1].Name, repos[2].Name}
			assert.ElementsMatch(t, []string{"apollo-android", "eggql", "hello-world"}, names)
		})
	}
}

func TestDetailCached(t *testing.T) {
	mock, args := setup(t)
	out, err := execute(t, append(args, "detail", "eggql")...)
	require.NoError(t, err)
	var detail github.RepositoryDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, 42, detail.StargazerCount)

	// Second run of the program reads the cache database
	again, err := execute(t, append(args, "detail", "eggql")...)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.EqualValues(t, 1, mock.Requests())
}

func TestCommits(t *testing.T) {
	_, args := setup(t)
	out, err := execute(t, append(args, "commits", "eggql")...)
	require.NoError(t, err)
	var commits []github.Commit
	require.NoError(t, json.Unmarshal([]byte(out), &commits))
	require.Len(t, commits, 1)
	assert.Equal(t, "Initial commit", commits[0].Message)
}

func TestErrors(t *testing.T) {
	_, args := setup(t)
	tests := map[string]struct {
		args     []string
		contains string
	}{
		"no such repository": {args: []string{"detail", "nope"}, contains: "nope"},
		"bad mode":           {args: []string{"--mode", "rxjava", "repos"}, contains: "rxjava"},
		"missing arg":        {args: []string{"commits"}, contains: "arg"},
		"bad token":          {args: []string{"--token", "wrong", "repos"}, contains: "401"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, append(append([]string{}, args...), tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestStarAndCache(t *testing.T) {
	mock, args := setup(t)
	_, err := execute(t, append(args, "detail", "hello-world")...)
	require.NoError(t, err)

	out, err := execute(t, append(args, "star", "MDEwOlJlcG9zaXRvcnkz")...)
	require.NoError(t, err)
	var starred github.Starred
	require.NoError(t, json.Unmarshal([]byte(out), &starred))
	assert.Equal(t, 2, starred.StargazerCount)
	assert.True(t, starred.ViewerHasStarred)

	// The mutation result updated the cached repository so the server is not asked again
	out, err = execute(t, append(args, "detail", "hello-world")...)
	require.NoError(t, err)
	var detail github.RepositoryDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, 2, detail.StargazerCount)
	assert.EqualValues(t, 2, mock.Requests())

	out, err = execute(t, append(args, "cache", "remove", "MDEwOlJlcG9zaXRvcnkz")...)
	require.NoError(t, err)
	assert.Equal(t, "removed 1 record\n", out)
	_, err = execute(t, append(args, "cache", "remove", "MDEwOlJlcG9zaXRvcnkz")...)
	assert.Error(t, err)

	_, err = execute(t, append(args, "cache", "clear")...)
	require.NoError(t, err)
	_, err = execute(t, append(args, "detail", "hello-world")...)
	require.NoError(t, err)
	assert.EqualValues(t, 3, mock.Requests(), "fetched again after clearing the cache")
}

func TestWatch(t *testing.T) {
	mock, args := setup(t)
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), &out, append(args, "watch", "eggql", "--count", "1"))
	}()

	require.Eventually(t, func() bool { return mock.Requests() == 1 }, 5*time.Second, 10*time.Millisecond,
		"subscription started")
	require.NoError(t, mock.Star("MDEwOlJlcG9zaXRvcnky"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not finish")
	}
	var event github.StarEvent
	require.NoError(t, json.Unmarshal([]byte(out.String()), &event))
	assert.Equal(t, "eggql", event.Repository.Name)
	assert.Equal(t, 43, event.Repository.StargazerCount)
}
