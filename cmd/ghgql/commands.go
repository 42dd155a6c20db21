package main

// commands.go has the subcommands

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrewwphillips/ghgql"
	"github.com/andrewwphillips/ghgql/internal/cache"
	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/github"
	"github.com/spf13/cobra"
)

// await returns the first result (or error) published by a data source
func await[T any](ctx context.Context, ds ghgql.DataSource, results <-chan T) (T, error) {
	var zero T
	select {
	case v := <-results:
		return v, nil
	case err := <-ds.Errors():
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// fetch starts a fetch on a data source of the configured mode and prints the first result
func fetch[T any](c *cli, cmd *cobra.Command, start func(context.Context, ghgql.DataSource), results func(ghgql.DataSource) <-chan T) error {
	ctx := cmd.Context()
	ds := c.app.GetDataSource(c.mode)
	defer ds.Cancel()
	start(ctx, ds)
	v, err := await(ctx, ds, results(ds))
	if err != nil {
		return err
	}
	return c.print(v)
}

func (c *cli) reposCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repos",
		Short: "List your repositories (most recently updated first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(c, cmd,
				func(ctx context.Context, ds ghgql.DataSource) { ds.FetchRepositories(ctx) },
				ghgql.DataSource.Repositories)
		},
	}
}

func (c *cli) detailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <name>",
		Short: "Show details of one of your repositories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(c, cmd,
				func(ctx context.Context, ds ghgql.DataSource) { ds.FetchRepositoryDetail(ctx, args[0]) },
				ghgql.DataSource.RepositoryDetail)
		},
	}
}

func (c *cli) commitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commits <name>",
		Short: "List the latest commits to master of one of your repositories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(c, cmd,
				func(ctx context.Context, ds ghgql.DataSource) { ds.FetchCommits(ctx, args[0]) },
				ghgql.DataSource.Commits)
		},
	}
}

func (c *cli) starCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "star <repository-id>",
		Short: "Star a repository (given its node ID)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Client().Mutate(github.AddStarMutation{RepositoryID: args[0]}).Execute(cmd.Context())
			if err != nil {
				return err
			}
			starred, err := github.DecodeStarred(r.Data)
			if err != nil {
				if gqlErr := r.Err(); gqlErr != nil {
					return gqlErr
				}
				return err
			}
			return c.print(starred)
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch <name>",
		Short: "Print star events of a repository as they happen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			results, err := c.app.Client().Subscribe(ctx, github.StarEventsSubscription{Name: args[0]})
			if err != nil {
				return err
			}
			for n := 0; count == 0 || n < count; n++ {
				var result client.Result
				var ok bool
				select {
				case result, ok = <-results:
				case <-ctx.Done():
					return nil // interrupted
				}
				if !ok {
					return nil
				}
				if result.Err != nil {
					return result.Err
				}
				event, err := github.DecodeStarEvent(result.Response.Data)
				if err != nil {
					return err
				}
				if err := c.print(event); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many events (0 = until interrupted)")
	return cmd
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove everything from the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Client().ClearCache(cmd.Context())
		},
	})

	var cascade bool
	remove := &cobra.Command{
		Use:   "remove <key>",
		Short: "Remove a record (eg a repository ID) from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cascade {
				n, err := cache.RemoveCascade(cmd.Context(), c.app.Client().Store(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.out, "removed %d records\n", n)
				return err
			}
			found, err := c.app.Client().Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return errors.New("no record " + args[0])
			}
			_, err = fmt.Fprintln(c.out, "removed 1 record")
			return err
		},
	}
	remove.Flags().BoolVar(&cascade, "cascade", false, "also remove records it refers to")
	cmd.AddCommand(remove)
	return cmd
}
