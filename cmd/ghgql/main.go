// Command ghgql fetches repositories, their details and commits of the authenticated GitHub user
// using the GraphQL API, caching the results on the local machine.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
