// Command mock-github serves a mock of the GitHub GraphQL API (see internal/mockgithub) for
// trying out ghgql without a GitHub account.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/andrewwphillips/ghgql/internal/config"
	"github.com/andrewwphillips/ghgql/internal/mockgithub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const path = "/graphql"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		addr, token, secret, level string
		issue                      time.Duration
	)
	cmd := &cobra.Command{
		Use:          "mock-github",
		Short:        "Serve a mock of the GitHub GraphQL API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" && secret == "" {
				return errors.New("use --token and/or --jwt-secret so that clients can authenticate")
			}
			log, err := config.NewLogger(level)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			options := []mockgithub.Option{mockgithub.WithLogger(log)}
			if token != "" {
				options = append(options, mockgithub.WithToken(token))
			}
			if secret != "" {
				options = append(options, mockgithub.WithJWTSecret([]byte(secret)))
				if issue > 0 {
					jwt, err := mockgithub.IssueToken([]byte(secret), mockgithub.DefaultData().Login, issue)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, jwt)
				}
			}
			return serve(cmd.Context(), addr, mockgithub.New(options...), log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "address to listen on")
	cmd.Flags().StringVar(&token, "token", "", "static token accepted by the server")
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "secret for signing JWTs accepted by the server")
	cmd.Flags().DurationVar(&issue, "issue", 0, "print a JWT (signed with --jwt-secret) valid for this long")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level: debug, info, warn or error")
	return cmd
}

// serve handles requests until ctx is cancelled
func serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("url", "http://"+addr+path))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
