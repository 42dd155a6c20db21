package main

// root.go has the root command, which loads the config and creates the App for the subcommands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/andrewwphillips/ghgql"
	"github.com/andrewwphillips/ghgql/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli holds what the subcommands share
type cli struct {
	out  io.Writer
	cfg  config.Config
	log  *zap.Logger
	app  *ghgql.App
	mode ghgql.ServiceType
}

// run executes the command line (args excludes the program name), closing the App afterwards
func run(ctx context.Context, out io.Writer, args []string) error {
	c := &cli{out: out}
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ghgql",
		Short:        "Query GitHub repositories using GraphQL with a local cache",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	config.Flags(root.PersistentFlags())

	root.AddCommand(
		c.reposCmd(),
		c.detailCmd(),
		c.commitsCmd(),
		c.starCmd(),
		c.watchCmd(),
		c.cacheCmd(),
	)
	return root
}

// setup loads the config (flags of cmd, environment, config file) and creates the App
func (c *cli) setup(cmd *cobra.Command) error {
	v, err := config.New(cmd.Flags())
	if err != nil {
		return err
	}
	if c.cfg, err = config.Load(v); err != nil {
		return err
	}
	if c.mode, err = ghgql.ParseServiceType(c.cfg.Mode); err != nil {
		return err
	}
	if c.log, err = config.NewLogger(c.cfg.LogLevel); err != nil {
		return err
	}
	c.app = ghgql.New(appOptions(c.cfg, c.log)...)
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	_ = c.log.Sync()
	return err
}

// appOptions converts the config to App options
func appOptions(cfg config.Config, log *zap.Logger) []ghgql.Option {
	opts := []ghgql.Option{
		ghgql.ServerURL(cfg.ServerURL),
		ghgql.Token(cfg.Token),
		ghgql.Timeout(cfg.Timeout),
		ghgql.RateLimit(cfg.RateLimit, cfg.RateBurst),
		ghgql.Logger(log),
		ghgql.CacheName(cfg.Cache.Name),
	}
	if cfg.SubscriptionURL != "" {
		opts = append(opts, ghgql.Subscriptions(cfg.SubscriptionURL, nil))
	}
	memory := int64(cfg.Cache.MemoryMB) << 20
	switch cfg.Cache.Driver {
	case "sqlite":
		opts = append(opts, ghgql.CacheDir(cfg.Cache.Dir), ghgql.MemoryLayer(memory))
	case "badger":
		opts = append(opts, ghgql.BadgerCache(cfg.Cache.Dir), ghgql.MemoryLayer(memory))
	case "mysql":
		opts = append(opts, ghgql.MySQLCache(cfg.Cache.DSN), ghgql.MemoryLayer(memory))
	case "memory":
		opts = append(opts, ghgql.MemoryCache(memory))
	}
	return opts
}

// print writes v as indented JSON
func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("%w writing output", err)
	}
	return nil
}
