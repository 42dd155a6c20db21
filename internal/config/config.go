// Package config loads the settings of the ghgql binaries from flags, the environment and an
// optional config file (using viper) and builds the logger.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvPrefix is the prefix of environment variables for config keys (eg GHGQL_SERVER_URL)
	EnvPrefix = "GHGQL"

	// TokenEnv is the environment variable holding the GitHub token if none is configured
	TokenEnv = "GITHUB_OAUTH_TOKEN"

	DefaultServerURL = "https://api.github.com/graphql"
	DefaultCacheName = "github_cache"
)

// BuildToken is the token built into the binary.  If set, the token in the config (flag,
// environment or file) and $GITHUB_OAUTH_TOKEN are ignored.  Set it using:
//
//	go build -ldflags "-X github.com/andrewwphillips/ghgql/internal/config.BuildToken=ghp_..."
var BuildToken string

type (
	Config struct {
		ServerURL       string
		SubscriptionURL string // websocket URL for subscriptions (none if empty)
		Token           string
		Cache           Cache
		RateLimit       float64 // requests per second (0 = unlimited)
		RateBurst       int
		Timeout         time.Duration
		Mode            string
		LogLevel        string
	}

	Cache struct {
		Driver   string // sqlite, mysql, badger or memory
		Name     string // name of the store (sqlite file and badger directory)
		Dir      string // directory of the store (sqlite and badger)
		DSN      string // data source name (mysql)
		MemoryMB int    // size of the in-memory layer in front of the store (0 = none)
	}
)

// Flags adds the flags for all the config keys to fs.  Flag names use hyphens in place of the
// dots and underscores of the keys.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (flags and environment variables take precedence)")
	fs.String("server-url", DefaultServerURL, "GitHub GraphQL endpoint")
	fs.String("subscription-url", "", "websocket endpoint for subscriptions")
	fs.String("token", "", "GitHub token (ignored if one was built in, default $"+TokenEnv+")")
	fs.String("cache-driver", "sqlite", "cache store: sqlite, mysql, badger or memory")
	fs.String("cache-name", DefaultCacheName, "name of the cache store")
	fs.String("cache-dir", "", "directory of the cache store (default user cache dir)")
	fs.String("cache-dsn", "", "data source name of a mysql cache store")
	fs.Int("cache-memory-mb", 16, "size of in-memory cache layer (MB)")
	fs.Float64("rate-limit", 0, "maximum requests per second (0 = unlimited)")
	fs.Int("rate-burst", 1, "maximum burst of requests")
	fs.Duration("timeout", 30*time.Second, "request timeout")
	fs.String("mode", "callback", "data source: callback, reactive or structured")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
}

// New returns a viper instance that reads the flags of fs (see Flags) and the environment
func New(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err == nil {
			err = v.BindPFlag(key(f.Name), f)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w binding flags", err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w reading config file %q", err, file)
		}
	}
	return v, nil
}

// key converts a flag name to the config key
func key(flag string) string {
	if rest, ok := strings.CutPrefix(flag, "cache-"); ok {
		return "cache." + strings.ReplaceAll(rest, "-", "_")
	}
	return strings.ReplaceAll(flag, "-", "_")
}

// Load gets the config from v and checks it
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		ServerURL:       v.GetString("server_url"),
		SubscriptionURL: v.GetString("subscription_url"),
		Token:           v.GetString("token"),
		Cache: Cache{
			Driver:   v.GetString("cache.driver"),
			Name:     v.GetString("cache.name"),
			Dir:      v.GetString("cache.dir"),
			DSN:      v.GetString("cache.dsn"),
			MemoryMB: v.GetInt("cache.memory_mb"),
		},
		RateLimit: v.GetFloat64("rate_limit"),
		RateBurst: v.GetInt("rate_burst"),
		Timeout:   v.GetDuration("timeout"),
		Mode:      v.GetString("mode"),
		LogLevel:  v.GetString("log_level"),
	}
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.Cache.Name == "" {
		c.Cache.Name = DefaultCacheName
	}
	if BuildToken != "" {
		c.Token = BuildToken // runtime sources only apply to binaries built without a token
	}
	if c.Token == "" {
		c.Token = os.Getenv(TokenEnv)
	}
	if c.Token == "" {
		return c, fmt.Errorf("no GitHub token: use --token, $%s_TOKEN or $%s", EnvPrefix, TokenEnv)
	}

	switch c.Cache.Driver {
	case "sqlite", "badger", "memory":
	case "mysql":
		if c.Cache.DSN == "" {
			return c, fmt.Errorf("cache driver mysql needs a data source name (cache.dsn)")
		}
	default:
		return c, fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Cache.Dir == "" && c.Cache.Driver != "memory" && c.Cache.Driver != "mysql" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return c, fmt.Errorf("%w getting cache directory (use cache.dir)", err)
		}
		c.Cache.Dir = dir + string(os.PathSeparator) + "ghgql"
	}
	if c.RateLimit < 0 || c.RateBurst < 0 || c.Cache.MemoryMB < 0 {
		return c, fmt.Errorf("rate_limit, rate_burst and cache.memory_mb cannot be negative")
	}
	return c, nil
}

// NewLogger returns a logger (to stderr) that logs messages at or above the level
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
