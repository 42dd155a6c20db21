package ghgql

// options.go has the options that control how the client is built.  (As in the internal
// packages an option is a closure that modifies the settings.)

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andrewwphillips/ghgql/internal/cache"
	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultServerURL is the endpoint of the GitHub GraphQL API
	DefaultServerURL = client.DefaultServerURL

	// DefaultCacheName is the name of the store holding the cache
	DefaultCacheName = "github_cache"

	defaultMemoryCache = 16 << 20
)

// Option is a setting passed to New
type Option = func(*options)

type options struct {
	serverURL       string
	subscriptionURL string
	token           string

	transport      http.RoundTripper
	timeout        time.Duration
	limiter        *rate.Limiter
	tracerProvider trace.TracerProvider
	dialer         *websocket.Dialer

	cacheDriver string // sqlite, mysql, badger or memory
	cacheDir    string
	cacheName   string
	cacheDSN    string
	memoryCache int64 // bytes of memory layer in front of a persistent store (0 = none)
	policy      client.FetchPolicy

	log        *zap.Logger
	registerer prometheus.Registerer
}

func defaultOptions() options {
	return options{
		serverURL:   DefaultServerURL,
		transport:   http.DefaultTransport,
		cacheDriver: "sqlite",
		cacheName:   DefaultCacheName,
		memoryCache: defaultMemoryCache,
		log:         zap.NewNop(),
	}
}

// Token sets the token sent (as a bearer token) in the Authorization header of every request
func Token(token string) func(*options) {
	return func(opt *options) {
		opt.token = token
	}
}

// ServerURL sets the GraphQL endpoint (the default is GitHub's)
func ServerURL(url string) func(*options) {
	return func(opt *options) {
		opt.serverURL = url
	}
}

// Subscriptions enables subscriptions using the graphql-transport-ws protocol at url (a ws: or
// wss: URL).  A nil dialer means the websocket default.
func Subscriptions(url string, dialer *websocket.Dialer) func(*options) {
	return func(opt *options) {
		opt.subscriptionURL = url
		opt.dialer = dialer
	}
}

// Transport sets the round tripper that sends requests (the default is http.DefaultTransport)
func Transport(rt http.RoundTripper) func(*options) {
	return func(opt *options) {
		opt.transport = rt
	}
}

// Timeout limits how long a request can take (0 means no limit)
func Timeout(timeout time.Duration) func(*options) {
	return func(opt *options) {
		opt.timeout = timeout
	}
}

// RateLimit limits requests to perSecond (with bursts of up to burst).  GitHub limits clients
// to an hourly budget so this can be used to spread requests out.
func RateLimit(perSecond float64, burst int) func(*options) {
	return func(opt *options) {
		if perSecond <= 0 {
			opt.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		opt.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// TracerProvider sets the provider of tracers used to trace requests (the default is the global provider)
func TracerProvider(tp trace.TracerProvider) func(*options) {
	return func(opt *options) {
		opt.tracerProvider = tp
	}
}

// CacheDir stores the cache in an SQLite database in dir (the default is the user's cache directory)
func CacheDir(dir string) func(*options) {
	return func(opt *options) {
		opt.cacheDriver = "sqlite"
		opt.cacheDir = dir
	}
}

// CacheName sets the name of the store (the database file name without extension, or the
// directory of a badger store)
func CacheName(name string) func(*options) {
	return func(opt *options) {
		opt.cacheName = name
	}
}

// BadgerCache stores the cache using badger in a directory of dir (in memory if dir is empty)
func BadgerCache(dir string) func(*options) {
	return func(opt *options) {
		opt.cacheDriver = "badger"
		opt.cacheDir = dir
	}
}

// MySQLCache stores the cache in a MySQL database
func MySQLCache(dsn string) func(*options) {
	return func(opt *options) {
		opt.cacheDriver = "mysql"
		opt.cacheDSN = dsn
	}
}

// MemoryCache keeps the cache only in memory (up to size bytes)
func MemoryCache(size int64) func(*options) {
	return func(opt *options) {
		opt.cacheDriver = "memory"
		opt.memoryCache = size
	}
}

// MemoryLayer sets the size (bytes) of the memory cache in front of a persistent store.  Zero
// means every read goes to the store.
func MemoryLayer(size int64) func(*options) {
	return func(opt *options) {
		opt.memoryCache = size
	}
}

// DefaultPolicy sets the fetch policy of queries of the Callback and StructuredConcurrency
// data sources (the Reactive data source always uses CacheAndNetwork)
func DefaultPolicy(policy client.FetchPolicy) func(*options) {
	return func(opt *options) {
		opt.policy = policy
	}
}

// Logger sets the logger (the default logs nothing).  The token is never logged.
func Logger(log *zap.Logger) func(*options) {
	return func(opt *options) {
		if log == nil {
			log = zap.NewNop()
		}
		opt.log = log
	}
}

// Registerer sets where the client's metrics are registered (the default is not to register them)
func Registerer(reg prometheus.Registerer) func(*options) {
	return func(opt *options) {
		opt.registerer = reg
	}
}

// storeFactory returns the factory of the cache store.  Nothing is opened (or created) until the
// store is first used.
func (opt *options) storeFactory() cache.Factory {
	var persistent cache.Factory
	switch opt.cacheDriver {
	case "memory":
		return cache.MemoryFactory(opt.memoryCache, nil)
	case "mysql":
		persistent = cache.SQLFactory("mysql", opt.cacheDSN)
	case "badger":
		dir := opt.cacheDir
		if dir != "" {
			dir = filepath.Join(dir, opt.cacheName)
		}
		persistent = cache.BadgerFactory(dir, opt.log)
	case "sqlite":
		dir, name := opt.cacheDir, opt.cacheName
		persistent = cache.FactoryFunc(func() (cache.Store, error) {
			dir, err := cacheDir(dir)
			if err != nil {
				return nil, err
			}
			return cache.OpenSQLStore(context.Background(), "sqlite", cache.SQLiteFile(dir, name))
		})
	default:
		driver := opt.cacheDriver
		persistent = cache.FactoryFunc(func() (cache.Store, error) {
			return nil, errors.Errorf("unknown cache driver %q", driver)
		})
	}
	if opt.memoryCache <= 0 {
		return persistent
	}
	return cache.MemoryFactory(opt.memoryCache, persistent)
}

// cacheDir returns (and creates if necessary) the directory for the cache database
func cacheDir(dir string) (string, error) {
	if dir == "" {
		userDir, err := os.UserCacheDir()
		if err != nil {
			return "", errors.Wrap(err, "finding cache directory")
		}
		dir = filepath.Join(userDir, "ghgql")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Wrapf(err, "creating cache directory %q", dir)
	}
	return dir, nil
}
