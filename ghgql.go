package ghgql

// ghgql.go has App which builds the client (once) and the data sources that use it

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/andrewwphillips/ghgql/internal/client"
	"github.com/andrewwphillips/ghgql/internal/datasource"
	"github.com/andrewwphillips/ghgql/internal/github"
	"github.com/andrewwphillips/ghgql/internal/transport"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// App holds the settings and the client, which is built when first needed
type App struct {
	opt options

	once   sync.Once
	client *client.Client
}

// New creates an App with the options.  Nothing is opened or sent until a data source is used.
func New(opts ...Option) *App {
	app := &App{opt: defaultOptions()}
	for _, opt := range opts {
		opt(&app.opt)
	}
	return app
}

// Client returns the client, building it on the first call.  It is safe to call concurrently:
// the client is built once and every caller gets the same one.
func (a *App) Client() *client.Client {
	a.once.Do(func() {
		a.client = a.build()
	})
	return a.client
}

// GetDataSource returns a data source of the type that uses the (shared) client
func (a *App) GetDataSource(service ServiceType) DataSource {
	log := a.opt.log.Named(service.String())
	switch service {
	case Callback:
		return datasource.NewCallbackService(a.Client(), log)
	case Reactive:
		return datasource.NewReactiveService(a.Client(), log)
	case StructuredConcurrency:
		return datasource.NewStructuredService(a.Client(), log)
	}
	panic(fmt.Sprintf("BUG unknown service type %d", int(service)))
}

// Close closes the cache store (if the client was built).  The App must not be used after Close.
func (a *App) Close() error {
	a.once.Do(func() {}) // a client can't be built after Close
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// build creates the client from the options.  Requests pass through: authentication, rate
// limiting, logging (no headers), tracing, then the transport from the options.
func (a *App) build() *client.Client {
	opt := &a.opt
	var rt http.RoundTripper = opt.transport
	otelOpts := []otelhttp.Option{}
	if opt.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opt.tracerProvider))
	}
	rt = otelhttp.NewTransport(rt, otelOpts...)
	rt = transport.Logging(rt, opt.log.Named("http"))
	rt = transport.RateLimit(rt, opt.limiter)
	rt = transport.NewAuthTransport(rt, opt.token)

	httpClient := &http.Client{Transport: rt, Timeout: opt.timeout}
	factory := transport.Decorate(transport.NewCallFactory(httpClient))

	options := []client.Option{
		client.WithStore(opt.storeFactory()),
		client.WithKeyResolver(github.KeyResolver{}),
		client.WithPossibleTypes(github.PossibleTypes),
		client.WithDefaultPolicy(opt.policy),
		client.WithLogger(opt.log),
		client.WithRegisterer(opt.registerer),
	}
	if opt.subscriptionURL != "" {
		options = append(options, client.WithSubscriptions(opt.subscriptionURL, opt.dialer, transport.AuthHeader(opt.token)))
	}
	opt.log.Info("client created", zap.String("server", opt.serverURL),
		zap.String("cache", opt.cacheDriver), zap.String("name", opt.cacheName))
	return client.New(opt.serverURL, factory, options...)
}
