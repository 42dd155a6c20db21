// Package client is a GraphQL client with a normalized cache.  Queries are answered from the
// cache and/or the server according to a FetchPolicy.  Responses from the server are normalized
// (see package cache) and merged into the store, so every query sees the latest data for an
// object however it was fetched.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/andrewwphillips/ghgql/internal/cache"
	"github.com/andrewwphillips/ghgql/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"
)

// DefaultServerURL is the GitHub GraphQL endpoint
const DefaultServerURL = "https://api.github.com/graphql"

type (
	// Operation is a GraphQL query, mutation or subscription (document and variables)
	Operation interface {
		Name() string                      // operation name (the document may contain more than one operation)
		Document() string                  // GraphQL text incl. any fragments used
		Variables() map[string]interface{} // must be JSON encodable
	}

	// Client sends operations to a GraphQL server and caches the results
	Client struct {
		serverURL       string
		subscriptionURL string
		factory         transport.CallFactory
		dialer          *websocket.Dialer
		wsHeader        http.Header

		store      cache.Store
		normalizer cache.Normalizer
		reader     cache.Reader
		policy     FetchPolicy // default for queries

		log     *zap.Logger
		metrics *metrics

		docMu sync.Mutex
		docs  map[string]*ast.QueryDocument // parsed documents (by text)
	}

	// Option configures a Client
	Option func(*Client)
)

// New creates a client for the GraphQL endpoint at serverURL.  Requests are made using calls
// from factory, which must add any authentication the server needs.
func New(serverURL string, factory transport.CallFactory, options ...Option) *Client {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if factory == nil {
		factory = transport.NewCallFactory(nil)
	}
	c := &Client{
		serverURL: serverURL,
		factory:   factory,
		log:       zap.NewNop(),
		docs:      make(map[string]*ast.QueryDocument),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = newMetrics(nil, nil)
	}
	if c.store == nil {
		c.store = cache.NewLazyStore(cache.MemoryFactory(0, nil))
	}
	return c
}

// WithStore sets the factory for the store used to cache responses.  The store is not opened
// until first used, so an error opening it is returned from the first operation.
func WithStore(factory cache.Factory) Option {
	return func(c *Client) {
		c.store = cache.NewLazyStore(factory)
	}
}

// WithKeyResolver sets how the cache keys of objects are decided (default: all objects by path)
func WithKeyResolver(resolver cache.KeyResolver) Option {
	return func(c *Client) {
		c.normalizer.Resolver = resolver
		c.reader.Resolver = resolver
	}
}

// WithPossibleTypes tells the cache which concrete types implement interfaces (or are members of
// unions) so that fragments on those interfaces can be applied to objects
func WithPossibleTypes(possible map[string][]string) Option {
	return func(c *Client) {
		c.normalizer.PossibleTypes = possible
		c.reader.PossibleTypes = possible
	}
}

// WithDefaultPolicy sets the fetch policy for queries that do not specify one
func WithDefaultPolicy(policy FetchPolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLogger sets the logger (by default nothing is logged)
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRegisterer registers the client's metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = newMetrics(reg, c.memoryMetrics)
	}
}

// WithSubscriptions sets the websocket endpoint used for subscriptions.  The header is sent
// with the websocket handshake (eg transport.AuthHeader(token)).  If dialer is nil
// websocket.DefaultDialer is used.
func WithSubscriptions(url string, dialer *websocket.Dialer, header http.Header) Option {
	return func(c *Client) {
		c.subscriptionURL = url
		c.dialer = dialer
		c.wsHeader = header
	}
}

// ServerURL returns the GraphQL endpoint
func (c *Client) ServerURL() string { return c.serverURL }

// Store returns the cache store
func (c *Client) Store() cache.Store { return c.store }

// Query returns a Call for a query, using the client's default fetch policy unless one is given
func (c *Client) Query(op Operation, options ...CallOption) *Call {
	call := &Call{client: c, op: op, policy: c.policy}
	for _, opt := range options {
		opt.apply(call)
	}
	return call
}

// Mutate returns a Call for a mutation.  Mutations always go to the server - the result is
// normalized into the cache (so objects in the result update cached queries).
func (c *Client) Mutate(op Operation) *Call {
	return &Call{client: c, op: op, policy: NetworkOnly}
}

// ClearCache removes all cached records
func (c *Client) ClearCache(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Remove deletes the record with the key from the cache (eg a repository ID), returning false
// if it was not cached.  Queries that used the record will be fetched from the server again.
func (c *Client) Remove(ctx context.Context, key string) (bool, error) {
	return c.store.Remove(ctx, key)
}

// Close closes the cache store
func (c *Client) Close() error {
	return c.store.Close()
}

// memoryMetrics returns the hits and misses of the store's memory layer (zero if it has none)
func (c *Client) memoryMetrics() (hits, misses uint64) {
	if m, ok := c.store.(interface{ Metrics() (uint64, uint64) }); ok {
		return m.Metrics()
	}
	return 0, 0
}

// parse returns the parsed document and the operation definition for op.  Documents are parsed
// once for each distinct text.
func (c *Client) parse(op Operation) (*ast.QueryDocument, *ast.OperationDefinition, error) {
	text := op.Document()
	c.docMu.Lock()
	doc, ok := c.docs[text]
	c.docMu.Unlock()

	if !ok {
		var err error
		if doc, err = parser.ParseQuery(&ast.Source{Name: op.Name(), Input: text}); err != nil {
			return nil, nil, fmt.Errorf("%w parsing operation %q", err, op.Name())
		}
		c.docMu.Lock()
		c.docs[text] = doc
		c.docMu.Unlock()
	}

	def := doc.Operations.ForName(op.Name())
	if def == nil && len(doc.Operations) == 1 {
		def = doc.Operations[0]
	}
	if def == nil {
		return nil, nil, fmt.Errorf("operation %q not found in document", op.Name())
	}
	return doc, def, nil
}
