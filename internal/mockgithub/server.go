// Package mockgithub is a mock of the GitHub GraphQL API.  It serves a small subset of GitHub's
// schema from canned data, requiring a bearer token like the real API.  It is used for testing
// the client without network access or a real token.
package mockgithub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const eventBuffer = 16 // star events buffered per subscriber

type (
	// Server is an http.Handler for GraphQL requests (POST) and subscriptions (websocket)
	Server struct {
		schema *ast.Schema
		auth   authenticator
		log    *zap.Logger
		now    func() time.Time

		mu   sync.RWMutex // protects data (mutations take the write lock)
		data *Data

		requests atomic.Int64

		subsMu      sync.Mutex
		subscribers map[string]map[chan *Object]struct{} // by repository name
	}

	// Option configures the server
	Option func(*Server)

	gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	gqlResult struct {
		Data   interface{}   `json:"data"`
		Errors gqlerror.List `json:"errors,omitempty"`
	}
)

// New returns the mock server.  At least one of WithToken or WithJWTSecret should be used, else
// no request is authorised.
func New(options ...Option) *Server {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: "github", Input: schema})
	if err != nil {
		panic("BUG mock GitHub schema: " + err.Error())
	}
	r := &Server{
		schema:      s,
		log:         zap.NewNop(),
		now:         time.Now,
		data:        DefaultData(),
		subscribers: make(map[string]map[chan *Object]struct{}),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// WithToken makes the server accept the static token.  Only a hash of the token is kept.
func WithToken(token string) Option {
	return func(s *Server) {
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
		if err != nil {
			panic("mockgithub.WithToken: " + err.Error())
		}
		s.auth.tokenHash = hash
	}
}

// WithJWTSecret makes the server accept JWTs signed with the secret (see IssueToken)
func WithJWTSecret(secret []byte) Option {
	return func(s *Server) {
		s.auth.jwtSecret = secret
	}
}

// WithData sets the data served (else DefaultData is used)
func WithData(d *Data) Option {
	return func(s *Server) {
		s.data = d
	}
}

// WithClock sets the source of event times (default time.Now)
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// Requests returns the number of GraphQL requests (incl. subscriptions) that have been executed
func (s *Server) Requests() int64 { return s.requests.Load() }

// ServeHTTP handles GraphQL requests and subscription websockets
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := s.auth.check(r, s.data.Login); err != nil {
		s.log.Info("unauthorised request", zap.String("remote", r.RemoteAddr), zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials","documentation_url":"https://docs.github.com/graphql"}`))
		return
	}
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWS(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	g := gqlRequest{}
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber() // allows us to distinguish ints from floats (see FixNumberVariables)
	if err := decoder.Decode(&g); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Problems parsing JSON"}`))
		return
	}
	FixNumberVariables(g.Variables)

	s.requests.Add(1)
	buf, err := json.Marshal(s.execute(r.Context(), g))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"data": null,"errors": [{"message": "Error encoding JSON response"}]}`))
		return
	}
	_, _ = w.Write(buf)
}

// prepare parses and validates a request, returning the operation to execute and its variables
func (s *Server) prepare(g gqlRequest) (*ast.OperationDefinition, map[string]interface{}, gqlerror.List) {
	doc, errs := gqlparser.LoadQuery(s.schema, g.Query)
	if errs != nil {
		return nil, nil, errs
	}
	def := doc.Operations.ForName(g.OperationName)
	if def == nil {
		return nil, nil, gqlerror.List{gqlerror.Errorf("operation %q not found", g.OperationName)}
	}
	vars, err := validator.VariableValues(s.schema, def, g.Variables)
	if err != nil {
		return nil, nil, gqlerror.List{gqlerror.WrapIfUnwrapped(err)}
	}
	return def, vars, nil
}

// execute runs a query or mutation
func (s *Server) execute(ctx context.Context, g gqlRequest) (r gqlResult) {
	def, vars, errs := s.prepare(g)
	if errs != nil {
		r.Errors = errs
		return
	}

	var root *Object
	switch def.Operation {
	case ast.Query:
		s.mu.RLock()
		defer s.mu.RUnlock()
		root = &Object{Typename: "Query", Fields: map[string]interface{}{"viewer": s.data.viewer()}}
	case ast.Mutation:
		s.mu.Lock()
		defer s.mu.Unlock()
		root = s.mutationRoot()
	default:
		r.Errors = gqlerror.List{gqlerror.Errorf("subscriptions are only supported using a websocket")}
		return
	}

	op := &operation{schema: s.schema, variables: vars}
	data, err := op.selections(ctx, def.SelectionSet, root, nil)
	if err != nil {
		r.Errors = append(op.errors, gqlerror.Errorf("%s", err.Error()))
		return
	}
	r.Data, r.Errors = data, op.errors
	return
}

// mutationRoot returns the root object for mutations (the caller must hold the write lock)
func (s *Server) mutationRoot() *Object {
	return &Object{
		Typename: "Mutation",
		Fields: map[string]interface{}{
			"addStar": Resolver(func(args map[string]interface{}) (interface{}, error) {
				input, _ := args["input"].(map[string]interface{})
				id, _ := input["starrableId"].(string)
				repo, err := s.star(id)
				if err != nil {
					return nil, err
				}
				return &Object{
					Typename: "AddStarPayload",
					Fields: map[string]interface{}{
						"clientMutationId": input["clientMutationId"],
						"starrable":        repo.object(s.data),
					},
				}, nil
			}),
		},
	}
}

// star stars the repository (if not already starred by the viewer) and notifies subscribers
func (s *Server) star(id string) (*Repository, error) {
	repo := s.data.repositoryByID(id)
	if repo == nil {
		return nil, fmt.Errorf("Could not resolve to a node with the global id of '%s'", id)
	}
	if repo.Starred {
		return repo, nil
	}
	repo.Starred = true
	repo.Stars++
	s.publish(repo.Name, &Object{
		Typename: "StarEvent",
		Fields: map[string]interface{}{
			"starredAt":  s.now().UTC(),
			"repository": repo.object(s.data),
		},
	})
	return repo, nil
}

// Star stars the repository with the node ID, as the addStar mutation does
func (s *Server) Star(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.star(id)
	return err
}

func (s *Server) publish(name string, event *Object) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subscribers[name] {
		select {
		case ch <- event:
		default:
			s.log.Warn("star event dropped for slow subscriber", zap.String("repository", name))
		}
	}
}

// subscribe returns a channel that receives star events for the repository and a func to stop
func (s *Server) subscribe(name string) (<-chan *Object, func(), error) {
	s.mu.RLock()
	exists := s.data.repository(name) != nil
	s.mu.RUnlock()
	if !exists {
		return nil, nil, errors.New("Could not resolve to a Repository with the name '" + name + "'.")
	}

	ch := make(chan *Object, eventBuffer)
	s.subsMu.Lock()
	if s.subscribers[name] == nil {
		s.subscribers[name] = make(map[chan *Object]struct{})
	}
	s.subscribers[name][ch] = struct{}{}
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		delete(s.subscribers[name], ch)
		s.subsMu.Unlock()
	}, nil
}

// FixNumberVariables goes through the structure created by the JSON decoder, converting any json.Number values to
// either an int64 or a float64.  This assumes that all the JSON numbers were decoded into a json.Number type, rather
// than int/float, by use of the json.Decode.UseNumber() method.
func FixNumberVariables(m map[string]interface{}) {
	for key, val := range m {
		m[key] = fixNumber(val)
	}
}

func fixNumber(val interface{}) interface{} {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String() // too big for a float - let validation reject it
	case map[string]interface{}:
		FixNumberVariables(v)
	case []interface{}:
		for i, elem := range v {
			v[i] = fixNumber(elem)
		}
	}
	return val
}
