package mockgithub

// ws.go serves subscriptions over a websocket using the graphql-transport-ws sub-protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

const (
	subprotocol = "graphql-transport-ws"
	initTimeout = 10 * time.Second

	// close codes defined by graphql-transport-ws
	closeInvalidMessage      = 4400
	closeInitTimeout         = 4408
	closeSubscriberExists    = 4409
	closeTooManyInitRequests = 4429
)

type (
	wsConnection struct {
		*websocket.Conn
		s   *Server
		log *zap.Logger

		writeMu sync.Mutex // gorilla websocket allows only one concurrent writer

		// cancelSubscription has the cancel func for each active operation (by ID)
		cancelSubscription map[string]context.CancelFunc
		wg                 sync.WaitGroup
	}

	wsMessage struct {
		Type    string          `json:"type"`
		ID      string          `json:"id,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}
)

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{subprotocol},
}

// serveWS is called in response to a request to upgrade to a websocket
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("websocket upgrade failed", zap.Error(err))
		return // upgrader has already set the HTTP status
	}
	c := &wsConnection{
		Conn:               conn,
		s:                  s,
		log:                s.log.With(zap.String("remote", r.RemoteAddr)),
		cancelSubscription: make(map[string]context.CancelFunc),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		c.wg.Wait()
		if err := c.Close(); err != nil {
			c.log.Debug("websocket close", zap.Error(err))
		}
	}()

	if conn.Subprotocol() != subprotocol {
		c.closeWith(closeInvalidMessage, "unsupported sub-protocol")
		return
	}
	if !c.init() {
		return
	}

	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket read", zap.Error(err))
			}
			return
		}

		switch m.Type {
		case "subscribe":
			if _, ok := c.cancelSubscription[m.ID]; ok {
				c.closeWith(closeSubscriberExists, "Subscriber for "+m.ID+" already exists")
				return
			}
			c.start(ctx, m)
		case "complete":
			c.stop(m.ID)
		case "ping":
			c.write(wsMessage{Type: "pong"})
		case "pong":
		case "connection_init":
			c.closeWith(closeTooManyInitRequests, "Too many initialisation requests")
			return
		default:
			c.closeWith(closeInvalidMessage, "unexpected message type "+m.Type)
			return
		}
	}
}

// init receives connection_init and sends connection_ack
func (c *wsConnection) init() bool {
	_ = c.SetReadDeadline(time.Now().Add(initTimeout))
	var m wsMessage
	if err := c.ReadJSON(&m); err != nil {
		c.closeWith(closeInitTimeout, "Connection initialisation timeout")
		return false
	}
	_ = c.SetReadDeadline(time.Time{})
	if m.Type != "connection_init" {
		c.closeWith(closeInvalidMessage, "expected connection_init")
		return false
	}
	return c.write(wsMessage{Type: "connection_ack"})
}

// start validates the subscription and starts sending events for it
func (c *wsConnection) start(ctx context.Context, m wsMessage) {
	var g gqlRequest
	decoder := json.NewDecoder(bytes.NewReader(m.Payload))
	decoder.UseNumber()
	if err := decoder.Decode(&g); err != nil {
		c.sendErrors(m.ID, gqlerror.List{gqlerror.Errorf("invalid subscribe payload: %v", err)})
		return
	}
	FixNumberVariables(g.Variables)

	def, vars, errs := c.s.prepare(g)
	if errs != nil {
		c.sendErrors(m.ID, errs)
		return
	}
	if def.Operation != ast.Subscription {
		c.sendErrors(m.ID, gqlerror.List{gqlerror.Errorf("only subscriptions are supported on the websocket")})
		return
	}
	root, ok := def.SelectionSet[0].(*ast.Field)
	if !ok {
		c.sendErrors(m.ID, gqlerror.List{gqlerror.Errorf("subscription must select a field")})
		return
	}
	name, _ := root.ArgumentMap(vars)["name"].(string)
	events, unsubscribe, err := c.s.subscribe(name)
	if err != nil {
		c.sendErrors(m.ID, gqlerror.List{gqlerror.ErrorPathf(ast.Path{ast.PathName(root.Alias)}, "%s", err.Error())})
		return
	}
	c.s.requests.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	c.cancelSubscription[m.ID] = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsubscribe()
		c.process(ctx, m.ID, def, vars, events)
	}()
}

// process sends a "next" message for each event until the subscription is stopped
func (c *wsConnection) process(ctx context.Context, id string, def *ast.OperationDefinition,
	vars map[string]interface{}, events <-chan *Object,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			op := &operation{schema: c.s.schema, variables: vars}
			root := &Object{Typename: "Subscription", Fields: map[string]interface{}{"starEvents": event}}
			data, err := op.selections(ctx, def.SelectionSet, root, nil)
			if err != nil {
				return // only fails if ctx is done
			}
			payload, err := json.Marshal(gqlResult{Data: data, Errors: op.errors})
			if err != nil {
				c.log.Error("encoding star event", zap.Error(err))
				continue
			}
			if !c.write(wsMessage{Type: "next", ID: id, Payload: payload}) {
				return
			}
		}
	}
}

// stop ends processing of one operation
func (c *wsConnection) stop(id string) {
	if cancel := c.cancelSubscription[id]; cancel != nil {
		cancel()
		c.cancelSubscription[id] = nil
	}
}

func (c *wsConnection) sendErrors(id string, errs gqlerror.List) {
	payload, err := json.Marshal(errs)
	if err != nil {
		c.log.Error("encoding errors", zap.Error(err))
		return
	}
	c.write(wsMessage{Type: "error", ID: id, Payload: payload})
}

func (c *wsConnection) write(m wsMessage) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.WriteJSON(m); err != nil {
		c.log.Debug("websocket write", zap.Error(err))
		return false
	}
	return true
}

func (c *wsConnection) closeWith(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
