package transport

// ws.go is a client for GraphQL subscriptions using the graphql-transport-ws websocket sub-protocol:
//   client -> connection_init, server -> connection_ack
//   client -> subscribe (with a unique ID), server -> next (zero or more) then complete or error
//   either side may send ping which must be answered by a pong
//   client -> complete to stop the subscription early

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

const (
	// Subprotocol is the websocket sub-protocol name of the graphql-ws transport
	Subprotocol = "graphql-transport-ws"

	defaultAckTimeout = 10 * time.Second // how long to wait for connection_ack after connection_init
)

type (
	wsMessage struct {
		Type    string          `json:"type"`
		ID      string          `json:"id,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	// SubscribeRequest is the payload of the subscribe message
	SubscribeRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName,omitempty"`
		Variables     map[string]interface{} `json:"variables,omitempty"`
	}

	// Message holds the payload of one "next" message or the error that ended the subscription
	Message struct {
		Payload json.RawMessage
		Err     error
	}

	subscription struct {
		conn *websocket.Conn
		id   string
		log  *zap.Logger
	}
)

// ErrConnectionRejected is returned if the server does not acknowledge the connection_init message
var ErrConnectionRejected = errors.New("subscription connection not acknowledged")

// Subscribe opens a websocket to url, sends the subscription request and returns a channel that
// receives the results.  The channel is closed when the server completes the subscription, an
// error occurs (which is sent as the last Message), or ctx is cancelled (whence the server is
// sent a complete message).  The header should contain the Authorization header (see AuthHeader).
func Subscribe(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header,
	req SubscribeRequest, log *zap.Logger,
) (<-chan Message, error) {
	d := websocket.Dialer{}
	if dialer != nil {
		d = *dialer // copy so we can set the sub-protocol without affecting the caller
	}
	d.Subprotocols = []string{Subprotocol}
	if log == nil {
		log = zap.NewNop()
	}

	conn, resp, err := d.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing subscription endpoint (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing subscription endpoint: %w", err)
	}

	s := &subscription{conn: conn, id: uuid.NewString(), log: log}
	if err := s.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("encoding subscription request: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: s.id, Payload: payload}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sending subscribe message: %w", err)
	}

	out := make(chan Message)
	go s.run(ctx, out)
	return out, nil
}

// init sends connection_init and waits for connection_ack (answering any pings)
func (s *subscription) init() error {
	if err := s.conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		return fmt.Errorf("sending connection_init: %w", err)
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(defaultAckTimeout))
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	for {
		var m wsMessage
		if err := s.conn.ReadJSON(&m); err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionRejected, err)
		}
		switch m.Type {
		case "connection_ack":
			return nil
		case "ping":
			if err := s.conn.WriteJSON(wsMessage{Type: "pong"}); err != nil {
				return fmt.Errorf("sending pong: %w", err)
			}
		default:
			return fmt.Errorf("%w: got %q", ErrConnectionRejected, m.Type)
		}
	}
}

// run reads messages (in a separate goroutine) and passes them on until the subscription ends.
// All writes to the websocket are done from this goroutine.
func (s *subscription) run(ctx context.Context, out chan<- Message) {
	defer close(out)
	defer func() {
		if err := s.conn.Close(); err != nil {
			s.log.Debug("subscription close", zap.Error(err))
		}
	}()

	incoming := make(chan wsMessage)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			var m wsMessage
			if err := s.conn.ReadJSON(&m); err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- m:
			case <-done:
				return
			}
		}
	}()

	send := func(m Message) bool {
		select {
		case out <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteJSON(wsMessage{Type: "complete", ID: s.id})
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				send(Message{Err: fmt.Errorf("subscription read: %w", err)})
			}
			return

		case m := <-incoming:
			switch m.Type {
			case "next":
				if m.ID != s.id {
					s.log.Warn("subscription message with unexpected ID", zap.String("id", m.ID))
					continue
				}
				if !send(Message{Payload: m.Payload}) {
					continue // ctx is done - handled at top of loop
				}
			case "error":
				send(Message{Err: decodeErrors(m.Payload)})
				return
			case "complete":
				return
			case "ping":
				if err := s.conn.WriteJSON(wsMessage{Type: "pong"}); err != nil {
					send(Message{Err: fmt.Errorf("sending pong: %w", err)})
					return
				}
			case "pong":
			default:
				s.log.Warn("unexpected subscription message", zap.String("type", m.Type))
			}
		}
	}
}

// decodeErrors converts the payload of an error message (a list of GraphQL errors) to an error
func decodeErrors(payload json.RawMessage) error {
	var list gqlerror.List
	if err := json.Unmarshal(payload, &list); err != nil || len(list) == 0 {
		return fmt.Errorf("subscription error: %s", string(payload))
	}
	return list
}
