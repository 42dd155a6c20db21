package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/posener/wstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/andrewwphillips/ghgql/internal/transport"
)

type testMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsServer is a minimal graphql-transport-ws server.  After the handshake it sends a ping then
// the "next" payloads, then either completes, sends an error, or waits for the client's complete.
type wsServer struct {
	t        *testing.T
	payloads []string
	errorMsg string                // if not empty an error message is sent after the payloads
	wait     bool                  // wait for the client to send complete
	auth     chan string           // receives the Authorization header
	received chan testMessage      // receives messages sent by the client after subscribe
	upgrader websocket.Upgrader
}

func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.auth <- r.Header.Get("Authorization")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	var m testMessage
	if err := conn.ReadJSON(&m); err != nil || m.Type != "connection_init" {
		s.t.Errorf("expected connection_init got %v %v", m, err)
		return
	}
	_ = conn.WriteJSON(testMessage{Type: "connection_ack"})

	if err := conn.ReadJSON(&m); err != nil || m.Type != "subscribe" {
		s.t.Errorf("expected subscribe got %v %v", m, err)
		return
	}
	id := m.ID

	_ = conn.WriteJSON(testMessage{Type: "ping"})
	for _, p := range s.payloads {
		_ = conn.WriteJSON(testMessage{Type: "next", ID: id, Payload: json.RawMessage(p)})
	}
	switch {
	case s.errorMsg != "":
		_ = conn.WriteJSON(testMessage{Type: "error", ID: id, Payload: json.RawMessage(s.errorMsg)})
	case s.wait:
		for {
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			s.received <- m
		}
	default:
		_ = conn.WriteJSON(testMessage{Type: "complete", ID: id})
	}
	// read until the client closes (answering nothing)
	for {
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		if m.Type != "pong" {
			s.received <- m
		}
	}
}

func newWSServer(t *testing.T) *wsServer {
	return &wsServer{
		t:        t,
		auth:     make(chan string, 1),
		received: make(chan testMessage, 10),
		upgrader: websocket.Upgrader{Subprotocols: []string{transport.Subprotocol}},
	}
}

func collect(t *testing.T, ch <-chan transport.Message) []transport.Message {
	var r []transport.Message
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return r
			}
			r = append(r, m)
		case <-timeout:
			t.Fatal("subscription did not end")
		}
	}
}

func TestSubscribe(t *testing.T) {
	s := newWSServer(t)
	s.payloads = []string{`{"data":{"n":1}}`, `{"data":{"n":2}}`}

	ch, err := transport.Subscribe(context.Background(), wstest.NewDialer(s), "ws://example/graphql",
		transport.AuthHeader("tok"), transport.SubscribeRequest{Query: "subscription { n }"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "bearer tok", <-s.auth)

	got := collect(t, ch)
	require.Len(t, got, 2)
	for i, m := range got {
		assert.NoError(t, m.Err)
		assert.JSONEq(t, s.payloads[i], string(m.Payload))
	}
}

func TestSubscribeError(t *testing.T) {
	s := newWSServer(t)
	s.payloads = []string{`{"data":{"n":1}}`}
	s.errorMsg = `[{"message":"no such repository"}]`

	ch, err := transport.Subscribe(context.Background(), wstest.NewDialer(s), "ws://example/graphql",
		nil, transport.SubscribeRequest{Query: "subscription { n }"}, nil)
	require.NoError(t, err)
	<-s.auth

	got := collect(t, ch)
	require.Len(t, got, 2)
	assert.NoError(t, got[0].Err)
	var list gqlerror.List
	require.ErrorAs(t, got[1].Err, &list)
	assert.Equal(t, "no such repository", list[0].Message)
}

func TestSubscribeCancel(t *testing.T) {
	s := newWSServer(t)
	s.payloads = []string{`{"data":{"n":1}}`}
	s.wait = true

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := transport.Subscribe(ctx, wstest.NewDialer(s), "ws://example/graphql",
		nil, transport.SubscribeRequest{Query: "subscription { n }"}, nil)
	require.NoError(t, err)
	<-s.auth

	m := <-ch
	assert.NoError(t, m.Err)
	cancel()

	select {
	case m := <-s.received:
		if m.Type == "pong" { // the server's ping may be answered first
			m = <-s.received
		}
		assert.Equal(t, "complete", m.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive complete")
	}
	collect(t, ch) // channel must be closed
}
