package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"commander/internal/notify"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 32
)

// Frame is one server-to-client message on the terminal WebSocket. Clients
// send plain text frames, one console line each.
type Frame struct {
	Type   string    `json:"type"` // "hello", "output", "notification"
	Text   string    `json:"text"`
	Source string    `json:"source,omitempty"`
	Time   time.Time `json:"time,omitzero"`
}

// wsClient represents a single WebSocket connection. All writes go through
// send so that one goroutine owns the socket's write side.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan Frame
}

// reply queues a frame that must be delivered, waiting for buffer space.
func (c *wsClient) reply(ctx context.Context, f Frame) {
	select {
	case c.send <- f:
	case <-ctx.Done():
	}
}

// offer queues a frame that may be dropped when the client is slow.
func (c *wsClient) offer(f Frame) {
	select {
	case c.send <- f:
	default:
	}
}

func (c *wsClient) writePump(ctx context.Context) error {
	for {
		select {
		case f := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, c.conn, f)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleWebSocket upgrades the request, assigns the connection a fresh ID and
// feeds every text frame through the session manager. The session is
// discarded when the socket closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxLineBytes)

	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan Frame, wsSendBuffer)}
	defer s.sessions.OnConnectionClosed(c.id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		if err := c.writePump(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug("websocket write failed", "conn", c.id, "error", err)
		}
		cancel()
	}()

	if s.hub != nil {
		subID, ch := s.hub.Subscribe(wsSendBuffer)
		defer s.hub.Unsubscribe(subID)
		go forward(c, ch)
	}

	s.log.Info("terminal connected", "conn", c.id, "remote", r.RemoteAddr)
	c.reply(ctx, Frame{Type: "hello", Text: c.id})

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.log.Debug("websocket read failed", "conn", c.id, "error", err)
			}
			break
		}
		if typ != websocket.MessageText {
			continue
		}
		out := s.sessions.HandleLine(ctx, c.id, string(data))
		c.reply(ctx, Frame{Type: "output", Text: out})
	}
	s.log.Info("terminal disconnected", "conn", c.id)
	conn.Close(websocket.StatusNormalClosure, "")
}

// forward relays hub messages until the subscription is closed.
func forward(c *wsClient, ch <-chan notify.Message) {
	for m := range ch {
		c.offer(Frame{Type: "notification", Text: m.Text, Source: m.Source, Time: m.Time})
	}
}
