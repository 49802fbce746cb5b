package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"commander/internal/command"
	"commander/internal/config"
	"commander/internal/notify"
	"commander/internal/session"
	"commander/pkg/commander"
)

// echoBackend renders every command back as text.
type echoBackend struct{}

func (echoBackend) Execute(_ context.Context, cmd command.Command) string {
	return "ran " + command.Render(cmd)
}

func (echoBackend) Preview(_ context.Context, t command.Trade) (string, error) {
	return "preview " + command.Render(t), nil
}

func (echoBackend) Describe(_ context.Context, target command.Target) (string, error) {
	return "about " + target.String(), nil
}

func newTestServer(hub *notify.Hub) (*Server, *session.Manager) {
	sessions := session.NewManager(echoBackend{}, nil)
	return NewServer(config.Server{Host: "127.0.0.1", Port: 0}, sessions, hub, nil), sessions
}

func postLine(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, commander.LineResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/terminal", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out commander.LineResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return rec, out
}

func TestNewServer(t *testing.T) {
	s := NewServer(config.Server{Host: "127.0.0.1", Port: 8080, GRPCPort: 9090}, nil, nil, nil)
	if s.httpAddr != "127.0.0.1:8080" || s.grpcAddr != "127.0.0.1:9090" {
		t.Errorf("addrs = %q, %q", s.httpAddr, s.grpcAddr)
	}
	s = NewServer(config.Server{Host: "127.0.0.1", Port: 8080}, nil, nil, nil)
	if s.grpcAddr != "" {
		t.Errorf("grpcAddr = %q, want disabled", s.grpcAddr)
	}
}

func TestTerminalEndpoint(t *testing.T) {
	s, sessions := newTestServer(nil)
	h := s.Handler()

	rec, out := postLine(t, h, `{"connection_id":"c1","text":"status"}`)
	if rec.Code != http.StatusOK || out.Output != "ran STATUS" {
		t.Errorf("got %d %+v", rec.Code, out)
	}

	_, out = postLine(t, h, `{"connection_id":"c1","text":"buy"}`)
	if !strings.Contains(out.Output, "ticker") {
		t.Errorf("wizard prompt = %q", out.Output)
	}
	if got := sessions.State("c1"); got != session.AwaitSymbol {
		t.Errorf("state = %v, want await-symbol", got)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/terminal/c1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if got := sessions.State("c1"); got != session.Idle {
		t.Errorf("state after disconnect = %v, want idle", got)
	}
}

func TestTerminalEndpointRejectsBadRequests(t *testing.T) {
	s, _ := newTestServer(nil)
	h := s.Handler()

	for _, body := range []string{`not json`, `{"text":"status"}`} {
		rec, out := postLine(t, h, body)
		if rec.Code != http.StatusBadRequest || out.Error == "" {
			t.Errorf("%s: got %d %+v", body, rec.Code, out)
		}
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	hub := notify.NewHub(5)
	hub.Publish("auto", "Strategy core: 1 placed, 0 failed, 0 skipped")
	s, _ := newTestServer(hub)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	var out []commander.Notification
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Source != "auto" {
		t.Errorf("notifications = %+v", out)
	}
}

func TestSDKClient(t *testing.T) {
	s, _ := newTestServer(notify.NewHub(5))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := commander.NewClient(ts.URL + "/")
	out, err := c.Send(context.Background(), "sdk", "orders")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "ran ORDERS" {
		t.Errorf("Send = %q", out)
	}
	if _, err := c.Send(context.Background(), "", "orders"); err == nil {
		t.Error("Send without connection id succeeded")
	}
	if n, err := c.Notifications(context.Background()); err != nil || len(n) != 0 {
		t.Errorf("Notifications = %v, %v", n, err)
	}
}

func TestWebSocketTerminal(t *testing.T) {
	hub := notify.NewHub(5)
	s, sessions := newTestServer(hub)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/terminal", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	var hello Frame
	if err := wsjson.Read(ctx, conn, &hello); err != nil || hello.Type != "hello" || hello.Text == "" {
		t.Fatalf("hello = %+v, %v", hello, err)
	}
	connID := hello.Text

	if err := conn.Write(ctx, websocket.MessageText, []byte("SELL")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var reply Frame
	if err := wsjson.Read(ctx, conn, &reply); err != nil || reply.Type != "output" {
		t.Fatalf("reply = %+v, %v", reply, err)
	}
	if got := sessions.State(connID); got != session.AwaitSymbol {
		t.Errorf("state = %v, want await-symbol", got)
	}

	hub.Publish("system", "Trading mode is now LIVE.")
	var note Frame
	if err := wsjson.Read(ctx, conn, &note); err != nil || note.Type != "notification" || note.Source != "system" {
		t.Fatalf("notification = %+v, %v", note, err)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for sessions.State(connID) != session.Idle && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := sessions.State(connID); got != session.Idle {
		t.Errorf("state after close = %v, want idle", got)
	}
}

func TestGRPCConsole(t *testing.T) {
	hub := notify.NewHub(5)
	s, _ := newTestServer(hub)

	lis := bufconn.Listen(1 << 20)
	gs := s.GRPCServer()
	go gs.Serve(lis)
	defer gs.Stop()

	c, err := commander.DialGRPC("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("DialGRPC: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := c.HandleLine(ctx, "g1", "portfolio")
	if err != nil {
		t.Fatalf("HandleLine: %v", err)
	}
	if out != "ran PORTFOLIO" {
		t.Errorf("HandleLine = %q", out)
	}

	_, err = c.HandleLine(ctx, "", "portfolio")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty connection id: err = %v, want InvalidArgument", err)
	}

	hub.Publish("auto", "tick")
	subCtx, subCancel := context.WithCancel(ctx)
	var got []commander.Notification
	err = c.Subscribe(subCtx, func(n commander.Notification) {
		got = append(got, n)
		subCancel()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(got) != 1 || got[0].Text != "tick" || got[0].Source != "auto" {
		t.Errorf("notifications = %+v", got)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusTeapot, "nope")
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"error":"nope"`)) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
