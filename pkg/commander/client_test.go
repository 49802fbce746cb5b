package commander

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")

	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected baseURL %q, got %q", "http://localhost:8080", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestSendReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(LineResponse{Error: "connection_id is required"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Send(context.Background(), "", "HELP")
	if err == nil {
		t.Fatal("expected error for a 400 reply")
	}
}

func TestLineRequestRoundTrip(t *testing.T) {
	req, err := NewLineRequest("c1", "BUY .AAPL 10")
	if err != nil {
		t.Fatalf("NewLineRequest: %v", err)
	}
	connID, text, err := ParseLineRequest(req)
	if err != nil {
		t.Fatalf("ParseLineRequest: %v", err)
	}
	if connID != "c1" || text != "BUY .AAPL 10" {
		t.Errorf("got (%q, %q), want (c1, BUY .AAPL 10)", connID, text)
	}

	empty, _ := structpb.NewStruct(map[string]any{"text": "HELP"})
	if _, _, err := ParseLineRequest(empty); err == nil {
		t.Error("expected error for a request without connection_id")
	}
}

func TestNotificationEncoding(t *testing.T) {
	n := Notification{
		Time:   time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		Source: "auto",
		Text:   "Strategy core: 2 placed, 0 failed, 0 skipped",
	}
	s, err := EncodeNotification(n)
	if err != nil {
		t.Fatalf("EncodeNotification: %v", err)
	}
	got := DecodeNotification(s)
	if !got.Time.Equal(n.Time) || got.Source != n.Source || got.Text != n.Text {
		t.Errorf("got %+v, want %+v", got, n)
	}
}
