package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"commander/internal/notify"
	"commander/pkg/commander"
)

// maxLineBytes bounds a terminal request body.
const maxLineBytes = 4 << 10

// handleTerminal runs one console line: POST {connection_id, text} and get
// back {output}.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	var req commander.LineRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLineBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ConnectionID) == "" {
		writeError(w, http.StatusBadRequest, "connection_id is required")
		return
	}
	out := s.sessions.HandleLine(r.Context(), req.ConnectionID, req.Text)
	writeJSON(w, commander.LineResponse{Output: out})
}

// handleDisconnect discards the session state of a request/response client.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.sessions.OnConnectionClosed(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleNotifications returns the retained status lines, oldest first.
func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	out := []commander.Notification{}
	if s.hub != nil {
		for _, m := range s.hub.Recent() {
			out = append(out, toNotification(m))
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func toNotification(m notify.Message) commander.Notification {
	return commander.Notification{Time: m.Time, Source: m.Source, Text: m.Text}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(commander.LineResponse{Error: msg})
}
