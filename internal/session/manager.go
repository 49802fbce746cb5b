// Package session turns raw console lines into replies for each connected
// terminal. Complete commands go straight to the dispatcher; incomplete
// orders are finished through a per-connection Wizard.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"commander/internal/command"
)

// HistorySize is the number of lines remembered per connection.
const HistorySize = 100

// IdleTimeout is how long a connection may stay silent before its wizard and
// history are discarded. Clients that never report a disconnect are cleaned
// up this way.
const IdleTimeout = 30 * time.Minute

const sweepInterval = time.Minute

// Backend executes commands on behalf of sessions.
type Backend interface {
	// Execute runs a complete command and returns the reply text.
	Execute(ctx context.Context, cmd command.Command) string
	// Preview describes a complete trade without placing it.
	Preview(ctx context.Context, t command.Trade) (string, error)
	// Describe validates an order target and returns context for it.
	Describe(ctx context.Context, target command.Target) (string, error)
}

// Manager owns the wizard and line history of every connection. Each
// connection's wizard is only touched by that connection's lines; the maps
// themselves are shared and guarded by mu.
type Manager struct {
	backend Backend
	log     *slog.Logger

	mu        sync.Mutex
	wizards   map[string]*Wizard
	history   map[string][]string
	lastSeen  map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewManager returns a Manager executing commands through backend.
func NewManager(backend Backend, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		backend: backend,
		log:     log.With("component", "session"),
		wizards:  make(map[string]*Wizard),
		history:  make(map[string][]string),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// HandleLine processes one line from connection connID and returns the text
// to display.
func (m *Manager) HandleLine(ctx context.Context, connID, text string) string {
	line := strings.TrimSpace(text)
	m.touch(connID)
	m.remember(connID, line)

	if w := m.wizard(connID); w != nil {
		return m.continueWizard(ctx, connID, w, line)
	}

	cmd := command.Parse(line)
	switch c := cmd.(type) {
	case command.Interactive:
		m.setWizard(connID, &Wizard{State: AwaitSymbol, Side: c.Side})
		return promptTarget

	case command.Trade:
		if c.Complete() {
			break
		}
		w := &Wizard{State: AwaitSymbol, Side: c.Side}
		// A target that fails to describe leaves the wizard asking for one.
		reply, done := w.step(ctx, m.backend, c.Target.String())
		if !done {
			m.setWizard(connID, w)
		}
		return reply
	}

	m.log.Debug("command", "conn", connID, "line", command.Render(cmd))
	return m.backend.Execute(ctx, cmd)
}

func (m *Manager) continueWizard(ctx context.Context, connID string, w *Wizard, line string) string {
	upper := strings.ToUpper(line)
	if upper == "CANCEL" || upper == "EXIT" {
		m.dropWizard(connID)
		return "Order prompt cancelled."
	}
	if first := strings.Fields(upper); len(first) > 0 && (first[0] == "BUY" || first[0] == "SELL") {
		return "An order is already in progress. Finish it or type CANCEL."
	}

	reply, done := w.step(ctx, m.backend, line)
	if done {
		m.dropWizard(connID)
	}
	return reply
}

// OnConnectionClosed discards all state of connID.
func (m *Manager) OnConnectionClosed(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forget(connID)
}

// touch records activity on connID and, at most once per sweepInterval,
// drops connections idle for longer than IdleTimeout.
func (m *Manager) touch(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.lastSeen[connID] = now
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for id, seen := range m.lastSeen {
		if now.Sub(seen) > IdleTimeout {
			m.log.Debug("dropping idle connection", "conn", id, "idle", now.Sub(seen).Round(time.Second))
			m.forget(id)
		}
	}
}

// forget discards all state of connID. Caller holds mu.
func (m *Manager) forget(connID string) {
	delete(m.wizards, connID)
	delete(m.history, connID)
	delete(m.lastSeen, connID)
}

// State returns the wizard state of connID.
func (m *Manager) State(connID string) State {
	if w := m.wizard(connID); w != nil {
		return w.State
	}
	return Idle
}

// History returns the lines connID has entered, oldest first. Consecutive
// duplicates are stored once.
func (m *Manager) History(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history[connID]
	out := make([]string, len(h))
	copy(out, h)
	return out
}

func (m *Manager) remember(connID, line string) {
	if line == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history[connID]
	if n := len(h); n > 0 && h[n-1] == line {
		return
	}
	h = append(h, line)
	if len(h) > HistorySize {
		h = h[len(h)-HistorySize:]
	}
	m.history[connID] = h
}

func (m *Manager) wizard(connID string) *Wizard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wizards[connID]
}

func (m *Manager) setWizard(connID string, w *Wizard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wizards[connID] = w
}

func (m *Manager) dropWizard(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wizards, connID)
}
