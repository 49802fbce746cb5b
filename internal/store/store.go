// Package store persists the console's audit trail: an event journal of what
// the user and the scheduler did, and a columnar archive of per-leg run
// results. Neither is a source of truth for positions or orders.
package store

import (
	"context"
	"time"
)

// EventKind classifies a journal entry.
type EventKind string

const (
	EventOrderSubmitted EventKind = "order_submitted"
	EventOrderFailed    EventKind = "order_failed"
	EventOrderCancelled EventKind = "order_cancelled"
	EventModeChanged    EventKind = "mode_changed"
	EventAutoChanged    EventKind = "auto_changed"
	EventBasketExecuted EventKind = "basket_executed"
	EventStrategyRun    EventKind = "strategy_run"
)

// Event is one journal entry.
type Event struct {
	ID      int64
	Time    time.Time
	Kind    EventKind
	Mode    string
	Source  string // "user" or "auto"
	Summary string
}

// EventJournal records and lists console events.
type EventJournal interface {
	// Record appends an event. A zero Time is set to now.
	Record(ctx context.Context, ev Event) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// ByDate returns the events of one local calendar day, oldest first.
	ByDate(ctx context.Context, day time.Time) ([]Event, error)
}

// RunRecord is one leg or symbol outcome of a basket or strategy run.
type RunRecord struct {
	RunID   string
	Kind    string // "basket" or "strategy"
	Name    string
	Mode    string
	Time    time.Time
	Symbol  string
	Side    string
	Qty     string
	Outcome string
	OrderID string
	Reason  string
}

// RunArchive stores run results grouped by day.
type RunArchive interface {
	// Append adds records to the archive file of their day.
	Append(ctx context.Context, records []RunRecord) error

	// ReadDay returns all records archived for day.
	ReadDay(ctx context.Context, day time.Time) ([]RunRecord, error)
}
