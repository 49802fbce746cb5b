package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"commander/internal/domain"
	"commander/internal/store"
)

// Audit writes the console's event journal and run archive. Either store may
// be nil. Write failures are logged and never reach the user.
type Audit struct {
	journal store.EventJournal
	archive store.RunArchive
	log     *slog.Logger
}

// NewAudit returns an Audit over the given stores.
func NewAudit(journal store.EventJournal, archive store.RunArchive, log *slog.Logger) *Audit {
	if log == nil {
		log = slog.Default()
	}
	return &Audit{journal: journal, archive: archive, log: log.With("component", "audit")}
}

// Journal returns the underlying event journal, or nil.
func (a *Audit) Journal() store.EventJournal {
	if a == nil {
		return nil
	}
	return a.journal
}

// Archive returns the underlying run archive, or nil.
func (a *Audit) Archive() store.RunArchive {
	if a == nil {
		return nil
	}
	return a.archive
}

// Event journals one event.
func (a *Audit) Event(ctx context.Context, kind store.EventKind, mode domain.Mode, source, summary string) {
	if a == nil || a.journal == nil {
		return
	}
	ev := store.Event{Kind: kind, Mode: string(mode), Source: source, Summary: summary}
	if err := a.journal.Record(ctx, ev); err != nil {
		a.log.Warn("journal write failed", "kind", kind, "error", err)
	}
}

// Result journals a single order outcome.
func (a *Audit) Result(ctx context.Context, mode domain.Mode, source string, r domain.OrderResult) {
	kind := store.EventOrderSubmitted
	if r.Outcome != domain.OutcomeSuccess {
		kind = store.EventOrderFailed
	}
	a.Event(ctx, kind, mode, source, r.String())
}

// Run archives every result of a basket or strategy run under one run ID and
// returns that ID.
func (a *Audit) Run(ctx context.Context, kind, name string, mode domain.Mode, results []domain.OrderResult) string {
	runID := uuid.NewString()
	if a == nil || a.archive == nil || len(results) == 0 {
		return runID
	}
	now := time.Now()
	records := make([]store.RunRecord, len(results))
	for i, r := range results {
		qty := ""
		if !r.Qty.IsZero() {
			qty = r.Qty.String()
		}
		records[i] = store.RunRecord{
			RunID:   runID,
			Kind:    kind,
			Name:    name,
			Mode:    string(mode),
			Time:    now,
			Symbol:  r.Symbol,
			Side:    string(r.Side),
			Qty:     qty,
			Outcome: string(r.Outcome),
			OrderID: r.OrderID,
			Reason:  r.Reason,
		}
	}
	if err := a.archive.Append(ctx, records); err != nil {
		a.log.Warn("archive write failed", "run", runID, "error", err)
	}
	return runID
}
