package util

import (
	"time"
)

// MarketHours answers whether the US equity market's regular session is open.
// It knows weekends and the 9:30-16:00 ET window but not exchange holidays;
// callers that need holidays should ask the broker's clock.
type MarketHours struct {
	loc *time.Location
}

// NewMarketHours loads the America/New_York zone. If the zone database is
// unavailable it falls back to a fixed UTC-5 offset.
func NewMarketHours() *MarketHours {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*60*60)
	}
	return &MarketHours{loc: loc}
}

// IsOpen reports whether t falls inside a regular trading session.
func (m *MarketHours) IsOpen(t time.Time) bool {
	et := t.In(m.loc)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, m.loc)
	closeAt := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, m.loc)
	return !et.Before(open) && et.Before(closeAt)
}

// NextOpen returns the next regular session open at or after t.
func (m *MarketHours) NextOpen(t time.Time) time.Time {
	et := t.In(m.loc)
	for i := 0; i < 8; i++ {
		day := et.AddDate(0, 0, i)
		open := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, m.loc)
		if open.Weekday() == time.Saturday || open.Weekday() == time.Sunday {
			continue
		}
		if !open.Before(et) {
			return open
		}
	}
	return time.Time{}
}
