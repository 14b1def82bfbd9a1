package domain

import "cloud.google.com/go/civil"

// Settings holds per-owner configuration. LastDailyRun is the settlement
// watermark: the single source of truth for "has settlement already run for
// day D". It is owned exclusively by the settlement processor.
type Settings struct {
	OwnerID         string
	DefaultCurrency string
	// ProjectionDays is how far ahead balance projections look by default.
	ProjectionDays int
	LastDailyRun   *civil.Date
}

// SettledOn reports whether settlement has already completed for the given day.
func (s *Settings) SettledOn(day civil.Date) bool {
	return s.LastDailyRun != nil && *s.LastDailyRun == day
}
