// internal/domain/renewal/recurrence.go
package renewal

import "time"

// RecurrenceType describes how often a completed cycle must be redone.
type RecurrenceType string

const (
	RecurrenceCalendarYear RecurrenceType = "calendar_year"
	RecurrenceCustomMonths RecurrenceType = "custom_months"
)

// RecurrenceConfig is the per-subject recurrence attribute set.
type RecurrenceConfig struct {
	IsRecurring      bool
	RecurrenceType   RecurrenceType
	RecurrenceMonths int // used only when RecurrenceType is custom_months
	NotifyDaysBefore int // width of the due_soon window, >= 0
}

// ResolveExpiry computes the expiry instant for a completion cycle.
//
//	calendar_year -> December 31, 23:59:59 of the year containing completedAt
//	custom_months -> completedAt plus RecurrenceMonths calendar months
//
// A malformed RecurrenceType (or custom_months without a positive month
// count) falls back to the calendar_year policy. No side effects: the caller
// persists the result together with the period and a reset renewal status.
func ResolveExpiry(completedAt time.Time, cfg RecurrenceConfig) time.Time {
	if cfg.RecurrenceType == RecurrenceCustomMonths && cfg.RecurrenceMonths > 0 {
		return completedAt.AddDate(0, cfg.RecurrenceMonths, 0)
	}
	return time.Date(completedAt.Year(), time.December, 31, 23, 59, 59, 0, completedAt.Location())
}
