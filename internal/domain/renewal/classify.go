// internal/domain/renewal/classify.go
package renewal

import (
	"database/sql"
	"math"
	"time"
)

// Status is the tri-state classification of a completion cycle's remaining
// validity. It is always a pure function of (now, expiry, notify window);
// Classify is the only place that computes it.
type Status string

const (
	StatusValid   Status = "valid"
	StatusDueSoon Status = "due_soon"
	StatusExpired Status = "expired"
)

// DaysUntilExpiry returns the number of whole days between now and expiry,
// rounded toward negative infinity. An expiry later today is 0 days away;
// an expiry any amount of time in the past is negative.
func DaysUntilExpiry(now, expiry time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

// Classify maps a record's expiry against the subject's notification window.
//
//	no expiry             -> valid (non-expiring, or not yet completed)
//	d < 0                 -> expired
//	0 <= d <= notifyDays  -> due_soon (inclusive on both bounds)
//	d > notifyDays        -> valid
//
// where d = DaysUntilExpiry(now, expiry). Pure; no I/O.
func Classify(now time.Time, expiry sql.NullTime, notifyDaysBefore int) Status {
	if !expiry.Valid {
		return StatusValid
	}
	d := DaysUntilExpiry(now, expiry.Time)
	switch {
	case d < 0:
		return StatusExpired
	case d <= notifyDaysBefore:
		return StatusDueSoon
	default:
		return StatusValid
	}
}
