// internal/domain/renewal/repository.go
package renewal

import (
	"context"
	"database/sql"
	"time"
)

// RenewalSnapshot is the minimal projection the status refresher needs:
// the record's expiry, its subject's notify window, and the currently
// persisted status (so unchanged rows can be skipped).
type RenewalSnapshot struct {
	RecordID         int64
	ExpiryDate       sql.NullTime
	NotifyDaysBefore int
	RenewalStatus    Status
}

// ReenrollmentCandidate is an expired record whose (user, subject) has no
// pending or active record for the current period.
type ReenrollmentCandidate struct {
	UserID       int64
	SubjectID    int64
	SubjectTitle string
	ExpiryDate   sql.NullTime
}

// ReminderCandidate is a due_soon or expired record eligible for a reminder.
// ExpiryDate is non-null by construction of the candidate query.
type ReminderCandidate struct {
	UserID        int64
	SubjectID     int64
	SubjectTitle  string
	ExpiryDate    time.Time
	RenewalStatus Status
}

// Statistics is a read-only aggregate snapshot for one lane.
type Statistics struct {
	RecurringSubjects int `json:"recurring_subjects"`
	Valid             int `json:"valid"`
	DueSoon           int `json:"due_soon"`
	Expired           int `json:"expired"`
}

// CompletionRepository is the per-lane store contract. Both lanes expose the
// same operations over their own tables; only the tables and the completion
// predicate differ.
type CompletionRepository interface {
	// ListRenewalSnapshots returns every completed/passed record of a
	// recurring subject in this lane.
	ListRenewalSnapshots(ctx context.Context) ([]RenewalSnapshot, error)

	// UpdateRenewalStatuses sets renewal_status on the given records in one
	// statement. It touches nothing else. Returns rows affected.
	UpdateRenewalStatuses(ctx context.Context, status Status, recordIDs []int64) (int64, error)

	// ListReenrollmentCandidates returns expired records lacking a pending or
	// active record for the same (user, subject) in the given period.
	ListReenrollmentCandidates(ctx context.Context, period int) ([]ReenrollmentCandidate, error)

	// CreateRenewalRecord inserts the next cycle's record: pending, the given
	// period, renewal_status valid, no expiry.
	CreateRenewalRecord(ctx context.Context, userID, subjectID int64, period int) error

	// ListReminderCandidates returns due_soon and expired records with their
	// expiry dates. De-duplication against today's notifications is the
	// caller's concern.
	ListReminderCandidates(ctx context.Context) ([]ReminderCandidate, error)

	// RecurrenceConfig loads the subject's recurrence attribute set.
	RecurrenceConfig(ctx context.Context, subjectID int64) (*RecurrenceConfig, error)

	// StampExpiry persists expiry date and period on a record and resets its
	// renewal_status to valid. Invoked only by the completion hook.
	StampExpiry(ctx context.Context, recordID int64, expiry time.Time, period int) error

	// Statistics returns the lane's aggregate counts by renewal_status.
	Statistics(ctx context.Context) (*Statistics, error)
}
