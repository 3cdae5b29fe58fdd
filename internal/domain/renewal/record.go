// internal/domain/renewal/record.go
package renewal

import (
	"database/sql"
	"time"
)

// Lane identifies one of the two parallel processing tracks. Course
// enrollments and passed test attempts are structurally parallel and go
// through identical renewal logic against different tables.
type Lane string

const (
	LaneCourse Lane = "course"
	LaneTest   Lane = "test"
)

// LifecycleStatus is the state of *doing* the work for one cycle.
type LifecycleStatus string

const (
	LifecyclePending   LifecycleStatus = "pending"
	LifecycleActive    LifecycleStatus = "active"
	LifecycleCompleted LifecycleStatus = "completed"
)

// CompletionRecord is one row per (user, subject, training period): a course
// enrollment or a test attempt. ExpiryDate is set once, by the completion
// hook, when the record becomes completed/passed on a recurring subject.
// RenewalStatus is derived and rewritten on every scheduler tick.
type CompletionRecord struct {
	ID            int64
	UserID        int64
	SubjectID     int64 // course_id or test_id depending on lane
	Period        int   // integer year of the cycle
	Status        LifecycleStatus
	Passed        bool // test lane only; course lane uses Status
	ExpiryDate    sql.NullTime
	RenewalStatus Status
	CreatedAt     time.Time
}
