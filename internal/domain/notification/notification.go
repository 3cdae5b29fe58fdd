// internal/domain/notification/notification.go
package notification

import (
	"database/sql"
	"time"
)

// Type identifies the kind of reminder or announcement being logged.
type Type string

const (
	TypeAutoEnrolled    Type = "AUTO_ENROLLED"
	TypeTrainingDueSoon Type = "TRAINING_DUE_SOON"
	TypeTestDueSoon     Type = "TEST_DUE_SOON"
)

// Notification is one append-only entry in the 'notifications' table. It is
// both the artifact handed to the delivery layer (external to this service)
// and the de-duplication ledger: the renewal engine emits at most one entry
// per (user, subject, type) per calendar day.
type Notification struct {
	ID        int64
	UserID    int64
	Type      Type
	Message   string
	Link      sql.NullString // in-app destination, e.g. /courses/42
	RelatedID sql.NullString // subject the notification refers to
	IsRead    bool
	CreatedAt time.Time
}
