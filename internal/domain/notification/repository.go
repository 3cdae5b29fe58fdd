// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Repository defines persistence for the notification log.
type Repository interface {
	Create(ctx context.Context, n *Notification) error

	// ExistsOnDay reports whether a notification of the given type, for the
	// given user and related subject, was already created on the calendar day
	// containing 'day'.
	ExistsOnDay(ctx context.Context, userID int64, typ Type, relatedID string, day time.Time) (bool, error)
}
