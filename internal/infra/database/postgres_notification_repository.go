// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"training_renewal_service/internal/domain/notification"
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `INSERT INTO notifications (user_id, type, message, link, related_id, is_read, created_at)
               VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, n.UserID, n.Type, n.Message, n.Link, n.RelatedID).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating notification (user %d, type %s): %w", n.UserID, n.Type, err)
	}
	return nil
}

// ExistsOnDay checks the de-duplication ledger: was an entry of this type,
// for this user and subject, already written on the given calendar day?
func (r *PostgresNotificationRepository) ExistsOnDay(ctx context.Context, userID int64, typ notification.Type, relatedID string, day time.Time) (bool, error) {
	query := `SELECT EXISTS (
                    SELECT 1 FROM notifications
                     WHERE user_id = $1
                       AND type = $2
                       AND related_id = $3
                       AND created_at::date = $4::date)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, userID, typ, relatedID, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking same-day notification (user %d, type %s, related %s): %w", userID, typ, relatedID, err)
	}
	return exists, nil
}
