// internal/infra/database/postgres_test_attempt_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"training_renewal_service/internal/domain/renewal"

	"github.com/lib/pq"
)

// PostgresTestAttemptRepository is the test lane: test_attempts joined to
// tests. A record counts as completed only when it was passed, so a failed
// attempt never carries an expiry and never triggers renewal processing.
//
// Construct this repository only when DetectCapabilities reports the
// renewal columns present on test_attempts.
type PostgresTestAttemptRepository struct {
	db *sql.DB
}

func NewPostgresTestAttemptRepository(db *sql.DB) *PostgresTestAttemptRepository {
	return &PostgresTestAttemptRepository{db: db}
}

func (r *PostgresTestAttemptRepository) ListRenewalSnapshots(ctx context.Context) ([]renewal.RenewalSnapshot, error) {
	query := `SELECT ta.attempt_id, ta.expiry_date, t.notify_days_before, ta.renewal_status
                FROM test_attempts ta
                JOIN tests t ON ta.test_id = t.test_id
               WHERE t.is_recurring = TRUE
                 AND ta.status = 'completed'
                 AND ta.passed = TRUE`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing test attempt renewal snapshots: %w", err)
	}
	defer rows.Close()
	return scanRenewalSnapshots(rows)
}

func (r *PostgresTestAttemptRepository) UpdateRenewalStatuses(ctx context.Context, status renewal.Status, recordIDs []int64) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE test_attempts SET renewal_status = $1 WHERE attempt_id = ANY($2)`
	res, err := r.db.ExecContext(ctx, query, status, pq.Array(recordIDs))
	if err != nil {
		return 0, fmt.Errorf("error updating test attempt renewal statuses to %s: %w", status, err)
	}
	return res.RowsAffected()
}

func (r *PostgresTestAttemptRepository) ListReenrollmentCandidates(ctx context.Context, period int) ([]renewal.ReenrollmentCandidate, error) {
	// DISTINCT ON: one candidate row per (user, test) however many expired
	// passed attempts the pair has accumulated.
	query := `SELECT DISTINCT ON (ta.user_id, ta.test_id)
                     ta.user_id, ta.test_id, t.title, ta.expiry_date
                FROM test_attempts ta
                JOIN tests t ON ta.test_id = t.test_id
               WHERE t.is_recurring = TRUE
                 AND ta.status = 'completed'
                 AND ta.passed = TRUE
                 AND ta.renewal_status = 'expired'
                 AND NOT EXISTS (
                       SELECT 1 FROM test_attempts ta2
                        WHERE ta2.user_id = ta.user_id
                          AND ta2.test_id = ta.test_id
                          AND ta2.status IN ('pending', 'active')
                          AND ta2.test_year = $1)
               ORDER BY ta.user_id, ta.test_id, ta.expiry_date DESC`

	rows, err := r.db.QueryContext(ctx, query, period)
	if err != nil {
		return nil, fmt.Errorf("error listing expired test attempts for re-enrollment: %w", err)
	}
	defer rows.Close()
	return scanReenrollmentCandidates(rows)
}

func (r *PostgresTestAttemptRepository) CreateRenewalRecord(ctx context.Context, userID, subjectID int64, period int) error {
	query := `INSERT INTO test_attempts (user_id, test_id, status, passed, test_year, renewal_status, created_at)
               VALUES ($1, $2, 'pending', FALSE, $3, 'valid', NOW())`
	if _, err := r.db.ExecContext(ctx, query, userID, subjectID, period); err != nil {
		return fmt.Errorf("error creating renewal test attempt (user %d, test %d, year %d): %w", userID, subjectID, period, err)
	}
	return nil
}

func (r *PostgresTestAttemptRepository) ListReminderCandidates(ctx context.Context) ([]renewal.ReminderCandidate, error) {
	query := `SELECT DISTINCT ta.user_id, ta.test_id, t.title, ta.expiry_date, ta.renewal_status
                FROM test_attempts ta
                JOIN tests t ON ta.test_id = t.test_id
               WHERE t.is_recurring = TRUE
                 AND ta.status = 'completed'
                 AND ta.passed = TRUE
                 AND ta.expiry_date IS NOT NULL
                 AND ta.renewal_status IN ('due_soon', 'expired')`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing test attempts due for reminder: %w", err)
	}
	defer rows.Close()
	return scanReminderCandidates(rows)
}

func (r *PostgresTestAttemptRepository) RecurrenceConfig(ctx context.Context, subjectID int64) (*renewal.RecurrenceConfig, error) {
	query := `SELECT is_recurring, COALESCE(recurrence_type, ''), COALESCE(recurrence_months, 0), COALESCE(notify_days_before, 30)
                FROM tests WHERE test_id = $1`

	cfg := renewal.RecurrenceConfig{}
	var recurrenceType string
	err := r.db.QueryRowContext(ctx, query, subjectID).Scan(&cfg.IsRecurring, &recurrenceType, &cfg.RecurrenceMonths, &cfg.NotifyDaysBefore)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting test recurrence config: %w", err)
	}
	cfg.RecurrenceType = renewal.RecurrenceType(recurrenceType)
	return &cfg, nil
}

func (r *PostgresTestAttemptRepository) StampExpiry(ctx context.Context, recordID int64, expiry time.Time, period int) error {
	query := `UPDATE test_attempts
                 SET expiry_date = $1, test_year = $2, renewal_status = 'valid'
               WHERE attempt_id = $3`
	if _, err := r.db.ExecContext(ctx, query, expiry, period, recordID); err != nil {
		return fmt.Errorf("error stamping expiry on test attempt %d: %w", recordID, err)
	}
	return nil
}

func (r *PostgresTestAttemptRepository) Statistics(ctx context.Context) (*renewal.Statistics, error) {
	query := `SELECT COUNT(DISTINCT t.test_id),
                     COUNT(DISTINCT CASE WHEN ta.renewal_status = 'valid' THEN ta.attempt_id END),
                     COUNT(DISTINCT CASE WHEN ta.renewal_status = 'due_soon' THEN ta.attempt_id END),
                     COUNT(DISTINCT CASE WHEN ta.renewal_status = 'expired' THEN ta.attempt_id END)
                FROM tests t
                LEFT JOIN test_attempts ta ON t.test_id = ta.test_id AND ta.status = 'completed' AND ta.passed = TRUE
               WHERE t.is_recurring = TRUE`

	stats := renewal.Statistics{}
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.RecurringSubjects, &stats.Valid, &stats.DueSoon, &stats.Expired)
	if err != nil {
		return nil, fmt.Errorf("error getting test renewal statistics: %w", err)
	}
	return &stats, nil
}
