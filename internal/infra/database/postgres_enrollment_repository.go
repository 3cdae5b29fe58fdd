// internal/infra/database/postgres_enrollment_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"training_renewal_service/internal/domain/renewal"

	"github.com/lib/pq" // For pq.Array and driver registration
)

// Custom errors shared by the lane repositories.
var ErrSubjectNotFound = fmt.Errorf("subject not found")

// PostgresEnrollmentRepository is the course lane: user_courses joined to
// courses. A record counts as completed when its status is 'completed'.
type PostgresEnrollmentRepository struct {
	db *sql.DB
}

func NewPostgresEnrollmentRepository(db *sql.DB) *PostgresEnrollmentRepository {
	return &PostgresEnrollmentRepository{db: db}
}

func (r *PostgresEnrollmentRepository) ListRenewalSnapshots(ctx context.Context) ([]renewal.RenewalSnapshot, error) {
	query := `SELECT uc.enrollment_id, uc.certificate_expiry_date, c.notify_days_before, uc.renewal_status
                FROM user_courses uc
                JOIN courses c ON uc.course_id = c.course_id
               WHERE c.is_recurring = TRUE
                 AND uc.status = 'completed'`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing enrollment renewal snapshots: %w", err)
	}
	defer rows.Close()
	return scanRenewalSnapshots(rows)
}

func (r *PostgresEnrollmentRepository) UpdateRenewalStatuses(ctx context.Context, status renewal.Status, recordIDs []int64) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE user_courses SET renewal_status = $1 WHERE enrollment_id = ANY($2)`
	res, err := r.db.ExecContext(ctx, query, status, pq.Array(recordIDs))
	if err != nil {
		return 0, fmt.Errorf("error updating enrollment renewal statuses to %s: %w", status, err)
	}
	return res.RowsAffected()
}

func (r *PostgresEnrollmentRepository) ListReenrollmentCandidates(ctx context.Context, period int) ([]renewal.ReenrollmentCandidate, error) {
	// The NOT EXISTS guard is what makes repeated ticks idempotent: once the
	// renewal record for the period exists, the candidate disappears.
	// DISTINCT ON collapses a user's several expired historical cycles of the
	// same course into one candidate row, keeping the most recent expiry.
	query := `SELECT DISTINCT ON (uc.user_id, uc.course_id)
                     uc.user_id, uc.course_id, c.title, uc.certificate_expiry_date
                FROM user_courses uc
                JOIN courses c ON uc.course_id = c.course_id
               WHERE c.is_recurring = TRUE
                 AND c.is_published = TRUE
                 AND uc.status = 'completed'
                 AND uc.renewal_status = 'expired'
                 AND NOT EXISTS (
                       SELECT 1 FROM user_courses uc2
                        WHERE uc2.user_id = uc.user_id
                          AND uc2.course_id = uc.course_id
                          AND uc2.status IN ('pending', 'active')
                          AND uc2.training_year = $1)
               ORDER BY uc.user_id, uc.course_id, uc.certificate_expiry_date DESC`

	rows, err := r.db.QueryContext(ctx, query, period)
	if err != nil {
		return nil, fmt.Errorf("error listing expired enrollments for re-enrollment: %w", err)
	}
	defer rows.Close()
	return scanReenrollmentCandidates(rows)
}

func (r *PostgresEnrollmentRepository) CreateRenewalRecord(ctx context.Context, userID, subjectID int64, period int) error {
	query := `INSERT INTO user_courses (user_id, course_id, enrollment_date, progress, status, training_year, renewal_status)
               VALUES ($1, $2, NOW(), 0, 'pending', $3, 'valid')`
	if _, err := r.db.ExecContext(ctx, query, userID, subjectID, period); err != nil {
		return fmt.Errorf("error creating renewal enrollment (user %d, course %d, year %d): %w", userID, subjectID, period, err)
	}
	return nil
}

func (r *PostgresEnrollmentRepository) ListReminderCandidates(ctx context.Context) ([]renewal.ReminderCandidate, error) {
	query := `SELECT DISTINCT uc.user_id, uc.course_id, c.title, uc.certificate_expiry_date, uc.renewal_status
                FROM user_courses uc
                JOIN courses c ON uc.course_id = c.course_id
               WHERE c.is_recurring = TRUE
                 AND uc.status = 'completed'
                 AND uc.certificate_expiry_date IS NOT NULL
                 AND uc.renewal_status IN ('due_soon', 'expired')`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing enrollments due for reminder: %w", err)
	}
	defer rows.Close()
	return scanReminderCandidates(rows)
}

func (r *PostgresEnrollmentRepository) RecurrenceConfig(ctx context.Context, subjectID int64) (*renewal.RecurrenceConfig, error) {
	query := `SELECT is_recurring, COALESCE(recurrence_type, ''), COALESCE(recurrence_months, 0), COALESCE(notify_days_before, 30)
                FROM courses WHERE course_id = $1`

	cfg := renewal.RecurrenceConfig{}
	var recurrenceType string
	err := r.db.QueryRowContext(ctx, query, subjectID).Scan(&cfg.IsRecurring, &recurrenceType, &cfg.RecurrenceMonths, &cfg.NotifyDaysBefore)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("error getting course recurrence config: %w", err)
	}
	cfg.RecurrenceType = renewal.RecurrenceType(recurrenceType)
	return &cfg, nil
}

func (r *PostgresEnrollmentRepository) StampExpiry(ctx context.Context, recordID int64, expiry time.Time, period int) error {
	query := `UPDATE user_courses
                 SET certificate_expiry_date = $1, training_year = $2, renewal_status = 'valid'
               WHERE enrollment_id = $3`
	if _, err := r.db.ExecContext(ctx, query, expiry, period, recordID); err != nil {
		return fmt.Errorf("error stamping certificate expiry on enrollment %d: %w", recordID, err)
	}
	return nil
}

func (r *PostgresEnrollmentRepository) Statistics(ctx context.Context) (*renewal.Statistics, error) {
	query := `SELECT COUNT(DISTINCT c.course_id),
                     COUNT(DISTINCT CASE WHEN uc.renewal_status = 'valid' THEN uc.enrollment_id END),
                     COUNT(DISTINCT CASE WHEN uc.renewal_status = 'due_soon' THEN uc.enrollment_id END),
                     COUNT(DISTINCT CASE WHEN uc.renewal_status = 'expired' THEN uc.enrollment_id END)
                FROM courses c
                LEFT JOIN user_courses uc ON c.course_id = uc.course_id AND uc.status = 'completed'
               WHERE c.is_recurring = TRUE`

	stats := renewal.Statistics{}
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.RecurringSubjects, &stats.Valid, &stats.DueSoon, &stats.Expired)
	if err != nil {
		return nil, fmt.Errorf("error getting course renewal statistics: %w", err)
	}
	return &stats, nil
}

// --- shared row scanners ---

func scanRenewalSnapshots(rows *sql.Rows) ([]renewal.RenewalSnapshot, error) {
	snapshots := make([]renewal.RenewalSnapshot, 0)
	for rows.Next() {
		s := renewal.RenewalSnapshot{}
		if err := rows.Scan(&s.RecordID, &s.ExpiryDate, &s.NotifyDaysBefore, &s.RenewalStatus); err != nil {
			return nil, fmt.Errorf("error scanning renewal snapshot row: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating renewal snapshot rows: %w", err)
	}
	return snapshots, nil
}

func scanReenrollmentCandidates(rows *sql.Rows) ([]renewal.ReenrollmentCandidate, error) {
	candidates := make([]renewal.ReenrollmentCandidate, 0)
	for rows.Next() {
		c := renewal.ReenrollmentCandidate{}
		if err := rows.Scan(&c.UserID, &c.SubjectID, &c.SubjectTitle, &c.ExpiryDate); err != nil {
			return nil, fmt.Errorf("error scanning re-enrollment candidate row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating re-enrollment candidate rows: %w", err)
	}
	return candidates, nil
}

func scanReminderCandidates(rows *sql.Rows) ([]renewal.ReminderCandidate, error) {
	candidates := make([]renewal.ReminderCandidate, 0)
	for rows.Next() {
		c := renewal.ReminderCandidate{}
		if err := rows.Scan(&c.UserID, &c.SubjectID, &c.SubjectTitle, &c.ExpiryDate, &c.RenewalStatus); err != nil {
			return nil, fmt.Errorf("error scanning reminder candidate row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder candidate rows: %w", err)
	}
	return candidates, nil
}
