// internal/app/renewal_service.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"training_renewal_service/internal/domain/notification"
	"training_renewal_service/internal/domain/renewal"

	"github.com/sirupsen/logrus"
)

// RenewalService defines the operations the scheduler drives once per tick,
// plus the synchronous hook the completion workflow calls and the read-only
// statistics used by dashboards.
type RenewalService interface {
	// Lanes returns the enabled lanes in processing order. A deployment
	// without test-lane renewal columns runs with the course lane only.
	Lanes() []renewal.Lane

	// RefreshRenewalStatuses recomputes and persists renewal_status for every
	// recurring completed record in the lane. Returns rows changed.
	RefreshRenewalStatuses(ctx context.Context, lane renewal.Lane) (int64, error)

	// ProcessExpiredCompletions creates the next cycle's pending record for
	// every expired record lacking one, announcing each via an AUTO_ENROLLED
	// notification. Returns records created.
	ProcessExpiredCompletions(ctx context.Context, lane renewal.Lane) (int, error)

	// SendRenewalReminders emits at most one reminder per (user, subject) per
	// calendar day for records that are due soon or expired. Returns
	// reminders sent.
	SendRenewalReminders(ctx context.Context, lane renewal.Lane) (int, error)

	// LaneStatistics returns the lane's aggregate counts by renewal_status.
	LaneStatistics(ctx context.Context, lane renewal.Lane) (*renewal.Statistics, error)
}

var ErrLaneDisabled = fmt.Errorf("lane is not enabled in this deployment")

// laneRuntime binds one lane's repository to its notification vocabulary.
type laneRuntime struct {
	repo         renewal.CompletionRepository
	reminderType notification.Type
	linkPrefix   string
	subjectNoun  string // "course" or "test", for message text
	renewVerb    string // what the user is asked to do
}

// RenewalServiceImpl implements RenewalService over the per-lane completion
// repositories and the shared notification log.
type RenewalServiceImpl struct {
	lanes     map[renewal.Lane]*laneRuntime
	laneOrder []renewal.Lane
	notifRepo notification.Repository
	logger    *logrus.Logger
	now       func() time.Time
}

// NewRenewalService wires the two lanes. testRepo may be nil for deployments
// whose schema predates recurring-test tracking; the test lane is then
// skipped entirely rather than failing every tick.
func NewRenewalService(
	courseRepo renewal.CompletionRepository,
	testRepo renewal.CompletionRepository,
	notifRepo notification.Repository,
	logger *logrus.Logger,
) *RenewalServiceImpl {
	s := &RenewalServiceImpl{
		lanes:     make(map[renewal.Lane]*laneRuntime),
		notifRepo: notifRepo,
		logger:    logger,
		now:       time.Now,
	}
	s.lanes[renewal.LaneCourse] = &laneRuntime{
		repo:         courseRepo,
		reminderType: notification.TypeTrainingDueSoon,
		linkPrefix:   "/courses/",
		subjectNoun:  "course",
		renewVerb:    "re-enroll",
	}
	s.laneOrder = []renewal.Lane{renewal.LaneCourse}

	if testRepo != nil {
		s.lanes[renewal.LaneTest] = &laneRuntime{
			repo:         testRepo,
			reminderType: notification.TypeTestDueSoon,
			linkPrefix:   "/tests/",
			subjectNoun:  "test",
			renewVerb:    "retake the test",
		}
		s.laneOrder = append(s.laneOrder, renewal.LaneTest)
	} else {
		logger.Info("Test-lane renewal columns not present; test lane disabled for this deployment.")
	}
	return s
}

func (s *RenewalServiceImpl) Lanes() []renewal.Lane {
	return s.laneOrder
}

func (s *RenewalServiceImpl) runtime(lane renewal.Lane) (*laneRuntime, error) {
	rt, ok := s.lanes[lane]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLaneDisabled, lane)
	}
	return rt, nil
}

// RefreshRenewalStatuses loads a snapshot of every recurring completed record
// in the lane, classifies each in-process, and persists the changed rows with
// one grouped update per target status. Keeping the classification in
// renewal.Classify means the bulk write and the per-row reads can never
// disagree about the tri-state boundaries.
func (s *RenewalServiceImpl) RefreshRenewalStatuses(ctx context.Context, lane renewal.Lane) (int64, error) {
	rt, err := s.runtime(lane)
	if err != nil {
		return 0, err
	}

	snapshots, err := rt.repo.ListRenewalSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s renewal snapshots: %w", lane, err)
	}

	now := s.now()
	changes := make(map[renewal.Status][]int64)
	for _, snap := range snapshots {
		next := renewal.Classify(now, snap.ExpiryDate, snap.NotifyDaysBefore)
		if next != snap.RenewalStatus {
			changes[next] = append(changes[next], snap.RecordID)
		}
	}

	var updated int64
	for _, status := range []renewal.Status{renewal.StatusValid, renewal.StatusDueSoon, renewal.StatusExpired} {
		ids := changes[status]
		if len(ids) == 0 {
			continue
		}
		n, err := rt.repo.UpdateRenewalStatuses(ctx, status, ids)
		if err != nil {
			return updated, fmt.Errorf("failed to update %s records to %s: %w", lane, status, err)
		}
		updated += n
	}

	s.logger.Infof("Refreshed renewal status for %d of %d %s records.", updated, len(snapshots), lane)
	return updated, nil
}

// ProcessExpiredCompletions re-enrolls every expired record that has no
// pending or active cycle for the current period. Candidates are isolated:
// one failed insert is logged and skipped, the loop continues.
func (s *RenewalServiceImpl) ProcessExpiredCompletions(ctx context.Context, lane renewal.Lane) (int, error) {
	rt, err := s.runtime(lane)
	if err != nil {
		return 0, err
	}

	period := s.now().Year()
	candidates, err := rt.repo.ListReenrollmentCandidates(ctx, period)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s re-enrollment candidates: %w", lane, err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	s.logger.Infof("Found %d expired %s records needing re-enrollment for %d.", len(candidates), lane, period)

	created := 0
	handled := make(map[[2]int64]bool)
	for _, c := range candidates {
		// At most one renewal record per (user, subject) per pass: a pair
		// with several expired historical cycles yields one new cycle.
		key := [2]int64{c.UserID, c.SubjectID}
		if handled[key] {
			continue
		}
		handled[key] = true

		if err := rt.repo.CreateRenewalRecord(ctx, c.UserID, c.SubjectID, period); err != nil {
			s.logger.Errorf("Failed to re-enroll user %d for %s %d: %v", c.UserID, lane, c.SubjectID, err)
			continue
		}
		created++

		// Best-effort announcement. The re-enrollment stands even if the
		// notification insert fails.
		n := &notification.Notification{
			UserID:    c.UserID,
			Type:      notification.TypeAutoEnrolled,
			Message:   fmt.Sprintf("You have been automatically enrolled in %s %q for the %d training period.", rt.subjectNoun, c.SubjectTitle, period),
			Link:      sql.NullString{String: fmt.Sprintf("%s%d", rt.linkPrefix, c.SubjectID), Valid: true},
			RelatedID: sql.NullString{String: fmt.Sprintf("%d", c.SubjectID), Valid: true},
		}
		if err := s.notifRepo.Create(ctx, n); err != nil {
			s.logger.Warnf("Could not create auto-enrollment notification for user %d, %s %d: %v", c.UserID, lane, c.SubjectID, err)
		}
	}

	s.logger.Infof("Auto-enrolled %d of %d %s candidates.", created, len(candidates), lane)
	return created, nil
}

// SendRenewalReminders emits one reminder per due_soon/expired record, capped
// at one per (user, subject, type) per calendar day by the notification
// ledger. The remaining-days figure is recomputed here from the expiry, not
// taken from the persisted status.
func (s *RenewalServiceImpl) SendRenewalReminders(ctx context.Context, lane renewal.Lane) (int, error) {
	rt, err := s.runtime(lane)
	if err != nil {
		return 0, err
	}

	candidates, err := rt.repo.ListReminderCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s reminder candidates: %w", lane, err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	now := s.now()
	sent := 0
	for _, c := range candidates {
		relatedID := fmt.Sprintf("%d", c.SubjectID)

		exists, err := s.notifRepo.ExistsOnDay(ctx, c.UserID, rt.reminderType, relatedID, now)
		if err != nil {
			s.logger.Errorf("Failed to check today's reminders for user %d, %s %d: %v", c.UserID, lane, c.SubjectID, err)
			continue
		}
		if exists {
			continue
		}

		days := renewal.DaysUntilExpiry(now, c.ExpiryDate)
		n := &notification.Notification{
			UserID:    c.UserID,
			Type:      rt.reminderType,
			Message:   rt.reminderMessage(c.SubjectTitle, days),
			Link:      sql.NullString{String: fmt.Sprintf("%s%d", rt.linkPrefix, c.SubjectID), Valid: true},
			RelatedID: sql.NullString{String: relatedID, Valid: true},
		}
		if err := s.notifRepo.Create(ctx, n); err != nil {
			s.logger.Errorf("Failed to send renewal reminder to user %d for %s %d: %v", c.UserID, lane, c.SubjectID, err)
			continue
		}
		sent++
	}

	s.logger.Infof("Sent %d renewal reminders for %d %s candidates.", sent, len(candidates), lane)
	return sent, nil
}

func (rt *laneRuntime) reminderMessage(title string, days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("Your certification for %s %q has expired. Please %s.", rt.subjectNoun, title, rt.renewVerb)
	case days == 0:
		return fmt.Sprintf("Your certification for %s %q expires today. Please %s.", rt.subjectNoun, title, rt.renewVerb)
	case days == 1:
		return fmt.Sprintf("Your certification for %s %q expires in 1 day. Please %s.", rt.subjectNoun, title, rt.renewVerb)
	default:
		return fmt.Sprintf("Your certification for %s %q expires in %d days. Please %s.", rt.subjectNoun, title, days, rt.renewVerb)
	}
}

// SetExpiryDate is the hook the completion workflow calls synchronously at
// the moment a record becomes completed/passed. For a recurring subject it
// resolves the expiry from the subject's recurrence config, stamps it with
// the current period, and resets renewal_status to valid. For non-recurring
// subjects it is a no-op and returns nil.
func (s *RenewalServiceImpl) SetExpiryDate(ctx context.Context, lane renewal.Lane, recordID, subjectID int64) (*time.Time, error) {
	rt, err := s.runtime(lane)
	if err != nil {
		return nil, err
	}

	cfg, err := rt.repo.RecurrenceConfig(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recurrence config for %s %d: %w", lane, subjectID, err)
	}
	if !cfg.IsRecurring {
		return nil, nil
	}

	completedAt := s.now()
	expiry := renewal.ResolveExpiry(completedAt, *cfg)
	if err := rt.repo.StampExpiry(ctx, recordID, expiry, completedAt.Year()); err != nil {
		return nil, fmt.Errorf("failed to stamp expiry on %s record %d: %w", lane, recordID, err)
	}

	s.logger.Infof("Set expiry %s on %s record %d (subject %d).", expiry.Format(time.RFC3339), lane, recordID, subjectID)
	return &expiry, nil
}

func (s *RenewalServiceImpl) LaneStatistics(ctx context.Context, lane renewal.Lane) (*renewal.Statistics, error) {
	rt, err := s.runtime(lane)
	if err != nil {
		return nil, err
	}
	return rt.repo.Statistics(ctx)
}

// GetStatistics returns the course-lane aggregate snapshot.
func (s *RenewalServiceImpl) GetStatistics(ctx context.Context) (*renewal.Statistics, error) {
	return s.LaneStatistics(ctx, renewal.LaneCourse)
}

// GetTestStatistics returns the test-lane aggregate snapshot, or a zero
// snapshot when the lane is disabled.
func (s *RenewalServiceImpl) GetTestStatistics(ctx context.Context) (*renewal.Statistics, error) {
	stats, err := s.LaneStatistics(ctx, renewal.LaneTest)
	if errors.Is(err, ErrLaneDisabled) {
		return &renewal.Statistics{}, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}
