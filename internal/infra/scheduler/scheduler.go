// internal/infra/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"training_renewal_service/internal/app"
	"training_renewal_service/internal/domain/renewal"
	"training_renewal_service/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Upper bound on one tick's database work. There is no finer-grained
// cancellation: a stop request lets the in-flight tick finish.
const tickTimeout = 10 * time.Minute

// RenewalScheduler drives the renewal pipeline: once per interval it runs,
// for each lane in order, status refresh, auto re-enrollment, and reminder
// dispatch. Ticks never overlap and are never queued; an invocation that
// finds a tick in flight logs and returns.
type RenewalScheduler struct {
	cronEngine *cron.Cron
	service    app.RenewalService
	logger     *logrus.Logger
	interval   time.Duration
	running    atomic.Bool
	wg         sync.WaitGroup
}

func NewRenewalScheduler(service app.RenewalService, logger *logrus.Logger, interval time.Duration) *RenewalScheduler {
	return &RenewalScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)),
		service:    service,
		logger:     logger,
		interval:   interval,
	}
}

// Start runs one tick immediately and registers the periodic trigger.
func (s *RenewalScheduler) Start() {
	s.logger.Infof("Starting renewal scheduler (tick every %s).", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunScheduledTasks()
	}()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cronEngine.AddFunc(spec, s.RunScheduledTasks); err != nil {
		s.logger.Fatalf("FATAL: Could not register renewal tick job: %v", err)
	}
	s.cronEngine.Start()
}

// Stop cancels future ticks and waits for an in-flight tick to finish,
// whether it was cron-driven, the immediate startup tick, or an on-demand
// trigger.
func (s *RenewalScheduler) Stop() {
	s.logger.Info("Stopping renewal scheduler...")
	ctx := s.cronEngine.Stop() // no new jobs; waits for running cron jobs
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Renewal scheduler stopped.")
}

// RunScheduledTasks executes one tick. Safe to call on demand (operational
// trigger); subject to the same re-entrancy guard as the periodic trigger.
func (s *RenewalScheduler) RunScheduledTasks() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Renewal tick already running, skipping this trigger.")
		metrics.TicksSkippedTotal.Inc()
		return
	}
	// Every tick that wins the guard is tracked, so Stop waits for on-demand
	// ticks the same as scheduled ones.
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.running.Store(false)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	for _, lane := range s.service.Lanes() {
		s.runLane(ctx, lane)
	}

	duration := time.Since(start)
	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(duration.Seconds())
	s.logger.Infof("Renewal tick completed in %.2fs.", duration.Seconds())
}

// runLane executes the lane's three stages in order. A failed stage is
// logged and counted, and the lane moves on: statuses left stale by a failed
// refresh are retried on the next tick, and the stages downstream operate
// only on whatever renewal_status is persisted.
func (s *RenewalScheduler) runLane(ctx context.Context, lane renewal.Lane) {
	s.logger.Infof("Processing %s lane...", lane)

	if changed, err := s.service.RefreshRenewalStatuses(ctx, lane); err != nil {
		s.logger.Errorf("Status refresh failed for %s lane: %v", lane, err)
		metrics.StageFailuresTotal.WithLabelValues(string(lane), "refresh").Inc()
	} else if changed > 0 {
		metrics.StatusesRefreshed.WithLabelValues(string(lane)).Add(float64(changed))
	}

	if created, err := s.service.ProcessExpiredCompletions(ctx, lane); err != nil {
		s.logger.Errorf("Auto re-enrollment failed for %s lane: %v", lane, err)
		metrics.StageFailuresTotal.WithLabelValues(string(lane), "reenroll").Inc()
	} else if created > 0 {
		metrics.AutoEnrollmentsTotal.WithLabelValues(string(lane)).Add(float64(created))
	}

	if sent, err := s.service.SendRenewalReminders(ctx, lane); err != nil {
		s.logger.Errorf("Reminder dispatch failed for %s lane: %v", lane, err)
		metrics.StageFailuresTotal.WithLabelValues(string(lane), "remind").Inc()
	} else if sent > 0 {
		metrics.RemindersSentTotal.WithLabelValues(string(lane)).Add(float64(sent))
	}

	s.exportGauges(ctx, lane)
}

func (s *RenewalScheduler) exportGauges(ctx context.Context, lane renewal.Lane) {
	stats, err := s.service.LaneStatistics(ctx, lane)
	if err != nil {
		s.logger.Warnf("Could not sample %s lane statistics: %v", lane, err)
		return
	}
	metrics.RecordsByStatus.WithLabelValues(string(lane), string(renewal.StatusValid)).Set(float64(stats.Valid))
	metrics.RecordsByStatus.WithLabelValues(string(lane), string(renewal.StatusDueSoon)).Set(float64(stats.DueSoon))
	metrics.RecordsByStatus.WithLabelValues(string(lane), string(renewal.StatusExpired)).Set(float64(stats.Expired))
}
