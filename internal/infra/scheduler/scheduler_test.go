package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"training_renewal_service/internal/domain/renewal"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService records stage invocations and can block or fail the refresh
// stage to exercise the tick guard.
type stubService struct {
	mu         sync.Mutex
	calls      []string
	lanes      []renewal.Lane
	refreshErr error

	// When set, the first refresh blocks until released.
	blockRefresh chan struct{}
	started      chan struct{}
	blockOnce    sync.Once
}

func newStubService(lanes ...renewal.Lane) *stubService {
	return &stubService{lanes: lanes}
}

func (s *stubService) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubService) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *stubService) Lanes() []renewal.Lane { return s.lanes }

func (s *stubService) RefreshRenewalStatuses(ctx context.Context, lane renewal.Lane) (int64, error) {
	s.record("refresh:" + string(lane))
	if s.blockRefresh != nil {
		s.blockOnce.Do(func() {
			close(s.started)
			<-s.blockRefresh
		})
	}
	return 0, s.refreshErr
}

func (s *stubService) ProcessExpiredCompletions(ctx context.Context, lane renewal.Lane) (int, error) {
	s.record("reenroll:" + string(lane))
	return 0, nil
}

func (s *stubService) SendRenewalReminders(ctx context.Context, lane renewal.Lane) (int, error) {
	s.record("remind:" + string(lane))
	return 0, nil
}

func (s *stubService) LaneStatistics(ctx context.Context, lane renewal.Lane) (*renewal.Statistics, error) {
	s.record("stats:" + string(lane))
	return &renewal.Statistics{}, nil
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRunScheduledTasks_StageOrderPerLane(t *testing.T) {
	svc := newStubService(renewal.LaneCourse, renewal.LaneTest)
	s := NewRenewalScheduler(svc, discardLogger(), time.Hour)

	s.RunScheduledTasks()

	assert.Equal(t, []string{
		"refresh:course", "reenroll:course", "remind:course", "stats:course",
		"refresh:test", "reenroll:test", "remind:test", "stats:test",
	}, svc.recorded())
}

func TestRunScheduledTasks_SkipsWhileTickInFlight(t *testing.T) {
	svc := newStubService(renewal.LaneCourse)
	svc.blockRefresh = make(chan struct{})
	svc.started = make(chan struct{})
	s := NewRenewalScheduler(svc, discardLogger(), time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunScheduledTasks()
	}()

	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never started")
	}

	// Overlapping trigger must return immediately without running stages.
	s.RunScheduledTasks()

	refreshes := 0
	for _, c := range svc.recorded() {
		if c == "refresh:course" {
			refreshes++
		}
	}
	assert.Equal(t, 1, refreshes, "overlapping tick must be skipped, not queued")

	close(svc.blockRefresh)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never finished")
	}
}

func TestRunScheduledTasks_GuardReleasedAfterStageFailure(t *testing.T) {
	svc := newStubService(renewal.LaneCourse)
	svc.refreshErr = fmt.Errorf("database down")
	s := NewRenewalScheduler(svc, discardLogger(), time.Hour)

	s.RunScheduledTasks()
	s.RunScheduledTasks()

	refreshes := 0
	for _, c := range svc.recorded() {
		if c == "refresh:course" {
			refreshes++
		}
	}
	assert.Equal(t, 2, refreshes, "a failed tick must not block future ticks")
}

func TestRunScheduledTasks_FailedRefreshStillRunsRemainingStages(t *testing.T) {
	svc := newStubService(renewal.LaneCourse)
	svc.refreshErr = fmt.Errorf("database down")
	s := NewRenewalScheduler(svc, discardLogger(), time.Hour)

	s.RunScheduledTasks()

	calls := svc.recorded()
	require.Contains(t, calls, "reenroll:course")
	require.Contains(t, calls, "remind:course")
}

func TestStop_WaitsForOnDemandTick(t *testing.T) {
	svc := newStubService(renewal.LaneCourse)
	svc.blockRefresh = make(chan struct{})
	svc.started = make(chan struct{})
	s := NewRenewalScheduler(svc, discardLogger(), time.Hour)

	// An on-demand tick, fired the way the ops trigger endpoint does it.
	go s.RunScheduledTasks()
	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("on-demand tick never started")
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.Stop()
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an on-demand tick was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(svc.blockRefresh)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the on-demand tick finished")
	}
}

func TestStartAndStop_WaitForInFlightTick(t *testing.T) {
	svc := newStubService(renewal.LaneCourse)
	svc.blockRefresh = make(chan struct{})
	svc.started = make(chan struct{})
	s := NewRenewalScheduler(svc, discardLogger(), time.Hour)

	s.Start()
	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate tick never started")
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.Stop()
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(svc.blockRefresh)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the tick finished")
	}
}
