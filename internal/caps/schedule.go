package caps

import (
	"context"
	"sync"
	"time"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/infrastructure/monitoring"
	"github.com/latticehq/lattice/internal/shared/id"
	"go.uber.org/zap"
)

// Runner executes a scheduled entry point. The server wires this to the
// broker so every scheduled run gets a fresh bundle and a fresh session
// rather than reusing the one that registered the job.
type Runner func(ctx context.Context, userID, appID, method string, params map[string]interface{}) error

// Scheduler is the long-lived in-process timer service behind the
// schedule capability. Jobs are not persisted; they die with the
// process.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]chan struct{} // jobID -> stop
	runner  Runner
	logger  *logging.Logger
	metrics *monitoring.Metrics

	done   chan struct{}
	closed bool
}

// NewScheduler creates a scheduler dispatching through runner.
func NewScheduler(runner Runner, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		jobs:   make(map[string]chan struct{}),
		runner: runner,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// WithMetrics adds metrics tracking to the scheduler.
func (s *Scheduler) WithMetrics(metrics *monitoring.Metrics) *Scheduler {
	s.metrics = metrics
	return s
}

// Close stops every job and rejects new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for jobID, stop := range s.jobs {
		close(stop)
		delete(s.jobs, jobID)
	}
	if s.metrics != nil {
		s.metrics.JobsActive.Set(0)
	}
}

func (s *Scheduler) register() (string, chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", nil, false
	}
	jobID := id.NewJob()
	stop := make(chan struct{})
	s.jobs[jobID] = stop
	if s.metrics != nil {
		s.metrics.JobsActive.Inc()
	}
	return jobID, stop, true
}

func (s *Scheduler) remove(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stop, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	close(stop)
	delete(s.jobs, jobID)
	if s.metrics != nil {
		s.metrics.JobsActive.Dec()
	}
	return true
}

// forget drops bookkeeping for a job that finished on its own.
func (s *Scheduler) forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; ok {
		delete(s.jobs, jobID)
		if s.metrics != nil {
			s.metrics.JobsActive.Dec()
		}
	}
}

func (s *Scheduler) run(userID, appID, method string, params map[string]interface{}) {
	err := s.runner(context.Background(), userID, appID, method, params)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.Warn("scheduled run failed",
			zap.String("user_id", userID), zap.String("app_id", appID),
			zap.String("method", method), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(outcome).Inc()
	}
}

// Schedule is the per-bundle capability over the shared scheduler.
type Schedule struct {
	bundle *broker.Context
	sched  *Scheduler
}

// NewScheduleBuilder returns a schedule capability builder bound to a
// scheduler.
func NewScheduleBuilder(sched *Scheduler) func(*broker.Context) broker.Schedule {
	return func(bundle *broker.Context) broker.Schedule {
		return &Schedule{bundle: bundle, sched: sched}
	}
}

// At runs method once at t.
func (c *Schedule) At(t time.Time, method string, params map[string]interface{}) (string, error) {
	jobID, stop, ok := c.sched.register()
	if !ok {
		return "", context.Canceled
	}
	userID, appID := c.bundle.UserID(), c.bundle.AppID()

	go func() {
		timer := time.NewTimer(time.Until(t))
		defer timer.Stop()
		select {
		case <-timer.C:
			c.sched.forget(jobID)
			c.sched.run(userID, appID, method, params)
		case <-stop:
		case <-c.sched.done:
		}
	}()
	return jobID, nil
}

// Every runs method repeatedly at the given interval until cancelled.
func (c *Schedule) Every(interval time.Duration, method string, params map[string]interface{}) (string, error) {
	jobID, stop, ok := c.sched.register()
	if !ok {
		return "", context.Canceled
	}
	userID, appID := c.bundle.UserID(), c.bundle.AppID()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sched.run(userID, appID, method, params)
			case <-stop:
				return
			case <-c.sched.done:
				return
			}
		}
	}()
	return jobID, nil
}

// Cancel stops a job. Returns false if the job is unknown or done.
func (c *Schedule) Cancel(jobID string) bool {
	return c.sched.remove(jobID)
}
