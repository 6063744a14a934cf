// Package scheduler runs the periodic maintenance jobs. A single
// loop wakes on a coarse tick, runs every job whose time has come,
// and reschedules it whether it succeeded or not.
package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/errors"
	"github.com/docpulse/runtime-node/internal/metrics"
	"github.com/docpulse/runtime-node/internal/model"
)

// JobFunc is a maintenance job body. The context is cancelled when
// the scheduler stops.
type JobFunc func(ctx context.Context) error

type job struct {
	name      string
	spec      string
	interval  time.Duration
	fn        JobFunc
	nextRunAt time.Time
	lastRunAt time.Time
	lastError string
	runs      uint64
	failures  uint64
}

// Scheduler owns the job table and the tick loop. Jobs run
// sequentially in registration order; a slow job delays the ones
// behind it rather than running concurrently with them.
type Scheduler struct {
	mu    sync.Mutex
	jobs  map[string]*job
	order []string

	tick    time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// New creates a scheduler that wakes every tick
func New(tick time.Duration, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		jobs:    make(map[string]*job),
		tick:    tick,
		now:     time.Now,
		logger:  logger,
		metrics: m,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Schedule registers a job under a unique name. The first run is one
// interval after registration.
func (s *Scheduler) Schedule(name, spec string, fn JobFunc) error {
	if name == "" {
		return errors.InvalidArgument("job name cannot be empty", nil)
	}
	if fn == nil {
		return errors.InvalidArgument("job function cannot be nil", nil)
	}
	interval, err := ParseInterval(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return errors.DuplicateJob(name)
	}

	s.jobs[name] = &job{
		name:      name,
		spec:      spec,
		interval:  interval,
		fn:        fn,
		nextRunAt: s.now().Add(interval),
	}
	s.order = append(s.order, name)

	s.logger.Info("scheduled maintenance job",
		zap.String("job", name),
		zap.String("spec", spec),
		zap.Duration("interval", interval))
	return nil
}

// Unschedule removes a job. It is idempotent: unscheduling a name
// that is not in the table is a no-op. A job currently mid-run
// finishes, it is just never rescheduled.
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; !exists {
		return
	}
	delete(s.jobs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Info("unscheduled maintenance job", zap.String("job", name))
}

// ListJobs returns an inspection snapshot of every job, sorted by name
func (s *Scheduler) ListJobs() []model.JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, model.JobInfo{
			Name:      j.name,
			Spec:      j.spec,
			Interval:  j.interval,
			NextRunAt: j.nextRunAt,
			LastRunAt: j.lastRunAt,
			LastError: j.lastError,
			Runs:      j.runs,
			Failures:  j.failures,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Start launches the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop shuts the loop down and waits for an in-flight job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("maintenance scheduler started", zap.Duration("tick", s.tick))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped", zap.String("reason", "context cancelled"))
			return
		case <-s.stopCh:
			s.logger.Info("maintenance scheduler stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue executes every job whose nextRunAt has passed, sequentially
// in registration order, then reschedules each one. Rescheduling does
// not depend on the outcome: a failing job keeps its cadence.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*job
	for _, name := range s.order {
		j := s.jobs[name]
		if !now.Before(j.nextRunAt) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		start := s.now()
		err := s.execute(ctx, j)
		elapsed := s.now().Sub(start)

		if s.metrics != nil {
			s.metrics.RecordJobRun(j.name, elapsed, err)
		}

		s.mu.Lock()
		// Pointer identity, not bare existence: the name may have been
		// unscheduled and rescheduled while this run was in flight, and
		// the fresh entry keeps its own schedule.
		if cur, still := s.jobs[j.name]; !still || cur != j {
			s.mu.Unlock()
			continue
		}
		j.lastRunAt = start
		j.runs++
		if err != nil {
			j.failures++
			j.lastError = err.Error()
			s.logger.Error("maintenance job failed",
				zap.String("job", j.name),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		} else {
			j.lastError = ""
			s.logger.Debug("maintenance job completed",
				zap.String("job", j.name),
				zap.Duration("elapsed", elapsed))
		}
		for !j.nextRunAt.After(s.now()) {
			j.nextRunAt = j.nextRunAt.Add(j.interval)
		}
		s.mu.Unlock()
	}
}

// execute runs one job, converting a panic into an error so a bad
// job cannot take the loop down.
func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.JobExecution(j.name, fmt.Errorf("panic: %v", r))
		}
	}()
	return j.fn(ctx)
}

var everyPattern = regexp.MustCompile(`^every_(\d+)_(seconds?|minutes?|hours?)$`)

// ParseInterval converts a job interval spec to a duration. Accepted
// forms are Go durations ("30s", "5m"), the keywords "hourly",
// "daily" and "weekly", and "every_N_seconds" / "every_N_minutes" /
// "every_N_hours".
func ParseInterval(spec string) (time.Duration, error) {
	switch spec {
	case "":
		return 0, errors.InvalidArgument("interval spec cannot be empty", nil)
	case "hourly":
		return time.Hour, nil
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	}

	if m := everyPattern.FindStringSubmatch(spec); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return 0, errors.InvalidArgument(fmt.Sprintf("invalid interval spec %q", spec), err)
		}
		switch strings.TrimSuffix(m[2], "s") {
		case "second":
			return time.Duration(n) * time.Second, nil
		case "minute":
			return time.Duration(n) * time.Minute, nil
		default:
			return time.Duration(n) * time.Hour, nil
		}
	}

	if strings.Contains(spec, " ") {
		return 0, errors.InvalidArgument(
			fmt.Sprintf("invalid interval spec %q: cron expressions are not supported", spec), nil)
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, errors.InvalidArgument(fmt.Sprintf("invalid interval spec %q", spec), err)
	}
	if d <= 0 {
		return 0, errors.InvalidArgument(fmt.Sprintf("interval spec %q must be positive", spec), nil)
	}
	return d, nil
}
