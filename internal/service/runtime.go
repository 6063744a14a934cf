// Package service wires the runtime components together behind one
// facade. Callers report operations and look up results here; the
// facade fans out to the cache, the trail tracker and the health
// aggregator so the three views never drift apart.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/advisor"
	"github.com/docpulse/runtime-node/internal/cache"
	"github.com/docpulse/runtime-node/internal/config"
	"github.com/docpulse/runtime-node/internal/errors"
	"github.com/docpulse/runtime-node/internal/health"
	"github.com/docpulse/runtime-node/internal/metrics"
	"github.com/docpulse/runtime-node/internal/model"
	"github.com/docpulse/runtime-node/internal/scheduler"
	"github.com/docpulse/runtime-node/internal/store"
	"github.com/docpulse/runtime-node/internal/trail"
	"github.com/docpulse/runtime-node/internal/util/keys"
	"github.com/docpulse/runtime-node/internal/validation"
)

// Default maintenance job names
const (
	JobHealthSnapshot = "health-snapshot"
	JobCacheCleanup   = "cache-cleanup"
	JobTrailDecay     = "trail-decay"
)

// Runtime is the adaptive layer in front of the document store
type Runtime struct {
	cfg *config.Config

	cache     *cache.ResultCache
	trails    *trail.Tracker
	health    *health.Aggregator
	sampler   *health.Sampler
	scheduler *scheduler.Scheduler
	watchdog  *scheduler.Watchdog
	advisor   *advisor.Advisor
	executor  store.Executor

	metrics *metrics.Metrics
	logger  *zap.Logger

	mu             sync.Mutex
	started        bool
	lastCacheStats model.CacheStats
	closeProbe     func() error
}

// NewRuntime assembles a runtime from validated configuration. The
// executor performs store operations on cache misses and mutations.
func NewRuntime(cfg *config.Config, executor store.Executor, m *metrics.Metrics, logger *zap.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if executor == nil {
		return nil, errors.InvalidArgument("store executor cannot be nil", nil)
	}

	r := &Runtime{
		cfg: cfg,
		cache: cache.NewResultCache(cfg.Cache.MaxEntries, cfg.Cache.DefaultTTL,
			logger.Named("cache")),
		trails: trail.NewTracker(trail.Config{
			ReinforcementAmount:  cfg.Trail.ReinforcementAmount,
			DecayFactor:          cfg.Trail.DecayFactor,
			PruneFloor:           cfg.Trail.PruneFloor,
			WeightCeiling:        cfg.Trail.WeightCeiling,
			SmellVolumeThreshold: cfg.Trail.SmellVolumeThreshold,
			SmellThrashInterval:  cfg.Trail.SmellThrashInterval,
			VolumeWindow:         cfg.Trail.VolumeWindow,
		}, logger.Named("trail")),
		health: health.NewAggregator(health.Config{
			Window:              cfg.Health.Window,
			Bucket:              cfg.Health.Bucket,
			SoftErrorRate:       cfg.Health.SoftErrorRate,
			HardErrorRate:       cfg.Health.HardErrorRate,
			SoftResourcePercent: cfg.Health.SoftResourcePercent,
			HardResourcePercent: cfg.Health.HardResourcePercent,
		}, logger.Named("health")),
		sampler:   health.NewSampler(cfg.Node.DataDir, logger.Named("health")),
		scheduler: scheduler.New(cfg.Scheduler.TickInterval, m, logger.Named("scheduler")),
		advisor:   advisor.New(advisor.DefaultConfig()),
		executor:  executor,
		metrics:   m,
		logger:    logger,
	}

	if err := r.registerDefaultJobs(); err != nil {
		return nil, err
	}

	if cfg.Watchdog.Enabled {
		if err := r.setupWatchdog(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Runtime) registerDefaultJobs() error {
	jobs := []struct {
		name string
		spec string
		fn   scheduler.JobFunc
	}{
		{JobHealthSnapshot, r.cfg.Scheduler.HealthSnapshotSpec, r.healthSnapshotJob},
		{JobCacheCleanup, r.cfg.Scheduler.CacheCleanupSpec, r.cacheCleanupJob},
		{JobTrailDecay, r.cfg.Scheduler.TrailDecaySpec, r.trailDecayJob},
	}
	for _, j := range jobs {
		if err := r.scheduler.Schedule(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) setupWatchdog() error {
	var probe scheduler.ProbeFunc
	target := r.cfg.Watchdog.Path
	switch r.cfg.Watchdog.Mode {
	case "grpc":
		target = r.cfg.Watchdog.Target
		p, closer, err := scheduler.GRPCProbe(target)
		if err != nil {
			return err
		}
		probe = p
		r.closeProbe = closer
	default:
		probe = scheduler.FileProbe(target)
	}

	r.watchdog = scheduler.NewWatchdog(scheduler.WatchdogConfig{
		ProbeInterval: r.cfg.Watchdog.ProbeInterval,
		ProbeTimeout:  r.cfg.Watchdog.ProbeTimeout,
		MaxRetries:    r.cfg.Watchdog.MaxRetries,
		RetryInterval: r.cfg.Watchdog.RetryInterval,
	}, target, probe,
		func(err error) {
			r.logger.Error("backing store outage", zap.Error(err))
		},
		func() {
			r.logger.Info("backing store outage cleared")
		},
		r.metrics, r.logger.Named("watchdog"))
	return nil
}

// Start launches the background loops. It is idempotent.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	// Prime the resource sample so the first health snapshot is not
	// empty, then keep it fresh from the maintenance job.
	r.health.ObserveResources(r.sampler.Sample())

	r.scheduler.Start(ctx)
	if r.watchdog != nil {
		r.watchdog.Start(ctx)
	}
	r.logger.Info("runtime started", zap.String("node", r.cfg.Node.NodeID))
}

// Stop shuts the background loops down and waits for them
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	r.scheduler.Stop()
	if r.watchdog != nil {
		r.watchdog.Stop()
	}
	if r.closeProbe != nil {
		if err := r.closeProbe(); err != nil {
			r.logger.Warn("failed to close watchdog probe", zap.Error(err))
		}
	}
	r.logger.Info("runtime stopped")
}

// LookupOrCompute serves a query from the cache, computing it through
// the store on a miss. Both outcomes reinforce the query's trail and
// count toward health; ttl zero uses the configured default.
func (r *Runtime) LookupOrCompute(ctx context.Context, scope, collection string, payload []byte, ttl time.Duration) ([]byte, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return nil, err
	}
	if err := validation.ValidateTTL(ttl); err != nil {
		return nil, err
	}
	pattern := model.Pattern{
		Kind:        model.OperationQuery,
		Collection:  collection,
		FilterShape: filterShape(payload),
	}
	if err := validation.ValidatePattern(pattern); err != nil {
		return nil, err
	}

	key := keys.QueryKey(scope, model.OperationQuery, collection+"\x1f"+string(payload))
	if err := validation.ValidateKey(key); err != nil {
		return nil, err
	}

	start := time.Now()
	if value, ok := r.cache.Get(scope, key); ok {
		if r.metrics != nil {
			r.metrics.CacheHits.Inc()
		}
		r.observe(scope, pattern, time.Since(start), nil)
		return value.([]byte), nil
	}
	if r.metrics != nil {
		r.metrics.CacheMisses.Inc()
	}

	result, err := r.executor.Execute(ctx, scope, model.OperationQuery, collection, payload)
	if err != nil {
		r.observe(scope, pattern, time.Since(start), err)
		return nil, err
	}

	r.cache.Set(scope, key, result, ttl)
	r.observe(scope, pattern, time.Since(start), nil)
	return result, nil
}

// CacheLookupOrCompute is the generic check-then-fill path for callers
// that bring their own key and compute function. There is no
// single-flight guard: concurrent misses for one key may all compute,
// and the last write wins. The compute result is never cached on error.
func (r *Runtime) CacheLookupOrCompute(ctx context.Context, scope, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return nil, err
	}
	if err := validation.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := validation.ValidateTTL(ttl); err != nil {
		return nil, err
	}
	if compute == nil {
		return nil, errors.InvalidArgument("compute function cannot be nil", nil)
	}

	if value, ok := r.cache.Get(scope, key); ok {
		if r.metrics != nil {
			r.metrics.CacheHits.Inc()
		}
		return value.([]byte), nil
	}
	if r.metrics != nil {
		r.metrics.CacheMisses.Inc()
	}

	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Set(scope, key, result, ttl)
	return result, nil
}

// Apply performs a mutation through the store. A successful mutation
// invalidates every cached query for the scope, since any of them may
// now be stale.
func (r *Runtime) Apply(ctx context.Context, scope string, kind model.OperationKind, collection string, payload []byte) ([]byte, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return nil, err
	}
	if kind == model.OperationQuery {
		return nil, errors.InvalidArgument("queries go through LookupOrCompute", nil)
	}
	pattern := model.Pattern{
		Kind:        kind,
		Collection:  collection,
		FilterShape: filterShape(payload),
	}
	if err := validation.ValidatePattern(pattern); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := r.executor.Execute(ctx, scope, kind, collection, payload)
	if err != nil {
		r.observe(scope, pattern, time.Since(start), err)
		return nil, err
	}

	if invalidated := r.cache.InvalidateScope(scope); invalidated > 0 {
		r.logger.Debug("mutation invalidated cached queries",
			zap.String("scope", scope),
			zap.Int("invalidated", invalidated))
	}
	r.observe(scope, pattern, time.Since(start), nil)
	return result, nil
}

// ReportOperation records an operation performed outside the facade,
// feeding the same health and trail paths as Apply.
func (r *Runtime) ReportOperation(scope string, pattern model.Pattern, duration time.Duration, opErr error) error {
	if err := validation.ValidateScope(scope); err != nil {
		return err
	}
	if err := validation.ValidatePattern(pattern); err != nil {
		return err
	}
	r.observe(scope, pattern, duration, opErr)
	return nil
}

// filterShape reduces a payload's filter to its field names, so
// queries differing only in bound values land on one trail. Payloads
// without a filter object, or that are not JSON, map to the empty
// shape.
func filterShape(payload []byte) string {
	var req struct {
		Filter map[string]json.RawMessage `json:"filter"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || len(req.Filter) == 0 {
		return ""
	}
	fields := make([]string, 0, len(req.Filter))
	for field := range req.Filter {
		fields = append(fields, field)
	}
	return keys.FilterShape(fields)
}

// observe is the single fan-out point for operation outcomes
func (r *Runtime) observe(scope string, pattern model.Pattern, duration time.Duration, err error) {
	if err != nil {
		r.health.RecordError(pattern.Kind, pattern.Collection, duration, err.Error())
	} else {
		r.health.Record(pattern.Kind, pattern.Collection, duration)
	}
	r.trails.Reinforce(scope, pattern)
	if r.metrics != nil {
		r.metrics.RecordOperation(pattern.Kind, err != nil)
	}
}

// Invalidate removes one cached entry
func (r *Runtime) Invalidate(scope, key string) (bool, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return false, err
	}
	if err := validation.ValidateKey(key); err != nil {
		return false, err
	}
	return r.cache.Invalidate(scope, key), nil
}

// InvalidateScope removes every cached entry for scope
func (r *Runtime) InvalidateScope(scope string) (int, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return 0, err
	}
	return r.cache.InvalidateScope(scope), nil
}

// InvalidateAll clears the cache
func (r *Runtime) InvalidateAll() int {
	return r.cache.InvalidateAll()
}

// Health returns the current health snapshot. A store outage reported
// by the watchdog overrides the classification: a node that cannot
// reach its store is unhealthy no matter how clean its counters are.
func (r *Runtime) Health() model.HealthSnapshot {
	snap := r.health.Snapshot()
	if r.watchdog != nil && r.watchdog.Down() {
		snap.Status = model.HealthStateUnhealthy
		snap.Issues = append([]string{"backing store unreachable"}, snap.Issues...)
	}
	if r.metrics != nil {
		r.metrics.UpdateHealth(snap)
	}
	return snap
}

// CacheStats returns cache occupancy and traffic statistics
func (r *Runtime) CacheStats() model.CacheStats {
	return r.cache.Stats()
}

// HotTrails returns the strongest trails for scope
func (r *Runtime) HotTrails(scope string, limit int) ([]model.HotTrail, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return nil, err
	}
	return r.trails.HotTrails(scope, limit), nil
}

// ScopeReport summarizes tracked activity for scope
func (r *Runtime) ScopeReport(scope string) (model.ScopeReport, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return model.ScopeReport{}, err
	}
	return r.trails.ScopeReport(scope), nil
}

// DetectSmells runs smell detection for one scope
func (r *Runtime) DetectSmells(scope string) ([]model.Smell, error) {
	if err := validation.ValidateScope(scope); err != nil {
		return nil, err
	}
	return r.trails.DetectSmells(scope), nil
}

// SmellReport runs smell detection across all scopes
func (r *Runtime) SmellReport() model.SmellReport {
	return r.trails.SmellReport()
}

// Advise derives a scaling recommendation from the current health
// and reinforcement-volume snapshots.
func (r *Runtime) Advise() model.ScalingRecommendation {
	rec := r.advisor.Advise(time.Now(), r.Health(), r.trails.VolumeSignal())
	if r.metrics != nil {
		r.metrics.ScalingAdvice.WithLabelValues(string(rec.Direction)).Inc()
	}
	return rec
}

// ScheduleJob registers a custom maintenance job
func (r *Runtime) ScheduleJob(name, spec string, fn scheduler.JobFunc) error {
	return r.scheduler.Schedule(name, spec, fn)
}

// UnscheduleJob removes a maintenance job. Unknown names are a no-op.
func (r *Runtime) UnscheduleJob(name string) {
	r.scheduler.Unschedule(name)
}

// Jobs returns an inspection snapshot of the job table
func (r *Runtime) Jobs() []model.JobInfo {
	return r.scheduler.ListJobs()
}

// StoreDown reports whether the watchdog currently considers the
// backing store unreachable. Always false without a watchdog.
func (r *Runtime) StoreDown() bool {
	return r.watchdog != nil && r.watchdog.Down()
}

func (r *Runtime) healthSnapshotJob(ctx context.Context) error {
	r.health.ObserveResources(r.sampler.Sample())
	snap := r.Health()

	stats := r.cache.Stats()
	if r.metrics != nil {
		r.metrics.UpdateCache(stats)

		r.mu.Lock()
		prev := r.lastCacheStats
		r.lastCacheStats = stats
		r.mu.Unlock()
		r.metrics.CacheEvictions.Add(float64(stats.Evictions - prev.Evictions))
		r.metrics.CacheExpired.Add(float64(stats.Expired - prev.Expired))

		var trailCount int
		for _, scope := range r.trails.Scopes() {
			trailCount += r.trails.ScopeReport(scope).Trails
		}
		r.metrics.TrailCount.Set(float64(trailCount))
		r.metrics.SmellsFlagged.Set(float64(r.trails.SmellReport().Total))
	}

	r.logger.Info("health snapshot",
		zap.String("status", string(snap.Status)),
		zap.Float64("error_rate", snap.ErrorRate),
		zap.Float64("ops_per_minute", snap.OpsPerMinute),
		zap.Int("cache_entries", stats.Entries))
	return nil
}

func (r *Runtime) cacheCleanupJob(ctx context.Context) error {
	r.cache.Cleanup()
	return nil
}

func (r *Runtime) trailDecayJob(ctx context.Context) error {
	pruned := r.trails.Decay()
	if r.metrics != nil && pruned > 0 {
		r.metrics.TrailPruned.Add(float64(pruned))
	}
	return nil
}
