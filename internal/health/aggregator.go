// Package health aggregates operation outcomes and host resource
// samples into a status classification.
package health

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/model"
)

// Config holds the rolling window geometry and the classification
// ceilings. Soft ceilings mark degradation, hard ceilings mark an
// unhealthy node. Reaching a ceiling counts as breaching it.
type Config struct {
	Window              time.Duration
	Bucket              time.Duration
	SoftErrorRate       float64
	HardErrorRate       float64
	SoftResourcePercent float64
	HardResourcePercent float64
}

type bucket struct {
	stamp   int64
	counts  model.OperationCounts
	latency time.Duration
}

// Aggregator maintains rolling-window operation counters, cumulative
// per-collection access counts, the latest resource sample, and the
// most recent error. Record paths touch one bucket and stay O(1)
// regardless of window size.
type Aggregator struct {
	mu          sync.Mutex
	buckets     []bucket
	collections map[string]uint64
	resources   model.ResourceSnapshot
	lastError   *model.ErrorEvent
	startedAt   time.Time
	lastStatus  model.HealthState

	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewAggregator creates an aggregator whose window spans
// cfg.Window/cfg.Bucket buckets.
func NewAggregator(cfg Config, logger *zap.Logger) *Aggregator {
	n := int(cfg.Window / cfg.Bucket)
	if n < 1 {
		n = 1
	}
	a := &Aggregator{
		buckets:     make([]bucket, n),
		collections: make(map[string]uint64),
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
		lastStatus:  model.HealthStateHealthy,
	}
	a.startedAt = a.now()
	return a
}

// Record counts one successful operation of the given kind against
// its collection, with its duration.
func (a *Aggregator) Record(kind model.OperationKind, collection string, duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.currentBucket()
	a.bump(kind, b)
	b.latency += duration
	if collection != "" {
		a.collections[collection]++
	}
}

// RecordError counts one failed operation. The failure still counts
// toward its kind, so the error rate is errors over all operations
// in the window.
func (a *Aggregator) RecordError(kind model.OperationKind, collection string, duration time.Duration, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.currentBucket()
	a.bump(kind, b)
	b.counts.Errors++
	b.latency += duration
	if collection != "" {
		a.collections[collection]++
	}
	a.lastError = &model.ErrorEvent{Message: message, At: a.now()}
}

// ObserveResources replaces the aggregator's resource sample
func (a *Aggregator) ObserveResources(snap model.ResourceSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resources = snap
}

// Snapshot returns a consistent view of window counters, resources
// and the derived status classification.
func (a *Aggregator) Snapshot() model.HealthSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	counts, latency := a.windowCounts(now)

	total := counts.Total()
	var errorRate, avgLatencyMs float64
	if total > 0 {
		errorRate = float64(counts.Errors) / float64(total)
		avgLatencyMs = float64(latency.Milliseconds()) / float64(total)
	}

	var opsPerMinute float64
	if minutes := a.cfg.Window.Minutes(); minutes > 0 {
		opsPerMinute = float64(total) / minutes
	}

	status, issues := a.classify(errorRate)
	if status != a.lastStatus {
		a.logger.Warn("health status changed",
			zap.String("from", string(a.lastStatus)),
			zap.String("to", string(status)),
			zap.Strings("issues", issues))
		a.lastStatus = status
	}

	uptime := now.Sub(a.startedAt)

	collections := make(map[string]uint64, len(a.collections))
	for name, accesses := range a.collections {
		collections[name] = accesses
	}

	snap := model.HealthSnapshot{
		Status:        status,
		Issues:        issues,
		Counts:        counts,
		ErrorRate:     errorRate,
		AvgLatencyMs:  avgLatencyMs,
		OpsPerMinute:  opsPerMinute,
		Resources:     a.resources,
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   formatUptime(uptime),
		Collections:   collections,
		Timestamp:     now,
	}
	if a.lastError != nil {
		e := *a.lastError
		snap.LastError = &e
	}
	return snap
}

func (a *Aggregator) classify(errorRate float64) (model.HealthState, []string) {
	var hard, soft []string

	if errorRate >= a.cfg.HardErrorRate {
		hard = append(hard, fmt.Sprintf("error rate %.1f%% breaches hard ceiling %.1f%%",
			errorRate*100, a.cfg.HardErrorRate*100))
	} else if errorRate >= a.cfg.SoftErrorRate {
		soft = append(soft, fmt.Sprintf("error rate %.1f%% breaches soft ceiling %.1f%%",
			errorRate*100, a.cfg.SoftErrorRate*100))
	}

	for _, r := range []struct {
		name    string
		percent float64
	}{
		{"cpu", a.resources.CPUPercent},
		{"memory", a.resources.MemoryPercent},
		{"disk", a.resources.DiskPercent},
	} {
		if r.percent >= a.cfg.HardResourcePercent {
			hard = append(hard, fmt.Sprintf("%s usage %.1f%% breaches hard ceiling %.1f%%",
				r.name, r.percent, a.cfg.HardResourcePercent))
		} else if r.percent >= a.cfg.SoftResourcePercent {
			soft = append(soft, fmt.Sprintf("%s usage %.1f%% breaches soft ceiling %.1f%%",
				r.name, r.percent, a.cfg.SoftResourcePercent))
		}
	}

	switch {
	case len(hard) > 0:
		return model.HealthStateUnhealthy, append(hard, soft...)
	case len(soft) > 0:
		return model.HealthStateDegraded, soft
	default:
		return model.HealthStateHealthy, nil
	}
}

// currentBucket returns the bucket for the current instant, resetting
// it if it last held counts from an earlier cycle of the ring.
func (a *Aggregator) currentBucket() *bucket {
	stamp := a.now().UnixNano() / int64(a.cfg.Bucket)
	b := &a.buckets[int(stamp%int64(len(a.buckets)))]
	if b.stamp != stamp {
		b.stamp = stamp
		b.counts = model.OperationCounts{}
		b.latency = 0
	}
	return b
}

func (a *Aggregator) windowCounts(now time.Time) (model.OperationCounts, time.Duration) {
	stamp := now.UnixNano() / int64(a.cfg.Bucket)
	oldest := stamp - int64(len(a.buckets)) + 1

	var counts model.OperationCounts
	var latency time.Duration
	for i := range a.buckets {
		b := &a.buckets[i]
		if b.stamp < oldest || b.stamp > stamp {
			continue
		}
		counts.Queries += b.counts.Queries
		counts.Inserts += b.counts.Inserts
		counts.Updates += b.counts.Updates
		counts.Deletes += b.counts.Deletes
		counts.Errors += b.counts.Errors
		latency += b.latency
	}
	return counts, latency
}

func (a *Aggregator) bump(kind model.OperationKind, b *bucket) {
	switch kind {
	case model.OperationQuery:
		b.counts.Queries++
	case model.OperationInsert:
		b.counts.Inserts++
	case model.OperationUpdate:
		b.counts.Updates++
	case model.OperationDelete:
		b.counts.Deletes++
	}
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Seconds())
	days := secs / 86400
	hours := (secs % 86400) / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
