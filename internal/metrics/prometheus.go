// Package metrics exposes Prometheus instrumentation for the runtime
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docpulse/runtime-node/internal/model"
)

// Metrics holds all Prometheus metrics for the runtime node
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheExpired   prometheus.Counter
	CacheEntries   prometheus.Gauge

	Operations      *prometheus.CounterVec
	OperationErrors prometheus.Counter

	TrailCount    prometheus.Gauge
	TrailPruned   prometheus.Counter
	SmellsFlagged prometheus.Gauge

	HealthStatus    prometheus.Gauge
	CPUPercent      prometheus.Gauge
	MemoryPercent   prometheus.Gauge
	DiskPercent     prometheus.Gauge
	WindowErrorRate prometheus.Gauge

	JobRuns        *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	WatchdogProbes *prometheus.CounterVec

	ScalingAdvice *prometheus.CounterVec
}

// New creates all metrics registered against the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "runtime_cache_hits_total",
			Help: "Total number of cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "runtime_cache_misses_total",
			Help: "Total number of cache misses",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "runtime_cache_evictions_total",
			Help: "Total number of entries evicted by the size bound",
		}),
		CacheExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "runtime_cache_expired_total",
			Help: "Total number of entries removed after expiry",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_cache_entries",
			Help: "Current number of live cache entries",
		}),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runtime_operations_total",
			Help: "Total operations reported, by kind",
		}, []string{"kind"}),
		OperationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "runtime_operation_errors_total",
			Help: "Total failed operations reported",
		}),
		TrailCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_trails",
			Help: "Current number of live trails across all scopes",
		}),
		TrailPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "runtime_trails_pruned_total",
			Help: "Total trails pruned by decay sweeps",
		}),
		SmellsFlagged: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_smells_flagged",
			Help: "Patterns currently flagged by smell detection",
		}),
		HealthStatus: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_health_status",
			Help: "Health classification (0=healthy, 1=degraded, 2=unhealthy)",
		}),
		CPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_cpu_percent",
			Help: "Host CPU usage percent from the latest sample",
		}),
		MemoryPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_memory_percent",
			Help: "Host memory usage percent from the latest sample",
		}),
		DiskPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_disk_percent",
			Help: "Data directory filesystem usage percent",
		}),
		WindowErrorRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_window_error_rate",
			Help: "Error rate over the rolling health window",
		}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runtime_job_runs_total",
			Help: "Maintenance job executions, by job and result",
		}, []string{"job", "result"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runtime_job_duration_seconds",
			Help:    "Maintenance job execution duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"job"}),
		WatchdogProbes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runtime_watchdog_probes_total",
			Help: "Backing store probes, by result",
		}, []string{"result"}),
		ScalingAdvice: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "runtime_scaling_advice_total",
			Help: "Scaling recommendations issued, by direction",
		}, []string{"direction"}),
	}
}

// RecordOperation counts one reported operation
func (m *Metrics) RecordOperation(kind model.OperationKind, failed bool) {
	m.Operations.WithLabelValues(string(kind)).Inc()
	if failed {
		m.OperationErrors.Inc()
	}
}

// RecordJobRun counts one maintenance job execution
func (m *Metrics) RecordJobRun(job string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordWatchdogProbe counts one backing store probe
func (m *Metrics) RecordWatchdogProbe(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.WatchdogProbes.WithLabelValues(result).Inc()
}

// UpdateHealth publishes the latest health snapshot to the gauges
func (m *Metrics) UpdateHealth(snap model.HealthSnapshot) {
	m.HealthStatus.Set(healthStatusValue(snap.Status))
	m.CPUPercent.Set(snap.Resources.CPUPercent)
	m.MemoryPercent.Set(snap.Resources.MemoryPercent)
	m.DiskPercent.Set(snap.Resources.DiskPercent)
	m.WindowErrorRate.Set(snap.ErrorRate)
}

// UpdateCache publishes the latest cache statistics
func (m *Metrics) UpdateCache(stats model.CacheStats) {
	m.CacheEntries.Set(float64(stats.Entries))
}

func healthStatusValue(s model.HealthState) float64 {
	switch s {
	case model.HealthStateDegraded:
		return 1
	case model.HealthStateUnhealthy:
		return 2
	default:
		return 0
	}
}
