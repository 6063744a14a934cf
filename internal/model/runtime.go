package model

import "time"

// OperationKind identifies the kind of store operation being reported
type OperationKind string

const (
	OperationQuery  OperationKind = "query"
	OperationInsert OperationKind = "insert"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// HealthState defines the overall health classification of the runtime
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// ResourceSnapshot holds the most recent host resource sample
type ResourceSnapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// OperationCounts holds operation counters over the rolling window
type OperationCounts struct {
	Queries uint64 `json:"queries"`
	Inserts uint64 `json:"inserts"`
	Updates uint64 `json:"updates"`
	Deletes uint64 `json:"deletes"`
	Errors  uint64 `json:"errors"`
}

// Total returns the total number of operations (errors are not an operation kind)
func (c OperationCounts) Total() uint64 {
	return c.Queries + c.Inserts + c.Updates + c.Deletes
}

// ErrorEvent captures the most recent recorded error
type ErrorEvent struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// HealthSnapshot is a consistent copy of the aggregator state at one instant
type HealthSnapshot struct {
	Status        HealthState       `json:"status"`
	Issues        []string          `json:"issues,omitempty"`
	Counts        OperationCounts   `json:"counts"`
	ErrorRate     float64           `json:"error_rate"`
	AvgLatencyMs  float64           `json:"avg_latency_ms"`
	OpsPerMinute  float64           `json:"ops_per_minute"`
	Resources     ResourceSnapshot  `json:"resources"`
	LastError     *ErrorEvent       `json:"last_error,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	UptimeHuman   string            `json:"uptime_human"`
	Collections   map[string]uint64 `json:"collections_accessed,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Pattern describes the shape of an operation, not its literal arguments.
// It is normalized into a trail signature.
type Pattern struct {
	Kind        OperationKind `json:"kind"`
	Collection  string        `json:"collection"`
	FilterShape string        `json:"filter_shape,omitempty"`
}

// HotTrail is one entry of the ranked hot-trail listing
type HotTrail struct {
	Signature        string    `json:"signature"`
	Pattern          Pattern   `json:"pattern"`
	Weight           float64   `json:"weight"`
	HitCount         uint64    `json:"hit_count"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	LastReinforcedAt time.Time `json:"last_reinforced_at"`
}

// Smell flags a pattern reinforced at high volume in rapid succession
type Smell struct {
	Scope        string        `json:"scope"`
	Signature    string        `json:"signature"`
	Pattern      Pattern       `json:"pattern"`
	HitCount     uint64        `json:"hit_count"`
	MeanInterval time.Duration `json:"mean_interval_ns"`
	DetectedAt   time.Time     `json:"detected_at"`
	Suggestion   string        `json:"suggestion"`
}

// SmellReport aggregates flagged patterns across scopes
type SmellReport struct {
	Total   int            `json:"total"`
	ByScope map[string]int `json:"by_scope,omitempty"`
	Recent  []Smell        `json:"recent,omitempty"`
}

// ScopeReport summarizes tracked activity for one scope
type ScopeReport struct {
	Scope          string                   `json:"scope"`
	Trails         int                      `json:"trails"`
	TotalHits      uint64                   `json:"total_hits"`
	CountsByKind   map[OperationKind]uint64 `json:"counts_by_kind"`
	LastActivityAt time.Time                `json:"last_activity_at"`
}

// VolumeSignal is the trail tracker's reinforcement-rate snapshot.
// Rate covers the most recent half of the observation window,
// PreviousRate the half before it.
type VolumeSignal struct {
	RatePerMinute         float64   `json:"rate_per_minute"`
	PreviousRatePerMinute float64   `json:"previous_rate_per_minute"`
	WindowStart           time.Time `json:"window_start"`
}

// Rising reports whether reinforcement volume grew between the two halves
func (v VolumeSignal) Rising() bool {
	return v.RatePerMinute > v.PreviousRatePerMinute
}

// ScaleDirection is the advised scaling action
type ScaleDirection string

const (
	ScaleUp   ScaleDirection = "scale-up"
	ScaleDown ScaleDirection = "scale-down"
	ScaleHold ScaleDirection = "hold"
)

// ScalingRecommendation is derived on demand and never cached
type ScalingRecommendation struct {
	Direction   ScaleDirection `json:"direction"`
	Confidence  float64        `json:"confidence"`
	Reasons     []string       `json:"reasons,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// JobInfo is an inspection snapshot of one scheduled job
type JobInfo struct {
	Name      string        `json:"name"`
	Spec      string        `json:"spec"`
	Interval  time.Duration `json:"interval_ns"`
	NextRunAt time.Time     `json:"next_run_at"`
	LastRunAt time.Time     `json:"last_run_at,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Runs      uint64        `json:"runs"`
	Failures  uint64        `json:"failures"`
}

// CacheStats holds cache occupancy and traffic statistics
type CacheStats struct {
	Entries       int           `json:"entries"`
	Expired       uint64        `json:"expired"`
	Hits          uint64        `json:"hits"`
	Misses        uint64        `json:"misses"`
	Evictions     uint64        `json:"evictions"`
	TotalAccesses uint64        `json:"total_accesses"`
	MaxEntries    int           `json:"max_entries"`
	DefaultTTL    time.Duration `json:"default_ttl_ns"`
}
