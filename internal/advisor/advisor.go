// Package advisor derives scaling recommendations from health and
// trail-volume snapshots. Advise is a pure function of its inputs:
// the same snapshots always produce the same recommendation, and
// nothing is cached or mutated.
package advisor

import (
	"fmt"
	"time"

	"github.com/docpulse/runtime-node/internal/model"
)

// Config holds the decision thresholds. Resource pressure suggests
// growth only while volume is rising; a failing node or runaway error
// rate does so on its own. Scale-down requires every signal to be
// quiet.
type Config struct {
	HighErrorRate       float64
	HighResourcePercent float64
	LowResourcePercent  float64
	HighRatePerMinute   float64
	LowRatePerMinute    float64
}

// DefaultConfig returns conservative thresholds: quick to suggest
// growth under pressure, slow to suggest shrinking.
func DefaultConfig() Config {
	return Config{
		HighErrorRate:       0.25,
		HighResourcePercent: 85,
		LowResourcePercent:  25,
		HighRatePerMinute:   600,
		LowRatePerMinute:    30,
	}
}

// Advisor evaluates snapshots against its thresholds
type Advisor struct {
	cfg Config
}

// New creates an advisor with the given thresholds
func New(cfg Config) *Advisor {
	return &Advisor{cfg: cfg}
}

// Advise returns a recommendation for the given instant. Confidence
// grows with the distance past a threshold and is clamped to [0, 1].
func (a *Advisor) Advise(now time.Time, health model.HealthSnapshot, volume model.VolumeSignal) model.ScalingRecommendation {
	rec := model.ScalingRecommendation{
		Direction:   model.ScaleHold,
		GeneratedAt: now,
	}

	maxResource := health.Resources.CPUPercent
	if health.Resources.MemoryPercent > maxResource {
		maxResource = health.Resources.MemoryPercent
	}
	if health.Resources.DiskPercent > maxResource {
		maxResource = health.Resources.DiskPercent
	}

	var upConfidence float64
	up := func(confidence float64, reason string) {
		rec.Reasons = append(rec.Reasons, reason)
		if confidence > upConfidence {
			upConfidence = confidence
		}
	}

	if health.Status == model.HealthStateUnhealthy {
		up(0.9, "node is unhealthy: "+joinIssues(health.Issues))
	}
	if health.ErrorRate > a.cfg.HighErrorRate {
		up(ratio(health.ErrorRate-a.cfg.HighErrorRate, 1-a.cfg.HighErrorRate),
			fmt.Sprintf("error rate %.1f%% above %.1f%%", health.ErrorRate*100, a.cfg.HighErrorRate*100))
	}
	// Resource pressure with flat or falling volume is a hold: the
	// pressure may drain on its own, so growth needs rising demand too.
	if maxResource > a.cfg.HighResourcePercent && volume.Rising() {
		up(ratio(maxResource-a.cfg.HighResourcePercent, 100-a.cfg.HighResourcePercent),
			fmt.Sprintf("resource usage %.1f%% above %.1f%% with rising volume", maxResource, a.cfg.HighResourcePercent))
	}
	if volume.Rising() && volume.RatePerMinute > a.cfg.HighRatePerMinute {
		up(ratio(volume.RatePerMinute-a.cfg.HighRatePerMinute, a.cfg.HighRatePerMinute),
			fmt.Sprintf("reinforcement volume rising at %.0f/min", volume.RatePerMinute))
	}

	if upConfidence > 0 {
		rec.Direction = model.ScaleUp
		rec.Confidence = upConfidence
		return rec
	}

	quiet := health.Status == model.HealthStateHealthy &&
		maxResource < a.cfg.LowResourcePercent &&
		volume.RatePerMinute < a.cfg.LowRatePerMinute &&
		!volume.Rising()
	if quiet {
		resourceHeadroom := ratio(a.cfg.LowResourcePercent-maxResource, a.cfg.LowResourcePercent)
		rateHeadroom := ratio(a.cfg.LowRatePerMinute-volume.RatePerMinute, a.cfg.LowRatePerMinute)
		rec.Direction = model.ScaleDown
		rec.Confidence = (resourceHeadroom + rateHeadroom) / 2
		rec.Reasons = append(rec.Reasons,
			fmt.Sprintf("resource usage %.1f%% below %.1f%%", maxResource, a.cfg.LowResourcePercent),
			fmt.Sprintf("reinforcement volume %.0f/min below %.0f/min", volume.RatePerMinute, a.cfg.LowRatePerMinute))
		return rec
	}

	rec.Confidence = 1
	rec.Reasons = append(rec.Reasons, "all signals within normal bounds")
	return rec
}

func ratio(distance, headroom float64) float64 {
	if headroom <= 0 {
		return 1
	}
	r := distance / headroom
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

func joinIssues(issues []string) string {
	if len(issues) == 0 {
		return "no detail"
	}
	out := issues[0]
	for _, issue := range issues[1:] {
		out += "; " + issue
	}
	return out
}
