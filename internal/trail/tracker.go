// Package trail tracks reinforcement weights over access patterns.
// Every reported operation strengthens the trail for its pattern, a
// periodic decay sweep weakens all trails, and what survives is the
// set of patterns the store is actually being asked for.
package trail

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/model"
	"github.com/docpulse/runtime-node/internal/util/keys"
)

// recentSamples bounds the per-trail timestamp history used for
// thrash detection.
const recentSamples = 16

type trail struct {
	pattern          model.Pattern
	weight           float64
	hitCount         uint64
	firstSeenAt      time.Time
	lastReinforcedAt time.Time
	recent           []time.Time
}

func (t *trail) meanInterval() (time.Duration, bool) {
	if len(t.recent) < 2 {
		return 0, false
	}
	span := t.recent[len(t.recent)-1].Sub(t.recent[0])
	return span / time.Duration(len(t.recent)-1), true
}

// Config controls reinforcement, decay and smell detection
type Config struct {
	ReinforcementAmount  float64
	DecayFactor          float64
	PruneFloor           float64
	WeightCeiling        float64
	SmellVolumeThreshold uint64
	SmellThrashInterval  time.Duration
	VolumeWindow         time.Duration
}

// Tracker maintains per-scope trail maps. All methods are safe for
// concurrent use.
type Tracker struct {
	mu     sync.Mutex
	scopes map[string]map[string]*trail
	events []time.Time // reinforcement times within the volume window

	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker creates a tracker with the given tuning
func NewTracker(cfg Config, logger *zap.Logger) *Tracker {
	return &Tracker{
		scopes: make(map[string]map[string]*trail),
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// Reinforce strengthens the trail for pattern within scope, creating
// it on first sight. Weight gains are clamped to the ceiling; hit
// counts are not.
func (t *Tracker) Reinforce(scope string, pattern model.Pattern) {
	sig := keys.PatternSignature(pattern)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	bySig, ok := t.scopes[scope]
	if !ok {
		bySig = make(map[string]*trail)
		t.scopes[scope] = bySig
	}

	tr, ok := bySig[sig]
	if !ok {
		tr = &trail{pattern: pattern, firstSeenAt: now}
		bySig[sig] = tr
	}

	tr.weight += t.cfg.ReinforcementAmount
	if tr.weight > t.cfg.WeightCeiling {
		tr.weight = t.cfg.WeightCeiling
	}
	tr.hitCount++
	tr.lastReinforcedAt = now
	tr.recent = append(tr.recent, now)
	if len(tr.recent) > recentSamples {
		tr.recent = tr.recent[len(tr.recent)-recentSamples:]
	}

	t.events = append(t.events, now)
	t.pruneEventsLocked(now)
}

// Decay applies one multiplicative decay step to every trail and
// prunes trails whose weight falls below the floor. It returns the
// number pruned. Intended to run as a scheduled maintenance job; the
// job period is the decay cadence.
func (t *Tracker) Decay() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	pruned := 0
	for scope, bySig := range t.scopes {
		for sig, tr := range bySig {
			tr.weight *= t.cfg.DecayFactor
			if tr.weight < t.cfg.PruneFloor {
				delete(bySig, sig)
				pruned++
			}
		}
		if len(bySig) == 0 {
			delete(t.scopes, scope)
		}
	}

	if pruned > 0 {
		t.logger.Debug("decay pruned faded trails", zap.Int("pruned", pruned))
	}
	return pruned
}

// HotTrails returns up to limit trails for scope, strongest first.
// Ties on weight fall back to hit count, then to most recent
// reinforcement. A limit of zero or less returns all trails.
func (t *Tracker) HotTrails(scope string, limit int) []model.HotTrail {
	t.mu.Lock()
	defer t.mu.Unlock()

	bySig := t.scopes[scope]
	out := make([]model.HotTrail, 0, len(bySig))
	for sig, tr := range bySig {
		out = append(out, model.HotTrail{
			Signature:        sig,
			Pattern:          tr.pattern,
			Weight:           tr.weight,
			HitCount:         tr.hitCount,
			FirstSeenAt:      tr.firstSeenAt,
			LastReinforcedAt: tr.lastReinforcedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].HitCount != out[j].HitCount {
			return out[i].HitCount > out[j].HitCount
		}
		return out[i].LastReinforcedAt.After(out[j].LastReinforcedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DetectSmells flags trails in scope that are both high-volume and
// reinforced in rapid succession. Both conditions must hold: a busy
// but steady trail is healthy traffic, and a short burst alone has
// not yet earned the hit count.
func (t *Tracker) DetectSmells(scope string) []model.Smell {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detectSmellsLocked(scope)
}

func (t *Tracker) detectSmellsLocked(scope string) []model.Smell {
	now := t.now()

	var smells []model.Smell
	for sig, tr := range t.scopes[scope] {
		if tr.hitCount <= t.cfg.SmellVolumeThreshold {
			continue
		}
		mean, ok := tr.meanInterval()
		if !ok || mean >= t.cfg.SmellThrashInterval {
			continue
		}
		smells = append(smells, model.Smell{
			Scope:        scope,
			Signature:    sig,
			Pattern:      tr.pattern,
			HitCount:     tr.hitCount,
			MeanInterval: mean,
			DetectedAt:   now,
			Suggestion: fmt.Sprintf("pattern %s on %q repeats every %s; consider batching or caching upstream",
				tr.pattern.Kind, tr.pattern.Collection, mean.Round(time.Millisecond)),
		})
	}

	sort.Slice(smells, func(i, j int) bool {
		return smells[i].HitCount > smells[j].HitCount
	})
	return smells
}

// SmellReport runs smell detection across every tracked scope
func (t *Tracker) SmellReport() model.SmellReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := model.SmellReport{ByScope: make(map[string]int)}
	for scope := range t.scopes {
		smells := t.detectSmellsLocked(scope)
		if len(smells) == 0 {
			continue
		}
		report.Total += len(smells)
		report.ByScope[scope] = len(smells)
		report.Recent = append(report.Recent, smells...)
	}

	sort.Slice(report.Recent, func(i, j int) bool {
		return report.Recent[i].HitCount > report.Recent[j].HitCount
	})
	return report
}

// ScopeReport summarizes tracked activity for one scope
func (t *Tracker) ScopeReport(scope string) model.ScopeReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := model.ScopeReport{
		Scope:        scope,
		CountsByKind: make(map[model.OperationKind]uint64),
	}
	for _, tr := range t.scopes[scope] {
		report.Trails++
		report.TotalHits += tr.hitCount
		report.CountsByKind[tr.pattern.Kind] += tr.hitCount
		if tr.lastReinforcedAt.After(report.LastActivityAt) {
			report.LastActivityAt = tr.lastReinforcedAt
		}
	}
	return report
}

// Scopes returns the scope identifiers with at least one live trail
func (t *Tracker) Scopes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	scopes := make([]string, 0, len(t.scopes))
	for scope := range t.scopes {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// VolumeSignal reports the reinforcement rate over the two halves of
// the observation window, for scaling decisions.
func (t *Tracker) VolumeSignal() model.VolumeSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneEventsLocked(now)

	windowStart := now.Add(-t.cfg.VolumeWindow)
	midpoint := now.Add(-t.cfg.VolumeWindow / 2)
	halfMinutes := (t.cfg.VolumeWindow / 2).Minutes()

	var older, newer int
	for _, at := range t.events {
		if at.Before(midpoint) {
			older++
		} else {
			newer++
		}
	}

	sig := model.VolumeSignal{WindowStart: windowStart}
	if halfMinutes > 0 {
		sig.RatePerMinute = float64(newer) / halfMinutes
		sig.PreviousRatePerMinute = float64(older) / halfMinutes
	}
	return sig
}

func (t *Tracker) pruneEventsLocked(now time.Time) {
	cutoff := now.Add(-t.cfg.VolumeWindow)
	i := 0
	for i < len(t.events) && t.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
