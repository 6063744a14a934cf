package trail

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func testConfig() Config {
	return Config{
		ReinforcementAmount:  0.1,
		DecayFactor:          0.5,
		PruneFloor:           0.01,
		WeightCeiling:        1.0,
		SmellVolumeThreshold: 10,
		SmellThrashInterval:  time.Second,
		VolumeWindow:         10 * time.Minute,
	}
}

func newTestTracker(cfg Config) (*Tracker, *fakeClock) {
	clock := newFakeClock()
	tr := NewTracker(cfg, zap.NewNop())
	tr.now = clock.Now
	return tr, clock
}

func queryPattern(collection string) model.Pattern {
	return model.Pattern{Kind: model.OperationQuery, Collection: collection, FilterShape: "author"}
}

func TestTracker_ReinforceAccumulates(t *testing.T) {
	tr, clock := newTestTracker(testConfig())
	p := queryPattern("docs")

	created := clock.Now()
	for i := 0; i < 3; i++ {
		tr.Reinforce("proj-a", p)
		clock.Advance(time.Second)
	}

	hot := tr.HotTrails("proj-a", 0)
	require.Len(t, hot, 1)
	assert.InDelta(t, 0.3, hot[0].Weight, 1e-9)
	assert.Equal(t, uint64(3), hot[0].HitCount)
	assert.Equal(t, p, hot[0].Pattern)
	assert.Equal(t, created, hot[0].FirstSeenAt, "first sighting is preserved across reinforcements")
	assert.Equal(t, created.Add(2*time.Second), hot[0].LastReinforcedAt)
}

func TestTracker_WeightClampedAtCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.WeightCeiling = 0.25
	tr, _ := newTestTracker(cfg)

	for i := 0; i < 100; i++ {
		tr.Reinforce("proj-a", queryPattern("docs"))
	}

	hot := tr.HotTrails("proj-a", 0)
	require.Len(t, hot, 1)
	assert.InDelta(t, 0.25, hot[0].Weight, 1e-9)
	assert.Equal(t, uint64(100), hot[0].HitCount, "hit count is not clamped")
}

func TestTracker_DecayIsMultiplicative(t *testing.T) {
	cfg := testConfig()
	cfg.PruneFloor = 0
	tr, _ := newTestTracker(cfg)

	for i := 0; i < 5; i++ {
		tr.Reinforce("proj-a", queryPattern("docs"))
	}
	initial := tr.HotTrails("proj-a", 0)[0].Weight

	const cycles = 4
	for i := 0; i < cycles; i++ {
		tr.Decay()
	}

	want := initial * math.Pow(cfg.DecayFactor, cycles)
	got := tr.HotTrails("proj-a", 0)[0].Weight
	assert.InDelta(t, want, got, 1e-9)
}

func TestTracker_ReinforceThenSingleDecay(t *testing.T) {
	cfg := testConfig()
	tr, _ := newTestTracker(cfg)

	// Five reinforcements within one decay cycle, then one sweep.
	for i := 0; i < 5; i++ {
		tr.Reinforce("proj-a", queryPattern("docs"))
	}
	tr.Decay()

	want := 5 * cfg.ReinforcementAmount * cfg.DecayFactor
	assert.InDelta(t, want, tr.HotTrails("proj-a", 0)[0].Weight, 1e-9)
}

func TestTracker_DecayPrunesBelowFloor(t *testing.T) {
	cfg := testConfig()
	cfg.PruneFloor = 0.04
	tr, _ := newTestTracker(cfg)

	tr.Reinforce("proj-a", queryPattern("docs")) // weight 0.1

	assert.Equal(t, 0, tr.Decay()) // 0.05, above floor
	assert.Equal(t, 1, tr.Decay()) // 0.025, pruned
	assert.Empty(t, tr.HotTrails("proj-a", 0))
	assert.Empty(t, tr.Scopes(), "empty scopes are dropped")
}

func TestTracker_HotTrailsOrdering(t *testing.T) {
	cfg := testConfig()
	cfg.WeightCeiling = 10
	tr, clock := newTestTracker(cfg)

	heavy := queryPattern("heavy")
	midOld := queryPattern("mid-old")
	midNew := queryPattern("mid-new")
	light := model.Pattern{Kind: model.OperationInsert, Collection: "light"}

	tr.Reinforce("proj-a", heavy)
	tr.Reinforce("proj-a", heavy)
	tr.Reinforce("proj-a", heavy)

	// midOld and midNew tie on weight and hit count.
	tr.Reinforce("proj-a", midOld)
	tr.Reinforce("proj-a", midOld)
	clock.Advance(time.Minute)
	tr.Reinforce("proj-a", midNew)
	tr.Reinforce("proj-a", midNew)

	clock.Advance(time.Minute)
	tr.Reinforce("proj-a", light)

	hot := tr.HotTrails("proj-a", 0)
	require.Len(t, hot, 4)
	assert.Equal(t, "heavy", hot[0].Pattern.Collection)
	// Equal weight and hit count: most recently reinforced first.
	assert.Equal(t, "mid-new", hot[1].Pattern.Collection)
	assert.Equal(t, "mid-old", hot[2].Pattern.Collection)
	assert.Equal(t, "light", hot[3].Pattern.Collection)
}

func TestTracker_HotTrailsLimit(t *testing.T) {
	tr, _ := newTestTracker(testConfig())

	for i := 0; i < 5; i++ {
		tr.Reinforce("proj-a", queryPattern(fmt.Sprintf("c%d", i)))
	}

	assert.Len(t, tr.HotTrails("proj-a", 2), 2)
	assert.Len(t, tr.HotTrails("proj-a", 0), 5)
	assert.Len(t, tr.HotTrails("proj-a", 10), 5)
	assert.Empty(t, tr.HotTrails("unknown", 3))
}

func TestTracker_DetectSmells_RequiresVolumeAndThrashing(t *testing.T) {
	cfg := testConfig()
	cfg.SmellVolumeThreshold = 10
	cfg.SmellThrashInterval = time.Second
	tr, clock := newTestTracker(cfg)

	// High volume, rapid succession: flagged.
	thrash := queryPattern("thrash")
	for i := 0; i < 20; i++ {
		tr.Reinforce("proj-a", thrash)
		clock.Advance(100 * time.Millisecond)
	}

	// High volume but steady: not flagged.
	steady := queryPattern("steady")
	for i := 0; i < 20; i++ {
		tr.Reinforce("proj-a", steady)
		clock.Advance(10 * time.Second)
	}

	// Rapid but low volume: not flagged.
	burst := queryPattern("burst")
	for i := 0; i < 5; i++ {
		tr.Reinforce("proj-a", burst)
		clock.Advance(50 * time.Millisecond)
	}

	smells := tr.DetectSmells("proj-a")
	require.Len(t, smells, 1)
	assert.Equal(t, "thrash", smells[0].Pattern.Collection)
	assert.Equal(t, uint64(20), smells[0].HitCount)
	assert.LessOrEqual(t, smells[0].MeanInterval, time.Second)
	assert.NotEmpty(t, smells[0].Suggestion)
}

func TestTracker_SmellReport_AcrossScopes(t *testing.T) {
	cfg := testConfig()
	cfg.SmellVolumeThreshold = 5
	tr, clock := newTestTracker(cfg)

	for i := 0; i < 10; i++ {
		tr.Reinforce("proj-a", queryPattern("docs"))
		tr.Reinforce("proj-b", queryPattern("notes"))
		clock.Advance(100 * time.Millisecond)
	}

	report := tr.SmellReport()
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.ByScope["proj-a"])
	assert.Equal(t, 1, report.ByScope["proj-b"])
	assert.Len(t, report.Recent, 2)
}

func TestTracker_ScopeReport(t *testing.T) {
	tr, clock := newTestTracker(testConfig())

	tr.Reinforce("proj-a", queryPattern("docs"))
	tr.Reinforce("proj-a", queryPattern("docs"))
	clock.Advance(time.Minute)
	tr.Reinforce("proj-a", model.Pattern{Kind: model.OperationInsert, Collection: "docs"})
	last := clock.Now()

	report := tr.ScopeReport("proj-a")
	assert.Equal(t, "proj-a", report.Scope)
	assert.Equal(t, 2, report.Trails)
	assert.Equal(t, uint64(3), report.TotalHits)
	assert.Equal(t, uint64(2), report.CountsByKind[model.OperationQuery])
	assert.Equal(t, uint64(1), report.CountsByKind[model.OperationInsert])
	assert.Equal(t, last, report.LastActivityAt)

	empty := tr.ScopeReport("unknown")
	assert.Equal(t, 0, empty.Trails)
}

func TestTracker_VolumeSignal(t *testing.T) {
	cfg := testConfig()
	cfg.VolumeWindow = 10 * time.Minute
	tr, clock := newTestTracker(cfg)

	// 5 reinforcements in the older half, 20 in the newer half.
	for i := 0; i < 5; i++ {
		tr.Reinforce("proj-a", queryPattern("docs"))
	}
	clock.Advance(6 * time.Minute)
	for i := 0; i < 20; i++ {
		tr.Reinforce("proj-a", queryPattern("docs"))
	}

	sig := tr.VolumeSignal()
	assert.InDelta(t, 4.0, sig.RatePerMinute, 1e-9)
	assert.InDelta(t, 1.0, sig.PreviousRatePerMinute, 1e-9)
	assert.True(t, sig.Rising())

	// Events age out of the window entirely.
	clock.Advance(11 * time.Minute)
	sig = tr.VolumeSignal()
	assert.Zero(t, sig.RatePerMinute)
	assert.Zero(t, sig.PreviousRatePerMinute)
	assert.False(t, sig.Rising())
}

func TestTracker_ConcurrentReinforce(t *testing.T) {
	cfg := testConfig()
	cfg.PruneFloor = 0 // interleaved decay sweeps must not drop trails mid-test
	tr, _ := newTestTracker(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Reinforce(fmt.Sprintf("proj-%d", worker%2), queryPattern("docs"))
				if j%25 == 0 {
					tr.Decay()
					tr.HotTrails("proj-0", 5)
				}
			}
		}(i)
	}
	wg.Wait()

	report := tr.ScopeReport("proj-0")
	assert.Equal(t, uint64(400), report.TotalHits)
}
