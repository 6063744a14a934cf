package advisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpulse/runtime-node/internal/model"
)

var testTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func quietHealth() model.HealthSnapshot {
	return model.HealthSnapshot{
		Status:    model.HealthStateHealthy,
		Resources: model.ResourceSnapshot{CPUPercent: 10, MemoryPercent: 15, DiskPercent: 20},
	}
}

func TestAdvisor_ScaleUpOnUnhealthy(t *testing.T) {
	a := New(DefaultConfig())

	health := quietHealth()
	health.Status = model.HealthStateUnhealthy
	health.Issues = []string{"error rate 60.0% exceeds hard ceiling 50.0%"}

	rec := a.Advise(testTime, health, model.VolumeSignal{})
	assert.Equal(t, model.ScaleUp, rec.Direction)
	assert.Equal(t, 0.9, rec.Confidence)
	require.NotEmpty(t, rec.Reasons)
	assert.Contains(t, rec.Reasons[0], "unhealthy")
	assert.Equal(t, testTime, rec.GeneratedAt)
}

func TestAdvisor_ScaleUpOnResourcePressure(t *testing.T) {
	a := New(DefaultConfig())

	health := quietHealth()
	health.Resources.MemoryPercent = 94

	// Pressure with flat volume holds: it may drain on its own.
	rec := a.Advise(testTime, health, model.VolumeSignal{RatePerMinute: 50, PreviousRatePerMinute: 50})
	assert.Equal(t, model.ScaleHold, rec.Direction)

	// The same pressure with rising volume scales up. The rate stays
	// under the high-rate band so the resource signal decides alone.
	rec = a.Advise(testTime, health, model.VolumeSignal{RatePerMinute: 100, PreviousRatePerMinute: 50})
	assert.Equal(t, model.ScaleUp, rec.Direction)
	assert.InDelta(t, 0.6, rec.Confidence, 1e-9, "94%% is 9 points into a 15 point headroom")
	require.Len(t, rec.Reasons, 1)
	assert.Contains(t, rec.Reasons[0], "resource usage")
}

func TestAdvisor_ScaleUpOnRisingVolume(t *testing.T) {
	a := New(DefaultConfig())

	health := quietHealth()
	health.Resources.CPUPercent = 50 // busy enough to block scale-down

	volume := model.VolumeSignal{RatePerMinute: 900, PreviousRatePerMinute: 400}

	rec := a.Advise(testTime, health, volume)
	assert.Equal(t, model.ScaleUp, rec.Direction)
	assert.InDelta(t, 0.5, rec.Confidence, 1e-9)
}

func TestAdvisor_ScaleDownWhenQuiet(t *testing.T) {
	a := New(DefaultConfig())

	rec := a.Advise(testTime, quietHealth(), model.VolumeSignal{RatePerMinute: 3, PreviousRatePerMinute: 6})
	assert.Equal(t, model.ScaleDown, rec.Direction)
	assert.Greater(t, rec.Confidence, 0.0)
	assert.Len(t, rec.Reasons, 2)
}

func TestAdvisor_HoldBlocksScaleDown(t *testing.T) {
	a := New(DefaultConfig())

	// Quiet resources, but reinforcement volume is growing.
	rec := a.Advise(testTime, quietHealth(), model.VolumeSignal{RatePerMinute: 10, PreviousRatePerMinute: 2})
	assert.Equal(t, model.ScaleHold, rec.Direction)

	// Degraded nodes never scale down.
	health := quietHealth()
	health.Status = model.HealthStateDegraded
	rec = a.Advise(testTime, health, model.VolumeSignal{})
	assert.Equal(t, model.ScaleHold, rec.Direction)
}

func TestAdvisor_PressureDominatesQuietVolume(t *testing.T) {
	a := New(DefaultConfig())

	health := quietHealth()
	health.ErrorRate = 0.40
	health.Resources.DiskPercent = 90

	// Flat volume: only the error-rate signal fires.
	rec := a.Advise(testTime, health, model.VolumeSignal{})
	assert.Equal(t, model.ScaleUp, rec.Direction)
	require.Len(t, rec.Reasons, 1)
	assert.Contains(t, rec.Reasons[0], "error rate")

	// Rising volume lets the resource signal join in.
	rec = a.Advise(testTime, health, model.VolumeSignal{RatePerMinute: 100, PreviousRatePerMinute: 50})
	assert.Equal(t, model.ScaleUp, rec.Direction)
	assert.Len(t, rec.Reasons, 2, "every breached signal is reported")
}

func TestAdvisor_Deterministic(t *testing.T) {
	a := New(DefaultConfig())

	health := quietHealth()
	health.Resources.CPUPercent = 88
	volume := model.VolumeSignal{RatePerMinute: 700, PreviousRatePerMinute: 100}

	first := a.Advise(testTime, health, volume)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.Advise(testTime, health, volume))
	}
}

func TestAdvisor_ConfidenceClamped(t *testing.T) {
	a := New(DefaultConfig())

	health := quietHealth()
	health.ErrorRate = 1.0
	health.Resources.CPUPercent = 100

	rec := a.Advise(testTime, health, model.VolumeSignal{RatePerMinute: 100000, PreviousRatePerMinute: 0})
	assert.Equal(t, model.ScaleUp, rec.Direction)
	assert.LessOrEqual(t, rec.Confidence, 1.0)
}
