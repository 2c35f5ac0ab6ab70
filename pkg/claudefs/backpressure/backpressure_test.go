package backpressure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	c := DefaultConfig()
	assert.True(t, c.Enabled)
	assert.InDelta(t, 0.4, c.QueueWeight, 0.001)
	assert.InDelta(t, 0.35, c.MemoryWeight, 0.001)
	assert.InDelta(t, 0.25, c.ThroughputWeight, 0.001)
}

func TestScoreAllSignalsLow(t *testing.T) {
	m := New(DefaultConfig())
	score := m.Score(Signals{QueueDepth: 0, MemoryPercent: 0, ThroughputPercent: 0})
	assert.Equal(t, 0.0, score)
}

func TestScoreAllSignalsHigh(t *testing.T) {
	m := New(DefaultConfig())
	score := m.Score(Signals{QueueDepth: 2000, MemoryPercent: 100, ThroughputPercent: 100})
	assert.Equal(t, 1.0, score)
}

func TestLevelThresholds(t *testing.T) {
	m := New(DefaultConfig())

	// queue only, weight 0.4: 0.2/0.4=0.5 normalized contributes 0.2 score -> Low
	assert.Equal(t, LevelNone, m.Level(Signals{QueueDepth: 100, MemoryPercent: 60, ThroughputPercent: 70}))
}

func TestLevelCriticalAtFullOverload(t *testing.T) {
	m := New(DefaultConfig())
	assert.Equal(t, LevelCritical, m.Level(Signals{QueueDepth: 1000, MemoryPercent: 85, ThroughputPercent: 90}))
}

func TestDisabledMonitorAlwaysNone(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false
	m := New(config)
	assert.Equal(t, 0.0, m.Score(Signals{QueueDepth: 1000, MemoryPercent: 100, ThroughputPercent: 100}))
	assert.Equal(t, LevelNone, m.Level(Signals{QueueDepth: 1000, MemoryPercent: 100, ThroughputPercent: 100}))
}

func TestIsOverloaded(t *testing.T) {
	assert.False(t, IsOverloaded(LevelNone))
	assert.False(t, IsOverloaded(LevelLow))
	assert.True(t, IsOverloaded(LevelMedium))
	assert.True(t, IsOverloaded(LevelHigh))
	assert.True(t, IsOverloaded(LevelCritical))
}

func TestThrottleConfigDefaults(t *testing.T) {
	c := DefaultThrottleConfig()
	assert.Equal(t, 10.0, c.MinSendRate)
	assert.Equal(t, 10000.0, c.MaxSendRate)
	assert.Equal(t, 1000.0, c.InitialRate)
	assert.Equal(t, 0.5, c.DecreaseRatio)
	assert.Equal(t, 100.0, c.IncreaseStep)
}

func TestThrottleNoneIncreases(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	rate := th.OnSignal(LevelNone)
	assert.Equal(t, 1100.0, rate)
}

func TestThrottleLowHolds(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	rate := th.OnSignal(LevelLow)
	assert.Equal(t, 1000.0, rate)
}

func TestThrottleMediumHalves(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	rate := th.OnSignal(LevelMedium)
	assert.Equal(t, 500.0, rate)
}

func TestThrottleHighAppliesRatioTwice(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	rate := th.OnSignal(LevelHigh)
	assert.Equal(t, 250.0, rate)
}

func TestThrottleCriticalSnapsToMin(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	rate := th.OnSignal(LevelCritical)
	assert.Equal(t, 10.0, rate)
}

func TestThrottleBoundsStayWithinRange(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	for i := 0; i < 200; i++ {
		rate := th.OnSignal(LevelNone)
		assert.GreaterOrEqual(t, rate, th.config.MinSendRate)
		assert.LessOrEqual(t, rate, th.config.MaxSendRate)
	}
}

func TestShouldSendAtMax(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	th.currentRate = th.config.MaxSendRate
	assert.True(t, th.ShouldSend())
}

func TestShouldSendAtMin(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	th.currentRate = th.config.MinSendRate
	assert.False(t, th.ShouldSend())
}

func TestShouldSendProbabilistic(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	th.currentRate = th.config.MaxSendRate / 2
	th.randFloat = func() float64 { return 0.1 }
	assert.True(t, th.ShouldSend())

	th.randFloat = func() float64 { return 0.9 }
	assert.False(t, th.ShouldSend())
}

func TestRateAccessor(t *testing.T) {
	th := NewThrottle(DefaultThrottleConfig())
	assert.Equal(t, 1000.0, th.Rate())
}

func TestWatermarkNormalizeClampsBelowLow(t *testing.T) {
	w := Watermark{Low: 100, High: 1000}
	m := &Monitor{config: DefaultConfig()}
	_ = m
	assert.Equal(t, 0.0, w.normalize(0))
}

func TestWatermarkNormalizeClampsAboveHigh(t *testing.T) {
	w := Watermark{Low: 100, High: 1000}
	assert.Equal(t, 1.0, w.normalize(5000))
}

func TestWatermarkDegenerateReturnsZero(t *testing.T) {
	w := Watermark{Low: 100, High: 100}
	assert.Equal(t, 0.0, w.normalize(500))
}
