// Package backpressure fuses queue depth, memory pressure and throughput
// signals into a single overload level, and translates that level into a
// send-rate throttle that callers on the hot path consult before admitting
// more work.
package backpressure

import (
	"math/rand"

	"github.com/marmos91/dittofs/internal/logger"
)

// Level is the fused overload classification.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

// String returns the human-readable level name.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "None"
	case LevelLow:
		return "Low"
	case LevelMedium:
		return "Medium"
	case LevelHigh:
		return "High"
	case LevelCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Watermark maps a raw signal value through a low/high band into [0, 1].
type Watermark struct {
	Low  float64
	High float64
}

func (w Watermark) normalize(value float64) float64 {
	if w.High <= w.Low {
		return 0
	}
	n := (value - w.Low) / (w.High - w.Low)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// Config configures the monitor's signal weights, watermarks and overload
// level thresholds.
type Config struct {
	Enabled bool

	QueueWeight      float64
	MemoryWeight     float64
	ThroughputWeight float64

	QueueWatermark      Watermark
	MemoryWatermark     Watermark
	ThroughputWatermark Watermark

	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64
	LowThreshold      float64
}

// DefaultConfig returns the backpressure defaults used across ClaudeFS
// nodes.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		QueueWeight:         0.4,
		MemoryWeight:        0.35,
		ThroughputWeight:    0.25,
		QueueWatermark:      Watermark{Low: 100, High: 1000},
		MemoryWatermark:     Watermark{Low: 60, High: 85},
		ThroughputWatermark: Watermark{Low: 70, High: 90},
		CriticalThreshold:   0.8,
		HighThreshold:       0.6,
		MediumThreshold:     0.4,
		LowThreshold:        0.2,
	}
}

// Signals is one sample of the three raw inputs the monitor fuses.
type Signals struct {
	QueueDepth        float64
	MemoryPercent     float64
	ThroughputPercent float64
}

// Monitor fuses queue, memory and throughput signals into an overload
// score and level.
type Monitor struct {
	config Config
}

// New creates a backpressure monitor.
func New(config Config) *Monitor {
	return &Monitor{config: config}
}

// Score computes the composite overload score in [0, 1].
func (m *Monitor) Score(s Signals) float64 {
	if !m.config.Enabled {
		return 0
	}

	queue := m.config.QueueWatermark.normalize(s.QueueDepth)
	memory := m.config.MemoryWatermark.normalize(s.MemoryPercent)
	throughput := m.config.ThroughputWatermark.normalize(s.ThroughputPercent)

	score := queue*m.config.QueueWeight + memory*m.config.MemoryWeight + throughput*m.config.ThroughputWeight
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Level computes the overload level for s.
func (m *Monitor) Level(s Signals) Level {
	if !m.config.Enabled {
		return LevelNone
	}

	score := m.Score(s)
	switch {
	case score >= m.config.CriticalThreshold:
		return LevelCritical
	case score >= m.config.HighThreshold:
		return LevelHigh
	case score >= m.config.MediumThreshold:
		return LevelMedium
	case score >= m.config.LowThreshold:
		return LevelLow
	default:
		return LevelNone
	}
}

// IsOverloaded reports whether level is at least Medium.
func IsOverloaded(l Level) bool {
	return l >= LevelMedium
}

// ThrottleConfig configures a Throttle's rate bounds and step sizes.
type ThrottleConfig struct {
	MinSendRate   float64
	MaxSendRate   float64
	InitialRate   float64
	DecreaseRatio float64
	IncreaseStep  float64
}

// DefaultThrottleConfig returns the throttle defaults.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MinSendRate:   10,
		MaxSendRate:   10000,
		InitialRate:   1000,
		DecreaseRatio: 0.5,
		IncreaseStep:  100,
	}
}

// Throttle adjusts a send rate in response to overload level signals and
// decides, probabilistically, whether a given send should proceed.
type Throttle struct {
	config      ThrottleConfig
	currentRate float64
	randFloat   func() float64
}

// NewThrottle creates a throttle starting at its configured initial rate.
func NewThrottle(config ThrottleConfig) *Throttle {
	return &Throttle{config: config, currentRate: config.InitialRate, randFloat: rand.Float64}
}

func (t *Throttle) clamp() {
	if t.currentRate < t.config.MinSendRate {
		t.currentRate = t.config.MinSendRate
	}
	if t.currentRate > t.config.MaxSendRate {
		t.currentRate = t.config.MaxSendRate
	}
}

// OnSignal adjusts the current rate according to the observed overload
// level and returns the new rate.
func (t *Throttle) OnSignal(l Level) float64 {
	switch l {
	case LevelNone:
		t.currentRate += t.config.IncreaseStep
	case LevelLow:
		// hold
	case LevelMedium:
		t.currentRate *= t.config.DecreaseRatio
	case LevelHigh:
		t.currentRate *= t.config.DecreaseRatio * t.config.DecreaseRatio
	case LevelCritical:
		t.currentRate = t.config.MinSendRate
	}
	t.clamp()

	logger.Debug("throttle adjusted", "level", l.String(), "rate", t.currentRate)
	return t.currentRate
}

// Rate returns the throttle's current send rate.
func (t *Throttle) Rate() float64 {
	return t.currentRate
}

// ShouldSend decides probabilistically whether a send should proceed at
// the current rate: always true at or above max, always false at or below
// min, otherwise true with probability rate/max.
func (t *Throttle) ShouldSend() bool {
	if t.currentRate >= t.config.MaxSendRate {
		return true
	}
	if t.currentRate <= t.config.MinSendRate {
		return false
	}
	return t.randFloat() < t.currentRate/t.config.MaxSendRate
}
