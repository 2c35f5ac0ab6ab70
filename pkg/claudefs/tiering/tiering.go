// Package tiering classifies segments into storage tiers based on observed
// access patterns, and surfaces eviction candidates by a recency/size/
// frequency-weighted score.
package tiering

import (
	"fmt"
	"sort"

	"github.com/marmos91/dittofs/internal/logger"
)

// Class is a storage tier assignment.
type Class int

const (
	Hot Class = iota
	Warm
	Cold
	Frozen
)

// String returns the human-readable tier name.
func (c Class) String() string {
	switch c {
	case Hot:
		return "Hot"
	case Warm:
		return "Warm"
	case Cold:
		return "Cold"
	case Frozen:
		return "Frozen"
	default:
		return "Unknown"
	}
}

// OverridePolicy is an operator-forced placement that bypasses
// classification.
type OverridePolicy int

const (
	Auto OverridePolicy = iota
	PinFlash
	ForceS3
)

// AccessRecord accumulates the observations used to classify one segment.
type AccessRecord struct {
	SegmentID           uint64
	AccessCount         uint64
	LastAccessTimeSecs  uint64
	FirstAccessTimeSecs uint64
	BytesRead           uint64
	BytesWritten        uint64
	SequentialReads     uint64
	RandomReads         uint64
	SizeBytes           uint64
}

func newAccessRecord(segmentID, sizeBytes, currentTime uint64) *AccessRecord {
	return &AccessRecord{
		SegmentID:           segmentID,
		LastAccessTimeSecs:  currentTime,
		FirstAccessTimeSecs: currentTime,
		SizeBytes:           sizeBytes,
	}
}

// Pattern is the access shape detected from an AccessRecord's history.
type Pattern int

const (
	Sequential Pattern = iota
	Random
	WriteOnceReadMany
	WriteHeavy
	ReadOnce
	Unknown
)

// String returns the human-readable pattern name.
func (p Pattern) String() string {
	switch p {
	case Sequential:
		return "Sequential"
	case Random:
		return "Random"
	case WriteOnceReadMany:
		return "WriteOnceReadMany"
	case WriteHeavy:
		return "WriteHeavy"
	case ReadOnce:
		return "ReadOnce"
	default:
		return "Unknown"
	}
}

// Decision is the result of classifying one segment at one point in time.
type Decision struct {
	SegmentID       uint64
	CurrentTier     Class
	RecommendedTier Class
	Score           float64
	Pattern         Pattern
	Override        OverridePolicy
	Reason          string
}

// Config configures the tiering engine's thresholds and scoring weights.
type Config struct {
	AnalysisWindowSecs uint64
	HotThreshold       uint64
	WarmThreshold      uint64
	FrozenAfterSecs    uint64
	RecencyWeight      float64
	SizeWeight         float64
	FrequencyWeight    float64
	HighWatermark      float64
	LowWatermark       float64
}

// DefaultConfig returns the tiering defaults used across ClaudeFS nodes.
func DefaultConfig() Config {
	return Config{
		AnalysisWindowSecs: 3600,
		HotThreshold:       100,
		WarmThreshold:      10,
		FrozenAfterSecs:    86400,
		RecencyWeight:      1.0,
		SizeWeight:         0.5,
		FrequencyWeight:    0.3,
		HighWatermark:      0.8,
		LowWatermark:       0.6,
	}
}

// Stats summarizes the engine's lifetime classification activity.
type Stats struct {
	DecisionsMade      uint64
	PromotionsToHot    uint64
	DemotionsToCold    uint64
	DemotionsToFrozen  uint64
	OverridesApplied   uint64
	PatternsDetected   uint64
	EvictionCandidates uint64
}

// Engine classifies registered segments into tiers and scores them for
// eviction.
type Engine struct {
	config        Config
	accessRecords map[uint64]*AccessRecord
	overrides     map[uint64]OverridePolicy
	currentTiers  map[uint64]Class
	stats         Stats
}

// New creates a tiering engine.
func New(config Config) *Engine {
	return &Engine{
		config:        config,
		accessRecords: make(map[uint64]*AccessRecord),
		overrides:     make(map[uint64]OverridePolicy),
		currentTiers:  make(map[uint64]Class),
	}
}

// RegisterSegment begins tracking a segment, defaulting it to Cold.
func (e *Engine) RegisterSegment(segmentID, sizeBytes, currentTime uint64) {
	if _, ok := e.accessRecords[segmentID]; !ok {
		e.accessRecords[segmentID] = newAccessRecord(segmentID, sizeBytes, currentTime)
	}
	if _, ok := e.currentTiers[segmentID]; !ok {
		e.currentTiers[segmentID] = Cold
	}
}

// RemoveSegment stops tracking a segment entirely.
func (e *Engine) RemoveSegment(segmentID uint64) {
	delete(e.accessRecords, segmentID)
	delete(e.overrides, segmentID)
	delete(e.currentTiers, segmentID)
}

// RecordAccess records one read or write access against a segment.
func (e *Engine) RecordAccess(segmentID, bytes uint64, isSequential, isWrite bool, currentTime uint64) {
	record, ok := e.accessRecords[segmentID]
	if !ok {
		record = newAccessRecord(segmentID, 0, currentTime)
		e.accessRecords[segmentID] = record
	}

	record.AccessCount++
	record.LastAccessTimeSecs = currentTime

	if isWrite {
		record.BytesWritten += bytes
	} else {
		record.BytesRead += bytes
		if isSequential {
			record.SequentialReads++
		} else {
			record.RandomReads++
		}
	}

	logger.Debug("recorded segment access", "segment_id", segmentID, "access_count", record.AccessCount, "is_write", isWrite)
}

// SetOverride forces a segment's placement, bypassing classification.
func (e *Engine) SetOverride(segmentID uint64, policy OverridePolicy) {
	e.overrides[segmentID] = policy
	e.stats.OverridesApplied++
}

// Override returns the configured override policy for a segment, or Auto
// if none is set.
func (e *Engine) Override(segmentID uint64) OverridePolicy {
	if p, ok := e.overrides[segmentID]; ok {
		return p
	}
	return Auto
}

// ClassifySegment determines a segment's tier from its access history,
// ignoring any override.
func (e *Engine) ClassifySegment(segmentID, currentTime uint64) Class {
	record, ok := e.accessRecords[segmentID]
	if !ok {
		return Cold
	}

	var age uint64
	if currentTime > record.LastAccessTimeSecs {
		age = currentTime - record.LastAccessTimeSecs
	}

	if age > e.config.FrozenAfterSecs {
		return Frozen
	}
	if record.AccessCount >= e.config.HotThreshold {
		return Hot
	}
	if record.AccessCount >= e.config.WarmThreshold {
		return Warm
	}
	return Cold
}

// DetectPattern classifies a segment's access shape from its history.
func (e *Engine) DetectPattern(segmentID uint64) Pattern {
	record, ok := e.accessRecords[segmentID]
	if !ok {
		return Unknown
	}

	if record.BytesWritten > 0 && record.BytesRead == 0 && record.AccessCount == 1 {
		return WriteOnceReadMany
	}
	if record.BytesWritten > record.BytesRead*10 && record.BytesWritten > 1024*1024 {
		return WriteHeavy
	}
	if record.AccessCount == 1 && record.BytesRead > 0 {
		return ReadOnce
	}

	totalReads := record.SequentialReads + record.RandomReads
	if totalReads > 0 {
		ratio := float64(record.SequentialReads) / float64(totalReads)
		if ratio > 0.8 {
			return Sequential
		}
		if ratio < 0.2 {
			return Random
		}
	}

	if record.BytesWritten > 0 && record.BytesRead > 0 && record.BytesRead > record.BytesWritten*5 {
		return WriteOnceReadMany
	}

	return Unknown
}

// ComputeEvictionScore scores a segment for eviction: higher means more
// evictable. Older, larger, and less-frequently-accessed segments score
// higher.
func (e *Engine) ComputeEvictionScore(segmentID, currentTime uint64) float64 {
	record, ok := e.accessRecords[segmentID]
	if !ok {
		return 0
	}

	var age float64
	if currentTime > record.LastAccessTimeSecs {
		age = float64(currentTime - record.LastAccessTimeSecs)
	}
	frequency := float64(record.AccessCount)
	size := float64(record.SizeBytes)

	ageScore := age * e.config.RecencyWeight
	sizePenalty := size * e.config.SizeWeight
	frequencyBonus := frequency * e.config.FrequencyWeight

	return ageScore + sizePenalty - frequencyBonus
}

// GetEvictionCandidates returns the top count segments by eviction score,
// excluding any segment with a non-Auto override.
func (e *Engine) GetEvictionCandidates(currentTime uint64, count int) []Decision {
	e.stats.EvictionCandidates = uint64(count)

	var candidates []Decision
	for segmentID := range e.accessRecords {
		if e.Override(segmentID) != Auto {
			continue
		}
		currentTier := e.currentTiers[segmentID]
		candidates = append(candidates, Decision{
			SegmentID:       segmentID,
			CurrentTier:     currentTier,
			RecommendedTier: Cold,
			Score:           e.ComputeEvictionScore(segmentID, currentTime),
			Pattern:         e.DetectPattern(segmentID),
			Override:        Auto,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if count < len(candidates) {
		candidates = candidates[:count]
	}

	return candidates
}

// MakeDecision classifies a segment, applying any override, and updates
// the engine's recorded tier and stats.
func (e *Engine) MakeDecision(segmentID, currentTime uint64) Decision {
	override := e.Override(segmentID)
	currentTier := e.currentTiers[segmentID]
	pattern := e.DetectPattern(segmentID)
	score := e.ComputeEvictionScore(segmentID, currentTime)

	if pattern != Unknown {
		e.stats.PatternsDetected++
	}

	var recommendedTier Class
	var reason string

	switch override {
	case PinFlash:
		recommendedTier = Hot
		reason = "override: pinned to flash"
	case ForceS3:
		recommendedTier = Cold
		reason = "override: forced to S3"
	default:
		recommendedTier = e.ClassifySegment(segmentID, currentTime)
		record := e.accessRecords[segmentID]
		switch recommendedTier {
		case Hot:
			reason = fmt.Sprintf("access count %d >= hot threshold %d", record.AccessCount, e.config.HotThreshold)
		case Warm:
			reason = fmt.Sprintf("access count %d >= warm threshold %d", record.AccessCount, e.config.WarmThreshold)
		case Frozen:
			var age uint64
			if currentTime > record.LastAccessTimeSecs {
				age = currentTime - record.LastAccessTimeSecs
			}
			reason = fmt.Sprintf("no access for %d seconds", age)
		default:
			reason = "low access frequency"
		}
	}

	if recommendedTier != currentTier {
		switch {
		case recommendedTier == Hot && currentTier != Hot:
			e.stats.PromotionsToHot++
		case recommendedTier == Cold && currentTier != Cold:
			e.stats.DemotionsToCold++
		case recommendedTier == Frozen:
			e.stats.DemotionsToFrozen++
		}
		e.currentTiers[segmentID] = recommendedTier
	}

	e.stats.DecisionsMade++

	return Decision{
		SegmentID:       segmentID,
		CurrentTier:     currentTier,
		RecommendedTier: recommendedTier,
		Score:           score,
		Pattern:         pattern,
		Override:        override,
		Reason:          reason,
	}
}

// SegmentCount returns the number of tracked segments.
func (e *Engine) SegmentCount() int {
	return len(e.accessRecords)
}

// Tier returns a segment's currently recorded tier, if tracked.
func (e *Engine) Tier(segmentID uint64) (Class, bool) {
	t, ok := e.currentTiers[segmentID]
	return t, ok
}

// Stats returns the engine's lifetime statistics.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.config
}
