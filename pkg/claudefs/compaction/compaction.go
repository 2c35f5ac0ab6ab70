// Package compaction implements background segment compaction and garbage
// collection. It tracks per-segment live/dead byte accounting, selects GC
// candidates by a dead-bytes-weighted priority score, and drives compaction
// tasks through a Pending -> Selecting -> Reading -> Writing -> Verifying ->
// Completed/Failed state machine.
package compaction

import (
	"fmt"
	"sort"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// SegmentID identifies a stored segment.
type SegmentID uint64

// String renders the segment ID in the teacher's "seg:<n>" convention.
func (id SegmentID) String() string {
	return fmt.Sprintf("seg:%d", uint64(id))
}

// SegmentInfo describes a tracked segment's live/dead byte accounting.
type SegmentInfo struct {
	ID               SegmentID
	TotalBytes       uint64
	LiveBytes        uint64
	DeadBytes        uint64
	BlockCount       uint32
	LiveBlockCount   uint32
	CreatedAtSecs    uint64
	LastModifiedSecs uint64
}

// NewSegmentInfo creates a SegmentInfo, deriving dead bytes from total minus
// live.
func NewSegmentInfo(id SegmentID, totalBytes, liveBytes uint64, blockCount, liveBlockCount uint32, createdAtSecs uint64) SegmentInfo {
	deadBytes := uint64(0)
	if totalBytes > liveBytes {
		deadBytes = totalBytes - liveBytes
	}
	return SegmentInfo{
		ID:               id,
		TotalBytes:       totalBytes,
		LiveBytes:        liveBytes,
		DeadBytes:        deadBytes,
		BlockCount:       blockCount,
		LiveBlockCount:   liveBlockCount,
		CreatedAtSecs:    createdAtSecs,
		LastModifiedSecs: createdAtSecs,
	}
}

// DeadPct returns the percentage of dead bytes in [0, 100].
func (s SegmentInfo) DeadPct() float64 {
	if s.TotalBytes == 0 {
		return 0.0
	}
	return (float64(s.DeadBytes) / float64(s.TotalBytes)) * 100.0
}

// Config configures the compaction engine's selection and concurrency
// policy.
type Config struct {
	MinDeadPct           float64
	MaxConcurrent        uint32
	TargetSegmentFillPct float64
	GcIntervalSecs       uint64
	MinSegmentAgeSecs    uint64
}

// DefaultConfig returns the compaction defaults used across ClaudeFS nodes.
func DefaultConfig() Config {
	return Config{
		MinDeadPct:           30.0,
		MaxConcurrent:        2,
		TargetSegmentFillPct: 90.0,
		GcIntervalSecs:       300,
		MinSegmentAgeSecs:    60,
	}
}

// State is a compaction task's position in its lifecycle state machine.
type State int

const (
	StatePending State = iota
	StateSelecting
	StateReading
	StateWriting
	StateVerifying
	StateCompleted
	StateFailed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateSelecting:
		return "Selecting"
	case StateReading:
		return "Reading"
	case StateWriting:
		return "Writing"
	case StateVerifying:
		return "Verifying"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Task is a single compaction task operating over one or more source
// segments.
type Task struct {
	SourceSegments  []SegmentID
	TargetSegment   *SegmentID
	State           State
	FailureReason   string
	BytesToReclaim  uint64
	BytesReclaimed  uint64
	StartedAtSecs   *uint64
	CompletedAtSecs *uint64
}

func newTask(sourceSegments []SegmentID, bytesToReclaim uint64) Task {
	return Task{
		SourceSegments: sourceSegments,
		State:          StatePending,
		BytesToReclaim: bytesToReclaim,
	}
}

// GcCandidate is a segment selected for garbage collection along with its
// priority score.
type GcCandidate struct {
	Segment  SegmentInfo
	DeadPct  float64
	Priority float64
}

func newGcCandidate(segment SegmentInfo, deadPct float64) GcCandidate {
	priority := deadPct * (float64(segment.TotalBytes) / (1024.0 * 1024.0))
	return GcCandidate{Segment: segment, DeadPct: deadPct, Priority: priority}
}

// Stats summarizes the compaction engine's current and lifetime state.
type Stats struct {
	TotalCompactions          uint64
	ActiveCompactions         uint64
	PendingCompactions        uint64
	TotalBytesReclaimed       uint64
	TotalBytesProcessed       uint64
	AvgReclaimPct             float64
	SegmentsTracked           int
	SegmentsNeedingCompaction int
}

// nowFunc returns the current unix time in seconds; overridable in tests.
var nowFunc = func() uint64 { return uint64(time.Now().Unix()) }

// Engine drives background segment compaction and garbage collection.
type Engine struct {
	config              Config
	tasks               []Task
	segments            map[SegmentID]SegmentInfo
	totalReclaimedBytes uint64
	totalCompactions    uint64
}

// New creates a compaction engine with the given configuration.
func New(config Config) *Engine {
	return &Engine{
		config:   config,
		segments: make(map[SegmentID]SegmentInfo),
	}
}

// RegisterSegment begins tracking a segment.
func (e *Engine) RegisterSegment(info SegmentInfo) {
	logger.Debug("registering segment", "segment", info.ID.String())
	e.segments[info.ID] = info
}

// UpdateSegment updates the live byte/block accounting for a tracked
// segment.
func (e *Engine) UpdateSegment(id SegmentID, liveBytes uint64, liveBlocks uint32) error {
	seg, ok := e.segments[id]
	if !ok {
		return claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeUnknownSegment, "Engine.UpdateSegment")
	}

	seg.LiveBytes = liveBytes
	if seg.TotalBytes > liveBytes {
		seg.DeadBytes = seg.TotalBytes - liveBytes
	} else {
		seg.DeadBytes = 0
	}
	seg.LiveBlockCount = liveBlocks
	if liveBlocks > seg.BlockCount {
		seg.BlockCount = liveBlocks
	}
	seg.LastModifiedSecs = nowFunc()
	e.segments[id] = seg

	logger.Debug("updated segment", "segment", id.String(), "live_bytes", liveBytes, "dead_bytes", seg.DeadBytes)
	return nil
}

// RemoveSegment stops tracking a segment.
func (e *Engine) RemoveSegment(id SegmentID) {
	logger.Debug("removing segment", "segment", id.String())
	delete(e.segments, id)
}

// SegmentDeadPct returns the dead percentage for a tracked segment.
func (e *Engine) SegmentDeadPct(id SegmentID) (float64, bool) {
	seg, ok := e.segments[id]
	if !ok {
		return 0, false
	}
	return seg.DeadPct(), true
}

// FindCandidates returns segments exceeding the dead-byte threshold and
// minimum age, sorted by priority descending.
func (e *Engine) FindCandidates() []GcCandidate {
	now := nowFunc()

	var candidates []GcCandidate
	for _, seg := range e.segments {
		age := uint64(0)
		if now > seg.CreatedAtSecs {
			age = now - seg.CreatedAtSecs
		}
		oldEnough := age >= e.config.MinSegmentAgeSecs
		aboveThreshold := seg.DeadPct() >= e.config.MinDeadPct
		if oldEnough && aboveThreshold {
			candidates = append(candidates, newGcCandidate(seg, seg.DeadPct()))
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	return candidates
}

// CreateCompactionTask creates a new task over the given segments and
// returns its index.
func (e *Engine) CreateCompactionTask(segmentIDs []SegmentID) (int, error) {
	for _, id := range segmentIDs {
		if _, ok := e.segments[id]; !ok {
			return 0, claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeUnknownSegment, "Engine.CreateCompactionTask")
		}
	}

	var bytesToReclaim uint64
	for _, id := range segmentIDs {
		bytesToReclaim += e.segments[id].DeadBytes
	}

	task := newTask(segmentIDs, bytesToReclaim)
	idx := len(e.tasks)
	e.tasks = append(e.tasks, task)

	logger.Info("created compaction task",
		"task", idx, "segments", len(segmentIDs), "bytes_to_reclaim", bytesToReclaim)
	return idx, nil
}

// AdvanceTask moves a task to its next state and returns the new state.
func (e *Engine) AdvanceTask(taskIdx int) (State, error) {
	if taskIdx < 0 || taskIdx >= len(e.tasks) {
		return 0, claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeUnknownSegment, "Engine.AdvanceTask")
	}
	task := &e.tasks[taskIdx]

	if task.State == StateCompleted || task.State == StateFailed {
		return 0, claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeAlreadyTerminal, "Engine.AdvanceTask")
	}

	now := nowFunc()
	if task.StartedAtSecs == nil {
		task.StartedAtSecs = &now
	}

	var next State
	switch task.State {
	case StatePending:
		next = StateSelecting
	case StateSelecting:
		next = StateReading
	case StateReading:
		next = StateWriting
	case StateWriting:
		next = StateVerifying
	case StateVerifying:
		next = StateCompleted
		task.CompletedAtSecs = &now
	default:
		return 0, claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeInvalidTransition, "Engine.AdvanceTask")
	}

	logger.Debug("task advancing", "task", taskIdx, "from", task.State.String(), "to", next.String())
	task.State = next
	return next, nil
}

// FailTask marks a task as failed with the given reason.
func (e *Engine) FailTask(taskIdx int, reason string) error {
	if taskIdx < 0 || taskIdx >= len(e.tasks) {
		return claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeUnknownSegment, "Engine.FailTask")
	}
	logger.Warn("task failed", "task", taskIdx, "reason", reason)
	e.tasks[taskIdx].State = StateFailed
	e.tasks[taskIdx].FailureReason = reason
	return nil
}

// CompleteTask marks a task as completed with the actual bytes reclaimed.
func (e *Engine) CompleteTask(taskIdx int, bytesReclaimed uint64) error {
	if taskIdx < 0 || taskIdx >= len(e.tasks) {
		return claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeUnknownSegment, "Engine.CompleteTask")
	}
	task := &e.tasks[taskIdx]

	now := nowFunc()
	task.State = StateCompleted
	task.CompletedAtSecs = &now
	task.BytesReclaimed = bytesReclaimed

	e.totalReclaimedBytes += bytesReclaimed
	e.totalCompactions++

	logger.Info("task completed", "task", taskIdx, "bytes_reclaimed", bytesReclaimed)
	return nil
}

// ActiveTasks returns every task not yet Completed or Failed.
func (e *Engine) ActiveTasks() []Task {
	var active []Task
	for _, t := range e.tasks {
		if t.State != StateCompleted && t.State != StateFailed {
			active = append(active, t)
		}
	}
	return active
}

// CanStartCompaction reports whether a new compaction task can begin given
// the configured concurrency limit.
func (e *Engine) CanStartCompaction() bool {
	return uint32(len(e.ActiveTasks())) < e.config.MaxConcurrent
}

// Stats returns current compaction engine statistics.
func (e *Engine) Stats() Stats {
	active := e.ActiveTasks()
	var pending uint64
	for _, t := range active {
		if t.State == StatePending {
			pending++
		}
	}

	candidates := e.FindCandidates()

	var totalProcessed uint64
	var totalReclaimed float64
	for _, t := range e.tasks {
		if t.State == StateCompleted {
			totalProcessed += t.BytesToReclaim
			totalReclaimed += float64(t.BytesReclaimed)
		}
	}

	avgReclaimPct := 0.0
	if e.totalCompactions > 0 && totalProcessed > 0 {
		avgReclaimPct = (totalReclaimed / float64(totalProcessed)) * 100.0
	}

	return Stats{
		TotalCompactions:          e.totalCompactions,
		ActiveCompactions:         uint64(len(active)),
		PendingCompactions:        pending,
		TotalBytesReclaimed:       e.totalReclaimedBytes,
		TotalBytesProcessed:       totalProcessed,
		AvgReclaimPct:             avgReclaimPct,
		SegmentsTracked:           len(e.segments),
		SegmentsNeedingCompaction: len(candidates),
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.config
}
