// Package rebalance manages online segment migration when cluster
// membership changes: planning which local segments now belong to a
// different node, migrating them through a throttled state machine, and
// accepting inbound segments from peers doing the same.
package rebalance

import (
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// NodeID identifies a cluster node.
type NodeID string

// SegmentID identifies a segment subject to rebalance.
type SegmentID uint64

// ShardID identifies a virtual shard (0..255 for 256 shards).
type ShardID uint16

// State is the rebalance engine's top-level lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateMigrating
	StateVerifying
	StateCompleted
	StateFailed
)

// Snapshot is a point-in-time view of the rebalance engine's state,
// including the payload fields that apply only to Migrating/Completed/
// Failed.
type Snapshot struct {
	State State

	// Migrating
	SegmentsTotal uint64
	SegmentsDone  uint64

	// Completed
	SegmentsMoved uint64
	BytesMoved    uint64
	DurationSecs  uint64

	// Failed
	FailureReason string
}

// Direction classifies a migration task as moving data off this node or
// onto it.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// MigrationTaskState is a single migration task's lifecycle state.
type MigrationTaskState int

const (
	TaskQueued MigrationTaskState = iota
	TaskTransferring
	TaskVerifying
	TaskCompleted
	TaskFailed
)

// MigrationTask is one segment's migration, in either direction.
type MigrationTask struct {
	SegmentID       SegmentID
	ShardID         ShardID
	Direction       Direction
	PeerNode        NodeID
	Bytes           uint64
	State           MigrationTaskState
	FailureReason   string
	CreatedAtSecs   uint64
	CompletedAtSecs *uint64
}

// Config configures the rebalance engine's concurrency and throttling.
type Config struct {
	MaxConcurrentMigrations uint32
	MaxBandwidthBytesPerSec uint64
	MaxIOPS                 uint32
	CooldownSecs            uint64
	AutoRebalance           bool
}

// DefaultConfig returns the rebalance defaults used across ClaudeFS nodes.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentMigrations: 4,
		MaxBandwidthBytesPerSec: 100 * 1024 * 1024,
		MaxIOPS:                 1000,
		CooldownSecs:            300,
		AutoRebalance:           true,
	}
}

// Stats summarizes the rebalance engine's lifetime migration activity.
type Stats struct {
	TotalRebalances     uint64
	SegmentsMigratedOut uint64
	SegmentsMigratedIn  uint64
	BytesMigratedOut    uint64
	BytesMigratedIn     uint64
	FailedMigrations    uint64
}

var nowFunc = func() uint64 { return uint64(time.Now().Unix()) }

// segmentDefaultBytes is assumed per planned outbound migration task when
// the caller has not supplied a size, mirroring the fixed 2 MiB segment
// size node_rebalance.rs assumes for planning.
const segmentDefaultBytes = 2 * 1024 * 1024

// Engine drives segment migration for one node as cluster topology
// changes.
type Engine struct {
	config        Config
	state         Snapshot
	localNode     NodeID
	shardMap      map[ShardID]NodeID
	localSegments map[SegmentID]ShardID
	migrations    []MigrationTask
	stats         Stats
	lastRebalance uint64
}

// New creates a rebalance engine for localNode.
func New(config Config, localNode NodeID) *Engine {
	logger.Info("creating rebalance engine", "local_node", localNode, "max_concurrent", config.MaxConcurrentMigrations)
	return &Engine{
		config:        config,
		state:         Snapshot{State: StateIdle},
		localNode:     localNode,
		shardMap:      make(map[ShardID]NodeID),
		localSegments: make(map[SegmentID]ShardID),
	}
}

// RegisterSegment records that segmentID, belonging to shardID, is stored
// locally.
func (e *Engine) RegisterSegment(segmentID SegmentID, shardID ShardID) {
	e.localSegments[segmentID] = shardID
}

// RemoveSegment stops tracking segmentID locally, returning its shard if
// it was tracked.
func (e *Engine) RemoveSegment(segmentID SegmentID) (ShardID, bool) {
	shardID, ok := e.localSegments[segmentID]
	if ok {
		delete(e.localSegments, segmentID)
	}
	return shardID, ok
}

// UpdateShardMap replaces the engine's view of which node owns each
// shard.
func (e *Engine) UpdateShardMap(newMap map[ShardID]NodeID) {
	e.shardMap = newMap
}

// PlanRebalance computes the set of outbound migrations needed: every
// locally-stored segment whose shard is now owned by a different node.
func (e *Engine) PlanRebalance() []MigrationTask {
	var tasks []MigrationTask
	now := nowFunc()

	for segmentID, shardID := range e.localSegments {
		owner, ok := e.shardMap[shardID]
		if !ok || owner == e.localNode {
			continue
		}
		tasks = append(tasks, MigrationTask{
			SegmentID:     segmentID,
			ShardID:       shardID,
			Direction:     Outbound,
			PeerNode:      owner,
			Bytes:         segmentDefaultBytes,
			State:         TaskQueued,
			CreatedAtSecs: now,
		})
	}

	e.migrations = tasks
	return tasks
}

// StartRebalance transitions Idle -> Planning -> Migrating (or directly to
// Completed if nothing needs to move).
func (e *Engine) StartRebalance() error {
	if e.state.State != StateIdle {
		return claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeInvalidTransition, "Engine.StartRebalance")
	}

	e.state = Snapshot{State: StatePlanning}
	tasks := e.PlanRebalance()
	total := uint64(len(tasks))

	if total > 0 {
		e.state = Snapshot{State: StateMigrating, SegmentsTotal: total}
	} else {
		e.state = Snapshot{State: StateCompleted}
	}

	e.stats.TotalRebalances++
	return nil
}

func (e *Engine) findTask(segmentID SegmentID) *MigrationTask {
	for i := range e.migrations {
		if e.migrations[i].SegmentID == segmentID {
			return &e.migrations[i]
		}
	}
	return nil
}

// AdvanceMigration steps one task forward: Queued -> Transferring ->
// Verifying -> Completed.
func (e *Engine) AdvanceMigration(segmentID SegmentID) (MigrationTaskState, error) {
	task := e.findTask(segmentID)
	if task == nil {
		return 0, claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeNodeNotFound, "Engine.AdvanceMigration")
	}

	switch task.State {
	case TaskQueued:
		task.State = TaskTransferring
	case TaskTransferring:
		task.State = TaskVerifying
	case TaskVerifying:
		switch task.Direction {
		case Outbound:
			e.stats.SegmentsMigratedOut++
			e.stats.BytesMigratedOut += task.Bytes
		case Inbound:
			e.stats.SegmentsMigratedIn++
			e.stats.BytesMigratedIn += task.Bytes
		}
		now := nowFunc()
		task.CompletedAtSecs = &now
		if e.state.State == StateMigrating {
			e.state.SegmentsDone++
		}
		task.State = TaskCompleted
	case TaskCompleted:
		return 0, claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeAlreadyTerminal, "Engine.AdvanceMigration")
	case TaskFailed:
		return 0, claudefserrors.New(claudefserrors.KindCompaction, claudefserrors.CodeAlreadyTerminal, "Engine.AdvanceMigration")
	}

	return task.State, nil
}

// FailMigration marks a task as Failed, recording reason.
func (e *Engine) FailMigration(segmentID SegmentID, reason string) error {
	task := e.findTask(segmentID)
	if task == nil {
		return claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeNodeNotFound, "Engine.FailMigration")
	}

	logger.Warn("migration failed", "segment_id", segmentID, "reason", reason)
	task.State = TaskFailed
	task.FailureReason = reason
	e.stats.FailedMigrations++
	return nil
}

// CompleteRebalance finalizes the rebalance once every task has reached a
// terminal state.
func (e *Engine) CompleteRebalance() (Stats, error) {
	var pending int
	for _, t := range e.migrations {
		if t.State == TaskQueued || t.State == TaskTransferring || t.State == TaskVerifying {
			pending++
		}
	}
	if pending > 0 {
		return Stats{}, claudefserrors.New(claudefserrors.KindScaling, claudefserrors.CodeInvalidTransition, "Engine.CompleteRebalance")
	}

	var segmentsMoved, bytesMoved uint64
	segmentsMoved = uint64(len(e.migrations))
	for _, t := range e.migrations {
		bytesMoved += t.Bytes
	}

	e.state = Snapshot{State: StateCompleted, SegmentsMoved: segmentsMoved, BytesMoved: bytesMoved}
	e.lastRebalance = nowFunc()

	logger.Info("rebalance completed", "segments_moved", segmentsMoved, "bytes_moved", bytesMoved)
	return e.stats, nil
}

// AbortRebalance transitions the engine to Failed and fails every
// non-terminal task.
func (e *Engine) AbortRebalance(reason string) {
	logger.Warn("rebalance aborted", "reason", reason)
	e.state = Snapshot{State: StateFailed, FailureReason: reason}

	for i := range e.migrations {
		if e.migrations[i].State != TaskCompleted && e.migrations[i].State != TaskFailed {
			e.migrations[i].State = TaskFailed
			e.migrations[i].FailureReason = "rebalance aborted"
		}
	}
}

// AcceptInbound registers a new inbound migration task accepted from a
// peer node.
func (e *Engine) AcceptInbound(segmentID SegmentID, shardID ShardID, sourceNode NodeID, bytes uint64) {
	e.migrations = append(e.migrations, MigrationTask{
		SegmentID:     segmentID,
		ShardID:       shardID,
		Direction:     Inbound,
		PeerNode:      sourceNode,
		Bytes:         bytes,
		State:         TaskQueued,
		CreatedAtSecs: nowFunc(),
	})
}

// CanAcceptMore reports whether another concurrent migration can start.
func (e *Engine) CanAcceptMore() bool {
	return e.ActiveMigrationCount() < e.config.MaxConcurrentMigrations
}

// ActiveMigrationCount returns the number of non-terminal migrations.
func (e *Engine) ActiveMigrationCount() uint32 {
	var count uint32
	for _, t := range e.migrations {
		if t.State == TaskQueued || t.State == TaskTransferring || t.State == TaskVerifying {
			count++
		}
	}
	return count
}

// ProgressPct returns the engine's migration progress in [0, 100].
func (e *Engine) ProgressPct() float64 {
	switch e.state.State {
	case StateMigrating:
		if e.state.SegmentsTotal > 0 {
			return (float64(e.state.SegmentsDone) / float64(e.state.SegmentsTotal)) * 100.0
		}
		return 0.0
	case StateCompleted:
		return 100.0
	default:
		return 0.0
	}
}

// IsCooldownActive reports whether currentTime is still within the
// configured cooldown window since the last completed rebalance.
func (e *Engine) IsCooldownActive(currentTime uint64) bool {
	var elapsed uint64
	if currentTime > e.lastRebalance {
		elapsed = currentTime - e.lastRebalance
	}
	return elapsed < e.config.CooldownSecs
}

// State returns the engine's current snapshot.
func (e *Engine) State() Snapshot {
	return e.state
}

// Stats returns the engine's lifetime statistics.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Migrations returns every tracked migration task.
func (e *Engine) Migrations() []MigrationTask {
	return e.migrations
}

// LocalSegments returns the segments currently tracked as local.
func (e *Engine) LocalSegments() map[SegmentID]ShardID {
	return e.localSegments
}

// ShardMap returns the engine's current shard ownership map.
func (e *Engine) ShardMap() map[ShardID]NodeID {
	return e.shardMap
}
