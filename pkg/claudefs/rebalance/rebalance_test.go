package rebalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineIdleState(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	assert.Equal(t, StateIdle, e.State().State)
	assert.Equal(t, uint64(0), e.Stats().TotalRebalances)
}

func TestRegisterAndRemoveSegment(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.RegisterSegment(1, 10)
	e.RegisterSegment(2, 20)

	assert.Len(t, e.LocalSegments(), 2)
	shard, ok := e.RemoveSegment(1)
	require.True(t, ok)
	assert.Equal(t, ShardID(10), shard)
	assert.Len(t, e.LocalSegments(), 1)

	_, ok = e.RemoveSegment(999)
	assert.False(t, ok)
}

func TestUpdateShardMap(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.UpdateShardMap(map[ShardID]NodeID{0: "node1", 1: "node2"})
	assert.Len(t, e.ShardMap(), 2)
	assert.Equal(t, NodeID("node1"), e.ShardMap()[0])
}

func TestPlanRebalanceNoChanges(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.UpdateShardMap(map[ShardID]NodeID{0: "node1", 1: "node1"})
	e.RegisterSegment(1, 0)
	e.RegisterSegment(2, 1)

	tasks := e.PlanRebalance()
	assert.Empty(t, tasks)
}

func TestPlanRebalanceNodeAdded(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.UpdateShardMap(map[ShardID]NodeID{0: "node1", 1: "node1"})
	e.RegisterSegment(1, 0)
	e.RegisterSegment(2, 1)

	e.UpdateShardMap(map[ShardID]NodeID{0: "node2", 1: "node1"})

	tasks := e.PlanRebalance()
	require.Len(t, tasks, 1)
	assert.Equal(t, SegmentID(1), tasks[0].SegmentID)
	assert.Equal(t, Outbound, tasks[0].Direction)
	assert.Equal(t, NodeID("node2"), tasks[0].PeerNode)
}

func TestPlanRebalanceNodeRemoved(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.UpdateShardMap(map[ShardID]NodeID{0: "node1", 1: "node2"})
	e.RegisterSegment(1, 0)

	e.UpdateShardMap(map[ShardID]NodeID{0: "node1", 1: "node1"})

	tasks := e.PlanRebalance()
	assert.Empty(t, tasks)
}

func TestStartRebalanceFromIdle(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.UpdateShardMap(map[ShardID]NodeID{0: "node2"})
	e.RegisterSegment(1, 0)

	require.NoError(t, e.StartRebalance())
	assert.Equal(t, StateMigrating, e.State().State)
}

func TestStartRebalanceNotIdleFails(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.UpdateShardMap(map[ShardID]NodeID{0: "node2"})
	e.RegisterSegment(1, 0)

	require.NoError(t, e.StartRebalance())
	require.Error(t, e.StartRebalance())
}

func setupMigratingEngine(t *testing.T) *Engine {
	e := New(DefaultConfig(), "node1")
	e.UpdateShardMap(map[ShardID]NodeID{0: "node2"})
	e.RegisterSegment(1, 0)
	require.NoError(t, e.StartRebalance())
	return e
}

func TestAdvanceMigrationQueuedToTransferring(t *testing.T) {
	e := setupMigratingEngine(t)
	state, err := e.AdvanceMigration(1)
	require.NoError(t, err)
	assert.Equal(t, TaskTransferring, state)
}

func TestAdvanceMigrationTransferringToVerifying(t *testing.T) {
	e := setupMigratingEngine(t)
	_, err := e.AdvanceMigration(1)
	require.NoError(t, err)
	state, err := e.AdvanceMigration(1)
	require.NoError(t, err)
	assert.Equal(t, TaskVerifying, state)
}

func TestAdvanceMigrationVerifyingToCompleted(t *testing.T) {
	e := setupMigratingEngine(t)
	_, err := e.AdvanceMigration(1)
	require.NoError(t, err)
	_, err = e.AdvanceMigration(1)
	require.NoError(t, err)
	state, err := e.AdvanceMigration(1)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, state)
	assert.Equal(t, uint64(1), e.Stats().SegmentsMigratedOut)
}

func TestAdvanceMigrationNotFound(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	_, err := e.AdvanceMigration(999)
	require.Error(t, err)
}

func TestFailMigration(t *testing.T) {
	e := setupMigratingEngine(t)
	require.NoError(t, e.FailMigration(1, "network error"))
	assert.Equal(t, uint64(1), e.Stats().FailedMigrations)
}

func TestCompleteRebalanceAllDone(t *testing.T) {
	e := setupMigratingEngine(t)
	_, err := e.AdvanceMigration(1)
	require.NoError(t, err)
	_, err = e.AdvanceMigration(1)
	require.NoError(t, err)
	_, err = e.AdvanceMigration(1)
	require.NoError(t, err)

	stats, err := e.CompleteRebalance()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.SegmentsMigratedOut)
	assert.Equal(t, StateCompleted, e.State().State)
}

func TestCompleteRebalancePendingFails(t *testing.T) {
	e := setupMigratingEngine(t)
	_, err := e.CompleteRebalance()
	require.Error(t, err)
}

func TestAbortRebalance(t *testing.T) {
	e := setupMigratingEngine(t)
	e.AbortRebalance("manual abort")
	assert.Equal(t, StateFailed, e.State().State)
	assert.Equal(t, "manual abort", e.State().FailureReason)
}

func TestAcceptInbound(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.AcceptInbound(100, 5, "node2", 2*1024*1024)

	require.Len(t, e.Migrations(), 1)
	assert.Equal(t, Inbound, e.Migrations()[0].Direction)
	assert.Equal(t, NodeID("node2"), e.Migrations()[0].PeerNode)
}

func TestCanAcceptMoreUnderLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxConcurrentMigrations = 4
	e := New(config, "node1")
	assert.True(t, e.CanAcceptMore())
}

func TestCanAcceptMoreAtLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxConcurrentMigrations = 2
	e := New(config, "node1")
	e.AcceptInbound(1, 0, "node2", 1024)
	e.AcceptInbound(2, 1, "node3", 1024)

	assert.False(t, e.CanAcceptMore())
}

func TestProgressPctZero(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	assert.Equal(t, 0.0, e.ProgressPct())
}

func TestProgressPctAllDone(t *testing.T) {
	e := setupMigratingEngine(t)
	_, err := e.AdvanceMigration(1)
	require.NoError(t, err)
	_, err = e.AdvanceMigration(1)
	require.NoError(t, err)
	_, err = e.AdvanceMigration(1)
	require.NoError(t, err)
	_, err = e.CompleteRebalance()
	require.NoError(t, err)

	assert.Equal(t, 100.0, e.ProgressPct())
}

func TestCooldownActive(t *testing.T) {
	config := DefaultConfig()
	config.CooldownSecs = 300
	e := New(config, "node1")
	e.lastRebalance = 1000

	assert.True(t, e.IsCooldownActive(1100))
}

func TestCooldownExpired(t *testing.T) {
	config := DefaultConfig()
	config.CooldownSecs = 300
	e := New(config, "node1")
	e.lastRebalance = 1000

	assert.False(t, e.IsCooldownActive(1500))
}

func TestRebalanceConfigDefault(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, uint32(4), config.MaxConcurrentMigrations)
	assert.Equal(t, uint64(100*1024*1024), config.MaxBandwidthBytesPerSec)
	assert.Equal(t, uint32(1000), config.MaxIOPS)
	assert.Equal(t, uint64(300), config.CooldownSecs)
	assert.True(t, config.AutoRebalance)
}

func TestMultipleSegmentsSameShard(t *testing.T) {
	e := New(DefaultConfig(), "node1")
	e.RegisterSegment(1, 5)
	e.RegisterSegment(2, 5)
	e.RegisterSegment(3, 5)

	e.UpdateShardMap(map[ShardID]NodeID{5: "node2"})

	tasks := e.PlanRebalance()
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, ShardID(5), task.ShardID)
	}
}
