package scrub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/pkg/claudefs/checksum"
)

func testBlockRef(deviceIdx uint16, offset uint64, size BlockSize) BlockRef {
	return BlockRef{ID: BlockID{DeviceIdx: deviceIdx, Offset: offset}, Size: size}
}

func testChecksum(value uint64) checksum.Checksum {
	return checksum.Checksum{Algorithm: checksum.CRC32C, Value: value}
}

func TestScrubConfigDefaults(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, uint64(168), config.IntervalHours)
	assert.Equal(t, uint32(100), config.MaxIOPS)
	assert.Equal(t, 64, config.BatchSize)
	assert.Equal(t, checksum.CRC32C, config.ChecksumAlgo)
	assert.False(t, config.AutoRepair)
}

func TestScrubEngineNew(t *testing.T) {
	e := New(DefaultConfig())
	assert.Equal(t, PhaseIdle, e.State().Phase)
	assert.Equal(t, 0, e.PendingCount())
}

func TestScheduleBlock(t *testing.T) {
	e := New(DefaultConfig())
	e.ScheduleBlock(testBlockRef(0, 100, Block4K), testChecksum(0x12345678))
	assert.Equal(t, 1, e.PendingCount())
}

func TestScheduleDevice(t *testing.T) {
	e := New(DefaultConfig())
	refs := []BlockRef{testBlockRef(0, 1, Block4K), testBlockRef(0, 2, Block4K), testBlockRef(0, 3, Block4K)}
	sums := []checksum.Checksum{testChecksum(1), testChecksum(2), testChecksum(3)}
	e.ScheduleDevice(0, refs, sums)
	assert.Equal(t, 3, e.PendingCount())
}

func TestVerifyCleanBlock(t *testing.T) {
	e := New(DefaultConfig())
	data := []byte("test data for verification")
	sum := checksum.Compute(checksum.CRC32C, data)

	result := e.VerifyBlock(testBlockRef(0, 100, Block4K), data, sum)
	assert.True(t, result)
	assert.Empty(t, e.Errors())
}

func TestVerifyCorruptedBlock(t *testing.T) {
	e := New(DefaultConfig())
	ref := testBlockRef(0, 100, Block4K)
	sum := checksum.Compute(checksum.CRC32C, []byte("original data"))

	result := e.VerifyBlock(ref, []byte("corrupted data"), sum)
	require.False(t, result)
	require.Len(t, e.Errors(), 1)
	assert.Equal(t, ref.ID, e.Errors()[0].BlockID)
}

func TestStateTransitionsIdleToRunningToCompleted(t *testing.T) {
	e := New(DefaultConfig())
	e.ScheduleBlock(testBlockRef(0, 1, Block4K), testChecksum(1))

	assert.Equal(t, PhaseIdle, e.State().Phase)
	e.Start()
	assert.Equal(t, PhaseRunning, e.State().Phase)
	e.Complete(10)
	assert.Equal(t, PhaseCompleted, e.State().Phase)
	assert.Equal(t, uint64(10), e.State().DurationSecs)
}

func TestStateTransitionsRunningToPausedToRunningToCompleted(t *testing.T) {
	e := New(DefaultConfig())
	for i := uint64(0); i < 10; i++ {
		e.ScheduleBlock(testBlockRef(0, i, Block4K), testChecksum(i))
	}

	e.Start()
	assert.Equal(t, PhaseRunning, e.State().Phase)
	e.Pause("test pause")
	assert.Equal(t, PhasePaused, e.State().Phase)
	e.Resume()
	assert.Equal(t, PhaseRunning, e.State().Phase)
	e.Complete(60)
	assert.Equal(t, PhaseCompleted, e.State().Phase)
}

func TestBatchRetrieval(t *testing.T) {
	config := DefaultConfig()
	config.BatchSize = 3
	e := New(config)
	for i := uint64(0); i < 10; i++ {
		e.ScheduleBlock(testBlockRef(0, i, Block4K), testChecksum(i))
	}
	e.Start()

	assert.Len(t, e.NextBatch(), 3)
	assert.Len(t, e.NextBatch(), 3)
	assert.Len(t, e.NextBatch(), 3)
	assert.Len(t, e.NextBatch(), 1)
}

func TestStatsTracking(t *testing.T) {
	e := New(DefaultConfig())
	for i := uint64(0); i < 5; i++ {
		e.ScheduleBlock(testBlockRef(0, i, Block4K), testChecksum(i))
	}
	e.Start()

	data := []byte("test data")
	sum := checksum.Compute(checksum.CRC32C, data)
	for e.PendingCount() > 0 {
		for range e.NextBatch() {
			e.VerifyBlock(testBlockRef(0, 0, Block4K), data, sum)
		}
	}
	e.Complete(30)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.TotalScrubs)
	assert.Equal(t, uint64(5), stats.BlocksChecked)
}

func TestNeedsScrubFirstTime(t *testing.T) {
	e := New(DefaultConfig())
	assert.True(t, e.NeedsScrub(1000))
}

func TestNeedsScrubIntervalNotElapsed(t *testing.T) {
	config := DefaultConfig()
	config.IntervalHours = 1
	e := New(config)
	e.stats.LastScrubTimeSecs = 1000
	assert.False(t, e.NeedsScrub(3500))
}

func TestNeedsScrubIntervalElapsed(t *testing.T) {
	config := DefaultConfig()
	config.IntervalHours = 1
	e := New(config)
	e.stats.LastScrubTimeSecs = 1000
	assert.True(t, e.NeedsScrub(4600))
}

func TestErrorClearing(t *testing.T) {
	e := New(DefaultConfig())
	e.VerifyBlock(testBlockRef(0, 1, Block4K), []byte("corrupted"), testChecksum(1))
	assert.NotEmpty(t, e.Errors())
	e.ClearErrors()
	assert.Empty(t, e.Errors())
}

func TestEmptyScrubCompletesImmediately(t *testing.T) {
	e := New(DefaultConfig())
	e.Start()
	assert.Equal(t, PhaseCompleted, e.State().Phase)
	assert.Equal(t, uint64(0), e.State().BlocksChecked)
}

func TestNextBatchNotRunningState(t *testing.T) {
	e := New(DefaultConfig())
	e.ScheduleBlock(testBlockRef(0, 1, Block4K), testChecksum(1))
	assert.Empty(t, e.NextBatch())
}

func TestProgressAtCompleted(t *testing.T) {
	e := New(DefaultConfig())
	e.ScheduleBlock(testBlockRef(0, 1, Block4K), testChecksum(1))
	e.Start()
	e.Complete(5)
	assert.InDelta(t, 100.0, e.Progress(), 0.1)
}

func TestPendingCountDecreasesAsBatchesTaken(t *testing.T) {
	config := DefaultConfig()
	config.BatchSize = 2
	e := New(config)
	for i := uint64(0); i < 5; i++ {
		e.ScheduleBlock(testBlockRef(0, i, Block4K), testChecksum(i))
	}
	assert.Equal(t, 5, e.PendingCount())

	e.Start()
	e.NextBatch()
	assert.Equal(t, 3, e.PendingCount())
	e.NextBatch()
	assert.Equal(t, 1, e.PendingCount())
}
