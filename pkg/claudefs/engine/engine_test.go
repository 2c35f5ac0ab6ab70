package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/pkg/claudefs/backpressure"
	"github.com/marmos91/dittofs/pkg/claudefs/compaction"
	"github.com/marmos91/dittofs/pkg/claudefs/failover"
	"github.com/marmos91/dittofs/pkg/claudefs/frame"
)

func newTestEngine() *Engine {
	cfg := DefaultConfig()
	cfg.LocalSiteID = 100
	e := New(cfg)
	e.RegisterSite(100)
	return e
}

func TestHandleFrameWriteAppendsJournal(t *testing.T) {
	e := newTestEngine()

	f := frame.New(frame.OpWrite, 0, 42, []byte("hello"))
	raw := frame.Encode(f)

	resp, err := e.HandleFrame(raw)
	require.NoError(t, err)

	decoded, err := frame.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, frame.OpWrite, decoded.Header.Opcode)
	assert.Equal(t, uint64(42), decoded.Header.RequestID)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Journal.EntriesAppended)
}

func TestHandleFrameReadDoesNotAppendJournal(t *testing.T) {
	e := newTestEngine()

	f := frame.New(frame.OpRead, 0, 1, []byte("query"))
	raw := frame.Encode(f)

	_, err := e.HandleFrame(raw)
	require.NoError(t, err)

	stats := e.Stats()
	assert.Equal(t, uint64(0), stats.Journal.EntriesAppended)
	assert.Equal(t, uint64(1), stats.Scheduler.Enqueued)
}

func TestHandleFrameRejectsCorruptFrame(t *testing.T) {
	e := newTestEngine()

	f := frame.New(frame.OpRead, 0, 42, []byte{1, 2, 3})
	raw := frame.Encode(f)
	raw[len(raw)-1] ^= 0xFF

	_, err := e.HandleFrame(raw)
	require.Error(t, err)
}

// TestWriteCommitPackTruncate mirrors spec.md §8 scenario 1 end to end
// through the engine rather than the journal alone.
func TestWriteCommitPackTruncate(t *testing.T) {
	e := newTestEngine()

	data := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}
	for i, d := range data {
		seq, err := e.SubmitWrite(10, uint64(i), d)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq)
	}

	committed, err := e.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), committed)

	info := compaction.NewSegmentInfo(compaction.SegmentID(1), 4096, 4096, 5, 5, 0)
	truncated, err := e.PackSegment(info, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, truncated)

	next, err := e.SubmitWrite(10, 5, []byte("f"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), next)
}

func TestRunCompactionCycleFindsCandidate(t *testing.T) {
	e := newTestEngine()

	info := compaction.NewSegmentInfo(compaction.SegmentID(7), 4*1024*1024, 1*1024*1024, 100, 25, 0)
	e.compactor.RegisterSegment(info)

	candidates, err := e.RunCompactionCycle()
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, compaction.SegmentID(7), candidates[0].Segment.ID)

	tasks := e.compactor.ActiveTasks()
	assert.Len(t, tasks, 1)
}

func TestRunScrubCycleStartsWhenDue(t *testing.T) {
	e := newTestEngine()
	started := e.RunScrubCycle(1_000_000)
	assert.True(t, started)
}

func TestReplicateSinceCompressesCommittedEntries(t *testing.T) {
	e := newTestEngine()

	for i := 0; i < 10; i++ {
		_, err := e.SubmitWrite(1, uint64(i), make([]byte, 64))
		require.NoError(t, err)
	}
	_, err := e.Commit()
	require.NoError(t, err)

	batch, err := e.ReplicateSince(0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), batch.SourceSiteID)
	assert.Equal(t, uint64(1), batch.BatchSeq)
}

// TestFailoverDemotionAndRecovery mirrors spec.md §8 scenario 3.
func TestFailoverDemotionAndRecovery(t *testing.T) {
	e := newTestEngine()
	e.RegisterSite(200)

	var events []failover.Event
	for i := 0; i < 3; i++ {
		events = e.RecordSiteHealth(200, false)
	}
	require.Len(t, events, 1)
	assert.Equal(t, failover.EventSiteDemoted, events[0].Kind)

	for i := 0; i < 3; i++ {
		events = e.RecordSiteHealth(200, false)
	}
	require.Len(t, events, 1)

	for i := 0; i < 2; i++ {
		events = e.RecordSiteHealth(200, true)
	}
	require.Len(t, events, 1)
	assert.Equal(t, failover.EventSitePromoted, events[0].Kind)

	events = e.RecordSiteHealth(200, true)
	require.Len(t, events, 1)
	assert.Equal(t, failover.EventSiteRecovered, events[0].Kind)
}

func TestAdmissionSignalsReflectBackpressure(t *testing.T) {
	e := newTestEngine()

	level, admit := e.AdmissionSignals(backpressure.Signals{})
	assert.Equal(t, backpressure.LevelNone, level)
	assert.True(t, admit)

	level, admit = e.AdmissionSignals(backpressure.Signals{
		QueueDepth:        10000,
		MemoryPercent:     99,
		ThroughputPercent: 99,
	})
	assert.Equal(t, backpressure.LevelCritical, level)
	assert.False(t, admit)
}

func TestPriorityForOpcodeFamilies(t *testing.T) {
	assert.Equal(t, "Critical", priorityForName(frame.OpLookup))
	assert.Equal(t, "High", priorityForName(frame.OpWrite))
	assert.Equal(t, "Normal", priorityForName(frame.OpJoin))
	assert.Equal(t, "Low", priorityForName(frame.OpReplicateBatch))
}

func priorityForName(op frame.Opcode) string {
	return priorityFor(op).String()
}
