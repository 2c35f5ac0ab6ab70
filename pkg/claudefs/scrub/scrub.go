// Package scrub implements background data integrity verification. The
// scrub engine periodically reads stored blocks and verifies them against
// their recorded checksums, detecting silent corruption before it can
// propagate into erasure-coded segments or replicas.
package scrub

import (
	"fmt"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/pkg/claudefs/checksum"
)

// BlockID identifies a block by device index and byte offset.
type BlockID struct {
	DeviceIdx uint16
	Offset    uint64
}

// BlockSize is the fixed size class of a block, mirroring the bufpool
// tiers used across ClaudeFS.
type BlockSize int

const (
	Block4K BlockSize = iota
	Block64K
	Block1M
)

// Bytes returns the size in bytes for this block size class.
func (s BlockSize) Bytes() uint64 {
	switch s {
	case Block4K:
		return 4 << 10
	case Block64K:
		return 64 << 10
	case Block1M:
		return 1 << 20
	default:
		return 0
	}
}

// BlockRef identifies a block and its size class.
type BlockRef struct {
	ID   BlockID
	Size BlockSize
}

// pendingBlock pairs a block reference with the checksum it is expected to
// match.
type pendingBlock struct {
	ref      BlockRef
	expected checksum.Checksum
}

// Config configures the scrub engine's pacing and repair policy.
type Config struct {
	IntervalHours uint64
	MaxIOPS       uint32
	BatchSize     int
	ChecksumAlgo  checksum.Algorithm
	AutoRepair    bool
}

// DefaultConfig returns the scrub defaults used across ClaudeFS nodes.
func DefaultConfig() Config {
	return Config{
		IntervalHours: 168,
		MaxIOPS:       100,
		BatchSize:     64,
		ChecksumAlgo:  checksum.CRC32C,
		AutoRepair:    false,
	}
}

// Phase identifies the scrub engine's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCompleted
	PhasePaused
)

// State is the current state of the scrub engine, including phase-specific
// progress data.
type State struct {
	Phase Phase

	// Running
	ProgressPct   float64
	BlocksChecked uint64
	ErrorsFound   uint64

	// Completed
	DurationSecs   uint64
	ErrorsRepaired uint64

	// Paused
	PauseReason string
}

// Error records a checksum mismatch detected during scrubbing.
type Error struct {
	BlockID          BlockID
	BlockSize        BlockSize
	ExpectedChecksum uint64
	ActualChecksum   uint64
	DevicePath       string
	DetectedAtSecs   uint64
	Repaired         bool
}

// Stats summarizes the scrub engine's lifetime activity.
type Stats struct {
	TotalScrubs           uint64
	BlocksChecked         uint64
	ErrorsDetected        uint64
	ErrorsRepaired        uint64
	LastScrubDurationSecs uint64
	LastScrubTimeSecs     uint64
	BytesVerified         uint64
}

var nowFunc = func() uint64 { return uint64(time.Now().Unix()) }

// Engine runs background data integrity verification.
type Engine struct {
	config        Config
	state         State
	stats         Stats
	errors        []Error
	blocksToCheck []pendingBlock
}

// New creates a scrub engine with the given configuration.
func New(config Config) *Engine {
	logger.Info("creating scrub engine",
		"interval_hours", config.IntervalHours,
		"max_iops", config.MaxIOPS,
		"batch_size", config.BatchSize,
		"auto_repair", config.AutoRepair,
	)
	return &Engine{config: config, state: State{Phase: PhaseIdle}}
}

// ScheduleBlock adds a single block to the scrub queue.
func (e *Engine) ScheduleBlock(ref BlockRef, expected checksum.Checksum) {
	e.blocksToCheck = append(e.blocksToCheck, pendingBlock{ref: ref, expected: expected})
}

// ScheduleDevice schedules all blocks on a device for scrubbing.
func (e *Engine) ScheduleDevice(deviceIdx uint16, blocks []BlockRef, checksums []checksum.Checksum) {
	n := len(blocks)
	if len(checksums) < n {
		n = len(checksums)
	}
	for i := 0; i < n; i++ {
		e.blocksToCheck = append(e.blocksToCheck, pendingBlock{ref: blocks[i], expected: checksums[i]})
	}
	logger.Info("scheduled device for scrub", "device_idx", deviceIdx, "blocks_scheduled", n)
}

// VerifyBlock checks a block's data against its expected checksum,
// recording an Error entry on mismatch. Returns true if the block is
// valid.
func (e *Engine) VerifyBlock(ref BlockRef, data []byte, expected checksum.Checksum) bool {
	if checksum.Verify(expected, data) {
		return true
	}

	actual := checksum.Compute(expected.Algorithm, data)
	scrubErr := Error{
		BlockID:          ref.ID,
		BlockSize:        ref.Size,
		ExpectedChecksum: expected.Value,
		ActualChecksum:   actual.Value,
		DevicePath:       fmt.Sprintf("/dev/nvme%dn1", ref.ID.DeviceIdx),
		DetectedAtSecs:   nowFunc(),
		Repaired:         false,
	}

	logger.Warn("checksum mismatch detected during scrub",
		"block_id", ref.ID, "expected", expected.Value, "actual", actual.Value)

	e.errors = append(e.errors, scrubErr)
	if e.state.Phase == PhaseRunning {
		e.state.ErrorsFound++
	}
	return false
}

// Start begins a new scrub cycle, transitioning Idle to Running. If no
// blocks are queued, the scrub completes immediately.
func (e *Engine) Start() {
	if len(e.blocksToCheck) == 0 {
		logger.Info("starting scrub with no blocks to check")
		e.state = State{Phase: PhaseCompleted}
		return
	}

	logger.Info("starting scrub", "total_blocks", len(e.blocksToCheck))
	e.state = State{Phase: PhaseRunning}
}

// Pause suspends the current scrub, recording the blocks checked so far.
func (e *Engine) Pause(reason string) {
	var blocksChecked uint64
	if e.state.Phase == PhaseRunning {
		blocksChecked = e.state.BlocksChecked
	}

	logger.Info("scrub paused", "reason", reason, "blocks_checked", blocksChecked)
	e.state = State{Phase: PhasePaused, BlocksChecked: blocksChecked, PauseReason: reason}
}

// Resume continues a paused scrub.
func (e *Engine) Resume() {
	var blocksChecked uint64
	if e.state.Phase == PhasePaused {
		blocksChecked = e.state.BlocksChecked
	}

	total := uint64(len(e.blocksToCheck)) + blocksChecked
	progressPct := 0.0
	if total > 0 {
		progressPct = (float64(blocksChecked) / float64(total)) * 100.0
	}

	logger.Info("resuming scrub", "blocks_checked", blocksChecked, "progress_pct", progressPct)
	e.state = State{Phase: PhaseRunning, ProgressPct: progressPct, BlocksChecked: blocksChecked}
}

// Complete marks the current scrub as finished, aggregating statistics and
// repairing recorded errors if auto-repair is enabled.
func (e *Engine) Complete(durationSecs uint64) {
	var blocksChecked, errorsFound uint64
	if e.state.Phase == PhaseRunning {
		blocksChecked = e.state.BlocksChecked
		errorsFound = e.state.ErrorsFound
	}

	var errorsRepaired uint64
	if e.config.AutoRepair {
		errorsRepaired = uint64(len(e.errors))
		for i := range e.errors {
			e.errors[i].Repaired = true
		}
	}

	logger.Info("scrub completed",
		"duration_secs", durationSecs, "blocks_checked", blocksChecked,
		"errors_found", errorsFound, "errors_repaired", errorsRepaired)

	e.stats.TotalScrubs++
	e.stats.BlocksChecked += blocksChecked
	e.stats.ErrorsDetected += errorsFound
	e.stats.ErrorsRepaired += errorsRepaired
	e.stats.LastScrubDurationSecs = durationSecs
	e.stats.LastScrubTimeSecs = nowFunc()

	for _, pb := range e.blocksToCheck {
		e.stats.BytesVerified += pb.expected.Algorithm.Bytes()
	}

	e.state = State{
		Phase:          PhaseCompleted,
		DurationSecs:   durationSecs,
		BlocksChecked:  blocksChecked,
		ErrorsFound:    errorsFound,
		ErrorsRepaired: errorsRepaired,
	}
	e.blocksToCheck = nil
}

// NextBatch returns the next batch of blocks to check, advancing the
// running state's blocks-checked counter. Returns nil if the engine isn't
// currently running.
func (e *Engine) NextBatch() []BlockRef {
	if e.state.Phase != PhaseRunning {
		return nil
	}

	batchSize := e.config.BatchSize
	if batchSize > len(e.blocksToCheck) {
		batchSize = len(e.blocksToCheck)
	}

	taken := e.blocksToCheck[:batchSize]
	e.blocksToCheck = e.blocksToCheck[batchSize:]

	refs := make([]BlockRef, len(taken))
	for i, pb := range taken {
		refs[i] = pb.ref
	}

	e.state.BlocksChecked += uint64(len(taken))
	return refs
}

// Progress returns the current progress percentage in [0, 100].
func (e *Engine) Progress() float64 {
	switch e.state.Phase {
	case PhaseRunning:
		total := uint64(len(e.blocksToCheck)) + e.state.BlocksChecked
		if total > 0 {
			return (float64(e.state.BlocksChecked) / float64(total)) * 100.0
		}
		return e.state.ProgressPct
	case PhaseCompleted:
		return 100.0
	case PhasePaused:
		total := uint64(len(e.blocksToCheck)) + e.state.BlocksChecked
		if total > 0 {
			return (float64(e.state.BlocksChecked) / float64(total)) * 100.0
		}
		return 0.0
	default:
		return 0.0
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	return e.state
}

// Stats returns the engine's lifetime statistics.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Errors returns the errors recorded in the current or last scrub.
func (e *Engine) Errors() []Error {
	return e.errors
}

// ClearErrors discards all recorded errors.
func (e *Engine) ClearErrors() {
	e.errors = nil
}

// PendingCount returns the number of blocks still queued for checking.
func (e *Engine) PendingCount() int {
	return len(e.blocksToCheck)
}

// NeedsScrub reports whether enough time has passed since the last scrub
// to warrant starting another.
func (e *Engine) NeedsScrub(currentTimeSecs uint64) bool {
	intervalSecs := e.config.IntervalHours * 3600
	if e.stats.LastScrubTimeSecs == 0 {
		return true
	}
	if currentTimeSecs < e.stats.LastScrubTimeSecs {
		return false
	}
	return currentTimeSecs-e.stats.LastScrubTimeSecs >= intervalSecs
}
