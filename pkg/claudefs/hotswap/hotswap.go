// Package hotswap coordinates safe online replacement of storage devices:
// registration, activation, graceful drain with block migration tracking,
// and removal.
package hotswap

import (
	"sync"

	"github.com/marmos91/dittofs/internal/logger"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// DeviceRole classifies what a device is used for.
type DeviceRole int

const (
	RoleData DeviceRole = iota
	RoleJournal
	RoleCombined
)

// String returns the human-readable role name.
func (r DeviceRole) String() string {
	switch r {
	case RoleData:
		return "Data"
	case RoleJournal:
		return "Journal"
	case RoleCombined:
		return "Combined"
	default:
		return "Unknown"
	}
}

// DeviceState is a device's lifecycle state.
type DeviceState int

const (
	Initializing DeviceState = iota
	Active
	Draining
	Drained
	Removed
	Failed
)

// String returns the human-readable state name.
func (s DeviceState) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Active:
		return "Active"
	case Draining:
		return "Draining"
	case Drained:
		return "Drained"
	case Removed:
		return "Removed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// BlockRef identifies a single block on a device.
type BlockRef struct {
	DeviceIdx uint16
	Offset    uint64
}

// MigrationState is a block migration's lifecycle state.
type MigrationState int

const (
	MigrationPending MigrationState = iota
	MigrationInProgress
	MigrationCompleted
	MigrationFailed
)

// BlockMigration represents one block moving from one device to another.
type BlockMigration struct {
	Source      BlockRef
	Destination *BlockRef
	State       MigrationState
}

// DrainProgress tracks migration progress for one device's drain.
type DrainProgress struct {
	DeviceIdx               uint16
	TotalBlocksToMigrate    uint64
	BlocksMigrated          uint64
	BlocksFailed            uint64
	StartedAtSecs           uint64
	EstimatedCompletionSecs *uint64
}

func newDrainProgress(deviceIdx uint16, totalBlocks, now uint64) DrainProgress {
	return DrainProgress{
		DeviceIdx:            deviceIdx,
		TotalBlocksToMigrate: totalBlocks,
		StartedAtSecs:        now,
	}
}

// ProgressPct returns drain progress in [0, 100].
func (p DrainProgress) ProgressPct() float64 {
	if p.TotalBlocksToMigrate == 0 {
		return 100.0
	}
	return (float64(p.BlocksMigrated) / float64(p.TotalBlocksToMigrate)) * 100.0
}

// IsComplete reports whether every block has migrated or failed.
func (p DrainProgress) IsComplete() bool {
	return p.BlocksMigrated+p.BlocksFailed >= p.TotalBlocksToMigrate
}

// EventKind identifies a hot-swap event's type.
type EventKind int

const (
	EventDeviceAdding EventKind = iota
	EventDeviceAdded
	EventDrainStarted
	EventDrainProgress
	EventDrainCompleted
	EventDeviceRemoved
	EventDeviceFailed
	EventMigrationBatchCompleted
)

// Event is a single hot-swap lifecycle occurrence, carrying every field
// any event kind might need.
type Event struct {
	Kind            EventKind
	DeviceIdx       uint16
	Role            DeviceRole
	CapacityBytes   uint64
	BlocksToMigrate uint64
	ProgressPct     float64
	Reason          string
	BlocksMigrated  uint64
}

// Stats summarizes the manager's lifetime hot-swap activity.
type Stats struct {
	DevicesAdded        uint64
	DevicesRemoved      uint64
	DrainsCompleted     uint64
	DrainsFailed        uint64
	TotalBlocksMigrated uint64
}

// Manager coordinates hot-swap operations across every registered device.
type Manager struct {
	mu                sync.Mutex
	deviceStates      map[uint16]DeviceState
	drainProgress     map[uint16]DrainProgress
	pendingMigrations []BlockMigration
	events            []Event
	stats             Stats
	nowFunc           func() uint64
}

// New creates a hot-swap manager.
func New() *Manager {
	return &Manager{
		deviceStates:  make(map[uint16]DeviceState),
		drainProgress: make(map[uint16]DrainProgress),
		nowFunc:       func() uint64 { return 0 },
	}
}

// RegisterDevice registers a new device being added, in Initializing state.
func (m *Manager) RegisterDevice(deviceIdx uint16, role DeviceRole, capacityBytes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deviceStates[deviceIdx]; ok {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.RegisterDevice")
	}

	m.deviceStates[deviceIdx] = Initializing
	m.events = append(m.events, Event{Kind: EventDeviceAdding, DeviceIdx: deviceIdx, Role: role, CapacityBytes: capacityBytes})

	logger.Debug("registered device", "device_idx", deviceIdx, "role", role, "capacity_bytes", capacityBytes)
	return nil
}

// ActivateDevice marks a device Active, ready for I/O.
func (m *Manager) ActivateDevice(deviceIdx uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.deviceStates[deviceIdx]
	if !ok {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.ActivateDevice")
	}
	if current != Initializing {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.ActivateDevice")
	}

	m.deviceStates[deviceIdx] = Active
	m.events = append(m.events, Event{Kind: EventDeviceAdded, DeviceIdx: deviceIdx})
	m.stats.DevicesAdded++

	logger.Info("activated device", "device_idx", deviceIdx)
	return nil
}

// StartDrain begins draining a device ahead of removal, queuing every
// allocated block for migration.
func (m *Manager) StartDrain(deviceIdx uint16, allocatedBlocks []BlockRef) (DrainProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.deviceStates[deviceIdx]
	if !ok {
		return DrainProgress{}, claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.StartDrain")
	}
	if current != Active {
		return DrainProgress{}, claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.StartDrain")
	}

	m.deviceStates[deviceIdx] = Draining

	totalBlocks := uint64(len(allocatedBlocks))
	progress := newDrainProgress(deviceIdx, totalBlocks, m.nowFunc())

	for _, ref := range allocatedBlocks {
		m.pendingMigrations = append(m.pendingMigrations, BlockMigration{Source: ref, State: MigrationPending})
	}

	m.drainProgress[deviceIdx] = progress
	m.events = append(m.events, Event{Kind: EventDrainStarted, DeviceIdx: deviceIdx, BlocksToMigrate: totalBlocks})

	logger.Info("started drain", "device_idx", deviceIdx, "blocks_to_migrate", totalBlocks)
	return progress, nil
}

// RecordMigrationBatch records that a batch of blocks has migrated.
func (m *Manager) RecordMigrationBatch(deviceIdx uint16, migrated []BlockMigration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress, ok := m.drainProgress[deviceIdx]
	if !ok {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.RecordMigrationBatch")
	}

	count := uint64(len(migrated))
	progress.BlocksMigrated += count
	m.drainProgress[deviceIdx] = progress

	m.events = append(m.events, Event{Kind: EventMigrationBatchCompleted, DeviceIdx: deviceIdx, BlocksMigrated: count})

	pct := progress.ProgressPct()
	if pct < 100.0 {
		m.events = append(m.events, Event{Kind: EventDrainProgress, DeviceIdx: deviceIdx, ProgressPct: pct})
	}

	logger.Debug("recorded migrated blocks", "device_idx", deviceIdx, "count", count, "progress_pct", pct)
	return nil
}

// IsDrainComplete reports whether a device's drain has migrated or failed
// every queued block.
func (m *Manager) IsDrainComplete(deviceIdx uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress, ok := m.drainProgress[deviceIdx]
	return ok && progress.IsComplete()
}

// CompleteDrain marks a fully-drained device Drained, ready for removal.
func (m *Manager) CompleteDrain(deviceIdx uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.deviceStates[deviceIdx]
	if !ok {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.CompleteDrain")
	}
	if current != Draining {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.CompleteDrain")
	}

	progress, ok := m.drainProgress[deviceIdx]
	if !ok || !progress.IsComplete() {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.CompleteDrain")
	}

	m.deviceStates[deviceIdx] = Drained
	m.events = append(m.events, Event{Kind: EventDrainCompleted, DeviceIdx: deviceIdx})
	m.stats.DrainsCompleted++

	logger.Info("drain completed", "device_idx", deviceIdx)
	return nil
}

// RemoveDevice removes a Drained device from the pool.
func (m *Manager) RemoveDevice(deviceIdx uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.deviceStates[deviceIdx]
	if !ok {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.RemoveDevice")
	}
	if current != Drained {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.RemoveDevice")
	}

	m.deviceStates[deviceIdx] = Removed
	m.events = append(m.events, Event{Kind: EventDeviceRemoved, DeviceIdx: deviceIdx})
	m.stats.DevicesRemoved++

	logger.Info("removed device", "device_idx", deviceIdx)
	return nil
}

// FailDevice marks a device Failed. A removed device cannot be failed.
func (m *Manager) FailDevice(deviceIdx uint16, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.deviceStates[deviceIdx]
	if !ok {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.FailDevice")
	}
	if current == Removed {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Manager.FailDevice")
	}

	m.deviceStates[deviceIdx] = Failed
	m.events = append(m.events, Event{Kind: EventDeviceFailed, DeviceIdx: deviceIdx, Reason: reason})

	if current == Draining {
		m.stats.DrainsFailed++
	}

	logger.Warn("device failed", "device_idx", deviceIdx, "reason", reason)
	return nil
}

// DeviceState returns a device's current lifecycle state, if registered.
func (m *Manager) DeviceState(deviceIdx uint16) (DeviceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.deviceStates[deviceIdx]
	return s, ok
}

// DrainProgress returns a device's current drain progress, if draining or
// drained.
func (m *Manager) DrainProgress(deviceIdx uint16) (DrainProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.drainProgress[deviceIdx]
	return p, ok
}

// DrainEvents returns every event recorded so far.
func (m *Manager) DrainEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// CanAllocate reports whether a device can accept new allocations.
func (m *Manager) CanAllocate(deviceIdx uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.deviceStates[deviceIdx]
	return ok && s == Active
}

// Stats returns the manager's lifetime statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
