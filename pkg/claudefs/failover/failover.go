// Package failover implements active-active site failover management: a
// per-site health-driven state machine that tracks consecutive
// success/failure streaks and promotes or demotes a site's read/write
// capability accordingly.
package failover

import (
	"sync"

	"github.com/marmos91/dittofs/internal/logger"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// SiteMode is a site's role in active-active replication.
type SiteMode int

const (
	// ActiveReadWrite accepts both reads and writes.
	ActiveReadWrite SiteMode = iota
	// StandbyReadOnly accepts reads only.
	StandbyReadOnly
	// DegradedAcceptWrites is degraded but still accepts writes.
	DegradedAcceptWrites
	// Offline accepts neither.
	Offline
)

// String returns the human-readable site mode name.
func (m SiteMode) String() string {
	switch m {
	case ActiveReadWrite:
		return "ActiveReadWrite"
	case StandbyReadOnly:
		return "StandbyReadOnly"
	case DegradedAcceptWrites:
		return "DegradedAcceptWrites"
	case Offline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// Config configures the failover controller's promotion/demotion
// thresholds.
type Config struct {
	FailureThreshold  uint32
	RecoveryThreshold uint32
	CheckIntervalMs   uint64
	ActiveActive      bool
}

// DefaultConfig returns the failover defaults used across ClaudeFS sites.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  3,
		RecoveryThreshold: 2,
		CheckIntervalMs:   5000,
		ActiveActive:      true,
	}
}

// EventKind identifies the kind of failover event emitted by a transition.
type EventKind int

const (
	EventSitePromoted EventKind = iota
	EventSiteDemoted
	EventSiteRecovered
	EventConflictRequiresResolution
)

// Event is a single failover state transition, emitted exactly once per
// transition that changes a site's mode.
type Event struct {
	Kind   EventKind
	SiteID uint64
	Mode   SiteMode
	Reason string
	Inode  uint64
}

// SiteState is the per-site failover bookkeeping.
type SiteState struct {
	SiteID               uint64
	Mode                 SiteMode
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
	LastCheckUs          uint64
	FailoverCount        uint64
}

func newSiteState(siteID uint64) SiteState {
	return SiteState{SiteID: siteID, Mode: ActiveReadWrite}
}

// IsWritable reports whether the site currently accepts writes.
func (s SiteState) IsWritable() bool {
	return s.Mode == ActiveReadWrite || s.Mode == DegradedAcceptWrites
}

// IsReadable reports whether the site currently accepts reads.
func (s SiteState) IsReadable() bool {
	return s.Mode != Offline
}

func (s *SiteState) recordFailure() {
	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
}

func (s *SiteState) recordSuccess() {
	s.ConsecutiveSuccesses++
	s.ConsecutiveFailures = 0
}

// Manager drives the active-active failover state machine for every
// tracked site. A sync.Mutex stands in for the original's async mutex: all
// methods are safe to call from worker goroutines.
type Manager struct {
	mu          sync.Mutex
	config      Config
	localSiteID uint64
	sites       map[uint64]*SiteState
	events      []Event
}

// New creates a failover manager for localSiteID.
func New(config Config, localSiteID uint64) *Manager {
	return &Manager{
		config:      config,
		localSiteID: localSiteID,
		sites:       make(map[uint64]*SiteState),
	}
}

// RegisterSite begins tracking a site, defaulting it to ActiveReadWrite.
func (m *Manager) RegisterSite(siteID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[siteID]; !ok {
		s := newSiteState(siteID)
		m.sites[siteID] = &s
	}
}

// RecordHealth records a health-check result for a site and returns any
// events produced by the resulting state transition.
func (m *Manager) RecordHealth(siteID uint64, healthy bool) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sites[siteID]
	if !ok {
		s := newSiteState(siteID)
		state = &s
		m.sites[siteID] = state
	}

	oldMode := state.Mode
	if healthy {
		state.recordSuccess()
	} else {
		state.recordFailure()
	}
	state.LastCheckUs = ^uint64(0)

	newMode := m.calculateNewMode(state, healthy)

	var events []Event
	if newMode != oldMode {
		state.Mode = newMode
		state.FailoverCount++

		if isPromotion(oldMode, newMode) {
			switch newMode {
			case StandbyReadOnly:
				events = append(events, Event{Kind: EventSitePromoted, SiteID: siteID, Mode: newMode})
			case ActiveReadWrite:
				events = append(events, Event{Kind: EventSiteRecovered, SiteID: siteID})
			}
		} else {
			reason := demotionReason(oldMode)
			events = append(events, Event{Kind: EventSiteDemoted, SiteID: siteID, Mode: newMode, Reason: reason})
		}

		logger.Info("site mode transition", "site_id", siteID, "from", oldMode.String(), "to", newMode.String())
	}

	m.events = append(m.events, events...)
	return events
}

func demotionReason(oldMode SiteMode) string {
	switch oldMode {
	case ActiveReadWrite:
		return "consecutive failures"
	case DegradedAcceptWrites:
		return "continued failures"
	case StandbyReadOnly:
		return "health check failed"
	case Offline:
		return "already offline"
	default:
		return "unknown"
	}
}

func (m *Manager) calculateNewMode(state *SiteState, healthy bool) SiteMode {
	failures := state.ConsecutiveFailures
	successes := state.ConsecutiveSuccesses

	switch state.Mode {
	case ActiveReadWrite:
		if failures >= m.config.FailureThreshold {
			return DegradedAcceptWrites
		}
		return ActiveReadWrite
	case DegradedAcceptWrites:
		if failures >= m.config.FailureThreshold {
			return Offline
		}
		return DegradedAcceptWrites
	case StandbyReadOnly:
		if !healthy && failures >= m.config.FailureThreshold {
			return Offline
		}
		if successes >= m.config.RecoveryThreshold {
			return ActiveReadWrite
		}
		return StandbyReadOnly
	case Offline:
		if successes >= m.config.RecoveryThreshold {
			return StandbyReadOnly
		}
		return Offline
	default:
		return state.Mode
	}
}

func isPromotion(oldMode, newMode SiteMode) bool {
	switch {
	case oldMode == Offline && newMode == StandbyReadOnly:
		return true
	case oldMode == StandbyReadOnly && newMode == ActiveReadWrite:
		return true
	case oldMode == Offline && newMode == ActiveReadWrite:
		return true
	case oldMode == Offline && newMode == DegradedAcceptWrites:
		return true
	default:
		return false
	}
}

// SiteMode returns the current mode for a site, if tracked.
func (m *Manager) SiteMode(siteID uint64) (SiteMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[siteID]
	if !ok {
		return 0, false
	}
	return s.Mode, true
}

// WritableSites returns the IDs of every site currently accepting writes.
func (m *Manager) WritableSites() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for _, s := range m.sites {
		if s.IsWritable() {
			ids = append(ids, s.SiteID)
		}
	}
	return ids
}

// ReadableSites returns the IDs of every site currently accepting reads.
func (m *Manager) ReadableSites() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for _, s := range m.sites {
		if s.IsReadable() {
			ids = append(ids, s.SiteID)
		}
	}
	return ids
}

// ForceMode performs an administrative mode transition, emitting an event
// whenever the mode actually changes.
func (m *Manager) ForceMode(siteID uint64, mode SiteMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sites[siteID]
	if !ok {
		return claudefserrors.New(claudefserrors.KindReplication, claudefserrors.CodeSiteUnknown, "Manager.ForceMode")
	}

	oldMode := state.Mode
	state.Mode = mode

	if oldMode != mode {
		state.FailoverCount++
		if isPromotion(oldMode, mode) {
			m.events = append(m.events, Event{Kind: EventSitePromoted, SiteID: siteID, Mode: mode})
		} else {
			m.events = append(m.events, Event{Kind: EventSiteDemoted, SiteID: siteID, Mode: mode, Reason: "forced"})
		}
	}
	return nil
}

// DrainEvents removes and returns every pending event.
func (m *Manager) DrainEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	m.events = nil
	return events
}

// AllStates returns a snapshot of every tracked site's state.
func (m *Manager) AllStates() []SiteState {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make([]SiteState, 0, len(m.sites))
	for _, s := range m.sites {
		states = append(states, *s)
	}
	return states
}

// FailoverCounts returns the lifetime failover count for every tracked
// site.
func (m *Manager) FailoverCounts() map[uint64]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uint64]uint64, len(m.sites))
	for _, s := range m.sites {
		counts[s.SiteID] = s.FailoverCount
	}
	return counts
}
