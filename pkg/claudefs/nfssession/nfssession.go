// Package nfssession implements the NFSv4.1 session and slot replay cache:
// exactly-once semantics for the fore channel, keyed by per-session slot
// sequence numbers that wrap at the uint32 boundary.
package nfssession

import (
	"fmt"
	"sync"

	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// SlotOutcome classifies a slot sequence validation result.
type SlotOutcome int

const (
	// NewRequest is a fresh request: seq == last+1 (wrapping).
	NewRequest SlotOutcome = iota
	// Replay is a retransmission of the last completed request: seq ==
	// last. The caller should return the cached reply.
	Replay
)

// Slot is one fore-channel slot: a sequence-numbered replay-protected
// channel within a session.
type Slot struct {
	SequenceID  uint32
	InUse       bool
	CachedReply []byte
	hasReply    bool
}

func newSlot() *Slot {
	return &Slot{SequenceID: 0, hasReply: false}
}

// Validate classifies an incoming sequence number against this slot's last
// recorded sequence.
func (s *Slot) Validate(seq uint32) (SlotOutcome, error) {
	expectedNext := s.SequenceID + 1

	switch {
	case seq == expectedNext:
		return NewRequest, nil
	case seq == s.SequenceID:
		return Replay, nil
	default:
		return 0, claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeInvalidSequence,
			fmt.Sprintf("Slot.Validate(expected=%d,got=%d)", expectedNext, seq))
	}
}

// Acquire marks the slot in-use for a new request, storing its sequence
// and clearing any cached reply.
func (s *Slot) Acquire(seq uint32) {
	s.InUse = true
	s.SequenceID = seq
	s.CachedReply = nil
	s.hasReply = false
}

// Release marks the slot free again, optionally caching a reply for
// future replay detection.
func (s *Slot) Release(reply []byte) {
	s.InUse = false
	if reply != nil {
		s.CachedReply = reply
		s.hasReply = true
	}
}

// SessionConfig bounds the slot table size and the number of concurrent
// sessions a client may hold.
type SessionConfig struct {
	MaxSlots             int
	MaxSessionsPerClient int
}

// DefaultSessionConfig returns the NFSv4.1 session defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{MaxSlots: 64, MaxSessionsPerClient: 8}
}

// Session is one NFSv4.1 session: a client-owned fore-channel slot table.
type Session struct {
	ID       [16]byte
	ClientID uint64
	Slots    []*Slot
}

func newSession(id [16]byte, clientID uint64, maxSlots int) *Session {
	slots := make([]*Slot, maxSlots)
	for i := range slots {
		slots[i] = newSlot()
	}
	return &Session{ID: id, ClientID: clientID, Slots: slots}
}

// Slot returns the slot at idx, or an error if idx is out of range.
func (s *Session) Slot(idx int) (*Slot, error) {
	if idx < 0 || idx >= len(s.Slots) {
		return nil, claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeSlotOutOfRange, "Session.Slot")
	}
	return s.Slots[idx], nil
}

// IDString renders a session id as
// xxxxxxxx-xxxxxxxx-xxxxxxxx-xxxxxxxx.
func (s *Session) IDString() string {
	return fmt.Sprintf("%08x-%08x-%08x-%08x",
		s.ID[0:4], s.ID[4:8], s.ID[8:12], s.ID[12:16])
}

// Client tracks a single NFSv4.1 client's confirmed sessions.
type Client struct {
	ID        uint64
	Confirmed bool
	Sessions  map[[16]byte]*Session
}

// Manager owns every client and session in the NFSv4.1 session cache.
type Manager struct {
	mu      sync.Mutex
	config  SessionConfig
	clients map[uint64]*Client
}

// New creates a session manager.
func New(config SessionConfig) *Manager {
	return &Manager{config: config, clients: make(map[uint64]*Client)}
}

// RegisterClient begins tracking a new, unconfirmed client.
func (m *Manager) RegisterClient(clientID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[clientID]; !ok {
		m.clients[clientID] = &Client{ID: clientID, Sessions: make(map[[16]byte]*Session)}
	}
}

// ConfirmClient marks a client as confirmed, allowing it to create
// sessions.
func (m *Manager) ConfirmClient(clientID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeClientNotFound, "Manager.ConfirmClient")
	}
	c.Confirmed = true
	return nil
}

// CreateSession creates a new session for a confirmed client.
func (m *Manager) CreateSession(clientID uint64, sessionID [16]byte) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[clientID]
	if !ok {
		return nil, claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeClientNotFound, "Manager.CreateSession")
	}
	if !c.Confirmed {
		return nil, claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeClientNotConfirmed, "Manager.CreateSession")
	}
	if len(c.Sessions) >= m.config.MaxSessionsPerClient {
		return nil, claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeTooManySessions, "Manager.CreateSession")
	}

	sess := newSession(sessionID, clientID, m.config.MaxSlots)
	c.Sessions[sessionID] = sess
	return sess, nil
}

// Session looks up a session by id.
func (m *Manager) Session(sessionID [16]byte) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if s, ok := c.Sessions[sessionID]; ok {
			return s, nil
		}
	}
	return nil, claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeSessionNotFound, "Manager.Session")
}

// DestroySession removes a single session.
func (m *Manager) DestroySession(sessionID [16]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if _, ok := c.Sessions[sessionID]; ok {
			delete(c.Sessions, sessionID)
			return nil
		}
	}
	return claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeSessionNotFound, "Manager.DestroySession")
}

// ExpireClient destroys a client and every one of its sessions atomically,
// as lease expiry requires.
func (m *Manager) ExpireClient(clientID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[clientID]; !ok {
		return claudefserrors.New(claudefserrors.KindSession, claudefserrors.CodeClientNotFound, "Manager.ExpireClient")
	}
	delete(m.clients, clientID)
	return nil
}

// SessionCount returns the number of live sessions for a client.
func (m *Manager) SessionCount(clientID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return 0
	}
	return len(c.Sessions)
}
