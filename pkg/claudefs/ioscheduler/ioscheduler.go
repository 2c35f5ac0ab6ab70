// Package ioscheduler implements a priority-based I/O scheduler with QoS
// enforcement: four strict FIFO queues (Critical, High, Normal, Low),
// starvation promotion accounting, and a critical-reservation admission
// policy that keeps low-priority floods from starving latency-sensitive
// metadata and journal commits.
package ioscheduler

import (
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Priority levels for I/O operations. Higher priority operations are
// dequeued first.
type Priority uint8

const (
	// Critical is the highest priority: metadata ops, journal commits.
	Critical Priority = iota
	// High is foreground user reads/writes.
	High
	// Normal is background reads and prefetch.
	Normal
	// Low is defrag, scrub, and tiering traffic.
	Low
)

// String returns the human-readable priority name.
func (p Priority) String() string {
	switch p {
	case Critical:
		return "Critical"
	case High:
		return "High"
	case Normal:
		return "Normal"
	case Low:
		return "Low"
	default:
		return "Unknown"
	}
}

// index returns the array index for this priority (0-3).
func (p Priority) index() int {
	return int(p)
}

// IsHigh reports whether this priority is Critical or High.
func (p Priority) IsHigh() bool {
	return p == Critical || p == High
}

// OpType identifies the kind of I/O operation being scheduled.
type OpType uint8

const (
	OpRead OpType = iota
	OpWrite
	OpFlush
	OpDiscard
)

// Request is a scheduled I/O request waiting in a priority queue.
type Request struct {
	ID            uint64
	Priority      Priority
	OpType        OpType
	BlockID       uint64
	EnqueueTimeNs uint64
	DeadlineNs    *uint64
}

// Config configures the scheduler's admission and starvation policy.
type Config struct {
	MaxQueueDepth         int
	MaxInflight           int
	StarvationThresholdMs uint64
	CriticalReservation   float64
}

// DefaultConfig returns the scheduler defaults used across ClaudeFS nodes.
func DefaultConfig() Config {
	return Config{
		MaxQueueDepth:         1024,
		MaxInflight:           128,
		StarvationThresholdMs: 100,
		CriticalReservation:   0.1,
	}
}

// CriticalReservedSlots returns the number of queue slots reserved for
// Critical-priority requests.
func (c Config) CriticalReservedSlots() int {
	slots := float64(c.MaxQueueDepth) * c.CriticalReservation
	n := int(slots)
	if slots > float64(n) {
		n++
	}
	return n
}

// Stats tracks lifetime scheduler counters.
type Stats struct {
	Enqueued             uint64
	Dequeued             uint64
	Completed            uint64
	Rejected             uint64
	StarvationPromotions uint64
	PerPriorityEnqueued  [4]uint64
}

func (s *Stats) recordEnqueue(p Priority) {
	s.Enqueued++
	s.PerPriorityEnqueued[p.index()]++
}

// Scheduler is a priority-based I/O scheduler with QoS enforcement.
type Scheduler struct {
	config   Config
	queues   [4][]Request
	inflight map[uint64]struct{}
	stats    Stats
	nowFunc  func() uint64
}

// New creates a scheduler with the given configuration.
func New(config Config) *Scheduler {
	logger.Debug("creating io scheduler",
		"max_queue_depth", config.MaxQueueDepth,
		"max_inflight", config.MaxInflight,
		"starvation_threshold_ms", config.StarvationThresholdMs,
	)
	return &Scheduler{
		config:   config,
		inflight: make(map[uint64]struct{}),
		nowFunc:  func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// hasRoomForHighPriority reports whether a Critical/High request can still
// be admitted when the queue has reached max depth.
func (s *Scheduler) hasRoomForHighPriority() bool {
	criticalSlots := s.config.CriticalReservedSlots()
	currentCritical := len(s.queues[Critical.index()])
	total := s.QueueDepth()
	return total < s.config.MaxQueueDepth-criticalSlots || currentCritical < criticalSlots
}

// Enqueue admits a request into its priority queue, rejecting it when the
// queue is full and the request cannot claim a reserved slot.
func (s *Scheduler) Enqueue(req Request) error {
	totalDepth := s.QueueDepth()

	if totalDepth >= s.config.MaxQueueDepth {
		if !req.Priority.IsHigh() || !s.hasRoomForHighPriority() {
			logger.Warn("io scheduler queue full",
				"depth", totalDepth, "max", s.config.MaxQueueDepth, "priority", req.Priority.String())
			s.stats.Rejected++
			return claudefserrors.New(claudefserrors.KindScheduler, claudefserrors.CodeQueueFull, "Scheduler.Enqueue")
		}
	}

	idx := req.Priority.index()
	s.queues[idx] = append(s.queues[idx], req)
	s.stats.recordEnqueue(req.Priority)

	logger.Debug("enqueued io request",
		"id", req.ID, "priority", req.Priority.String(), "queue_depth", s.QueueDepth())
	return nil
}

// Dequeue returns the next request in strict priority order, promoting
// Normal/Low requests that have waited past the starvation threshold for
// accounting purposes. Returns false if no requests are pending.
func (s *Scheduler) Dequeue() (Request, bool) {
	now := s.nowFunc()
	starvationThresholdNs := s.config.StarvationThresholdMs * 1_000_000

	for idx := 0; idx < 4; idx++ {
		q := s.queues[idx]
		if len(q) == 0 {
			continue
		}
		req := q[0]
		s.queues[idx] = q[1:]
		s.stats.Dequeued++

		if idx >= Normal.index() {
			var waitNs uint64
			if now > req.EnqueueTimeNs {
				waitNs = now - req.EnqueueTimeNs
			}
			if waitNs > starvationThresholdNs {
				s.stats.StarvationPromotions++
				logger.Debug("starvation promotion", "id", req.ID, "waited_ms", waitNs/1_000_000)
			}
		}

		s.inflight[req.ID] = struct{}{}
		logger.Debug("dequeued io request",
			"id", req.ID, "priority", req.Priority.String(), "inflight", len(s.inflight))
		return req, true
	}

	return Request{}, false
}

// Complete marks a request as finished, removing it from the inflight set.
func (s *Scheduler) Complete(id uint64) {
	if _, ok := s.inflight[id]; ok {
		delete(s.inflight, id)
		s.stats.Completed++
		logger.Debug("completed io request", "id", id, "inflight", len(s.inflight))
		return
	}
	logger.Warn("attempted to complete unknown io request", "id", id)
}

// QueueDepth returns the total number of queued requests across all
// priority levels.
func (s *Scheduler) QueueDepth() int {
	total := 0
	for _, q := range s.queues {
		total += len(q)
	}
	return total
}

// InflightCount returns the number of in-flight I/O operations.
func (s *Scheduler) InflightCount() int {
	return len(s.inflight)
}

// IsAccepting reports whether the scheduler can accept new requests.
func (s *Scheduler) IsAccepting() bool {
	return s.QueueDepth() < s.config.MaxQueueDepth && len(s.inflight) < s.config.MaxInflight
}

// Stats returns a snapshot of the scheduler's lifetime counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// DrainPriority removes and returns every request queued at the given
// priority level.
func (s *Scheduler) DrainPriority(p Priority) []Request {
	idx := p.index()
	drained := s.queues[idx]
	s.queues[idx] = nil
	logger.Debug("drained priority queue", "count", len(drained), "priority", p.String())
	return drained
}

// PriorityDepth returns the number of requests queued at the given
// priority level.
func (s *Scheduler) PriorityDepth(p Priority) int {
	return len(s.queues[p.index()])
}

// IsEmpty reports whether there are no queued requests at any priority.
func (s *Scheduler) IsEmpty() bool {
	return s.QueueDepth() == 0
}

// Config returns the scheduler's configuration.
func (s *Scheduler) Config() Config {
	return s.config
}
