// Package atomicwrite manages hardware atomic writes on NVMe devices
// (kernel 6.11+): capability detection, aligned batch construction, and
// submission with an optional software fallback for oversized writes.
package atomicwrite

import (
	"os"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/pkg/claudefs/checksum"

	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// DefaultMaxAtomicWriteBytes is the default maximum size of a single
// hardware atomic write.
const DefaultMaxAtomicWriteBytes = 4096

// DefaultAtomicAlignment is the default alignment requirement for atomic
// write operations.
const DefaultAtomicAlignment = 4096

const atomicWriteSysPath = "/sys/block/nvme0n1/queue/atomic_write_max_bytes"

// BlockID identifies a block by device index and byte offset.
type BlockID struct {
	DeviceIdx uint16
	Offset    uint64
}

// BlockRef identifies the target block of an atomic write.
type BlockRef struct {
	ID BlockID
}

// Capability reports whether a device supports hardware atomic writes and,
// if so, the size and alignment constraints on a single atomic operation.
type Capability struct {
	Supported           bool
	MaxAtomicWriteBytes uint32
	Alignment           uint32
}

// Detect probes the kernel sysfs interface for atomic write support.
func Detect() Capability {
	logger.Debug("atomicwrite: detecting capability")

	if _, err := os.Stat(atomicWriteSysPath); err == nil {
		logger.Debug("atomicwrite: found atomic write sysfs", "path", atomicWriteSysPath)
		return Capability{
			Supported:           true,
			MaxAtomicWriteBytes: DefaultMaxAtomicWriteBytes,
			Alignment:           DefaultAtomicAlignment,
		}
	}

	logger.Debug("atomicwrite: not supported on this device")
	return Unsupported()
}

// Unsupported returns a capability indicating no atomic write support.
func Unsupported() Capability {
	return Capability{}
}

// CanAtomicWrite reports whether a write of size bytes can be performed
// atomically under this capability.
func (c Capability) CanAtomicWrite(size uint64) bool {
	if !c.Supported {
		return false
	}
	return size <= uint64(c.MaxAtomicWriteBytes) && size > 0
}

// Request is a single atomic write targeting one block.
type Request struct {
	BlockRef BlockRef
	Data     []byte
	Checksum checksum.Checksum
	Fence    bool
}

// NewRequest creates a request with an auto-computed CRC32C checksum.
func NewRequest(blockRef BlockRef, data []byte, fence bool) Request {
	return Request{
		BlockRef: blockRef,
		Data:     data,
		Checksum: checksum.Compute(checksum.CRC32C, data),
		Fence:    fence,
	}
}

// NewRequestWithChecksum creates a request with a caller-provided checksum.
func NewRequestWithChecksum(blockRef BlockRef, data []byte, sum checksum.Checksum, fence bool) Request {
	return Request{BlockRef: blockRef, Data: data, Checksum: sum, Fence: fence}
}

// Size returns the size of the request's data in bytes.
func (r Request) Size() uint64 {
	return uint64(len(r.Data))
}

// Stats tracks atomic write engine activity.
type Stats struct {
	AtomicWritesSubmitted uint64
	AtomicWritesCompleted uint64
	AtomicWritesFailed    uint64
	BytesWrittenAtomic    uint64
	FallbackWrites        uint64
}

func (s *Stats) submitted() {
	s.AtomicWritesSubmitted++
}

func (s *Stats) completed(bytes uint64) {
	s.AtomicWritesCompleted++
	s.BytesWrittenAtomic += bytes
}

func (s *Stats) failed() {
	s.AtomicWritesFailed++
}

func (s *Stats) fallback() {
	s.FallbackWrites++
}

// Batch accumulates atomic write requests for submission as a unit.
type Batch struct {
	requests   []Request
	totalBytes uint64
	capability Capability
}

// NewBatch creates an empty batch bound to capability.
func NewBatch(capability Capability) *Batch {
	return &Batch{capability: capability}
}

// Add validates request against the batch's capability (size limit and
// alignment) and appends it.
func (b *Batch) Add(request Request) error {
	size := request.Size()

	if !b.capability.CanAtomicWrite(size) {
		logger.Warn("atomicwrite: write size exceeds atomic write limit", "size", size, "max", b.capability.MaxAtomicWriteBytes)
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeNotAligned, "Batch.Add")
	}

	if b.capability.Alignment != 0 && uint32(size)%b.capability.Alignment != 0 {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeNotAligned, "Batch.Add")
	}

	b.totalBytes += size
	b.requests = append(b.requests, request)
	logger.Debug("atomicwrite: added request", "total_bytes", b.totalBytes, "request_count", len(b.requests))
	return nil
}

// Validate checks every request in the batch against the batch's
// capability, without mutating the batch.
func (b *Batch) Validate() error {
	if !b.capability.Supported {
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "Batch.Validate")
	}

	for _, request := range b.requests {
		if request.Size() > uint64(b.capability.MaxAtomicWriteBytes) {
			return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeNotAligned, "Batch.Validate")
		}
	}

	return nil
}

// Len returns the number of requests in the batch.
func (b *Batch) Len() int {
	return len(b.requests)
}

// IsEmpty reports whether the batch has no requests.
func (b *Batch) IsEmpty() bool {
	return len(b.requests) == 0
}

// TotalBytes returns the sum of request sizes in the batch.
func (b *Batch) TotalBytes() uint64 {
	return b.totalBytes
}

// Clear removes all requests from the batch.
func (b *Batch) Clear() {
	b.requests = nil
	b.totalBytes = 0
	logger.Debug("atomicwrite: cleared batch")
}

// Drain removes and returns all requests from the batch.
func (b *Batch) Drain() []Request {
	out := b.requests
	b.requests = nil
	b.totalBytes = 0
	logger.Debug("atomicwrite: drained batch", "count", len(out))
	return out
}

// Capability returns the capability this batch validates against.
func (b *Batch) Capability() Capability {
	return b.capability
}

// Engine submits atomic writes to an NVMe device, optionally falling back
// to a non-atomic path for writes that exceed the device's limits.
type Engine struct {
	capability      Capability
	stats           Stats
	fallbackEnabled bool
}

// New creates an engine without fallback support.
func New(capability Capability) *Engine {
	return &Engine{capability: capability}
}

// NewWithFallback creates an engine that falls back to a non-atomic path
// for writes the device cannot perform atomically.
func NewWithFallback(capability Capability) *Engine {
	return &Engine{capability: capability, fallbackEnabled: true}
}

// SubmitWrite submits a single atomic write request.
func (e *Engine) SubmitWrite(request Request) error {
	if !e.capability.CanAtomicWrite(request.Size()) {
		if e.fallbackEnabled {
			logger.Warn("atomicwrite: falling back to non-atomic write", "size", request.Size())
			e.stats.fallback()
			return nil
		}
		return claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeNotAligned, "Engine.SubmitWrite")
	}

	e.stats.submitted()
	logger.Debug("atomicwrite: submitting write", "block", request.BlockRef, "size", request.Size(), "fence", request.Fence)

	e.stats.completed(request.Size())
	return nil
}

// SubmitBatch validates and submits every request in batch, clearing it on
// success, and returns the number of requests submitted.
func (e *Engine) SubmitBatch(batch *Batch) (uint64, error) {
	if err := batch.Validate(); err != nil {
		return 0, err
	}

	count := uint64(batch.Len())
	if count == 0 {
		return 0, nil
	}

	for _, request := range batch.requests {
		e.stats.submitted()
		e.stats.completed(request.Size())
	}

	logger.Debug("atomicwrite: submitted batch", "count", count, "bytes", batch.TotalBytes())

	batch.Clear()
	return count, nil
}

// IsSupported reports whether the engine's device supports atomic writes.
func (e *Engine) IsSupported() bool {
	return e.capability.Supported
}

// Stats returns the engine's accumulated statistics.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Capability returns the engine's capability.
func (e *Engine) Capability() Capability {
	return e.capability
}

// FallbackEnabled reports whether the engine falls back to non-atomic
// writes for oversized requests.
func (e *Engine) FallbackEnabled() bool {
	return e.fallbackEnabled
}
