//go:build !windows

// mmap.go provides memory-mapped file backing for journal persistence,
// exploiting the OS page cache the same way the cache package's WAL does:
// an append-only log that replays on startup.
//
// File format:
//
//	Header (64 bytes):
//	  - Magic: "CFSJ" (4 bytes)
//	  - Version: uint16 (2 bytes)
//	  - Entry count: uint32 (4 bytes)
//	  - Next write offset: uint64 (8 bytes)
//	  - Total data size: uint64 (8 bytes)
//	  - Reserved: 38 bytes
//
//	Entries (variable):
//	  - Sequence: uint64 (8 bytes)
//	  - Timestamp ns: uint64 (8 bytes)
//	  - Inode: uint64 (8 bytes)
//	  - Offset: uint64 (8 bytes)
//	  - Checksum algorithm: uint8 (1 byte)
//	  - Checksum value: uint64 (8 bytes)
//	  - Op kind: uint8 (1 byte)
//	  - NewSize (Truncate only): uint64 (8 bytes)
//	  - Data length: uint32 (4 bytes)
//	  - Data: variable (Write only)
package journal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittofs/pkg/claudefs/checksum"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

const (
	mmapMagic       = "CFSJ"
	mmapVersion     = uint16(1)
	mmapHeaderSize  = 64
	mmapInitialSize = 64 * 1024 * 1024
	mmapGrowth      = 2

	headerOffMagic      = 0
	headerOffVersion    = 4
	headerOffEntryCount = 6
	headerOffNextOffset = 10
	headerOffTotalData  = 18
)

type mmapHeader struct {
	Magic         [4]byte
	Version       uint16
	EntryCount    uint32
	NextOffset    uint64
	TotalDataSize uint64
}

// MmapPersister implements Persister using a memory-mapped append-only
// log file, grounded directly on the cache package's mmap WAL (see
// pkg/cache/wal/mmap.go) generalized from cache slices to journal entries.
type MmapPersister struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	data   []byte
	size   uint64
	header *mmapHeader
	dirty  bool
	closed bool
}

// NewMmapPersister creates (or opens) an mmap-backed journal log under dir.
func NewMmapPersister(dir string) (*MmapPersister, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.NewMmapPersister.MkdirAll", err)
	}

	p := &MmapPersister{path: dir}
	if err := p.init(); err != nil {
		return nil, claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.NewMmapPersister.init", err)
	}
	return p, nil
}

func (p *MmapPersister) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.path, "journal.dat")

	_, err := os.Stat(filePath)
	if err == nil {
		return p.openExisting(filePath)
	}
	return p.createNew(filePath)
}

func (p *MmapPersister) createNew(filePath string) error {
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.createNew.OpenFile", err)
	}

	if err := f.Truncate(int64(mmapInitialSize)); err != nil {
		f.Close()
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.createNew.Truncate", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, mmapInitialSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.createNew.Mmap", err)
	}

	p.file = f
	p.data = data
	p.size = mmapInitialSize
	p.header = &mmapHeader{Version: mmapVersion, NextOffset: mmapHeaderSize}
	copy(p.header.Magic[:], mmapMagic)
	p.writeHeader()

	return nil
}

func (p *MmapPersister) openExisting(filePath string) error {
	f, err := os.OpenFile(filePath, os.O_RDWR, 0644)
	if err != nil {
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.openExisting.OpenFile", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.openExisting.Stat", err)
	}

	size := uint64(info.Size())
	if size < mmapHeaderSize {
		f.Close()
		return ErrCorrupted
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.openExisting.Mmap", err)
	}

	p.file = f
	p.data = data
	p.size = size

	header := &mmapHeader{}
	copy(header.Magic[:], data[headerOffMagic:headerOffVersion])
	header.Version = binary.LittleEndian.Uint16(data[headerOffVersion:headerOffEntryCount])
	header.EntryCount = binary.LittleEndian.Uint32(data[headerOffEntryCount:headerOffNextOffset])
	header.NextOffset = binary.LittleEndian.Uint64(data[headerOffNextOffset:headerOffTotalData])
	header.TotalDataSize = binary.LittleEndian.Uint64(data[headerOffTotalData:])

	if string(header.Magic[:]) != mmapMagic {
		p.closeLocked()
		return ErrCorrupted
	}
	if header.Version != mmapVersion {
		p.closeLocked()
		return ErrVersionMismatch
	}

	p.header = header
	return nil
}

// entrySize returns the on-disk size (excluding the data payload) plus the
// data payload length for e.
const fixedEntrySize = 8 + 8 + 8 + 8 + 1 + 8 + 1 + 8 + 4 // seq+ts+inode+offset+algo+value+kind+newsize+datalen

// AppendEntry appends a single journal entry to the log.
func (p *MmapPersister) AppendEntry(e Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersisterClosed
	}

	entrySize := uint64(fixedEntrySize) + uint64(len(e.Op.Data))
	if err := p.ensureSpace(entrySize); err != nil {
		return err
	}

	offset := p.header.NextOffset

	binary.LittleEndian.PutUint64(p.data[offset:], e.Sequence)
	offset += 8
	binary.LittleEndian.PutUint64(p.data[offset:], e.TimestampNs)
	offset += 8
	binary.LittleEndian.PutUint64(p.data[offset:], e.Inode)
	offset += 8
	binary.LittleEndian.PutUint64(p.data[offset:], e.Offset)
	offset += 8
	p.data[offset] = uint8(e.DataChecksum.Algorithm)
	offset++
	binary.LittleEndian.PutUint64(p.data[offset:], e.DataChecksum.Value)
	offset += 8
	p.data[offset] = uint8(e.Op.Kind)
	offset++
	binary.LittleEndian.PutUint64(p.data[offset:], e.Op.NewSize)
	offset += 8
	binary.LittleEndian.PutUint32(p.data[offset:], e.DataLen)
	offset += 4
	if len(e.Op.Data) > 0 {
		copy(p.data[offset:], e.Op.Data)
		offset += uint64(len(e.Op.Data))
	}

	p.header.NextOffset = offset
	p.header.EntryCount++
	p.header.TotalDataSize += uint64(len(e.Op.Data))
	p.writeHeader()
	p.dirty = true

	return nil
}

// Sync forces pending writes to disk via msync(MS_ASYNC); the data itself
// is always crash-safe because the header is rewritten on every append.
func (p *MmapPersister) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersisterClosed
	}
	if !p.dirty {
		return nil
	}

	if err := unix.Msync(p.data, unix.MS_ASYNC); err != nil {
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.Sync.Msync", err)
	}
	p.dirty = false
	return nil
}

// Recover replays the log and returns every entry in sequence order.
func (p *MmapPersister) Recover() ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPersisterClosed
	}

	var entries []Entry
	offset := uint64(mmapHeaderSize)
	end := p.header.NextOffset

	for offset < end {
		e, newOffset, err := p.readEntry(offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		offset = newOffset
	}

	return entries, nil
}

func (p *MmapPersister) readEntry(offset uint64) (Entry, uint64, error) {
	need := func(n uint64) error {
		if offset+n > p.size {
			return ErrCorrupted
		}
		return nil
	}

	var e Entry
	if err := need(8); err != nil {
		return e, 0, err
	}
	e.Sequence = binary.LittleEndian.Uint64(p.data[offset:])
	offset += 8

	if err := need(8); err != nil {
		return e, 0, err
	}
	e.TimestampNs = binary.LittleEndian.Uint64(p.data[offset:])
	offset += 8

	if err := need(8); err != nil {
		return e, 0, err
	}
	e.Inode = binary.LittleEndian.Uint64(p.data[offset:])
	offset += 8

	if err := need(8); err != nil {
		return e, 0, err
	}
	e.Offset = binary.LittleEndian.Uint64(p.data[offset:])
	offset += 8

	if err := need(1); err != nil {
		return e, 0, err
	}
	algo := checksum.Algorithm(p.data[offset])
	offset++

	if err := need(8); err != nil {
		return e, 0, err
	}
	value := binary.LittleEndian.Uint64(p.data[offset:])
	offset += 8
	e.DataChecksum = checksum.Checksum{Algorithm: algo, Value: value}

	if err := need(1); err != nil {
		return e, 0, err
	}
	kind := OpKind(p.data[offset])
	offset++

	if err := need(8); err != nil {
		return e, 0, err
	}
	newSize := binary.LittleEndian.Uint64(p.data[offset:])
	offset += 8

	if err := need(4); err != nil {
		return e, 0, err
	}
	dataLen := binary.LittleEndian.Uint32(p.data[offset:])
	offset += 4

	var data []byte
	if dataLen > 0 {
		if err := need(uint64(dataLen)); err != nil {
			return e, 0, err
		}
		data = make([]byte, dataLen)
		copy(data, p.data[offset:offset+uint64(dataLen)])
		offset += uint64(dataLen)
	}

	e.DataLen = dataLen
	e.Op = Op{Kind: kind, Data: data, NewSize: newSize}

	return e, offset, nil
}

// Close releases resources held by the persister.
func (p *MmapPersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *MmapPersister) closeLocked() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.data != nil {
		if p.dirty {
			p.writeHeader()
		}
		_ = unix.Msync(p.data, unix.MS_SYNC)
		if err := unix.Munmap(p.data); err != nil {
			return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.Close.Munmap", err)
		}
		p.data = nil
	}

	if p.file != nil {
		if err := p.file.Close(); err != nil {
			return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.Close.Close", err)
		}
		p.file = nil
	}

	return nil
}

func (p *MmapPersister) writeHeader() {
	copy(p.data[headerOffMagic:], p.header.Magic[:])
	binary.LittleEndian.PutUint16(p.data[headerOffVersion:], p.header.Version)
	binary.LittleEndian.PutUint32(p.data[headerOffEntryCount:], p.header.EntryCount)
	binary.LittleEndian.PutUint64(p.data[headerOffNextOffset:], p.header.NextOffset)
	binary.LittleEndian.PutUint64(p.data[headerOffTotalData:], p.header.TotalDataSize)
}

func (p *MmapPersister) ensureSpace(needed uint64) error {
	if p.header.NextOffset+needed <= p.size {
		return nil
	}

	newSize := p.size * mmapGrowth
	for p.header.NextOffset+needed > newSize {
		newSize *= mmapGrowth
	}

	if err := unix.Munmap(p.data); err != nil {
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.ensureSpace.Munmap", err)
	}
	if err := p.file.Truncate(int64(newSize)); err != nil {
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.ensureSpace.Truncate", err)
	}

	data, err := unix.Mmap(int(p.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.MmapPersister.ensureSpace.Mmap", err)
	}

	p.data = data
	p.size = newSize
	return nil
}
