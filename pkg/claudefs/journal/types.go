package journal

import (
	"time"

	"github.com/marmos91/dittofs/pkg/claudefs/checksum"
)

// OpKind identifies the kind of operation a journal entry records.
type OpKind uint8

const (
	OpWrite OpKind = iota
	OpTruncate
	OpDelete
	OpMkdir
	OpFsync
)

func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "Write"
	case OpTruncate:
		return "Truncate"
	case OpDelete:
		return "Delete"
	case OpMkdir:
		return "Mkdir"
	case OpFsync:
		return "Fsync"
	default:
		return "Unknown"
	}
}

// Op is a closed-variant journal operation. Only the fields relevant to
// Kind are meaningful: Data for OpWrite, NewSize for OpTruncate.
type Op struct {
	Kind    OpKind
	Data    []byte
	NewSize uint64
}

// DataLen returns the size of the data payload carried by the op, 0 for
// every kind but OpWrite.
func (o Op) DataLen() uint32 {
	if o.Kind == OpWrite {
		return uint32(len(o.Data))
	}
	return 0
}

// Entry is a single durable record in the write journal.
type Entry struct {
	Sequence     uint64
	TimestampNs  uint64
	Inode        uint64
	Offset       uint64
	DataChecksum checksum.Checksum
	DataLen      uint32
	Op           Op
}

// SyncMode controls when the journal flushes to stable storage.
type SyncMode int

const (
	// SyncAlways fsyncs after every append.
	SyncAlways SyncMode = iota
	// BatchSync fsyncs after N appends or a timeout, whichever comes first.
	BatchSync
	// AsyncSync fsyncs periodically regardless of append volume.
	AsyncSync
)

// Config configures a WriteJournal.
type Config struct {
	// MaxJournalSize is the accounted-bytes ceiling that trips IsFull.
	MaxJournalSize uint64
	SyncMode       SyncMode
	ChecksumAlgo   checksum.Algorithm
	MaxBatchSize   int
	BatchTimeout   time.Duration
}

// DefaultConfig mirrors the original implementation's tuned defaults.
func DefaultConfig() Config {
	return Config{
		MaxJournalSize: 256 * 1024 * 1024,
		SyncMode:       BatchSync,
		ChecksumAlgo:   checksum.CRC32C,
		MaxBatchSize:   64,
		BatchTimeout:   500 * time.Microsecond,
	}
}

// Stats accumulates lifetime counters for a WriteJournal.
type Stats struct {
	EntriesAppended  uint64
	EntriesCommitted uint64
	EntriesTruncated uint64
	BytesWritten     uint64
	Commits          uint64
	BatchFlushes     uint64
}

// entryOverheadBytes is the fixed per-entry accounting overhead (sequence,
// timestamp, inode, offset, checksum, data_len, op discriminant), grounded
// in write_journal.rs::estimate_entry_size.
const entryOverheadBytes = 64

func estimateEntrySize(op Op) uint64 {
	return entryOverheadBytes + uint64(len(op.Data))
}
