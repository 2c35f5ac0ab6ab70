// Package journal implements the write-ahead journal that absorbs writes
// before they are durable (spec.md §4.2). Writes become durable only after
// Commit; entries_since and truncate_before are used by the segment packer.
package journal

import (
	"sync"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/pkg/claudefs/checksum"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// WriteJournal is a sequence-ordered, append-only log of pending and
// committed operations. It owns its entry log exclusively; no other
// component mutates it (spec.md §3 Ownership).
type WriteJournal struct {
	mu sync.Mutex

	config Config
	persister Persister

	entries           []Entry
	nextSequence      uint64
	totalBytes        uint64
	committedSequence uint64
	stats             Stats
}

// New creates a WriteJournal with no backing persister (pure in-memory;
// suitable for tests and for callers that persist elsewhere).
func New(config Config) *WriteJournal {
	return NewWithPersister(config, nil)
}

// NewWithPersister creates a WriteJournal backed by persister for crash
// recovery. persister may be nil.
func NewWithPersister(config Config, persister Persister) *WriteJournal {
	logger.Debug("creating write journal",
		"max_journal_size", config.MaxJournalSize,
		"sync_mode", config.SyncMode,
	)
	return &WriteJournal{
		config:       config,
		persister:    persister,
		nextSequence: 1,
	}
}

// Append assigns the next sequence number, computes a data checksum for
// Write ops, buffers the entry and returns the assigned sequence. The
// entry is not durable until Commit (and, if configured, Sync) runs.
func (j *WriteJournal) Append(op Op, inode, offset uint64) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	sequence := j.nextSequence
	j.nextSequence++

	var dataChecksum checksum.Checksum
	if op.Kind == OpWrite {
		dataChecksum = checksum.Compute(j.config.ChecksumAlgo, op.Data)
	} else {
		dataChecksum = checksum.Checksum{Algorithm: j.config.ChecksumAlgo}
	}

	entry := Entry{
		Sequence:     sequence,
		TimestampNs:  uint64(time.Now().UnixNano()),
		Inode:        inode,
		Offset:       offset,
		DataChecksum: dataChecksum,
		DataLen:      op.DataLen(),
		Op:           op,
	}

	entrySize := estimateEntrySize(op)
	j.entries = append(j.entries, entry)
	j.totalBytes += entrySize
	j.stats.EntriesAppended++
	j.stats.BytesWritten += entrySize

	if j.persister != nil {
		if err := j.persister.AppendEntry(entry); err != nil {
			return 0, claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.Append", err)
		}
		if j.config.SyncMode == SyncAlways {
			if err := j.persister.Sync(); err != nil {
				return 0, claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.Append", err)
			}
		}
	}

	logger.Debug("appended journal entry",
		"sequence", sequence, "inode", inode, "offset", offset,
		"data_len", entry.DataLen, "total_entries", len(j.entries))

	return sequence, nil
}

// Commit marks every appended-but-uncommitted entry as durable and
// advances committed_sequence to the current high-water mark.
func (j *WriteJournal) Commit() (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == 0 {
		return j.committedSequence, nil
	}

	committedSeq := j.nextSequence - 1

	var newlyCommitted int
	if j.committedSequence == 0 {
		newlyCommitted = len(j.entries)
	} else {
		for _, e := range j.entries {
			if e.Sequence > j.committedSequence {
				newlyCommitted++
			}
		}
	}

	j.committedSequence = committedSeq
	j.stats.EntriesCommitted += uint64(newlyCommitted)
	j.stats.Commits++

	if j.persister != nil {
		if err := j.persister.Sync(); err != nil {
			return 0, claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.Commit", err)
		}
	}

	logger.Debug("committed journal entries",
		"committed_sequence", committedSeq, "newly_committed", newlyCommitted)

	return committedSeq, nil
}

// EntriesSince returns the suffix of entries whose sequence is >= sequence,
// used by the segment packer to pull newly-committed work.
func (j *WriteJournal) EntriesSince(sequence uint64) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Entry
	for _, e := range j.entries {
		if e.Sequence >= sequence {
			out = append(out, e)
		}
	}
	return out
}

// TruncateBefore drops every entry with sequence < sequence, called after
// that prefix has been packed into sealed segments. Returns the number of
// entries removed.
func (j *WriteJournal) TruncateBefore(sequence uint64) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	retained := j.entries[:0:0]
	removed := 0
	var totalBytes uint64
	for _, e := range j.entries {
		if e.Sequence < sequence {
			removed++
			continue
		}
		retained = append(retained, e)
		totalBytes += estimateEntrySize(e.Op)
	}

	j.entries = retained
	j.totalBytes = totalBytes
	j.stats.EntriesTruncated += uint64(removed)

	if removed > 0 {
		logger.Debug("truncated journal entries",
			"removed_count", removed, "retained_count", len(retained), "sequence", sequence)
	}

	return removed, nil
}

// IsFull reports whether the journal's accounted bytes have reached the
// configured ceiling. The caller is expected to back-pressure writers.
func (j *WriteJournal) IsFull() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalBytes >= j.config.MaxJournalSize
}

// PendingCount returns the number of entries not yet committed.
func (j *WriteJournal) PendingCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.committedSequence == 0 {
		return len(j.entries)
	}
	n := 0
	for _, e := range j.entries {
		if e.Sequence > j.committedSequence {
			n++
		}
	}
	return n
}

// TotalEntries returns the number of entries currently buffered.
func (j *WriteJournal) TotalEntries() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Stats returns a snapshot of the journal's lifetime counters.
func (j *WriteJournal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// CurrentSequence returns the highest sequence number assigned so far.
func (j *WriteJournal) CurrentSequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.nextSequence == 0 {
		return 0
	}
	return j.nextSequence - 1
}

// CommittedSequence returns the last committed sequence number.
func (j *WriteJournal) CommittedSequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committedSequence
}

// TotalBytes returns the journal's currently accounted byte size.
func (j *WriteJournal) TotalBytes() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalBytes
}

// Config returns the journal's configuration.
func (j *WriteJournal) Config() Config {
	return j.config
}

// VerifyEntry recomputes the data checksum for Write entries and compares
// it against the stored value. Non-Write entries always verify.
func (j *WriteJournal) VerifyEntry(e Entry) bool {
	if e.Op.Kind != OpWrite {
		return true
	}
	return checksum.Verify(e.DataChecksum, e.Op.Data)
}

// Recover replays the backing persister (if any) and reconstructs the
// journal's entry log and sequence counters. An entry whose CRC
// recomputation differs from its stored checksum is quarantined and
// reported via quarantined; replay continues from the next entry.
func (j *WriteJournal) Recover() (quarantined []Entry, err error) {
	if j.persister == nil {
		return nil, nil
	}

	entries, err := j.persister.Recover()
	if err != nil {
		return nil, claudefserrors.Wrap(claudefserrors.KindStorage, claudefserrors.CodeIOError, "journal.Recover", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = j.entries[:0]
	var maxSeq uint64
	for _, e := range entries {
		if e.Op.Kind == OpWrite && !checksum.Verify(e.DataChecksum, e.Op.Data) {
			quarantined = append(quarantined, e)
			logger.Warn("quarantined corrupted journal entry on replay", "sequence", e.Sequence)
			continue
		}
		j.entries = append(j.entries, e)
		j.totalBytes += estimateEntrySize(e.Op)
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
	}
	j.nextSequence = maxSeq + 1
	j.committedSequence = maxSeq

	return quarantined, nil
}

// Close releases the backing persister, if any.
func (j *WriteJournal) Close() error {
	if j.persister == nil {
		return nil
	}
	return j.persister.Close()
}
