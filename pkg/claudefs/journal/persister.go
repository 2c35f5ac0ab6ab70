package journal

// Persister is the durability backend for a WriteJournal. Implementations
// must make AppendEntry crash-safe up to the point Sync is called under
// SyncAlways/BatchSync, or periodically under AsyncSync.
type Persister interface {
	// AppendEntry durably records a single entry's data in the log.
	AppendEntry(e Entry) error
	// Sync forces any pending writes to stable storage.
	Sync() error
	// Recover replays the log and returns every entry in sequence order.
	Recover() ([]Entry, error)
	// Close releases resources held by the persister.
	Close() error
}
