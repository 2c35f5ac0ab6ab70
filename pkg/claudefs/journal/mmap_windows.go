//go:build windows

// mmap_windows.go stubs out mmap persistence on Windows, where the journal
// falls back to an in-memory-only WriteJournal (no crash recovery).

package journal

// MmapPersister is not supported on Windows.
type MmapPersister struct{}

// NewMmapPersister returns an error on Windows.
func NewMmapPersister(_ string) (*MmapPersister, error) {
	return nil, ErrUnsupportedPlatform
}

func (p *MmapPersister) AppendEntry(_ Entry) error { return ErrUnsupportedPlatform }
func (p *MmapPersister) Sync() error               { return ErrUnsupportedPlatform }
func (p *MmapPersister) Recover() ([]Entry, error) { return nil, ErrUnsupportedPlatform }
func (p *MmapPersister) Close() error              { return nil }
