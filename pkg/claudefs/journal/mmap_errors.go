package journal

import (
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Sentinel failures returned by MmapPersister. Each is a *claudefserrors.Error
// so callers can match via errors.Is against Kind+Code, per the ambient
// error-handling contract every claudefs package follows.
var (
	ErrCorrupted           = claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeLogCorrupted, "journal.MmapPersister")
	ErrVersionMismatch     = claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeLogVersionMismatch, "journal.MmapPersister")
	ErrPersisterClosed     = claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodePersisterClosed, "journal.MmapPersister")
	ErrUnsupportedPlatform = claudefserrors.New(claudefserrors.KindStorage, claudefserrors.CodeDeviceError, "journal.MmapPersister")
)
