// Package s3lock implements S3 Object Lock (WORM): bucket-level lock
// configuration, per-object retention and legal hold, and the
// delete/overwrite predicates that enforce them.
package s3lock

import (
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// RetentionMode is the S3 Object Lock retention mode.
type RetentionMode int

const (
	// Governance retention can be bypassed by a caller with the bypass
	// flag set.
	Governance RetentionMode = iota
	// Compliance retention can never be bypassed, even by the bucket
	// owner, until retain_until elapses.
	Compliance
)

// LegalHold is an independent, mode-less hold that blocks deletion and
// overwrite regardless of retention.
type LegalHold int

const (
	LegalHoldOff LegalHold = iota
	LegalHoldOn
)

// Retention is a single object version's retention setting.
type Retention struct {
	Mode        RetentionMode
	RetainUntil uint64 // unix seconds
}

// ObjectKey identifies one object version.
type ObjectKey struct {
	Bucket  string
	Key     string
	Version string
}

// BucketConfig tracks whether Object Lock is enabled for a bucket. Object
// Lock can only be enabled once at bucket creation; attempting to
// configure it twice is an error.
type BucketConfig struct {
	Enabled bool
}

// Manager owns bucket lock configuration and per-object-version retention
// and legal hold state.
type Manager struct {
	buckets    map[string]*BucketConfig
	retentions map[ObjectKey]Retention
	legalHolds map[ObjectKey]LegalHold
}

// New creates an Object Lock manager.
func New() *Manager {
	return &Manager{
		buckets:    make(map[string]*BucketConfig),
		retentions: make(map[ObjectKey]Retention),
		legalHolds: make(map[ObjectKey]LegalHold),
	}
}

// EnableBucketLock turns on Object Lock for a bucket. Enabling twice is an
// error.
func (m *Manager) EnableBucketLock(bucket string) error {
	if cfg, ok := m.buckets[bucket]; ok && cfg.Enabled {
		return claudefserrors.New(claudefserrors.KindLock, claudefserrors.CodeBucketAlreadyConfigured, "Manager.EnableBucketLock")
	}
	m.buckets[bucket] = &BucketConfig{Enabled: true}
	return nil
}

// IsBucketLockEnabled reports whether a bucket has Object Lock enabled.
func (m *Manager) IsBucketLockEnabled(bucket string) bool {
	cfg, ok := m.buckets[bucket]
	return ok && cfg.Enabled
}

// SetRetention sets an object version's retention. Requires the bucket's
// lock to be enabled and retainUntil to be strictly in the future of now.
func (m *Manager) SetRetention(key ObjectKey, mode RetentionMode, retainUntil, now uint64) error {
	if !m.IsBucketLockEnabled(key.Bucket) {
		return claudefserrors.New(claudefserrors.KindLock, claudefserrors.CodeBucketNotEnabled, "Manager.SetRetention")
	}
	if retainUntil <= now {
		return claudefserrors.New(claudefserrors.KindLock, claudefserrors.CodeInvalidRetentionDate, "Manager.SetRetention")
	}
	m.retentions[key] = Retention{Mode: mode, RetainUntil: retainUntil}
	return nil
}

// SetLegalHold sets or clears an object version's legal hold. Legal hold
// requires no bucket configuration and may be set independent of
// retention.
func (m *Manager) SetLegalHold(key ObjectKey, hold LegalHold) {
	m.legalHolds[key] = hold
}

func (m *Manager) activeRetention(key ObjectKey, now uint64) (Retention, bool) {
	r, ok := m.retentions[key]
	if !ok {
		return Retention{}, false
	}
	return r, r.RetainUntil > now
}

// canMutate is the shared predicate behind can_delete and can_overwrite:
// deny if legal hold is on, deny if an active Compliance retention exists,
// deny if an active Governance retention exists and bypass is not set.
func (m *Manager) canMutate(key ObjectKey, now uint64, bypassGovernance bool, op string) error {
	if m.legalHolds[key] == LegalHoldOn {
		return claudefserrors.New(claudefserrors.KindLock, claudefserrors.CodeLegalHoldActive, op)
	}

	retention, active := m.activeRetention(key, now)
	if !active {
		return nil
	}

	switch retention.Mode {
	case Compliance:
		return claudefserrors.New(claudefserrors.KindLock, claudefserrors.CodeComplianceCannotBypass, op)
	case Governance:
		if !bypassGovernance {
			return claudefserrors.New(claudefserrors.KindLock, claudefserrors.CodeRetentionNotElapsed, op)
		}
		return nil
	default:
		return nil
	}
}

// CanDelete reports whether key may be deleted at time now.
func (m *Manager) CanDelete(key ObjectKey, now uint64, bypassGovernance bool) error {
	return m.canMutate(key, now, bypassGovernance, "Manager.CanDelete")
}

// CanOverwrite reports whether key may be overwritten at time now. Uses
// the same predicate as CanDelete.
func (m *Manager) CanOverwrite(key ObjectKey, now uint64, bypassGovernance bool) error {
	return m.canMutate(key, now, bypassGovernance, "Manager.CanOverwrite")
}

// Retention returns the currently configured retention for key, if any.
func (m *Manager) Retention(key ObjectKey) (Retention, bool) {
	r, ok := m.retentions[key]
	return r, ok
}

// LegalHoldStatus returns the current legal hold status for key.
func (m *Manager) LegalHoldStatus(key ObjectKey) LegalHold {
	return m.legalHolds[key]
}
