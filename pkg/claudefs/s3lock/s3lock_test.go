package s3lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnableBucketLock(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	assert.True(t, m.IsBucketLockEnabled("bucket1"))
}

func TestEnableBucketLockTwiceErrors(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	err := m.EnableBucketLock("bucket1")
	require.Error(t, err)
}

func TestSetRetentionRequiresBucketEnabled(t *testing.T) {
	m := New()
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	err := m.SetRetention(key, Governance, 2000, 1000)
	require.Error(t, err)
}

func TestSetRetentionPastDateRejected(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	err := m.SetRetention(key, Governance, 500, 1000)
	require.Error(t, err)
}

func TestSetRetentionFutureDateAccepted(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	require.NoError(t, m.SetRetention(key, Governance, 2000, 1000))
}

func TestCanDeleteDeniedByLegalHold(t *testing.T) {
	m := New()
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	m.SetLegalHold(key, LegalHoldOn)

	err := m.CanDelete(key, 1000, true)
	require.Error(t, err)
}

func TestCanDeleteDeniedByComplianceRetention(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	require.NoError(t, m.SetRetention(key, Compliance, 2000, 1000))

	err := m.CanDelete(key, 1500, true)
	require.Error(t, err)
}

func TestCanDeleteDeniedByGovernanceWithoutBypass(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	require.NoError(t, m.SetRetention(key, Governance, 2000, 1000))

	err := m.CanDelete(key, 1500, false)
	require.Error(t, err)
}

func TestCanDeleteAllowedByGovernanceWithBypass(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	require.NoError(t, m.SetRetention(key, Governance, 2000, 1000))

	err := m.CanDelete(key, 1500, true)
	require.NoError(t, err)
}

func TestCanDeleteAllowedAfterRetentionElapsed(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	require.NoError(t, m.SetRetention(key, Compliance, 2000, 1000))

	err := m.CanDelete(key, 2500, false)
	require.NoError(t, err)
}

func TestCanOverwriteUsesSamePredicate(t *testing.T) {
	m := New()
	require.NoError(t, m.EnableBucketLock("bucket1"))
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	require.NoError(t, m.SetRetention(key, Compliance, 2000, 1000))

	err := m.CanOverwrite(key, 1500, true)
	require.Error(t, err)
}

func TestNoRetentionOrHoldAllowsMutation(t *testing.T) {
	m := New()
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	require.NoError(t, m.CanDelete(key, 1000, false))
	require.NoError(t, m.CanOverwrite(key, 1000, false))
}

func TestLegalHoldStatusDefault(t *testing.T) {
	m := New()
	key := ObjectKey{Bucket: "bucket1", Key: "obj", Version: "v1"}
	assert.Equal(t, LegalHoldOff, m.LegalHoldStatus(key))
}
