package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireInstanceLockRejectsSecondHolder(t *testing.T) {
	mountPoint := filepath.Join(t.TempDir(), "mnt")

	first, err := AcquireInstanceLock(mountPoint)
	require.NoError(t, err)

	_, err = AcquireInstanceLock(mountPoint)
	require.Error(t, err)

	require.NoError(t, first.Release())
}

func TestAcquireInstanceLockReusableAfterRelease(t *testing.T) {
	mountPoint := filepath.Join(t.TempDir(), "mnt")

	first, err := AcquireInstanceLock(mountPoint)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := AcquireInstanceLock(mountPoint)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}
