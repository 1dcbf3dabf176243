package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchMountPointFiresOnRemoval(t *testing.T) {
	dir := t.TempDir()
	mountPoint := filepath.Join(dir, "mnt")
	require.NoError(t, os.Mkdir(mountPoint, 0700))

	var fired atomic.Bool
	w, err := WatchMountPoint(mountPoint, func() { fired.Store(true) })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Remove(mountPoint))

	require.Eventually(t, fired.Load, 2*time.Second, 10*time.Millisecond)
}

func TestWatchMountPointIgnoresUnrelatedSiblings(t *testing.T) {
	dir := t.TempDir()
	mountPoint := filepath.Join(dir, "mnt")
	require.NoError(t, os.Mkdir(mountPoint, 0700))

	var fired atomic.Bool
	w, err := WatchMountPoint(mountPoint, func() { fired.Store(true) })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated"), []byte("x"), 0600))

	time.Sleep(200 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestWatchMountPointDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	mountPoint := filepath.Join(dir, "mnt")
	require.NoError(t, os.Mkdir(mountPoint, 0700))

	var calls atomic.Int32
	w, err := WatchMountPoint(mountPoint, func() { calls.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.Rename(mountPoint, mountPoint+".tmp"))
		require.NoError(t, os.Rename(mountPoint+".tmp", mountPoint))
	}

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.LessOrEqual(t, calls.Load(), int32(2))
}
