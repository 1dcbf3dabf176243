package config

import (
	"fmt"
	"path/filepath"

	"github.com/alexflint/go-filemutex"
)

// InstanceLock guards against two netpipefs processes racing to mount
// the same mountpoint, the way the teacher's backup store guards its
// session file against concurrent agent instances: an flock-backed lock
// file sitting next to the resource it protects.
type InstanceLock struct {
	fl *filemutex.FileMutex
}

// AcquireInstanceLock takes an exclusive, non-blocking lock on a file
// named after mountPoint. It fails fast (rather than blocking) if
// another instance already holds it, since a second netpipefs process
// racing to serve the same mountpoint is a misconfiguration to report,
// not a condition to wait out.
func AcquireInstanceLock(mountPoint string) (*InstanceLock, error) {
	lockPath := filepath.Clean(mountPoint) + ".lock"

	fl, err := filemutex.New(lockPath)
	if err != nil {
		return nil, fmt.Errorf("config: opening instance lock %s: %w", lockPath, err)
	}
	if err := fl.TryLock(); err != nil {
		return nil, fmt.Errorf("config: mountpoint %s already in use by another netpipefs instance", mountPoint)
	}
	return &InstanceLock{fl: fl}, nil
}

func (l *InstanceLock) Release() error {
	return l.fl.Unlock()
}
