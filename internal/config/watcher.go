package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/netpipefs/netpipefs/internal/logging"
)

// MountWatcher watches the mountpoint's parent directory for the
// mountpoint being removed or replaced out from under a live mount
// (e.g. an operator deleting the directory, or a competing process
// remounting over it), debouncing bursts of filesystem events into a
// single callback invocation.
type MountWatcher struct {
	mu            sync.Mutex
	watcher       *fsnotify.Watcher
	mountPoint    string
	callback      func()
	debounceTimer *time.Timer
}

// WatchMountPoint starts watching the parent directory of mountPoint,
// invoking callback (debounced by 100ms) whenever mountPoint itself is
// created, removed or renamed.
func WatchMountPoint(mountPoint string, callback func()) (*MountWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(mountPoint)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &MountWatcher{
		watcher:    watcher,
		mountPoint: filepath.Clean(mountPoint),
		callback:   callback,
	}
	go w.loop()
	return w, nil
}

const debounceInterval = 100 * time.Millisecond

func (w *MountWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.mountPoint {
				continue
			}

			w.mu.Lock()
			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}
			w.debounceTimer = time.AfterFunc(debounceInterval, w.callback)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L.Warn().WithMessage("mount watcher error").WithField("error", err.Error()).Write()
		}
	}
}

func (w *MountWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	return w.watcher.Close()
}
