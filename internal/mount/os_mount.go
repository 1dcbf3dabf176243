//go:build linux

package mount

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/netpipefs/netpipefs/internal/logging"
)

// MountNFS shells out to the standard mount(8) NFSv3 client to attach
// the loopback NFS server listening on port to mountPoint, following
// the corpus's own os/exec-based mount helper: build the mount(8)
// argument list, run it with retries, then poll the mountpoint until a
// directory listing succeeds before declaring it ready.
func MountNFS(port int, mountPoint string) error {
	if err := os.MkdirAll(mountPoint, 0700); err != nil {
		return fmt.Errorf("mount: creating mountpoint %s: %w", mountPoint, err)
	}

	args := []string{
		"-t", "nfs",
		"-o", fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,noacl,nocto,actimeo=0,lookupcache=none,noatime", port, port),
		"127.0.0.1:/",
		mountPoint,
	}

	const maxRetries = 3
	const retryDelay = 2 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		cmd := exec.Command("mount", args...)
		cmd.Env = os.Environ()
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err == nil {
			if waitAccessible(mountPoint, 10*time.Second) {
				return nil
			}
			UnmountNFS(mountPoint)
			lastErr = fmt.Errorf("mountpoint not accessible after mount")
		} else {
			lastErr = err
		}

		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return fmt.Errorf("mount: mounting %s after %d attempts: %w", mountPoint, maxRetries, lastErr)
}

func waitAccessible(mountPoint string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return false
		case <-ticker.C:
			if _, err := os.ReadDir(mountPoint); err == nil {
				return true
			}
		}
	}
}

// UnmountNFS detaches mountPoint with a single lazy, forced umount
// (umount -lf); a failure is logged, not returned.
func UnmountNFS(mountPoint string) {
	umount := exec.Command("umount", "-lf", mountPoint)
	umount.Env = os.Environ()
	if err := umount.Run(); err != nil {
		logging.L.Warn().WithMessage("umount failed").WithField("mountpoint", mountPoint).WithField("error", err.Error()).Write()
	}
}
