//go:build windows

package sys

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// AcquireOSFileLock locks the first byte of lockPath with LockFileEx and
// retries until timeout elapses. The lock is held until release is called or
// the process exits.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	h := windows.Handle(f.Fd())
	var ov windows.Overlapped

	deadline := time.Now().Add(timeout)
	for {
		err = windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ov)
		if err == nil {
			return func() error {
				_ = windows.UnlockFileEx(h, 0, 1, 0, &ov)
				closeErr := f.Close()
				_ = os.Remove(lockPath)
				return closeErr
			}, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrLocked, lockPath, err)
		}
		time.Sleep(lockRetryInterval)
	}
}
