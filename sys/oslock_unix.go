//go:build unix

package sys

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// AcquireOSFileLock takes an exclusive, non-blocking flock on lockPath and
// retries until timeout elapses. The returned release function unlocks,
// closes and removes the lock file.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	deadline := time.Now().Add(timeout)
	for {
		err = syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return func() error {
				_ = syscall.Flock(fd, syscall.LOCK_UN)
				_ = os.Remove(lockPath)
				return f.Close()
			}, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrLocked, lockPath, err)
		}
		time.Sleep(lockRetryInterval)
	}
}
