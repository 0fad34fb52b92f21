//go:build !unix && !windows

package sys

import (
	"time"
)

// AcquireOSFileLock is unavailable on this platform; AcquireFileLock falls
// back to an exclusive-create lock file.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	return nil, ErrOSFileLockNotSupported
}
