// Package sys holds the filesystem primitives the file-backed store needs:
// process-exclusive locks and atomic file replacement.
package sys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrLocked means another process holds the lock.
	ErrLocked = errors.New("file is locked by another process")
	// ErrOSFileLockNotSupported is returned by AcquireOSFileLock where the
	// platform has no advisory locking.
	ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")
)

const lockRetryInterval = 25 * time.Millisecond

// LockPath is the lock file guarding path.
func LockPath(path string) string {
	return path + ".lock"
}

// AcquireFileLock guards path with the lock file path + ".lock". It prefers
// an OS advisory lock and falls back to exclusive creation. In fallback mode
// a lock file older than staleTTL is considered abandoned and broken; a zero
// staleTTL never breaks a lock.
func AcquireFileLock(path string, timeout, staleTTL time.Duration) (func() error, error) {
	lockPath := LockPath(path)

	release, err := AcquireOSFileLock(lockPath, timeout)
	if err == nil {
		_ = os.WriteFile(lockPath, lockStamp(), 0644)
		return release, nil
	}
	if !errors.Is(err, ErrOSFileLockNotSupported) {
		return nil, err
	}
	return acquireExclusiveCreate(lockPath, timeout, staleTTL)
}

func acquireExclusiveCreate(lockPath string, timeout, staleTTL time.Duration) (func() error, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			stamp := lockStamp()
			_, werr := f.Write(stamp)
			cerr := f.Close()
			if werr = errors.Join(werr, cerr); werr != nil {
				_ = os.Remove(lockPath)
				return nil, fmt.Errorf("write lock file: %w", werr)
			}
			return func() error {
				b, err := os.ReadFile(lockPath)
				if os.IsNotExist(err) {
					return nil
				}
				if err != nil {
					return err
				}
				// someone broke our lock and took it over
				if string(b) != string(stamp) {
					return nil
				}
				return os.Remove(lockPath)
			}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if staleTTL > 0 && lockAge(lockPath) > staleTTL {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		time.Sleep(lockRetryInterval)
	}
}

// lockStamp is the pid (uint32) followed by the UnixNano acquisition time (uint64).
func lockStamp() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(os.Getpid()))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(time.Now().UTC().UnixNano()))
	return buf
}

func lockAge(lockPath string) time.Duration {
	now := time.Now().UTC()
	if b, err := os.ReadFile(lockPath); err == nil && len(b) >= 12 {
		return now.Sub(time.Unix(0, int64(binary.LittleEndian.Uint64(b[4:12]))))
	}
	if info, err := os.Stat(lockPath); err == nil {
		return now.Sub(info.ModTime())
	}
	return 0
}
