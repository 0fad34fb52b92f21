package kv

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/INLOpen/areas/compressors"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend      string
	Path         string
	Compression  string
	SyncOnWrite  bool
	MaxBytes     int64
	LockTimeout  time.Duration
	StaleLockTTL time.Duration
	ReadOnly     bool
	Logger       *slog.Logger
}

// Open builds the configured backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendMemory, "":
		return NewMemoryStore(opts.MaxBytes), nil
	case BackendFile:
		comp, err := compressors.FromName(opts.Compression)
		if err != nil {
			return nil, err
		}
		return OpenFileStore(opts.Path, FileStoreOptions{
			Compressor:   comp,
			SyncOnWrite:  opts.SyncOnWrite,
			MaxBytes:     opts.MaxBytes,
			LockTimeout:  opts.LockTimeout,
			StaleLockTTL: opts.StaleLockTTL,
			ReadOnly:     opts.ReadOnly,
			Logger:       opts.Logger,
		})
	case BackendSQLite:
		return OpenSQLiteStore(opts.Path, opts.MaxBytes)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Flusher is implemented by stores that buffer writes.
type Flusher interface {
	Flush() error
}
