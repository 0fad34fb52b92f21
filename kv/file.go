package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/INLOpen/areas/compressors"
	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/sys"
	"github.com/zeebo/xxh3"
)

const checksumSize = 8

// ErrReadOnly is returned by writes to a store opened read-only.
var ErrReadOnly = errors.New("property store is read-only")

// FileStoreOptions configures OpenFileStore.
type FileStoreOptions struct {
	// Compressor is used for new snapshots; existing files are read with the
	// compressor recorded in their header. Defaults to snappy.
	Compressor core.Compressor
	// SyncOnWrite persists after every Set and Delete instead of on Flush.
	SyncOnWrite bool
	MaxBytes    int64
	LockTimeout time.Duration
	// StaleLockTTL only applies where OS file locks are unavailable.
	StaleLockTTL time.Duration
	// ReadOnly opens without taking the lock and rejects writes.
	ReadOnly bool
	Logger   *slog.Logger
}

// FileStore is a MemoryStore persisted as a single snapshot file:
// header | compressed pairs | xxh3 of the compressed bytes.
// The file is replaced atomically on every flush.
type FileStore struct {
	*MemoryStore

	path        string
	compressor  core.Compressor
	syncOnWrite bool
	readOnly    bool
	logger      *slog.Logger

	mu      sync.Mutex
	dirty   bool
	release func() error
}

var _ Store = (*FileStore)(nil)

// OpenFileStore loads path if it exists, otherwise starts empty.
func OpenFileStore(path string, opts FileStoreOptions) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty store path")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	comp := opts.Compressor
	if comp == nil {
		comp = compressors.NewSnappyCompressor()
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}

	fs := &FileStore{
		MemoryStore: NewMemoryStore(opts.MaxBytes),
		path:        path,
		compressor:  comp,
		syncOnWrite: opts.SyncOnWrite,
		readOnly:    opts.ReadOnly,
		logger:      logger.With("component", "FileStore", "path", path),
	}

	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		release, err := sys.AcquireFileLock(path, lockTimeout, opts.StaleLockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock property store: %w", err)
		}
		fs.release = release
	}

	pairs, err := readSnapshot(path)
	if err != nil {
		fs.unlock()
		return nil, err
	}
	fs.MemoryStore.load(pairs)
	fs.logger.Info("Property store loaded.", "keys", len(pairs), "compression", comp.Type().String())
	return fs, nil
}

func (f *FileStore) Set(ctx context.Context, key, value string) error {
	if f.readOnly {
		return ErrReadOnly
	}
	if err := f.MemoryStore.Set(ctx, key, value); err != nil {
		return err
	}
	return f.markDirty()
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	if f.readOnly {
		return ErrReadOnly
	}
	if err := f.MemoryStore.Delete(ctx, key); err != nil {
		return err
	}
	return f.markDirty()
}

func (f *FileStore) markDirty() error {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
	if f.syncOnWrite {
		return f.Flush()
	}
	return nil
}

// Flush writes a new snapshot if anything changed since the last one.
func (f *FileStore) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty || f.readOnly {
		return nil
	}
	pairs := f.MemoryStore.pairs()
	if err := writeSnapshot(f.path, f.compressor, pairs); err != nil {
		return fmt.Errorf("flush property store: %w", err)
	}
	f.dirty = false
	f.logger.Debug("Property store flushed.", "keys", len(pairs))
	return nil
}

// Dirty reports whether there are unflushed writes.
func (f *FileStore) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *FileStore) Close() error {
	flushErr := f.Flush()
	closeErr := f.MemoryStore.Close()
	return errors.Join(flushErr, closeErr, f.unlock())
}

func (f *FileStore) unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.release == nil {
		return nil
	}
	err := f.release()
	f.release = nil
	return err
}

func encodePairs(buf *bytes.Buffer, pairs []Pair) {
	var scratch [binary.MaxVarintLen64]byte
	put := func(s string) {
		n := binary.PutUvarint(scratch[:], uint64(len(s)))
		buf.Write(scratch[:n])
		buf.WriteString(s)
	}
	n := binary.PutUvarint(scratch[:], uint64(len(pairs)))
	buf.Write(scratch[:n])
	for _, p := range pairs {
		put(p.Key)
		put(p.Value)
	}
}

func decodePairs(data []byte) ([]Pair, error) {
	r := bytes.NewReader(data)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, corruptSnapshot("pair count", err)
	}
	if count > uint64(len(data)) {
		return nil, corruptSnapshot("pair count", fmt.Errorf("%d pairs in %d bytes", count, len(data)))
	}
	readString := func() (string, error) {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return "", err
		}
		if n > uint64(r.Len()) {
			return "", io.ErrUnexpectedEOF
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
		return string(b), nil
	}

	pairs := make([]Pair, 0, count)
	for i := uint64(0); i < count; i++ {
		k, err := readString()
		if err != nil {
			return nil, corruptSnapshot("key", err)
		}
		v, err := readString()
		if err != nil {
			return nil, corruptSnapshot("value", err)
		}
		pairs = append(pairs, Pair{Key: k, Value: v})
	}
	return pairs, nil
}

func writeSnapshot(path string, comp core.Compressor, pairs []Pair) error {
	raw := core.BufferPool.Get()
	defer core.BufferPool.Put(raw)
	encodePairs(raw, pairs)

	compressed := core.BufferPool.Get()
	defer core.BufferPool.Put(compressed)
	if err := comp.CompressTo(compressed, raw.Bytes()); err != nil {
		return err
	}

	return sys.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		header := core.NewFileHeader(core.PropertyStoreMagicNumber, comp.Type())
		if _, err := header.WriteTo(w); err != nil {
			return err
		}
		if _, err := w.Write(compressed.Bytes()); err != nil {
			return err
		}
		var sum [checksumSize]byte
		binary.LittleEndian.PutUint64(sum[:], xxh3.Hash(compressed.Bytes()))
		_, err := w.Write(sum[:])
		return err
	})
}

func readSnapshot(path string) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read property store: %w", err)
	}

	var header core.FileHeader
	if len(data) < header.Size()+checksumSize {
		return nil, corruptSnapshot("file", fmt.Errorf("truncated at %d bytes", len(data)))
	}
	header, err = core.ReadFileHeader(bytes.NewReader(data[:header.Size()]), core.PropertyStoreMagicNumber)
	if err != nil {
		return nil, err
	}
	payload := data[header.Size() : len(data)-checksumSize]
	want := binary.LittleEndian.Uint64(data[len(data)-checksumSize:])
	if got := xxh3.Hash(payload); got != want {
		return nil, corruptSnapshot("checksum", fmt.Errorf("got %016x, want %016x", got, want))
	}

	comp, err := compressors.ForType(header.CompressorType)
	if err != nil {
		return nil, err
	}
	rc, err := comp.Decompress(payload)
	if err != nil {
		return nil, corruptSnapshot("payload", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, corruptSnapshot("payload", err)
	}
	return decodePairs(raw)
}

func corruptSnapshot(part string, err error) error {
	return &core.DecodeError{Field: "snapshot", Value: part, Message: "corrupt property store", Err: err}
}
