package kv

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T, maxBytes int64) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, maxBytes int64) Store {
			return NewMemoryStore(maxBytes)
		},
		"file": func(t *testing.T, maxBytes int64) Store {
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "areas.db"), FileStoreOptions{MaxBytes: maxBytes})
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T, maxBytes int64) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "areas.sqlite"), maxBytes)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Conformance(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("GetMissing", func(t *testing.T) {
				s := open(t, 0)
				defer s.Close()
				v, ok, err := s.Get(ctx, "nope")
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Empty(t, v)
			})

			t.Run("SetOverwrite", func(t *testing.T) {
				s := open(t, 0)
				defer s.Close()
				require.NoError(t, s.Set(ctx, "a", "1"))
				require.NoError(t, s.Set(ctx, "a", "22"))
				v, ok, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "22", v)

				total, err := s.TotalBytes(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(3), total)
			})

			t.Run("DeleteIsIdempotent", func(t *testing.T) {
				s := open(t, 0)
				defer s.Close()
				require.NoError(t, s.Set(ctx, "a", "1"))
				require.NoError(t, s.Delete(ctx, "a"))
				require.NoError(t, s.Delete(ctx, "a"))
				_, ok, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.False(t, ok)

				total, err := s.TotalBytes(ctx)
				require.NoError(t, err)
				assert.Zero(t, total)
			})

			t.Run("KeysAndPrefix", func(t *testing.T) {
				s := open(t, 0)
				defer s.Close()
				for _, k := range []string{"bl.1", "bl.2", "nameRecord.5", "bk"} {
					require.NoError(t, s.Set(ctx, k, "v"))
				}
				require.NoError(t, s.Delete(ctx, "bl.2"))

				keys, err := s.Keys(ctx)
				require.NoError(t, err)
				sort.Strings(keys)
				assert.Equal(t, []string{"bk", "bl.1", "nameRecord.5"}, keys)

				prefixed, err := KeysWithPrefix(ctx, s, "bl.")
				require.NoError(t, err)
				assert.Equal(t, []string{"bl.1"}, prefixed)
			})

			t.Run("Budget", func(t *testing.T) {
				s := open(t, 10)
				defer s.Close()
				require.NoError(t, s.Set(ctx, "abc", "defg")) // 7 bytes
				err := s.Set(ctx, "xy", "zz")                 // would be 11
				require.ErrorIs(t, err, ErrBudgetExceeded)
				_, ok, err := s.Get(ctx, "xy")
				require.NoError(t, err)
				assert.False(t, ok, "rejected write must not be applied")

				// Overwriting with a shorter value fits.
				require.NoError(t, s.Set(ctx, "abc", "d"))

				used, limit, bounded, err := BudgetUsage(ctx, s)
				require.NoError(t, err)
				assert.True(t, bounded)
				assert.Equal(t, int64(4), used)
				assert.Equal(t, int64(10), limit)
			})

			t.Run("Dump", func(t *testing.T) {
				s := open(t, 0)
				defer s.Close()
				require.NoError(t, s.Set(ctx, "b", "2"))
				require.NoError(t, s.Set(ctx, "a", "1"))
				pairs, err := Dump(ctx, s)
				require.NoError(t, err)
				assert.Equal(t, []Pair{{"a", "1"}, {"b", "2"}}, pairs)
			})

			t.Run("MultiByteSize", func(t *testing.T) {
				s := open(t, 0)
				defer s.Close()
				require.NoError(t, s.Set(ctx, "é", "日本"))
				total, err := s.TotalBytes(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(len("é")+len("日本")), total)
			})
		})
	}
}

func TestBudgetUsage_Unbounded(t *testing.T) {
	s := NewMemoryStore(0)
	_, _, ok, err := BudgetUsage(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Options{Backend: "file", Path: filepath.Join(dir, "a.db"), Compression: "zstd"})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Options{Backend: "sqlite", Path: filepath.Join(dir, "a.sqlite")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Options{Backend: "etcd"})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "file", Path: filepath.Join(dir, "b.db"), Compression: "brotli"})
	assert.Error(t, err)
}
