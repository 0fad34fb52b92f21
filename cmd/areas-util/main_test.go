package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/engine"
	"github.com/INLOpen/areas/indexer"
	"github.com/INLOpen/areas/internal/testutil"
	"github.com/INLOpen/areas/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stone = "minecraft:stone"

// seedStore writes a small history to a file store and closes it.
func seedStore(t *testing.T, backend string, corrupt bool) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "areas.db")
	store, err := kv.Open(kv.Options{Backend: backend, Path: path})
	require.NoError(t, err)

	eng, err := engine.NewStorageEngine(engine.StorageEngineOptions{Store: store})
	require.NoError(t, err)
	loc := testutil.Loc(1, 64, 1)
	_, err = eng.InitializeOnce(ctx, testutil.Block(loc, stone))
	require.NoError(t, err)
	require.NoError(t, eng.LogEvent(ctx, 1_700_000_000_000, testutil.Block(loc, stone), core.InteractionBroken, core.PlayerActor(7)))
	require.NoError(t, eng.LogEvent(ctx, 1_700_000_001_000, testutil.Block(loc, "minecraft:dirt"), core.InteractionPlaced, core.EntityActor("minecraft:enderman")))
	require.NoError(t, indexer.NewPlayerNameIndex(store, indexer.PlayerNameIndexOptions{}).SavePlayer(ctx, 7, "Steve"))

	if corrupt {
		key, err := core.BuildKey(55, testutil.Loc(9, 9, 9))
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, key, "not,a,value"))
	}
	require.NoError(t, store.Close())
	return path
}

func runUtil(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_Usage(t *testing.T) {
	path := seedStore(t, kv.BackendFile, false)
	code, out, errOut := runUtil("-path", path, "usage")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "bytes (")
	assert.NotContains(t, out, "budget")
}

func TestRun_Dump(t *testing.T) {
	path := seedStore(t, kv.BackendFile, false)

	code, out, errOut := runUtil("-path", path, "dump")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "nameRecord.7")
	assert.Contains(t, out, "Steve")
	assert.Contains(t, out, core.EventKeyPrefix)

	code, out, errOut = runUtil("-path", path, "dump", "-prefix", indexer.NameKeyPrefix)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "nameRecord.7")
	assert.NotContains(t, out, core.EventKeyPrefix)
}

func TestRun_History(t *testing.T) {
	path := seedStore(t, kv.BackendFile, false)

	code, out, errOut := runUtil("-path", path, "history", "-x", "1", "-y", "64", "-z", "1")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5, out)
	assert.Contains(t, lines[2], "baseline")
	assert.Contains(t, lines[3], "broken")
	assert.Contains(t, lines[3], "Steve (7)")
	assert.Contains(t, lines[4], "placed")
	assert.Contains(t, lines[4], "minecraft:enderman")

	code, out, errOut = runUtil("-path", path, "history", "-x", "1", "-y", "64", "-z", "1", "-interaction", "placed")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "minecraft:dirt")
	assert.NotContains(t, out, "Steve")

	code, out, _ = runUtil("-path", path, "history", "-x", "1", "-y", "64", "-z", "1", "-before", "1")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "baseline")
	assert.NotContains(t, out, "broken")

	code, out, _ = runUtil("-path", path, "history", "-x", "5", "-y", "5", "-z", "5")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No records")

	code, _, errOut = runUtil("-path", path, "history", "-before", "1", "-after", "2")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "mutually exclusive")

	code, _, errOut = runUtil("-path", path, "history", "-interaction", "teleported")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown interaction")
}

func TestRun_Stats(t *testing.T) {
	for _, backend := range []string{kv.BackendFile, kv.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			path := seedStore(t, backend, false)
			code, out, errOut := runUtil("-backend", backend, "-path", path, "stats")
			require.Equal(t, 0, code, errOut)
			assert.Contains(t, out, "records")
			assert.Regexp(t, `records\s+3`, out)
			assert.Regexp(t, `baselines\s+1`, out)
			assert.Regexp(t, `locations\s+1`, out)
			assert.Regexp(t, `players\s+1`, out)
			assert.Regexp(t, `span\s+1\.0 seconds`, out)
		})
	}
}

func TestRun_Verify(t *testing.T) {
	code, out, errOut := runUtil("-path", seedStore(t, kv.BackendFile, false), "verify")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "OK")

	code, out, _ = runUtil("-path", seedStore(t, kv.BackendFile, true), "verify")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "not,a,value")
	assert.NotContains(t, out, "\nOK")
}

func TestRun_BadInvocations(t *testing.T) {
	code, _, errOut := runUtil("usage")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage: areas-util")

	path := seedStore(t, kv.BackendFile, false)
	code, _, errOut = runUtil("-path", path, "explode")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command")

	code, _, errOut = runUtil("-backend", "redis", "-path", path, "usage")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown store backend")
}
