package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/hooks"
	"github.com/INLOpen/areas/internal/testutil"
	"github.com/INLOpen/areas/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	events []hooks.HookEvent
	err    error
	onPre  func(hooks.HookEvent)
}

func (l *recordingListener) OnEvent(_ context.Context, ev hooks.HookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if l.onPre != nil {
		l.onPre(ev)
	}
	return l.err
}
func (l *recordingListener) Priority() int { return 1 }
func (l *recordingListener) IsAsync() bool { return false }

func (l *recordingListener) count(t hooks.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	engine *StorageEngine
	store  *kv.MemoryStore
	hooks  hooks.HookManager
	seen   *recordingListener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := kv.NewMemoryStore(0)
	return newFixtureWithStore(t, store, store)
}

func newFixtureWithStore(t *testing.T, mem *kv.MemoryStore, store kv.Store) *fixture {
	t.Helper()
	hm := hooks.NewHookManager(nil)
	seen := &recordingListener{}
	for _, et := range []hooks.EventType{
		hooks.EventPostLogEvent, hooks.EventPostRemoveEvent, hooks.EventPostInitialize,
		hooks.EventPostDeinitialize, hooks.EventPostQuery, hooks.EventOnCorruption,
	} {
		hm.Register(et, seen)
	}
	e, err := NewStorageEngine(StorageEngineOptions{Store: store, HookManager: hm})
	require.NoError(t, err)
	return &fixture{engine: e, store: mem, hooks: hm, seen: seen}
}

var (
	stone = "minecraft:stone"
	dirt  = "minecraft:dirt"
)

func TestNewStorageEngine_RequiresStore(t *testing.T) {
	_, err := NewStorageEngine(StorageEngineOptions{})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestEndToEnd_LogScanRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := core.Location{X: 10, Y: 64, Z: -5, Dimension: "overworld"}

	require.NoError(t, f.engine.LogEvent(ctx, 1000, testutil.Block(loc, stone), core.InteractionBroken, core.PlayerActor(7)))

	events, err := f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1000), events[0].Time)
	assert.Equal(t, loc, events[0].Location)
	assert.Equal(t, core.InteractionBroken, events[0].Interaction)
	assert.Equal(t, core.PlayerActor(7), events[0].Actor)
	assert.Equal(t, stone, events[0].BlockTypeID)
	assert.False(t, events[0].RolledBack)

	require.NoError(t, f.engine.RemoveEvent(ctx, 1000, loc))
	events, err = f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.Equal(t, 1, f.seen.count(hooks.EventPostLogEvent))
	assert.Equal(t, 1, f.seen.count(hooks.EventPostRemoveEvent))
}

func TestRemoveEvent_Absent(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.engine.RemoveEvent(context.Background(), 5, testutil.Loc(0, 0, 0)))
}

func TestLogEvent_Overwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := testutil.Loc(1, 2, 3)
	require.NoError(t, f.engine.LogEvent(ctx, 50, testutil.Block(loc, stone), core.InteractionBroken, core.NoActor()))
	require.NoError(t, f.engine.LogEvent(ctx, 50, testutil.Block(loc, dirt), core.InteractionPlaced, core.PlayerActor(3)))

	events, err := f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.InteractionPlaced, events[0].Interaction)
	assert.Equal(t, dirt, events[0].BlockTypeID)
}

func TestLogEvent_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap := testutil.Block(testutil.Loc(0, 0, 0), stone)

	assert.ErrorIs(t, f.engine.LogEvent(ctx, 0, snap, core.InteractionBroken, core.NoActor()), ErrReservedTime)
	assert.ErrorIs(t, f.engine.LogEvent(ctx, 10, snap, core.InteractionInitialised, core.NoActor()), ErrInvalidInteraction)
	assert.ErrorIs(t, f.engine.LogEvent(ctx, 10, snap, core.InteractionKind(99), core.NoActor()), ErrInvalidInteraction)
	assert.Zero(t, f.store.Len())
	assert.Equal(t, int64(3), f.engine.Metrics().LogEventErrorsTotal.Value())
}

func TestLogEvent_StructureData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap := testutil.Block(testutil.Loc(4, 4, 4), "minecraft:chest")
	snap.StructureID = "areas:chest_1700000000000"
	require.NoError(t, f.engine.LogEvent(ctx, 9, snap, core.InteractionBroken, core.NoActor()))

	events, err := f.engine.GetAllRecords(ctx, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].HasStructureData)
	assert.Equal(t, snap.StructureID, events[0].StructureID)
}

func TestInitializeOnce_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap := testutil.Block(testutil.Loc(1, 1, 1), stone)

	wrote, err := f.engine.InitializeOnce(ctx, snap)
	require.NoError(t, err)
	assert.True(t, wrote)
	wrote, err = f.engine.InitializeOnce(ctx, snap)
	require.NoError(t, err)
	assert.False(t, wrote)

	events, err := f.engine.GetLocationHistory(ctx, snap.Location, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.InitializationTime, events[0].Time)
	assert.Equal(t, core.InteractionInitialised, events[0].Interaction)
	assert.Equal(t, core.NoActor(), events[0].Actor)
	assert.Equal(t, 1, f.seen.count(hooks.EventPostInitialize))
}

func TestDeinitialize_Guards(t *testing.T) {
	ctx := context.Background()
	loc := testutil.Loc(7, 7, 7)

	t.Run("RemovesSoleMatchingBaseline", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.InitializeOnce(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)

		removed, err := f.engine.Deinitialize(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Zero(t, f.store.Len())
		assert.Equal(t, 1, f.seen.count(hooks.EventPostDeinitialize))
	})

	t.Run("NoBaseline", func(t *testing.T) {
		f := newFixture(t)
		removed, err := f.engine.Deinitialize(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("MoreThanOneRecord", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.InitializeOnce(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)
		require.NoError(t, f.engine.LogEvent(ctx, 100, testutil.Block(loc, stone), core.InteractionBroken, core.PlayerActor(1)))

		removed, err := f.engine.Deinitialize(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)
		assert.False(t, removed)
		assert.Equal(t, 2, f.store.Len())
	})

	t.Run("BlockTypeChanged", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.InitializeOnce(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)

		removed, err := f.engine.Deinitialize(ctx, testutil.Block(loc, dirt))
		require.NoError(t, err)
		assert.False(t, removed)
		assert.Equal(t, 1, f.store.Len())
	})

	t.Run("OtherLocationsDoNotCount", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.InitializeOnce(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)
		require.NoError(t, f.engine.LogEvent(ctx, 100, testutil.Block(testutil.Loc(7, 7, 8), stone), core.InteractionBroken, core.NoActor()))

		removed, err := f.engine.Deinitialize(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("BaselineSlotHoldsOtherInteraction", func(t *testing.T) {
		f := newFixture(t)
		key, err := core.BuildKey(0, loc)
		require.NoError(t, err)
		value, err := core.BuildValue(core.ValueFields{Interaction: core.InteractionPlaced, BlockTypeID: stone})
		require.NoError(t, err)
		require.NoError(t, f.store.Set(ctx, key, value))

		removed, err := f.engine.Deinitialize(ctx, testutil.Block(loc, stone))
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func seedTimes(t *testing.T, f *fixture, loc core.Location) {
	t.Helper()
	ctx := context.Background()
	// Inserted out of order on purpose.
	require.NoError(t, f.engine.LogEvent(ctx, 300, testutil.Block(loc, stone), core.InteractionPlaced, core.PlayerActor(2)))
	require.NoError(t, f.engine.LogEvent(ctx, 100, testutil.Block(loc, stone), core.InteractionBroken, core.PlayerActor(1)))
	require.NoError(t, f.engine.LogEvent(ctx, 200, testutil.Block(loc, stone), core.InteractionExploded, core.EntityActor("minecraft:creeper")))
}

func times(events []core.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.Time
	}
	return out
}

func TestScan_Filtering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := testutil.Loc(0, 70, 0)
	seedTimes(t, f, loc)

	cases := []struct {
		name string
		q    *core.Query
		want []int64
	}{
		{"NoQuery", nil, []int64{100, 200, 300}},
		{"Before", core.Before(200), []int64{100}},
		{"After", core.After(200), []int64{300}},
		{"BeforeExcludesEqual", core.Before(100), []int64{}},
		{"Interaction", (&core.Query{}).WithInteraction(core.InteractionExploded), []int64{200}},
		{"Player", (&core.Query{}).WithActor(core.ActorFilter{Kind: core.ActorPlayer, PlayerID: 2}), []int64{300}},
		{"Entity", (&core.Query{}).WithActor(core.ActorFilter{Kind: core.ActorNonPlayerEntity, EntityTypeID: "minecraft:creeper"}), []int64{200}},
		{"ActorNoneNoFilter", (&core.Query{}).WithActor(core.ActorFilter{Kind: core.ActorNone}), []int64{100, 200, 300}},
		{"Combined", core.After(100).WithInteraction(core.InteractionPlaced), []int64{300}},
		{"CombinedEmpty", core.Before(300).WithInteraction(core.InteractionPlaced), []int64{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := f.engine.GetLocationHistory(ctx, loc, tc.q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, times(events))
		})
	}
}

func TestScan_SortsNumericallyAcrossKeyLengths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := testutil.Loc(3, 70, 3)

	// 64, 36 and 4096 encode to "10", "a" and "100": key order is 64, 4096, 36.
	for _, ts := range []int64{64, 36, 4096} {
		require.NoError(t, f.engine.LogEvent(ctx, ts, testutil.Block(loc, stone), core.InteractionPlaced, core.PlayerActor(1)))
	}
	require.Equal(t, "10", core.EncodeBaseN(64))
	require.Equal(t, "a", core.EncodeBaseN(36))
	require.Equal(t, "100", core.EncodeBaseN(4096))

	events, err := f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{36, 64, 4096}, times(events))

	all, err := f.engine.GetAllRecords(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{36, 64, 4096}, times(all))
}

func TestScan_LocationAndArea(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.Loc(0, 0, 0)
	b := testutil.Loc(5, 0, 5)
	other := core.Location{X: 0, Y: 0, Z: 0, Dimension: "minecraft:the_nether"}
	require.NoError(t, f.engine.LogEvent(ctx, 3, testutil.Block(a, stone), core.InteractionBroken, core.NoActor()))
	require.NoError(t, f.engine.LogEvent(ctx, 1, testutil.Block(b, stone), core.InteractionBroken, core.NoActor()))
	require.NoError(t, f.engine.LogEvent(ctx, 2, testutil.Block(other, stone), core.InteractionBroken, core.NoActor()))

	all, err := f.engine.GetAllRecords(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, times(all))

	onlyA, err := f.engine.GetLocationHistory(ctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, times(onlyA))

	area := core.NewArea(testutil.Overworld, testutil.Loc(-1, -1, -1), testutil.Loc(6, 1, 6))
	inArea, err := f.engine.GetAllRecords(ctx, (&core.Query{}).WithArea(area))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, times(inArea))
}

func TestScan_IgnoresOtherKeyFamilies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "nameRecord.7", "Steve"))
	require.NoError(t, f.store.Set(ctx, "blx", "not ours"))
	events, err := f.engine.GetAllRecords(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCodecCollisions(t *testing.T) {
	ctx := context.Background()

	t.Run("DimensionWithSeparator", func(t *testing.T) {
		f := newFixture(t)
		loc := core.Location{X: 1, Y: 2, Z: 3, Dimension: "mod.dim"}
		err := f.engine.LogEvent(ctx, 10, testutil.Block(loc, stone), core.InteractionBroken, core.NoActor())
		require.Error(t, err)
		assert.True(t, core.IsDelimiterCollision(err))
		assert.Zero(t, f.store.Len())
		assert.Equal(t, 1, f.seen.count(hooks.EventOnCorruption))
		assert.Equal(t, int64(1), f.engine.Metrics().CorruptionTotal.Value())
	})

	t.Run("BlockTypeWithComma", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.LogEvent(ctx, 10, testutil.Block(testutil.Loc(0, 0, 0), "a,b"), core.InteractionBroken, core.NoActor())
		require.Error(t, err)
		assert.True(t, core.IsDelimiterCollision(err))
		assert.Zero(t, f.store.Len())
	})

	t.Run("BaselineCollision", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.InitializeOnce(ctx, testutil.Block(testutil.Loc(0, 0, 0), "a,b"))
		require.Error(t, err)
		assert.True(t, core.IsCorruption(err))
	})

	t.Run("NumericEntityID", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.LogEvent(ctx, 10, testutil.Block(testutil.Loc(0, 0, 0), stone), core.InteractionExploded, core.EntityActor("123"))
		require.ErrorIs(t, err, core.ErrAmbiguousActor)
		assert.Zero(t, f.store.Len())
	})
}

func TestScan_CorruptRecords(t *testing.T) {
	ctx := context.Background()
	loc := testutil.Loc(2, 2, 2)

	t.Run("BadValue", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.engine.LogEvent(ctx, 10, testutil.Block(loc, stone), core.InteractionBroken, core.NoActor()))
		key, err := core.BuildKey(20, loc)
		require.NoError(t, err)
		require.NoError(t, f.store.Set(ctx, key, "9,minecraft:stone,0,-,-,0"))

		_, err = f.engine.GetLocationHistory(ctx, loc, nil)
		require.Error(t, err)
		assert.True(t, core.IsDecodeError(err))
		assert.Contains(t, err.Error(), key)
		assert.Equal(t, 1, f.seen.count(hooks.EventOnCorruption))
	})

	t.Run("BadKey", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Set(ctx, "bl.x.y", "1,minecraft:stone,0,-,-,0"))
		_, err := f.engine.GetAllRecords(ctx, nil)
		require.Error(t, err)
		assert.True(t, core.IsDecodeError(err))
	})

	t.Run("FilteredOutStillFailsOnKey", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Set(ctx, "bl.!!.0.0.0.minecraft:overworld", "1,minecraft:stone,0,-,-,0"))
		_, err := f.engine.GetLocationHistory(ctx, loc, nil)
		assert.True(t, core.IsDecodeError(err))
	})
}

func TestStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("host store unavailable")

	t.Run("Budget", func(t *testing.T) {
		mem := kv.NewMemoryStore(40)
		f := newFixtureWithStore(t, mem, mem)
		err := f.engine.LogEvent(ctx, 10, testutil.Block(testutil.Loc(0, 0, 0), "minecraft:a_very_long_block_type_identifier"), core.InteractionBroken, core.NoActor())
		require.ErrorIs(t, err, kv.ErrBudgetExceeded)
		assert.Zero(t, f.seen.count(hooks.EventOnCorruption))
	})

	t.Run("Set", func(t *testing.T) {
		mem := kv.NewMemoryStore(0)
		faulty := testutil.NewFaultyStore(mem)
		f := newFixtureWithStore(t, mem, faulty)
		faulty.FailSet(boom)
		err := f.engine.LogEvent(ctx, 10, testutil.Block(testutil.Loc(0, 0, 0), stone), core.InteractionBroken, core.NoActor())
		assert.ErrorIs(t, err, boom)
		_, err = f.engine.InitializeOnce(ctx, testutil.Block(testutil.Loc(0, 0, 0), stone))
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, f.seen.count(hooks.EventPostLogEvent))
	})

	t.Run("GetAndKeys", func(t *testing.T) {
		mem := kv.NewMemoryStore(0)
		faulty := testutil.NewFaultyStore(mem)
		f := newFixtureWithStore(t, mem, faulty)
		require.NoError(t, f.engine.LogEvent(ctx, 10, testutil.Block(testutil.Loc(0, 0, 0), stone), core.InteractionBroken, core.NoActor()))

		faulty.FailGet(boom)
		_, err := f.engine.GetAllRecords(ctx, nil)
		assert.ErrorIs(t, err, boom)
		_, err = f.engine.InitializeOnce(ctx, testutil.Block(testutil.Loc(0, 0, 0), stone))
		assert.ErrorIs(t, err, boom)

		faulty.FailGet(nil)
		faulty.FailKeys(boom)
		_, err = f.engine.GetAllRecords(ctx, nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(2), f.engine.Metrics().QueryErrorsTotal.Value())
	})

	t.Run("Delete", func(t *testing.T) {
		mem := kv.NewMemoryStore(0)
		faulty := testutil.NewFaultyStore(mem)
		f := newFixtureWithStore(t, mem, faulty)
		faulty.FailDelete(boom)
		assert.ErrorIs(t, f.engine.RemoveEvent(ctx, 10, testutil.Loc(0, 0, 0)), boom)
	})

	t.Run("Closed", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Close())
		_, err := f.engine.TotalBytes(ctx)
		assert.ErrorIs(t, err, kv.ErrClosed)
	})
}

func TestTotalBytesAndUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.LogEvent(ctx, 10, testutil.Block(testutil.Loc(0, 0, 0), stone), core.InteractionBroken, core.NoActor()))

	key, err := core.BuildKey(10, testutil.Loc(0, 0, 0))
	require.NoError(t, err)
	value, _, err := f.store.Get(ctx, key)
	require.NoError(t, err)

	n, err := f.engine.TotalBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(key)+len(value)), n)

	usage, err := f.engine.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, usage.Bytes)
	assert.Equal(t, core.UnitByte, usage.LargestUnit)
}

func TestHooks_PreLogEvent(t *testing.T) {
	ctx := context.Background()
	loc := testutil.Loc(0, 0, 0)

	t.Run("Cancel", func(t *testing.T) {
		f := newFixture(t)
		veto := &recordingListener{err: errors.New("protected region")}
		f.hooks.Register(hooks.EventPreLogEvent, veto)
		err := f.engine.LogEvent(ctx, 10, testutil.Block(loc, stone), core.InteractionBroken, core.NoActor())
		require.Error(t, err)
		assert.Zero(t, f.store.Len())
	})

	t.Run("Rewrite", func(t *testing.T) {
		f := newFixture(t)
		f.hooks.Register(hooks.EventPreLogEvent, &recordingListener{onPre: func(ev hooks.HookEvent) {
			p := ev.Payload().(hooks.PreLogEventPayload)
			*p.Actor = core.EntityActor("minecraft:tnt")
		}})
		require.NoError(t, f.engine.LogEvent(ctx, 10, testutil.Block(loc, stone), core.InteractionExploded, core.NoActor()))
		events, err := f.engine.GetLocationHistory(ctx, loc, nil)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, core.EntityActor("minecraft:tnt"), events[0].Actor)
	})

	t.Run("PreQueryCancel", func(t *testing.T) {
		f := newFixture(t)
		f.hooks.Register(hooks.EventPreQuery, &recordingListener{err: errors.New("denied")})
		_, err := f.engine.GetAllRecords(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("PostQueryReportsResults", func(t *testing.T) {
		f := newFixture(t)
		seedTimes(t, f, loc)
		_, err := f.engine.GetLocationHistory(ctx, loc, core.Before(250))
		require.NoError(t, err)
		f.seen.mu.Lock()
		defer f.seen.mu.Unlock()
		var last hooks.PostQueryPayload
		for _, ev := range f.seen.events {
			if ev.Type() == hooks.EventPostQuery {
				last = ev.Payload().(hooks.PostQueryPayload)
			}
		}
		assert.Equal(t, 2, last.Results)
		assert.NoError(t, last.Error)
	})
}

func TestConcurrentLogging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			loc := testutil.Loc(w, 0, 0)
			_, err := f.engine.InitializeOnce(ctx, testutil.Block(loc, stone))
			assert.NoError(t, err)
			for i := 1; i <= 20; i++ {
				assert.NoError(t, f.engine.LogEvent(ctx, int64(i), testutil.Block(loc, stone), core.InteractionPlaced, core.PlayerActor(int64(w))))
			}
		}(w)
	}
	wg.Wait()

	all, err := f.engine.GetAllRecords(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 8*21)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Time, all[i].Time)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedTimes(t, f, testutil.Loc(0, 0, 0))
	_, err := f.engine.GetAllRecords(ctx, nil)
	require.NoError(t, err)

	m := f.engine.Metrics()
	assert.Equal(t, int64(3), m.LogEventTotal.Value())
	assert.Equal(t, int64(1), m.QueryTotal.Value())
	assert.Equal(t, int64(3), m.ScannedKeysTotal.Value())
	count, ok := m.QueryLatencyHist.Get("count").(interface{ Value() int64 })
	require.True(t, ok)
	assert.Equal(t, int64(1), count.Value())
	q := m.QueryLatencyQuantiles()
	assert.Contains(t, q, "p99")
}

func TestNewEngineMetrics_Published(t *testing.T) {
	prefix := fmt.Sprintf("test_engine_%s_", t.Name())
	m := NewEngineMetrics(true, prefix)
	m.LogEventTotal.Add(5)
	again := NewEngineMetrics(true, prefix)
	assert.Same(t, m.LogEventTotal, again.LogEventTotal)
	assert.Zero(t, again.LogEventTotal.Value(), "re-publishing resets the counter")
}
