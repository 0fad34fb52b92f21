package engine

import (
	"context"
	"math"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/kv"
	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/zeebo/xxh3"
)

// Stats summarises the event key family of the store.
type Stats struct {
	Records       int
	Baselines     int
	ByInteraction map[core.InteractionKind]int
	// Locations is counted over hashed locations, so collisions may
	// undercount by a negligible amount.
	Locations uint64
	Players   uint64
	// OldestTime and NewestTime span non-baseline records; both are zero
	// when there are none.
	OldestTime int64
	NewestTime int64
	Usage      core.StorageInfo
}

// Stats reads every record. Codec failures abort it like a scan.
func (e *StorageEngine) Stats(ctx context.Context) (st Stats, err error) {
	const op = "Stats"
	ctx, span := e.startOp(ctx, op)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	keys, err := kv.KeysWithPrefix(ctx, e.store, core.EventKeyPrefix)
	if err != nil {
		return Stats{}, storeError(op, "list keys", err)
	}
	e.metrics.ScannedKeysTotal.Add(int64(len(keys)))

	locations := roaring64.New()
	players := roaring64.New()
	st.ByInteraction = make(map[core.InteractionKind]int)
	st.OldestTime = math.MaxInt64
	st.NewestTime = math.MinInt64

	for _, k := range keys {
		rec, err := core.ParseKey(k)
		if err != nil {
			return Stats{}, e.corruption(ctx, op, k, err)
		}
		value, ok, err := e.store.Get(ctx, k)
		if err != nil {
			return Stats{}, storeError(op, "get", err)
		}
		if !ok {
			continue
		}
		fields, err := core.ParseValue(value)
		if err != nil {
			return Stats{}, e.corruption(ctx, op, k, err)
		}

		st.Records++
		st.ByInteraction[fields.Interaction]++
		locations.Add(locationHash(rec.Location))
		if fields.Actor.Kind == core.ActorPlayer {
			players.Add(uint64(fields.Actor.PlayerID))
		}
		if rec.Time == core.InitializationTime {
			st.Baselines++
			continue
		}
		st.OldestTime = min(st.OldestTime, rec.Time)
		st.NewestTime = max(st.NewestTime, rec.Time)
	}
	if st.Records == st.Baselines {
		st.OldestTime, st.NewestTime = 0, 0
	}
	st.Locations = locations.GetCardinality()
	st.Players = players.GetCardinality()

	total, err := e.store.TotalBytes(ctx)
	if err != nil {
		return Stats{}, storeError(op, "total bytes", err)
	}
	st.Usage = core.StorageUsage(total)
	return st, nil
}

func locationHash(loc core.Location) uint64 {
	return xxh3.HashString(loc.String())
}
