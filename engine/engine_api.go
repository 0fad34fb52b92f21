package engine

import (
	"context"
	"fmt"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/filter"
	"github.com/INLOpen/areas/hooks"
	"github.com/INLOpen/areas/kv"
	"go.opentelemetry.io/otel/attribute"
)

// LogEvent records an interaction at time t, overwriting any record with the
// same time and location.
func (e *StorageEngine) LogEvent(ctx context.Context, t int64, snap core.BlockSnapshot, kind core.InteractionKind, actor core.Actor) (err error) {
	ctx, span := e.startOp(ctx, "LogEvent", append(locationAttrs(snap.Location),
		attribute.Int64("areas.time", t),
		attribute.String("areas.interaction", kind.String()))...)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.logEventLocked(ctx, "LogEvent", t, snap, kind, actor, false)
	return err
}

func (e *StorageEngine) logEventLocked(ctx context.Context, op string, t int64, snap core.BlockSnapshot, kind core.InteractionKind, actor core.Actor, tentative bool) (core.Event, error) {
	start := e.clock.Now()
	e.metrics.LogEventTotal.Add(1)
	defer func() {
		observeLatency(e.metrics.LogEventLatencyHist, e.clock.Now().Sub(start).Seconds())
	}()

	if !kind.Valid() || kind == core.InteractionInitialised {
		e.metrics.LogEventErrorsTotal.Add(1)
		return core.Event{}, fmt.Errorf("%s: %w: %s", op, ErrInvalidInteraction, kind)
	}
	if t == core.InitializationTime {
		e.metrics.LogEventErrorsTotal.Add(1)
		return core.Event{}, fmt.Errorf("%s: %w", op, ErrReservedTime)
	}

	if err := e.hookManager.Trigger(ctx, hooks.NewPreLogEventEvent(hooks.PreLogEventPayload{
		Time:        t,
		Snapshot:    &snap,
		Interaction: kind,
		Actor:       &actor,
		Tentative:   tentative,
	})); err != nil {
		e.metrics.LogEventErrorsTotal.Add(1)
		return core.Event{}, err
	}

	ev, value, err := e.encode(t, snap, kind, actor)
	if err != nil {
		e.metrics.LogEventErrorsTotal.Add(1)
		return core.Event{}, e.corruption(ctx, op, ev.Key, err)
	}
	if err := e.store.Set(ctx, ev.Key, value); err != nil {
		e.metrics.LogEventErrorsTotal.Add(1)
		return core.Event{}, storeError(op, "set", err)
	}

	_ = e.hookManager.Trigger(ctx, hooks.NewPostLogEventEvent(hooks.PostLogEventPayload{Event: ev, Tentative: tentative}))
	return ev, nil
}

// encode builds the key and value for a record. On failure the returned
// event carries whatever key could be built, for the alert.
func (e *StorageEngine) encode(t int64, snap core.BlockSnapshot, kind core.InteractionKind, actor core.Actor) (core.Event, string, error) {
	ev := core.Event{
		Time:             t,
		Location:         snap.Location,
		Interaction:      kind,
		BlockTypeID:      snap.TypeID,
		HasStructureData: snap.StructureID != "",
		StructureID:      snap.StructureID,
		Actor:            actor,
	}
	key, err := core.BuildKey(t, snap.Location)
	if err != nil {
		return ev, "", err
	}
	ev.Key = key
	value, err := core.BuildValue(core.ValueFields{
		Interaction:      kind,
		BlockTypeID:      snap.TypeID,
		HasStructureData: ev.HasStructureData,
		StructureID:      snap.StructureID,
		Actor:            actor,
	})
	if err != nil {
		return ev, "", err
	}
	return ev, value, nil
}

// RemoveEvent deletes the record at exactly t and loc. Removing an absent
// record is not an error.
func (e *StorageEngine) RemoveEvent(ctx context.Context, t int64, loc core.Location) (err error) {
	ctx, span := e.startOp(ctx, "RemoveEvent", append(locationAttrs(loc), attribute.Int64("areas.time", t))...)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(ctx, "RemoveEvent", t, loc, "remove")
}

func (e *StorageEngine) removeLocked(ctx context.Context, op string, t int64, loc core.Location, reason string) error {
	key, err := core.BuildKey(t, loc)
	if err != nil {
		return e.corruption(ctx, op, "", err)
	}
	if err := e.store.Delete(ctx, key); err != nil {
		return storeError(op, "delete", err)
	}
	e.metrics.RemoveEventTotal.Add(1)
	_ = e.hookManager.Trigger(ctx, hooks.NewPostRemoveEventEvent(hooks.PostRemoveEventPayload{
		Key:      key,
		Time:     t,
		Location: loc,
		Reason:   reason,
	}))
	return nil
}

// InitializeOnce writes the baseline record for snap's location unless one
// exists. It reports whether it wrote.
func (e *StorageEngine) InitializeOnce(ctx context.Context, snap core.BlockSnapshot) (written bool, err error) {
	ctx, span := e.startOp(ctx, "InitializeOnce", locationAttrs(snap.Location)...)
	defer func() {
		span.SetAttributes(attribute.Bool("areas.written", written))
		endSpan(span, err)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(ctx, snap)
}

func (e *StorageEngine) initializeLocked(ctx context.Context, snap core.BlockSnapshot) (bool, error) {
	const op = "InitializeOnce"
	ev, value, err := e.encode(core.InitializationTime, snap, core.InteractionInitialised, core.NoActor())
	if err != nil {
		return false, e.corruption(ctx, op, ev.Key, err)
	}
	_, exists, err := e.store.Get(ctx, ev.Key)
	if err != nil {
		return false, storeError(op, "get", err)
	}
	if exists {
		return false, nil
	}
	if err := e.store.Set(ctx, ev.Key, value); err != nil {
		return false, storeError(op, "set", err)
	}
	e.metrics.InitializeTotal.Add(1)
	_ = e.hookManager.Trigger(ctx, hooks.NewPostInitializeEvent(hooks.InitializePayload{
		Key:         ev.Key,
		Location:    snap.Location,
		BlockTypeID: snap.TypeID,
	}))
	return true, nil
}

// Deinitialize removes the baseline record of snap's location, but only if
// it is the location's sole record, it is a time-0 Initialised record and its
// block type still equals snap.TypeID. Otherwise it does nothing.
func (e *StorageEngine) Deinitialize(ctx context.Context, snap core.BlockSnapshot) (removed bool, err error) {
	const op = "Deinitialize"
	ctx, span := e.startOp(ctx, op, locationAttrs(snap.Location)...)
	defer func() {
		span.SetAttributes(attribute.Bool("areas.removed", removed))
		endSpan(span, err)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := core.BuildKey(core.InitializationTime, snap.Location)
	if err != nil {
		return false, e.corruption(ctx, op, "", err)
	}
	value, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return false, storeError(op, "get", err)
	}
	if !ok {
		return false, nil
	}
	fields, err := core.ParseValue(value)
	if err != nil {
		return false, e.corruption(ctx, op, key, err)
	}
	if fields.Interaction != core.InteractionInitialised || fields.BlockTypeID != snap.TypeID {
		return false, nil
	}

	count, err := e.countLocationRecords(ctx, op, snap.Location)
	if err != nil {
		return false, err
	}
	if count != 1 {
		return false, nil
	}

	if err := e.store.Delete(ctx, key); err != nil {
		return false, storeError(op, "delete", err)
	}
	e.metrics.DeinitializeTotal.Add(1)
	_ = e.hookManager.Trigger(ctx, hooks.NewPostDeinitializeEvent(hooks.InitializePayload{
		Key:         key,
		Location:    snap.Location,
		BlockTypeID: snap.TypeID,
	}))
	return true, nil
}

// countLocationRecords counts keys of loc without reading values.
func (e *StorageEngine) countLocationRecords(ctx context.Context, op string, loc core.Location) (int, error) {
	keys, err := kv.KeysWithPrefix(ctx, e.store, core.EventKeyPrefix)
	if err != nil {
		return 0, storeError(op, "list keys", err)
	}
	e.metrics.ScannedKeysTotal.Add(int64(len(keys)))
	n := 0
	for _, k := range keys {
		rec, err := core.ParseKey(k)
		if err != nil {
			return 0, e.corruption(ctx, op, k, err)
		}
		if filter.MatchLocation(rec, &loc) {
			n++
		}
	}
	return n, nil
}

// Scan returns the records matching loc (nil for every location) and q (nil
// for no filtering), ascending by time.
func (e *StorageEngine) Scan(ctx context.Context, loc *core.Location, q *core.Query) (events []core.Event, err error) {
	var attrs []attribute.KeyValue
	if loc != nil {
		attrs = locationAttrs(*loc)
	}
	ctx, span := e.startOp(ctx, "Scan", attrs...)
	defer func() {
		span.SetAttributes(attribute.Int("areas.results", len(events)))
		endSpan(span, err)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanLocked(ctx, loc, q)
}

// GetLocationHistory is Scan restricted to one location.
func (e *StorageEngine) GetLocationHistory(ctx context.Context, loc core.Location, q *core.Query) ([]core.Event, error) {
	return e.Scan(ctx, &loc, q)
}

// GetAllRecords is Scan over the whole store.
func (e *StorageEngine) GetAllRecords(ctx context.Context, q *core.Query) ([]core.Event, error) {
	return e.Scan(ctx, nil, q)
}

func (e *StorageEngine) scanLocked(ctx context.Context, loc *core.Location, q *core.Query) (events []core.Event, err error) {
	const op = "Scan"
	start := e.clock.Now()
	e.metrics.QueryTotal.Add(1)

	if err := e.hookManager.Trigger(ctx, hooks.NewPreQueryEvent(hooks.PreQueryPayload{Location: loc, Query: q})); err != nil {
		e.metrics.QueryErrorsTotal.Add(1)
		return nil, err
	}
	defer func() {
		elapsed := e.clock.Now().Sub(start)
		e.metrics.observeQuery(elapsed.Seconds())
		if err != nil {
			e.metrics.QueryErrorsTotal.Add(1)
		}
		_ = e.hookManager.Trigger(ctx, hooks.NewPostQueryEvent(hooks.PostQueryPayload{
			Location: loc,
			Query:    q,
			Results:  len(events),
			Duration: elapsed,
			Error:    err,
		}))
	}()

	keys, err := kv.KeysWithPrefix(ctx, e.store, core.EventKeyPrefix)
	if err != nil {
		return nil, storeError(op, "list keys", err)
	}
	e.metrics.ScannedKeysTotal.Add(int64(len(keys)))

	keyFilter := filter.KeyFilter{Location: loc, Query: q}
	events = make([]core.Event, 0)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := core.ParseKey(k)
		if err != nil {
			return nil, e.corruption(ctx, op, k, err)
		}
		if !keyFilter.Contains(rec) {
			continue
		}
		value, ok, err := e.store.Get(ctx, k)
		if err != nil {
			return nil, storeError(op, "get", err)
		}
		if !ok {
			continue
		}
		fields, err := core.ParseValue(value)
		if err != nil {
			return nil, e.corruption(ctx, op, k, err)
		}
		ev := eventFrom(rec, fields)
		if !filter.MatchEvent(ev, q) {
			continue
		}
		events = append(events, ev)
	}
	filter.SortByTime(events)
	return events, nil
}

func eventFrom(rec core.KeyRecord, f core.ValueFields) core.Event {
	return core.Event{
		Time:             rec.Time,
		Location:         rec.Location,
		Interaction:      f.Interaction,
		BlockTypeID:      f.BlockTypeID,
		HasStructureData: f.HasStructureData,
		StructureID:      f.StructureID,
		Actor:            f.Actor,
		RolledBack:       f.RolledBack,
		Key:              rec.ID,
	}
}

// TotalBytes is the size of the whole property bag, every key family
// included, since that is what the host budget charges.
func (e *StorageEngine) TotalBytes(ctx context.Context) (n int64, err error) {
	ctx, span := e.startOp(ctx, "TotalBytes")
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	n, err = e.store.TotalBytes(ctx)
	if err != nil {
		return 0, storeError("TotalBytes", "total bytes", err)
	}
	return n, nil
}

func (e *StorageEngine) StorageUsage(ctx context.Context) (core.StorageInfo, error) {
	n, err := e.TotalBytes(ctx)
	if err != nil {
		return core.StorageInfo{}, err
	}
	return core.StorageUsage(n), nil
}
