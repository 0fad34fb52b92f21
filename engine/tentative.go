package engine

import (
	"context"

	"github.com/INLOpen/areas/core"
	"go.opentelemetry.io/otel/attribute"
)

type tentativeState int

const (
	tentativePending tentativeState = iota
	tentativeConfirmed
	tentativeRetracted
)

// Tentative is a record written optimistically and later confirmed or
// retracted by its caller. Scans see it from BeginTentative on.
type Tentative struct {
	Event core.Event

	value string
	state tentativeState
}

// Pending reports whether the record is still unresolved.
func (t *Tentative) Pending() bool { return t.state == tentativePending }

// BeginTentative logs a record exactly like LogEvent and returns a handle to
// resolve it with.
func (e *StorageEngine) BeginTentative(ctx context.Context, t int64, snap core.BlockSnapshot, kind core.InteractionKind, actor core.Actor) (_ *Tentative, err error) {
	const op = "BeginTentative"
	ctx, span := e.startOp(ctx, op, append(locationAttrs(snap.Location),
		attribute.Int64("areas.time", t),
		attribute.String("areas.interaction", kind.String()))...)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	ev, err := e.logEventLocked(ctx, op, t, snap, kind, actor, true)
	if err != nil {
		return nil, err
	}
	// Re-encode from the persisted event; pre-hooks may have rewritten it.
	_, value, err := e.encode(ev.Time, core.BlockSnapshot{
		Location:    ev.Location,
		TypeID:      ev.BlockTypeID,
		StructureID: ev.StructureID,
	}, ev.Interaction, ev.Actor)
	if err != nil {
		return nil, e.corruption(ctx, op, ev.Key, err)
	}
	e.metrics.TentativeOpen.Add(1)
	return &Tentative{Event: ev, value: value}, nil
}

// Confirm keeps the record. It does not touch the store.
func (e *StorageEngine) Confirm(h *Tentative) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h.state != tentativePending {
		return ErrTentativeResolved
	}
	h.state = tentativeConfirmed
	e.metrics.TentativeOpen.Add(-1)
	e.metrics.TentativeConfirmedTotal.Add(1)
	return nil
}

// Retract removes the record, unless it has since been overwritten by a
// different one under the same key.
func (e *StorageEngine) Retract(ctx context.Context, h *Tentative) (err error) {
	const op = "Retract"
	ctx, span := e.startOp(ctx, op, append(locationAttrs(h.Event.Location), attribute.Int64("areas.time", h.Event.Time))...)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retractLocked(ctx, h)
}

func (e *StorageEngine) retractLocked(ctx context.Context, h *Tentative) error {
	const op = "Retract"
	if h.state != tentativePending {
		return ErrTentativeResolved
	}
	current, ok, err := e.store.Get(ctx, h.Event.Key)
	if err != nil {
		return storeError(op, "get", err)
	}
	if ok && current == h.value {
		if err := e.removeLocked(ctx, op, h.Event.Time, h.Event.Location, "retract"); err != nil {
			return err
		}
	} else {
		e.logger.WarnContext(ctx, "Tentative record replaced before retraction; leaving it.", "key", h.Event.Key)
	}
	h.state = tentativeRetracted
	e.metrics.TentativeOpen.Add(-1)
	e.metrics.TentativeRetractedTotal.Add(1)
	return nil
}

// Settle resolves h against the block as it is now: if the block type is
// unchanged nothing really happened and the record is retracted, otherwise
// it is confirmed. Reports whether it retracted.
func (e *StorageEngine) Settle(ctx context.Context, h *Tentative, current core.BlockSnapshot) (retracted bool, err error) {
	const op = "Settle"
	ctx, span := e.startOp(ctx, op, locationAttrs(h.Event.Location)...)
	defer func() {
		span.SetAttributes(attribute.Bool("areas.retracted", retracted))
		endSpan(span, err)
	}()

	if current.TypeID != h.Event.BlockTypeID {
		return false, e.Confirm(h)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.retractLocked(ctx, h); err != nil {
		return false, err
	}
	return true, nil
}
