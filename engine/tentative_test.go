package engine

import (
	"context"
	"testing"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTentative_SettleUnchangedRetracts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := testutil.Loc(3, 60, 3)
	snap := testutil.Block(loc, stone)

	h, err := f.engine.BeginTentative(ctx, 500, snap, core.InteractionBroken, core.PlayerActor(9))
	require.NoError(t, err)
	assert.True(t, h.Pending())
	assert.Equal(t, int64(1), f.engine.Metrics().TentativeOpen.Value())

	// Visible before it is resolved.
	events, err := f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	retracted, err := f.engine.Settle(ctx, h, snap)
	require.NoError(t, err)
	assert.True(t, retracted)
	assert.False(t, h.Pending())

	events, err = f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, f.engine.Metrics().TentativeOpen.Value())
	assert.Equal(t, int64(1), f.engine.Metrics().TentativeRetractedTotal.Value())
}

func TestTentative_SettleChangedConfirms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := testutil.Loc(3, 60, 3)

	h, err := f.engine.BeginTentative(ctx, 500, testutil.Block(loc, stone), core.InteractionBroken, core.PlayerActor(9))
	require.NoError(t, err)

	retracted, err := f.engine.Settle(ctx, h, testutil.Air(loc))
	require.NoError(t, err)
	assert.False(t, retracted)

	events, err := f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.InteractionBroken, events[0].Interaction)
	assert.Equal(t, int64(1), f.engine.Metrics().TentativeConfirmedTotal.Value())
}

func TestTentative_ResolveTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap := testutil.Block(testutil.Loc(0, 0, 0), stone)

	h, err := f.engine.BeginTentative(ctx, 1, snap, core.InteractionBroken, core.NoActor())
	require.NoError(t, err)
	require.NoError(t, f.engine.Confirm(h))
	assert.ErrorIs(t, f.engine.Confirm(h), ErrTentativeResolved)
	assert.ErrorIs(t, f.engine.Retract(ctx, h), ErrTentativeResolved)

	h2, err := f.engine.BeginTentative(ctx, 2, snap, core.InteractionBroken, core.NoActor())
	require.NoError(t, err)
	require.NoError(t, f.engine.Retract(ctx, h2))
	_, err = f.engine.Settle(ctx, h2, snap)
	assert.ErrorIs(t, err, ErrTentativeResolved)
}

func TestTentative_RetractLeavesReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := testutil.Loc(0, 0, 0)

	h, err := f.engine.BeginTentative(ctx, 7, testutil.Block(loc, stone), core.InteractionBroken, core.NoActor())
	require.NoError(t, err)
	// Same key, different record.
	require.NoError(t, f.engine.LogEvent(ctx, 7, testutil.Block(loc, dirt), core.InteractionPlaced, core.PlayerActor(1)))

	require.NoError(t, f.engine.Retract(ctx, h))
	events, err := f.engine.GetLocationHistory(ctx, loc, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.InteractionPlaced, events[0].Interaction)
}

func TestTentative_BeginFailureReturnsNoHandle(t *testing.T) {
	f := newFixture(t)
	h, err := f.engine.BeginTentative(context.Background(), 0, testutil.Block(testutil.Loc(0, 0, 0), stone), core.InteractionBroken, core.NoActor())
	assert.ErrorIs(t, err, ErrReservedTime)
	assert.Nil(t, h)
	assert.Zero(t, f.engine.Metrics().TentativeOpen.Value())
}
