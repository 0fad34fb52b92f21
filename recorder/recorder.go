// Package recorder turns game events into block history records. It decides
// when to log; the engine decides how.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/INLOpen/areas/clock"
	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/engine"
	"github.com/INLOpen/areas/indexer"
)

// DefaultSettleDelay is one game tick.
const DefaultSettleDelay = 50 * time.Millisecond

// ErrNoPending is returned by Settle when no break is waiting at that time
// and location.
var ErrNoPending = errors.New("no pending break at location")

type Options struct {
	Engine *engine.StorageEngine
	// Names is optional; without it player spawns are ignored.
	Names  *indexer.PlayerNameIndex
	Logger *slog.Logger
	Clock  clock.Clock
	// SettleDelay is how long a break waits before Tick checks whether the
	// block really changed.
	SettleDelay time.Duration
}

type pendingBreak struct {
	handle *engine.Tentative
	due    time.Time
}

// Recorder is safe for concurrent use.
type Recorder struct {
	engine      *engine.StorageEngine
	names       *indexer.PlayerNameIndex
	logger      *slog.Logger
	clock       clock.Clock
	settleDelay time.Duration

	mu      sync.Mutex
	pending []pendingBreak
}

func New(opts Options) (*Recorder, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("recorder requires a storage engine")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClockDefault
	}
	delay := opts.SettleDelay
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Recorder{
		engine:      opts.Engine,
		names:       opts.Names,
		logger:      logger.With("component", "Recorder"),
		clock:       clk,
		settleDelay: delay,
	}, nil
}

// OnBlockBroken logs a break optimistically. Another handler may still cancel
// the break, so the record stays pending until Settle or Tick looks at the
// block again.
func (r *Recorder) OnBlockBroken(ctx context.Context, t int64, snap core.BlockSnapshot, actor core.Actor) (*engine.Tentative, error) {
	if _, err := r.engine.InitializeOnce(ctx, snap); err != nil {
		return nil, err
	}
	h, err := r.engine.BeginTentative(ctx, t, snap, core.InteractionBroken, actor)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.pending = append(r.pending, pendingBreak{handle: h, due: r.clock.Now().Add(r.settleDelay)})
	r.mu.Unlock()
	return h, nil
}

// Settle resolves the pending break at time t and current's location right
// away. It reports whether the record was retracted.
func (r *Recorder) Settle(ctx context.Context, t int64, current core.BlockSnapshot) (bool, error) {
	h := r.take(1, func(p pendingBreak) bool {
		return p.handle.Event.Time == t && p.handle.Event.Location == current.Location
	})
	if len(h) == 0 {
		return false, ErrNoPending
	}
	return r.engine.Settle(ctx, h[0].handle, current)
}

// Tick settles every pending break that is due. lookup returns the block as
// it is now; a location it cannot see (unloaded chunk) keeps its record.
func (r *Recorder) Tick(ctx context.Context, lookup func(core.Location) (core.BlockSnapshot, bool)) (settled int, err error) {
	now := r.clock.Now()
	due := r.take(-1, func(p pendingBreak) bool { return !p.due.After(now) })

	var errs []error
	for _, p := range due {
		current, ok := lookup(p.handle.Event.Location)
		if !ok {
			errs = append(errs, r.engine.Confirm(p.handle))
			settled++
			continue
		}
		if _, err := r.engine.Settle(ctx, p.handle, current); err != nil {
			errs = append(errs, err)
			continue
		}
		settled++
	}
	return settled, errors.Join(errs...)
}

// take removes and returns up to limit pending breaks matching match, oldest
// first. A negative limit takes all of them.
func (r *Recorder) take(limit int, match func(pendingBreak) bool) []pendingBreak {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pendingBreak
	kept := r.pending[:0]
	for _, p := range r.pending {
		if (limit < 0 || len(out) < limit) && match(p) {
			out = append(out, p)
			continue
		}
		kept = append(kept, p)
	}
	r.pending = kept
	return out
}

// Pending is the number of breaks waiting to be settled.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// OnBlockPlaced logs a placement.
func (r *Recorder) OnBlockPlaced(ctx context.Context, t int64, snap core.BlockSnapshot, actor core.Actor) error {
	if _, err := r.engine.InitializeOnce(ctx, snap); err != nil {
		return err
	}
	return r.engine.LogEvent(ctx, t, snap, core.InteractionPlaced, actor)
}

// OnExplosion logs every impacted block against the explosion's source. Air
// is skipped since nothing was destroyed there. The first failure aborts the
// rest of the explosion.
func (r *Recorder) OnExplosion(ctx context.Context, t int64, impacted []core.BlockSnapshot, source core.Actor) (logged int, err error) {
	for _, snap := range impacted {
		if snap.IsAir {
			continue
		}
		if _, err := r.engine.InitializeOnce(ctx, snap); err != nil {
			return logged, err
		}
		if err := r.engine.LogEvent(ctx, t, snap, core.InteractionExploded, source); err != nil {
			return logged, err
		}
		logged++
	}
	return logged, nil
}

// OnEntityDied only logs. Entity history has no record format yet.
func (r *Recorder) OnEntityDied(ctx context.Context, t int64, entityTypeID string, loc core.Location, killer core.Actor) {
	r.logger.InfoContext(ctx, "Entity died.",
		"time", t,
		"entity", entityTypeID,
		"location", loc.String(),
		"killer_kind", killer.Kind.String(),
		"killer_entity", killer.EntityTypeID,
		"killer_player", killer.PlayerID,
	)
}

// OnPlayerSpawn remembers the player's current name.
func (r *Recorder) OnPlayerSpawn(ctx context.Context, id int64, name string) error {
	if r.names == nil {
		return nil
	}
	return r.names.SavePlayer(ctx, id, name)
}

// Inspect is the inspector flow: make sure the block has a baseline, then
// return its history.
func (r *Recorder) Inspect(ctx context.Context, snap core.BlockSnapshot, q *core.Query) ([]core.Event, error) {
	if _, err := r.engine.InitializeOnce(ctx, snap); err != nil {
		return nil, err
	}
	return r.engine.GetLocationHistory(ctx, snap.Location, q)
}
