// Package engine is the block history record store: it composes the key and
// value codecs over a flat kv.Store and owns the write, initialize,
// deinitialize and scan protocol.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/INLOpen/areas/clock"
	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/hooks"
	"github.com/INLOpen/areas/kv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrNoStore is returned by NewStorageEngine without a Store.
	ErrNoStore = errors.New("storage engine requires a property store")
	// ErrInvalidInteraction rejects unknown kinds, and Initialised, which
	// only InitializeOnce writes.
	ErrInvalidInteraction = errors.New("interaction kind cannot be logged")
	// ErrReservedTime rejects non-baseline records at the baseline timestamp.
	ErrReservedTime = errors.New("time 0 is reserved for the initialization record")
	// ErrTentativeResolved is returned when a tentative record is confirmed
	// or retracted a second time.
	ErrTentativeResolved = errors.New("tentative record already resolved")
)

type StorageEngineOptions struct {
	Store          kv.Store
	Logger         *slog.Logger
	HookManager    hooks.HookManager
	TracerProvider trace.TracerProvider
	// Metrics defaults to a private, unpublished set.
	Metrics *EngineMetrics
	Clock   clock.Clock
}

// StorageEngine serialises every public operation behind one mutex. It is
// the only writer of the event key family in its store.
type StorageEngine struct {
	mu sync.Mutex

	store       kv.Store
	logger      *slog.Logger
	hookManager hooks.HookManager
	tracer      trace.Tracer
	metrics     *EngineMetrics
	clock       clock.Clock
}

func NewStorageEngine(opts StorageEngineOptions) (*StorageEngine, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "StorageEngine")

	e := &StorageEngine{
		store:       opts.Store,
		logger:      logger,
		hookManager: opts.HookManager,
		metrics:     opts.Metrics,
		clock:       opts.Clock,
	}
	if e.hookManager == nil {
		e.hookManager = hooks.NewHookManager(logger)
	}
	if e.metrics == nil {
		e.metrics = NewEngineMetrics(false, "")
	}
	if e.clock == nil {
		e.clock = clock.SystemClockDefault
	}
	if opts.TracerProvider != nil {
		e.tracer = opts.TracerProvider.Tracer("github.com/INLOpen/areas/engine")
	} else {
		e.tracer = noop.NewTracerProvider().Tracer("")
	}
	return e, nil
}

// Store is the underlying property bag, shared with other key families such
// as the player name index.
func (e *StorageEngine) Store() kv.Store { return e.store }

func (e *StorageEngine) Metrics() *EngineMetrics { return e.metrics }

func (e *StorageEngine) HookManager() hooks.HookManager { return e.hookManager }

// startOp opens the span for a public operation; endSpan closes it.
func (e *StorageEngine) startOp(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "StorageEngine."+name)
	span.SetAttributes(attribute.String("db.system", "areas"), attribute.String("db.operation", name))
	span.SetAttributes(attrs...)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// corruption handles a codec failure: the operation aborts, the failure is
// logged and the OnCorruption hook alerts operators.
func (e *StorageEngine) corruption(ctx context.Context, op, key string, err error) error {
	e.metrics.CorruptionTotal.Add(1)
	e.logger.ErrorContext(ctx, "Codec failure in block history store.", "operation", op, "key", key, "error", err)
	_ = e.hookManager.Trigger(ctx, hooks.NewOnCorruptionEvent(hooks.CorruptionPayload{
		Operation: op,
		Key:       key,
		Err:       err,
	}))
	if key == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}

// storeError wraps a backend failure without masking it.
func storeError(op, action string, err error) error {
	return fmt.Errorf("%s: store %s: %w", op, action, err)
}

func locationAttrs(loc core.Location) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("areas.x", loc.X),
		attribute.Int("areas.y", loc.Y),
		attribute.Int("areas.z", loc.Z),
		attribute.String("areas.dimension", loc.Dimension),
	}
}
