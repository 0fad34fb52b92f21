package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/areas/hooks"
)

// Broadcaster delivers a one-line operator message to every connected
// game host.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) error
}

// CorruptionAlerter reports codec failures in the record store. The engine
// aborts the operation; this listener makes sure somebody hears about it.
type CorruptionAlerter struct {
	logger      *slog.Logger
	broadcaster Broadcaster
}

// NewCorruptionAlerter creates the listener. broadcaster may be nil, in which
// case alerts are only logged.
func NewCorruptionAlerter(logger *slog.Logger, broadcaster Broadcaster) *CorruptionAlerter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CorruptionAlerter{
		logger:      logger.With("component", "CorruptionAlerter"),
		broadcaster: broadcaster,
	}
}

func (l *CorruptionAlerter) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnCorruption {
		return nil
	}
	payload, ok := event.Payload().(hooks.CorruptionPayload)
	if !ok {
		l.logger.Error("Received OnCorruption event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	l.logger.Error("Block history store corruption detected",
		"operation", payload.Operation,
		"key", payload.Key,
		"error", payload.Err,
	)
	if l.broadcaster == nil {
		return nil
	}
	return l.broadcaster.Broadcast(ctx, AlertMessage(payload))
}

// AlertMessage is the operator-facing text for a corruption event.
func AlertMessage(p hooks.CorruptionPayload) string {
	if p.Key == "" {
		return fmt.Sprintf("[areas] block history corrupted during %s: %v", p.Operation, p.Err)
	}
	return fmt.Sprintf("[areas] block history corrupted during %s at %q: %v", p.Operation, p.Key, p.Err)
}

func (l *CorruptionAlerter) Priority() int { return 10 }

// IsAsync keeps broadcast latency off the failing operation's path.
func (l *CorruptionAlerter) IsAsync() bool { return true }
