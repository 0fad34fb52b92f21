package listeners

import (
	"context"
	"io"
	"log/slog"

	"github.com/INLOpen/areas/hooks"
)

// AuditLogger writes one debug line for every record written or removed.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AuditLogger{logger: logger.With("component", "AuditLogger")}
}

// Register subscribes the logger to every record lifecycle event.
func (l *AuditLogger) Register(m hooks.HookManager) {
	for _, et := range []hooks.EventType{
		hooks.EventPostLogEvent,
		hooks.EventPostRemoveEvent,
		hooks.EventPostInitialize,
		hooks.EventPostDeinitialize,
	} {
		m.Register(et, l)
	}
}

func (l *AuditLogger) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	switch p := event.Payload().(type) {
	case hooks.PostLogEventPayload:
		l.logger.DebugContext(ctx, "Block interaction recorded",
			"key", p.Event.Key,
			"interaction", p.Event.Interaction.String(),
			"block", p.Event.BlockTypeID,
			"actor_kind", p.Event.Actor.Kind.String(),
			"actor_entity", p.Event.Actor.EntityTypeID,
			"actor_player", p.Event.Actor.PlayerID,
			"tentative", p.Tentative,
		)
	case hooks.PostRemoveEventPayload:
		l.logger.DebugContext(ctx, "Block interaction removed", "key", p.Key, "reason", p.Reason)
	case hooks.InitializePayload:
		l.logger.DebugContext(ctx, "Block baseline changed",
			"event", string(event.Type()),
			"key", p.Key,
			"block", p.BlockTypeID,
		)
	}
	return nil
}

func (l *AuditLogger) Priority() int { return 100 }
func (l *AuditLogger) IsAsync() bool { return false }
