package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/areas/core"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// Record lifecycle
	EventPreLogEvent      EventType = "PreLogEvent"
	EventPostLogEvent     EventType = "PostLogEvent"
	EventPostRemoveEvent  EventType = "PostRemoveEvent"
	EventPostInitialize   EventType = "PostInitialize"
	EventPostDeinitialize EventType = "PostDeinitialize"

	// Query lifecycle
	EventPreQuery  EventType = "PreQuery"
	EventPostQuery EventType = "PostQuery"

	// Raised when a stored key or value cannot be decoded, or a write would
	// produce one that could not be.
	EventOnCorruption EventType = "OnCorruption"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// Pre events always run synchronously and an error cancels the operation.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// HookListener receives events it was registered for.
type HookListener interface {
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority orders listeners of the same event; lower runs first.
	Priority() int
	// IsAsync asks for background execution. Ignored for Pre events.
	IsAsync() bool
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreLogEventPayload is fired before a record is written. Snapshot and
// Actor are pointers so listeners can rewrite them.
type PreLogEventPayload struct {
	Time        int64
	Snapshot    *core.BlockSnapshot
	Interaction core.InteractionKind
	Actor       *core.Actor
	Tentative   bool
}

func NewPreLogEventEvent(payload PreLogEventPayload) HookEvent {
	return &BaseEvent{eventType: EventPreLogEvent, payload: payload}
}

// PostLogEventPayload carries the record as persisted.
type PostLogEventPayload struct {
	Event     core.Event
	Tentative bool
}

func NewPostLogEventEvent(payload PostLogEventPayload) HookEvent {
	return &BaseEvent{eventType: EventPostLogEvent, payload: payload}
}

// PostRemoveEventPayload is fired after a record key is deleted.
type PostRemoveEventPayload struct {
	Key      string
	Time     int64
	Location core.Location
	// Reason is "remove", "retract" or "deinitialize".
	Reason string
}

func NewPostRemoveEventEvent(payload PostRemoveEventPayload) HookEvent {
	return &BaseEvent{eventType: EventPostRemoveEvent, payload: payload}
}

// InitializePayload describes a baseline record that was written or removed.
type InitializePayload struct {
	Key         string
	Location    core.Location
	BlockTypeID string
}

func NewPostInitializeEvent(payload InitializePayload) HookEvent {
	return &BaseEvent{eventType: EventPostInitialize, payload: payload}
}

func NewPostDeinitializeEvent(payload InitializePayload) HookEvent {
	return &BaseEvent{eventType: EventPostDeinitialize, payload: payload}
}

// PreQueryPayload allows listeners to narrow a scan. Location is nil for
// whole-store scans.
type PreQueryPayload struct {
	Location *core.Location
	Query    *core.Query
}

func NewPreQueryEvent(payload PreQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPreQuery, payload: payload}
}

type PostQueryPayload struct {
	Location *core.Location
	Query    *core.Query
	Results  int
	Duration time.Duration
	Error    error
}

func NewPostQueryEvent(payload PostQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostQuery, payload: payload}
}

// CorruptionPayload names the operation and key that hit a codec failure.
type CorruptionPayload struct {
	Operation string
	Key       string
	Err       error
}

func NewOnCorruptionEvent(payload CorruptionPayload) HookEvent {
	return &BaseEvent{eventType: EventOnCorruption, payload: payload}
}

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// Slices are kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register adds a listener for a specific event type, maintaining priority
// order. Listeners of equal priority run in registration order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
			continue
		}

		m.wg.Add(1)
		go func(currentItem *listenerWithPriority) {
			defer m.wg.Done()
			// The caller's context may be cancelled as soon as Trigger returns.
			if err := currentItem.listener.OnEvent(context.WithoutCancel(ctx), event); err != nil {
				m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
			}
		}(item)
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
