package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/javery-app/javery-backend/pkg/enums"
)

// ErrNoHandler is returned by Dispatch for event types nobody subscribed to.
var ErrNoHandler = errors.New("no handler registered")

// Handler reacts to one resolved event.
type Handler func(ctx context.Context, event *ResolvedEvent) error

// Handlers routes resolved events to the function registered for their type.
type Handlers struct {
	mtx     sync.RWMutex
	entries map[enums.OutboxEventType]Handler
}

func NewHandlers() *Handlers {
	return &Handlers{entries: make(map[enums.OutboxEventType]Handler)}
}

// Register binds handler to eventType, replacing any previous binding.
func (h *Handlers) Register(eventType enums.OutboxEventType, handler Handler) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.entries[eventType] = handler
}

// Handles reports whether a handler is bound to eventType.
func (h *Handlers) Handles(eventType enums.OutboxEventType) bool {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	_, ok := h.entries[eventType]
	return ok
}

func (h *Handlers) Dispatch(ctx context.Context, event *ResolvedEvent) error {
	if event == nil {
		return errors.New("event required")
	}
	h.mtx.RLock()
	handler, ok := h.entries[event.Descriptor.EventType]
	h.mtx.RUnlock()
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoHandler, event.Descriptor.EventType)
	}
	return handler(ctx, event)
}
