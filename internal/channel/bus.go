package channel

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler receives the raw payload of one event. Delivery may repeat, so
// handlers must tolerate duplicates.
type Handler func(data json.RawMessage)

// Subscriber registers handlers and returns a function that removes the
// registration. Both Bus and Client satisfy it.
type Subscriber interface {
	On(event string, h Handler) (off func())
}

type entry struct {
	id uint64
	h  Handler
}

// Bus is the in-process registry of named handlers. Handlers run on the
// goroutine calling Dispatch, in registration order.
type Bus struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[string][]entry
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]entry)}
}

func (b *Bus) On(event string, h Handler) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.handlers[event] = append(b.handlers[event], entry{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(event, id) })
	}
}

func (b *Bus) remove(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i, e := range list {
		if e.id == id {
			b.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

// Dispatch delivers data to every handler of event and reports how many ran.
func (b *Bus) Dispatch(event string, data json.RawMessage) int {
	b.mu.RLock()
	list := append([]entry(nil), b.handlers[event]...)
	b.mu.RUnlock()
	for _, e := range list {
		e.h(data)
	}
	return len(list)
}

// Len is the number of handlers registered for event.
func (b *Bus) Len(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// OnJSON registers a handler that decodes the payload into T first.
// Undecodable payloads are logged and dropped.
func OnJSON[T any](s Subscriber, event string, logger *slog.Logger, fn func(T)) func() {
	return s.On(event, func(data json.RawMessage) {
		var v T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				logger.Warn("channel payload decode failed", "event", event, "error", err)
				return
			}
		}
		fn(v)
	})
}
