// Package events carries SDK activity to observers. The client publishes
// one event per request, response and stream session; the journal
// recorder and the command line tool subscribe. A nil *Bus accepts
// every call and does nothing, so clients built without one need no
// guards.
package events

import (
	"sync"
	"time"
)

// Sources.
const (
	SourceSDK    = "sdk"
	SourceOllama = "ollama"
	SourceOpenAI = "openai"
)

// Kinds.
const (
	// KindRequest is published before a request is sent.
	// Data: session_id, method, path, bytes.
	KindRequest = "request"
	// KindResponse is published when response headers arrive.
	// Data: session_id, method, path, status, elapsed_ms.
	KindResponse = "response"
	// KindStreamStart is published when a stream session opens.
	// Data: session_id, method, path, status, chunked.
	KindStreamStart = "stream_start"
	// KindStreamEnd is published once a stream session is terminal.
	// Data: session_id, method, path, status, outcome, chunks, bytes,
	// lines, records, skipped, elapsed_ms, error.
	KindStreamEnd = "stream_end"
)

// Event is one observation published on the bus.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// String reads a string field from e.Data, returning "" when absent.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Int reads an integer field from e.Data. Both int and int64 values
// are accepted.
func (e Event) Int(key string) int64 {
	switch v := e.Data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// Bus broadcasts events without blocking publishers. A subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recv maps the receive-only view returned by Subscribe back to the
	// channel stored in subs.
	recv map[<-chan Event]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[chan Event]struct{}),
		recv: make(map[<-chan Event]chan Event),
	}
}

// Publish delivers e to every subscriber that has room.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit stamps and publishes an event.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{
		Timestamp: time.Now(),
		Source:    source,
		Kind:      kind,
		Data:      data,
	})
}

// Subscribe returns a channel with bufSize slots that receives every
// later event until Unsubscribe is called.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recv[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	send, ok := b.recv[ch]
	if !ok {
		return
	}
	delete(b.subs, send)
	delete(b.recv, ch)
	close(send)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
