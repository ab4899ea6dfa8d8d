package events

import (
	"sync"
	"testing"
	"time"
)

func TestNilBus(t *testing.T) {
	var b *Bus
	// None of these may panic.
	b.Publish(Event{Source: SourceSDK, Kind: KindRequest})
	b.Emit(SourceSDK, KindStreamEnd, nil)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestEmitStampsEvent(t *testing.T) {
	b := New()
	ch := b.Subscribe(8)
	defer b.Unsubscribe(ch)

	before := time.Now()
	b.Emit(SourceOllama, KindStreamStart, map[string]any{"session_id": "s_1", "status": 200})

	select {
	case got := <-ch:
		if got.Source != SourceOllama || got.Kind != KindStreamStart {
			t.Errorf("got %s/%s, want %s/%s", got.Source, got.Kind, SourceOllama, KindStreamStart)
		}
		if got.Timestamp.Before(before) {
			t.Errorf("timestamp %v precedes emit time %v", got.Timestamp, before)
		}
		if got.String("session_id") != "s_1" {
			t.Errorf("session_id = %q, want s_1", got.String("session_id"))
		}
		if got.Int("status") != 200 {
			t.Errorf("status = %d, want 200", got.Int("status"))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventAccessors(t *testing.T) {
	e := Event{Data: map[string]any{"a": int64(7), "b": 3, "c": "x", "d": 1.5}}
	tests := []struct {
		key  string
		want int64
	}{
		{"a", 7}, {"b", 3}, {"c", 0}, {"d", 0}, {"missing", 0},
	}
	for _, tt := range tests {
		if got := e.Int(tt.key); got != tt.want {
			t.Errorf("Int(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
	if e.String("a") != "" || e.String("c") != "x" {
		t.Errorf("String accessors returned %q/%q", e.String("a"), e.String("c"))
	}
}

func TestPublishMultipleSubscribers(t *testing.T) {
	b := New()
	const n = 5
	channels := make([]<-chan Event, n)
	for i := range n {
		channels[i] = b.Subscribe(8)
	}
	defer func() {
		for _, ch := range channels {
			b.Unsubscribe(ch)
		}
	}()

	evt := Event{Source: SourceOpenAI, Kind: KindResponse}
	b.Publish(evt)

	for i, ch := range channels {
		select {
		case got := <-ch:
			if got.Source != evt.Source || got.Kind != evt.Kind {
				t.Errorf("subscriber %d: got %v, want %v", i, got, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestDropOnFull(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Publish(Event{Kind: "first"})
	b.Publish(Event{Kind: "second"})

	if got := <-ch; got.Kind != "first" {
		t.Errorf("got kind %q, want %q", got.Kind, "first")
	}
	select {
	case evt := <-ch:
		t.Errorf("expected empty channel, got event %v", evt)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch1 := b.Subscribe(4)
	ch2 := b.Subscribe(4)
	if got := b.SubscriberCount(); got != 2 {
		t.Errorf("after 2 subscribes = %d, want 2", got)
	}

	b.Unsubscribe(ch1)
	if _, ok := <-ch1; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	b.Unsubscribe(ch1) // second call is a no-op
	if got := b.SubscriberCount(); got != 1 {
		t.Errorf("after 1 unsubscribe = %d, want 1", got)
	}

	b.Unsubscribe(ch2)
	b.Publish(Event{Source: SourceSDK, Kind: KindRequest})
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("after all unsubscribed = %d, want 0", got)
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := New()
	const publishers = 10
	const eventsPerPublisher = 100

	var wg sync.WaitGroup
	ch := b.Subscribe(64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range ch {
		}
	}()

	var pubWg sync.WaitGroup
	for i := range publishers {
		pubWg.Add(1)
		go func() {
			defer pubWg.Done()
			for j := range eventsPerPublisher {
				b.Emit(SourceSDK, KindStreamEnd, map[string]any{"publisher": i, "seq": j})
			}
		}()
	}

	pubWg.Wait()
	b.Unsubscribe(ch)
	wg.Wait()
}
