package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStateChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStateChanged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindStateChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("timeline.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStateChanged})
	b.Publish(Event{Kind: KindTimelineAppend})

	select {
	case evt := <-ch:
		if evt.Kind != KindTimelineAppend {
			t.Errorf("got kind %q, want %q", evt.Kind, KindTimelineAppend)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the conn event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("history.", 10)
	defer unsub()

	before := time.Now()
	b.Emit(KindHistoryLoaded, 42)

	select {
	case evt := <-ch:
		if evt.Payload != 42 {
			t.Errorf("payload = %v, want 42", evt.Payload)
		}
		if evt.Timestamp.Before(before) {
			t.Errorf("timestamp %v predates Emit call", evt.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conn.", 10)
	unsub()

	b.Publish(Event{Kind: KindStateChanged})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
