package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	defer closeBus(t, b)

	received := make(chan Event, 1)
	b.Subscribe(EventTypeSensor, func(e Event) {
		received <- e
	})

	b.Publish(Event{
		Type: EventTypeSensor,
		Data: map[string]interface{}{"fixture": "bedroom"},
	})

	select {
	case e := <-received:
		if e.ID == "" {
			t.Error("event ID was not assigned")
		}
		if e.Data["fixture"] != "bedroom" {
			t.Errorf("data = %v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()
	defer closeBus(t, b)

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		b.Subscribe(EventTypeState, func(Event) { wg.Done() })
	}

	b.Publish(Event{Type: EventTypeState})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the event")
	}
}

func TestPublishIgnoresOtherTypes(t *testing.T) {
	b := New()
	defer closeBus(t, b)

	received := make(chan Event, 1)
	b.Subscribe(EventTypeSensor, func(e Event) { received <- e })

	b.Publish(Event{Type: EventTypeState})

	select {
	case <-received:
		t.Fatal("handler received event of another type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishKeepsCallerID(t *testing.T) {
	b := New()
	defer closeBus(t, b)

	received := make(chan Event, 1)
	b.Subscribe(EventTypeSensor, func(e Event) { received <- e })

	b.Publish(Event{ID: "fixed-id", Type: EventTypeSensor})

	select {
	case e := <-received:
		if e.ID != "fixed-id" {
			t.Errorf("ID = %q, want fixed-id", e.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHandlerPanicDoesNotKillWorkers(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer closeBus(t, b)

	received := make(chan Event, 1)
	b.Subscribe(EventTypeSensor, func(Event) { panic("boom") })
	b.Subscribe(EventTypeSensor, func(e Event) { received <- e })

	b.Publish(Event{Type: EventTypeSensor})

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("worker died after handler panic")
	}
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	b := NewWithConfig(1, 10)

	var mu sync.Mutex
	delivered := 0
	b.Subscribe(EventTypeSensor, func(Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: EventTypeSensor})
	}
	closeBus(t, b)

	mu.Lock()
	defer mu.Unlock()
	if delivered != 5 {
		t.Errorf("delivered = %d, want 5", delivered)
	}
}

func closeBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Close(ctx)
}
