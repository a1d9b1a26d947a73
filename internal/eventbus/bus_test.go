package eventbus

import (
	"testing"
	"time"
)

func TestListenSingleShot(t *testing.T) {
	b := New(0)
	ch := b.Listen()
	b.Notify(Event{Type: TypeChange, GameID: "g1"})

	ev, ok := <-ch
	if !ok {
		t.Fatal("channel closed before delivery")
	}
	if ev.GameID != "g1" {
		t.Fatalf("got game %s", ev.GameID)
	}
	if _, ok := <-ch; ok {
		t.Fatal("single-shot channel yielded a second event")
	}
}

func TestListenersSwappedBeforeDelivery(t *testing.T) {
	b := New(0)
	first := b.Listen()
	b.Notify(Event{Type: TypeChange, GameID: "g1"})

	// Re-arming after the first delivery must only observe later events.
	<-first
	second := b.Listen()
	b.Notify(Event{Type: TypeChange, GameID: "g2"})
	ev := <-second
	if ev.GameID != "g2" {
		t.Fatalf("re-armed listener got %s, want g2", ev.GameID)
	}
}

func TestNotifyReachesAllListeners(t *testing.T) {
	b := New(0)
	chans := []<-chan Event{b.Listen(), b.Listen(), b.Listen()}
	b.Notify(Event{Type: TypeStart})
	for i, ch := range chans {
		select {
		case ev := <-ch:
			if ev.Type != TypeStart {
				t.Fatalf("listener %d got %s", i, ev.Type)
			}
		default:
			t.Fatalf("listener %d not notified", i)
		}
	}
}

func TestRecursiveNotifyPanics(t *testing.T) {
	b := New(0)
	defer func() {
		if recover() == nil {
			t.Fatal("recursive notify did not panic")
		}
	}()
	// Simulate a listener calling back into Notify synchronously by
	// re-entering while the guard is held.
	b.notifying.Store(true)
	b.Notify(Event{Type: TypeChange})
}

func TestSubscriptionOrderAndExactlyOnce(t *testing.T) {
	b := New(0)
	sub := b.Subscribe(8)
	defer sub.Close()

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		b.Notify(Event{Type: TypeChange, GameID: id})
	}
	for _, want := range ids {
		select {
		case ev := <-sub.Events():
			if ev.GameID != want {
				t.Fatalf("got %s, want %s", ev.GameID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %s never delivered", want)
		}
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected extra event %s", ev.GameID)
	default:
	}
}

func TestStalledSubscriberDropsAfterWait(t *testing.T) {
	b := New(10 * time.Millisecond)
	sub := b.Subscribe(1)
	defer sub.Close()

	b.Notify(Event{Type: TypeChange, GameID: "kept"}) // fills the buffer

	done := make(chan struct{})
	go func() {
		b.Notify(Event{Type: TypeChange, GameID: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked past the delivery wait")
	}

	ev := <-sub.Events()
	if ev.GameID != "kept" {
		t.Fatalf("got %s, want kept", ev.GameID)
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("dropped event %s was delivered", ev.GameID)
	default:
	}
}

func TestClosedSubscriptionStopsDelivery(t *testing.T) {
	b := New(0)
	sub := b.Subscribe(0)
	sub.Close()
	sub.Close() // idempotent

	done := make(chan struct{})
	go func() {
		b.Notify(Event{Type: TypeChange, GameID: "g1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on a closed subscription")
	}
}
