package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testBus(buffer int) *Bus {
	return New(buffer, zerolog.Nop())
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := testBus(4)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Type: EventWritten, Key: "transcripts/clip.txt"})

	select {
	case e := <-ch:
		if e.Type != EventWritten {
			t.Fatalf("type = %q, want %q", e.Type, EventWritten)
		}
		if e.Key != "transcripts/clip.txt" {
			t.Fatalf("key = %q", e.Key)
		}
		if e.ID == "" {
			t.Fatal("expected generated event ID")
		}
		if e.At.IsZero() {
			t.Fatal("expected timestamp to be filled")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := testBus(1)
	defer b.Close()

	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: EventReceived})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := testBus(4)
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}

	// Publishing after cancel must not panic on the closed channel.
	b.Publish(Event{Type: EventFailed})
}

func TestCancelIsIdempotent(t *testing.T) {
	b := testBus(4)
	defer b.Close()

	_, cancel := b.Subscribe()
	cancel()
	cancel()
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := testBus(4)

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after bus close")
	}

	// Both are no-ops once closed.
	b.Publish(Event{Type: EventReceived})
	b.Close()

	late, lateCancel := b.Subscribe()
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel from subscribe after close")
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := testBus(8)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := b.Subscribe()
			defer cancel()
			for j := 0; j < 20; j++ {
				b.Publish(Event{Type: EventRouted})
				select {
				case <-ch:
				default:
				}
			}
		}()
	}
	wg.Wait()
}
