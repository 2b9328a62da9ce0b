package publish

import (
	"testing"
	"time"

	"github.com/exardb/exar/event"
	"github.com/exardb/exar/subscription"
)

func recvEvent(t *testing.T, sub *subscription.Subscription, timeout time.Duration) *event.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("Events channel closed unexpectedly")
		}
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for an event")
		return nil
	}
}

func expectNoEvent(t *testing.T, sub *subscription.Subscription, wait time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected no delivery, got event id %d", ev.ID)
		}
	case <-time.After(wait):
	}
}

func newLiveSub(q subscription.Query, buffer int) *subscription.Subscription {
	s := subscription.New(q, buffer)
	s.SetState(subscription.Live)
	return s
}

func TestPublisherFansOutToHandedOffSubscriptions(t *testing.T) {
	p := New(16, nil)
	defer p.Stop()

	sub := newLiveSub(subscription.Query{}, 4)
	p.HandOff(sub)
	time.Sleep(20 * time.Millisecond)

	p.Publish(&event.Event{ID: 1, Tags: []string{"a"}, Data: []byte("x")})

	ev := recvEvent(t, sub, time.Second)
	if ev.ID != 1 {
		t.Fatalf("got id %d, want 1", ev.ID)
	}
	if sub.HighWater != 1 {
		t.Fatalf("HighWater = %d, want 1", sub.HighWater)
	}
}

func TestPublisherSkipsEventsAtOrBelowHighWater(t *testing.T) {
	p := New(16, nil)
	defer p.Stop()

	sub := newLiveSub(subscription.Query{Offset: 5}, 4)
	p.HandOff(sub)
	time.Sleep(20 * time.Millisecond)
	if sub.HighWater != 4 {
		t.Fatalf("HighWater = %d, want 4", sub.HighWater)
	}

	p.Publish(&event.Event{ID: 3, Tags: []string{"a"}, Data: []byte("x")})
	p.Publish(&event.Event{ID: 4, Tags: []string{"a"}, Data: []byte("x")})
	p.Publish(&event.Event{ID: 5, Tags: []string{"a"}, Data: []byte("x")})

	ev := recvEvent(t, sub, time.Second)
	if ev.ID != 5 {
		t.Fatalf("got id %d, want 5 (ids <= HighWater must be skipped)", ev.ID)
	}
	expectNoEvent(t, sub, 100*time.Millisecond)
}

func TestPublisherTagFilter(t *testing.T) {
	p := New(16, nil)
	defer p.Stop()

	sub := newLiveSub(subscription.Query{Tag: "b"}, 4)
	p.HandOff(sub)
	time.Sleep(20 * time.Millisecond)

	p.Publish(&event.Event{ID: 1, Tags: []string{"a"}, Data: []byte("x")})
	p.Publish(&event.Event{ID: 2, Tags: []string{"b"}, Data: []byte("y")})

	ev := recvEvent(t, sub, time.Second)
	if ev.ID != 2 {
		t.Fatalf("got id %d, want 2", ev.ID)
	}
	expectNoEvent(t, sub, 100*time.Millisecond)
}

func TestPublisherClosesOnceLimitReached(t *testing.T) {
	p := New(16, nil)
	defer p.Stop()

	sub := newLiveSub(subscription.Query{Limit: 1}, 4)
	p.HandOff(sub)
	time.Sleep(20 * time.Millisecond)

	p.Publish(&event.Event{ID: 1, Tags: []string{"a"}, Data: []byte("x")})

	recvEvent(t, sub, time.Second)
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected channel closed after limit reached")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscription to close")
	}
	if err := sub.Err(); err != nil {
		t.Fatalf("expected clean close, got error %s", err)
	}
}

func TestPublisherDropsSlowSubscriberOnFullBuffer(t *testing.T) {
	p := New(16, nil)
	defer p.Stop()

	sub := newLiveSub(subscription.Query{}, 1)
	p.HandOff(sub)
	time.Sleep(20 * time.Millisecond)

	p.Publish(&event.Event{ID: 1, Tags: []string{"a"}, Data: []byte("x")})
	// Give the publisher goroutine time to fill the one-slot buffer
	// before the second event arrives and finds it full.
	time.Sleep(50 * time.Millisecond)
	p.Publish(&event.Event{ID: 2, Tags: []string{"a"}, Data: []byte("y")})

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscription to be closed on a full buffer")
	}
	if err := sub.Err(); err == nil {
		t.Fatal("expected a non-nil terminal error on buffer-full close")
	}
}

func TestPublisherRemoveStopsDelivery(t *testing.T) {
	p := New(16, nil)
	defer p.Stop()

	sub := newLiveSub(subscription.Query{}, 4)
	p.HandOff(sub)
	time.Sleep(20 * time.Millisecond)
	p.Remove(sub.ID)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Remove to close the subscription")
	}

	p.Publish(&event.Event{ID: 1, Tags: []string{"a"}, Data: []byte("x")})
	expectNoEvent(t, sub, 100*time.Millisecond)
}

func TestPublisherStopClosesAllLiveSubscriptions(t *testing.T) {
	p := New(16, nil)

	sub1 := newLiveSub(subscription.Query{}, 4)
	sub2 := newLiveSub(subscription.Query{}, 4)
	p.HandOff(sub1)
	p.HandOff(sub2)

	p.Stop()

	for _, s := range []*subscription.Subscription{sub1, sub2} {
		select {
		case <-s.Done():
		default:
			t.Fatal("expected subscription closed after Stop")
		}
	}
}
