package scanner

import (
	"fmt"
	"testing"
	"time"

	"github.com/exardb/exar/elog"
	"github.com/exardb/exar/event"
	"github.com/exardb/exar/subscription"
)

func newTestLogWithEvents(t *testing.T, events []*event.Event) *elog.Log {
	t.Helper()
	dir := t.TempDir()
	l, err := elog.Open("events", dir, 1000, nil)
	if err != nil {
		t.Fatalf("elog.Open: %s", err)
	}
	w, err := l.OpenLineWriter()
	if err != nil {
		t.Fatalf("OpenLineWriter: %s", err)
	}
	defer w.Close()
	for _, e := range events {
		if _, err := w.Append(e.EncodeLine()); err != nil {
			t.Fatalf("Append: %s", err)
		}
	}
	return l
}

func makeEvents(n int, tags func(i int) []string) []*event.Event {
	out := make([]*event.Event, n)
	for i := 0; i < n; i++ {
		out[i] = &event.Event{ID: uint64(i + 1), Timestamp: 1, Tags: tags(i), Data: []byte(fmt.Sprintf("d%d", i+1))}
	}
	return out
}

func drain(t *testing.T, sub *subscription.Subscription, timeout time.Duration) []*event.Event {
	t.Helper()
	var got []*event.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for subscription to close, got %d events", len(got))
		}
	}
}

func TestScannerDeliversAllEvents(t *testing.T) {
	events := makeEvents(3, func(i int) []string { return []string{"a"} })
	l := newTestLogWithEvents(t, events)

	p := NewPool(1, l, 5*time.Millisecond, RandomStrategy{}, func(*subscription.Subscription) {}, nil)
	defer p.Stop()

	sub := subscription.New(subscription.Query{LiveStream: false}, 16)
	p.Add(sub)

	got := drain(t, sub, 2*time.Second)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	for i, ev := range got {
		if ev.ID != uint64(i+1) {
			t.Fatalf("event %d has id %d, want %d", i, ev.ID, i+1)
		}
	}
	if err := sub.Err(); err != nil {
		t.Fatalf("unexpected terminal error: %s", err)
	}
}

func TestScannerTagFilter(t *testing.T) {
	events := makeEvents(3, func(i int) []string {
		if i == 1 {
			return []string{"b"}
		}
		return []string{"a"}
	})
	l := newTestLogWithEvents(t, events)

	p := NewPool(1, l, 5*time.Millisecond, RandomStrategy{}, func(*subscription.Subscription) {}, nil)
	defer p.Stop()

	sub := subscription.New(subscription.Query{Tag: "a"}, 16)
	p.Add(sub)

	got := drain(t, sub, 2*time.Second)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("expected ids 1,3, got %d,%d", got[0].ID, got[1].ID)
	}
}

func TestScannerOffsetAndLimit(t *testing.T) {
	events := makeEvents(10, func(i int) []string { return []string{"a"} })
	l := newTestLogWithEvents(t, events)

	p := NewPool(1, l, 5*time.Millisecond, RandomStrategy{}, func(*subscription.Subscription) {}, nil)
	defer p.Stop()

	sub := subscription.New(subscription.Query{Offset: 3, Limit: 2}, 16)
	p.Add(sub)

	got := drain(t, sub, 2*time.Second)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != 3 || got[1].ID != 4 {
		t.Fatalf("expected ids 3,4, got %d,%d", got[0].ID, got[1].ID)
	}
}

func TestScannerHandsOffLiveStreamSubscription(t *testing.T) {
	events := makeEvents(3, func(i int) []string { return []string{"a"} })
	l := newTestLogWithEvents(t, events)

	handedOff := make(chan *subscription.Subscription, 1)
	p := NewPool(1, l, 5*time.Millisecond, RandomStrategy{}, func(s *subscription.Subscription) {
		handedOff <- s
	}, nil)
	defer p.Stop()

	sub := subscription.New(subscription.Query{LiveStream: true}, 16)
	p.Add(sub)

	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			if ev.ID != uint64(i+1) {
				t.Fatalf("event %d has id %d, want %d", i, ev.ID, i+1)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}

	select {
	case got := <-handedOff:
		if got != sub {
			t.Fatal("handoff callback received a different subscription")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handoff to the publisher")
	}

	if sub.HighWater != 3 {
		t.Fatalf("expected HighWater 3 after delivering 3 events, got %d", sub.HighWater)
	}
}
