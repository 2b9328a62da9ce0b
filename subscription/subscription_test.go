package subscription

import (
	"testing"

	"github.com/exardb/exar/event"
)

func TestNewDefaultsHighWaterFromOffset(t *testing.T) {
	cases := []struct {
		offset uint64
		want   uint64
	}{
		{0, 0},
		{1, 0},
		{5, 4},
	}
	for _, c := range cases {
		s := New(Query{Offset: c.offset}, 4)
		if s.HighWater != c.want {
			t.Errorf("offset=%d: HighWater = %d, want %d", c.offset, s.HighWater, c.want)
		}
	}
}

func TestRemainingAndDecrement(t *testing.T) {
	s := New(Query{Limit: 2}, 4)
	if s.RemainingZero() {
		t.Fatal("expected non-zero remaining at start")
	}
	s.Decrement()
	if s.RemainingZero() {
		t.Fatal("expected remaining 1 after first decrement")
	}
	s.Decrement()
	if !s.RemainingZero() {
		t.Fatal("expected remaining 0 after second decrement")
	}
}

func TestUnboundedNeverZero(t *testing.T) {
	s := New(Query{Limit: 0}, 4)
	if !s.RemainingUnbounded() {
		t.Fatal("expected Limit=0 to be unbounded")
	}
	for i := 0; i < 5; i++ {
		s.Decrement()
	}
	if s.RemainingZero() {
		t.Fatal("unbounded subscription should never report RemainingZero")
	}
}

func TestMatches(t *testing.T) {
	s := New(Query{Tag: "a"}, 4)
	if !s.Matches(&event.Event{Tags: []string{"a", "b"}}) {
		t.Fatal("expected match on tag a")
	}
	if s.Matches(&event.Event{Tags: []string{"b"}}) {
		t.Fatal("expected no match without tag a")
	}

	any := New(Query{}, 4)
	if !any.Matches(&event.Event{Tags: []string{"whatever"}}) {
		t.Fatal("empty tag filter should match everything")
	}
}

func TestCloseIsIdempotentAndClosesChannels(t *testing.T) {
	s := New(Query{}, 4)
	s.Close(nil)
	s.Close(nil) // must not panic on double-close

	if _, ok := <-s.Events(); ok {
		t.Fatal("expected Events channel to be closed")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
	if s.State() != Closed {
		t.Fatalf("expected Closed state, got %s", s.State())
	}
}

func TestTrySendDropsOnFullBuffer(t *testing.T) {
	s := New(Query{}, 1)
	ev := &event.Event{ID: 1, Tags: []string{"a"}}
	if !s.TrySend(ev) {
		t.Fatal("expected first send to succeed")
	}
	if s.TrySend(ev) {
		t.Fatal("expected second send to fail on a full buffer of size 1")
	}
}
