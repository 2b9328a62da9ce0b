// Package subscription defines the Query and Subscription types
// shared by the scanner pool and the publisher. It is a leaf package
// deliberately separated from collection so that scanner and publish
// can depend on the subscription type without importing the package
// that owns them.
package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/exardb/exar/event"
	"github.com/exardb/exar/exarerr"
)

// Query is an immutable description of what a subscriber wants to
// receive.
type Query struct {
	// Offset is the 1-based start line number. 0 and 1 both mean
	// "from the beginning".
	Offset uint64
	// Limit is the maximum number of events to deliver. 0 means
	// unbounded.
	Limit uint64
	// Tag, if non-empty, filters delivered events to those tagged
	// with it.
	Tag string
	// LiveStream, when true, keeps the subscription open past
	// historical replay to receive newly published matches.
	LiveStream bool
}

// Validate checks offset and limit bounds, which for unsigned fields
// reduces to nothing at the type level today; it is kept as an
// explicit call site for symmetry with event.Validate and as the
// place future field additions would be checked.
func (q Query) Validate() error {
	return nil
}

// NormalizedOffset returns the offset to seek to, treating 0 as 1.
func (q Query) NormalizedOffset() uint64 {
	if q.Offset == 0 {
		return 1
	}
	return q.Offset
}

// State is a subscription's position in its state machine.
type State int32

const (
	Scanning State = iota
	Live
	Closed
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "Scanning"
	case Live:
		return "Live"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Subscription is a one-way channel from the engine to one client.
// At any instant it belongs to exactly one component's
// active set (a scanner worker or the publisher); ownership transfers
// are synchronous handoffs, never shared access. Only State and Err
// are safe to read from outside the owning goroutine.
type Subscription struct {
	ID    uuid.UUID
	Query Query

	events chan *event.Event
	done   chan struct{}

	state int32 // atomic, a State value

	// HighWater is both the scanning worker's resume cursor and the
	// exclusive lower bound the publisher must use once this
	// subscription is handed off. It starts at NormalizedOffset()-1
	// (nothing scanned yet) and is advanced by the owning scanner
	// worker past every line it scans, delivered or filtered out,
	// since the worker reseeks its shared reader to HighWater+1 on
	// every turn.
	HighWater uint64

	// remaining and unbounded track the counter of events still owed
	// to the subscriber. They are mutated only by the current owner
	// of the subscription.
	remaining uint64
	unbounded bool

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// New creates a subscription in the Scanning state with an outgoing
// channel of the given buffer capacity.
func New(q Query, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	s := &Subscription{
		ID:        uuid.New(),
		Query:     q,
		events:    make(chan *event.Event, bufferSize),
		done:      make(chan struct{}),
		remaining: q.Limit,
		unbounded: q.Limit == 0,
	}
	if off := q.NormalizedOffset(); off > 0 {
		s.HighWater = off - 1
	}
	atomic.StoreInt32(&s.state, int32(Scanning))
	return s
}

// Events is the channel a consumer ranges over to receive delivered
// events. It is closed exactly once, when the subscription reaches
// Closed; Err reports why.
func (s *Subscription) Events() <-chan *event.Event { return s.events }

// Done is closed at the same moment Events is closed. It lets a
// watcher learn of termination without racing a drained Events
// channel.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// State returns the subscription's current state.
func (s *Subscription) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// SetState transitions the subscription's state. Called only by the
// component that currently owns it.
func (s *Subscription) SetState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Err returns the terminal error, if the subscription closed
// abnormally. A nil Err after Closed means a clean end-of-stream:
// limit reached or, for a non-live query, end of file.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// RemainingUnbounded reports whether this subscription has no limit.
func (s *Subscription) RemainingUnbounded() bool { return s.unbounded }

// RemainingZero reports whether the owed-event counter has reached
// zero. Always false for an unbounded subscription.
func (s *Subscription) RemainingZero() bool {
	return !s.unbounded && s.remaining == 0
}

// Decrement consumes one unit of the owed-event counter.
func (s *Subscription) Decrement() {
	if !s.unbounded && s.remaining > 0 {
		s.remaining--
	}
}

// Matches reports whether ev passes this subscription's tag filter.
// An empty filter matches everything.
func (s *Subscription) Matches(ev *event.Event) bool {
	if s.Query.Tag == "" {
		return true
	}
	return ev.HasTag(s.Query.Tag)
}

// TrySend attempts a non-blocking delivery, used by the publisher:
// a full buffer is reported as backpressure rather than stalling
// fan-out to other subscribers.
func (s *Subscription) TrySend(ev *event.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Send attempts a blocking delivery that also observes stop, used by
// a scanner worker during historical replay: a full buffer blocks the
// worker, and with it every other subscription that worker owns, until
// the consumer drains it. It returns false only if stop fires first
// (the worker is shutting down); an unsubscribe of this subscription
// does not interrupt a Send that is already blocked.
func (s *Subscription) Send(ev *event.Event, stop <-chan struct{}) bool {
	select {
	case s.events <- ev:
		return true
	case <-stop:
		return false
	}
}

// Close terminates the subscription exactly once, closing Events and
// Done and recording err as the terminal error (nil for a clean
// end-of-stream).
func (s *Subscription) Close(err error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.SetState(Closed)
		close(s.done)
		close(s.events)
	})
}

// CloseSubscriptionError is a convenience for the common "buffer full
// or broken endpoint" terminal condition.
func CloseSubscriptionError(s *Subscription, detail string) {
	s.Close(exarerr.New(exarerr.SubscriptionError, detail))
}
