// Package publish implements the single-threaded live fan-out of a
// collection: one goroutine per collection that distributes newly
// appended events to every subscription handed to it, enforcing each
// subscription's handoff floor, tag filter, and remaining limit.
package publish

import (
	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/exardb/exar/event"
	"github.com/exardb/exar/subscription"
)

// controlOp identifies what a controlMsg asks the publisher's run
// loop to do.
type controlOp int

const (
	opHandoff controlOp = iota
	opRemove
)

// controlMsg carries a handoff or a removal. Both flow through the
// same channel so that a caller who serializes its own handoff and
// removal calls (e.g. Collection, via its subscription-location
// mutex) gets that same relative order preserved here: a single Go
// channel delivers in the order messages were sent, whereas two
// separate channels read by one select do not.
type controlMsg struct {
	op  controlOp
	sub *subscription.Subscription
	id  uuid.UUID
}

// Publisher fans newly published events out to live subscriptions.
type Publisher struct {
	logf func(string, ...interface{})

	events  chan *event.Event
	control chan controlMsg
	stop    chan struct{}
	done    chan struct{}
}

// New starts a Publisher goroutine. eventBuffer bounds how many
// published-but-not-yet-fanned-out events can queue up before Publish
// blocks its caller; it is not the per-subscriber buffer, which
// lives on each subscription.
func New(eventBuffer int, logf func(string, ...interface{})) *Publisher {
	if eventBuffer <= 0 {
		eventBuffer = 1
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	p := &Publisher{
		logf:    logf,
		events:  make(chan *event.Event, eventBuffer),
		control: make(chan controlMsg, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues ev for fan-out. It blocks if the internal queue is
// full; Collection.Publish calls this after the write to the log has
// already durably succeeded, so a blocked Publish never loses an
// event, it only delays its live delivery.
func (p *Publisher) Publish(ev *event.Event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

// HandOff transfers ownership of sub, already in the Live state with
// its HighWater recorded, to the publisher. Callers that also call
// Remove for the same subscription must serialize the two calls
// (e.g. under their own lock) to get a deterministic outcome; a
// HandOff and a Remove for the same id that race against each other
// without such serialization may be observed in either order.
func (p *Publisher) HandOff(sub *subscription.Subscription) {
	select {
	case p.control <- controlMsg{op: opHandoff, sub: sub}:
	case <-p.done:
		sub.Close(nil)
	}
}

// Remove asks the publisher to drop the subscription identified by
// id, if it is still live. A no-op otherwise.
func (p *Publisher) Remove(id uuid.UUID) {
	select {
	case p.control <- controlMsg{op: opRemove, id: id}:
	case <-p.done:
	}
}

// Stop closes every live subscription and exits the publisher
// goroutine.
func (p *Publisher) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)
	live := make(map[uuid.UUID]*subscription.Subscription)
	defer func() {
		for _, sub := range live {
			sub.Close(nil)
		}
	}()

	for {
		select {
		case <-p.stop:
			// take in handoffs still queued on control so the
			// deferred close reaches them too.
			for {
				select {
				case msg := <-p.control:
					if msg.op == opHandoff {
						live[msg.sub.ID] = msg.sub
					}
				default:
					return
				}
			}
		case msg := <-p.control:
			switch msg.op {
			case opHandoff:
				live[msg.sub.ID] = msg.sub
			case opRemove:
				if sub, ok := live[msg.id]; ok {
					sub.Close(nil)
					delete(live, msg.id)
				}
			}
		case ev := <-p.events:
			p.fanOut(live, ev)
		}
	}
}

// fanOut delivers one event to every live subscription whose handoff
// floor the event clears, whose tag filter it matches, and which
// still owes events; a full buffer drops that subscriber rather than
// stalling the rest.
func (p *Publisher) fanOut(live map[uuid.UUID]*subscription.Subscription, ev *event.Event) {
	for _, id := range maps.Keys(live) {
		sub := live[id]
		if ev.ID <= sub.HighWater {
			continue
		}
		if !sub.Matches(ev) {
			continue
		}
		if sub.RemainingZero() {
			sub.Close(nil)
			delete(live, id)
			continue
		}
		if !sub.TrySend(ev) {
			subscription.CloseSubscriptionError(sub, "subscriber buffer full")
			delete(live, id)
			continue
		}
		sub.HighWater = ev.ID
		sub.Decrement()
		if sub.RemainingZero() {
			sub.Close(nil)
			delete(live, id)
		}
	}
}
