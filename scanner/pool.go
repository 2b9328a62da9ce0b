// Package scanner implements the historical-replay worker pool: a
// fixed number of workers, each owning an independent indexed reader,
// that advance subscriptions in bounded batches and
// hand them off to the publisher once they catch up to the live tail.
package scanner

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exardb/exar/elog"
	"github.com/exardb/exar/event"
	"github.com/exardb/exar/subscription"
)

// batchSize bounds how many events a worker advances a single
// subscription per cooperative cycle, so that one fast subscription
// cannot starve the others sharing its worker.
const batchSize = 256

// HandoffFunc is invoked by a worker when a live-stream subscription
// catches up to the end of its snapshot. The implementation (owned by
// collection.Collection) is responsible for transferring ownership to
// the publisher; it must not block the calling worker for long.
type HandoffFunc func(sub *subscription.Subscription)

// Pool is a fixed-size set of scanner workers for one collection.
type Pool struct {
	workers  []*worker
	strategy Strategy
	logf     func(string, ...interface{})

	wg sync.WaitGroup
}

// NewPool starts n workers reading from log, sleeping for sleep when
// idle, routing new subscriptions with strategy, and handing off
// live-stream subscriptions via handoff.
func NewPool(n int, log *elog.Log, sleep time.Duration, strategy Strategy, handoff HandoffFunc, logf func(string, ...interface{})) *Pool {
	if n <= 0 {
		n = 1
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	p := &Pool{strategy: strategy, logf: logf}
	for i := 0; i < n; i++ {
		w := &worker{
			idx:     i,
			log:     log,
			sleep:   sleep,
			handoff: handoff,
			logf:    logf,
			mailbox: make(chan ctrlMsg, 64),
			stop:    make(chan struct{}),
			active:  make(map[uuid.UUID]*subscription.Subscription),
		}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run()
		}()
	}
	return p
}

// Add routes sub to a worker chosen by the pool's strategy and
// returns the worker index it was assigned to, so the caller
// (collection.Collection) can target a later Remove precisely.
func (p *Pool) Add(sub *subscription.Subscription) int {
	idx := p.strategy.Pick(len(p.workers), sub.Query)
	p.workers[idx].mailbox <- ctrlMsg{kind: ctrlAdd, sub: sub}
	return idx
}

// Remove asks the worker at idx to drop the subscription identified
// by id, if it still owns it. A no-op if the subscription already
// moved on or closed.
func (p *Pool) Remove(idx int, id uuid.UUID) {
	if idx < 0 || idx >= len(p.workers) {
		return
	}
	select {
	case p.workers[idx].mailbox <- ctrlMsg{kind: ctrlRemove, id: id}:
	default:
		// mailbox full: the worker is behind, but it will
		// eventually observe the subscription's own Done channel
		// is irrelevant here since removal is explicit; drop the
		// request rather than block the caller. A client that
		// disconnects mid-unsubscribe will still be cleaned up the
		// next time its subscription fails a send.
	}
}

// Stop signals every worker to close its active subscriptions and
// exit, and waits for them to do so.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		close(w.stop)
	}
	p.wg.Wait()
}

type ctrlKind int

const (
	ctrlAdd ctrlKind = iota
	ctrlRemove
)

type ctrlMsg struct {
	kind ctrlKind
	sub  *subscription.Subscription
	id   uuid.UUID
}

type worker struct {
	idx     int
	log     *elog.Log
	sleep   time.Duration
	handoff HandoffFunc
	logf    func(string, ...interface{})

	mailbox chan ctrlMsg
	stop    chan struct{}
	active  map[uuid.UUID]*subscription.Subscription

	// reader is the one IndexedReader this worker holds open,
	// shared and reseeked across every subscription it advances, so
	// the number of open file descriptors scales with the worker
	// count rather than with the number of active subscriptions.
	reader *elog.IndexedReader
}

// run is the worker's cooperative loop: drain pending control
// messages, advance each active subscription by one batch,
// and sleep only when nothing progressed this cycle.
func (w *worker) run() {
	defer w.closeAll()
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		w.drainMailbox()

		progressed := false
		for id, sub := range w.active {
			if w.advance(sub) {
				progressed = true
			}
			if sub.State() != subscription.Scanning {
				delete(w.active, id)
			}
		}

		if !progressed {
			select {
			case <-w.stop:
				return
			case msg := <-w.mailbox:
				w.handle(msg)
			case <-time.After(w.sleep):
			}
		}
	}
}

func (w *worker) drainMailbox() {
	for {
		select {
		case msg := <-w.mailbox:
			w.handle(msg)
		default:
			return
		}
	}
}

func (w *worker) handle(msg ctrlMsg) {
	switch msg.kind {
	case ctrlAdd:
		w.active[msg.sub.ID] = msg.sub
	case ctrlRemove:
		if sub, ok := w.active[msg.id]; ok {
			sub.Close(nil)
			delete(w.active, msg.id)
		}
	}
}

func (w *worker) closeAll() {
	for id, sub := range w.active {
		sub.Close(nil)
		delete(w.active, id)
	}
	if w.reader != nil {
		w.reader.Close()
	}
}

// advance makes progress on one subscription: (re)point the worker's
// shared reader at this subscription's own high-water mark, deliver
// up to batchSize matching events, and resolve EOF into either
// end-of-stream or a handoff to the publisher. It reports whether it
// delivered or consumed any input this cycle (used to decide whether
// the worker should sleep).
//
// The reader is shared across every subscription this worker owns,
// so each call reseeks it to sub's own position; Refresh picks up any
// growth of the data file that happened since the reader was opened,
// so a subscription added long after another doesn't inherit a stale,
// too-short snapshot from whichever subscription last opened it.
func (w *worker) advance(sub *subscription.Subscription) (progressed bool) {
	if w.reader == nil {
		r, err := w.log.OpenIndexedLineReader()
		if err != nil {
			sub.Close(err)
			return false
		}
		w.reader = r
	} else if err := w.reader.Refresh(); err != nil {
		sub.Close(err)
		return false
	}
	if err := w.reader.SeekLine(sub.HighWater + 1); err != nil {
		sub.Close(err)
		return false
	}

	for i := 0; i < batchSize; i++ {
		if sub.RemainingZero() {
			sub.Close(nil)
			return true
		}
		_, line, err := w.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.resolveEOF(sub)
				return progressed
			}
			sub.Close(err)
			return progressed
		}
		progressed = true
		ev, perr := event.DecodeLine(line)
		if perr != nil {
			sub.Close(perr)
			return progressed
		}
		// HighWater now also serves as this worker's resume cursor
		// for sub, since the underlying reader is shared and gets
		// reseeked on every subscription's turn: it must advance past
		// every scanned line, not just delivered ones, or a
		// tag-filtered subscription would reread the same
		// non-matching lines forever.
		sub.HighWater = ev.ID
		if !sub.Matches(ev) {
			continue
		}
		if !sub.Send(ev, w.stop) {
			return progressed
		}
		sub.Decrement()
	}
	return progressed
}

// resolveEOF handles a scanner that has exhausted its snapshot: it
// either closes a bounded, non-live subscription or hands a live one
// to the publisher, using the id of the last line it scanned,
// delivered or filtered out (or its normalized offset minus one if it
// scanned nothing), as the publisher's handoff floor.
func (w *worker) resolveEOF(sub *subscription.Subscription) {
	if !sub.Query.LiveStream {
		sub.Close(nil)
		return
	}
	w.handoff(sub)
}
