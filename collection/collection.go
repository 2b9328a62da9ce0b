// Package collection implements a named, append-only event log with
// its own scanner pool and publisher, exposing Publish, Subscribe,
// and Drop to callers.
package collection

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exardb/exar/elog"
	"github.com/exardb/exar/event"
	"github.com/exardb/exar/exarerr"
	"github.com/exardb/exar/publish"
	"github.com/exardb/exar/scanner"
	"github.com/exardb/exar/subscription"
)

// Options configures a Collection at open time. Zero-valued fields
// fall back to reasonable defaults applied in Open.
type Options struct {
	Directory        string
	IndexGranularity uint64
	ScannerCount     int
	ScannerSleep     time.Duration
	PublisherBuffer  int
	Routing          scanner.Strategy
	Logf             func(string, ...interface{})
}

// location records which component currently owns a subscription, so
// Unsubscribe can be routed directly instead of broadcast.
type location struct {
	scanning  bool
	workerIdx int
}

// Collection owns one Log, its scanner pool, and its publisher.
type Collection struct {
	name string
	logf func(string, ...interface{})

	log *elog.Log

	writerMu sync.Mutex
	writer   *elog.Writer

	pool      *scanner.Pool
	publisher *publish.Publisher
	subBuffer int

	mu   sync.Mutex
	subs map[uuid.UUID]*location
}

// Open opens or creates the named collection's log and starts its
// scanner pool and publisher.
func Open(name string, opts Options) (*Collection, error) {
	if opts.Logf == nil {
		opts.Logf = func(string, ...interface{}) {}
	}
	if opts.ScannerCount <= 0 {
		opts.ScannerCount = 2
	}
	if opts.ScannerSleep <= 0 {
		opts.ScannerSleep = 10 * time.Millisecond
	}
	if opts.PublisherBuffer <= 0 {
		opts.PublisherBuffer = 10000
	}
	if opts.Routing == nil {
		opts.Routing = scanner.RandomStrategy{}
	}

	l, err := elog.Open(name, opts.Directory, opts.IndexGranularity, opts.Logf)
	if err != nil {
		return nil, err
	}
	w, err := l.OpenLineWriter()
	if err != nil {
		return nil, err
	}

	c := &Collection{
		name: name,
		logf: opts.Logf,
		log:  l,
		writer: w,
		publisher: publish.New(opts.PublisherBuffer, opts.Logf),
		subBuffer: opts.PublisherBuffer,
		subs: make(map[uuid.UUID]*location),
	}
	c.pool = scanner.NewPool(opts.ScannerCount, l, opts.ScannerSleep, opts.Routing, c.onHandoff, opts.Logf)
	return c, nil
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Publish validates ev, assigns it a timestamp if the caller passed
// 0, appends it to the log, and forwards a copy to the publisher.
// It returns the assigned id.
func (c *Collection) Publish(ev *event.Event) (uint64, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = event.Now()
	}

	c.writerMu.Lock()
	id, err := c.writer.Append(ev.EncodeLine())
	c.writerMu.Unlock()
	if err != nil {
		return 0, err
	}
	ev.ID = id

	published := &event.Event{ID: ev.ID, Timestamp: ev.Timestamp, Tags: ev.Tags, Data: ev.Data}
	c.publisher.Publish(published)
	return id, nil
}

// Subscribe validates q, creates a subscription, and routes it to a
// scanner worker. The returned Subscription's Events channel begins
// delivering immediately; the caller is responsible for draining it.
func (c *Collection) Subscribe(q subscription.Query) (*subscription.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	sub := subscription.New(q, c.publisherBufferHint())

	idx := c.pool.Add(sub)
	c.mu.Lock()
	c.subs[sub.ID] = &location{scanning: true, workerIdx: idx}
	c.mu.Unlock()

	go func() {
		<-sub.Done()
		c.mu.Lock()
		delete(c.subs, sub.ID)
		c.mu.Unlock()
	}()
	return sub, nil
}

// publisherBufferHint sizes a subscription's outgoing channel. Using
// the same capacity the publisher was configured with keeps "a slow
// subscriber fills the buffer" meaningful in both the scanning and
// live phases.
func (c *Collection) publisherBufferHint() int {
	return c.subBuffer
}

// Unsubscribe delivers an explicit unsubscribe request to whichever
// component currently owns id. A no-op if the subscription has
// already closed.
//
// The read of loc.scanning and the dispatch to the pool or the
// publisher happen under the same lock held by onHandoff, so an
// Unsubscribe racing a scanning-to-live handoff for the same
// subscription is always resolved deterministically: it either runs
// entirely before the handoff (removing a still-scanning
// subscription from its worker) or entirely after (removing a
// subscription the publisher has already taken ownership of). It can
// never observe the in-between state where the handoff has already
// been decided but not yet delivered to the publisher.
func (c *Collection) Unsubscribe(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.subs[id]
	if !ok {
		return
	}
	if loc.scanning {
		c.pool.Remove(loc.workerIdx, id)
	} else {
		c.publisher.Remove(id)
	}
}

// onHandoff is passed to the scanner pool as its HandoffFunc. It
// flips the subscription's recorded location to Live and transfers it
// to the publisher, holding the subscription-location lock for both
// steps so a concurrent Unsubscribe (see above) can't observe the
// location flipped without the publisher also having received the
// handoff.
func (c *Collection) onHandoff(sub *subscription.Subscription) {
	sub.SetState(subscription.Live)
	c.mu.Lock()
	defer c.mu.Unlock()
	if loc, ok := c.subs[sub.ID]; ok {
		loc.scanning = false
	}
	c.publisher.HandOff(sub)
}

// Drop stops the scanner pool and publisher (closing every
// subscription with an end-of-stream marker) and deletes the
// collection's log files.
func (c *Collection) Drop() error {
	c.pool.Stop()
	c.publisher.Stop()
	c.writerMu.Lock()
	err := c.writer.Close()
	c.writerMu.Unlock()
	if err != nil {
		c.logf("collection: %s: close writer on drop: %s", c.name, err)
	}
	if err := c.log.Remove(); err != nil {
		return exarerr.Wrap(exarerr.IoError, err)
	}
	return nil
}
