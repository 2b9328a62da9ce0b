package main

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/exardb/exar/collection"
	"github.com/exardb/exar/event"
	"github.com/exardb/exar/exarerr"
	"github.com/exardb/exar/subscription"
	"github.com/exardb/exar/wireproto"
)

// connHandler drives one client connection through the Authenticate
// → Select → command loop.
type connHandler struct {
	srv  *server
	conn net.Conn

	writeMu sync.Mutex
	w       *bufio.Writer

	authenticated bool
	selected      *collection.Collection

	subMu     sync.Mutex
	sub       *subscription.Subscription
	subWG     sync.WaitGroup
}

func (s *server) handleConn(conn net.Conn) {
	h := &connHandler{
		srv:  s,
		conn: conn,
		w:    bufio.NewWriter(conn),
	}
	defer h.close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		h.dispatch(scanner.Text())
	}
}

func (h *connHandler) close() {
	h.subMu.Lock()
	sub := h.sub
	h.subMu.Unlock()
	if sub != nil {
		sub.Close(nil)
	}
	h.subWG.Wait()
	h.conn.Close()
}

func (h *connHandler) writeLine(line string) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	h.w.WriteString(line)
	h.w.WriteByte('\n')
	h.w.Flush()
}

func (h *connHandler) writeError(err error) {
	h.writeLine(wireproto.EncodeError(err))
}

func (h *connHandler) dispatch(line string) {
	cmd, err := wireproto.ParseCommand(line)
	if err != nil {
		h.writeError(err)
		return
	}
	switch cmd.Name {
	case wireproto.Authenticate:
		h.handleAuthenticate(cmd)
	case wireproto.Select:
		h.handleSelect(cmd)
	case wireproto.Publish:
		h.handlePublish(cmd)
	case wireproto.Subscribe:
		h.handleSubscribe(cmd)
	case wireproto.Unsubscribe:
		h.handleUnsubscribe()
	case wireproto.Drop:
		h.handleDrop(cmd)
	}
}

func (h *connHandler) handleAuthenticate(cmd *wireproto.Command) {
	ctx := context.Background()
	if err := h.srv.auth.Authenticate(ctx, cmd.Username, cmd.Password); err != nil {
		h.writeError(err)
		return
	}
	h.authenticated = true
	h.writeLine(wireproto.EncodeAuthenticated())
}

func (h *connHandler) requireAuth() bool {
	if h.authenticated {
		return true
	}
	h.writeError(exarerr.New(exarerr.AuthenticationError, "Authenticate required"))
	return false
}

func (h *connHandler) handleSelect(cmd *wireproto.Command) {
	if !h.requireAuth() {
		return
	}
	c, err := h.srv.store.Get(cmd.Collection)
	if err != nil {
		h.writeError(err)
		return
	}
	h.selected = c
	h.writeLine(wireproto.EncodeSelected())
}

func (h *connHandler) requireSelected() bool {
	if h.selected != nil {
		return true
	}
	h.writeError(exarerr.New(exarerr.ValidationError, "Select required"))
	return false
}

func (h *connHandler) handlePublish(cmd *wireproto.Command) {
	if !h.requireAuth() || !h.requireSelected() {
		return
	}
	ev := &event.Event{Tags: cmd.Tags, Timestamp: cmd.Timestamp, Data: cmd.Data}
	id, err := h.selected.Publish(ev)
	if err != nil {
		h.writeError(err)
		return
	}
	h.writeLine(wireproto.EncodePublished(id))
}

func (h *connHandler) handleSubscribe(cmd *wireproto.Command) {
	if !h.requireAuth() || !h.requireSelected() {
		return
	}
	q := subscription.Query{
		Offset:     cmd.Offset,
		Limit:      cmd.Limit,
		LiveStream: cmd.LiveStream,
	}
	if cmd.HasTag {
		q.Tag = cmd.Tag
	}
	sub, err := h.selected.Subscribe(q)
	if err != nil {
		h.writeError(err)
		return
	}
	h.subMu.Lock()
	h.sub = sub
	h.subMu.Unlock()

	h.writeLine(wireproto.EncodeSubscribed())
	h.subWG.Add(1)
	go h.streamSubscription(sub)
}

// streamSubscription drains sub's Events channel and writes each one
// to the connection, concurrently with the read loop that may still
// see an Unsubscribe command for this same subscription.
func (h *connHandler) streamSubscription(sub *subscription.Subscription) {
	defer h.subWG.Done()
	for ev := range sub.Events() {
		h.writeLine(wireproto.EncodeEvent(ev))
	}
	if err := sub.Err(); err != nil {
		h.writeError(err)
	} else {
		h.writeLine(wireproto.EncodeEndOfEventStream())
	}
	h.subMu.Lock()
	if h.sub == sub {
		h.sub = nil
	}
	h.subMu.Unlock()
}

func (h *connHandler) handleUnsubscribe() {
	h.subMu.Lock()
	sub := h.sub
	selected := h.selected
	h.subMu.Unlock()
	if sub == nil || selected == nil {
		return
	}
	selected.Unsubscribe(sub.ID)
}

func (h *connHandler) handleDrop(cmd *wireproto.Command) {
	if !h.requireAuth() {
		return
	}
	if err := h.srv.store.Drop(cmd.Collection); err != nil {
		h.writeError(err)
		return
	}
	h.writeLine(wireproto.EncodeDropped())
}
