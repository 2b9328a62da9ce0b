package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/exardb/exar/internal/auth"
	"github.com/exardb/exar/store"
)

// server owns the TCP protocol listener and its companion admin HTTP
// surface.
type server struct {
	logger *log.Logger
	store  *store.Store
	auth   auth.Provider

	admin http.Server

	listener net.Listener
	connWG   sync.WaitGroup

	// aboutToServe lets tests synchronize with the accept loop
	// actually starting.
	aboutToServe func()
}

// Serve accepts connections on tcpListener, handling each with its
// own goroutine, and serves the admin HTTP surface on adminListener
// if it is non-nil. It blocks until the listener is closed.
func (s *server) Serve(tcpListener, adminListener net.Listener) error {
	s.listener = tcpListener
	if adminListener != nil {
		s.admin.Handler = s.adminHandler()
		go func() {
			if err := s.admin.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Printf("admin http server: %s", err)
			}
		}()
	}
	if s.aboutToServe != nil {
		s.aboutToServe()
	}
	for {
		conn, err := tcpListener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting new connections and waits (up to ctx's
// deadline) for in-flight connections and the admin server to finish.
func (s *server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		s.listener.Close()
	}
	s.admin.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
