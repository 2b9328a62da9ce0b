// Package store is the top-level database multiplexer: the map of
// live collections, opened lazily and kept alive until Drop.
package store

import (
	"sort"
	"sync"

	"github.com/exardb/exar/collection"
	"github.com/exardb/exar/config"
)

// Store owns every open Collection for this server process.
type Store struct {
	cfg  *config.Config
	logf func(string, ...interface{})

	mu          sync.RWMutex
	collections map[string]*collection.Collection
}

// New builds a Store over cfg. No collections are opened until
// they're first referenced.
func New(cfg *config.Config, logf func(string, ...interface{})) *Store {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Store{
		cfg:         cfg,
		logf:        logf,
		collections: make(map[string]*collection.Collection),
	}
}

// Get returns the named collection, opening it with its configured
// (or default) options on first reference.
func (s *Store) Get(name string) (*collection.Collection, error) {
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	cc := s.cfg.ForCollection(name)
	c, err := collection.Open(name, collection.Options{
		Directory:        s.cfg.DataPath,
		IndexGranularity: cc.IndexGranularity,
		ScannerCount:     cc.ScannersCount,
		ScannerSleep:     cc.ScannersSleep,
		PublisherBuffer:  cc.PublisherBufferSize,
		Routing:          cc.RoutingStrategy(),
		Logf:             s.logf,
	})
	if err != nil {
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

// Drop stops and removes the named collection, if it is open. A
// no-op if it was never referenced.
func (s *Store) Drop(name string) error {
	s.mu.Lock()
	c, ok := s.collections[name]
	if ok {
		delete(s.collections, name)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Drop()
}

// Names returns the sorted names of every currently open collection,
// used by the admin HTTP surface's /collections endpoint.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
