package elog

import "sync/atomic"

// indexSlot holds the current Index snapshot behind an atomic
// pointer. Readers Load a snapshot once at open time and never see
// a half-updated Index, since updates always build a brand new
// Index and Store it rather than mutating one in place.
type indexSlot struct {
	v atomic.Value // holds *Index
}

func newIndexSlot(idx *Index) *indexSlot {
	s := &indexSlot{}
	s.v.Store(idx)
	return s
}

func (s *indexSlot) load() *Index {
	v := s.v.Load()
	if v == nil {
		return nil
	}
	return v.(*Index)
}

func (s *indexSlot) store(idx *Index) {
	s.v.Store(idx)
}
