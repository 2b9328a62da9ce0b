package scanner

import (
	"math/rand"
	"sync/atomic"

	"github.com/dchest/siphash"

	"github.com/exardb/exar/subscription"
)

// Strategy picks a worker index in [0, n) for a new subscription.
// Routing is advisory: correctness never depends on which worker
// serves a subscription.
type Strategy interface {
	Pick(n int, q subscription.Query) int
}

// RandomStrategy picks a uniformly random worker.
type RandomStrategy struct{}

func (RandomStrategy) Pick(n int, _ subscription.Query) int {
	if n <= 1 {
		return 0
	}
	return rand.Intn(n)
}

// RoundRobinStrategy cycles through workers in order.
type RoundRobinStrategy struct {
	next uint32
}

func (s *RoundRobinStrategy) Pick(n int, _ subscription.Query) int {
	if n <= 1 {
		return 0
	}
	v := atomic.AddUint32(&s.next, 1) - 1
	return int(v % uint32(n))
}

// HashTagStrategy routes by a keyed hash of the subscription's tag
// filter, so that repeated subscriptions to the same tag tend to land
// on the same worker and share its page cache footprint of recently
// scanned offsets. Subscriptions with no tag filter fall back to
// round-robin, since there is nothing to hash. It groups tagged
// traffic onto a consistent worker while still spreading untagged
// traffic evenly.
type HashTagStrategy struct {
	k0, k1 uint64
	fallback RoundRobinStrategy
}

// NewHashTagStrategy builds a strategy keyed by k0/k1. The key need
// not be secret; it only needs to be stable for the process lifetime
// so that the same tag always maps to the same worker.
func NewHashTagStrategy(k0, k1 uint64) *HashTagStrategy {
	return &HashTagStrategy{k0: k0, k1: k1}
}

func (s *HashTagStrategy) Pick(n int, q subscription.Query) int {
	if n <= 1 {
		return 0
	}
	if q.Tag == "" {
		return s.fallback.Pick(n, q)
	}
	h := siphash.Hash(s.k0, s.k1, []byte(q.Tag))
	return int(h % uint64(n))
}
