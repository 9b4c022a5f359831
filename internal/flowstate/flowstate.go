// Package flowstate carries per-exchange metadata between the request-phase
// and response-phase transform callbacks of one intercepted exchange.
//
// DESIGN: The store is the only shared mutable structure in the pipeline.
// Every exchange touches exactly one key (its own identifier), written once
// during the request transform and consumed once during the response
// transform, so correctness needs per-key atomicity only — sync.Map gives
// that without a global lock. Take uses LoadAndDelete so concurrent readers
// of the same key can never both observe the entry.
//
// Entries whose response phase never arrives (client disconnect, upstream
// reset before the response callback fires) would leak, so a background
// sweep evicts anything older than the TTL. On the happy path entries live
// for milliseconds and the sweep never sees them.
package flowstate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Metadata is the per-exchange record carried across the two transform
// phases. Concrete types are defined by the flows that use them; FlowKind
// lets the response side verify it is consuming state written by its own
// request side.
type Metadata interface {
	FlowKind() string
}

type entry struct {
	meta     Metadata
	storedAt time.Time
}

// Store is a concurrency-safe mapping from exchange identifier to Metadata.
type Store struct {
	entries   sync.Map // int64 -> *entry
	ttl       time.Duration
	swept     atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a Store. When ttl is positive a background goroutine
// sweeps expired entries every sweepInterval; pass zero to disable the sweep
// entirely (entries then live until taken).
func NewStore(ttl, sweepInterval time.Duration) *Store {
	s := &Store{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	if ttl > 0 && sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Put records meta for the given exchange identifier, replacing any previous
// entry. The pipeline writes at most once per exchange, so replacement only
// happens if the interception layer reuses an identifier after the prior
// exchange ended.
func (s *Store) Put(id int64, meta Metadata) {
	s.entries.Store(id, &entry{meta: meta, storedAt: time.Now()})
}

// Take removes and returns the metadata for an exchange. At most one caller
// observes a given entry; all later (or concurrent losing) calls report
// false.
func (s *Store) Take(id int64) (Metadata, bool) {
	v, ok := s.entries.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*entry).meta, true
}

// Len counts live entries. Intended for stats and tests, not coordination.
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Swept reports how many orphaned entries the background sweep has evicted.
func (s *Store) Swept() int64 {
	return s.swept.Load()
}

// Close stops the background sweep. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.sweep(time.Now()); n > 0 {
				log.Debug().Int("count", n).Msg("Swept orphaned flow state")
			}
		}
	}
}

// sweep evicts entries older than the TTL. CompareAndDelete ensures a sweep
// racing a fresh Put for a reused identifier never evicts the new entry.
func (s *Store) sweep(now time.Time) int {
	evicted := 0
	s.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		if now.Sub(e.storedAt) > s.ttl {
			if s.entries.CompareAndDelete(key, value) {
				evicted++
			}
		}
		return true
	})
	if evicted > 0 {
		s.swept.Add(int64(evicted))
	}
	return evicted
}
