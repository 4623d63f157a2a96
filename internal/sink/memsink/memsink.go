// Package memsink keeps materialized terrain in memory. It stands in for a
// physics or render backend in tests and in the headless driver.
package memsink

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/xid"

	"github.com/Faultbox/chunkstream/internal/sink"
	"github.com/Faultbox/chunkstream/internal/terrain"
	"github.com/Faultbox/chunkstream/pkg/math"
)

// ErrUnknownHandle is returned when releasing a handle the sink never issued
// or already released.
var ErrUnknownHandle = errors.New("memsink: unknown handle")

// errInjected is the cause reported by failures armed with FailNext.
var errInjected = errors.New("memsink: injected failure")

// Body is one materialized heightfield.
type Body struct {
	Handle    sink.Handle
	Heightmap *terrain.Heightmap
	Offset    math.Vec2
	MeshScale float64
}

// Stats counts sink calls.
type Stats struct {
	Materialized   int
	Dematerialized int
	Failures       int
}

// Sink is an in-memory sink.Sink. It is safe for concurrent use.
type Sink struct {
	mu     sync.Mutex
	bodies map[sink.Handle]Body
	armed  map[sink.Op]int
	stats  Stats
}

var _ sink.Sink = (*Sink)(nil)

// New creates an empty sink.
func New() *Sink {
	return &Sink{
		bodies: make(map[sink.Handle]Body),
		armed:  make(map[sink.Op]int),
	}
}

// Materialize records the heightfield and returns a fresh handle.
func (s *Sink) Materialize(hm *terrain.Heightmap, offset math.Vec2, meshScale float64) (sink.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tripLocked(sink.OpMaterialize) {
		return "", errInjected
	}
	if hm == nil {
		s.stats.Failures++
		return "", errors.New("memsink: nil heightmap")
	}

	h := sink.Handle(xid.New().String())
	s.bodies[h] = Body{Handle: h, Heightmap: hm, Offset: offset, MeshScale: meshScale}
	s.stats.Materialized++
	return h, nil
}

// Dematerialize forgets the body behind h.
func (s *Sink) Dematerialize(h sink.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bodies[h]; !ok {
		s.stats.Failures++
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	// The body is released even when a failure is injected, mirroring a
	// backend that tears geometry down and then reports an error.
	delete(s.bodies, h)
	if s.tripLocked(sink.OpDematerialize) {
		return errInjected
	}
	s.stats.Dematerialized++
	return nil
}

// FailNext makes the next n calls of op fail.
func (s *Sink) FailNext(op sink.Op, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed[op] += n
}

// Body returns the body behind h.
func (s *Sink) Body(h sink.Handle) (Body, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bodies[h]
	return b, ok
}

// Live returns the number of bodies currently materialized.
func (s *Sink) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

// Handles returns the live handles in sorted order.
func (s *Sink) Handles() []sink.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sink.Handle, 0, len(s.bodies))
	for h := range s.bodies {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats returns a snapshot of the call counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sink) tripLocked(op sink.Op) bool {
	if s.armed[op] == 0 {
		return false
	}
	s.armed[op]--
	s.stats.Failures++
	return true
}
