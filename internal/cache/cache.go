// Package cache keeps a bounded set of resident terrain chunks, evicting the
// oldest-loaded chunk first when room is needed.
//
// A Cache is not safe for concurrent use. Load, Evict and Reconcile run to
// completion before returning; the only parallel work is optional heightmap
// pre-generation inside Reconcile, which never touches cache state.
package cache

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/chunkstream/internal/chunk"
	"github.com/Faultbox/chunkstream/internal/sink"
	"github.com/Faultbox/chunkstream/internal/terrain"
	"github.com/Faultbox/chunkstream/pkg/math"
)

var (
	// ErrGeneration is returned by Load when a heightmap cannot be produced.
	ErrGeneration = chunk.ErrGeneration

	// ErrSink is returned when the sink fails to materialize or release.
	ErrSink = sink.ErrSink

	// ErrClosed is returned by Load after Shutdown.
	ErrClosed = errors.New("cache: closed")

	// ErrInvalidCapacity is returned by New for a capacity below one.
	ErrInvalidCapacity = errors.New("cache: capacity must be at least 1")
)

// Observer is told about every residency change.
type Observer interface {
	ChunkLoaded(c *chunk.Chunk)
	ChunkEvicted(coord chunk.Coord, h sink.Handle, err error)
	LoadFailed(coord chunk.Coord, err error)
}

// Stats counts cache activity since creation.
type Stats struct {
	Loads              int // Chunks generated and materialized
	Hits               int // Loads of an already resident chunk
	Evictions          int
	SinkFailures       int
	GenerationFailures int
}

// Cache is the bounded store of resident chunks.
type Cache struct {
	capacity   int
	params     terrain.Params
	sink       sink.Sink
	worldScale float64
	meshScale  float64
	workers    int
	log        *zap.Logger
	observer   Observer

	chunks map[chunk.Coord]*chunk.Chunk
	order  []chunk.Coord // load order, oldest first
	stats  Stats
	closed bool
}

// New creates an empty cache holding at most capacity chunks generated with
// params and materialized through sk.
func New(capacity int, params terrain.Params, sk sink.Sink, opts ...Option) (*Cache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sk == nil {
		return nil, errors.New("cache: nil sink")
	}

	c := &Cache{
		capacity:   capacity,
		params:     params,
		sink:       sk,
		worldScale: 1.0,
		meshScale:  1.0,
		workers:    1,
		log:        zap.NewNop(),
		chunks:     make(map[chunk.Coord]*chunk.Chunk, capacity),
		order:      make([]chunk.Coord, 0, capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Load makes coord resident and returns its sink handle. A resident coord is
// returned as is, without regenerating it or changing its place in the
// eviction order.
//
// The new chunk is generated and materialized before anything is evicted, so
// a failed Load leaves the resident set and eviction order untouched. While
// the cache is full the sink briefly holds one chunk beyond capacity; the
// cache itself never does.
func (c *Cache) Load(coord chunk.Coord) (sink.Handle, error) {
	return c.load(coord, nil)
}

func (c *Cache) load(coord chunk.Coord, hm *terrain.Heightmap) (sink.Handle, error) {
	if c.closed {
		return "", ErrClosed
	}
	if ch, ok := c.chunks[coord]; ok {
		c.stats.Hits++
		return ch.Handle(), nil
	}

	var (
		ch  *chunk.Chunk
		err error
	)
	if hm != nil {
		ch, err = chunk.FromHeightmap(coord, c.params, hm)
	} else {
		ch, err = chunk.New(coord, c.params)
	}
	if err != nil {
		c.stats.GenerationFailures++
		c.failed(coord, err)
		return "", err
	}

	h, err := c.sink.Materialize(ch.Heightmap, ch.WorldOffset(c.worldScale), c.meshScale)
	if err == nil && h == "" {
		err = errors.New("empty handle")
	}
	if err != nil {
		c.stats.SinkFailures++
		err = fmt.Errorf("load %s: %w", coord, sink.Fail(sink.OpMaterialize, "", err))
		c.failed(coord, err)
		return "", err
	}

	c.makeRoom()

	ch.Attach(h)
	c.chunks[coord] = ch
	c.order = append(c.order, coord)
	c.stats.Loads++

	c.log.Debug("chunk loaded",
		zap.Stringer("coord", coord),
		zap.String("handle", string(h)),
		zap.Int("resident", len(c.chunks)))
	if c.observer != nil {
		c.observer.ChunkLoaded(ch)
	}
	return h, nil
}

// makeRoom evicts oldest-first until one more chunk fits. Release failures
// are logged and reported to the observer; the slot is freed regardless.
func (c *Cache) makeRoom() {
	for len(c.chunks) >= c.capacity && len(c.order) > 0 {
		if err := c.Evict(c.order[0]); err != nil {
			c.log.Warn("evicting to make room", zap.Error(err))
		}
	}
}

// Evict releases coord. It is a no-op for a coord that is not resident. The
// chunk is dropped from the cache even when the sink fails to release it; the
// failure is returned.
func (c *Cache) Evict(coord chunk.Coord) error {
	ch, ok := c.chunks[coord]
	if !ok {
		return nil
	}

	h := ch.Detach()
	var err error
	if h != "" {
		if derr := c.sink.Dematerialize(h); derr != nil {
			c.stats.SinkFailures++
			err = fmt.Errorf("evict %s: %w", coord, sink.Fail(sink.OpDematerialize, h, derr))
		}
	}

	delete(c.chunks, coord)
	if i := slices.Index(c.order, coord); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	c.stats.Evictions++

	if err != nil {
		c.log.Warn("chunk release failed", zap.Stringer("coord", coord), zap.Error(err))
	} else {
		c.log.Debug("chunk evicted", zap.Stringer("coord", coord), zap.String("handle", string(h)))
	}
	if c.observer != nil {
		c.observer.ChunkEvicted(coord, h, err)
	}
	return err
}

// Reconcile makes the resident set follow desired, which is treated as a
// set. Every resident coord not in desired is evicted first, oldest-first;
// then every missing coord is loaded in the order given. All failures are
// collected and returned together; one failure does not stop the pass.
func (c *Cache) Reconcile(desired []chunk.Coord) error {
	if c.closed {
		return ErrClosed
	}

	want := make(map[chunk.Coord]struct{}, len(desired))
	uniq := make([]chunk.Coord, 0, len(desired))
	for _, coord := range desired {
		if _, dup := want[coord]; dup {
			continue
		}
		want[coord] = struct{}{}
		uniq = append(uniq, coord)
	}

	var errs error
	for _, coord := range slices.Clone(c.order) {
		if _, ok := want[coord]; !ok {
			errs = multierr.Append(errs, c.Evict(coord))
		}
	}

	missing := make([]chunk.Coord, 0, len(uniq))
	for _, coord := range uniq {
		if _, ok := c.chunks[coord]; !ok {
			missing = append(missing, coord)
		}
	}

	pre := c.pregenerate(missing)
	for i, coord := range missing {
		var hm *terrain.Heightmap
		if pre != nil {
			hm = pre[i]
		}
		if _, err := c.load(coord, hm); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Shutdown releases every resident chunk, oldest first, and closes the cache.
// Release failures are logged and otherwise ignored; shutdown always
// completes. Calling it again does nothing.
func (c *Cache) Shutdown() {
	if c.closed {
		return
	}
	c.closed = true

	n := len(c.order)
	failed := 0
	for len(c.order) > 0 {
		if err := c.Evict(c.order[0]); err != nil {
			failed++
		}
	}
	c.log.Info("cache shut down", zap.Int("released", n-failed), zap.Int("failed", failed))
}

// Len returns the number of resident chunks.
func (c *Cache) Len() int { return len(c.chunks) }

// Capacity returns the maximum number of resident chunks.
func (c *Cache) Capacity() int { return c.capacity }

// Params returns the generation parameters.
func (c *Cache) Params() terrain.Params { return c.params }

// Closed reports whether Shutdown has run.
func (c *Cache) Closed() bool { return c.closed }

// Contains reports whether coord is resident.
func (c *Cache) Contains(coord chunk.Coord) bool {
	_, ok := c.chunks[coord]
	return ok
}

// Get returns the resident chunk at coord.
func (c *Cache) Get(coord chunk.Coord) (*chunk.Chunk, bool) {
	ch, ok := c.chunks[coord]
	return ch, ok
}

// Order returns the resident coords in load order, oldest first.
func (c *Cache) Order() []chunk.Coord {
	return slices.Clone(c.order)
}

// Resident returns the resident coords sorted by X then Y.
func (c *Cache) Resident() []chunk.Coord {
	out := slices.Clone(c.order)
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

// Stats returns the activity counters.
func (c *Cache) Stats() Stats { return c.stats }

// Surface returns the terrain height under world position pos, or false when
// the chunk covering pos is not resident.
func (c *Cache) Surface(pos math.Vec2) (float32, bool) {
	span := float64(c.params.Size) * c.worldScale
	coord := chunk.Coord{X: math.FloorCell(pos.X, span), Y: math.FloorCell(pos.Y, span)}
	ch, ok := c.chunks[coord]
	if !ok {
		return 0, false
	}
	return ch.SurfaceAt(pos, c.worldScale)
}

func (c *Cache) failed(coord chunk.Coord, err error) {
	c.log.Warn("chunk load failed", zap.Stringer("coord", coord), zap.Error(err))
	if c.observer != nil {
		c.observer.LoadFailed(coord, err)
	}
}
