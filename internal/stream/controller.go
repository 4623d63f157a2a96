// Package stream keeps the chunks around an observer resident.
package stream

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/chunkstream/internal/cache"
	"github.com/Faultbox/chunkstream/internal/chunk"
	"github.com/Faultbox/chunkstream/pkg/math"
)

var (
	// ErrInvalidRadius is returned for a negative streaming radius.
	ErrInvalidRadius = errors.New("stream: radius must not be negative")

	// ErrInvalidPosition is returned for a NaN or infinite observer position.
	ErrInvalidPosition = errors.New("stream: observer position is not finite")
)

// Controller reconciles a cache against the square of chunks around an
// observer. Callers decide how often to call Update.
type Controller struct {
	cache      *cache.Cache
	chunkSize  int
	worldScale float64
	clamp      bool
	log        *zap.Logger

	center  chunk.Coord
	updates int
	warned  bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClampToCapacity keeps only the nearest chunks when the streaming
// square holds more chunks than the cache can. Without it the whole square is
// requested and the cache's load-order eviction decides what stays.
func WithClampToCapacity(on bool) Option {
	return func(c *Controller) { c.clamp = on }
}

// New creates a controller for chunks of chunkSize cells, each cell
// worldScale world units wide.
func New(c *cache.Cache, chunkSize int, worldScale float64, opts ...Option) (*Controller, error) {
	if c == nil {
		return nil, errors.New("stream: nil cache")
	}
	if chunkSize <= 0 || !(worldScale > 0) {
		return nil, fmt.Errorf("stream: invalid chunk span %d x %v", chunkSize, worldScale)
	}
	ctl := &Controller{
		cache:      c,
		chunkSize:  chunkSize,
		worldScale: worldScale,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl, nil
}

// CenterFor returns the chunk containing world position pos.
func (c *Controller) CenterFor(pos math.Vec2) chunk.Coord {
	span := float64(c.chunkSize) * c.worldScale
	return chunk.Coord{X: math.FloorCell(pos.X, span), Y: math.FloorCell(pos.Y, span)}
}

// Update reconciles the cache against every chunk within Chebyshev distance
// radius of the chunk containing pos.
func (c *Controller) Update(pos math.Vec2, radius int) error {
	if !pos.IsFinite() {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, pos)
	}
	center := c.CenterFor(pos)
	desired, err := Desired(center, radius)
	if err != nil {
		return err
	}

	if capacity := c.cache.Capacity(); len(desired) > capacity {
		if !c.warned {
			c.log.Warn("streaming square exceeds cache capacity",
				zap.Int("square", len(desired)),
				zap.Int("capacity", capacity),
				zap.Bool("clamped", c.clamp))
			c.warned = true
		}
		if c.clamp {
			desired = desired[len(desired)-capacity:]
		}
	}

	if center != c.center || c.updates == 0 {
		c.log.Debug("observer moved", zap.Stringer("center", center), zap.Int("radius", radius))
	}
	c.center = center
	c.updates++

	err = c.cache.Reconcile(desired)
	c.log.Debug("streaming update",
		zap.Stringer("center", center),
		zap.Int("resident", c.cache.Len()),
		zap.Error(err))
	return err
}

// Center returns the chunk the observer was in at the last Update.
func (c *Controller) Center() chunk.Coord { return c.center }

// Updates returns the number of Update calls so far.
func (c *Controller) Updates() int { return c.updates }

// Close shuts the cache down, releasing every resident chunk.
func (c *Controller) Close() {
	c.cache.Shutdown()
}

// Desired returns the (2*radius+1)^2 square of coords centred on center,
// farthest first. Loading in this order leaves the centre chunk as the newest
// entry, so it is the last to be evicted.
func Desired(center chunk.Coord, radius int) ([]chunk.Coord, error) {
	if radius < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRadius, radius)
	}

	side := 2*radius + 1
	out := make([]chunk.Coord, 0, side*side)
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			out = append(out, chunk.Coord{X: center.X + dx, Y: center.Y + dy})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].Chebyshev(center), out[j].Chebyshev(center)
		if ci != cj {
			return ci > cj
		}
		ei, ej := dist2(out[i], center), dist2(out[j], center)
		if ei != ej {
			return ei > ej
		}
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out, nil
}

func dist2(a, b chunk.Coord) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}
