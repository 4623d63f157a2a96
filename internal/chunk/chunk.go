// Package chunk defines the terrain tile streamed in and out of the world.
package chunk

import (
	"errors"
	"fmt"

	"github.com/Faultbox/chunkstream/internal/sink"
	"github.com/Faultbox/chunkstream/internal/terrain"
	"github.com/Faultbox/chunkstream/pkg/math"
)

// ErrGeneration marks a chunk whose heightmap could not be produced.
var ErrGeneration = errors.New("chunk generation failed")

// Coord is a chunk's position on the grid.
type Coord struct {
	X, Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Chebyshev returns the chessboard distance to other.
func (c Coord) Chebyshev(other Coord) int {
	return math.Chebyshev(c.X, c.Y, other.X, other.Y)
}

// Seed returns the generation seed for c.
func (c Coord) Seed() uint32 {
	return terrain.SeedFor(c.X, c.Y)
}

// Chunk is a generated tile. Its heightmap never changes after New; only the
// sink handle is attached and detached over its life.
type Chunk struct {
	Coord     Coord
	Size      int
	Scale     float64
	Heightmap *terrain.Heightmap

	handle sink.Handle
}

// New generates the chunk at c from the coordinate-derived seed.
func New(c Coord, p terrain.Params) (*Chunk, error) {
	hm, err := terrain.Generate(p, c.Seed())
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrGeneration, c, err)
	}
	return FromHeightmap(c, p, hm)
}

// FromHeightmap wraps a heightmap generated elsewhere, for example on a
// worker goroutine. hm must satisfy the heightmap range postcondition.
func FromHeightmap(c Coord, p terrain.Params, hm *terrain.Heightmap) (*Chunk, error) {
	if err := hm.Validate(); err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrGeneration, c, err)
	}
	return &Chunk{
		Coord:     c,
		Size:      p.Size,
		Scale:     p.Scale,
		Heightmap: hm,
	}, nil
}

// WorldOffset returns the world position of the chunk's origin corner:
// Coord * Size * worldScale on each axis.
func (c *Chunk) WorldOffset(worldScale float64) math.Vec2 {
	span := float64(c.Size) * worldScale
	return math.Vec2{X: float64(c.Coord.X) * span, Y: float64(c.Coord.Y) * span}
}

// Attach records the handle the sink returned for this chunk.
func (c *Chunk) Attach(h sink.Handle) {
	c.handle = h
}

// Detach clears and returns the sink handle.
func (c *Chunk) Detach() sink.Handle {
	h := c.handle
	c.handle = ""
	return h
}

// Handle returns the current sink handle, empty when not materialized.
func (c *Chunk) Handle() sink.Handle {
	return c.handle
}

// Materialized reports whether a sink handle is attached.
func (c *Chunk) Materialized() bool {
	return c.handle != ""
}

// SurfaceAt returns the terrain height under world position pos, or false
// when pos lies outside the chunk.
func (c *Chunk) SurfaceAt(pos math.Vec2, worldScale float64) (float32, bool) {
	origin := c.WorldOffset(worldScale)
	span := float64(c.Size) * worldScale
	local := pos.Sub(origin)
	if local.X < 0 || local.Y < 0 || local.X >= span || local.Y >= span {
		return 0, false
	}
	return c.Heightmap.HeightAt(local.X/worldScale, local.Y/worldScale), true
}
