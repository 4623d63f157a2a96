package cache

import (
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/chunkstream/internal/chunk"
	"github.com/Faultbox/chunkstream/internal/terrain"
)

// pregenerate computes heightmaps for coords on up to c.workers goroutines.
// The result is index-aligned with coords; a nil entry means generation
// failed and the serial load pass will retry it and report the error. It
// returns nil when parallelism would not help.
func (c *Cache) pregenerate(coords []chunk.Coord) []*terrain.Heightmap {
	if c.workers <= 1 || len(coords) < 2 {
		return nil
	}

	out := make([]*terrain.Heightmap, len(coords))
	params := c.params

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, coord := range coords {
		g.Go(func() error {
			hm, err := terrain.Generate(params, coord.Seed())
			if err != nil {
				return err
			}
			out[i] = hm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Debug("parallel generation incomplete", zap.Error(err))
	}
	return out
}
