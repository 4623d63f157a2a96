package cache

import "go.uber.org/zap"

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// WithWorldScale sets world units per grid cell, used for chunk offsets.
func WithWorldScale(scale float64) Option {
	return func(c *Cache) {
		if scale > 0 {
			c.worldScale = scale
		}
	}
}

// WithMeshScale sets the mesh scale passed to the sink.
func WithMeshScale(scale float64) Option {
	return func(c *Cache) {
		if scale > 0 {
			c.meshScale = scale
		}
	}
}

// WithObserver registers an observer for residency changes.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithWorkers lets Reconcile generate up to n heightmaps in parallel before
// inserting them one at a time.
func WithWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.workers = n
		}
	}
}
