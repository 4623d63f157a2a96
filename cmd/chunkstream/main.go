// Package main runs a headless terrain streaming session: a synthetic
// observer walks the world while the streamer keeps the chunks around it
// resident.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	"github.com/Faultbox/chunkstream/internal/cache"
	"github.com/Faultbox/chunkstream/internal/config"
	"github.com/Faultbox/chunkstream/internal/journal"
	"github.com/Faultbox/chunkstream/internal/logger"
	"github.com/Faultbox/chunkstream/internal/sink"
	"github.com/Faultbox/chunkstream/internal/sink/filesink"
	"github.com/Faultbox/chunkstream/internal/sink/memsink"
	"github.com/Faultbox/chunkstream/internal/stream"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	atexit.Register(logger.Sync)

	logger.Info("=== chunkstream ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("session failed", zap.Error(err))
		atexit.Exit(1)
	}

	logger.Info("session closed normally")
	atexit.Exit(0)
}

// session holds everything the streamer owns so shutdown can release it in
// order.
type session struct {
	sink    sink.Sink
	files   *filesink.Sink
	journal *journal.Journal
	cache   *cache.Cache
	ctl     *stream.Controller
}

func open(cfg *config.Config) (*session, error) {
	s := &session{}

	switch cfg.Sink.Kind {
	case config.SinkFile:
		fs, err := filesink.New(cfg.Sink.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening file sink: %w", err)
		}
		s.files, s.sink = fs, fs
	default:
		s.sink = memsink.New()
	}

	opts := []cache.Option{
		cache.WithLogger(logger.Named("cache")),
		cache.WithWorldScale(cfg.Terrain.WorldScale),
		cache.WithMeshScale(cfg.Sink.MeshScale),
		cache.WithWorkers(cfg.Streaming.Workers),
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger.Named("journal"))
		if err != nil {
			s.release()
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		s.journal = j
		opts = append(opts, cache.WithObserver(j))
	}

	c, err := cache.New(cfg.Streaming.MaxResidentChunks, cfg.TerrainParams(), s.sink, opts...)
	if err != nil {
		s.release()
		return nil, err
	}
	s.cache = c

	ctl, err := stream.New(c, cfg.Terrain.ChunkSize, cfg.Terrain.WorldScale,
		stream.WithLogger(logger.Named("stream")),
		stream.WithClampToCapacity(cfg.Streaming.ClampToCapacity))
	if err != nil {
		s.release()
		return nil, err
	}
	s.ctl = ctl

	return s, nil
}

// release unloads every resident chunk, then closes the journal and sink.
// Failures are logged and never stop the remaining steps.
func (s *session) release() {
	if s.ctl != nil {
		s.ctl.Close()
	} else if s.cache != nil {
		s.cache.Shutdown()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			logger.Warn("journal close failed", zap.Error(err))
		}
	}
	if s.files != nil {
		if err := s.files.Close(); err != nil {
			logger.Warn("file sink close failed", zap.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	s, err := open(cfg)
	if err != nil {
		return err
	}
	defer s.release()

	w := newWalker(cfg.Driver.Speed)
	cadence := stream.NewCadence(cfg.Streaming.UpdateEverySteps, cfg.Streaming.UpdateInterval)
	report := stream.NewCadence(0, 5*time.Second)

	var tick <-chan time.Time
	if period := cfg.StepPeriod(); cfg.Driver.Realtime && period > 0 {
		t := time.NewTicker(period)
		defer t.Stop()
		tick = t.C
	}

	logger.Info("streaming started",
		zap.Int("radius", cfg.Streaming.Radius),
		zap.Int("square", cfg.SquareSize()),
		zap.Int("capacity", cfg.Streaming.MaxResidentChunks),
		zap.String("sink", cfg.Sink.Kind))

	for step := 0; cfg.Driver.Steps == 0 || step < cfg.Driver.Steps; step++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return s.finish(step)
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return s.finish(step)
		}

		pos := w.Step()
		cadence.Step(func() {
			if err := s.ctl.Update(pos.XY(), cfg.Streaming.Radius); err != nil {
				logger.Warn("streaming update incomplete", zap.Error(err))
			}
			if h, ok := s.cache.Surface(pos.XY()); ok {
				w.Ground(float64(h))
			}
		})
		report.Step(func() {
			logger.Info("observer",
				zap.Int("step", step),
				zap.Float64("x", pos.X),
				zap.Float64("y", pos.Y),
				zap.Float64("z", pos.Z),
				zap.Stringer("center", s.ctl.Center()),
				zap.Int("resident", s.cache.Len()))
		})
	}
	return s.finish(cfg.Driver.Steps)
}

// finish logs the session summary.
func (s *session) finish(steps int) error {
	st := s.cache.Stats()
	fields := []zap.Field{
		zap.Int("steps", steps),
		zap.Int("updates", s.ctl.Updates()),
		zap.Int("loads", st.Loads),
		zap.Int("hits", st.Hits),
		zap.Int("evictions", st.Evictions),
		zap.Int("sink_failures", st.SinkFailures),
		zap.Int("generation_failures", st.GenerationFailures),
	}
	if s.journal != nil {
		s.journal.Flush()
		counts, err := s.journal.Counts()
		if err != nil {
			logger.Warn("journal counts unavailable", zap.Error(err))
		}
		for _, kind := range []journal.Kind{journal.KindLoaded, journal.KindEvicted, journal.KindFailed} {
			fields = append(fields, zap.Int("journal_"+string(kind), counts[kind]))
		}
	}
	logger.Info("session summary", fields...)
	return nil
}
