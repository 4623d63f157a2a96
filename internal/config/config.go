// Package config handles streamer configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Faultbox/chunkstream/internal/terrain"
)

// Sink kinds.
const (
	SinkMemory = "memory"
	SinkFile   = "file"
)

// Config holds all streamer settings.
type Config struct {
	Terrain   TerrainConfig   `yaml:"terrain"`
	Streaming StreamingConfig `yaml:"streaming"`
	Sink      SinkConfig      `yaml:"sink"`
	Journal   JournalConfig   `yaml:"journal"`
	Driver    DriverConfig    `yaml:"driver"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TerrainConfig holds chunk geometry and noise settings.
type TerrainConfig struct {
	ChunkSize   int     `yaml:"chunk_size"`  // Grid side length per chunk
	WorldScale  float64 `yaml:"world_scale"` // World units per grid cell
	NoiseScale  float64 `yaml:"noise_scale"` // Spatial frequency divisor
	Octaves     int     `yaml:"octaves"`
	Persistence float64 `yaml:"persistence"`
	Lacunarity  float64 `yaml:"lacunarity"`
	MaxHeight   float32 `yaml:"max_height"`
}

// StreamingConfig holds cache and update cadence settings.
type StreamingConfig struct {
	MaxResidentChunks int           `yaml:"max_resident_chunks"`
	Radius            int           `yaml:"streaming_radius"`
	UpdateEverySteps  int           `yaml:"update_every_steps"`
	UpdateInterval    time.Duration `yaml:"update_interval"`
	StepRateHz        int           `yaml:"step_rate_hz"`
	ClampToCapacity   bool          `yaml:"clamp_to_capacity"`
	Workers           int           `yaml:"workers"`
}

// SinkConfig selects where materialized terrain goes.
type SinkConfig struct {
	Kind      string  `yaml:"kind"` // memory or file
	Dir       string  `yaml:"dir"`  // Output directory for the file sink
	MeshScale float64 `yaml:"mesh_scale"`
}

// JournalConfig holds the event journal settings. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// DriverConfig controls the headless observer walk.
type DriverConfig struct {
	Steps    int     `yaml:"steps"`    // 0 runs until interrupted
	Speed    float64 `yaml:"speed"`    // World units per step
	Realtime bool    `yaml:"realtime"` // Sleep one step period per step
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			ChunkSize:   32,
			WorldScale:  1.0,
			NoiseScale:  10.0,
			Octaves:     4,
			Persistence: 0.5,
			Lacunarity:  2.0,
			MaxHeight:   1.0,
		},
		Streaming: StreamingConfig{
			MaxResidentChunks: 4,
			Radius:            1,
			UpdateEverySteps:  480,
			UpdateInterval:    2 * time.Second,
			StepRateHz:        240,
			ClampToCapacity:   false,
			Workers:           1,
		},
		Sink: SinkConfig{
			Kind:      SinkMemory,
			MeshScale: 0.8,
		},
		Driver: DriverConfig{
			Steps:    0,
			Speed:    0.05,
			Realtime: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// TerrainParams returns the heightmap generation parameters.
func (c *Config) TerrainParams() terrain.Params {
	return terrain.Params{
		Size:        c.Terrain.ChunkSize,
		Scale:       c.Terrain.NoiseScale,
		Octaves:     c.Terrain.Octaves,
		Persistence: c.Terrain.Persistence,
		Lacunarity:  c.Terrain.Lacunarity,
		MaxHeight:   c.Terrain.MaxHeight,
	}
}

// StepPeriod returns the duration of one simulation step.
func (c *Config) StepPeriod() time.Duration {
	if c.Streaming.StepRateHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Streaming.StepRateHz)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if err := c.TerrainParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if !(c.Terrain.WorldScale > 0) {
		errs = append(errs, fmt.Errorf("terrain.world_scale must be positive, got %v", c.Terrain.WorldScale))
	}
	if c.Streaming.MaxResidentChunks < 1 {
		errs = append(errs, fmt.Errorf("streaming.max_resident_chunks must be at least 1, got %d", c.Streaming.MaxResidentChunks))
	}
	if c.Streaming.Radius < 0 {
		errs = append(errs, fmt.Errorf("streaming.streaming_radius must not be negative, got %d", c.Streaming.Radius))
	}
	if c.Streaming.Workers < 1 {
		errs = append(errs, fmt.Errorf("streaming.workers must be at least 1, got %d", c.Streaming.Workers))
	}
	if c.Streaming.StepRateHz < 0 {
		errs = append(errs, fmt.Errorf("streaming.step_rate_hz must not be negative, got %d", c.Streaming.StepRateHz))
	}
	switch c.Sink.Kind {
	case SinkMemory:
	case SinkFile:
		if c.Sink.Dir == "" {
			errs = append(errs, errors.New("sink.dir is required for the file sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("sink.kind %q is not one of memory, file", c.Sink.Kind))
	}
	if !(c.Sink.MeshScale > 0) {
		errs = append(errs, fmt.Errorf("sink.mesh_scale must be positive, got %v", c.Sink.MeshScale))
	}
	if c.Driver.Steps < 0 {
		errs = append(errs, fmt.Errorf("driver.steps must not be negative, got %d", c.Driver.Steps))
	}
	return errors.Join(errs...)
}

// SquareSize returns the number of chunks the streaming square covers.
func (c *Config) SquareSize() int {
	side := 2*c.Streaming.Radius + 1
	return side * side
}
