package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagRadius    = flag.Int("radius", -1, "Streaming radius in chunks")
	flagCapacity  = flag.Int("capacity", 0, "Maximum resident chunks")
	flagChunkSize = flag.Int("chunk-size", 0, "Grid cells per chunk side")
	flagSink      = flag.String("sink", "", "Terrain sink: memory or file")
	flagSinkDir   = flag.String("sink-dir", "", "Output directory for the file sink")
	flagJournal   = flag.String("journal", "", "Path to the SQLite event journal")
	flagSteps     = flag.Int("steps", -1, "Simulation steps to run (0 = until interrupted)")
	flagFast      = flag.Bool("fast", false, "Do not sleep between simulation steps")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagRadius >= 0 {
		cfg.Streaming.Radius = *flagRadius
	}
	if *flagCapacity > 0 {
		cfg.Streaming.MaxResidentChunks = *flagCapacity
	}
	if *flagChunkSize > 0 {
		cfg.Terrain.ChunkSize = *flagChunkSize
	}
	if *flagSink != "" {
		cfg.Sink.Kind = *flagSink
	}
	if *flagSinkDir != "" {
		cfg.Sink.Dir = *flagSinkDir
	}
	if *flagJournal != "" {
		cfg.Journal.Path = *flagJournal
	}
	if *flagSteps >= 0 {
		cfg.Driver.Steps = *flagSteps
	}
	if *flagFast {
		cfg.Driver.Realtime = false
	}
}
