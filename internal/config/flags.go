package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagPreset    = flag.String("preset", "", "LOD preset (default, mobile)")
	flagMaxVerts  = flag.Int("max-verts", 0, "Maximum vertices per meshlet")
	flagMaxTris   = flag.Int("max-tris", 0, "Maximum triangles per meshlet")
	flagLODLevels = flag.Int("lod-levels", 0, "Meshlet hierarchy levels")
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
	if *flagPreset != "" {
		cfg.LOD.Preset = *flagPreset
		cfg.LOD.Levels = nil
	}
	if *flagMaxVerts > 0 {
		cfg.Meshlet.MaxVertices = *flagMaxVerts
	}
	if *flagMaxTris > 0 {
		cfg.Meshlet.MaxTriangles = *flagMaxTris
	}
	if *flagLODLevels > 0 {
		cfg.Meshlet.LODLevels = *flagLODLevels
	}
}
