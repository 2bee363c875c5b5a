package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "RENDERTREE_CONFIG"

type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Frame   FrameConfig   `toml:"frame"`
	Tree    TreeConfig    `toml:"tree"`
	Scene   SceneConfig   `toml:"scene"`
	Render  RenderConfig  `toml:"render"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type FrameConfig struct {
	TickRate  time.Duration `toml:"tick_rate"`
	MaxFrames uint64        `toml:"max_frames"` // 0 = run until signalled
}

type TreeConfig struct {
	Margin         float32 `toml:"margin"` // leaf fattening, world units
	IncludeOffGrid bool    `toml:"include_off_grid"`
	Capacity       int     `toml:"capacity"` // records per tree to preallocate
}

type SceneConfig struct {
	Path       string `toml:"path"`
	ScriptsDir string `toml:"scripts_dir"`
}

type RenderConfig struct {
	ViewportHalfWidth  float32 `toml:"viewport_half_width"`
	ViewportHalfHeight float32 `toml:"viewport_half_height"`
}

// Path returns the config file to load: $RENDERTREE_CONFIG if set, else def.
func Path(def string) string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return def
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config { return defaults() }

func (c *Config) validate() error {
	if c.Frame.TickRate <= 0 {
		return fmt.Errorf("frame.tick_rate must be positive, got %s", c.Frame.TickRate)
	}
	if c.Tree.Margin < 0 {
		return fmt.Errorf("tree.margin must not be negative, got %g", c.Tree.Margin)
	}
	if c.Tree.Capacity < 0 {
		return fmt.Errorf("tree.capacity must not be negative, got %d", c.Tree.Capacity)
	}
	if c.Render.ViewportHalfWidth < 0 || c.Render.ViewportHalfHeight < 0 {
		return fmt.Errorf("render viewport half size must not be negative")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Frame: FrameConfig{
			TickRate:  16 * time.Millisecond,
			MaxFrames: 0,
		},
		Tree: TreeConfig{
			Margin:         0.1,
			IncludeOffGrid: true,
			Capacity:       64,
		},
		Scene: SceneConfig{
			Path:       "data/yaml/scene.yaml",
			ScriptsDir: "scripts",
		},
		Render: RenderConfig{
			ViewportHalfWidth:  16,
			ViewportHalfHeight: 9,
		},
	}
}
