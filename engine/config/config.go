package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the engine configuration, loaded from a TOML file. Zero values
// are replaced with defaults so a partial file is fine.
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Assets      AssetsConfig      `toml:"assets"`
	Upload      UploadConfig      `toml:"upload"`
}

type ApplicationConfig struct {
	Name        string `toml:"name"`
	StartPosX   uint32 `toml:"start_pos_x"`
	StartPosY   uint32 `toml:"start_pos_y"`
	StartWidth  uint32 `toml:"start_width"`
	StartHeight uint32 `toml:"start_height"`
	Headless    bool   `toml:"headless"`
}

type AssetsConfig struct {
	// BaseDir is the root of the on-disk asset tree (meshes/, textures/).
	BaseDir string `toml:"base_dir"`
}

type UploadConfig struct {
	// WorkerCount is the number of decoder workers pulling requests in parallel.
	WorkerCount int `toml:"worker_count"`
	// QueueDepth bounds the decoded-buffer handoff channel between the decoder
	// workers and the transfer scheduler.
	QueueDepth int `toml:"queue_depth"`
	// StagingPoolSize is the size in bytes of the host-visible staging pool.
	StagingPoolSize uint64 `toml:"staging_pool_size"`
	// TransferInFlightLimit is the number of copies allowed on the dedicated
	// transfer queue before submissions spill to the graphics queue.
	TransferInFlightLimit int `toml:"transfer_in_flight_limit"`
	// DebugChecks turns contract violations (double staging release) into
	// panics instead of logged no-ops.
	DebugChecks bool `toml:"debug_checks"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:        "Parallax",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Assets: AssetsConfig{
			BaseDir: "assets",
		},
		Upload: UploadConfig{
			WorkerCount:           4,
			QueueDepth:            64,
			StagingPoolSize:       64 * 1024 * 1024,
			TransferInFlightLimit: 4,
		},
	}
}

// Load reads a TOML config file and fills in defaults for missing fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Upload.WorkerCount <= 0 {
		c.Upload.WorkerCount = def.Upload.WorkerCount
	}
	if c.Upload.QueueDepth <= 0 {
		c.Upload.QueueDepth = def.Upload.QueueDepth
	}
	if c.Upload.StagingPoolSize == 0 {
		c.Upload.StagingPoolSize = def.Upload.StagingPoolSize
	}
	if c.Upload.TransferInFlightLimit <= 0 {
		c.Upload.TransferInFlightLimit = def.Upload.TransferInFlightLimit
	}
	if c.Assets.BaseDir == "" {
		c.Assets.BaseDir = def.Assets.BaseDir
	}
	if c.Application.Name == "" {
		c.Application.Name = def.Application.Name
	}
	if c.Application.StartWidth == 0 {
		c.Application.StartWidth = def.Application.StartWidth
	}
	if c.Application.StartHeight == 0 {
		c.Application.StartHeight = def.Application.StartHeight
	}
}
