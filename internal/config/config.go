// Package config handles configuration loading for the heatview server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Cache    CacheConfig    `yaml:"cache"`
	Render   RenderConfig   `yaml:"render"`
	Minimap  MinimapConfig  `yaml:"minimap"`
	Sessions SessionsConfig `yaml:"sessions"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Title       string   `yaml:"title"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatasetConfig locates one dataset on disk.
type DatasetConfig struct {
	Path    string `yaml:"path"`
	PavPath string `yaml:"pav_path,omitempty"`
}

// DataConfig maps dataset IDs to their directories. Two YAML shapes are
// accepted: a flat single-dataset form (path keys directly under data)
// and a multi-dataset map. The first dataset in YAML order is the
// default.
type DataConfig struct {
	DefaultDataset string
	Datasets       map[string]DatasetConfig

	order []string
}

// UnmarshalYAML handles both config shapes.
func (d *DataConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("config: data section must be a mapping")
	}

	// Legacy flat form: a single unnamed dataset.
	var flat DatasetConfig
	if err := value.Decode(&flat); err == nil && flat.Path != "" {
		d.DefaultDataset = "default"
		d.Datasets = map[string]DatasetConfig{"default": flat}
		d.order = []string{"default"}
		return nil
	}

	d.Datasets = make(map[string]DatasetConfig)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		var ds DatasetConfig
		if err := valNode.Decode(&ds); err != nil {
			return fmt.Errorf("config: dataset %q: %w", keyNode.Value, err)
		}
		d.Datasets[keyNode.Value] = ds
		d.order = append(d.order, keyNode.Value)
	}
	if len(d.order) > 0 {
		d.DefaultDataset = d.order[0]
	}
	return nil
}

// DatasetIDs returns dataset IDs in YAML declaration order.
func (d *DataConfig) DatasetIDs() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	FrameSizeMB     int `yaml:"frame_size_mb"`
	FrameTTLMinutes int `yaml:"frame_ttl_minutes"`
	QueryEntries    int `yaml:"query_entries"`
}

// RenderConfig contains heatmap surface geometry.
type RenderConfig struct {
	SurfaceWidth int `yaml:"surface_width"`
	RowHeight    int `yaml:"row_height"`
}

// MinimapConfig contains minimap surface geometry.
type MinimapConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SessionsConfig contains viewer session settings.
type SessionsConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// JobsConfig contains export job settings.
type JobsConfig struct {
	DBPath         string `yaml:"db_path"`
	Workers        int    `yaml:"workers"`
	RetentionHours int    `yaml:"retention_hours"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Data: DataConfig{
			DefaultDataset: "default",
			Datasets: map[string]DatasetConfig{
				"default": {Path: "./data/datasets/default"},
			},
			order: []string{"default"},
		},
		Cache: CacheConfig{
			FrameSizeMB:     256,
			FrameTTLMinutes: 10,
			QueryEntries:    1024,
		},
		Render: RenderConfig{
			SurfaceWidth: 1200,
			RowHeight:    22,
		},
		Minimap: MinimapConfig{
			Width:  256,
			Height: 96,
		},
		Sessions: SessionsConfig{
			TTLMinutes: 30,
		},
		Jobs: JobsConfig{
			DBPath:         "./data/jobs.db",
			Workers:        2,
			RetentionHours: 24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if len(cfg.Data.Datasets) == 0 {
		cfg.Data = defaults.Data
	}
	if cfg.Cache.FrameSizeMB == 0 {
		cfg.Cache.FrameSizeMB = defaults.Cache.FrameSizeMB
	}
	if cfg.Cache.FrameTTLMinutes == 0 {
		cfg.Cache.FrameTTLMinutes = defaults.Cache.FrameTTLMinutes
	}
	if cfg.Cache.QueryEntries == 0 {
		cfg.Cache.QueryEntries = defaults.Cache.QueryEntries
	}
	if cfg.Render.SurfaceWidth == 0 {
		cfg.Render.SurfaceWidth = defaults.Render.SurfaceWidth
	}
	if cfg.Render.RowHeight == 0 {
		cfg.Render.RowHeight = defaults.Render.RowHeight
	}
	if cfg.Minimap.Width == 0 {
		cfg.Minimap.Width = defaults.Minimap.Width
	}
	if cfg.Minimap.Height == 0 {
		cfg.Minimap.Height = defaults.Minimap.Height
	}
	if cfg.Sessions.TTLMinutes == 0 {
		cfg.Sessions.TTLMinutes = defaults.Sessions.TTLMinutes
	}
	if cfg.Jobs.DBPath == "" {
		cfg.Jobs.DBPath = defaults.Jobs.DBPath
	}
	if cfg.Jobs.Workers == 0 {
		cfg.Jobs.Workers = defaults.Jobs.Workers
	}
	if cfg.Jobs.RetentionHours == 0 {
		cfg.Jobs.RetentionHours = defaults.Jobs.RetentionHours
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
}
