package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	TempDir     string `yaml:"temp_dir"`
	Concurrency int    `yaml:"concurrency"`

	// Render settings
	Render RenderConfig `yaml:"render"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Audio mixing settings
	Audio AudioConfig `yaml:"audio"`
}

// RenderConfig carries the defaults fed into timeline construction.
// SegmentDuration is the default on-screen time per image before the
// allocator stretches or shrinks the sequence to the narration length.
type RenderConfig struct {
	SegmentDuration float64 `yaml:"segment_duration"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	FPS             int     `yaml:"fps"`
	CRF             int     `yaml:"crf"`
	Preset          string  `yaml:"preset"`
	AudioBitrate    string  `yaml:"audio_bitrate"`
}

type FFmpegConfig struct {
	BinaryPath  string `yaml:"binary_path"`
	ProbePath   string `yaml:"probe_path"`
	Threads     int    `yaml:"threads"`
	GracePeriod int    `yaml:"grace_period_seconds"`
}

type AudioConfig struct {
	MusicVolume     float64 `yaml:"music_volume"`
	NarrationVolume float64 `yaml:"narration_volume"`
	Ducking         bool    `yaml:"ducking"`
}

// SegmentDuration returns the default per-image duration as a time.Duration.
func (c *Config) SegmentDuration() time.Duration {
	return time.Duration(c.Render.SegmentDuration * float64(time.Second))
}

// GracePeriod returns how long a cancelled process may take to exit before
// being force-killed.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.FFmpeg.GracePeriod) * time.Second
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) validate() error {
	if c.Render.SegmentDuration <= 0 {
		return fmt.Errorf("render.segment_duration must be positive, got %v", c.Render.SegmentDuration)
	}
	if c.Render.FPS <= 0 {
		return fmt.Errorf("render.fps must be positive, got %d", c.Render.FPS)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render resolution must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:     "./work",
		TempDir:     "",
		Concurrency: 2,
		Render: RenderConfig{
			SegmentDuration: 3.0,
			Width:           1280,
			Height:          720,
			FPS:             30,
			CRF:             23,
			Preset:          "medium",
			AudioBitrate:    "192k",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:  "ffmpeg",
			ProbePath:   "ffprobe",
			Threads:     0,
			GracePeriod: 5,
		},
		Audio: AudioConfig{
			MusicVolume:     0.2,
			NarrationVolume: 1.0,
			Ducking:         false,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".narracast", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
