// Package config loads service configuration from an optional YAML file, an
// optional .env file and VOZ_ prefixed environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-voz/detection"
	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "VOZ"

// Config is the complete service configuration. It is read once at startup.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Log       logging.Config        `mapstructure:"log"`
	Audio     AudioConfig           `mapstructure:"audio"`
	Download  transcode.FetchConfig `mapstructure:"download"`
	Detection DetectionConfig       `mapstructure:"detection"`
	Model     ModelConfig           `mapstructure:"model"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	Mode          string        `mapstructure:"mode"`    // gin mode: debug, release, test
	APIKey        string        `mapstructure:"api_key"` // Empty disables the x-api-key check
	IncludeChunks bool          `mapstructure:"include_chunks"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
}

// AudioConfig configures decoding and normalization
type AudioConfig struct {
	SampleRate    int           `mapstructure:"sample_rate"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	EnableFFmpeg  bool          `mapstructure:"enable_ffmpeg"`
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	FFmpegTimeout time.Duration `mapstructure:"ffmpeg_timeout"`
}

// DetectionConfig configures chunking and upload validation
type DetectionConfig struct {
	ChunkDuration     time.Duration `mapstructure:"chunk_duration"`
	Workers           int           `mapstructure:"workers"`
	AllowedExtensions []string      `mapstructure:"allowed_extensions"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
}

// ModelConfig locates the classifier artifact
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// Default returns the built-in configuration
func Default() Config {
	decoder := transcode.DefaultDecoderConfig()
	aggregator := detection.DefaultAggregatorConfig()
	limits := detection.DefaultConfig()

	return Config{
		Server: ServerConfig{
			Addr:         ":8000",
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Audio: AudioConfig{
			SampleRate:    decoder.TargetSampleRate,
			MaxDuration:   decoder.MaxDuration,
			EnableFFmpeg:  decoder.EnableFFmpeg,
			FFmpegPath:    decoder.FFmpegPath,
			FFmpegTimeout: decoder.Timeout,
		},
		Download: transcode.DefaultFetchConfig(),
		Detection: DetectionConfig{
			ChunkDuration:     aggregator.ChunkDuration,
			Workers:           aggregator.Workers,
			AllowedExtensions: limits.AllowedExtensions,
			MaxUploadBytes:    limits.MaxUploadBytes,
		},
		Model: ModelConfig{
			Path: "models/voice_detector.json",
		},
	}
}

// Options selects the files Load reads
type Options struct {
	ConfigFile string // Optional YAML file; a missing explicit file is an error
	EnvFile    string // Optional .env file; ignored when absent
}

// Load builds the configuration from defaults, file, .env and environment
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The bare API_KEY name is kept for existing deployments.
	if err := v.BindEnv("server.api_key", EnvPrefix+"_SERVER_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.include_chunks", d.Server.IncludeChunks)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)

	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.max_duration", d.Audio.MaxDuration)
	v.SetDefault("audio.enable_ffmpeg", d.Audio.EnableFFmpeg)
	v.SetDefault("audio.ffmpeg_path", d.Audio.FFmpegPath)
	v.SetDefault("audio.ffmpeg_timeout", d.Audio.FFmpegTimeout)

	v.SetDefault("download.timeout", d.Download.Timeout)
	v.SetDefault("download.min_bytes", d.Download.MinBytes)
	v.SetDefault("download.max_bytes", d.Download.MaxBytes)
	v.SetDefault("download.user_agent", d.Download.UserAgent)

	v.SetDefault("detection.chunk_duration", d.Detection.ChunkDuration)
	v.SetDefault("detection.workers", d.Detection.Workers)
	v.SetDefault("detection.allowed_extensions", d.Detection.AllowedExtensions)
	v.SetDefault("detection.max_upload_bytes", d.Detection.MaxUploadBytes)

	v.SetDefault("model.path", d.Model.Path)
}

// ApplyDefaults fills zero values left by partial files
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = d.Download.UserAgent
	}
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = d.Audio.FFmpegPath
	}
	if len(c.Detection.AllowedExtensions) == 0 {
		c.Detection.AllowedExtensions = d.Detection.AllowedExtensions
	}
	for i, ext := range c.Detection.AllowedExtensions {
		c.Detection.AllowedExtensions[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.MaxDuration <= 0 {
		return fmt.Errorf("audio.max_duration must be positive, got %v", c.Audio.MaxDuration)
	}
	if c.Audio.EnableFFmpeg && c.Audio.FFmpegTimeout <= 0 {
		return fmt.Errorf("audio.ffmpeg_timeout must be positive, got %v", c.Audio.FFmpegTimeout)
	}
	if c.Download.Timeout < 10*time.Second || c.Download.Timeout > 15*time.Second {
		return fmt.Errorf("download.timeout must be between 10s and 15s, got %v", c.Download.Timeout)
	}
	if c.Download.MinBytes < 0 {
		return fmt.Errorf("download.min_bytes must not be negative, got %d", c.Download.MinBytes)
	}
	if c.Download.MaxBytes <= int64(c.Download.MinBytes) {
		return fmt.Errorf("download.max_bytes must exceed download.min_bytes")
	}
	if c.Detection.ChunkDuration <= 0 {
		return fmt.Errorf("detection.chunk_duration must be positive, got %v", c.Detection.ChunkDuration)
	}
	if c.Detection.Workers < 0 {
		return fmt.Errorf("detection.workers must not be negative, got %d", c.Detection.Workers)
	}
	if c.Detection.MaxUploadBytes <= 0 {
		return fmt.Errorf("detection.max_upload_bytes must be positive, got %d", c.Detection.MaxUploadBytes)
	}
	if len(c.Detection.AllowedExtensions) == 0 || slices.Contains(c.Detection.AllowedExtensions, "") {
		return errors.New("detection.allowed_extensions must list non-empty extensions")
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, fatal, got %q", c.Log.Level)
	}
	return nil
}

// DecoderConfig returns the decoder settings
func (c *Config) DecoderConfig() *transcode.DecoderConfig {
	return &transcode.DecoderConfig{
		TargetSampleRate: c.Audio.SampleRate,
		MaxDuration:      c.Audio.MaxDuration,
		EnableFFmpeg:     c.Audio.EnableFFmpeg,
		FFmpegPath:       c.Audio.FFmpegPath,
		Timeout:          c.Audio.FFmpegTimeout,
	}
}

// AggregatorConfig returns the chunking settings
func (c *Config) AggregatorConfig() detection.AggregatorConfig {
	return detection.AggregatorConfig{
		ChunkDuration: c.Detection.ChunkDuration,
		Workers:       c.Detection.Workers,
	}
}

// DetectorConfig returns the upload validation settings
func (c *Config) DetectorConfig() detection.Config {
	return detection.Config{
		AllowedExtensions: c.Detection.AllowedExtensions,
		MaxUploadBytes:    c.Detection.MaxUploadBytes,
	}
}
