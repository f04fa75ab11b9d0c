// Package config loads the run configuration. Precedence is defaults, then the
// config file, then command-line flags set explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/andresmejia3/voxclip/internal/dataset"
	"github.com/andresmejia3/voxclip/internal/selection"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultDB is the local ledger used when nothing else is configured.
const DefaultDB = ".voxclip/ledger.db"

// Config holds all run settings. Keys match the flag names.
type Config struct {
	CorpusDir        string     `yaml:"voxmm_dir" toml:"voxmm_dir"`
	OutputDir        string     `yaml:"output_dir" toml:"output_dir"`
	FileListPaths    StringList `yaml:"file_list_paths" toml:"file_list_paths"`
	SegmentListPaths StringList `yaml:"segment_list_paths" toml:"segment_list_paths"`
	NumWorkers       int        `yaml:"num_worker" toml:"num_worker"`

	DatasetStyle string `yaml:"dataset_style" toml:"dataset_style"`
	UseVidIndex  bool   `yaml:"use_vid_index" toml:"use_vid_index"`

	// Audio
	NoWav      bool    `yaml:"no_wav" toml:"no_wav"`
	SampleRate int     `yaml:"sample_rate" toml:"sample_rate"`
	Volume     float64 `yaml:"volume" toml:"volume"`

	// Video
	NoVideo        bool    `yaml:"no_video" toml:"no_video"`
	TrackSize      int     `yaml:"track_size" toml:"track_size"`
	TrackFramerate float64 `yaml:"track_framerate" toml:"track_framerate"`
	AudioInVideo   bool    `yaml:"audio_in_video" toml:"audio_in_video"`
	FFmpeg         string  `yaml:"ffmpeg" toml:"ffmpeg"`
	FFprobe        string  `yaml:"ffprobe" toml:"ffprobe"`
	VideoCodec     string  `yaml:"video_codec" toml:"video_codec"`

	DB        string `yaml:"db" toml:"db"`
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`

	selection.Filter `yaml:",inline"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		CorpusDir:      "./VoxMM",
		OutputDir:      "./results",
		NumWorkers:     1,
		DatasetStyle:   dataset.LRS3,
		SampleRate:     16000,
		Volume:         -16,
		TrackSize:      224,
		TrackFramerate: 25,
		AudioInVideo:   true,
		FFmpeg:         "ffmpeg",
		FFprobe:        "ffprobe",
		VideoCodec:     "libx264",
		LogLevel:       "info",
		LogFormat:      "auto",
		Filter:         selection.DefaultFilter(),
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Keys the Config does not know are returned as warnings, not errors.
func Load(path string) (Config, []string, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, nil, fmt.Errorf("parse config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, nil, fmt.Errorf("parse config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return cfg, nil, fmt.Errorf("parse config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		return cfg, nil, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}

	var warnings []string
	known := knownKeys(reflect.TypeOf(cfg))
	for k := range raw {
		if !known[k] {
			warnings = append(warnings, fmt.Sprintf("Ignored unknown parameter %s in config", k))
		}
	}
	sort.Strings(warnings)
	return cfg, warnings, nil
}

// knownKeys collects the yaml keys of t, descending into inline structs.
func knownKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if opts == "inline" {
			for k := range knownKeys(f.Type) {
				keys[k] = true
			}
			continue
		}
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

// Validate rejects values no command can run with.
func (c Config) Validate() error {
	switch c.DatasetStyle {
	case dataset.LibriSpeech, dataset.LRS3:
	default:
		return fmt.Errorf("invalid dataset_style %q (want %s or %s)", c.DatasetStyle, dataset.LibriSpeech, dataset.LRS3)
	}
	switch c.LogFormat {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want auto, console or json)", c.LogFormat)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("num_worker must be at least 1, got %d", c.NumWorkers)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.TrackFramerate <= 0 {
		return fmt.Errorf("track_framerate must be positive, got %v", c.TrackFramerate)
	}
	// yuv420p needs even dimensions.
	if c.TrackSize <= 0 || c.TrackSize%2 != 0 {
		return fmt.Errorf("track_size must be a positive even number, got %d", c.TrackSize)
	}
	if c.MinDuration >= c.MaxDuration {
		return fmt.Errorf("min_duration %v must be below max_duration %v", c.MinDuration, c.MaxDuration)
	}
	if c.MinWord >= c.MaxWord {
		return fmt.Errorf("min_word %v must be below max_word %v", c.MinWord, c.MaxWord)
	}
	return nil
}

// LoadEnv reads .env from the working directory if present.
func LoadEnv() {
	_ = godotenv.Load() // best-effort: load .env if present
}

// ResolveDB picks the ledger DSN: the configured value, then VOXCLIP_DB, then a
// PostgreSQL URL built from POSTGRES_* variables, then DefaultDB.
func ResolveDB(configured string) string {
	if configured != "" {
		return configured
	}
	if dsn := os.Getenv("VOXCLIP_DB"); dsn != "" {
		return dsn
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return DefaultDB
}
