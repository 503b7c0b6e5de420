// Package config loads ytcollect settings from defaults, an optional YAML
// file and YTCOLLECT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ytcollect/export"
	"ytcollect/internal/logging"
	"ytcollect/storage"
	"ytcollect/youtube"
)

// EnvPrefix prefixes every environment override, e.g. YTCOLLECT_OUTPUT_DIR.
const EnvPrefix = "YTCOLLECT"

// Credential variables, in lookup order.
const (
	APIKeyEnv         = "H_YOUTUBE_API_KEY"
	FallbackAPIKeyEnv = "YOUTUBE_API_KEY"
)

// ErrCredentialMissing is returned when no API key is set.
var ErrCredentialMissing = errors.New("config: YouTube API key missing (set " + APIKeyEnv + ")")

// Config holds all run settings.
type Config struct {
	Youtubers           []string   `mapstructure:"youtubers"`
	MaxVideosPerChannel int        `mapstructure:"max_videos_per_channel"`
	MaxCommentsPerVideo int        `mapstructure:"max_comments_per_video"`
	OutputFormat        string     `mapstructure:"output_format"`
	VideoDelaySeconds   float64    `mapstructure:"video_delay_seconds"`
	CommentDelaySeconds float64    `mapstructure:"comment_delay_seconds"`
	OutputDir           string     `mapstructure:"output_dir"`
	CacheDir            string     `mapstructure:"cache_dir"`
	CacheBackend        string     `mapstructure:"cache_backend"`
	CommentSort         string     `mapstructure:"comment_sort"`
	TranscriptLanguages []string   `mapstructure:"transcript_languages"`
	Log                 LogConfig  `mapstructure:"log"`
	HTTP                HTTPConfig `mapstructure:"http"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// HTTPConfig tunes the shared HTTP client.
type HTTPConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]any{
	"youtubers":                []string{"@HasanAbi", "@joerogan"},
	"max_videos_per_channel":   100,
	"max_comments_per_video":   1000,
	"output_format":            string(export.FormatBoth),
	"video_delay_seconds":      1.0,
	"comment_delay_seconds":    0.1,
	"output_dir":               "data",
	"cache_dir":                "cache",
	"cache_backend":            storage.BackendFile,
	"comment_sort":             youtube.CommentOrderRelevance,
	"transcript_languages":     []string{"en"},
	"log.file":                 "ytcollect.log",
	"log.level":                "info",
	"http.requests_per_second": 2.5,
	"http.timeout":             "30s",
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a .env file from the working directory if present, then
// merges defaults, the config file and the environment. An empty path
// searches for ytcollect.yaml in . and ~/.config/ytcollect; an explicit
// path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ytcollect")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ytcollect"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if len(c.Youtubers) == 0 {
		return fmt.Errorf("youtubers must not be empty")
	}
	for _, h := range c.Youtubers {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("youtubers must not contain empty handles")
		}
	}
	if c.MaxCommentsPerVideo < 0 {
		return fmt.Errorf("max_comments_per_video must be non-negative")
	}
	if c.VideoDelaySeconds < 0 || c.CommentDelaySeconds < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if _, err := export.ParseFormat(c.OutputFormat); err != nil {
		return fmt.Errorf("output_format: %w", err)
	}
	switch c.CacheBackend {
	case storage.BackendFile, storage.BackendBolt, storage.BackendSQLite:
	default:
		return fmt.Errorf("cache_backend must be file, bolt or sqlite, got %q", c.CacheBackend)
	}
	if c.CommentSort != youtube.CommentOrderRelevance && c.CommentSort != youtube.CommentOrderTime {
		return fmt.Errorf("comment_sort must be relevance or time, got %q", c.CommentSort)
	}
	if c.OutputDir == "" || c.CacheDir == "" {
		return fmt.Errorf("output_dir and cache_dir must be set")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be non-negative")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	return nil
}

// VideoDelay is video_delay_seconds as a duration.
func (c *Config) VideoDelay() time.Duration {
	return seconds(c.VideoDelaySeconds)
}

// CommentDelay is comment_delay_seconds as a duration.
func (c *Config) CommentDelay() time.Duration {
	return seconds(c.CommentDelaySeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LoadCredential returns the Data API key from the environment.
func LoadCredential() (string, error) {
	for _, name := range []string{APIKeyEnv, FallbackAPIKeyEnv} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key, nil
		}
	}
	return "", ErrCredentialMissing
}
