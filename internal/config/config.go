package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-thumbnailer/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LogConfig selects the log format and level
type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// UpstreamConfig describes where source images come from
type UpstreamConfig struct {
	Scheme         string        `yaml:"scheme"`
	DefaultDomain  string        `yaml:"default_domain"`
	AllowedDomains []string      `yaml:"allowed_domains"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	UserAgent      string        `yaml:"user_agent"`
}

// ThumbnailConfig holds thumbnail defaults and encoder settings
type ThumbnailConfig struct {
	DefaultHeight float64 `yaml:"default_height"`
	MaxPixels     int64   `yaml:"max_pixels"`
	JPEGQuality   int     `yaml:"jpeg_quality"`
	WebPQuality   float32 `yaml:"webp_quality"`
	WebPLossless  bool    `yaml:"webp_lossless"`
	OutputFormat  string  `yaml:"output_format"`
}

// CacheConfig controls the response caching headers
type CacheConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

// StorageConfig selects the rendered thumbnail store
type StorageConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config holds S3 compatible object storage settings
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

const (
	StorageNone = "none"
	StorageFS   = "fs"
	StorageS3   = "s3"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Log: LogConfig{
			Env:   "production",
			Level: "info",
		},
		Upstream: UpstreamConfig{
			Scheme:         "http",
			DefaultDomain:  "9folds.s3.amazonaws.com",
			AllowedDomains: []string{"9folds.s3.amazonaws.com", "9foldsdev.s3.amazonaws.com"},
			Timeout:        30 * time.Second,
			MaxBodyBytes:   32 << 20,
			UserAgent:      "Image-Thumbnailer/1.0",
		},
		Thumbnail: ThumbnailConfig{
			DefaultHeight: 125,
			MaxPixels:     50_000_000,
			JPEGQuality:   85,
			WebPQuality:   80,
			OutputFormat:  string(types.OutputJPEG),
		},
		Cache: CacheConfig{
			MaxAge: 365 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: StorageNone,
			FSRoot: "./thumbnails",
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "thumbnails",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads the optional YAML file, applies environment overrides and
// validates the result.
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		var err error
		if config, err = LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from THUMB_* environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Addr = getEnv("THUMB_ADDR", c.Server.Addr)
	c.Server.ReadTimeout = getEnvDuration("THUMB_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("THUMB_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("THUMB_IDLE_TIMEOUT", c.Server.IdleTimeout)

	c.Log.Env = getEnv("THUMB_ENV", c.Log.Env)
	c.Log.Level = getEnv("THUMB_LOG_LEVEL", c.Log.Level)

	c.Upstream.Scheme = getEnv("THUMB_UPSTREAM_SCHEME", c.Upstream.Scheme)
	c.Upstream.DefaultDomain = getEnv("THUMB_DEFAULT_DOMAIN", c.Upstream.DefaultDomain)
	c.Upstream.AllowedDomains = getEnvList("THUMB_ALLOWED_DOMAINS", c.Upstream.AllowedDomains)
	c.Upstream.Timeout = getEnvDuration("THUMB_UPSTREAM_TIMEOUT", c.Upstream.Timeout)
	c.Upstream.MaxBodyBytes = int64(getEnvInt("THUMB_UPSTREAM_MAX_BODY_BYTES", int(c.Upstream.MaxBodyBytes)))
	c.Upstream.UserAgent = getEnv("THUMB_USER_AGENT", c.Upstream.UserAgent)

	c.Thumbnail.DefaultHeight = getEnvFloat("THUMB_DEFAULT_HEIGHT", c.Thumbnail.DefaultHeight)
	c.Thumbnail.MaxPixels = int64(getEnvInt("THUMB_MAX_PIXELS", int(c.Thumbnail.MaxPixels)))
	c.Thumbnail.JPEGQuality = getEnvInt("THUMB_JPEG_QUALITY", c.Thumbnail.JPEGQuality)
	c.Thumbnail.OutputFormat = getEnv("THUMB_OUTPUT_FORMAT", c.Thumbnail.OutputFormat)

	c.Cache.MaxAge = getEnvDuration("THUMB_CACHE_MAX_AGE", c.Cache.MaxAge)

	c.Storage.Driver = getEnv("THUMB_STORAGE", c.Storage.Driver)
	c.Storage.FSRoot = getEnv("THUMB_FS_ROOT", c.Storage.FSRoot)
	c.Storage.S3.Endpoint = getEnv("THUMB_S3_ENDPOINT", c.Storage.S3.Endpoint)
	c.Storage.S3.Region = getEnv("THUMB_S3_REGION", c.Storage.S3.Region)
	c.Storage.S3.Bucket = getEnv("THUMB_S3_BUCKET", c.Storage.S3.Bucket)
	c.Storage.S3.AccessKey = getEnv("THUMB_S3_ACCESS_KEY", c.Storage.S3.AccessKey)
	c.Storage.S3.SecretKey = getEnv("THUMB_S3_SECRET_KEY", c.Storage.S3.SecretKey)
	c.Storage.S3.Secure = getEnvBool("THUMB_S3_SECURE", c.Storage.S3.Secure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Upstream.Scheme != "http" && c.Upstream.Scheme != "https" {
		return fmt.Errorf("upstream.scheme must be http or https")
	}

	if len(c.Upstream.AllowedDomains) == 0 {
		return fmt.Errorf("upstream.allowed_domains cannot be empty")
	}

	if !c.IsAllowedDomain(c.Upstream.DefaultDomain) {
		return fmt.Errorf("upstream.default_domain %q is not in upstream.allowed_domains", c.Upstream.DefaultDomain)
	}

	if c.Thumbnail.DefaultHeight < 0 || (c.Thumbnail.DefaultHeight > 0 && c.Thumbnail.DefaultHeight < 1) {
		return fmt.Errorf("thumbnail.default_height must be 0 or at least 1")
	}

	if c.Thumbnail.MaxPixels <= 0 {
		return fmt.Errorf("thumbnail.max_pixels must be positive")
	}

	if c.Thumbnail.JPEGQuality < 1 || c.Thumbnail.JPEGQuality > 100 {
		return fmt.Errorf("thumbnail.jpeg_quality must be between 1 and 100")
	}

	if _, err := types.ParseOutputFormat(c.Thumbnail.OutputFormat); err != nil {
		return fmt.Errorf("thumbnail.output_format: %w", err)
	}

	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age cannot be negative")
	}

	switch c.Storage.Driver {
	case StorageNone, "":
	case StorageFS:
		if c.Storage.FSRoot == "" {
			return fmt.Errorf("storage.fs_root is required for the fs driver")
		}
	case StorageS3:
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.endpoint and storage.s3.bucket are required for the s3 driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of none, fs, s3")
	}

	return nil
}

// IsAllowedDomain reports whether domain is in the upstream allow-list.
func (c *Config) IsAllowedDomain(domain string) bool {
	for _, d := range c.Upstream.AllowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-thumbnailer", "config.yaml")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
