package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/repository"
	"github.com/weatherdash/offline-proxy/internal/syncqueue"
)

const envPrefix = "WEATHERDASH"

type Config struct {
	Server   ServerConfig
	Origin   OriginConfig
	Cache    CacheConfig
	Sync     SyncConfig
	Manifest ManifestConfig
	Misc     MiscConfig
}

type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutDownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins string
}

// OriginConfig locates the upstreams the proxy forwards to.
type OriginConfig struct {
	StaticURL string
	APIURL    string
	APIPrefix string
}

type CacheConfig struct {
	Backend string
	Path    string
	// MaxBytes caps the stored body bytes across all containers. 0 means unlimited.
	MaxBytes int64
	// Version names the containers considered current before the first install completes.
	Version      string
	APIMaxAge    time.Duration
	StaticMaxAge time.Duration
	SkipWaiting  bool
}

type SyncConfig struct {
	QueueBackend string
	QueuePath    string
	// A zero interval disables the corresponding periodic job.
	DataSyncInterval       time.Duration
	WeatherRefreshInterval time.Duration
}

type ManifestConfig struct {
	FilePath string
}

type MiscConfig struct {
	GinMode   string
	LogLevel  string
	LogFormat string
}

// LoadConfig reads config.yaml from WEATHERDASH_CONFIG_PATH (default ./config), then applies
// WEATHERDASH_* environment overrides. A missing manifest file is created with the default manifest.
func LoadConfig() (*Config, error) {
	log := logger.WithComponent("config")

	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env file")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnvOrDefault(envPrefix+"_CONFIG_PATH", "./config"))

	setDefaults(v)

	// WEATHERDASH_CACHE_BACKEND overrides cache.backend, and so on.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		log.Info("no config file found, using defaults and env vars")
	}

	port, err := getEnvOrViperPort(v, "PORT", "server.port")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               port,
			ReadTimeout:        v.GetDuration("server.read_timeout"),
			WriteTimeout:       v.GetDuration("server.write_timeout"),
			IdleTimeout:        v.GetDuration("server.idle_timeout"),
			ShutDownTimeout:    v.GetDuration("server.shutdown_timeout"),
			RequestTimeout:     v.GetDuration("server.request_timeout"),
			CORSAllowedOrigins: v.GetString("server.cors_allowed_origins"),
		},
		Origin: OriginConfig{
			StaticURL: v.GetString("origin.static_url"),
			APIURL:    v.GetString("origin.api_url"),
			APIPrefix: v.GetString("origin.api_prefix"),
		},
		Cache: CacheConfig{
			Backend:      v.GetString("cache.backend"),
			Path:         v.GetString("cache.path"),
			MaxBytes:     v.GetInt64("cache.max_bytes"),
			Version:      v.GetString("cache.version"),
			APIMaxAge:    v.GetDuration("cache.api_max_age"),
			StaticMaxAge: v.GetDuration("cache.static_max_age"),
			SkipWaiting:  v.GetBool("cache.skip_waiting"),
		},
		Sync: SyncConfig{
			QueueBackend:           v.GetString("sync.queue_backend"),
			QueuePath:              v.GetString("sync.queue_path"),
			DataSyncInterval:       v.GetDuration("sync.data_sync_interval"),
			WeatherRefreshInterval: v.GetDuration("sync.weather_refresh_interval"),
		},
		Manifest: ManifestConfig{
			FilePath: v.GetString("manifest.file_path"),
		},
		Misc: MiscConfig{
			GinMode:   v.GetString("misc.gin_mode"),
			LogLevel:  v.GetString("misc.log_level"),
			LogFormat: v.GetString("misc.log_format"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := ensureManifestFile(cfg.Manifest.FilePath); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("origin.static_url", "http://localhost:3000")
	v.SetDefault("origin.api_url", "http://localhost:5000")
	v.SetDefault("origin.api_prefix", "/api/")

	v.SetDefault("cache.backend", cachestore.BackendMemory)
	v.SetDefault("cache.path", "./config/data/cache")
	v.SetDefault("cache.max_bytes", 0)
	v.SetDefault("cache.version", "v1")
	v.SetDefault("cache.api_max_age", 30*time.Minute)
	v.SetDefault("cache.static_max_age", 24*time.Hour)
	v.SetDefault("cache.skip_waiting", true)

	v.SetDefault("sync.queue_backend", syncqueue.BackendMemory)
	v.SetDefault("sync.queue_path", "./config/data/sync.db")
	v.SetDefault("sync.data_sync_interval", 5*time.Minute)
	v.SetDefault("sync.weather_refresh_interval", 30*time.Minute)

	v.SetDefault("manifest.file_path", "./config/data/manifest.json")

	v.SetDefault("misc.gin_mode", "release")
	v.SetDefault("misc.log_level", "info")
	v.SetDefault("misc.log_format", "text")
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return errors.New("server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be positive")
	}
	if c.Server.IdleTimeout <= 0 {
		return errors.New("server.idle_timeout must be positive")
	}
	if c.Server.ShutDownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be positive")
	}

	if err := validateOriginURL("origin.static_url", c.Origin.StaticURL); err != nil {
		return err
	}
	if err := validateOriginURL("origin.api_url", c.Origin.APIURL); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Origin.APIPrefix, "/") {
		return fmt.Errorf("origin.api_prefix must start with '/', got %q", c.Origin.APIPrefix)
	}

	switch c.Cache.Backend {
	case cachestore.BackendMemory:
	case cachestore.BackendLevelDB:
		if c.Cache.Path == "" {
			return errors.New("cache.path is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", cachestore.BackendMemory, cachestore.BackendLevelDB, c.Cache.Backend)
	}
	if c.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache.max_bytes cannot be negative, got %d", c.Cache.MaxBytes)
	}
	if c.Cache.Version == "" || strings.Contains(c.Cache.Version, "/") {
		return fmt.Errorf("cache.version must be a non-empty name without '/', got %q", c.Cache.Version)
	}
	if c.Cache.APIMaxAge <= 0 {
		return errors.New("cache.api_max_age must be positive")
	}
	if c.Cache.StaticMaxAge < 0 {
		return errors.New("cache.static_max_age cannot be negative")
	}

	switch c.Sync.QueueBackend {
	case syncqueue.BackendMemory:
	case syncqueue.BackendSQLite:
		if c.Sync.QueuePath == "" {
			return errors.New("sync.queue_path is required for the sqlite queue")
		}
	default:
		return fmt.Errorf("sync.queue_backend must be %q or %q, got %q", syncqueue.BackendMemory, syncqueue.BackendSQLite, c.Sync.QueueBackend)
	}
	if c.Sync.DataSyncInterval < 0 {
		return errors.New("sync.data_sync_interval cannot be negative")
	}
	if c.Sync.WeatherRefreshInterval < 0 {
		return errors.New("sync.weather_refresh_interval cannot be negative")
	}

	if c.Manifest.FilePath == "" {
		return errors.New("manifest.file_path is required")
	}

	switch c.Misc.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("misc.gin_mode must be debug, release or test, got %q", c.Misc.GinMode)
	}
	if _, err := logrus.ParseLevel(c.Misc.LogLevel); err != nil {
		return fmt.Errorf("misc.log_level: %w", err)
	}
	switch c.Misc.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("misc.log_format must be text or json, got %q", c.Misc.LogFormat)
	}

	return nil
}

func validateOriginURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

// ensureManifestFile writes the default manifest when path does not exist yet.
func ensureManifestFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat manifest file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	payload, err := json.MarshalIndent(repository.DefaultManifest(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default manifest: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write default manifest: %w", err)
	}
	logger.WithComponent("config").Infof("created default manifest at %s", path)
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrViperPort prefers the plain envKey variable (PaaS style) over the viper key.
func getEnvOrViperPort(v *viper.Viper, envKey, viperKey string) (int, error) {
	if raw := os.Getenv(envKey); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", envKey, raw, err)
		}
		return port, nil
	}
	return v.GetInt(viperKey), nil
}
