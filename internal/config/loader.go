// Package config loads bucketmeta configuration from defaults, an optional
// YAML file, BUCKETMETA_* environment variables and runtime overrides, in
// increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// AppName names the config file, env prefix and per-user directories.
const AppName = "bucketmeta"

// Config is the resolved configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	S3      S3Config      `mapstructure:"s3"`
	GCS     GCSConfig     `mapstructure:"gcs"`
	MinIO   MinIOConfig   `mapstructure:"minio"`
	File    FileConfig    `mapstructure:"file"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ScrapeConfig holds scraper defaults; CLI flags and job files override them.
type ScrapeConfig struct {
	Workers   int     `mapstructure:"workers"`
	RateLimit float64 `mapstructure:"rate_limit"`
	MaxKeys   int     `mapstructure:"max_keys"`
}

type S3Config struct {
	Profile  string `mapstructure:"profile"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// FileConfig configures the local directory provider.
type FileConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	IncludeDirs bool   `mapstructure:"include_dirs"`
}

// HTTPConfig configures the retrying HTTP client.
type HTTPConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	BackoffFactor time.Duration `mapstructure:"backoff_factor"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type DBConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ErrInvalidConfig wraps every validation failure from Load.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// SetConfigFile makes the next Load read path instead of searching for
// bucketmeta.yaml. An explicit file that does not exist is an error.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Load resolves configuration and stores it for GetConfig.
//
// Overrides are nested maps keyed like the config file, e.g.
// {"scrape": {"workers": 8}}, and take precedence over everything else.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(c.Logging.Level))); err != nil {
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Scrape.Workers < 1 {
		return fmt.Errorf("%w: scrape.workers must be >= 1", ErrInvalidConfig)
	}
	if c.Scrape.RateLimit < 0 {
		return fmt.Errorf("%w: scrape.rate_limit must be >= 0", ErrInvalidConfig)
	}
	if c.Scrape.MaxKeys < 1 || c.Scrape.MaxKeys > 1000 {
		return fmt.Errorf("%w: scrape.max_keys must be between 1 and 1000", ErrInvalidConfig)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("%w: http.max_retries must be >= 0", ErrInvalidConfig)
	}
	if c.DB.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: db.connect_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")

	v.SetDefault("scrape.workers", 5)
	v.SetDefault("scrape.rate_limit", 0.0)
	v.SetDefault("scrape.max_keys", 1000)

	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")

	v.SetDefault("gcs.credentials_file", "")
	v.SetDefault("gcs.endpoint", "")

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.region", "")

	v.SetDefault("file.base_dir", ".")
	v.SetDefault("file.include_dirs", false)

	v.SetDefault("http.max_retries", 10)
	v.SetDefault("http.backoff_factor", "5s")
	v.SetDefault("http.max_backoff", "120s")
	v.SetDefault("http.timeout", "30s")

	v.SetDefault("db.connect_timeout", "1s")
}

// envSpec maps a short environment variable onto a config path, in
// addition to the BUCKETMETA_<SECTION>_<KEY> names AutomaticEnv derives.
type envSpec struct {
	Name string
	Path string
}

func getEnvSpecs() []envSpec {
	prefix := strings.ToUpper(AppName) + "_"
	return []envSpec{
		{Name: prefix + "LOG_LEVEL", Path: "logging.level"},
		{Name: prefix + "WORKERS", Path: "scrape.workers"},
		{Name: prefix + "RATE_LIMIT", Path: "scrape.rate_limit"},
		{Name: prefix + "PROFILE", Path: "s3.profile"},
		{Name: prefix + "REGION", Path: "s3.region"},
		{Name: prefix + "ENDPOINT", Path: "s3.endpoint"},
		{Name: "GOOGLE_APPLICATION_CREDENTIALS", Path: "gcs.credentials_file"},
		{Name: "STORAGE_EMULATOR_HOST", Path: "gcs.endpoint"},
		{Name: "MINIO_ACCESS_KEY", Path: "minio.access_key"},
		{Name: "MINIO_SECRET_KEY", Path: "minio.secret_key"},
	}
}

// getUserConfigPaths lists the directories searched for bucketmeta.yaml
// after the working directory.
func getUserConfigPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+AppName))
	}
	return paths
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		return nil
	}

	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range getUserConfigPaths() {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// applyOverrides sets leaf values with viper.Set so they outrank the
// environment.
func applyOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, key, nested)
			continue
		}
		v.Set(key, val)
	}
}
