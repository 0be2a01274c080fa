// Package config loads bucketwarden configuration.
//
// Sources, lowest to highest precedence: built-in defaults, an optional YAML
// config file, environment variables (BUCKETWARDEN_*, with AWS_REGION as a
// region fallback), and runtime overrides such as parsed CLI flags.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/bucketwarden/internal/observability"
	"github.com/3leaps/bucketwarden/pkg/lifecycle"
)

// EnvPrefix is the prefix of every bucketwarden environment variable.
const EnvPrefix = "BUCKETWARDEN"

// Config is the resolved bucketwarden configuration.
type Config struct {
	Logging  LoggingConfig `mapstructure:"logging"`
	Storage  StorageConfig `mapstructure:"storage"`
	ReadOnly bool          `mapstructure:"readonly"`

	// Timeout bounds each CLI command. Zero means no timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig configures the S3 backend.
type StorageConfig struct {
	Region           string   `mapstructure:"region"`
	Endpoint         string   `mapstructure:"endpoint"`
	Profile          string   `mapstructure:"profile"`
	AccessKeyID      string   `mapstructure:"access_key_id"`
	SecretAccessKey  string   `mapstructure:"secret_access_key"`
	UseInstanceRole  bool     `mapstructure:"use_instance_role"`
	ForcePathStyle   bool     `mapstructure:"force_path_style"`
	RateLimit        float64  `mapstructure:"rate_limit"`
	ProtectedBuckets []string `mapstructure:"protected_buckets"`
}

// EnvSpec maps an environment variable to a config path.
type EnvSpec struct {
	Name string
	Path string
}

// envSpecs lists the short environment names. Every key is also reachable
// through its full name (BUCKETWARDEN_STORAGE_REGION and so on).
var envSpecs = []EnvSpec{
	{Name: EnvPrefix + "_LOG_LEVEL", Path: "logging.level"},
	{Name: EnvPrefix + "_LOG_FORMAT", Path: "logging.format"},
	{Name: EnvPrefix + "_REGION", Path: "storage.region"},
	{Name: "AWS_REGION", Path: "storage.region"},
	{Name: EnvPrefix + "_ENDPOINT", Path: "storage.endpoint"},
	{Name: EnvPrefix + "_PROFILE", Path: "storage.profile"},
	{Name: EnvPrefix + "_ACCESS_KEY_ID", Path: "storage.access_key_id"},
	{Name: EnvPrefix + "_SECRET_ACCESS_KEY", Path: "storage.secret_access_key"},
	{Name: EnvPrefix + "_INSTANCE_ROLE", Path: "storage.use_instance_role"},
	{Name: EnvPrefix + "_FORCE_PATH_STYLE", Path: "storage.force_path_style"},
	{Name: EnvPrefix + "_RATE_LIMIT", Path: "storage.rate_limit"},
	{Name: EnvPrefix + "_PROTECTED_BUCKETS", Path: "storage.protected_buckets"},
	{Name: EnvPrefix + "_READONLY", Path: "readonly"},
	{Name: EnvPrefix + "_TIMEOUT", Path: "timeout"},
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", observability.FormatConsole)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.profile", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.use_instance_role", false)
	v.SetDefault("storage.force_path_style", false)
	v.SetDefault("storage.rate_limit", 0.0)
	v.SetDefault("storage.protected_buckets", []string{})
	v.SetDefault("readonly", false)
	v.SetDefault("timeout", "0s")
}

// Load resolves configuration from defaults, environment and overrides.
// Later overrides win over earlier ones.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an optional YAML config file between defaults and
// environment. An empty path skips the file.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Storage.ProtectedBuckets = compact(cfg.Storage.ProtectedBuckets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks logging settings and the timeout.
func (c *Config) Validate() error {
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", observability.FormatConsole, observability.FormatJSON:
	default:
		return fmt.Errorf("logging.format: unsupported format %q (want console or json)", c.Logging.Format)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout: must not be negative")
	}
	if c.Storage.RateLimit < 0 {
		return fmt.Errorf("storage.rate_limit: must not be negative")
	}
	return nil
}

// Lifecycle converts the storage settings into a lifecycle manager config.
func (c *Config) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		Region: c.Storage.Region,
		Credentials: lifecycle.Credentials{
			AccessKeyID:     c.Storage.AccessKeyID,
			SecretAccessKey: c.Storage.SecretAccessKey,
			UseInstanceRole: c.Storage.UseInstanceRole,
		},
		Endpoint:         c.Storage.Endpoint,
		Profile:          c.Storage.Profile,
		ForcePathStyle:   c.Storage.ForcePathStyle,
		RateLimit:        c.Storage.RateLimit,
		ProtectedBuckets: c.Storage.ProtectedBuckets,
	}
}

func getEnvSpecs() []EnvSpec {
	return envSpecs
}

// bindEnv binds each path to its short name, then its full name. Viper
// checks the names in order, so the short name wins when both are set.
func bindEnv(v *viper.Viper) error {
	byPath := make(map[string][]string)
	var order []string
	for _, spec := range getEnvSpecs() {
		if _, ok := byPath[spec.Path]; !ok {
			order = append(order, spec.Path)
		}
		byPath[spec.Path] = append(byPath[spec.Path], spec.Name)
	}

	for _, path := range order {
		full := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
		names := append([]string{path}, byPath[path]...)
		names = append(names, full)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind env %s: %w", path, err)
		}
	}
	return nil
}

// applyOverrides sets nested override maps as dotted keys, so they take
// precedence over environment values.
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

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
