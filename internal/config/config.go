// Package config loads servery settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SERVERY_LISTEN_ADDR.
const EnvPrefix = "SERVERY"

// DefaultConfigFile is read from the working directory when --config is not given.
const DefaultConfigFile = "servery.yaml"

type Config struct {
	AppName      string         `mapstructure:"app_name"`
	ListenAddr   string         `mapstructure:"listen_addr"`
	TemplatePath string         `mapstructure:"template_path"`
	Registry     RegistryConfig `mapstructure:"registry"`
	Runtime      RuntimeConfig  `mapstructure:"runtime"`
	Proxy        ProxyConfig    `mapstructure:"proxy"`
	Events       EventsConfig   `mapstructure:"events"`
	Log          LogConfig      `mapstructure:"log"`
	Metrics      MetricsConfig  `mapstructure:"metrics"`
	Tracing      TracingConfig  `mapstructure:"tracing"`
}

type RegistryConfig struct {
	Backend  string        `mapstructure:"backend"`
	Path     string        `mapstructure:"path"`
	Cache    bool          `mapstructure:"cache"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RuntimeConfig struct {
	DockerHost  string        `mapstructure:"docker_host"`
	PullPolicy  string        `mapstructure:"pull_policy"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type ProxyConfig struct {
	Domain     string `mapstructure:"domain"`
	TargetPort int    `mapstructure:"target_port"`
}

type EventsConfig struct {
	NatsURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// Defaults mirrors assets/servery.yaml.
func Defaults() Config {
	return Config{
		AppName:      "servery",
		ListenAddr:   ":3030",
		TemplatePath: "fabric.toml",
		Registry: RegistryConfig{
			Backend:  "json",
			Path:     "data/servers.json",
			CacheTTL: time.Minute,
		},
		Runtime: RuntimeConfig{
			PullPolicy:  "missing",
			StopTimeout: 30 * time.Second,
		},
		Proxy:   ProxyConfig{TargetPort: 8080},
		Events:  EventsConfig{SubjectPrefix: "servery"},
		Log:     LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{Exporter: "stdout"},
	}
}

// setDefaults registers every key with viper. AutomaticEnv only resolves
// keys viper already knows about, so this is also what makes every setting
// overridable from the environment.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("template_path", d.TemplatePath)
	v.SetDefault("registry.backend", d.Registry.Backend)
	v.SetDefault("registry.path", d.Registry.Path)
	v.SetDefault("registry.cache", d.Registry.Cache)
	v.SetDefault("registry.cache_ttl", d.Registry.CacheTTL)
	v.SetDefault("runtime.docker_host", d.Runtime.DockerHost)
	v.SetDefault("runtime.pull_policy", d.Runtime.PullPolicy)
	v.SetDefault("runtime.stop_timeout", d.Runtime.StopTimeout)
	v.SetDefault("proxy.domain", d.Proxy.Domain)
	v.SetDefault("proxy.target_port", d.Proxy.TargetPort)
	v.SetDefault("events.nats_url", d.Events.NatsURL)
	v.SetDefault("events.subject_prefix", d.Events.SubjectPrefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
}

// Load reads path (if it exists) into v, applies SERVERY_* overrides and
// defaults, and validates the result. A missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Instance names are built from app_name, so it must be a valid container
// name prefix.
var appNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

func (c Config) Validate() error {
	var errs []error
	if !appNamePattern.MatchString(c.AppName) {
		errs = append(errs, fmt.Errorf("app_name %q must match %s", c.AppName, appNamePattern))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.TemplatePath == "" {
		errs = append(errs, errors.New("template_path is required"))
	}
	if !oneOf(c.Registry.Backend, "json", "sqlite", "badger") {
		errs = append(errs, fmt.Errorf("registry.backend %q must be json, sqlite or badger", c.Registry.Backend))
	}
	if c.Registry.Path == "" {
		errs = append(errs, errors.New("registry.path is required"))
	}
	if c.Registry.Cache && c.Registry.CacheTTL <= 0 {
		errs = append(errs, errors.New("registry.cache_ttl must be positive when the cache is enabled"))
	}
	if !oneOf(c.Runtime.PullPolicy, "missing", "always", "never") {
		errs = append(errs, fmt.Errorf("runtime.pull_policy %q must be missing, always or never", c.Runtime.PullPolicy))
	}
	if c.Runtime.StopTimeout < 0 {
		errs = append(errs, errors.New("runtime.stop_timeout must not be negative"))
	}
	if c.Proxy.Domain != "" && (c.Proxy.TargetPort <= 0 || c.Proxy.TargetPort > 65535) {
		errs = append(errs, fmt.Errorf("proxy.target_port %d is not a valid port", c.Proxy.TargetPort))
	}
	if !oneOf(c.Log.Format, "console", "json") {
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	if c.Tracing.Enabled && !oneOf(c.Tracing.Exporter, "stdout", "none") {
		errs = append(errs, fmt.Errorf("tracing.exporter %q must be stdout or none", c.Tracing.Exporter))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
