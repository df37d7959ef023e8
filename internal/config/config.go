// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/chatdash-proxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	UpstreamURL string `kong:"help='n8n webhook base URL (overrides config).',env='N8N_BASE_URL'"`
	AppURL      string `kong:"help='Dashboard base URL (overrides config).',env='APP_URL'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	App      AppConfig      `toml:"app"`
	Auth     AuthConfig     `toml:"auth"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds the n8n backend connection settings.
// AlternatePrefix and StoresPrefix replace the base URL's webhook segment
// when building the fallback target for a 404 on the primary.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
	AlternatePrefix string `toml:"alternate_prefix"`
	StoresPrefix    string `toml:"stores_prefix"`
}

// AppConfig holds the dashboard application settings used for OAuth redirects.
type AppConfig struct {
	BaseURL     string `toml:"base_url"`
	ConnectPath string `toml:"connect_path"`
}

// AuthConfig holds session credential settings.
// AnonymousPrefixes lists proxy path prefixes that may fall back to the
// sentinel FallbackToken when the session yields no credential; paths not
// matching any prefix fail closed with 401. An empty-string prefix matches
// every path.
type AuthConfig struct {
	SessionCookie     string   `toml:"session_cookie"`
	FallbackToken     string   `toml:"fallback_token"`
	AnonymousPrefixes []string `toml:"anonymous_prefixes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/chatdash-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.UpstreamURL != "" {
		c.Upstream.BaseURL = cli.UpstreamURL
	}
	if cli.AppURL != "" {
		c.App.BaseURL = cli.AppURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Upstream URL: required, absolute http(s).
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url must be http or https; got %q", c.Upstream.BaseURL)
	}

	// App URL: optional in config (defaulted), but must parse when set.
	if c.App.BaseURL != "" {
		au, err := url.Parse(c.App.BaseURL)
		if err != nil {
			return fmt.Errorf("app.base_url is not a valid URL: %w", err)
		}
		if au.Scheme != "http" && au.Scheme != "https" {
			return fmt.Errorf("app.base_url must be http or https; got %q", c.App.BaseURL)
		}
	}
	if c.App.ConnectPath != "" && c.App.ConnectPath[0] != '/' {
		return fmt.Errorf("app.connect_path must start with '/'; got %q", c.App.ConnectPath)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Prefixes are path segments relative to the upstream host, no slashes
	// at either end.
	for name, p := range map[string]string{
		"upstream.alternate_prefix": c.Upstream.AlternatePrefix,
		"upstream.stores_prefix":    c.Upstream.StoresPrefix,
	} {
		if p != "" && (strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/")) {
			return fmt.Errorf("%s must not have leading or trailing slashes; got %q", name, p)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api/n8n", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 120
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.AlternatePrefix == "" {
		c.Upstream.AlternatePrefix = "webhook-test"
	}
	if c.Upstream.StoresPrefix == "" {
		c.Upstream.StoresPrefix = "webhook/api/n8n"
	}
	if c.App.BaseURL == "" {
		c.App.BaseURL = "http://localhost:3000"
	}
	if c.App.ConnectPath == "" {
		c.App.ConnectPath = "/stores"
	}
	if c.Auth.SessionCookie == "" {
		c.Auth.SessionCookie = "__session"
	}
	if c.Auth.FallbackToken == "" {
		c.Auth.FallbackToken = "public"
	}
	if c.Auth.AnonymousPrefixes == nil {
		// Every path may fall back to the sentinel unless operators narrow it.
		c.Auth.AnonymousPrefixes = []string{""}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectURL returns the absolute store-connection page URL used as the
// landing target for OAuth redirects.
func (c *AppConfig) ConnectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.ConnectPath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
