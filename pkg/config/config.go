package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort       = 3000
	DefaultBaseURL    = "https://www.strava.com/api/v3"
	DefaultOAuthURL   = "https://www.strava.com/oauth/token"
	DefaultTimeout    = "30s"
	DefaultWindow     = "15m"
	DefaultRequests   = 100
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultTokenStore = "memory"

	// RateLimitDisabled turns off outbound rate limiting when set as
	// requestsPerWindow. Zero cannot express it: the file merge skips zero
	// values and keeps the default.
	RateLimitDisabled = -1
)

// Config defines runtime settings for the Strava MCP server.
type Config struct {
	Transport  TransportConfig `yaml:"transport" toml:"transport"`
	Strava     StravaConfig    `yaml:"strava" toml:"strava"`
	Export     ExportConfig    `yaml:"export" toml:"export"`
	Log        LogConfig       `yaml:"log" toml:"log"`
	TokenStore string          `yaml:"tokenStore" toml:"tokenStore"`
	Telemetry  TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

type TransportConfig struct {
	HTTP bool   `yaml:"http" toml:"http"`
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`

	// AllowedAddrs limits /message to these remote hosts. Empty allows all.
	AllowedAddrs []string `yaml:"allowedAddrs" toml:"allowedAddrs"`
}

// StravaConfig holds API credentials and client tuning. Durations are Go
// duration strings.
type StravaConfig struct {
	AccessToken       string `yaml:"accessToken" toml:"accessToken"`
	RefreshToken      string `yaml:"refreshToken" toml:"refreshToken"`
	ClientID          string `yaml:"clientId" toml:"clientId"`
	ClientSecret      string `yaml:"clientSecret" toml:"clientSecret"`
	BaseURL           string `yaml:"baseUrl" toml:"baseUrl"`
	OAuthURL          string `yaml:"oauthUrl" toml:"oauthUrl"`
	Timeout           string `yaml:"timeout" toml:"timeout"`
	// RequestsPerWindow of -1 disables limiting. Burst 0 allows the whole
	// window at once.
	RequestsPerWindow int    `yaml:"requestsPerWindow" toml:"requestsPerWindow"`
	Window            string `yaml:"window" toml:"window"`
	Burst             int    `yaml:"burst" toml:"burst"`
}

type ExportConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	ServiceName string `yaml:"serviceName" toml:"serviceName"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{Port: DefaultPort},
		Strava: StravaConfig{
			BaseURL:           DefaultBaseURL,
			OAuthURL:          DefaultOAuthURL,
			Timeout:           DefaultTimeout,
			RequestsPerWindow: DefaultRequests,
			Window:            DefaultWindow,
		},
		Log:        LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		TokenStore: DefaultTokenStore,
		Telemetry:  TelemetryConfig{ServiceName: "strava-mcp"},
	}
}

// Load builds the configuration from defaults, an optional YAML or TOML file
// and environment overrides, in that order, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	fileCfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, fileCfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return fileCfg, nil
}

// ApplyEnv overlays the environment variables the server understands.
// USE_HTTP accepts strconv.ParseBool values; anything else means stdio.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("USE_HTTP"); ok {
		useHTTP, err := strconv.ParseBool(strings.TrimSpace(v))
		c.Transport.HTTP = err == nil && useHTTP
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Transport.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("STRAVA_MCP_ALLOWED_ADDRS")); v != "" {
		c.Transport.AllowedAddrs = splitList(v)
	}
	setString(&c.Strava.AccessToken, "STRAVA_ACCESS_TOKEN")
	setString(&c.Strava.RefreshToken, "STRAVA_REFRESH_TOKEN")
	setString(&c.Strava.ClientID, "STRAVA_CLIENT_ID")
	setString(&c.Strava.ClientSecret, "STRAVA_CLIENT_SECRET")
	setString(&c.Strava.BaseURL, "STRAVA_API_BASE")
	setString(&c.Strava.OAuthURL, "STRAVA_OAUTH_URL")
	setString(&c.Export.Dir, "ROUTE_EXPORT_PATH")
	setString(&c.Log.Level, "STRAVA_MCP_LOG_LEVEL")
	setString(&c.Log.Format, "STRAVA_MCP_LOG_FORMAT")
	setString(&c.TokenStore, "STRAVA_MCP_TOKEN_STORE")
	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	if c.Transport.Port < 0 || c.Transport.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Transport.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("unknown log format %q (want json, text or pretty)", c.Log.Format)
	}
	if _, err := c.StravaTimeout(); err != nil {
		return err
	}
	if _, err := c.StravaWindow(); err != nil {
		return err
	}
	if c.Strava.RequestsPerWindow < RateLimitDisabled {
		return fmt.Errorf("strava requestsPerWindow must be positive or %d to disable limiting", RateLimitDisabled)
	}
	if c.Strava.Burst < 0 {
		return fmt.Errorf("strava burst must not be negative")
	}
	return nil
}

func (c *Config) StravaTimeout() (time.Duration, error) {
	return parseDuration("strava.timeout", c.Strava.Timeout)
}

func (c *Config) StravaWindow() (time.Duration, error) {
	return parseDuration("strava.window", c.Strava.Window)
}

func parseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, value)
	}
	return d, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Transport.Host, strconv.Itoa(c.Transport.Port))
}

// DefaultConfigPath returns STRAVA_MCP_CONFIG or
// ~/.strava-mcp/config.yaml when that file exists, otherwise "".
func DefaultConfigPath() string {
	if path := os.Getenv("STRAVA_MCP_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".strava-mcp", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
