package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the support backend
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Storage StorageConfig `mapstructure:"storage"`
	Docs    DocsConfig    `mapstructure:"docs"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Address         string          `mapstructure:"address"`
	Port            int             `mapstructure:"port"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
	TrustedProxies  []string        `mapstructure:"trusted_proxies"` // CIDRs allowed to set X-Forwarded-For
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// Addr returns the listen address. An explicit address wins over the port.
func (s ServerConfig) Addr() string {
	if a := strings.TrimSpace(s.Address); a != "" {
		if !strings.Contains(a, ":") {
			return ":" + a
		}
		return a
	}
	return fmt.Sprintf(":%d", s.Port)
}

// Normalize applies defaults for unset server values.
func (s ServerConfig) Normalize() ServerConfig {
	if s.Port <= 0 {
		s.Port = 5001
	}
	var origins []string
	for _, o := range s.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.CORSOrigins = origins
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
	s.RateLimit = s.RateLimit.Normalize()
	return s
}

func (s ServerConfig) Validate() error {
	if s.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", s.Port)
	}
	if _, err := s.TrustedProxyRanges(); err != nil {
		return err
	}
	return s.RateLimit.Validate()
}

// TrustedProxyRanges parses TrustedProxies. A bare IP is treated as a single host range.
func (s ServerConfig) TrustedProxyRanges() ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("server.trusted_proxies: invalid address %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipnet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		out = append(out, ipnet)
	}
	return out, nil
}

// RateLimitConfig controls the inbound throttle on /api
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Backend  string        `mapstructure:"backend"` // memory or redis
}

func (r RateLimitConfig) Normalize() RateLimitConfig {
	if r.Requests <= 0 {
		r.Requests = 20
	}
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	r.Backend = strings.ToLower(strings.TrimSpace(r.Backend))
	if r.Backend == "" {
		r.Backend = "memory"
	}
	return r
}

func (r RateLimitConfig) Validate() error {
	switch r.Backend {
	case "memory", "redis":
		return nil
	default:
		return fmt.Errorf("server.rate_limit.backend must be memory or redis, got %q", r.Backend)
	}
}

// ModelConfig selects and tunes the generative model
type ModelConfig struct {
	Provider    string        `mapstructure:"provider"` // gemini, openai, anthropic
	APIKey      string        `mapstructure:"api_key"`
	Name        string        `mapstructure:"name"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

func (m ModelConfig) Normalize() ModelConfig {
	m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
	if m.Provider == "" {
		m.Provider = "gemini"
	}
	if m.Timeout <= 0 {
		m.Timeout = 30 * time.Second
	}
	return m
}

// Validate is only required by commands that call the model.
func (m ModelConfig) Validate() error {
	switch m.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider must be gemini, openai or anthropic, got %q", m.Provider)
	}
	if strings.TrimSpace(m.APIKey) == "" {
		return fmt.Errorf("model.api_key required (or GEMINI_API_KEY)")
	}
	if m.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens cannot be negative")
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("model.temperature must be within [0, 2]")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

func (s StorageConfig) Normalize() StorageConfig {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = "sqlite"
	}
	if strings.TrimSpace(s.SQLite.Path) == "" {
		s.SQLite.Path = "supportbot.db"
	}
	return s
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case "sqlite":
		return nil
	case "postgres":
		return s.Postgres.Validate()
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", s.Driver)
	}
}

// DSN returns the connection string for the configured driver.
func (s StorageConfig) DSN() string {
	if s.Driver == "postgres" {
		return s.Postgres.DSN()
	}
	return s.SQLite.Path
}

// SQLiteConfig points at the database file (":memory:" for a throwaway store)
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres URL from the discrete fields unless url is set.
func (p PostgresConfig) DSN() string {
	if u := strings.TrimSpace(p.URL); u != "" {
		return u
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + port,
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(ssl),
	}
	return u.String()
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// DocsConfig locates the documentation file answers are grounded on
type DocsConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads config.json (or the file at path) and applies SUPPORTBOT_*
// environment overrides. GEMINI_API_KEY and PORT are honoured as well.
// Without an explicit path a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("server.address", "")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.requests", 20)
	v.SetDefault("server.rate_limit.window", "60s")
	v.SetDefault("server.rate_limit.backend", "memory")
	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.name", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.timeout", "30s")
	v.SetDefault("model.max_tokens", 0)
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "supportbot.db")
	for _, k := range []string{"url", "host", "port", "user", "password", "dbname", "sslmode"} {
		v.SetDefault("storage.postgres."+k, "")
	}
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("docs.path", "config/docs.json")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SUPPORTBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("model.api_key", "SUPPORTBOT_MODEL_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("server.port", "SUPPORTBOT_SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Server = cfg.Server.Normalize()
	cfg.Model = cfg.Model.Normalize()
	cfg.Storage = cfg.Storage.Normalize()

	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Server.RateLimit.Backend == "redis" {
		if err := cfg.Storage.Redis.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return &cfg, nil
}
