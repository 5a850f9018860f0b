// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed view of every setting the service reads.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	AI            AIConfig
	Payments      PaymentsConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	RateLimitPerSecond   int
	RateLimitBurst       int
	ConsumerLookupPerMin int
	ConsumerVerifyPerMin int
	// TrustedProxyHops is the number of reverse proxies that append to
	// X-Forwarded-For; zero means the header is ignored.
	TrustedProxyHops int
	AllowedOrigins       []string
	MaxUploadBytes       int64
	ShutdownTimeout      time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds a postgres connection string suitable for pgxpool.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
	SessionSecret  string
	SecureCookies  bool
	// Bootstrap credentials create the first site admin on an empty users table.
	BootstrapEmail    string
	BootstrapPassword string
}

// AIConfig configures the Gemini-backed field analyzer. An empty APIKey
// disables AI suggestions; manual mapping keeps working.
type AIConfig struct {
	APIKey          string
	Model           string
	Timeout         time.Duration
	SampleMaxLength int
}

type PaymentsConfig struct {
	// EncryptionKey is a 64 char hex string (AES-256).
	EncryptionKey string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	ServiceName    string
}

type ProfilingConfig struct {
	Enabled bool
	Port    int
}

var (
	ErrMissingJWTSecret     = errors.New("AUTH_JWT_SECRET is required")
	ErrMissingSessionSecret = errors.New("AUTH_SESSION_SECRET is required")
	ErrMissingPaymentsKey   = errors.New("PAYMENTS_ENCRYPTION_KEY is required")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.rate_limit_per_second", 50)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("server.consumer_lookup_per_min", 10)
	v.SetDefault("server.consumer_verify_per_min", 5)
	v.SetDefault("server.trusted_proxy_hops", 0)
	v.SetDefault("server.allowed_origins", "*")
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "collections")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "1h")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.secure_cookies", true)
	v.SetDefault("auth.bootstrap_email", "")
	v.SetDefault("auth.bootstrap_password", "")

	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout", "20s")
	v.SetDefault("ai.sample_max_length", 100)

	v.SetDefault("payments.encryption_key", "")

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.service_name", "collections-portal")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.port", 6060)
}

// Load reads configuration from environment variables. Keys map to
// upper-case env names with dots replaced by underscores, e.g.
// database.host -> DATABASE_HOST.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:                 v.GetString("server.host"),
			Port:                 v.GetInt("server.port"),
			RateLimitPerSecond:   v.GetInt("server.rate_limit_per_second"),
			RateLimitBurst:       v.GetInt("server.rate_limit_burst"),
			ConsumerLookupPerMin: v.GetInt("server.consumer_lookup_per_min"),
			ConsumerVerifyPerMin: v.GetInt("server.consumer_verify_per_min"),
			TrustedProxyHops:     v.GetInt("server.trusted_proxy_hops"),
			AllowedOrigins:       splitList(v.GetString("server.allowed_origins")),
			MaxUploadBytes:       v.GetInt64("server.max_upload_bytes"),
			ShutdownTimeout:      v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Name:     v.GetString("database.name"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Auth: AuthConfig{
			JWTSecret:      v.GetString("auth.jwt_secret"),
			AccessTokenTTL: v.GetDuration("auth.access_token_ttl"),
			SessionSecret:  v.GetString("auth.session_secret"),
			SecureCookies:  v.GetBool("auth.secure_cookies"),

			BootstrapEmail:    v.GetString("auth.bootstrap_email"),
			BootstrapPassword: v.GetString("auth.bootstrap_password"),
		},
		AI: AIConfig{
			APIKey:          v.GetString("ai.gemini_api_key"),
			Model:           v.GetString("ai.model"),
			Timeout:         v.GetDuration("ai.timeout"),
			SampleMaxLength: v.GetInt("ai.sample_max_length"),
		},
		Payments: PaymentsConfig{
			EncryptionKey: v.GetString("payments.encryption_key"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: v.GetBool("observability.metrics_enabled"),
			ServiceName:    v.GetString("observability.service_name"),
		},
		Profiling: ProfilingConfig{
			Enabled: v.GetBool("profiling.enabled"),
			Port:    v.GetInt("profiling.port"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Auth.SessionSecret == "" {
		return ErrMissingSessionSecret
	}
	if c.Payments.EncryptionKey == "" {
		return ErrMissingPaymentsKey
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
