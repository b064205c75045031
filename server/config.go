package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded token lifetime defaults
const (
	DefaultSessionTTL      = 7 * 24 * time.Hour
	DefaultStateTTL        = 10 * time.Minute
	DefaultExchangeTimeout = 10 * time.Second

	// Minimum length for the session signing secret. Startup fails below this.
	MinSessionSecretLen = 16
)

// Hardcoded CORS defaults
var (
	DefaultCORSAllowedHeaders = []string{"Content-Type", "Authorization"}
	DefaultCORSAllowedMethods = []string{"GET", "POST", "OPTIONS"}
)

// Config captures the full application configuration loaded from YAML and environment variables.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Google  GoogleConfig  `yaml:"google"`
	App     AppConfig     `yaml:"app"`
	Session SessionConfig `yaml:"session"`
	CORS    CORSConfig    `yaml:"cors"`
	Sheets  SheetsConfig  `yaml:"sheets"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	SecretsPath     string    `yaml:"secrets_path"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains []string `yaml:"domains"`
	Email   string   `yaml:"email"`
}

// GoogleConfig holds the OAuth client registration for the Google provider.
type GoogleConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	Scopes       []string `yaml:"scopes"`
	// Issuer is overridable for tests; defaults to the real Google issuer.
	Issuer string `yaml:"issuer"`
}

// AppConfig identifies the front-end application consuming this gateway.
type AppConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SessionConfig controls session and state token signing.
type SessionConfig struct {
	Secret     string `yaml:"secret"`
	CookieName string `yaml:"cookie_name"`
	TTL        string `yaml:"ttl"`
	StateTTL   string `yaml:"state_ttl"`
}

// CORSConfig is the fixed cross-origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// SheetsConfig locates the spreadsheet used as the rental data store.
type SheetsConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	UnitsRange    string `yaml:"units_range"`
	TenantsRange  string `yaml:"tenants_range"`
	RentalsRange  string `yaml:"rentals_range"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		// Strict unmarshaling to detect unknown fields
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)

		if err := decoder.Decode(&cfg); err != nil {
			slog.Error("Failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SecretsPath:     ".secrets",
		},
		Google: GoogleConfig{
			Issuer: "https://accounts.google.com",
			Scopes: []string{
				"openid",
				"email",
				"profile",
				"https://www.googleapis.com/auth/spreadsheets",
			},
		},
		Session: SessionConfig{
			CookieName: "session",
		},
		Sheets: SheetsConfig{
			UnitsRange:   "Monsey!A:AE",
			TenantsRange: "Tenants!A:E",
			RentalsRange: "Monsey!A:Z",
		},
		CORS: CORSConfig{
			AllowedMethods: DefaultCORSAllowedMethods,
			AllowedHeaders: DefaultCORSAllowedHeaders,
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"RENTALGW_DEV_LISTEN_ADDR":       func(v string) { cfg.Server.DevListenAddr = v },
		"RENTALGW_HTTP_LISTEN_ADDR":      func(v string) { cfg.Server.HTTPListenAddr = v },
		"RENTALGW_HTTPS_LISTEN_ADDR":     func(v string) { cfg.Server.HTTPSListenAddr = v },
		"RENTALGW_DEV_MODE":              func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"RENTALGW_TLS_DOMAINS":           func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"RENTALGW_TLS_EMAIL":             func(v string) { cfg.Server.TLS.Email = v },
		"RENTALGW_SECRETS_PATH":          func(v string) { cfg.Server.SecretsPath = v },
		"RENTALGW_GOOGLE_CLIENT_ID":      func(v string) { cfg.Google.ClientID = v },
		"RENTALGW_GOOGLE_CLIENT_SECRET":  func(v string) { cfg.Google.ClientSecret = v },
		"RENTALGW_GOOGLE_REDIRECT_URI":   func(v string) { cfg.Google.RedirectURI = v },
		"RENTALGW_APP_BASE_URL":          func(v string) { cfg.App.BaseURL = v },
		"RENTALGW_SESSION_SECRET":        func(v string) { cfg.Session.Secret = v },
		"RENTALGW_CORS_ALLOWED_ORIGINS":  func(v string) { cfg.CORS.AllowedOrigins = splitAndTrim(v) },
		"RENTALGW_SHEETS_SPREADSHEET_ID": func(v string) { cfg.Sheets.SpreadsheetID = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SessionTTL returns the configured session token lifetime.
func (s SessionConfig) SessionTTL() time.Duration {
	return parseDuration(s.TTL, DefaultSessionTTL)
}

// LoginWindow returns the configured state token lifetime.
func (s SessionConfig) LoginWindow() time.Duration {
	return parseDuration(s.StateTTL, DefaultStateTTL)
}

// Validate checks every setting the auth flow cannot run without. It runs once
// at startup; a failure aborts the process instead of surfacing on the first
// request.
func (c Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"google.client_id", c.Google.ClientID},
		{"google.client_secret", c.Google.ClientSecret},
		{"google.redirect_uri", c.Google.RedirectURI},
		{"app.base_url", c.App.BaseURL},
		{"session.secret", c.Session.Secret},
	}
	for _, r := range required {
		if r.value == "" {
			slog.Error("Missing required configuration", "field", r.key)
			return fmt.Errorf("%s is required", r.key)
		}
	}

	if len(c.Session.Secret) < MinSessionSecretLen {
		slog.Error("Session secret too short", "field", "session.secret", "min_bytes", MinSessionSecretLen)
		return fmt.Errorf("session.secret must be at least %d bytes", MinSessionSecretLen)
	}

	for _, u := range []struct{ key, value string }{
		{"google.redirect_uri", c.Google.RedirectURI},
		{"app.base_url", c.App.BaseURL},
	} {
		if !strings.HasPrefix(u.value, "http://") && !strings.HasPrefix(u.value, "https://") {
			slog.Error("Invalid configuration value", "field", u.key, "value", u.value, "reason", "must start with http:// or https://")
			return fmt.Errorf("%s must start with http:// or https://, got: %s", u.key, u.value)
		}
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		slog.Error("Missing required configuration", "field", "cors.allowed_origins")
		return errors.New("cors.allowed_origins is required")
	}
	for i, origin := range c.CORS.AllowedOrigins {
		// Browsers reject wildcard origins on credentialed requests, so a
		// wildcard here could only ever produce broken responses.
		if origin == "*" {
			slog.Error("Wildcard origin not allowed with credentialed requests", "field", "cors.allowed_origins", "index", i)
			return errors.New("cors.allowed_origins must not contain '*'")
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			slog.Error("Invalid CORS origin", "origin", origin, "index", i)
			return fmt.Errorf("cors.allowed_origins[%d] must start with http:// or https://, got: %s", i, origin)
		}
	}

	if c.Session.TTL != "" {
		if _, err := time.ParseDuration(c.Session.TTL); err != nil {
			return fmt.Errorf("session.ttl invalid duration %q: %w", c.Session.TTL, err)
		}
	}
	if c.Session.StateTTL != "" {
		if _, err := time.ParseDuration(c.Session.StateTTL); err != nil {
			return fmt.Errorf("session.state_ttl invalid duration %q: %w", c.Session.StateTTL, err)
		}
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		slog.Error("Missing required configuration for production mode", "field", "server.tls.domains")
		return errors.New("server.tls.domains must be provided in production")
	}

	return nil
}
