package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Library LibraryConfig     `yaml:"library"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Static  StaticConfig      `yaml:"static"`
	Agent   AgentConfig       `yaml:"agent"`
	Client  ClientConfig      `yaml:"client"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	// WriteRPS limits writes per client address. Zero disables the limit.
	WriteRPS   float64 `yaml:"write_rps"`
	WriteBurst int     `yaml:"write_burst"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.CORSOrigins, validation.Each(validation.Required)),
		validation.Field(&c.WriteRPS, validation.Min(0.0)),
		validation.Field(&c.WriteBurst, validation.When(c.WriteRPS > 0, validation.Required, validation.Min(1))),
	)
}

// LibraryConfig holds the path to the Markdown song library.
type LibraryConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	// Path is the document store database.
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// StaticConfig points at the web application shell served at "/".
type StaticConfig struct {
	Dir string `yaml:"dir"`
}

// AgentConfig configures the offline caching proxy in front of the web app.
type AgentConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	Upstream       string   `yaml:"upstream"`
	CachePath      string   `yaml:"cache_path"`
	Version        string   `yaml:"version"`
	Prefix         string   `yaml:"prefix"`
	Shell          []string `yaml:"shell"`
	APIHosts       []string `yaml:"api_hosts"`
	BypassPrefixes []string `yaml:"bypass_prefixes"`
	Collections    []string `yaml:"collections"`
	OfflinePath    string   `yaml:"offline_path"`
	MaxEntryBytes  int64    `yaml:"max_entry_bytes"`
}

// Address returns the proxy listen address.
func (c *AgentConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// UpstreamURL parses Upstream.
func (c *AgentConfig) UpstreamURL() (*url.URL, error) {
	return url.Parse(c.Upstream)
}

// Validate validates the agent configuration. A disabled agent is not checked.
func (c *AgentConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Upstream, validation.Required, is.URL),
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.Shell, validation.Each(validation.Required)),
		validation.Field(&c.MaxEntryBytes, validation.Min(int64(0))),
	)
}

// ClientConfig configures access to a remote document store for the
// presentation commands and the offline keeper.
type ClientConfig struct {
	RemoteURL     string        `yaml:"remote_url"`
	Token         string        `yaml:"token"`
	LocalPath     string        `yaml:"local_path"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	// Keep refreshes prepared setlists in the background while serving.
	Keep    bool   `yaml:"keep"`
	LogFile string `yaml:"log_file"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RemoteURL, is.URL),
		validation.Field(&c.LocalPath, validation.Required),
		validation.Field(&c.ProbeInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if c.Keep && c.RemoteURL == "" {
		return fmt.Errorf("client: keep requires remote_url")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:       8080,
				WriteRPS:   20,
				WriteBurst: 40,
			},
		},
		Library: LibraryConfig{
			Path:  "./songs",
			Watch: true,
		},
		SQLite: SQLiteConfig{
			Path: "./setlist.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Agent: AgentConfig{
			Port:           8081,
			Upstream:       "http://localhost:8080",
			CachePath:      "./cache",
			Version:        "v1",
			Prefix:         "setlist-shell-",
			Shell:          []string{"/", "/offline.html"},
			BypassPrefixes: []string{"/api/", "/health/", "/ai/"},
			Collections:    []string{"songs", "setlists"},
			OfflinePath:    "/offline.html",
		},
		Client: ClientConfig{
			RemoteURL:     "http://localhost:8080",
			LocalPath:     "./local.db",
			ProbeInterval: 5 * time.Second,
			RetryDelay:    2 * time.Second,
			LogFile:       "./present.log",
		},
	}
}
