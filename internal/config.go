package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	API     APIConfig         `yaml:"api"`
	Session SessionConfig     `yaml:"session"`
	Router  RouterConfig      `yaml:"router"`
	Avatars AvatarsConfig     `yaml:"avatars"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return c.Avatars.Validate()
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
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// APIConfig locates the judge backend.
//
// Requests go to Origin joined with Root, so the default root "/api"
// against "http://localhost:8000" sends GET /problems/1 to
// http://localhost:8000/api/problems/1.
type APIConfig struct {
	Origin  string        `yaml:"origin"`
	Root    string        `yaml:"root"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the API configuration.
func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Origin, validation.Required, is.URL),
		validation.Field(&c.Root, validation.Required, validation.By(leadingSlash)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// BaseURL returns the origin joined with the API root.
func (c *APIConfig) BaseURL() string {
	return strings.TrimRight(c.Origin, "/") + "/" + strings.Trim(c.Root, "/")
}

func leadingSlash(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, "/") {
		return fmt.Errorf("must start with /")
	}
	return nil
}

// SessionConfig holds credential persistence and forced-logout settings.
//
// An empty StorePath keeps credentials in memory for the process lifetime.
type SessionConfig struct {
	StorePath   string        `yaml:"store_path"`
	LogoutDelay time.Duration `yaml:"logout_delay"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogoutDelay, validation.Required, validation.Min(time.Millisecond)),
	)
}

// RouterConfig controls navigation guards.
type RouterConfig struct {
	// EnforceAuth installs the auth guard for routes that declare
	// requiresAuth. Off by default.
	EnforceAuth bool `yaml:"enforce_auth"`
}

// AvatarsConfig holds the avatar upload watcher settings. An empty
// WatchDir disables the watcher.
type AvatarsConfig struct {
	WatchDir string        `yaml:"watch_dir"`
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the avatars configuration.
func (c *AvatarsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		API: APIConfig{
			Origin:  "http://localhost:8000",
			Root:    "/api",
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			StorePath:   "./ojportal.db",
			LogoutDelay: 100 * time.Millisecond,
		},
		Avatars: AvatarsConfig{
			Throttle: 2 * time.Second,
		},
	}
}
