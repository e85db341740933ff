package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noosphere/internal/auth"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Browse     BrowseConfig      `yaml:"browse"`
	MCP        MCPConfig         `yaml:"mcp"`
	SSE        SSEConfig         `yaml:"sse"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Browse.Validate(); err != nil {
		return err
	}
	return c.MCP.Validate()
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

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
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
// Mode controls how callers are identified:
//   - "disabled" (default): every caller acts as DefaultUser.
//   - "token": Bearer tokens are mapped to user ids; Tokens must be non-empty.
type AuthConfig struct {
	Mode        string       `yaml:"mode"`
	Tokens      []auth.Token `yaml:"tokens"`
	DefaultUser string       `yaml:"default_user"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if c.DefaultUser == "" {
		c.DefaultUser = auth.DefaultUser
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Tokens, validation.Each(validation.By(validateToken))),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && len(c.Tokens) == 0 {
		return fmt.Errorf("auth: mode is %q but no tokens are configured", AuthModeToken)
	}
	seen := make(map[string]struct{}, len(c.Tokens))
	for _, t := range c.Tokens {
		if _, dup := seen[t.Token]; dup {
			return fmt.Errorf("auth: duplicate token for user %q", t.UserID)
		}
		seen[t.Token] = struct{}{}
	}
	return nil
}

func validateToken(v any) error {
	t, ok := v.(auth.Token)
	if !ok {
		return errors.New("must be a token entry")
	}
	if strings.TrimSpace(t.Token) == "" {
		return errors.New("token must not be empty")
	}
	if strings.TrimSpace(t.UserID) == "" {
		return errors.New("user_id must not be empty")
	}
	return nil
}

// AuthEnabled returns true when token authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// Resolver builds the request identity resolver for this configuration.
func (c *AuthConfig) Resolver() *auth.Resolver {
	return auth.NewResolver(c.AuthEnabled(), c.Tokens, c.DefaultUser)
}

// ClassifierConfig points at an optional YAML lexicon. An empty path keeps
// the built-in lexicon and disables hot reload.
type ClassifierConfig struct {
	LexiconPath string `yaml:"lexicon_path"`
}

// BrowseConfig controls the synthesized project view.
type BrowseConfig struct {
	RecentLimit int `yaml:"recent_limit"`
}

// Validate validates the browse configuration.
func (c *BrowseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RecentLimit, validation.Required, validation.Min(1), validation.Max(200)),
	)
}

// MCPConfig holds the streamable HTTP endpoint settings.
type MCPConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the MCP configuration.
func (c *MCPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required, validation.By(func(v any) error {
			if s, _ := v.(string); !strings.HasPrefix(s, "/") {
				return errors.New("must start with /")
			}
			return nil
		})),
	)
}

// SSEConfig holds change-event settings.
type SSEConfig struct {
	ProjectsThrottle time.Duration `yaml:"projects_throttle"`
	Heartbeat        time.Duration `yaml:"heartbeat"`
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
		SQLite: SQLiteConfig{
			Path: "./noosphere.db",
		},
		Auth: AuthConfig{
			Mode:        AuthModeDisabled,
			DefaultUser: auth.DefaultUser,
		},
		Browse: BrowseConfig{
			RecentLimit: 10,
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
		SSE: SSEConfig{
			ProjectsThrottle: 2 * time.Second,
			Heartbeat:        25 * time.Second,
		},
	}
}
