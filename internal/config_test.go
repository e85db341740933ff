package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/noosphere/internal/auth"
	pkgconfig "github.com/starford/noosphere/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
	if cfg.DefaultUser != auth.DefaultUser {
		t.Errorf("default user = %q, want %q", cfg.DefaultUser, auth.DefaultUser)
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Tokens: []auth.Token{{Token: "s3cret", UserID: "alice"}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with tokens should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
	if user, ok := cfg.Resolver().Lookup("s3cret"); !ok || user != "alice" {
		t.Errorf("Lookup = %q, %v", user, ok)
	}
}

func TestAuthConfig_TokenModeNoTokens(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode without tokens should fail")
	}
	if !strings.Contains(err.Error(), "no tokens") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_TokenMissingUser(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Tokens: []auth.Token{{Token: "x"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("token without user_id should fail")
	}
}

func TestAuthConfig_DuplicateToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Tokens: []auth.Token{
		{Token: "x", UserID: "alice"},
		{Token: "x", UserID: "bob"},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("duplicate tokens should fail")
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestFullConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Browse.RecentLimit != 10 {
		t.Errorf("recent_limit = %d, want 10", cfg.Browse.RecentLimit)
	}
	if cfg.MCP.Path != "/mcp" {
		t.Errorf("mcp path = %q", cfg.MCP.Path)
	}
}

func TestFullConfig_InvalidValues(t *testing.T) {
	cases := map[string]func(*Config){
		"port":         func(c *Config) { c.App.HTTP.Port = 70000 },
		"sqlite path":  func(c *Config) { c.SQLite.Path = "" },
		"recent limit": func(c *Config) { c.Browse.RecentLimit = 0 },
		"mcp path":     func(c *Config) { c.MCP.Path = "mcp" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("NOOSPHERE_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `app:
  log_level: debug
  http:
    port: 9090
sqlite:
  path: /tmp/memory.db
auth:
  mode: token
  tokens:
    - token: ${NOOSPHERE_TEST_TOKEN}
      user_id: alice
browse:
  recent_limit: 5
sse:
  projects_throttle: 500ms
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if cfg.Auth.Tokens[0].Token != "from-env" {
		t.Errorf("token = %q, want env expansion", cfg.Auth.Tokens[0].Token)
	}
	if cfg.Auth.DefaultUser != auth.DefaultUser {
		t.Errorf("default user = %q", cfg.Auth.DefaultUser)
	}
	if cfg.Browse.RecentLimit != 5 {
		t.Errorf("recent_limit = %d", cfg.Browse.RecentLimit)
	}
	if cfg.SSE.ProjectsThrottle != 500*time.Millisecond {
		t.Errorf("throttle = %v", cfg.SSE.ProjectsThrottle)
	}
	if cfg.MCP.Path != "/mcp" {
		t.Errorf("mcp path should keep default, got %q", cfg.MCP.Path)
	}
}
