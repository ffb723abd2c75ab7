package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmanager.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Workflow.ExampleLimit != 10 {
		t.Errorf("expected example limit 10, got %d", cfg.Workflow.ExampleLimit)
	}
	if cfg.Workflow.Temperature != 0 {
		t.Errorf("expected temperature 0, got %v", cfg.Workflow.Temperature)
	}
	if cfg.Memory.Backend != BackendInMemory {
		t.Errorf("expected inmem memory backend, got %s", cfg.Memory.Backend)
	}
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
workflow:
  default_model: "openai/gpt-4o"
  example_limit: 5
  criteria:
    approval_criteria: "Books under $50 are fine."
logging:
  level: "debug"
`)

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Workflow.DefaultModel != "openai/gpt-4o" {
		t.Errorf("expected model override, got %s", cfg.Workflow.DefaultModel)
	}
	if cfg.Workflow.ExampleLimit != 5 {
		t.Errorf("expected example limit 5, got %d", cfg.Workflow.ExampleLimit)
	}
	if cfg.Workflow.Criteria.ApprovalCriteria != "Books under $50 are fine." {
		t.Errorf("unexpected approval criteria %q", cfg.Workflow.Criteria.ApprovalCriteria)
	}
	if cfg.Workflow.ReflectionMaxTokens != 4500 {
		t.Errorf("unchanged fields keep defaults, got %d", cfg.Workflow.ReflectionMaxTokens)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, writeYAML(t, "server: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LLMANAGER_PORT", "7070")
	t.Setenv("LLMANAGER_MEMORY_BACKEND", "postgres")
	t.Setenv("LLMANAGER_CAS_RETRIES", "9")
	t.Setenv("LLMANAGER_BREAKER_TIMEOUT", "45s")
	t.Setenv("LLMANAGER_API_KEY_HASHES", " $2a$10$abc , $2a$10$def ")
	t.Setenv("LLMANAGER_LOG_ASYNC", "true")

	cfg := Defaults()
	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Memory.Backend != BackendPostgres {
		t.Errorf("expected postgres backend, got %s", cfg.Memory.Backend)
	}
	if cfg.Workflow.CASRetries != 9 {
		t.Errorf("expected 9 retries, got %d", cfg.Workflow.CASRetries)
	}
	if cfg.Breaker.Timeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.Breaker.Timeout)
	}
	if len(cfg.Auth.APIKeyHashes) != 2 || cfg.Auth.APIKeyHashes[1] != "$2a$10$def" {
		t.Errorf("unexpected key hashes %v", cfg.Auth.APIKeyHashes)
	}
	if !cfg.Logging.Async {
		t.Error("expected async logging")
	}
}

func TestEnvInvalidValueIgnored(t *testing.T) {
	t.Setenv("LLMANAGER_EXAMPLE_LIMIT", "ten")
	cfg := Defaults()
	loadEnv(&cfg)
	if cfg.Workflow.ExampleLimit != 10 {
		t.Errorf("unparseable env must keep the default, got %d", cfg.Workflow.ExampleLimit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server.port"},
		{"unknown backend", func(c *Config) { c.Memory.Backend = "redis" }, "memory.backend"},
		{"unknown checkpoint backend", func(c *Config) { c.Workflow.CheckpointBackend = "file" }, "checkpoint_backend"},
		{"breaker", func(c *Config) { c.Breaker.MaxFailures = 0 }, "breaker.max_failures"},
		{"example limit", func(c *Config) { c.Workflow.ExampleLimit = 0 }, "example_limit"},
		{"cas retries", func(c *Config) { c.Workflow.CASRetries = 0 }, "cas_retries"},
		{"kv without nats", func(c *Config) { c.Memory.Backend = BackendNATSKV }, "nats.url"},
		{"intake without nats", func(c *Config) { c.Workflow.IntakeEnabled = true }, "nats.url"},
		{"pg without dsn", func(c *Config) { c.Memory.Backend = BackendPostgres; c.Postgres.DSN = "" }, "postgres.dsn"},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }, "api_key_hashes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFrom_FullHierarchy(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
logging:
  level: "debug"
`)
	t.Setenv("LLMANAGER_PORT", "7070")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("YAML should override defaults: got level %q", cfg.Logging.Level)
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"--port", "9090", "--log-level", "debug", "-c", "custom.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if flags.Port == nil || *flags.Port != "9090" {
		t.Errorf("expected port 9090, got %v", flags.Port)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Errorf("expected log-level debug, got %v", flags.LogLevel)
	}
	if flags.ConfigPath == nil || *flags.ConfigPath != "custom.yaml" {
		t.Errorf("expected config custom.yaml, got %v", flags.ConfigPath)
	}
	if flags.DSN != nil || flags.NatsURL != nil || flags.Model != nil {
		t.Error("unset flags must remain nil")
	}

	if _, err := ParseFlags([]string{"--unknown-flag"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestLoadWithCLI(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "5555"
`)
	t.Setenv("LLMANAGER_PORT", "7070")
	port, model := "3333", "openai/gpt-4o-mini"

	cfg, resolved, err := LoadWithCLI(CLIFlags{ConfigPath: &path, Port: &port, Model: &model})
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Server.Port != "3333" {
		t.Errorf("CLI must override ENV and YAML, got %s", cfg.Server.Port)
	}
	if cfg.Workflow.DefaultModel != model {
		t.Errorf("expected CLI model, got %s", cfg.Workflow.DefaultModel)
	}
}

func TestNotifyChannels(t *testing.T) {
	path := writeYAML(t, `
notify:
  channels:
    - provider: discord
      webhook_url: https://discord.invalid/hook
`)
	t.Setenv("LLMANAGER_SLACK_WEBHOOK_URL", "https://hooks.slack.invalid/x")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Notify.Channels) != 2 {
		t.Fatalf("channels = %+v", cfg.Notify.Channels)
	}
	if cfg.Notify.Channels[0].Provider != "discord" || cfg.Notify.Channels[1].Provider != "slack" {
		t.Errorf("channels = %+v", cfg.Notify.Channels)
	}

	bad := writeYAML(t, "notify:\n  channels:\n    - provider: slack\n")
	if _, err := LoadFrom(bad); err == nil || !strings.Contains(err.Error(), "notify.channels[0]") {
		t.Errorf("expected channel validation error, got %v", err)
	}
}
