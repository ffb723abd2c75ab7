package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "llmanager.yaml"

var backends = []string{BackendInMemory, BackendPostgres, BackendNATSKV}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "LLMANAGER_PORT")
	setString(&cfg.Server.CORSOrigin, "LLMANAGER_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "LLMANAGER_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "LLMANAGER_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "LLMANAGER_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "LLMANAGER_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "LLMANAGER_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "LLMANAGER_NATS_STREAM")

	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setInt(&cfg.LiteLLM.MaxConcurrent, "LLMANAGER_LLM_MAX_CONCURRENT")

	setString(&cfg.Logging.Level, "LLMANAGER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "LLMANAGER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "LLMANAGER_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "LLMANAGER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "LLMANAGER_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "LLMANAGER_RATE_RPS")
	setInt(&cfg.Rate.Burst, "LLMANAGER_RATE_BURST")

	setString(&cfg.Memory.Backend, "LLMANAGER_MEMORY_BACKEND")
	setString(&cfg.Memory.KVBucket, "LLMANAGER_MEMORY_KV_BUCKET")

	// Workflow
	setString(&cfg.Workflow.DefaultModel, "LLMANAGER_MODEL")
	setFloat64(&cfg.Workflow.Temperature, "LLMANAGER_TEMPERATURE")
	setInt(&cfg.Workflow.DecisionMaxTokens, "LLMANAGER_DECISION_MAX_TOKENS")
	setInt(&cfg.Workflow.ReflectionMaxTokens, "LLMANAGER_REFLECTION_MAX_TOKENS")
	setInt(&cfg.Workflow.ExampleLimit, "LLMANAGER_EXAMPLE_LIMIT")
	setInt(&cfg.Workflow.CASRetries, "LLMANAGER_CAS_RETRIES")
	setString(&cfg.Workflow.CheckpointBackend, "LLMANAGER_CHECKPOINT_BACKEND")
	setString(&cfg.Workflow.CheckpointBucket, "LLMANAGER_CHECKPOINT_BUCKET")
	setBool(&cfg.Workflow.IntakeEnabled, "LLMANAGER_INTAKE_ENABLED")
	setString(&cfg.Workflow.Criteria.ApprovalCriteria, "LLMANAGER_APPROVAL_CRITERIA")
	setString(&cfg.Workflow.Criteria.RejectionCriteria, "LLMANAGER_REJECTION_CRITERIA")

	// Cache
	setBool(&cfg.Cache.Enabled, "LLMANAGER_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "LLMANAGER_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "LLMANAGER_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "LLMANAGER_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "LLMANAGER_CACHE_L2_TTL")

	setString(&cfg.Idempotency.Bucket, "LLMANAGER_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "LLMANAGER_IDEMPOTENCY_TTL")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "LLMANAGER_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "LLMANAGER_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "LLMANAGER_OTEL_SAMPLE_RATE")

	setBool(&cfg.Auth.Enabled, "LLMANAGER_AUTH_ENABLED")
	setList(&cfg.Auth.APIKeyHashes, "LLMANAGER_API_KEY_HASHES")

	setBool(&cfg.MCP.Enabled, "LLMANAGER_MCP_ENABLED")
	setString(&cfg.MCP.Port, "LLMANAGER_MCP_PORT")

	setInt64(&cfg.Limits.MaxRequestBodyBytes, "LLMANAGER_MAX_BODY_BYTES")
	setInt(&cfg.Limits.MaxQueryLength, "LLMANAGER_MAX_QUERY_LENGTH")

	setDuration(&cfg.Notify.Timeout, "LLMANAGER_NOTIFY_TIMEOUT")
	addChannel(&cfg.Notify, "slack", "LLMANAGER_SLACK_WEBHOOK_URL")
	addChannel(&cfg.Notify, "discord", "LLMANAGER_DISCORD_WEBHOOK_URL")
}

// addChannel appends a notify channel when the webhook variable is set.
func addChannel(n *Notify, provider, key string) {
	if v := os.Getenv(key); v != "" {
		n.Channels = append(n.Channels, NotifyChannel{Provider: provider, WebhookURL: v})
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.LiteLLM.URL == "" {
		return errors.New("litellm.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if !slices.Contains(backends, cfg.Memory.Backend) {
		return fmt.Errorf("memory.backend %q must be one of %v", cfg.Memory.Backend, backends)
	}
	if !slices.Contains(backends, cfg.Workflow.CheckpointBackend) {
		return fmt.Errorf("workflow.checkpoint_backend %q must be one of %v", cfg.Workflow.CheckpointBackend, backends)
	}
	usesPG := cfg.Memory.Backend == BackendPostgres || cfg.Workflow.CheckpointBackend == BackendPostgres
	if usesPG && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for the postgres backend")
	}
	if usesPG && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	usesKV := cfg.Memory.Backend == BackendNATSKV || cfg.Workflow.CheckpointBackend == BackendNATSKV || cfg.Workflow.IntakeEnabled
	if usesKV && cfg.NATS.URL == "" {
		return errors.New("nats.url is required for the natskv backend and the intake subscriber")
	}
	if cfg.Workflow.DefaultModel == "" {
		return errors.New("workflow.default_model is required")
	}
	if cfg.Workflow.ExampleLimit < 1 {
		return errors.New("workflow.example_limit must be >= 1")
	}
	if cfg.Workflow.CASRetries < 1 {
		return errors.New("workflow.cas_retries must be >= 1")
	}
	if cfg.Limits.MaxQueryLength < 1 {
		return errors.New("limits.max_query_length must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeyHashes) == 0 {
		return errors.New("auth.api_key_hashes is required when auth is enabled")
	}
	for i, ch := range cfg.Notify.Channels {
		if ch.Provider == "" || ch.WebhookURL == "" {
			return fmt.Errorf("notify.channels[%d] needs provider and webhook_url", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
