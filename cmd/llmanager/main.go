package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	llhttp "github.com/Strob0t/LLManager/internal/adapter/http"
	"github.com/Strob0t/LLManager/internal/adapter/litellm"
	llmcp "github.com/Strob0t/LLManager/internal/adapter/mcp"
	cfotel "github.com/Strob0t/LLManager/internal/adapter/otel"
	"github.com/Strob0t/LLManager/internal/adapter/ws"
	"github.com/Strob0t/LLManager/internal/config"
	"github.com/Strob0t/LLManager/internal/logger"
	"github.com/Strob0t/LLManager/internal/middleware"
	"github.com/Strob0t/LLManager/internal/port/broadcast"
	"github.com/Strob0t/LLManager/internal/port/notifier"
	"github.com/Strob0t/LLManager/internal/resilience"
	"github.com/Strob0t/LLManager/internal/secrets"
	"github.com/Strob0t/LLManager/internal/service"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := dispatch(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// dispatch runs the named subcommand. Without one, or when the first
// argument is a flag, the server starts.
func dispatch(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return runServe(args)
	}
	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "decide":
		return runDecide(args[1:])
	case "review":
		return runReview(args[1:])
	case "pending":
		return runPending(args[1:])
	case "hash-key":
		return runHashKey(args[1:])
	case "help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: llmanager [command] [options]

Commands:
  serve      Start the HTTP, WebSocket and MCP server (default)
  decide     Request a decision and print the proposed review
  review     Resolve pending reviews interactively
  pending    List runs waiting for review
  hash-key   Print the bcrypt hash of an API key for auth.api_key_hashes
  help       Show this help message

Examples:
  llmanager serve --config llmanager.yaml --port 8080
  llmanager decide --assistant-id acme "Buy a standing desk for 450 EUR"
  llmanager review --assistant-id acme
  llmanager hash-key
`)
}

func runServe(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, path, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLog.Close()

	slog.Info("config loaded",
		"path", path,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"memory_backend", cfg.Memory.Backend,
		"checkpoint_backend", cfg.Workflow.CheckpointBackend,
		"model", cfg.Workflow.DefaultModel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTEL, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	infra, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	// --- LLM ---

	vault, err := secrets.NewVault(secrets.WithDefaults(
		secrets.EnvLoader(secrets.LiteLLMMasterKey, secrets.APIKeyHashes),
		map[string]string{
			secrets.LiteLLMMasterKey: cfg.LiteLLM.MasterKey,
			secrets.APIKeyHashes:     strings.Join(cfg.Auth.APIKeyHashes, ","),
		},
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	stopReload := reloadOnHangup(vault)
	defer stopReload()

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llmClient.SetKeySource(func() string { return vault.Get(secrets.LiteLLMMasterKey) })
	slog.Info("litellm configured", "url", cfg.LiteLLM.URL, "master_key", vault.Redacted(secrets.LiteLLMMasterKey))
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	llmClient.SetPool(resilience.NewPool(cfg.LiteLLM.MaxConcurrent))
	model := litellm.NewModel(llmClient, cfg.Workflow.DefaultModel)

	// --- Services ---

	hub := ws.NewHub(originPatterns(cfg.Server.CORSOrigin))
	reviewNotifier, err := newReviewNotifier(cfg.Notify)
	if err != nil {
		return err
	}
	defer reviewNotifier.Wait()

	deps := service.WorkflowDeps{
		Model:       model,
		Memory:      infra.memory,
		Checkpoints: infra.checkpoints,
		Hub:         broadcast.Multi{hub, reviewNotifier},
		Metrics:     metrics,
	}
	if infra.queue != nil {
		deps.Queue = infra.queue
	}
	workflowSvc := service.NewWorkflowService(service.WorkflowConfig{
		DefaultModel:        cfg.Workflow.DefaultModel,
		Temperature:         cfg.Workflow.Temperature,
		DecisionMaxTokens:   cfg.Workflow.DecisionMaxTokens,
		ReflectionMaxTokens: cfg.Workflow.ReflectionMaxTokens,
		ExampleLimit:        cfg.Workflow.ExampleLimit,
		CASRetries:          cfg.Workflow.CASRetries,
		MaxQueryLength:      cfg.Limits.MaxQueryLength,
		Criteria:            cfg.Workflow.Criteria,
	}, deps)

	if cfg.Workflow.IntakeEnabled {
		cancelIntake, err := workflowSvc.StartIntakeSubscriber(ctx)
		if err != nil {
			return fmt.Errorf("intake subscriber: %w", err)
		}
		defer cancelIntake()
		slog.Info("intake subscriber started")
	}

	// --- HTTP ---

	handlers := &llhttp.Handlers{
		Workflow: workflowSvc,
		LiteLLM:  llmClient,
		Limits:   cfg.Limits,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(llhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(llhttp.SecurityHeaders)
	r.Use(llhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(limiter.Handler)

	var auth *middleware.APIKeyAuth
	if cfg.Auth.Enabled {
		auth = middleware.NewAPIKeyAuth(vault.GetList(secrets.APIKeyHashes))
		vault.OnReload(func(v *secrets.Vault) {
			hashes := v.GetList(secrets.APIKeyHashes)
			if len(hashes) == 0 {
				slog.Warn("api key hashes empty after reload; all requests will be rejected")
			}
			auth.SetHashes(hashes)
		})
		r.Use(auth.Handler)
	}

	r.Get("/health", llhttp.Liveness)
	r.Get("/health/ready", llhttp.Readiness(infra.readinessChecks(llmClient), 3*time.Second))
	r.Get("/ws", hub.HandleWS)

	llhttp.MountRoutes(r, handlers, middleware.Idempotency(infra.idempotency, cfg.Idempotency.TTL))

	// --- MCP ---

	var mcpSrv *llmcp.Server
	if cfg.MCP.Enabled {
		mcpDeps := llmcp.ServerDeps{Workflow: workflowSvc}
		if auth != nil {
			mcpDeps.Authorize = auth.Valid
		}
		mcpSrv = llmcp.NewServer(llmcp.ServerConfig{
			Addr:    ":" + cfg.MCP.Port,
			Name:    "llmanager",
			Version: version,
		}, mcpDeps)
		if err := mcpSrv.Start(); err != nil {
			return err
		}
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}

// reloadOnHangup reloads the vault on every SIGHUP until the returned stop
// function is called.
func reloadOnHangup(vault *secrets.Vault) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-hup:
				if err := vault.Reload(); err != nil {
					slog.Error("secret reload failed", "error", err)
					continue
				}
				slog.Info("secrets reloaded", "master_key", vault.Redacted(secrets.LiteLLMMasterKey))
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(hup)
		close(done)
	}
}

// newReviewNotifier builds the chat notifiers of every configured channel.
func newReviewNotifier(cfg config.Notify) (*service.ReviewNotifier, error) {
	notifiers := make([]notifier.Notifier, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		n, err := notifier.New(ch.Provider, ch.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		notifiers = append(notifiers, n)
	}
	if len(notifiers) > 0 {
		slog.Info("review notifications enabled", "channels", len(notifiers))
	}
	return service.NewReviewNotifier(notifiers, cfg.Timeout), nil
}

// originPatterns turns the CORS origin into a WebSocket origin pattern.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return []string{origin}
	}
	return []string{u.Host}
}
