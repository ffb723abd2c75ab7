package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go/jetstream"

	llhttp "github.com/Strob0t/LLManager/internal/adapter/http"
	"github.com/Strob0t/LLManager/internal/adapter/inmem"
	"github.com/Strob0t/LLManager/internal/adapter/litellm"
	"github.com/Strob0t/LLManager/internal/adapter/memcache"
	cfnats "github.com/Strob0t/LLManager/internal/adapter/nats"
	"github.com/Strob0t/LLManager/internal/adapter/natskv"
	"github.com/Strob0t/LLManager/internal/adapter/postgres"
	"github.com/Strob0t/LLManager/internal/adapter/ristretto"
	"github.com/Strob0t/LLManager/internal/adapter/tiered"
	"github.com/Strob0t/LLManager/internal/config"
	"github.com/Strob0t/LLManager/internal/port/cache"
	"github.com/Strob0t/LLManager/internal/port/checkpoint"
	"github.com/Strob0t/LLManager/internal/port/memorystore"
)

// infra holds the storage and messaging backends selected by configuration.
type infra struct {
	pool  *pgxpool.Pool
	queue *cfnats.Queue
	l1    *ristretto.Cache

	memory      memorystore.Store
	checkpoints checkpoint.Store
	idempotency cache.Cache
}

// openInfra connects the configured backends. On error everything opened
// so far is closed again.
func openInfra(ctx context.Context, cfg *config.Config) (_ *infra, err error) {
	in := &infra{}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	usesPG := cfg.Memory.Backend == config.BackendPostgres || cfg.Workflow.CheckpointBackend == config.BackendPostgres
	if usesPG {
		in.pool, err = postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected")

		if err = postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
	}

	// NATS is optional unless a KV backend or the intake subscriber needs it.
	if cfg.NATS.URL != "" {
		in.queue, err = cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	in.l1, err = ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}

	if in.memory, err = in.openMemory(ctx, cfg); err != nil {
		return nil, err
	}
	if in.checkpoints, err = in.openCheckpoints(ctx, cfg); err != nil {
		return nil, err
	}
	if in.idempotency, err = in.tier(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL, cfg.Cache.L1TTL); err != nil {
		return nil, fmt.Errorf("idempotency: %w", err)
	}
	return in, nil
}

func (in *infra) openMemory(ctx context.Context, cfg *config.Config) (memorystore.Store, error) {
	var store memorystore.Store
	switch cfg.Memory.Backend {
	case config.BackendPostgres:
		store = postgres.NewStore(in.pool)
	case config.BackendNATSKV:
		kv, err := in.keyValue(ctx, cfg.Memory.KVBucket, 0)
		if err != nil {
			return nil, fmt.Errorf("memory: %w", err)
		}
		store = natskv.NewStore(kv)
	default:
		store = inmem.NewStore()
	}

	if !cfg.Cache.Enabled || cfg.Memory.Backend == config.BackendInMemory {
		return store, nil
	}
	c, err := in.tier(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL, cfg.Cache.L1TTL)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	slog.Info("memory cache enabled", "l2", in.queue != nil)
	return memcache.New(store, c, cfg.Cache.L2TTL), nil
}

func (in *infra) openCheckpoints(ctx context.Context, cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.Workflow.CheckpointBackend {
	case config.BackendPostgres:
		return postgres.NewCheckpoints(in.pool), nil
	case config.BackendNATSKV:
		kv, err := in.keyValue(ctx, cfg.Workflow.CheckpointBucket, 0)
		if err != nil {
			return nil, fmt.Errorf("checkpoints: %w", err)
		}
		return natskv.NewCheckpoints(kv), nil
	default:
		return inmem.NewCheckpoints(), nil
	}
}

// tier returns the shared L1 cache, backed by a NATS KV bucket as L2 when
// NATS is connected.
func (in *infra) tier(ctx context.Context, bucket string, l2TTL, l1TTL time.Duration) (cache.Cache, error) {
	if in.queue == nil {
		return in.l1, nil
	}
	kv, err := in.keyValue(ctx, bucket, l2TTL)
	if err != nil {
		return nil, err
	}
	return tiered.New(in.l1, natskv.NewCache(kv), l1TTL), nil
}

func (in *infra) keyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	if in.queue == nil {
		return nil, errors.New("nats.url is required for KV buckets")
	}
	return in.queue.KeyValue(ctx, bucket, ttl)
}

// readinessChecks probes every connected backend and the LiteLLM proxy.
func (in *infra) readinessChecks(llm *litellm.Client) map[string]llhttp.ReadinessCheck {
	checks := map[string]llhttp.ReadinessCheck{
		"litellm": func(ctx context.Context) error {
			ok, err := llm.Health(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
	if in.pool != nil {
		checks["postgres"] = in.pool.Ping
	}
	if in.queue != nil {
		checks["nats"] = func(context.Context) error {
			if !in.queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	return checks
}

// Close drains NATS and closes the pool and cache.
func (in *infra) Close() {
	if in.queue != nil {
		if err := in.queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}
	if in.pool != nil {
		in.pool.Close()
	}
	if in.l1 != nil {
		in.l1.Close()
	}
}
