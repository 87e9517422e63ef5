// main wires the audit engine, its drivers and transports, and the demo
// article service behind an HTTP router. Business logic lives in internal
// packages; this stays assembly only.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"chronicle/internal/article"
	"chronicle/internal/platform/config"
	"chronicle/internal/platform/httpserver"
	"chronicle/internal/platform/logger"
	platformredis "chronicle/internal/platform/redis"
	httptransport "chronicle/internal/transport/http"
	"chronicle/pkg/audit"
	"chronicle/pkg/audit/auditor"
	"chronicle/pkg/audit/builder"
	"chronicle/pkg/audit/modifier"
	"chronicle/pkg/audit/publishers/kafka"
	"chronicle/pkg/audit/queue"
	"chronicle/pkg/audit/resolver"
	"chronicle/pkg/audit/store/file"
	"chronicle/pkg/audit/store/memory"
	"chronicle/pkg/audit/store/postgres"
	"chronicle/pkg/audit/store/sqlite"
	"chronicle/pkg/audit/transition"
	"chronicle/pkg/audit/worker"
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := auditor.NewMetrics(reg)

	modifiers := modifier.NewRegistry()
	if err := registerModifiers(modifiers, cfg.Audit.EncryptionKey); err != nil {
		return err
	}

	resolvers := resolver.Defaults()
	if err := resolvers.SetActor(resolver.JWTActor([]byte(cfg.Server.JWTSigningKey), "user")); err != nil {
		return err
	}

	opts := []auditor.Option{
		auditor.WithLogger(log),
		auditor.WithMetrics(metrics),
		auditor.WithDefaultDriver(cfg.Audit.Driver),
		auditor.WithDefaultThreshold(cfg.Audit.Threshold),
	}

	var publisher *kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.WithLogger(log))
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer publisher.Close()
		opts = append(opts, auditor.OnPostWrite(publisher.PostWrite))
	}

	aud := auditor.New(builder.New(resolvers, modifiers), opts...)

	if err := registerDrivers(ctx, aud, cfg); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Capture mode: synchronous by default; deferred through Redis when a
	// queue is configured, else through an in-process worker pool.
	var capturer article.Capturer = aud
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	switch {
	case redisClient != nil:
		defer redisClient.Close()
		q := queue.New(redisClient.Client, queue.WithLogger(log))
		capturer = worker.NewDispatcher(aud, q.Enqueue)
		g.Go(func() error {
			err := q.Run(ctx, aud)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	case cfg.Audit.Workers > 0:
		inbox := make(chan audit.Job, 256)
		capturer = worker.NewDispatcher(aud, worker.ChannelEnqueuer(inbox))
		w := worker.New(aud, inbox, worker.WithConcurrency(cfg.Audit.Workers), worker.WithLogger(log))
		g.Go(func() error {
			err := w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	var reader audit.Reader
	if driver, ok := aud.Driver(cfg.Audit.Driver); ok {
		reader, _ = driver.(audit.Reader)
	}

	articles := article.NewService(capturer, article.WithTransitions(transition.New(modifiers)))
	handler := httptransport.NewHandler(articles, reader, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler, reg))

	g.Go(func() error {
		log.Info("starting chronicle", "addr", cfg.Server.Addr, "driver", cfg.Audit.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func registerModifiers(registry *modifier.Registry, encryptionKey string) error {
	if err := registry.RegisterEncoder("base64", modifier.Base64{}); err != nil {
		return err
	}
	if encryptionKey != "" {
		key, err := hex.DecodeString(encryptionKey)
		if err != nil {
			return fmt.Errorf("decode audit encryption key: %w", err)
		}
		aead, err := modifier.NewAEAD(key)
		if err != nil {
			return err
		}
		if err := registry.RegisterEncoder("aead", aead); err != nil {
			return err
		}
	}
	if err := registry.RegisterRedactor("mask", modifier.Mask{}); err != nil {
		return err
	}
	if err := registry.RegisterRedactor("left-mask", modifier.LeftMask{Keep: 4}); err != nil {
		return err
	}
	return registry.RegisterRedactor("sha256", modifier.SHA256{})
}

// registerDrivers binds every configured store. The memory driver is always
// available so a bare config still works end to end.
func registerDrivers(ctx context.Context, aud *auditor.Auditor, cfg config.Config) error {
	if err := aud.RegisterDriver("memory", memory.New()); err != nil {
		return err
	}

	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if _, err := db.ExecContext(ctx, postgres.Schema); err != nil {
			return fmt.Errorf("ensure postgres schema: %w", err)
		}
		if err := aud.RegisterDriver("postgres", postgres.New(db)); err != nil {
			return err
		}
	}

	if cfg.SQLite.Path != "" {
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		if err := aud.RegisterDriver("sqlite", store); err != nil {
			return err
		}
	}

	if cfg.File.Dir != "" {
		store := file.New(file.LocalFS{}, cfg.File.Dir, cfg.File.Basename,
			file.WithRotation(file.Rotation(cfg.File.Rotation)))
		if err := aud.RegisterDriver("file", store); err != nil {
			return err
		}
	}
	return nil
}
