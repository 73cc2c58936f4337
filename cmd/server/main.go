package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"facegate/internal/audit"
	"facegate/internal/faceauth/cipher"
	"facegate/internal/faceauth/liveness"
	"facegate/internal/faceauth/metrics"
	"facegate/internal/faceauth/replay"
	"facegate/internal/faceauth/service"
	"facegate/internal/faceauth/store"
	"facegate/internal/faceauth/uniqueness"
	"facegate/internal/faceauth/vectorindex"
	"facegate/internal/monitor"
	"facegate/internal/platform/config"
	"facegate/internal/platform/httpserver"
	"facegate/internal/platform/logger"
	platformredis "facegate/internal/platform/redis"
	httptransport "facegate/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Envelope encryption.
	keyring, err := cipher.NewLocalKeyring(masterKey(cfg, log))
	if err != nil {
		return fmt.Errorf("build keyring: %w", err)
	}
	enc, err := cipher.New(keyring)
	if err != nil {
		return fmt.Errorf("build cipher: %w", err)
	}

	// Optional Redis.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Optional Postgres; memory stores otherwise.
	var (
		profiles store.FaceProfileStore
		attempts store.MatchAttemptStore
		sessions store.SessionStore
		risks    store.RiskStore
		audits   audit.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		profiles = store.NewPostgresFaceProfileStore(db)
		attempts = store.NewPostgresMatchAttemptStore(db)
		sessions = store.NewPostgresSessionStore(db)
		risks = store.NewPostgresRiskStore(db)
		audits = audit.NewPostgresStore(db)
	} else {
		log.Warn("postgres not configured, using in-memory stores")
		profiles = store.NewInMemoryFaceProfileStore()
		attempts = store.NewInMemoryMatchAttemptStore()
		sessions = store.NewInMemorySessionStore()
		risks = store.NewInMemoryRiskStore()
		audits = audit.NewInMemoryStore()
	}

	// Anti-replay guard.
	var usage replay.UsageStore
	if redisClient != nil {
		usage = replay.NewRedisUsageStore(redisClient.Client, cfg.Replay.Window)
	} else {
		usage = replay.NewInMemoryUsageStore()
	}
	guard, err := replay.New(usage,
		replay.WithLogger(log),
		replay.WithConfig(replay.Config{
			Window:     cfg.Replay.Window,
			ReuseLimit: cfg.Replay.ReuseLimit,
			RiskCutoff: cfg.Replay.RiskCutoff,
		}),
	)
	if err != nil {
		return fmt.Errorf("build replay guard: %w", err)
	}

	// Liveness.
	validator, err := liveness.New(liveness.NewLandmarkScorer(), liveness.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build liveness validator: %w", err)
	}

	// Similarity index.
	index, err := buildIndex(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	// Uniqueness policy over the index.
	checker, err := uniqueness.New(index,
		service.ProfileOwners{Profiles: profiles},
		uniqueness.WithLogger(log),
		uniqueness.WithThresholds(uniqueness.Thresholds{
			Block:  cfg.Thresholds.Block,
			Review: cfg.Thresholds.Review,
		}),
	)
	if err != nil {
		return fmt.Errorf("build uniqueness checker: %w", err)
	}

	// Audit trail.
	publisher := audit.NewPublisher(1024, log)
	worker := audit.NewWorker(audits, publisher.Inbox(), log)
	go worker.Run(ctx)

	m := metrics.New()

	svc, err := service.New(service.Deps{
		Cipher:     enc,
		Liveness:   validator,
		Replay:     guard,
		Uniqueness: checker,
		Index:      index,
		Profiles:   profiles,
		Attempts:   attempts,
		Sessions:   sessions,
		Risks:      risks,
		Audit:      publisher,
	},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithThresholds(cfg.Thresholds),
		service.WithSessionConfig(cfg.Session),
	)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	// The index is a cache over the profile store; warm it on start. A
	// Redis snapshot, when available, covers for an unreachable store.
	var snapshot *vectorindex.RedisSnapshot
	if redisClient != nil {
		snapshot = vectorindex.NewRedisSnapshot(redisClient.Client)
	}
	warmIndex(ctx, svc, index, snapshot, publisher, log)

	// Security monitor.
	var notifier monitor.Notifier = monitor.NewLogNotifier(log)
	if len(cfg.KafkaBrokers) > 0 {
		kn, err := monitor.NewKafkaNotifier(cfg.KafkaBrokers, cfg.AlertTopic)
		if err != nil {
			return fmt.Errorf("build kafka notifier: %w", err)
		}
		defer kn.Close()
		notifier = kn
	}
	mon, err := monitor.New(attempts, audits, risks, notifier, monitor.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build monitor: %w", err)
	}

	router := httptransport.NewRouter(
		httptransport.NewFaceHandler(svc, log),
		httptransport.NewAlertHandler(mon, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting facegate", "addr", cfg.Addr, "index_backend", cfg.IndexBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// warmIndex rebuilds the similarity index from the profile store. When the
// rebuild fails and a snapshot exists, the snapshot is restored instead;
// after a successful rebuild the snapshot is refreshed.
func warmIndex(ctx context.Context, svc *service.Service, index vectorindex.Index, snapshot *vectorindex.RedisSnapshot, publisher *audit.Publisher, log *slog.Logger) {
	n, err := svc.RebuildIndex(ctx)
	if err == nil {
		log.Info("index warmed", "profiles", n)
		if snapshot != nil {
			if bf, ok := index.(*vectorindex.BruteForce); ok {
				if err := snapshot.Save(ctx, bf.Entries()); err != nil {
					log.Warn("index snapshot save failed", "error", err)
				}
			}
		}
		return
	}

	log.Warn("index warmup from store failed", "error", err)
	if snapshot == nil {
		return
	}

	entries, err := snapshot.Load(ctx)
	if err != nil {
		log.Warn("index snapshot restore failed, serving with empty index", "error", err)
		return
	}
	if err := index.Rebuild(ctx, entries); err != nil {
		log.Warn("index rebuild from snapshot failed", "error", err)
		return
	}
	log.Info("index restored from snapshot", "profiles", len(entries))
	publisher.Publish(audit.Event{
		Action:      audit.ActionIndexRestoreHit,
		Description: "similarity index restored from snapshot",
		Detail:      map[string]any{"profiles": len(entries)},
	})
}

func buildIndex(ctx context.Context, cfg config.Config) (vectorindex.Index, error) {
	switch cfg.IndexBackend {
	case "", "memory":
		return vectorindex.NewBruteForce(), nil
	case "remote":
		command := strings.Fields(cfg.IndexServerCmd)
		return vectorindex.StartRemote(ctx, command,
			vectorindex.WithCallTimeout(cfg.IndexCallTimeout))
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

// masterKey decodes the configured envelope master key, falling back to a
// deterministic development key when none is set.
func masterKey(cfg config.Config, log *slog.Logger) []byte {
	if cfg.MasterKeyHex != "" {
		key, err := hex.DecodeString(cfg.MasterKeyHex)
		if err == nil && len(key) == 32 {
			return key
		}
		log.Warn("FACEGATE_MASTER_KEY is not 64 hex chars, using development key")
	} else {
		log.Warn("FACEGATE_MASTER_KEY not set, using development key")
	}
	sum := sha256.Sum256([]byte("facegate-development-master-key"))
	return sum[:]
}
