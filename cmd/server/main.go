package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"ccms/internal/activity"
	"ccms/internal/activity/dedup"
	"ccms/internal/asset"
	assetpostgres "ccms/internal/asset/store/postgres"
	"ccms/internal/dashboard"
	httpapi "ccms/internal/http"
	"ccms/internal/platform/auth"
	"ccms/internal/platform/config"
	"ccms/internal/platform/httpserver"
	"ccms/internal/platform/kafka"
	"ccms/internal/platform/kafka/consumer"
	"ccms/internal/platform/kafka/producer"
	"ccms/internal/platform/logger"
	"ccms/internal/platform/metrics"
	"ccms/internal/platform/middleware"
	"ccms/internal/platform/ratelimit"
	"ccms/internal/platform/redis"
	rephandler "ccms/internal/reputation/handler"
	repmetrics "ccms/internal/reputation/metrics"
	repports "ccms/internal/reputation/ports"
	repservice "ccms/internal/reputation/service"
	repmemory "ccms/internal/reputation/store/memory"
	reppostgres "ccms/internal/reputation/store/postgres"
	stakehandler "ccms/internal/staking/handler"
	stakemetrics "ccms/internal/staking/metrics"
	stakeports "ccms/internal/staking/ports"
	stakeservice "ccms/internal/staking/service"
	stakememory "ccms/internal/staking/store/memory"
	stakepostgres "ccms/internal/staking/store/postgres"
	"ccms/internal/transport/feed"
	"ccms/pkg/platform/audit"
	"ccms/pkg/platform/audit/publisher"
	auditmemory "ccms/pkg/platform/audit/store/memory"
	auditpostgres "ccms/pkg/platform/audit/store/postgres"
)

const auditBuffer = 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ccms:", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	reputation repports.Ledger
	staking    stakeports.Ledger
	assets     asset.Ledger
	audit      audit.Store
	db         *sql.DB
}

// run wires dependencies and blocks until a signal arrives or a component
// fails.
func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Logging, os.Stdout)
	if cfg.UsesDevSigningKey() {
		log.Warn("using the development JWT signing key; set JWT_SIGNING_KEY in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	if cfg.Ledger.SeedAsset != 0 {
		err := st.assets.Mint(ctx, cfg.Ledger.SeedAsset, cfg.Ledger.SeedHolder, cfg.Ledger.SeedSupply)
		switch {
		case errors.Is(err, asset.ErrAssetExists):
			log.Info("seed asset already minted", "asset_id", uint64(cfg.Ledger.SeedAsset))
		case err != nil:
			return fmt.Errorf("seed asset: %w", err)
		default:
			log.Info("seeded asset",
				"asset_id", uint64(cfg.Ledger.SeedAsset),
				"holder", cfg.Ledger.SeedHolder,
				"supply", cfg.Ledger.SeedSupply,
			)
		}
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
	}

	hub := feed.NewHub(feed.WithLogger(log), feed.WithRegisterer(m.Registry))
	sinks := []publisher.Sink{hub}

	var events *kgo.Client
	if len(cfg.Kafka.Brokers) > 0 {
		events, err = kafka.NewClient(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer events.Close()
		if err := kafka.EnsureTopics(ctx, events, cfg.Kafka.Partitions, cfg.Kafka.Replication,
			cfg.Kafka.ActivityTopic, cfg.Kafka.EventsTopic); err != nil {
			return err
		}
		sinks = append(sinks, producer.NewEventSink(events, cfg.Kafka.EventsTopic, log))
	}

	pub := publisher.NewPublisher(st.audit,
		publisher.WithSinks(sinks...),
		publisher.WithAsyncBuffer(auditBuffer),
		publisher.WithLogger(log),
	)
	defer pub.Close()

	reputation := repservice.New(st.reputation,
		repservice.WithLogger(log),
		repservice.WithMetrics(repmetrics.New(m.Registry)),
		repservice.WithAuditPublisher(pub),
	)
	staking := stakeservice.New(st.staking, st.assets,
		stakeservice.WithLogger(log),
		stakeservice.WithMetrics(stakemetrics.New(m.Registry)),
		stakeservice.WithAuditPublisher(pub),
	)

	jwt := auth.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	requireAuth := middleware.RequireAuth(auth.NewMiddlewareAdapter(jwt), log)
	if cfg.RateLimit.Mutations > 0 {
		var limits ratelimit.Store = ratelimit.NewMemory()
		if rc != nil {
			limits = ratelimit.NewRedis(rc.Client)
		}
		limiter := ratelimit.New(limits, cfg.RateLimit.Mutations, cfg.RateLimit.Window,
			ratelimit.WithLogger(log),
			ratelimit.WithRegisterer(m.Registry),
		)
		authenticate := requireAuth
		requireAuth = func(next http.Handler) http.Handler {
			return authenticate(limiter.PerCaller(next))
		}
	}

	health := map[string]httpapi.HealthCheck{}
	if st.db != nil {
		health["postgres"] = st.db.PingContext
	}
	if rc != nil {
		health["redis"] = rc.Health
	}
	if events != nil {
		health["kafka"] = events.Ping
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
		Modules: []httpapi.Registrar{
			rephandler.New(reputation, log, requireAuth),
			stakehandler.New(staking, log, requireAuth),
			asset.NewHandler(st.assets, log, requireAuth),
			dashboard.NewHandler(dashboard.NewService(reputation, staking), log),
			feed.NewHistory(st.audit, log),
		},
		Streams: []httpapi.Registrar{hub},
		Health:  health,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ccms",
			"addr", cfg.Server.Addr,
			"store", cfg.Ledger.Store,
			"controller", cfg.Ledger.Controller,
			"escrow", cfg.Ledger.Escrow,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		var dd activity.Deduplicator = dedup.NewMemory(cfg.Redis.DedupTTL)
		if rc != nil {
			dd = dedup.NewRedis(rc.Client, cfg.Redis.DedupTTL)
		}
		activityHandler := activity.NewHandler(reputation, cfg.Ledger.Controller, dd,
			activity.WithLogger(log),
			activity.WithMetrics(activity.NewMetrics(m.Registry)),
		)
		client, err := kafka.NewClient(ctx, cfg.Kafka,
			kgo.ConsumerGroup(cfg.Kafka.Group),
			kgo.ConsumeTopics(cfg.Kafka.ActivityTopic),
			kgo.DisableAutoCommit(),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		defer client.Close()
		g.Go(func() error {
			log.Info("consuming activity events",
				"topic", cfg.Kafka.ActivityTopic,
				"group", cfg.Kafka.Group,
			)
			return consumer.New(client, activityHandler, consumer.WithLogger(log)).Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		return err
	}
	return nil
}

// openStores selects the ledger, asset and audit backends. Postgres schemas
// are migrated and the ledger identities bootstrapped on every start. The
// asset tables share the staking database so withdrawals commit atomically.
func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.Ledger.Store == config.StoreMemory {
		log.Info("using in-memory stores; state is lost on restart")
		return stores{
			reputation: repmemory.New(cfg.Ledger.Controller, repmemory.WithTxTimeout(cfg.Ledger.TxTimeout)),
			staking:    stakememory.New(cfg.Ledger.Controller, cfg.Ledger.Escrow, stakememory.WithTxTimeout(cfg.Ledger.TxTimeout)),
			assets:     asset.NewBank(),
			audit:      auditmemory.NewInMemoryStore(),
		}, nil
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return stores{}, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return stores{}, fmt.Errorf("ping postgres: %w", err)
	}

	rep := reppostgres.New(db, reppostgres.WithTxTimeout(cfg.Ledger.TxTimeout))
	stake := stakepostgres.New(db, stakepostgres.WithTxTimeout(cfg.Ledger.TxTimeout))
	assets := assetpostgres.New(db, assetpostgres.WithTxTimeout(cfg.Ledger.TxTimeout))
	auditStore := auditpostgres.New(db)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"migrate reputation", rep.Migrate},
		{"migrate staking", stake.Migrate},
		{"migrate assets", assets.Migrate},
		{"migrate audit", auditStore.Migrate},
		{"bootstrap reputation", func(ctx context.Context) error { return rep.Bootstrap(ctx, cfg.Ledger.Controller) }},
		{"bootstrap staking", func(ctx context.Context) error {
			return stake.Bootstrap(ctx, cfg.Ledger.Controller, cfg.Ledger.Escrow)
		}},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	log.Info("using postgres stores")
	return stores{reputation: rep, staking: stake, assets: assets, audit: auditStore, db: db}, nil
}
