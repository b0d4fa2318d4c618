package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sharedauth/internal/audit"
	auditpg "sharedauth/internal/audit/store/postgres"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/auth/service"
	"sharedauth/internal/enrich"
	"sharedauth/internal/features"
	"sharedauth/internal/migration"
	"sharedauth/internal/platform/config"
	"sharedauth/internal/platform/database"
	"sharedauth/internal/platform/health"
	"sharedauth/internal/platform/kafka/producer"
	"sharedauth/internal/platform/logger"
	"sharedauth/internal/platform/metrics"
	"sharedauth/internal/platform/middleware"
	redisclient "sharedauth/internal/platform/redis"
	"sharedauth/internal/platform/tracer"
	"sharedauth/internal/provider"
	"sharedauth/internal/token"
	"sharedauth/internal/tokencodec"
	httptransport "sharedauth/internal/transport/http"
	"sharedauth/internal/validation"
)

const (
	shutdownTimeout   = 10 * time.Second
	auditBufferSize   = 1024
	roleCacheTTL      = 5 * time.Minute
	rotationLedgerTTL = time.Hour
)

func newServeCmd() *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := flags.load(cmd.Flags())
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.New(cfg.LogLevel))
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// serve wires the dependencies, then runs the HTTP server and the flag
// refresher until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("initializing shared-auth",
		"addr", cfg.Addr,
		"env", cfg.Env,
		"migration_mode", cfg.MigrationMode,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checks := health.New(cfg.Env)

	rdb, err := redisclient.New(ctx, cfg.Redis, redisclient.WithLogger(log))
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close() //nolint:errcheck
		checks.RegisterCheck(rdb.Name(), rdb.Health)
	}

	sinks, auditLog, closeSinks, err := buildAuditSinks(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeSinks()
	recorder := audit.NewRecorder(sinks,
		audit.WithLogger(log),
		audit.WithMetrics(m),
		audit.WithAsyncBuffer(auditBufferSize),
	)
	defer recorder.Close()

	defs := features.DefaultDefinitions()
	if cfg.FeatureFlagsFile != "" {
		file, err := features.LoadFile(cfg.FeatureFlagsFile)
		if err != nil {
			return err
		}
		defs = file.ApplyTo(defs)
	}
	engineOpts := []features.Option{features.WithLogger(log), features.WithMetrics(m)}
	if rdb != nil {
		engineOpts = append(engineOpts, features.WithSource(cfg.Env, features.NewRedisSource(rdb.Client)))
	}
	flags, err := features.NewEngine(defs, engineOpts...)
	if err != nil {
		return fmt.Errorf("feature flags: %w", err)
	}
	if err := flags.Refresh(ctx); err != nil {
		log.Warn("initial feature flag refresh failed", "error", err)
	}

	tr := tracer.NewOTel(tracer.WithEnvironment(cfg.Env))
	idp := provider.New(cfg.APIURL,
		provider.WithTimeout(cfg.ProviderTimeout),
		provider.WithRefreshRate(cfg.RefreshRate, int(cfg.RefreshRate)),
		provider.WithTracer(tr),
		provider.WithMetrics(m),
		provider.WithLogger(log),
	)

	var ledger token.RotationLedger = token.NewMemoryRotationLedger(rotationLedgerTTL)
	if rdb != nil {
		ledger = token.NewRedisRotationLedger(rdb.Client, rotationLedgerTTL)
	}
	tokens := token.New(idp,
		token.WithLedger(ledger),
		token.WithRecorder(recorder),
		token.WithMetrics(m),
		token.WithTracer(tr),
		token.WithLogger(log),
	)
	enricher := enrich.New(
		enrich.WithResolver(enrich.NewCachedResolver(enrich.HeuristicResolver{}, roleCacheTTL)),
		enrich.WithRecorder(recorder),
		enrich.WithMetrics(m),
		enrich.WithLogger(log),
	)
	validator := validation.New(validation.WithMetrics(m), validation.WithLogger(log))
	remote := validation.NewRemote(idp, validation.WithRemoteMetrics(m), validation.WithRemoteLogger(log))
	state := migration.NewState(cfg.MigrationMode, migration.WithRecorder(recorder), migration.WithLogger(log))

	codec, err := tokencodec.New(cfg.Secret, tokencodec.WithMaxAge(cfg.SessionMaxAge))
	if err != nil {
		return err
	}

	handlerOpts := []httptransport.Option{
		httptransport.WithRecorder(recorder),
		httptransport.WithHealth(checks),
		httptransport.WithMetrics(m, reg),
		httptransport.WithLogger(log),
	}
	if auditLog != nil {
		handlerOpts = append(handlerOpts, httptransport.WithAuditReader(auditLog))
	}
	if rdb != nil {
		handlerOpts = append(handlerOpts, httptransport.WithFlagPublisher(
			func(ctx context.Context, env string, key features.Key, patch features.Patch) error {
				return features.Publish(ctx, rdb.Client, env, key, patch)
			}))
	}
	for _, app := range models.AppTypes {
		svc, err := service.New(service.Config{
			App:           app,
			Env:           cfg.Env,
			Production:    cfg.IsProduction(),
			CookieDomain:  cfg.CookieDomain,
			SessionMaxAge: cfg.SessionMaxAge,
			RequiredRoles: defaultRequiredRoles(app),
		}, flags, tokens, enricher, validator,
			service.WithLogger(log.With("app_type", string(app))),
			service.WithRecorder(recorder),
			service.WithMetrics(m),
			service.WithRemoteValidator(remote),
			service.WithMigration(state),
		)
		if err != nil {
			return fmt.Errorf("build %s service: %w", app, err)
		}
		handlerOpts = append(handlerOpts, httptransport.WithService(svc))
	}

	handler := httptransport.NewHandler(httptransport.Config{
		Env:            cfg.Env,
		AdminToken:     cfg.AdminToken,
		TrustedProxies: middleware.ParseTrustedProxies(cfg.TrustedProxies),
	}, codec, flags, state, handlerOpts...)
	if cfg.AdminToken == "" {
		log.Warn("SHARED_AUTH_ADMIN_TOKEN not set, admin routes are locked")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httptransport.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		flags.RunRefresher(gctx, cfg.FeatureFlagsTTL)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// defaultRequiredRoles gates the admin app to administrators when a request
// names no roles of its own.
func defaultRequiredRoles(app models.AppType) []string {
	if app == models.AppAdmin {
		return []string{models.RoleAdmin, models.RoleSuperAdmin}
	}
	return nil
}

// buildAuditSinks fans audit events out to the log, the durable store (Postgres
// when configured, memory otherwise) and the Kafka stream when brokers are set.
func buildAuditSinks(ctx context.Context, cfg config.Config, log *slog.Logger, checks *health.Handler) (audit.MultiSink, httptransport.AuditReader, func(), error) {
	sinks := audit.MultiSink{audit.NewLogSink(log)}
	var closers []func() error

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	var reader httptransport.AuditReader
	if pool != nil {
		store := auditpg.New(pool.DB())
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close() //nolint:errcheck
			return nil, nil, nil, err
		}
		checks.RegisterCheck(pool.Name(), pool.Health)
		closers = append(closers, pool.Close)
		sinks = append(sinks, store)
		reader = store
	} else {
		if cfg.IsProduction() {
			log.Warn("DATABASE_URL not set, audit events kept in memory only",
				"capacity", audit.DefaultMemoryCapacity)
		}
		store := audit.NewMemoryStore()
		sinks = append(sinks, store)
		reader = store
	}

	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(cfg.Kafka, log)
		if err != nil {
			for _, c := range closers {
				c() //nolint:errcheck
			}
			return nil, nil, nil, err
		}
		checks.RegisterCheck(p.Name(), p.Health)
		closers = append(closers, p.Close)
		sinks = append(sinks, audit.NewKafkaSink(p, cfg.Kafka.AuditTopic))
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("audit sink close failed", "error", err)
			}
		}
	}
	return sinks, reader, closeAll, nil
}
