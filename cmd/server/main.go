package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-licensing/internal/api"
	"github.com/technosupport/ts-licensing/internal/audit"
	"github.com/technosupport/ts-licensing/internal/auth"
	"github.com/technosupport/ts-licensing/internal/catalog"
	"github.com/technosupport/ts-licensing/internal/config"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/license"
	"github.com/technosupport/ts-licensing/internal/metrics"
	"github.com/technosupport/ts-licensing/internal/middleware"
	"github.com/technosupport/ts-licensing/internal/ratelimit"
	"github.com/technosupport/ts-licensing/internal/telemetry"
	"github.com/technosupport/ts-licensing/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := telemetry.Setup(telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatalf("Tracing init error: %v", err)
	}

	// 3. DB Init
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLife)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}
	store := data.NewStore(db)

	collector := metrics.NewCollector()
	collector.RegisterDB(db)

	// 4. Audit pipeline: queue -> Postgres -> spool on failure -> replay
	spool, err := audit.NewSpool(cfg.Audit.SpoolDir, cfg.Audit.MaxSpoolMB)
	if err != nil {
		log.Fatalf("Audit spool error: %v", err)
	}
	auditService := audit.NewService(db, spool)

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("ts-licensing"), nats.MaxReconnects(-1))
		if err != nil {
			log.Printf("Warning: NATS connect failed (%v), audit fan-out disabled", err)
		} else {
			defer nc.Drain()
			auditService.Publisher = audit.NewNATSPublisher(nc, cfg.NATS.Subject, 3)
			log.Printf("Audit fan-out to NATS subject %s.*", cfg.NATS.Subject)
		}
	}

	recorder := audit.NewAsyncRecorder(auditService, spool, cfg.Audit.QueueSize)
	recorder.OnDrop = collector.AuditDropped
	recorder.Start(cfg.Audit.Workers)
	auditService.StartReplayer(ctx, cfg.Audit.ReplayInterval)

	// 5. Core
	manager := license.NewManager(store, recorder, collector)
	engine := license.NewEngine(store, recorder, collector)

	// 6. Brand identity
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	tokenMgr := tokens.NewManager(cfg.Auth.JWTSigningKey)
	var blacklist auth.TokenBlacklist
	if rdb != nil {
		blacklist = auth.NewRedisBlacklist(rdb)
	}
	resolver := auth.NewResolver(data.Queries{DB: db}, tokenMgr, blacklist, cfg.Auth.BrandCacheSize, cfg.Auth.BrandCacheTTL)

	// 7. Catalog
	if cfg.Catalog.Path != "" {
		watcher := catalog.NewWatcher(cfg.Catalog.Path, store, cfg.Catalog.PollInterval)
		watcher.OnSync = func(catalog.SyncResult) { resolver.Purge() }
		if err := watcher.Reload(ctx); err != nil {
			log.Printf("Warning: catalog %s not loaded: %v", cfg.Catalog.Path, err)
		}
		watcher.Start(ctx)
	}

	// 8. Rate limiting
	var limiter *ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimit.Salt)
	} else {
		log.Println("No redis configured, using in-process rate limits")
	}
	rl := middleware.NewRateLimitMiddleware(limiter, middleware.Config{
		Public: ratelimit.LimitConfig{Rate: cfg.RateLimit.PublicRate, Window: cfg.RateLimit.Window},
		Brand:  ratelimit.LimitConfig{Rate: cfg.RateLimit.BrandRate, Window: cfg.RateLimit.Window},
	})

	routerCfg := api.RouterConfig{
		Brands:         api.NewBrandHandler(manager),
		Activations:    api.NewActivationHandler(engine),
		Health:         api.NewHealthHandler(store),
		BrandAuth:      middleware.NewBrandAuth(resolver).Middleware,
		Metrics:        collector.Handler(),
		HTTPObserver:   collector,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,

		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.BrandLimit = rl.Brand()
		routerCfg.PublicLimit = rl.Public()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown requested")

	// Graceful shutdown: stop accepting requests, then drain audit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Printf("Audit drain incomplete: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	db.Close()
	log.Println("Server stopped gracefully")
}
