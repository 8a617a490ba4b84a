package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/activate/internal/adapter/httpserver"
	"github.com/pscheid92/activate/internal/adapter/metrics"
	"github.com/pscheid92/activate/internal/adapter/postgres"
	"github.com/pscheid92/activate/internal/adapter/rawws"
	"github.com/pscheid92/activate/internal/adapter/redis"
	"github.com/pscheid92/activate/internal/adapter/websocket"
	"github.com/pscheid92/activate/internal/app"
	"github.com/pscheid92/activate/internal/broadcast"
	"github.com/pscheid92/activate/internal/content"
	"github.com/pscheid92/activate/internal/platform/config"
	"github.com/pscheid92/activate/internal/platform/logging"
	"github.com/pscheid92/activate/internal/platform/retry"
	"github.com/pscheid92/activate/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout       = 10 * time.Second
	cacheEvictionInterval = time.Minute
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func logRetry(dependency string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		slog.Warn("Dependency not ready, retrying", "dependency", dependency, "attempt", attempt, "wait", wait, "error", err)
	}
}

func setupDB(ctx context.Context, cfg *config.Config, dbMetrics *metrics.DBMetrics) *pgxpool.Pool {
	policy := retry.Startup
	policy.OnRetry = logRetry("postgres")

	pool, err := retry.Do(ctx, policy, postgres.ClassifyDialError, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(dbMetrics))
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, redisMetrics *metrics.RedisMetrics) *goredis.Client {
	policy := retry.Startup
	policy.OnRetry = logRetry("redis")

	client, err := retry.Do(ctx, policy, redis.ClassifyDialError, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(redisMetrics))
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func startRelay(ctx context.Context, relay *redis.PublishRelay) {
	policy := retry.Startup
	policy.OnRetry = logRetry("publish relay")

	if err := retry.DoVoid(ctx, policy, retry.Always, relay.Start); err != nil {
		slog.Error("Failed to subscribe publish relay", "error", err)
		os.Exit(1)
	}
}

func setupNode(cfg *config.Config) *centrifuge.Node {
	node, err := websocket.NewNode(cfg.LogLevel)
	if err != nil {
		slog.Error("Failed to create centrifuge node", "error", err)
		os.Exit(1)
	}
	if err := websocket.SetupRedisPresence(node, cfg.RedisURL); err != nil {
		slog.Error("Failed to set up centrifuge presence", "error", err)
		os.Exit(1)
	}
	return node
}

type shutdownDeps struct {
	srv          *httpserver.Server
	node         *centrifuge.Node
	gateway      *rawws.Gateway
	hub          *broadcast.Hub
	stopRelay    context.CancelFunc
	stopEviction func()
}

func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := deps.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		deps.stopRelay()
		deps.hub.Stop()
		deps.gateway.Stop()
		if err := deps.node.Shutdown(shutdownCtx); err != nil {
			slog.Error("Centrifuge node shutdown error", "error", err)
		}
		deps.stopEviction()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	registry := metrics.NewRegistry()
	dbMetrics := metrics.NewDBMetrics(registry)
	cacheMetrics := metrics.NewCacheMetrics(registry)
	wsMetrics := metrics.NewWebSocketMetrics(registry)
	broadcastMetrics := metrics.NewBroadcastMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry, httpserver.TransportRoutes...)
	redisMetrics := metrics.NewRedisMetrics(registry)

	ctx := context.Background()

	pool := setupDB(ctx, cfg, dbMetrics)
	defer pool.Close()

	redisClient := setupRedis(ctx, cfg, redisMetrics)
	defer func() { _ = redisClient.Close() }()

	bindings := postgres.NewBindingRepo(pool)
	cache := redis.NewBindingCache(redisClient, bindings, clock, cfg.BindingCacheTTL, cacheMetrics)
	stopEviction := cache.StartEvictionTimer(cacheEvictionInterval)
	resolver := content.NewResolver(cache)

	node := setupNode(cfg)
	gateway := rawws.NewGateway(clock, cfg.MaxClientsPerChannel, wsMetrics)
	transport := broadcast.MultiTransport{websocket.NewPublisher(node, wsMetrics), gateway}
	hub := broadcast.NewHub(resolver, transport, broadcast.NewAnimator(clock, broadcast.DefaultTickInterval), broadcastMetrics)

	websocket.HandleDisplays(node, hub, wsMetrics)
	if err := node.Run(); err != nil {
		slog.Error("Failed to run centrifuge node", "error", err)
		os.Exit(1)
	}

	relayCtx, stopRelay := context.WithCancel(ctx)
	relay := redis.NewPublishRelay(redisClient, hub, cache)
	startRelay(relayCtx, relay)

	appSvc := app.NewService(bindings, cache, resolver, relay, hub, websocket.NewPresenceCounter(node))

	checkOrigin := websocket.NewCheckOrigin(cfg.AppURL, cfg.ExtraOrigins(), cfg.IsDevelopment())
	centrifugeHandler := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{CheckOrigin: checkOrigin})
	rawHandler := rawws.NewHandler(hub, gateway, checkOrigin)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}

	srv := httpserver.NewServer(cfg, appSvc,
		httpserver.Transports{
			Centrifuge: websocket.WithAnonymousCredentials(centrifugeHandler),
			Raw:        rawHandler.Serve,
		},
		httpMetrics, metrics.Handler(registry), healthChecks)

	done := runGracefulShutdown(shutdownDeps{
		srv:          srv,
		node:         node,
		gateway:      gateway,
		hub:          hub,
		stopRelay:    stopRelay,
		stopEviction: stopEviction,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
