package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/stationhq/gatehouse/pkg/api"
	"github.com/stationhq/gatehouse/pkg/audit"
	"github.com/stationhq/gatehouse/pkg/config"
	"github.com/stationhq/gatehouse/pkg/directory"
	"github.com/stationhq/gatehouse/pkg/discovery"
	"github.com/stationhq/gatehouse/pkg/middleware"
	"github.com/stationhq/gatehouse/pkg/observability"
	"github.com/stationhq/gatehouse/pkg/rbac"
	"github.com/stationhq/gatehouse/pkg/session"
	"github.com/stationhq/gatehouse/pkg/upstream"
	"github.com/stationhq/gatehouse/pkg/validation"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize opentelemetry")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).WithField("addr", cfg.Redis.Addr).Fatal("redis unreachable")
	}
	log.WithField("addr", cfg.Redis.Addr).Info("connected to redis")

	up, err := upstream.NewHTTPClient(upstream.HTTPClientConfig{
		BaseURL:      cfg.Upstream.BaseURL,
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		TokenURL:     cfg.Upstream.TokenURL,
		Timeout:      cfg.Upstream.Timeout,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build upstream client")
	}

	// Authorization policy: built-in defaults, optionally overridden by a
	// hot-reloaded YAML file.
	policy := rbac.DefaultPolicy()
	if cfg.Policy.File != "" {
		policy, err = rbac.LoadPolicyFile(cfg.Policy.File)
		if err != nil {
			log.WithError(err).WithField("path", cfg.Policy.File).Fatal("failed to load policy file")
		}
		log.WithField("path", cfg.Policy.File).Info("loaded policy file")
	}
	evaluator := rbac.NewEvaluator(policy)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if cfg.Policy.File != "" {
		go func() {
			if err := rbac.WatchPolicyFile(runCtx, cfg.Policy.File, evaluator, log); err != nil {
				log.WithError(err).Error("policy watcher stopped")
			}
		}()
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	sessions := session.NewStore(rdb, up, cfg.Session.Lifetime, log)
	validator := validation.NewValidator(nil)
	dir, err := directory.NewService(up, evaluator, validator, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build directory service")
	}
	if metrics != nil {
		dir = dir.WithCacheMetrics(metrics.CacheHitsTotal, metrics.CacheMissesTotal)
	}
	sessions.OnInvalidate(dir.InvalidateSession)

	flow := discovery.NewFlow(up, sessions, rdb, log)

	auditLogger := buildAuditLogger(cfg, log)
	defer auditLogger.Close()

	server := api.NewServer(&api.Config{
		AllowedOrigins:      cfg.Server.AllowedOrigins,
		MaxBodyBytes:        cfg.Server.MaxBodyBytes,
		CredentialRateLimit: middleware.AuthRateLimitConfig(),
		APIRateLimit:        middleware.DefaultRateLimitConfig(),
		CredentialDistributedLimiter: middleware.NewDistributedRateLimiter(
			rdb, middleware.AuthRateLimitConfig(), log),
	}, sessions, dir, flow, evaluator, auditLogger, metrics, log)
	server.StartCleanup(runCtx)

	checker := observability.NewHealthChecker(rdb, up.Healthcheck)
	observability.RegisterHealthRoutes(server.Router(), checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(server.Router(), registry)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancelRun()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return rdb.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, log)
	})

	go func() {
		log.WithField("addr", httpServer.Addr).Info("gatehouse listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// buildAuditLogger assembles the audit sinks: structured log output
// always, plus an append-only JSONL file when enabled.
func buildAuditLogger(cfg *config.Config, log *logrus.Logger) audit.Logger {
	logSink := audit.NewLogrusLogger(log)
	if !cfg.Audit.Enabled {
		return logSink
	}

	fileCfg := audit.DefaultFileLoggerConfig()
	fileCfg.BasePath = cfg.Audit.Dir
	fileSink, err := audit.NewFileLogger(fileCfg)
	if err != nil {
		log.WithError(err).WithField("dir", cfg.Audit.Dir).Warn("audit file logger unavailable, falling back to log output")
		return logSink
	}
	return audit.NewMultiLogger(logSink, fileSink)
}
