package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omnitoken/clinic-service/internal/admin"
	"omnitoken/clinic-service/internal/auth"
	"omnitoken/clinic-service/internal/blob"
	"omnitoken/clinic-service/internal/cache"
	"omnitoken/clinic-service/internal/config"
	"omnitoken/clinic-service/internal/httpapi"
	"omnitoken/clinic-service/internal/hub"
	"omnitoken/clinic-service/internal/insight"
	"omnitoken/clinic-service/internal/jobs"
	"omnitoken/clinic-service/internal/lifecycle"
	"omnitoken/clinic-service/internal/metrics"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/seed"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store/postgres"
	"omnitoken/clinic-service/internal/syncer"
	"omnitoken/clinic-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "clinic-service"

var version = "dev"

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	shutdownTelemetry := telemetry.Setup(telemetry.Config{
		ServiceName: serviceName,
		Version:     version,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRate,
	}, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()
	pg := postgres.NewStore(pool)

	var (
		remote     httpapi.StateFetcher = pg
		stateCache *cache.StateCache
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		stateCache = cache.NewStateCache(client, pg, cfg.StateCacheTTL, logger)
		remote = stateCache
	}

	st := state.New(initialState(pg, logger))

	push := syncer.NewBestEffort(pg, logger, syncer.Options{
		Workers:   cfg.SyncWorkers,
		QueueSize: cfg.SyncQueueSize,
		Timeout:   cfg.SyncTimeout,
		AfterPush: func(change syncer.Change, err error) {
			if err != nil || stateCache == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := stateCache.Invalidate(ctx); err != nil {
				logger.Warn().Err(err).Msg("state cache invalidate failed")
			}
		},
	})

	displays := hub.New(logger)
	feed := hub.NewFeed(displays, st, logger)
	sync := syncer.Fanout{push, syncer.ListenerFunc(feed.Notify)}

	engine := lifecycle.NewEngine(st, sync, logger, lifecycle.Options{NoShowGrace: cfg.NoShowGrace})
	adminSvc := admin.NewService(st, sync, logger, admin.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		BcryptCost:    cfg.BcryptCost,
	})
	authSvc := auth.NewService(st, pg, logger, cfg.SessionTTL)

	if cfg.SeedPath != "" {
		file, err := seed.Load(cfg.SeedPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SeedPath).Msg("seed load")
		}
		if err := seed.Apply(context.Background(), file, adminSvc, st, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed apply")
		}
	}

	var uploader httpapi.Uploader
	b2 := blob.Config{
		KeyID:          cfg.B2KeyID,
		ApplicationKey: cfg.B2ApplicationKey,
		Bucket:         cfg.B2Bucket,
		AuthURL:        cfg.B2AuthURL,
	}
	if b2.Enabled() {
		uploader = blob.NewClient(b2, nil)
	}

	api := httpapi.NewHandler(st, engine, adminSvc, authSvc, httpapi.Options{
		Insights: insight.NewService(insight.NewProvider(cfg.InsightProvider, cfg.InsightWebhookURL), logger),
		Uploader: uploader,
		Remote:   remote,
		Logger:   logger,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		ClinicPerMinute: cfg.ClinicRateLimitPerMinute,
		ClinicBurst:     cfg.ClinicRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/display/", hub.NewDisplayHandler("/display", displays, feed, st, authSvc, logger))
	if cfg.MetricsEnabled {
		metrics.Register()
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/", httpapi.AuthMiddleware(authSvc, limiter.ClinicMiddleware(api.Routes())))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(mux)), serviceName)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelHandler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	scheduler, err := jobs.Start(jobs.Schedule{
		Refresh:      cfg.RefreshSchedule,
		SessionSweep: cfg.SessionSweepSchedule,
	}, jobs.NewRefresher(pg, st, push, logger), jobs.NewSweeper(pg, logger), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler")
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("clinic-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	<-scheduler.Stop().Done()
	if err := push.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("sync drain")
	}
}

// newLogger builds the process logger. format "console" gives human
// readable output; anything else is JSON.
func newLogger(level, format string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}

// initialState loads the full mirror straight from the database; the
// cache drops password hashes. A failed load starts from an empty state
// and the refresh job fills it in later.
func initialState(remote httpapi.StateFetcher, logger zerolog.Logger) models.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	snap, err := remote.FetchStateForUser(ctx, models.User{ID: "system", Role: models.RoleCentralAdmin})
	if err != nil {
		logger.Error().Err(err).Msg("initial state load failed")
		return models.Snapshot{}
	}
	logger.Info().
		Int("clinics", len(snap.Clinics)).
		Int("users", len(snap.Users)).
		Int("tokens", len(snap.Tokens)).
		Msg("state loaded")
	return snap
}
