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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"walletid/internal/identity/changefeed"
	"walletid/internal/identity/handler"
	identitymetrics "walletid/internal/identity/metrics"
	"walletid/internal/identity/refresh"
	"walletid/internal/identity/service"
	"walletid/internal/identity/store"
	jwttoken "walletid/internal/jwt_token"
	"walletid/internal/platform/config"
	"walletid/internal/platform/httpserver"
	"walletid/internal/platform/kafka"
	"walletid/internal/platform/logger"
	"walletid/internal/platform/metrics"
	"walletid/internal/platform/middleware"
	"walletid/internal/platform/redis"
	"walletid/pkg/platform/httputil"
	"walletid/pkg/platform/middleware/metadata"
	"walletid/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("walletid stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	log.Info("walletid stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	identityStore, db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	if db != nil {
		defer db.Close()
	}
	log.Info("identity store ready", "driver", cfg.Store.Driver)

	identityMetrics := identitymetrics.New()
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(identityMetrics),
		service.WithConfig(service.Config{
			StalenessWindow: cfg.Identity.StalenessWindow,
			MaxRetries:      cfg.Identity.MaxRetries,
			RetryBaseDelay:  cfg.Identity.RetryBaseDelay,
			ChunkSize:       cfg.Identity.ChunkSize,
		}),
	}

	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka.ChangesTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return err
		}
		publisher, err := changefeed.New(kafkaClient, cfg.Kafka.ChangesTopic, changefeed.WithLogger(log))
		if err != nil {
			return err
		}
		opts = append(opts, service.WithChangePublisher(publisher))
		log.Info("identity change feed enabled", "topic", cfg.Kafka.ChangesTopic)
	}

	svc, err := service.New(identityStore, opts...)
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var dispatcher *refresh.Dispatcher
	if redisClient != nil {
		defer redisClient.Close()
		queue := refresh.NewRedisQueue(redisClient, refresh.WithClaimTTL(cfg.Refresh.ClaimTTL))
		dispatcher, err = refresh.NewDispatcher(svc, queue, refresh.Config{
			Interval:       cfg.Refresh.Interval,
			Limit:          cfg.Refresh.Limit,
			MinLookupCount: cfg.Refresh.MinLookupCount,
		}, refresh.WithLogger(log), refresh.WithMetrics(identityMetrics))
		if err != nil {
			return err
		}
	}

	router := newRouter(cfg, log, svc, db, redisClient)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting walletid", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if dispatcher != nil {
		g.Go(func() error {
			log.Info("refresh dispatcher started", "interval", cfg.Refresh.Interval)
			if err := dispatcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func newRouter(cfg config.Config, log *slog.Logger, svc *service.Service, db *sql.DB, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(log, metrics.New()))
	r.Use(middleware.Recovery(log))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["status"], status["database"] = "degraded", err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				status["redis"] = err.Error()
			}
		}
		httputil.WriteJSON(w, code, status)
	})

	h := handler.New(svc, log)
	h.Register(r)

	if cfg.Server.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET not set, admin routes disabled")
		return r
	}
	tokens := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Server.AdminJWTSecret, jwttoken.AdminIssuer, jwttoken.AdminAudience),
	)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(tokens, log))
		h.RegisterAdmin(r)
	})
	return r
}
