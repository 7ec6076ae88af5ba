package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mediaprofile/userauth/internal/auth"
	"github.com/mediaprofile/userauth/internal/config"
	"github.com/mediaprofile/userauth/internal/logger"
	"github.com/mediaprofile/userauth/internal/metrics"
	"github.com/mediaprofile/userauth/internal/middleware"
	"github.com/mediaprofile/userauth/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()

	// ── User store ───────────────────────────────────────────
	users, closeUsers, err := openUserStore(ctx, cfg)
	if err != nil {
		zl.Fatal("user store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeUsers()

	// ── MinIO ────────────────────────────────────────────────
	media, err := store.NewMinioMediaHost(ctx, store.MediaConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MediaPublicURL,
	})
	if err != nil {
		zl.Fatal("minio connect", zap.Error(err))
	}

	// ── Redis (optional) ─────────────────────────────────────
	var limiter func(http.Handler) http.Handler
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			zl.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		limiter = middleware.RateLimit(store.NewRedisCounter(rdb), "auth", cfg.LoginRateLimit, cfg.LoginRateWindow, zl)
	} else {
		zl.Warn("REDIS_ADDR not set, login rate limiting disabled")
	}

	// ── Auth ─────────────────────────────────────────────────
	collectors := metrics.New()
	issuer := auth.NewTokenIssuer(cfg.AccessTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenSecret, cfg.RefreshTokenTTL)
	svc := auth.NewService(users, media, auth.NewBcryptHasher(cfg.BcryptCost), issuer, zl,
		auth.WithMetrics(collectors),
		auth.WithSessionRevocationOnPasswordChange(cfg.RevokeSessionsOnPasswordChange),
	)
	authHandler := auth.NewHandler(svc, auth.HandlerConfig{
		Cookies:        auth.CookiePolicy{Secure: cfg.CookieSecure},
		Tokens:         issuer,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, zl)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.WithRequestLogging(zl))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", collectors.Handler())

	r.Mount("/api/v1/users", authHandler.Routes(middleware.RequireAuth(issuer.AccessVerifier(), zl), limiter))

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	go func() {
		zl.Info("userauth listening", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

// openUserStore connects the configured backend and prepares its schema.
func openUserStore(ctx context.Context, cfg *config.Config) (auth.UserStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.MigratePostgres(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store.NewPostgresUserStore(db), func() { db.Close() }, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		closeFn := func() { client.Disconnect(context.Background()) }
		users := store.NewMongoUserStore(client.Database(cfg.MongoDB))
		if err := users.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return users, closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
