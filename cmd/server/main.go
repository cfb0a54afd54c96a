package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/tahcohcat/reconectar/config"
	"github.com/tahcohcat/reconectar/internal/api"
	"github.com/tahcohcat/reconectar/internal/auth"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/localstore"
	"github.com/tahcohcat/reconectar/internal/logger"
	"github.com/tahcohcat/reconectar/internal/metrics"
	"github.com/tahcohcat/reconectar/internal/realtime"
	"github.com/tahcohcat/reconectar/internal/services"
	"github.com/tahcohcat/reconectar/internal/state"
	"github.com/tahcohcat/reconectar/internal/storage"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Setup(logger.LogLevelError, false)
		logger.New().WithError(err).Error("Failed to load config")
		os.Exit(1)
	}
	logger.Setup(logger.ParseLevel(cfg.Logger.Level), cfg.Logger.Development)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.New().WithError(err).Error("Server stopped with error")
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	store, closeStore, err := openLocalStore(ctx, cfg.LocalStore, db)
	if err != nil {
		return err
	}
	defer closeStore()

	broker := realtime.NewBroker()
	go broker.Run(ctx)

	var avatars services.ObjectStore
	if cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:     cfg.Storage.Endpoint,
			Region:       cfg.Storage.Region,
			Bucket:       cfg.Storage.Bucket,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			PublicURL:    cfg.Storage.PublicURL,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			return err
		}
		avatars = s3
	} else {
		logger.New().Warn("Avatar uploads disabled: storage.bucket is not set")
	}

	users := services.NewUserService(db, broker)
	roles := services.NewRoleService(db, broker)
	profiles := services.NewProfileService(db, roles, broker, avatars, cfg.Storage.MaxAvatarBytes)
	challenges, err := services.NewChallengeService(db, store, profiles, broker, cfg.LocalStore.EngineCache)
	if err != nil {
		return err
	}
	svc := api.Services{
		Users:      users,
		Roles:      roles,
		Profiles:   profiles,
		Challenges: challenges,
		Community:  services.NewCommunityService(db, roles, broker),
		Chat: services.NewChatService(db, roles, broker, services.ChatLimit{
			PerMinute: cfg.Chat.PerMinute,
			Burst:     cfg.Chat.Burst,
		}),
		Wellness: services.NewWellnessService(store, broker),
		Admin:    services.NewAdminService(db, roles, profiles, broker),
	}

	m := metrics.New()
	am := auth.NewManager(auth.Options{
		Secret:     cfg.Auth.SessionSecret,
		Secure:     cfg.Auth.SecureCookies,
		MaxAgeDays: cfg.Auth.MaxAgeDays,
	}, users, roles)
	h := api.NewHandler(svc, broker, m, api.Options{
		MaxUploadBytes: cfg.Storage.MaxAvatarBytes,
		Retry: state.RetryPolicy{
			MaxTries:        cfg.Sync.MaxTries,
			InitialInterval: cfg.Sync.InitialInterval,
			MaxInterval:     cfg.Sync.MaxInterval,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	r := mux.NewRouter()
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", metrics.BasicAuth(cfg.Metrics.User, cfg.Metrics.Password, m.Handler())).Methods("GET")
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	app := r.PathPrefix("/").Subrouter()
	app.Use(m.Middleware)
	app.Use(am.Middleware)
	api.RegisterRoutes(app, h, am)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(c.Handler(r))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.New().With("port", cfg.Server.Port).With("database", cfg.Database.Path).
			With("localstore", cfg.LocalStore.Driver).Info("ReConectar server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.New().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openLocalStore(ctx context.Context, cfg config.LocalStoreConfig, db *database.DB) (localstore.Store, func(), error) {
	switch cfg.Driver {
	case "redis":
		rs := localstore.NewRedisStore(localstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	case "", "sqlite":
		return localstore.NewSQLStore(db), func() {}, nil
	default:
		return nil, nil, errors.New("unknown localstore driver " + cfg.Driver)
	}
}
