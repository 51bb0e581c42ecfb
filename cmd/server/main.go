package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trainsync/internal/api"
	"trainsync/internal/config"
	"trainsync/internal/logging"
	"trainsync/internal/metrics"
	"trainsync/internal/repository"
	"trainsync/internal/repository/memory"
	"trainsync/internal/repository/mongo"
	"trainsync/internal/service"
	"trainsync/internal/storage"
	"trainsync/internal/store"
	"trainsync/internal/vk"
)

// @title TrainSync API
// @version 1.0
// @description Backend of the TrainSync VK mini-app: profiles, shared workouts and tasks.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the token from POST /session.
func main() {
	bootstrap := zap.Must(zap.NewProduction())

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		bootstrap.Fatal("could not load config", zap.Error(err))
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		bootstrap.Fatal("could not build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting trainsync", zap.String("address", cfg.Server.Address), zap.String("db_driver", cfg.Database.Driver))

	if cfg.VK.AppSecret == "" || cfg.JWT.Secret == "" {
		log.Fatal("vk.app_secret and jwt.secret must be set")
	}

	// --- Record Store ---
	var repos repository.Repositories
	switch cfg.Database.Driver {
	case "memory":
		repos = memory.NewStore().Repositories()
		log.Warn("using in-memory record store, data is lost on restart")
	default:
		dbClient, err := mongo.ConnectDB(cfg.Database.URI)
		if err != nil {
			log.Fatal("could not connect to MongoDB", zap.Error(err))
		}
		defer func() {
			log.Info("disconnecting MongoDB")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				log.Error("failed to disconnect MongoDB", zap.Error(err))
			}
		}()
		appDB := dbClient.Database(cfg.Database.Name)
		repos = mongo.NewRepositories(appDB)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := mongo.EnsureIndexes(ctx, appDB); err != nil {
				log.Error("index creation failed", zap.Error(err))
				return
			}
			log.Info("indexes ensured")
		}()
	}

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Host Platform ---
	var (
		identity store.IdentityProvider = store.BareIdentity
		notifier service.Notifier
	)
	if cfg.VK.ServiceToken != "" {
		vkClient, err := vk.NewClient(cfg.VK, log.Named("vk"))
		if err != nil {
			log.Fatal("could not create VK client", zap.Error(err))
		}
		identity = vkClient
		if cfg.VK.Notifications {
			notifier = vkClient
		}
	} else {
		log.Warn("vk.service_token not set, profiles start without VK data")
	}

	// --- Stores ---
	hub := store.NewHub(log.Named("hub"))
	sessions := store.NewSessions(repos, identity, hub, m, log.Named("session"))
	workouts := store.NewWorkoutStore(repos.Workouts, repos.Users, cfg.Workouts.Location(), hub, m, log.Named("workouts"))

	evictCtx, stopEviction := context.WithCancel(context.Background())
	defer stopEviction()
	if cfg.Session.IdleTTL > 0 && cfg.Session.SweepInterval > 0 {
		go sessions.RunEviction(evictCtx, cfg.Session.SweepInterval, cfg.Session.IdleTTL)
	}

	// --- Services ---
	deps := api.Deps{
		SessionService: service.NewSessionService(sessions, cfg.VK.AppSecret, cfg.VK.LaunchTTL, cfg.JWT.Secret, cfg.JWT.Expiration, log.Named("session")),
		UserService:    service.NewUserService(repos.Users),
		WorkoutService: service.NewWorkoutService(workouts, notifier, log.Named("workouts")),
		Sessions:       sessions,
		Workouts:       workouts,
		Hub:            hub,
		MetricsHandler: promhttp.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log.Named("http"),
	}
	if cfg.S3.BucketName != "" {
		files, err := storage.NewS3Storage(context.Background(), cfg.S3, log.Named("storage"))
		if err != nil {
			log.Fatal("failed to initialize S3 storage", zap.Error(err))
		}
		deps.AvatarService = service.NewAvatarService(files, cfg.S3.PublicURL, log.Named("avatar"))
	} else {
		log.Warn("s3.bucket_name not set, avatar uploads disabled")
	}

	// --- HTTP ---
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, deps)

	// No WriteTimeout: the event stream stays open. Streams end when
	// shutdown cancels the base context.
	baseCtx, stopStreams := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(stopStreams)

	go func() {
		log.Info("server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exiting")
}
