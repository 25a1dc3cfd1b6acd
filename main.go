// Package main is the entry point for the poll engine backend.
// It initializes configuration, database and Redis connections,
// the token/rate-limit/identity/vote/live/scheduler components,
// sets up the HTTP router, starts the server, and handles graceful
// shutdown upon receiving SIGINT or SIGTERM.
//
// @title           Poll Engine API
// @version         1.0.0
// @description     Multi-tenant scheduling and survey poll backend
//
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
//
// @host            localhost:8080
// @BasePath        /api/v1
//
// @securityDefinitions.apikey    BearerAuth
// @in                            header
// @name                          Authorization
// @description                   JWT token for authentication
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pollrelay/pollengine/config"
	"github.com/pollrelay/pollengine/db"
	"github.com/pollrelay/pollengine/handlers"
	internaldb "github.com/pollrelay/pollengine/internal/db"
	"github.com/pollrelay/pollengine/internal/events"
	"github.com/pollrelay/pollengine/internal/identity"
	"github.com/pollrelay/pollengine/internal/live"
	"github.com/pollrelay/pollengine/internal/ratelimit"
	"github.com/pollrelay/pollengine/internal/scheduler"
	"github.com/pollrelay/pollengine/internal/store/postgres"
	"github.com/pollrelay/pollengine/internal/token"
	"github.com/pollrelay/pollengine/internal/voteengine"
	"github.com/pollrelay/pollengine/logger"
	"github.com/pollrelay/pollengine/middleware"
	"github.com/pollrelay/pollengine/router"
	"github.com/pollrelay/pollengine/services"

	"github.com/redis/go-redis/v9"
)

// main initializes and runs the poll engine backend. It sets up
// logging, configuration, database and Redis connections, the C1-C9
// components, the Gin router, and graceful shutdown.
func main() {
	logger.InitLogger()
	log := logger.GetLogger()
	defer logger.Close()

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal. Initiating graceful shutdown...")
		cancel()
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := internaldb.NewPool(dbCtx, &cfg.Database)
	dbCancel()
	if err != nil {
		log.Fatalf("Failed to establish database connection: %v", err)
	}
	defer pool.Close()
	log.Info("Successfully established database connection")

	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		log.Warnw("Migration error (continuing — tables may already exist)", "error", err)
	}

	redisOpts := config.ConfigureUpstashRedisOptions(&cfg.Redis)
	redisClient := redis.NewClient(redisOpts)
	if err := config.TestRedisConnection(redisClient); err != nil {
		log.Warnw("Initial Redis connection check failed, will retry during operation", "error", err)
	} else {
		log.Info("Successfully established Redis connection")
	}
	defer redisClient.Close()

	validator, err := middleware.NewJWTValidator(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize JWT validator: %v", err)
	}

	pollStore := postgres.New(pool)

	tokenService := token.NewService(cfg.Auth.DeviceTokenSecret)
	resolver := identity.NewResolver(tokenService, cfg.IsProduction())
	userLookup := identity.NewStoreLookup(pollStore)

	limiter := ratelimit.NewRedisLimiter(redisClient, "pollengine")
	for name, bucket := range map[string]ratelimit.BucketConfig{
		ratelimit.BucketRegistration:  {Window: time.Hour, MaxRequests: cfg.RateLimit.RegistrationPerHour, Enabled: true},
		ratelimit.BucketPasswordReset: {Window: 15 * time.Minute, MaxRequests: cfg.RateLimit.PasswordResetPer15Min, Enabled: true},
		ratelimit.BucketPollCreation:  {Window: time.Minute, MaxRequests: cfg.RateLimit.PollCreationPerMinute, Enabled: true},
		ratelimit.BucketVote:          {Window: 10 * time.Second, MaxRequests: cfg.RateLimit.VotePer10Seconds, Enabled: true},
		ratelimit.BucketEmail:         {Window: time.Minute, MaxRequests: cfg.RateLimit.EmailPerMinute, Enabled: true},
		ratelimit.BucketAPIGeneral:    {Window: time.Minute, MaxRequests: cfg.RateLimit.APIGeneralPerMinute, Enabled: true},
		ratelimit.BucketLogin:         {Window: 15 * time.Minute, MaxRequests: cfg.RateLimit.LoginPer15Min, Enabled: true},
		ratelimit.BucketEmailCheck:    {Window: time.Minute, MaxRequests: cfg.RateLimit.EmailCheckPerMinute, Enabled: true},
		ratelimit.BucketAI:            {Window: time.Hour, MaxRequests: cfg.RateLimit.AIPerHour, Enabled: true},
	} {
		limiter.SetBucket(name, bucket)
	}

	eventService := events.NewService(redisClient, events.Config{
		PublishTimeout:   time.Duration(cfg.EventService.PublishTimeoutSeconds) * time.Second,
		SubscribeTimeout: time.Duration(cfg.EventService.SubscribeTimeoutSeconds) * time.Second,
		EventBufferSize:  cfg.EventService.EventBufferSize,
	})
	if err := eventService.RegisterHandler("poll-audit-log", events.NewAuditHandler()); err != nil {
		log.Fatalf("failed to register event audit handler: %v", err)
	}

	emailService := services.NewEmailService(&cfg.Email)
	notificationService := services.NewNotificationFacadeService(emailService, pollStore, cfg.Server.FrontendURL)

	broadcaster := live.NewBroadcaster(eventService)
	voteEngine := voteengine.NewEngine(pollStore, resolver, userLookup, broadcaster, notificationService)

	liveHub := live.NewHub(eventService)
	liveHandler := live.NewHandler(liveHub, &cfg.Server)

	sweeper := scheduler.New(pollStore, notificationService, scheduler.Config{
		SweepInterval: time.Duration(cfg.Scheduler.SweepIntervalSeconds) * time.Second,
	})
	go sweeper.Start(shutdownCtx)

	healthService := services.NewHealthService(pool, redisClient, cfg.Server.Version)

	deps := &router.Dependencies{
		Config:        cfg,
		Validator:     validator,
		Limiter:       limiter,
		PollHandler:   handlers.NewPollHandler(pollStore, resolver, notificationService),
		VoteHandler:   handlers.NewVoteHandler(pollStore, resolver, voteEngine),
		LiveHandler:   handlers.NewLiveHandler(pollStore, liveHandler),
		HealthHandler: handlers.NewHealthHandler(healthService),
	}
	engine := router.SetupRouter(deps)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	go func() {
		log.Infow("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	log.Info("Shutting down server...")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down scheduler...")
	if err := sweeper.Shutdown(ctx); err != nil {
		log.Errorw("Error during scheduler shutdown", "error", err)
	}

	log.Info("Shutting down event service...")
	if err := eventService.Shutdown(ctx); err != nil {
		log.Errorw("Error during event service shutdown", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("Server forced to shutdown", "error", err)
	}

	log.Info("Server has been gracefully shut down")
}
