package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/resource-reservation/internal/config"
	"github.com/iliyamo/resource-reservation/internal/database"
	"github.com/iliyamo/resource-reservation/internal/handler"
	"github.com/iliyamo/resource-reservation/internal/logger"
	"github.com/iliyamo/resource-reservation/internal/middleware"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/queue"
	"github.com/iliyamo/resource-reservation/internal/repository"
	"github.com/iliyamo/resource-reservation/internal/router"
	"github.com/iliyamo/resource-reservation/internal/service"
)

func main() {
	config.LoadDotEnv()                      // .env is optional
	cfg := config.Load()                     // Load environment config
	logger.Init(cfg.LogLevel, cfg.LogFormat) // Global zerolog logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("mysql: open failed")
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("mysql: migrate failed")
		}
	}

	rdb := config.NewRedisClient() // nil when Redis is down
	if rdb != nil {
		defer rdb.Close()
	}

	// Repositories
	resources := repository.NewResourceRepo(db)
	reservations := repository.NewReservationRepo(db)
	pivots := repository.NewReservationResourceRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	padaliniai := repository.NewPadalinysRepo(db)

	if err := bootstrapAdmin(ctx, users, cfg); err != nil {
		log.Fatal().Err(err).Msg("bootstrap admin failed")
	}

	// Services
	timelines := service.NewTimelineCache(rdb, cfg.CapacityCacheTTL)
	allocator := service.NewAllocator(resources, pivots, cfg.EnforceCapacity)
	capacities := service.NewCapacityService(resources, pivots, timelines)
	workflow := service.NewReservationService(reservations, pivots, users, allocator, timelines,
		service.NewRabbitPublisher(cfg.RabbitURL))

	if cfg.ConsumerEnabled {
		go func() {
			if err := queue.StartReservationConsumer(ctx, cfg.RabbitURL, cfg.ActivityLogDir); err != nil {
				log.Error().Err(err).Msg("reservation consumer stopped")
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(middleware.RequestLogger(log.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e, readiness(db, rdb)) // Register application routes
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, padaliniai), cfg.JWTSecret)
	router.RegisterResources(e, handler.NewResourceHandler(resources, padaliniai, capacities), cfg.JWTSecret,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterReservations(e, handler.NewReservationHandler(workflow, capacities), cfg.JWTSecret)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func readiness(db *sql.DB, rdb *redis.Client) map[string]handler.Pinger {
	deps := map[string]handler.Pinger{"mysql": db.PingContext}
	if rdb != nil {
		deps["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return deps
}

// bootstrapAdmin creates the first ADMIN account from BOOTSTRAP_ADMIN_EMAIL
// and BOOTSTRAP_ADMIN_PASSWORD.  Registration is admin-only, so without it
// an empty database has no way in.
func bootstrapAdmin(ctx context.Context, users *repository.UserRepo, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := users.GetByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	id, err := users.Create(ctx, cfg.AdminEmail, cfg.AdminPassword, model.RoleAdmin, nil, cfg.BcryptCost)
	if err != nil {
		return err
	}
	log.Info().Uint64("user_id", id).Str("email", cfg.AdminEmail).Msg("bootstrap admin created")
	return nil
}
