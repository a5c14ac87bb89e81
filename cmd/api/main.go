package main

import (
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/procureflow/backend/internal/cache"
	"github.com/procureflow/backend/internal/config"
	"github.com/procureflow/backend/internal/database"
	"github.com/procureflow/backend/internal/database/migrations"
	"github.com/procureflow/backend/internal/jobs"
	"github.com/procureflow/backend/internal/queue"
	"github.com/procureflow/backend/internal/routes"
	"github.com/procureflow/backend/internal/rules"
)

func main() {
	cfg := config.LoadConfig()

	var logger *zap.Logger
	var err error
	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Setup database connection
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := migrations.RunMigrations(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis-backed active rule set cache. The engine degrades to direct DB
	// lookups when Redis is unavailable.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ruleSetCache := cache.NewRuleSetCache(redisClient, 5*time.Minute)

	// Core rule engine services
	ruleSets := rules.NewRuleSetService(db, ruleSetCache, logger)
	evaluator := rules.NewEvaluator(db, logger)
	registry := rules.NewCountryRegistry(ruleSets)

	// Background job queue
	jobQueue := queue.NewQueue(db)
	jobs.RegisterJobs(jobQueue, db, evaluator, ruleSets, registry, nil, logger)
	go jobQueue.StartProcessing()
	defer jobQueue.Stop()

	// Nightly re-evaluation sweep catches documents that expired since the
	// last pass
	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(1).Day().At("02:00").Do(func() {
		if _, err := jobQueue.EnqueueJob(queue.JobTypeExpirySweep, jobs.ExpirySweepPayload{}); err != nil {
			logger.Error("failed to enqueue expiry sweep", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("failed to schedule expiry sweep", zap.Error(err))
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	// Initialize router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Configure CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Register routes
	routes.RegisterRoutes(router, db, jobQueue, ruleSets, evaluator, registry)

	logger.Info("compliance rule engine listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
