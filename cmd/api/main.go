package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vidyabase/vidya-backend/internal/db"
	"github.com/vidyabase/vidya-backend/internal/handlers"
	"github.com/vidyabase/vidya-backend/internal/jobs"
	"github.com/vidyabase/vidya-backend/internal/jobs/reconciler"
	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/observability"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/server"
	"github.com/vidyabase/vidya-backend/internal/services"
	"github.com/vidyabase/vidya-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	log.Info("Setting up repos...")
	jobRepo := repos.NewHydrationJobRepo(thePG, log)
	lockRepo := repos.NewJobLockRepo(thePG, log)
	lifecycleRepo := repos.NewWorkerLifecycleRepo(thePG, log)
	auditRepo := repos.NewAuditEventRepo(thePG, log)
	subjectRepo := repos.NewSubjectRepo(thePG, log)
	chapterRepo := repos.NewChapterRepo(thePG, log)
	topicRepo := repos.NewTopicRepo(thePG, log)

	var rdb *goredis.Client
	if addr := utils.GetEnv("REDIS_ADDR", "", log); addr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
		if pingErr := rdb.Ping(context.Background()).Err(); pingErr != nil {
			log.Warn("Redis ping failed, audit publishing disabled", "error", pingErr)
			rdb = nil
		}
	}

	metrics := observability.NewMetrics()

	log.Info("Setting up services...")
	auditService := services.NewAuditService(log, auditRepo, rdb, utils.GetEnv("REDIS_CHANNEL", "", log))
	hydrationService := services.NewHydrationService(thePG, log, jobRepo, subjectRepo, chapterRepo, topicRepo, auditService, auditRepo)

	log.Info("Registering scheduled jobs...")
	recon := reconciler.New(log, jobRepo, chapterRepo, topicRepo, auditService, metrics)
	registry := jobs.NewRegistry()
	mustRegister(log, registry, jobs.Definition{
		Name:     "hydration_reconciler",
		LockKey:  reconciler.LockKey,
		Timeout:  reconciler.LockTTL,
		EverySec: utils.GetEnvAsInt("RECONCILER_INTERVAL_SEC", 30, log),
		Run:      recon.Tick,
	})
	mustRegister(log, registry, jobs.Definition{
		Name:     "hydration_requeue_stale",
		Timeout:  2 * time.Minute,
		EverySec: utils.GetEnvAsInt("REQUEUE_INTERVAL_SEC", 300, log),
		Run: func(ctx context.Context) error {
			n, err := jobRepo.RequeueStale(ctx, nil, 30*time.Minute, 5)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("Requeued stale hydration jobs", "count", n)
			}
			return nil
		},
	})
	scheduler := jobs.NewScheduler(log, lockRepo, registry, metrics)
	scheduler.Start(context.Background())

	log.Info("Setting up handlers and router...")
	hydrationHandler := handlers.NewHydrationHandler(hydrationService)
	workersHandler := handlers.NewWorkersHandler(lifecycleRepo)
	healthHandler := handlers.NewHealthHandler(lifecycleRepo, metrics, utils.GetEnv("ORCHESTRATOR_HEARTBEAT_FILE", "", log))

	router := server.NewRouter(server.RouterConfig{
		HydrationHandler: hydrationHandler,
		WorkersHandler:   workersHandler,
		HealthHandler:    healthHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting API server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("API server exited", "error", err)
	}
}

func mustRegister(log *logger.Logger, registry *jobs.Registry, def jobs.Definition) {
	if err := registry.Register(def); err != nil {
		log.Fatal("Job registration failed", "job", def.Name, "error", err)
	}
}
