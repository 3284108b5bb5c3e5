package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vidyabase/vidya-backend/internal/db"
	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/observability"
	"github.com/vidyabase/vidya-backend/internal/orchestrator"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/services"
	"github.com/vidyabase/vidya-backend/internal/utils"
)

// exitConfig is the fail-fast exit code for missing required configuration.
const exitConfig = 2

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

	k8sMode := utils.GetEnvAsBool("ORCHESTRATOR_K8S_MODE", false, log)

	// Required connection configuration: missing values are fatal up front,
	// never retried.
	databaseURL, ok := utils.MustGetEnv("DATABASE_URL")
	if !ok {
		log.Error("DATABASE_URL is required")
		os.Exit(exitConfig)
	}
	var rdb *goredis.Client
	if !k8sMode {
		redisAddr, ok := utils.MustGetEnv("REDIS_ADDR")
		if !ok {
			log.Error("REDIS_ADDR is required in default mode")
			os.Exit(exitConfig)
		}
		rdb = goredis.NewClient(&goredis.Options{Addr: redisAddr, DialTimeout: 5 * time.Second})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Error("Redis connection failed", "error", err)
			os.Exit(exitConfig)
		}
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(exitConfig)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	lifecycleRepo := repos.NewWorkerLifecycleRepo(thePG, log)
	auditRepo := repos.NewAuditEventRepo(thePG, log)
	metrics := observability.NewMetrics()
	auditService := services.NewAuditService(log, auditRepo, rdb, utils.GetEnv("REDIS_CHANNEL", "", log))

	pollMS := utils.GetEnvAsInt("ORCHESTRATOR_POLL_MS", 5000, log)
	heartbeatFile := utils.GetEnv("ORCHESTRATOR_HEARTBEAT_FILE", "/tmp/vidya-orchestrator-heartbeat.yaml", log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if k8sMode {
		image, ok := utils.MustGetEnv("WORKER_CONTAINER_IMAGE")
		if !ok {
			log.Error("WORKER_CONTAINER_IMAGE is required in k8s mode")
			os.Exit(exitConfig)
		}
		lockID, err := strconv.ParseInt(utils.GetEnv("ORCHESTRATOR_LOCK_ID", "792201", log), 10, 64)
		if err != nil {
			log.Error("ORCHESTRATOR_LOCK_ID must be an integer", "error", err)
			os.Exit(exitConfig)
		}
		elector, err := orchestrator.NewAdvisoryLockElector(ctx, log, databaseURL, lockID)
		if err != nil {
			log.Error("Advisory lock connection failed", "error", err)
			os.Exit(exitConfig)
		}
		defer elector.Close(context.Background())

		client, err := orchestrator.NewK8sClient()
		if err != nil {
			log.Error("Kubernetes client init failed", "error", err)
			os.Exit(exitConfig)
		}
		controller := orchestrator.NewK8sController(orchestrator.K8sConfig{
			PollInterval:  time.Duration(pollMS) * time.Millisecond,
			HeartbeatFile: heartbeatFile,
			Namespace:     utils.GetEnv("WORKER_K8S_NAMESPACE", "default", log),
			Image:         image,
		}, log, lifecycleRepo, client, elector, auditService, metrics)
		if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal("Orchestrator stopped", "error", err)
		}
		return
	}

	workerBin := utils.GetEnv("WORKER_BIN", "vidya-worker", log)
	orch := orchestrator.New(orchestrator.Config{
		PollInterval:  time.Duration(pollMS) * time.Millisecond,
		HeartbeatFile: heartbeatFile,
	}, log, lifecycleRepo, orchestrator.NewExecSpawner(workerBin), auditService, metrics)
	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Orchestrator stopped", "error", err)
	}
	log.Info("Orchestrator shut down")
}
