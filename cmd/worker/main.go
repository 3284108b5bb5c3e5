package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/vidyabase/vidya-backend/internal/db"
	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/services"
	"github.com/vidyabase/vidya-backend/internal/types"
	"github.com/vidyabase/vidya-backend/internal/utils"
	"github.com/vidyabase/vidya-backend/internal/worker"
)

func main() {
	workerType := flag.String("type", "content-hydration", "worker type")
	lifecycleIDArg := flag.String("lifecycle-id", "", "worker lifecycle row id")
	flag.Parse()

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
	log = log.With("worker_type", *workerType)

	var lifecycleID uuid.UUID
	if *lifecycleIDArg != "" {
		lifecycleID, err = uuid.Parse(*lifecycleIDArg)
		if err != nil {
			log.Fatal("Invalid --lifecycle-id", "value", *lifecycleIDArg, "error", err)
		}
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	thePG := postgresService.DB()

	jobRepo := repos.NewHydrationJobRepo(thePG, log)
	lifecycleRepo := repos.NewWorkerLifecycleRepo(thePG, log)
	chapterRepo := repos.NewChapterRepo(thePG, log)
	topicRepo := repos.NewTopicRepo(thePG, log)

	gen := services.NewHTTPGenerator(log, utils.GetEnv("CONTENT_GENERATOR_URL", "", log))

	registry := worker.NewHandlerRegistry()
	if err := worker.RegisterContentHandlers(registry, log, gen, jobRepo, chapterRepo, topicRepo); err != nil {
		log.Fatal("Handler registration failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Acknowledge a drain request on the lifecycle row as soon as the signal
	// lands; the orchestrator records the final STOPPED on process exit.
	if lifecycleID != uuid.Nil {
		go func() {
			<-ctx.Done()
			ackCtx := context.Background()
			if err := lifecycleRepo.UpdateFields(ackCtx, nil, lifecycleID, map[string]interface{}{
				"status": types.LifecycleDraining,
			}); err != nil {
				log.Warn("Drain acknowledgement failed", "error", err)
			}
		}()
	}

	w := worker.New(thePG, log, jobRepo, lifecycleRepo, registry, lifecycleID)
	w.Run(ctx)
}
