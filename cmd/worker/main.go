package main

import (
	"context"
	"log"

	"github.com/tailingsiq/tailingsiq/internal/aws"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/logging"
	"github.com/tailingsiq/tailingsiq/internal/queue"
)

func main() {
	cfg := config.Load()

	if err := logging.Init(&cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	sesService, err := aws.NewSESService(ctx, cfg.AWS)
	if err != nil {
		log.Fatalf("Failed to initialize SES: %v", err)
	}

	// identities are managed outside the app in production
	if cfg.AWS.EndpointURL != "" {
		logging.Info("Verifying sender identity", "from", sesService.FromEmail())
		if err := sesService.VerifySender(ctx); err != nil {
			log.Fatalf("Failed to verify sender: %v", err)
		}
	}

	worker := queue.NewWorker(&cfg.Redis, sesService)

	logging.Info("Starting queue worker", "redis", cfg.Redis.Addr)
	if err := worker.Run(); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
}
