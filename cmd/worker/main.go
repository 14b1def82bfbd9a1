package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-tracker/internal/jobs"
	jobsmem "github.com/dvloznov/budget-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/settlement"
	"github.com/dvloznov/budget-tracker/internal/store"
	storebq "github.com/dvloznov/budget-tracker/internal/store/bigquery"
	storemem "github.com/dvloznov/budget-tracker/internal/store/inmemory"
)

func main() {
	// Parse command-line flags
	var (
		backend  = flag.String("backend", os.Getenv("STORE_BACKEND"), "Storage backend: memory or bigquery (or set STORE_BACKEND env)")
		project  = flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID for the bigquery backend")
		interval = flag.Duration("interval", time.Hour, "How often to check for owners needing a daily settlement pass")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	dataStore, closeStore, err := openStore(ctx, *backend, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	processor := settlement.NewProcessor(dataStore, log)

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(100, 4, jobStore)

	log.Info().Msg("Starting settlement worker")

	// Create job handler that runs the daily pass for one owner
	handler := func(ctx context.Context, job jobs.Job) error {
		settleJob, ok := job.(*jobs.SettleOwnerJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", settleJob.JobID).
			Str("owner_id", settleJob.OwnerID).
			Str("run_date", settleJob.RunDate.String()).
			Msg("Processing settlement job")

		summary, err := processor.Run(ctx, settleJob.OwnerID, settleJob.RunDate)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", settleJob.JobID).
				Str("owner_id", settleJob.OwnerID).
				Msg("Settlement run failed")
			return err
		}

		log.Info().
			Str("job_id", settleJob.JobID).
			Str("owner_id", settleJob.OwnerID).
			Bool("already_settled", summary.AlreadySettled).
			Int("applied_transactions", summary.AppliedTransactions).
			Int("fired_items", summary.FiredItems).
			Msg("Settlement run completed")

		return nil
	}

	// Start consuming jobs
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Periodically enqueue a settlement job for every known owner. Running a
	// pass twice on the same day is a no-op, so overlapping ticks are safe.
	go func() {
		enqueueAll(ctx, dataStore, jobQueue, log)

		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				enqueueAll(ctx, dataStore, jobQueue, log)
			}
		}
	}()

	log.Info().Dur("interval", *interval).Msg("Settlement worker started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down settlement worker...")

	// Cancel context to stop workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Close the queue
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Settlement worker exited")
}

func enqueueAll(ctx context.Context, s store.Store, publisher jobs.Publisher, log zerolog.Logger) {
	owners, err := s.ListOwners(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list owners")
		return
	}

	day := civil.DateOf(time.Now().UTC())
	for _, owner := range owners {
		job := &jobs.SettleOwnerJob{
			OwnerID: owner,
			RunDate: day,
		}
		if err := publisher.PublishSettleOwner(ctx, job); err != nil {
			log.Error().Err(err).Str("owner_id", owner).Msg("Failed to enqueue settlement job")
			continue
		}
		log.Info().Str("job_id", job.JobID).Str("owner_id", owner).Msg("Settlement job enqueued")
	}
}

// openStore wires up the configured storage backend.
func openStore(ctx context.Context, backend, project string) (store.Store, func(), error) {
	switch backend {
	case "", "memory":
		return storemem.NewStore(), func() {}, nil
	case "bigquery":
		if project == "" {
			return nil, nil, fmt.Errorf("bigquery backend requires -project or GOOGLE_CLOUD_PROJECT")
		}
		repo, err := storebq.NewRepository(ctx, project)
		if err != nil {
			return nil, nil, fmt.Errorf("creating bigquery repository: %w", err)
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}
