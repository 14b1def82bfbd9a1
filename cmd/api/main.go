package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/budget-tracker/internal/api/handlers"
	"github.com/dvloznov/budget-tracker/internal/api/middleware"
	"github.com/dvloznov/budget-tracker/internal/categorize"
	"github.com/dvloznov/budget-tracker/internal/jobs"
	jobsmem "github.com/dvloznov/budget-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/budget-tracker/internal/ledger"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/projection"
	"github.com/dvloznov/budget-tracker/internal/settlement"
	"github.com/dvloznov/budget-tracker/internal/store"
	storebq "github.com/dvloznov/budget-tracker/internal/store/bigquery"
	storemem "github.com/dvloznov/budget-tracker/internal/store/inmemory"
)

func main() {
	// Parse command-line flags
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		backend = flag.String("backend", os.Getenv("STORE_BACKEND"), "Storage backend: memory or bigquery (or set STORE_BACKEND env)")
		project = flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID for the bigquery backend")
		model   = flag.String("model", os.Getenv("GEMINI_MODEL"), "Gemini model for category suggestions (empty disables the endpoint)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	ctx := context.Background()

	// Initialize store
	dataStore, closeStore, err := openStore(ctx, *backend, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	// Initialize services
	ledgerSvc := ledger.NewService(dataStore, log)
	calc := projection.NewCalculator(dataStore)
	processor := settlement.NewProcessor(dataStore, log)

	var suggester *categorize.Suggester
	if os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "" {
		suggester = categorize.NewSuggester(*model)
	} else {
		log.Warn().Msg("No Gemini API key configured - category suggestions will be disabled")
	}

	// Initialize job infrastructure
	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(100, 4, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	// Create job handler for settlement jobs
	jobHandler := func(ctx context.Context, job jobs.Job) error {
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

	// Start job consumer in background
	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	accountsHandler := handlers.NewAccountsHandler(dataStore, calc, log)
	transactionsHandler := handlers.NewTransactionsHandler(dataStore, ledgerSvc, log)
	recurringHandler := handlers.NewRecurringHandler(dataStore, log)
	categoriesHandler := handlers.NewCategoriesHandler(dataStore, suggester, log)
	settlementHandler := handlers.NewSettlementHandler(processor, jobQueue, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Accounts endpoints
	mux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			accountsHandler.ListAccounts(w, r)
		case http.MethodPost:
			accountsHandler.CreateAccount(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/accounts/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
		accountID, ok := strings.CutSuffix(rest, "/projection")
		if !ok || accountID == "" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		accountsHandler.GetProjection(w, r, accountID)
	})

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		transactionID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if transactionID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}
		transactionsHandler.DeleteTransaction(w, r, transactionID)
	})

	mux.HandleFunc("/api/transfers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			transactionsHandler.CreateTransfer(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Recurring item endpoints
	mux.HandleFunc("/api/recurring", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			recurringHandler.ListRecurring(w, r)
		case http.MethodPost:
			recurringHandler.CreateRecurring(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Categories endpoints
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			categoriesHandler.ListCategories(w, r)
		case http.MethodPost:
			categoriesHandler.CreateCategory(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories/suggest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			categoriesHandler.SuggestCategory(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Settlement endpoints
	mux.HandleFunc("/api/settle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			settlementHandler.RunSettlement(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/settle/async", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			settlementHandler.EnqueueSettlement(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	// Close job queue
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

// openStore wires up the configured storage backend. The in-memory store is
// the default and keeps local development free of GCP credentials.
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
