package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-tracker/internal/backup"
	"github.com/dvloznov/budget-tracker/internal/categorize"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/projection"
	"github.com/dvloznov/budget-tracker/internal/settlement"
	"github.com/dvloznov/budget-tracker/internal/store"
	storebq "github.com/dvloznov/budget-tracker/internal/store/bigquery"
	storemem "github.com/dvloznov/budget-tracker/internal/store/inmemory"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "settle":
		runSettle(log)
	case "project":
		runProject(log)
	case "backup":
		runBackup(log)
	case "suggest":
		runSuggest(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Budget Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  settle    Run the daily settlement pass for an owner")
	fmt.Println("  project   Project an account balance to a future date")
	fmt.Println("  backup    Export an owner's data as a JSON snapshot in GCS")
	fmt.Println("  suggest   Suggest a category for a transaction description")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// storeFlags registers the shared backend flags on a command's flag set.
func storeFlags(fs *flag.FlagSet) (backend, project *string) {
	backend = fs.String("backend", os.Getenv("STORE_BACKEND"), "Storage backend: memory or bigquery")
	project = fs.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID for the bigquery backend")
	return backend, project
}

func runSettle(log zerolog.Logger) {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	backend, project := storeFlags(fs)
	owner := fs.String("owner", "", "Owner ID to settle")
	dateStr := fs.String("date", "", "Settlement date (YYYY-MM-DD, defaults to today)")
	fs.Parse(os.Args[2:])

	if *owner == "" {
		log.Fatal().Msg("Error: --owner is required")
	}

	day := civil.DateOf(time.Now().UTC())
	if *dateStr != "" {
		var err error
		day, err = civil.ParseDate(*dateStr)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --date")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	dataStore, closeStore, err := openStore(ctx, *backend, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	processor := settlement.NewProcessor(dataStore, logger.WithOwner(log, *owner))
	summary, err := processor.Run(ctx, *owner, day)
	if err != nil {
		log.Fatal().Err(err).Msg("Settlement failed")
	}

	if summary.AlreadySettled {
		fmt.Printf("Owner %s already settled for %s.\n", *owner, day)
		return
	}
	fmt.Printf("Settled %s for %s: %d pending transactions applied, %d recurring items fired.\n",
		*owner, day, summary.AppliedTransactions, summary.FiredItems)
}

func runProject(log zerolog.Logger) {
	fs := flag.NewFlagSet("project", flag.ExitOnError)
	backend, project := storeFlags(fs)
	owner := fs.String("owner", "", "Owner ID")
	accountID := fs.String("account", "", "Account ID to project")
	asOfStr := fs.String("as-of", "", "Target date (YYYY-MM-DD, defaults to owner's projection horizon)")
	fs.Parse(os.Args[2:])

	if *owner == "" || *accountID == "" {
		log.Fatal().Msg("Usage: cli project -owner ID -account ID [-as-of DATE]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	dataStore, closeStore, err := openStore(ctx, *backend, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	now := civil.DateOf(time.Now().UTC())
	asOf := now
	if *asOfStr != "" {
		asOf, err = civil.ParseDate(*asOfStr)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --as-of")
		}
	} else {
		settings, err := dataStore.GetSettings(ctx, *owner)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load settings")
		}
		asOf = now.AddDays(settings.ProjectionDays)
	}

	calc := projection.NewCalculator(dataStore)
	balance, err := calc.ProjectAccount(ctx, *owner, *accountID, now, asOf)
	if err != nil {
		log.Fatal().Err(err).Msg("Projection failed")
	}

	fmt.Printf("Projected balance of account %s on %s: %s\n", *accountID, asOf, balance.StringFixed(2))
}

func runBackup(log zerolog.Logger) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	backend, project := storeFlags(fs)
	owner := fs.String("owner", "", "Owner ID to export")
	bucket := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for snapshots")
	fs.Parse(os.Args[2:])

	if *owner == "" || *bucket == "" {
		log.Fatal().Msg("Usage: cli backup -owner ID -bucket NAME")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	dataStore, closeStore, err := openStore(ctx, *backend, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	snap, err := backup.BuildSnapshot(ctx, dataStore, *owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build snapshot")
	}

	object, err := backup.Upload(ctx, *bucket, snap)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to upload snapshot")
	}

	fmt.Printf("Exported %d accounts and %d transactions to gs://%s/%s\n",
		len(snap.Accounts), len(snap.Transactions), *bucket, object)
}

func runSuggest(log zerolog.Logger) {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	backend, project := storeFlags(fs)
	owner := fs.String("owner", "", "Owner ID whose categories to choose from")
	description := fs.String("description", "", "Transaction description to categorize")
	model := fs.String("model", os.Getenv("GEMINI_MODEL"), "Gemini model name")
	fs.Parse(os.Args[2:])

	if *owner == "" || *description == "" {
		log.Fatal().Msg("Usage: cli suggest -owner ID -description TEXT")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	dataStore, closeStore, err := openStore(ctx, *backend, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	categories, err := dataStore.ListCategories(ctx, *owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list categories")
	}

	suggester := categorize.NewSuggester(*model)
	name, err := suggester.Suggest(ctx, *description, categories)
	if err != nil {
		log.Fatal().Err(err).Msg("Suggestion failed")
	}

	fmt.Printf("Suggested category: %s\n", name)
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
