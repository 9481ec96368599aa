package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"price_tracker/collector"
	"price_tracker/config"
	"price_tracker/httputil"
	"price_tracker/logging"
	"price_tracker/models"
	"price_tracker/queue"
	"price_tracker/scheduler"
	"price_tracker/services"
	"price_tracker/storage"
	"price_tracker/workers"
)

var (
	collectNow = flag.Bool("collect", false, "Run one collection pass and exit")
	workMode   = flag.Bool("work", false, "Run the enrichment worker pool")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("tracker.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting price_tracker...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s)", site.Name, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Database.URL))

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	workQueue := queue.New(pgStore.Pool(), queue.Options{
		MaxRetries:   cfg.Queue.MaxRetries,
		TTL:          cfg.Queue.TTL,
		ClaimTimeout: cfg.Queue.ClaimTimeout,
	})

	listingService := services.NewListingService(pgStore)
	runner := collector.NewRunner(cfg, pgStore, sqliteStore, workQueue, listingService)

	logFunc := func(level models.LogLevel, source, message string) {
		if err := sqliteStore.Log(nil, level, message, source); err != nil {
			log.Printf("Warning: run log write failed: %v", err)
		}
	}

	switch {
	case *collectNow:
		runCollect(ctx, cfg, pgStore, runner)
	case *workMode:
		runWork(ctx, cancel, cfg, pgStore, workQueue, listingService, runner, logFunc)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runCollect is the one-shot entrypoint: one collection pass for the
// configured search term, then exit.
func runCollect(ctx context.Context, cfg *config.Config, pgStore *storage.PostgresStore, runner *collector.Runner) {
	search, err := pgStore.GetOrCreateSearch(ctx, cfg.Search.Term, models.SiteEbay)
	if err != nil {
		log.Fatalf("Failed to resolve search: %v", err)
	}

	log.Printf("Collecting %q...", search.Term)
	run, err := runner.CollectSearch(ctx, search)
	if err != nil {
		log.Fatalf("Collection failed: %v", err)
	}
	log.Printf("Collection complete: %d pages, %d listings (%d new), %d enqueued",
		run.PagesScraped, run.ListingsFound, run.ListingsNew, run.TasksEnqueued)
}

// runWork is the long-running entrypoint: the enrichment pool plus the
// background workers and the scheduler, until SIGINT/SIGTERM.
func runWork(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, pgStore *storage.PostgresStore, workQueue *queue.WorkQueue, listingService *services.ListingService, runner *collector.Runner, logFunc workers.LogFunc) {
	clients := httputil.NewClients()

	healthcheckWorker := workers.NewHealthcheckWorker(pgStore, listingService, clients.Check)
	healthcheckWorker.SetLogger(logFunc)
	go healthcheckWorker.Run(ctx, 24*time.Hour, 20, 30*time.Minute)
	log.Println("Healthcheck worker started")

	var snapshotWorker *workers.SnapshotWorker
	if cfg.S3.Bucket != "" {
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
		}, clients.API)
		if err != nil {
			log.Fatalf("Failed to set up S3 uploader: %v", err)
		}
		snapshotWorker = workers.NewSnapshotWorker(pgStore, uploader)
		go snapshotWorker.Run(ctx, 20, 2*time.Minute)
		log.Println("Snapshot worker started")
	} else {
		log.Println("No S3 bucket configured, snapshots stay local")
	}

	sched := scheduler.New(cfg, runner, workQueue)
	var snapTrigger scheduler.Triggerable
	if snapshotWorker != nil {
		snapTrigger = snapshotWorker
	}
	sched.SetWorkers(healthcheckWorker, snapTrigger)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	pool := workers.NewPool(cfg, pgStore, workQueue, listingService)
	pool.SetLogger(logFunc)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	log.Println("Worker pool running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()

	select {
	case <-poolDone:
	case <-time.After(30 * time.Second):
		log.Println("Warning: worker pool did not stop in time")
	}
	log.Println("Goodbye!")
}

// maskConnectionString masks the password in a connection string for logging.
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			if colonIdx > 0 {
				return connStr[:colonIdx+1] + "****" + connStr[i:]
			}
			break
		}
	}
	return connStr
}
