package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/viralens/viralens/internal/api"
	"github.com/viralens/viralens/internal/api/handler"
	"github.com/viralens/viralens/internal/config"
	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/downloader"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/internal/scraper"
	"github.com/viralens/viralens/internal/service"
	"github.com/viralens/viralens/internal/storage"
	"github.com/viralens/viralens/internal/worker"
	"github.com/viralens/viralens/pkg/frames"
	"github.com/viralens/viralens/pkg/llm"
	"github.com/viralens/viralens/pkg/transcribe"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("viralens %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Local development convenience; the file is optional.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting viralens",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := repository.OpenStore(cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	objectStore, err := storage.NewMinIOStore(context.Background(), cfg.Storage)
	if err != nil {
		logger.Error("failed to connect to object storage", "error", err)
		os.Exit(1)
	}

	// Repositories
	postRepo := repository.NewSQLitePostRepository(store)
	requestRepo := repository.NewSQLiteRequestRepository(store)
	analysisRepo := repository.NewSQLiteAnalysisRepository(store)
	jobRepo := repository.NewInMemoryJobRepository()

	// External clients
	llmClient := llm.NewClient(cfg.LLM)
	transcribeClient := transcribe.NewClient(cfg.Transcribe)
	framesClient := frames.NewClient(cfg.Frames)
	dl := downloader.NewHTTPDownloader(cfg.Download, logger)

	scraperFactory := func(platform domain.Platform) (scraper.Scraper, error) {
		return scraper.New(platform, cfg.Scraper, logger)
	}

	// Pipeline services
	saver := service.NewSaver(postRepo, objectStore, dl, logger)
	checker := service.NewDuplicateChecker(postRepo, logger)
	linker := service.NewLinker(requestRepo, logger)
	collector := service.NewCollector(checker, saver, linker, postRepo, scraperFactory, logger)
	extractor := service.NewExtractor(postRepo, framesClient, cfg.Frames.FrameCount, logger)
	analyzer := service.NewAnalyzer(analysisRepo, postRepo, llmClient, cfg.LLM.MaxComments, logger)
	pipeline := service.NewPipeline(requestRepo, postRepo, collector, extractor, analyzer, linker, transcribeClient, logger)
	ingest := service.NewIngestService(requestRepo, jobRepo, cfg.Worker.MaxRetries, logger)

	// HTTP surface
	requestHandler := handler.NewRequestHandler(ingest, logger)
	healthHandler := handler.NewHealthHandler(jobRepo)
	router := api.NewRouter(requestHandler, healthHandler, cfg.Server.APIKey)

	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		pipeline,
		logger,
	)
	pool.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Allow in-flight pipeline runs to finish.
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
