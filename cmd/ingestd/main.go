// Package main wires together the ingestion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/api"
	gcsblob "github.com/newsloom/ingestd/internal/blob/gcs"
	memoryblob "github.com/newsloom/ingestd/internal/blob/memory"
	"github.com/newsloom/ingestd/internal/clock/system"
	"github.com/newsloom/ingestd/internal/config"
	"github.com/newsloom/ingestd/internal/dispatch"
	"github.com/newsloom/ingestd/internal/extract"
	"github.com/newsloom/ingestd/internal/fetch"
	"github.com/newsloom/ingestd/internal/hash/sha256"
	"github.com/newsloom/ingestd/internal/health"
	"github.com/newsloom/ingestd/internal/id/uuid"
	"github.com/newsloom/ingestd/internal/ingest"
	"github.com/newsloom/ingestd/internal/ingestor"
	"github.com/newsloom/ingestd/internal/llm/openai"
	"github.com/newsloom/ingestd/internal/logging"
	memorypipeline "github.com/newsloom/ingestd/internal/pipeline/memory"
	pubsubpipeline "github.com/newsloom/ingestd/internal/pipeline/pubsub"
	"github.com/newsloom/ingestd/internal/scheduler"
	"github.com/newsloom/ingestd/internal/skill"
	memorystore "github.com/newsloom/ingestd/internal/store/memory"
	postgresstore "github.com/newsloom/ingestd/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	hasher := sha256.New()
	idGen := uuid.New()

	var (
		sourceStore ingest.SourceStore
		skillStore  ingest.SkillStore
	)
	if cfg.DB.DSN != "" {
		dbCfg := postgresstore.Config{
			DSN:          cfg.DB.DSN,
			SourcesTable: cfg.DB.SourcesTable,
			SkillsTable:  cfg.DB.SkillsTable,
			MaxConns:     cfg.DB.MaxConns,
			MinConns:     cfg.DB.MinConns,
		}
		pgSources, err := postgresstore.NewSourceStore(ctx, dbCfg)
		if err != nil {
			logger.Fatal("source store init failed", zap.Error(err))
		}
		defer pgSources.Close()
		pgSkills, err := postgresstore.NewSkillStore(ctx, dbCfg)
		if err != nil {
			logger.Fatal("skill store init failed", zap.Error(err))
		}
		defer pgSkills.Close()
		sourceStore = pgSources
		skillStore = pgSkills
	} else {
		logger.Info("no database configured, using in-memory stores")
		sourceStore = memorystore.NewSourceStore()
		skillStore = memorystore.NewSkillStore()
	}
	articleStore := memorystore.NewArticleStore()

	var publisher ingest.Publisher
	if cfg.PubSub.ProjectID != "" {
		psPublisher, err := pubsubpipeline.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer psPublisher.Stop()
		publisher = psPublisher
	} else {
		publisher = memorypipeline.New()
	}

	var blobs ingest.BlobStore
	if cfg.Blob.GCSBucket != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := gcsClient.Close(); closeErr != nil {
				logger.Warn("gcs client close failed", zap.Error(closeErr))
			}
		}()
		gcsBlobs, err := gcsblob.New(gcsClient, gcsblob.Config{Bucket: cfg.Blob.GCSBucket})
		if err != nil {
			logger.Fatal("blob store init failed", zap.Error(err))
		}
		blobs = gcsBlobs
	} else {
		blobs = memoryblob.New()
	}

	fetcher := fetch.NewHTTP(fetch.HTTPConfig{
		UserAgent:      cfg.Fetch.UserAgent,
		Timeout:        time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		PerDomainRPS:   cfg.Fetch.PerDomainRPS,
		PerDomainBurst: cfg.Fetch.PerDomainBurst,
	})
	var renderer ingest.Renderer
	if cfg.Render.Enabled {
		chrome, err := fetch.NewChromeRenderer(fetch.RenderConfig{
			MaxSessions: cfg.Render.MaxSessions,
			UserAgent:   cfg.Fetch.UserAgent,
			NavTimeout:  time.Duration(cfg.Render.NavTimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			defer chrome.Close()
			renderer = chrome
		}
	}
	detector := fetch.NewDetector(cfg.Render.MinHTMLBytes, nil)
	loader := fetch.NewLoader(fetcher, renderer, detector)

	llmClient := openai.New(openai.Config{
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		MaxConcurrent:     cfg.LLM.MaxConcurrent,
	})

	skillCfg := skill.DefaultConfig()
	skillCfg.SampleCount = cfg.Skill.SampleCount
	skillCfg.MinValidFraction = cfg.Skill.MinValidFraction
	skillCfg.MinBodyLength = cfg.Skill.MinBodyLength
	skillCfg.MaxTurns = cfg.Skill.MaxTurns
	skillCfg.Model = cfg.LLM.Model
	if cfg.Blob.Prefix != "" {
		skillCfg.SnapshotPrefix = cfg.Blob.Prefix
	}
	generator := skill.New(
		llmClient,
		loader,
		skillStore,
		sourceStore,
		blobs,
		hasher,
		idGen,
		clock,
		skillCfg,
		logger.Named("skill"),
	)

	drift := extract.NewDriftTracker(cfg.Extract.DriftWindow, cfg.Extract.DriftThreshold)
	agent := extract.NewAgent(
		loader,
		drift,
		hasher,
		idGen,
		extract.AgentConfig{
			MinBodyLength:      cfg.Extract.MinBodyLength,
			FallbackConfidence: cfg.Extract.FallbackConfidence,
		},
		logger.Named("extract"),
	)

	sink := ingestor.New(articleStore, publisher, logger.Named("ingestor"))
	dispatcher := dispatch.New(
		fetcher,
		agent,
		generator,
		skillStore,
		sink,
		hasher,
		idGen,
		clock,
		logger.Named("dispatch"),
	)

	tracker := health.New(health.Config{
		DegradedAfter:  cfg.Health.DegradedAfter,
		FailingAfter:   cfg.Health.FailingAfter,
		DisableAfter:   cfg.Health.DisableAfter,
		BackoffBase:    time.Duration(cfg.Health.BackoffBaseSeconds) * time.Second,
		BackoffCap:     time.Duration(cfg.Health.BackoffCapSeconds) * time.Second,
		RateLimitFloor: time.Duration(cfg.Health.RateLimitFloorSecond) * time.Second,
	}, sourceStore, clock, logger.Named("health"))

	sched := scheduler.New(
		sourceStore,
		dispatcher,
		tracker,
		clock,
		scheduler.Config{
			TickInterval:    cfg.Scheduler.TickInterval(),
			MaxConcurrent:   cfg.Scheduler.MaxConcurrent,
			JobTimeout:      cfg.Scheduler.JobTimeout(),
			ShutdownGrace:   cfg.Scheduler.ShutdownGrace(),
			DefaultInterval: time.Duration(cfg.Scheduler.DefaultIntervalMin) * time.Minute,
		},
		logger.Named("scheduler"),
	)

	apiServer := api.NewServer(sourceStore, tracker, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		logger.Info("scheduler started")
		sched.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-schedDone
	logger.Info("shutdown complete")
}
