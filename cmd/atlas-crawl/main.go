// Command atlas-crawl wires every engine component together for one crawl
// run: it loads the YAML crawl config, builds the Frontier, Normalizer,
// URL Filter, Rate Governor, Robots Evaluator, Fetcher, Browser Pool,
// Renderer, Blob Store, Schema Registry, Dataset Manager, and
// Checkpointer, then hands them to the Scheduler. On completion (or
// SIGINT/SIGTERM) it finalizes the datasets, builds the manifest and
// capabilities declaration, writes the provenance dataset, finalizes
// again, and zips the staging directory into the archive. Grounded on
// the teacher's cmd/edge-gateway/main.go: flag-driven config path,
// construction-time dependency wiring in one place, and a signal-driven
// graceful shutdown sequence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/archive"
	"github.com/edgecomet/atlascrawl/internal/blobstore"
	"github.com/edgecomet/atlascrawl/internal/browserpool"
	"github.com/edgecomet/atlascrawl/internal/checkpoint"
	"github.com/edgecomet/atlascrawl/internal/common/logger"
	redisclient "github.com/edgecomet/atlascrawl/internal/common/redis"
	"github.com/edgecomet/atlascrawl/internal/common/requestid"
	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/internal/dataset"
	atlasfetch "github.com/edgecomet/atlascrawl/internal/fetch"
	"github.com/edgecomet/atlascrawl/internal/frontier"
	"github.com/edgecomet/atlascrawl/internal/manifest"
	"github.com/edgecomet/atlascrawl/internal/normalize"
	"github.com/edgecomet/atlascrawl/internal/rategovernor"
	"github.com/edgecomet/atlascrawl/internal/render"
	"github.com/edgecomet/atlascrawl/internal/robots"
	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/internal/scheduler"
	"github.com/edgecomet/atlascrawl/internal/scheduler/eventlog"
	"github.com/edgecomet/atlascrawl/internal/urlfilter"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// buildVersion is overridden at link time via -ldflags "-X main.buildVersion=...".
var buildVersion string

func main() {
	configPath := flag.String("c", "configs/atlas-crawl.yaml", "path to crawl configuration file")
	flag.Parse()

	crawlID := requestid.GenerateRequestID("crawl")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dynamicLogger, err := logger.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer dynamicLogger.Sync()
	zlog := dynamicLogger.Logger

	zlog.Info("starting crawl", zap.String("crawl_id", crawlID), zap.String("config_path", *configPath))

	stagingDir := filepath.Join(cfg.OutputPath, crawlID+".staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		zlog.Fatal("failed to create staging directory", zap.Error(err))
	}

	deps, cleanup, err := buildDeps(cfg, stagingDir, zlog)
	if err != nil {
		zlog.Fatal("failed to wire dependencies", zap.Error(err))
	}
	defer cleanup()

	sched := scheduler.New(cfg, deps)

	if cfg.Resume.Resume != "" && deps.Checkpointer != nil {
		if state, found, err := deps.Checkpointer.Load(); err != nil {
			zlog.Warn("checkpoint load failed, starting fresh", zap.Error(err))
		} else if found {
			sched.Resume(state)
			zlog.Info("resumed from checkpoint", zap.Int("pages_completed", state.PagesCompleted))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		zlog.Info("received shutdown signal", zap.String("signal", sig.String()))
		sched.Cancel()
		cancel()
	}()

	sched.Seed(cfg.Seeds)

	runErr := sched.Run(ctx)
	if runErr != nil {
		zlog.Error("crawl run failed", zap.Error(runErr))
	}

	if err := finalizeArchive(cfg, crawlID, stagingDir, sched, deps, zlog); err != nil {
		zlog.Fatal("failed to finalize archive", zap.Error(err))
	}

	if runErr != nil {
		os.Exit(1)
	}
}

// buildDeps constructs every Scheduler collaborator. It returns a cleanup
// func that releases the browser pool and Redis connection regardless of
// how the run ends.
func buildDeps(cfg *config.CrawlConfig, stagingDir string, zlog *zap.Logger) (scheduler.Deps, func(), error) {
	redisClient, err := redisclient.NewClient(&redisclient.RedisConfig{
		Addr:     cfg.Limits.Redis.Addr,
		Password: cfg.Limits.Redis.Password,
		DB:       cfg.Limits.Redis.DB,
	}, zlog)
	if err != nil {
		return scheduler.Deps{}, func() {}, fmt.Errorf("redis: %w", err)
	}

	normalizer := normalize.New(normalize.ParamKeep)

	fr := frontier.New(normalizer, frontier.Config{
		MaxDepth: cfg.Limits.MaxDepth,
		MaxPages: cfg.Limits.MaxPages,
	})

	filter := urlfilter.New(cfg.URLFilter.Allow, cfg.URLFilter.Deny)

	governor := rategovernor.New(redisClient.GetClient(), rategovernor.Config{
		GlobalConcurrency: cfg.Limits.Concurrency,
		DefaultRPS:        cfg.Limits.RPS,
	}, zlog)

	robotsEvaluator := robots.New(robots.Config{
		UserAgent:      cfg.Robots.UserAgent,
		RespectRobots:  cfg.Robots.RespectRobots,
		OverrideRobots: cfg.Robots.OverrideRobots,
	}, zlog)

	fetcher := atlasfetch.New(atlasfetch.Config{
		Timeout:         time.Duration(cfg.Limits.TimeoutMs) * time.Millisecond,
		MaxBytesPerPage: cfg.Limits.MaxBytesPerPage,
		HeaderPolicy: atlasfetch.HeaderPolicy{
			StripCookies:     cfg.Privacy.StripCookies,
			StripAuthHeaders: cfg.Privacy.StripAuthHeaders,
			UserAgent:        cfg.Robots.UserAgent,
		},
	}, zlog)

	var pool *browserpool.Pool
	var rend *render.Renderer
	if cfg.RenderMode != types.RenderModeRaw {
		poolCfg := browserpool.DefaultConfig()
		poolCfg.Concurrency = cfg.Limits.Concurrency
		poolCfg.PersistSession = cfg.Session.PersistSession
		poolCfg.StorageStateDir = filepath.Join(stagingDir, "sessions")
		poolCfg.Stealth = cfg.Session.Stealth
		if poolCfg.PersistSession {
			if err := os.MkdirAll(poolCfg.StorageStateDir, 0o755); err != nil {
				return scheduler.Deps{}, func() {}, fmt.Errorf("session storage dir: %w", err)
			}
		}
		var perr error
		pool, perr = browserpool.New(poolCfg, zlog)
		if perr != nil {
			return scheduler.Deps{}, func() {}, fmt.Errorf("browser pool: %w", perr)
		}
	}
	rend = render.New(pool, fetcher, zlog)

	blobs, err := blobstore.New(stagingDir, zlog)
	if err != nil {
		return scheduler.Deps{}, func() {}, fmt.Errorf("blob store: %w", err)
	}

	registry, err := schema.New()
	if err != nil {
		return scheduler.Deps{}, func() {}, fmt.Errorf("schema registry: %w", err)
	}

	datasetDir := filepath.Join(stagingDir, "datasets")
	datasets := dataset.NewManager(datasetDir, registry, true, zlog)

	var cp *checkpoint.Checkpointer
	if cfg.Resume.CheckpointInterval > 0 {
		cp = checkpoint.New(stagingDir, cfg.Resume.CheckpointInterval, zlog)
	}

	var emitter eventlog.Emitter = eventlog.NoopEmitter{}
	if cfg.Output.LogFile != "" {
		fileEmitter, ferr := eventlog.NewFileEmitter(cfg.Output.LogFile, eventlog.RotationConfig{
			MaxSizeMB:  cfg.Log.File.Rotation.MaxSize,
			MaxAgeDays: cfg.Log.File.Rotation.MaxAge,
			MaxBackups: cfg.Log.File.Rotation.MaxBackups,
			Compress:   cfg.Log.File.Rotation.Compress,
		}, zlog)
		if ferr != nil {
			return scheduler.Deps{}, func() {}, fmt.Errorf("event log: %w", ferr)
		}
		emitter = fileEmitter
	}

	deps := scheduler.Deps{
		Frontier:       fr,
		Normalizer:     normalizer,
		URLFilter:      filter,
		RateGovernor:   governor,
		Robots:         robotsEvaluator,
		Fetcher:        fetcher,
		BrowserPool:    pool,
		Renderer:       rend,
		BlobStore:      blobs,
		SchemaRegistry: registry,
		Datasets:       datasets,
		Checkpointer:   cp,
		EventEmitter:   emitter,
		Logger:         zlog,
	}

	cleanup := func() {
		if err := emitter.Close(); err != nil {
			zlog.Warn("event log close failed", zap.Error(err))
		}
		if pool != nil {
			if err := pool.Shutdown(); err != nil {
				zlog.Warn("browser pool shutdown failed", zap.Error(err))
			}
		}
		if err := redisClient.Close(); err != nil {
			zlog.Warn("redis close failed", zap.Error(err))
		}
	}

	return deps, cleanup, nil
}

// finalizeArchive builds the manifest/provenance/capabilities files and
// zips the staging directory into the final archive at cfg.OutputPath.
// It calls Datasets.FinalizeAll twice: once to finalize the page-derived
// datasets so the manifest/provenance builder can read their metadata,
// and again after the provenance records (describing those finalized
// datasets) have themselves been written and need finalizing.
func finalizeArchive(cfg *config.CrawlConfig, crawlID, stagingDir string, sched *scheduler.Scheduler, deps scheduler.Deps, zlog *zap.Logger) error {
	finalized, err := deps.Datasets.FinalizeAll()
	if err != nil {
		return fmt.Errorf("finalize datasets: %w", err)
	}

	pagesCompleted, errorsCount, startedAt, finishedAt, warnings := sched.Counters()

	producer := manifest.CaptureProducer(buildVersion)
	a11yEnabled := cfg.RenderMode == types.RenderModeFull

	in := manifest.Input{
		CrawlID:          crawlID,
		Cfg:              cfg,
		Producer:         producer,
		SchemaRegistry:   deps.SchemaRegistry,
		Present:          deps.Datasets.Present(),
		ExcludedReasons:  excludedReasons(cfg, a11yEnabled),
		A11yEnabled:      a11yEnabled,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		TotalPages:       pagesCompleted,
		TotalErrors:      errorsCount,
		Warnings:         warnings,
		CompletionReason: sched.CompletionReason(),
	}
	m, provenanceRecords := manifest.Build(in, finalized)

	for _, rec := range provenanceRecords {
		if err := deps.Datasets.Write("provenance", rec); err != nil {
			zlog.Warn("provenance write failed", zap.String("dataset", rec.DatasetName), zap.Error(err))
		}
	}

	if _, err := deps.Datasets.FinalizeAll(); err != nil {
		return fmt.Errorf("finalize provenance dataset: %w", err)
	}

	if err := writeJSONFile(filepath.Join(stagingDir, "manifest.json"), m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	caps := types.Capabilities{
		Version:      "1.0",
		Capabilities: manifest.ComputeCapabilities(cfg, a11yEnabled),
		Compatibility: types.Compatibility{
			MinSDKVersion: "1.0.0",
		},
	}
	if err := writeJSONFile(filepath.Join(stagingDir, "capabilities.json"), caps); err != nil {
		return fmt.Errorf("write capabilities: %w", err)
	}

	outputPath := filepath.Join(cfg.OutputPath, crawlID+".atlas.zip")
	finalizer := archive.New(zlog)
	summary, err := finalizer.Finalize(stagingDir, outputPath)
	if err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	zlog.Info("archive finalized",
		zap.String("path", summary.Path),
		zap.Int64("bytes", summary.Bytes),
		zap.Int("file_count", summary.FileCount),
	)

	if cfg.Output.JSONSummary {
		if err := archive.WriteSummary(os.Stdout, summary); err != nil {
			zlog.Warn("summary write failed", zap.Error(err))
		}
	}
	return nil
}

// excludedReasons fills in coverage_matrix reason codes for datasets the
// configured render mode or profile rules out entirely, so an absent
// dataset reads as "mode_excluded" rather than the default "no_pages".
func excludedReasons(cfg *config.CrawlConfig, a11yEnabled bool) map[string]string {
	reasons := make(map[string]string)
	if cfg.RenderMode == types.RenderModeRaw {
		reasons["dom_snapshots"] = types.ReasonModeExcluded
		reasons["console"] = types.ReasonModeExcluded
		reasons["styles"] = types.ReasonModeExcluded
		reasons["accessibility"] = types.ReasonModeExcluded
	} else if !a11yEnabled {
		reasons["accessibility"] = types.ReasonProfileExcluded
	}
	return reasons
}

func writeJSONFile(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
