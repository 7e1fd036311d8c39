package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/cache"
	"github.com/cogmem/cogmem/config"
	"github.com/cogmem/cogmem/consolidation"
	"github.com/cogmem/cogmem/embedder"
	"github.com/cogmem/cogmem/episodic"
	"github.com/cogmem/cogmem/executive"
	distcache "github.com/cogmem/cogmem/internal/cache"
	"github.com/cogmem/cogmem/internal/database"
	"github.com/cogmem/cogmem/internal/metrics"
	"github.com/cogmem/cogmem/internal/server"
	"github.com/cogmem/cogmem/internal/telemetry"
	"github.com/cogmem/cogmem/pipeline"
	"github.com/cogmem/cogmem/procedural"
	"github.com/cogmem/cogmem/prospective"
	"github.com/cogmem/cogmem/retrieval"
	"github.com/cogmem/cogmem/semantic"
	"github.com/cogmem/cogmem/spatial"
	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
	"github.com/cogmem/cogmem/workingmemory"
)

// App wires every memory-substrate package into one running process: the
// store kernel, the four LTM layers plus working memory, the pipeline and
// retrieval engine, and the ops HTTP surface (health, metrics, config API).
// It is the demo composition root, not a correctness surface.
type App struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	kernel    *store.Kernel
	metrics   *metrics.Collector
	telemetry *telemetry.Providers

	Pipeline   *pipeline.Pipeline
	Retrieval  *retrieval.Engine
	Cache      *cache.Manager
	Backfiller *embedder.Backfiller

	hotReload *config.HotReloadManager
	opsServer *server.Manager

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

// NewApp loads the database, domain stores, and ops surface from cfg.
func NewApp(cfg *config.Config, configPath string, logger *zap.Logger) (*App, error) {
	telemetryProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without it", zap.Error(err))
		telemetryProviders = &telemetry.Providers{}
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "open database").WithCause(err)
	}
	if err := db.AutoMigrate(store.AllModels()...); err != nil {
		return nil, types.NewError(types.ErrStoreError, "auto-migrate store models").WithCause(err)
	}

	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), logger)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "construct pool manager").WithCause(err)
	}
	kernel := store.NewKernel(pool, logger)
	kernel.SetEmbeddingDim(cfg.Memory.EmbeddingDim)

	collector := metrics.NewCollector("cogmem", logger)

	var distributed *distcache.Manager
	if cfg.Memory.DistributedCacheEnabled {
		distributed, err = distcache.NewManager(distcache.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, logger)
		if err != nil {
			logger.Warn("distributed cache unavailable, running in-process only", zap.Error(err))
			distributed = nil
		}
	}
	cacheManager := cache.NewManager(cfg.Memory.LRUSize, distributed, collector, logger)

	var emb embedder.Embedder
	httpEmb, err := embedder.NewHTTPProvider(context.Background(), embedder.HTTPConfig{
		BaseURL:   cfg.Memory.EmbedderURL,
		Dimension: cfg.Memory.EmbeddingDim,
		Timeout:   cfg.Memory.EmbedderTimeout,
	}, logger)
	if err != nil {
		logger.Warn("embedder unreachable at startup, falling back to keyword retrieval paths", zap.Error(err))
	} else {
		httpEmb.SetCache(cacheManager)
		emb = httpEmb
	}

	episodicStore := episodic.New(kernel, logger)
	semanticStore := semantic.New(kernel, logger)
	proceduralStore := procedural.New(kernel, logger)
	prospectiveStore := prospective.New(kernel, logger)
	wm := workingmemory.New(kernel, logger)
	spatialIndex := spatial.New(kernel, logger)
	exec := executive.New(kernel, wm, logger)

	router := consolidation.New(kernel, semanticStore, logger)

	stores := pipeline.Stores{
		Episodic:    episodicStore,
		Semantic:    semanticStore,
		Procedural:  proceduralStore,
		Prospective: prospectiveStore,
		WM:          wm,
		Executive:   exec,
		Router:      router,
	}
	pipe := pipeline.New(stores, collector, cfg.Memory, logger)

	retrievalEngine := retrieval.New(episodicStore, spatialIndex, nil, emb, cacheManager, retrieval.Config{
		CombinedSemanticWeight: cfg.Memory.RetrievalCombinedSemanticWeight,
	}, logger)

	var backfiller *embedder.Backfiller
	if emb != nil {
		backfiller = embedder.NewBackfiller(episodicStore, emb, 0, logger)
	}

	hotReload := config.NewHotReloadManager(cfg, config.WithConfigPath(configPath), config.WithHotReloadLogger(logger))

	app := &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		kernel:     kernel,
		metrics:    collector,
		telemetry:  telemetryProviders,
		Pipeline:   pipe,
		Retrieval:  retrievalEngine,
		Cache:      cacheManager,
		Backfiller: backfiller,
		hotReload:  hotReload,
		stopSweep:  make(chan struct{}),
	}

	app.opsServer = server.NewManager(app.opsHandler(), server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	return app, nil
}

func openDatabase(dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	switch dbCfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(dbCfg.DSN()), &gorm.Config{})
	default:
		return nil, types.NewError(types.ErrInvalidRequest, "unsupported database driver for cmd/cogmemd: "+dbCfg.Driver)
	}
}

// opsHandler builds the non-correctness HTTP surface: health, Prometheus
// metrics, and the config hot-reload API, wrapped in a per-visitor rate
// limiter (cfg.Server.RateLimitRPS/RateLimitBurst).
func (a *App) opsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.kernel.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	config.NewConfigAPIHandler(a.hotReload).RegisterRoutes(mux)

	limit := rateLimitMiddleware(context.Background(), a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst, a.logger)
	return limit(mux)
}

// Run starts the ops server and the periodic pipeline sweep for
// sweepProjectID, blocking until the process receives a shutdown signal.
// A production deployment would drive the pipeline per active project
// from a work queue; this demo entry point runs it for one configured
// project on a fixed interval since cmd/cogmemd is not a correctness
// surface (spec.md §6).
func (a *App) Run(sweepProjectID string, sweepInterval time.Duration) error {
	if err := a.hotReload.Start(context.Background()); err != nil {
		a.logger.Warn("hot reload watcher failed to start", zap.Error(err))
	}

	if sweepProjectID != "" && sweepInterval > 0 {
		a.wg.Add(1)
		go a.sweepLoop(sweepProjectID, sweepInterval)
	}

	if err := a.opsServer.Start(); err != nil {
		return err
	}
	a.opsServer.WaitForShutdown()

	close(a.stopSweep)
	a.wg.Wait()
	a.Shutdown(context.Background())
	return nil
}

func (a *App) sweepLoop(projectID string, interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopSweep:
			return
		case <-ticker.C:
			if a.Backfiller != nil {
				if _, err := a.Backfiller.Run(context.Background(), projectID, a.cfg.Memory.PipelineEventLimit); err != nil {
					a.logger.Warn("embedding backfill failed during sweep",
						zap.String("project_id", projectID), zap.Error(err))
				}
			}
			result := a.Pipeline.Run(context.Background(), projectID, types.LayerSemantic, nil)
			for _, stage := range result.Stages {
				if stage.Status == pipeline.StageFailed {
					a.logger.Warn("pipeline stage failed during sweep",
						zap.String("project_id", projectID),
						zap.String("stage", stage.Name),
						zap.Error(stage.Err),
					)
				}
			}
		}
	}
}

// Shutdown stops the embedding backfiller, the hot-reload watcher, the ops
// server, and the telemetry exporters. The database pool and the
// distributed cache connection are not closed here.
func (a *App) Shutdown(ctx context.Context) {
	if a.Backfiller != nil {
		a.Backfiller.Close()
	}
	if err := a.hotReload.Stop(); err != nil {
		a.logger.Warn("hot reload stop failed", zap.Error(err))
	}
	if err := a.opsServer.Shutdown(ctx); err != nil {
		a.logger.Warn("ops server shutdown failed", zap.Error(err))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}
