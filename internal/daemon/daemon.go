// Package daemon is the service core: it owns the model manager, the
// external tool adapters and the asset catalog, and implements the
// operations the HTTP API exposes.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/config"
	"github.com/botforge/forge3d/internal/gpu"
	"github.com/botforge/forge3d/internal/matting"
	"github.com/botforge/forge3d/internal/metrics"
	"github.com/botforge/forge3d/internal/mirror"
	"github.com/botforge/forge3d/internal/models"
	"github.com/botforge/forge3d/internal/rigging"
	"github.com/botforge/forge3d/internal/search"
	"github.com/botforge/forge3d/internal/storage"
	"github.com/botforge/forge3d/pkg/types"
)

// Downloader fetches remote files
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

type Daemon struct {
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	logger *zap.Logger

	paths    *storage.Paths
	models   *models.Manager
	backend  models.Backend
	rigger   rigging.Rigger
	search   search.Provider
	fetcher  Downloader
	remover  matting.Remover
	gpu      gpu.Probe
	uploader mirror.Uploader
	mirror   *mirror.Mirror
	metrics  *metrics.Collector

	state     *State
	scheduler *CronScheduler

	server     *http.Server
	apiHandler http.Handler
	workers    sync.WaitGroup
	listenAddr string
}

// Option replaces a default component, mostly for tests
type Option func(*Daemon)

func WithBackend(b models.Backend) Option         { return func(d *Daemon) { d.backend = b } }
func WithRigger(r rigging.Rigger) Option          { return func(d *Daemon) { d.rigger = r } }
func WithSearchProvider(p search.Provider) Option { return func(d *Daemon) { d.search = p } }
func WithDownloader(f Downloader) Option          { return func(d *Daemon) { d.fetcher = f } }
func WithRemover(r matting.Remover) Option        { return func(d *Daemon) { d.remover = r } }
func WithGPUProbe(p gpu.Probe) Option             { return func(d *Daemon) { d.gpu = p } }
func WithUploader(u mirror.Uploader) Option       { return func(d *Daemon) { d.uploader = u } }

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		ctx:    ctx,
		cancel: cancel,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.paths = storage.NewPaths(cfg.Storage.BaseDir, cfg.Storage.ProjectRoot, cfg.Storage.OutputDir)
	if err := d.paths.Initialize(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Debug("storage ready",
		zap.String("output_dir", d.paths.OutputDir()),
		zap.String("project_root", d.paths.ProjectRoot()))

	// Initialize state
	d.state = NewState(d.paths.StatePath())
	if err := d.state.Load(); err != nil {
		// Non-fatal: just log and continue with empty state
		logger.Warn("could not load previous state", zap.Error(err))
	}

	d.metrics = metrics.NewCollector(logger)

	if d.backend == nil {
		d.backend = models.NewWorkerBackend(models.WorkerOptions{
			URL:                   cfg.Models.Worker.URL,
			Command:               cfg.Models.Worker.Command,
			Dir:                   cfg.Storage.ProjectRoot,
			StartupTimeout:        cfg.Models.Worker.StartupTimeout,
			RequestTimeout:        cfg.Models.Worker.RequestTimeout,
			ReconstructionWeights: cfg.Models.ReconstructionWeights,
			SegmentationWeights:   cfg.Models.SegmentationWeights,
		}, logger)
	}
	d.models = models.NewManager(d.backend, logger,
		models.WithObserver(d.metrics),
		models.WithLoadTimeout(cfg.Models.Worker.LoadTimeout))

	if d.rigger == nil {
		d.rigger = rigging.NewUniRig(rigging.Options{
			Dir:            cfg.Rigging.UniRigDir,
			Python:         cfg.Rigging.Python,
			SkeletonConfig: cfg.Rigging.SkeletonConfig,
			SkinConfig:     cfg.Rigging.SkinConfig,
			ExportScript:   cfg.Rigging.ExportScript,
			StepTimeout:    cfg.Rigging.StepTimeout,
			ExportTimeout:  cfg.Rigging.ExportTimeout,
		}, rigging.ExecRunner{}, logger)
	}

	if d.search == nil {
		provider, err := search.NewProvider(search.Options{
			Provider:      cfg.Search.Provider,
			Endpoint:      cfg.Search.Endpoint,
			RatePerSecond: cfg.Search.RatePerSecond,
			Timeout:       cfg.Search.DownloadTimeout,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		cache := search.NewCache(provider, cfg.Search.CacheSize, cfg.Search.CacheTTL)
		cache.OnLookup = d.metrics.SearchCache
		d.search = cache
	}
	if d.fetcher == nil {
		d.fetcher = search.NewFetcher(cfg.Search.DownloadTimeout, cfg.Search.MaxDownloadMB<<20)
	}
	if d.remover == nil {
		d.remover = matting.New(cfg.Matting.URL, cfg.Matting.Timeout)
	}
	if d.gpu == nil {
		d.gpu = gpu.NewSMIProbe(cfg.GPU.SMIPath)
	}

	if d.uploader == nil {
		d.uploader = mirror.Nop{}
		if cfg.Mirror.Enabled {
			s3, err := mirror.NewS3(ctx, cfg.Mirror.S3)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("failed to initialize mirror: %w", err)
			}
			d.uploader = s3
			logger.Info("mirroring outputs", zap.String("bucket", cfg.Mirror.S3.Bucket))
		}
	}
	d.mirror = mirror.New(d.uploader, d.paths.OutputDir(), logger)

	d.scheduler = NewCronScheduler(logger)
	if cfg.Cleanup.Enabled {
		janitor := NewJanitor(d.paths.OutputDir(), cfg.Cleanup.MaxAge, logger)
		if err := d.scheduler.AddJob(janitor, cfg.Cleanup.Schedule); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Cleanup.Schedule, err)
		}
	}

	return d, nil
}

// Start launches the background workers and the HTTP server
func (d *Daemon) Start(addr string) error {
	d.startWorkers()

	if err := d.startAPIServer(addr); err != nil {
		d.cancel()
		return fmt.Errorf("failed to start API server: %w", err)
	}

	d.setupSignalHandlers()

	d.logger.Info("server started", zap.String("addr", d.Addr()), zap.Int("pid", os.Getpid()))
	return nil
}

// Wait blocks until the daemon is asked to stop
func (d *Daemon) Wait() {
	<-d.ctx.Done()
}

// Stop asks the daemon to stop; Wait returns afterwards
func (d *Daemon) Stop() {
	d.cancel()
}

func (d *Daemon) startWorkers() {
	// State persistence worker
	d.workers.Add(1)
	go d.statePersistenceWorker()

	d.scheduler.Start(d.ctx)
}

func (d *Daemon) statePersistenceWorker() {
	defer d.workers.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.state.Save(); err != nil {
				d.logger.Warn("error saving state", zap.Error(err))
			}
		}
	}
}

func (d *Daemon) setupSignalHandlers() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			d.logger.Info("received shutdown signal, shutting down gracefully", zap.String("signal", sig.String()))
			d.cancel()
		case <-d.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

// Shutdown stops the server and workers, persists the catalog and releases
// the models
func (d *Daemon) Shutdown() error {
	d.logger.Info("shutting down")
	d.cancel()

	// Stop accepting new requests
	d.mu.RLock()
	server := d.server
	d.mu.RUnlock()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			d.logger.Warn("error shutting down API server", zap.Error(err))
		}
	}

	d.scheduler.Stop()
	d.workers.Wait()

	if err := d.state.Save(); err != nil {
		d.logger.Warn("error saving final state", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.models.Release(ctx); err != nil {
		d.logger.Warn("error releasing models", zap.Error(err))
	}

	d.logger.Info("shutdown complete")
	return nil
}

func (d *Daemon) startAPIServer(addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	handler := d.apiHandler
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	d.listenAddr = ln.Addr().String()

	d.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       d.config.Server.ReadTimeout,
		WriteTimeout:      d.config.Server.WriteTimeout,
	}

	server := d.server
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("API server error", zap.Error(err))
			d.cancel()
		}
	}()

	return nil
}

// SetAPIHandler sets the handler the HTTP server serves
func (d *Daemon) SetAPIHandler(handler http.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.apiHandler = handler
	if d.server != nil {
		d.server.Handler = handler
	}
}

// Addr returns the address the server listens on once started
func (d *Daemon) Addr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listenAddr
}

func (d *Daemon) Health() types.HealthResponse {
	now := time.Now()
	return types.HealthResponse{
		Status:    "ok",
		Timestamp: float64(now.UnixNano()) / 1e9,
	}
}

// GetStatus reports accelerator memory, model residency and output stats
func (d *Daemon) GetStatus(ctx context.Context) types.StatusResponse {
	return types.StatusResponse{
		GPU:            d.gpu.Query(ctx),
		ModelsLoaded:   d.models.Loaded(),
		OutputDir:      d.paths.OutputDir(),
		GeneratedParts: d.paths.CountMeshes(),
		DiskUsage:      d.paths.GetDiskUsage(),
	}
}

// ListAssets returns the catalog, newest first
func (d *Daemon) ListAssets() types.AssetsResponse {
	assets := d.state.ListAssets()
	return types.AssetsResponse{Assets: assets, Count: len(assets)}
}

func (d *Daemon) Metrics() *metrics.Collector { return d.metrics }

func (d *Daemon) Paths() *storage.Paths { return d.paths }

func (d *Daemon) Models() *models.Manager { return d.models }

func (d *Daemon) GetState() *State { return d.state }

func (d *Daemon) Config() *config.Config { return d.config }

// record catalogs a written file and mirrors it
func (d *Daemon) record(ctx context.Context, id, kind, path string) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	d.state.AddAsset(types.Asset{
		ID:        id,
		Kind:      kind,
		Path:      path,
		URL:       d.paths.URLPath(path),
		Size:      size,
		CreatedAt: time.Now(),
	})
	d.mirror.Copy(ctx, path)
}

// observe records an operation's outcome and duration
func (d *Daemon) observe(operation string, start time.Time, err error) {
	d.metrics.RecordOperation(operation, err, time.Since(start))
}
