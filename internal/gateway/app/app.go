package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"deepbuild/internal/gateway/config"
	"deepbuild/internal/gateway/handler"
	"deepbuild/internal/gateway/repository/artifact"
	"deepbuild/internal/gateway/repository/projectstore"
	"deepbuild/internal/gateway/server"
	"deepbuild/internal/gateway/service/generation"
	"deepbuild/internal/gateway/service/transcript"
	"deepbuild/internal/llm"
	llmclient "deepbuild/internal/llmClient"
)

// replyCacheTTL bounds how long an identical prompt is answered from cache.
const replyCacheTTL = 30 * time.Minute

type App struct {
	Config       *config.Config
	Store        projectstore.Store
	Transcript   *transcript.Service
	Orchestrator *generation.Orchestrator
	// Exporter is nil when no export sink could be set up.
	Exporter *artifact.Exporter

	handler http.Handler
	server  *server.Server
}

// Options override pieces of the wiring, mostly for tests.
type Options struct {
	// Client replaces the provider client; middlewares still apply.
	Client llmclient.Client
	Logger *log.Logger
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	client := opts.Client
	if client == nil {
		active := cfg.Active()
		c, err := llmclient.New(ctx, cfg.Provider, active.APIKey, active.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to init %s client (set %s): %w", cfg.Provider, cfg.APIKeyEnv(), err)
		}
		client = c
	}

	var cache llm.Middleware
	if cfg.CacheEnabled {
		cache = llm.WithCache(256, replyCacheTTL)
	}
	client = llm.Wrap(client,
		llm.WithLogging(opts.Logger),
		cache,
		llm.RateLimit(cfg.Rate.RPS, cfg.Rate.Burst),
		llm.Retry(cfg.Retry.Attempts, cfg.Retry.BaseDelay),
		llm.WithTimeout(cfg.RequestTimeout()),
	)

	// Dependencies
	store := projectstore.Open(ctx, cfg.ProjectStore())
	tr := transcript.New()
	orch := generation.New(client, store, tr, generation.Options{
		GenConfig:        cfg.Generation,
		MaxContinuations: cfg.MaxContinuations,
	})
	exporter := newExporter(cfg)

	mux := server.NewMux(handler.New(orch, tr, exporter))
	srv := server.New(cfg.Port, mux)

	return &App{
		Config:       cfg,
		Store:        store,
		Transcript:   tr,
		Orchestrator: orch,
		Exporter:     exporter,
		handler:      mux,
		server:       srv,
	}, nil
}

// newExporter prefers the S3 sink when configured and falls back to the
// export directory.
func newExporter(cfg *config.Config) *artifact.Exporter {
	if s3cfg := cfg.S3(); s3cfg.Enabled() {
		sink, err := artifact.NewS3Sink(s3cfg)
		if err == nil {
			return artifact.NewExporter(sink)
		}
		log.Printf("s3 export unavailable (%v); using %s", err, cfg.Export.Dir)
	}
	dir := strings.TrimSpace(cfg.Export.Dir)
	if dir == "" {
		dir = os.TempDir()
	}
	sink, err := artifact.NewDirSink(dir)
	if err != nil {
		log.Printf("export disabled: %v", err)
		return nil
	}
	return artifact.NewExporter(sink)
}

// Handler is the routed HTTP handler, middleware included.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops the HTTP server, lets background generation finish and
// closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.Close()
	return err
}

// Close waits for background runs and releases the store.
func (a *App) Close() {
	a.Orchestrator.Wait()
	if err := a.Store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}
