package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kozaktomas/photo-sentry/internal/alert"
	"github.com/kozaktomas/photo-sentry/internal/analysis"
	"github.com/kozaktomas/photo-sentry/internal/assets"
	"github.com/kozaktomas/photo-sentry/internal/config"
	"github.com/kozaktomas/photo-sentry/internal/deepface"
	"github.com/kozaktomas/photo-sentry/internal/discovery"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/scanner"
	"github.com/kozaktomas/photo-sentry/internal/store"
	"github.com/kozaktomas/photo-sentry/internal/store/postgres"
	"github.com/kozaktomas/photo-sentry/internal/tineye"
)

// runtime holds the dependencies shared by the pipeline commands.
type runtime struct {
	cfg      *config.Config
	log      *logging.Logger
	pool     *postgres.Pool
	assets   *postgres.AssetRepository
	matches  *postgres.MatchRepository
	alerts   *postgres.AlertRepository
	embedder *deepface.Client
	fetcher  *scanner.HTTPFetcher
	quiet    bool

	redisClient *redis.Client
	vision      *discovery.VisionEngine
}

// initRuntime connects the stores and shared clients every pipeline command
// needs. quiet suppresses progress output for JSON consumers.
func initRuntime(quiet bool) (*runtime, error) {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if !quiet {
		fmt.Printf("Connecting to PostgreSQL database...\n")
	}
	pool, err := postgres.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	embedder, err := deepface.New(cfg.DeepFace.URL, cfg.DeepFace.HealthTTL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		assets:   postgres.NewAssetRepository(pool),
		matches:  postgres.NewMatchRepository(pool),
		alerts:   postgres.NewAlertRepository(pool),
		embedder: embedder,
		fetcher:  scanner.NewHTTPFetcher(),
		quiet:    quiet,
	}, nil
}

// Close releases everything initRuntime and the build helpers opened.
func (r *runtime) Close() {
	if r.vision != nil {
		if err := r.vision.Close(); err != nil {
			fmt.Printf("Warning: failed to close vision engine: %v\n", err)
		}
	}
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			fmt.Printf("Warning: failed to close redis client: %v\n", err)
		}
	}
	if err := r.pool.Close(); err != nil {
		fmt.Printf("Warning: failed to close database pool: %v\n", err)
	}
	r.log.Sync()
}

// buildEngines constructs the configured discovery engines.
func (r *runtime) buildEngines(ctx context.Context) ([]discovery.Engine, error) {
	var engines []discovery.Engine

	if r.cfg.FaceCheck.APIToken != "" {
		fc, err := discovery.NewFaceCheck(r.cfg.FaceCheck.URL, r.cfg.FaceCheck.APIToken, r.log)
		if err != nil {
			return nil, fmt.Errorf("failed to create face search engine: %w", err)
		}
		engines = append(engines, fc)
		r.printf("Person discovery enabled (FaceCheck)\n")
	}

	if r.cfg.Vision.Enabled {
		vision, err := discovery.NewVision(ctx, r.cfg.Vision.CredentialsFile, r.log)
		if err != nil {
			return nil, fmt.Errorf("failed to create vision engine: %w", err)
		}
		r.vision = vision
		engines = append(engines, vision)
		r.printf("Visual discovery enabled (Cloud Vision)\n")
	}

	return engines, nil
}

// buildCache wires the discovery cache when Redis is configured.
func (r *runtime) buildCache() *discovery.Cache {
	if r.cfg.Redis.Addr == "" {
		return nil
	}
	r.redisClient = redis.NewClient(&redis.Options{Addr: r.cfg.Redis.Addr})
	r.printf("Discovery cache enabled (Redis at %s)\n", r.cfg.Redis.Addr)
	return discovery.NewCache(r.redisClient, r.cfg.Redis.CacheTTL, r.log)
}

// buildAnalysis constructs the optional match analysis provider.
func (r *runtime) buildAnalysis(ctx context.Context) (analysis.Provider, error) {
	switch r.cfg.Analysis.Provider {
	case "":
		return nil, nil
	case "openai":
		if r.cfg.Analysis.OpenAIToken == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		r.printf("Match analysis enabled (OpenAI)\n")
		return analysis.NewOpenAIProvider(r.cfg.Analysis.OpenAIToken), nil
	case "gemini":
		if r.cfg.Analysis.GeminiKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		provider, err := analysis.NewGeminiProvider(ctx, r.cfg.Analysis.GeminiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		r.printf("Match analysis enabled (Gemini)\n")
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown analysis provider: %s (supported: openai, gemini)", r.cfg.Analysis.Provider)
	}
}

// buildScanner assembles the full scan pipeline.
func (r *runtime) buildScanner(ctx context.Context) (*scanner.Scanner, error) {
	engines, err := r.buildEngines(ctx)
	if err != nil {
		return nil, err
	}

	exact, err := tineye.New(r.cfg.TinEye.URL, r.cfg.TinEye.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create exact-match client: %w", err)
	}
	if exact.IsConfigured() {
		r.printf("Exact-match search enabled (TinEye)\n")
	}

	analysisProvider, err := r.buildAnalysis(ctx)
	if err != nil {
		return nil, err
	}

	return scanner.New(scanner.Deps{
		Engines:  engines,
		Cache:    r.buildCache(),
		Exact:    exact,
		Faces:    r.embedder,
		Fetcher:  r.fetcher,
		Assets:   r.assets,
		Matches:  r.matches,
		Alerter:  alert.New(r.alerts, r.log),
		Analysis: analysisProvider,
		Config:   r.cfg,
		Log:      r.log,
	}), nil
}

// buildIntake assembles the asset intake service and its similarity index.
func (r *runtime) buildIntake(ctx context.Context) (*assets.Service, *store.AssetIndex, error) {
	index := store.NewAssetIndex()
	service := assets.New(r.assets, index, r.embedder, r.fetcher, r.log)

	if path := r.cfg.Database.AssetIndexPath; path != "" {
		r.printf("Loading asset index from %s...\n", path)
	} else {
		r.printf("Building in-memory asset index...\n")
	}
	if err := service.BuildIndex(ctx, r.cfg.Database.AssetIndexPath); err != nil {
		return nil, nil, fmt.Errorf("failed to build asset index: %w", err)
	}
	r.printf("Asset index ready with %d assets\n", index.Count())

	return service, index, nil
}

// printf writes progress output unless the runtime is quiet.
func (r *runtime) printf(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Printf(format, args...)
}

// saveAssetIndex persists the index when a path is configured.
func saveAssetIndex(index *store.AssetIndex, path string) {
	if path == "" {
		return
	}
	if err := index.Save(); err != nil {
		fmt.Printf("Warning: failed to save asset index: %v\n", err)
	} else {
		fmt.Printf("Asset index saved to %s\n", path)
	}
}
