package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"nutriscan/internal/adapter/repo"
	"nutriscan/internal/batch"
	"nutriscan/internal/dataset"
	"nutriscan/internal/infra"
	"nutriscan/internal/infra/credentials"
	"nutriscan/internal/pipeline"
	"nutriscan/internal/providers/genai"
	"nutriscan/internal/storage"
)

func main() {
	infra.LoadDotEnv()
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := pipeline.ParseMode(cfg.PipelineMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("estimator: invalid pipeline mode")
	}
	locale, err := pipeline.ResolveLocale(cfg.PromptLocale)
	if err != nil {
		logger.Fatal().Err(err).Msg("estimator: invalid prompt locale")
	}
	runID := uuid.New()
	logger = logger.With().Str("run_id", runID.String()).Logger()

	var runner *infra.SQLRunner
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("estimator: db connection failed")
		}
		defer pool.Close()
		runner = infra.NewSQLRunner(pool, logger)
	}

	apiKey := resolveAPIKey(ctx, cfg.GeminiAPIKey, runner, logger)
	client, err := genai.NewClient(genai.Options{
		APIKey:     apiKey,
		BaseURL:    cfg.GeminiBaseURL,
		UploadURL:  cfg.GeminiUploadURL,
		Model:      cfg.GeminiModel,
		RunID:      runID.String(),
		HTTPClient: &http.Client{Timeout: cfg.GeminiTimeout},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("estimator: failed to configure gemini client")
	}

	estimator, err := pipeline.New(mode, client, pipeline.Options{Locale: locale, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("estimator: failed to build pipeline")
	}

	resultStore, err := storage.NewResultStore(cfg.ResultsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("estimator: failed to configure results directory")
	}
	// The results file is written last; earlier sinks are discarded when a
	// later one fails.
	var sinks batch.Sinks
	if runner != nil {
		mirror := repo.NewResultRepository(runner, string(mode), client.Model(), runID)
		if err := mirror.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("estimator: failed to prepare results table")
		}
		sinks = append(sinks, mirror)
	}
	sinks = append(sinks, resultStore)

	ids, err := dataset.ReadDishIDs(cfg.DishIDsPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DishIDsPath).Msg("estimator: failed to read dish ids")
	}
	images, err := dataset.OpenImageStore(cfg.ImagesBasePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ImagesBasePath).Msg("estimator: failed to scan images")
	}
	logger.Info().
		Str("mode", string(mode)).
		Str("model", client.Model()).
		Str("locale", locale.String()).
		Int("dish_ids", len(ids)).
		Int("images", images.Len()).
		Str("results_dir", resultStore.BasePath()).
		Msg("estimator: configured")

	batchRunner, err := batch.NewRunner(batch.Options{
		Client:    client,
		Estimator: estimator,
		Images:    images,
		Sink:      sinks,
		Pacing:    cfg.RequestPacing,
		RunID:     runID.String(),
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("estimator: failed to build batch runner")
	}

	summary, err := batchRunner.Run(ctx, ids)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("estimator: stopped with error")
	}
	if err != nil {
		logger.Warn().
			Int("processed", summary.Processed).
			Int("failed", summary.Failed()).
			Msg("estimator: interrupted")
		return
	}
	logger.Info().Msg("estimator: stopped")
}

// resolveAPIKey falls back to the integration_tokens table when the
// environment carries no key.
func resolveAPIKey(ctx context.Context, fromEnv string, runner *infra.SQLRunner, logger infra.Logger) string {
	if fromEnv != "" || runner == nil {
		return fromEnv
	}
	key, err := credentials.NewStore(runner).GeminiAPIKey(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("estimator: failed to load gemini api key from store")
		return ""
	}
	return key
}
