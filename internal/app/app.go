package app

import (
	"context"
	"database/sql"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/Zhang-Henry/paper-collection/internal/cache"
	"github.com/Zhang-Henry/paper-collection/internal/classify"
	"github.com/Zhang-Henry/paper-collection/internal/config"
	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/extract"
	"github.com/Zhang-Henry/paper-collection/internal/filter"
	"github.com/Zhang-Henry/paper-collection/internal/logging"
	"github.com/Zhang-Henry/paper-collection/internal/openreview"
	"github.com/Zhang-Henry/paper-collection/internal/ports"
	"github.com/Zhang-Henry/paper-collection/internal/storage"
	"github.com/Zhang-Henry/paper-collection/internal/usecase"
)

// Application wires configuration to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     *usecase.Pipeline
	survey       *usecase.Survey
	authFallback bool
	db           *sql.DB
}

// New builds a runnable application instance with all adapters connected.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	creds := openreview.Credentials{
		Email:    cfg.OpenReview.Email,
		Password: cfg.OpenReview.Password,
		Token:    cfg.OpenReview.Token,
	}
	clients := make([]*openreview.Client, 0, len(cfg.OpenReview.BaseURLs))
	authFallback := false
	for _, baseURL := range cfg.OpenReview.BaseURLs {
		client := openreview.Connect(ctx, baseURL, creds, logging.Component(baseLogger, "openreview"))
		if client.Anonymous() && (creds.Token != "" || creds.Email != "") {
			authFallback = true
		}
		clients = append(clients, client)
	}

	resolver := openreview.NewResolver(clients, logging.Component(baseLogger, "venues"))
	fetcher := openreview.NewFetcher(
		clients,
		cfg.Retry.Policy(),
		openreview.NewRequestBudget(cfg.Collection.RequestBudget),
		logging.Component(baseLogger, "fetcher"),
	)

	store := cache.NewStore(cfg.Cache.Dir)

	var db *sql.DB
	var catalog ports.PaperCatalog
	if cfg.Database.DSN != "" {
		handle, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			baseLogger.Warn("catalog disabled, cannot open database", "error", err)
		} else {
			db = handle
			catalog = storage.NewCatalog(handle)
		}
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Resolver: resolver,
		Source:   fetcher,
		Cache:    store,
		Catalog:  catalog,
		Filters:  filter.Standard(cfg.Collection.Keywords),
		Transforms: []extract.Transform{
			extract.AbsoluteForumURL(cfg.OpenReview.SiteURL),
			extract.AbsolutePDFURL(cfg.OpenReview.SiteURL),
		},
		Logger: logging.Component(baseLogger, "pipeline"),
	})

	classifier := classify.New(
		classify.NewChatClient(classify.ChatConfig{
			Endpoint:    cfg.Classifier.Endpoint,
			Model:       cfg.Classifier.Model,
			APIKey:      cfg.Classifier.APIKey,
			MaxTokens:   cfg.Classifier.MaxTokens,
			Temperature: cfg.Classifier.Temperature,
		}),
		classify.Options{
			Topic:             cfg.Classifier.Topic,
			Description:       cfg.Classifier.Description,
			BatchSize:         cfg.Classifier.BatchSize,
			RequestsPerMinute: cfg.Classifier.RequestsPerMinute,
			Policy:            cfg.Retry.Policy(),
		},
		logging.Component(baseLogger, "classifier"),
	)
	survey := usecase.NewSurvey(usecase.SurveyDeps{
		Cache:      store,
		Classifier: classifier,
		Logger:     logging.Component(baseLogger, "survey"),
	})

	return &Application{
		cfg:          cfg,
		logger:       baseLogger,
		pipeline:     pipeline,
		survey:       survey,
		authFallback: authFallback,
		db:           db,
	}
}

// Collect runs the fetch-cache-filter stage over the configured
// (conference, year) matrix.
func (a *Application) Collect(ctx context.Context) (domain.RunSummary, error) {
	keys := make([]domain.VenueKey, 0, len(a.cfg.Collection.Conferences)*len(a.cfg.Collection.Years))
	for _, conference := range a.cfg.Collection.Conferences {
		for _, year := range a.cfg.Collection.Years {
			keys = append(keys, domain.VenueKey{Conference: conference, Year: year})
		}
	}

	summary, err := a.pipeline.Run(ctx, keys, usecase.Options{
		Force:      a.cfg.Collection.ForceRedownload,
		SampleCap:  a.cfg.Collection.SampleCap,
		Groups:     a.cfg.Collection.Groups,
		OutputPath: a.cfg.Output.Aggregated,
	})
	summary.AuthFallback = a.authFallback
	if a.authFallback {
		a.logger.Warn("ran with anonymous access, credentials were rejected")
	}
	return summary, err
}

// Classify runs the relevance classification stage over everything the
// cache currently holds.
func (a *Application) Classify(ctx context.Context) (domain.ClassifyStats, error) {
	return a.survey.Run(ctx, usecase.SurveyOptions{
		SampleCap:    a.cfg.Collection.SampleCap,
		AllEvaluated: a.cfg.Output.AllEvaluated,
		Relevant:     a.cfg.Output.Relevant,
	})
}

// Close releases long-lived resources (the catalog connection).
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
