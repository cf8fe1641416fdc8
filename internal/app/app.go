package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/pitchlens/scoutcore/external/llm"
	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/config"
	playerdomain "github.com/pitchlens/scoutcore/internal/domain/player"
	playerseasondomain "github.com/pitchlens/scoutcore/internal/domain/playerseason"
	postgresrepo "github.com/pitchlens/scoutcore/internal/infrastructure/repository/postgres"
	store "github.com/pitchlens/scoutcore/internal/infrastructure/store/postgres"
	"github.com/pitchlens/scoutcore/internal/interfaces/httpapi"
	basecache "github.com/pitchlens/scoutcore/internal/platform/cache"
	"github.com/pitchlens/scoutcore/internal/platform/logging"
	"github.com/pitchlens/scoutcore/internal/platform/resilience"
	"github.com/pitchlens/scoutcore/internal/usecase"
)

// llmAdapter binds the transport client to the parser's narrower boundary.
type llmAdapter struct {
	client *llm.Client
}

func (a llmAdapter) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return a.client.Complete(ctx, prompt, llm.Options{Temperature: temperature, MaxTokens: maxTokens})
}

// NewHTTPHandler wires the engine: catalogue, gateway, repositories, engines,
// HTTP surface. The returned cleanup closes the store connection.
func NewHTTPHandler(cfg config.Config, logger *logging.Logger) (http.Handler, func() error, error) {
	cat, err := catalogue.Load(cfg.CataloguePath)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalogue: %w", err)
	}

	db, err := otelsqlx.Open("postgres", readOnlyDBURL(cfg.DBURL),
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	gateway := store.NewGateway(db, store.Config{
		PoolSize:       cfg.StorePoolSize,
		AcquireTimeout: cfg.StoreTimeout,
	})

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSchema()
	schema, err := gateway.Schema(schemaCtx)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("read store schema: %w", err)
	}
	if err := cat.SelfCheck(schema.StatColumns()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("catalogue loaded",
		"version", cat.Version(),
		"metrics", len(cat.MetricIDs()),
		"presets", len(cat.PresetIDs()),
	)

	var playerRepo playerdomain.Repository = postgresrepo.NewPlayerRepository(gateway)
	var seasonRepo playerseasondomain.Repository = postgresrepo.NewPlayerSeasonRepository(gateway)

	var parseCache *basecache.Store
	if cfg.CacheEnabled {
		parseCache = basecache.NewStore(cfg.CacheTTL)
	}

	metricSvc := usecase.NewMetricService(cat, seasonRepo, usecase.MetricConfig{
		MinMinutes:    cfg.MinMinutesDefault,
		MinCohortSize: cfg.MinCohortSize,
		ZScoreClip:    cfg.ZScoreClip,
	})
	roleSvc := usecase.NewRoleService(cat, seasonRepo, usecase.RoleConfig{
		MinEvents: cfg.RoleMinEvents,
	})
	simSvc := usecase.NewSimilarityService(cat, metricSvc, roleSvc, usecase.SimilarityConfig{
		RoleWeight:    cfg.RoleWeight,
		StatsWeight:   cfg.StatsWeight,
		ClampNegative: cfg.SimilarityClamp,
	})
	executorSvc := usecase.NewExecutorService(cat, playerRepo, metricSvc, roleSvc, simSvc, usecase.ExecutorConfig{
		RequestTimeout: cfg.RequestTimeout,
	})

	llmClient := llm.NewClient(llm.ClientConfig{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.LLMMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.LLMCircuitEnabled,
			FailureThreshold: cfg.LLMCircuitFailureCount,
			OpenTimeout:      cfg.LLMCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.LLMCircuitHalfOpenMax,
		},
	})
	parserSvc := usecase.NewParserService(llmAdapter{client: llmClient}, cat, playerRepo, parseCache, usecase.ParserConfig{
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	})

	if cfg.WarmupEnabled {
		warmupSvc := usecase.NewWarmupService(playerRepo, seasonRepo, logger)
		go func() {
			warmupCtx, cancelWarmup := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancelWarmup()
			if _, err := warmupSvc.Run(warmupCtx, usecase.WarmupInput{
				LeagueIDs:  cfg.WarmupLeagues,
				MaxWorkers: cfg.WarmupWorkers,
			}); err != nil {
				logger.Warn("store warmup probe failed", "error", err)
			}
		}()
	}

	handler := httpapi.NewHandler(cat, playerRepo, executorSvc, parserSvc, metricSvc, roleSvc)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	return router, db.Close, nil
}

// NewHTTPServer builds the wired handler behind a configured http.Server.
func NewHTTPServer(cfg config.Config, logger *logging.Logger) (*http.Server, func() error, error) {
	handler, cleanup, err := NewHTTPHandler(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, cleanup, nil
}

// readOnlyDBURL forces every session into read-only mode at connection time,
// the second defensive layer behind the statement check.
func readOnlyDBURL(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return dbURL
	}
	query := parsed.Query()
	options := query.Get("options")
	if !strings.Contains(options, "default_transaction_read_only") {
		if options != "" {
			options += " "
		}
		options += "-c default_transaction_read_only=on"
		query.Set("options", options)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func dbNameFromURL(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Path, "/")
}
