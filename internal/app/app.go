package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"IncidentScanner/internal/config"
	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/infrastructure/httpapi"
	"IncidentScanner/internal/infrastructure/llm"
	"IncidentScanner/internal/infrastructure/mail"
	"IncidentScanner/internal/infrastructure/metrics"
	"IncidentScanner/internal/infrastructure/parser"
	"IncidentScanner/internal/infrastructure/retry"
	"IncidentScanner/internal/infrastructure/scheduler"
	"IncidentScanner/internal/infrastructure/storage"
	"IncidentScanner/internal/logging"
	"IncidentScanner/internal/scanner"
	"IncidentScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	stores   *storage.Opener
	pipeline *usecase.Pipeline
}

// New builds the application graph from configuration.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	policy := retry.Policy{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}
	fetchClient := &http.Client{Timeout: cfg.Fetch.Timeout}

	scanners := scanner.NewRegistry()
	scanners.Register(parser.NewRSSScanner(fetchClient, cfg.Fetch.UserAgent, baseLogger.With("component", "scanner.rss")))

	fetcher := parser.NewArticleFetcher(fetchClient, cfg.Fetch.UserAgent)
	source := parser.NewStrategySource(scanners, cfg.Feeds, fetcher, baseLogger.With("component", "source"))

	chat := llm.NewChatGPTClient(cfg.Completion, policy)
	extractor := llm.NewIncidentExtractor(chat, cfg.Completion.MaxTokens, cfg.Pipeline.MaxArticleChars, baseLogger.With("component", "extractor"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	stores := storage.NewOpener(cfg.Database)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:    source,
		Extractor: extractor,
		Chat:      chat,
		Stores:    stores,
		Mailer:    mail.NewClient(cfg.Email, policy),
		Renderer:  mail.NewRenderer(cfg.Email.LogoURL),
		Recorder:  recorder,
		Logger:    baseLogger.With("component", "pipeline"),
		Settings: usecase.PipelineSettings{
			DefaultLookbackHours: cfg.Pipeline.DefaultLookbackHours,
			DedupWindow:          time.Duration(cfg.Pipeline.DedupWindowDays) * 24 * time.Hour,
			DedupMaxTokens:       cfg.Completion.DedupMaxTokens,
			OperatorEmail:        cfg.Email.Operator,
		},
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		registry: registry,
		stores:   stores,
		pipeline: pipeline,
	}
}

// RunOnce performs a single invocation. A nil hours uses the configured default.
func (a *Application) RunOnce(ctx context.Context, hours *int) domain.Response {
	return a.pipeline.Run(ctx, domain.Invocation{Hours: hours})
}

// Serve exposes the HTTP API and, when configured, the cron schedule until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	api := httpapi.NewServer(
		a.pipeline,
		a.stores,
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		a.logger.With("component", "httpapi"),
	)

	var cron *usecase.Scheduler
	if spec := a.cfg.Scheduler.CronExpression; spec != "" {
		if err := scheduler.Validate(spec); err != nil {
			return err
		}
		cron = usecase.NewScheduler(
			scheduler.NewCronScheduler(spec),
			a.pipeline,
			a.cfg.Scheduler.LookbackHours,
			a.logger.With("component", "scheduler"),
		)
		if err := cron.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.logger.Info("schedule registered", "cron", spec, "lookback_hours", a.cfg.Scheduler.LookbackHours)
	}

	httpServer := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if cron != nil {
		if err := cron.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler shutdown", "error", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", "error", err)
	}
	return serveErr
}

// Migrate creates the schema for the configured driver.
func (a *Application) Migrate(ctx context.Context) error {
	store, err := storage.Open(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("schema migrated", "driver", a.cfg.Database.Driver)
	return nil
}
