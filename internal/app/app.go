package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ebbwatch/internal/common"
	"github.com/ternarybob/ebbwatch/internal/httpclient"
	"github.com/ternarybob/ebbwatch/internal/services/feed"
	"github.com/ternarybob/ebbwatch/internal/services/metrics"
	"github.com/ternarybob/ebbwatch/internal/services/notices"
	"github.com/ternarybob/ebbwatch/internal/services/notifier"
	"github.com/ternarybob/ebbwatch/internal/services/poller"
	"github.com/ternarybob/ebbwatch/internal/services/scheduler"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	FeedClient       *feed.Client
	Extractor        *notices.Extractor
	Detector         *notices.Detector
	Notifier         *notifier.SlackSender
	Poller           *poller.Service
	SchedulerService *scheduler.Service
	Metrics          *metrics.Metrics
	MetricsServer    *metrics.Server // nil unless metrics.listen_addr is set
}

// New initializes the application with the provided configuration.
// The configuration must already be validated.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("operator", cfg.Operator.Name).
		Str("feed_url", cfg.Feed.URL).
		Str("schedule", cfg.Scheduler.Schedule).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initServices() error {
	cfg := a.Config

	retry := newRetryPolicy(cfg.Retry)

	a.FeedClient = feed.NewClient(cfg.Feed.URL, a.Logger,
		feed.WithHTTPClient(httpclient.NewDefaultHTTPClient(common.ParseDuration(cfg.Feed.Timeout, feed.DefaultTimeout))),
		feed.WithUserAgent(cfg.Feed.UserAgent),
		feed.WithMaxBodySize(cfg.Feed.MaxBodySize),
		feed.WithRetryPolicy(retry),
	)

	a.Extractor = notices.NewExtractor(
		notices.WithSourceName(cfg.Operator.Name),
		notices.WithNoticeBaseURL(cfg.Operator.NoticeBaseURL),
		notices.WithLocation(cfg.Location()),
	)

	detector, err := notices.NewDetector(notices.Rules{
		Keywords:       cfg.Detector.Keywords,
		RegionKeywords: cfg.Detector.RegionKeywords,
		MaxAge:         common.ParseDuration(cfg.Detector.MaxAge, 72*time.Hour),
		VolumeUnits:    cfg.Detector.VolumeUnits,
	})
	if err != nil {
		return fmt.Errorf("failed to create signal detector: %w", err)
	}
	a.Detector = detector

	a.Notifier = notifier.NewSlackSender(cfg.Notifier.WebhookURL, a.Logger,
		notifier.WithHTTPClient(httpclient.NewDefaultHTTPClient(common.ParseDuration(cfg.Notifier.Timeout, 10*time.Second))),
		notifier.WithRateLimit(cfg.Notifier.RateLimit, cfg.Notifier.Burst),
		notifier.WithIdentity(cfg.Notifier.Username, cfg.Notifier.IconEmoji, cfg.Notifier.Channel),
		notifier.WithRetryPolicy(retry),
	)

	a.Metrics = metrics.New()
	if cfg.Metrics.ListenAddr != "" {
		a.MetricsServer = metrics.NewServer(cfg.Metrics.ListenAddr, a.Metrics, a.Logger)
	}

	a.Poller = poller.NewService(a.FeedClient, a.Extractor, a.Detector, a.Notifier, a.Logger,
		poller.WithRecorder(a.Metrics),
	)

	a.SchedulerService = scheduler.NewService(a.Logger)
	if err := a.SchedulerService.RegisterJob(
		poller.JobName,
		cfg.Scheduler.Schedule,
		fmt.Sprintf("Poll %s EBB for trading signals", cfg.Operator.Name),
		cfg.Scheduler.RunOnStart,
		a.Poller.Run,
	); err != nil {
		return fmt.Errorf("failed to register poll job: %w", err)
	}

	return nil
}

// Start begins scheduled polling and, if configured, the metrics listener
func (a *App) Start() error {
	if a.MetricsServer != nil {
		a.MetricsServer.Start()
	}
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// RunOnce runs a single poll cycle synchronously
func (a *App) RunOnce(ctx context.Context) (*poller.PollResult, error) {
	return a.Poller.Poll(ctx)
}

// Close stops the scheduler and waits for an in-flight poll to finish
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			return fmt.Errorf("failed to stop scheduler: %w", err)
		}
	}

	if a.MetricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Metrics server did not shut down cleanly")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}

func newRetryPolicy(cfg common.RetryConfig) *httpclient.RetryPolicy {
	policy := httpclient.NewRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	policy.InitialBackoff = common.ParseDuration(cfg.InitialBackoff, policy.InitialBackoff)
	policy.MaxBackoff = common.ParseDuration(cfg.MaxBackoff, policy.MaxBackoff)
	if cfg.BackoffMultiplier >= 1 {
		policy.BackoffMultiplier = cfg.BackoffMultiplier
	}
	policy.Jitter = cfg.Jitter
	return policy
}
