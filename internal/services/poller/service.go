// Package poller runs one EBB poll cycle: fetch the page, extract notices,
// detect trading signals and fan the matches out to the notifier.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ebbwatch/internal/interfaces"
	"github.com/ternarybob/ebbwatch/internal/models"
)

// JobName is the scheduler job that drives Poll
const JobName = "ebb_poll"

// PollResult summarises one poll cycle
type PollResult struct {
	RunID     string
	Found     int
	Tradable  int
	Delivered int
	Failed    int
	Duration  time.Duration
}

// Service wires the fetch, extract, detect and deliver stages together
type Service struct {
	fetcher   interfaces.FeedFetcher
	extractor interfaces.NoticeExtractor
	detector  interfaces.SignalDetector
	sender    interfaces.NotificationSender
	recorder  interfaces.PollRecorder
	logger    arbor.ILogger
	now       func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock replaces time.Now as the reference instant for recency checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecorder reports every finished cycle to recorder.
func WithRecorder(recorder interfaces.PollRecorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// NewService creates a poller
func NewService(
	fetcher interfaces.FeedFetcher,
	extractor interfaces.NoticeExtractor,
	detector interfaces.SignalDetector,
	sender interfaces.NotificationSender,
	logger arbor.ILogger,
	opts ...Option,
) *Service {
	s := &Service{
		fetcher:   fetcher,
		extractor: extractor,
		detector:  detector,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Poll runs one cycle. Only a failed fetch fails the cycle; failed deliveries
// are logged and counted in the result.
func (s *Service) Poll(ctx context.Context) (result *PollResult, err error) {
	started := time.Now()
	result = &PollResult{RunID: uuid.New().String()}
	logger := s.logger.WithCorrelationId(result.RunID)

	if s.recorder != nil {
		defer func() {
			s.recorder.RecordPoll(result.Found, result.Tradable, result.Delivered, result.Failed, time.Since(started), err)
		}()
	}

	logger.Info().Str("feed_url", s.fetcher.URL()).Msg("Poll cycle started")

	raw, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return result, fmt.Errorf("poll %s: %w", result.RunID, err)
	}

	found := s.extractor.Extract(raw)
	result.Found = len(found)
	logger.Info().Int("notices", result.Found).Msg("Notices extracted")

	signals := s.detector.Detect(found, s.now())
	result.Tradable = len(signals)
	logger.Info().Int("signals", result.Tradable).Msg("Trading signals detected")

	if len(signals) > 0 {
		delivered, failed := s.deliver(ctx, logger, signals)
		result.Delivered = delivered
		result.Failed = failed
	}

	result.Duration = time.Since(started)

	logger.Info().
		Int("notices", result.Found).
		Int("signals", result.Tradable).
		Int("delivered", result.Delivered).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Poll cycle completed")

	return result, nil
}

// Run is the scheduler job handler
func (s *Service) Run(ctx context.Context) error {
	result, err := s.Poll(ctx)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d notifications failed", result.Failed, result.Tradable)
	}
	return nil
}

// deliver sends every notice concurrently and waits for all of them.
// One failure never cancels the others.
func (s *Service) deliver(ctx context.Context, logger arbor.ILogger, signals []*models.Notice) (int, int) {
	var (
		wg        sync.WaitGroup
		delivered int64
		failed    int64
	)

	for _, notice := range signals {
		wg.Add(1)
		go func(notice *models.Notice) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&failed, 1)
					logger.Error().
						Str("title", notice.Title).
						Str("panic", fmt.Sprintf("%v", r)).
						Msg("Recovered from panic while sending notification")
				}
			}()

			if err := s.sender.Send(ctx, notice); err != nil {
				atomic.AddInt64(&failed, 1)
				logger.Error().
					Err(err).
					Str("title", notice.Title).
					Str("url", notice.URL).
					Msg("Failed to send notification")
				return
			}

			atomic.AddInt64(&delivered, 1)
			logger.Info().
				Str("title", notice.Title).
				Str("posted", notice.PostedAt.String()).
				Str("volumes", notice.CurtailmentVolumes).
				Msg("Notification sent")
		}(notice)
	}

	wg.Wait()

	return int(delivered), int(failed)
}
