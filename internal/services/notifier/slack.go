// Package notifier delivers trading-signal notices to a Slack incoming webhook.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ebbwatch/internal/httpclient"
	"github.com/ternarybob/ebbwatch/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is Slack's documented limit for incoming webhooks (messages per second).
	DefaultRateLimit = 1.0

	// timeLayout is how notice timestamps appear in messages
	timeLayout = "2006-01-02 15:04"
)

// ErrWebhookNotConfigured is returned when no webhook URL was supplied.
var ErrWebhookNotConfigured = errors.New("slack webhook URL is not configured")

// SlackSender posts one message per notice to an incoming webhook.
// Safe for concurrent use; sends are throttled by a shared limiter.
type SlackSender struct {
	webhookURL string
	username   string
	iconEmoji  string
	channel    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *httpclient.RetryPolicy
	logger     arbor.ILogger
}

// SlackOption configures the SlackSender.
type SlackOption func(*SlackSender)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) SlackOption {
	return func(s *SlackSender) {
		s.httpClient = httpClient
	}
}

// WithRateLimit sets the sustained message rate; burst is at least 1.
func WithRateLimit(perSecond float64, burst int) SlackOption {
	return func(s *SlackSender) {
		if burst < 1 {
			burst = 1
		}
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, burst)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(policy *httpclient.RetryPolicy) SlackOption {
	return func(s *SlackSender) {
		if policy != nil {
			s.retry = policy
		}
	}
}

// WithIdentity overrides the webhook's default username, icon and channel.
// Empty values keep the webhook defaults.
func WithIdentity(username, iconEmoji, channel string) SlackOption {
	return func(s *SlackSender) {
		s.username = username
		s.iconEmoji = iconEmoji
		s.channel = channel
	}
}

// NewSlackSender creates a sender for webhookURL.
func NewSlackSender(webhookURL string, logger arbor.ILogger, opts ...SlackOption) *SlackSender {
	s := &SlackSender{
		webhookURL: webhookURL,
		httpClient: httpclient.NewDefaultHTTPClient(0),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		retry:      httpclient.NewRetryPolicy(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Send posts notice, retrying transient webhook failures with backoff.
func (s *SlackSender) Send(ctx context.Context, notice *models.Notice) error {
	if strings.TrimSpace(s.webhookURL) == "" {
		return ErrWebhookNotConfigured
	}
	if notice == nil {
		return errors.New("notice is nil")
	}

	msg := &slack.WebhookMessage{
		Text:      FormatMessage(notice),
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Channel:   s.channel,
	}

	_, err := s.retry.ExecuteWithRetry(ctx, s.logger, "slack_webhook", func(ctx context.Context) (int, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
			return webhookStatusCode(err), err
		}
		return http.StatusOK, nil
	})
	if err != nil {
		return fmt.Errorf("failed to send slack message for notice %q: %w", notice.Title, err)
	}

	s.logger.Debug().
		Str("title", notice.Title).
		Str("url", notice.URL).
		Msg("Slack message sent")

	return nil
}

// webhookStatusCode recovers the HTTP status from slack-go's error types.
func webhookStatusCode(err error) int {
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}

	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return http.StatusTooManyRequests
	}

	return 0
}

// FormatMessage renders a notice as Slack mrkdwn.
func FormatMessage(notice *models.Notice) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%s* - %s\n", escape(notice.NoticeType), escape(notice.Title))
	fmt.Fprintf(&b, "*TSP:* %s\n", escape(notice.SourceName))
	fmt.Fprintf(&b, "*Summary:* %s\n", escape(notice.Summary))
	fmt.Fprintf(&b, "*Posted:* %s\n", notice.PostedAt.Format(timeLayout))
	fmt.Fprintf(&b, "*Effective:* %s\n", notice.EffectiveAt.Format(timeLayout))
	fmt.Fprintf(&b, "*Ends:* %s\n", notice.EndAt.Format(timeLayout))
	fmt.Fprintf(&b, "*Segment/Location:* %s\n", escape(notice.Location))
	if notice.HasCurtailmentVolumes() {
		fmt.Fprintf(&b, "*Curtailment Volumes:* %s\n", escape(notice.CurtailmentVolumes))
	}
	fmt.Fprintf(&b, "<%s|View Notice>", notice.URL)

	return b.String()
}

// Slack requires &, < and > to be escaped in message text
var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return slackEscaper.Replace(s)
}
