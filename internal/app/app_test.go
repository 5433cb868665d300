package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ternarybob/ebbwatch/internal/common"
	"github.com/ternarybob/ebbwatch/internal/services/poller"
)

const pageTemplate = `<html><body>
<table width="100%%"><tr><td>ANR Critical Notices</td></tr></table>
<table width="650" border="1" cellpadding="5" cellspacing="0" bordercolor="#000000" bordercolordark="#000000" bordercolorlight="#000000">
<tr><td><small><strong>Notice Type Desc:</strong></small></td><td><small>Force Majeure</small></td></tr>
<tr><td><small><strong>Posting Date/Time:</strong></small></td><td><small>%s</small></td></tr>
<tr><td><small><strong>Notice ID:</strong></small></td><td><small>9001</small></td></tr>
<tr><td><small><strong>Notice Text:</strong></small></td><td><table><tr><td>Text</td></tr><tr><td>Compressor failure<br/>Curtailment of 100,000 MMBtu and 50 MMcf/d expected.</td></tr></table></td></tr>
</table>
<table width="650" border="1" cellpadding="5" cellspacing="0" bordercolor="#000000" bordercolordark="#000000" bordercolorlight="#000000">
<tr><td><small><strong>Notice Type Desc:</strong></small></td><td><small>Informational</small></td></tr>
<tr><td><small><strong>Posting Date/Time:</strong></small></td><td><small>%s</small></td></tr>
<tr><td><small><strong>Notice ID:</strong></small></td><td><small>9002</small></td></tr>
<tr><td><small><strong>Notice Text:</strong></small></td><td><table><tr><td>Text</td></tr><tr><td>Website maintenance window</td></tr></table></td></tr>
</table>
</body></html>`

func testConfig(feedURL, webhookURL string) *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Feed.URL = feedURL
	cfg.Notifier.WebhookURL = webhookURL
	cfg.Notifier.RateLimit = 0
	cfg.Operator.TimeZone = "UTC"
	cfg.Operator.NoticeBaseURL = "https://ebb.example.com/notice?id="
	cfg.Retry.InitialBackoff = "1ms"
	cfg.Retry.MaxBackoff = "5ms"
	cfg.Scheduler.RunOnStart = false
	return cfg
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	cfg := testConfig("https://ebb.example.com", "https://hooks.example.com")
	cfg.Scheduler.Schedule = "whenever"

	_, err := New(cfg, arbor.NewLogger())

	assert.Error(t, err)
}

func TestRunOnce_PostsTradableNotices(t *testing.T) {
	posted := time.Now().UTC().Add(-2 * time.Hour).Format("01/02/2006 03:04:05 PM")
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, pageTemplate, posted, posted)
	}))
	defer feedServer.Close()

	messages := make(chan string, 4)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		messages <- payload.Text
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	cfg := testConfig(feedServer.URL, webhook.URL)
	require.NoError(t, cfg.Validate())

	application, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer application.Close()

	result, err := application.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Found)
	assert.Equal(t, 1, result.Tradable)
	assert.Equal(t, 1, result.Delivered)

	require.Len(t, messages, 1)
	text := <-messages
	assert.Contains(t, text, "*Force Majeure* - Compressor failure")
	assert.Contains(t, text, "*Curtailment Volumes:* 100,000 MMBtu; 50 MMcf/d")
	assert.Contains(t, text, "<https://ebb.example.com/notice?id=9001|View Notice>")

	expected := `
# HELP ebbwatch_notices_extracted_total Notices extracted from the EBB page
# TYPE ebbwatch_notices_extracted_total counter
ebbwatch_notices_extracted_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(application.Metrics.Registry(), strings.NewReader(expected), "ebbwatch_notices_extracted_total"))
}

func TestStart_RegistersPollJob(t *testing.T) {
	cfg := testConfig("https://ebb.example.com", "https://hooks.example.com")

	application, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)

	require.NoError(t, application.Start())
	defer application.Close()

	status, err := application.SchedulerService.GetJobStatus(poller.JobName)
	require.NoError(t, err)
	assert.Equal(t, "@every 15m", status.Schedule)
	assert.False(t, status.RunOnStart)
}
