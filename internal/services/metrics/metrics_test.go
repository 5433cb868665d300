package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRecordPoll(t *testing.T) {
	m := New()

	m.RecordPoll(5, 2, 1, 1, 3*time.Second, nil)
	m.RecordPoll(4, 1, 1, 0, time.Second, nil)
	m.RecordPoll(0, 0, 0, 0, time.Second, errors.New("feed unavailable"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("error")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.notices))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.signals))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)
}

func TestServer_ExposesMetricsAndHealth(t *testing.T) {
	m := New()
	m.RecordPoll(3, 1, 1, 0, time.Second, nil)
	server := httptest.NewServer(NewServer(":0", m, arbor.NewLogger()).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ebbwatch_polls_total{result="success"} 1`)
	assert.Contains(t, string(body), "ebbwatch_signals_detected_total 1")

	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
