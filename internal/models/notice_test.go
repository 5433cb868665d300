package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_ZeroValueIsUnparsed(t *testing.T) {
	var ts Timestamp

	assert.False(t, ts.IsParsed())
	assert.Equal(t, Unparsed, ts)
	assert.Equal(t, "n/a", ts.Format("2006-01-02"))
	assert.Equal(t, "unparsed", ts.String())

	_, ok := ts.Time()
	assert.False(t, ok)
}

func TestTimestamp_Parsed(t *testing.T) {
	instant := time.Date(2025, 10, 14, 8, 30, 0, 0, time.UTC)
	ts := ParsedTime(instant)

	got, ok := ts.Time()
	require.True(t, ok)
	assert.True(t, instant.Equal(got))
	assert.Equal(t, "2025-10-14 08:30", ts.Format("2006-01-02 15:04"))
	assert.Equal(t, "2025-10-14T08:30:00Z", ts.String())
}

func TestNotice_JSON(t *testing.T) {
	notice := Notice{
		SourceName: "ANR",
		Title:      "Outage",
		PostedAt:   ParsedTime(time.Date(2025, 10, 14, 8, 30, 0, 0, time.UTC)),
	}

	data, err := json.Marshal(notice)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"posted_at":"2025-10-14T08:30:00Z"`)
	assert.Contains(t, string(data), `"end_at":""`)
	assert.NotContains(t, string(data), "curtailment_volumes")
	assert.False(t, notice.HasCurtailmentVolumes())
}
