package notices

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/ebbwatch/internal/models"
)

var testNow = time.Date(2025, 10, 14, 18, 0, 0, 0, time.UTC)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	detector, err := NewDetector(DefaultRules())
	require.NoError(t, err)
	return detector
}

func postedAgo(d time.Duration) models.Timestamp {
	return models.ParsedTime(testNow.Add(-d))
}

func TestDetect_ReturnsEmptyWhenNoNotices(t *testing.T) {
	detector := newTestDetector(t)

	result := detector.Detect(nil, testNow)

	assert.Empty(t, result)
}

func TestDetect_FiltersOutOldNotices(t *testing.T) {
	detector := newTestDetector(t)

	oldNotice := &models.Notice{
		Title:    "Force Majeure Event",
		PostedAt: postedAgo(5 * 24 * time.Hour),
	}
	recentNotice := &models.Notice{
		Title:    "Outage at compressor station",
		PostedAt: postedAgo(24 * time.Hour),
	}

	result := detector.Detect([]*models.Notice{oldNotice, recentNotice}, testNow)

	require.Len(t, result, 1)
	assert.Same(t, recentNotice, result[0])
}

func TestDetect_AgeBoundaryIsInclusive(t *testing.T) {
	detector := newTestDetector(t)

	atLimit := &models.Notice{Title: "Outage", PostedAt: postedAgo(72 * time.Hour)}
	pastLimit := &models.Notice{Title: "Outage", PostedAt: postedAgo(72*time.Hour + time.Second)}

	result := detector.Detect([]*models.Notice{atLimit, pastLimit}, testNow)

	require.Len(t, result, 1)
	assert.Same(t, atLimit, result[0])
}

func TestDetect_ExcludesUnparsedPostingTime(t *testing.T) {
	detector := newTestDetector(t)

	notice := &models.Notice{
		Title:    "Force Majeure at Henry Hub",
		PostedAt: models.Unparsed,
	}

	result := detector.Detect([]*models.Notice{notice}, testNow)

	assert.Empty(t, result)

	verdict := detector.Explain(notice, testNow)
	assert.True(t, verdict.PostedUnknown)
	assert.False(t, verdict.Recent)
	assert.False(t, verdict.Tradable())
}

func TestDetect_DetectsKeywordInTitleOrSummary(t *testing.T) {
	detector := newTestDetector(t)

	tests := []struct {
		name    string
		title   string
		summary string
		want    bool
	}{
		{"keyword in title", "Unexpected Curtailment", "Routine maintenance", true},
		{"keyword in summary", "Operational Notice", "Planned OUTAGE at station 7", true},
		{"multi-word keyword", "Declaration of Force Majeure", "", true},
		{"no keyword", "Routine Notice", "No issues", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notice := &models.Notice{
				SourceName: "ANR",
				Title:      tt.title,
				Summary:    tt.summary,
				PostedAt:   postedAgo(0),
			}

			result := detector.Detect([]*models.Notice{notice}, testNow)

			if tt.want {
				assert.Len(t, result, 1)
			} else {
				assert.Empty(t, result)
			}
		})
	}
}

func TestDetect_DetectsRegionKeywords(t *testing.T) {
	detector := newTestDetector(t)

	tests := []struct {
		name   string
		notice models.Notice
		region string
	}{
		{
			name:   "source name",
			notice: models.Notice{SourceName: "Columbia Gulf Transmission", Title: "Routine Notice", Summary: "No issues"},
			region: "columbia gulf",
		},
		{
			name:   "location",
			notice: models.Notice{SourceName: "ANR", Title: "Routine Notice", Location: "Sabine Pass"},
			region: "sabine",
		},
		{
			name:   "summary",
			notice: models.Notice{SourceName: "ANR", Title: "Capacity update", Summary: "Deliveries to Henry Hub reduced"},
			region: "henry hub",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notice := tt.notice
			notice.PostedAt = postedAgo(0)

			result := detector.Detect([]*models.Notice{&notice}, testNow)

			require.Len(t, result, 1)
			verdict := detector.Explain(&notice, testNow)
			assert.Equal(t, tt.region, verdict.Region)
			assert.Empty(t, verdict.Keyword)
		})
	}
}

func TestDetect_ExtractsCurtailmentVolumes(t *testing.T) {
	detector := newTestDetector(t)

	notice := &models.Notice{
		Title:    "Curtailment Notice",
		Summary:  "Curtailment of 100,000 MMBtu and 50 MMcf/d expected.",
		PostedAt: postedAgo(0),
	}

	result := detector.Detect([]*models.Notice{notice}, testNow)

	require.Len(t, result, 1)
	assert.True(t, result[0].HasCurtailmentVolumes())
	assert.Equal(t, "100,000 MMBtu; 50 MMcf/d", result[0].CurtailmentVolumes)
}

func TestDetect_LeavesVolumesUnsetWithoutUnits(t *testing.T) {
	detector := newTestDetector(t)

	notice := &models.Notice{
		Title:    "Outage",
		Summary:  "Station 12 offline for 48 hours.",
		PostedAt: postedAgo(0),
	}

	result := detector.Detect([]*models.Notice{notice}, testNow)

	require.Len(t, result, 1)
	assert.False(t, result[0].HasCurtailmentVolumes())
}

func TestDetect_DoesNotAnnotateRejectedNotices(t *testing.T) {
	detector := newTestDetector(t)

	notice := &models.Notice{
		Title:    "Curtailment",
		Summary:  "Curtailment of 5,000 Dth",
		PostedAt: postedAgo(10 * 24 * time.Hour),
	}

	detector.Detect([]*models.Notice{notice}, testNow)

	assert.Empty(t, notice.CurtailmentVolumes)
}

func TestDetect_PreservesOrderAndIsIdempotent(t *testing.T) {
	detector := newTestDetector(t)

	notices := []*models.Notice{
		{Title: "Outage A", Summary: "10 Dth", PostedAt: postedAgo(time.Hour)},
		{Title: "Routine", Summary: "nothing", PostedAt: postedAgo(time.Hour)},
		{Title: "Outage B", Summary: "20 dth and 1.5 MMcf/d", PostedAt: postedAgo(2 * time.Hour)},
		{Title: "Transco update", PostedAt: postedAgo(3 * time.Hour)},
	}

	first := detector.Detect(notices, testNow)
	firstVolumes := make([]string, len(first))
	for i, n := range first {
		firstVolumes[i] = n.CurtailmentVolumes
	}

	second := detector.Detect(notices, testNow)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, "Outage A", first[0].Title)
	assert.Equal(t, "Outage B", first[1].Title)
	assert.Equal(t, "Transco update", first[2].Title)
	assert.Equal(t, []string{"10 Dth", "20 dth; 1.5 MMcf/d", ""}, firstVolumes)
	for i, n := range second {
		assert.Equal(t, firstVolumes[i], n.CurtailmentVolumes)
	}
}

func TestDetect_UsesInjectedRules(t *testing.T) {
	detector, err := NewDetector(Rules{
		Keywords:       []string{"Pressure"},
		RegionKeywords: []string{"Permian"},
		MaxAge:         time.Hour,
		VolumeUnits:    []string{"bcf"},
	})
	require.NoError(t, err)

	notices := []*models.Notice{
		{Title: "Low pressure warning", Summary: "Down 2 Bcf", PostedAt: postedAgo(30 * time.Minute)},
		{Title: "Outage", PostedAt: postedAgo(30 * time.Minute)},
		{Title: "Permian update", PostedAt: postedAgo(2 * time.Hour)},
	}

	result := detector.Detect(notices, testNow)

	require.Len(t, result, 1)
	assert.Equal(t, "Low pressure warning", result[0].Title)
	assert.Equal(t, "2 Bcf", result[0].CurtailmentVolumes)
}

func TestNewDetector_RejectsNonPositiveMaxAge(t *testing.T) {
	rules := DefaultRules()
	rules.MaxAge = 0

	_, err := NewDetector(rules)

	assert.Error(t, err)
}

func TestNewDetector_CopiesRules(t *testing.T) {
	rules := DefaultRules()
	detector, err := NewDetector(rules)
	require.NoError(t, err)

	rules.Keywords[1] = "something else"

	notice := &models.Notice{Title: "Outage", PostedAt: postedAgo(0)}
	assert.Len(t, detector.Detect([]*models.Notice{notice}, testNow), 1)
}

func TestExtractVolumes(t *testing.T) {
	detector := newTestDetector(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"comma grouped", "Reduced by 100,000 MMBtu", "100,000 MMBtu"},
		{"fraction", "Cut 12.5 mmcf/d today", "12.5 mmcf/d"},
		{"no space", "Cut 750Dth", "750Dth"},
		{"plain digits are not truncated", "Scheduled 1500 Dth", "1500 Dth"},
		{"multiple in order", "5 Dth, then 6 MMBtu, then 7 MMcf/d", "5 Dth; 6 MMBtu; 7 MMcf/d"},
		{"non-breaking space", "Cut 2,500\u00a0Dth", "2,500\u00a0Dth"},
		{"number without unit", "Station 42 offline", ""},
		{"glued to a letter", "x5,000MMBtu", "5,000MMBtu"},
		{"glued to a word", "Unit100 Dth cut", "100 Dth"},
		{"never starts inside a number", "Meter 12,3456 Dth", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.ExtractVolumes(tt.text))
		})
	}
}

func TestExtractVolumes_LargeInputCompletes(t *testing.T) {
	detector := newTestDetector(t)

	// Long digit/comma runs with no unit are the classic backtracking trap.
	text := strings.Repeat("1,000,", 50000) + " nothing"

	done := make(chan string, 1)
	go func() { done <- detector.ExtractVolumes(text) }()

	select {
	case got := <-done:
		assert.Empty(t, got)
	case <-time.After(5 * time.Second):
		t.Fatal("volume extraction did not complete in time")
	}
}
