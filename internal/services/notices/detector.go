package notices

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/ebbwatch/internal/models"
)

// Rules is the detection policy. Values are copied by NewDetector, so a
// Detector never observes later changes to the slices.
type Rules struct {
	Keywords       []string      // event keywords matched in title or summary
	RegionKeywords []string      // pipelines/hubs matched in source, title, summary or location
	MaxAge         time.Duration // notices posted longer ago than this are ignored
	VolumeUnits    []string      // units that mark a number as a curtailment volume
}

// DefaultRules returns the Louisiana / Henry Hub policy.
func DefaultRules() Rules {
	return Rules{
		Keywords: []string{"force majeure", "outage", "curtailment"},
		RegionKeywords: []string{
			"louisiana", "henry hub", "sabine", "cameron", "columbia gulf",
			"transco", "texas eastern", "gulf south", "enable", "gulfstream",
		},
		MaxAge:      72 * time.Hour,
		VolumeUnits: []string{"mmbtu", "dth", "mmcf/d"},
	}
}

// Verdict explains how a single notice fared against the rules.
type Verdict struct {
	Recent        bool
	PostedUnknown bool
	Keyword       string // first keyword hit, "" if none
	Region        string // first region keyword hit, "" if none
}

// Tradable reports whether the notice passes both the recency and content tests.
func (v Verdict) Tradable() bool {
	return v.Recent && (v.Keyword != "" || v.Region != "")
}

// Detector filters notices down to trading signals.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	keywords       []string
	regionKeywords []string
	maxAge         time.Duration
	volumePattern  *regexp.Regexp
}

// NewDetector compiles rules into a Detector.
func NewDetector(rules Rules) (*Detector, error) {
	if rules.MaxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive, got %s", rules.MaxAge)
	}

	return &Detector{
		keywords:       lowerAll(rules.Keywords),
		regionKeywords: lowerAll(rules.RegionKeywords),
		maxAge:         rules.MaxAge,
		volumePattern:  compileVolumePattern(rules.VolumeUnits),
	}, nil
}

// Detect returns the tradable subset of notices in input order. Each
// returned notice whose summary mentions volumes gets CurtailmentVolumes set.
// The result depends only on notices and now.
func (d *Detector) Detect(notices []*models.Notice, now time.Time) []*models.Notice {
	tradable := make([]*models.Notice, 0, len(notices))

	for _, notice := range notices {
		if notice == nil {
			continue
		}
		if !d.Explain(notice, now).Tradable() {
			continue
		}

		if volumes := d.ExtractVolumes(notice.Summary); volumes != "" {
			notice.CurtailmentVolumes = volumes
		}
		tradable = append(tradable, notice)
	}

	return tradable
}

// Explain evaluates notice against the rules without modifying it.
func (d *Detector) Explain(notice *models.Notice, now time.Time) Verdict {
	verdict := Verdict{}

	// An unparsed posting time is treated as maximally old: the notice is
	// excluded rather than assumed current.
	posted, ok := notice.PostedAt.Time()
	if !ok {
		verdict.PostedUnknown = true
	} else {
		verdict.Recent = now.Sub(posted) <= d.maxAge
	}

	title := strings.ToLower(notice.Title)
	summary := strings.ToLower(notice.Summary)
	source := strings.ToLower(notice.SourceName)
	location := strings.ToLower(notice.Location)

	verdict.Keyword = firstContained(d.keywords, title, summary)
	verdict.Region = firstContained(d.regionKeywords, source, title, summary, location)

	return verdict
}

// ExtractVolumes returns every "<number> <unit>" mention in text, in order,
// joined with "; ". Go's regexp engine is linear-time, so hostile input
// cannot cause runaway backtracking.
func (d *Detector) ExtractVolumes(text string) string {
	if d.volumePattern == nil || text == "" {
		return ""
	}

	var volumes []string
	for _, loc := range d.volumePattern.FindAllStringIndex(text, -1) {
		if startsMidNumber(text, loc[0]) {
			continue
		}
		if v := strings.TrimSpace(text[loc[0]:loc[1]]); v != "" {
			volumes = append(volumes, v)
		}
	}

	return strings.Join(volumes, "; ")
}

// startsMidNumber reports whether text[start:] continues a number that began
// earlier, i.e. it follows a digit or a digit and a separator.
func startsMidNumber(text string, start int) bool {
	if start == 0 {
		return false
	}
	prev := text[start-1]
	if isDigit(prev) {
		return true
	}
	return (prev == ',' || prev == '.') && start >= 2 && isDigit(text[start-2])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// compileVolumePattern builds the volume matcher: a number that is either
// comma-grouped in threes or a plain digit run, an optional fraction,
// optional whitespace, then a unit. Longer units are tried first so
// "mmcf/d" wins over a hypothetical "mmcf".
func compileVolumePattern(units []string) *regexp.Regexp {
	cleaned := make([]string, 0, len(units))
	for _, unit := range units {
		if unit = strings.TrimSpace(strings.ToLower(unit)); unit != "" {
			cleaned = append(cleaned, unit)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		return len(cleaned[i]) > len(cleaned[j])
	})

	alternatives := make([]string, len(cleaned))
	for i, unit := range cleaned {
		alternatives[i] = regexp.QuoteMeta(unit)
	}

	return regexp.MustCompile(`(?i)(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?[\s\p{Zs}]*(?:` + strings.Join(alternatives, "|") + `)`)
}

func firstContained(needles []string, haystacks ...string) string {
	for _, needle := range needles {
		for _, haystack := range haystacks {
			if strings.Contains(haystack, needle) {
				return needle
			}
		}
	}
	return ""
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(strings.ToLower(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
