// Package notices turns operator EBB pages into notices and picks out the
// ones worth a trading alert. Pure functions only: no I/O, no logging.
package notices

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/ternarybob/ebbwatch/internal/models"
)

const (
	// DefaultSourceName is the operator the ANR page template belongs to.
	DefaultSourceName = "ANR"

	// DefaultNoticeBaseURL is prefixed to the extracted notice ID.
	DefaultNoticeBaseURL = "https://ebb.anrpl.com/Notices/NoticeView.asp?sPipelineCode=ANR&sSubCategory=Critical&sNoticeId="
)

// Row labels on the ANR notice table
const (
	labelNoticeType = "Notice Type Desc:"
	labelNoticeText = "Notice Text:"
	labelPosted     = "Posting Date/Time:"
	labelEffective  = "Notice Effective Date/Time:"
	labelEnd        = "Notice End Date/Time:"
	labelNoticeID   = "Notice ID:"
)

// noticeBlockFingerprint is the attribute signature of the bordered table
// that wraps each notice. Layout tables elsewhere on the page never carry all of it.
var noticeBlockFingerprint = map[string]string{
	"width":            "650",
	"border":           "1",
	"cellpadding":      "5",
	"cellspacing":      "0",
	"bordercolor":      "#000000",
	"bordercolordark":  "#000000",
	"bordercolorlight": "#000000",
}

// lineBreakPattern matches <br>, <br/>, <br /> in any case.
var lineBreakPattern = regexp.MustCompile(`(?i)<br\s*/?\s*>`)

// Extractor parses one operator's EBB notice page.
// It is stateless after construction and safe for concurrent use.
type Extractor struct {
	sourceName    string
	noticeBaseURL string
	location      *time.Location
}

// ExtractorOption configures the Extractor.
type ExtractorOption func(*Extractor)

// WithSourceName sets the operator name stamped on every notice.
func WithSourceName(name string) ExtractorOption {
	return func(e *Extractor) {
		e.sourceName = name
	}
}

// WithNoticeBaseURL sets the prefix the notice ID is appended to.
func WithNoticeBaseURL(baseURL string) ExtractorOption {
	return func(e *Extractor) {
		e.noticeBaseURL = baseURL
	}
}

// WithLocation sets the time zone for date strings that carry no offset.
func WithLocation(loc *time.Location) ExtractorOption {
	return func(e *Extractor) {
		if loc != nil {
			e.location = loc
		}
	}
}

// NewExtractor creates an extractor for the ANR page template.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		sourceName:    DefaultSourceName,
		noticeBaseURL: DefaultNoticeBaseURL,
		location:      time.UTC,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SourceName returns the operator this extractor stamps on notices.
func (e *Extractor) SourceName() string {
	return e.sourceName
}

// Extract returns the notices found in raw, in document order.
// Malformed or unrelated markup yields an empty slice, never an error;
// a missing field degrades to "" or models.Unparsed.
func (e *Extractor) Extract(raw string) []*models.Notice {
	notices := []*models.Notice{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return notices
	}

	doc.Find("table").Each(func(_ int, block *goquery.Selection) {
		if !isNoticeBlock(block) {
			return
		}
		notices = append(notices, e.extractNotice(block))
	})

	return notices
}

func (e *Extractor) extractNotice(block *goquery.Selection) *models.Notice {
	title, summary := splitNoticeText(noticeTextHTML(block))

	return &models.Notice{
		SourceName:  e.sourceName,
		NoticeType:  labelledValue(block, labelNoticeType),
		Title:       title,
		Summary:     summary,
		PostedAt:    e.parseTimestamp(labelledValue(block, labelPosted)),
		EffectiveAt: e.parseTimestamp(labelledValue(block, labelEffective)),
		EndAt:       e.parseTimestamp(labelledValue(block, labelEnd)),
		URL:         e.noticeBaseURL + labelledValue(block, labelNoticeID),
	}
}

// parseTimestamp accepts any layout dateparse recognises (US month-first
// for ambiguous dates). Failure yields Unparsed rather than an error.
func (e *Extractor) parseTimestamp(value string) models.Timestamp {
	if value == "" {
		return models.Unparsed
	}

	t, err := dateparse.ParseIn(value, e.location)
	if err != nil {
		return models.Unparsed
	}

	return models.ParsedTime(t)
}

// isNoticeBlock reports whether every fingerprint attribute is present with
// exactly the expected value.
func isNoticeBlock(table *goquery.Selection) bool {
	for attr, want := range noticeBlockFingerprint {
		got, ok := table.Attr(attr)
		if !ok || got != want {
			return false
		}
	}
	return true
}

type labelMatcher func(text, label string) bool

func labelContains(text, label string) bool {
	return strings.Contains(text, label)
}

func labelEquals(text, label string) bool {
	return strings.TrimSpace(text) == label
}

// labelledLookup walks the rows of block that carry a td > small > strong
// label accepted by match and passes each row's second cell to value. The
// first value that succeeds wins, so a labelled row with no usable cell
// does not hide a later one.
func labelledLookup(block *goquery.Selection, label string, match labelMatcher, value func(cell *goquery.Selection) (string, bool)) string {
	var result string

	block.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.ChildrenFiltered("td")

		labelled := false
		cells.ChildrenFiltered("small").ChildrenFiltered("strong").EachWithBreak(func(_ int, strong *goquery.Selection) bool {
			labelled = match(strong.Text(), label)
			return !labelled
		})
		if !labelled {
			return true
		}

		second := cells.Eq(1)
		if second.Length() == 0 {
			return true
		}

		v, ok := value(second)
		if !ok {
			return true
		}
		result = v
		return false
	})

	return result
}

// labelledValue returns the trimmed text of the first <small> in the value
// cell next to a label containing label.
func labelledValue(block *goquery.Selection, label string) string {
	return labelledLookup(block, label, labelContains, func(cell *goquery.Selection) (string, bool) {
		small := cell.ChildrenFiltered("small").First()
		if small.Length() == 0 {
			return "", false
		}
		return strings.TrimSpace(small.Text()), true
	})
}

// noticeTextHTML returns the inner HTML of the first cell of the second row
// of the table nested in the "Notice Text:" value cell. The first row of
// that table is a header.
func noticeTextHTML(block *goquery.Selection) string {
	return labelledLookup(block, labelNoticeText, labelEquals, func(cell *goquery.Selection) (string, bool) {
		var (
			fragment string
			found    bool
		)

		cell.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			if row.PrevAllFiltered("tr").Length() != 1 {
				return true
			}

			td := row.ChildrenFiltered("td").First()
			if td.Length() == 0 {
				return true
			}

			html, err := td.Html()
			if err != nil {
				return true
			}
			fragment, found = html, true
			return false
		})

		return fragment, found
	})
}

// splitNoticeText derives title and summary from the notice text fragment.
// With line breaks: first non-empty segment is the title and the rest,
// newline-joined, the summary. Without: both are the whole text.
func splitNoticeText(fragment string) (title, summary string) {
	if !lineBreakPattern.MatchString(fragment) {
		text := fragmentText(fragment)
		return text, text
	}

	var segments []string
	for _, part := range lineBreakPattern.Split(fragment, -1) {
		if text := fragmentText(part); text != "" {
			segments = append(segments, text)
		}
	}

	if len(segments) == 0 {
		return "", ""
	}

	return segments[0], strings.Join(segments[1:], "\n")
}

// fragmentText strips tags, decodes entities and collapses whitespace.
func fragmentText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}
