package models

import "time"

// Notice is one operational bulletin posted on a pipeline operator's EBB.
type Notice struct {
	SourceName  string    `json:"source_name"` // Transportation Service Provider (TSP), e.g. "ANR"
	NoticeType  string    `json:"notice_type"` // e.g. "Critical", "Planned Outage", "Maintenance"
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	PostedAt    Timestamp `json:"posted_at"`
	EffectiveAt Timestamp `json:"effective_at"`
	EndAt       Timestamp `json:"end_at"`
	Location    string    `json:"location,omitempty"`
	URL         string    `json:"url"`

	// Set by the signal detector; empty until then
	CurtailmentVolumes string `json:"curtailment_volumes,omitempty"`
}

// HasCurtailmentVolumes reports whether the detector annotated the notice with volumes.
func (n *Notice) HasCurtailmentVolumes() bool {
	return n.CurtailmentVolumes != ""
}

// Timestamp is either a parsed instant or Unparsed. The zero value is Unparsed.
type Timestamp struct {
	t      time.Time
	parsed bool
}

// Unparsed marks a date/time field that was missing or could not be parsed.
var Unparsed = Timestamp{}

// ParsedTime wraps a successfully parsed instant.
func ParsedTime(t time.Time) Timestamp {
	return Timestamp{t: t, parsed: true}
}

// IsParsed reports whether the timestamp holds a real instant.
func (ts Timestamp) IsParsed() bool {
	return ts.parsed
}

// Time returns the instant and true, or the zero time and false when unparsed.
func (ts Timestamp) Time() (time.Time, bool) {
	return ts.t, ts.parsed
}

// Format formats the instant with layout, or returns "n/a" when unparsed.
func (ts Timestamp) Format(layout string) string {
	if !ts.parsed {
		return "n/a"
	}
	return ts.t.Format(layout)
}

func (ts Timestamp) String() string {
	if !ts.parsed {
		return "unparsed"
	}
	return ts.t.Format(time.RFC3339)
}

// MarshalText encodes unparsed timestamps as an empty string.
func (ts Timestamp) MarshalText() ([]byte, error) {
	if !ts.parsed {
		return []byte{}, nil
	}
	return ts.t.MarshalText()
}
