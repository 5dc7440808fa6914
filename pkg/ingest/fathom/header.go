package fathom

import (
	"strconv"
	"strings"
	"time"
)

// Years used to place "<Month> <day>" export dates. Fathom became available
// in StartYear; exports made during TransitionYear may still describe calls
// from StartYear.
const (
	StartYear      = 2024
	TransitionYear = 2025
	FutureYear     = 2026
)

const (
	recordingMarker    = "VIEW RECORDING"
	recordingScanLines = 5
	bodySeparator      = "---"
	titleDateSeparator = " - "
	monthDayLayout     = "January 2"
	monthDayYearLayout = "January 2 2006"
)

// YearPolicy picks the year for an export date that only carries month and day.
type YearPolicy interface {
	// Year returns the year to use for monthDay (parsed in the current year, UTC)
	// given the current time.
	Year(monthDay, now time.Time) int
}

// TransitionYearPolicy places dates around the year transcription rolled out.
type TransitionYearPolicy struct {
	Start      int
	Transition int
	Future     int
}

// DefaultYearPolicy is the policy used when none is configured.
var DefaultYearPolicy YearPolicy = TransitionYearPolicy{
	Start:      StartYear,
	Transition: TransitionYear,
	Future:     FutureYear,
}

// Year implements YearPolicy.
func (p TransitionYearPolicy) Year(monthDay, now time.Time) int {
	current := now.Year()
	switch {
	case current == p.Transition:
		// A date later than today cannot have happened yet this year.
		if monthDay.After(now) {
			return p.Start
		}
		return p.Transition
	case current >= p.Future:
		return current
	default:
		return current
	}
}

// MonthThresholdPolicy assigns BaseYear to months from FirstMonth onwards and
// the current year to earlier months. Older exports were dated this way.
type MonthThresholdPolicy struct {
	BaseYear   int
	FirstMonth time.Month
}

// Year implements YearPolicy.
func (p MonthThresholdPolicy) Year(monthDay, now time.Time) int {
	if monthDay.Month() >= p.FirstMonth {
		return p.BaseYear
	}
	return now.Year()
}

type headerOptions struct {
	now    func() time.Time
	policy YearPolicy
}

// HeaderOption configures ExtractHeader.
type HeaderOption func(*headerOptions)

// WithClock overrides the clock used for year disambiguation.
func WithClock(now func() time.Time) HeaderOption {
	return func(o *headerOptions) {
		o.now = now
	}
}

// WithYearPolicy overrides the year disambiguation policy.
func WithYearPolicy(p YearPolicy) HeaderOption {
	return func(o *headerOptions) {
		if p != nil {
			o.policy = p
		}
	}
}

// ExtractHeader recovers the title, date, recording URL and duration from the
// first lines of an export. Title, date and URL are required; an unreadable
// duration yields 0.
func ExtractHeader(lines []string, opts ...HeaderOption) (*TranscriptHeader, error) {
	o := headerOptions{now: time.Now, policy: DefaultYearPolicy}
	for _, opt := range opts {
		opt(&o)
	}

	h := &TranscriptHeader{}
	var haveTitle, haveDate, haveURL bool

	if len(lines) > 0 {
		first := strings.TrimRight(lines[0], "\r\n")
		if idx := strings.LastIndex(first, titleDateSeparator); idx >= 0 {
			h.Title = first[:idx]
			haveTitle = true
			if date, ok := parseExportDate(strings.TrimSpace(first[idx+len(titleDateSeparator):]), o); ok {
				h.Date = date
				haveDate = true
			}
		}
	}

	for _, line := range lines[:min(recordingScanLines, len(lines))] {
		if !strings.Contains(line, recordingMarker) {
			continue
		}
		h.RecordingURL, h.DurationMinutes, haveURL = parseRecordingLine(line)
		break
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == bodySeparator {
			h.BodyStart = i + 1
			break
		}
	}

	switch {
	case !haveURL:
		return nil, &ParseError{Err: ErrMissingURL}
	case !haveDate:
		return nil, &ParseError{Line: 1, Text: firstLine(lines), Err: ErrMissingDate}
	case !haveTitle:
		return nil, &ParseError{Line: 1, Text: firstLine(lines), Err: ErrMissingTitle}
	}
	return h, nil
}

// parseExportDate turns "March 3" into a UTC midnight date, choosing the year
// with the configured policy.
func parseExportDate(s string, o headerOptions) (time.Time, bool) {
	now := o.now().UTC()
	md, err := time.Parse(monthDayLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	candidate := time.Date(now.Year(), md.Month(), md.Day(), 0, 0, 0, 0, time.UTC)
	year := o.policy.Year(candidate, now)

	// Re-parse with the year so that Feb 29 in a non-leap year is rejected.
	date, err := time.Parse(monthDayYearLayout, s+" "+strconv.Itoa(year))
	if err != nil {
		return time.Time{}, false
	}
	return date.UTC(), true
}

// parseRecordingLine reads
// "VIEW RECORDING - 19 mins (No highlights): https://fathom.video/calls/209771231".
func parseRecordingLine(line string) (url string, duration float64, ok bool) {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return "", 0, false
	}
	url = strings.TrimSpace(parts[len(parts)-1])
	if strings.HasPrefix(url, "//") {
		url = "https:" + url
	}
	return url, parseDuration(parts[0]), true
}

func parseDuration(segment string) float64 {
	pieces := strings.Split(segment, "-")
	if len(pieces) < 2 {
		return 0
	}
	fields := strings.Fields(pieces[1])
	if len(fields) == 0 {
		return 0
	}
	minutes, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return minutes
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}
