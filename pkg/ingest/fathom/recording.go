package fathom

import (
	"net/url"
	"regexp"
)

var (
	callPathRegex  = regexp.MustCompile(`/calls/(\d+)`)
	sharePathRegex = regexp.MustCompile(`/share/([A-Za-z0-9_-]+)`)
)

// RecordingIDFromURL extracts the recording identifier from a Fathom call URL
// (https://fathom.video/calls/209771231) or share URL
// (https://fathom.video/share/AbC_123).
func RecordingIDFromURL(raw string) (string, error) {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	if m := callPathRegex.FindStringSubmatch(path); m != nil {
		return m[1], nil
	}
	if m := sharePathRegex.FindStringSubmatch(path); m != nil {
		return m[1], nil
	}
	return "", &ParseError{Text: raw, Err: ErrUnrecognizedRecordingURL}
}
