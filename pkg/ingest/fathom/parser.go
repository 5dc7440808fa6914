package fathom

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
)

// Transcript body regular expressions
var (
	// Matches a message header: 10:00 - Alice Smith (Acme)
	// or: 1:02:03 - bob@example.com
	headerLineRegex = regexp.MustCompile(`^(\d{1,2}:\d{2}(?::\d{2})?)\s+-\s+(.+?)(?:\s+\(([^)]+)\))?$`)

	// Timestamp components
	wholeNumberRegex = regexp.MustCompile(`^\d+$`)
	secondsRegex     = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

	// Matches a watch directive: - WATCH: https://fathom.video/... trailing text
	watchLinkRegex = regexp.MustCompile(`^- WATCH:\s*(https?://\S+)(?:\s+(.*))?`)
)

// Content line markers
const (
	actionItemPrefix = "ACTION ITEM:"
	watchLinkPrefix  = "- WATCH:"
)

// ConvertTimestamp converts "M:SS" or "H:MM:SS" to whole seconds. Fractional
// seconds are truncated. Signs, exponents and anything but digits are rejected.
func ConvertTimestamp(ts string) (int, error) {
	parts := strings.Split(ts, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, &ParseError{Text: ts, Err: ErrInvalidTimestamp}
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if !wholeNumberRegex.MatchString(parts[0]) || !wholeNumberRegex.MatchString(parts[1]) ||
		!secondsRegex.MatchString(parts[2]) {
		return 0, &ParseError{Text: ts, Err: ErrInvalidTimestamp}
	}

	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	s, errS := strconv.Atoi(strings.SplitN(parts[2], ".", 2)[0])
	if errH != nil || errM != nil || errS != nil {
		// digits only, so this is overflow
		return 0, &ParseError{Text: ts, Err: ErrInvalidTimestamp}
	}
	return h*3600 + m*60 + s, nil
}

// WatchLink is a parsed "- WATCH:" directive.
type WatchLink struct {
	URL       string
	Remainder string
}

// ParseWatchLink parses "- WATCH: <http(s) url> [text]".
func ParseWatchLink(line string) (WatchLink, error) {
	m := watchLinkRegex.FindStringSubmatch(line)
	if m == nil {
		return WatchLink{}, &ParseError{Text: line, Err: ErrInvalidWatchLink}
	}
	return WatchLink{URL: m[1], Remainder: strings.TrimSpace(m[2])}, nil
}

// draftBuilder accumulates the content lines of one message.
type draftBuilder struct {
	d Draft
}

func (b *draftBuilder) appendText(text string) {
	if text == "" {
		return
	}
	if b.d.Message == "" {
		b.d.Message = text
		return
	}
	b.d.Message += " " + text
}

// apply dispatches one content line to the draft.
func (b *draftBuilder) apply(line string) error {
	switch {
	case strings.HasPrefix(line, actionItemPrefix):
		item := strings.TrimSpace(line[len(actionItemPrefix):])
		b.d.ActionItem = &item
	case strings.HasPrefix(line, watchLinkPrefix):
		wl, err := ParseWatchLink(line)
		if err != nil {
			return err
		}
		link := wl.URL
		b.d.WatchLink = &link
		b.appendText(wl.Remainder)
	default:
		b.appendText(line)
	}
	return nil
}

// IsHeaderLine reports whether line opens a new message.
func IsHeaderLine(line string) bool {
	return headerLineRegex.MatchString(strings.TrimSpace(line))
}

// SpeakerLabels returns the distinct speaker labels of the header lines in
// lines, in order of first appearance and before roster resolution.
func SpeakerLabels(lines []string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, raw := range lines {
		m := headerLineRegex.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[2])
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels
}

// ParseLines runs the transcript state machine over body lines and yields one
// Draft per header line, in input order. The first fatal error is yielded with
// a zero Draft and ends the sequence. The sequence is single-pass and holds no
// resources, so callers may stop iterating at any point.
func ParseLines(lines []string, dir *Directory) iter.Seq2[Draft, error] {
	return func(yield func(Draft, error) bool) {
		var current *draftBuilder

		for i, raw := range lines {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}

			if m := headerLineRegex.FindStringSubmatch(line); m != nil {
				if current != nil {
					if !yield(current.d, nil) {
						return
					}
				}
				next, err := openDraft(m, dir)
				if err != nil {
					yield(Draft{}, atLine(err, i+1, line))
					return
				}
				current = next
				continue
			}

			if current == nil {
				yield(Draft{}, &ParseError{Line: i + 1, Text: line, Err: ErrNoMessageContext})
				return
			}
			if err := current.apply(line); err != nil {
				yield(Draft{}, atLine(err, i+1, line))
				return
			}
		}

		if current != nil {
			yield(current.d, nil)
		}
	}
}

// openDraft starts a message from a header line match.
func openDraft(m []string, dir *Directory) (*draftBuilder, error) {
	seconds, err := ConvertTimestamp(m[1])
	if err != nil {
		return nil, err
	}
	speaker := dir.Resolve(strings.TrimSpace(m[2]))
	return &draftBuilder{d: Draft{
		Timestamp:    seconds,
		Speaker:      speaker,
		Organization: ClassifyOrganization(speaker, m[3]).Value(),
	}}, nil
}

// atLine sets line context on a ParseError produced by a helper.
func atLine(err error, line int, text string) error {
	if pe, ok := err.(*ParseError); ok {
		cp := *pe
		cp.Line = line
		cp.Text = text
		return &cp
	}
	return &ParseError{Line: line, Text: text, Err: err}
}
