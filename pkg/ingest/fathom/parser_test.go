package fathom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestConvertTimestamp(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"1:02:03", 3723},
		{"2:03", 123},
		{"0:00", 0},
		{"10:00", 600},
		{"0:05.9", 5},
		{"12:00:00", 43200},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ConvertTimestamp(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestConvertTimestamp_Invalid(t *testing.T) {
	for _, input := range []string{
		"1:2:3:4", "42", "", "a:bc", "1:xx",
		"-1:30", "1:NaN", "1:+5", "1:Inf", "1:1e5", "1:-05", "1:5.", "99999999999999999999:00",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ConvertTimestamp(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTimestamp)
		})
	}
}

func TestParseLines_Example(t *testing.T) {
	lines := []string{
		"10:00 - Alice (Acme)",
		"Hello team.",
		"ACTION ITEM: follow up",
		"10:05 - Bob",
		"- WATCH: https://x.test/v extra text",
	}

	drafts, err := Collect(ParseLines(lines, NewDirectory(nil)))
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, Draft{
		Timestamp:    600,
		Speaker:      "Alice",
		Organization: ptr("Acme"),
		Message:      "Hello team.",
		ActionItem:   ptr("follow up"),
	}, drafts[0])

	assert.Equal(t, Draft{
		Timestamp: 605,
		Speaker:   "Bob",
		Message:   "extra text",
		WatchLink: ptr("https://x.test/v"),
	}, drafts[1])
}

func TestParseLines_ResolvedSpeakerUsesEmailDomain(t *testing.T) {
	dir := NewDirectory([]Speaker{{Name: "Alice", Email: "alice@chalk.ai"}})
	lines := []string{"10:00 - Alice (Acme)", "Hello team."}

	drafts, err := Collect(ParseLines(lines, dir))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "alice@chalk.ai", drafts[0].Speaker)
	require.NotNil(t, drafts[0].Organization)
	assert.Equal(t, "chalk.ai", *drafts[0].Organization)
}

func TestParseLines_MessageJoining(t *testing.T) {
	lines := []string{
		"",
		"0:00 - Alice",
		"   first   ",
		"",
		"second",
		"- WATCH: https://fathom.video/calls/1?timestamp=3",
		"third",
	}

	drafts, err := Collect(ParseLines(lines, nil))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "first second third", drafts[0].Message)
	assert.Equal(t, "https://fathom.video/calls/1?timestamp=3", *drafts[0].WatchLink)
}

func TestParseLines_WatchRemainderStartsMessage(t *testing.T) {
	lines := []string{
		"0:00 - Alice",
		"- WATCH: http://x.test/v   look here  ",
		"and here",
	}

	drafts, err := Collect(ParseLines(lines, nil))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "look here and here", drafts[0].Message)
}

func TestParseLines_LastActionItemWins(t *testing.T) {
	lines := []string{
		"0:00 - Alice",
		"ACTION ITEM: first",
		"ACTION ITEM:   second  ",
	}

	drafts, err := Collect(ParseLines(lines, nil))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "second", *drafts[0].ActionItem)
	assert.Equal(t, "", drafts[0].Message)
}

func TestParseLines_HeaderWithHoursAndEmailSpeaker(t *testing.T) {
	lines := []string{"1:02:03 - bob@globex.com (Initech)", "hi"}

	drafts, err := Collect(ParseLines(lines, nil))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 3723, drafts[0].Timestamp)
	assert.Equal(t, "bob@globex.com", drafts[0].Speaker)
	assert.Equal(t, "globex.com", *drafts[0].Organization)
}

func TestParseLines_CountMatchesHeaderLines(t *testing.T) {
	lines := []string{
		"0:00 - Alice",
		"one",
		"0:10 - Bob (Globex)",
		"0:20 - Carol",
		"two",
		"three",
		"1:00:00 - Dave",
	}

	headers := 0
	for _, l := range lines {
		if IsHeaderLine(l) {
			headers++
		}
	}

	drafts, err := Collect(ParseLines(lines, nil))
	require.NoError(t, err)
	assert.Equal(t, 4, headers)
	assert.Len(t, drafts, headers)
	assert.Equal(t, "", drafts[1].Message)
	assert.Equal(t, "two three", drafts[2].Message)
}

func TestParseLines_ContentBeforeHeader(t *testing.T) {
	lines := []string{"", "stray text", "0:00 - Alice"}

	var got []Draft
	var errs []error
	for d, err := range ParseLines(lines, nil) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, d)
	}

	assert.Empty(t, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoMessageContext)

	var pe *ParseError
	require.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, "stray text", pe.Text)
	assert.Contains(t, errs[0].Error(), "no message context for this line")
}

func TestParseLines_InvalidWatchLink(t *testing.T) {
	tests := []string{
		"- WATCH:",
		"- WATCH: not-a-url",
		"- WATCH: ftp://x.test/v",
	}

	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			_, err := Collect(ParseLines([]string{"0:00 - Alice", line}, nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidWatchLink)
			assert.Contains(t, err.Error(), "watch link")
		})
	}
}

func TestParseLines_ErrorStopsSequence(t *testing.T) {
	lines := []string{
		"0:00 - Alice",
		"hello",
		"0:10 - Bob",
		"- WATCH: nope",
		"0:20 - Carol",
	}

	var drafts []Draft
	var errCount int
	for d, err := range ParseLines(lines, nil) {
		if err != nil {
			errCount++
			continue
		}
		drafts = append(drafts, d)
	}

	require.Len(t, drafts, 1)
	assert.Equal(t, "Alice", drafts[0].Speaker)
	assert.Equal(t, 1, errCount)
}

func TestParseLines_EarlyBreak(t *testing.T) {
	lines := []string{"0:00 - Alice", "0:01 - Bob", "0:02 - Carol"}

	var speakers []string
	for d, err := range ParseLines(lines, nil) {
		require.NoError(t, err)
		speakers = append(speakers, d.Speaker)
		if len(speakers) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"Alice", "Bob"}, speakers)
}

func TestParseLines_Empty(t *testing.T) {
	drafts, err := Collect(ParseLines([]string{"", "   "}, nil))
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestParseWatchLink(t *testing.T) {
	wl, err := ParseWatchLink("- WATCH: https://fathom.video/calls/1?timestamp=12.5   see the demo ")
	require.NoError(t, err)
	assert.Equal(t, "https://fathom.video/calls/1?timestamp=12.5", wl.URL)
	assert.Equal(t, "see the demo", wl.Remainder)
}

func TestIsHeaderLine(t *testing.T) {
	tests := []struct {
		line     string
		expected bool
	}{
		{"10:00 - Alice (Acme)", true},
		{"  0:05 - Bob  ", true},
		{"1:02:03 - Carol Jones", true},
		{"100:00 - Too Many Digits", false},
		{"10:00 -Alice", false},
		{"Hello 10:00 - Alice", false},
		{"- WATCH: https://x.test", false},
	}

	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsHeaderLine(tc.line))
		})
	}
}

func TestSpeakerLabels(t *testing.T) {
	lines := []string{
		"0:00 - Alice Smith (Acme)",
		"  Hello.",
		"0:05 - bob@example.com",
		"0:09 - Alice Smith (Acme)",
		"  not a header 0:10 - Carol",
	}
	assert.Equal(t, []string{"Alice Smith", "bob@example.com"}, SpeakerLabels(lines))
	assert.Empty(t, SpeakerLabels(nil))
}
