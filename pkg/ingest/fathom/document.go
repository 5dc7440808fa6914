package fathom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxLineSize bounds a single transcript line.
const maxLineSize = 1 << 20

// Document is a parsed standalone export.
type Document struct {
	Name      string
	Header    TranscriptHeader
	Recording Recording

	// Body holds the raw lines after the "---" separator.
	Body     []string
	Messages []Message
}

// ParseDocument parses a standalone export: header first, then the body
// through the state machine and assembler. Errors carry name and the line
// number within lines.
func ParseDocument(name string, lines []string, dir *Directory, opts ...HeaderOption) (*Document, error) {
	header, err := ExtractHeader(lines, opts...)
	if err != nil {
		return nil, withDocument(err, name)
	}
	id, err := RecordingIDFromURL(header.RecordingURL)
	if err != nil {
		return nil, withDocument(err, name)
	}

	doc := &Document{
		Name:   name,
		Header: *header,
		Recording: Recording{
			ID:    id,
			URL:   header.RecordingURL,
			Title: header.Title,
			Date:  header.Date,
		},
		Body: lines[header.BodyStart:],
	}

	doc.Messages, err = Collect(Assemble(ParseLines(doc.Body, dir), doc.Recording))
	if err != nil {
		return nil, withDocument(offsetLine(err, header.BodyStart), name)
	}
	return doc, nil
}

// offsetLine shifts a body-relative line number to a document line number.
func offsetLine(err error, offset int) error {
	var pe *ParseError
	if offset == 0 || !errors.As(err, &pe) || pe.Line == 0 {
		return err
	}
	cp := *pe
	cp.Line += offset
	return &cp
}

// Webhook converts the document into the payload shape Fathom posts, so
// historical exports can be replayed through webhook intake.
func (d *Document) Webhook(id int, user FathomUser) *Webhook {
	return &Webhook{
		ID: id,
		Recording: WebhookRecord{
			URL:               d.Header.RecordingURL,
			DurationInMinutes: d.Header.DurationMinutes,
		},
		Meeting: Meeting{
			ScheduledStartTime: d.Header.Date,
			JoinURL:            BackfillJoinURL,
			Title:              d.Header.Title,
		},
		FathomUser: user,
		Transcript: WebhookContent{Plaintext: d.Plaintext()},
	}
}

// FileName returns the JSONL output name, in the same form as
// Webhook.FileName.
func (d *Document) FileName() string {
	return outputFileName(d.Recording.Date, d.Recording.ID, d.Recording.Title)
}

// BackfillJoinURL marks meetings replayed from exports.
const BackfillJoinURL = "fathom-etl-backfill"

// Plaintext returns the body with leading blank lines dropped, joined by "\n".
func (d *Document) Plaintext() string {
	body := d.Body
	for len(body) > 0 && strings.TrimSpace(body[0]) == "" {
		body = body[1:]
	}
	return strings.Join(body, "\n")
}

// ReadLines reads r as UTF-8 text, dropping a leading byte order mark and
// line terminators.
func ReadLines(r io.Reader) ([]string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(r, decoder))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return lines, nil
}

// ReadFile reads the lines of the export at path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadLines(f)
}
