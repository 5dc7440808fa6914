package fathom

import (
	"errors"
	"fmt"
	"strings"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
)

// Parse errors. All of them abort the current document and satisfy
// pferrors.IsValidation.
var (
	ErrMissingTitle             = fmt.Errorf("%w: title not found", pferrors.ErrValidation)
	ErrMissingDate              = fmt.Errorf("%w: date not found", pferrors.ErrValidation)
	ErrMissingURL               = fmt.Errorf("%w: recording url not found", pferrors.ErrValidation)
	ErrInvalidTimestamp         = fmt.Errorf("%w: invalid timestamp format", pferrors.ErrValidation)
	ErrInvalidWatchLink         = fmt.Errorf("%w: invalid watch link", pferrors.ErrValidation)
	ErrNoMessageContext         = fmt.Errorf("%w: no message context for this line", pferrors.ErrValidation)
	ErrUnrecognizedRecordingURL = fmt.Errorf("%w: could not parse recording url", pferrors.ErrValidation)
	ErrNoSpeakers               = fmt.Errorf("%w: speakers not found in roster", pferrors.ErrValidation)
)

// ParseError locates a fatal parse failure within a document.
type ParseError struct {
	// Document is the path or name of the offending document, if known.
	Document string
	// Line is the 1-based line number within the parsed lines, 0 if not tied to a line.
	Line int
	// Text is the offending line.
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Document != "" {
		b.WriteString(e.Document)
		b.WriteString(": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Err.Error())
	if e.Text != "" {
		fmt.Fprintf(&b, ": %q", e.Text)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// withDocument attaches a document name to err, keeping any line context.
func withDocument(err error, document string) error {
	if err == nil || document == "" {
		return err
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		if pe.Document != "" {
			return err
		}
		cp := *pe
		cp.Document = document
		return &cp
	}
	return &ParseError{Document: document, Err: err}
}
