// Package errors holds the sentinel errors and pipeline error codes shared
// by the parser, the batch processor and the webhook intake.
//
//	import pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
//
//	if pferrors.IsValidation(err) {
//	    // malformed transcript; retrying will not help
//	}
package errors

import "errors"

var (
	// ErrValidation marks malformed input. Every transcript parse error
	// wraps it.
	ErrValidation = errors.New("validation error")

	// ErrConflict marks content that was already ingested.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized marks a webhook delivery whose signature did not verify.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsUnauthorized reports whether err wraps ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
