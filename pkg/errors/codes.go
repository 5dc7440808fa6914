package errors

// codeInfo is the operator-facing metadata for an ErrorCode.
type codeInfo struct {
	retryable   bool
	description string
	action      string
}

var codeTable = map[ErrorCode]codeInfo{
	ErrTimeout: {true, "Operation exceeded time limit",
		"Raise the timeout: fathom-etl parse --timeout 5m"},
	ErrContextCancelled: {false, "Operation cancelled by user or system",
		"Re-run the batch; completed files are rewritten idempotently"},
	ErrParseError: {false, "Transcript is malformed",
		"Fix the export at the reported line and re-run: fathom-etl parse <file>"},
	ErrEmptyContent: {false, "Transcript has no messages",
		"Check that the export contains a --- separator followed by timestamped lines"},
	ErrDuplicateContent: {false, "Message already stored",
		"No action needed; messages are upserted by id"},
	ErrStorageUnavailable: {true, "Database could not be reached",
		"Check postgres/cassandra settings: fathom-etl config show"},
	ErrPublishFailed: {true, "Event could not be published",
		"Check redis settings: fathom-etl config show"},
	ErrProcessingError: {false, "Unclassified processing error",
		"Re-run with --debug and inspect the log entry for the file"},
}

// IsRetryable reports whether code names a transient failure. Unknown codes
// are not retryable.
func IsRetryable(code ErrorCode) bool {
	return codeTable[code].retryable
}

// GetSuggestedAction returns the operator hint printed next to a failed file.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := codeTable[code]; ok {
		return info.action
	}
	return "Re-run with --debug for more details"
}

func GetDescription(code ErrorCode) string {
	if info, ok := codeTable[code]; ok {
		return info.description
	}
	return "Unknown error"
}
