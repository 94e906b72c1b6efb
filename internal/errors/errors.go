package errors

import (
	"fmt"
)

// VaultError is the structured error type for Black Vault. It carries
// enough context for the HTTP layer to pick a status code, for the CLI to
// choose an exit code, and for logs to record structured detail instead of
// a flat message.
type VaultError struct {
	// Code is the unique error code (e.g. "ERR_104_DUPLICATE_HASH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category classifies the error for status-code mapping.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs. DuplicateHash
	// errors carry the existing item id in Details["existing_id"].
	Details map[string]string

	// Cause is the underlying error that produced this one.
	Cause error

	// Retryable indicates whether the operation is worth retrying.
	Retryable bool

	// Suggestion is an actionable hint surfaced to CLI/HTTP callers.
	Suggestion string
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is() to match VaultErrors by code.
func (e *VaultError) Is(target error) bool {
	if t, ok := target.(*VaultError); ok {
		return e.Code == t.Code
	}
	return false
}

func (e *VaultError) WithDetail(key, value string) *VaultError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *VaultError) WithSuggestion(suggestion string) *VaultError {
	e.Suggestion = suggestion
	return e
}

// New creates a VaultError with category/severity/retryable derived from
// the code.
func New(code string, message string, cause error) *VaultError {
	return &VaultError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a VaultError from an existing error, reusing its message.
func Wrap(code string, err error) *VaultError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound builds the NotFound error kind for a missing source path or item.
func NotFound(message string) *VaultError {
	return New(ErrCodeNotFound, message, nil)
}

// UnsupportedType builds the UnsupportedType error kind.
func UnsupportedType(mime string) *VaultError {
	return New(ErrCodeUnsupportedType, fmt.Sprintf("unsupported MIME type: %s", mime), nil)
}

// EmptyContent builds the EmptyContent error kind.
func EmptyContent(path string) *VaultError {
	return New(ErrCodeEmptyContent, fmt.Sprintf("no extractable text in %s", path), nil)
}

// DuplicateHash builds the DuplicateHash error kind, carrying the existing
// item id so ingestion callers can surface it as a success-shaped response.
func DuplicateHash(existingID int64) *VaultError {
	return New(ErrCodeDuplicateHash, "content already ingested", nil).
		WithDetail("existing_id", fmt.Sprintf("%d", existingID))
}

// DuplicateHashExistingID extracts the existing item id from a DuplicateHash
// error, returning false if err is not one.
func DuplicateHashExistingID(err error) (int64, bool) {
	ve, ok := err.(*VaultError)
	if !ok || ve.Code != ErrCodeDuplicateHash {
		return 0, false
	}
	var id int64
	if _, scanErr := fmt.Sscanf(ve.Details["existing_id"], "%d", &id); scanErr != nil {
		return 0, false
	}
	return id, true
}

// StoreError wraps an underlying database/index failure.
func StoreError(message string, cause error) *VaultError {
	return New(ErrCodeStore, message, cause)
}

// IndexCorruption marks an ANN/text index as unrecoverable without a
// rebuild; the Store's self-heal path catches this and retries once.
func IndexCorruption(message string, cause error) *VaultError {
	return New(ErrCodeIndexCorruption, message, cause)
}

// EmbedError wraps an embedding-service failure.
func EmbedError(message string, cause error) *VaultError {
	return New(ErrCodeEmbed, message, cause)
}

// LLMParseError wraps a chat-model JSON parse failure. Callers treat this as
// non-fatal: enrichment skips the chunk, intent parsing falls back to the
// raw query.
func LLMParseError(message string, cause error) *VaultError {
	return New(ErrCodeLLMParse, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *VaultError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IsRetryable reports whether err is a VaultError with Retryable set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ve, ok := err.(*VaultError); ok {
		return ve.Retryable
	}
	return false
}

// IsFatal reports whether err is a VaultError with fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ve, ok := err.(*VaultError); ok {
		return ve.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err is not a VaultError.
func GetCode(err error) string {
	if ve, ok := err.(*VaultError); ok {
		return ve.Code
	}
	return ""
}

// GetCategory extracts the category, or "" if err is not a VaultError.
func GetCategory(err error) Category {
	if ve, ok := err.(*VaultError); ok {
		return ve.Category
	}
	return ""
}

// IsNotFound reports whether err is the NotFound kind.
func IsNotFound(err error) bool { return GetCode(err) == ErrCodeNotFound }

// IsDuplicateHash reports whether err is the DuplicateHash kind.
func IsDuplicateHash(err error) bool { return GetCode(err) == ErrCodeDuplicateHash }
