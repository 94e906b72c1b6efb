package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("disk read failed")

	vaultErr := New(ErrCodeStore, "failed to read item", originalErr)

	assert.Equal(t, originalErr, errors.Unwrap(vaultErr))
}

func TestVaultError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "not found error",
			code:     ErrCodeNotFound,
			message:  "item 42 not found",
			expected: "[ERR_101_NOT_FOUND] item 42 not found",
		},
		{
			name:     "duplicate hash error",
			code:     ErrCodeDuplicateHash,
			message:  "content already ingested",
			expected: "[ERR_104_DUPLICATE_HASH] content already ingested",
		},
		{
			name:     "network timeout error",
			code:     ErrCodeNetworkTimeout,
			message:  "request timed out",
			expected: "[ERR_303_NETWORK_TIMEOUT] request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestVaultError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeNotFound, "item A not found", nil)
	err2 := New(ErrCodeNotFound, "item B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestVaultError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeNotFound, "item not found", nil)
	err2 := New(ErrCodeStore, "store failed", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestVaultError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeDuplicateHash, "content already ingested", nil)

	err.WithDetail("existing_id", "7")

	assert.Equal(t, "7", err.Details["existing_id"])
}

func TestVaultError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeNetworkTimeout, "connection timed out", nil)

	err.WithSuggestion("check that Ollama is running")

	assert.Equal(t, "check that Ollama is running", err.Suggestion)
}

func TestVaultError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeNotFound, CategoryValidation},
		{ErrCodeUnsupportedType, CategoryValidation},
		{ErrCodeStore, CategoryStore},
		{ErrCodeIndexCorruption, CategoryStore},
		{ErrCodeEmbed, CategoryRemote},
		{ErrCodeLLMParse, CategoryRemote},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeFileNotFound, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.expected, err.Category)
		})
	}
}

func TestVaultError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Severity
	}{
		{ErrCodeIndexCorruption, SeverityFatal},
		{ErrCodeNotFound, SeverityError},
		{ErrCodeNetworkTimeout, SeverityWarning},
		{ErrCodeEmbed, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.expected, err.Severity)
		})
	}
}

func TestVaultError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected bool
	}{
		{ErrCodeEmbed, true},
		{ErrCodeNetworkTimeout, true},
		{ErrCodeNetworkUnavailable, true},
		{ErrCodeNotFound, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeIndexCorruption, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.expected, err.Retryable)
		})
	}
}

func TestWrap_CreatesVaultErrorFromError(t *testing.T) {
	originalErr := errors.New("boom")

	vaultErr := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, vaultErr)
	assert.Equal(t, ErrCodeInternal, vaultErr.Code)
	assert.Equal(t, "boom", vaultErr.Message)
	assert.Equal(t, originalErr, vaultErr.Cause)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestNotFound_BuildsNotFoundKind(t *testing.T) {
	err := NotFound("source path does not exist")
	assert.Equal(t, ErrCodeNotFound, err.Code)
	assert.Equal(t, CategoryValidation, err.Category)
}

func TestUnsupportedType_BuildsUnsupportedTypeKind(t *testing.T) {
	err := UnsupportedType("application/x-msdownload")
	assert.Equal(t, ErrCodeUnsupportedType, err.Code)
	assert.Contains(t, err.Message, "application/x-msdownload")
}

func TestEmptyContent_BuildsEmptyContentKind(t *testing.T) {
	err := EmptyContent("/tmp/blank.txt")
	assert.Equal(t, ErrCodeEmptyContent, err.Code)
	assert.Contains(t, err.Message, "/tmp/blank.txt")
}

func TestDuplicateHash_CarriesExistingID(t *testing.T) {
	err := DuplicateHash(42)

	assert.Equal(t, ErrCodeDuplicateHash, err.Code)
	assert.Equal(t, "42", err.Details["existing_id"])

	id, ok := DuplicateHashExistingID(err)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestDuplicateHashExistingID_FalseForOtherErrors(t *testing.T) {
	_, ok := DuplicateHashExistingID(NotFound("nope"))
	assert.False(t, ok)

	_, ok = DuplicateHashExistingID(errors.New("plain"))
	assert.False(t, ok)
}

func TestIndexCorruption_IsFatal(t *testing.T) {
	err := IndexCorruption("hnsw graph unreadable", nil)
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
}

func TestEmbedError_IsRetryable(t *testing.T) {
	err := EmbedError("ollama unreachable", nil)
	assert.True(t, IsRetryable(err))
}

func TestIsRetryable_FalseForPlainErrors(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal_FalseForPlainErrors(t *testing.T) {
	assert.False(t, IsFatal(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestGetCode_ReturnsEmptyForNonVaultError(t *testing.T) {
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestGetCategory_ReturnsEmptyForNonVaultError(t *testing.T) {
	assert.Equal(t, Category(""), GetCategory(errors.New("plain")))
}

func TestIsNotFound_MatchesNotFoundKind(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("missing")))
	assert.False(t, IsNotFound(StoreError("boom", nil)))
}

func TestIsDuplicateHash_MatchesDuplicateHashKind(t *testing.T) {
	assert.True(t, IsDuplicateHash(DuplicateHash(1)))
	assert.False(t, IsDuplicateHash(NotFound("missing")))
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid chunk_size", nil)
	assert.Equal(t, CategoryConfig, err.Category)
}
