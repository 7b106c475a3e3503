package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorDefaults(t *testing.T) {
	err := NewError(ErrCodePathEscape, "path escapes base")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodePathEscape, err.Code)
	assert.Equal(t, CategoryPath, err.Category)
	assert.False(t, err.Retryable)
	assert.Equal(t, "path escapes base", err.Message)
}

func TestRetryableDefaults(t *testing.T) {
	assert.True(t, IsRetryableByDefault(ErrCodeConnectionTimeout))
	assert.True(t, IsRetryableByDefault(ErrCodeNetworkError))
	assert.False(t, IsRetryableByDefault(ErrCodePathEscape))
	assert.False(t, IsRetryableByDefault(ErrCodeBlockedOutputDir))
}

func TestGetCategory(t *testing.T) {
	cases := map[ErrorCode]ErrorCategory{
		ErrCodeInvalidPath:            CategoryPath,
		ErrCodeCollectionFailed:       CategoryAcquire,
		ErrCodeRegexInvalid:           CategoryWalk,
		ErrCodeMemoryTooLarge:         CategoryMemory,
		ErrCodeUploadRetriesExhausted: CategoryUpload,
		ErrCodeZipEncodeError:         CategoryEncoding,
		ErrCodeInvalidConfig:          CategoryConfig,
		ErrCodeWorkerBusy:             CategoryResource,
		ErrCodeUnknownError:           CategoryInternal,
	}
	for code, want := range cases {
		assert.Equal(t, want, GetCategory(code), "code %s", code)
	}
}

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := stderrors.New("boom")
	err := NewError(ErrCodeOpenFailed, "could not open").WithCause(cause)

	assert.ErrorIs(t, err, cause)

	other := NewError(ErrCodeOpenFailed, "different message")
	assert.True(t, err.Is(other))

	different := NewError(ErrCodePathEscape, "different code")
	assert.False(t, err.Is(different))
}

func TestBuilderChain(t *testing.T) {
	err := NewError(ErrCodeUploadFailed, "part upload failed").
		WithComponent("upload.s3").
		WithOperation("UploadPart").
		WithArtifact("MFT").
		WithContext("bucket", "triage-bucket").
		WithDetail("part_number", 3).
		WithRetryable(true)

	assert.Equal(t, "upload.s3", err.Component)
	assert.Equal(t, "UploadPart", err.Operation)
	assert.Equal(t, "MFT", err.Artifact)
	assert.Equal(t, "triage-bucket", err.Context["bucket"])
	assert.Equal(t, 3, err.Details["part_number"])
	assert.True(t, err.Retryable)

	assert.Contains(t, err.Error(), "upload.s3:UploadPart")
	assert.Contains(t, err.String(), "Retryable=true")
	assert.Contains(t, err.JSON(), `"code":"UPLOAD_FAILED"`)
}

func TestCaptureStack(t *testing.T) {
	stack := CaptureStack(0)
	assert.NotEmpty(t, stack)
}
