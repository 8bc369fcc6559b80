package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsOriginalCode(t *testing.T) {
	base := New(ErrKBInvalidChunkConfig, "chunk overlap must be less than chunk size")
	wrapped := Wrap(fmt.Errorf("preview: %w", base), ErrInternalServer)

	assert.Equal(t, ErrKBInvalidChunkConfig, wrapped.Code)
	assert.Equal(t, http.StatusBadRequest, wrapped.HTTPStatus())
	assert.True(t, Is(wrapped, ErrKBInvalidChunkConfig))
}

func TestWrapPlainError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrKBVectorStoreFailed, "insert")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert", GetDetails(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, Wrap(nil, ErrInternalServer))
}

func TestExtractCode(t *testing.T) {
	assert.Equal(t, ErrInternalServer, ExtractCode(errors.New("x")))
	assert.Equal(t, ErrThreadNotFound, ExtractCode(New(ErrThreadNotFound)))
}

func TestGetCodeUnknown(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(99999))
	assert.True(t, IsClientError(ErrKBPolicyDenied))
	assert.Equal(t, "Invalid chunking config: bad", FormatError(ErrKBInvalidChunkConfig, "bad"))
}
