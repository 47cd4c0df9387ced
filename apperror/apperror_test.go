package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NewValidationError("v", nil), http.StatusUnprocessableEntity},
		{NewConflictError("c", nil), http.StatusUnprocessableEntity},
		{NewAuthError("a", nil), http.StatusUnauthorized},
		{NewForbiddenError("f", nil), http.StatusForbidden},
		{NewNotFoundError("n", nil), http.StatusNotFound},
		{NewPayloadTooLargeError("p", nil), http.StatusRequestEntityTooLarge},
		{NewBadRequestError("b", nil), http.StatusBadRequest},
		{NewRateLimitedError("r", nil), http.StatusTooManyRequests},
		{NewStorageError("s", nil), http.StatusInternalServerError},
		{NewCryptoError("x", nil), http.StatusInternalServerError},
		{NewUpdateError("u", nil), http.StatusInternalServerError},
		{NewCreationError("c", nil), http.StatusInternalServerError},
		{NewAppError(UnknownError, "?", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Type.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.StatusCode())
		})
	}
}

func TestToResponseHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused on 10.0.0.3")
	appErr := NewUpdateError("Post couldn't be updated.", cause)

	assert.Equal(t, ErrorResponse{Message: "Post couldn't be updated."}, appErr.ToResponse())
	assert.Contains(t, appErr.Error(), "connection refused")
	assert.True(t, errors.Is(appErr, cause))
}

func TestFromErrorLooksThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("editing post: %w", NewForbiddenError("Post couldn't be edited.", nil))

	appErr, ok := FromError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ForbiddenError, appErr.Type)
	assert.True(t, IsForbidden(wrapped))
	assert.False(t, IsNotFound(wrapped))

	_, ok = FromError(errors.New("plain"))
	assert.False(t, ok)
	_, ok = FromError(nil)
	assert.False(t, ok)
}
