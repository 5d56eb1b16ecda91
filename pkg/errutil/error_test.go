package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseErrorMessage(t *testing.T) {
	err := NotFound("task not found")
	require.Equal(t, "[not_found] task not found", err.Error())

	wrapped := Internal("failed to store task", WithErr(errors.New("disk full")))
	require.Equal(t, "[internal] failed to store task: disk full", wrapped.Error())
	require.EqualError(t, errors.Unwrap(wrapped.(BaseError)), "disk full")
}

func TestHasStatus(t *testing.T) {
	err := BadRequest("invalid schedule parameters")
	require.True(t, HasStatus(err, StatusBadRequest))
	require.False(t, HasStatus(err, StatusNotFound))
	require.False(t, HasStatus(errors.New("plain"), StatusBadRequest))
	require.False(t, HasStatus(nil, StatusBadRequest))

	// status survives wrapping
	require.True(t, HasStatus(fmt.Errorf("context: %w", err), StatusBadRequest))
}

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusBadRequest.HTTPStatus())
	require.Equal(t, http.StatusBadRequest, StatusValidationFailed.HTTPStatus())
	require.Equal(t, http.StatusUnsupportedMediaType, StatusUnsupportedMediaType.HTTPStatus())
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusBadGateway, StatusBadGateway.HTTPStatus())
	require.Equal(t, http.StatusGatewayTimeout, StatusTimeout.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, StatusInternal.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, StatusUnknown.HTTPStatus())
}
