package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestCheckStatus_2xx(t *testing.T) {
	assert.NoError(t, CheckStatus(newResponse(http.StatusOK, "")))
	assert.NoError(t, CheckStatus(newResponse(http.StatusNoContent, "")))
}

func TestCheckStatus_NotFound(t *testing.T) {
	err := CheckStatus(newResponse(http.StatusNotFound, "no such file"))
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "no such file", statusErr.Body)
	assert.False(t, statusErr.IsServerError())
	assert.Equal(t, "unexpected status 404: no such file", err.Error())
}

func TestCheckStatus_TruncatesBody(t *testing.T) {
	err := CheckStatus(newResponse(http.StatusInternalServerError, strings.Repeat("x", maxErrorBody*2)))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Len(t, statusErr.Body, maxErrorBody)
	assert.True(t, statusErr.IsServerError())
}

func TestStatusError_EmptyBody(t *testing.T) {
	err := &StatusError{StatusCode: 503}
	assert.Equal(t, "unexpected status 503", err.Error())
}
