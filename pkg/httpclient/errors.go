package httpclient

import (
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// StatusError reports a response whose status code is outside 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsServerError reports whether the status is a 5xx.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500
}

// CheckStatus returns nil for a 2xx response. Otherwise it consumes and
// closes the body and returns a *StatusError.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return newStatusError(resp)
}

func newStatusError(resp *http.Response) *StatusError {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		body = nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
