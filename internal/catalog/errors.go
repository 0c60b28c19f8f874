package catalog

import (
	"errors"
	"fmt"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ErrMalformedCatalog is wrapped by RetrievalError when the document does not
// match the expected schema.
var ErrMalformedCatalog = errors.New("malformed catalog")

// RetrievalError reports a failed catalog fetch: network failure, non-2xx
// status or a malformed body. It is retryable by the caller.
type RetrievalError struct {
	// StatusCode is the HTTP status when the server answered, otherwise 0.
	StatusCode int
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("failed to fetch products: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// IsRetrievalError reports whether err is or wraps a *RetrievalError.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}

// AsAppError maps err to the 503 response shown with a retry affordance.
// Other errors pass through unchanged.
func AsAppError(err error) error {
	if !IsRetrievalError(err) {
		return err
	}
	return apperrors.Unavailable("CATALOG_UNAVAILABLE", "the product catalog could not be loaded, please retry", err)
}

var errNotLoaded = errors.New("catalog not loaded yet")
