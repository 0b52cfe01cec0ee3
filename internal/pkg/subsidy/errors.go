package subsidy

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/enterprise-access/access-api/internal/pkg/apiclient"
)

var ErrSubsidyNotFound = errors.New("subsidy not found")

// APIError is a failed ledger call. It is never retried here.
type APIError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Subsidy Transaction API error: %s", e.Detail)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCodeString renders the upstream status for response bodies.
func (e *APIError) StatusCodeString() string {
	return strconv.Itoa(e.StatusCode)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *apiclient.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{StatusCode: httpErr.StatusCode, Detail: httpErr.Detail(), Err: err}
	}
	return &APIError{Detail: err.Error(), Err: err}
}
