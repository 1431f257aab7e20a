package httpdispatcher

import (
	"errors"
	"net"

	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
)

// isRetryable classifies dispatcher errors per the spec's retry policy:
// network errors, timeouts, and HTTP >= 500 are retryable; any 4xx and
// malformed bodies are terminal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *sdkerrors.APIRequestError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Connection-level failures (refused, reset, DNS) and response-body
	// read errors surface as plain errors here; treat them as transient
	// network conditions and retry.
	return true
}
