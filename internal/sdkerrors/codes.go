// Package sdkerrors provides the SDK's error taxonomy.
//
// # Error Code Naming Convention
//
// All public error codes follow UPPER_SNAKE_CASE format without prefix:
//   - MISSING_CONFIGURATION (correct)
//   - ERR_MISSING_CONFIGURATION (incorrect - no ERR_ prefix)
//
// Callers should prefer errors.Is/errors.As with the sentinel constructors in
// this package over string-comparing Code.
package sdkerrors

// Central error code constants.
const (
	// CodeMissingConfiguration indicates a required credential or path was
	// absent at construction time.
	CodeMissingConfiguration = "MISSING_CONFIGURATION"

	// CodeAPIRequestError indicates the ingestion service returned a
	// non-2xx response.
	CodeAPIRequestError = "API_REQUEST_ERROR"

	// CodeUsageLimitExceeded indicates a triggered limit with
	// threshold_type=limit matched the call.
	CodeUsageLimitExceeded = "USAGE_LIMIT_EXCEEDED"

	// CodeNoCostsTracked indicates a 2xx response whose cost_events array
	// was empty.
	CodeNoCostsTracked = "NO_COSTS_TRACKED"

	// CodeDeliveryTransient indicates a network/5xx failure that exhausted
	// its retry budget.
	CodeDeliveryTransient = "DELIVERY_TRANSIENT"

	// CodeDeliveryFatal indicates a persistent-queue row exceeded its
	// max_retries and was dropped.
	CodeDeliveryFatal = "DELIVERY_FATAL"
)

// allCodes is a registry of all valid error codes.
var allCodes = map[string]struct{}{
	CodeMissingConfiguration: {},
	CodeAPIRequestError:      {},
	CodeUsageLimitExceeded:   {},
	CodeNoCostsTracked:       {},
	CodeDeliveryTransient:    {},
	CodeDeliveryFatal:        {},
}

// IsValidCode checks if the provided code is a valid registered error code.
func IsValidCode(code string) bool {
	_, ok := allCodes[code]
	return ok
}

// GetAllCodes returns a slice of all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(allCodes))
	for code := range allCodes {
		codes = append(codes, code)
	}
	return codes
}
