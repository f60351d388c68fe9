package worldapi

import (
	"errors"
	"fmt"
)

// FailureClass buckets a failed call for history weighting and detectors.
type FailureClass string

const (
	FailureNetwork FailureClass = "network" // no response at all
	FailureAuth    FailureClass = "auth"    // 401-class, triggers re-registration
	FailureClient  FailureClass = "client"  // other 4xx
	FailureServer  FailureClass = "server"  // 5xx
)

// APIError is the structured failure detail of one HTTP call.
type APIError struct {
	Endpoint string
	Class    FailureClass
	Status   int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: HTTP %d (%s): %s", e.Endpoint, e.Status, e.Class, e.Body)
	}
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Class, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Classify extracts the failure class of an error, or "" for nil/foreign errors.
func Classify(err error) FailureClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	if err != nil {
		return FailureNetwork
	}
	return ""
}

// IsAuthFailure reports whether err is the 401-class rejection that should
// push a member into the re-registration flow.
func IsAuthFailure(err error) bool {
	return Classify(err) == FailureAuth
}

// Detail returns the structured APIError behind err, if any.
func Detail(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func classifyStatus(status int) FailureClass {
	switch {
	case status == 401:
		return FailureAuth
	case status >= 500:
		return FailureServer
	default:
		return FailureClient
	}
}
