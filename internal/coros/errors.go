package coros

import (
	"errors"
	"fmt"
)

// Errors returned by the COROS client.
//
// Callers distinguish them with errors.Is:
//
//	if errors.Is(err, coros.ErrAPI) {
//	    // vendor rejected the request; skip this resource
//	}
var (
	// ErrMissingToken is returned by NewClient when no access token is configured.
	ErrMissingToken = errors.New("COROS access token not set")

	// ErrAPI is returned when the response envelope carries a non-success result code.
	ErrAPI = errors.New("COROS API error")

	// ErrHTTP is returned when the server answers with an HTTP error status.
	ErrHTTP = errors.New("COROS HTTP error")

	// ErrDecode is returned when the response body is not a valid envelope.
	ErrDecode = errors.New("invalid COROS response")
)

// APIError carries the envelope code and message of a rejected request.
type APIError struct {
	Endpoint string
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: result %s: %s", e.Endpoint, e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrAPI.
func (e *APIError) Unwrap() error {
	return ErrAPI
}

// HTTPError carries the status of a failed HTTP exchange.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrHTTP.
func (e *HTTPError) Unwrap() error {
	return ErrHTTP
}
