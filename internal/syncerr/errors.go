// internal/syncerr/errors.go
package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSyncInProgress is returned when a sync for the same account is already running.
var ErrSyncInProgress = errors.New("a sync is already running for this account")

// ConfigError reports an empty or invalid source configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration (%s): %s", e.Field, e.Reason)
}

// TransportError is a failure below HTTP: DNS, dial, TLS, reset, timeout.
// It is the only kind that makes the fetcher fall back to the relay proxy.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-2xx status, a wrong content type or an undecodable body.
type ProtocolError struct {
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type AuthError struct{ Message string }

func (e *AuthError) Error() string { return e.Message }

type PermissionError struct{ Message string }

func (e *PermissionError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// DownloadError is a non-2xx answer while downloading a file.
type DownloadError struct {
	StatusCode int
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed (%d): %s", e.StatusCode, e.Message)
}

// FormatError means the source answered with something that is not data
// (an HTML page, an empty file, a null body).
type FormatError struct{ Message string }

func (e *FormatError) Error() string { return e.Message }

// ParseError means the content had the right type but could not be read.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnreachableError is a terminal transport failure. For generic sources it
// carries both the direct and the relay failure; other sources have no relay
// and leave Proxy nil.
type UnreachableError struct {
	URL    string
	Direct error
	Proxy  error
}

func (e *UnreachableError) Error() string {
	if e.Proxy == nil {
		return fmt.Sprintf("unable to reach %s: %v", e.URL, e.Direct)
	}
	return fmt.Sprintf("unable to reach %s directly (%v) or through the relay proxy (%v)", e.URL, e.Direct, e.Proxy)
}

func (e *UnreachableError) Unwrap() []error {
	if e.Proxy == nil {
		return []error{e.Direct}
	}
	return []error{e.Direct, e.Proxy}
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StatusMessage maps an HTTP status to the human-readable cause shown to users.
func StatusMessage(status int, surveyHost bool) string {
	switch {
	case status == http.StatusNotFound:
		return "endpoint not found (404), check the URL"
	case status == http.StatusUnauthorized && surveyHost:
		return "unauthorized (401), check your KoBoToolbox token"
	case status == http.StatusUnauthorized:
		return "unauthorized (401), check your authentication token"
	case status == http.StatusForbidden:
		return "access forbidden (403), check your permissions on this resource"
	case status >= 500:
		return fmt.Sprintf("server error (%d), the remote API is having problems", status)
	default:
		return fmt.Sprintf("unexpected HTTP status %d", status)
	}
}

// HTTPStatus picks the status code the API answers with for err.
func HTTPStatus(err error) int {
	var (
		cfgErr   *ConfigError
		authErr  *AuthError
		permErr  *PermissionError
		nfErr    *NotFoundError
		fmtErr   *FormatError
		parseErr *ParseError
		protoErr *ProtocolError
		dlErr    *DownloadError
		unrErr   *UnreachableError
		trErr    *TransportError
	)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &nfErr):
		return http.StatusNotFound
	case errors.As(err, &fmtErr), errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &protoErr), errors.As(err, &dlErr), errors.As(err, &unrErr), errors.As(err, &trErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
