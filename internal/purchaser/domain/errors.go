package domain

import (
	"errors"
	"fmt"
)

// Configuration errors are fatal and surface synchronously at construction.
var (
	// ErrMissingAPIKey indicates a blank backend API key.
	ErrMissingAPIKey = errors.New("api key must be set")

	// ErrMissingBaseURL indicates a blank backend base URL.
	ErrMissingBaseURL = errors.New("backend base url must be set")

	// ErrMissingCache indicates no device cache repository was supplied.
	ErrMissingCache = errors.New("device cache repository must be set")

	// ErrMissingBackend indicates no backend gateway was supplied.
	ErrMissingBackend = errors.New("backend gateway must be set")

	// ErrMissingStore indicates no billing store wrapper was supplied.
	ErrMissingStore = errors.New("billing store wrapper must be set")
)

// ErrorDomain tags which collaborator produced a recoverable error.
type ErrorDomain string

const (
	// ErrorDomainBackend covers transport failures, HTTP statuses >= 300
	// and payload parse failures from the validation backend.
	ErrorDomainBackend ErrorDomain = "backend"
	// ErrorDomainStore covers billing-provider response codes.
	ErrorDomainStore ErrorDomain = "store"
	// ErrorDomainAPI covers misuse of this library's own API.
	ErrorDomainAPI ErrorDomain = "api"
)

// API error codes.
const (
	// APIErrorDuplicatePurchase rejects a second purchase for a product
	// whose first purchase is still pending.
	APIErrorDuplicatePurchase = iota
	// APIErrorIdentityChanged fails pending callbacks dropped by an
	// identify or reset call.
	APIErrorIdentityChanged
)

// Error is a recoverable error surfaced to callers. Code carries the HTTP
// status for backend errors, the provider response code for store errors and
// an APIError constant for api errors. Zero Code on a backend error means
// the request never reached the server.
type Error struct {
	Domain  ErrorDomain
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Domain, e.Code, e.Message)
}

// NewBackendError creates a backend-domain error.
func NewBackendError(code int, message string) *Error {
	return &Error{Domain: ErrorDomainBackend, Code: code, Message: message}
}

// NewStoreError creates a store-domain error.
func NewStoreError(code int, message string) *Error {
	return &Error{Domain: ErrorDomainStore, Code: code, Message: message}
}

// NewAPIError creates an api-domain error.
func NewAPIError(code int, message string) *Error {
	return &Error{Domain: ErrorDomainAPI, Code: code, Message: message}
}
