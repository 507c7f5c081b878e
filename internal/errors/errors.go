package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Identity errors (IDENTITY-001 to IDENTITY-099)
	ErrCodeIdentityUnavailable        ErrorCode = "IDENTITY-001"
	ErrCodeIdentityInvalidCredentials ErrorCode = "IDENTITY-002"
	ErrCodeIdentityAccountExists      ErrorCode = "IDENTITY-003"
	ErrCodeIdentityTokenInvalid       ErrorCode = "IDENTITY-004"
	ErrCodeIdentityTokenExpired       ErrorCode = "IDENTITY-005"
	ErrCodeIdentityFieldRequired      ErrorCode = "IDENTITY-006"

	// Profile errors (PROFILE-001 to PROFILE-099)
	ErrCodeProfileNotFound  ErrorCode = "PROFILE-001"
	ErrCodeProfileTransport ErrorCode = "PROFILE-002"
	ErrCodeProfileInvalid   ErrorCode = "PROFILE-003"

	// Tenant errors (TENANT-001 to TENANT-099)
	ErrCodeTenantUnknown          ErrorCode = "TENANT-001"
	ErrCodeTenantNotSaved         ErrorCode = "TENANT-002"
	ErrCodeTenantDirectoryInvalid ErrorCode = "TENANT-003"
	ErrCodeTenantRequired         ErrorCode = "TENANT-004"

	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeSessionStale        ErrorCode = "SESSION-001"
	ErrCodeSessionClosed       ErrorCode = "SESSION-002"
	ErrCodeSessionLogoutFailed ErrorCode = "SESSION-003"

	// Navigation errors (NAV-001 to NAV-099)
	ErrCodeNavUnknownScreen ErrorCode = "NAV-001"

	// Cache errors (CACHE-001 to CACHE-099)
	ErrCodeCacheCorrupt ErrorCode = "CACHE-001"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind int

const (
	// KindInternal is the default for errors without a more specific kind
	KindInternal Kind = iota
	// KindTransport means a store or identity provider call failed (network, service down)
	KindTransport
	// KindNotFound means a record is absent; callers treat it as a valid state
	KindNotFound
	// KindStale means an asynchronous result was superseded and discarded
	KindStale
	// KindInvalid means the caller supplied bad input
	KindInvalid
	// KindAuth means authentication was refused
	KindAuth
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNotFound:
		return "not_found"
	case KindStale:
		return "stale"
	case KindInvalid:
		return "invalid"
	case KindAuth:
		return "auth"
	default:
		return "internal"
	}
}

// CampusError represents an enhanced error with code, kind, suggestions, and documentation
type CampusError struct {
	Code        ErrorCode
	Kind        Kind
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *CampusError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *CampusError) Unwrap() error {
	return e.Cause
}

// New creates a new CampusError
func New(code ErrorCode, message string) *CampusError {
	return &CampusError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CampusError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *CampusError {
	return &CampusError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithKind sets the error kind
func (e *CampusError) WithKind(kind Kind) *CampusError {
	e.Kind = kind
	return e
}

// WithSuggestion adds a suggestion to the error
func (e *CampusError) WithSuggestion(suggestion string) *CampusError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *CampusError) WithSuggestions(suggestions ...string) *CampusError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *CampusError) WithDocs(url string) *CampusError {
	e.DocsURL = url
	return e
}

// As finds the first CampusError in err's chain.
func As(err error) (*CampusError, bool) {
	var ce *CampusError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the kind of the first CampusError in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first CampusError in err's chain.
func CodeOf(err error) ErrorCode {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ""
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool { return err != nil && KindOf(err) == KindTransport }

// IsNotFound reports whether err signals an absent record.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsStale reports whether err signals a superseded asynchronous result.
func IsStale(err error) bool { return err != nil && KindOf(err) == KindStale }

// Common error constructors for frequently used errors

// NewTransportError wraps a failed store or identity provider call
func NewTransportError(code ErrorCode, operation string, cause error) *CampusError {
	return Wrap(code, fmt.Sprintf("%s failed", operation), cause).
		WithKind(KindTransport).
		WithSuggestion("Check your network connection").
		WithSuggestion("Retry the operation; local state has been kept")
}

// NewProfileNotFoundError reports that no profile document exists for a user
func NewProfileNotFoundError(userID string) *CampusError {
	return New(ErrCodeProfileNotFound, fmt.Sprintf("profile not found: %s", userID)).
		WithKind(KindNotFound)
}

// NewStaleResolutionError reports a resolution superseded by a newer credential event
func NewStaleResolutionError(token, latest uint64) *CampusError {
	return New(ErrCodeSessionStale, fmt.Sprintf("resolution %d superseded by %d", token, latest)).
		WithKind(KindStale)
}

// NewTenantUnknownError creates an unknown tenant error
func NewTenantUnknownError(tenantID string) *CampusError {
	return New(ErrCodeTenantUnknown, fmt.Sprintf("unknown college: %s", tenantID)).
		WithKind(KindInvalid).
		WithSuggestion("Run 'campusconnect tenant list' to see available colleges")
}

// NewTenantNotSavedError reports an optimistic tenant selection whose remote write failed
func NewTenantNotSavedError(tenantID string, cause error) *CampusError {
	return Wrap(ErrCodeTenantNotSaved, fmt.Sprintf("college selection %q may not have saved", tenantID), cause).
		WithKind(KindTransport).
		WithSuggestion("Your selection is active on this device").
		WithSuggestion("Run 'campusconnect tenant select' again to retry saving it")
}

// NewInvalidCredentialsError creates an authentication failure error
func NewInvalidCredentialsError() *CampusError {
	return New(ErrCodeIdentityInvalidCredentials, "invalid credentials").
		WithKind(KindAuth).
		WithSuggestion("Check your email and password").
		WithSuggestion("Run 'campusconnect signup' if you don't have an account yet")
}

// NewFieldRequiredError reports a missing required form field
func NewFieldRequiredError(field string) *CampusError {
	return New(ErrCodeIdentityFieldRequired, fmt.Sprintf("%s is required", field)).
		WithKind(KindInvalid)
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(key, details string) *CampusError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration %s: %s", key, details)).
		WithKind(KindInvalid).
		WithSuggestion("Run 'campusconnect config path' to locate the configuration file")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *CampusError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithKind(KindNotFound).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *CampusError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithKind(KindInvalid).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
