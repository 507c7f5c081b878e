package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// NotFound indicates a requested record does not exist
	NotFound = 3

	// TenantRequired indicates the command needs a selected college
	TenantRequired = 4

	// AuthError indicates an authentication failure
	AuthError = 5

	// NetworkError indicates a store or identity provider could not be reached
	NetworkError = 6

	// Interrupted indicates the command was cancelled by SIGINT or SIGTERM
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code.
// Coded errors are classified by kind; other errors fall back to cobra's usage messages.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if errors.CodeOf(err) == errors.ErrCodeTenantRequired {
		return TenantRequired
	}

	if _, ok := errors.As(err); ok {
		switch errors.KindOf(err) {
		case errors.KindTransport:
			return NetworkError
		case errors.KindAuth:
			return AuthError
		case errors.KindNotFound:
			return NotFound
		case errors.KindInvalid:
			return UsageError
		default:
			return GeneralError
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case NotFound:
		return "Not found"
	case TenantRequired:
		return "No college selected"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
