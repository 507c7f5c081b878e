package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeProfileInvalid, "test error message")

	if err.Code != ErrCodeProfileInvalid {
		t.Errorf("expected code %s, got %s", ErrCodeProfileInvalid, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}

	if err.Kind != KindInternal {
		t.Errorf("expected internal kind, got %s", err.Kind)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "failed to read file", cause)

	if err.Code != ErrCodeFileReadFailed {
		t.Errorf("expected code %s, got %s", ErrCodeFileReadFailed, err.Code)
	}

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *CampusError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeTenantUnknown, "unknown college"),
			wantCode: "TENANT-001",
			wantMsg:  "unknown college",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			wantCode: "IO-002",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestWithSuggestionsAndDocs(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad config").
		WithSuggestion("Check field 'home'").
		WithSuggestions("Check field 'profiles'", "Check field 'cache'").
		WithDocs("https://example.com/docs")

	if len(err.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	for _, want := range []string{"Suggestions:", "Check field 'home'", "Check field 'cache'", "Documentation:", "https://example.com/docs"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error string should contain %q, got: %s", want, errStr)
		}
	}
}

func TestKindHelpers(t *testing.T) {
	transport := NewTransportError(ErrCodeProfileTransport, "fetch profile", fmt.Errorf("connection refused"))
	notFound := NewProfileNotFoundError("u-1")
	stale := NewStaleResolutionError(3, 4)

	tests := []struct {
		name          string
		err           error
		wantTransport bool
		wantNotFound  bool
		wantStale     bool
	}{
		{"transport", transport, true, false, false},
		{"wrapped transport", fmt.Errorf("resolve: %w", transport), true, false, false},
		{"not found", notFound, false, true, false},
		{"stale", stale, false, false, true},
		{"plain error", fmt.Errorf("boom"), false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransport(tt.err); got != tt.wantTransport {
				t.Errorf("IsTransport() = %v, want %v", got, tt.wantTransport)
			}
			if got := IsNotFound(tt.err); got != tt.wantNotFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.wantNotFound)
			}
			if got := IsStale(tt.err); got != tt.wantStale {
				t.Errorf("IsStale() = %v, want %v", got, tt.wantStale)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewTenantUnknownError("nowhere"))
	if got := CodeOf(err); got != ErrCodeTenantUnknown {
		t.Errorf("expected %s, got %s", ErrCodeTenantUnknown, got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("expected empty code, got %s", got)
	}
}

func TestNewTenantNotSavedError(t *testing.T) {
	cause := fmt.Errorf("503 service unavailable")
	err := NewTenantNotSavedError("mit", cause)

	if err.Code != ErrCodeTenantNotSaved {
		t.Errorf("expected code %s, got %s", ErrCodeTenantNotSaved, err.Code)
	}
	if !IsTransport(err) {
		t.Errorf("tenant-not-saved should be a transport error")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be preserved")
	}
	if !strings.Contains(err.Message, "may not have saved") {
		t.Errorf("message should warn the selection may not have saved, got %q", err.Message)
	}
}

func TestNewFileUnmarshalError(t *testing.T) {
	cause := fmt.Errorf("invalid YAML syntax at line 5")
	err := NewFileUnmarshalError("/path/to/tenants.yaml", "YAML", cause)

	if err.Code != ErrCodeFileUnmarshal {
		t.Errorf("expected code %s, got %s", ErrCodeFileUnmarshal, err.Code)
	}

	if err.Cause != cause {
		t.Errorf("expected cause to be preserved")
	}

	if !strings.Contains(err.Message, "/path/to/tenants.yaml") {
		t.Errorf("error message should contain file path")
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindInternal:  "internal",
		KindTransport: "transport",
		KindNotFound:  "not_found",
		KindStale:     "stale",
		KindInvalid:   "invalid",
		KindAuth:      "auth",
	}
	for kind, want := range kinds {
		if kind.String() != want {
			t.Errorf("Kind(%d).String() = %s, want %s", kind, kind.String(), want)
		}
	}
}
