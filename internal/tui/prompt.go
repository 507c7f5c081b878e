package tui

import (
	stderrors "errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/felixgeelhaar/campusconnect/internal/tenant"
)

// ErrNoCollege is returned when the tenant selection is left empty.
var ErrNoCollege = stderrors.New("Please select your college.")

// Prompt represents a simple interactive prompt configuration
type Prompt struct {
	Message     string
	Default     string
	Placeholder string
	Required    bool
	Secret      bool
}

// PromptForString displays an interactive prompt and returns the user's input
func PromptForString(p Prompt) (string, error) {
	value := p.Default

	input := huh.NewInput().
		Title(p.Message).
		Placeholder(p.Placeholder).
		Value(&value)
	if p.Secret {
		input = input.EchoMode(huh.EchoModePassword)
	}
	if p.Required {
		input = input.Validate(required(p.Message))
	}

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	if p.Secret {
		return value, nil
	}
	return strings.TrimSpace(value), nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

func required(label string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}

// ValidateCollege rejects an empty or unknown college id.
func ValidateCollege(dir *tenant.Directory) func(string) error {
	return func(id string) error {
		if id == "" {
			return ErrNoCollege
		}
		if !dir.Contains(id) {
			return fmt.Errorf("unknown college: %s", id)
		}
		return nil
	}
}

// ValidateEmail accepts a single address without display name.
func ValidateEmail(s string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil || addr.Name != "" {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}

// CollegeOptions lists dir as select options labeled "Name (id)".
func CollegeOptions(dir *tenant.Directory) []huh.Option[string] {
	tenants := dir.List()
	options := make([]huh.Option[string], len(tenants))
	for i, t := range tenants {
		options[i] = huh.NewOption(fmt.Sprintf("%s (%s)", t.Name, t.ID), t.ID)
	}
	return options
}

func collegeSelect(dir *tenant.Directory, value *string) *huh.Select[string] {
	return huh.NewSelect[string]().
		Title("Select your college").
		Options(CollegeOptions(dir)...).
		Validate(ValidateCollege(dir)).
		Value(value)
}

// SelectCollege asks for a college from dir. current is preselected.
func SelectCollege(dir *tenant.Directory, current string) (string, error) {
	selected := current
	if err := huh.NewForm(huh.NewGroup(collegeSelect(dir, &selected))).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	if err := ValidateCollege(dir)(selected); err != nil {
		return "", err
	}
	return selected, nil
}

// Credentials are the answers of the login form.
type Credentials struct {
	Email    string
	Password string
}

// LoginForm asks for email and password.
func LoginForm(email string) (Credentials, error) {
	c := Credentials{Email: email}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(&c.Email).Validate(ValidateEmail),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&c.Password).Validate(required("Password")),
	))
	if err := form.Run(); err != nil {
		return Credentials{}, fmt.Errorf("prompt failed: %w", err)
	}
	c.Email = strings.TrimSpace(c.Email)
	return c, nil
}

// Signup are the answers of the signup form.
type Signup struct {
	FullName string
	Email    string
	Password string
	College  string
}

// SignupForm asks for the account details and a college from dir.
func SignupForm(dir *tenant.Directory, initial Signup) (Signup, error) {
	s := initial
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Full name").Value(&s.FullName).Validate(required("Full name")),
			huh.NewInput().Title("Email").Value(&s.Email).Validate(ValidateEmail),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&s.Password).Validate(required("Password")),
		),
		huh.NewGroup(collegeSelect(dir, &s.College)),
	)
	if err := form.Run(); err != nil {
		return Signup{}, fmt.Errorf("prompt failed: %w", err)
	}
	s.FullName = strings.TrimSpace(s.FullName)
	s.Email = strings.TrimSpace(s.Email)
	return s, nil
}

// IsInteractive returns true if stdin is a terminal (not piped or redirected)
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}
	return IsInteractive()
}
