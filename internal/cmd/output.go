package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/navigation"
)

var (
	labelStyle    = lipgloss.NewStyle().Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	redirectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// writeStructured writes v as JSON or YAML. It reports false for the text format.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "", "text":
		return false, nil
	default:
		return true, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("unknown output format %q", format)).
			WithKind(errors.KindInvalid).
			WithSuggestion("Use one of: text, json, yaml")
	}
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		value = mutedStyle.Render("none")
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label+":")), value)
}

func printHops(w io.Writer, hops []navigation.Screen) {
	for _, h := range hops {
		fmt.Fprintln(w, redirectStyle.Render("→ "+h.String()))
	}
}
