package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/campusconnect/internal/navigation"
	"github.com/felixgeelhaar/campusconnect/internal/session"
)

// View renders the watch screen.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("CampusConnect session"))
	b.WriteString("\n")

	b.WriteString(m.styles.Border.Render(m.renderState()))
	b.WriteString("\n\n")

	menu := m.renderScreens()
	side := m.renderDecision()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, menu, "    ", side))
	b.WriteString("\n")

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render("Error: ") + m.lastError)
		b.WriteString("\n")
	}

	b.WriteString(m.renderHelpLine())
	return b.String()
}

func (m WatchModel) field(label, value string) string {
	return m.styles.Muted.Render(fmt.Sprintf("%-10s", label)) + " " + value
}

func (m WatchModel) renderState() string {
	st := m.state
	lines := []string{
		m.field("Phase", m.styles.Status.Render(navigation.PhaseOf(st).String())),
		m.field("User", describeUser(st)),
		m.field("College", m.describeTenant(st)),
		m.field("Version", fmt.Sprintf("%d", st.Version)),
	}
	return strings.Join(lines, "\n")
}

func describeUser(st session.State) string {
	if st.Credential == nil {
		return "signed out"
	}
	name := st.Credential.DisplayName
	if st.Profile != nil && st.Profile.FullName != "" {
		name = st.Profile.FullName
	}
	if name == "" {
		return st.Credential.Email
	}
	return fmt.Sprintf("%s <%s>", name, st.Credential.Email)
}

func (m WatchModel) describeTenant(st session.State) string {
	switch {
	case st.TenantID == "":
		return m.styles.Muted.Render("none")
	case st.TenantName() != "":
		return fmt.Sprintf("%s (%s)", st.TenantName(), st.TenantID)
	default:
		return st.TenantID
	}
}

func (m WatchModel) renderScreens() string {
	current := m.guard.Current()
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Screens"))
	b.WriteString("\n")
	for i, s := range m.screens {
		line := s.String()
		if s == current {
			line += " •"
		}
		if i == m.cursor {
			b.WriteString(m.styles.Highlighted.Render(line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m WatchModel) renderDecision() string {
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Decision"))
	b.WriteString("\n")

	d := m.guard.Decision()
	switch d.Kind {
	case navigation.Loading:
		b.WriteString(m.styles.Warning.Render("loading…"))
	case navigation.Redirect:
		b.WriteString(m.styles.Warning.Render("redirect → " + d.Target.String()))
	default:
		b.WriteString(m.styles.Success.Render("stay on " + m.guard.Current().String()))
	}
	b.WriteString("\n\n")

	b.WriteString(m.styles.Subtitle.Render("Recent redirects"))
	b.WriteString("\n")
	if len(m.redirects) == 0 {
		b.WriteString(m.styles.Muted.Render("none"))
		b.WriteString("\n")
	}
	for _, r := range m.redirects {
		b.WriteString("→ " + r.String() + "\n")
	}
	return b.String()
}

func (m WatchModel) renderHelpLine() string {
	bindings := []struct{ key, desc string }{
		{m.keys.Up.Help().Key, m.keys.Up.Help().Desc},
		{m.keys.Down.Help().Key, m.keys.Down.Help().Desc},
		{m.keys.Navigate.Help().Key, m.keys.Navigate.Help().Desc},
		{m.keys.Logout.Help().Key, m.keys.Logout.Help().Desc},
		{m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc},
	}
	parts := make([]string, len(bindings))
	for i, kb := range bindings {
		parts[i] = m.styles.Key.Render(kb.key) + " " + m.styles.KeyDesc.Render(kb.desc)
	}
	return m.styles.Help.Render(strings.Join(parts, "  "))
}
