package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/campusconnect/internal/navigation"
	"github.com/felixgeelhaar/campusconnect/internal/session"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"whoami"},
	Short:   "Show the session and the decision for a screen",
	Long: `Resolve the current session and print who is signed in, their college and
what the screen given by --screen would do: stay, keep loading or redirect.`,
	Example: `  campusconnect status
  campusconnect status --screen messages -o json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the structured form of `campusconnect status`.
type statusReport struct {
	Authenticated bool   `json:"authenticated" yaml:"authenticated"`
	UserID        string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Email         string `json:"email,omitempty" yaml:"email,omitempty"`
	FullName      string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	TenantID      string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	TenantName    string `json:"tenant_name,omitempty" yaml:"tenant_name,omitempty"`
	Resolving     bool   `json:"resolving" yaml:"resolving"`
	Version       uint64 `json:"version" yaml:"version"`
	Phase         string `json:"phase" yaml:"phase"`
	Screen        string `json:"screen" yaml:"screen"`
	Decision      string `json:"decision" yaml:"decision"`
	Target        string `json:"target,omitempty" yaml:"target,omitempty"`
}

func newStatusReport(st session.State, screen navigation.Screen) statusReport {
	d := navigation.Decide(st, screen)
	r := statusReport{
		Authenticated: st.Authenticated(),
		UserID:        st.UserID(),
		TenantID:      st.TenantID,
		TenantName:    st.TenantName(),
		Resolving:     st.Resolving,
		Version:       st.Version,
		Phase:         navigation.PhaseOf(st).String(),
		Screen:        screen.String(),
		Decision:      d.Kind.String(),
	}
	if st.Credential != nil {
		r.Email = st.Credential.Email
	}
	if st.Profile != nil {
		r.FullName = st.Profile.FullName
	}
	if d.Kind == navigation.Redirect {
		r.Target = d.Target.String()
	}
	return r
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	screen, err := a.screen()
	if err != nil {
		return err
	}
	if err := a.startSession(screen, nil); err != nil {
		return err
	}
	if err := a.session.Settled(cmd.Context()); err != nil {
		return err
	}

	report := newStatusReport(a.session.Snapshot(), screen)
	out := cmd.OutOrStdout()
	if done, err := writeStructured(out, a.ctx.Format, report); done {
		return err
	}

	if !report.Authenticated {
		fmt.Fprintln(out, mutedStyle.Render("Not signed in"))
	} else {
		printField(out, "User", report.UserID)
		printField(out, "Email", report.Email)
		printField(out, "Name", report.FullName)
		printField(out, "College", report.TenantName)
	}
	printField(out, "Phase", report.Phase)
	printField(out, "Screen", report.Screen)
	decision := report.Decision
	if report.Target != "" {
		decision = redirectStyle.Render(decision + " → " + report.Target)
	}
	printField(out, "Decision", decision)
	return nil
}
