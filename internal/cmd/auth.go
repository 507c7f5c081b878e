package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/navigation"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
	"github.com/felixgeelhaar/campusconnect/internal/tui"
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and choose a college",
	Long: `Create an email and password account, store the profile with the chosen
college and sign in. Missing fields are asked for interactively.`,
	RunE: runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	Long: `Sign in with email and password, or with an ID token when the oidc identity
backend is configured. Without a college you are sent to college selection.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE:  runLogout,
}

var (
	signupName     string
	signupEmail    string
	signupPassword string
	signupCollege  string

	loginEmail    string
	loginPassword string
	loginIDToken  string
)

func init() {
	signupCmd.Flags().StringVar(&signupName, "name", "", "full name")
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "email address")
	signupCmd.Flags().StringVar(&signupPassword, "password", "", "password")
	signupCmd.Flags().StringVar(&signupCollege, "college", "", "college id (see 'campusconnect tenant list')")

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email address")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password")
	loginCmd.Flags().StringVar(&loginIDToken, "id-token", "", "ID token from the college sign-in service (oidc backend)")

	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runSignup(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := a.requireLocal()
	if err != nil {
		return err
	}

	answers := tui.Signup{
		FullName: strings.TrimSpace(signupName),
		Email:    strings.TrimSpace(signupEmail),
		Password: signupPassword,
		College:  strings.TrimSpace(signupCollege),
	}
	incomplete := answers.FullName == "" || answers.Email == "" || answers.Password == "" || answers.College == ""
	if incomplete && tui.ShouldPrompt() {
		answers, err = tui.SignupForm(a.directory, answers)
		if err != nil {
			return err
		}
	}
	if err := tui.ValidateCollege(a.directory)(answers.College); err != nil {
		if answers.College != "" {
			return errors.NewTenantUnknownError(answers.College)
		}
		return errors.New(errors.ErrCodeTenantRequired, err.Error()).
			WithKind(errors.KindInvalid).
			WithSuggestion("Pass --college or run 'campusconnect tenant list'")
	}

	if err := a.startSession(navigation.Signup, nil); err != nil {
		return err
	}

	ctx := cmd.Context()
	cred, err := provider.SignUp(ctx, answers.Email, answers.Password, answers.FullName)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	p := &profile.Profile{
		UserID:    cred.UserID,
		Email:     cred.Email,
		FullName:  cred.DisplayName,
		TenantID:  answers.College,
		AvatarURL: profile.InitialsAvatarURL(cred.DisplayName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.Put(ctx, p); err != nil {
		return err
	}
	if err := a.session.AssignTenant(ctx, answers.College); err != nil {
		return err
	}
	if err := a.follow(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("Account created"))
	printHops(out, a.followed())
	printSession(out, a)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startSession(navigation.Login, nil); err != nil {
		return err
	}

	ctx := cmd.Context()
	if a.oidc != nil {
		if _, err := a.oidc.SignIn(ctx, loginIDToken); err != nil {
			return err
		}
	} else {
		creds := tui.Credentials{Email: strings.TrimSpace(loginEmail), Password: loginPassword}
		if tui.ShouldPrompt() {
			switch {
			case creds.Email == "":
				creds, err = tui.LoginForm(creds.Email)
			case creds.Password == "":
				creds.Password, err = tui.PromptForString(tui.Prompt{Message: "Password", Required: true, Secret: true})
			}
			if err != nil {
				return err
			}
		}
		if _, err := a.local.SignIn(ctx, creds.Email, creds.Password); err != nil {
			return err
		}
	}

	if err := a.follow(ctx); err != nil {
		return err
	}
	if st := a.session.Snapshot(); st.Authenticated() && st.TenantID == "" {
		if err := a.navigate(ctx, navigation.TenantSelection); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("Signed in"))
	printHops(out, a.followed())
	printSession(out, a)
	if a.session.Snapshot().TenantID == "" {
		fmt.Fprintln(out, mutedStyle.Render("Run 'campusconnect tenant select' to choose your college"))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	if err := a.session.Settled(ctx); err != nil {
		return err
	}
	logoutErr := a.session.Logout(ctx)
	if err := a.follow(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("Signed out"))
	printHops(out, a.followed())
	return logoutErr
}

// printSession prints who is signed in and where the guard left them.
func printSession(w io.Writer, a *app) {
	st := a.session.Snapshot()
	printField(w, "User", st.UserID())
	if st.Profile != nil {
		printField(w, "Name", st.Profile.FullName)
	}
	printField(w, "College", st.TenantName())
	printField(w, "Screen", a.guard.Current().String())
}
