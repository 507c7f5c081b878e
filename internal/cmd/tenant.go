package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/navigation"
	"github.com/felixgeelhaar/campusconnect/internal/tenant"
	"github.com/felixgeelhaar/campusconnect/internal/tui"
)

var tenantCmd = &cobra.Command{
	Use:     "tenant",
	Aliases: []string{"college"},
	Short:   "List and select colleges",
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the colleges in the directory",
	RunE:  runTenantList,
}

var tenantSelectCmd = &cobra.Command{
	Use:   "select [college-id]",
	Short: "Select your college",
	Long: `Select the college for the signed-in user. The choice is active immediately
and saved to the profile store. Without an id a list is shown to pick from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTenantSelect,
}

var tenantListCounts bool

func init() {
	tenantListCmd.Flags().BoolVar(&tenantListCounts, "counts", false, "show how many stored profiles belong to each college")

	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantSelectCmd)
	rootCmd.AddCommand(tenantCmd)
}

// tenantCounter is implemented by stores that can count profiles per college.
type tenantCounter interface {
	CountByTenant(ctx context.Context) (map[string]int, error)
}

type tenantRow struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Profiles *int   `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

func tenantRows(ctx context.Context, dir *tenant.Directory, counter tenantCounter) ([]tenantRow, error) {
	var counts map[string]int
	if counter != nil {
		c, err := counter.CountByTenant(ctx)
		if err != nil {
			return nil, err
		}
		counts = c
	}

	rows := make([]tenantRow, 0, dir.Len())
	for _, t := range dir.List() {
		row := tenantRow{ID: t.ID, Name: t.Name}
		if counts != nil {
			n := counts[t.ID]
			row.Profiles = &n
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func runTenantList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var counter tenantCounter
	if tenantListCounts {
		c, ok := a.store.(tenantCounter)
		if !ok {
			return errors.NewConfigInvalidError("profiles.backend",
				"the "+a.cfg.Profiles.Backend+" store cannot count profiles")
		}
		counter = c
	}

	rows, err := tenantRows(cmd.Context(), a.directory, counter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if done, err := writeStructured(out, a.ctx.Format, rows); done {
		return err
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r.ID))
	}
	for _, r := range rows {
		line := fmt.Sprintf("%-*s  %s", width, r.ID, r.Name)
		if r.Profiles != nil {
			line += mutedStyle.Render(fmt.Sprintf("  (%d)", *r.Profiles))
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runTenantSelect(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startSession(navigation.TenantSelection, nil); err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := a.session.Settled(ctx); err != nil {
		return err
	}
	st := a.session.Snapshot()
	if !st.Authenticated() {
		return errors.New(errors.ErrCodeIdentityTokenInvalid, "not signed in").
			WithKind(errors.KindAuth).
			WithSuggestion("Run 'campusconnect login' first")
	}

	var id string
	if len(args) > 0 {
		id = strings.TrimSpace(args[0])
	} else if tui.ShouldPrompt() {
		id, err = tui.SelectCollege(a.directory, st.TenantID)
		if err != nil {
			return err
		}
	}
	if err := tui.ValidateCollege(a.directory)(id); err != nil {
		if id == "" {
			return errors.New(errors.ErrCodeTenantRequired, err.Error()).
				WithKind(errors.KindInvalid).
				WithSuggestion("Pass a college id, see 'campusconnect tenant list'")
		}
		return errors.NewTenantUnknownError(id)
	}

	assignErr := a.session.AssignTenant(ctx, id)
	if assignErr != nil && !errors.IsTransport(assignErr) {
		return assignErr
	}
	if err := a.navigate(ctx, navigation.Community(id)); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("College selected: "+a.directory.DisplayName(id)))
	printHops(out, a.followed())
	printField(out, "Screen", a.guard.Current().String())
	return assignErr
}
