package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/campusconnect/internal/navigation"
)

var navigateCmd = &cobra.Command{
	Use:     "navigate <screen>",
	Aliases: []string{"open", "go"},
	Short:   "Open a screen and follow the redirects it causes",
	Long: `Open a screen the way the app would: the navigation guard checks the session
and redirects to login, college selection or the feed when the screen is not
allowed. Every redirect followed is printed.`,
	Example: `  campusconnect navigate feed
  campusconnect navigate /communities/stanford`,
	Args: cobra.ExactArgs(1),
	RunE: runNavigate,
}

func init() {
	rootCmd.AddCommand(navigateCmd)
}

func runNavigate(cmd *cobra.Command, args []string) error {
	target, err := navigation.ParseScreen(args[0])
	if err != nil {
		return err
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startSession(target, nil); err != nil {
		return err
	}
	if err := a.follow(cmd.Context()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, target.String())
	printHops(out, a.followed())
	printField(out, "Screen", a.guard.Current().String())
	return nil
}
