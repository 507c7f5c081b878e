package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/campusconnect/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
	RunE: runVersion,
}

var versionVerbose bool

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show detailed version information")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()
	out := cmd.OutOrStdout()

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if done, err := writeStructured(out, format, info); done {
		return err
	}

	if versionVerbose {
		fmt.Fprintln(out, info.String())
		return nil
	}
	fmt.Fprintf(out, "campusconnect %s\n", info.Short())
	return nil
}
