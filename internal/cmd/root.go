package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "campusconnect",
	Short: "CampusConnect session client",
	Long: `campusconnect signs students in, resolves their college and decides which
screen they may see. It keeps the selected college in a local cache, talks to
the profile store and follows the navigation rules of the CampusConnect app.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is $CAMPUS_HOME/config.yaml)")
	rootCmd.PersistentFlags().String("home", "", "CampusConnect home directory (default is ~/.campusconnect)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")
	rootCmd.PersistentFlags().String("screen", "/", "screen the session is evaluated on")
	rootCmd.PersistentFlags().StringP("format", "o", "text", "output format: text, json, yaml")
}
