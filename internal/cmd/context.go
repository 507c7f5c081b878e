package cmd

import (
	"github.com/spf13/cobra"
)

// CommandContext holds the persistent flags of a command invocation.
type CommandContext struct {
	ConfigFile string
	Home       string
	LogLevel   string
	LogFormat  string
	Screen     string
	Format     string
}

// NewCommandContext extracts command context from cobra.Command flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	flags := cmd.Flags()

	configFile, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	home, err := flags.GetString("home")
	if err != nil {
		return nil, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return nil, err
	}
	screen, err := flags.GetString("screen")
	if err != nil {
		return nil, err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigFile: configFile,
		Home:       home,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		Screen:     screen,
		Format:     format,
	}, nil
}
