// Package commands is the omnistream CLI.
package commands

import (
	"os"

	"github.com/room4-2/omnistream/config"
	"github.com/room4-2/omnistream/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "omnistream",
	Short: "OmniStream handset with a Gemini voice link",
	Long: `omnistream runs the simulated OmniStream handset.

The voice link streams the microphone to a Gemini Live session and plays
the spoken reply. Gemini can switch modules and toggle scanning or ghost
mode by voice.

Configuration comes from an optional YAML file (--config or
OMNISTREAM_CONFIG), a .env file and environment variables.
GEMINI_API_KEY is required.`,
	SilenceUsage: true,
	// Serve the dashboard by default
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default $OMNISTREAM_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(voiceCmd)
	rootCmd.AddCommand(askCmd)
}

// loadConfig resolves configuration and the logger built from it.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfigFile(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat), nil
}
