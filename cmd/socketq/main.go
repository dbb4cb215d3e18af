package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketq/debug"
)

var (
	configFile string
	logLevel   string
	cfg        *Config
)

var rootCmd = &cobra.Command{
	Use:   "socketq",
	Short: "Connection-agnostic socket client and reference server",
	Long: "socketq binds listeners and emits events over a socket whether or not it is connected.\n" +
		"Calls made while offline are queued and replayed in priority order once the socket connects.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			level, ok := debug.ParseLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}
			debug.SetLevel(level)
		}

		path := configFile
		if path == "" {
			p, err := defaultConfigPath()
			if err != nil {
				return err
			}
			path = p
		}

		loaded, err := loadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.socketq/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
