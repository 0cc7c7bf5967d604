package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tmt-csw/gocsw/internal/server"
)

var version = "dev"

func main() {
	var (
		cfgFile string
		listen  string
		script  string
	)

	rootCmd := &cobra.Command{
		Use:   "cswd",
		Short: "CSW component daemon: command server, event service and embedded NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if script != "" {
				cfg.Component.Script = script
			}

			if err := server.ApplyLogLevel(cfg.Log.Level); err != nil {
				return fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
			}
			logger := zerolog.New(
				zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
			).With().Timestamp().Logger()

			d := server.NewDaemon(cfg, logger)
			return d.Run()
		},
	}

	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().StringVar(&listen, "listen", "", "command server address (overrides server.listen)")
	rootCmd.Flags().StringVar(&script, "script", "", "Lua component script (overrides component.script)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
