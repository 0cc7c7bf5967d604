package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tmt-csw/gocsw/internal/assembly"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
	"github.com/tmt-csw/gocsw/pkg/protocol"
	"github.com/tmt-csw/gocsw/pkg/sockpath"
)

var (
	cfg settings

	// Version is set by the main package via ldflags.
	Version = "dev"
)

// NewRootCmd creates the root cswctl command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cswctl",
		Short:   "CSW CLI: send commands to a component and work with events",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadSettings(cmd.Root())
			return err
		},
		SilenceUsage: true,
	}

	f := rootCmd.PersistentFlags()
	f.String("config", "", "config file path")
	f.String("socket", sockpath.DefaultSocketPath(), "cswd Unix socket path")
	f.String("url", "http://127.0.0.1:7654", "command server base URL")
	f.String("component-type", protocol.ComponentAssembly, "target component type")
	f.String("component-name", "pycswTest", "target component name")
	f.String("prefix", "CSW.cswctl", "source prefix of commands sent")
	f.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL for the event service")
	f.String("nats-token", "", "NATS auth token")
	f.String("bucket", eventservice.DefaultBucket, "event service KV bucket")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newComponentsCmd())
	rootCmd.AddCommand(newSendCmd("submit", "Submit a command and print its response"))
	rootCmd.AddCommand(newSendCmd("oneway", "Send a command without tracking completion"))
	rootCmd.AddCommand(newSendCmd("validate", "Ask whether the component would accept a command"))
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newEventCmd())
	rootCmd.AddCommand(newSecretsCmd())

	return rootCmd
}

// assemblyStateKey is the key the test assembly publishes its state under.
var assemblyStateKey = assembly.DefaultPrefix + "." + assembly.StateName
