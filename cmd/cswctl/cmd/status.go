package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cswd status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := daemonClient().GetStatus(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Status:       %s\n", resp.Status)
			fmt.Printf("Uptime:       %s\n", resp.Uptime)
			fmt.Printf("NATS Running: %v\n", resp.NATSRunning)
			fmt.Printf("Started At:   %s\n", resp.StartedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Component:    %s (%s)\n", resp.Component, resp.Prefix)
			fmt.Printf("Command URL:  %s\n", resp.CommandURL)
			fmt.Printf("Commands:     %d tracked, %d pending\n", resp.TrackedCommands, resp.PendingCommands)
			fmt.Printf("Components:   %d announced\n", resp.ComponentCount)
			return nil
		},
	}
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List submitted commands tracked by cswd",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := daemonClient().GetCommands(cmd.Context())
			if err != nil {
				return err
			}

			if len(resp.Commands) == 0 {
				fmt.Println("No commands tracked.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tCOMMAND\tSUBMITTED\tFINAL\tRESPONSE")
			for _, c := range resp.Commands {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
					c.RunID, c.CommandName,
					c.Submitted.Format("15:04:05"),
					c.Final, c.Response,
				)
			}
			w.Flush()
			return nil
		},
	}
}

func newComponentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "List components that announced a command server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := daemonClient().GetComponents(cmd.Context())
			if err != nil {
				return err
			}

			if len(resp.Components) == 0 {
				fmt.Println("No components announced.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tPREFIX\tURI\tREGISTERED")
			for _, c := range resp.Components {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.Name, c.ComponentType, c.Prefix, c.URI,
					c.RegisteredAt.Format("15:04:05"),
				)
			}
			w.Flush()
			return nil
		},
	}
}
