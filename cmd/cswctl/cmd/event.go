package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tmt-csw/gocsw/pkg/event"
)

func newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Read and publish events",
	}

	cmd.AddCommand(newEventKeysCmd())
	cmd.AddCommand(newEventGetCmd())
	cmd.AddCommand(newEventPublishCmd())
	cmd.AddCommand(newEventSubscribeCmd())

	return cmd
}

func newEventKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List event keys holding a value (via cswd)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := daemonClient().GetEventKeys(cmd.Context())
			if err != nil {
				return err
			}
			if len(resp.Keys) == 0 {
				fmt.Println("No events published.")
				return nil
			}
			for _, k := range resp.Keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func newEventGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <source.eventName>",
		Short: "Print the latest event for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openEvents(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			e, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e.IsInvalid() {
				fmt.Fprintf(os.Stderr, "nothing published under %s\n", args[0])
			}
			return printEvent(e)
		},
	}
}

func newEventPublishCmd() *cobra.Command {
	var (
		paramSpecs []string
		observe    bool
	)

	cmd := &cobra.Command{
		Use:   "publish <source> <eventName>",
		Short: "Publish an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(paramSpecs)
			if err != nil {
				return err
			}
			e := event.NewSystemEvent(args[0], args[1], params...)
			if observe {
				e = event.NewObserveEvent(args[0], args[1], params...)
			}

			svc, closeFn, err := openEvents(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Publish(cmd.Context(), e); err != nil {
				return err
			}
			fmt.Printf("Published %s (%s)\n", e.Key(), e.EventID)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&paramSpecs, "param", "p", nil, "parameter as name:KeyType:v1,v2[:units] (repeatable)")
	cmd.Flags().BoolVar(&observe, "observe", false, "publish an ObserveEvent instead of a SystemEvent")
	return cmd
}

func newEventSubscribeCmd() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "subscribe [key...]",
		Short: "Print current values and updates until interrupted",
		Long: `Subscribes to the given keys, or to a wildcard pattern with --pattern.
Without arguments it follows the test assembly's current state (` + assemblyStateKey + `).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			svc, closeFn, err := openEvents(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			show := func(e event.Event) {
				if err := printEvent(e); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			}

			if pattern != "" {
				sub, err := svc.SubscribePattern(ctx, pattern, show)
				if err != nil {
					return err
				}
				defer sub.Stop()
				<-sub.Done()
				return nil
			}

			keys := args
			if len(keys) == 0 {
				keys = []string{assemblyStateKey}
			}
			sub, err := svc.Subscribe(ctx, keys, show)
			if err != nil {
				return err
			}
			defer sub.Stop()
			<-sub.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "wildcard key pattern, e.g. CSW.pycswTest.*")
	return cmd
}

func printEvent(e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
