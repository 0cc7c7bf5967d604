package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmt-csw/gocsw/pkg/command"
)

func newSendCmd(verb, short string) *cobra.Command {
	var (
		paramSpecs []string
		kind       string
		obsID      string
		runID      string
		wait       bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   verb + " <commandName>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := command.ParseVerb(verb)
			if err != nil {
				return err
			}
			params, err := parseParams(paramSpecs)
			if err != nil {
				return err
			}
			if runID == "" {
				runID = command.NewRunID()
			}

			var c command.ControlCommand
			switch command.Kind(kind) {
			case command.Setup:
				c = command.NewSetup(cfg.Prefix, args[0], runID, params...)
			case command.Observe:
				c = command.NewObserve(cfg.Prefix, args[0], runID, params...)
			case command.Wait:
				c = command.NewWait(cfg.Prefix, args[0], runID, params...)
			default:
				return fmt.Errorf("unknown command kind %q (want Setup, Observe or Wait)", kind)
			}
			if obsID != "" {
				c = c.WithObsID(obsID)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cl := commandClient()
			var resp command.Response
			if wait && v == command.Submit {
				resp, err = cl.SubmitAndWait(ctx, c)
			} else {
				resp, err = cl.Send(ctx, v, c)
			}
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}

	cmd.Flags().StringArrayVarP(&paramSpecs, "param", "p", nil, "parameter as name:KeyType:v1,v2[:units] (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", string(command.Setup), "command kind: Setup, Observe or Wait")
	cmd.Flags().StringVar(&obsID, "obs-id", "", "observation id")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (default: new UUID)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the server")
	if verb == string(command.Submit) {
		cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the final response of a Started command")
	}

	return cmd
}

func newQueryCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "query <runId>",
		Short: "Wait for the final response of a submitted command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := commandClient().QueryFinal(ctx, args[0])
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait")
	return cmd
}

func printResponse(resp command.Response) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
