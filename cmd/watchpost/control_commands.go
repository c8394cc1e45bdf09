package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "trigger [channel]",
		Short: "Offer a camera trigger to the running daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var channel string
			if len(args) == 1 {
				channel = args[0]
			}
			client, err := ctx.apiClient()
			if err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}
			resp, err := client.Trigger(cmd.Context(), channel)
			if err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			if resp.Accepted {
				fmt.Fprintf(cmd.OutOrStdout(), "Trigger accepted (camera %s)\n", resp.State)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Trigger dropped (camera %s)\n", resp.State)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the daemon response as JSON")
	return cmd
}

func newSensorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sensor <left|middle|right>",
		Short: "Report a PIR pulse to the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}
			resp, err := client.Sensor(cmd.Context(), args[0])
			if err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			if len(resp.Pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Sensor pulse recorded; no channels pending")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sensor pulse recorded; pending: %s\n", strings.Join(resp.Pending, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the daemon response as JSON")
	return cmd
}
