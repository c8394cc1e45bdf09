package main

import (
	"github.com/spf13/cobra"

	"watchpost/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Long: "Run the capture daemon in the foreground until SIGINT or SIGTERM.\n" +
			"Intended to be supervised by systemd.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include caller information in every log line")
	cmd.Flags().StringVar(&opts.CaptureFile, "capture-file", "", "Serve this JPEG instead of running the capture command")
	return cmd
}
