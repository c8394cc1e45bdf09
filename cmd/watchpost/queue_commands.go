package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"watchpost/internal/api"
	"watchpost/internal/config"
	"watchpost/internal/daemon"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the capture spool",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueSweepCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List spooled captures, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resp, err := listQueue(cmd.Context(), ctx, cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			if len(resp.Records) == 0 {
				fmt.Fprintln(out, "Spool is empty")
				return nil
			}
			fmt.Fprintln(out, renderQueueTable(resp.Records))
			fmt.Fprintf(out, "%d records, %s\n", len(resp.Records), humanize.Bytes(uint64(max(resp.Bytes, 0))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	return cmd
}

// listQueue prefers the running daemon and falls back to reading the spool
// directly, without reconciling or evicting, when no daemon holds the
// instance lock.
func listQueue(cmdCtx context.Context, ctx *commandContext, cfg *config.Config) (api.QueueListResponse, error) {
	client, err := ctx.apiClient()
	if err == nil {
		resp, err := client.Queue(cmdCtx)
		if err == nil {
			return resp, nil
		}
		if !api.IsAPIUnavailable(err) {
			return api.QueueListResponse{}, err
		}
	} else if !api.IsAPIUnavailable(err) {
		return api.QueueListResponse{}, err
	}

	running, err := daemon.IsRunning(cfg)
	if err != nil {
		return api.QueueListResponse{}, err
	}
	if running {
		return api.QueueListResponse{}, wrapAPIError(api.ErrAPIUnavailable, cfg.Paths.APIBind)
	}

	store, err := spool.OpenReadOnlyFromConfig(cmdCtx, cfg, logging.NewNop())
	if err != nil {
		return api.QueueListResponse{}, fmt.Errorf("open spool: %w", err)
	}
	defer store.Close()
	records, err := store.List(cmdCtx)
	if err != nil {
		return api.QueueListResponse{}, fmt.Errorf("list spool: %w", err)
	}
	return api.FromRecords(records), nil
}

func renderQueueTable(records []api.QueueRecord) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.Seq, 10),
			rec.Key,
			time.Unix(rec.CapturedAt, 0).UTC().Format(time.RFC3339),
			humanize.Bytes(uint64(max(rec.SizeBytes, 0))),
		})
	}
	return renderTable(
		[]string{"Seq", "Key", "Captured", "Size"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	)
}

func newQueueSweepCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Ask the daemon to deliver spooled captures now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}
			resp, err := client.Sweep(cmd.Context())
			if err != nil {
				return wrapAPIError(err, cfg.Paths.APIBind)
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sweep requested; the daemon drains the spool on its next tick")
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the daemon response as JSON")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every spooled capture (daemon must be stopped)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			running, err := daemon.IsRunning(cfg)
			if err != nil {
				return err
			}
			if running {
				return errors.New("daemon is running; stop it before clearing the spool")
			}

			store, err := spool.OpenFromConfig(cmd.Context(), cfg, logging.NewNop())
			if err != nil {
				return fmt.Errorf("open spool: %w", err)
			}
			defer store.Close()
			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear spool: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d spooled captures\n", removed)
			return nil
		},
	}
}
