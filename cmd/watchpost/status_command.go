package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"watchpost/internal/api"
	"watchpost/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, link, and spool status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, reachable, err := fetchStatus(cmd, ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Watchpost", colorize)
			if !reachable {
				locked, lockErr := daemon.IsRunning(cfg)
				switch {
				case lockErr != nil:
					lines = append(lines, renderStatusLine("Daemon", statusError, lockErr.Error(), colorize))
				case locked:
					lines = append(lines, renderStatusLine("Daemon", statusWarn, "running, local API not reachable", colorize))
				default:
					lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				}
				fmt.Fprintln(out, strings.Join(lines, "\n"))
				return nil
			}
			lines = append(lines, statusLines(status, time.Now(), colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw status document as JSON")
	return cmd
}

// fetchStatus asks the daemon for its status. reachable is false when no
// daemon answered; any other failure is returned.
func fetchStatus(cmd *cobra.Command, ctx *commandContext) (api.DaemonStatus, bool, error) {
	client, err := ctx.apiClient()
	if err != nil {
		if api.IsAPIUnavailable(err) {
			return api.DaemonStatus{}, false, nil
		}
		return api.DaemonStatus{}, false, err
	}
	status, err := client.Status(cmd.Context())
	if err != nil {
		if api.IsAPIUnavailable(err) {
			return api.DaemonStatus{}, false, nil
		}
		return api.DaemonStatus{}, false, err
	}
	return status, true, nil
}

func statusLines(status api.DaemonStatus, now time.Time, colorize bool) []string {
	wf := status.Workflow
	lines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize),
		renderStatusLine("Device", statusInfo, strings.TrimSpace(status.DeviceID+" "+status.Version), colorize),
		renderStatusLine("Tier", tierKind(wf.Tier), cases.Title(language.English).String(wf.Tier), colorize),
		renderStatusLine("Backend", boolKind(wf.Reachable, statusWarn), reachabilityText(wf), colorize),
		renderStatusLine("Time sync", boolKind(wf.TimeSynced, statusWarn), yesNo(wf.TimeSynced), colorize),
	}

	if wf.StorageOK {
		lines = append(lines, renderStatusLine("Storage", statusOK, status.SpoolDir, colorize))
	} else {
		lines = append(lines, renderStatusLine("Storage", statusError, wf.StorageError, colorize))
	}
	lines = append(lines, renderStatusLine("Queue", queueKind(wf.Queue), queueText(wf.Queue), colorize))
	if wf.LastSweep.At != "" {
		lines = append(lines, renderStatusLine("Last sweep", sweepKind(wf.LastSweep), sweepText(wf.LastSweep, now), colorize))
	}
	if wf.LastEvent != "" {
		msg := relativeTime(wf.LastEvent, now)
		if wf.LastOutcome != "" {
			msg += " (" + wf.LastOutcome + ")"
		}
		lines = append(lines, renderStatusLine("Last event", statusInfo, msg, colorize))
	}
	if wf.LastHeartbeat != "" {
		lines = append(lines, renderStatusLine("Last heartbeat", statusInfo, relativeTime(wf.LastHeartbeat, now), colorize))
	}
	lines = append(lines, renderStatusLine("Camera", statusInfo, arbiterText(wf.Camera), colorize))
	if wf.Intrusion.Enabled {
		msg := arbiterText(wf.Intrusion.Arbiter)
		if len(wf.Intrusion.PendingChannels) > 0 {
			msg += "; pending " + strings.Join(wf.Intrusion.PendingChannels, ",")
		}
		lines = append(lines, renderStatusLine("Intrusion", statusInfo, msg, colorize))
	} else {
		lines = append(lines, renderStatusLine("Intrusion", statusInfo, "disabled", colorize))
	}
	c := wf.Counters
	lines = append(lines, renderStatusLine("Counters", statusInfo, fmt.Sprintf(
		"delivered %d, queued %d, dropped %d, capture failures %d",
		c.Delivered, c.Queued, c.Dropped, c.CaptureFailures,
	), colorize))
	return lines
}

func tierKind(tier string) statusKind {
	switch strings.ToLower(tier) {
	case "online":
		return statusOK
	case "offline":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func boolKind(ok bool, otherwise statusKind) statusKind {
	if ok {
		return statusOK
	}
	return otherwise
}

func reachabilityText(wf api.WorkflowStatus) string {
	if wf.Reachable {
		return "reachable"
	}
	if wf.LastReconnect != "" {
		return "unreachable, last reconnect attempt " + wf.LastReconnect
	}
	return "unreachable"
}

func queueKind(q api.QueueStatus) statusKind {
	switch {
	case q.Error != "":
		return statusError
	case q.Records > 0:
		return statusWarn
	default:
		return statusOK
	}
}

func queueText(q api.QueueStatus) string {
	if q.Error != "" {
		return q.Error
	}
	msg := fmt.Sprintf("%d records, %s", q.Records, humanize.Bytes(uint64(max(q.Bytes, 0))))
	var limits []string
	if q.MaxRecords > 0 {
		limits = append(limits, fmt.Sprintf("%d records", q.MaxRecords))
	}
	if q.MaxBytes > 0 {
		limits = append(limits, humanize.Bytes(uint64(q.MaxBytes)))
	}
	if len(limits) > 0 {
		msg += " (limit " + strings.Join(limits, ", ") + ")"
	}
	if q.Evicted > 0 {
		msg += fmt.Sprintf(", %d evicted", q.Evicted)
	}
	return msg
}

func sweepKind(s api.SweepStatus) statusKind {
	switch {
	case s.Error != "":
		return statusError
	case s.Aborted || s.Failed > 0:
		return statusWarn
	default:
		return statusOK
	}
}

func sweepText(s api.SweepStatus, now time.Time) string {
	when := relativeTime(s.At, now)
	switch {
	case s.Skipped:
		return when + ": skipped"
	case s.Error != "":
		return when + ": " + s.Error
	}
	msg := fmt.Sprintf("%s: delivered %d/%d, %d remaining", when, s.Delivered, s.Attempted, s.Remaining)
	if s.Aborted {
		msg += ", aborted"
	}
	return msg
}

func arbiterText(a api.ArbiterStatus) string {
	return fmt.Sprintf("%s; admitted %d of %d raw (%d cooldown, %d busy)",
		a.State, a.Admitted, a.Raw, a.DroppedCooldown, a.DroppedArmed)
}

func relativeTime(value string, now time.Time) string {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}
