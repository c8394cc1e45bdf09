package workflow

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Reconnector tries to bring the uplink back.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

type commandReconnector struct {
	command []string
	timeout time.Duration
}

type noopReconnector struct{}

func (noopReconnector) Reconnect(context.Context) error { return nil }

// NewCommandReconnector runs command on each reconnect attempt. An empty
// command only re-probes.
func NewCommandReconnector(command []string, timeout time.Duration) Reconnector {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return noopReconnector{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &commandReconnector{command: append([]string(nil), command...), timeout: timeout}
}

func (r *commandReconnector) Reconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("reconnect command %s: %w: %s", r.command[0], err, detail)
		}
		return fmt.Errorf("reconnect command %s: %w", r.command[0], err)
	}
	return nil
}
