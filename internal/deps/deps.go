// Package deps checks that the external programs a configuration names are
// installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"watchpost/internal/config"
)

// Requirement is one external program the daemon may execute.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports whether a requirement resolved on PATH.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Requirements lists the programs cfg will run. The capture program is
// omitted when captureOverride is set.
func Requirements(cfg *config.Config, captureOverride bool) []Requirement {
	var reqs []Requirement
	if !captureOverride {
		reqs = append(reqs, Requirement{
			Name:        "Capture",
			Command:     firstArg(cfg.Capture.Command),
			Description: "still capture (capture.command)",
		})
	}
	if len(cfg.Network.ReconnectCommand) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "Reconnect",
			Command:     firstArg(cfg.Network.ReconnectCommand),
			Description: "link recovery (network.reconnect_command)",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		status := Status{Requirement: req}
		switch path, err := exec.LookPath(req.Command); {
		case req.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the unavailable requirements that are not optional.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
