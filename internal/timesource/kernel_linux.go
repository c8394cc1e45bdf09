package timesource

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	timeError = 5      // TIME_ERROR clock state
	staUnsync = 0x0040 // STA_UNSYNC status bit
)

// KernelChecker reads the NTP discipline state via adjtimex(2).
type KernelChecker struct{}

func (KernelChecker) Synced() (bool, error) {
	var tx unix.Timex
	state, err := unix.Adjtimex(&tx)
	if err != nil {
		return false, fmt.Errorf("adjtimex: %w", err)
	}
	if state == timeError || tx.Status&staUnsync != 0 {
		return false, nil
	}
	return true, nil
}
