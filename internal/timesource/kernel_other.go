//go:build !linux

package timesource

// KernelChecker assumes a synchronised clock on platforms without adjtimex.
type KernelChecker struct{}

func (KernelChecker) Synced() (bool, error) { return true, nil }
