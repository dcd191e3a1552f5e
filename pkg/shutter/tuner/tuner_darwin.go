//go:build darwin

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect detects available system resources (CPU and RAM).
// On darwin (macOS), it uses unix.SysctlUint64 for total memory and a
// conservative estimate for available memory.
func Detect() (SystemResources, error) {
	resources := SystemResources{
		CPUCores: runtime.NumCPU(),
	}

	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return resources, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	resources.TotalRAM = int64(memsize)

	// Precise free memory needs host_statistics; half of total is close
	// enough for picking a tier.
	resources.AvailableRAM = resources.TotalRAM / 2

	return resources, nil
}
