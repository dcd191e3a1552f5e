// Package tuner detects the memory available to the process and turns it
// into a save-queue plan: how much cost the background saver may hold in
// flight before producers are made to wait.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available (free) RAM in bytes.
	// This may be an estimate based on system heuristics.
	AvailableRAM int64
}

// Large-heap emulation. A camera app gets a per-process heap that is a
// small slice of device RAM; we mirror that when deriving the tier signal.
const (
	heapFraction = 8
	maxHeapMB    = 1024
)

// MemoryTierMB returns the coarse memory signal used by Capacity: the
// number of megabytes a single process could reasonably use for buffered
// images.
func (r SystemResources) MemoryTierMB() int {
	mb := r.AvailableRAM / heapFraction / (1024 * 1024)
	if mb < 0 {
		return 0
	}
	return int(min(mb, maxHeapMB))
}
