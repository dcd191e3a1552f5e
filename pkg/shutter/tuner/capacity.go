package tuner

import "github.com/jamesainslie/shutter/pkg/shutter/request"

// Tier is a coarse bucket of available memory.
type Tier int

// Memory tiers from least to most memory.
const (
	TierVeryLow Tier = iota
	TierLow
	TierMedium
	TierHigh
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierVeryLow:
		return "very-low"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Tier thresholds in megabytes of large heap.
const (
	lowTierMB    = 128
	mediumTierMB = 256
	highTierMB   = 512
)

// Capacity per tier, in cost units.
//
// Every tier admits one RAW+JPEG capture without waiting. The high tier
// holds a burst of five RAW+JPEG captures with one request already taken
// off the queue by the saver.
const (
	capacityVeryLow = 7
	capacityLow     = 8
	capacityMedium  = 12
	capacityHigh    = 34
)

// QueuePlan is the sizing handed to the save queue.
type QueuePlan struct {
	// Tier is the memory tier the plan was derived from.
	Tier Tier

	// Capacity is the maximum pending cost before producers wait.
	Capacity int

	// Slots is the maximum number of requests waiting to be started.
	Slots int
}

// Overrides adjusts a plan computed from detected resources.
type Overrides struct {
	// SmallQueue forces the lowest tier regardless of memory. Tests use it
	// to exercise backpressure deterministically.
	SmallQueue bool

	// HeapMB replaces the detected memory tier signal when greater than 0.
	HeapMB int

	// Capacity replaces the tier capacity when greater than 0.
	Capacity int

	// Slots replaces the slot count when greater than 0.
	Slots int
}

// TierFor maps a memory tier signal in megabytes to its tier.
func TierFor(memoryTierMB int) Tier {
	switch {
	case memoryTierMB >= highTierMB:
		return TierHigh
	case memoryTierMB >= mediumTierMB:
		return TierMedium
	case memoryTierMB >= lowTierMB:
		return TierLow
	default:
		return TierVeryLow
	}
}

// Capacity returns the maximum pending cost for the given memory tier
// signal. It is monotone in memoryTierMB and never smaller than the cost
// of one RAW plus one encoded image.
func Capacity(memoryTierMB int) int {
	return capacityForTier(TierFor(memoryTierMB))
}

func capacityForTier(t Tier) int {
	var c int
	switch t {
	case TierHigh:
		c = capacityHigh
	case TierMedium:
		c = capacityMedium
	case TierLow:
		c = capacityLow
	default:
		c = capacityVeryLow
	}
	return max(c, MinCapacity())
}

// MinCapacity is the smallest capacity that can admit a worst-case single
// capture (one RAW and one encoded image) into an idle queue.
func MinCapacity() int {
	return request.PhotoCost(1, 1)
}

// Plan computes the queue plan for a memory tier signal.
func Plan(memoryTierMB int) QueuePlan {
	tier := TierFor(memoryTierMB)
	c := capacityForTier(tier)
	return QueuePlan{
		Tier:     tier,
		Capacity: c,
		Slots:    c,
	}
}

// PlanWithOverrides computes the queue plan for detected resources and
// applies user or test overrides on top.
func PlanWithOverrides(resources SystemResources, o Overrides) QueuePlan {
	heapMB := resources.MemoryTierMB()
	if o.HeapMB > 0 {
		heapMB = o.HeapMB
	}
	if o.SmallQueue {
		heapMB = 0
	}

	plan := Plan(heapMB)

	if o.Capacity > 0 {
		plan.Capacity = o.Capacity
		plan.Slots = o.Capacity
	}
	if o.Slots > 0 {
		plan.Slots = o.Slots
	}

	return plan
}
