package request

// Cost units per image. A RAW buffer is several times the size of an
// encoded JPEG/WEBP, so it weighs correspondingly more against the queue
// capacity.
const (
	UnitCostEncoded = 1
	UnitCostRaw     = 6

	// DummyCost is what a barrier request weighs: one slot, like the
	// cheapest save.
	DummyCost = UnitCostEncoded
)

// Cost returns the admission cost of a request holding nImages images.
// Negative counts are treated as zero.
func Cost(isRaw bool, nImages int) int {
	if nImages <= 0 {
		return 0
	}
	if isRaw {
		return nImages * UnitCostRaw
	}
	return nImages * UnitCostEncoded
}

// PhotoCost returns the total cost of one capture that produces nRaw RAW
// images and nEncoded encoded images. RAW and encoded images are always
// submitted as separate requests; this is only the sum of their costs.
func PhotoCost(nRaw, nEncoded int) int {
	return Cost(true, nRaw) + Cost(false, nEncoded)
}
