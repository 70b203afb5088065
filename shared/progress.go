package shared

import "math"

// MaxRunningPercent is the ceiling reported while any item is unfinished;
// 100 is reserved for the terminal snapshot.
const MaxRunningPercent = 99.99

// OverallPercent weights every item equally:
// itemIndex*(100/totalItems) + itemPercent*(1/totalItems), clamped to [0, MaxRunningPercent].
func OverallPercent(itemIndex, totalItems int, itemPercent float64) float64 {
	if totalItems < 1 {
		totalItems = 1
	}
	if itemIndex < 0 {
		itemIndex = 0
	}
	switch {
	case itemPercent < 0:
		itemPercent = 0
	case itemPercent > 100:
		itemPercent = 100
	}
	weight := 100.0 / float64(totalItems)
	overall := float64(itemIndex)*weight + itemPercent/float64(totalItems)
	return clampRunning(overall)
}

// ItemBoundary is the overall percentage once the first completed items are done.
func ItemBoundary(completed, totalItems int) float64 {
	if totalItems < 1 {
		totalItems = 1
	}
	return clampRunning(float64(completed) * 100 / float64(totalItems))
}

func clampRunning(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > MaxRunningPercent {
		return MaxRunningPercent
	}
	return p
}

// RoundPercent rounds a percentage to two decimals for reporting.
func RoundPercent(p float64) float64 {
	return math.Round(p*100) / 100
}
