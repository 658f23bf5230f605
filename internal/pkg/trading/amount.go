// Package trading holds small position-sizing helpers shared by executors.
package trading

import "math"

// CloseQuantity is the absolute amount to exit when closing ratio of a
// position. Ratios above 1 close the whole position.
func CloseQuantity(position, ratio float64) float64 {
	size := math.Abs(position)
	if size == 0 || ratio <= 0 || math.IsNaN(ratio) {
		return 0
	}
	if ratio >= 1 {
		return size
	}
	return size * ratio
}
