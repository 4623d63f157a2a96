package math

import "math"

// FloorDiv returns floor(a / b) for b > 0, rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if r := a % b; r != 0 && (r < 0) != (b < 0) {
		q--
	}
	return q
}

// FloorCell maps a world coordinate onto a cell index of the given width.
// A non-positive or non-finite width maps everything to cell 0.
func FloorCell(v, width float64) int {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return 0
	}
	return int(math.Floor(v / width))
}

// Chebyshev returns the chessboard distance between two grid cells.
func Chebyshev(ax, ay, bx, by int) int {
	return max(abs(ax-bx), abs(ay-by))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
