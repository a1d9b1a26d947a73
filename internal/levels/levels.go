// Package levels maps a cumulative score to a display level. Levels are never
// persisted; they are recomputed from the score on demand.
package levels

import "math"

// Threshold curve constants. threshold(l) is the number of points needed to
// go from level l-1 to level l.
const (
	coefA = 0.5
	coefB = 1.5
	coefC = 3.5
)

// Calculate returns the level for score, the full width of the current level
// (scoreNext) and the points remaining to reach the next one (scoreLeft).
// Deterministic: thresholds are integers via ceiling rounding.
func Calculate(score int) (level, scoreNext, scoreLeft int) {
	if score <= 0 {
		// Bootstrap: level 1 always needs exactly 1 point to reach level 2.
		return 1, 1, 1
	}
	level = 2
	remainder := score - 1
	for {
		th := threshold(level)
		if remainder < th {
			return level, th, th - remainder
		}
		remainder -= th
		level++
	}
}

func threshold(level int) int {
	l := float64(level)
	return int(math.Ceil(coefA*l*l*l + coefB*l*l + coefC*l))
}
