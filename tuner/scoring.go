package tuner

import "math"

// Score is the GP observation scoring function: higher is better,
// overthrow and slowness are penalized (each capped), and finishing
// under the time target is rewarded only when the overthrow fraction is
// within the acceptable band (the same max-overthrow threshold in both
// phases). The result is clamped to [0, +inf).
func Score(overthrowFractionPercent, timeRatio, targetOverthrowPercent float64) float64 {
	score := 100.0
	score -= math.Min(50, 5*math.Abs(overthrowFractionPercent))
	score -= math.Min(30, 30*math.Max(0, timeRatio-1))
	if overthrowFractionPercent <= targetOverthrowPercent {
		score += 20 * math.Max(0, 1-timeRatio)
	}
	if score < 0 {
		score = 0
	}
	return score
}
