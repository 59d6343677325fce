package scoring

import "math"

// Rules holds the point constants of the ledger.
type Rules struct {
	StartingPoints    float64
	PointStep         float64
	StreakBonus       float64
	StreakBonusPeriod int
	// ResetStreakOnGap zeroes the streak when a day is skipped between evaluations.
	ResetStreakOnGap bool
}

// DefaultRules are the classroom defaults: start at 10, ±0.5 per day, +0.5 every 30-day streak.
func DefaultRules() Rules {
	return Rules{
		StartingPoints:    10,
		PointStep:         0.5,
		StreakBonus:       0.5,
		StreakBonusPeriod: 30,
	}
}

// WithDefaults fills unset values from DefaultRules.
func (r Rules) WithDefaults() Rules {
	def := DefaultRules()
	if r.StartingPoints <= 0 {
		r.StartingPoints = def.StartingPoints
	}
	if r.PointStep <= 0 {
		r.PointStep = def.PointStep
	}
	if r.StreakBonus < 0 {
		r.StreakBonus = def.StreakBonus
	}
	if r.StreakBonusPeriod <= 0 {
		r.StreakBonusPeriod = def.StreakBonusPeriod
	}
	return r
}

func clampPoints(points float64) float64 {
	return roundPoints(math.Max(0, points))
}

// roundPoints trims float noise from configured fractional steps.
func roundPoints(points float64) float64 {
	return math.Round(points*1e6) / 1e6
}
