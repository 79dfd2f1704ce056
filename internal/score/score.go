// Package score computes time-weighted points for answered questions.
// It is pure and holds no session state.
package score

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	// minRatio is the floor of the time-decay factor: an answer on the very
	// last moment of the window still earns 20% of the base points.
	minRatio = decimal.NewFromFloat(0.2)

	// bonusWindow is the leading fraction of the time window that qualifies
	// for the speed bonus.
	bonusWindow = decimal.NewFromFloat(0.3)

	bonusMultiplier = decimal.NewFromFloat(1.5)

	one = decimal.NewFromInt(1)
)

// Points returns the points awarded for a correct answer submitted after
// timeSpent within a window of timeLimit:
//
//	reward = basePoints * (minRatio + (1-minRatio) * max(0, 1 - timeSpent/timeLimit))
//
// rounded to the nearest integer. Incorrect answers must not be scored
// through this function; they are worth 0 regardless of timing.
func Points(timeSpent, timeLimit time.Duration, basePoints int64) int64 {
	return reward(timeSpent, timeLimit, basePoints).Round(0).IntPart()
}

// PointsWithBonus behaves like Points but multiplies the reward by 1.5 when
// the answer lands within the fastest 30% of the time window.
func PointsWithBonus(timeSpent, timeLimit time.Duration, basePoints int64) int64 {
	r := reward(timeSpent, timeLimit, basePoints)

	if timeLimit > 0 {
		spent := decimal.NewFromInt(timeSpent.Milliseconds())
		limit := decimal.NewFromInt(timeLimit.Milliseconds())
		if spent.LessThanOrEqual(limit.Mul(bonusWindow)) {
			r = r.Mul(bonusMultiplier)
		}
	}

	return r.Round(0).IntPart()
}

func reward(timeSpent, timeLimit time.Duration, basePoints int64) decimal.Decimal {
	if timeLimit <= 0 {
		return decimal.NewFromInt(basePoints)
	}

	spent := decimal.NewFromInt(timeSpent.Milliseconds())
	limit := decimal.NewFromInt(timeLimit.Milliseconds())

	ratio := one.Sub(spent.Div(limit))
	if ratio.IsNegative() {
		ratio = decimal.Zero
	}

	factor := minRatio.Add(one.Sub(minRatio).Mul(ratio))
	return decimal.NewFromInt(basePoints).Mul(factor)
}
