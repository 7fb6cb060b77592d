package runnerclient

import (
	"math"

	"github.com/lox/marslander/internal/marslander"
)

// ratingFor scores one finished simulation (lower is better), matching
// eval_outcome_rating in
// original_source/runner/internal/runner_app_simulation.cpp.
// stepsRemaining is marslander.StepsLimit minus however many turns the
// simulation actually ran before resolving (or the full budget, if it
// never resolved).
func ratingFor(stepsRemaining int, o marslander.Outcome, final *marslander.State, fuel0 int32, y0 int32) float64 {
	steps := float64(stepsRemaining)
	const stepsLimit = float64(marslander.StepsLimit)

	switch o {
	case marslander.Landed:
		safeHalfWidth := 0.5 * float64(final.SafeAreaX.End-final.SafeAreaX.Start)
		safeCenter := float64(final.SafeAreaX.Start) + safeHalfWidth
		return 10.0*(steps/stepsLimit) +
			60.0*(1-float64(final.Fuel)/float64(fuel0)) +
			30.0*(math.Abs(float64(final.Position.X)-safeCenter)/safeHalfWidth)

	case marslander.Crashed:
		safeCenter := 0.5 * float64(final.SafeAreaX.Start+final.SafeAreaX.End)
		return 100.0 + 20.0*(steps/stepsLimit) +
			20.0*(1-float64(final.Fuel)/float64(fuel0)) +
			35.0*(math.Abs(float64(final.Position.X)-safeCenter)/marslander.ZoneWidth) +
			25.0*(math.Abs(float64(final.Position.Y-final.SafeAreaAlt))/float64(y0-final.SafeAreaAlt))

	default: // Lost, or still Aerial at the step limit
		return 200.0 + 100.0*(steps/stepsLimit)
	}
}
