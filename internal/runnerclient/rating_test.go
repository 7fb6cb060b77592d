package runnerclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/marslander/internal/geom"
	"github.com/lox/marslander/internal/marslander"
)

func TestRatingForLandedPrefersCenteredFullFuelTouchdown(t *testing.T) {
	s := &marslander.State{
		Position:  geom.Point[int32]{X: 500},
		Fuel:      2000,
		SafeAreaX: geom.Span[int32]{Start: 0, End: 1000},
	}
	centered := ratingFor(0, marslander.Landed, s, 2000, 3000)
	require.InDelta(t, 0, centered, 1e-9)

	s.Position.X = 1000
	offCenter := ratingFor(0, marslander.Landed, s, 2000, 3000)
	require.Greater(t, offCenter, centered)
}

func TestRatingForCrashedExceedsEveryLandedRating(t *testing.T) {
	s := &marslander.State{
		Position:    geom.Point[int32]{X: 500, Y: 100},
		Fuel:        1000,
		SafeAreaX:   geom.Span[int32]{Start: 0, End: 1000},
		SafeAreaAlt: 50,
	}
	crashed := ratingFor(100, marslander.Crashed, s, 2000, 2000)
	require.GreaterOrEqual(t, crashed, 100.0)
}

func TestRatingForLostOrStepLimitIgnoresFinalState(t *testing.T) {
	s := &marslander.State{}
	ranFullBudget := ratingFor(0, marslander.Lost, s, 2000, 3000)
	require.InDelta(t, 200, ranFullBudget, 1e-9)

	lostImmediately := ratingFor(marslander.StepsLimit, marslander.Lost, s, 2000, 3000)
	require.InDelta(t, 300, lostImmediately, 1e-9)
}
