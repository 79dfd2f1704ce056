package score_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/score"
)

func TestPoints(t *testing.T) {
	const (
		limit = 30 * time.Second
		base  = int64(1000)
	)

	tests := map[string]struct {
		timeSpent time.Duration
		want      int64
	}{
		"instant answer earns full base points": {
			timeSpent: 0,
			want:      1000,
		},
		"answer on the deadline earns the 20% floor": {
			timeSpent: limit,
			want:      200,
		},
		"answer past the deadline still earns the floor": {
			timeSpent: limit + 10*time.Second,
			want:      200,
		},
		"answer at 5s of 30s": {
			timeSpent: 5 * time.Second,
			want:      867, // 1000 * (0.2 + 0.8 * 25/30)
		},
		"answer at half the window": {
			timeSpent: 15 * time.Second,
			want:      600,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, score.Points(tt.timeSpent, limit, base))
		})
	}
}

func TestPoints_MonotonicallyNonIncreasing(t *testing.T) {
	const limit = 30 * time.Second

	prev := score.Points(0, limit, 1000)
	for spent := time.Second; spent <= limit; spent += time.Second {
		p := score.Points(spent, limit, 1000)
		require.LessOrEqual(t, p, prev, "points must not increase with time spent (t=%s)", spent)
		prev = p
	}
}

func TestPointsWithBonus(t *testing.T) {
	const (
		limit = 30 * time.Second
		base  = int64(1000)
	)

	tests := map[string]struct {
		timeSpent time.Duration
		want      int64
	}{
		"fastest 30% of the window gets the 1.5x bonus": {
			timeSpent: 5 * time.Second,
			want:      1300, // round(866.67 * 1.5)
		},
		"exactly at the bonus boundary still qualifies": {
			timeSpent: 9 * time.Second,
			want:      1140, // 760 * 1.5
		},
		"past the bonus boundary falls back to the plain reward": {
			timeSpent: 10 * time.Second,
			want:      733,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, score.PointsWithBonus(tt.timeSpent, limit, base))
		})
	}
}

func TestPoints_ZeroTimeLimit(t *testing.T) {
	// A question without a time window awards full points.
	assert.Equal(t, int64(500), score.Points(3*time.Second, 0, 500))
}
