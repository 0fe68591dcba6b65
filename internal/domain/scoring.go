package domain

import "time"

// ScoreConfig tunes the time-decay scoring curve.
type ScoreConfig struct {
	// BasePoints is the maximum award for an instant correct answer.
	BasePoints int
	// MinPoints is the floor for any correct answer regardless of speed.
	MinPoints int
}

// DefaultScoreConfig mirrors the kahoot-style curve of the web game.
var DefaultScoreConfig = ScoreConfig{BasePoints: 1000, MinPoints: 100}

// Score computes the points for a graded answer. Incorrect answers score
// zero. Correct answers decay linearly from BasePoints down to MinPoints as
// timeSpent approaches the question limit; the question Points field scales
// the result (default 1). The curve is monotonically non-increasing in
// timeSpent and bounded in [0, BasePoints*points].
func (c ScoreConfig) Score(correct bool, timeSpent time.Duration, limit time.Duration, questionPoints int) int {
	if !correct {
		return 0
	}
	if questionPoints <= 0 {
		questionPoints = 1
	}
	base := c.BasePoints
	min := c.MinPoints
	if base <= 0 {
		base = DefaultScoreConfig.BasePoints
	}
	if min <= 0 || min > base {
		min = DefaultScoreConfig.MinPoints
		if min > base {
			min = base
		}
	}
	if limit <= 0 || timeSpent >= limit {
		return min * questionPoints
	}
	if timeSpent < 0 {
		timeSpent = 0
	}
	remaining := 1 - float64(timeSpent)/float64(limit)
	award := min + int(float64(base-min)*remaining)
	return award * questionPoints
}
